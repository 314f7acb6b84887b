package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/cargo-licenses/pkg/exitcode"
	"github.com/fulmenhq/cargo-licenses/pkg/report"
)

func rowFor(t *testing.T, out, crate string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, crate+" ") {
			return line
		}
	}
	t.Fatalf("no row for %s in:\n%s", crate, out)
	return ""
}

func TestCheckDenyChoice(t *testing.T) {
	useMockRegistry(t)
	path := writeManifest(t)

	out, err := execRoot(t, "check", "--manifest-path", path, "--deny", "GPL-3.0")
	require.Error(t, err)
	assert.Equal(t, exitcode.PolicyViolation, exitCode(err))
	assert.Contains(t, err.Error(), "1 dependencies violate the license policy")

	assert.True(t, strings.HasSuffix(rowFor(t, out, "serde"), "pass"))
	assert.True(t, strings.HasSuffix(rowFor(t, out, "dual"), "pass"))
	assert.True(t, strings.HasSuffix(rowFor(t, out, "gpl-thing"), "fail"))
	assert.True(t, strings.HasSuffix(rowFor(t, out, "ghost"), "unresolved"))
	assert.Contains(t, out, "4 dependencies: 2 passed, 1 failed, 1 unresolved")
}

func TestCheckDenyAny(t *testing.T) {
	useMockRegistry(t)
	path := writeManifest(t)

	out, err := execRoot(t, "check", "--manifest-path", path, "--deny", "GPL-3.0", "--deny-strategy", "any")
	require.Error(t, err)
	assert.True(t, strings.HasSuffix(rowFor(t, out, "dual"), "fail"))
	assert.Contains(t, err.Error(), "2 dependencies violate")
}

func TestCheckAllowExpressionFlag(t *testing.T) {
	useMockRegistry(t)
	path := writeManifest(t)

	args := []string{"check", "--manifest-path", path, "--allow", "MIT OR Apache-2.0", "--allow", "GPL-3.0"}
	_, err := execRoot(t, args...)
	require.NoError(t, err)

	_, err = execRoot(t, append(args, "--strict")...)
	require.Error(t, err)
	assert.Equal(t, exitcode.PolicyViolation, exitCode(err))
	assert.Contains(t, err.Error(), "1 dependencies could not be resolved")
}

func TestCheckAllowAndDenyConflict(t *testing.T) {
	useMockRegistry(t)
	path := writeManifest(t)

	_, err := execRoot(t, "check", "--manifest-path", path, "--allow", "MIT", "--deny", "GPL-3.0")
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitCode(err))
}

func TestCheckRequiresPolicy(t *testing.T) {
	useMockRegistry(t)
	_, err := execRoot(t, "check", "--manifest-path", writeManifest(t))
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitCode(err))
}

func TestCheckPolicyFileWithRules(t *testing.T) {
	useMockRegistry(t)
	path := writeManifest(t)
	dir := t.TempDir()

	rules := `package cargolicenses

deny contains msg if {
	dep := input.dependencies[_]
	dep.name == "serde"
	msg := sprintf("%s is not approved", [dep.name])
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.rego"), []byte(rules), 0o644))
	policyFile := filepath.Join(dir, "licenses.yaml")
	require.NoError(t, os.WriteFile(policyFile, []byte(`version: v1
licenses:
  forbidden: [GPL-3.0]
ignore:
  - crate: "gpl-*"
    reason: vendored fork
rego: extra.rego
`), 0o644))

	out, err := execRoot(t, "check", "--manifest-path", path, "--policy", policyFile)
	require.Error(t, err)
	assert.Equal(t, exitcode.PolicyViolation, exitCode(err))
	assert.Contains(t, err.Error(), "1 rule violations")
	assert.NotContains(t, err.Error(), "violate the license policy")

	assert.True(t, strings.HasSuffix(rowFor(t, out, "gpl-thing"), "ignored"))
	assert.Contains(t, out, "Rule violations:")
	assert.Contains(t, out, "  - serde is not approved")
}

func TestCheckJSONOutputFile(t *testing.T) {
	useMockRegistry(t)
	path := writeManifest(t)
	output := filepath.Join(t.TempDir(), "check.json")

	out, err := execRoot(t, "check", "--manifest-path", path, "--allow", "MIT", "--format", "json", "--output", output)
	require.Error(t, err)
	assert.Equal(t, "Generated JSON: "+output+"\n", out)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var doc report.Report
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Entries, 4)
	assert.Equal(t, "allow: MIT", doc.Policy)
	// "MIT OR GPL-3.0" offers an allowed choice.
	assert.Equal(t, "dual", doc.Entries[2].CrateName)
	assert.Equal(t, "pass", doc.Entries[2].Verdict)
	assert.Equal(t, "gpl-thing", doc.Entries[1].CrateName)
	assert.Equal(t, "fail", doc.Entries[1].Verdict)
	assert.Equal(t, []string{"GPL-3.0"}, doc.Entries[1].Offending)
}

func TestCheckUnsupportedFormat(t *testing.T) {
	_, err := execRoot(t, "check", "--manifest-path", writeManifest(t), "--deny", "GPL-3.0", "--format", "pdf")
	require.Error(t, err)
	assert.Equal(t, exitcode.UnsupportedFormat, exitCode(err))
}

func TestCheckMinAgeDays(t *testing.T) {
	useMockRegistry(t)
	path := writeManifest(t)

	out, err := execRoot(t, "check", "--manifest-path", path, "--min-age-days", "36500")
	require.Error(t, err)
	assert.Equal(t, exitcode.PolicyViolation, exitCode(err))
	assert.Contains(t, err.Error(), "3 rule violations")
	assert.Contains(t, out, "crate serde 1.0.196 is only")

	_, err = execRoot(t, "check", "--manifest-path", path, "--min-age-days", "30")
	require.NoError(t, err)
}

func TestCheckStrictRegistryUnreachable(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		want  int
		crate string
	}{
		{"network", errors.New("dial tcp: connection refused"), exitcode.NetworkError, "offline"},
		{"timeout", context.DeadlineExceeded, exitcode.TimeoutError, "slow"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock := useMockRegistry(t)
			mock.AddError("https://crates.io/api/v1/crates/"+tc.crate+"/versions", tc.err)
			path := filepath.Join(t.TempDir(), "Cargo.toml")
			require.NoError(t, os.WriteFile(path, []byte("[dependencies]\n"+tc.crate+" = \"1\"\n"), 0o644))

			args := []string{"check", "--manifest-path", path, "--allow", "MIT"}
			_, err := execRoot(t, args...)
			require.NoError(t, err)

			_, err = execRoot(t, append(args, "--strict")...)
			require.Error(t, err)
			assert.Equal(t, tc.want, exitCode(err))
			assert.Contains(t, err.Error(), "1 dependencies could not be resolved")
		})
	}
}

func TestCheckStrictMissingCrateIsPolicyViolation(t *testing.T) {
	useMockRegistry(t)
	path := filepath.Join(t.TempDir(), "Cargo.toml")
	require.NoError(t, os.WriteFile(path, []byte("[dependencies]\nghost = \"0.3\"\n"), 0o644))

	_, err := execRoot(t, "check", "--manifest-path", path, "--allow", "MIT", "--strict")
	require.Error(t, err)
	assert.Equal(t, exitcode.PolicyViolation, exitCode(err))
}
