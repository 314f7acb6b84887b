package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/cargo-licenses/pkg/exitcode"
)

func TestList(t *testing.T) {
	path := writeManifest(t)

	tests := []struct {
		name  string
		flags []string
		want  string
	}{
		{"default", nil, "serde = \"1.0\"\ngpl-thing = \"2\"\ndual = \"0.4\"\nghost = \"0.3\"\n"},
		{"dev", []string{"--dev"}, "serde = \"1.0\"\ngpl-thing = \"2\"\ndual = \"0.4\"\nghost = \"0.3\"\ntempfile = \"3\"\n"},
		{"skip_optional", []string{"--skip-optional"}, "serde = \"1.0\"\ngpl-thing = \"2\"\nghost = \"0.3\"\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"list", "--manifest-path", path}, tc.flags...)
			out, err := execRoot(t, args...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}

func TestListMissingManifest(t *testing.T) {
	_, err := execRoot(t, "list", "--manifest-path", filepath.Join(t.TempDir(), "Cargo.toml"))
	require.Error(t, err)
	assert.Equal(t, exitcode.FileSystemError, exitCode(err))
}
