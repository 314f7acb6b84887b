package policy

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema/policy-v1.json
var fileSchema []byte

// File is a policy file as written on disk.
//
//	version: v1
//	licenses:
//	  allowed: [MIT, Apache-2.0]
//	ignore:
//	  - crate: "my-internal-*"
//	    reason: first-party
type File struct {
	Version  string       `yaml:"version" json:"version"`
	Licenses LicenseRules `yaml:"licenses" json:"licenses"`
	Ignore   []IgnoreRule `yaml:"ignore" json:"ignore,omitempty"`
	// Rego names a rules file, relative to the policy file.
	Rego string `yaml:"rego" json:"rego,omitempty"`

	path string
}

// LicenseRules holds the identifier lists of a policy file.
type LicenseRules struct {
	Allowed         []string `yaml:"allowed" json:"allowed,omitempty"`
	Forbidden       []string `yaml:"forbidden" json:"forbidden,omitempty"`
	DenyStrategy    string   `yaml:"deny_strategy" json:"deny_strategy,omitempty"`
	CaseInsensitive bool     `yaml:"case_insensitive" json:"case_insensitive,omitempty"`
}

// IgnoreRule exempts crates whose name matches Crate, a glob pattern.
type IgnoreRule struct {
	Crate  string `yaml:"crate" json:"crate"`
	Reason string `yaml:"reason" json:"reason,omitempty"`
}

// LoadFile reads and validates a policy file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.path = path
	return f, nil
}

// ParseFile decodes and validates policy file contents.
func ParseFile(data []byte) (*File, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if len(f.Licenses.Allowed) > 0 && len(f.Licenses.Forbidden) > 0 {
		return nil, ErrConflictingPolicy
	}
	return &f, nil
}

func validate(doc interface{}) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("policy is not representable as JSON: %w", err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(fileSchema), gojsonschema.NewBytesLoader(docJSON))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("policy validation failed:\n%s", strings.Join(problems, "\n"))
	}
	return nil
}

// Policy builds the evaluator policy described by the file. It returns nil
// when the file lists no licenses.
func (f *File) Policy(opts ...Option) (*Policy, error) {
	strategy, err := ParseStrategy(f.Licenses.DenyStrategy)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithStrategy(strategy), WithCaseInsensitive(f.Licenses.CaseInsensitive)}, opts...)
	return FromLists(f.Licenses.Allowed, f.Licenses.Forbidden, opts...)
}

// IgnorePatterns returns the crate patterns of the ignore rules.
func (f *File) IgnorePatterns() []string {
	out := make([]string, 0, len(f.Ignore))
	for _, rule := range f.Ignore {
		out = append(out, rule.Crate)
	}
	return out
}

// RegoPath resolves the rules file against the policy file location.
func (f *File) RegoPath() string {
	if f.Rego == "" || filepath.IsAbs(f.Rego) || f.path == "" {
		return f.Rego
	}
	return filepath.Join(filepath.Dir(f.path), f.Rego)
}
