// Package manifest reads the direct dependencies declared in a Cargo.toml.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"
)

// ErrManifestNotFound reports a manifest path that does not exist.
var ErrManifestNotFound = errors.New("manifest not found")

// Section names a dependency table of the manifest.
type Section string

const (
	SectionNormal Section = "dependencies"
	SectionDev    Section = "dev-dependencies"
	SectionBuild  Section = "build-dependencies"
)

// Dependency is one declared direct dependency.
type Dependency struct {
	// Name is the key the manifest declares the dependency under.
	Name string
	// Package is the registry name when the dependency is renamed.
	Package string
	// Constraint is the version requirement; empty accepts any version.
	Constraint string
	Optional   bool
	Section    Section
	// Target is the cfg expression or triple of a platform specific table.
	Target string
}

// RegistryName is the crate name to look up on the registry.
func (d Dependency) RegistryName() string {
	if d.Package != "" {
		return d.Package
	}
	return d.Name
}

// DisplayConstraint renders an empty constraint as "*".
func (d Dependency) DisplayConstraint() string {
	if d.Constraint == "" {
		return "*"
	}
	return d.Constraint
}

// Options filters the sections and entries returned.
type Options struct {
	IncludeDev   bool
	IncludeBuild bool
	SkipOptional bool
}

// Load reads and parses the manifest at path.
func Load(path string, opts Options) ([]Dependency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	deps, err := Parse(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return deps, nil
}

type document map[string]interface{}

// Parse extracts dependencies from manifest contents. Sections come in the
// order dependencies, dev-dependencies, build-dependencies, each followed by
// its platform specific tables. Entries and target tables keep the order the
// manifest declares them in. Entries repeating an earlier (name, constraint)
// pair are dropped.
func Parse(data []byte, opts Options) ([]Dependency, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	sections := []Section{SectionNormal}
	if opts.IncludeDev {
		sections = append(sections, SectionDev)
	}
	if opts.IncludeBuild {
		sections = append(sections, SectionBuild)
	}

	order := keyOrder(data)
	workspace := workspaceVersions(doc)
	targets := table(doc, "target")

	var all []Dependency
	for _, section := range sections {
		name := string(section)
		all = append(all, readTable(table(doc, name), declaredKeys(order, []string{name}, table(doc, name)), section, "", workspace, opts)...)
		for _, target := range declaredKeys(order, []string{"target"}, targets) {
			tbl := table(table(targets, target), name)
			keys := declaredKeys(order, []string{"target", target, name}, tbl)
			all = append(all, readTable(tbl, keys, section, target, workspace, opts)...)
		}
	}
	return dedupe(all), nil
}

func readTable(tbl map[string]interface{}, names []string, section Section, target string, workspace map[string]string, opts Options) []Dependency {
	var deps []Dependency
	for _, name := range names {
		dep := Dependency{Name: name, Section: section, Target: target}
		switch item := tbl[name].(type) {
		case string:
			dep.Constraint = strings.TrimSpace(item)
		case map[string]interface{}:
			if optional, _ := item["optional"].(bool); optional {
				if opts.SkipOptional {
					continue
				}
				dep.Optional = true
			}
			if pkg, ok := item["package"].(string); ok {
				dep.Package = pkg
			}
			if version, ok := item["version"].(string); ok {
				dep.Constraint = strings.TrimSpace(version)
			} else if inherit, _ := item["workspace"].(bool); inherit {
				dep.Constraint = workspace[dep.Name]
			}
		}
		deps = append(deps, dep)
	}
	return deps
}

// keyOrder lists the full key path of every table header and key/value
// line in the order they appear in the document.
func keyOrder(data []byte) [][]string {
	var p unstable.Parser
	p.Reset(data)

	var current []string
	var paths [][]string
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table, unstable.ArrayTable:
			current = keyParts(expr.Key())
			paths = append(paths, current)
		case unstable.KeyValue:
			path := append(slices.Clone(current), keyParts(expr.Key())...)
			paths = append(paths, path)
		}
	}
	return paths
}

func keyParts(it unstable.Iterator) []string {
	var parts []string
	for it.Next() {
		parts = append(parts, string(it.Node().Data))
	}
	return parts
}

// declaredKeys returns the keys of tbl, found under prefix, in the order
// order first mentions them. Keys order does not mention, such as those of
// inline tables, follow sorted by name.
func declaredKeys[V any](order [][]string, prefix []string, tbl map[string]V) []string {
	keys := make([]string, 0, len(tbl))
	seen := make(map[string]struct{}, len(tbl))
	for _, path := range order {
		if len(path) <= len(prefix) || !slices.Equal(path[:len(prefix)], prefix) {
			continue
		}
		key := path[len(prefix)]
		if _, ok := tbl[key]; !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	for _, key := range sortedKeys(tbl) {
		if _, ok := seen[key]; !ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// workspaceVersions collects [workspace.dependencies] requirements that
// members inherit with `workspace = true`.
func workspaceVersions(doc document) map[string]string {
	out := make(map[string]string)
	ws := table(doc, "workspace")
	for name, item := range table(ws, "dependencies") {
		switch v := item.(type) {
		case string:
			out[name] = strings.TrimSpace(v)
		case map[string]interface{}:
			if version, ok := v["version"].(string); ok {
				out[name] = strings.TrimSpace(version)
			}
		}
	}
	return out
}

func table(parent map[string]interface{}, key string) map[string]interface{} {
	if parent == nil {
		return nil
	}
	tbl, _ := parent[key].(map[string]interface{})
	return tbl
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupe(deps []Dependency) []Dependency {
	type key struct{ name, constraint string }
	seen := make(map[key]struct{}, len(deps))
	out := make([]Dependency, 0, len(deps))
	for _, d := range deps {
		k := key{d.RegistryName(), d.Constraint}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}
