// Package report renders resolution results as Markdown, JSON, JUnit XML
// or a terminal summary.
package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fulmenhq/cargo-licenses/internal/gitctx"
	"github.com/fulmenhq/cargo-licenses/pkg/policy"
	"github.com/fulmenhq/cargo-licenses/pkg/registry"
	"github.com/fulmenhq/cargo-licenses/pkg/resolve"
	"github.com/fulmenhq/cargo-licenses/pkg/safeio"
)

const (
	// UnknownVersion stands in for the version of an unresolved entry.
	UnknownVersion = "unknown"
	// NoLicense stands in for a release published without a license.
	NoLicense = "No license listed"
)

// Format selects a report encoding.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatJSON     Format = "json"
	FormatJUnit    Format = "xml"
	FormatText     Format = "text"
)

// ParseFormat validates a format name. "markdown" and "junit" are accepted
// as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	case "xml", "junit":
		return FormatJUnit, nil
	case "text", "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported report format %q", s)
	}
}

// DefaultPath is the file a report is written to when no output is given.
func (f Format) DefaultPath() string {
	switch f {
	case FormatJSON:
		return ".license_report.json"
	case FormatJUnit:
		return ".license_report.xml"
	case FormatText:
		return ".license_report.txt"
	default:
		return ".license_report.md"
	}
}

// Kind is the human name of the format used in status lines.
func (f Format) Kind() string {
	switch f {
	case FormatJSON:
		return "JSON"
	case FormatJUnit:
		return "JUnit XML"
	case FormatText:
		return "Text"
	default:
		return "Markdown"
	}
}

// Entry is one rendered dependency.
type Entry struct {
	CrateName      string   `json:"crate_name"`
	MatchedVersion string   `json:"matched_version"`
	License        string   `json:"license"`
	Constraint     string   `json:"constraint"`
	Section        string   `json:"section"`
	Target         string   `json:"target,omitempty"`
	Verdict        string   `json:"verdict,omitempty"`
	Offending      []string `json:"offending,omitempty"`
	Ignored        bool     `json:"ignored,omitempty"`
	Yanked         bool     `json:"yanked,omitempty"`
	Error          string   `json:"error,omitempty"`
	PURL           string   `json:"purl,omitempty"`
}

// Unresolved reports whether the entry carries a resolution error.
func (e Entry) Unresolved() bool { return e.Error != "" }

// Failed reports a policy failure.
func (e Entry) Failed() bool { return e.Verdict == string(policy.Fail) }

// Report is the document every renderer consumes.
type Report struct {
	Generated  time.Time       `json:"generated"`
	Manifest   string          `json:"manifest"`
	Source     *gitctx.Source  `json:"source,omitempty"`
	Policy     string          `json:"policy,omitempty"`
	Entries    []Entry         `json:"dependencies"`
	Summary    resolve.Summary `json:"summary"`
	Violations []string        `json:"violations,omitempty"`
}

// SourceLine describes the commit the report was generated from, or "".
func (r *Report) SourceLine() string {
	if r.Source == nil {
		return ""
	}
	line := fmt.Sprintf("commit `%s`", r.Source.Short())
	if r.Source.Branch != "" {
		line += " on " + r.Source.Branch
	}
	if r.Source.Dirty {
		line += " (uncommitted changes)"
	}
	return line
}

// Build assembles a report from coordinator results. policyDesc is empty
// when no policy was applied.
func Build(manifestPath, policyDesc string, results []resolve.Result) *Report {
	r := &Report{
		Generated: time.Now().UTC(),
		Manifest:  manifestPath,
		Policy:    policyDesc,
		Entries:   make([]Entry, 0, len(results)),
		Summary:   resolve.Summarize(results),
	}
	for _, res := range results {
		r.Entries = append(r.Entries, entryFor(res, policyDesc != ""))
	}
	return r
}

func entryFor(res resolve.Result, withPolicy bool) Entry {
	dep := res.Dependency
	e := Entry{
		CrateName:  dep.Name,
		Constraint: dep.DisplayConstraint(),
		Section:    string(dep.Section),
		Target:     dep.Target,
		Ignored:    res.Ignored,
		Yanked:     res.Yanked,
		Offending:  res.Offending,
	}
	if res.Err != nil {
		e.MatchedVersion = UnknownVersion
		e.License = "Failed: " + res.Err.Err.Error()
		e.Error = res.Err.Error()
		return e
	}
	e.MatchedVersion = res.Version
	e.License = res.License
	if e.License == "" {
		e.License = NoLicense
	}
	e.PURL = registry.PURL(dep.RegistryName(), res.Version)
	if withPolicy {
		e.Verdict = string(res.Verdict)
	}
	return e
}

// Status is the short outcome label of an entry.
func (e Entry) Status() string {
	switch {
	case e.Unresolved():
		return "unresolved"
	case e.Ignored:
		return "ignored"
	case e.Verdict == "":
		return "-"
	default:
		return e.Verdict
	}
}

// Render writes the report in format f.
func Render(w io.Writer, r *Report, f Format, opts TextOptions) error {
	switch f {
	case FormatMarkdown:
		return RenderMarkdown(w, r)
	case FormatJSON:
		return RenderJSON(w, r)
	case FormatJUnit:
		return RenderJUnit(w, r)
	case FormatText:
		return RenderText(w, r, opts)
	default:
		return fmt.Errorf("unsupported report format %q", f)
	}
}

// WriteFile renders the report to path, creating parent directories.
func WriteFile(path string, r *Report, f Format) error {
	var buf bytes.Buffer
	if err := Render(&buf, r, f, TextOptions{NoColor: true}); err != nil {
		return err
	}
	if err := safeio.WriteFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
