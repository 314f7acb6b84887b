package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/aymerick/raymond"

	"github.com/fulmenhq/cargo-licenses/pkg/license"
)

const markdownSource = `# License Report

This report lists direct dependencies and their matched licenses.
{{#if source}}

Source: {{{source}}}
{{/if}}
{{#if policy}}

Policy: {{{policy}}}
{{/if}}

{{#each entries}}
- **{{{crate_name}}}** (version: ` + "`{{{matched_version}}}`" + `) → *{{{license}}}*{{{marker this}}}
{{/each}}
{{#if violations}}

## Violations

{{#each violations}}
- {{{this}}}
{{/each}}
{{/if}}
{{#if policy}}

{{{summary}}}
{{/if}}
`

var markdownTemplate = newMarkdownTemplate()

func newMarkdownTemplate() *raymond.Template {
	tpl := raymond.MustParse(markdownSource)
	tpl.RegisterHelper("marker", func(ctx interface{}) string {
		fields, _ := ctx.(map[string]interface{})
		entry, _ := fields["entry"].(Entry)
		switch {
		case entry.Unresolved():
			return " (unresolved)"
		case entry.Ignored:
			return " (ignored)"
		case entry.Failed():
			reason, _ := fields["rejection"].(string)
			return fmt.Sprintf(" ❌ %s: %s", reason, strings.Join(entry.Offending, ", "))
		case entry.Verdict != "":
			return " ✅"
		default:
			return ""
		}
	})
	return tpl
}

// RenderMarkdown writes the Markdown report.
func RenderMarkdown(w io.Writer, r *Report) error {
	rejection := "denied"
	if strings.HasPrefix(r.Policy, "allow") {
		rejection = "not allowed"
	}
	entries := make([]map[string]interface{}, 0, len(r.Entries))
	for _, e := range r.Entries {
		entries = append(entries, map[string]interface{}{
			"crate_name":      e.CrateName,
			"matched_version": e.MatchedVersion,
			"license":         linkLicense(e.License),
			"entry":           e,
			"rejection":       rejection,
		})
	}
	ctx := map[string]interface{}{
		"source":     r.SourceLine(),
		"policy":     r.Policy,
		"entries":    entries,
		"violations": r.Violations,
		"summary": fmt.Sprintf("%d dependencies: %d passed, %d failed, %d unresolved",
			r.Summary.Total, r.Summary.Passed, r.Summary.Failed, r.Summary.Unresolved),
	}
	out, err := markdownTemplate.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

// linkLicense turns a single well-known identifier into a Markdown link.
func linkLicense(s string) string {
	if url := license.URL(s); url != "" {
		return fmt.Sprintf("[%s](%s)", s, url)
	}
	return s
}
