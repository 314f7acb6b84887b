package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// TextOptions tunes terminal output.
type TextOptions struct {
	NoColor bool
	// MaxLicenseWidth truncates long license columns; 0 means 48.
	MaxLicenseWidth int
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8E4EC6"))
	passStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#2E8B57"))
	failStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#D7263D"))
	unresolvedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E3A21A"))
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// RenderText writes an aligned table followed by a summary line.
func RenderText(w io.Writer, r *Report, opts TextOptions) error {
	maxLicense := opts.MaxLicenseWidth
	if maxLicense <= 0 {
		maxLicense = 48
	}

	header := []string{"CRATE", "CONSTRAINT", "VERSION", "LICENSE", "STATUS"}
	rows := make([][]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		rows = append(rows, []string{
			e.CrateName,
			e.Constraint,
			e.MatchedVersion,
			runewidth.Truncate(e.License, maxLicense, "..."),
			e.Status(),
		})
	}

	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	paint := func(s lipgloss.Style, text string) string {
		if opts.NoColor {
			return text
		}
		return s.Render(text)
	}

	var sb strings.Builder
	sb.WriteString(paint(headerStyle, joinRow(header, widths)) + "\n")
	for i, row := range rows {
		line := joinRow(row[:len(row)-1], widths[:len(row)-1])
		sb.WriteString(line + "  " + paint(statusStyle(r.Entries[i]), row[len(row)-1]) + "\n")
	}

	if len(r.Violations) > 0 {
		sb.WriteString("\n" + paint(failStyle, "Rule violations:") + "\n")
		for _, v := range r.Violations {
			sb.WriteString("  - " + v + "\n")
		}
	}

	s := r.Summary
	summary := fmt.Sprintf("%d dependencies: %d passed, %d failed, %d unresolved", s.Total, s.Passed, s.Failed, s.Unresolved)
	if s.Ignored > 0 {
		summary += fmt.Sprintf(", %d ignored", s.Ignored)
	}
	sb.WriteString("\n" + paint(mutedStyle, summary) + "\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func joinRow(cells []string, widths []int) string {
	padded := make([]string, len(cells))
	for i, cell := range cells {
		padded[i] = runewidth.FillRight(cell, widths[i])
	}
	return strings.Join(padded, "  ")
}

func statusStyle(e Entry) lipgloss.Style {
	switch {
	case e.Unresolved():
		return unresolvedStyle
	case e.Failed():
		return failStyle
	case e.Ignored || e.Verdict == "":
		return mutedStyle
	default:
		return passStyle
	}
}

// Preview renders Markdown for the terminal.
func Preview(markdown string, noColor bool) (string, error) {
	style := glamour.WithAutoStyle()
	if noColor {
		style = glamour.WithStandardStyle("notty")
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}
