package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// RenderJUnit writes one test case per dependency so CI systems can show
// license failures next to test results.
func RenderJUnit(w io.Writer, r *Report) error {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", "cargo-licenses")

	tests, failures := len(r.Entries), r.Summary.Failed
	if len(r.Violations) > 0 {
		tests++
		failures++
	}

	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", r.Manifest)
	suite.CreateAttr("tests", strconv.Itoa(tests))
	suite.CreateAttr("failures", strconv.Itoa(failures))
	suite.CreateAttr("errors", strconv.Itoa(r.Summary.Unresolved))
	suite.CreateAttr("timestamp", r.Generated.Format("2006-01-02T15:04:05"))

	if r.Source != nil {
		props := suite.CreateElement("properties")
		for _, kv := range [][2]string{{"commit", r.Source.Commit}, {"branch", r.Source.Branch}} {
			if kv[1] == "" {
				continue
			}
			p := props.CreateElement("property")
			p.CreateAttr("name", kv[0])
			p.CreateAttr("value", kv[1])
		}
	}

	for _, e := range r.Entries {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", e.Section)
		tc.CreateAttr("name", fmt.Sprintf("%s@%s", e.CrateName, e.MatchedVersion))

		switch {
		case e.Unresolved():
			el := tc.CreateElement("error")
			el.CreateAttr("message", e.Error)
			el.SetText(e.License)
		case e.Failed():
			el := tc.CreateElement("failure")
			el.CreateAttr("message", fmt.Sprintf("license %q violates policy", e.License))
			el.SetText("offending: " + strings.Join(e.Offending, ", "))
		case e.Ignored:
			el := tc.CreateElement("skipped")
			el.CreateAttr("message", "ignored by policy")
		}

		props := tc.CreateElement("properties")
		for _, kv := range [][2]string{{"license", e.License}, {"constraint", e.Constraint}, {"purl", e.PURL}} {
			if kv[1] == "" {
				continue
			}
			p := props.CreateElement("property")
			p.CreateAttr("name", kv[0])
			p.CreateAttr("value", kv[1])
		}
	}

	if len(r.Violations) > 0 {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("classname", "rules")
		tc.CreateAttr("name", "policy rules")
		el := tc.CreateElement("failure")
		el.CreateAttr("message", fmt.Sprintf("%d rule violations", len(r.Violations)))
		el.SetText(strings.Join(r.Violations, "\n"))
	}

	doc.Indent(2)
	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write junit report: %w", err)
	}
	return nil
}
