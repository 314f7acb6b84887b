package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
)

// RulesQuery is the rego query whose results are violation messages.
const RulesQuery = "data.cargolicenses.deny"

// RuleInput is the document rego rules are evaluated against, exposed to
// rules as input.dependencies.
type RuleInput struct {
	Dependencies []RuleDependency `json:"dependencies"`
}

// RuleDependency describes one resolved dependency to rego rules.
type RuleDependency struct {
	Name       string   `json:"name"`
	Constraint string   `json:"constraint"`
	Section    string   `json:"section"`
	Version    string   `json:"version"`
	License    string   `json:"license"`
	Licenses   []string `json:"licenses"`
	Verdict    string   `json:"verdict"`
	Ignored    bool     `json:"ignored"`
	Resolved   bool     `json:"resolved"`
}

// RuleEngine evaluates user supplied rego rules over resolved dependencies.
type RuleEngine struct {
	module string
	source string
}

// LoadRules reads a rego module from path.
func LoadRules(path string) (*RuleEngine, error) {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return NewRuleEngine(filepath.Base(absPath), string(data)), nil
}

// NewRuleEngine wraps rego source. name is used in compile errors.
func NewRuleEngine(name, source string) *RuleEngine {
	return &RuleEngine{module: name, source: source}
}

// Evaluate runs the rules and returns the violation messages, sorted.
func (e *RuleEngine) Evaluate(ctx context.Context, input RuleInput) ([]string, error) {
	doc, err := toDocument(input)
	if err != nil {
		return nil, err
	}

	rs, err := rego.New(
		rego.Query(RulesQuery),
		rego.Input(doc),
		rego.Module(e.module, e.source),
	).Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("rego evaluation failed: %w", err)
	}

	var messages []string
	for _, result := range rs {
		for _, expr := range result.Expressions {
			messages = append(messages, collectMessages(expr.Value)...)
		}
	}
	sort.Strings(messages)
	return messages, nil
}

func collectMessages(v interface{}) []string {
	switch val := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case map[string]interface{}:
		out := make([]string, 0, len(val))
		for key := range val {
			out = append(out, key)
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(val)}
	}
}

func toDocument(input RuleInput) (map[string]interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rule input: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode rule input: %w", err)
	}
	return doc, nil
}
