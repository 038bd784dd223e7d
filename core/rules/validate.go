package rules

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/brandguard/brandguard/core/infra/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const ruleSetSchemaFile = "schema/ruleset.v2.schema.json"

//go:embed schema/*.json
var schemaFS embed.FS

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func ruleSetSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		data, err := schemaFS.ReadFile(ruleSetSchemaFile)
		if err != nil {
			compileErr = fmt.Errorf("load rule set schema: %w", err)
			return
		}
		compiled, compileErr = schema.Compile("ruleset.v2", data)
	})
	return compiled, compileErr
}

// Issue is one violated field path and the reason it failed.
type Issue = schema.Violation

// ValidationError aggregates every issue found in a rule set document.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Path+": "+is.Reason)
	}
	return strings.Join(parts, "; ")
}

func invalid(path, reason string) *ValidationError {
	return &ValidationError{Issues: []Issue{{Path: path, Reason: reason}}}
}

// Validate checks a generic value against the V2 rule set schema, applying
// defaults for omitted fields. It returns either the typed rule set or a
// *ValidationError listing every problem found.
func Validate(value any) (*RuleSet, error) {
	normalized, err := schema.Normalize(value)
	if err != nil {
		return nil, invalid(schema.RootPath, err.Error())
	}
	doc, ok := normalized.(map[string]any)
	if !ok {
		return nil, invalid(schema.RootPath, "must be an object")
	}
	applyDefaults(doc)

	sch, err := ruleSetSchema()
	if err != nil {
		return nil, invalid(schema.RootPath, err.Error())
	}
	issues := schema.Check(sch, doc)
	issues = append(issues, traitOrderIssues(doc)...)
	if len(issues) > 0 {
		schema.SortViolations(issues)
		return nil, &ValidationError{Issues: issues}
	}

	resolveAliases(doc)
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, invalid(schema.RootPath, err.Error())
	}
	var rs RuleSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, invalid(schema.RootPath, err.Error())
	}
	return &rs, nil
}

// traitOrderIssues reports well-shaped trait intervals whose lower bound
// exceeds the upper bound. Bounds outside [1,5] are the schema's job.
func traitOrderIssues(doc map[string]any) []Issue {
	voice, ok := child(doc, "voice")
	if !ok {
		return nil
	}
	traits, ok := child(voice, "traits")
	if !ok {
		return nil
	}
	var out []Issue
	for _, name := range TraitNames {
		pair, ok := traits[name].([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		lo, okLo := pair[0].(float64)
		hi, okHi := pair[1].(float64)
		if okLo && okHi && lo > hi {
			out = append(out, Issue{
				Path:   "voice.traits." + name,
				Reason: fmt.Sprintf("lower bound %v exceeds upper bound %v", lo, hi),
			})
		}
	}
	return out
}

// resolveAliases folds the legacy bannedPhrases key into bannedPatterns.
// bannedPatterns wins when both are present.
func resolveAliases(doc map[string]any) {
	if voice, ok := child(doc, "voice"); ok {
		if lex, ok := child(voice, "lexicon"); ok {
			foldAlias(lex)
		}
	}
	if claims, ok := child(doc, "claims"); ok {
		foldAlias(claims)
	}
}

func foldAlias(m map[string]any) {
	phrases, hasPhrases := m["bannedPhrases"]
	delete(m, "bannedPhrases")
	if _, ok := m["bannedPatterns"]; ok {
		return
	}
	if hasPhrases {
		m["bannedPatterns"] = phrases
		return
	}
	m["bannedPatterns"] = []any{}
}
