package schema

import (
	"encoding/json"
	"testing"
)

func TestValidateSchema(t *testing.T) {
	schema := []byte(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`)
	if err := ValidateSchema("test", schema, map[string]any{"name": "ok"}); err != nil {
		t.Fatalf("expected valid schema: %v", err)
	}
	if err := ValidateSchema("test", schema, map[string]any{"nope": "bad"}); err == nil {
		t.Fatalf("expected schema validation error")
	}
}

func TestValidateSchemaEmpty(t *testing.T) {
	if err := ValidateSchema("test", nil, nil); err == nil {
		t.Fatalf("expected error for empty schema")
	}
	if _, err := Compile("test", []byte{}); err == nil {
		t.Fatalf("expected error for empty schema")
	}
}

func TestCheckCollectsEveryLeaf(t *testing.T) {
	compiled, err := Compile("leaves", []byte(`{
		"type": "object",
		"properties": {
			"a": {"type": "integer", "minimum": 1},
			"b": {"type": "array", "items": {"type": "string"}, "maxItems": 1}
		},
		"required": ["a", "b"]
	}`))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	value, err := Normalize(map[string]any{"a": 0, "b": []any{"x", 2}})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	got := Check(compiled, value)
	if len(got) < 3 {
		t.Fatalf("expected at least three violations, got %+v", got)
	}
	paths := map[string]bool{}
	for _, v := range got {
		paths[v.Path] = true
	}
	for _, want := range []string{"a", "b", "b[1]"} {
		if !paths[want] {
			t.Fatalf("missing violation for %s in %+v", want, got)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Path > got[i].Path {
			t.Fatalf("violations not sorted: %+v", got)
		}
	}
	if Check(compiled, map[string]any{"a": float64(2), "b": []any{"x"}}) != nil {
		t.Fatalf("expected valid value")
	}
}

func TestPointerPath(t *testing.T) {
	cases := map[string]string{
		"":                         RootPath,
		"/voice/traits/humor/0":    "voice.traits.humor[0]",
		"/claims/disclaimers":      "claims.disclaimers",
		"/sensitive/policies/a~1b": "sensitive.policies.a/b",
	}
	for in, want := range cases {
		if got := PointerPath(in); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
}

func TestNormalizeValue(t *testing.T) {
	val, err := Normalize(json.RawMessage(`{"k":"v"}`))
	if err != nil {
		t.Fatalf("normalize raw: %v", err)
	}
	m, ok := val.(map[string]any)
	if !ok || m["k"] != "v" {
		t.Fatalf("unexpected normalized value")
	}
	val, err = Normalize(map[string]any{"n": 3})
	if err != nil {
		t.Fatalf("normalize map: %v", err)
	}
	if n, _ := val.(map[string]any)["n"].(float64); n != 3 {
		t.Fatalf("expected numbers as float64")
	}
	if _, err := Normalize([]byte("{")); err == nil {
		t.Fatalf("expected error for invalid byte json")
	}
	if _, err := Normalize(map[any]any{1: "x"}); err == nil {
		t.Fatalf("expected error for non-string keys")
	}
}

func TestNormalizeDoesNotAlias(t *testing.T) {
	in := map[string]any{"list": []any{"a"}}
	out, err := Normalize(in)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	out.(map[string]any)["list"].([]any)[0] = "changed"
	if in["list"].([]any)[0] != "a" {
		t.Fatalf("input was mutated")
	}
}

func TestSchemaIDDefault(t *testing.T) {
	if got := schemaID(""); got != "inmemory://schema" {
		t.Fatalf("unexpected schema id: %s", got)
	}
}
