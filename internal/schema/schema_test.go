package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

type searchInput struct {
	Query      string `json:"query" jsonschema:"description=The search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results,minimum=1,maximum=20"`
}

func TestGenerateJSONSchema_StructProperties(t *testing.T) {
	sc := GenerateJSONSchema[searchInput]()
	if sc == nil {
		t.Fatal("expected non-nil schema")
	}

	if sc.Type != "object" {
		t.Errorf("expected type object, got %q", sc.Type)
	}

	if _, ok := sc.Properties.Get("query"); !ok {
		t.Error("expected 'query' property in schema")
	}
	if _, ok := sc.Properties.Get("max_results"); !ok {
		t.Error("expected 'max_results' property in schema")
	}
}

func TestGenerateJSONSchema_RequiredFields(t *testing.T) {
	sc := GenerateJSONSchema[searchInput]()

	required := map[string]bool{}
	for _, name := range sc.Required {
		required[name] = true
	}

	if !required["query"] {
		t.Errorf("expected 'query' to be required, required list: %v", sc.Required)
	}
	if required["max_results"] {
		t.Error("expected 'max_results' (omitempty) to be optional")
	}
}

func TestGenerateJSONSchema_Inlined(t *testing.T) {
	type inner struct {
		Value string `json:"value"`
	}
	type outer struct {
		Nested inner `json:"nested"`
	}

	sc := GenerateJSONSchema[outer]()
	raw, err := json.Marshal(sc)
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}

	serialized := string(raw)
	if strings.Contains(serialized, "$ref") {
		t.Errorf("expected inlined schema without $ref, got: %s", serialized)
	}
	if strings.Contains(serialized, "$schema") {
		t.Errorf("expected schema without $schema marker, got: %s", serialized)
	}
}

func TestGenerateJSONSchema_Cached(t *testing.T) {
	first := GenerateJSONSchema[searchInput]()
	second := GenerateJSONSchema[searchInput]()

	if first != second {
		t.Error("expected cached schema to return the same instance")
	}
}

func TestJSONString(t *testing.T) {
	sc := GenerateJSONSchema[searchInput]()
	rendered := JSONString(sc)

	if rendered == "" {
		t.Fatal("expected non-empty rendering")
	}
	if !strings.Contains(rendered, "query") {
		t.Errorf("expected rendering to mention 'query', got: %s", rendered)
	}
}

func TestJSONString_Nil(t *testing.T) {
	if got := JSONString(nil); got != "" {
		t.Errorf("expected empty string for nil schema, got %q", got)
	}
}
