package schema

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
)

var (
	cacheMu sync.RWMutex
	cache   = map[reflect.Type]*jsonschema.Schema{}
)

// GenerateJSONSchema returns the JSON schema describing the type T.
//
// The schema is fully inlined (no $ref or $defs) so that it can be embedded
// directly into provider tool definitions and response formats. Struct fields
// are documented through `json` and `jsonschema` struct tags; fields without
// `omitempty` are marked required. Results are cached per reflect.Type, so
// repeated calls for the same type are cheap.
//
// Example:
//
//	type Route struct {
//	    Step string `json:"step" jsonschema:"description=The next step in the routing process,enum=story,enum=joke,enum=poem"`
//	}
//
//	routeSchema := schema.GenerateJSONSchema[Route]()
func GenerateJSONSchema[T any]() *jsonschema.Schema {
	return SchemaOf(reflect.TypeFor[T]())
}

// SchemaOf returns the inlined JSON schema for the given reflect.Type.
// See [GenerateJSONSchema] for the generation rules.
func SchemaOf(t reflect.Type) *jsonschema.Schema {
	cacheMu.RLock()
	s, ok := cache[t]
	cacheMu.RUnlock()
	if ok {
		return s
	}

	reflector := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		// Hoist the root struct's properties to the top level so the schema
		// matches what chat-completion tool definitions expect.
		ExpandedStruct: t.Kind() == reflect.Struct,
	}
	s = reflector.ReflectFromType(t)

	// Drop the $schema marker; LLM APIs reject schemas that carry it.
	s.Version = ""

	cacheMu.Lock()
	cache[t] = s
	cacheMu.Unlock()

	return s
}

// JSONString renders a schema as indented JSON. It returns an empty string
// when marshaling fails, which only happens for schemas carrying
// non-serializable extras.
func JSONString(s *jsonschema.Schema) string {
	if s == nil {
		return ""
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return ""
	}
	return string(raw)
}
