// Package wire validates operation messages against the JSON Schemas
// of spec §6 before they reach a view. Grounded on the teacher's
// schema.Registry (internal/schema/validator.go): the same
// compile-once/validate-many Schema wrapper around gojsonschema,
// adapted from free-form entry-content schemas to the library's four
// fixed operation-message shapes.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Kind names one of the four wire message shapes.
type Kind string

const (
	Register Kind = "register"
	Set      Kind = "set"
	List     Kind = "list"
	Text     Kind = "text"
)

var registerSchema = []byte(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["previousTags", "tag", "value"],
	"properties": {
		"previousTags": {"type": "array"},
		"tag": {},
		"value": {}
	}
}`)

var setSchema = []byte(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"type": "string", "enum": ["add", "remove"]},
		"tag": {},
		"tags": {"type": "array"},
		"value": {}
	},
	"allOf": [
		{
			"if": {"properties": {"type": {"const": "add"}}},
			"then": {"required": ["type", "tag", "value"]}
		},
		{
			"if": {"properties": {"type": {"const": "remove"}}},
			"then": {"required": ["type", "value"]}
		}
	]
}`)

var listSchema = []byte(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["type", "tag"],
	"properties": {
		"type": {"type": "string", "enum": ["insert", "remove"]},
		"tag": {"type": "array"},
		"value": {}
	},
	"allOf": [
		{
			"if": {"properties": {"type": {"const": "insert"}}},
			"then": {"required": ["type", "tag", "value"]}
		}
	]
}`)

var textSchema = []byte(`{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["diff"],
	"properties": {
		"diff": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["kind"],
				"properties": {
					"kind": {"type": "string", "enum": ["retain", "insert", "delete"]},
					"n": {"type": "integer", "minimum": 0},
					"text": {"type": "string"}
				}
			}
		}
	}
}`)

var compiled = map[Kind]*gojsonschema.Schema{}

func init() {
	defs := map[Kind][]byte{
		Register: registerSchema,
		Set:      setSchema,
		List:     listSchema,
		Text:     textSchema,
	}
	for kind, def := range defs {
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(def))
		if err != nil {
			panic(fmt.Sprintf("wire: invalid built-in schema for %q: %v", kind, err))
		}
		compiled[kind] = s
	}
}

// ValidationError describes one schema violation.
type ValidationError struct {
	Field       string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Description)
}

// Validate checks message against the schema for kind. A message that
// fails validation never reaches a view; this is a transport-layer
// rejection, not a core-library error path (spec §7).
func Validate(kind Kind, message []byte) []ValidationError {
	schema, ok := compiled[kind]
	if !ok {
		return []ValidationError{{Field: "type", Description: fmt.Sprintf("unknown message kind %q", kind)}}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(message))
	if err != nil {
		return []ValidationError{{Field: "message", Description: err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	out := make([]ValidationError, len(result.Errors()))
	for i, e := range result.Errors() {
		out[i] = ValidationError{Field: e.Field(), Description: e.Description()}
	}
	return out
}

// IsValidJSON is a convenience check used by callers that only need a
// pass/fail result.
func IsValidJSON(kind Kind, message []byte) bool {
	return len(Validate(kind, message)) == 0
}

// Decode validates message against kind's schema, then unmarshals it
// into v. Returns the validation errors (if any) without attempting
// the unmarshal.
func Decode(kind Kind, message []byte, v any) []ValidationError {
	if errs := Validate(kind, message); len(errs) > 0 {
		return errs
	}
	if err := json.Unmarshal(message, v); err != nil {
		return []ValidationError{{Field: "message", Description: err.Error()}}
	}
	return nil
}
