package llm

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const classificationSchemaJSON = `{
  "type": "object",
  "required": ["label", "confidence", "reason"],
  "properties": {
    "label": {"type": "string", "enum": ["help", "dont_help", "escalate"]},
    "confidence": {"type": "integer", "minimum": 0, "maximum": 100},
    "reason": {"type": "string"}
  }
}`

const extractionSchemaJSON = `{
  "type": "object",
  "required": ["target_title", "change_kind", "completeness"],
  "properties": {
    "target_title": {"type": "string"},
    "change_kind": {"type": "string"},
    "new_content": {"type": "string"},
    "requester": {"type": "string"},
    "rationale": {"type": "string"},
    "completeness": {"type": "integer", "minimum": 0, "maximum": 100},
    "missing_fields": {"type": "array", "items": {"type": "string"}}
  }
}`

const conflictSchemaJSON = `{
  "type": "object",
  "required": ["has_conflicts", "safe_to_proceed"],
  "properties": {
    "has_conflicts": {"type": "boolean"},
    "safe_to_proceed": {"type": "boolean"},
    "severity": {"type": "string", "enum": ["none", "low", "medium", "high"]},
    "details": {"type": "array", "items": {"type": "string"}}
  }
}`

var (
	classificationSchema = mustCompileSchema("classification.json", classificationSchemaJSON)
	extractionSchema     = mustCompileSchema("extraction.json", extractionSchemaJSON)
	conflictSchema       = mustCompileSchema("conflict.json", conflictSchemaJSON)
)

func mustCompileSchema(name, source string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
	if err != nil {
		panic(fmt.Sprintf("llm: parse schema %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("llm: register schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("llm: compile schema %s: %v", name, err))
	}
	return schema
}

func validatePayload(schema *jsonschema.Schema, content string) error {
	candidate := ExtractJSON(content)
	if candidate == "" {
		return fmt.Errorf("no JSON object found in model output")
	}
	instance, err := jsonschema.UnmarshalJSON(strings.NewReader(candidate))
	if err != nil {
		return fmt.Errorf("parse model output: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("model output failed validation: %w", err)
	}
	return nil
}
