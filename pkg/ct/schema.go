package ct

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchemaJSON constrains the outer document shape: required
// name and type, the five template types, and object nesting down to
// the instance config level. Primitive type keys and nesting rules are
// owned by ValidatePrimitives, which reports them with better messages.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "type"],
  "additionalProperties": false,
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string", "minLength": 1},
    "type": {"enum": ["interface", "svi", "loopback", "protocol_endpoint", "system"]},
    "description": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string"}},
    "primitives": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": {"type": "object"}
      }
    }
  }
}`

var documentSchema = mustCompileSchema("https://ctc.schemas.local/connectivity-template.schema.json", documentSchemaJSON)

func mustCompileSchema(url, src string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("schema load failed: %v", err))
	}
	return c.MustCompile(url)
}

// ValidateDocument checks a raw decoded template document against the
// outer shape schema.
func ValidateDocument(doc any) error {
	if err := documentSchema.Validate(doc); err != nil {
		return fmt.Errorf("template document invalid: %w", err)
	}
	return nil
}
