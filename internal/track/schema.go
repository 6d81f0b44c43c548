package track

import (
	"bytes"
	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed callback.schema.json
var callbackSchemaJSON []byte

var callbackSchema = mustCompileCallbackSchema()

func mustCompileCallbackSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(callbackSchemaJSON))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("callback.schema.json", doc); err != nil {
		panic(err)
	}
	return compiler.MustCompile("callback.schema.json")
}

// ValidateCallback checks a raw callback body against the protocol schema.
// A validation error never turns into a protocol error; callers log it,
// skip processing, and still acknowledge the event with error 0.
func ValidateCallback(body []byte) error {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return err
	}
	return callbackSchema.Validate(instance)
}
