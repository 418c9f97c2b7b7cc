// Package nativetool builds registry.Descriptor input schemas by reflecting
// over the Go argument struct a native tool handler expects, instead of
// hand-writing each tool's JSON schema literal.
package nativetool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"agentruntime/registry"
)

var reflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

// SchemaFor reflects args (a pointer to a zero-valued struct describing a
// native tool's input) into the map[string]any shape registry.Descriptor
// expects for InputSchema.
func SchemaFor(args any) (map[string]any, error) {
	schema := reflector.Reflect(args)
	encoded, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("nativetool: marshal schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, fmt.Errorf("nativetool: decode schema: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// Describe builds a registry.Descriptor for a native handler whose input
// schema is reflected from argsShape rather than written out by hand.
func Describe(name, description string, argsShape any, endsStep bool, handler registry.NativeHandler) (registry.Descriptor, error) {
	schema, err := SchemaFor(argsShape)
	if err != nil {
		return registry.Descriptor{}, fmt.Errorf("nativetool: describe %q: %w", name, err)
	}
	return registry.Descriptor{
		Name:          name,
		Description:   description,
		InputSchema:   schema,
		EndsAgentStep: endsStep,
		Kind:          registry.HandlerKindNative,
		Native:        handler,
	}, nil
}
