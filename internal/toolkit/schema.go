package toolkit

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaCompiler compiles and caches tool parameter schemas. Recompiling a
// schema on every dispatch would be wasteful since schemas are static for
// the lifetime of a tool registration.
type schemaCompiler struct {
	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

func newSchemaCompiler() *schemaCompiler {
	return &schemaCompiler{cache: make(map[string]*jsonschema.Schema)}
}

func (c *schemaCompiler) compile(toolName string, raw json.RawMessage) (*jsonschema.Schema, error) {
	key := toolName + ":" + string(raw)
	c.mu.Lock()
	if s, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("toolkit: unmarshal schema for %q: %w", toolName, err)
	}

	resourceName := "tool:" + toolName
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, doc); err != nil {
		return nil, fmt.Errorf("toolkit: add schema resource for %q: %w", toolName, err)
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("toolkit: compile schema for %q: %w", toolName, err)
	}

	c.mu.Lock()
	c.cache[key] = schema
	c.mu.Unlock()
	return schema, nil
}

// Validate checks args against the tool's JSON schema, if one was given. A
// tool with no schema (nil/empty Schema()) accepts any arguments.
func (c *schemaCompiler) Validate(toolName string, rawSchema json.RawMessage, args json.RawMessage) error {
	if len(rawSchema) == 0 {
		return nil
	}
	schema, err := c.compile(toolName, rawSchema)
	if err != nil {
		return err
	}
	var decoded any
	if len(args) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("toolkit: tool %q arguments are not valid JSON: %w", toolName, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("toolkit: tool %q arguments failed schema validation: %w", toolName, err)
	}
	return nil
}
