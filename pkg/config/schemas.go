package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	// Built-ins are constants; a compile failure is a programming error caught by tests.
	_ = sr.RegisterSchema("stack", builtinStackSchema)
	_ = sr.RegisterSchema("service", builtinServiceSchema)

	return sr
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Validate checks data against the definition def of a named schema.
func (sr *SchemaRegistry) Validate(schemaName, def string, data interface{}) error {
	// A cue.Context is not safe for concurrent use.
	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[schemaName]
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	definition := schema.LookupPath(cue.ParsePath(def))
	if !definition.Exists() {
		return fmt.Errorf("definition %s not found in schema %s", def, schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := definition.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateStack checks the naming rules of a stack configuration.
func (sr *SchemaRegistry) ValidateStack(cfg *StackConfig) error {
	if err := sr.Validate("stack", "#Stack", cfg); err != nil {
		return fmt.Errorf("stack %s-%s: %w", cfg.Stack, cfg.Instance, err)
	}
	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinServiceSchema = `
#Service: {
	// prefix becomes the first segment of the environment name
	prefix: string & =~"^[a-z][a-z0-9-]*[a-z0-9]$"

	family?: string & =~"^[a-z][a-z0-9]*$"

	// version labels are opaque but never blank
	version: string & =~"\\S"
	...
}
`

const builtinStackSchema = `
#Stack: {
	stack:    string & =~"^[a-z][a-z0-9]*$"
	instance: string & =~"^[a-z0-9]+$"
	region:   string & =~"^[a-z]{2}(-gov)?-[a-z]+-[0-9]$"

	application:    string & !=""
	solution_stack: string & !=""

	cname_suffix?: string & =~"^[a-z0-9-]*$"

	certificates: [string]: string & =~"^arn:aws[a-z-]*:(iam|acm):"

	services: [...{
		prefix:  string & =~"^[a-z][a-z0-9-]*[a-z0-9]$"
		family?: string & =~"^[a-z][a-z0-9]*$"
		version: string & =~"\\S"
		...
	}]
	...
}
`
