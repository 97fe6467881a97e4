package contracts

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for document validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	// Register built-in schemas
	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	// Register contract schema
	sr.RegisterSchema("contract", builtinContractSchema)

	// Register state schema
	sr.RegisterSchema("state", builtinStateSchema)
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

// ValidateAgainstSchema validates data against a named schema. Schemas check
// document shape only: field types, list structure, unknown fields. Whether
// a contract is semantically complete is Validate's call, so a document that
// passes here can still come up unmet at resolution time.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	// Convert data to CUE value
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	// Unify with schema (validates)
	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
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
	return names
}

// Built-in schema definitions. Every field is optional at the schema level;
// required-field rules live in Validate so that an incomplete contract flows
// into the resolution as unmet instead of failing the document load.

const builtinContractSchema = `
// Contract schema for compatibility contract documents
#Requirement: {
	// Type selects the requirement family (e.g. "sw.agent", "sw.container")
	type?: string

	// Slug names the sibling contract a container requirement targets
	slug?: string

	// Version is a version range expression (e.g. ">=1.2.0")
	version?: string
}

#Contract: {
	// Slug is the unique identifier for this contract
	slug?: string & =~"^[a-zA-Z0-9._-]+$"

	// Name is the human-readable name, defaults to the slug
	name?: string

	// Version is the contract's own semantic version
	version?: string

	// Type is the capability class this contract fills
	type?: string

	// Requires lists the compatibility requirements
	requires?: [...#Requirement]
}

#Contract
`

const builtinStateSchema = `
// State schema for device target-state documents
#Requirement: {
	type?: string
	slug?: string
	version?: string
}

#Contract: {
	slug?: string & =~"^[a-zA-Z0-9._-]+$"
	name?: string
	version?: string
	type?: string
	requires?: [...#Requirement]
}

#Service: {
	// Image is the container image reference for this service
	image?: string

	// Optional marks the service as elidable when its contract is unmet
	optional?: bool

	// Contract is the inline compatibility contract
	contract?: #Contract

	// ContractFile references a contract document relative to the state file
	contractFile?: string
}

#State: {
	// Device is the operator-assigned device label
	device?: string

	// Services maps service names to their specifications
	services?: {[string]: #Service}
}

#State
`

// ValidateContractDocument validates a parsed contract document against the
// contract schema.
func (sr *SchemaRegistry) ValidateContractDocument(ctx context.Context, data interface{}) error {
	return sr.ValidateAgainstSchema(ctx, "contract", data)
}

// ValidateStateDocument validates a parsed target-state document against the
// state schema.
func (sr *SchemaRegistry) ValidateStateDocument(ctx context.Context, data interface{}) error {
	return sr.ValidateAgainstSchema(ctx, "state", data)
}
