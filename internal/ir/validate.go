package ir

import (
	_ "embed"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const graphDefSchemaURL = "https://constfold.dev/graphdef.schema.json"

//go:embed graphdef.schema.json
var graphDefSchema string

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func loadCompiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(graphDefSchemaURL, strings.NewReader(graphDefSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile(graphDefSchemaURL)
	})
	return schemaCompiled, schemaErr
}

// ValidateSchema checks def against the GraphDef JSON schema. Graph-level
// checks such as dangling inputs and cycles are left to graph construction.
func ValidateSchema(def *GraphDef) error {
	if def == nil {
		return errors.New("graph def is nil")
	}
	schema, err := loadCompiledSchema()
	if err != nil {
		return errors.Wrap(err, "failed to compile graph schema")
	}

	var v any
	raw, err := json.Marshal(def)
	if err != nil {
		return errors.Wrap(err, "failed to marshal graph for schema validation")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return errors.Wrap(err, "failed to normalize graph for schema validation")
	}
	if err := schema.Validate(v); err != nil {
		return errors.Wrap(err, "graph schema validation failed")
	}
	return nil
}
