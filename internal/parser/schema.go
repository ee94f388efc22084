package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ternarybob/inkwell/internal/schemas"
)

// Stage schemas, also sent to providers that support constrained JSON output.
// Title parsing stays lenient, so TitlesSchema is only a hint to the provider.
var (
	TitlesSchema  = schemas.MustLoad("title")
	OutlineSchema = schemas.MustLoad("outline")
	BlogSchema    = schemas.MustLoad("blog")
)

var (
	compiledMu      sync.Mutex
	compiledSchemas = map[string]*jsonschema.Schema{}
)

// validateAgainst checks a decoded document against a named schema.
// Schemas are compiled once and cached.
func validateAgainst(name string, schemaMap map[string]interface{}, doc interface{}) error {
	schema, err := compiled(name, schemaMap)
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("json does not match %s schema: %w", name, err)
	}
	return nil
}

func compiled(name string, schemaMap map[string]interface{}) (*jsonschema.Schema, error) {
	compiledMu.Lock()
	defer compiledMu.Unlock()

	if s, ok := compiledSchemas[name]; ok {
		return s, nil
	}

	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", name, err)
	}
	url := name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add %s schema: %w", name, err)
	}
	s, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	compiledSchemas[name] = s
	return s, nil
}
