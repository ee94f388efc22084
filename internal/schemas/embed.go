// Package schemas holds the JSON schemas of the structured AI responses.
// They are sent to providers as output constraints and used to validate
// parsed responses.
package schemas

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed *.json
var fs embed.FS

// GetSchema returns the content of a schema file by name
func GetSchema(name string) ([]byte, error) {
	return fs.ReadFile(name)
}

// Load decodes the schema of a stage ("title", "outline", "blog")
func Load(stage string) (map[string]interface{}, error) {
	data, err := GetSchema(stage + ".json")
	if err != nil {
		return nil, fmt.Errorf("schema %s not found: %w", stage, err)
	}

	var schema map[string]interface{}
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", stage, err)
	}
	return schema, nil
}

// MustLoad is Load for package level variables
func MustLoad(stage string) map[string]interface{} {
	schema, err := Load(stage)
	if err != nil {
		panic(err)
	}
	return schema
}
