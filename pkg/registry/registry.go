// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed tools.json
var embeddedRegistry []byte

// Load returns the compiled-in tool catalog.
func Load() (*ToolRegistry, error) {
	var reg ToolRegistry
	if err := json.Unmarshal(embeddedRegistry, &reg); err != nil {
		return nil, fmt.Errorf("parse embedded tool registry: %w", err)
	}
	return &reg, nil
}

// LoadFromFile reads a registry override, used by deployments that ship a
// trimmed or extended tool catalog.
func LoadFromFile(path string) (*ToolRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ToolRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse tool registry %s: %w", path, err)
	}
	return &reg, nil
}

// ValidateInput checks tool-call arguments against the tool's input schema.
// The returned error lists every violation, not just the first.
func (r *ToolRegistry) ValidateInput(toolName string, arguments map[string]interface{}) error {
	tool, ok := r.Find(toolName)
	if !ok {
		return fmt.Errorf("unknown tool %q", toolName)
	}

	schemaLoader := gojsonschema.NewGoLoader(tool.InputSchema)
	docLoader := gojsonschema.NewGoLoader(arguments)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("validate arguments for %s: %w", toolName, err)
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return fmt.Errorf("invalid arguments for %s: %s", toolName, strings.Join(violations, "; "))
}
