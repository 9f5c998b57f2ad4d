package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CallbackMpesa names the payment-gateway callback schema.
const CallbackMpesa = "mpesa_callback"

// ErrValidation can be used with errors.Is to detect schema failures.
var ErrValidation = errors.New("validation failed")

// CallbackValidator validates external gateway payloads against the JSON
// schemas in the schemas directory before any of them can reach a state
// change. Schema names come from the filename minus the version suffix
// (mpesa_callback.v1.json -> mpesa_callback).
type CallbackValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewCallbackValidator loads and compiles every *.json schema in schemaDir.
func NewCallbackValidator(schemaDir string) (*CallbackValidator, error) {
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %q: %w", schemaDir, err)
	}
	schemas := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		name = strings.TrimSuffix(name, ".v1")
		path := filepath.Join(schemaDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		id := "https://maziwa.dev/schemas/" + name
		schemas[name], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
	}
	if len(schemas) == 0 {
		return nil, fmt.Errorf("no schemas found in %q", schemaDir)
	}
	return &CallbackValidator{schemas: schemas}, nil
}

// Validate hard-rejects a payload that does not match the named schema.
func (v *CallbackValidator) Validate(name string, payload json.RawMessage) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
