package server

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	errInvalidJSON    = errors.New("invalid JSON")
	errSchemaMismatch = errors.New("request does not match schema")
)

//go:embed schema/*.json
var schemaFS embed.FS

// validator checks inbound payloads against one embedded JSON schema.
type validator struct {
	schema *gojsonschema.Schema
}

func newValidator(name string) (*validator, error) {
	data, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}

	return &validator{schema: schema}, nil
}

func mustValidator(name string) *validator {
	v, err := newValidator(name)
	if err != nil {
		panic(err)
	}

	return v
}

// Validate returns errInvalidJSON for malformed input and errSchemaMismatch
// listing every violation otherwise.
func (v *validator) Validate(payload []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidJSON, err)
	}

	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		details = append(details, resultErr.String())
	}

	return fmt.Errorf("%w: %s", errSchemaMismatch, strings.Join(details, "; "))
}
