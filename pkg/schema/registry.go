package schema

import (
	"bytes"
	"embed"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed documents/*.json
var documents embed.FS

// Registry holds the compiled JSON-Schema documents for every supported
// spec version. It is built once at startup; lookups are read-only.
type Registry struct {
	schemas map[string]*jsonschema.Schema
}

// NewRegistry compiles all embedded schema documents.
func NewRegistry() (*Registry, error) {
	entries, err := documents.ReadDir("documents")
	if err != nil {
		return nil, fmt.Errorf("reading embedded schemas: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		data, err := documents.ReadFile("documents/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", entry.Name(), err)
		}

		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parsing schema %s: %w", entry.Name(), err)
		}

		if err := compiler.AddResource(entry.Name(), doc); err != nil {
			return nil, fmt.Errorf("adding schema resource %s: %w", entry.Name(), err)
		}

		names = append(names, entry.Name())
	}

	schemas := make(map[string]*jsonschema.Schema, len(names))

	for _, name := range names {
		sch, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", name, err)
		}

		schemas[strings.TrimSuffix(name, ".json")] = sch
	}

	return &Registry{schemas: schemas}, nil
}

// Validate checks doc against the named schema. On violation it returns an
// error whose message lists every leaf cause, joined with "; ".
func (r *Registry) Validate(name string, doc any) error {
	sch, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	err := sch.Validate(doc)
	if err == nil {
		return nil
	}

	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}

	var msgs []string
	for _, cause := range flatten(ve) {
		loc := strings.Join(cause.InstanceLocation, "/")
		if loc == "" {
			loc = "/"
		}

		msgs = append(msgs, fmt.Sprintf("%s: %v", loc, cause.ErrorKind))
	}

	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// flatten recursively collects all leaf validation errors.
func flatten(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}

	var flat []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flatten(cause)...)
	}

	return flat
}
