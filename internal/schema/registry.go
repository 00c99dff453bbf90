// Package schema holds the process-wide JSON-schema registry (§4.A):
// every payload a bench operation accepts, and every runtime config
// subtree, is validated against a schema compiled once at startup.
package schema

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const baseURI = "hobob:///schema/"

// names lists every schema this registry compiles, matching spec.md's
// fixed set plus the runtime/log_filter entry data_schema.rs carries
// that the distilled spec names but never schemas explicitly.
var names = []string{
	"utils/ts",
	"log",
	"runtime/bucket",
	"runtime/db",
	"runtime/log_filter",
	"follow",
	"refresh",
	"toggle_group",
	"touch_group",
	"user_cards",
	"filter_options",
	"users_pick",
}

func fileForName(name string) string {
	return "schemas/" + strings.ReplaceAll(name, "/", "_") + ".json"
}

// Registry holds compiled Draft-2020-12 JSON schemas keyed by name.
type Registry struct {
	compiled map[string]*jsonschema.Schema
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, compiling it on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := New()
		if err != nil {
			panic(fmt.Sprintf("schema: failed to compile built-in schemas: %v", err))
		}
		defaultReg = r
	})
	return defaultReg
}

// New compiles a fresh registry from the embedded schema set. Exposed
// mainly for tests that want an isolated instance.
func New() (*Registry, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	for _, name := range names {
		raw, err := schemaFS.ReadFile(fileForName(name))
		if err != nil {
			return nil, fmt.Errorf("schema: read %s: %w", name, err)
		}
		uri := baseURI + name
		if err := compiler.AddResource(uri, strings.NewReader(string(raw))); err != nil {
			return nil, fmt.Errorf("schema: add resource %s: %w", name, err)
		}
	}

	compiled := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		s, err := compiler.Compile(baseURI + name)
		if err != nil {
			return nil, fmt.Errorf("schema: compile %s: %w", name, err)
		}
		compiled[name] = s
	}
	return &Registry{compiled: compiled}, nil
}

// Validate checks value against the named schema. Looking up a name that
// was never registered is a programmer error and panics immediately,
// matching §4.A: "Validation of a missing registered name is a
// programmer error (fail fast)."
func (r *Registry) Validate(name string, value any) error {
	s, ok := r.compiled[name]
	if !ok {
		panic("schema: not a registered schema: " + name)
	}
	if err := s.Validate(value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, name, err)
	}
	return nil
}
