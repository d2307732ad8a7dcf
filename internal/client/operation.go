package client

import (
	"errors"
	"fmt"

	language "github.com/hanpama/gqlfeed/internal/language"
)

var (
	// ErrUnsupportedOperation is returned for mutation and subscription documents.
	ErrUnsupportedOperation = errors.New("client: only query operations are supported")
	// ErrAmbiguousOperation is returned when a document holds several operations
	// and none was selected by name.
	ErrAmbiguousOperation = errors.New("client: document has several operations; select one by name")
)

// Operation is a parsed query document with one selected operation.
type Operation struct {
	// Name is the selected operation name; empty for anonymous queries.
	Name  string
	Query string

	doc *language.QueryDocument
	def *language.OperationDefinition
}

// NewOperation parses query and selects its only operation, or the one named
// by name when given.
func NewOperation(query string, name ...string) (*Operation, error) {
	doc, err := language.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("client: parse query: %w", err)
	}
	return newOperation(query, doc, name...)
}

// MustOperation is like NewOperation but panics on error. Intended for
// package-level operation tables.
func MustOperation(query string, name ...string) *Operation {
	op, err := NewOperation(query, name...)
	if err != nil {
		panic(err)
	}
	return op
}

func newOperation(query string, doc *language.QueryDocument, name ...string) (*Operation, error) {
	var def *language.OperationDefinition
	switch {
	case len(name) > 0 && name[0] != "":
		def = doc.Operations.ForName(name[0])
		if def == nil {
			return nil, fmt.Errorf("client: operation %q not found", name[0])
		}
	case len(doc.Operations) == 1:
		def = doc.Operations[0]
	case len(doc.Operations) == 0:
		return nil, fmt.Errorf("client: document has no operations")
	default:
		return nil, ErrAmbiguousOperation
	}
	if def.Operation != language.Query {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedOperation, def.Operation, def.Name)
	}
	return &Operation{Name: def.Name, Query: query, doc: doc, def: def}, nil
}

// Type returns the operation type, always "query" for a constructed Operation.
func (o *Operation) Type() string { return string(o.def.Operation) }

// Variables lists the declared variable names in declaration order.
func (o *Operation) Variables() []string {
	out := make([]string, 0, len(o.def.VariableDefinitions))
	for _, v := range o.def.VariableDefinitions {
		out = append(out, v.Variable)
	}
	return out
}

// Validate checks the document against s.
func (o *Operation) Validate(s *language.Schema) error {
	if _, err := language.ValidateQuery(s, o.Query); err != nil {
		return fmt.Errorf("client: operation %s: %w", o.Name, err)
	}
	return nil
}

// LoadSchema loads SDL for use with Operation.Validate.
func LoadSchema(name, sdl string) (*language.Schema, error) {
	return language.LoadSchema(name, sdl)
}
