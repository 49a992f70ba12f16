// Package apps holds the closed set of predefined command wrappers that can
// be run against a System.
package apps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/soofff/boofi/internal/ostag"
	"github.com/soofff/boofi/internal/schema"
	"github.com/soofff/boofi/internal/system"
)

// ErrAppNotFound is returned by Registry.Lookup for an unknown name.
var ErrAppNotFound = errors.New("app not found")

// DeserializeError reports input that does not decode into the handler's
// input type. File handlers share it.
type DeserializeError struct {
	Reason string
}

func (e DeserializeError) Error() string {
	return fmt.Sprintf("deserialize input: %s", e.Reason)
}

// App is one predefined command wrapper.
type App interface {
	Name() string
	Description() string
	SupportedOS() []ostag.OS
	Compatible(os ostag.OS) bool
	Help(os ostag.OS) Help
	Run(ctx context.Context, input json.RawMessage, sys *system.System) (json.RawMessage, error)
}

// Help is the end user documentation of an app.
type Help struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Compatible  bool         `json:"compatible"`
	Input       schema.Field `json:"input"`
	Output      schema.Field `json:"output"`
	SupportedOS []ostag.OS   `json:"supported_os"`
	Examples    []Example    `json:"examples"`
}

// Example is a sample invocation shown in help output.
type Example struct {
	Description string `json:"description"`
	Input       any    `json:"input"`
	Output      any    `json:"output"`
}

// Empty is the input of apps that take no arguments.
type Empty struct{}

// None is the output of apps that produce nothing. It encodes as null.
type None struct{}

func (None) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// validator is implemented by inputs with constraints beyond their shape.
type validator interface {
	validate() error
}

// Decode strictly decodes raw into T. Unknown fields, trailing data and
// failed validation are reported as DeserializeError. An empty or null
// input yields the zero value.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&v); err != nil {
			return v, DeserializeError{Reason: err.Error()}
		}
		if dec.More() {
			return v, DeserializeError{Reason: "unexpected data after input"}
		}
	}
	if val, ok := any(v).(validator); ok {
		if err := val.validate(); err != nil {
			return v, DeserializeError{Reason: err.Error()}
		}
	}
	return v, nil
}

// typed adapts a function over concrete input and output types to App.
type typed[I, O any] struct {
	name        string
	description string
	os          []ostag.OS
	examples    []Example
	input       schema.Field
	output      schema.Field
	run         func(ctx context.Context, in I, sys *system.System) (O, error)
}

func newTyped[I, O any](name, description string, os []ostag.OS, run func(context.Context, I, *system.System) (O, error), examples ...Example) *typed[I, O] {
	return &typed[I, O]{
		name:        name,
		description: description,
		os:          os,
		examples:    examples,
		input:       schema.Of[I](),
		output:      schema.Of[O](),
		run:         run,
	}
}

func (a *typed[I, O]) Name() string            { return a.name }
func (a *typed[I, O]) Description() string     { return a.description }
func (a *typed[I, O]) SupportedOS() []ostag.OS { return a.os }

func (a *typed[I, O]) Compatible(os ostag.OS) bool {
	return ostag.AnyCompatible(a.os, os)
}

func (a *typed[I, O]) Help(os ostag.OS) Help {
	examples := a.examples
	if examples == nil {
		examples = []Example{}
	}
	return Help{
		Name:        a.name,
		Description: a.description,
		Compatible:  a.Compatible(os),
		Input:       a.input,
		Output:      a.output,
		SupportedOS: a.os,
		Examples:    examples,
	}
}

func (a *typed[I, O]) Run(ctx context.Context, input json.RawMessage, sys *system.System) (json.RawMessage, error) {
	in, err := Decode[I](input)
	if err != nil {
		return nil, err
	}
	out, err := a.run(ctx, in, sys)
	if err != nil {
		log.Printf("[Apps] %s failed: %v", a.name, err)
		return nil, err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("apps: encode %s output: %w", a.name, err)
	}
	return data, nil
}
