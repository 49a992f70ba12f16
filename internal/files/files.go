// Package files maps well-known system files to typed read, write and
// delete handlers.
package files

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"

	"github.com/soofff/boofi/internal/apps"
	"github.com/soofff/boofi/internal/ostag"
	"github.com/soofff/boofi/internal/schema"
	"github.com/soofff/boofi/internal/system"
)

// Capability is an operation a handler supports.
type Capability string

const (
	CapRead   Capability = "read"
	CapWrite  Capability = "write"
	CapDelete Capability = "delete"
)

var (
	readOnly  = []Capability{CapRead, CapDelete}
	readWrite = []Capability{CapRead, CapWrite, CapDelete}
)

// NotCapableError reports an operation the handler does not offer.
type NotCapableError struct {
	Handler    string
	Capability Capability
}

func (e NotCapableError) Error() string {
	return fmt.Sprintf("%s not capable of %s", e.Handler, e.Capability)
}

// MatchBy tells how a handler was looked up.
type MatchBy string

const (
	ByName    MatchBy = "name"
	ByPattern MatchBy = "pattern"
)

// NotMatchedError reports that no handler matched a name or path.
type NotMatchedError struct {
	By    MatchBy
	Value string
}

func (e NotMatchedError) Error() string {
	return fmt.Sprintf("no file handler matched by %s: %s", e.By, e.Value)
}

// Pattern selects paths a handler manages on the listed operating systems.
// Exactly one of Path or Regex is set.
type Pattern struct {
	Path  string
	Regex *regexp.Regexp
	OS    []ostag.OS
}

func PathPattern(path string, os ...ostag.OS) Pattern {
	return Pattern{Path: path, OS: os}
}

func RegexPattern(expr string, os ...ostag.OS) Pattern {
	return Pattern{Regex: regexp.MustCompile(expr), OS: os}
}

// Match reports whether path matches and a declared OS is compatible with
// os.
func (p Pattern) Match(path string, os ostag.OS) bool {
	if !ostag.AnyCompatible(p.OS, os) {
		return false
	}
	if p.Regex != nil {
		return p.Regex.MatchString(path)
	}
	return p.Path == path
}

func (p Pattern) MarshalJSON() ([]byte, error) {
	out := struct {
		Path          string     `json:"path,omitempty"`
		Regex         string     `json:"regex,omitempty"`
		Compatibility []ostag.OS `json:"compatibility"`
	}{Path: p.Path, Compatibility: p.OS}
	if p.Regex != nil {
		out.Regex = p.Regex.String()
	}
	return json.Marshal(out)
}

// Example shows one read, write or delete in help output.
type Example struct {
	Capability  Capability `json:"capability"`
	Description string     `json:"description"`
	Input       any        `json:"input,omitempty"`
	Output      any        `json:"output,omitempty"`
}

// Help is the end user documentation of a handler.
type Help struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Capabilities []Capability `json:"capabilities"`
	Patterns     []Pattern    `json:"patterns"`
	Input        schema.Field `json:"input"`
	Output       schema.Field `json:"output"`
	Examples     []Example    `json:"examples"`
}

// Handler manages one kind of file. Read returns the typed content
// encoded as JSON; Write decodes raw into the handler's input type.
type Handler interface {
	Name() string
	Description() string
	Capabilities() []Capability
	Patterns() []Pattern
	Match(path string, os ostag.OS) bool
	Help() Help
	Read(ctx context.Context, path string, sys *system.System) (json.RawMessage, error)
	Write(ctx context.Context, path string, raw json.RawMessage, sys *system.System) error
	Delete(ctx context.Context, path string, sys *system.System) error
}

// base carries the descriptor and the default operations: read and write
// are not offered, delete always unlinks.
type base struct {
	name         string
	description  string
	capabilities []Capability
	patterns     []Pattern
	examples     []Example
}

func (b *base) Name() string               { return b.name }
func (b *base) Description() string        { return b.description }
func (b *base) Capabilities() []Capability { return b.capabilities }
func (b *base) Patterns() []Pattern        { return b.patterns }

func (b *base) Match(path string, os ostag.OS) bool {
	for _, p := range b.patterns {
		if p.Match(path, os) {
			return true
		}
	}
	return false
}

func (b *base) Read(context.Context, string, *system.System) (json.RawMessage, error) {
	return nil, NotCapableError{Handler: b.name, Capability: CapRead}
}

func (b *base) Write(context.Context, string, json.RawMessage, *system.System) error {
	return NotCapableError{Handler: b.name, Capability: CapWrite}
}

func (b *base) Delete(ctx context.Context, path string, sys *system.System) error {
	log.Printf("[Files] %s: delete %s", b.name, path)
	return sys.Delete(ctx, path)
}

func (b *base) help(input, output schema.Field) Help {
	examples := b.examples
	if examples == nil {
		examples = []Example{}
	}
	return Help{
		Name:         b.name,
		Description:  b.description,
		Capabilities: b.capabilities,
		Patterns:     b.patterns,
		Input:        input,
		Output:       output,
		Examples:     examples,
	}
}

// handler binds typed read and write functions to a base. A nil function
// falls back to the base default.
type handler[I, O any] struct {
	base
	read  func(ctx context.Context, path string, sys *system.System) (O, error)
	write func(ctx context.Context, path string, in I, sys *system.System) error
}

func (h *handler[I, O]) Help() Help {
	return h.help(schema.Of[I](), schema.Of[O]())
}

func (h *handler[I, O]) Read(ctx context.Context, path string, sys *system.System) (json.RawMessage, error) {
	if h.read == nil {
		return h.base.Read(ctx, path, sys)
	}
	return readAs(ctx, path, sys, h.read)
}

func (h *handler[I, O]) Write(ctx context.Context, path string, raw json.RawMessage, sys *system.System) error {
	if h.write == nil {
		return h.base.Write(ctx, path, raw, sys)
	}
	return writeAs(ctx, path, raw, sys, h.write)
}

func readAs[O any](ctx context.Context, path string, sys *system.System, read func(context.Context, string, *system.System) (O, error)) (json.RawMessage, error) {
	out, err := read(ctx, path, sys)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("files: encode %s: %w", path, err)
	}
	return data, nil
}

func writeAs[I any](ctx context.Context, path string, raw json.RawMessage, sys *system.System, write func(context.Context, string, I, *system.System) error) error {
	in, err := apps.Decode[I](raw)
	if err != nil {
		return err
	}
	return write(ctx, path, in, sys)
}

// parsed reads path and decodes it with parse.
func parsed[O any](parse func(string) (O, error)) func(context.Context, string, *system.System) (O, error) {
	return func(ctx context.Context, path string, sys *system.System) (O, error) {
		content, err := sys.ReadString(ctx, path)
		if err != nil {
			var zero O
			return zero, err
		}
		return parse(content)
	}
}

// formatted renders the input with format and replaces path. Inputs that
// cannot be rendered are reported as DeserializeError.
func formatted[I any](format func(I) (string, error)) func(context.Context, string, I, *system.System) error {
	return func(ctx context.Context, path string, in I, sys *system.System) error {
		content, err := format(in)
		if err != nil {
			return apps.DeserializeError{Reason: err.Error()}
		}
		return sys.Write(ctx, path, []byte(content))
	}
}
