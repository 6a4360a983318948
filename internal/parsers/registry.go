package parsers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrDuplicateHandler = errors.New("duplicate parser handler")
	ErrUnknownParser    = errors.New("unknown parser")
)

// Registry maps parser names to their handlers. It is populated at
// startup and read-only afterwards, so lookups need no locking.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds a handler under its canonical name. A second handler
// for the same name is rejected with ErrDuplicateHandler.
func (r *Registry) Register(h Handler) error {
	name := CanonicalName(h.Name())
	if name == "" {
		return fmt.Errorf("parser handler with empty name: %T", h)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, name)
	}
	r.handlers[name] = h
	return nil
}

// MustRegister panics on registration failure. Startup wiring only.
func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

// Resolve returns the handler for a parser name. The error lists the
// known parsers so a typo is obvious in logs.
func (r *Registry) Resolve(name string) (Handler, error) {
	h, ok := r.handlers[CanonicalName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownParser, name, strings.Join(r.Names(), ", "))
	}
	return h, nil
}

// Names returns the registered parser names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
