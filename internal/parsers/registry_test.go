package parsers

import (
	"errors"
	"strings"
	"testing"

	"converter/internal"
)

type stubHandler struct {
	name string
}

func (s stubHandler) Name() string { return s.name }

func (s stubHandler) Normalize(raw internal.RawProduct) internal.NormalizedProduct {
	return internal.NormalizedProduct{ParserName: s.name, RawTitle: raw.Title}
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(stubHandler{name: "FixPrice"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	h, err := reg.Resolve("  fixprice ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if h.Name() != "FixPrice" {
		t.Fatalf("got %q", h.Name())
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(stubHandler{name: "chizhik"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := reg.Register(stubHandler{name: "Chizhik"})
	if !errors.Is(err, ErrDuplicateHandler) {
		t.Fatalf("got %v want ErrDuplicateHandler", err)
	}
}

func TestRegistryUnknownParserListsKnown(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(stubHandler{name: "chizhik"})
	reg.MustRegister(stubHandler{name: "fixprice"})

	_, err := reg.Resolve("magnit")
	if !errors.Is(err, ErrUnknownParser) {
		t.Fatalf("got %v want ErrUnknownParser", err)
	}
	if !strings.Contains(err.Error(), "chizhik") || !strings.Contains(err.Error(), "fixprice") {
		t.Fatalf("error must list known parsers: %v", err)
	}
}
