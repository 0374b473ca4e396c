package memory

import (
	"errors"
	"testing"
)

func TestNewTextID_Deterministic(t *testing.T) {
	a := NewTextID("what is go?", "a programming language")
	b := NewTextID("what is go?", "a programming language")
	if a != b {
		t.Fatalf("expected identical ids, got %s and %s", a, b)
	}

	c := NewTextID("what is go?", "a board game")
	if a == c {
		t.Fatal("expected different ids for different responses")
	}
}

func TestNewTextID_Concatenates(t *testing.T) {
	// parts are fed in order into one digest, so only the concatenation matters
	if NewTextID("ab", "c") != NewTextID("a", "bc") {
		t.Error("expected split points not to change the id")
	}
	if NewTextID("q", "r") == NewTextID("r", "q") {
		t.Error("expected order to change the id")
	}
}

func TestParseTextID(t *testing.T) {
	id := NewTextID("q", "r")

	parsed, err := ParseTextID(id.Bytes())
	if err != nil {
		t.Fatalf("ParseTextID failed: %v", err)
	}
	if parsed != id {
		t.Errorf("expected %s, got %s", id, parsed)
	}

	for _, n := range []int{0, 31, 33, 64} {
		if _, err := ParseTextID(make([]byte, n)); !errors.Is(err, ErrMalformedIdentifier) {
			t.Errorf("length %d: expected ErrMalformedIdentifier, got %v", n, err)
		}
	}
}

func TestParseTextIDHex(t *testing.T) {
	id := NewTextID("q", "r")

	parsed, err := ParseTextIDHex(id.String())
	if err != nil {
		t.Fatalf("ParseTextIDHex failed: %v", err)
	}
	if parsed != id {
		t.Errorf("expected %s, got %s", id, parsed)
	}

	tests := []string{"", "zz", id.String()[:10], id.String() + "00"}
	for _, tt := range tests {
		if _, err := ParseTextIDHex(tt); !errors.Is(err, ErrMalformedIdentifier) {
			t.Errorf("%q: expected ErrMalformedIdentifier, got %v", tt, err)
		}
	}
}

func TestTextID_TextMarshaling(t *testing.T) {
	id := NewTextID("q", "r")
	text, err := id.MarshalText()
	if err != nil {
		t.Fatal(err)
	}

	var back TextID
	if err := back.UnmarshalText(text); err != nil {
		t.Fatal(err)
	}
	if back != id {
		t.Errorf("expected %s, got %s", id, back)
	}
	if len(id.Short()) != 12 {
		t.Errorf("expected 12 char short id, got %q", id.Short())
	}
}
