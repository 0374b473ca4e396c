package binding

import (
	"errors"
	"testing"

	"ait-main/src/internal/memory"
)

func TestTextIDs(t *testing.T) {
	a := memory.NewTextID("a")
	b := memory.NewTextID("b")

	ids, err := TextIDs([][]byte{a.Bytes(), b.Bytes()})
	if err != nil {
		t.Fatalf("TextIDs failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Errorf("unexpected ids %v", ids)
	}

	_, err = TextIDs([][]byte{a.Bytes(), {1, 2}})
	if !errors.Is(err, memory.ErrMalformedIdentifier) {
		t.Errorf("expected ErrMalformedIdentifier, got %v", err)
	}
}

func TestTextIDsHex(t *testing.T) {
	a := memory.NewTextID("a")

	ids, err := TextIDsHex(Hex([]memory.TextID{a}))
	if err != nil {
		t.Fatalf("TextIDsHex failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != a {
		t.Errorf("unexpected ids %v", ids)
	}

	if _, err := TextIDsHex([]string{"abc"}); !errors.Is(err, memory.ErrMalformedIdentifier) {
		t.Errorf("expected ErrMalformedIdentifier, got %v", err)
	}
	if ids, err := TextIDsHex(nil); err != nil || len(ids) != 0 {
		t.Errorf("expected empty result for no links, got %v (%v)", ids, err)
	}
}

func TestFloats(t *testing.T) {
	tests := []struct {
		name    string
		in      []float32
		dims    int
		wantErr bool
	}{
		{"exact", []float32{1, 2, 3}, 3, false},
		{"any width", []float32{1, 2}, 0, false},
		{"too short", []float32{1, 2}, 3, true},
		{"too long", []float32{1, 2, 3, 4}, 3, true},
		{"empty", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Floats(tt.in, tt.dims)
			if tt.wantErr {
				if !errors.Is(err, memory.ErrMalformedEmbedding) {
					t.Errorf("expected ErrMalformedEmbedding, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(e) != len(tt.in) {
				t.Errorf("expected width %d, got %d", len(tt.in), len(e))
			}
		})
	}
}

func TestFloats_Copies(t *testing.T) {
	in := []float32{1, 2}
	e, _ := Floats(in, 2)
	in[0] = 9
	if e[0] != 1 {
		t.Error("expected the embedding not to alias the input")
	}
}

func TestEmbedding(t *testing.T) {
	data, _ := memory.Embedding{1, 2}.MarshalBinary()

	e, err := Embedding(data, 2)
	if err != nil || len(e) != 2 {
		t.Fatalf("expected 2 wide embedding, got %v (%v)", e, err)
	}
	if _, err := Embedding(data, 3); !errors.Is(err, memory.ErrMalformedEmbedding) {
		t.Errorf("expected ErrMalformedEmbedding, got %v", err)
	}
}

func TestFloats64(t *testing.T) {
	e, err := Floats64([]float64{0.5, 1.5}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if e[0] != 0.5 || e[1] != 1.5 {
		t.Errorf("unexpected embedding %v", e)
	}
}
