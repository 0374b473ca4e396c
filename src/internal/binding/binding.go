// Package binding converts the raw values hosts hand us (byte buffers, hex
// strings, float arrays) into memory types, checking widths on the way in.
package binding

import (
	"github.com/m-mizutani/goerr/v2"

	"ait-main/src/internal/memory"
)

// TextID decodes a 32 byte identifier.
func TextID(b []byte) (memory.TextID, error) {
	return memory.ParseTextID(b)
}

// TextIDHex decodes the hex form used in URLs and JSON.
func TextIDHex(s string) (memory.TextID, error) {
	return memory.ParseTextIDHex(s)
}

// TextIDs decodes a list of identifiers and stops at the first bad one.
func TextIDs(raw [][]byte) ([]memory.TextID, error) {
	ids := make([]memory.TextID, 0, len(raw))
	for i, b := range raw {
		id, err := memory.ParseTextID(b)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid link", goerr.V("index", i))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// TextIDsHex is TextIDs for hex strings.
func TextIDsHex(raw []string) ([]memory.TextID, error) {
	ids := make([]memory.TextID, 0, len(raw))
	for i, s := range raw {
		id, err := memory.ParseTextIDHex(s)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid link", goerr.V("index", i))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Hex renders ids the way TextIDsHex reads them.
func Hex(ids []memory.TextID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// Embedding decodes a msgpack encoded vector. dims of zero accepts any width.
func Embedding(b []byte, dims int) (memory.Embedding, error) {
	return memory.UnmarshalEmbedding(b, dims)
}

// Floats copies a plain float slice into an Embedding of the expected width.
func Floats(v []float32, dims int) (memory.Embedding, error) {
	if dims > 0 && len(v) != dims {
		return nil, goerr.Wrap(memory.ErrMalformedEmbedding, "unexpected embedding width",
			goerr.V("dims", len(v)),
			goerr.V("expected", dims),
		)
	}
	if len(v) == 0 {
		return nil, goerr.Wrap(memory.ErrMalformedEmbedding, "empty embedding")
	}
	return memory.Embedding(v).Clone(), nil
}

// Floats64 narrows a float64 slice, which is what JSON and JavaScript produce.
func Floats64(v []float64, dims int) (memory.Embedding, error) {
	f := make([]float32, len(v))
	for i, x := range v {
		f[i] = float32(x)
	}
	return Floats(f, dims)
}
