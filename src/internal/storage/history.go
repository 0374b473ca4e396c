package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"ait-main/src/internal/memory"
)

// DefaultHistoryKey is the slot the history blob lives in unless configured.
const DefaultHistoryKey = "ait_history"

// EncodeHistory renders the store as base64 text, standard alphabet without
// padding, suitable for string-only slots such as browser localStorage.
func EncodeHistory(h *memory.History) ([]byte, error) {
	raw, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(raw)))
	base64.RawStdEncoding.Encode(out, raw)
	return out, nil
}

// DecodeHistory reverses EncodeHistory. Padded input is accepted as well.
func DecodeHistory(blob []byte) (*memory.History, error) {
	text := strings.TrimRight(strings.TrimSpace(string(blob)), "=")
	raw, err := base64.RawStdEncoding.DecodeString(text)
	if err != nil {
		return nil, goerr.Wrap(memory.ErrDeserialization, "decode base64",
			goerr.V("cause", err.Error()),
			goerr.V("size", len(blob)),
		)
	}
	return memory.UnmarshalHistory(raw)
}

// LoadHistory reads the store kept under key. On first run, when the slot is
// empty, a new store of width dims is written there and returned.
func LoadHistory(ctx context.Context, kv KV, key string, dims int) (*memory.History, error) {
	blob, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		h := memory.New(dims)
		if err := SaveHistory(ctx, kv, key, h); err != nil {
			return nil, err
		}
		slog.Info("initialised empty history", "key", key, "dims", dims)
		return h, nil
	}
	if err != nil {
		return nil, err
	}

	h, err := DecodeHistory(blob)
	if err != nil {
		return nil, goerr.Wrap(err, "load history", goerr.V("key", key))
	}
	if dims > 0 && h.Dims() > 0 && h.Dims() != dims {
		return nil, goerr.Wrap(memory.ErrDimensionMismatch, "stored history has another width",
			goerr.V("key", key),
			goerr.V("dims", h.Dims()),
			goerr.V("expected", dims),
		)
	}
	slog.Debug("loaded history", "key", key, "experiences", h.Len())
	return h, nil
}

func SaveHistory(ctx context.Context, kv KV, key string, h *memory.History) error {
	blob, err := EncodeHistory(h)
	if err != nil {
		return goerr.Wrap(err, "save history", goerr.V("key", key))
	}
	return kv.Set(ctx, key, blob)
}

// Backup copies the blob in src to dst. A missing source is not an error.
func Backup(ctx context.Context, kv KV, src, dst string) error {
	blob, err := kv.Get(ctx, src)
	if errors.Is(err, ErrNotFound) {
		slog.Debug("nothing to back up", "key", src)
		return nil
	}
	if err != nil {
		return err
	}
	if err := kv.Set(ctx, dst, blob); err != nil {
		return goerr.Wrap(err, "write backup", goerr.V("src", src), goerr.V("dst", dst))
	}
	slog.Info("history backed up", "src", src, "dst", dst, "bytes", len(blob))
	return nil
}
