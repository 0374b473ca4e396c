package memory

import "errors"

var (
	ErrMalformedIdentifier = errors.New("malformed text id")
	ErrMalformedEmbedding  = errors.New("malformed embedding")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrSerialization       = errors.New("failed to serialize history")
	ErrDeserialization     = errors.New("failed to deserialize history")
)
