package memory

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/m-mizutani/goerr/v2"
)

// TextIDSize is the width of a TextID in bytes.
const TextIDSize = sha256.Size

// TextID is the content address of an experience: the SHA-256 digest of the
// strings it was built from, fed in order.
type TextID [TextIDSize]byte

// NewTextID hashes parts in order into a single digest.
func NewTextID(parts ...string) TextID {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	var id TextID
	copy(id[:], h.Sum(nil))
	return id
}

// ParseTextID converts a raw byte slice into a TextID.
func ParseTextID(b []byte) (TextID, error) {
	var id TextID
	if len(b) != TextIDSize {
		return id, goerr.Wrap(ErrMalformedIdentifier, "unexpected text id length",
			goerr.V("length", len(b)),
			goerr.V("expected", TextIDSize),
		)
	}
	copy(id[:], b)
	return id, nil
}

// ParseTextIDHex parses the hex form produced by String.
func ParseTextIDHex(s string) (TextID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return TextID{}, goerr.Wrap(ErrMalformedIdentifier, "text id is not hex", goerr.V("id", s))
	}
	return ParseTextID(b)
}

func (id TextID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 12 hex characters, enough to tell ids apart in logs.
func (id TextID) Short() string {
	return id.String()[:12]
}

func (id TextID) Bytes() []byte {
	b := make([]byte, TextIDSize)
	copy(b, id[:])
	return b
}

func (id TextID) Compare(other TextID) int {
	return bytes.Compare(id[:], other[:])
}

func (id TextID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *TextID) UnmarshalText(text []byte) error {
	parsed, err := ParseTextIDHex(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
