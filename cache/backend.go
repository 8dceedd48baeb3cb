package cache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"
)

// Backend is a byte-oriented storage tier a [Store] can write through to.
// Implementations must treat a zero TTL as "no automatic expiration".
type Backend interface {
	// Get retrieves a value by key. The boolean indicates a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores val under key for ttl.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Clearer is implemented by backends that can drop everything they hold.
// [Store.Clear] uses it when available.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Codec converts cached values to and from backend bytes.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec encodes values with encoding/json.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type persister struct {
	backend Backend
	codec   Codec
	timeout time.Duration
}

var errShortEnvelope = errors.New("cache: backend entry shorter than envelope header")

// envelopeHeader is the size of the big-endian unix-millisecond expiry that
// prefixes every backend payload. Storing the absolute expiry keeps hydrated
// entries from outliving the TTL they were written with.
const envelopeHeader = 8

func encodeEnvelope(exp time.Time, payload []byte) []byte {
	buf := make([]byte, envelopeHeader+len(payload))
	binary.BigEndian.PutUint64(buf, uint64(exp.UnixMilli()))
	copy(buf[envelopeHeader:], payload)
	return buf
}

func decodeEnvelope(raw []byte) (time.Time, []byte, error) {
	if len(raw) < envelopeHeader {
		return time.Time{}, nil, errShortEnvelope
	}
	ms := int64(binary.BigEndian.Uint64(raw[:envelopeHeader]))
	return time.UnixMilli(ms), raw[envelopeHeader:], nil
}
