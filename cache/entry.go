package cache

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Entry is what a Store physically holds for a key.
type Entry struct {
	Data any
	// ExpiresAt is the absolute expiry; the zero time means never.
	ExpiresAt time.Time
}

// NewEntry builds an Entry expiring lifetime after now. A lifetime <= 0
// produces an entry that never expires.
func NewEntry(data any, lifetime time.Duration, now time.Time) Entry {
	e := Entry{Data: data}
	if lifetime > 0 {
		e.ExpiresAt = now.Add(lifetime)
	}
	return e
}

// Live reports whether the entry is visible at now.
func (e Entry) Live(now time.Time) bool {
	return e.ExpiresAt.IsZero() || e.ExpiresAt.After(now)
}

// TimeToLive returns the remaining lifetime at now, 0 for entries that never expire.
func (e Entry) TimeToLive(now time.Time) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	if d := e.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Encoded is a msgpack encoded payload as returned by serializing stores.
// Fetch and Decode unmarshal it into the requested type.
type Encoded []byte

type wireEntry struct {
	Data    []byte `msgpack:"d"`
	Expires int64  `msgpack:"e"`
}

func encodeData(v any) ([]byte, error) {
	if enc, ok := v.(Encoded); ok {
		return []byte(enc), nil
	}
	return msgpack.Marshal(v)
}

func expiresNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func expiresTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func marshalEntry(e Entry) ([]byte, error) {
	data, err := encodeData(e.Data)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(&wireEntry{Data: data, Expires: expiresNanos(e.ExpiresAt)})
}

func unmarshalEntry(buf []byte) (Entry, error) {
	var w wireEntry
	if err := msgpack.Unmarshal(buf, &w); err != nil {
		return Entry{}, err
	}
	return Entry{Data: Encoded(w.Data), ExpiresAt: expiresTime(w.Expires)}, nil
}
