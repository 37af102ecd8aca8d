package cache

import "strings"

// DefaultDelimiter joins namespace segments and the id into a backend key.
const DefaultDelimiter = "=="

// KeyCodec derives opaque backend keys from an id and a namespace path.
//
// The delimiter must not occur inside ids or namespace segments, otherwise
// distinct pairs can collide and namespace flushes over- or under-match.
type KeyCodec struct {
	Delimiter string
}

// NewKeyCodec returns a codec using delimiter, or DefaultDelimiter if empty.
func NewKeyCodec(delimiter string) KeyCodec {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return KeyCodec{Delimiter: delimiter}
}

func (k KeyCodec) delimiter() string {
	if k.Delimiter == "" {
		return DefaultDelimiter
	}
	return k.Delimiter
}

// Encode joins namespace and id. An empty namespace yields id unchanged.
func (k KeyCodec) Encode(id string, namespace []string) string {
	if len(namespace) == 0 {
		return id
	}
	var sb strings.Builder
	for _, segment := range namespace {
		sb.WriteString(segment)
		sb.WriteString(k.delimiter())
	}
	sb.WriteString(id)
	return sb.String()
}

// PrefixFor returns the key prefix shared by every key inside namespace.
// The root namespace has the empty prefix.
func (k KeyCodec) PrefixFor(namespace []string) string {
	if len(namespace) == 0 {
		return ""
	}
	return strings.Join(namespace, k.delimiter()) + k.delimiter()
}

// Within reports whether key lives inside namespace.
func (k KeyCodec) Within(key string, namespace []string) bool {
	return strings.HasPrefix(key, k.PrefixFor(namespace))
}
