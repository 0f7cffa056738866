package notification

import "strings"

// Metadata bounds.
const (
	MaxMetadataEntries  = 50
	MaxMetadataKeyLen   = 100
	MaxMetadataValueLen = 1000
)

// Metadata is an immutable, case-insensitive key/value map used as
// substitution input for templates. Keys are normalized to lower case at
// construction; lookups match regardless of the caller's casing.
type Metadata struct {
	entries map[string]string
}

// NewMetadata validates and builds a Metadata from a plain map. Keys that
// differ only in case collapse to a single entry (last write wins is not
// defined; callers should not rely on it).
func NewMetadata(values map[string]string) (Metadata, error) {
	if len(values) > MaxMetadataEntries {
		return Metadata{}, ErrTooManyMetadataEntries
	}

	entries := make(map[string]string, len(values))
	for k, v := range values {
		if strings.TrimSpace(k) == "" {
			return Metadata{}, ErrMetadataKeyRequired
		}
		if len([]rune(k)) > MaxMetadataKeyLen {
			return Metadata{}, ErrMetadataKeyTooLong
		}
		if len([]rune(v)) > MaxMetadataValueLen {
			return Metadata{}, ErrMetadataValueTooLong
		}
		entries[strings.ToLower(k)] = v
	}

	if len(entries) > MaxMetadataEntries {
		return Metadata{}, ErrTooManyMetadataEntries
	}

	return Metadata{entries: entries}, nil
}

// EmptyMetadata returns a valid metadata with no entries.
func EmptyMetadata() Metadata {
	return Metadata{}
}

// Get looks up a value by key, case-insensitively.
func (m Metadata) Get(key string) (string, bool) {
	v, ok := m.entries[strings.ToLower(key)]
	return v, ok
}

// Len returns the number of entries.
func (m Metadata) Len() int {
	return len(m.entries)
}

// Values returns a copy of the underlying map (lower-cased keys).
func (m Metadata) Values() map[string]string {
	out := make(map[string]string, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out
}
