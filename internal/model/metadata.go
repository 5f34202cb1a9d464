package model

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Metadata is an insertion-ordered key/value map.
// JSON output preserves insertion order so reports and prompts stay deterministic.
type Metadata struct {
	keys   []string
	values map[string]any
}

// NewMetadata creates an empty metadata map
func NewMetadata() Metadata {
	return Metadata{values: make(map[string]any)}
}

// MetadataFromMap copies a plain map, inserting keys in sorted order
func MetadataFromMap(m map[string]any) Metadata {
	md := NewMetadata()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		md.Set(k, m[k])
	}
	return md
}

// Set inserts or replaces a value. Replacing keeps the original position.
func (m *Metadata) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key
func (m Metadata) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns keys in insertion order
func (m Metadata) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries
func (m Metadata) Len() int {
	return len(m.keys)
}

// Clone returns a shallow copy that does not share key order or map storage
func (m Metadata) Clone() Metadata {
	c := Metadata{
		keys:   make([]string, len(m.keys)),
		values: make(map[string]any, len(m.values)),
	}
	copy(c.keys, m.keys)
	for k, v := range m.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON writes the entries as a JSON object in insertion order
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object; keys are inserted in sorted order
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = MetadataFromMap(raw)
	return nil
}

