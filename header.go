package nats

import (
	"bytes"
	"strings"
)

// HeaderVersion is the protocol version line emitted as the first line of
// every serialized header blob.
const HeaderVersion = "NATS/1.0"

// Header is an ordered multimap of header name to string value, matching
// the wire format `<version>\r\n(<key>:<value>\r\n)*\r\n`. Keys must not
// contain ':'; values may (the parser splits on the first ':' only).
type Header struct {
	keys   []string
	values [][]string
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{}
}

// Add appends a value for key, preserving any existing values.
func (h *Header) Add(key, value string) {
	for i, k := range h.keys {
		if k == key {
			h.values[i] = append(h.values[i], value)
			return
		}
	}
	h.keys = append(h.keys, key)
	h.values = append(h.values, []string{value})
}

// Set replaces all values for key with value.
func (h *Header) Set(key, value string) {
	for i, k := range h.keys {
		if k == key {
			h.values[i] = []string{value}
			return
		}
	}
	h.Add(key, value)
}

// Get returns the first value for key, or "" if absent.
func (h *Header) Get(key string) string {
	for i, k := range h.keys {
		if k == key && len(h.values[i]) > 0 {
			return h.values[i][0]
		}
	}
	return ""
}

// Values returns all values recorded for key, in insertion order.
func (h *Header) Values(key string) []string {
	for i, k := range h.keys {
		if k == key {
			return h.values[i]
		}
	}
	return nil
}

// Del removes all values for key.
func (h *Header) Del(key string) {
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			h.values = append(h.values[:i], h.values[i+1:]...)
			return
		}
	}
}

// Keys returns the header's keys in insertion order.
func (h *Header) Keys() []string {
	out := make([]string, len(h.keys))
	copy(out, h.keys)
	return out
}

// Bytes serializes the header to its wire form.
func (h *Header) Bytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(HeaderVersion)
	buf.WriteString("\r\n")
	for i, k := range h.keys {
		for _, v := range h.values[i] {
			buf.WriteString(k)
			buf.WriteByte(':')
			buf.WriteString(v)
			buf.WriteString("\r\n")
		}
	}
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// DecodeHeader parses a wire-form header blob. The version line is read
// verbatim and discarded; subsequent lines lacking ':', or whose ':' is
// the first character, are silently skipped rather than erroring.
func DecodeHeader(raw []byte) *Header {
	h := NewHeader()
	lines := strings.Split(string(raw), "\r\n")
	if len(lines) == 0 {
		return h
	}
	// First line is the version; skip it.
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		h.Add(line[:idx], line[idx+1:])
	}
	return h
}
