package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderAddPreservesInsertionOrderAndMultipleValues(t *testing.T) {
	h := NewHeader()
	h.Add("X-A", "1")
	h.Add("X-B", "2")
	h.Add("X-A", "3")

	assert.Equal(t, []string{"X-A", "X-B"}, h.Keys())
	assert.Equal(t, []string{"1", "3"}, h.Values("X-A"))
	assert.Equal(t, "1", h.Get("X-A"))
}

func TestHeaderSetReplacesExistingValues(t *testing.T) {
	h := NewHeader()
	h.Add("X-A", "1")
	h.Add("X-A", "2")
	h.Set("X-A", "3")
	assert.Equal(t, []string{"3"}, h.Values("X-A"))
}

func TestHeaderDelRemovesKey(t *testing.T) {
	h := NewHeader()
	h.Add("X-A", "1")
	h.Add("X-B", "2")
	h.Del("X-A")
	assert.Equal(t, []string{"X-B"}, h.Keys())
	assert.Equal(t, "", h.Get("X-A"))
}

func TestHeaderBytesRoundTripsThroughDecodeHeader(t *testing.T) {
	h := NewHeader()
	h.Add("X-A", "1")
	h.Add("X-B", "hello world")

	blob := h.Bytes()
	require.Contains(t, string(blob), HeaderVersion+"\r\n")

	decoded := DecodeHeader(blob)
	assert.Equal(t, "1", decoded.Get("X-A"))
	assert.Equal(t, "hello world", decoded.Get("X-B"))
}

func TestDecodeHeaderSkipsMalformedLines(t *testing.T) {
	raw := []byte(HeaderVersion + "\r\nno-colon-here\r\n:leading-colon\r\nX-A:ok\r\n\r\n")
	decoded := DecodeHeader(raw)
	assert.Equal(t, "ok", decoded.Get("X-A"))
	assert.Empty(t, decoded.Get("no-colon-here"))
}

func TestDecodeHeaderValueMayContainColon(t *testing.T) {
	raw := []byte(HeaderVersion + "\r\nX-Time:12:30:00\r\n\r\n")
	decoded := DecodeHeader(raw)
	assert.Equal(t, "12:30:00", decoded.Get("X-Time"))
}
