package nkeys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCrc16ValidRoundTrip(t *testing.T) {
	body := []byte("some arbitrary payload bytes")
	crc := crc16Checksum(body)

	raw := append(append([]byte{}, body...), byte(crc), byte(crc>>8))
	assert.True(t, crc16Valid(raw))
}

func TestCrc16ValidDetectsCorruption(t *testing.T) {
	body := []byte("some arbitrary payload bytes")
	crc := crc16Checksum(body)
	raw := append(append([]byte{}, body...), byte(crc), byte(crc>>8))

	raw[0] ^= 0xFF
	assert.False(t, crc16Valid(raw))
}

func TestCrc16ValidRejectsShortInput(t *testing.T) {
	assert.False(t, crc16Valid([]byte{1}))
}
