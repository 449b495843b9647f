// Package nkeys implements the prefixed, checksummed seed/key text format
// used to identify NATS-style key pairs, and the Ed25519 signing/
// verification built on top of it.
package nkeys

import (
	"crypto/ed25519"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
)

// PrefixByte identifies the role of a key.
type PrefixByte byte

// Valid prefix bytes, each a multiple of 8 so it occupies the top 5 bits
// of a byte once shifted.
const (
	PrefixByteOperator PrefixByte = 14 << 3
	PrefixByteServer   PrefixByte = 13 << 3
	PrefixByteCluster  PrefixByte = 2 << 3
	PrefixByteAccount  PrefixByte = 0 << 3
	PrefixByteUser     PrefixByte = 20 << 3
	PrefixBytePrivate  PrefixByte = 15 << 3
	PrefixByteSeed     PrefixByte = 18 << 3
)

// Errors returned by this package, following the identity-error taxonomy
//: codec failures are specific to the operation that
// triggered them and never affect a live connection.
var (
	ErrInvalidPrefix    = errors.New("nkeys: invalid prefix byte")
	ErrInvalidSeedType  = errors.New("nkeys: invalid seed public-key type")
	ErrInvalidChecksum  = errors.New("nkeys: invalid checksum")
	ErrInvalidKeyLen    = errors.New("nkeys: invalid key length")
	ErrPrefixMismatch   = errors.New("nkeys: decoded prefix does not match requested prefix")
	ErrNotSeed          = errors.New("nkeys: not a seed key")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

func validPublicPrefix(p PrefixByte) bool {
	switch p {
	case PrefixByteOperator, PrefixByteServer, PrefixByteCluster, PrefixByteAccount, PrefixByteUser:
		return true
	}
	return false
}

// encode produces base32(prefix || payload || crc16(prefix||payload)).
func encode(prefix PrefixByte, payload []byte) string {
	buf := make([]byte, 0, 1+len(payload)+2)
	buf = append(buf, byte(prefix))
	buf = append(buf, payload...)
	crc := crc16Checksum(buf)
	buf = append(buf, byte(crc), byte(crc>>8))
	return b32.EncodeToString(buf)
}

// EncodeSeed serializes a 32-byte Ed25519 seed as the typed, checksummed
// seed text form. publicPrefix identifies the role the derived key pair
// plays (user, account, server, ...).
func EncodeSeed(publicPrefix PrefixByte, seed []byte) (string, error) {
	if len(seed) != ed25519.SeedSize {
		return "", ErrInvalidKeyLen
	}
	if !validPublicPrefix(publicPrefix) {
		return "", ErrInvalidPrefix
	}

	b1 := byte(PrefixByteSeed) | (byte(publicPrefix) >> 5)
	b2 := (byte(publicPrefix) & 0x1F) << 3

	buf := make([]byte, 0, 2+len(seed)+2)
	buf = append(buf, b1, b2)
	buf = append(buf, seed...)
	crc := crc16Checksum(buf)
	buf = append(buf, byte(crc), byte(crc>>8))
	return b32.EncodeToString(buf), nil
}

// DecodeSeed parses a seed text form, returning the raw 32-byte seed and
// the public-key type it was generated for.
func DecodeSeed(seedText string) ([]byte, PrefixByte, error) {
	raw, err := b32.DecodeString(seedText)
	if err != nil {
		return nil, 0, fmt.Errorf("nkeys: base32 decode: %w", err)
	}
	if len(raw) < 2+ed25519.SeedSize+2 {
		return nil, 0, ErrInvalidKeyLen
	}
	if !crc16Valid(raw) {
		return nil, 0, ErrInvalidChecksum
	}

	b1, b2 := raw[0], raw[1]
	if PrefixByte(b1&0xF8) != PrefixByteSeed {
		return nil, 0, ErrNotSeed
	}
	publicPrefix := PrefixByte((b1&0x07)<<5 | (b2 >> 3))
	if !validPublicPrefix(publicPrefix) {
		return nil, 0, ErrInvalidSeedType
	}

	seed := raw[2 : 2+ed25519.SeedSize]
	out := make([]byte, len(seed))
	copy(out, seed)
	return out, publicPrefix, nil
}

// EncodePublic serializes a public key with the given role prefix.
func EncodePublic(prefix PrefixByte, pub []byte) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", ErrInvalidKeyLen
	}
	if !validPublicPrefix(prefix) {
		return "", ErrInvalidPrefix
	}
	return encode(prefix, pub), nil
}

// DecodePublic parses a public key text form, verifying it carries the
// requested prefix.
func DecodePublic(wantPrefix PrefixByte, text string) ([]byte, error) {
	raw, err := b32.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("nkeys: base32 decode: %w", err)
	}
	if len(raw) < 1+ed25519.PublicKeySize+2 {
		return nil, ErrInvalidKeyLen
	}
	if !crc16Valid(raw) {
		return nil, ErrInvalidChecksum
	}
	prefix := PrefixByte(raw[0])
	if !validPublicPrefix(prefix) {
		return nil, ErrInvalidPrefix
	}
	if prefix != wantPrefix {
		return nil, ErrPrefixMismatch
	}
	key := raw[1 : 1+ed25519.PublicKeySize]
	// key is sliced to exactly PublicKeySize above, so this never shortens
	// it; a text form missing its prefix byte fails the prefix check.
	if len(key) > ed25519.PublicKeySize {
		key = key[:ed25519.PublicKeySize]
	}
	out := make([]byte, len(key))
	copy(out, key)
	return out, nil
}

// KeyPair is an Ed25519 key pair tagged with the role it was generated
// for. The seed is kept in memory only; it is exported solely through the
// prefixed, checksummed text form.
type KeyPair struct {
	prefix PrefixByte
	seed   [ed25519.SeedSize]byte
	pub    ed25519.PublicKey
	priv   ed25519.PrivateKey
}

// FromSeed derives a key pair from a seed's text form.
func FromSeed(seedText string) (*KeyPair, error) {
	seed, prefix, err := DecodeSeed(seedText)
	if err != nil {
		return nil, err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	kp := &KeyPair{prefix: prefix, priv: priv, pub: priv.Public().(ed25519.PublicKey)}
	copy(kp.seed[:], seed)
	return kp, nil
}

// Seed returns the text form of the seed this key pair was created from.
func (k *KeyPair) Seed() (string, error) {
	return EncodeSeed(k.prefix, k.seed[:])
}

// PublicKey returns the text form of the public key.
func (k *KeyPair) PublicKey() (string, error) {
	return EncodePublic(k.prefix, k.pub)
}

// Sign signs message with the private half of the pair.
func (k *KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// SignBase64 signs message and returns the signature as standard base64
// (with padding).
func (k *KeyPair) SignBase64(message []byte) string {
	return base64.StdEncoding.EncodeToString(k.Sign(message))
}

// Verify checks a raw Ed25519 signature against a public key text form
// and the original message.
func Verify(publicKeyText string, message []byte, sig []byte) bool {
	raw, err := b32.DecodeString(publicKeyText)
	if err != nil || len(raw) < ed25519.PublicKeySize {
		return false
	}
	// The caller may pass either the full prefixed+checksummed text, or
	// (defensively) just the raw decoded key bytes with the prefix byte
	// already stripped; in either case the tail holds the key, truncated
	// to Ed25519's expected size.
	var key []byte
	if len(raw) >= 1+ed25519.PublicKeySize+2 && crc16Valid(raw) {
		key = raw[1 : 1+ed25519.PublicKeySize]
	} else {
		key = raw
	}
	if len(key) > ed25519.PublicKeySize {
		key = key[:ed25519.PublicKeySize]
	}
	if len(key) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(key), message, sig)
}

// VerifyBase64 is Verify with the signature given as base64 text.
func VerifyBase64(publicKeyText string, message []byte, sigB64 string) bool {
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	return Verify(publicKeyText, message, sig)
}
