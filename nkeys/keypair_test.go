package nkeys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSeed      = "SUACSSL3UAHUDXKFSNVUZRF5UHPMWZ6BFDTJ7M6USDXIEDNPPQYYYCU3VY"
	testPublicKey = "UDXU4RCSJNZOIQHZNWXHXORDPRTGNJAHAHFRGZNEEJCPQTT2M7NLCNF4"
	testNonce     = "DhXdTMAeiHhLDig"
	testSig       = "WosANJXgeyxerXFo0twRiMG+/ZjYp1K/46bFeFax705yFTCTjM18jWl01gGYk4KKbadiHd+hP3WgUQ2iLZUAAA=="
)

func TestFromSeedDerivesKnownPublicKey(t *testing.T) {
	kp, err := FromSeed(testSeed)
	require.NoError(t, err)

	pub, err := kp.PublicKey()
	require.NoError(t, err)
	assert.Equal(t, testPublicKey, pub)
}

func TestSignBase64MatchesKnownVector(t *testing.T) {
	kp, err := FromSeed(testSeed)
	require.NoError(t, err)

	sig := kp.SignBase64([]byte(testNonce))
	assert.Equal(t, testSig, sig)
}

func TestVerifyBase64AcceptsKnownVector(t *testing.T) {
	ok := VerifyBase64(testPublicKey, []byte(testNonce), testSig)
	assert.True(t, ok)
}

func TestVerifyBase64RejectsTamperedMessage(t *testing.T) {
	ok := VerifyBase64(testPublicKey, []byte("not the nonce"), testSig)
	assert.False(t, ok)
}

func TestSeedRoundTrip(t *testing.T) {
	kp, err := FromSeed(testSeed)
	require.NoError(t, err)

	seed, err := kp.Seed()
	require.NoError(t, err)
	assert.Equal(t, testSeed, seed)
}

func TestDecodeSeedRejectsBadChecksum(t *testing.T) {
	tampered := testSeed[:len(testSeed)-1] + "A"
	_, _, err := DecodeSeed(tampered)
	assert.Error(t, err)
}

func TestEncodeDecodePublicRoundTrip(t *testing.T) {
	kp, err := FromSeed(testSeed)
	require.NoError(t, err)

	text, err := kp.PublicKey()
	require.NoError(t, err)

	raw, err := DecodePublic(PrefixByteUser, text)
	require.NoError(t, err)
	assert.Equal(t, []byte(kp.pub), raw)
}

func TestDecodePublicRejectsWrongPrefix(t *testing.T) {
	kp, err := FromSeed(testSeed)
	require.NoError(t, err)

	text, err := kp.PublicKey()
	require.NoError(t, err)

	_, err = DecodePublic(PrefixByteAccount, text)
	assert.ErrorIs(t, err, ErrPrefixMismatch)
}
