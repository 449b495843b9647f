package nuid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasExpectedLength(t *testing.T) {
	n := New()
	id := n.Next()
	assert.Len(t, id, totalLen)
}

func TestNextIsUniqueAndIncreasing(t *testing.T) {
	n := New()
	seen := make(map[string]bool)
	prevSeq := n.seq
	for i := 0; i < 1000; i++ {
		id := n.Next()
		require.False(t, seen[id], "duplicate id generated: %s", id)
		seen[id] = true
		assert.Greater(t, n.seq, prevSeq)
		prevSeq = n.seq
	}
}

func TestNextUsesOnlyDigitAlphabet(t *testing.T) {
	n := New()
	for i := 0; i < 100; i++ {
		id := n.Next()
		for _, c := range id {
			assert.True(t, strings.ContainsRune(digits, c), "unexpected character %q in id %q", c, id)
		}
	}
}

func TestPrefixStaysStableUntilSequenceWraps(t *testing.T) {
	n := New()
	prefix := string(n.pre)
	id := n.Next()
	assert.Equal(t, prefix, id[:preLen])
}

func TestSequenceRegeneratesPastMax(t *testing.T) {
	n := New()
	n.seq = maxSeq - 1
	n.inc = 5
	prefixBefore := string(n.pre)

	n.Next()

	assert.NotEqual(t, prefixBefore, string(n.pre))
	assert.Less(t, n.seq, maxSeq)
}

func TestTwoInstancesNeverCollideAcrossPairedDraws(t *testing.T) {
	a := New()
	b := New()
	for i := 0; i < 10000; i++ {
		require.NotEqual(t, a.Next(), b.Next(), "a and b produced the same id on draw %d", i)
	}
}

func TestPackageLevelNextIsConcurrencySafe(t *testing.T) {
	const workers = 20
	const perWorker = 50
	results := make(chan string, workers*perWorker)

	for i := 0; i < workers; i++ {
		go func() {
			for j := 0; j < perWorker; j++ {
				results <- Next()
			}
		}()
	}

	seen := make(map[string]bool)
	for i := 0; i < workers*perWorker; i++ {
		id := <-results
		assert.False(t, seen[id])
		seen[id] = true
	}
}
