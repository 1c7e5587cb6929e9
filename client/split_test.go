package client

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lnet "badc0de.net/pkg/go-luanti/net"
)

// splitInto cuts payload into count wire chunks of one series.
func splitInto(seq uint16, payload []byte) []*lnet.SplitPayload {
	chunks := chunkPayload(payload, lnet.MaxSplitChunk)
	out := make([]*lnet.SplitPayload, len(chunks))
	for i, c := range chunks {
		out[i] = &lnet.SplitPayload{
			SplitSeq: seq,
			Count:    uint16(len(chunks)),
			Index:    uint16(i),
			Chunk:    c,
		}
	}
	return out
}

func TestSplitReassemblyAnyOrder(t *testing.T) {
	payload := make([]byte, lnet.MaxOriginalPayload*3+7)
	rnd := rand.New(rand.NewSource(1))
	rnd.Read(payload)

	chunks := splitInto(5, payload)
	require.Greater(t, len(chunks), 1)
	rnd.Shuffle(len(chunks), func(i, j int) { chunks[i], chunks[j] = chunks[j], chunks[i] })

	pool := newSplitPool()
	now := time.Now()
	var got []byte
	for i, c := range chunks {
		data, done := pool.add(c, now)
		if i < len(chunks)-1 {
			assert.False(t, done, "series completed after %d of %d chunks", i+1, len(chunks))
		} else {
			require.True(t, done, "series did not complete")
			got = data
		}
	}
	assert.True(t, bytes.Equal(got, payload), "reassembled payload differs")
}

func TestSplitIncompleteYieldsNothing(t *testing.T) {
	chunks := splitInto(9, make([]byte, lnet.MaxSplitChunk*2+1))
	pool := newSplitPool()
	now := time.Now()

	for _, c := range chunks[:len(chunks)-1] {
		_, done := pool.add(c, now)
		assert.False(t, done)
	}
}

func TestSplitPurgeDropsStaleSeries(t *testing.T) {
	payload := []byte("abcdefgh")
	chunks := []*lnet.SplitPayload{
		{SplitSeq: 3, Count: 2, Index: 0, Chunk: payload[:4]},
		{SplitSeq: 3, Count: 2, Index: 1, Chunk: payload[4:]},
	}

	pool := newSplitPool()
	start := time.Now()
	_, done := pool.add(chunks[0], start)
	require.False(t, done)

	// After the window the half-finished series is gone; a late chunk
	// starts a fresh series instead of silently completing the old one.
	pool.purge(start.Add(splitTTL + time.Second))
	_, done = pool.add(chunks[1], start.Add(splitTTL+2*time.Second))
	assert.False(t, done, "late chunk completed a purged series")

	// The fresh series still completes once both chunks arrive again.
	_, done = pool.add(chunks[0], start.Add(splitTTL+3*time.Second))
	require.False(t, done)
	data, done := pool.add(chunks[1], start.Add(splitTTL+3*time.Second))
	require.True(t, done)
	assert.Equal(t, payload, data)
}

func TestSplitDuplicateChunkDoesNotComplete(t *testing.T) {
	pool := newSplitPool()
	now := time.Now()
	chunk := &lnet.SplitPayload{SplitSeq: 1, Count: 2, Index: 0, Chunk: []byte("xx")}

	_, done := pool.add(chunk, now)
	assert.False(t, done)
	_, done = pool.add(chunk, now)
	assert.False(t, done, "a duplicate chunk must not count towards completion")
}

func TestSplitRejectsOutOfRangeIndex(t *testing.T) {
	pool := newSplitPool()
	now := time.Now()

	_, done := pool.add(&lnet.SplitPayload{SplitSeq: 2, Count: 2, Index: 2, Chunk: []byte("x")}, now)
	assert.False(t, done)
	_, done = pool.add(&lnet.SplitPayload{SplitSeq: 2, Count: 2, Index: 0, Chunk: []byte("a")}, now)
	assert.False(t, done)
	// A lying chunk claiming a larger series must not smuggle an index
	// past the count recorded for the series.
	_, done = pool.add(&lnet.SplitPayload{SplitSeq: 2, Count: 9, Index: 5, Chunk: []byte("b")}, now)
	assert.False(t, done)
}

func TestChunkPayloadBounds(t *testing.T) {
	assert.Len(t, chunkPayload(make([]byte, lnet.MaxSplitChunk), lnet.MaxSplitChunk), 1)
	assert.Len(t, chunkPayload(make([]byte, lnet.MaxSplitChunk+1), lnet.MaxSplitChunk), 2)
	assert.Len(t, chunkPayload(nil, lnet.MaxSplitChunk), 1)

	chunks := chunkPayload(make([]byte, lnet.MaxSplitChunk*4+2), lnet.MaxSplitChunk)
	assert.Len(t, chunks, 5)
	assert.Len(t, chunks[4], 2)
}

func TestSplitTTLBoundary(t *testing.T) {
	// Exactly at the TTL the series survives; purge drops only what is
	// strictly older.
	pool := newSplitPool()
	start := time.Now()
	pool.add(&lnet.SplitPayload{SplitSeq: 7, Count: 2, Index: 0, Chunk: []byte("a")}, start)
	pool.purge(start.Add(splitTTL))

	data, done := pool.add(&lnet.SplitPayload{SplitSeq: 7, Count: 2, Index: 1, Chunk: []byte("b")}, start.Add(splitTTL))
	require.True(t, done)
	assert.Equal(t, []byte("ab"), data)
}
