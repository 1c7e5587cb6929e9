package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseAdvancesForwardOnly(t *testing.T) {
	s := newState()
	assert.Equal(t, Disconnected, s.Phase())

	for _, p := range []Phase{Connecting, Authenticating, Authenticated, Joining, Joined} {
		assert.True(t, s.setPhase(p), "advancing to %v", p)
		assert.Equal(t, p, s.Phase())
	}

	assert.False(t, s.setPhase(Authenticating), "phase must not move backwards")
	assert.Equal(t, Joined, s.Phase())

	s.Reset()
	assert.Equal(t, Disconnected, s.Phase())
}

func TestDenialIsTerminal(t *testing.T) {
	s := newState()
	s.setPhase(Authenticating)

	assert.True(t, s.recordDenial("nope", 6))
	reason, code, ok := s.Denied()
	assert.True(t, ok)
	assert.Equal(t, "nope", reason)
	assert.Equal(t, 6, code)
	assert.Equal(t, Disconnected, s.Phase())

	// Only the first denial sticks, and no transition works after it.
	assert.False(t, s.recordDenial("other", 9))
	assert.False(t, s.setPhase(Joined))
	reason, code, _ = s.Denied()
	assert.Equal(t, "nope", reason)
	assert.Equal(t, 6, code)

	s.Reset()
	_, _, ok = s.Denied()
	assert.False(t, ok)
}

func TestSequenceWrapsEarly(t *testing.T) {
	s := newState()
	assert.Equal(t, uint16(seqInit), s.nextSeq())

	// The counter starts close enough to the boundary that the wrap is
	// exercised within the first packets of a session.
	var last uint16
	for i := 0; i < 40; i++ {
		last = s.nextSeq()
	}
	assert.Less(t, last, uint16(seqInit), "sequence counter did not wrap")
}

func TestPlayerRosterSetSemantics(t *testing.T) {
	s := newState()

	s.setPlayers([]string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, s.Players())

	s.addPlayers([]string{"c"})
	assert.Equal(t, []string{"a", "b", "c"}, s.Players())

	// Adding an existing name must not duplicate it.
	s.addPlayers([]string{"c", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, s.Players())

	s.removePlayers([]string{"b"})
	assert.Equal(t, []string{"a", "c"}, s.Players())

	// Removing an unknown name leaves the rest untouched.
	s.removePlayers([]string{"zz"})
	assert.Equal(t, []string{"a", "c"}, s.Players())

	s.setPlayers([]string{"x"})
	assert.Equal(t, []string{"x"}, s.Players())
}

func TestNodeDefFirstReceiptOnly(t *testing.T) {
	s := newState()
	assert.True(t, s.markNodeDefs(100))
	assert.False(t, s.markNodeDefs(100), "second receipt must not re-trigger the join ack")
	assert.Equal(t, 100, s.NodeDefSize())

	s.Reset()
	assert.True(t, s.markNodeDefs(50))
}

func TestBlockDataLastWriteWins(t *testing.T) {
	s := newState()
	pos := BlockPos{X: -1, Y: 2, Z: 3}

	_, ok := s.BlockData(pos)
	assert.False(t, ok)

	s.setBlockData(pos, []byte{1})
	s.setBlockData(pos, []byte{2})
	b, ok := s.BlockData(pos)
	assert.True(t, ok)
	assert.Equal(t, []byte{2}, b)
}
