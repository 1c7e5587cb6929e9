package client

import (
	"sync"
	"time"

	"github.com/golang/glog"

	lnet "badc0de.net/pkg/go-luanti/net"
)

// splitTTL is how long an incomplete split series is kept before the
// opportunistic purge drops it.
const splitTTL = 30 * time.Second

type splitEntry struct {
	count     uint16
	chunks    map[uint16][]byte
	firstSeen time.Time
}

// splitPool reassembles inbound split packets. A series is keyed by its
// split sequence number; once all chunks arrived they are concatenated
// in index order and the series forgotten, so a late duplicate starts a
// fresh (and never completing) series instead of resurrecting the old
// one.
type splitPool struct {
	mu     sync.Mutex
	series map[uint16]*splitEntry
}

func newSplitPool() *splitPool {
	return &splitPool{series: make(map[uint16]*splitEntry)}
}

// add stores one chunk. When the chunk completes its series, the
// reassembled payload is returned and the series removed.
func (p *splitPool) add(sp *lnet.SplitPayload, now time.Time) ([]byte, bool) {
	if sp.Index >= sp.Count {
		glog.V(2).Infof("split %d: chunk index %d out of range (count %d)", sp.SplitSeq, sp.Index, sp.Count)
		return nil, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.series[sp.SplitSeq]
	if e == nil {
		e = &splitEntry{
			count:     sp.Count,
			chunks:    make(map[uint16][]byte),
			firstSeen: now,
		}
		p.series[sp.SplitSeq] = e
	}
	if sp.Index >= e.count {
		glog.V(2).Infof("split %d: chunk index %d out of range for series of %d", sp.SplitSeq, sp.Index, e.count)
		return nil, false
	}
	e.chunks[sp.Index] = append([]byte(nil), sp.Chunk...)

	if len(e.chunks) < int(e.count) {
		return nil, false
	}

	delete(p.series, sp.SplitSeq)
	var size int
	for _, c := range e.chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for i := uint16(0); i < e.count; i++ {
		data = append(data, e.chunks[i]...)
	}
	glog.V(3).Infof("split %d: reassembled %d bytes from %d chunks", sp.SplitSeq, len(data), e.count)
	return data, true
}

// purge drops series older than splitTTL, complete or not.
func (p *splitPool) purge(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for seq, e := range p.series {
		if now.Sub(e.firstSeen) > splitTTL {
			glog.V(2).Infof("split %d: purging stale series (%d/%d chunks)", seq, len(e.chunks), e.count)
			delete(p.series, seq)
		}
	}
}
