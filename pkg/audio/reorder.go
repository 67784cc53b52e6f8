package audio

import (
	"sync"

	"github.com/teslashibe/go-voiceagent/pkg/protocol"
)

// reorderer releases encoded packets strictly in sequence order, whatever
// order the encode workers finish in. A nil packet marks a frame that failed
// to encode so later frames are not held back.
type reorderer struct {
	mu      sync.Mutex
	epoch   uint64
	next    uint32
	pending map[uint32]*protocol.AudioStreamPacket
	release func(pkt *protocol.AudioStreamPacket, epoch uint64)
}

func newReorderer(release func(*protocol.AudioStreamPacket, uint64)) *reorderer {
	return &reorderer{
		pending: make(map[uint32]*protocol.AudioStreamPacket),
		release: release,
	}
}

// reset starts a new epoch at sequence 0. Results from older epochs are dropped.
func (r *reorderer) reset(epoch uint64) {
	r.mu.Lock()
	r.epoch = epoch
	r.next = 0
	clear(r.pending)
	r.mu.Unlock()
}

// complete records the result for seq and flushes every consecutive packet.
// It reports false when the result belonged to a stale epoch.
func (r *reorderer) complete(epoch uint64, seq uint32, pkt *protocol.AudioStreamPacket) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch != r.epoch || seq < r.next {
		return false
	}
	r.pending[seq] = pkt
	for {
		p, ok := r.pending[r.next]
		if !ok {
			return true
		}
		delete(r.pending, r.next)
		r.next++
		if p != nil {
			r.release(p, r.epoch)
		}
	}
}

func (r *reorderer) waiting() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
