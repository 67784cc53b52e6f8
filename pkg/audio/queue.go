package audio

import (
	"context"
	"sync"

	"github.com/teslashibe/go-voiceagent/pkg/protocol"
)

// OverflowPolicy decides which packet is lost when a queue is full.
type OverflowPolicy int

const (
	// DropOldest evicts the head to make room for the new packet.
	DropOldest OverflowPolicy = iota
	// DropNewest rejects the new packet.
	DropNewest
)

func (p OverflowPolicy) String() string {
	if p == DropNewest {
		return "drop_newest"
	}
	return "drop_oldest"
}

type queuedPacket struct {
	pkt   *protocol.AudioStreamPacket
	epoch uint64
}

// PacketQueue is a bounded FIFO of audio packets. It never grows past its
// capacity; overflow is resolved by its policy and counted.
type PacketQueue struct {
	notify chan struct{}

	mu      sync.Mutex
	items   []queuedPacket
	cap     int
	policy  OverflowPolicy
	closed  bool
	dropped uint64
}

// NewPacketQueue creates a queue holding at most capacity packets.
func NewPacketQueue(capacity int, policy OverflowPolicy) *PacketQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &PacketQueue{
		notify: make(chan struct{}, 1),
		items:  make([]queuedPacket, 0, capacity),
		cap:    capacity,
		policy: policy,
	}
}

// Push appends a packet. It reports false when a packet was dropped, either
// the evicted head (DropOldest) or pkt itself (DropNewest).
func (q *PacketQueue) Push(pkt *protocol.AudioStreamPacket, epoch uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.dropped++
		return false
	}
	ok := true
	if len(q.items) >= q.cap {
		q.dropped++
		ok = false
		if q.policy == DropNewest {
			return false
		}
		q.items[0] = queuedPacket{}
		q.items = q.items[1:]
	}
	q.items = append(q.items, queuedPacket{pkt: pkt, epoch: epoch})
	q.signal()
	return ok
}

// signal must be called with q.mu held.
func (q *PacketQueue) signal() {
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop blocks until a packet is available, the context ends or the queue is closed.
func (q *PacketQueue) Pop(ctx context.Context) (*protocol.AudioStreamPacket, uint64, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			it := q.items[0]
			q.items[0] = queuedPacket{}
			q.items = q.items[1:]
			if len(q.items) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return it.pkt, it.epoch, nil
		}
		if q.closed {
			q.mu.Unlock()
			return nil, 0, ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-q.notify:
		}
	}
}

// Clear drops every queued packet and returns how many were removed.
func (q *PacketQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = q.items[:0]
	return n
}

// Len returns the number of queued packets.
func (q *PacketQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the capacity.
func (q *PacketQueue) Cap() int {
	return q.cap
}

// Dropped returns the number of packets lost to overflow.
func (q *PacketQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close wakes blocked readers. Remaining packets can still be popped.
func (q *PacketQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}
