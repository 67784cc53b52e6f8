package transport

import (
	"fmt"
	"hash/fnv"

	"github.com/pion/rtp"

	"github.com/teslashibe/go-voiceagent/pkg/protocol"
)

// opusPayloadType is the dynamic RTP payload type used for Opus.
const opusPayloadType = 111

// framer converts audio packets to and from binary websocket frames.
// Version 1 frames are the bare Opus payload; sequence and timestamp are
// implied by arrival order. Version 2 frames are RTP packets.
type framer struct {
	version int
	ssrc    uint32
	rx      protocol.AudioParams

	rxSeq    uint32
	lastSeq  uint16
	cycles   uint32
	haveLast bool
}

func newFramer(version int, sessionID string, rx protocol.AudioParams) *framer {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return &framer{version: version, ssrc: h.Sum32(), rx: rx}
}

func (f *framer) marshal(pkt *protocol.AudioStreamPacket) ([]byte, error) {
	if f.version == 1 {
		return pkt.Payload, nil
	}
	p := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadType,
			SequenceNumber: uint16(pkt.Sequence),
			Timestamp:      pkt.Timestamp,
			SSRC:           f.ssrc,
		},
		Payload: pkt.Payload,
	}
	return p.Marshal()
}

// unmarshal is called from the read goroutine only.
func (f *framer) unmarshal(sessionID string, data []byte) (*protocol.AudioStreamPacket, error) {
	pkt := &protocol.AudioStreamPacket{
		SessionID:     sessionID,
		SampleRate:    f.rx.SampleRate,
		FrameDuration: f.rx.FrameDuration,
	}
	if f.version == 1 {
		pkt.Sequence = f.rxSeq
		pkt.Timestamp = f.rxSeq * uint32(f.rx.FrameDuration)
		pkt.Payload = append([]byte(nil), data...)
		f.rxSeq++
		return pkt, nil
	}

	var p rtp.Packet
	if err := p.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("transport: bad rtp packet: %w", err)
	}
	pkt.Sequence = f.extend(p.SequenceNumber)
	pkt.Timestamp = p.Timestamp
	pkt.Payload = p.Payload
	return pkt, nil
}

// extend widens a 16-bit RTP sequence number, counting wrap-arounds.
func (f *framer) extend(seq uint16) uint32 {
	if f.haveLast && seq < f.lastSeq && f.lastSeq-seq > 1<<15 {
		f.cycles++
	}
	f.lastSeq = seq
	f.haveLast = true
	return f.cycles<<16 | uint32(seq)
}
