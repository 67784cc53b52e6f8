package protocol

// AudioStreamPacket is one compressed audio frame. Packets are consumed
// exactly once, either by the outbound queue or by the playback decoder.
type AudioStreamPacket struct {
	SessionID     string
	Sequence      uint32
	Timestamp     uint32 // milliseconds since the start of the stream
	SampleRate    int
	FrameDuration int // milliseconds
	Payload       []byte
}
