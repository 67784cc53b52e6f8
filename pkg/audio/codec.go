package audio

// Encoder compresses one PCM16 frame.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// EncoderFactory creates an independent encoder instance.
type EncoderFactory func() (Encoder, error)

// Decoder decompresses packets of a single stream, in order.
type Decoder interface {
	Decode(packet []byte) ([]int16, error)
	Reset() error
	SampleRate() int
}
