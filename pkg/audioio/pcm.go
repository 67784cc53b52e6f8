package audioio

import (
	"encoding/binary"
	"math"
)

// DefaultVolume is the speaker volume used until a setting is applied.
const DefaultVolume = 70

// Resample converts mono PCM between sample rates by linear interpolation.
// The output holds len(samples)*toRate/fromRate samples.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}
	n := len(samples) * toRate / fromRate
	out := make([]int16, n)
	last := len(samples) - 1
	for i := range out {
		// Source position in 1/toRate units.
		pos := i * fromRate
		idx, rem := pos/toRate, pos%toRate
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		a, b := int64(samples[idx]), int64(samples[idx+1])
		out[i] = int16(a + (b-a)*int64(rem)/int64(toRate))
	}
	return out
}

// BytesToSamples decodes little-endian PCM16. A trailing odd byte is ignored.
func BytesToSamples(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out
}

// SamplesToBytes encodes samples as little-endian PCM16.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out
}

// Downmix averages interleaved frames of the given channel count to mono.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		var sum int32
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += int32(s)
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// StereoToMono averages interleaved stereo samples.
func StereoToMono(samples []int16) []int16 {
	return Downmix(samples, 2)
}

// ApplyVolume returns samples scaled to percent, clamped to 0-100.
func ApplyVolume(samples []int16, percent int) []int16 {
	percent = clampVolume(percent)
	if percent == 100 {
		return samples
	}
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = int16(int32(s) * int32(percent) / 100)
	}
	return out
}

func clampVolume(percent int) int {
	return min(max(percent, 0), 100)
}

// CalculateRMS returns the RMS level of samples relative to full scale.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / -math.MinInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
