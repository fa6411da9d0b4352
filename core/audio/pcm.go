package audio

import (
	"encoding/binary"
	"math"
)

// DecodeLinear16 appends the samples of a little-endian signed 16-bit PCM
// frame to dst, normalized to [-1, 1]. A trailing odd byte is ignored.
func DecodeLinear16(dst []float64, frame []byte) []float64 {
	for i := 0; i+1 < len(frame); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(frame[i:]))
		dst = append(dst, float64(sample)/32768.0)
	}
	return dst
}

// EncodeLinear16 encodes normalized samples as little-endian signed 16-bit PCM.
func EncodeLinear16(samples []float64) []byte {
	frame := make([]byte, 2*len(samples))
	for i, sample := range samples {
		clamped := math.Max(-1, math.Min(1, sample))
		binary.LittleEndian.PutUint16(frame[2*i:], uint16(int16(math.Round(clamped*32767))))
	}
	return frame
}
