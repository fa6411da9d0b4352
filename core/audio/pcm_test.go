package audio

import (
	"math"
	"testing"
	"time"
)

func TestDecodeLinear16Normalizes(t *testing.T) {
	frame := []byte{
		0x00, 0x00, // 0
		0x00, 0x80, // -32768
		0xff, 0x7f, // 32767
		0x01, // dangling byte
	}

	samples := DecodeLinear16(nil, frame)
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	if samples[0] != 0 {
		t.Fatalf("expected silence sample 0, got %f", samples[0])
	}
	if samples[1] != -1 {
		t.Fatalf("expected minimum sample -1, got %f", samples[1])
	}
	if math.Abs(samples[2]-1) > 1e-4 {
		t.Fatalf("expected maximum sample close to 1, got %f", samples[2])
	}
}

func TestEncodeLinear16RoundTripsWithinQuantization(t *testing.T) {
	input := []float64{0, 0.5, -0.5, 2, -2}
	decoded := DecodeLinear16(nil, EncodeLinear16(input))

	expected := []float64{0, 0.5, -0.5, 1, -1}
	for i := range expected {
		if math.Abs(decoded[i]-expected[i]) > 1e-3 {
			t.Fatalf("sample %d: expected %f, got %f", i, expected[i], decoded[i])
		}
	}
}

func TestEncodingInfoBytesFor(t *testing.T) {
	info := GetDefaultEncodingInfo()
	if got, want := info.BytesFor(50*time.Millisecond), 1600; got != want {
		t.Fatalf("expected %d bytes, got %d", want, got)
	}
	if got := (EncodingInfo{}).BytesFor(time.Second); got != 0 {
		t.Fatalf("expected zero encoding to need 0 bytes, got %d", got)
	}
}
