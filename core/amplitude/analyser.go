package amplitude

import (
	"math"
	"sync"

	"github.com/koscakluka/ema-voice/core/audio"
	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	fftSize = 256

	// Magnitudes are mapped onto [0, 1] between these bounds, the same range
	// a browser analyser node uses for its byte frequency data.
	minDecibels = -100.0
	maxDecibels = -30.0
)

// analyser keeps the most recent fftSize samples and reduces them to a
// single loudness value.
type analyser struct {
	mu     sync.Mutex
	ring   []float64
	pos    int
	filled int

	fft      *fourier.FFT
	hann     []float64
	windowed []float64
	coeffs   []complex128
	decoded  []float64
}

func newAnalyser() *analyser {
	hann := make([]float64, fftSize)
	for i := range hann {
		hann[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}

	return &analyser{
		ring:     make([]float64, fftSize),
		fft:      fourier.NewFFT(fftSize),
		hann:     hann,
		windowed: make([]float64, fftSize),
	}
}

// Write feeds a linear16 PCM frame into the analysis window.
func (a *analyser) Write(frame []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.decoded = audio.DecodeLinear16(a.decoded[:0], frame)
	for _, sample := range a.decoded {
		a.ring[a.pos] = sample
		a.pos = (a.pos + 1) % fftSize
		if a.filled < fftSize {
			a.filled++
		}
	}
}

// Level returns the root mean square of the normalized frequency bin
// magnitudes of the current window.
func (a *analyser) Level() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.filled == 0 {
		return 0
	}

	// oldest sample first; missing history counts as silence
	for i := range fftSize {
		a.windowed[i] = a.ring[(a.pos+i)%fftSize] * a.hann[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.windowed)

	bins := fftSize / 2
	var sum float64
	for k := range bins {
		v := normalizeMagnitude(cmplxAbs(a.coeffs[k]) / fftSize)
		sum += v * v
	}

	return math.Sqrt(sum / float64(bins))
}

func (a *analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(a.ring)
	a.pos = 0
	a.filled = 0
}

func normalizeMagnitude(magnitude float64) float64 {
	if magnitude <= 0 {
		return 0
	}

	decibels := 20 * math.Log10(magnitude)
	v := (decibels - minDecibels) / (maxDecibels - minDecibels)
	return math.Max(0, math.Min(1, v))
}

func cmplxAbs(c complex128) float64 { return math.Hypot(real(c), imag(c)) }
