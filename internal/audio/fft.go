package audio

import (
	"math"
	"sync"

	"github.com/argusdusty/gofft"
)

// DefaultFFTSize is the analysis window of a Spectrum.
const DefaultFFTSize = 2048

// ApplyHanning applies a Hanning window to the input data
func ApplyHanning(data []float64) []float64 {
	windowed := make([]float64, len(data))
	n := len(data)
	for i := range data {
		window := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		windowed[i] = data[i] * window
	}
	return windowed
}

// BinFFT bins FFT coefficients into len(out) bars with values in [0, 1].
// Only the lower three quarters of the positive spectrum are used, where
// most audio content lives.
func BinFFT(coeffs []complex128, out []float64) {
	halfSize := len(coeffs) / 2
	maxFreqBin := (halfSize * 3) / 4

	numBars := len(out)
	if numBars == 0 {
		return
	}
	binsPerBar := maxFreqBin / numBars
	if binsPerBar < 1 {
		binsPerBar = 1
	}

	// Normalise against a full-scale sine under a Hanning window
	fullScale := float64(len(coeffs)) / 4

	for bar := 0; bar < numBars; bar++ {
		start := bar * binsPerBar
		end := start + binsPerBar
		if end > maxFreqBin {
			end = maxFreqBin
		}

		var peak float64
		for i := start; i < end; i++ {
			magnitude := math.Hypot(real(coeffs[i]), imag(coeffs[i]))
			if magnitude > peak {
				peak = magnitude
			}
		}

		scaled := peak / fullScale
		// Noise gate, then log scale for a better visual distribution
		if scaled < 0.001 {
			out[bar] = 0
			continue
		}
		v := 1 + math.Log10(scaled)/3
		out[bar] = math.Max(0, math.Min(1, v))
	}
}

// Spectrum keeps a sliding window of the most recent mono samples and turns
// it into bar heights on demand. Writers and readers may run on different
// goroutines.
type Spectrum struct {
	mu     sync.Mutex
	window []float64
	filled int
	bars   []float64
}

// NewSpectrum creates a spectrum of numBars bars over fftSize samples.
// fftSize must be a power of two.
func NewSpectrum(numBars, fftSize int) *Spectrum {
	if fftSize <= 0 {
		fftSize = DefaultFFTSize
	}
	return &Spectrum{
		window: make([]float64, fftSize),
		bars:   make([]float64, numBars),
	}
}

// WriteInterleaved adds interleaved s16 samples, downmixed to mono.
func (s *Spectrum) WriteInterleaved(samples []int16, channels int) {
	if channels <= 0 {
		return
	}
	frames := len(samples) / channels
	if frames == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	size := len(s.window)
	if frames >= size {
		start := frames - size
		for i := 0; i < size; i++ {
			s.window[i] = mono(samples[(start+i)*channels:], channels)
		}
		s.filled = size
		return
	}

	copy(s.window, s.window[frames:])
	for i := 0; i < frames; i++ {
		s.window[size-frames+i] = mono(samples[i*channels:], channels)
	}
	s.filled = min(size, s.filled+frames)
}

func mono(frame []int16, channels int) float64 {
	var sum float64
	for ch := 0; ch < channels; ch++ {
		sum += float64(frame[ch])
	}
	return sum / float64(channels) / 32768.0
}

// Bars returns a copy of the current bar heights.
func (s *Spectrum) Bars() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filled < len(s.window) {
		clear(s.bars)
		return append([]float64(nil), s.bars...)
	}

	coeffs := gofft.Float64ToComplex128Array(ApplyHanning(s.window))
	if err := gofft.FFT(coeffs); err != nil {
		clear(s.bars)
	} else {
		BinFFT(coeffs, s.bars)
	}
	return append([]float64(nil), s.bars...)
}

// Reset clears the sample window, used after a seek.
func (s *Spectrum) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.window)
	s.filled = 0
}
