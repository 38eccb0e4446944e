package audio

import (
	"math"
	"sync"
)

// LevelStats summarises the loudness of everything written to a Levels.
type LevelStats struct {
	// Highest absolute sample value, 0..1
	Peak float64

	// RMS over all samples, 0..1
	RMS float64

	// Ratio of Peak to RMS, 0 for silence
	DynamicRange float64

	// Number of interleaved samples seen
	Samples int64
}

// Levels accumulates peak and RMS statistics over interleaved s16 audio.
// It is safe for concurrent use.
type Levels struct {
	mu         sync.Mutex
	peak       float64
	sumSquares float64
	count      int64
}

// Write adds interleaved samples to the running statistics.
func (l *Levels) Write(samples []int16) {
	if len(samples) == 0 {
		return
	}
	var peak, sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sumSquares += sum
	l.count += int64(len(samples))
	if peak > l.peak {
		l.peak = peak
	}
}

// Stats returns the statistics so far.
func (l *Levels) Stats() LevelStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := LevelStats{Peak: l.peak, Samples: l.count}
	if l.count > 0 {
		st.RMS = math.Sqrt(l.sumSquares / float64(l.count))
	}
	// Avoid division by zero
	if st.RMS > 0 {
		st.DynamicRange = st.Peak / st.RMS
	}
	return st
}

// Reset clears the statistics, used after a seek.
func (l *Levels) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.peak, l.sumSquares, l.count = 0, 0, 0
}
