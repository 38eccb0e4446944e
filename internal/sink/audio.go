package sink

import (
	"math"
	"sync/atomic"

	"github.com/linuxmatters/avfeed/internal/media"
)

// DefaultAudioBlocks is the default AudioQueue capacity.
const DefaultAudioBlocks = 64

// AudioQueue buffers interleaved s16 sample blocks for an audio device.
//
// Besides the queue it carries the stream parameters a session publishes at
// open time and a consumer-driven seek-to-start flag.
type AudioQueue struct {
	*Queue[media.SampleBlock]

	wantSeek         atomic.Bool
	samplesPerSecond atomic.Int64
	durationBits     atomic.Uint64
}

// NewAudioQueue creates an audio queue holding at most blocks sample blocks.
func NewAudioQueue(blocks int) *AudioQueue {
	if blocks <= 0 {
		blocks = DefaultAudioBlocks
	}
	return &AudioQueue{Queue: NewQueue[media.SampleBlock](blocks)}
}

// RequestSeek asks the producing session to restart from the beginning.
func (a *AudioQueue) RequestSeek() {
	a.wantSeek.Store(true)
}

// WantSeek reports whether a restart was requested and clears the request.
func (a *AudioQueue) WantSeek() bool {
	return a.wantSeek.Swap(false)
}

// SetSamplesPerSecond records the output sample count per second across all
// channels (rate * channels).
func (a *AudioQueue) SetSamplesPerSecond(n int) {
	a.samplesPerSecond.Store(int64(n))
}

// SamplesPerSecond returns the value recorded by SetSamplesPerSecond.
func (a *AudioQueue) SamplesPerSecond() int {
	return int(a.samplesPerSecond.Load())
}

// SetDuration records the stream duration in seconds.
func (a *AudioQueue) SetDuration(seconds float64) {
	a.durationBits.Store(math.Float64bits(seconds))
}

// Duration returns the value recorded by SetDuration.
func (a *AudioQueue) Duration() float64 {
	return math.Float64frombits(a.durationBits.Load())
}
