package convert

import (
	"fmt"
	"math"

	"github.com/gopxl/beep/v2"
)

// ResampleQuality is the beep sinc window half-width used for rate
// conversion.
const ResampleQuality = 4

// beep pulls its source in chunks of this many frames and treats a short
// read as the end of the stream, so Process keeps two chunks plus the sinc
// window buffered ahead of the output.
const (
	beepChunk      = 512
	resampleMargin = 2*beepChunk + ResampleQuality
)

// Resampler converts interleaved s16 audio between channel layouts and sample
// rates. Rate conversion runs through a beep sinc resampler fed from an
// internal queue, so consecutive blocks join without clicks. Output lags the
// input by Delay; Drain flushes the tail at end of stream and Reset drops it
// after a seek.
type Resampler struct {
	inChannels  int
	outChannels int
	inRate      int
	outRate     int

	src      *frameQueue
	rs       *beep.Resampler
	pushed   int64 // input frames queued since Reset
	produced int64 // output frames emitted since Reset
	scratch  [][2]float64
}

// NewResampler builds a resampler producing outChannels at outRate from
// inChannels at inRate. Only mono and stereo outputs are supported.
func NewResampler(outChannels, inChannels, outRate, inRate int) (*Resampler, error) {
	if outChannels < 1 || outChannels > 2 {
		return nil, fmt.Errorf("convert: unsupported output channel count %d", outChannels)
	}
	if inChannels < 1 {
		return nil, fmt.Errorf("convert: invalid input channel count %d", inChannels)
	}
	if outRate <= 0 || inRate <= 0 {
		return nil, fmt.Errorf("convert: invalid sample rates %d -> %d", inRate, outRate)
	}
	r := &Resampler{
		inChannels:  inChannels,
		outChannels: outChannels,
		inRate:      inRate,
		outRate:     outRate,
	}
	r.Reset()
	return r, nil
}

// OutChannels returns the output channel count.
func (r *Resampler) OutChannels() int { return r.outChannels }

// InChannels returns the input channel count.
func (r *Resampler) InChannels() int { return r.inChannels }

// InRate returns the input sample rate.
func (r *Resampler) InRate() int { return r.inRate }

// Reset drops buffered input and restarts the interpolation.
func (r *Resampler) Reset() {
	r.pushed, r.produced = 0, 0
	if r.inRate == r.outRate {
		return
	}
	r.src = &frameQueue{}
	r.rs = beep.Resample(ResampleQuality, beep.SampleRate(r.inRate), beep.SampleRate(r.outRate), r.src)
}

// Delay returns how far, in seconds, the next output frame lags the end of
// the input queued so far.
func (r *Resampler) Delay() float64 {
	if r.inRate == r.outRate {
		return 0
	}
	consumed := float64(r.produced) * float64(r.inRate) / float64(r.outRate)
	return (float64(r.pushed) - consumed) / float64(r.inRate)
}

// Process converts interleaved input frames and returns interleaved output.
// The output length is always a whole number of output frames.
func (r *Resampler) Process(in []int16) []int16 {
	frames := len(in) / r.inChannels
	if frames == 0 {
		return nil
	}

	mixed := r.mix(in, frames)

	if r.inRate == r.outRate {
		out := make([]int16, len(mixed))
		for i, v := range mixed {
			out[i] = clampS16(v)
		}
		return out
	}

	r.src.push(mixed, r.outChannels)
	r.pushed += int64(frames)

	ready := int64(float64(r.pushed-resampleMargin)*float64(r.outRate)/float64(r.inRate)) - r.produced
	if ready <= 0 {
		return nil
	}
	return r.pull(int(ready))
}

// Drain returns the output still held back for the queued input and resets
// the resampler.
func (r *Resampler) Drain() []int16 {
	if r.inRate == r.outRate || r.pushed == 0 {
		r.Reset()
		return nil
	}
	r.src.ended = true
	want := int64(math.Ceil(float64(r.pushed)*float64(r.outRate)/float64(r.inRate))) - r.produced
	var out []int16
	if want > 0 {
		out = r.pull(int(want))
	}
	r.Reset()
	return out
}

// pull reads up to n frames from the beep resampler.
func (r *Resampler) pull(n int) []int16 {
	if cap(r.scratch) < n {
		r.scratch = make([][2]float64, n)
	}
	buf := r.scratch[:n]
	got := 0
	for got < n {
		k, ok := r.rs.Stream(buf[got:])
		got += k
		if !ok || k == 0 {
			break
		}
	}
	r.produced += int64(got)

	oc := r.outChannels
	out := make([]int16, got*oc)
	for i, fr := range buf[:got] {
		for ch := 0; ch < oc; ch++ {
			out[i*oc+ch] = clampS16(fr[ch] * 32768)
		}
	}
	return out
}

// frameQueue is the beep.Streamer feeding the resampler. Samples are
// normalised to [-1, 1]; mono is carried in both slots.
type frameQueue struct {
	buf   [][2]float64
	ended bool
}

func (q *frameQueue) push(mixed []float64, channels int) {
	for i := 0; i+channels <= len(mixed); i += channels {
		l := mixed[i] / 32768
		rr := l
		if channels == 2 {
			rr = mixed[i+1] / 32768
		}
		q.buf = append(q.buf, [2]float64{l, rr})
	}
}

func (q *frameQueue) Stream(samples [][2]float64) (int, bool) {
	n := copy(samples, q.buf)
	q.buf = append(q.buf[:0], q.buf[n:]...)
	if n == 0 && q.ended {
		return 0, false
	}
	return n, true
}

func (q *frameQueue) Err() error { return nil }

// mix maps input channels onto the output layout. Mono is duplicated to
// stereo, stereo passes through, and wider layouts fold even channels left
// and odd channels right.
func (r *Resampler) mix(in []int16, frames int) []float64 {
	ic, oc := r.inChannels, r.outChannels
	out := make([]float64, frames*oc)
	for f := 0; f < frames; f++ {
		src := in[f*ic : (f+1)*ic]
		dst := out[f*oc : (f+1)*oc]
		switch {
		case oc == 1:
			var sum float64
			for _, s := range src {
				sum += float64(s)
			}
			dst[0] = sum / float64(ic)
		case ic == 1:
			dst[0] = float64(src[0])
			dst[1] = float64(src[0])
		case ic == 2:
			dst[0] = float64(src[0])
			dst[1] = float64(src[1])
		default:
			var l, rr float64
			var nl, nr int
			for i, s := range src {
				if i%2 == 0 {
					l += float64(s)
					nl++
				} else {
					rr += float64(s)
					nr++
				}
			}
			dst[0] = l / float64(nl)
			dst[1] = rr / float64(nr)
		}
	}
	return out
}

func clampS16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
