// Package convert turns decoder output into playback formats: interleaved
// s16 stereo PCM for audio and padded RGB24 for video.
package convert

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/linuxmatters/avfeed/internal/media"
)

// ErrSampleFormat is returned for sample formats that cannot be converted.
var ErrSampleFormat = errors.New("convert: unsupported sample format")

// ToS16Interleaved converts a decoded audio frame of any supported format to
// interleaved signed 16-bit samples. Planar input is interleaved, 32-bit
// integers are truncated to their top 16 bits and floats are clamped to
// [-1, 1] before scaling.
func ToS16Interleaved(f *media.DecodedFrame) ([]int16, error) {
	if f == nil || f.Channels <= 0 || f.NbSamples <= 0 {
		return nil, nil
	}

	bps := f.Format.BytesPerSample()
	if bps == 0 {
		return nil, fmt.Errorf("%w: %v", ErrSampleFormat, f.Format)
	}

	planes := 1
	if f.Format.IsPlanar() {
		planes = f.Channels
	}
	if len(f.Planes) < planes {
		return nil, fmt.Errorf("convert: frame has %d planes, want %d", len(f.Planes), planes)
	}
	need := f.NbSamples * bps
	if !f.Format.IsPlanar() {
		need *= f.Channels
	}
	for p := 0; p < planes; p++ {
		if len(f.Planes[p]) < need {
			return nil, fmt.Errorf("convert: plane %d holds %d bytes, want %d", p, len(f.Planes[p]), need)
		}
	}

	out := make([]int16, f.NbSamples*f.Channels)
	for i := 0; i < f.NbSamples; i++ {
		for ch := 0; ch < f.Channels; ch++ {
			var b []byte
			if f.Format.IsPlanar() {
				off := i * bps
				b = f.Planes[ch][off : off+bps]
			} else {
				off := (i*f.Channels + ch) * bps
				b = f.Planes[0][off : off+bps]
			}
			out[i*f.Channels+ch] = sampleToS16(f.Format, b)
		}
	}
	return out, nil
}

func sampleToS16(format media.SampleFormat, b []byte) int16 {
	switch format {
	case media.SampleFmtS16, media.SampleFmtS16P:
		return int16(binary.LittleEndian.Uint16(b))
	case media.SampleFmtS32, media.SampleFmtS32P:
		return int16(int32(binary.LittleEndian.Uint32(b)) >> 16)
	case media.SampleFmtFlt, media.SampleFmtFltP:
		v := float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		return floatToS16(v)
	}
	return 0
}

func floatToS16(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int16(math.Round(v * math.MaxInt16))
}
