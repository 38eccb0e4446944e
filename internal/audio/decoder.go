// Package audio implements the audio container backends (WAV, MP3, FLAC), the
// PCM packet decoder they feed, and a spectrum analyser for live display.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/linuxmatters/avfeed/internal/media"
)

// PCM codec names carried in media.StreamInfo.Codec.
//
// MP3 and FLAC decode inside their container readers, so their packets are
// already PCM. Planar packets store each channel's samples contiguously,
// channel after channel.
const (
	CodecPCMU8        = "pcm_u8"
	CodecPCMS16LE     = "pcm_s16le"
	CodecPCMS24LE     = "pcm_s24le"
	CodecPCMS32LE     = "pcm_s32le"
	CodecPCMF32LE     = "pcm_f32le"
	CodecPCMS32Planar = "pcm_s32le_planar"
)

// DefaultMaxFrames bounds the sample frames produced per Decode call.
const DefaultMaxFrames = 1024

// ErrUnsupportedPCM is returned for a PCM codec the decoder does not know.
var ErrUnsupportedPCM = errors.New("audio: unsupported PCM codec")

// IsPCM reports whether codec is one of the PCM codecs above.
func IsPCM(codec string) bool {
	switch codec {
	case CodecPCMU8, CodecPCMS16LE, CodecPCMS24LE, CodecPCMS32LE, CodecPCMF32LE, CodecPCMS32Planar:
		return true
	}
	return false
}

// PCMDecoder turns PCM packets into decoded frames.
//
// Interleaved packets are consumed in spans of at most maxFrames, so one
// packet may take several Decode calls. Only the first span of a packet
// carries the packet PTS.
type PCMDecoder struct {
	codec      string
	channels   int
	sampleRate int
	inBytes    int // bytes per input sample
	maxFrames  int
}

// NewPCMDecoder creates a decoder for the given stream.
func NewPCMDecoder(info media.StreamInfo, maxFrames int) (*PCMDecoder, error) {
	if info.Channels <= 0 || info.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid PCM stream: %d channels at %d Hz", info.Channels, info.SampleRate)
	}
	var inBytes int
	switch info.Codec {
	case CodecPCMU8:
		inBytes = 1
	case CodecPCMS16LE:
		inBytes = 2
	case CodecPCMS24LE:
		inBytes = 3
	case CodecPCMS32LE, CodecPCMF32LE, CodecPCMS32Planar:
		inBytes = 4
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPCM, info.Codec)
	}
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	return &PCMDecoder{
		codec:      info.Codec,
		channels:   info.Channels,
		sampleRate: info.SampleRate,
		inBytes:    inBytes,
		maxFrames:  maxFrames,
	}, nil
}

// Decode implements media.Decoder.
func (d *PCMDecoder) Decode(pkt *media.Packet, data []byte) (int, *media.DecodedFrame, error) {
	pts := media.NoPTS
	if len(data) == len(pkt.Data) {
		pts = pkt.PTS
	}

	if d.codec == CodecPCMS32Planar {
		return d.decodePlanar(pts, data)
	}

	frameBytes := d.inBytes * d.channels
	n := len(data) / frameBytes
	if n == 0 {
		return 0, nil, nil
	}
	if n > d.maxFrames {
		n = d.maxFrames
	}
	consumed := n * frameBytes
	src := data[:consumed]

	frame := &media.DecodedFrame{
		PTS:        pts,
		Channels:   d.channels,
		SampleRate: d.sampleRate,
		NbSamples:  n,
	}

	switch d.codec {
	case CodecPCMS16LE:
		frame.Format = media.SampleFmtS16
		frame.Planes = [][]byte{append([]byte(nil), src...)}
	case CodecPCMS32LE:
		frame.Format = media.SampleFmtS32
		frame.Planes = [][]byte{append([]byte(nil), src...)}
	case CodecPCMF32LE:
		frame.Format = media.SampleFmtFlt
		frame.Planes = [][]byte{append([]byte(nil), src...)}
	case CodecPCMU8:
		out := make([]byte, len(src)*2)
		for i, b := range src {
			binary.LittleEndian.PutUint16(out[i*2:], uint16((int16(b)-128)<<8))
		}
		frame.Format = media.SampleFmtS16
		frame.Planes = [][]byte{out}
	case CodecPCMS24LE:
		out := make([]byte, len(src)/3*4)
		for i := 0; i < len(src)/3; i++ {
			// Left-align the 24 bits in a 32-bit word.
			out[i*4] = 0
			out[i*4+1] = src[i*3]
			out[i*4+2] = src[i*3+1]
			out[i*4+3] = src[i*3+2]
		}
		frame.Format = media.SampleFmtS32
		frame.Planes = [][]byte{out}
	}
	return consumed, frame, nil
}

func (d *PCMDecoder) decodePlanar(pts int64, data []byte) (int, *media.DecodedFrame, error) {
	planeBytes := len(data) / d.channels
	planeBytes -= planeBytes % d.inBytes
	if planeBytes == 0 {
		return 0, nil, nil
	}
	if len(data) != planeBytes*d.channels {
		return 0, nil, fmt.Errorf("audio: planar packet of %d bytes is not %d equal planes", len(data), d.channels)
	}
	planes := make([][]byte, d.channels)
	for ch := range planes {
		planes[ch] = append([]byte(nil), data[ch*planeBytes:(ch+1)*planeBytes]...)
	}
	return len(data), &media.DecodedFrame{
		PTS:        pts,
		Format:     media.SampleFmtS32P,
		Channels:   d.channels,
		SampleRate: d.sampleRate,
		NbSamples:  planeBytes / d.inBytes,
		Planes:     planes,
	}, nil
}

// Flush implements media.Decoder. PCM keeps no state between packets.
func (d *PCMDecoder) Flush() {}

// Close implements media.Decoder.
func (d *PCMDecoder) Close() error { return nil }
