// Package media defines the data model shared by the container backends, the
// codecs, the format converters and the playback session.
package media

import (
	"errors"
	"image"
	"math"
)

// TimeBase is the number of container-native time units per second. Container
// durations, start times and seek targets are expressed in these units.
const TimeBase = 1_000_000

// NoPTS marks a packet or frame without a presentation timestamp.
const NoPTS int64 = math.MinInt64

// ErrStreamOutOfRange is returned when a stream index does not exist.
var ErrStreamOutOfRange = errors.New("media: stream index out of range")

// Kind is the media type of an elementary stream.
type Kind int

const (
	KindUnknown Kind = iota
	KindAudio
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Rational is a fraction used for stream time bases.
type Rational struct {
	Num int64
	Den int64
}

// Float returns the value of the fraction, or 0 for a zero denominator.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// StreamInfo describes one elementary stream inside a container.
type StreamInfo struct {
	Index    int
	Kind     Kind
	Codec    string
	TimeBase Rational
	// Duration in TimeBase units of the stream, 0 when unknown.
	Duration int64

	// Audio
	SampleRate   int
	Channels     int
	SampleFormat SampleFormat

	// Video
	Width  int
	Height int
}

// Seconds converts a timestamp in the stream time base to seconds.
func (s StreamInfo) Seconds(ts int64) float64 {
	return float64(ts) * s.TimeBase.Float()
}

// Packet is one container-level chunk of encoded bytes for a single stream.
type Packet struct {
	StreamIndex int
	PTS         int64
	Keyframe    bool
	Data        []byte
}

// SeekFlags modify how a container resolves a seek target.
type SeekFlags int

const (
	// SeekBackward resolves to the closest keyframe at or before the target.
	// Without it the closest keyframe at or after the target is used.
	SeekBackward SeekFlags = 1 << iota
)

// Container is an opened media file that yields packets.
type Container interface {
	// Format is the short name of the container format, e.g. "wav".
	Format() string
	Streams() []StreamInfo
	// ReadPacket returns the next packet or io.EOF at the end of the stream.
	ReadPacket() (*Packet, error)
	// Seek repositions all streams to target, given in TimeBase units.
	Seek(target int64, flags SeekFlags) error
	// Duration of the whole container in TimeBase units, 0 when unknown.
	Duration() int64
	// StartTime of the container in TimeBase units.
	StartTime() int64
	Close() error
}

// Decoder turns packet bytes into decoded frames.
//
// Decode consumes a prefix of data (the unconsumed remainder of pkt) and
// returns the number of bytes consumed together with a finished frame, if
// the decoder produced one. A decoder may consume bytes without producing a
// frame while it buffers. Returning zero consumed bytes means the remainder
// cannot be decoded any further.
type Decoder interface {
	Decode(pkt *Packet, data []byte) (int, *DecodedFrame, error)
	// Flush discards any internal buffering, used after a seek.
	Flush()
	Close() error
}

// DecodedFrame is the native output of a Decoder, before format conversion.
type DecodedFrame struct {
	PTS int64

	// Audio: one plane per channel when Format is planar, otherwise a
	// single interleaved plane.
	Format     SampleFormat
	Channels   int
	SampleRate int
	NbSamples  int
	Planes     [][]byte

	// Video
	Image image.Image
}

// BestStream returns the index of the most suitable stream of the given kind:
// the largest picture for video, the most channels then the highest rate for
// audio. Ties resolve to the lowest index.
func BestStream(streams []StreamInfo, kind Kind) (int, bool) {
	best := -1
	var bestScore int64
	for i, s := range streams {
		if s.Kind != kind {
			continue
		}
		var score int64
		switch kind {
		case KindVideo:
			score = int64(s.Width) * int64(s.Height)
		case KindAudio:
			score = int64(s.Channels)<<32 | int64(s.SampleRate)
		}
		if best < 0 || score > bestScore {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return -1, false
	}
	return streams[best].Index, true
}
