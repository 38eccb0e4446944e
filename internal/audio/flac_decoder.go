package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"

	"github.com/linuxmatters/avfeed/internal/media"
)

// FLACContainer implements media.Container for FLAC files. Each packet is one
// decoded FLAC frame as planar 32-bit samples, left-aligned so every bit
// depth shares the same scale.
type FLACContainer struct {
	stream   *flac.Stream
	file     *os.File
	info     media.StreamInfo
	bps      int
	position int64 // first sample of the next frame
}

// OpenFLAC opens a FLAC file with seek support.
func OpenFLAC(filename string) (*FLACContainer, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	// Parse FLAC stream - reads signature and StreamInfo block
	stream, err := flac.NewSeek(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create FLAC decoder: %w", err)
	}

	rate := int(stream.Info.SampleRate)
	channels := int(stream.Info.NChannels)
	if rate <= 0 || channels <= 0 {
		stream.Close()
		f.Close()
		return nil, fmt.Errorf("invalid FLAC stream: %d channels at %d Hz", channels, rate)
	}

	return &FLACContainer{
		stream: stream,
		file:   f,
		info: media.StreamInfo{
			Index:        0,
			Kind:         media.KindAudio,
			Codec:        CodecPCMS32Planar,
			TimeBase:     media.Rational{Num: 1, Den: int64(rate)},
			Duration:     int64(stream.Info.NSamples),
			SampleRate:   rate,
			Channels:     channels,
			SampleFormat: media.SampleFmtS32P,
		},
		bps: int(stream.Info.BitsPerSample),
	}, nil
}

// Format implements media.Container.
func (c *FLACContainer) Format() string { return "flac" }

// Streams implements media.Container.
func (c *FLACContainer) Streams() []media.StreamInfo { return []media.StreamInfo{c.info} }

// ReadPacket decodes the next FLAC frame.
func (c *FLACContainer) ReadPacket() (*media.Packet, error) {
	frame, err := c.stream.ParseNext()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to parse FLAC frame: %w", err)
	}
	if len(frame.Subframes) == 0 {
		return nil, fmt.Errorf("FLAC frame has no subframes")
	}

	bps := int(frame.BitsPerSample)
	if bps == 0 {
		bps = c.bps
	}
	shift := uint(32 - bps)

	// FLAC frames contain one subframe per channel
	n := len(frame.Subframes[0].Samples)
	channels := len(frame.Subframes)
	data := make([]byte, n*4*channels)
	for ch, sub := range frame.Subframes {
		if len(sub.Samples) != n {
			return nil, fmt.Errorf("FLAC subframe %d holds %d samples, want %d", ch, len(sub.Samples), n)
		}
		plane := data[ch*n*4 : (ch+1)*n*4]
		for i, s := range sub.Samples {
			binary.LittleEndian.PutUint32(plane[i*4:], uint32(s<<shift))
		}
	}

	pkt := &media.Packet{
		StreamIndex: 0,
		PTS:         c.position,
		Keyframe:    true,
		Data:        data,
	}
	c.position += int64(n)
	return pkt, nil
}

// Seek moves to the frame containing the sample at target microseconds.
// FLAC can only resume at frame boundaries, so the result always lands at or
// before the target regardless of flags.
func (c *FLACContainer) Seek(target int64, _ media.SeekFlags) error {
	sample := target * int64(c.info.SampleRate) / media.TimeBase
	if sample < 0 {
		sample = 0
	}
	if c.info.Duration > 0 && sample >= c.info.Duration {
		sample = c.info.Duration - 1
	}
	actual, err := c.stream.Seek(uint64(sample))
	if err != nil {
		return fmt.Errorf("failed to seek FLAC stream: %w", err)
	}
	c.position = int64(actual)
	return nil
}

// Duration implements media.Container.
func (c *FLACContainer) Duration() int64 {
	return c.info.Duration * media.TimeBase / int64(c.info.SampleRate)
}

// StartTime implements media.Container.
func (c *FLACContainer) StartTime() int64 { return 0 }

// Close closes the decoder and releases resources
func (c *FLACContainer) Close() error {
	if c.stream != nil {
		c.stream.Close()
	}
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
