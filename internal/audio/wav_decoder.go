package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"

	"github.com/linuxmatters/avfeed/internal/media"
)

// ErrInvalidWAV is returned when a file is not a readable WAV file.
var ErrInvalidWAV = errors.New("audio: invalid WAV file")

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3

	// wavPacketFrames is the number of sample frames per WAV packet.
	wavPacketFrames = 4096
)

// WAVContainer implements media.Container for RIFF/WAVE files with PCM or
// IEEE float data. Packets are raw slices of the data chunk.
type WAVContainer struct {
	file   *os.File
	stream media.StreamInfo

	dataStart  int64
	blockAlign int
	numFrames  int64
	position   int64 // next frame to read
}

// OpenWAV opens a WAV file and positions it at the first sample.
func OpenWAV(filename string) (*WAVContainer, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	c, err := newWAVContainer(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func newWAVContainer(f *os.File) (*WAVContainer, error) {
	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	// Get format info without reading any samples
	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%w: failed to seek to PCM data: %v", ErrInvalidWAV, err)
	}
	dataStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("failed to locate PCM data: %w", err)
	}

	channels := int(decoder.NumChans)
	bitDepth := int(decoder.BitDepth)
	sampleRate := int(decoder.SampleRate)
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrInvalidWAV, channels, sampleRate)
	}

	codec, err := wavCodec(int(decoder.WavAudioFormat), bitDepth)
	if err != nil {
		return nil, err
	}

	blockAlign := channels * bitDepth / 8
	numFrames := int64(decoder.PCMLen()) / int64(blockAlign)

	return &WAVContainer{
		file: f,
		stream: media.StreamInfo{
			Index:        0,
			Kind:         media.KindAudio,
			Codec:        codec,
			TimeBase:     media.Rational{Num: 1, Den: int64(sampleRate)},
			Duration:     numFrames,
			SampleRate:   sampleRate,
			Channels:     channels,
			SampleFormat: sampleFormatFor(codec),
		},
		dataStart:  dataStart,
		blockAlign: blockAlign,
		numFrames:  numFrames,
	}, nil
}

func wavCodec(format, bitDepth int) (string, error) {
	switch {
	case format == wavFormatFloat && bitDepth == 32:
		return CodecPCMF32LE, nil
	case format == wavFormatPCM && bitDepth == 8:
		return CodecPCMU8, nil
	case format == wavFormatPCM && bitDepth == 16:
		return CodecPCMS16LE, nil
	case format == wavFormatPCM && bitDepth == 24:
		return CodecPCMS24LE, nil
	case format == wavFormatPCM && bitDepth == 32:
		return CodecPCMS32LE, nil
	}
	return "", fmt.Errorf("%w: format %d at %d bits", ErrInvalidWAV, format, bitDepth)
}

// sampleFormatFor returns the decoded sample format of a PCM codec.
func sampleFormatFor(codec string) media.SampleFormat {
	switch codec {
	case CodecPCMU8, CodecPCMS16LE:
		return media.SampleFmtS16
	case CodecPCMS24LE, CodecPCMS32LE:
		return media.SampleFmtS32
	case CodecPCMF32LE:
		return media.SampleFmtFlt
	case CodecPCMS32Planar:
		return media.SampleFmtS32P
	}
	return media.SampleFmtNone
}

// Format implements media.Container.
func (c *WAVContainer) Format() string { return "wav" }

// Streams implements media.Container.
func (c *WAVContainer) Streams() []media.StreamInfo { return []media.StreamInfo{c.stream} }

// ReadPacket returns the next block of up to wavPacketFrames sample frames.
func (c *WAVContainer) ReadPacket() (*media.Packet, error) {
	remaining := c.numFrames - c.position
	if remaining <= 0 {
		return nil, io.EOF
	}
	frames := int64(wavPacketFrames)
	if frames > remaining {
		frames = remaining
	}

	buf := make([]byte, frames*int64(c.blockAlign))
	n, err := io.ReadFull(c.file, buf)
	if err == io.ErrUnexpectedEOF || (err == io.EOF && n > 0) {
		// Truncated data chunk: hand out the whole frames that exist.
		err = nil
		frames = int64(n / c.blockAlign)
		buf = buf[:frames*int64(c.blockAlign)]
		c.numFrames = c.position + frames
	}
	if err != nil {
		return nil, err
	}
	if frames == 0 {
		return nil, io.EOF
	}

	pkt := &media.Packet{
		StreamIndex: 0,
		PTS:         c.position,
		Keyframe:    true,
		Data:        buf,
	}
	c.position += frames
	return pkt, nil
}

// Seek moves to the sample frame at target microseconds. Every PCM frame is
// a sync point, so flags are ignored.
func (c *WAVContainer) Seek(target int64, _ media.SeekFlags) error {
	frame := target * int64(c.stream.SampleRate) / media.TimeBase
	if frame < 0 {
		frame = 0
	}
	if frame > c.numFrames {
		frame = c.numFrames
	}
	if _, err := c.file.Seek(c.dataStart+frame*int64(c.blockAlign), io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek WAV data: %w", err)
	}
	c.position = frame
	return nil
}

// Duration implements media.Container.
func (c *WAVContainer) Duration() int64 {
	return c.numFrames * media.TimeBase / int64(c.stream.SampleRate)
}

// StartTime implements media.Container.
func (c *WAVContainer) StartTime() int64 { return 0 }

// Close closes the decoder and releases resources
func (c *WAVContainer) Close() error {
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
