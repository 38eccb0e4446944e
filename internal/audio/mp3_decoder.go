package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"

	"github.com/linuxmatters/avfeed/internal/media"
)

const (
	// go-mp3 always outputs interleaved stereo s16: 4 bytes per frame
	mp3FrameBytes = 4
	// One MPEG-1 Layer III frame holds 1152 samples per channel
	mp3PacketFrames = 1152
)

// MP3Container implements media.Container for MP3 files. go-mp3 decodes as
// it reads, so packets carry 16-bit stereo PCM.
type MP3Container struct {
	decoder  *mp3.Decoder
	file     *os.File
	stream   media.StreamInfo
	position int64 // next frame to read
}

// OpenMP3 opens an MP3 file.
func OpenMP3(filename string) (*MP3Container, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	rate := decoder.SampleRate()
	var frames int64
	if l := decoder.Length(); l > 0 {
		frames = l / mp3FrameBytes
	}

	return &MP3Container{
		decoder: decoder,
		file:    f,
		stream: media.StreamInfo{
			Index:        0,
			Kind:         media.KindAudio,
			Codec:        CodecPCMS16LE,
			TimeBase:     media.Rational{Num: 1, Den: int64(rate)},
			Duration:     frames,
			SampleRate:   rate,
			Channels:     2,
			SampleFormat: media.SampleFmtS16,
		},
	}, nil
}

// Format implements media.Container.
func (c *MP3Container) Format() string { return "mp3" }

// Streams implements media.Container.
func (c *MP3Container) Streams() []media.StreamInfo { return []media.StreamInfo{c.stream} }

// ReadPacket returns the PCM of roughly one MPEG frame.
func (c *MP3Container) ReadPacket() (*media.Packet, error) {
	buf := make([]byte, mp3PacketFrames*mp3FrameBytes)
	n, err := io.ReadFull(c.decoder, buf)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read MP3 data: %w", err)
	}

	n -= n % mp3FrameBytes
	if n == 0 {
		return nil, io.EOF
	}

	pkt := &media.Packet{
		StreamIndex: 0,
		PTS:         c.position,
		Keyframe:    true,
		Data:        buf[:n],
	}
	c.position += int64(n / mp3FrameBytes)
	return pkt, nil
}

// Seek moves to the sample frame at target microseconds. go-mp3 seeks to
// any decoded byte offset, so flags are ignored. Targets at or past the end
// land on the last sample, since go-mp3 cannot position at the end itself.
func (c *MP3Container) Seek(target int64, _ media.SeekFlags) error {
	frame := target * int64(c.stream.SampleRate) / media.TimeBase
	if frame < 0 {
		frame = 0
	}
	if c.stream.Duration > 0 && frame >= c.stream.Duration {
		frame = c.stream.Duration - 1
	}
	off, err := c.decoder.Seek(frame*mp3FrameBytes, io.SeekStart)
	if err != nil {
		return fmt.Errorf("failed to seek MP3 stream: %w", err)
	}
	c.position = off / mp3FrameBytes
	return nil
}

// Duration implements media.Container.
func (c *MP3Container) Duration() int64 {
	return c.stream.Duration * media.TimeBase / int64(c.stream.SampleRate)
}

// StartTime implements media.Container.
func (c *MP3Container) StartTime() int64 { return 0 }

// Close closes the decoder and releases resources
func (c *MP3Container) Close() error {
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
