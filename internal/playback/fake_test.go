package playback

import (
	"context"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linuxmatters/avfeed/internal/config"
	"github.com/linuxmatters/avfeed/internal/media"
)

// step is one scripted ReadPacket result.
type step struct {
	pkt *media.Packet
	err error
}

// fakeContainer replays a script of packets and errors, then io.EOF.
type fakeContainer struct {
	streams  []media.StreamInfo
	duration int64

	mu     sync.Mutex
	script []step
	next   int
	seeks  []int64

	reads  atomic.Int32
	closed atomic.Bool
}

func (c *fakeContainer) Format() string              { return "fake" }
func (c *fakeContainer) Streams() []media.StreamInfo { return c.streams }
func (c *fakeContainer) Duration() int64             { return c.duration }
func (c *fakeContainer) StartTime() int64            { return 0 }

func (c *fakeContainer) ReadPacket() (*media.Packet, error) {
	c.reads.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next >= len(c.script) {
		return nil, io.EOF
	}
	s := c.script[c.next]
	c.next++
	return s.pkt, s.err
}

// Seek snaps to the first packet at or after target, or the last one at or
// before it with SeekBackward. Packets without a PTS are treated as time 0.
func (c *fakeContainer) Seek(target int64, flags media.SeekFlags) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seeks = append(c.seeks, target)

	pts := func(i int) int64 {
		p := c.script[i].pkt
		if p == nil || p.PTS == media.NoPTS {
			return 0
		}
		return p.PTS
	}
	if len(c.script) == 0 {
		return nil
	}
	if flags&media.SeekBackward != 0 {
		c.next = 0
		for i := range c.script {
			if p := pts(i); p <= target && p > pts(c.next) {
				c.next = i
			}
		}
		return nil
	}
	c.next = len(c.script)
	for i := range c.script {
		if pts(i) >= target {
			c.next = i
			return nil
		}
	}
	return nil
}

func (c *fakeContainer) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeContainer) seekTargets() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.seeks...)
}

type decodeFunc func(pkt *media.Packet, data []byte) (int, *media.DecodedFrame, error)

type fakeDecoder struct {
	decode  decodeFunc
	flushes atomic.Int32
	closed  atomic.Bool
}

func (d *fakeDecoder) Decode(pkt *media.Packet, data []byte) (int, *media.DecodedFrame, error) {
	return d.decode(pkt, data)
}

func (d *fakeDecoder) Flush()       { d.flushes.Add(1) }
func (d *fakeDecoder) Close() error { d.closed.Store(true); return nil }

var microseconds = media.Rational{Num: 1, Den: media.TimeBase}

// audioSource scripts n packets of 0.1s of silent s16 audio.
func audioSource(channels, rate, n int, withPTS bool) *fakeContainer {
	frames := rate / 10
	c := &fakeContainer{
		streams: []media.StreamInfo{{
			Index:        0,
			Kind:         media.KindAudio,
			Codec:        "pcm_s16le",
			TimeBase:     microseconds,
			SampleRate:   rate,
			Channels:     channels,
			SampleFormat: media.SampleFmtS16,
		}},
		duration: int64(n) * media.TimeBase / 10,
	}
	for i := 0; i < n; i++ {
		pts := int64(i) * media.TimeBase / 10
		if !withPTS {
			pts = media.NoPTS
		}
		c.script = append(c.script, step{pkt: &media.Packet{
			StreamIndex: 0,
			PTS:         pts,
			Keyframe:    true,
			Data:        make([]byte, frames*channels*2),
		}})
	}
	return c
}

// videoSource scripts n RGBA frames at 10 fps.
func videoSource(w, h, n int) *fakeContainer {
	c := &fakeContainer{
		streams: []media.StreamInfo{{
			Index:    0,
			Kind:     media.KindVideo,
			Codec:    "rawvideo",
			TimeBase: microseconds,
			Width:    w,
			Height:   h,
		}},
		duration: int64(n) * media.TimeBase / 10,
	}
	for i := 0; i < n; i++ {
		c.script = append(c.script, step{pkt: &media.Packet{
			StreamIndex: 0,
			PTS:         int64(i) * media.TimeBase / 10,
			Keyframe:    true,
			Data:        make([]byte, w*h*4),
		}})
	}
	return c
}

// pcmDecoder decodes whole packets of interleaved s16.
func pcmDecoder(info media.StreamInfo) *fakeDecoder {
	return &fakeDecoder{decode: func(pkt *media.Packet, data []byte) (int, *media.DecodedFrame, error) {
		return len(data), &media.DecodedFrame{
			PTS:        pkt.PTS,
			Format:     media.SampleFmtS16,
			Channels:   info.Channels,
			SampleRate: info.SampleRate,
			NbSamples:  len(data) / (2 * info.Channels),
			Planes:     [][]byte{data},
		}, nil
	}}
}

// rgbaDecoder turns every packet into one blank picture.
func rgbaDecoder(info media.StreamInfo) *fakeDecoder {
	return &fakeDecoder{decode: func(pkt *media.Packet, data []byte) (int, *media.DecodedFrame, error) {
		return len(data), &media.DecodedFrame{
			PTS:   pkt.PTS,
			Image: image.NewRGBA(image.Rect(0, 0, info.Width, info.Height)),
		}, nil
	}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Decode.EOFPauseMs = 5
	return cfg
}

// fakeOptions wires c and dec into a session.
func fakeOptions(c *fakeContainer, dec *fakeDecoder) []Option {
	return []Option{
		WithLogger(quietLogger()),
		WithConfig(testConfig()),
		WithOpener(func(string) (media.Container, error) { return c, nil }),
		WithDecoderFactory(func(media.StreamInfo) (media.Decoder, error) { return dec, nil }),
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not exit")
	}
}

func popContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}
