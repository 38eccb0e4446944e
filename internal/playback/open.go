package playback

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/linuxmatters/avfeed/internal/config"
	"github.com/linuxmatters/avfeed/internal/convert"
	"github.com/linuxmatters/avfeed/internal/media"
)

// libMu serialises opening and tearing down codec handles across sessions.
// Decode calls on a session's own handles do not take it.
var libMu sync.Mutex

// pipeline holds the handles the decode goroutine owns.
type pipeline struct {
	container media.Container
	stream    media.StreamInfo
	decoder   media.Decoder
	resampler *convert.Resampler
	scaler    *convert.Scaler

	// Output size is fixed at open; the scaler is rebuilt when decoded
	// pictures change size.
	outW, outH int

	release releaseStack
}

type releaser struct {
	name string
	fn   func() error
}

// releaseStack closes acquired handles in reverse order.
type releaseStack []releaser

func (r *releaseStack) push(name string, fn func() error) {
	*r = append(*r, releaser{name: name, fn: fn})
}

func (r *releaseStack) releaseAll(logger *slog.Logger) {
	for i := len(*r) - 1; i >= 0; i-- {
		rel := (*r)[i]
		if err := rel.fn(); err != nil {
			logger.Warn("release failed", "handle", rel.name, "error", err)
		}
	}
	*r = nil
}

// openSource opens the container, selects the stream and builds the decoder
// and converter. Handles acquired before a failure stay on the release stack
// for finish to close.
func (s *Session) openSource() error {
	libMu.Lock()
	defer libMu.Unlock()

	p := &s.pipe
	c, err := s.open(s.source)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrOpen, s.source, err)
	}
	p.container = c
	p.release.push("container", c.Close)

	idx, ok := media.BestStream(c.Streams(), s.kind)
	if !ok {
		return fmt.Errorf("%w: no %s stream in %s", ErrNoStream, s.kind, s.source)
	}
	for _, st := range c.Streams() {
		if st.Index == idx {
			p.stream = st
			break
		}
	}

	dec, err := s.newDecoder(p.stream)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCodecInit, p.stream.Codec, err)
	}
	p.decoder = dec
	p.release.push("decoder", dec.Close)

	switch s.kind {
	case media.KindAudio:
		rs, err := convert.NewResampler(config.AudioChannels, p.stream.Channels, s.rate, p.stream.SampleRate)
		if err != nil {
			return fmt.Errorf("%w: resampler: %w", ErrCodecInit, err)
		}
		p.resampler = rs
		if s.audioSink != nil {
			s.audioSink.SetSamplesPerSecond(config.AudioChannels * s.rate)
		}
	case media.KindVideo:
		w, h := convert.FitWidth(p.stream.Width, p.stream.Height, s.cfg.Video.MaxWidth)
		sc, err := convert.NewScaler(p.stream.Width, p.stream.Height, w, h, config.WidthAlignment)
		if err != nil {
			return fmt.Errorf("%w: scaler: %w", ErrCodecInit, err)
		}
		p.scaler = sc
		p.outW, p.outH = w, h
		s.width.Store(int64(sc.Width()))
		s.visible.Store(int64(w))
		s.height.Store(int64(sc.Height()))
	}

	s.logger.Debug("opened",
		"format", c.Format(),
		"stream", p.stream.Index,
		"codec", p.stream.Codec)
	return nil
}

// closeSource releases every handle under the library lock.
func (s *Session) closeSource() {
	libMu.Lock()
	defer libMu.Unlock()
	s.pipe.release.releaseAll(s.logger)
	s.pipe = pipeline{}
}
