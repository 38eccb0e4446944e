// Package playback runs the decode pipeline for one elementary stream of a
// media source. A Session opens the source, decodes the selected audio or
// video stream on a background goroutine and pushes playback-ready frames to
// bounded sinks, so the consumer never waits on I/O or decode cost.
//
// A Session decodes exactly one stream. Use Pair to decode the audio and the
// video of the same source.
package playback

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/linuxmatters/avfeed/internal/config"
	"github.com/linuxmatters/avfeed/internal/media"
	"github.com/linuxmatters/avfeed/internal/probe"
	"github.com/linuxmatters/avfeed/internal/sink"
)

// VideoSink receives converted video frames. Push blocks while the sink is
// full; Reset discards buffered frames and wakes a blocked Push; Close wakes
// every waiter for good.
type VideoSink interface {
	Push(*media.VideoFrame) error
	Reset()
	Close()
}

// AudioSink receives converted sample blocks. WantSeek reports and clears a
// consumer request to restart from the beginning.
type AudioSink interface {
	Push(media.SampleBlock) error
	Reset()
	Close()
	WantSeek() bool
	SetSamplesPerSecond(n int)
	SetDuration(seconds float64)
}

// Opener opens a media source.
type Opener func(source string) (media.Container, error)

// DecoderFactory creates a decoder for a stream.
type DecoderFactory func(info media.StreamInfo) (media.Decoder, error)

// Option configures a Session.
type Option func(*Session)

// WithVideoSink sets the sink for decoded video frames. Video sessions
// without one get a sink.VideoQueue sized from the configuration.
func WithVideoSink(v VideoSink) Option {
	return func(s *Session) { s.videoSink = v }
}

// WithAudioSink sets the sink for decoded audio. Audio sessions without one
// get a sink.AudioQueue sized from the configuration.
func WithAudioSink(a AudioSink) Option {
	return func(s *Session) { s.audioSink = a }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

// WithOpener replaces probe.Open.
func WithOpener(open Opener) Option {
	return func(s *Session) { s.open = open }
}

// WithDecoderFactory replaces probe.NewDecoder.
func WithDecoderFactory(f DecoderFactory) Option {
	return func(s *Session) { s.newDecoder = f }
}

// seekRequest is one armed seek. done is closed by the decode loop once the
// container has been repositioned.
type seekRequest struct {
	target float64
	done   chan struct{}
}

// Session decodes one stream of a media source on a background goroutine.
type Session struct {
	id     string
	source string
	kind   media.Kind
	rate   int
	cfg    config.Config
	logger *slog.Logger

	open       Opener
	newDecoder DecoderFactory
	videoSink  VideoSink
	audioSink  AudioSink

	// Owned by the decode goroutine.
	pipe pipeline

	seekMu   sync.Mutex
	seekReq  *seekRequest
	seekWake chan struct{}

	state    atomic.Int32
	position atomic.Uint64
	duration atomic.Uint64
	width    atomic.Int64
	visible  atomic.Int64
	height   atomic.Int64

	quit     chan struct{}
	quitOnce sync.Once
	ready    chan struct{}
	done     chan struct{}
	err      error
}

// New creates a session for source and starts decoding in the background.
// A positive rate selects the best audio stream, resampled to rate Hz
// stereo; rate 0 selects the best video stream. New does not wait for the
// source to open; watch State, Done and Err for the outcome.
func New(source string, rate int, opts ...Option) *Session {
	s := &Session{
		id:         uuid.NewString(),
		source:     source,
		kind:       media.KindVideo,
		rate:       rate,
		cfg:        config.Defaults(),
		open:       probe.Open,
		newDecoder: probe.NewDecoder,
		seekWake:   make(chan struct{}, 1),
		quit:       make(chan struct{}),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	if rate > 0 {
		s.kind = media.KindAudio
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session", s.id, "source", source, "kind", s.kind.String())

	switch s.kind {
	case media.KindVideo:
		if s.videoSink == nil {
			s.videoSink = sink.NewVideoQueue(s.cfg.Video.QueueFrames)
		}
	case media.KindAudio:
		if s.audioSink == nil {
			s.audioSink = sink.NewAudioQueue(s.cfg.Audio.QueueBlocks)
		}
	}

	logBackendVersions(s.logger)
	s.state.Store(int32(StateOpening))
	go s.run()
	return s
}

// ID returns the session's log correlation id.
func (s *Session) ID() string { return s.id }

// Source returns the source the session was created with.
func (s *Session) Source() string { return s.source }

// Kind returns the kind of stream the session decodes.
func (s *Session) Kind() media.Kind { return s.kind }

// State returns the current loop state.
func (s *Session) State() State { return State(s.state.Load()) }

// Width returns the padded output width of a video session, 0 until open
// completes.
func (s *Session) Width() int { return int(s.width.Load()) }

// VisibleWidth returns the output width without alignment padding, 0 until
// open completes.
func (s *Session) VisibleWidth() int { return int(s.visible.Load()) }

// Height returns the output height of a video session, 0 until open
// completes.
func (s *Session) Height() int { return int(s.height.Load()) }

// Duration returns the source duration in seconds, 0 until open completes
// or when the container does not know it.
func (s *Session) Duration() float64 { return math.Float64frombits(s.duration.Load()) }

// Position returns the decode position in seconds.
func (s *Session) Position() float64 { return math.Float64frombits(s.position.Load()) }

// VideoSink returns the session's video sink, nil for audio sessions
// created without one.
func (s *Session) VideoSink() VideoSink { return s.videoSink }

// AudioSink returns the session's audio sink, nil for video sessions
// created without one.
func (s *Session) AudioSink() AudioSink { return s.audioSink }

// Ready is closed once open has finished, successfully or not. Width,
// Height and Duration are valid after it.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Done is closed once the decode goroutine has exited and released every
// handle.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the session. It is nil while the session
// runs and after a clean Close.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Seek arms a seek to t seconds. Buffered output is discarded immediately so
// a decode goroutine blocked on a full sink wakes up. With wait, Seek blocks
// until the decode loop has repositioned the container or the session has
// exited.
func (s *Session) Seek(t float64, wait bool) {
	req := s.armSeek(t)
	s.resetSinks()
	if !wait {
		return
	}
	select {
	case <-req.done:
	case <-s.quit:
	case <-s.done:
	}
}

// SeekContext arms a seek to t seconds and waits for the decode loop to
// acknowledge it. It returns ErrClosed when the session exits first.
func (s *Session) SeekContext(ctx context.Context, t float64) error {
	req := s.armSeek(t)
	s.resetSinks()
	select {
	case <-req.done:
		return nil
	case <-s.quit:
		return ErrClosed
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the decode loop and waits for it to release its handles.
// The video sink is reset and the audio sink closed so a blocked Push
// returns. Close is safe to call more than once.
func (s *Session) Close() {
	s.quitOnce.Do(func() { close(s.quit) })
	if s.videoSink != nil {
		s.videoSink.Reset()
	}
	if s.audioSink != nil {
		s.audioSink.Close()
	}
	<-s.done
}

// armSeek records a seek target. A seek armed while another is still
// pending replaces its target and shares its acknowledgement.
func (s *Session) armSeek(t float64) *seekRequest {
	s.seekMu.Lock()
	defer s.seekMu.Unlock()
	if s.seekReq != nil {
		s.seekReq.target = t
	} else {
		s.seekReq = &seekRequest{target: t, done: make(chan struct{})}
	}
	select {
	case s.seekWake <- struct{}{}:
	default:
	}
	return s.seekReq
}

// pendingSeek returns the armed seek, if any, without clearing it.
func (s *Session) pendingSeek() *seekRequest {
	s.seekMu.Lock()
	defer s.seekMu.Unlock()
	return s.seekReq
}

// takeSeek clears the armed seek and returns its target and request.
func (s *Session) takeSeek() (float64, *seekRequest) {
	s.seekMu.Lock()
	defer s.seekMu.Unlock()
	req := s.seekReq
	s.seekReq = nil
	if req == nil {
		return 0, nil
	}
	return req.target, req
}

func (s *Session) quitting() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

func (s *Session) resetSinks() {
	if s.videoSink != nil {
		s.videoSink.Reset()
	}
	if s.audioSink != nil {
		s.audioSink.Reset()
	}
}

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

func (s *Session) setPosition(p float64) { s.position.Store(math.Float64bits(p)) }

func (s *Session) setDuration(d float64) { s.duration.Store(math.Float64bits(d)) }
