package playback

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/linuxmatters/avfeed/internal/config"
	"github.com/linuxmatters/avfeed/internal/sink"
)

// Pair decodes the audio and the video of one source with two sessions.
// Either session may end on its own, e.g. when the source has no video.
// Nothing synchronises the two sinks; consumers pace themselves by
// timestamp.
type Pair struct {
	Audio *Session
	Video *Session
}

// OpenPair starts an audio session at rate Hz and a video session over
// source. rate <= 0 uses config.DefaultSampleRate. Sink options are
// ignored: each session gets its own queue, reachable through
// AudioQueue and VideoQueue.
func OpenPair(source string, rate int, opts ...Option) *Pair {
	if rate <= 0 {
		rate = config.DefaultSampleRate
	}
	resolved := &Session{cfg: config.Defaults()}
	for _, opt := range opts {
		opt(resolved)
	}
	cfg := resolved.cfg

	aq := sink.NewAudioQueue(cfg.Audio.QueueBlocks)
	vq := sink.NewVideoQueue(cfg.Video.QueueFrames)

	audioOpts := append(append([]Option{}, opts...), WithAudioSink(aq), WithVideoSink(nil))
	videoOpts := append(append([]Option{}, opts...), WithVideoSink(vq), WithAudioSink(nil))
	return &Pair{
		Audio: New(source, rate, audioOpts...),
		Video: New(source, 0, videoOpts...),
	}
}

// AudioQueue returns the audio session's queue.
func (p *Pair) AudioQueue() *sink.AudioQueue {
	q, _ := p.Audio.AudioSink().(*sink.AudioQueue)
	return q
}

// VideoQueue returns the video session's queue.
func (p *Pair) VideoQueue() *sink.VideoQueue {
	q, _ := p.Video.VideoSink().(*sink.VideoQueue)
	return q
}

// Seek moves both sessions to t seconds and waits for both to acknowledge.
// A session that has already ended is skipped.
func (p *Pair) Seek(ctx context.Context, t float64) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range []*Session{p.Audio, p.Video} {
		if s.State() == StateClosed {
			continue
		}
		g.Go(func() error {
			if err := s.SeekContext(ctx, t); err != nil && !errors.Is(err, ErrClosed) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes both sessions concurrently and waits for them.
func (p *Pair) Close() {
	var g errgroup.Group
	for _, s := range []*Session{p.Audio, p.Video} {
		g.Go(func() error {
			s.Close()
			return nil
		})
	}
	_ = g.Wait()
}
