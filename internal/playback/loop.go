package playback

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/linuxmatters/avfeed/internal/media"
)

func (s *Session) run() {
	defer close(s.done)

	if err := s.openSource(); err != nil {
		s.logger.Error("open failed", "error", err)
		s.finish(err)
		close(s.ready)
		return
	}

	d := float64(s.pipe.container.Duration()) / media.TimeBase
	s.setDuration(d)
	if s.audioSink != nil {
		s.audioSink.SetDuration(d)
	}
	s.setState(StateSteady)
	close(s.ready)

	s.finish(s.loop())
}

// loop runs decode steps until quit or a fatal error.
func (s *Session) loop() error {
	consecutive := 0
	for !s.quitting() {
		if s.audioSink != nil && s.audioSink.WantSeek() {
			s.armSeek(0)
		}

		if s.pendingSeek() != nil {
			s.setState(StateSeeking)
			if err := s.seek(); err != nil {
				if stop, ferr := s.stepFailed(&consecutive, err); stop {
					return ferr
				}
				continue
			}
			s.setState(StateSteady)
		}

		err := s.decodePacket()
		switch {
		case err == nil:
			consecutive = 0
			if s.State() != StateSteady {
				s.setState(StateSteady)
			}
		case errors.Is(err, io.EOF):
			s.drain()
		case errors.Is(err, ErrLogic):
			s.logger.Error("decode invariant violated", "error", err)
			return err
		default:
			if stop, ferr := s.stepFailed(&consecutive, err); stop {
				return ferr
			}
		}
	}
	return nil
}

// stepFailed counts a transient error and reports whether the threshold has
// been passed.
func (s *Session) stepFailed(consecutive *int, err error) (bool, error) {
	*consecutive++
	s.setState(StateErroring)
	s.logger.Warn("decode failed", "error", err, "consecutive", *consecutive)
	if *consecutive > s.cfg.Decode.MaxConsecutiveErrors {
		s.logger.Error("terminating due to multiple errors", "errors", *consecutive)
		return true, fmt.Errorf("%w: %w", ErrTooManyErrors, err)
	}
	return false, nil
}

// seek executes the armed seek. The request is acknowledged even when the
// container fails to seek, so waiters never hang.
func (s *Session) seek() error {
	target, req := s.takeSeek()
	if req == nil {
		return nil
	}
	defer close(req.done)

	s.resetSinks()

	p := &s.pipe
	var flags media.SeekFlags
	if target < s.Position() {
		flags |= media.SeekBackward
	}
	ts := int64(target * media.TimeBase)
	if err := p.container.Seek(ts, flags); err != nil {
		return fmt.Errorf("seek to %.3fs: %w", target, err)
	}
	p.decoder.Flush()
	if p.resampler != nil {
		p.resampler.Reset()
	}
	s.setPosition(target)
	s.logger.Debug("seeked", "target", target, "backward", flags&media.SeekBackward != 0)
	return nil
}

// drain handles end of stream. The sentinel frame is pushed once per EOF
// event; the loop then idles until the pause elapses, a seek is armed or
// the session quits.
func (s *Session) drain() {
	if s.State() != StateDraining {
		s.setState(StateDraining)
		s.logger.Debug("end of stream", "position", s.Position())
		if err := s.drainResampler(); err != nil {
			s.logger.Warn("resampler drain failed", "error", err)
		}
		if s.videoSink != nil {
			if err := s.pushVideo(media.EndOfStream()); err != nil {
				s.logger.Warn("end of stream push failed", "error", err)
			}
		}
	}

	t := time.NewTimer(s.cfg.EOFPause())
	defer t.Stop()
	select {
	case <-t.C:
	case <-s.quit:
	case <-s.seekWake:
	}
}

// finish resets the sinks and releases every handle. err is the terminal
// error, nil on quit.
func (s *Session) finish(err error) {
	s.resetSinks()
	s.closeSource()
	s.err = err
	s.setState(StateClosed)
	if err != nil {
		s.logger.Info("session ended", "error", err)
	} else {
		s.logger.Debug("session closed")
	}
}
