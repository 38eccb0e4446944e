package playback

import (
	"errors"
	"fmt"

	"github.com/linuxmatters/avfeed/internal/config"
	"github.com/linuxmatters/avfeed/internal/convert"
	"github.com/linuxmatters/avfeed/internal/media"
	"github.com/linuxmatters/avfeed/internal/sink"
)

// decodePacket reads one packet and decodes it into zero or more frames.
// io.EOF from the container is returned unchanged.
func (s *Session) decodePacket() error {
	p := &s.pipe
	pkt, err := p.container.ReadPacket()
	if err != nil {
		return err
	}

	data := pkt.Data
	remaining := len(data)
	for remaining > 0 {
		if s.quitting() || s.pendingSeek() != nil {
			return nil
		}
		if pkt.StreamIndex != p.stream.Index {
			return nil
		}

		n, frame, err := p.decoder.Decode(pkt, data)
		if err != nil {
			return fmt.Errorf("decode %s packet: %w", p.stream.Codec, err)
		}
		if n <= 0 {
			return nil
		}
		remaining -= n
		if remaining < 0 {
			return fmt.Errorf("%w: decoder consumed %d bytes, %d over the packet", ErrLogic, n, -remaining)
		}
		data = data[n:]
		if frame == nil {
			continue
		}

		if frame.PTS != media.NoPTS {
			start := float64(p.container.StartTime()) / media.TimeBase
			s.setPosition(p.stream.Seconds(frame.PTS) - start)
		}

		switch s.kind {
		case media.KindVideo:
			err = s.processVideo(frame)
		case media.KindAudio:
			err = s.processAudio(frame)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// processVideo converts a decoded picture to RGB24 and pushes it.
func (s *Session) processVideo(f *media.DecodedFrame) error {
	p := &s.pipe
	if f.Image == nil {
		return errors.New("decoder returned a video frame without a picture")
	}

	b := f.Image.Bounds()
	if sw, sh := p.scaler.SourceSize(); sw != b.Dx() || sh != b.Dy() {
		sc, err := convert.NewScaler(b.Dx(), b.Dy(), p.outW, p.outH, config.WidthAlignment)
		if err != nil {
			return fmt.Errorf("rebuild scaler for %dx%d: %w", b.Dx(), b.Dy(), err)
		}
		p.scaler = sc
	}

	frame := &media.VideoFrame{
		Timestamp: s.Position(),
		Width:     p.scaler.Width(),
		Height:    p.scaler.Height(),
		Stride:    p.scaler.Stride(),
		Pix:       make([]byte, p.scaler.FrameSize()),
	}
	if err := p.scaler.Scale(f.Image, frame.Pix); err != nil {
		return fmt.Errorf("scale: %w", err)
	}
	return s.pushVideo(frame)
}

// processAudio converts a decoded frame to interleaved s16, resamples it and
// pushes the block stamped with the position before the frame.
func (s *Session) processAudio(f *media.DecodedFrame) error {
	p := &s.pipe
	in, err := convert.ToS16Interleaved(f)
	if err != nil {
		return err
	}

	rate := f.SampleRate
	if rate <= 0 {
		rate = p.stream.SampleRate
	}
	channels := f.Channels
	if channels <= 0 {
		channels = p.stream.Channels
	}
	if channels != p.resampler.InChannels() || rate != p.resampler.InRate() {
		if err := s.drainResampler(); err != nil {
			return err
		}
		rs, err := convert.NewResampler(config.AudioChannels, channels, s.rate, rate)
		if err != nil {
			return fmt.Errorf("rebuild resampler for %d channels at %d Hz: %w", channels, rate, err)
		}
		p.resampler = rs
	}

	ts := s.Position()
	start := ts - p.resampler.Delay()
	if err := s.pushResampled(start, p.resampler.Process(in)); err != nil {
		return err
	}

	frames := f.NbSamples
	if frames <= 0 {
		frames = len(in) / channels
	}
	s.setPosition(ts + float64(frames)/float64(rate))
	return nil
}

// drainResampler pushes the output the resampler still holds back.
func (s *Session) drainResampler() error {
	p := &s.pipe
	if p.resampler == nil {
		return nil
	}
	start := s.Position() - p.resampler.Delay()
	return s.pushResampled(start, p.resampler.Drain())
}

func (s *Session) pushResampled(ts float64, out []int16) error {
	if len(out) == 0 {
		return nil
	}
	return s.pushAudio(media.SampleBlock{
		Timestamp: max(ts, 0),
		Channels:  config.AudioChannels,
		Samples:   out,
	})
}

func (s *Session) pushVideo(f *media.VideoFrame) error {
	if s.videoSink == nil {
		return nil
	}
	return ignoreSinkInterrupt(s.videoSink.Push(f))
}

func (s *Session) pushAudio(b media.SampleBlock) error {
	if s.audioSink == nil {
		return nil
	}
	return ignoreSinkInterrupt(s.audioSink.Push(b))
}

// ignoreSinkInterrupt drops the errors a sink returns when a seek or
// shutdown discards a pending push.
func ignoreSinkInterrupt(err error) error {
	if errors.Is(err, sink.ErrReset) || errors.Is(err, sink.ErrClosed) {
		return nil
	}
	return err
}
