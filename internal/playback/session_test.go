package playback

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/linuxmatters/avfeed/internal/media"
	"github.com/linuxmatters/avfeed/internal/sink"
)

func closeEnough(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func audioQueue(t *testing.T, s *Session) *sink.AudioQueue {
	t.Helper()
	q, ok := s.AudioSink().(*sink.AudioQueue)
	if !ok {
		t.Fatalf("audio sink is %T, want *sink.AudioQueue", s.AudioSink())
	}
	return q
}

func videoQueue(t *testing.T, s *Session) *sink.VideoQueue {
	t.Helper()
	q, ok := s.VideoSink().(*sink.VideoQueue)
	if !ok {
		t.Fatalf("video sink is %T, want *sink.VideoQueue", s.VideoSink())
	}
	return q
}

func TestSession_EndsAfterThreeConsecutiveErrors(t *testing.T) {
	t.Parallel()
	corrupt := errors.New("corrupt packet")
	c := audioSource(1, 8000, 0, true)
	c.script = []step{{err: corrupt}, {err: corrupt}, {err: corrupt}}
	c.script = append(c.script, audioSource(1, 8000, 5, true).script...)
	dec := pcmDecoder(c.streams[0])

	s := New("broken.wav", 8000, fakeOptions(c, dec)...)
	waitDone(t, s)

	if !errors.Is(s.Err(), ErrTooManyErrors) {
		t.Errorf("Err = %v, want ErrTooManyErrors", s.Err())
	}
	if !errors.Is(s.Err(), corrupt) {
		t.Errorf("Err = %v, want the last decode error wrapped", s.Err())
	}
	if got := c.reads.Load(); got != 3 {
		t.Errorf("ReadPacket called %d times, want 3", got)
	}
	if s.State() != StateClosed {
		t.Errorf("State = %v, want closed", s.State())
	}
	if !c.closed.Load() || !dec.closed.Load() {
		t.Error("handles not released")
	}
}

func TestSession_SuccessResetsErrorCount(t *testing.T) {
	t.Parallel()
	corrupt := errors.New("corrupt packet")
	good := audioSource(1, 8000, 2, true).script
	c := audioSource(1, 8000, 0, true)
	c.script = []step{{err: corrupt}, {err: corrupt}, good[0], {err: corrupt}, {err: corrupt}, good[1]}
	dec := pcmDecoder(c.streams[0])

	s := New("flaky.wav", 8000, fakeOptions(c, dec)...)
	defer s.Close()

	waitFor(t, "end of stream", func() bool { return s.State() == StateDraining })
	select {
	case <-s.Done():
		t.Fatalf("session ended early: %v", s.Err())
	default:
	}

	q := audioQueue(t, s)
	if q.Len() != 2 {
		t.Errorf("queued %d blocks, want 2", q.Len())
	}
}

func TestSession_OneSentinelPerEndOfStream(t *testing.T) {
	t.Parallel()
	c := videoSource(4, 4, 2)
	dec := rgbaDecoder(c.streams[0])
	s := New("clip.mp4", 0, fakeOptions(c, dec)...)
	defer s.Close()
	q := videoQueue(t, s)

	expectRun := func(pass string) {
		t.Helper()
		ctx := popContext(t)
		for i := 0; i < 2; i++ {
			f, err := q.PopContext(ctx)
			if err != nil {
				t.Fatalf("%s: pop frame %d: %v", pass, i, err)
			}
			if f.IsEndOfStream() {
				t.Fatalf("%s: frame %d is the sentinel", pass, i)
			}
			if want := float64(i) / 10; !closeEnough(f.Timestamp, want) {
				t.Errorf("%s: frame %d timestamp = %v, want %v", pass, i, f.Timestamp, want)
			}
			if f.Width != 16 || f.Height != 4 || len(f.Pix) != 16*4*3 {
				t.Errorf("%s: frame %d is %dx%d with %d bytes", pass, i, f.Width, f.Height, len(f.Pix))
			}
		}
		f, err := q.PopContext(ctx)
		if err != nil {
			t.Fatalf("%s: pop sentinel: %v", pass, err)
		}
		if !f.IsEndOfStream() {
			t.Fatalf("%s: third frame is not the sentinel", pass)
		}
	}

	expectRun("first pass")

	// Several EOF reads while draining must not add sentinels.
	reads := c.reads.Load()
	waitFor(t, "repeated EOF reads", func() bool { return c.reads.Load() >= reads+3 })
	if n := q.Len(); n != 0 {
		t.Fatalf("queue holds %d frames after end of stream, want 0", n)
	}
	if s.State() != StateDraining {
		t.Fatalf("State = %v, want draining", s.State())
	}

	s.Seek(0, true)
	expectRun("after seek")
}

func TestSession_SeekWaitRepositions(t *testing.T) {
	t.Parallel()
	c := audioSource(1, 8000, 10, true)
	dec := pcmDecoder(c.streams[0])
	s := New("tone.wav", 8000, fakeOptions(c, dec)...)
	defer s.Close()
	q := audioQueue(t, s)

	waitFor(t, "end of stream", func() bool { return s.State() == StateDraining })
	s.Seek(0.5, true)

	b, err := q.PopContext(popContext(t))
	if err != nil {
		t.Fatalf("pop after seek: %v", err)
	}
	if !closeEnough(b.Timestamp, 0.5) {
		t.Errorf("first block after seek at %v, want 0.5", b.Timestamp)
	}
	if targets := c.seekTargets(); !slices.Contains(targets, 500_000) {
		t.Errorf("container seeks = %v, want 500000", targets)
	}
	if dec.flushes.Load() == 0 {
		t.Error("decoder not flushed after seek")
	}
}

func TestSession_SeekContext(t *testing.T) {
	t.Parallel()
	c := audioSource(1, 8000, 4, true)
	s := New("tone.wav", 8000, fakeOptions(c, pcmDecoder(c.streams[0]))...)

	if err := s.SeekContext(context.Background(), 0.2); err != nil {
		t.Fatalf("SeekContext failed: %v", err)
	}
	s.Close()

	if err := s.SeekContext(context.Background(), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("SeekContext after Close = %v, want ErrClosed", err)
	}
	done := make(chan struct{})
	go func() {
		s.Seek(0, true)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Seek with wait blocked on a closed session")
	}
}

func TestSession_WantSeekRestartsFromZero(t *testing.T) {
	t.Parallel()
	c := audioSource(1, 8000, 10, true)
	s := New("loop.wav", 8000, fakeOptions(c, pcmDecoder(c.streams[0]))...)
	defer s.Close()
	q := audioQueue(t, s)

	ctx := popContext(t)
	for i := 0; i < 10; i++ {
		if _, err := q.PopContext(ctx); err != nil {
			t.Fatalf("pop block %d: %v", i, err)
		}
	}
	waitFor(t, "end of stream", func() bool { return s.State() == StateDraining })

	q.RequestSeek()
	b, err := q.PopContext(ctx)
	if err != nil {
		t.Fatalf("pop after restart: %v", err)
	}
	if b.Timestamp != 0 {
		t.Errorf("restart block at %v, want 0", b.Timestamp)
	}
	if !slices.Contains(c.seekTargets(), 0) {
		t.Errorf("container seeks = %v, want 0", c.seekTargets())
	}
}

func TestSession_LogicErrorIsFatal(t *testing.T) {
	t.Parallel()
	c := audioSource(1, 8000, 3, true)
	dec := &fakeDecoder{decode: func(_ *media.Packet, data []byte) (int, *media.DecodedFrame, error) {
		return len(data) + 1, nil, nil
	}}
	s := New("tone.wav", 8000, fakeOptions(c, dec)...)
	waitDone(t, s)

	if !errors.Is(s.Err(), ErrLogic) {
		t.Errorf("Err = %v, want ErrLogic", s.Err())
	}
	if got := c.reads.Load(); got != 1 {
		t.Errorf("ReadPacket called %d times, want 1", got)
	}
}

func TestSession_PartialDecode(t *testing.T) {
	t.Parallel()

	t.Run("split packet", func(t *testing.T) {
		t.Parallel()
		c := audioSource(1, 8000, 3, true)
		inner := pcmDecoder(c.streams[0])
		calls := 0
		// Consume half a packet per call and emit the frame on the second.
		dec := &fakeDecoder{decode: func(pkt *media.Packet, data []byte) (int, *media.DecodedFrame, error) {
			calls++
			half := len(pkt.Data) / 2
			if len(data) > half {
				return len(data) - half, nil, nil
			}
			_, f, err := inner.decode(pkt, pkt.Data)
			return len(data), f, err
		}}
		s := New("tone.wav", 8000, fakeOptions(c, dec)...)
		defer s.Close()
		waitFor(t, "end of stream", func() bool { return s.State() == StateDraining })

		if q := audioQueue(t, s); q.Len() != 3 {
			t.Errorf("queued %d blocks, want 3", q.Len())
		}
		if calls != 6 {
			t.Errorf("Decode called %d times, want 6", calls)
		}
	})

	t.Run("nothing consumed", func(t *testing.T) {
		t.Parallel()
		c := audioSource(1, 8000, 5, true)
		dec := &fakeDecoder{decode: func(*media.Packet, []byte) (int, *media.DecodedFrame, error) {
			return 0, nil, nil
		}}
		s := New("tone.wav", 8000, fakeOptions(c, dec)...)
		defer s.Close()
		waitFor(t, "end of stream", func() bool { return s.State() == StateDraining })

		if s.Err() != nil {
			t.Errorf("Err = %v, want nil", s.Err())
		}
		if q := audioQueue(t, s); q.Len() != 0 {
			t.Errorf("queued %d blocks, want 0", q.Len())
		}
	})
}

func TestSession_OpenErrors(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name    string
		rate    int
		source  func() *fakeContainer
		openErr error
		decErr  error
		want    error
	}{
		{name: "unreadable", rate: 8000, source: func() *fakeContainer { return audioSource(1, 8000, 1, true) }, openErr: errors.New("bad header"), want: ErrOpen},
		{name: "no audio stream", rate: 8000, source: func() *fakeContainer { return videoSource(4, 4, 1) }, want: ErrNoStream},
		{name: "no video stream", rate: 0, source: func() *fakeContainer { return audioSource(1, 8000, 1, true) }, want: ErrNoStream},
		{name: "decoder", rate: 8000, source: func() *fakeContainer { return audioSource(1, 8000, 1, true) }, decErr: errors.New("no codec"), want: ErrCodecInit},
		{name: "scaler", rate: 0, source: func() *fakeContainer { return videoSource(0, 0, 1) }, want: ErrCodecInit},
		{name: "resampler", rate: 8000, source: func() *fakeContainer { return audioSource(0, 8000, 1, true) }, want: ErrCodecInit},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := tc.source()
			dec := &fakeDecoder{}
			s := New("input", tc.rate,
				WithLogger(quietLogger()),
				WithConfig(testConfig()),
				WithOpener(func(string) (media.Container, error) {
					if tc.openErr != nil {
						return nil, tc.openErr
					}
					return c, nil
				}),
				WithDecoderFactory(func(media.StreamInfo) (media.Decoder, error) {
					if tc.decErr != nil {
						return nil, tc.decErr
					}
					return dec, nil
				}),
			)
			waitDone(t, s)

			if !errors.Is(s.Err(), tc.want) {
				t.Errorf("Err = %v, want %v", s.Err(), tc.want)
			}
			if s.State() != StateClosed {
				t.Errorf("State = %v, want closed", s.State())
			}
			if c.reads.Load() != 0 {
				t.Error("packets read after a failed open")
			}
			if tc.openErr == nil && !c.closed.Load() {
				t.Error("container not closed after a failed open")
			}
			if tc.decErr == nil && tc.want == ErrCodecInit && !dec.closed.Load() {
				t.Error("decoder not closed after a failed open")
			}
		})
	}
}

func TestSession_CloseUnblocksPush(t *testing.T) {
	t.Parallel()

	t.Run("video", func(t *testing.T) {
		t.Parallel()
		c := videoSource(4, 4, 50)
		dec := rgbaDecoder(c.streams[0])
		q := sink.NewVideoQueue(1)
		s := New("clip.mp4", 0, append(fakeOptions(c, dec), WithVideoSink(q))...)
		waitFor(t, "full queue", func() bool { return q.Len() == 1 && c.reads.Load() >= 2 })

		closed := make(chan struct{})
		go func() {
			s.Close()
			close(closed)
		}()
		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			t.Fatal("Close blocked behind a full video sink")
		}
		if s.Err() != nil {
			t.Errorf("Err = %v, want nil after Close", s.Err())
		}
		if !c.closed.Load() || !dec.closed.Load() {
			t.Error("handles not released")
		}
	})

	t.Run("audio", func(t *testing.T) {
		t.Parallel()
		c := audioSource(2, 8000, 50, true)
		q := sink.NewAudioQueue(1)
		s := New("tone.wav", 8000, append(fakeOptions(c, pcmDecoder(c.streams[0])), WithAudioSink(q))...)
		waitFor(t, "full queue", func() bool { return q.Len() == 1 && c.reads.Load() >= 2 })

		closed := make(chan struct{})
		go func() {
			s.Close()
			close(closed)
		}()
		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			t.Fatal("Close blocked behind a full audio sink")
		}
		if !q.Closed() {
			t.Error("audio sink not closed")
		}
	})
}

func TestSession_PositionWithoutPTS(t *testing.T) {
	t.Parallel()
	c := audioSource(1, 8000, 10, false)
	s := New("raw.pcm", 8000, fakeOptions(c, pcmDecoder(c.streams[0]))...)
	defer s.Close()
	q := audioQueue(t, s)

	ctx := popContext(t)
	last := -1.0
	for i := 0; i < 10; i++ {
		b, err := q.PopContext(ctx)
		if err != nil {
			t.Fatalf("pop block %d: %v", i, err)
		}
		if b.Timestamp <= last {
			t.Fatalf("block %d at %v does not advance past %v", i, b.Timestamp, last)
		}
		if want := float64(i) / 10; math.Abs(b.Timestamp-want) > 1e-6 {
			t.Errorf("block %d at %v, want %v", i, b.Timestamp, want)
		}
		last = b.Timestamp
	}
	waitFor(t, "end of stream", func() bool { return s.State() == StateDraining })
	if math.Abs(s.Position()-1.0) > 1e-6 {
		t.Errorf("Position = %v, want 1.0", s.Position())
	}
}

func TestSession_IdentityResampleIsStereo(t *testing.T) {
	t.Parallel()
	const rate = 8000
	c := audioSource(6, rate, 10, true)
	c.streams = append(c.streams, media.StreamInfo{Index: 1, Kind: media.KindVideo, Codec: "rawvideo", Width: 4, Height: 4})
	// Interleave packets of the other stream; they must be dropped.
	var script []step
	for _, st := range c.script {
		script = append(script, st, step{pkt: &media.Packet{StreamIndex: 1, PTS: st.pkt.PTS, Data: []byte{1, 2, 3}}})
	}
	c.script = script
	s := New("surround.wav", rate, fakeOptions(c, pcmDecoder(c.streams[0]))...)
	defer s.Close()
	q := audioQueue(t, s)

	ctx := popContext(t)
	frames := 0
	for frames < rate {
		b, err := q.PopContext(ctx)
		if err != nil {
			t.Fatalf("pop after %d frames: %v", frames, err)
		}
		if b.Channels != 2 {
			t.Fatalf("block has %d channels, want 2", b.Channels)
		}
		frames += b.Frames()
	}
	if frames != rate {
		t.Errorf("resampled %d frames, want %d", frames, rate)
	}
	if got := q.SamplesPerSecond(); got != 2*rate {
		t.Errorf("SamplesPerSecond = %d, want %d", got, 2*rate)
	}
	if got := q.Duration(); !closeEnough(got, 1.0) {
		t.Errorf("Duration = %v, want 1.0", got)
	}
	if !closeEnough(s.Duration(), 1.0) {
		t.Errorf("Session.Duration = %v, want 1.0", s.Duration())
	}
}

func TestSession_VideoDimensions(t *testing.T) {
	t.Parallel()
	c := videoSource(50, 30, 1)
	s := New("clip.mp4", 0, fakeOptions(c, rgbaDecoder(c.streams[0]))...)
	defer s.Close()
	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("session never became ready")
	}

	if s.Width() != 64 || s.Height() != 30 {
		t.Errorf("dimensions = %dx%d, want 64x30", s.Width(), s.Height())
	}
	if s.VisibleWidth() != 50 {
		t.Errorf("VisibleWidth = %d, want 50", s.VisibleWidth())
	}
	if s.Kind() != media.KindVideo {
		t.Errorf("Kind = %v, want video", s.Kind())
	}
	if s.ID() == "" {
		t.Error("session has no id")
	}
}

func TestState_String(t *testing.T) {
	testCases := map[State]string{
		StateOpening:  "opening",
		StateSteady:   "steady",
		StateSeeking:  "seeking",
		StateDraining: "draining",
		StateErroring: "erroring",
		StateClosed:   "closed",
		State(42):     "unknown",
	}
	for st, want := range testCases {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", st, got, want)
		}
	}
}
