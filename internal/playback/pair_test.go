package playback

import (
	"testing"

	"github.com/linuxmatters/avfeed/internal/media"
)

// avSource interleaves n audio packets on stream 0 with n video packets on
// stream 1, both at 10 per second.
func avSource(n int) *fakeContainer {
	a := audioSource(2, 8000, n, true)
	v := videoSource(8, 8, n)
	video := v.streams[0]
	video.Index = 1

	c := &fakeContainer{
		streams:  []media.StreamInfo{a.streams[0], video},
		duration: a.duration,
	}
	for i := 0; i < n; i++ {
		vp := *v.script[i].pkt
		vp.StreamIndex = 1
		c.script = append(c.script, a.script[i], step{pkt: &vp})
	}
	return c
}

func TestPair_SeekAndClose(t *testing.T) {
	t.Parallel()
	opener := func(string) (media.Container, error) { return avSource(10), nil }
	factory := func(info media.StreamInfo) (media.Decoder, error) {
		if info.Kind == media.KindAudio {
			return pcmDecoder(info), nil
		}
		return rgbaDecoder(info), nil
	}

	p := OpenPair("show.mp4", 8000,
		WithLogger(quietLogger()),
		WithConfig(testConfig()),
		WithOpener(opener),
		WithDecoderFactory(factory),
	)
	aq, vq := p.AudioQueue(), p.VideoQueue()
	if aq == nil || vq == nil {
		t.Fatal("pair queues missing")
	}
	if p.Audio.VideoSink() != nil || p.Video.AudioSink() != nil {
		t.Error("sessions share sinks")
	}

	ctx := popContext(t)
	if _, err := aq.PopContext(ctx); err != nil {
		t.Fatalf("pop audio: %v", err)
	}
	if _, err := vq.PopContext(ctx); err != nil {
		t.Fatalf("pop video: %v", err)
	}

	if err := p.Seek(ctx, 0.5); err != nil {
		t.Fatalf("Pair.Seek failed: %v", err)
	}
	b, err := aq.PopContext(ctx)
	if err != nil {
		t.Fatalf("pop audio after seek: %v", err)
	}
	if !closeEnough(b.Timestamp, 0.5) {
		t.Errorf("audio resumed at %v, want 0.5", b.Timestamp)
	}
	f, err := vq.PopContext(ctx)
	if err != nil {
		t.Fatalf("pop video after seek: %v", err)
	}
	if f.IsEndOfStream() || !closeEnough(f.Timestamp, 0.5) {
		t.Errorf("video resumed at %v (sentinel %v), want 0.5", f.Timestamp, f.IsEndOfStream())
	}

	p.Close()
	for _, s := range []*Session{p.Audio, p.Video} {
		if s.State() != StateClosed {
			t.Errorf("%s session state = %v, want closed", s.Kind(), s.State())
		}
	}
}
