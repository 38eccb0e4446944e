package playback

import (
	"errors"
	"testing"
	"time"

	"github.com/linuxmatters/avfeed/internal/libav"
	"github.com/linuxmatters/avfeed/internal/media"
)

func TestSession_H264StreamOpensDefaultDecoder(t *testing.T) {
	t.Parallel()
	c := &fakeContainer{
		streams: []media.StreamInfo{{
			Index:    0,
			Kind:     media.KindVideo,
			Codec:    "h264",
			TimeBase: microseconds,
			Width:    64,
			Height:   48,
		}},
	}
	s := New("clip.mp4", 0,
		WithLogger(quietLogger()),
		WithConfig(testConfig()),
		WithOpener(func(string) (media.Container, error) { return c, nil }),
	)
	defer s.Close()

	select {
	case <-s.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("session never became ready")
	}

	if !libav.Supported("h264") {
		<-s.Done()
		if err := s.Err(); !errors.Is(err, ErrCodecInit) {
			t.Errorf("Err = %v without an H.264 backend, want ErrCodecInit", err)
		}
		return
	}
	if s.State() == StateClosed {
		t.Fatalf("session closed after open: %v", s.Err())
	}
	if s.Width() != 64 || s.Height() != 48 {
		t.Errorf("dimensions = %dx%d, want 64x48", s.Width(), s.Height())
	}
}
