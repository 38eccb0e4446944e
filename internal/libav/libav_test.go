package libav

import (
	"errors"
	"testing"

	"github.com/linuxmatters/avfeed/internal/media"
)

func TestNew_UnknownCodec(t *testing.T) {
	_, err := New(media.StreamInfo{Kind: media.KindVideo, Codec: "theora", Width: 16, Height: 16})
	if !errors.Is(err, ErrNoDecoder) && !errors.Is(err, ErrUnavailable) {
		t.Fatalf("New(theora) error = %v, want ErrNoDecoder or ErrUnavailable", err)
	}
	if Supported("theora") {
		t.Error("Supported(theora) = true")
	}
}

func TestDecoder_H264(t *testing.T) {
	if !Supported("h264") {
		t.Skip("linked FFmpeg has no H.264 decoder")
	}
	d, err := New(media.StreamInfo{Kind: media.KindVideo, Codec: "h264", Width: 64, Height: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	var _ media.Decoder = d

	// A truncated access unit must not produce a frame or consume more
	// than it was given.
	data := []byte{0, 0, 0, 1, 0x09, 0xf0}
	n, f, err := d.Decode(&media.Packet{PTS: 0}, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n != len(data) {
		t.Errorf("consumed %d bytes, want %d", n, len(data))
	}
	if f != nil {
		t.Errorf("frame from an access unit delimiter: %+v", f)
	}

	d.Flush()
	if n, f, err := d.Decode(&media.Packet{PTS: 1}, nil); err != nil || n != 0 || f != nil {
		t.Errorf("Decode after Flush = %d, %v, %v", n, f, err)
	}
}
