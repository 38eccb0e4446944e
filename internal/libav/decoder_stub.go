//go:build nolibav

package libav

import (
	"fmt"

	"github.com/linuxmatters/avfeed/internal/media"
)

// Supported is false without the FFmpeg backend.
func Supported(string) bool { return false }

// Decoder is never constructed without the FFmpeg backend.
type Decoder struct{}

// New always fails without the FFmpeg backend.
func New(info media.StreamInfo) (*Decoder, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnavailable, info.Codec)
}

func (*Decoder) Decode(*media.Packet, []byte) (int, *media.DecodedFrame, error) {
	return 0, nil, ErrUnavailable
}

func (*Decoder) Flush() {}

func (*Decoder) Close() error { return nil }
