package video

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/linuxmatters/avfeed/internal/media"
)

// Video codec names carried in media.StreamInfo.Codec.
const (
	CodecMJPEG    = "mjpeg"
	CodecPNG      = "png"
	CodecRawVideo = "rawvideo" // packed RGBA at stream size

	// Inter-frame codecs, decoded by the libav backend. MP4 delivers
	// H.264 and HEVC as Annex-B.
	CodecH264  = "h264"
	CodecHEVC  = "hevc"
	CodecAV1   = "av1"
	CodecVP9   = "vp9"
	CodecMPEG4 = "mpeg4"
)

// ErrUnsupportedCodec is returned for video codecs without a decoder.
var ErrUnsupportedCodec = errors.New("video: unsupported codec")

// ImageDecoder decodes intra-only video: every packet is one complete picture.
type ImageDecoder struct {
	codec  string
	width  int
	height int
}

// NewImageDecoder creates a decoder for an intra-only video stream.
func NewImageDecoder(info media.StreamInfo) (*ImageDecoder, error) {
	switch info.Codec {
	case CodecMJPEG, CodecPNG:
	case CodecRawVideo:
		if info.Width <= 0 || info.Height <= 0 {
			return nil, fmt.Errorf("video: rawvideo needs a frame size, got %dx%d", info.Width, info.Height)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, info.Codec)
	}
	return &ImageDecoder{codec: info.Codec, width: info.Width, height: info.Height}, nil
}

// Decode implements media.Decoder. A packet is always consumed whole.
func (d *ImageDecoder) Decode(pkt *media.Packet, data []byte) (int, *media.DecodedFrame, error) {
	if len(data) == 0 {
		return 0, nil, nil
	}

	var img image.Image
	var err error
	switch d.codec {
	case CodecMJPEG:
		img, err = jpeg.Decode(bytes.NewReader(data))
	case CodecPNG:
		img, err = png.Decode(bytes.NewReader(data))
	case CodecRawVideo:
		img, err = d.raw(data)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("decode %s frame: %w", d.codec, err)
	}

	pts := media.NoPTS
	if len(data) == len(pkt.Data) {
		pts = pkt.PTS
	}
	return len(data), &media.DecodedFrame{PTS: pts, Image: img}, nil
}

func (d *ImageDecoder) raw(data []byte) (image.Image, error) {
	want := d.width * d.height * 4
	if len(data) < want {
		return nil, fmt.Errorf("short rawvideo packet: %d bytes, want %d", len(data), want)
	}
	return &image.RGBA{
		Pix:    data[:want],
		Stride: d.width * 4,
		Rect:   image.Rect(0, 0, d.width, d.height),
	}, nil
}

// Flush implements media.Decoder. Intra-only streams keep no state.
func (d *ImageDecoder) Flush() {}

// Close implements media.Decoder.
func (d *ImageDecoder) Close() error { return nil }
