//go:build !nolibav

package libav

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/linuxmatters/avfeed/internal/media"
)

var codecIDs = map[string]astiav.CodecID{
	"h264":  astiav.CodecIDH264,
	"hevc":  astiav.CodecIDHevc,
	"av1":   astiav.CodecIDAv1,
	"vp9":   astiav.CodecIDVp9,
	"mpeg4": astiav.CodecIDMpeg4,
}

var logOnce sync.Once

// Supported reports whether codec has a decoder in the linked FFmpeg.
func Supported(codec string) bool {
	id, ok := codecIDs[codec]
	return ok && astiav.FindDecoder(id) != nil
}

// Decoder wraps an FFmpeg codec context. Frames come out in presentation
// order, possibly several packets after their input; they are queued and
// handed out one per Decode call.
type Decoder struct {
	info  media.StreamInfo
	codec *astiav.Codec
	cc    *astiav.CodecContext
	pkt   *astiav.Packet
	frame *astiav.Frame

	pending []*media.DecodedFrame
}

// New opens a decoder for a video stream.
func New(info media.StreamInfo) (*Decoder, error) {
	logOnce.Do(func() { astiav.SetLogLevel(astiav.LogLevelQuiet) })

	id, ok := codecIDs[info.Codec]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoDecoder, info.Codec)
	}
	codec := astiav.FindDecoder(id)
	if codec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDecoder, info.Codec)
	}

	d := &Decoder{info: info, codec: codec}
	if err := d.openContext(); err != nil {
		return nil, err
	}
	d.pkt = astiav.AllocPacket()
	d.frame = astiav.AllocFrame()
	if d.pkt == nil || d.frame == nil {
		d.Close()
		return nil, errors.New("libav: allocation failed")
	}
	return d, nil
}

func (d *Decoder) openContext() error {
	cc := astiav.AllocCodecContext(d.codec)
	if cc == nil {
		return fmt.Errorf("libav: allocating %s context failed", d.info.Codec)
	}
	cc.SetWidth(d.info.Width)
	cc.SetHeight(d.info.Height)
	if err := cc.Open(d.codec, nil); err != nil {
		cc.Free()
		return fmt.Errorf("libav: opening %s decoder failed: %w", d.info.Codec, err)
	}
	d.cc = cc
	return nil
}

// Decode implements media.Decoder. The packet is always consumed whole.
func (d *Decoder) Decode(pkt *media.Packet, data []byte) (int, *media.DecodedFrame, error) {
	if d.cc == nil {
		if err := d.openContext(); err != nil {
			return 0, nil, err
		}
	}
	if len(data) > 0 {
		if err := d.send(pkt, data); err != nil {
			return 0, nil, err
		}
	}
	if len(d.pending) == 0 {
		return len(data), nil, nil
	}
	f := d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	return len(data), f, nil
}

func (d *Decoder) send(pkt *media.Packet, data []byte) error {
	defer d.pkt.Unref()
	if err := d.pkt.FromData(data); err != nil {
		return fmt.Errorf("libav: packet: %w", err)
	}
	pts := pkt.PTS
	if pts == media.NoPTS {
		pts = astiav.NoPtsValue
	}
	d.pkt.SetPts(pts)

	err := d.cc.SendPacket(d.pkt)
	if errors.Is(err, astiav.ErrEagain) {
		// Output is full: drain it and retry once.
		if err := d.receive(); err != nil {
			return err
		}
		err = d.cc.SendPacket(d.pkt)
	}
	if err != nil {
		return fmt.Errorf("libav: send packet: %w", err)
	}
	return d.receive()
}

// receive moves every frame the decoder has ready into pending.
func (d *Decoder) receive() error {
	for {
		err := d.cc.ReceiveFrame(d.frame)
		if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("libav: receive frame: %w", err)
		}
		f, err := d.convert()
		d.frame.Unref()
		if err != nil {
			return err
		}
		d.pending = append(d.pending, f)
	}
}

// convert copies the current frame into a Go image.
func (d *Decoder) convert() (*media.DecodedFrame, error) {
	fd := d.frame.Data()
	img, err := fd.GuessImageFormat()
	if err != nil {
		return nil, fmt.Errorf("libav: %s pixel format: %w", d.frame.PixelFormat(), err)
	}
	if err := fd.ToImage(img); err != nil {
		return nil, fmt.Errorf("libav: copy frame: %w", err)
	}

	pts := d.frame.Pts()
	if pts == astiav.NoPtsValue {
		pts = media.NoPTS
	}
	return &media.DecodedFrame{PTS: pts, Image: img}, nil
}

// Flush implements media.Decoder. The codec context is reopened, which
// drops reference frames and queued output.
func (d *Decoder) Flush() {
	clear(d.pending)
	d.pending = d.pending[:0]
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	// A failed reopen surfaces as an error on the next Decode.
	_ = d.openContext()
}

// Close implements media.Decoder.
func (d *Decoder) Close() error {
	if d.frame != nil {
		d.frame.Free()
		d.frame = nil
	}
	if d.pkt != nil {
		d.pkt.Free()
		d.pkt = nil
	}
	if d.cc != nil {
		d.cc.Free()
		d.cc = nil
	}
	d.pending = nil
	return nil
}
