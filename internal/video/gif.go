package video

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"io"
	"os"

	"github.com/linuxmatters/avfeed/internal/media"
)

// gifTimescale is the GIF delay unit: 1/100 s.
const gifTimescale = 100

// defaultGIFDelay replaces zero delays, matching common browser behaviour.
const defaultGIFDelay = 10

type gifFrame struct {
	pts int64
	pix []byte
}

// GIFContainer implements media.Container for animated GIFs. Frames are
// composited onto a canvas at open time and served as raw RGBA packets, so
// every packet is independently decodable.
type GIFContainer struct {
	info   media.StreamInfo
	frames []gifFrame
	next   int
	end    int64 // stream end in 1/100 s
}

// OpenGIF decodes and composites every frame of an animated GIF.
func OpenGIF(path string) (*GIFContainer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("decode gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, ErrNoFrames
	}

	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}
	bounds := image.Rect(0, 0, w, h)
	canvas := image.NewRGBA(bounds)

	c := &GIFContainer{
		info: media.StreamInfo{
			Index:    0,
			Kind:     media.KindVideo,
			Codec:    CodecRawVideo,
			TimeBase: media.Rational{Num: 1, Den: gifTimescale},
			Width:    w,
			Height:   h,
		},
	}

	var pts int64
	for i, frame := range g.Image {
		var disposal byte
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		var restore *image.RGBA
		if disposal == gif.DisposalPrevious {
			restore = image.NewRGBA(bounds)
			copy(restore.Pix, canvas.Pix)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		c.frames = append(c.frames, gifFrame{
			pts: pts,
			pix: append([]byte(nil), canvas.Pix...),
		})

		delay := defaultGIFDelay
		if i < len(g.Delay) && g.Delay[i] > 0 {
			delay = g.Delay[i]
		}
		pts += int64(delay)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			copy(canvas.Pix, restore.Pix)
		}
	}
	c.end = pts
	c.info.Duration = pts
	return c, nil
}

// Format implements media.Container.
func (c *GIFContainer) Format() string { return "gif" }

// Streams implements media.Container.
func (c *GIFContainer) Streams() []media.StreamInfo { return []media.StreamInfo{c.info} }

// ReadPacket returns the next composited frame.
func (c *GIFContainer) ReadPacket() (*media.Packet, error) {
	if c.next >= len(c.frames) {
		return nil, io.EOF
	}
	f := c.frames[c.next]
	c.next++
	return &media.Packet{
		StreamIndex: 0,
		PTS:         f.pts,
		Keyframe:    true,
		Data:        f.pix,
	}, nil
}

// Seek moves to the frame shown at target microseconds, or with forward
// seeks the first frame starting at or after it.
func (c *GIFContainer) Seek(target int64, flags media.SeekFlags) error {
	ts := target * gifTimescale / media.TimeBase
	idx := 0
	for i, f := range c.frames {
		if f.pts <= ts {
			idx = i
		}
	}
	if flags&media.SeekBackward == 0 && c.frames[idx].pts < ts && idx+1 < len(c.frames) {
		idx++
	}
	c.next = idx
	return nil
}

// Duration implements media.Container.
func (c *GIFContainer) Duration() int64 { return c.end * media.TimeBase / gifTimescale }

// StartTime implements media.Container.
func (c *GIFContainer) StartTime() int64 { return 0 }

// Close implements media.Container. Frames live in memory.
func (c *GIFContainer) Close() error {
	c.frames = nil
	return nil
}
