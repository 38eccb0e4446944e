package convert

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// AlignUp rounds n up to a multiple of align. align must be a power of two.
func AlignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}

// FitWidth returns the output size for a source picture limited to maxWidth
// pixels wide, keeping the aspect ratio. maxWidth <= 0 keeps the source size.
func FitWidth(srcW, srcH, maxWidth int) (int, int) {
	if maxWidth <= 0 || srcW <= maxWidth {
		return srcW, srcH
	}
	h := srcH * maxWidth / srcW
	if h < 1 {
		h = 1
	}
	return maxWidth, h
}

// Scaler converts decoded pictures to packed RGB24 with the row width padded
// to an alignment boundary. Padding columns are written black.
type Scaler struct {
	srcW, srcH int
	dstW, dstH int
	padW       int

	interp  draw.Interpolator
	scratch *image.RGBA
}

// NewScaler creates a scaler from srcW x srcH to dstW x dstH with the
// output row width rounded up to align pixels. Same-size conversion uses
// nearest-neighbour sampling, resizing uses approximate bilinear.
func NewScaler(srcW, srcH, dstW, dstH, align int) (*Scaler, error) {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return nil, fmt.Errorf("convert: invalid scale %dx%d -> %dx%d", srcW, srcH, dstW, dstH)
	}
	s := &Scaler{
		srcW: srcW, srcH: srcH,
		dstW: dstW, dstH: dstH,
		padW:   AlignUp(dstW, align),
		interp: draw.NearestNeighbor,
	}
	if srcW != dstW || srcH != dstH {
		s.interp = draw.ApproxBiLinear
	}
	return s, nil
}

// SourceSize returns the input picture size the scaler was built for.
func (s *Scaler) SourceSize() (int, int) { return s.srcW, s.srcH }

// Width returns the padded output width in pixels.
func (s *Scaler) Width() int { return s.padW }

// Height returns the output height in pixels.
func (s *Scaler) Height() int { return s.dstH }

// Stride returns the output row size in bytes.
func (s *Scaler) Stride() int { return s.padW * 3 }

// FrameSize returns the number of bytes one output frame needs.
func (s *Scaler) FrameSize() int { return s.Stride() * s.dstH }

// Scale writes img into dst as RGB24. dst must hold FrameSize bytes.
func (s *Scaler) Scale(img image.Image, dst []byte) error {
	if len(dst) < s.FrameSize() {
		return fmt.Errorf("convert: destination holds %d bytes, want %d", len(dst), s.FrameSize())
	}
	b := img.Bounds()
	if b.Dx() != s.srcW || b.Dy() != s.srcH {
		return fmt.Errorf("convert: picture is %dx%d, scaler expects %dx%d", b.Dx(), b.Dy(), s.srcW, s.srcH)
	}

	if s.srcW == s.dstW && s.srcH == s.dstH {
		switch src := img.(type) {
		case *image.YCbCr:
			s.fromYCbCr(src, dst)
			return nil
		case *image.RGBA:
			s.fromRGBA(src, dst)
			return nil
		}
	}

	if s.scratch == nil {
		s.scratch = image.NewRGBA(image.Rect(0, 0, s.dstW, s.dstH))
	}
	r := s.scratch.Bounds()
	if s.srcW == s.dstW && s.srcH == s.dstH {
		draw.Draw(s.scratch, r, img, b.Min, draw.Src)
	} else {
		s.interp.Scale(s.scratch, r, img, b, draw.Src, nil)
	}
	s.fromRGBA(s.scratch, dst)
	return nil
}

func (s *Scaler) fromYCbCr(src *image.YCbCr, dst []byte) {
	b := src.Bounds()
	stride := s.Stride()
	for y := 0; y < s.dstH; y++ {
		row := dst[y*stride : (y+1)*stride]
		for x := 0; x < s.dstW; x++ {
			yi := src.YOffset(b.Min.X+x, b.Min.Y+y)
			ci := src.COffset(b.Min.X+x, b.Min.Y+y)
			r, g, bl := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
			row[x*3] = r
			row[x*3+1] = g
			row[x*3+2] = bl
		}
		clear(row[s.dstW*3:])
	}
}

func (s *Scaler) fromRGBA(src *image.RGBA, dst []byte) {
	b := src.Bounds()
	stride := s.Stride()
	for y := 0; y < s.dstH; y++ {
		row := dst[y*stride : (y+1)*stride]
		in := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
		for x := 0; x < s.dstW; x++ {
			row[x*3] = in[x*4]
			row[x*3+1] = in[x*4+1]
			row[x*3+2] = in[x*4+2]
		}
		clear(row[s.dstW*3:])
	}
}
