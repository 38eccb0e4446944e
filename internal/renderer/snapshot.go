// Package renderer turns decoded video frames into still images.
package renderer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"github.com/linuxmatters/avfeed/internal/config"
	"github.com/linuxmatters/avfeed/internal/media"
)

// ErrEmptyFrame is returned for the end-of-stream sentinel or a frame whose
// buffer does not match its dimensions.
var ErrEmptyFrame = errors.New("renderer: frame has no picture")

const (
	labelMargin  = 8    // Distance of the label box from the frame edges
	labelPadding = 4    // Space between the text and the box edge
	labelMaxFrac = 0.45 // Label may use at most this share of the frame width
	labelMaxSize = 48.0
	labelMinSize = 6.0
)

// getLabelColor returns the brand yellow used for snapshot labels
func getLabelColor() color.RGBA {
	return color.RGBA{R: config.TextColorR, G: config.TextColorG, B: config.TextColorB, A: 255}
}

// FrameImage copies an RGB24 frame into an RGBA image. visibleWidth crops the
// alignment padding; 0 keeps the full padded width.
func FrameImage(f *media.VideoFrame, visibleWidth int) (*image.RGBA, error) {
	if f.IsEndOfStream() || f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Stride*f.Height {
		return nil, ErrEmptyFrame
	}
	w := f.Width
	if visibleWidth > 0 && visibleWidth < w {
		w = visibleWidth
	}

	img := image.NewRGBA(image.Rect(0, 0, w, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Stride:]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 0xff
		}
	}
	return img, nil
}

// SaveSnapshot writes f as a PNG with label drawn in the bottom-left corner.
// An empty label writes the bare frame.
func SaveSnapshot(f *media.VideoFrame, visibleWidth int, outputPath, label string) error {
	img, err := FrameImage(f, visibleWidth)
	if err != nil {
		return err
	}

	if label != "" {
		parsedFont, err := truetype.Parse(goregular.TTF)
		if err != nil {
			return fmt.Errorf("failed to parse font: %w", err)
		}
		fontSize := findLabelFontSize(parsedFont, label, img.Bounds().Dx())
		face := truetype.NewFace(parsedFont, &truetype.Options{
			Size: fontSize,
			DPI:  72,
		})
		defer face.Close()
		drawLabel(img, face, label)
	}

	if err := savePNG(img, outputPath); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// FormatTimestamp renders seconds as HH:MM:SS.mmm.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds*1000 + 0.5)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

// findLabelFontSize finds the largest font size whose rendered label fits
// within labelMaxFrac of the frame width
func findLabelFontSize(parsedFont *truetype.Font, label string, frameWidth int) float64 {
	maxWidth := int(float64(frameWidth) * labelMaxFrac)

	for size := labelMaxSize; size > labelMinSize; size -= 2.0 {
		face := truetype.NewFace(parsedFont, &truetype.Options{
			Size: size,
			DPI:  72,
		})
		width, _ := measureText(face, label)
		face.Close()

		if width <= maxWidth {
			return size
		}
	}
	return labelMinSize
}

// measureText returns the width and bounds of rendered text
// (Min.Y is negative for ascent, Max.Y is positive for descent)
func measureText(face font.Face, text string) (int, fixed.Rectangle26_6) {
	d := &font.Drawer{Face: face}
	bounds, _ := d.BoundString(text)
	width := (bounds.Max.X - bounds.Min.X).Ceil()
	return width, bounds
}

// drawLabel draws text over a translucent black box anchored bottom-left.
// The box is clipped to the image on small frames.
func drawLabel(img *image.RGBA, face font.Face, text string) {
	width, bounds := measureText(face, text)
	height := (bounds.Max.Y - bounds.Min.Y).Ceil()

	b := img.Bounds()
	box := image.Rect(
		labelMargin,
		b.Dy()-labelMargin-height-2*labelPadding,
		labelMargin+width+2*labelPadding,
		b.Dy()-labelMargin,
	).Intersect(b)
	draw.Draw(img, box, image.NewUniform(color.RGBA{A: 160}), image.Point{}, draw.Over)

	// Visual top = baseline + Min.Y, so baseline = top - Min.Y
	baselineY := box.Min.Y + labelPadding - bounds.Min.Y.Ceil()
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(getLabelColor()),
		Face: face,
		Dot:  freetype.Pt(labelMargin+labelPadding-bounds.Min.X.Floor(), baselineY),
	}
	d.DrawString(text)
}

// savePNG saves img to a PNG file
func savePNG(img image.Image, outputPath string) error {
	outFile, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := png.Encode(outFile, img); err != nil {
		outFile.Close()
		return err
	}
	return outFile.Close()
}
