package ui

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/linuxmatters/avfeed/internal/media"
)

// PreviewConfig holds configuration for the video preview
type PreviewConfig struct {
	Width  int // Width in terminal cells
	Height int // Height in terminal cells
}

// DefaultPreviewConfig returns a sensible default preview size
// Using 48x14, close to 16:9 with the 2:1 terminal cell aspect
func DefaultPreviewConfig() PreviewConfig {
	return PreviewConfig{
		Width:  48,
		Height: 14,
	}
}

// DownsampleFrame averages an RGB24 frame down to preview cells. visibleWidth
// excludes the alignment padding; 0 uses the padded width.
func DownsampleFrame(frame *media.VideoFrame, visibleWidth int, config PreviewConfig) [][]color.RGBA {
	if frame.IsEndOfStream() || config.Width <= 0 || config.Height <= 0 {
		return nil
	}
	srcWidth := frame.Width
	if visibleWidth > 0 && visibleWidth < srcWidth {
		srcWidth = visibleWidth
	}
	srcHeight := frame.Height

	// Each cell covers at least one source pixel
	cellWidth := max(srcWidth/config.Width, 1)
	cellHeight := max(srcHeight/config.Height, 1)

	preview := make([][]color.RGBA, config.Height)
	for row := 0; row < config.Height; row++ {
		preview[row] = make([]color.RGBA, config.Width)
		for col := 0; col < config.Width; col++ {
			srcX := col * cellWidth
			srcY := row * cellHeight

			var sumR, sumG, sumB uint32
			pixelCount := 0
			for y := srcY; y < srcY+cellHeight && y < srcHeight; y++ {
				line := frame.Pix[y*frame.Stride:]
				for x := srcX; x < srcX+cellWidth && x < srcWidth; x++ {
					sumR += uint32(line[x*3])
					sumG += uint32(line[x*3+1])
					sumB += uint32(line[x*3+2])
					pixelCount++
				}
			}

			if pixelCount > 0 {
				preview[row][col] = color.RGBA{
					R: uint8(sumR / uint32(pixelCount)),
					G: uint8(sumG / uint32(pixelCount)),
					B: uint8(sumB / uint32(pixelCount)),
					A: 255,
				}
			}
		}
	}
	return preview
}

// RenderPreview converts an RGB preview grid to a string using ANSI 24-bit
// background colours, one space per cell
func RenderPreview(preview [][]color.RGBA) string {
	if len(preview) == 0 {
		return ""
	}

	var result strings.Builder
	border := strings.Repeat("─", len(preview[0]))

	result.WriteString("  Video Preview:\n")
	result.WriteString("  ┌" + border + "┐\n")
	for _, row := range preview {
		result.WriteString("  │")
		for _, pixel := range row {
			// \x1b[48;2;R;G;Bm sets the background colour
			fmt.Fprintf(&result, "\x1b[48;2;%d;%d;%dm \x1b[0m", pixel.R, pixel.G, pixel.B)
		}
		result.WriteString("│\n")
	}
	result.WriteString("  └" + border + "┘\n")
	return result.String()
}
