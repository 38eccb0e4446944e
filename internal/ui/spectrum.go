package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	spectrumBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

	// Fire gradient colours from low to high intensity
	spectrumColors = []lipgloss.Color{
		lipgloss.Color("#8B0000"), // Dark red (ember)
		lipgloss.Color("#B22222"), // Firebrick
		lipgloss.Color("#DC143C"), // Crimson
		lipgloss.Color("#FF4500"), // Orange-red
		lipgloss.Color("#FF6347"), // Tomato
		lipgloss.Color("#FF8C00"), // Dark orange
		lipgloss.Color("#FFA500"), // Orange
		lipgloss.Color("#FFD700"), // Gold/Yellow
	}
)

// renderSpectrum draws bar heights in [0, 1] as two rows of block glyphs.
// Bars are sampled down to at most width columns.
func renderSpectrum(barHeights []float64, width int) string {
	if len(barHeights) == 0 || width <= 0 {
		return ""
	}

	stride := len(barHeights) / width
	if stride == 0 {
		stride = 1
	}
	heights := make([]float64, 0, width)
	for i := 0; i < len(barHeights) && len(heights) < width; i += stride {
		heights = append(heights, min(max(barHeights[i], 0), 1))
	}

	var result strings.Builder

	// Top row shows the portion above 0.5
	for _, h := range heights {
		if h <= 0.5 {
			result.WriteString(" ")
			continue
		}
		result.WriteString(spectrumCell(h, (h-0.5)*2))
	}
	result.WriteString("\n")

	// Bottom row is full once the bar reaches the top row
	for _, h := range heights {
		result.WriteString(spectrumCell(h, min(h*2, 1)))
	}
	return result.String()
}

// spectrumCell renders one glyph filled to fill, coloured by the bar height h.
func spectrumCell(h, fill float64) string {
	blockIdx := min(int(fill*float64(len(spectrumBlocks)-1)), len(spectrumBlocks)-1)
	colorIdx := min(int(h*float64(len(spectrumColors)-1)), len(spectrumColors)-1)
	return lipgloss.NewStyle().
		Foreground(spectrumColors[colorIdx]).
		Render(string(spectrumBlocks[blockIdx]))
}
