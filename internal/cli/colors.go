package cli

import "github.com/charmbracelet/lipgloss"

// Fire colour palette 🔥
// Shared with the playback TUI so the CLI and the progress display match
var (
	FireYellow  = lipgloss.Color("#FFD700") // Bright yellow
	FireOrange  = lipgloss.Color("#FF8C00") // Deep orange
	FireRed     = lipgloss.Color("#FF4500") // Orange-red
	FireCrimson = lipgloss.Color("#DC143C") // Deep crimson

	WarmGray = lipgloss.Color("#B8860B") // Dark goldenrod for subtle text
)

const (
	appName    = "avfeed"
	appTagline = "Decode audio and video into timestamped frames for real-time playback."
)
