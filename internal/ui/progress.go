// Package ui is the terminal progress display for avfeed play.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/linuxmatters/avfeed/internal/media"
)

// Fire colour palette 🔥
var (
	fireYellow  = lipgloss.Color("#FFD700") // Bright yellow
	fireOrange  = lipgloss.Color("#FF8C00") // Deep orange
	fireRed     = lipgloss.Color("#FF4500") // Orange-red
	fireCrimson = lipgloss.Color("#DC143C") // Deep crimson

	warmGray = lipgloss.Color("#B8860B") // Dark goldenrod for subtle text
)

// Opened describes the source once both sessions have opened.
type Opened struct {
	Source   string
	Duration float64 // seconds
	HasAudio bool
	HasVideo bool
	Width    int
	Height   int
	Rate     int
}

// Progress is a periodic snapshot of the consumers.
type Progress struct {
	AudioPosition float64
	VideoPosition float64
	AudioBlocks   int
	AudioFrames   int64
	VideoFrames   int
	AudioQueued   int
	VideoQueued   int
	Bars          []float64
	Frame         *media.VideoFrame // Latest video frame, may be nil
	Elapsed       time.Duration
}

// Finished ends the display.
type Finished struct {
	Elapsed      time.Duration
	AudioFrames  int64
	VideoFrames  int
	WAVPath      string
	WAVSize      int64
	SnapshotPath string
	Err          error
}

// finishQuitMsg is sent when it's time to quit after showing completion
type finishQuitMsg struct{}

// Model is the bubbletea model for a play run.
type Model struct {
	progressBar progress.Model
	accent      lipgloss.Color

	opened   *Opened
	state    Progress
	finished *Finished

	width           int
	noPreview       bool
	cachedPreview   string
	cachedFrameTS   float64
	completionDelay time.Duration
	startTime       time.Time
}

// NewModel creates the progress model. accent is a hex colour for the
// progress gradient end; empty uses the fire yellow.
func NewModel(accent string, noPreview bool) *Model {
	end := fireYellow
	if accent != "" {
		end = lipgloss.Color(accent)
	}
	p := progress.New(
		progress.WithGradient(string(fireCrimson), string(end)),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)
	return &Model{
		progressBar:     p,
		accent:          end,
		noPreview:       noPreview,
		cachedFrameTS:   -1,
		completionDelay: time.Second,
		startTime:       time.Now(),
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(10, min(msg.Width-30, 50))
		return m, nil

	case Opened:
		m.opened = &msg
		return m, nil

	case Progress:
		m.state = msg
		return m, nil

	case Finished:
		m.finished = &msg
		return m, tea.Tick(m.completionDelay, func(time.Time) tea.Msg {
			return finishQuitMsg{}
		})

	case finishQuitMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		if m.finished != nil {
			return m, tea.Quit
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
	}
	return m, nil
}

// View renders the UI
func (m *Model) View() string {
	if m.finished != nil {
		return m.Summary()
	}
	return m.renderProgress()
}

// Summary returns the completion summary, or "" before Finished arrives.
func (m *Model) Summary() string {
	if m.finished == nil {
		return ""
	}
	f := m.finished
	var s strings.Builder

	s.WriteString(m.renderTitle())
	s.WriteString("\n\n")

	labelStyle := lipgloss.NewStyle().Foreground(warmGray)
	valueStyle := lipgloss.NewStyle().Bold(true)
	row := func(label, value string) {
		s.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", label)))
		s.WriteString(valueStyle.Render(value))
		s.WriteString("\n")
	}

	row("Time:", formatDuration(f.Elapsed))
	if f.AudioFrames > 0 {
		row("Audio:", fmt.Sprintf("%d frames", f.AudioFrames))
	}
	if f.VideoFrames > 0 {
		row("Video:", fmt.Sprintf("%d frames", f.VideoFrames))
	}
	if f.WAVPath != "" {
		row("WAV:", fmt.Sprintf("%s (%s)", f.WAVPath, formatBytes(f.WAVSize)))
	}
	if f.SnapshotPath != "" {
		row("Snapshot:", f.SnapshotPath)
	}

	border := fireOrange
	if f.Err != nil {
		border = fireRed
		s.WriteString("\n")
		s.WriteString(lipgloss.NewStyle().Foreground(fireRed).Bold(true).Render("Error: " + f.Err.Error()))
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(1, 2).
		Render(s.String())
}

func (m *Model) renderTitle() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(m.accent).Render("avfeed")
	if m.opened != nil {
		title += "  " + lipgloss.NewStyle().Faint(true).Render(m.opened.Source)
	}
	return title
}

func (m *Model) renderProgress() string {
	var s strings.Builder
	s.WriteString(m.renderTitle())
	s.WriteString("\n\n")

	if m.opened == nil {
		s.WriteString(lipgloss.NewStyle().Faint(true).Render("Opening..."))
		return m.box(s.String())
	}

	position := max(m.state.AudioPosition, m.state.VideoPosition)
	if m.opened.Duration > 0 {
		percent := min(position/m.opened.Duration, 1)
		s.WriteString("Position: ")
		s.WriteString(m.progressBar.ViewAs(percent))
		s.WriteString(fmt.Sprintf("  %d%%", int(percent*100)))
		s.WriteString("\n\n")
	}

	elapsed := m.state.Elapsed
	if elapsed == 0 {
		elapsed = time.Since(m.startTime)
	}
	var speed float64
	if elapsed > 0 {
		speed = position / elapsed.Seconds()
	}
	s.WriteString(lipgloss.NewStyle().Faint(true).Render(
		fmt.Sprintf("Time: %s  │  Media: %s / %s  │  Speed: %.1fx realtime",
			formatDuration(elapsed),
			formatSeconds(position),
			formatSeconds(m.opened.Duration),
			speed)))
	s.WriteString("\n\n")

	labelStyle := lipgloss.NewStyle().Foreground(warmGray)
	if m.opened.HasAudio {
		s.WriteString(labelStyle.Render("Audio: "))
		s.WriteString(fmt.Sprintf("%d Hz  │  %d blocks  │  queued %d", m.opened.Rate, m.state.AudioBlocks, m.state.AudioQueued))
		s.WriteString("\n")
	}
	if m.opened.HasVideo {
		s.WriteString(labelStyle.Render("Video: "))
		s.WriteString(fmt.Sprintf("%dx%d  │  %d frames  │  queued %d", m.opened.Width, m.opened.Height, m.state.VideoFrames, m.state.VideoQueued))
		s.WriteString("\n")
	}

	if len(m.state.Bars) > 0 {
		spectrumWidth := 64
		if m.width > 10 {
			spectrumWidth = min(m.width-10, 64)
		}
		s.WriteString("\n")
		s.WriteString(lipgloss.NewStyle().Foreground(fireOrange).Render("Spectrum:"))
		s.WriteString("\n")
		s.WriteString(renderSpectrum(m.state.Bars, spectrumWidth))
		s.WriteString("\n")
	}

	if !m.noPreview && m.state.Frame != nil && !m.state.Frame.IsEndOfStream() {
		if m.state.Frame.Timestamp != m.cachedFrameTS {
			m.cachedPreview = RenderPreview(DownsampleFrame(m.state.Frame, m.opened.Width, DefaultPreviewConfig()))
			m.cachedFrameTS = m.state.Frame.Timestamp
		}
		s.WriteString("\n")
		s.WriteString(m.cachedPreview)
	}

	return m.box(s.String())
}

func (m *Model) box(content string) string {
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(fireRed).
		Padding(1, 2).
		Render(content)
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// formatSeconds renders a media position as M:SS.
func formatSeconds(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	total := int(sec)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func formatBytes(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}

	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"KB", "MB", "GB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), units[exp])
}
