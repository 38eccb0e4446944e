package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/linuxmatters/avfeed/internal/cli"
	"github.com/linuxmatters/avfeed/internal/media"
	"github.com/linuxmatters/avfeed/internal/probe"
)

// ProbeCmd lists the streams of a file and the stream each session kind
// would pick.
type ProbeCmd struct {
	Input string `arg:"" name:"input" help:"Media file to inspect." type:"existingfile"`
}

// Run implements the probe command.
func (c *ProbeCmd) Run(app *App) error {
	format, err := probe.Sniff(c.Input)
	if err != nil {
		return err
	}
	container, err := probe.Open(c.Input)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.Input, err)
	}
	defer container.Close()

	cli.PrintBanner()
	cli.PrintInfo("File", c.Input)
	cli.PrintInfo("Format", format)
	duration := time.Duration(container.Duration()) * time.Microsecond
	cli.PrintInfo("Duration", cli.FormatDuration(duration))

	cli.PrintSection("Streams")
	streams := container.Streams()
	for _, st := range streams {
		line := describeStream(st)
		dec, err := probe.NewDecoder(st)
		if err != nil {
			cli.PrintWarning(line + " (no decoder)")
			app.Logger.Debug("stream not decodable", "stream", st.Index, "codec", st.Codec, "error", err)
			continue
		}
		_ = dec.Close()
		cli.PrintSuccess(line)
	}

	cli.PrintBox(selection(streams))
	return nil
}

// selection describes the stream a session of each kind would decode.
func selection(streams []media.StreamInfo) string {
	lines := []string{cli.HeaderStyle.Render("Selection")}
	for _, kind := range []media.Kind{media.KindAudio, media.KindVideo} {
		choice := "none"
		if idx, ok := media.BestStream(streams, kind); ok {
			choice = fmt.Sprintf("stream #%d", idx)
		}
		lines = append(lines, cli.KeyStyle.Render(kind.String()+":")+" "+cli.ValueStyle.Render(choice))
	}
	return strings.Join(lines, "\n")
}

func describeStream(st media.StreamInfo) string {
	parts := []string{fmt.Sprintf("#%d", st.Index), st.Kind.String(), st.Codec}
	switch st.Kind {
	case media.KindAudio:
		parts = append(parts,
			fmt.Sprintf("%d Hz", st.SampleRate),
			fmt.Sprintf("%d ch", st.Channels),
			st.SampleFormat.String())
	case media.KindVideo:
		parts = append(parts, fmt.Sprintf("%dx%d", st.Width, st.Height))
	}
	if st.Duration > 0 {
		parts = append(parts, fmt.Sprintf("%.2fs", st.Seconds(st.Duration)))
	}
	return strings.Join(parts, "  ")
}
