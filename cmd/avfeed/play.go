package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	avaudio "github.com/linuxmatters/avfeed/internal/audio"
	"github.com/linuxmatters/avfeed/internal/cli"
	"github.com/linuxmatters/avfeed/internal/config"
	"github.com/linuxmatters/avfeed/internal/media"
	"github.com/linuxmatters/avfeed/internal/playback"
	"github.com/linuxmatters/avfeed/internal/renderer"
	"github.com/linuxmatters/avfeed/internal/sink"
	"github.com/linuxmatters/avfeed/internal/ui"
)

// pollInterval bounds how long a consumer waits on an empty queue before it
// re-checks the session state.
const pollInterval = 50 * time.Millisecond

// PlayCmd drives a source through an audio and a video session and consumes
// both queues as fast as they fill.
type PlayCmd struct {
	Input     string  `arg:"" name:"input" help:"Media file to decode." type:"existingfile"`
	Rate      int     `help:"Audio output rate in Hz. 0 uses the config value." default:"0"`
	Seek      float64 `help:"Start position in seconds." default:"0"`
	Limit     float64 `help:"Stop after this many seconds of audio. 0 plays to the end." default:"0"`
	WAV       string  `name:"wav" help:"Write the decoded audio to a WAV file." type:"path" placeholder:"FILE"`
	Snapshot  string  `help:"Save the first video frame as a labelled PNG." type:"path" placeholder:"FILE"`
	NoUI      bool    `name:"no-ui" help:"Disable the progress UI."`
	NoPreview bool    `name:"no-preview" help:"Disable the video preview in the progress UI."`
}

// playStats is shared between the consumers and the progress reporter.
type playStats struct {
	audioBlocks atomic.Int64
	audioFrames atomic.Int64
	videoFrames atomic.Int64
	audioPos    atomic.Value // float64
	videoPos    atomic.Value // float64

	spectrum *avaudio.Spectrum
	levels   avaudio.Levels

	mu    sync.Mutex
	frame *media.VideoFrame
}

func (p *playStats) setFrame(f *media.VideoFrame) {
	p.mu.Lock()
	p.frame = f
	p.mu.Unlock()
}

func (p *playStats) latestFrame() *media.VideoFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame
}

func (p *playStats) writeSamples(samples []int16) {
	p.spectrum.WriteInterleaved(samples, config.AudioChannels)
	p.levels.Write(samples)
}

func loadFloat(v *atomic.Value) float64 {
	f, _ := v.Load().(float64)
	return f
}

// Run implements the play command.
func (c *PlayCmd) Run(app *App) error {
	rate := c.Rate
	if rate <= 0 {
		rate = app.Config.Audio.Rate
	}
	if rate <= 0 {
		rate = config.DefaultSampleRate
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	pair := playback.OpenPair(c.Input, rate,
		playback.WithConfig(app.Config),
		playback.WithLogger(app.Logger),
	)
	defer pair.Close()

	for _, s := range []*playback.Session{pair.Audio, pair.Video} {
		select {
		case <-s.Ready():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if pair.Audio.State() == playback.StateClosed && pair.Video.State() == playback.StateClosed {
		return errors.Join(pair.Audio.Err(), pair.Video.Err())
	}

	if c.Seek > 0 {
		if err := pair.Seek(ctx, c.Seek); err != nil {
			return fmt.Errorf("seek to %.3fs: %w", c.Seek, err)
		}
	}

	stats := &playStats{spectrum: avaudio.NewSpectrum(config.NumBars, config.FFTSize)}
	stats.audioPos.Store(c.Seek)
	stats.videoPos.Store(c.Seek)

	var program *tea.Program
	if !c.NoUI && isatty.IsTerminal(os.Stdout.Fd()) {
		program = tea.NewProgram(ui.NewModel(app.Config.UI.AccentColor, c.NoPreview))
	}

	var snapshotPath string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.consumeAudio(gctx, pair, rate, stats)
	})
	g.Go(func() error {
		path, err := c.consumeVideo(gctx, pair, stats)
		snapshotPath = path
		return err
	})

	if program == nil {
		err := g.Wait()
		return c.printSummary(pair, stats, snapshotPath, time.Since(start), err)
	}

	uiDone := make(chan error, 1)
	go func() {
		_, err := program.Run()
		// Quitting the UI stops playback.
		cancel()
		uiDone <- err
	}()
	program.Send(ui.Opened{
		Source:   c.Input,
		Duration: max(pair.Audio.Duration(), pair.Video.Duration()),
		HasAudio: pair.Audio.State() != playback.StateClosed,
		HasVideo: pair.Video.State() != playback.StateClosed,
		Width:    pair.Video.VisibleWidth(),
		Height:   pair.Video.Height(),
		Rate:     rate,
	})

	consumed := make(chan error, 1)
	go func() { consumed <- g.Wait() }()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var runErr error
loop:
	for {
		select {
		case <-ticker.C:
			program.Send(c.progress(pair, stats, time.Since(start)))
		case runErr = <-consumed:
			break loop
		}
	}

	program.Send(c.finished(stats, snapshotPath, time.Since(start), runErr))
	if err := <-uiDone; err != nil {
		app.Logger.Warn("ui exited with error", "error", err)
	}
	return ignoreCancel(runErr)
}

// consumeAudio drains the audio queue into the spectrum and the optional WAV
// file until the session has nothing more to give or Limit is reached.
func (c *PlayCmd) consumeAudio(ctx context.Context, pair *playback.Pair, rate int, stats *playStats) error {
	q := pair.AudioQueue()
	var enc *wav.Encoder
	if c.WAV != "" {
		f, err := os.Create(c.WAV)
		if err != nil {
			return fmt.Errorf("create %s: %w", c.WAV, err)
		}
		defer f.Close()
		enc = wav.NewEncoder(f, rate, config.AudioBitDepth, config.AudioChannels, 1)
		defer func() {
			if err := enc.Close(); err != nil {
				cli.PrintWarning(fmt.Sprintf("finalise %s: %v", c.WAV, err))
			}
		}()
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: config.AudioChannels, SampleRate: rate},
		SourceBitDepth: config.AudioBitDepth,
	}
	for {
		block, ok, err := next(ctx, q.Queue, pair.Audio)
		if err != nil || !ok {
			return err
		}
		stats.audioBlocks.Add(1)
		stats.audioFrames.Add(int64(block.Frames()))
		end := block.Timestamp + float64(block.Frames())/float64(rate)
		stats.audioPos.Store(end)
		stats.writeSamples(block.Samples)

		if enc != nil {
			buf.Data = buf.Data[:0]
			for _, s := range block.Samples {
				buf.Data = append(buf.Data, int(s))
			}
			if err := enc.Write(buf); err != nil {
				return fmt.Errorf("write %s: %w", c.WAV, err)
			}
		}
		if c.Limit > 0 && end-c.Seek >= c.Limit {
			return nil
		}
	}
}

// consumeVideo drains the video queue until the end-of-stream frame and
// saves the first frame when Snapshot is set. It returns the snapshot path.
func (c *PlayCmd) consumeVideo(ctx context.Context, pair *playback.Pair, stats *playStats) (string, error) {
	q := pair.VideoQueue()
	saved := ""
	for {
		frame, ok, err := next(ctx, q.Queue, pair.Video)
		if err != nil || !ok {
			return saved, err
		}
		if frame.IsEndOfStream() {
			return saved, nil
		}
		stats.videoFrames.Add(1)
		stats.videoPos.Store(frame.Timestamp)
		stats.setFrame(frame)

		if c.Snapshot != "" && saved == "" {
			label := renderer.FormatTimestamp(frame.Timestamp)
			if err := renderer.SaveSnapshot(frame, pair.Video.VisibleWidth(), c.Snapshot, label); err != nil {
				return saved, err
			}
			saved = c.Snapshot
		}
		if c.Limit > 0 && frame.Timestamp-c.Seek >= c.Limit {
			return saved, nil
		}
	}
}

// next pops the next item from q. ok is false once s can produce nothing
// more: it has exited, or it is draining with the queue empty.
func next[T any](ctx context.Context, q *sink.Queue[T], s *playback.Session) (item T, ok bool, err error) {
	for {
		pctx, cancel := context.WithTimeout(ctx, pollInterval)
		item, err = q.PopContext(pctx)
		cancel()
		switch {
		case err == nil:
			return item, true, nil
		case errors.Is(err, sink.ErrClosed):
			return item, false, nil
		case ctx.Err() != nil:
			return item, false, ignoreCancel(ctx.Err())
		}

		if q.Len() > 0 {
			continue
		}
		select {
		case <-s.Done():
			return item, false, sessionErr(s)
		default:
		}
		if s.State() == playback.StateDraining {
			return item, false, nil
		}
	}
}

// sessionErr reports why a session stopped. A missing stream is not a
// failure of the run.
func sessionErr(s *playback.Session) error {
	err := s.Err()
	if errors.Is(err, playback.ErrNoStream) {
		return nil
	}
	return err
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *PlayCmd) progress(pair *playback.Pair, stats *playStats, elapsed time.Duration) ui.Progress {
	return ui.Progress{
		AudioPosition: loadFloat(&stats.audioPos),
		VideoPosition: loadFloat(&stats.videoPos),
		AudioBlocks:   int(stats.audioBlocks.Load()),
		AudioFrames:   stats.audioFrames.Load(),
		VideoFrames:   int(stats.videoFrames.Load()),
		AudioQueued:   pair.AudioQueue().Len(),
		VideoQueued:   pair.VideoQueue().Len(),
		Bars:          stats.spectrum.Bars(),
		Frame:         stats.latestFrame(),
		Elapsed:       elapsed,
	}
}

func (c *PlayCmd) finished(stats *playStats, snapshot string, elapsed time.Duration, err error) ui.Finished {
	f := ui.Finished{
		Elapsed:      elapsed,
		AudioFrames:  stats.audioFrames.Load(),
		VideoFrames:  int(stats.videoFrames.Load()),
		SnapshotPath: snapshot,
		Err:          ignoreCancel(err),
	}
	if c.WAV != "" {
		if info, statErr := os.Stat(c.WAV); statErr == nil {
			f.WAVPath = c.WAV
			f.WAVSize = info.Size()
		}
	}
	return f
}

// printSummary reports a run without the TUI.
func (c *PlayCmd) printSummary(pair *playback.Pair, stats *playStats, snapshot string, elapsed time.Duration, err error) error {
	err = ignoreCancel(err)
	cli.PrintBanner()
	cli.PrintInfo("Input", c.Input)
	cli.PrintInfo("Duration", cli.FormatDuration(time.Duration(max(pair.Audio.Duration(), pair.Video.Duration())*float64(time.Second))))
	cli.PrintInfo("Audio", fmt.Sprintf("%d blocks, %d frames, ended at %.3fs",
		stats.audioBlocks.Load(), stats.audioFrames.Load(), loadFloat(&stats.audioPos)))
	if lv := stats.levels.Stats(); lv.Samples > 0 {
		cli.PrintInfo("Levels", fmt.Sprintf("peak %.3f, rms %.3f, dynamic range %.2f", lv.Peak, lv.RMS, lv.DynamicRange))
	}
	if pair.Video.VisibleWidth() > 0 {
		cli.PrintInfo("Video", fmt.Sprintf("%d frames at %dx%d, ended at %.3fs",
			stats.videoFrames.Load(), pair.Video.VisibleWidth(), pair.Video.Height(), loadFloat(&stats.videoPos)))
	}
	if c.WAV != "" {
		if info, statErr := os.Stat(c.WAV); statErr == nil {
			cli.PrintInfo("WAV", fmt.Sprintf("%s (%s)", c.WAV, cli.FormatBytes(info.Size())))
		}
	}
	if snapshot != "" {
		cli.PrintInfo("Snapshot", snapshot)
	}
	cli.PrintInfo("Elapsed", cli.FormatDuration(elapsed))
	if err == nil {
		cli.PrintSuccess("Done")
	}
	return err
}
