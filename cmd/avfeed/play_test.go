package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	avaudio "github.com/linuxmatters/avfeed/internal/audio"
	"github.com/linuxmatters/avfeed/internal/config"
	"github.com/linuxmatters/avfeed/internal/playback"
)

func writeTone(t *testing.T, path string, rate, frames int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	data := make([]int, frames)
	for i := range data {
		if i%20 < 10 {
			data[i] = 8000
		} else {
			data[i] = -8000
		}
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPlay_ConsumersDrainAudioOnlySource(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "tone.wav")
	out := filepath.Join(dir, "out.wav")
	const rate, frames = 22050, 2205
	writeTone(t, in, rate, frames)

	cfg := config.Defaults()
	cfg.Decode.EOFPauseMs = 5
	pair := playback.OpenPair(in, rate,
		playback.WithConfig(cfg),
		playback.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	defer pair.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats := &playStats{spectrum: avaudio.NewSpectrum(config.NumBars, config.FFTSize)}
	c := &PlayCmd{Input: in, WAV: out}

	if err := c.consumeAudio(ctx, pair, rate, stats); err != nil {
		t.Fatalf("consumeAudio failed: %v", err)
	}
	if got := stats.audioFrames.Load(); got != frames {
		t.Errorf("consumed %d frames, want %d", got, frames)
	}
	if lv := stats.levels.Stats(); lv.Peak <= 0 || lv.RMS <= 0 {
		t.Errorf("levels = %+v, want non-zero peak and rms", lv)
	}

	path, err := c.consumeVideo(ctx, pair, stats)
	if err != nil {
		t.Fatalf("consumeVideo on an audio-only source: %v", err)
	}
	if path != "" || stats.videoFrames.Load() != 0 {
		t.Errorf("video consumer produced %d frames, snapshot %q", stats.videoFrames.Load(), path)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatal("output is not a valid WAV file")
	}
	if d.NumChans != config.AudioChannels || d.SampleRate != rate || d.BitDepth != config.AudioBitDepth {
		t.Errorf("output format = %d ch, %d Hz, %d bit", d.NumChans, d.SampleRate, d.BitDepth)
	}
}

func TestIgnoreCancel(t *testing.T) {
	if err := ignoreCancel(context.Canceled); err != nil {
		t.Errorf("ignoreCancel(Canceled) = %v", err)
	}
	if err := ignoreCancel(context.DeadlineExceeded); err == nil {
		t.Error("ignoreCancel dropped a deadline error")
	}
}
