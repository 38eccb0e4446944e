// Package probe picks the container backend for a file and the codec for a
// stream.
package probe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/linuxmatters/avfeed/internal/audio"
	"github.com/linuxmatters/avfeed/internal/libav"
	"github.com/linuxmatters/avfeed/internal/media"
	"github.com/linuxmatters/avfeed/internal/video"
)

var (
	// ErrUnknownFormat is returned when no backend recognises a file.
	ErrUnknownFormat = errors.New("probe: unknown container format")
	// ErrUnsupportedCodec is returned when no decoder handles a stream.
	ErrUnsupportedCodec = errors.New("probe: unsupported codec")
)

// Format names returned by Sniff.
const (
	FormatWAV  = "wav"
	FormatMP3  = "mp3"
	FormatFLAC = "flac"
	FormatMP4  = "mp4"
	FormatGIF  = "gif"
)

// Sniff identifies a container from its leading bytes, falling back to the
// file extension.
func Sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read header: %w", err)
	}
	if format := sniffBytes(head[:n]); format != "" {
		return format, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return FormatWAV, nil
	case ".mp3":
		return FormatMP3, nil
	case ".flac":
		return FormatFLAC, nil
	case ".mp4", ".m4v", ".mov", ".m4a":
		return FormatMP4, nil
	case ".gif":
		return FormatGIF, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Base(path))
}

func sniffBytes(head []byte) string {
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWAV
	case bytes.HasPrefix(head, []byte("fLaC")):
		return FormatFLAC
	case bytes.HasPrefix(head, []byte("GIF87a")), bytes.HasPrefix(head, []byte("GIF89a")):
		return FormatGIF
	case len(head) >= 8 && isMP4Box(head[4:8]):
		return FormatMP4
	case bytes.HasPrefix(head, []byte("ID3")):
		return FormatMP3
	case len(head) >= 2 && head[0] == 0xff && head[1]&0xe0 == 0xe0:
		// MPEG audio frame sync
		return FormatMP3
	}
	return ""
}

func isMP4Box(boxType []byte) bool {
	switch string(boxType) {
	case "ftyp", "moov", "mdat", "free", "styp", "wide":
		return true
	}
	return false
}

// Open sniffs path and opens it with the matching container backend.
func Open(path string) (media.Container, error) {
	format, err := Sniff(path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatWAV:
		c, err := audio.OpenWAV(path)
		if err != nil {
			return nil, err
		}
		return c, nil
	case FormatMP3:
		c, err := audio.OpenMP3(path)
		if err != nil {
			return nil, err
		}
		return c, nil
	case FormatFLAC:
		c, err := audio.OpenFLAC(path)
		if err != nil {
			return nil, err
		}
		return c, nil
	case FormatMP4:
		c, err := video.OpenMP4(path)
		if err != nil {
			return nil, err
		}
		return c, nil
	case FormatGIF:
		c, err := video.OpenGIF(path)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
}

// NewDecoder creates a decoder for the given stream.
func NewDecoder(info media.StreamInfo) (media.Decoder, error) {
	switch {
	case info.Kind == media.KindAudio && audio.IsPCM(info.Codec):
		dec, err := audio.NewPCMDecoder(info, audio.DefaultMaxFrames)
		if err != nil {
			return nil, err
		}
		return dec, nil
	case info.Kind == media.KindVideo && libav.Supported(info.Codec):
		dec, err := libav.New(info)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", info.Codec, err)
		}
		return dec, nil
	case info.Kind == media.KindVideo:
		dec, err := video.NewImageDecoder(info)
		if errors.Is(err, video.ErrUnsupportedCodec) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, info.Codec)
		}
		if err != nil {
			return nil, err
		}
		return dec, nil
	}
	return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedCodec, info.Kind, info.Codec)
}
