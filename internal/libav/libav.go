// Package libav decodes inter-frame video codecs (H.264, HEVC, AV1, VP9,
// MPEG-4 Part 2) with the FFmpeg libraries through go-astiav.
//
// Builds with the nolibav tag leave the package without a backend: New
// reports ErrUnavailable and Supported is always false.
package libav

import "errors"

var (
	// ErrUnavailable is returned when the binary was built without libav.
	ErrUnavailable = errors.New("libav: backend not built in")
	// ErrNoDecoder is returned when FFmpeg has no decoder for a codec.
	ErrNoDecoder = errors.New("libav: no decoder for codec")
)
