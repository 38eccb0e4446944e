package media

// VideoFrame is a playback-ready RGB24 picture.
//
// Width is the padded buffer width, so Pix holds Stride*Height bytes with
// Stride = Width*3. A frame with nil Pix marks the end of the stream.
type VideoFrame struct {
	Timestamp float64
	Width     int
	Height    int
	Stride    int
	Pix       []byte
}

// EndOfStream returns the end-of-stream sentinel frame.
func EndOfStream() *VideoFrame {
	return &VideoFrame{}
}

// IsEndOfStream reports whether f is the end-of-stream sentinel.
func (f *VideoFrame) IsEndOfStream() bool {
	return f == nil || f.Pix == nil
}

// SampleBlock is a burst of interleaved 16-bit PCM audio.
type SampleBlock struct {
	// Timestamp of the first sample in seconds.
	Timestamp float64
	Channels  int
	Samples   []int16
}

// Frames returns the number of sample frames (samples per channel).
func (b SampleBlock) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}
