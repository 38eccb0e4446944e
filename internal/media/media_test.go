package media

import "testing"

func TestBestStream(t *testing.T) {
	streams := []StreamInfo{
		{Index: 0, Kind: KindVideo, Width: 320, Height: 240},
		{Index: 1, Kind: KindAudio, Channels: 1, SampleRate: 48000},
		{Index: 2, Kind: KindVideo, Width: 1280, Height: 720},
		{Index: 3, Kind: KindAudio, Channels: 2, SampleRate: 22050},
		{Index: 4, Kind: KindAudio, Channels: 2, SampleRate: 22050},
	}

	testCases := []struct {
		name  string
		kind  Kind
		want  int
		found bool
	}{
		{name: "largest video", kind: KindVideo, want: 2, found: true},
		{name: "most channels wins over rate, first on tie", kind: KindAudio, want: 3, found: true},
		{name: "missing kind", kind: KindUnknown, want: -1, found: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := BestStream(streams, tc.kind)
			if ok != tc.found || got != tc.want {
				t.Errorf("BestStream(%v) = %d, %v; want %d, %v", tc.kind, got, ok, tc.want, tc.found)
			}
		})
	}
}

func TestEndOfStreamSentinel(t *testing.T) {
	if !EndOfStream().IsEndOfStream() {
		t.Error("EndOfStream() is not recognised as the sentinel")
	}
	var nilFrame *VideoFrame
	if !nilFrame.IsEndOfStream() {
		t.Error("nil frame should count as end of stream")
	}
	f := &VideoFrame{Width: 16, Height: 1, Stride: 48, Pix: make([]byte, 48)}
	if f.IsEndOfStream() {
		t.Error("frame with pixels reported as end of stream")
	}
}

func TestSampleFormat(t *testing.T) {
	testCases := []struct {
		format SampleFormat
		planar bool
		bytes  int
	}{
		{SampleFmtS16, false, 2},
		{SampleFmtS32, false, 4},
		{SampleFmtFlt, false, 4},
		{SampleFmtS16P, true, 2},
		{SampleFmtS32P, true, 4},
		{SampleFmtFltP, true, 4},
		{SampleFmtNone, false, 0},
	}
	for _, tc := range testCases {
		if got := tc.format.IsPlanar(); got != tc.planar {
			t.Errorf("%v.IsPlanar() = %v, want %v", tc.format, got, tc.planar)
		}
		if got := tc.format.BytesPerSample(); got != tc.bytes {
			t.Errorf("%v.BytesPerSample() = %d, want %d", tc.format, got, tc.bytes)
		}
	}
}

func TestSampleBlockFrames(t *testing.T) {
	b := SampleBlock{Channels: 2, Samples: make([]int16, 10)}
	if got := b.Frames(); got != 5 {
		t.Errorf("Frames() = %d, want 5", got)
	}
	if got := (SampleBlock{}).Frames(); got != 0 {
		t.Errorf("empty block Frames() = %d, want 0", got)
	}
}
