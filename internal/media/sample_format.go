package media

// SampleFormat identifies the layout of decoded PCM audio.
type SampleFormat int

const (
	SampleFmtNone SampleFormat = iota
	SampleFmtS16               // 16-bit signed interleaved
	SampleFmtS32               // 32-bit signed interleaved
	SampleFmtFlt               // 32-bit float interleaved
	SampleFmtS16P              // 16-bit signed planar
	SampleFmtS32P              // 32-bit signed planar
	SampleFmtFltP              // 32-bit float planar
)

// IsPlanar reports whether each channel is stored in its own plane.
func (f SampleFormat) IsPlanar() bool {
	return f == SampleFmtS16P || f == SampleFmtS32P || f == SampleFmtFltP
}

// BytesPerSample returns the size of one sample of one channel.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case SampleFmtS16, SampleFmtS16P:
		return 2
	case SampleFmtS32, SampleFmtS32P, SampleFmtFlt, SampleFmtFltP:
		return 4
	default:
		return 0
	}
}

func (f SampleFormat) String() string {
	switch f {
	case SampleFmtS16:
		return "s16"
	case SampleFmtS32:
		return "s32"
	case SampleFmtFlt:
		return "flt"
	case SampleFmtS16P:
		return "s16p"
	case SampleFmtS32P:
		return "s32p"
	case SampleFmtFltP:
		return "fltp"
	default:
		return "none"
	}
}
