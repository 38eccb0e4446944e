// Package video implements the video container backends (MP4 and animated
// GIF) and the still-image codecs their packets carry.
package video

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Eyevinn/mp4ff/avc"
	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/linuxmatters/avfeed/internal/media"
)

var (
	// ErrNoFrames is returned for a container without any decodable samples.
	ErrNoFrames = errors.New("video: no frames found")
	// ErrBadSample is returned for a sample whose NAL unit lengths overrun it.
	ErrBadSample = errors.New("video: malformed length-prefixed sample")
)

// mp4Sample is one indexed sample of an MP4 track.
type mp4Sample struct {
	decodeTime uint64
	cto        int32 // composition offset, pts = decodeTime + cto
	dur        uint32
	sync       bool

	// Progressive files read lazily from offset, fragmented ones keep data.
	offset uint64
	size   uint32
	data   []byte
}

type mp4Track struct {
	info    media.StreamInfo
	trackID uint32
	samples []mp4Sample
	next    int

	// Set for AVC and HEVC tracks: samples are rewritten to Annex-B and
	// sync samples are prefixed with the parameter sets.
	annexB    bool
	paramSets []byte
}

// MP4Container implements media.Container for progressive and fragmented
// MP4 files. All sample tables are indexed at open time.
type MP4Container struct {
	file     *os.File
	tracks   []*mp4Track
	duration int64
}

// OpenMP4 parses an MP4 file and indexes its video and audio tracks.
func OpenMP4(path string) (*MP4Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	c, err := newMP4Container(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return c, nil
}

func newMP4Container(f *os.File) (*MP4Container, error) {
	mp4File, err := mp4.DecodeFile(f)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}

	c := &MP4Container{file: f}
	if mp4File.IsFragmented() {
		err = c.indexFragmented(mp4File)
	} else {
		err = c.indexProgressive(mp4File, f)
	}
	if err != nil {
		return nil, err
	}

	var total int
	for i, t := range c.tracks {
		t.info.Index = i
		total += len(t.samples)
		if d := t.durationMicros(); d > c.duration {
			c.duration = d
		}
	}
	if total == 0 {
		return nil, ErrNoFrames
	}
	return c, nil
}

// trackInfo describes a trak box, or returns ok=false for tracks that are
// neither audio nor video.
func trackInfo(trak *mp4.TrakBox) (media.StreamInfo, bool) {
	if trak.Tkhd == nil || trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Mdhd == nil {
		return media.StreamInfo{}, false
	}

	timescale := trak.Mdia.Mdhd.Timescale
	if timescale == 0 {
		timescale = 1000
	}
	info := media.StreamInfo{
		TimeBase: media.Rational{Num: 1, Den: int64(timescale)},
	}

	var entry mp4.Box
	if trak.Mdia.Minf != nil && trak.Mdia.Minf.Stbl != nil && trak.Mdia.Minf.Stbl.Stsd != nil {
		if children := trak.Mdia.Minf.Stbl.Stsd.Children; len(children) > 0 {
			entry = children[0]
		}
	}

	switch trak.Mdia.Hdlr.HandlerType {
	case "vide":
		info.Kind = media.KindVideo
		info.Width = int(uint32(trak.Tkhd.Width) >> 16)
		info.Height = int(uint32(trak.Tkhd.Height) >> 16)
		if vse, ok := entry.(*mp4.VisualSampleEntryBox); ok && (info.Width == 0 || info.Height == 0) {
			info.Width = int(vse.Width)
			info.Height = int(vse.Height)
		}
	case "soun":
		info.Kind = media.KindAudio
		info.SampleRate = int(timescale)
		if ase, ok := entry.(*mp4.AudioSampleEntryBox); ok {
			info.Channels = int(ase.ChannelCount)
			if ase.SampleRate > 0 {
				info.SampleRate = int(ase.SampleRate)
			}
		}
	default:
		return media.StreamInfo{}, false
	}

	if entry != nil {
		info.Codec = codecName(entry.Type())
	}
	return info, true
}

// codecName maps a sample entry four-character code to a codec name.
func codecName(fourcc string) string {
	switch fourcc {
	case "jpeg", "mjpa", "mjpb":
		return CodecMJPEG
	case "png ":
		return CodecPNG
	case "raw ":
		return CodecRawVideo
	case "avc1", "avc3":
		return CodecH264
	case "hvc1", "hev1":
		return CodecHEVC
	case "av01":
		return CodecAV1
	case "vp09":
		return CodecVP9
	case "mp4v":
		return CodecMPEG4
	case "mp4a":
		return "aac"
	}
	return fourcc
}

// newTrack creates the track for trak, recording the parameter sets that
// Annex-B output needs.
func newTrack(trak *mp4.TrakBox, info media.StreamInfo) *mp4Track {
	t := &mp4Track{info: info, trackID: trak.Tkhd.TrackID}
	if info.Codec != CodecH264 && info.Codec != CodecHEVC {
		return t
	}
	t.annexB = true
	stsd := trak.Mdia.Minf.Stbl.Stsd
	vse, ok := stsd.Children[0].(*mp4.VisualSampleEntryBox)
	if !ok {
		return t
	}
	var nalus [][]byte
	switch {
	case vse.AvcC != nil:
		nalus = append(nalus, vse.AvcC.SPSnalus...)
		nalus = append(nalus, vse.AvcC.PPSnalus...)
	case vse.HvcC != nil:
		for _, arr := range vse.HvcC.NaluArrays {
			nalus = append(nalus, arr.Nalus...)
		}
	}
	for _, n := range nalus {
		t.paramSets = append(t.paramSets, 0, 0, 0, 1)
		t.paramSets = append(t.paramSets, n...)
	}
	return t
}

// toAnnexB returns a copy of a 4-byte length-prefixed sample with start
// codes, prefixed by the track parameter sets on sync samples.
func (t *mp4Track) toAnnexB(data []byte, sync bool) ([]byte, error) {
	for pos := 0; pos < len(data); {
		if pos+4 > len(data) {
			return nil, ErrBadSample
		}
		n := int(binary.BigEndian.Uint32(data[pos:]))
		if n > len(data)-pos-4 {
			return nil, ErrBadSample
		}
		pos += 4 + n
	}

	var out []byte
	if sync {
		out = make([]byte, 0, len(t.paramSets)+len(data))
		out = append(out, t.paramSets...)
	}
	start := len(out)
	out = append(out, data...)
	avc.ConvertSampleToByteStream(out[start:])
	return out, nil
}

func (c *MP4Container) indexProgressive(mp4File *mp4.File, reader io.ReadSeeker) error {
	if mp4File.Moov == nil {
		return fmt.Errorf("no moov box found")
	}

	for _, trak := range mp4File.Moov.Traks {
		info, ok := trackInfo(trak)
		if !ok {
			continue
		}
		if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
			continue
		}
		stbl := trak.Mdia.Minf.Stbl
		if stbl.Stsz == nil {
			continue
		}

		// Build sync sample set (keyframes)
		syncSamples := make(map[uint32]bool)
		if stbl.Stss != nil {
			for _, sampleNr := range stbl.Stss.SampleNumber {
				syncSamples[sampleNr] = true
			}
		}

		t := newTrack(trak, info)
		sampleCount := stbl.Stsz.SampleNumber
		for sampleNr := uint32(1); sampleNr <= sampleCount; sampleNr++ {
			offset, size, err := sampleLocation(stbl, sampleNr)
			if err != nil {
				return fmt.Errorf("track %d sample %d: %w", t.trackID, sampleNr, err)
			}
			var decodeTime uint64
			var dur uint32
			if stbl.Stts != nil {
				decodeTime, dur = stbl.Stts.GetDecodeTime(sampleNr)
			}
			var cto int32
			if stbl.Ctts != nil {
				cto = stbl.Ctts.GetCompositionTimeOffset(sampleNr)
			}
			t.samples = append(t.samples, mp4Sample{
				decodeTime: decodeTime,
				cto:        cto,
				dur:        dur,
				sync:       syncSamples[sampleNr] || len(syncSamples) == 0,
				offset:     offset,
				size:       size,
			})
		}
		if trak.Mdia.Mdhd.Duration > 0 {
			t.info.Duration = int64(trak.Mdia.Mdhd.Duration)
		} else {
			t.info.Duration = t.sampleSpan()
		}
		c.tracks = append(c.tracks, t)
	}
	return nil
}

// sampleLocation resolves the file offset and size of a progressive sample.
func sampleLocation(stbl *mp4.StblBox, sampleNr uint32) (uint64, uint32, error) {
	if stbl.Stsc == nil || stbl.Stsz == nil {
		return 0, 0, fmt.Errorf("missing stsc or stsz box")
	}

	// Get chunk number and first sample in chunk
	chunkNr, firstSampleInChunk, err := stbl.Stsc.ChunkNrFromSampleNr(int(sampleNr))
	if err != nil {
		return 0, 0, fmt.Errorf("get chunk nr: %w", err)
	}

	var chunkOffset uint64
	if stbl.Stco != nil {
		chunkOffset, err = stbl.Stco.GetOffset(chunkNr)
		if err != nil {
			return 0, 0, fmt.Errorf("get chunk offset: %w", err)
		}
	} else if stbl.Co64 != nil {
		if chunkNr < 1 || chunkNr > len(stbl.Co64.ChunkOffset) {
			return 0, 0, fmt.Errorf("chunk nr out of range")
		}
		chunkOffset = stbl.Co64.ChunkOffset[chunkNr-1]
	} else {
		return 0, 0, fmt.Errorf("no stco or co64 box")
	}

	// Calculate offset within chunk
	offset := chunkOffset
	for s := uint32(firstSampleInChunk); s < sampleNr; s++ {
		offset += uint64(stbl.Stsz.GetSampleSize(int(s)))
	}
	return offset, stbl.Stsz.GetSampleSize(int(sampleNr)), nil
}

func (c *MP4Container) indexFragmented(mp4File *mp4.File) error {
	if mp4File.Init == nil || mp4File.Init.Moov == nil {
		return fmt.Errorf("no init segment found")
	}

	byID := make(map[uint32]*mp4Track)
	trexs := make(map[uint32]*mp4.TrexBox)
	if mp4File.Init.Moov.Mvex != nil {
		for _, trex := range mp4File.Init.Moov.Mvex.Trexs {
			trexs[trex.TrackID] = trex
		}
	}
	for _, trak := range mp4File.Init.Moov.Traks {
		info, ok := trackInfo(trak)
		if !ok {
			continue
		}
		t := newTrack(trak, info)
		byID[t.trackID] = t
		c.tracks = append(c.tracks, t)
	}

	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil || frag.Moof.Traf == nil {
				continue
			}
			traf := frag.Moof.Traf
			t, ok := byID[traf.Tfhd.TrackID]
			if !ok {
				continue
			}

			// Get base decode time
			var baseDecodeTime uint64
			if traf.Tfdt != nil {
				baseDecodeTime = traf.Tfdt.BaseMediaDecodeTime()
			}

			samples, err := frag.GetFullSamples(trexs[t.trackID])
			if err != nil {
				return fmt.Errorf("get samples: %w", err)
			}

			currentTime := baseDecodeTime
			for _, sample := range samples {
				t.samples = append(t.samples, mp4Sample{
					decodeTime: currentTime,
					cto:        sample.CompositionTimeOffset,
					dur:        sample.Dur,
					sync:       sample.Flags == mp4.SyncSampleFlags,
					size:       uint32(len(sample.Data)),
					data:       sample.Data,
				})
				currentTime += uint64(sample.Dur)
			}
		}
	}

	for _, t := range c.tracks {
		t.info.Duration = t.sampleSpan()
	}
	return nil
}

// sampleSpan returns the end time of the last sample in track units.
func (t *mp4Track) sampleSpan() int64 {
	if len(t.samples) == 0 {
		return 0
	}
	last := t.samples[len(t.samples)-1]
	return int64(last.decodeTime) + int64(last.dur)
}

func (t *mp4Track) durationMicros() int64 {
	return t.info.Duration * media.TimeBase / t.info.TimeBase.Den
}

// micros converts a track timestamp to microseconds.
func (t *mp4Track) micros(ts int64) int64 {
	return ts * media.TimeBase / t.info.TimeBase.Den
}

// pts returns the presentation time of a sample in track units.
func (s mp4Sample) pts() int64 {
	return int64(s.decodeTime) + int64(s.cto)
}

// Format implements media.Container.
func (c *MP4Container) Format() string { return "mp4" }

// Streams implements media.Container.
func (c *MP4Container) Streams() []media.StreamInfo {
	streams := make([]media.StreamInfo, len(c.tracks))
	for i, t := range c.tracks {
		streams[i] = t.info
	}
	return streams
}

// ReadPacket returns the pending sample with the earliest decode time
// across all tracks.
func (c *MP4Container) ReadPacket() (*media.Packet, error) {
	var pick *mp4Track
	var pickTime int64
	for _, t := range c.tracks {
		if t.next >= len(t.samples) {
			continue
		}
		ts := t.micros(int64(t.samples[t.next].decodeTime))
		if pick == nil || ts < pickTime {
			pick = t
			pickTime = ts
		}
	}
	if pick == nil {
		return nil, io.EOF
	}

	s := pick.samples[pick.next]
	pick.next++

	data := s.data
	if data == nil {
		data = make([]byte, s.size)
		if _, err := c.file.ReadAt(data, int64(s.offset)); err != nil {
			return nil, fmt.Errorf("read sample: %w", err)
		}
	}
	if pick.annexB {
		converted, err := pick.toAnnexB(data, s.sync)
		if err != nil {
			return nil, fmt.Errorf("track %d sample %d: %w", pick.trackID, pick.next-1, err)
		}
		data = converted
	}

	return &media.Packet{
		StreamIndex: pick.info.Index,
		PTS:         s.pts(),
		Keyframe:    s.sync,
		Data:        data,
	}, nil
}

// Seek repositions every track at a sync sample near target microseconds,
// compared by presentation time. With SeekBackward the last sync sample at
// or before the target is used, falling back to the first one after it.
// Otherwise the first sync sample at or after the target is used; when there
// is none the track is positioned at its end, so no frame before the target
// is returned.
func (c *MP4Container) Seek(target int64, flags media.SeekFlags) error {
	if target < 0 {
		target = 0
	}
	for _, t := range c.tracks {
		t.next = t.seekIndex(target, flags&media.SeekBackward != 0)
	}
	return nil
}

func (t *mp4Track) seekIndex(target int64, backward bool) int {
	before, after := -1, -1
	for i, s := range t.samples {
		if !s.sync {
			continue
		}
		ts := t.micros(s.pts())
		if ts <= target {
			before = i
		}
		if ts >= target && after < 0 {
			after = i
		}
	}

	switch {
	case !backward && after >= 0:
		return after
	case backward && before >= 0:
		return before
	case backward && after >= 0:
		return after
	default:
		return len(t.samples)
	}
}

// Duration implements media.Container.
func (c *MP4Container) Duration() int64 { return c.duration }

// StartTime implements media.Container.
func (c *MP4Container) StartTime() int64 { return 0 }

// Close releases the file handle.
func (c *MP4Container) Close() error {
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
