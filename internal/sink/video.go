package sink

import "github.com/linuxmatters/avfeed/internal/media"

// DefaultVideoFrames is the default VideoQueue capacity.
const DefaultVideoFrames = 20

// VideoQueue buffers decoded RGB24 frames for a renderer.
// The end of a stream is marked by a frame for which IsEndOfStream is true.
type VideoQueue struct {
	*Queue[*media.VideoFrame]
}

// NewVideoQueue creates a video queue holding at most frames frames.
func NewVideoQueue(frames int) *VideoQueue {
	if frames <= 0 {
		frames = DefaultVideoFrames
	}
	return &VideoQueue{Queue: NewQueue[*media.VideoFrame](frames)}
}
