package playback

import "errors"

// Open errors end a session before it enters Steady.
var (
	ErrOpen      = errors.New("playback: cannot open source")
	ErrNoStream  = errors.New("playback: no matching stream")
	ErrCodecInit = errors.New("playback: cannot initialise codec")
)

var (
	// ErrLogic reports a broken decoder contract. It is never retried.
	ErrLogic = errors.New("playback: decode invariant violated")

	// ErrTooManyErrors ends a session after repeated decode failures.
	ErrTooManyErrors = errors.New("playback: too many consecutive decode errors")

	// ErrClosed is returned by SeekContext when the session exits before
	// acknowledging the seek.
	ErrClosed = errors.New("playback: session closed")
)
