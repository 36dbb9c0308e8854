package audio

import "errors"

var (
	// ErrUnsupportedFormat is returned for files whose extension has no decoder.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrNoAudio is returned when a file decodes to no usable stream.
	ErrNoAudio = errors.New("no audio stream found")
)
