package alignment

import (
	"errors"

	"soundloom/internal/library"
)

// ErrNoTimestamps indicates a cue cannot be placed because the text has no
// alignment data.
var ErrNoTimestamps = errors.New("alignment: no word timestamps")

// Resolve maps a word position to a playback start time using the text's
// timestamp sequence. Positions within the sequence return that entry's
// start. Positions past the end clamp to the final entry's start; the
// returned flag reports the clamp so callers can log it. An empty sequence
// or a negative position returns ErrNoTimestamps.
func Resolve(position int, timestamps []library.WordTimestamp) (start float64, clamped bool, err error) {
	if len(timestamps) == 0 {
		return 0, false, ErrNoTimestamps
	}
	if position < 0 {
		return 0, false, ErrNoTimestamps
	}
	if position < len(timestamps) {
		return timestamps[position].Start, false, nil
	}
	return timestamps[len(timestamps)-1].Start, true, nil
}
