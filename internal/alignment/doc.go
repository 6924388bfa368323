// Package alignment wraps WhisperX forced alignment and resolves word
// positions to playback timestamps.
//
// The Service shells out to WhisperX through uvx, transcribing a combined
// speech track with word-level timings and returning the flattened word
// sequence. Alignment output is the canonical timing reference for a text:
// the combiner replaces the stored sequence wholesale after every combine,
// and the mixdown stage resolves sound-effect cue positions against it.
// Results are cached by audio content hash so re-aligning an unchanged
// combined track skips the WhisperX run.
//
// Resolve maps a cue's word position to a start time. Positions past the end
// of the sequence fall back to the final word's start so that slight
// mis-segmentation shifts a cue instead of aborting a mix; an empty sequence
// is a hard failure because cues cannot be placed without timing data.
package alignment
