// Package mixdown renders the final layered master for a text.
//
// The mix is a layered delay-and-gain composition: speech is delayed so
// music can establish ambience, music is gained down and faded out as
// speech ends, and each sound-effect cue is gained and delayed onto the
// shared timeline. BuildPlan expresses that composition as a small layer
// plan; Render turns the plan into a single ffmpeg filter graph invocation.
//
// All cue start times entering the engine are speech-track-relative
// seconds. The engine alone applies the global speech start delay when it
// builds the plan; callers must never pre-shift a cue, or the cue lands
// double-delayed.
//
// Every preparatory step degrades instead of aborting: a failed loudness
// normalization falls back to the unprocessed input, a failed probe drops
// the music fade. Degradations are collected on the result so runs record
// what the master is missing.
package mixdown
