// Package pipeline implements the two workflow stage handlers that turn an
// ingested text into a published master.
//
// The produce stage runs the speech track (combine segments, refresh word
// timestamps) and the generation track (dispatch music and effect predictions,
// await their completions) in parallel and records any degraded outcomes on
// the run. The mix stage resolves effect cue positions against the aligned
// word timestamps, layers speech, music, and effects into one master, and
// publishes it to the library directory.
package pipeline
