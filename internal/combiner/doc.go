// Package combiner builds the combined speech track for a text.
//
// Segments are materialized from the store into a scratch directory in
// sequence order, a single silence clip is synthesized when a gap is
// configured, and everything is stitched with ffmpeg's concat demuxer using
// stream copy so repeated combines never re-encode the narration.
//
// Every successful combine re-runs forced alignment against the full source
// text and replaces the stored word timestamps wholesale. Alignment failure
// is logged but never fails the combine; the text simply carries no timing
// data until the next successful run.
package combiner
