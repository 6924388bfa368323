// Package textutil provides text processing utilities for word sequences,
// similarity, and filename sanitization.
//
// The primary use cases are:
//   - Splitting narration text into its canonical word sequence, the
//     reference frame for sound-effect cue positions
//   - Creating token-based fingerprints and computing cosine similarity,
//     used to sanity-check alignment output against the source text
//   - Sanitizing filenames and path segments for safe filesystem use
//
// Word positions stored on cues index the sequence returned by Words;
// alignment timestamps are expected to track the same sequence. Fingerprints
// use term frequency vectors normalized for efficient comparison. The
// tokenization process lowercases text, splits on non-alphanumeric
// characters, and filters tokens shorter than 3 characters.
package textutil
