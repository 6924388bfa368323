// Package language normalizes narration language identifiers to the ISO 639-1
// codes the alignment toolchain expects.
//
// Config accepts 2-letter codes, 3-letter codes, and English word forms
// ("en", "eng", "english" all resolve to "en"). The package also records which
// languages ship a default forced-alignment model, so status surfaces can flag
// a narration language that will transcribe but not word-align out of the box.
package language
