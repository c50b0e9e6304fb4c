// Package transcription hosts the speech-to-text engine wrapper.
//
// The engine keeps at most one recognizer resident. A request naming the
// resident model reuses it; any other model id drops the resident recognizer
// before the replacement is built, so two models are never held at once.
// Long inputs are split into overlapping windows whose owned regions tile
// the timeline, and the per-window segments are stitched into one ordered
// transcript.
package transcription
