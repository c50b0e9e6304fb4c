// Package audio implements the decode handoff between audio extraction and
// transcription.
//
// The media engine returns an encoded container; the coordinator decodes it
// here into 16 kHz mono float samples before any transcription request is
// issued. Decoding is a capability of the orchestrating side only, expressed
// through the Decoder interface so other hosts can plug in their own codec.
package audio
