// Package main implements the mediadesk command-line interface.
//
// Every command runs the engines in-process: conversions and audio extraction
// go through the ffmpeg-backed media engine, transcription through whisper.cpp
// with weights fetched into the local model cache. `mediadesk serve` exposes
// the same coordinator over HTTP.
package main
