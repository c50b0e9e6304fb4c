// Package subtitles exports transcripts as plain text, SRT and JSON.
package subtitles
