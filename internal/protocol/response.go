package protocol

import (
	"errors"

	"mediadesk/internal/services"
)

// Status is the collapsed three-state response tag.
type Status string

const (
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Phase carries the transcription engine's own lifecycle naming.
type Phase string

const (
	PhaseNone     Phase = ""
	PhaseProgress Phase = "progress"
	PhaseComplete Phase = "complete"
)

// Segment is one timed span of recognised text, in seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Response is one event on an engine's response stream.
type Response struct {
	Status     Status     `json:"status"`
	Phase      Phase      `json:"phase,omitempty"`
	Message    string     `json:"message,omitempty"`
	Progress   *float64   `json:"progress,omitempty"`
	File       string     `json:"file,omitempty"`
	Output     *BytesBlob `json:"-"`
	OutputName string     `json:"output_name,omitempty"`
	Text       string     `json:"text,omitempty"`
	Segments   []Segment  `json:"segments,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	Err        error      `json:"-"`
}

// Terminal reports whether r ends its stream.
func (r Response) Terminal() bool {
	return r.Status == StatusSuccess || r.Status == StatusError
}

// Loading builds an intermediate event without progress.
func Loading(message string) Response {
	return Response{Status: StatusLoading, Message: message}
}

// LoadingProgress builds an intermediate event with a percentage and the
// file it refers to (a model weight file during downloads).
func LoadingProgress(message, file string, progress float64) Response {
	p := progress
	return Response{Status: StatusLoading, Message: message, File: file, Progress: &p}
}

// SuccessOutput is the terminal event of a media job.
func SuccessOutput(output *BytesBlob) Response {
	resp := Response{Status: StatusSuccess, Output: output}
	if output != nil {
		resp.OutputName = output.Name()
	}
	return resp
}

// SuccessTranscript is the terminal event of a transcription job.
func SuccessTranscript(text string, segments []Segment) Response {
	return Response{Status: StatusSuccess, Phase: PhaseComplete, Text: text, Segments: segments}
}

// Failure is the terminal event for err. The typed cause is kept in Err and
// its marker name in Kind.
func Failure(err error) Response {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Response{Status: StatusError, Message: err.Error(), Kind: services.Kind(err), Err: err}
}
