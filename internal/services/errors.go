package services

import (
	"errors"
	"fmt"
	"strings"
)

// Failure markers. Every error leaving an engine wrapper carries exactly one
// of them so callers and tests can assert on the cause, not just on failure.
var (
	ErrInputTooLarge     = errors.New("input too large")
	ErrEngineInitFailed  = errors.New("engine init failed")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExecutionFailed   = errors.New("execution failed")
	ErrDecodeFailed      = errors.New("decode failed")
	ErrModelLoadFailed   = errors.New("model load failed")
	ErrInferenceFailed   = errors.New("inference failed")
	ErrEngineBusy        = errors.New("engine busy")
	ErrEngineTerminated  = errors.New("engine terminated")
	ErrConfiguration     = errors.New("configuration error")
)

var markers = []error{
	ErrInputTooLarge,
	ErrEngineInitFailed,
	ErrUnsupportedFormat,
	ErrExecutionFailed,
	ErrDecodeFailed,
	ErrModelLoadFailed,
	ErrInferenceFailed,
	ErrEngineBusy,
	ErrEngineTerminated,
	ErrConfiguration,
}

// Wrap builds an error message that includes engine context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, engine, operation, message string, err error) error {
	detail := buildDetail(engine, operation, message)
	if marker == nil {
		marker = ErrExecutionFailed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Marker returns the sentinel carried by err, or nil when err is untagged.
func Marker(err error) error {
	if err == nil {
		return nil
	}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			return marker
		}
	}
	return nil
}

// Kind names the failure class of err ("input_too_large", "decode_failed", ...).
// Untagged errors report "unknown".
func Kind(err error) string {
	marker := Marker(err)
	if marker == nil {
		return "unknown"
	}
	return strings.ReplaceAll(marker.Error(), " ", "_")
}

func buildDetail(engine, operation, message string) string {
	parts := make([]string, 0, 3)
	if engine = strings.TrimSpace(engine); engine != "" {
		parts = append(parts, engine)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "engine failure"
	}
	return strings.Join(parts, ": ")
}
