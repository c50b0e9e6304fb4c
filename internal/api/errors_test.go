package api

import (
	"errors"
	"net/http"
	"testing"

	"mediadesk/internal/services"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		marker error
		want   int
	}{
		{services.ErrEngineBusy, http.StatusConflict},
		{services.ErrInputTooLarge, http.StatusRequestEntityTooLarge},
		{services.ErrUnsupportedFormat, http.StatusBadRequest},
		{services.ErrDecodeFailed, http.StatusUnprocessableEntity},
		{services.ErrEngineInitFailed, http.StatusServiceUnavailable},
		{services.ErrEngineTerminated, http.StatusServiceUnavailable},
		{services.ErrExecutionFailed, http.StatusInternalServerError},
		{services.ErrModelLoadFailed, http.StatusInternalServerError},
		{services.ErrInferenceFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		err := services.Wrap(tt.marker, "media", "convert", "detail", nil)
		if got := statusFor(err); got != tt.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tt.marker, got, tt.want)
		}
	}
	if got := statusFor(errors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("untyped error status = %d", got)
	}
}
