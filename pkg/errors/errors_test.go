package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionMismatchIsCorruptData(t *testing.T) {
	err := fmt.Errorf("decoding x: %w", ErrVersionMismatch)
	assert.True(t, Is(err, ErrVersionMismatch))
	assert.True(t, Is(err, ErrCorruptData))
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("restore a: %w", ErrDumpNotFound), http.StatusNotFound},
		{"duplicate", ErrDuplicateDocument, http.StatusConflict},
		{"bad input", ErrInvalidInput, http.StatusBadRequest},
		{"bad config", ErrInvalidConfig, http.StatusBadRequest},
		{"corrupt", ErrCorruptData, http.StatusUnprocessableEntity},
		{"version", ErrVersionMismatch, http.StatusUnprocessableEntity},
		{"incompatible", ErrIncompatibleFilter, http.StatusUnprocessableEntity},
		{"unknown", context.Canceled, http.StatusInternalServerError},
		{"app error", New(ErrInternal, http.StatusTeapot, "short and stout"), http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppError(t *testing.T) {
	err := Newf(ErrDumpNotFound, http.StatusNotFound, "no dump at %s", "x.blm")
	assert.Equal(t, "dump not found: no dump at x.blm", err.Error())
	assert.True(t, Is(err, ErrDumpNotFound))

	var appErr *AppError
	assert.True(t, As(fmt.Errorf("wrapped: %w", err), &appErr))
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
}
