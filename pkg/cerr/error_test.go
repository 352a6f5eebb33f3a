package cerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewError_StackOnlyForServerFaults(t *testing.T) {
	assert.NotEmpty(t, NewError(Unavailable, "upstream down", nil).Stack)
	assert.Empty(t, NewError(InvalidArgument, "bad limit", nil).Stack)
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "[not_found] run not found", NewError(NotFound, "run not found", nil).Error())
	assert.Equal(t, "[aborted] busy: in flight", NewError(Aborted, "busy", errors.New("in flight")).Error())
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("sync: %w", NewError(DataLoss, "malformed response", nil))

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"wrapped", wrapped, DataLoss},
		{"canceled", context.Canceled, Canceled},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), DeadlineExceeded},
		{"plain", errors.New("boom"), Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
	assert.True(t, IsCode(wrapped, DataLoss))
	assert.False(t, IsCode(wrapped, Internal))
}

func TestCode_HTTPCode(t *testing.T) {
	assert.Equal(t, http.StatusConflict, Aborted.HTTPCode())
	assert.Equal(t, http.StatusServiceUnavailable, Unavailable.HTTPCode())
	assert.Equal(t, http.StatusUnauthorized, Unauthenticated.HTTPCode())
	assert.Equal(t, http.StatusInternalServerError, Code(99).HTTPCode())
}
