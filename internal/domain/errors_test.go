package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"transport", NewTransportError("wiki.read", 503, errors.New("unavailable")), true},
		{"wrapped transport", fmt.Errorf("read page: %w", NewTransportError("wiki.read", 0, errors.New("eof"))), true},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"cancelled", context.Canceled, false},
		{"no data", ErrNoData, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransportError(tt.err))
		})
	}
}

func TestTransportError_Message(t *testing.T) {
	err := NewTransportError("redmine.time_entries", 502, errors.New("bad gateway"))
	assert.Equal(t, "redmine.time_entries: status 502: bad gateway", err.Error())

	err = NewTransportError("smtp.send", 0, errors.New("timeout"))
	assert.Equal(t, "smtp.send: timeout", err.Error())
}
