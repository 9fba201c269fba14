package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncError_Error(t *testing.T) {
	err := newSyncError(ErrCodeWiki, "Alpha", "write_page", errors.New("403 forbidden"))
	assert.Equal(t, "WIKI: Alpha: write_page: 403 forbidden", err.Error())
}

func TestSyncError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("run: %w", newSyncError(ErrCodePersistence, "Alpha", "save_state", cause))
	assert.ErrorIs(t, err, cause)

	var se *SyncError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, "Alpha", se.Project)
}

func TestHasCode(t *testing.T) {
	transport := newSyncError(ErrCodeTransport, "A", "aggregate", errors.New("timeout"))
	persist := newSyncError(ErrCodePersistence, "B", "save_state", errors.New("locked"))
	notifyErr := newSyncError(ErrCodeNotify, "C", "notify", errors.New("550"))

	tests := []struct {
		name        string
		err         error
		transport   bool
		persistence bool
		notify      bool
	}{
		{name: "nil", err: nil},
		{name: "plain error", err: errors.New("boom")},
		{name: "transport", err: transport, transport: true},
		{name: "wrapped persistence", err: fmt.Errorf("x: %w", persist), persistence: true},
		{name: "joined", err: errors.Join(transport, persist, notifyErr), transport: true, persistence: true, notify: true},
		{name: "joined without transport", err: errors.Join(persist, notifyErr), persistence: true, notify: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transport, IsTransportError(tt.err))
			assert.Equal(t, tt.persistence, IsPersistenceError(tt.err))
			assert.Equal(t, tt.notify, IsNotifyError(tt.err))
		})
	}
}
