package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventDocumentUploaded, "u1", "d1")
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, "documents.uploaded", e.Subject())
	assert.Equal(t, "documents.deleted", NewEvent(EventDocumentDeleted, "u1", "d1").Subject())
	assert.WithinDuration(t, time.Now(), e.At, time.Minute)
}

func TestPublishWithRetry(t *testing.T) {
	boom := errors.New("broker down")
	tests := []struct {
		name      string
		failures  int
		attempts  int
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", failures: 0, attempts: 3, wantCalls: 1},
		{name: "recovers", failures: 2, attempts: 3, wantCalls: 3},
		{name: "gives up", failures: 5, attempts: 3, wantCalls: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewEvent(EventDocumentUploaded, "u1", "d1")
			pub := &MockPublisher{}
			if tt.failures > 0 {
				n := tt.failures
				if n > tt.attempts {
					n = tt.attempts
				}
				pub.On("Publish", mock.Anything, event).Return(boom).Times(n)
			}
			pub.On("Publish", mock.Anything, event).Return(nil)

			err := PublishWithRetry(context.Background(), pub, event, tt.attempts, time.Millisecond)
			if tt.wantErr {
				require.ErrorIs(t, err, boom)
			} else {
				require.NoError(t, err)
			}
			pub.AssertNumberOfCalls(t, "Publish", tt.wantCalls)
		})
	}
}

func TestPublishWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(errors.New("down"))

	err := PublishWithRetry(ctx, pub, NewEvent(EventDocumentDeleted, "u1", "d1"), 5, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestNoOpPublisher(t *testing.T) {
	var p Publisher = NoOpPublisher{}
	assert.NoError(t, p.Publish(context.Background(), NewEvent(EventDocumentUploaded, "u", "d")))
	assert.NoError(t, p.Close())
}
