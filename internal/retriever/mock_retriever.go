package retriever

import (
	"context"

	"github.com/stretchr/testify/mock"

	"venture-advisor/internal/store"
)

// MockSource is a mock implementation of DocumentSource using testify/mock.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) ListDocuments(ctx context.Context, userID string) ([]store.Document, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.Document), args.Error(1)
}
