package answer

import (
	"context"

	"github.com/stretchr/testify/mock"

	"venture-advisor/internal/retriever"
)

// MockSearcher is a mock implementation of Searcher using testify/mock.
type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Rank(ctx context.Context, question, userID string, topK int) ([]retriever.ScoredChunk, error) {
	args := m.Called(ctx, question, userID, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retriever.ScoredChunk), args.Error(1)
}
