package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"venture-advisor/internal/chunker"
	"venture-advisor/internal/llm"
	"venture-advisor/internal/logger"
	"venture-advisor/internal/retriever"
	"venture-advisor/internal/store"
)

func newDocuments(t *testing.T, docs ...store.Document) *store.DocumentStore {
	t.Helper()
	ds := store.NewDocumentStore(store.NewMemoryBlobStore(), logger.Discard(), 0)
	for _, d := range docs {
		require.NoError(t, ds.Save(context.Background(), d, []byte(d.FullContent)))
	}
	return ds
}

func document(userID, docID, name, text string) store.Document {
	return store.Document{
		ID:          docID,
		UserID:      userID,
		Name:        name,
		Type:        "text/plain",
		Size:        int64(len(text)),
		UploadedAt:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		FullContent: text,
		Chunks:      chunker.New(chunker.Options{}).Chunk(text, name, docID),
	}
}

func scored(content string, score int) retriever.ScoredChunk {
	return retriever.ScoredChunk{
		Chunk: store.Chunk{ID: "c1", Content: content, Metadata: store.ChunkMetadata{DocumentID: "d1", DocumentName: "plan.pdf"}},
		Score: score,
	}
}

func TestAnswerRevenueScenario(t *testing.T) {
	ds := newDocuments(t, document("u1", "d1", "results.txt", "Revenue grew from $10,000 in Q1 to $45,000 in Q4."))
	client := &llm.MockClient{}
	client.On("Complete", mock.Anything, SystemInstruction, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "$45,000") &&
			strings.Contains(p, `[Excerpt 1 from "results.txt"]`) &&
			strings.HasSuffix(p, "Question: What was revenue in Q4?")
	})).Return("Revenue reached $45,000 in Q4 [Excerpt 1].", nil).Once()

	c := New(retriever.New(ds, logger.Discard()), client, logger.Discard(), Options{})
	res, err := c.Answer(context.Background(), "What was revenue in Q4?", "u1")
	require.NoError(t, err)

	assert.Equal(t, StatusAnswered, res.Status)
	assert.True(t, res.Grounded())
	assert.NotEqual(t, NotFoundMessage, res.Answer)
	assert.Equal(t, "Revenue reached $45,000 in Q4 [Excerpt 1].", res.Answer)
	require.Len(t, res.Sources, 1)
	assert.GreaterOrEqual(t, res.Sources[0].Score, 90)
	client.AssertExpectations(t)
}

func TestAnswerNoMatchSkipsCompletion(t *testing.T) {
	ds := newDocuments(t, document("u1", "d1", "marketing.txt",
		"Marketing strategy: grow brand awareness through social media campaigns and partner events."))
	client := &llm.MockClient{}

	c := New(retriever.New(ds, logger.Discard()), client, logger.Discard(), Options{})
	res, err := c.Answer(context.Background(), "What is the capital of France?", "u1")
	require.NoError(t, err)

	assert.Equal(t, NotFoundMessage, res.Answer)
	assert.Equal(t, StatusNotFound, res.Status)
	assert.Empty(t, res.Sources)
	client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswerOtherUsersDocumentsInvisible(t *testing.T) {
	ds := newDocuments(t, document("u1", "d1", "results.txt", "Revenue grew from $10,000 in Q1 to $45,000 in Q4."))
	client := &llm.MockClient{}

	c := New(retriever.New(ds, logger.Discard()), client, logger.Discard(), Options{})
	res, err := c.Answer(context.Background(), "What was revenue in Q4?", "u2")
	require.NoError(t, err)

	assert.Equal(t, StatusNotFound, res.Status)
	client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswerFallback(t *testing.T) {
	tests := []struct {
		name          string
		question      string
		primary       []retriever.ScoredChunk
		fallbackQuery string
		fallback      []retriever.ScoredChunk
		wantCalls     int
		wantStatus    Status
	}{
		{
			name:       "primary hit never broadens",
			question:   "What drove revenue growth?",
			primary:    []retriever.ScoredChunk{scored("revenue growth came from enterprise", 120)},
			wantCalls:  1,
			wantStatus: StatusAnswered,
		},
		{
			name:          "empty primary broadens once",
			question:      "What drove revenue-growth?!",
			primary:       []retriever.ScoredChunk{},
			fallbackQuery: "what drove revenuegrowth",
			fallback:      []retriever.ScoredChunk{scored("drove revenuegrowth", 40)},
			wantCalls:     2,
			wantStatus:    StatusAnswered,
		},
		{
			name:          "both empty",
			question:      "Tell me about churn",
			primary:       nil,
			fallbackQuery: "tell about churn",
			fallback:      nil,
			wantCalls:     2,
			wantStatus:    StatusNotFound,
		},
		{
			name:       "nothing left after broadening",
			question:   "Is it ok?",
			primary:    nil,
			wantCalls:  1,
			wantStatus: StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			search := &MockSearcher{}
			search.On("Rank", mock.Anything, tt.question, "u1", DefaultTopK).Return(tt.primary, nil).Once()
			if tt.fallbackQuery != "" {
				search.On("Rank", mock.Anything, tt.fallbackQuery, "u1", DefaultFallbackTopK).Return(tt.fallback, nil).Once()
			}
			client := &llm.MockClient{}
			client.On("Complete", mock.Anything, SystemInstruction, mock.Anything).Return("answer", nil).Maybe()

			res, err := New(search, client, logger.Discard(), Options{}).Answer(context.Background(), tt.question, "u1")
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, res.Status)
			search.AssertNumberOfCalls(t, "Rank", tt.wantCalls)
			search.AssertExpectations(t)
		})
	}
}

func TestAnswerCompletionFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantAnswer string
		wantStatus Status
	}{
		{name: "auth", err: &llm.CompletionError{Kind: llm.KindAuth, Err: errors.New("401")}, wantAnswer: AuthFailedMessage, wantStatus: StatusAuthFailed},
		{name: "transport", err: &llm.CompletionError{Kind: llm.KindTransport, Err: errors.New("502")}, wantAnswer: CompletionFailedMessage, wantStatus: StatusCompletionFailed},
		{name: "malformed", err: &llm.CompletionError{Kind: llm.KindMalformed, Err: errors.New("no choices")}, wantAnswer: CompletionFailedMessage, wantStatus: StatusCompletionFailed},
		{name: "untyped", err: errors.New("boom"), wantAnswer: CompletionFailedMessage, wantStatus: StatusCompletionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			search := &MockSearcher{}
			search.On("Rank", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return([]retriever.ScoredChunk{scored("burn rate is $80k per month", 100)}, nil)
			client := &llm.MockClient{}
			client.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", tt.err)

			res, err := New(search, client, logger.Discard(), Options{}).Answer(context.Background(), "burn rate", "u1")
			require.NoError(t, err)

			assert.Equal(t, tt.wantAnswer, res.Answer)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.False(t, res.Grounded())
			assert.Len(t, res.Sources, 1)
		})
	}
	assert.NotEqual(t, AuthFailedMessage, CompletionFailedMessage)
}

func TestAnswerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	search := &MockSearcher{}
	search.On("Rank", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]retriever.ScoredChunk{scored("runway is 18 months", 100)}, nil)
	client := &llm.MockClient{}
	client.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return("", &llm.CompletionError{Kind: llm.KindCanceled, Err: context.Canceled})

	_, err := New(search, client, logger.Discard(), Options{}).Answer(ctx, "runway", "u1")
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
}

func TestAnswerDeadlineIsCompletionFailure(t *testing.T) {
	t.Run("during completion", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()
		search := &MockSearcher{}
		search.On("Rank", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return([]retriever.ScoredChunk{scored("runway is 18 months", 100)}, nil)
		client := &llm.MockClient{}
		client.On("Complete", mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { <-ctx.Done() }).
			Return("", &llm.CompletionError{Kind: llm.KindCanceled, Err: context.DeadlineExceeded})

		res, err := New(search, client, logger.Discard(), Options{}).Answer(ctx, "runway", "u1")
		require.NoError(t, err)
		assert.Equal(t, CompletionFailedMessage, res.Answer)
		assert.Equal(t, StatusCompletionFailed, res.Status)
		assert.Len(t, res.Sources, 1)
	})

	t.Run("during search", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		defer cancel()
		search := &MockSearcher{}
		search.On("Rank", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { <-ctx.Done() }).
			Return(nil, context.DeadlineExceeded)
		client := &llm.MockClient{}

		res, err := New(search, client, logger.Discard(), Options{}).Answer(ctx, "runway", "u1")
		require.NoError(t, err)
		assert.Equal(t, StatusCompletionFailed, res.Status)
		assert.Empty(t, res.Sources)
		client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAnswerSearchError(t *testing.T) {
	boom := errors.New("store down")
	search := &MockSearcher{}
	search.On("Rank", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)
	client := &llm.MockClient{}

	_, err := New(search, client, logger.Discard(), Options{}).Answer(context.Background(), "runway", "u1")
	require.ErrorIs(t, err, boom)
	client.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswerCustomTopK(t *testing.T) {
	search := &MockSearcher{}
	search.On("Rank", mock.Anything, "runway", "u1", 3).Return([]retriever.ScoredChunk{}, nil).Once()
	search.On("Rank", mock.Anything, "runway", "u1", 2).Return([]retriever.ScoredChunk{}, nil).Once()

	res, err := New(search, &llm.MockClient{}, logger.Discard(), Options{TopK: 3, FallbackTopK: 2}).
		Answer(context.Background(), "runway", "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, res.Status)
	search.AssertExpectations(t)
}

func TestBuildContext(t *testing.T) {
	page := 3
	first := retriever.ScoredChunk{Chunk: store.Chunk{
		Content: "Q4 revenue was $45,000.",
		Metadata: store.ChunkMetadata{
			DocumentName:  "deck.pdf",
			PageNumber:    &page,
			PreviousChunk: strings.Repeat("a", 60) + "END",
			NextChunk:     "Costs fell" + strings.Repeat("b", 60),
		},
	}}
	zero := 0
	second := retriever.ScoredChunk{Chunk: store.Chunk{
		Content:  "Plain notes.",
		Metadata: store.ChunkMetadata{DocumentName: "notes.txt", PageNumber: &zero},
	}}

	got := BuildContext([]retriever.ScoredChunk{first, second})

	want := `[Excerpt 1 from "deck.pdf" (Page 3)]: [...` + strings.Repeat("a", 47) + `END] Q4 revenue was $45,000. [Costs fell` + strings.Repeat("b", 40) + `...]` +
		"\n\n---\n\n" +
		`[Excerpt 2 from "notes.txt"]: Plain notes.`
	assert.Equal(t, want, got)
}

func TestBuildContextKeepsNameVerbatim(t *testing.T) {
	got := BuildContext([]retriever.ScoredChunk{{Chunk: store.Chunk{
		Content:  "Seed round closed.",
		Metadata: store.ChunkMetadata{DocumentName: `Plan "v2" C:\deals.pdf`},
	}}})
	assert.Equal(t, `[Excerpt 1 from "Plan "v2" C:\deals.pdf"]: Seed round closed.`, got)
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("[Excerpt 1 from \"a\"]: x", "What is X?")
	assert.True(t, strings.HasPrefix(got, "Excerpts from the user's documents:\n\n[Excerpt 1"))
	assert.True(t, strings.HasSuffix(got, "\n\nQuestion: What is X?"))
}
