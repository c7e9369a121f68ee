package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNoOpCache verifies that NoOpCache never stores anything.
func TestNoOpCache(t *testing.T) {
	var c Cache = NewNoOpCache()
	ctx := context.Background()
	key := AnswerKey("u1", 0, "What was revenue?")

	gen, err := c.Generation(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, gen)

	got, err := c.GetAnswer(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.SetAnswer(ctx, key, &Answer{Answer: "42", Sources: []byte(`[]`)}, time.Hour))

	got, err = c.GetAnswer(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got, "no-op cache must not store")

	assert.NoError(t, c.InvalidateUser(ctx, "u1"))
	assert.NoError(t, c.Close())
}

func TestAnswerKey(t *testing.T) {
	type input struct {
		user     string
		gen      int64
		question string
	}
	tests := []struct {
		name  string
		a, b  input
		equal bool
	}{
		{name: "case and space insensitive", a: input{"u1", 0, "What was revenue?"}, b: input{"u1", 0, "  what was REVENUE? "}, equal: true},
		{name: "different question", a: input{"u1", 0, "revenue"}, b: input{"u1", 0, "costs"}},
		{name: "different user", a: input{"u1", 0, "revenue"}, b: input{"u2", 0, "revenue"}},
		{name: "different generation", a: input{"u1", 1, "revenue"}, b: input{"u1", 2, "revenue"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := AnswerKey(tt.a.user, tt.a.gen, tt.a.question)
			kb := AnswerKey(tt.b.user, tt.b.gen, tt.b.question)
			if tt.equal {
				assert.Equal(t, ka, kb)
			} else {
				assert.NotEqual(t, ka, kb)
			}
		})
	}

	key := AnswerKey("u1", 7, "revenue")
	assert.True(t, strings.HasPrefix(key, "answer:u1:7:"))
	assert.Len(t, strings.TrimPrefix(key, "answer:u1:7:"), 64)
	assert.Equal(t, "answer-gen:u1", generationKey("u1"))
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	key := AnswerKey("u1", 0, "revenue")
	other := AnswerKey("u2", 0, "revenue")

	require.NoError(t, c.SetAnswer(ctx, key, &Answer{Answer: "42", Sources: []byte(`[]`)}, time.Hour))
	require.NoError(t, c.SetAnswer(ctx, other, &Answer{Answer: "7"}, time.Hour))

	got, err := c.GetAnswer(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "42", got.Answer)
	assert.Equal(t, []byte(`[]`), got.Sources)

	require.NoError(t, c.InvalidateUser(ctx, "u1"))

	got, err = c.GetAnswer(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
	gen, err := c.Generation(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	got, err = c.GetAnswer(ctx, other)
	require.NoError(t, err)
	require.NotNil(t, got, "other users keep their answers")
	assert.Equal(t, "7", got.Answer)
}

func TestMemoryCacheStaleGenerationWriteIsUnreachable(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	before, err := c.Generation(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, c.InvalidateUser(ctx, "u1"))
	require.NoError(t, c.SetAnswer(ctx, AnswerKey("u1", before, "revenue"), &Answer{Answer: "stale"}, time.Hour))

	after, err := c.Generation(ctx, "u1")
	require.NoError(t, err)
	got, err := c.GetAnswer(ctx, AnswerKey("u1", after, "revenue"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := AnswerKey("u1", 0, "revenue")
	require.NoError(t, c.SetAnswer(ctx, key, &Answer{Answer: "42"}, time.Minute))

	now = now.Add(59 * time.Second)
	got, err := c.GetAnswer(ctx, key)
	require.NoError(t, err)
	assert.NotNil(t, got)

	now = now.Add(time.Second)
	got, err = c.GetAnswer(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, "answer:plain:", escapeGlob("answer:plain:"))
	assert.Equal(t, `answer:a\*b\?\[c\]:`, escapeGlob("answer:a*b?[c]:"))
	assert.Equal(t, `x\\y`, escapeGlob(`x\y`))
}
