package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Cache holds composed answers per user so a repeated question skips retrieval
// and the completion call.
type Cache interface {
	// GetAnswer retrieves a cached answer by key.
	// Returns nil if not found.
	GetAnswer(ctx context.Context, key string) (*Answer, error)

	// SetAnswer stores an answer with TTL.
	SetAnswer(ctx context.Context, key string, answer *Answer, ttl time.Duration) error

	// Generation returns the user's current answer generation. Keys built
	// from an older generation are never read again.
	Generation(ctx context.Context, userID string) (int64, error)

	// InvalidateUser advances the user's generation and removes the answers
	// cached under older ones.
	InvalidateUser(ctx context.Context, userID string) error

	// Close closes the cache connection.
	Close() error
}

// Answer is a cached ask response.
type Answer struct {
	Answer  string `json:"answer"`
	Sources []byte `json:"sources"` // JSON-encoded source list
}

const (
	answerKeyPrefix     = "answer:"
	generationKeyPrefix = "answer-gen:"
)

// AnswerKey derives the cache key for a user's question at a generation read
// from Generation. Questions differing only in case or surrounding whitespace
// share a key.
func AnswerKey(userID string, generation int64, question string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(question))))
	return userKeyPrefix(userID) + strconv.FormatInt(generation, 10) + ":" + hex.EncodeToString(sum[:])
}

func userKeyPrefix(userID string) string {
	return answerKeyPrefix + userID + ":"
}

func generationKey(userID string) string {
	return generationKeyPrefix + userID
}
