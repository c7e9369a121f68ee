// Package retriever ranks a user's chunks against a question using lexical
// signals: exact phrase, phrasings, word hits and proximity, and numbers.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"venture-advisor/internal/query"
	"venture-advisor/internal/store"
)

const DefaultTopK = 8

// Signal weights.
const (
	ExactPhraseScore  = 100
	VariationScore    = 80
	WordScore         = 20
	ProximityScore    = 10
	AllWordsScore     = 30
	NumberScore       = 50
	ContextMatchScore = 5

	proximityWindow = 50
)

// DocumentSource lists every document a user owns.
type DocumentSource interface {
	ListDocuments(ctx context.Context, userID string) ([]store.Document, error)
}

// ScoredChunk is a chunk with its relevance score and the signals that fired.
type ScoredChunk struct {
	Chunk   store.Chunk
	Score   int
	Reasons []string
}

type Retriever struct {
	docs DocumentSource
	log  *slog.Logger
}

func New(docs DocumentSource, log *slog.Logger) *Retriever {
	return &Retriever{docs: docs, log: log}
}

// Search returns the topK best chunks for question among userID's documents.
func (r *Retriever) Search(ctx context.Context, question, userID string, topK int) ([]store.Chunk, error) {
	scored, err := r.Rank(ctx, question, userID, topK)
	if err != nil {
		return nil, err
	}
	out := make([]store.Chunk, len(scored))
	for i, s := range scored {
		out[i] = s.Chunk
	}
	return out, nil
}

// Rank scores every chunk of every document userID owns and returns the
// topK with a positive score, best first. Ties keep document and chunk order.
func (r *Retriever) Rank(ctx context.Context, question, userID string, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	profile := query.Process(question)
	if profile.Empty() {
		return nil, nil
	}

	docs, err := r.docs.ListDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	var scored []ScoredChunk
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(doc.FullContent) == "" {
			r.log.Debug("skipping document without text", "document_id", doc.ID, "user_id", userID)
			continue
		}
		hits, err := scoreDocument(doc, profile)
		if err != nil {
			r.log.Warn("skipping document that failed to score", "document_id", doc.ID, "user_id", userID, "err", err)
			continue
		}
		scored = append(scored, hits...)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func scoreDocument(doc store.Document, p query.Profile) (hits []ScoredChunk, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			hits, err = nil, fmt.Errorf("panic scoring document: %v", rec)
		}
	}()
	for _, c := range doc.Chunks {
		if s := Score(c, p); s.Score > 0 {
			hits = append(hits, s)
		}
	}
	return hits, nil
}

// Score applies every signal to one chunk.
func Score(c store.Chunk, p query.Profile) ScoredChunk {
	content := strings.ToLower(c.Content)
	s := ScoredChunk{Chunk: c}
	add := func(points int, reason string) {
		s.Score += points
		s.Reasons = append(s.Reasons, reason)
	}

	if p.OriginalLower != "" && strings.Contains(content, p.OriginalLower) {
		add(ExactPhraseScore, "exact phrase")
	}
	for _, v := range p.Variations {
		if strings.Contains(content, v) {
			add(VariationScore, fmt.Sprintf("variation %q", v))
		}
	}

	matched, lastPos := 0, -1
	for _, w := range p.Words {
		pos := strings.Index(content, w)
		if pos < 0 {
			continue
		}
		matched++
		add(WordScore, fmt.Sprintf("word %q", w))
		if lastPos >= 0 && abs(pos-lastPos) <= proximityWindow {
			add(ProximityScore, fmt.Sprintf("proximity %q", w))
		}
		lastPos = pos
	}
	if len(p.Words) > 1 && matched == len(p.Words) {
		add(AllWordsScore, "all words")
	}

	for _, n := range p.Numbers {
		if strings.Contains(content, n) {
			add(NumberScore, fmt.Sprintf("number %q", n))
		}
	}

	if prev := strings.ToLower(c.Metadata.PreviousChunk); prev != "" {
		for _, w := range p.Words {
			if strings.Contains(prev, w) {
				add(ContextMatchScore, "context match")
				break
			}
		}
	}
	return s
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
