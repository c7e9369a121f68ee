package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"venture-advisor/internal/answer"
	"venture-advisor/internal/app"
	"venture-advisor/internal/cache"
	"venture-advisor/internal/httputil"
	"venture-advisor/internal/retriever"
)

const previewLength = 150

type askRequest struct {
	Question string `json:"question" validate:"required,min=2,max=2000"`
	UserID   string `json:"userId" validate:"required,max=128"`
}

type source struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	ChunkIndex   int    `json:"chunk_index"`
	Page         *int   `json:"page,omitempty"`
	Score        int    `json:"score"`
	Preview      string `json:"preview"` // Truncated text preview
}

type askResponse struct {
	Answer  string   `json:"answer"`
	Sources []source `json:"sources"`
	Cached  bool     `json:"cached"`
}

func askHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		req.Question = strings.TrimSpace(req.Question)
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), deps.Config.AskDeadline())
		defer cancel()

		// The generation is read before retrieval so an upload or delete that
		// lands mid-answer leaves this answer under a key no later ask reads.
		gen, err := deps.Cache.Generation(ctx, req.UserID)
		useCache := err == nil
		if err != nil {
			deps.Log.Warn("answer cache generation read failed, skipping cache", "user_id", req.UserID, "err", err)
		}
		key := cache.AnswerKey(req.UserID, gen, req.Question)
		if useCache {
			if cached, ok := cachedAnswer(ctx, deps, key); ok {
				deps.Log.Info("cache hit", "user_id", req.UserID)
				httputil.WriteJSON(w, http.StatusOK, cached)
				return
			}
		}

		res, err := deps.Answerer.Answer(ctx, req.Question, req.UserID)
		if err != nil {
			if answer.IsCanceled(err) {
				httputil.Fail(deps.Log, w, "request canceled", err, http.StatusGatewayTimeout)
				return
			}
			failStore(deps, w, "failed to search documents", err)
			return
		}

		sources := buildSources(res.Sources)
		if useCache && res.Grounded() {
			storeAnswer(ctx, deps, key, res.Answer, sources)
		}
		httputil.WriteJSON(w, http.StatusOK, askResponse{Answer: res.Answer, Sources: sources, Cached: false})
	}
}

// cachedAnswer returns a previously stored answer. Cache errors count as a miss.
func cachedAnswer(ctx context.Context, deps app.Deps, key string) (askResponse, bool) {
	cached, err := deps.Cache.GetAnswer(ctx, key)
	if err != nil {
		deps.Log.Warn("answer cache read failed", "err", err)
		return askResponse{}, false
	}
	if cached == nil {
		return askResponse{}, false
	}
	var sources []source
	if err := json.Unmarshal(cached.Sources, &sources); err != nil {
		deps.Log.Warn("failed to unmarshal cached sources", "err", err)
		return askResponse{}, false
	}
	return askResponse{Answer: cached.Answer, Sources: sources, Cached: true}, true
}

// storeAnswer caches a grounded answer. Failures are logged only.
func storeAnswer(ctx context.Context, deps app.Deps, key, text string, sources []source) {
	body, err := json.Marshal(sources)
	if err != nil {
		deps.Log.Warn("failed to marshal sources, skipping cache", "err", err)
		return
	}
	if err := deps.Cache.SetAnswer(ctx, key, &cache.Answer{Answer: text, Sources: body}, deps.Config.CacheTTLDuration()); err != nil && !errors.Is(err, context.Canceled) {
		deps.Log.Warn("failed to cache answer", "err", err)
	}
}

// buildSources converts ranked chunks into sources with truncated previews.
func buildSources(chunks []retriever.ScoredChunk) []source {
	sources := make([]source, len(chunks))
	for i, sc := range chunks {
		md := sc.Chunk.Metadata
		sources[i] = source{
			DocumentID:   md.DocumentID,
			DocumentName: md.DocumentName,
			ChunkIndex:   md.ChunkIndex,
			Page:         md.PageNumber,
			Score:        sc.Score,
			Preview:      truncate(sc.Chunk.Content, previewLength),
		}
	}
	return sources
}

// truncate limits text to maxLen runes, cutting at a word boundary.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	cut := string([]rune(s)[:maxLen])
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		return cut[:idx] + "..."
	}
	return cut + "..."
}
