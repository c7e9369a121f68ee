// Package answer turns a user's question into a grounded answer: it retrieves
// the best chunks, renders them as numbered excerpts and asks the completion
// service to answer from those excerpts only.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"venture-advisor/internal/llm"
	"venture-advisor/internal/query"
	"venture-advisor/internal/retriever"
)

const (
	DefaultTopK         = 8
	DefaultFallbackTopK = 5

	neighborSnippet  = 50
	excerptSeparator = "\n\n---\n\n"
)

// Fixed user-facing responses.
const (
	NotFoundMessage         = "I couldn't find any relevant information in your documents to answer that question. Try rephrasing it or uploading a document that covers this topic."
	CompletionFailedMessage = "Sorry, I couldn't generate an answer right now. Please try again in a moment."
	AuthFailedMessage       = "The answer service is not configured correctly (credentials were rejected). Please contact support."
)

// SystemInstruction is sent with every completion request.
const SystemInstruction = `You are a venture advisor answering questions about the user's own documents.
Rules:
- Answer strictly from the numbered excerpts provided. Do not use outside knowledge.
- Cite the excerpt(s) you relied on, for example [Excerpt 2].
- Never invent facts, figures, names or dates.
- If the excerpts do not contain the answer, or only part of it, say so explicitly.
- Quote numbers, currency amounts, percentages and dates exactly as written in the excerpts.`

// Status reports how an answer was produced.
type Status string

const (
	StatusAnswered         Status = "answered"
	StatusNotFound         Status = "not_found"
	StatusCompletionFailed Status = "completion_failed"
	StatusAuthFailed       Status = "auth_failed"
)

// Searcher ranks a user's chunks for a question.
type Searcher interface {
	Rank(ctx context.Context, question, userID string, topK int) ([]retriever.ScoredChunk, error)
}

// Result is a composed answer plus the chunks it was grounded on.
type Result struct {
	Answer  string
	Status  Status
	Sources []retriever.ScoredChunk
}

// Grounded reports whether the answer came from the completion service.
func (r Result) Grounded() bool { return r.Status == StatusAnswered }

// Options tune a Composer. Zero values select the defaults.
type Options struct {
	TopK         int
	FallbackTopK int
}

// Composer answers questions from a user's documents.
type Composer struct {
	search       Searcher
	llm          llm.Client
	log          *slog.Logger
	topK         int
	fallbackTopK int
}

// New wires a Composer.
func New(search Searcher, client llm.Client, log *slog.Logger, opts Options) *Composer {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.FallbackTopK <= 0 {
		opts.FallbackTopK = DefaultFallbackTopK
	}
	return &Composer{
		search:       search,
		llm:          client,
		log:          log,
		topK:         opts.TopK,
		fallbackTopK: opts.FallbackTopK,
	}
}

// Answer runs retrieval, the broadened fallback when nothing matched, and a
// single completion call. Completion failures and an expired ctx deadline
// become fixed messages; only store failures and cancellation of ctx are
// returned as errors.
func (c *Composer) Answer(ctx context.Context, question, userID string) (Result, error) {
	res, err := c.answer(ctx, question, userID)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.log.Error("ask deadline exceeded", "user_id", userID, "err", err)
		return Result{Answer: CompletionFailedMessage, Status: StatusCompletionFailed, Sources: res.Sources}, nil
	}
	return res, err
}

func (c *Composer) answer(ctx context.Context, question, userID string) (Result, error) {
	chunks, err := c.search.Rank(ctx, question, userID, c.topK)
	if err != nil {
		return Result{}, fmt.Errorf("search: %w", err)
	}
	if len(chunks) == 0 {
		if broadened := query.Broaden(question); broadened != "" {
			c.log.Info("no chunks matched, retrying with broadened query", "user_id", userID, "query", broadened)
			chunks, err = c.search.Rank(ctx, broadened, userID, c.fallbackTopK)
			if err != nil {
				return Result{}, fmt.Errorf("fallback search: %w", err)
			}
		}
	}
	if len(chunks) == 0 {
		return Result{Answer: NotFoundMessage, Status: StatusNotFound}, nil
	}

	prompt := BuildPrompt(BuildContext(chunks), question)
	text, err := c.llm.Complete(ctx, SystemInstruction, prompt)
	if err != nil {
		switch llm.KindOf(err) {
		case llm.KindCanceled:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{Sources: chunks}, ctxErr
			}
			return Result{Sources: chunks}, err
		case llm.KindAuth:
			c.log.Error("completion rejected credentials", "user_id", userID, "err", err)
			return Result{Answer: AuthFailedMessage, Status: StatusAuthFailed, Sources: chunks}, nil
		default:
			c.log.Error("completion failed", "user_id", userID, "err", err)
			return Result{Answer: CompletionFailedMessage, Status: StatusCompletionFailed, Sources: chunks}, nil
		}
	}
	return Result{Answer: text, Status: StatusAnswered, Sources: chunks}, nil
}

// BuildContext renders ranked chunks as numbered excerpts with neighbour
// snippets and page references.
func BuildContext(chunks []retriever.ScoredChunk) string {
	parts := make([]string, 0, len(chunks))
	for i, sc := range chunks {
		md := sc.Chunk.Metadata
		var b strings.Builder
		fmt.Fprintf(&b, "[Excerpt %d from \"%s\"", i+1, md.DocumentName)
		if md.PageNumber != nil && *md.PageNumber > 0 {
			fmt.Fprintf(&b, " (Page %d)", *md.PageNumber)
		}
		b.WriteString("]: ")
		if md.PreviousChunk != "" {
			b.WriteString("[..." + lastRunes(md.PreviousChunk, neighborSnippet) + "] ")
		}
		b.WriteString(sc.Chunk.Content)
		if md.NextChunk != "" {
			b.WriteString(" [" + firstRunes(md.NextChunk, neighborSnippet) + "...]")
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, excerptSeparator)
}

// BuildPrompt places the question verbatim after the excerpts.
func BuildPrompt(excerpts, question string) string {
	return "Excerpts from the user's documents:\n\n" + excerpts + "\n\nQuestion: " + question
}

func firstRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// IsCanceled reports whether err ended an ask because its caller went away.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
