// Package ingest runs the upload pipeline (extract, preprocess, chunk, save)
// and the delete flow, then notifies the answer cache and event subscribers.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"venture-advisor/internal/cache"
	"venture-advisor/internal/chunker"
	"venture-advisor/internal/extract"
	"venture-advisor/internal/preprocess"
	"venture-advisor/internal/queue"
	"venture-advisor/internal/store"
)

const (
	publishAttempts = 3
	publishBackoff  = 200 * time.Millisecond
)

// Upload is one file handed in by a user.
type Upload struct {
	UserID      string
	Filename    string
	ContentType string
	Data        []byte
}

// Service owns document writes.
type Service struct {
	extractor *extract.Extractor
	pre       *preprocess.Preprocessor
	chunker   *chunker.Chunker
	docs      *store.DocumentStore
	cache     cache.Cache
	events    queue.Publisher
	log       *slog.Logger
	backoff   time.Duration
	now       func() time.Time
	newID     func() string
}

func New(
	extractor *extract.Extractor,
	pre *preprocess.Preprocessor,
	ch *chunker.Chunker,
	docs *store.DocumentStore,
	c cache.Cache,
	events queue.Publisher,
	log *slog.Logger,
) *Service {
	if c == nil {
		c = cache.NewNoOpCache()
	}
	if events == nil {
		events = queue.NoOpPublisher{}
	}
	return &Service{
		extractor: extractor,
		pre:       pre,
		chunker:   ch,
		docs:      docs,
		cache:     c,
		events:    events,
		log:       log,
		backoff:   publishBackoff,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Upload extracts, chunks and stores a file. The returned document is only
// valid once both the original bytes and the metadata are persisted.
func (s *Service) Upload(ctx context.Context, up Upload) (store.Document, error) {
	res, err := s.extractor.Extract(ctx, up.Data, up.ContentType, up.Filename)
	if err != nil {
		return store.Document{}, err
	}
	if len(res.Info.FailedPages) > 0 {
		s.log.Warn("document stored with unreadable pages",
			"user_id", up.UserID, "file", up.Filename, "failed_pages", res.Info.FailedPages)
	}

	processed := s.pre.Process(res.Text)
	if info := documentInfo(res.Info); info != nil {
		processed.DocumentInfo = info
	}

	id := s.newID()
	doc := store.Document{
		ID:               id,
		UserID:           up.UserID,
		Name:             up.Filename,
		Type:             up.ContentType,
		Size:             int64(len(up.Data)),
		UploadedAt:       s.now(),
		FullContent:      res.Text,
		Chunks:           s.chunker.Chunk(res.Text, up.Filename, id),
		ProcessedContent: &processed,
	}
	if err := s.docs.Save(ctx, doc, up.Data); err != nil {
		return store.Document{}, fmt.Errorf("save document: %w", err)
	}
	s.log.Info("document stored", "user_id", doc.UserID, "document_id", doc.ID, "chunks", len(doc.Chunks), "bytes", doc.Size)

	event := queue.NewEvent(queue.EventDocumentUploaded, doc.UserID, doc.ID)
	event.Name = doc.Name
	event.Chunks = len(doc.Chunks)
	s.afterChange(ctx, event)
	return doc, nil
}

// Delete removes a document and its original file.
func (s *Service) Delete(ctx context.Context, userID, docID string) error {
	if err := s.docs.Delete(ctx, userID, docID); err != nil {
		return err
	}
	s.log.Info("document deleted", "user_id", userID, "document_id", docID)
	s.afterChange(ctx, queue.NewEvent(queue.EventDocumentDeleted, userID, docID))
	return nil
}

// afterChange drops the user's cached answers and announces the change. Both
// are best effort: the write already succeeded.
func (s *Service) afterChange(ctx context.Context, event queue.Event) {
	ctx = context.WithoutCancel(ctx)
	if err := s.cache.InvalidateUser(ctx, event.UserID); err != nil {
		s.log.Warn("failed to invalidate cached answers", "user_id", event.UserID, "err", err)
	}
	if err := queue.PublishWithRetry(ctx, s.events, event, publishAttempts, s.backoff); err != nil {
		s.log.Warn("failed to publish document event", "subject", event.Subject(), "document_id", event.DocumentID, "err", err)
	}
}

func documentInfo(in extract.Info) *store.DocumentInfo {
	if in.Title == "" && in.Author == "" && in.Subject == "" && in.PageCount == 0 {
		return nil
	}
	return &store.DocumentInfo{
		Title:     in.Title,
		Author:    in.Author,
		Subject:   in.Subject,
		PageCount: in.PageCount,
	}
}
