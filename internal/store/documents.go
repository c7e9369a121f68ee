package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
)

const (
	metadataNamespace = "documents"
	fileNamespace     = "files"
	metadataSuffix    = ".json"

	defaultLoadConcurrency = 8
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DocumentStore persists documents in two namespaces of a BlobStore: JSON
// metadata under documents/{user}/{id}.json and the original bytes under
// files/{user}/{id}.
type DocumentStore struct {
	blobs       BlobStore
	log         *slog.Logger
	concurrency int
}

func NewDocumentStore(blobs BlobStore, log *slog.Logger, concurrency int) *DocumentStore {
	if concurrency <= 0 {
		concurrency = defaultLoadConcurrency
	}
	return &DocumentStore{blobs: blobs, log: log, concurrency: concurrency}
}

func metadataKey(userID, docID string) string {
	return metadataNamespace + "/" + userID + "/" + docID + metadataSuffix
}

func fileKey(userID, docID string) string {
	return fileNamespace + "/" + userID + "/" + docID
}

func userPrefix(userID string) string {
	return metadataNamespace + "/" + userID + "/"
}

func checkOwner(userID string) error {
	if userID == "" || strings.ContainsAny(userID, "/\\") {
		return ErrInvalidOwner
	}
	return nil
}

// Save writes the original file and then the metadata. The document only
// becomes visible once the metadata write succeeds; a failed metadata write
// removes the file again.
func (s *DocumentStore) Save(ctx context.Context, doc Document, file []byte) error {
	if err := checkOwner(doc.UserID); err != nil {
		return err
	}
	if err := ValidateDocument(doc); err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", doc.ID, err)
	}

	fk := fileKey(doc.UserID, doc.ID)
	if err := s.blobs.Put(ctx, fk, Blob{Data: file, ContentType: doc.Type}); err != nil {
		return &StoreError{Op: "put", Key: fk, Err: err}
	}
	mk := metadataKey(doc.UserID, doc.ID)
	if err := s.blobs.Put(ctx, mk, Blob{Data: body, ContentType: "application/json"}); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), fk); delErr != nil {
			s.log.Error("failed to remove orphaned file", "key", fk, "err", delErr)
		}
		return &StoreError{Op: "put", Key: mk, Err: err}
	}
	return nil
}

// Get loads one document owned by userID.
func (s *DocumentStore) Get(ctx context.Context, userID, docID string) (Document, error) {
	if err := checkOwner(userID); err != nil {
		return Document{}, err
	}
	key := metadataKey(userID, docID)
	blob, err := s.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Document{}, fmt.Errorf("document %s: %w", docID, ErrNotFound)
		}
		return Document{}, &StoreError{Op: "get", Key: key, Err: err}
	}
	return decodeDocument(blob.Data, userID)
}

// OpenFile returns the original uploaded bytes of a document.
func (s *DocumentStore) OpenFile(ctx context.Context, userID, docID string) (Blob, error) {
	if err := checkOwner(userID); err != nil {
		return Blob{}, err
	}
	key := fileKey(userID, docID)
	blob, err := s.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Blob{}, fmt.Errorf("file %s: %w", docID, ErrNotFound)
		}
		return Blob{}, &StoreError{Op: "get", Key: key, Err: err}
	}
	return blob, nil
}

// ListDocuments loads every document owned by userID, oldest first.
// Objects that fail to decode or validate are logged and skipped.
func (s *DocumentStore) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	if err := checkOwner(userID); err != nil {
		return nil, err
	}
	prefix := userPrefix(userID)
	keys, err := s.blobs.List(ctx, prefix)
	if err != nil {
		return nil, &StoreError{Op: "list", Key: prefix, Err: err}
	}

	var metaKeys []string
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		if strings.HasSuffix(rest, metadataSuffix) && !strings.Contains(rest, "/") {
			metaKeys = append(metaKeys, k)
		}
	}

	docs := make([]*Document, len(metaKeys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, key := range metaKeys {
		g.Go(func() error {
			blob, err := s.blobs.Get(gctx, key)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					// deleted between List and Get
					return nil
				}
				return &StoreError{Op: "get", Key: key, Err: err}
			}
			doc, err := decodeDocument(blob.Data, userID)
			if err != nil {
				s.log.Warn("skipping malformed document", "key", key, "user_id", userID, "err", err)
				return nil
			}
			docs[i] = &doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if d != nil {
			out = append(out, *d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].UploadedAt.Before(out[j].UploadedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes both the metadata and the original file.
func (s *DocumentStore) Delete(ctx context.Context, userID, docID string) error {
	if err := checkOwner(userID); err != nil {
		return err
	}
	mk := metadataKey(userID, docID)
	if _, err := s.blobs.Get(ctx, mk); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("document %s: %w", docID, ErrNotFound)
		}
		return &StoreError{Op: "get", Key: mk, Err: err}
	}
	// metadata first so a half-finished delete never leaves a searchable document
	if err := s.blobs.Delete(ctx, mk); err != nil {
		return &StoreError{Op: "delete", Key: mk, Err: err}
	}
	fk := fileKey(userID, docID)
	if err := s.blobs.Delete(ctx, fk); err != nil {
		return &StoreError{Op: "delete", Key: fk, Err: err}
	}
	return nil
}

// ValidateDocument checks the shape of a document and its chunk linkage.
func ValidateDocument(doc Document) error {
	if err := validate.Struct(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	for i, c := range doc.Chunks {
		if c.Metadata.DocumentID != doc.ID {
			return fmt.Errorf("%w: chunk %d belongs to %q", ErrInvalidDocument, i, c.Metadata.DocumentID)
		}
		if c.Metadata.ChunkIndex != i {
			return fmt.Errorf("%w: chunk %d has index %d", ErrInvalidDocument, i, c.Metadata.ChunkIndex)
		}
	}
	return nil
}

func decodeDocument(data []byte, userID string) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := ValidateDocument(doc); err != nil {
		return Document{}, err
	}
	if doc.UserID != userID {
		return Document{}, fmt.Errorf("%w: owner mismatch", ErrInvalidDocument)
	}
	return doc, nil
}
