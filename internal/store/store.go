package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidDocument = errors.New("invalid document")
	ErrInvalidOwner    = errors.New("invalid user id")
)

// StoreError reports a failed persistence operation on a key.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Document is one uploaded file with its extracted text and chunks.
// It is written once and only ever deleted as a whole.
type Document struct {
	ID               string            `json:"id" validate:"required"`
	UserID           string            `json:"userId" validate:"required"`
	Name             string            `json:"name" validate:"required"`
	Type             string            `json:"type"`
	Size             int64             `json:"size" validate:"gte=0"`
	UploadedAt       time.Time         `json:"uploadedAt"`
	FullContent      string            `json:"fullContent"`
	Chunks           []Chunk           `json:"chunks" validate:"dive"`
	ProcessedContent *ProcessedContent `json:"processedContent,omitempty"`
}

// ProcessedContent holds coarse derived data about a document.
type ProcessedContent struct {
	Keywords     []string      `json:"keywords"`
	Numbers      []string      `json:"numbers,omitempty"`
	Sections     []Section     `json:"sections"`
	DocumentInfo *DocumentInfo `json:"documentInfo,omitempty"`
}

type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type DocumentInfo struct {
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	Subject   string `json:"subject,omitempty"`
	PageCount int    `json:"pageCount,omitempty" validate:"gte=0"`
}

type Chunk struct {
	ID       string        `json:"id" validate:"required"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata links a chunk to its document and neighbours. PageNumber is
// nil for documents chunked without page structure.
type ChunkMetadata struct {
	DocumentID    string `json:"documentId" validate:"required"`
	DocumentName  string `json:"documentName"`
	ChunkIndex    int    `json:"chunkIndex" validate:"gte=0"`
	PageNumber    *int   `json:"pageNumber,omitempty" validate:"omitempty,gte=0"`
	PreviousChunk string `json:"previousChunk,omitempty"`
	NextChunk     string `json:"nextChunk,omitempty"`
}

// DocumentSummary is the listing view of a Document.
type DocumentSummary struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Type       string        `json:"type"`
	Size       int64         `json:"size"`
	UploadedAt time.Time     `json:"uploadedAt"`
	ChunkCount int           `json:"chunkCount"`
	Info       *DocumentInfo `json:"documentInfo,omitempty"`
}

func (d Document) Summary() DocumentSummary {
	s := DocumentSummary{
		ID:         d.ID,
		Name:       d.Name,
		Type:       d.Type,
		Size:       d.Size,
		UploadedAt: d.UploadedAt,
		ChunkCount: len(d.Chunks),
	}
	if d.ProcessedContent != nil {
		s.Info = d.ProcessedContent.DocumentInfo
	}
	return s
}

// Blob is a stored byte object with its MIME type.
type Blob struct {
	Data        []byte
	ContentType string
}

// BlobStore is a flat key-value byte store. Get returns ErrNotFound for
// missing keys; Delete ignores them.
type BlobStore interface {
	Put(ctx context.Context, key string, blob Blob) error
	Get(ctx context.Context, key string) (Blob, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
