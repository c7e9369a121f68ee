// Package extract turns uploaded files into normalised plain text plus
// document metadata.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Info is metadata recovered from the source file. Empty strings mean the
// field was absent or unusable.
type Info struct {
	Title       string
	Author      string
	Subject     string
	PageCount   int
	FailedPages []int
}

// Result is the normalised text of a file plus its metadata.
type Result struct {
	Text string
	Info Info
}

// ExtractionError means the file could not be opened at all.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Extractor converts raw file bytes to text.
type Extractor struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Extractor {
	return &Extractor{log: log}
}

// Extract reads data according to its MIME type and filename. Only a PDF
// that cannot be opened returns an error; every other failure degrades to
// placeholder text.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType, filename string) (Result, error) {
	switch kindOf(mimeType, filename) {
	case kindPDF:
		text, info, err := e.extractPDF(ctx, data, filename)
		if err != nil {
			return Result{}, err
		}
		return Result{Text: Normalize(text), Info: info}, nil
	case kindDOCX:
		text, info, err := extractDOCX(data)
		if err != nil {
			e.log.Warn("docx extraction failed, using placeholder", "filename", filename, "err", err)
			return Result{Text: emptyPlaceholder(filename)}, nil
		}
		return e.finishText(text, info, filename), nil
	default:
		return e.finishText(readUTF8(data), Info{}, filename), nil
	}
}

func (e *Extractor) finishText(text string, info Info, filename string) Result {
	out := Normalize(text)
	if out == "" {
		e.log.Info("no readable text in file", "filename", filename)
		out = emptyPlaceholder(filename)
	}
	return Result{Text: out, Info: info}
}

func emptyPlaceholder(filename string) string {
	return fmt.Sprintf("[No readable text content in %s]", filename)
}

func readUTF8(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

type kind int

const (
	kindText kind = iota
	kindPDF
	kindDOCX
)

func kindOf(mimeType, filename string) kind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case mt == MIMEPDF || ext == ".pdf":
		return kindPDF
	case mt == MIMEDOCX || ext == ".docx":
		return kindDOCX
	default:
		return kindText
	}
}
