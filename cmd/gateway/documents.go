package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"venture-advisor/internal/app"
	"venture-advisor/internal/extract"
	"venture-advisor/internal/httputil"
	"venture-advisor/internal/ingest"
	"venture-advisor/internal/store"
)

// multipartOverhead leaves room for boundaries and the userId field on top
// of the file itself.
const multipartOverhead = 1 << 20

const (
	mimeText     = "text/plain"
	mimeMarkdown = "text/markdown"
	mimeCSV      = "text/csv"
	mimeJSON     = "application/json"
	mimeDOC      = "application/msword"
)

var (
	extensionTypes = map[string]string{
		".pdf":      extract.MIMEPDF,
		".txt":      mimeText,
		".md":       mimeMarkdown,
		".markdown": mimeMarkdown,
		".csv":      mimeCSV,
		".json":     mimeJSON,
		".doc":      mimeDOC,
		".docx":     extract.MIMEDOCX,
	}
	allowedTypes = []string{extract.MIMEPDF, mimeText, mimeMarkdown, mimeCSV, mimeJSON, mimeDOC, extract.MIMEDOCX}
)

type userQuery struct {
	UserID string `json:"userId" validate:"required,max=128"`
}

type uploadResponse struct {
	DocumentID string `json:"documentId"`
	Name       string `json:"name"`
	Chunks     int    `json:"chunks"`
	PageCount  int    `json:"pageCount"`
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		tooLarge := fmt.Sprintf("file too large (max %d bytes)", maxFileSize)
		if r.ContentLength > maxFileSize+multipartOverhead {
			httputil.Fail(deps.Log, w, tooLarge, nil, http.StatusRequestEntityTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxFileSize+multipartOverhead)

		file, header, err := r.FormFile("file")
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				httputil.Fail(deps.Log, w, tooLarge, err, http.StatusRequestEntityTooLarge)
				return
			}
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		req := userQuery{UserID: r.FormValue("userId")}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}
		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, tooLarge, nil, http.StatusRequestEntityTooLarge)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}

		contentType, ok := resolveType(header.Filename, header.Header.Get("Content-Type"), content)
		if !ok {
			httputil.Fail(deps.Log, w, "unsupported file type (PDF, TXT, MD, CSV, JSON, DOC and DOCX allowed)", nil, http.StatusBadRequest)
			return
		}

		doc, err := deps.Ingest.Upload(r.Context(), ingest.Upload{
			UserID:      req.UserID,
			Filename:    filepath.Base(header.Filename),
			ContentType: contentType,
			Data:        content,
		})
		if err != nil {
			failStore(deps, w, "failed to store document", err)
			return
		}

		resp := uploadResponse{DocumentID: doc.ID, Name: doc.Name, Chunks: len(doc.Chunks)}
		if pc := doc.ProcessedContent; pc != nil && pc.DocumentInfo != nil {
			resp.PageCount = pc.DocumentInfo.PageCount
		}
		httputil.WriteJSON(w, http.StatusCreated, resp)
	}
}

func listHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := bindUser(deps, w, r)
		if !ok {
			return
		}
		docs, err := deps.Documents.ListDocuments(r.Context(), req.UserID)
		if err != nil {
			failStore(deps, w, "failed to list documents", err)
			return
		}
		out := make([]store.DocumentSummary, 0, len(docs))
		for _, d := range docs {
			out = append(out, d.Summary())
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"documents": out})
	}
}

func getHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, docID, ok := bindDocument(deps, w, r)
		if !ok {
			return
		}
		doc, err := deps.Documents.Get(r.Context(), req.UserID, docID)
		if err != nil {
			failStore(deps, w, "failed to load document", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, doc)
	}
}

func fileHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, docID, ok := bindDocument(deps, w, r)
		if !ok {
			return
		}
		doc, err := deps.Documents.Get(r.Context(), req.UserID, docID)
		if err != nil {
			failStore(deps, w, "failed to load document", err)
			return
		}
		blob, err := deps.Documents.OpenFile(r.Context(), req.UserID, docID)
		if err != nil {
			failStore(deps, w, "failed to load file", err)
			return
		}
		contentType := blob.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(blob.Data); err != nil {
			deps.Log.Warn("failed to write file", "document_id", docID, "err", err)
		}
	}
}

func deleteHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, docID, ok := bindDocument(deps, w, r)
		if !ok {
			return
		}
		if err := deps.Ingest.Delete(r.Context(), req.UserID, docID); err != nil {
			failStore(deps, w, "failed to delete document", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func bindUser(deps app.Deps, w http.ResponseWriter, r *http.Request) (userQuery, bool) {
	req := userQuery{UserID: r.URL.Query().Get("userId")}
	if err := httputil.Validator.Struct(&req); err != nil {
		httputil.ValidationError(deps.Log, w, err)
		return userQuery{}, false
	}
	return req, true
}

func bindDocument(deps app.Deps, w http.ResponseWriter, r *http.Request) (userQuery, string, bool) {
	idStr := chi.URLParam(r, "id")
	if _, err := uuid.Parse(idStr); err != nil {
		httputil.Fail(deps.Log, w, "invalid document id", err, http.StatusBadRequest)
		return userQuery{}, "", false
	}
	req, ok := bindUser(deps, w, r)
	if !ok {
		return userQuery{}, "", false
	}
	return req, idStr, true
}

// failStore maps pipeline and store errors onto HTTP statuses.
func failStore(deps app.Deps, w http.ResponseWriter, message string, err error) {
	var extErr *extract.ExtractionError
	switch {
	case errors.As(err, &extErr):
		httputil.Fail(deps.Log, w, "could not read file: "+extErr.Filename, err, http.StatusUnprocessableEntity)
	case errors.Is(err, store.ErrNotFound):
		httputil.Fail(deps.Log, w, "document not found", err, http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidOwner):
		httputil.Fail(deps.Log, w, "invalid user id", err, http.StatusBadRequest)
	default:
		httputil.Fail(deps.Log, w, message, err, http.StatusInternalServerError)
	}
}

// resolveType decides the MIME type an upload is processed as. The file
// extension wins, then a declared type, then content sniffing.
func resolveType(filename, declared string, content []byte) (string, bool) {
	declaredOK := declared != "" && mimetype.EqualsAny(declared, allowedTypes...)
	if ext, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		if declaredOK {
			return declared, true
		}
		return ext, true
	}
	if declaredOK {
		return declared, true
	}
	for m := mimetype.Detect(content); m != nil; m = m.Parent() {
		for _, allowed := range allowedTypes {
			if m.Is(allowed) {
				return m.String(), true
			}
		}
	}
	return "", false
}
