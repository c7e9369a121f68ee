package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"venture-advisor/internal/store"
)

const (
	DefaultSize    = 600
	DefaultOverlap = 150
	// PreviewLength is how much of a neighbouring chunk is kept for context.
	PreviewLength = 100

	paragraphJoin = "\n\n"
)

var (
	pageMarker    = regexp.MustCompile(`--- Page \d+ ---`)
	paragraphGaps = regexp.MustCompile(`\n\s*\n`)
)

// Options controls how text is chunked.
type Options struct {
	Size    int
	Overlap int
	// NewID generates chunk ids; defaults to random UUIDs.
	NewID func() string
}

// Chunker splits extracted document text into overlapping, page-aware chunks.
type Chunker struct {
	opts Options
}

func New(opts Options) *Chunker {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Size {
		opts.Overlap = DefaultOverlap
		if opts.Overlap >= opts.Size {
			opts.Overlap = opts.Size / 4
		}
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Chunker{opts: opts}
}

// Chunk splits text into chunks. Pages are separated by "--- Page N ---"
// markers and the page number stored on a chunk is its position in that
// split, so text before the first marker is page 0. Paragraphs are packed
// greedily up to the target size; each new chunk starts with the tail of
// the previous one. Any page with non-blank text yields at least one
// chunk, so Chunk never needs FixedWindow; callers that want page-less
// windows call it directly.
func (c *Chunker) Chunk(text, documentName, documentID string) []store.Chunk {
	b := &builder{c: c, docName: documentName, docID: documentID}

	for pageIdx, page := range pageMarker.Split(text, -1) {
		if strings.TrimSpace(page) == "" {
			continue
		}
		b.chunkPage(pageIdx, page)
	}

	return b.out
}

type builder struct {
	c        *Chunker
	docName  string
	docID    string
	out      []store.Chunk
	lastBody string
}

func (b *builder) chunkPage(pageIdx int, page string) {
	size, overlap := b.c.opts.Size, b.c.opts.Overlap

	var buf string
	for _, para := range paragraphs(page, size) {
		if buf == "" {
			buf = para
			continue
		}
		if runeLen(buf)+runeLen(paragraphJoin)+runeLen(para) > size {
			closed := strings.TrimSpace(buf)
			b.emit(closed, pageIdx, head(para, PreviewLength))
			buf = tail(closed, overlap) + paragraphJoin + para
			continue
		}
		buf += paragraphJoin + para
	}
	if strings.TrimSpace(buf) != "" {
		b.emit(strings.TrimSpace(buf), pageIdx, "")
	}
}

func (b *builder) emit(content string, pageIdx int, next string) {
	page := pageIdx
	b.out = append(b.out, store.Chunk{
		ID:      b.c.opts.NewID(),
		Content: content,
		Metadata: store.ChunkMetadata{
			DocumentID:    b.docID,
			DocumentName:  b.docName,
			ChunkIndex:    len(b.out),
			PageNumber:    &page,
			PreviousChunk: tail(b.lastBody, PreviewLength),
			NextChunk:     next,
		},
	})
	b.lastBody = content
}

// paragraphs splits a page on blank lines. Paragraphs longer than max are
// cut at word boundaries so no single paragraph overflows a chunk.
func paragraphs(page string, max int) []string {
	var out []string
	for _, p := range paragraphGaps.Split(page, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, splitLong(p, max)...)
	}
	return out
}

func splitLong(p string, max int) []string {
	var out []string
	for runeLen(p) > max {
		r := []rune(p)
		cut := max
		for i := max; i > max/2; i-- {
			if r[i] == ' ' || r[i] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, strings.TrimSpace(string(r[:cut])))
		p = strings.TrimSpace(string(r[cut:]))
	}
	if p != "" {
		out = append(out, p)
	}
	return out
}

// FixedWindow slides a Size-rune window over text, stepping by
// Size-Overlap, and emits each window as a chunk without a page number.
func (c *Chunker) FixedWindow(text, documentName, documentID string) []store.Chunk {
	r := []rune(text)
	n := len(r)
	step := c.opts.Size - c.opts.Overlap
	if step <= 0 {
		step = c.opts.Size
	}

	var out []store.Chunk
	prev := ""
	for start := 0; start < n; start += step {
		end := start + c.opts.Size
		if end > n {
			end = n
		}
		content := strings.TrimSpace(string(r[start:end]))
		if content != "" {
			out = append(out, store.Chunk{
				ID:      c.opts.NewID(),
				Content: content,
				Metadata: store.ChunkMetadata{
					DocumentID:    documentID,
					DocumentName:  documentName,
					ChunkIndex:    len(out),
					PreviousChunk: tail(prev, PreviewLength),
				},
			})
			prev = content
		}
		if end == n {
			break
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// head returns the first n runes of s.
func head(s string, n int) string {
	if runeLen(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
