package extract

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

// lineBreakThreshold is the vertical distance, in points, beyond which two
// consecutive text runs are placed on separate lines.
const lineBreakThreshold = 5.0

// PageMarker renders the separator written before each page's text.
func PageMarker(page int) string {
	return fmt.Sprintf("--- Page %d ---", page)
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte, filename string) (string, Info, error) {
	reader, err := openPDF(data)
	if err != nil {
		return "", Info{}, &ExtractionError{Filename: filename, Err: err}
	}

	info := readPDFInfo(reader)
	var out strings.Builder
	for i := 1; i <= info.PageCount; i++ {
		if err := ctx.Err(); err != nil {
			return "", Info{}, err
		}
		text, err := pageText(reader, i)
		if err != nil {
			e.log.Warn("page extraction failed", "filename", filename, "page", i, "err", err)
			info.FailedPages = append(info.FailedPages, i)
			text = fmt.Sprintf("[Page %d: text extraction failed]", i)
		}
		if i > 1 {
			out.WriteString("\n\n")
		}
		out.WriteString(PageMarker(i))
		out.WriteString("\n")
		out.WriteString(text)
	}
	return out.String(), info, nil
}

func openPDF(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("malformed PDF: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func readPDFInfo(r *pdf.Reader) (info Info) {
	defer func() {
		// a broken Info dictionary only costs us the metadata
		_ = recover()
	}()
	info.PageCount = r.NumPage()
	meta := r.Trailer().Key("Info")
	if meta.IsNull() {
		return info
	}
	info.Title = cleanMetadata(meta.Key("Title").Text())
	info.Author = cleanMetadata(meta.Key("Author").Text())
	info.Subject = cleanMetadata(meta.Key("Subject").Text())
	return info
}

// textRun is one string shown on a page at a baseline position.
type textRun struct {
	y float64
	s string
}

// pageText joins the text runs of one page in content-stream order, breaking
// lines whenever the vertical position jumps by more than lineBreakThreshold.
// Malformed content panics inside the interpreter; that is reported as an error.
func pageText(r *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("malformed page content: %v", rec)
		}
	}()
	page := r.Page(num)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d not found", num)
	}

	var b strings.Builder
	lastY := math.NaN()
	for _, run := range pageRuns(page) {
		s := strings.TrimSpace(run.s)
		if s == "" {
			continue
		}
		if !math.IsNaN(lastY) {
			if math.Abs(run.y-lastY) > lineBreakThreshold {
				b.WriteString("\n")
			} else {
				b.WriteString(" ")
			}
		}
		b.WriteString(s)
		lastY = run.y
	}
	return b.String(), nil
}

func pageRuns(page pdf.Page) []textRun {
	contents := page.V.Key("Contents")
	var streams []pdf.Value
	switch contents.Kind() {
	case pdf.Null:
		return nil
	case pdf.Array:
		for i := 0; i < contents.Len(); i++ {
			streams = append(streams, contents.Index(i))
		}
	default:
		streams = append(streams, contents)
	}

	encoders := make(map[string]pdf.TextEncoding)
	for _, name := range page.Fonts() {
		encoders[name] = page.Font(name).Encoder()
	}

	// lineY is the f component of the text line matrix; b and d are the
	// components a Td offset is multiplied by to reach user space.
	var (
		runs           []textRun
		enc            pdf.TextEncoding
		lineY, leading float64
		b, d           = 0.0, 1.0
	)
	move := func(tx, ty float64) {
		lineY += tx*b + ty*d
	}
	show := func(raw string) {
		s := raw
		if enc != nil {
			s = enc.Decode(raw)
		}
		runs = append(runs, textRun{y: lineY, s: s})
	}
	for _, strm := range streams {
		pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
			n := stk.Len()
			args := make([]pdf.Value, n)
			for i := n - 1; i >= 0; i-- {
				args[i] = stk.Pop()
			}
			need := func(k int) {
				if len(args) != k {
					panic(fmt.Sprintf("bad %s operator", op))
				}
			}

			switch op {
			case "BT":
				lineY, b, d = 0, 0, 1
			case "Tf":
				need(2)
				enc = encoders[args[0].Name()]
			case "TL":
				need(1)
				leading = args[0].Float64()
			case "Tm":
				need(6)
				b, d = args[1].Float64(), args[3].Float64()
				lineY = args[5].Float64()
			case "Td":
				need(2)
				move(args[0].Float64(), args[1].Float64())
			case "TD":
				need(2)
				leading = -args[1].Float64()
				move(args[0].Float64(), args[1].Float64())
			case "T*":
				move(0, -leading)
			case "Tj":
				need(1)
				show(args[0].RawString())
			case "'":
				need(1)
				move(0, -leading)
				show(args[0].RawString())
			case "\"":
				need(3)
				move(0, -leading)
				show(args[2].RawString())
			case "TJ":
				need(1)
				v := args[0]
				for i := 0; i < v.Len(); i++ {
					if x := v.Index(i); x.Kind() == pdf.String {
						show(x.RawString())
					}
				}
			}
		})
	}
	return runs
}
