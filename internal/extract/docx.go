package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	docxBodyPath = "word/document.xml"
	docxCorePath = "docProps/core.xml"
	maxDOCXPart  = 50 << 20
)

// extractDOCX reads paragraph text from an Office Open XML document.
// Paragraphs are separated by blank lines so they survive chunking.
func extractDOCX(data []byte) (string, Info, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", Info{}, fmt.Errorf("open docx: %w", err)
	}

	var body, core []byte
	for _, f := range zr.File {
		switch f.Name {
		case docxBodyPath:
			if body, err = readZipPart(f); err != nil {
				return "", Info{}, err
			}
		case docxCorePath:
			// metadata is optional; ignore read errors
			core, _ = readZipPart(f)
		}
	}
	if body == nil {
		return "", Info{}, errors.New("docx has no word/document.xml")
	}

	text, err := docxParagraphs(body)
	if err != nil {
		return "", Info{}, err
	}
	return text, docxInfo(core), nil
}

func readZipPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxDOCXPart))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

func docxParagraphs(body []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br":
				current.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if p := strings.TrimSpace(current.String()); p != "" {
					paragraphs = append(paragraphs, p)
				}
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	if p := strings.TrimSpace(current.String()); p != "" {
		paragraphs = append(paragraphs, p)
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

type coreProperties struct {
	Title   string `xml:"title"`
	Subject string `xml:"subject"`
	Creator string `xml:"creator"`
}

func docxInfo(core []byte) Info {
	if len(core) == 0 {
		return Info{}
	}
	var cp coreProperties
	if err := xml.Unmarshal(core, &cp); err != nil {
		return Info{}
	}
	return Info{
		Title:   cleanMetadata(cp.Title),
		Author:  cleanMetadata(cp.Creator),
		Subject: cleanMetadata(cp.Subject),
	}
}
