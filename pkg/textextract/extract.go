// Package textextract pulls plain text out of the document formats users
// upload for narration.
package textextract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText     = "text/plain"
	MimeMarkdown = "text/markdown"
)

var ErrUnsupported = errors.New("unsupported file type")

type ExtractedText struct {
	Content string
	Pages   int
	Type    string
}

var byExtension = map[string]string{
	".pdf":  MimePDF,
	".docx": MimeDOCX,
	".txt":  MimeText,
	".md":   MimeMarkdown,
}

// DetectType resolves the mime type of an upload from its declared type, then
// its file extension.
func DetectType(name, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if mt, ok := byExtension[strings.ToLower(filepath.Ext(name))]; ok {
		return mt
	}
	return declared
}

func Supported(mimeType string) bool {
	switch mimeType {
	case MimePDF, MimeDOCX, MimeText, MimeMarkdown:
		return true
	}
	return false
}

func Extract(data []byte, mimeType string) (*ExtractedText, error) {
	switch mimeType {
	case MimePDF:
		return extractPDF(data)
	case MimeDOCX:
		return extractDOCX(data)
	case MimeText, MimeMarkdown:
		return extractText(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mimeType)
	}
}

func extractPDF(data []byte) (*ExtractedText, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var pages []string
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = normalize(text); text != "" {
			pages = append(pages, text)
		}
	}

	return &ExtractedText{
		Content: strings.Join(pages, "\n\n"),
		Pages:   numPages,
		Type:    "pdf",
	}, nil
}

// extractDOCX reads the w:t runs of word/document.xml, one line per paragraph.
func extractDOCX(data []byte) (*ExtractedText, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}

	var doc *zip.File
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("open DOCX: word/document.xml not found")
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteByte(' ')
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

	return &ExtractedText{
		Content: strings.Join(paragraphs, "\n"),
		Pages:   1,
		Type:    "docx",
	}, nil
}

func extractText(data []byte) (*ExtractedText, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("read text: not valid UTF-8")
	}
	return &ExtractedText{
		Content: strings.TrimSpace(string(data)),
		Pages:   1,
		Type:    "text",
	}, nil
}

// normalize collapses runs of spaces inside each line and drops blank lines.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
