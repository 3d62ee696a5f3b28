package services

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrMissingDocument marks extraction failures caused by an absent file.
// This is the only extraction error that fails a job; corrupt content
// degrades to UnreadableContentSentinel instead.
var ErrMissingDocument = errors.New("document file missing")

// UnreadableContentSentinel is returned in place of text when neither PDF
// parsing nor raw decoding yields anything usable.
const UnreadableContentSentinel = "[unable to extract text from document]"

type TextExtractor interface {
	ExtractText(filePath string) (string, error)
}

type textExtractor struct{}

func NewTextExtractor() TextExtractor {
	return &textExtractor{}
}

// ExtractText returns the document's text. PDF parsing is attempted first;
// on parse failure or empty output the raw bytes are decoded as UTF-8; if
// that too is empty, the sentinel string is returned rather than an error.
func (e *textExtractor) ExtractText(filePath string) (string, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s (%v)", ErrMissingDocument, filePath, err)
	}

	if text, err := extractPDFText(filePath); err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}

	if asText := decodeRawText(raw); asText != "" {
		return asText, nil
	}

	return UnreadableContentSentinel, nil
}

func extractPDFText(filePath string) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var textBuilder strings.Builder
	totalPage := r.NumPage()

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip unreadable pages, keep the rest.
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n\n")
	}

	text := textBuilder.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text content found in PDF")
	}

	return text, nil
}

// decodeRawText keeps only the valid UTF-8 portion of the bytes, dropping
// NULs and other control noise common in binary files.
func decodeRawText(raw []byte) string {
	if !utf8.Valid(raw) {
		raw = []byte(strings.ToValidUTF8(string(raw), ""))
	}

	cleaned := strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, string(raw))

	return strings.TrimSpace(cleaned)
}

// CleanText normalizes whitespace in extracted text.
func CleanText(text string) string {
	text = strings.TrimSpace(text)

	lines := strings.Split(text, "\n")
	var cleanedLines []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanedLines = append(cleanedLines, line)
		}
	}

	return strings.Join(cleanedLines, "\n")
}
