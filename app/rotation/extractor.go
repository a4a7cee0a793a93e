package rotation

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	readability "codeberg.org/readeck/go-readability"
)

// Excerpt length for extracted article text, in runes. Telegram captions cap
// at 1024; staying well under leaves room for the title and link.
const maxExcerptLen = 600

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Run extracts a plain-text excerpt of the readable article content from raw
// HTML.
func (e *Extractor) Run(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	article, err := readability.FromReader(strings.NewReader(string(data)), nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Content extracted successfully",
		"title", article.Title,
		"content_length", len(text))

	return truncateRunes(text, maxExcerptLen), nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
