// Package fileloader provides rag.FileLoader adapters for each non-media
// content type.
package fileloader

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// Text extracts text from plain-text documents directly, validating UTF-8
// so the splitter never operates on a mangled byte stream.
type Text struct{}

// NewText constructs a Text loader.
func NewText() *Text { return &Text{} }

// ExtractText implements rag.FileLoader.
func (Text) ExtractText(ctx context.Context, data []byte, doc rag.Document) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("fileloader: %s is not valid UTF-8", doc.Filename)
	}
	return string(data), nil
}

var _ rag.FileLoader = Text{}
