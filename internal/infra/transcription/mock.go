package transcription

import (
	"context"
	"fmt"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// Mock returns a canned transcript derived from the input length, for local
// development and tests where no whisper.cpp server is running.
type Mock struct{}

// NewMock constructs the adapter.
func NewMock() *Mock { return &Mock{} }

// Transcribe implements rag.TranscriptionEngine without calling out to any
// external service.
func (m *Mock) Transcribe(ctx context.Context, data []byte) (string, error) {
	return fmt.Sprintf("[mock transcript of %d bytes of audio]", len(data)), nil
}

var _ rag.TranscriptionEngine = (*Mock)(nil)
