package rag

import (
	"fmt"
	"strings"
	"time"
)

// ContentType is the closed set of document kinds the pipeline understands.
type ContentType int

const (
	ContentTypeUnknown ContentType = iota
	ContentTypePdf
	ContentTypeText
	ContentTypeAudio
	ContentTypeVideo
)

// String renders the canonical lower-case name.
func (c ContentType) String() string {
	switch c {
	case ContentTypePdf:
		return "pdf"
	case ContentTypeText:
		return "text"
	case ContentTypeAudio:
		return "audio"
	case ContentTypeVideo:
		return "video"
	default:
		return "unknown"
	}
}

// ContentTypeFromMIME maps a MIME string to a ContentType. Unknown MIMEs
// report ok=false so the caller can reject the upload at the boundary.
func ContentTypeFromMIME(mime string) (ContentType, bool) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case mime == "application/pdf":
		return ContentTypePdf, true
	case mime == "text/plain":
		return ContentTypeText, true
	case strings.HasPrefix(mime, "audio/"):
		return ContentTypeAudio, true
	case mime == "video/mp4" || mime == "video/quicktime":
		return ContentTypeVideo, true
	default:
		return ContentTypeUnknown, false
	}
}

// MIME returns the canonical MIME string for a ContentType, the inverse of
// ContentTypeFromMIME for the four representative types.
func (c ContentType) MIME() string {
	switch c {
	case ContentTypePdf:
		return "application/pdf"
	case ContentTypeText:
		return "text/plain"
	case ContentTypeAudio:
		return "audio/mpeg"
	case ContentTypeVideo:
		return "video/mp4"
	default:
		return ""
	}
}

// IsMedia reports whether the content type requires transcription rather
// than direct text extraction.
func (c ContentType) IsMedia() bool {
	return c == ContentTypeAudio || c == ContentTypeVideo
}

// Document is immutable once created: id, filename label, size, and kind.
type Document struct {
	ID          DocumentID
	Filename    string
	SizeBytes   int64
	ContentType ContentType
	CreatedAt   time.Time
}

// Chunk is a contiguous, sanitized text span belonging to exactly one
// Document. Page is meaningful only for paginated sources.
type Chunk struct {
	ID         ChunkID
	DocumentID DocumentID
	Text       string
	Page       *int
	Offset     int
}

// Embedding is a fixed-length sequence of 32-bit floats.
type Embedding []float32

// JobStatus is the closed set of job lifecycle states.
type JobStatus int

const (
	JobStatusQueued JobStatus = iota
	JobStatusProcessing
	JobStatusMediaExtraction
	JobStatusTranscribing
	JobStatusEmbedding
	JobStatusCompleted
	JobStatusFailed
)

var jobStatusNames = [...]string{
	JobStatusQueued:          "QUEUED",
	JobStatusProcessing:      "PROCESSING",
	JobStatusMediaExtraction: "MEDIA_EXTRACTION",
	JobStatusTranscribing:    "TRANSCRIBING",
	JobStatusEmbedding:       "EMBEDDING",
	JobStatusCompleted:       "COMPLETED",
	JobStatusFailed:          "FAILED",
}

// String renders the canonical upper-snake-case status name.
func (s JobStatus) String() string {
	if int(s) < 0 || int(s) >= len(jobStatusNames) {
		return "UNKNOWN"
	}
	return jobStatusNames[s]
}

// ParseJobStatus inverts String for every canonical status string.
func ParseJobStatus(raw string) (JobStatus, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	for i, name := range jobStatusNames {
		if name == raw {
			return JobStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown job status %q", raw)
}

// Terminal reports whether the status is Completed or Failed, after which
// no further transition is legal.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job tracks the progress of one ingestion pipeline run.
type Job struct {
	ID           JobID
	DocumentID   *DocumentID
	Status       JobStatus
	JobType      string
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MessageRole is the closed set of conversation participants.
type MessageRole int

const (
	MessageRoleSystem MessageRole = iota
	MessageRoleUser
	MessageRoleAssistant
)

func (r MessageRole) String() string {
	switch r {
	case MessageRoleSystem:
		return "system"
	case MessageRoleUser:
		return "user"
	case MessageRoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// Message is one turn in a Conversation.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	Role           MessageRole
	Content        string
	CreatedAt      time.Time
}

// Conversation owns an ordered sequence of messages.
type Conversation struct {
	ID        ConversationID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoragePath is a namespaced path of the form "<document_id>/<filename>",
// stable for the lifetime of a staged object.
type StoragePath struct {
	DocumentID DocumentID
	Filename   string
}

// String renders the canonical "<document_id>/<filename>" form.
func (p StoragePath) String() string {
	return p.DocumentID.String() + "/" + p.Filename
}

// NewStoragePath builds a path rooted at a document id.
func NewStoragePath(docID DocumentID, filename string) StoragePath {
	return StoragePath{DocumentID: docID, Filename: filename}
}

// ParseStoragePath reconstructs a StoragePath from its canonical
// "<document_id>/<filename>" string form, the inverse of String(). raw is
// expected to be a key a caller observed from a prior Store call (or an
// out-of-band upload using the same convention), not a freshly minted one.
func ParseStoragePath(raw string) (StoragePath, error) {
	docID, filename, ok := strings.Cut(raw, "/")
	if !ok || filename == "" {
		return StoragePath{}, fmt.Errorf("storage path %q is not of the form <document_id>/<filename>", raw)
	}
	id, err := ParseDocumentID(docID)
	if err != nil {
		return StoragePath{}, fmt.Errorf("storage path %q: %w", raw, err)
	}
	return StoragePath{DocumentID: id, Filename: filename}, nil
}

// SearchResult pairs a Chunk with its similarity score, ordered descending
// by score by the caller.
type SearchResult struct {
	Chunk Chunk
	Score float64
}
