// Package rag contains the core domain types, ports, and services of the
// retrieval-augmented question answering pipeline: documents and chunks,
// the job lifecycle, conversations, and the retrieval/ingestion services
// that operate on them.
package rag

import "github.com/google/uuid"

// DocumentID identifies a Document. Opaque, comparable by value.
type DocumentID = uuid.UUID

// ChunkID identifies a Chunk.
type ChunkID = uuid.UUID

// JobID identifies a Job.
type JobID = uuid.UUID

// ConversationID identifies a Conversation.
type ConversationID = uuid.UUID

// MessageID identifies a Message.
type MessageID = uuid.UUID

// NewDocumentID mints a fresh identifier.
func NewDocumentID() DocumentID { return uuid.New() }

// NewChunkID mints a fresh identifier.
func NewChunkID() ChunkID { return uuid.New() }

// NewJobID mints a fresh identifier.
func NewJobID() JobID { return uuid.New() }

// NewConversationID mints a fresh identifier.
func NewConversationID() ConversationID { return uuid.New() }

// NewMessageID mints a fresh identifier.
func NewMessageID() MessageID { return uuid.New() }

// ParseJobID parses the canonical string form of a JobID.
func ParseJobID(raw string) (JobID, error) { return uuid.Parse(raw) }

// ParseDocumentID parses the canonical string form of a DocumentID.
func ParseDocumentID(raw string) (DocumentID, error) { return uuid.Parse(raw) }

// ParseConversationID parses the canonical string form of a ConversationID.
func ParseConversationID(raw string) (ConversationID, error) { return uuid.Parse(raw) }
