package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/yanqian/ragserver/internal/domain/rag"
)

// MemoryConversationRepository is an in-memory ConversationRepository for
// local development and tests.
type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[rag.ConversationID]bool
	messages      map[rag.ConversationID][]rag.Message
}

// NewMemoryConversationRepository constructs an empty repository.
func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[rag.ConversationID]bool),
		messages:      make(map[rag.ConversationID][]rag.Message),
	}
}

// EnsureConversation registers the conversation id if unseen, idempotently.
func (r *MemoryConversationRepository) EnsureConversation(ctx context.Context, id rag.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[id] = true
	return nil
}

// AppendMessage appends a turn to its conversation's message log.
func (r *MemoryConversationRepository) AppendMessage(ctx context.Context, msg rag.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[msg.ConversationID] = true
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], msg)
	return nil
}

// ListMessages returns every message in a conversation, oldest first.
func (r *MemoryConversationRepository) ListMessages(ctx context.Context, id rag.ConversationID) ([]rag.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.messages[id]
	out := make([]rag.Message, len(stored))
	copy(out, stored)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ rag.ConversationRepository = (*MemoryConversationRepository)(nil)
