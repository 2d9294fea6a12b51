package repo

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/intakeflow/server/internal/agent/model"
)

// InMemoryConversationRepository keeps history in process; used when Redis is not configured.
type InMemoryConversationRepository struct {
	mu         sync.Mutex
	maxHistory int
	sessions   map[string][]*schema.Message
}

func NewInMemoryConversationRepository(maxHistory int) *InMemoryConversationRepository {
	return &InMemoryConversationRepository{maxHistory: maxHistory, sessions: make(map[string][]*schema.Message)}
}

func (r *InMemoryConversationRepository) AddMessage(_ context.Context, sessionID string, message *schema.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := append(r.sessions[sessionID], message)
	if r.maxHistory > 0 && len(msgs) > r.maxHistory {
		msgs = append([]*schema.Message(nil), msgs[len(msgs)-r.maxHistory:]...)
	}
	r.sessions[sessionID] = msgs
	return nil
}

func (r *InMemoryConversationRepository) LoadHistory(_ context.Context, sessionID string) (*model.ConversationHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := make([]*schema.Message, len(r.sessions[sessionID]))
	copy(msgs, r.sessions[sessionID])
	return &model.ConversationHistory{SessionID: sessionID, Messages: msgs}, nil
}

func (r *InMemoryConversationRepository) ClearHistory(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *InMemoryConversationRepository) GetMessageCount(_ context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[sessionID]), nil
}

var _ model.ConversationRepository = (*InMemoryConversationRepository)(nil)
