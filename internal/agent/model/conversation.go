package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type ConversationRepository interface {
	// AddMessage appends a message to the session history and trims it to the configured length.
	AddMessage(ctx context.Context, sessionID string, message *schema.Message) error

	// LoadHistory retrieves the history of a session, oldest first.
	LoadHistory(ctx context.Context, sessionID string) (*ConversationHistory, error)

	// ClearHistory removes all history of a session.
	ClearHistory(ctx context.Context, sessionID string) error

	// GetMessageCount returns the number of stored messages.
	GetMessageCount(ctx context.Context, sessionID string) (int, error)
}

// ConversationHistory represents loaded conversation data with metadata.
type ConversationHistory struct {
	SessionID string
	Messages  []*schema.Message
}

// SessionRepository persists pipeline state snapshots between calls.
type SessionRepository interface {
	Save(ctx context.Context, state *PipelineState) error
	// Load returns ErrSessionNotFound when no snapshot exists.
	Load(ctx context.Context, sessionID string) (*PipelineState, error)
	Delete(ctx context.Context, sessionID string) error
}

// FeedbackLog appends confirmation decisions.
type FeedbackLog interface {
	Append(ctx context.Context, fb Feedback) error
	List(ctx context.Context, sessionID string) ([]Feedback, error)
}
