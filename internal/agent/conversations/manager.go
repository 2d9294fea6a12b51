package conversations

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/intakeflow/server/internal/agent/invoke"
	"github.com/intakeflow/server/internal/agent/model"
)

// MessagesManager records the session dialogue and serves its recent turns
// as agent context.
type MessagesManager struct {
	conversationRepo model.ConversationRepository
	historyTurns     int
}

func NewMessagesManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		conversationRepo: conversationRepo,
		historyTurns:     config.HistoryTurns,
	}
}

// RecordUser stores a message from the client (an intake, an answer, a review comment).
func (cm *MessagesManager) RecordUser(ctx context.Context, sessionID, content string) error {
	return cm.record(ctx, sessionID, schema.UserMessage(content))
}

// RecordAssistant stores a message produced by the pipeline.
func (cm *MessagesManager) RecordAssistant(ctx context.Context, sessionID, content string) error {
	return cm.record(ctx, sessionID, schema.AssistantMessage(content, nil))
}

func (cm *MessagesManager) record(ctx context.Context, sessionID string, msg *schema.Message) error {
	if sessionID == "" {
		return fmt.Errorf("session id is empty")
	}
	if msg.Content == "" {
		return nil
	}
	return cm.conversationRepo.AddMessage(ctx, sessionID, msg)
}

// RecentTurns returns the newest historyTurns non-empty messages, oldest first.
func (cm *MessagesManager) RecentTurns(ctx context.Context, sessionID string) ([]invoke.Turn, error) {
	history, err := cm.conversationRepo.LoadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	recent := trimTail(history.Messages, cm.historyTurns)
	turns := make([]invoke.Turn, 0, len(recent))
	for _, msg := range recent {
		if msg == nil || msg.Content == "" {
			continue
		}
		turns = append(turns, invoke.Turn{Role: string(msg.Role), Content: msg.Content})
	}
	return turns, nil
}

// Clear drops the session dialogue.
func (cm *MessagesManager) Clear(ctx context.Context, sessionID string) error {
	return cm.conversationRepo.ClearHistory(ctx, sessionID)
}

// Count returns the number of stored messages of the session.
func (cm *MessagesManager) Count(ctx context.Context, sessionID string) (int, error) {
	return cm.conversationRepo.GetMessageCount(ctx, sessionID)
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
