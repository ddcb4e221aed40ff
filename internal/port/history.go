package port

import (
	"context"

	"github.com/lunara-health/lunara-api/internal/domain"
)

// ChatHistory persists conversation sessions and turns. The chat flow
// treats it as best effort: a storage failure degrades to a missing
// chatId, never to a failed answer.
type ChatHistory interface {
	CreateChat(ctx context.Context, userID string) (string, error)
	AppendMessages(ctx context.Context, chatID, userID string, msgs []domain.ChatMessage) error
	ListChats(ctx context.Context, userID string) ([]domain.ChatSession, error)
	GetChatMessages(ctx context.Context, chatID, userID string) ([]domain.ChatMessage, error)
	DeleteChat(ctx context.Context, chatID, userID string) error
}
