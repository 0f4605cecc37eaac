package gateway

import (
	"context"

	"urbanaid/internal/domain"
)

// Messenger is the chat boundary. The backend has no messaging endpoint
// today; the only implementation is the in-memory mock in internal/chat.
// Keeping the interface here means a real implementation can be substituted
// without touching the engine or the CLI.
type Messenger interface {
	Send(ctx context.Context, reportID, sender, body string) (domain.Message, error)
	Thread(ctx context.Context, reportID string) ([]domain.Message, error)
}
