package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"urbanaid/internal/domain"
	"urbanaid/internal/gateway"
)

// Mock is a client-only chat simulation. Threads live in memory per report
// and vanish with the process; the first message in a thread gets a canned
// acknowledgement so the flow is demonstrable without a backend.
type Mock struct {
	Now func() time.Time

	mu      sync.Mutex
	threads map[string][]domain.Message
}

var _ gateway.Messenger = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{threads: map[string][]domain.Message{}}
}

func (m *Mock) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Mock) Send(ctx context.Context, reportID, sender, body string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := domain.Message{
		ID:       uuid.New().String(),
		ReportID: reportID,
		Sender:   sender,
		Body:     body,
		SentAt:   m.now().UTC().Format(time.RFC3339),
	}
	first := len(m.threads[reportID]) == 0
	m.threads[reportID] = append(m.threads[reportID], msg)
	if first {
		m.threads[reportID] = append(m.threads[reportID], domain.Message{
			ID:       uuid.New().String(),
			ReportID: reportID,
			Sender:   "urbanaid",
			Body:     "Thanks for reaching out. Messages here are a local preview and are not delivered.",
			SentAt:   m.now().UTC().Format(time.RFC3339),
		})
	}
	return msg, nil
}

func (m *Mock) Thread(ctx context.Context, reportID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread := m.threads[reportID]
	out := make([]domain.Message, len(thread))
	copy(out, thread)
	return out, nil
}
