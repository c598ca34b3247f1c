package notify

import (
	"context"
	"sync"

	"esim-reseller/internal/domain/ports/adapter"
)

var (
	_ adapter.PushSender  = (*NoopNotifier)(nil)
	_ adapter.EmailSender = (*NoopNotifier)(nil)
)

// NoopNotifier records deliveries in memory; dev mode and tests.
type NoopNotifier struct {
	mu     sync.Mutex
	Pushes []string
	Emails []string
}

func NewNoopNotifier() *NoopNotifier { return &NoopNotifier{} }

func (n *NoopNotifier) SendToUser(ctx context.Context, userID, title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Pushes = append(n.Pushes, userID+": "+title)
	return nil
}

func (n *NoopNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Emails = append(n.Emails, to+": "+subject)
	return nil
}
