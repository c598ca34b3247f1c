package adapter

import "context"

// PushSender delivers a push notification to all of a user's registered
// devices. Deliveries run from the durable outbox, never inline.
type PushSender interface {
	SendToUser(ctx context.Context, userID, title, body string) error
}

// EmailSender delivers an HTML email. Same outbox rules as PushSender.
type EmailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}
