package model

import "time"

type NotificationChannel string

const (
	ChannelPush  NotificationChannel = "push"
	ChannelEmail NotificationChannel = "email"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification is a durable outbox entry. Side-effecting deliveries (push,
// email) are enqueued in the same logical operation that produced them and
// dispatched by a background worker, so a failed send is observable and
// retryable instead of silently lost.
type Notification struct {
	ID        string // ULID
	UserID    string
	Channel   NotificationChannel
	Recipient string // device token / email address; resolved at enqueue time
	Subject   string
	Body      string
	Status    NotificationStatus
	Attempts  int
	CreatedAt time.Time
	SentAt    *time.Time
}
