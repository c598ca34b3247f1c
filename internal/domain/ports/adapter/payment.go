package adapter

import "context"

// PaymentIntent is the synchronous descriptor handed back to the client; the
// actual settlement arrives later through the webhook.
type PaymentIntent struct {
	ID                 string
	ClientSecret       string
	CustomerID         string
	EphemeralKeySecret string
	LiveMode           bool
}

// WebhookEvent is a verified, parsed gateway event. Metadata carries back the
// bag we attached when creating the intent (order_id, user_id, bundle_code,
// order_type, env, promo_code, rule_id, amount, iccid, user_wallet_id).
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
	Metadata map[string]string
}

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.failed"
)

// PaymentGateway is the hex port for the card payment provider.
type PaymentGateway interface {
	Name() string

	// CreateIntent registers a payment intent for amount (minor units) and
	// returns the client-side descriptor. The metadata bag is echoed back
	// verbatim in the webhook.
	CreateIntent(ctx context.Context, amount int64, currency, customerEmail string, metadata map[string]string) (*PaymentIntent, error)
	// CancelIntent voids a not-yet-captured intent (user-initiated cancel).
	CancelIntent(ctx context.Context, intentID string) error
	// RefundPayment compensates a captured payment, e.g. when provisioning
	// fails after the money already landed.
	RefundPayment(ctx context.Context, intentID string, amount int64, reason string) error

	// ParseWebhook verifies the signature header against the raw body and
	// returns the decoded event. An invalid signature must fail without any
	// side effects.
	ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
}
