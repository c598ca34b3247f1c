package adapter

import "context"

// FulfillmentOrder is the provisioning result: everything needed to build a
// UserProfile and its activation QR.
type FulfillmentOrder struct {
	OrderID        string
	ICCID          string
	SMDPAddress    string
	ActivationCode string
	AllowTopUp     bool
	Validity       string
}

// FulfillmentClient talks to the external eSIM backend. It is an independent
// failure domain from the payment gateway: a captured payment can still meet
// a failed provisioning call.
type FulfillmentClient interface {
	// CreateOrder provisions a new subscription for bundleCode. uniqueID is
	// our order id, passed as the provider-side idempotency/correlation key.
	CreateOrder(ctx context.Context, bundleCode, uniqueID string) (*FulfillmentOrder, error)
	// CreateTopUp adds a top-up bundle to an existing provider order.
	CreateTopUp(ctx context.Context, bundleCode, fulfillmentOrderID, uniqueID string) (*FulfillmentOrder, error)
	// CheckBundleAvailable asks whether a non-stockable bundle can currently
	// be provisioned at all.
	CheckBundleAvailable(ctx context.Context, bundleInfoCode string) (bool, error)
}
