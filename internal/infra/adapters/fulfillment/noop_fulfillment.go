package fulfillment

import (
	"context"
	"fmt"
	"sync"

	"esim-reseller/internal/domain/ports/adapter"
)

var _ adapter.FulfillmentClient = (*NoopClient)(nil)

// NoopClient provisions fake eSIMs in memory; dev mode and tests.
type NoopClient struct {
	mu  sync.Mutex
	seq int64
}

func NewNoopClient() *NoopClient { return &NoopClient{} }

func (c *NoopClient) CreateOrder(ctx context.Context, bundleCode, uniqueID string) (*adapter.FulfillmentOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return &adapter.FulfillmentOrder{
		OrderID:        fmt.Sprintf("hub-%d", c.seq),
		ICCID:          fmt.Sprintf("89000000000000%05d", c.seq),
		SMDPAddress:    "smdp.example.test",
		ActivationCode: fmt.Sprintf("AC-%s-%d", bundleCode, c.seq),
		AllowTopUp:     true,
		Validity:       "30",
	}, nil
}

func (c *NoopClient) CreateTopUp(ctx context.Context, bundleCode, fulfillmentOrderID, uniqueID string) (*adapter.FulfillmentOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return &adapter.FulfillmentOrder{
		OrderID:    fulfillmentOrderID,
		AllowTopUp: true,
	}, nil
}

func (c *NoopClient) CheckBundleAvailable(ctx context.Context, bundleInfoCode string) (bool, error) {
	return true, nil
}
