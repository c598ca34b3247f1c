package model

import "time"

type OrderType string

const (
	OrderTypeAssign      OrderType = "ASSIGN"
	OrderTypeBundleTopUp OrderType = "BUNDLE_TOP_UP"
	OrderTypeWalletTopUp OrderType = "WALLET_TOP_UP"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailure PaymentStatus = "failure"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusSuccess  OrderStatus = "success"
	OrderStatusFailure  OrderStatus = "failure"
	OrderStatusCanceled OrderStatus = "canceled"
)

// Order is one purchase attempt: a bundle assignment, a bundle top-up, or a
// wallet top-up. Amount and BundleSnapshot are frozen at creation; later
// catalog edits must never alter a paid order.
type Order struct {
	ID                 string
	UserID             string
	BundleID           *string // nil for wallet top-ups
	OrderType          OrderType
	Amount             int64 // pre-promotion price, minor units
	ModifiedAmount     int64 // price actually charged after promotion
	Currency           string
	PaymentIntentCode  string
	PaymentStatus      PaymentStatus
	OrderStatus        OrderStatus
	BundleSnapshot     *Bundle // catalog entry frozen at order time
	FulfillmentOrderID *string // external order id, set after provisioning
	PromoCode          *string
	ReferralCode       *string
	AnonymousUserID    *string
	CreatedAt          time.Time
	CallbackTime       *time.Time
}

// Terminal reports whether the order reached a final state. Terminal orders
// must not be provisioned or transitioned again.
func (o *Order) Terminal() bool {
	switch o.OrderStatus {
	case OrderStatusSuccess, OrderStatusFailure, OrderStatusCanceled:
		return true
	}
	return false
}

// OrderPatch is the set of mutable order fields. The zero value of each
// pointer means "leave unchanged"; everything else on Order is immutable
// after creation.
type OrderPatch struct {
	PaymentStatus      *PaymentStatus
	OrderStatus        *OrderStatus
	PaymentIntentCode  *string
	FulfillmentOrderID *string
	CallbackTime       *time.Time
}
