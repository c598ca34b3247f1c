package adapter

import "context"

// CarrierBillingGateway charges a purchase to the subscriber's mobile account
// (direct carrier billing). Unlike card payments there is no asynchronous
// webhook leg: RequestCharge opens the billing transaction and triggers the
// carrier's OTP challenge, ConfirmCharge verifies the OTP and captures the
// funds, and a nil return from ConfirmCharge means the order can settle
// immediately.
type CarrierBillingGateway interface {
	Name() string

	// RequestCharge opens a billing transaction for amount (minor units)
	// keyed by the order id and sends the OTP to the subscriber.
	RequestCharge(ctx context.Context, msisdn string, amount int64, orderID string) error
	// ConfirmCharge verifies the OTP against the open transaction and
	// captures the funds.
	ConfirmCharge(ctx context.Context, otp, orderID string) error
}
