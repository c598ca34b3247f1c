package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Promotion / referral validation errors. Each violation gets its own
	// sentinel so callers can render a precise message.
	ErrPromotionNotFound    = errors.New("promotion code not found")
	ErrPromotionInactive    = errors.New("promotion not active")
	ErrPromotionExpired     = errors.New("promotion outside validity window")
	ErrPromotionExhausted   = errors.New("promotion usage limit reached")
	ErrPromotionAlreadyUsed = errors.New("promotion already used")
	ErrSelfReferral         = errors.New("own referral code cannot be redeemed")
	ErrRuleConstraint       = errors.New("promotion rule constraint violated")

	// Order lifecycle
	ErrConflictingSettlement = errors.New("conflicting terminal transition for order")
	ErrOrderNotCancelable    = errors.New("order can no longer be canceled")

	// Wallet
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrWalletNotFound    = errors.New("user wallet not found")
	// ErrVoucherInvalid deliberately covers unknown, inactive and already
	// claimed codes alike; the response never reveals which.
	ErrVoucherInvalid = errors.New("voucher code invalid")

	// Provisioning
	ErrIccidNotLinked     = errors.New("iccid is not linked to this user")
	ErrFulfillmentFailed  = errors.New("fulfillment backend rejected the order")
	ErrBundleNotAvailable = errors.New("bundle not available right now")

	// Webhook processing
	ErrDuplicateEvent = errors.New("webhook event already processed")

	// Distributed coordination
	ErrLockNotAcquired = errors.New("lock is held by another operation")

	// Storage-layer failures (kept coarse so use cases stay backend agnostic)
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context for query")
)
