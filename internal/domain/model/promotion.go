package model

import "time"

type RuleAction string

const (
	ActionDiscountAmount     RuleAction = "DISCOUNT_AMOUNT"
	ActionDiscountPercentage RuleAction = "DISCOUNT_PERCENTAGE"
	ActionCashbackAmount     RuleAction = "CASHBACK_AMOUNT"
	ActionCashbackPercentage RuleAction = "CASHBACK_PERCENTAGE"
)

type RuleEvent string

const (
	EventCreateOrder   RuleEvent = "CREATE_ORDER"
	EventCreateAccount RuleEvent = "CREATE_ACCOUNT"
)

// Beneficiary names which party a reward lands on: the code owner
// (referrer), the redeemer (referred), or both. For plain promotions the
// redeemer is the only party and rules must use BeneficiaryReferrer.
type Beneficiary string

const (
	BeneficiaryReferrer Beneficiary = "REFERRER"
	BeneficiaryReferred Beneficiary = "REFERRED"
	BeneficiaryBoth     Beneficiary = "BOTH"
)

type PromotionRule struct {
	ID          string
	Action      RuleAction
	Event       RuleEvent
	Beneficiary Beneficiary
	MaxUsage    int
	CreatedAt   time.Time
}

// Promotion is a redeemable code bound to exactly one rule. Amount is in
// minor units for the *_AMOUNT actions and a whole percentage for the
// *_PERCENTAGE ones. The validity window is half-open: valid at ValidFrom,
// expired at ValidTo.
type Promotion struct {
	ID        string
	RuleID    string
	Code      string
	Name      string
	Amount    int64
	ValidFrom time.Time
	ValidTo   time.Time
	IsActive  bool
	TimesUsed int
	CreatedAt time.Time
}

type UsageStatus string

const (
	UsageStatusPending   UsageStatus = "pending"
	UsageStatusCompleted UsageStatus = "completed"
	UsageStatusFailed    UsageStatus = "failed"
)

// PromotionUsage records one pending/settled reward for one user. Exactly one
// of PromotionCode / ReferralCode is set. A usage is created PENDING at order
// time and only ever completed by the webhook-driven settlement path.
type PromotionUsage struct {
	ID            string
	UserID        string
	PromotionCode *string
	ReferralCode  *string
	Amount        int64
	BundleID      *string
	Status        UsageStatus
	CreatedAt     time.Time
}

type CodeType string

const (
	CodeTypePromotion CodeType = "PROMOTION"
	CodeTypeReferral  CodeType = "REFERRAL"
)
