package model

import "time"

// UserWallet holds the running balance for one user, minor units.
// Invariant: Amount == sum of all WalletTransaction.Amount for this wallet;
// every balance mutation is paired with exactly one transaction row in the
// same database transaction.
type UserWallet struct {
	ID        string
	UserID    string
	Amount    int64
	Currency  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type WalletTransaction struct {
	ID        string // ULID, sortable by creation time
	WalletID  string
	Amount    int64 // signed delta, minor units
	Source    string
	Status    string
	CreatedAt time.Time
}

// Well-known transaction sources.
const (
	WalletSourceTopUp        = "TopUp"
	WalletSourceAssignBundle = "Assign_Bundle"
	WalletSourceCashback     = "Cashback"
	WalletSourceReferral     = "Referral"
	WalletSourceRefund       = "Refund"
	WalletSourceVoucher      = "Voucher"
)

// Voucher is a one-shot prepaid code whose amount lands on the redeeming
// user's wallet. A voucher can be claimed exactly once.
type Voucher struct {
	ID        string
	Code      string
	Amount    int64 // minor units
	IsActive  bool
	IsUsed    bool
	UsedBy    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
