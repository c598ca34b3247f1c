package model

import "time"

// UserProfile is a provisioned eSIM subscription: the ICCID plus everything
// the client needs to activate it. Created only after the fulfillment backend
// confirms the order.
type UserProfile struct {
	ID                 string
	UserID             string
	OrderID            string
	ICCID              string
	Validity           string
	SMDPAddress        string
	ActivationCode     string
	AllowTopUp         bool
	FulfillmentOrderID string
	Label              *string
	CreatedAt          time.Time
}

// ActivationPayload renders the LPA string encoded into the activation QR.
func (p *UserProfile) ActivationPayload() string {
	return "LPA:1$" + p.SMDPAddress + "$" + p.ActivationCode
}

type BundleKind string

const (
	BundlePrimary BundleKind = "PRIMARY"
	BundleTopUp   BundleKind = "TOP_UP"
)

// UserProfileBundle is one bundle applied to a profile, either the primary
// bundle or a later top-up. BundleData is a frozen snapshot of the purchased
// bundle, independent of later catalog changes.
type UserProfileBundle struct {
	ID                 string
	UserID             string
	OrderID            string
	ProfileID          string
	FulfillmentOrderID string
	ICCID              string
	Kind               BundleKind
	PlanStarted        bool
	BundleExpired      bool
	BundleData         *Bundle
	CreatedAt          time.Time
}
