package repository

import (
	"context"

	"esim-reseller/internal/domain/model"
)

// UserRepository is a read-only view over the identity provider's user
// records; this service never creates or mutates users.
type UserRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByReferralCode(ctx context.Context, tx Tx, code string) (*model.User, error)
}
