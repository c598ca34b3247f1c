package repository

import (
	"context"

	"esim-reseller/internal/domain/model"
)

type ProfileRepository interface {
	Save(ctx context.Context, tx Tx, p *model.UserProfile) error
	FindByUserAndICCID(ctx context.Context, tx Tx, userID, iccid string) (*model.UserProfile, error)
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.UserProfile, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.UserProfile, error)
}

type ProfileBundleRepository interface {
	Save(ctx context.Context, tx Tx, b *model.UserProfileBundle) error
	ListByProfile(ctx context.Context, tx Tx, profileID string) ([]*model.UserProfileBundle, error)
	CountByOrderID(ctx context.Context, tx Tx, orderID string) (int, error)
}
