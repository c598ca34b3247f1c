// File: internal/usecase/profile_uc.go
package usecase

import (
	"context"

	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/repository"
)

var _ ProfileUseCase = (*profileUC)(nil)

// ProfileView is one provisioned eSIM plus its applied bundles and the LPA
// payload the client renders as a QR code.
type ProfileView struct {
	Profile    *model.UserProfile
	Bundles    []*model.UserProfileBundle
	Activation string
}

type ProfileUseCase interface {
	List(ctx context.Context, userID string) ([]*ProfileView, error)
}

type profileUC struct {
	profiles repository.ProfileRepository
	bundles  repository.ProfileBundleRepository
}

func NewProfileUseCase(profiles repository.ProfileRepository, bundles repository.ProfileBundleRepository) *profileUC {
	return &profileUC{profiles: profiles, bundles: bundles}
}

func (uc *profileUC) List(ctx context.Context, userID string) ([]*ProfileView, error) {
	ps, err := uc.profiles.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*ProfileView, 0, len(ps))
	for _, p := range ps {
		bs, err := uc.bundles.ListByProfile(ctx, nil, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &ProfileView{Profile: p, Bundles: bs, Activation: p.ActivationPayload()})
	}
	return out, nil
}
