package repository

import (
	"context"

	"github.com/google/uuid"

	"rallyup/activityhub/internal/model"
)

// ActivityQuery narrows a listing. Zero-valued fields do not filter.
type ActivityQuery struct {
	Visibility model.Visibility
	Category   string
	OwnerID    uuid.UUID
	// ViewerID, when set, hides private activities that the viewer neither
	// owns nor has joined.
	ViewerID uuid.UUID
}

type ActivityRepository interface {
	// Create inserts a new activity. A referral code collision yields ErrDuplicateKey.
	Create(ctx context.Context, activity *model.Activity) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Activity, error)
	GetByReferralCode(ctx context.Context, code string) (*model.Activity, error)
	List(ctx context.Context, query ActivityQuery) ([]model.Activity, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	Delete(ctx context.Context, id uuid.UUID) error

	// AddInvitee inserts userID into the invitee set if absent, atomically.
	// added is false when the user was already a member.
	AddInvitee(ctx context.Context, activityID, userID uuid.UUID) (added bool, err error)
	// RemoveInvitee deletes userID from the invitee set; removed is false for non-members.
	RemoveInvitee(ctx context.Context, activityID, userID uuid.UUID) (removed bool, err error)
}
