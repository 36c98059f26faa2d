package repository

import (
	"context"

	"github.com/google/uuid"

	"rallyup/activityhub/internal/model"
)

type UserRepository interface {
	// Create inserts a user. A taken email or username yields ErrDuplicateKey.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context) ([]model.User, error)
	Update(ctx context.Context, user *model.User) error
	// Delete removes the user, the activities they own and their memberships.
	Delete(ctx context.Context, id uuid.UUID) error
}
