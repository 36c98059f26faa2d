package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rallyup/activityhub/internal/model"
)

type pgActivityRepository struct {
	db *gorm.DB
}

func NewPGActivityRepository(db *gorm.DB) ActivityRepository {
	return &pgActivityRepository{db: db}
}

// withRelations resolves owner and invitee users on read.
func (r *pgActivityRepository) withRelations(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Owner").
		Preload("Invitees", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		}).
		Preload("Invitees.User")
}

func (r *pgActivityRepository) Create(ctx context.Context, activity *model.Activity) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(activity).Error
	return translateError(err)
}

func (r *pgActivityRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Activity, error) {
	var activity model.Activity
	if err := r.withRelations(ctx).First(&activity, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *pgActivityRepository) GetByReferralCode(ctx context.Context, code string) (*model.Activity, error) {
	var activity model.Activity
	if err := r.withRelations(ctx).Where("referral_code = ?", code).First(&activity).Error; err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *pgActivityRepository) List(ctx context.Context, query ActivityQuery) ([]model.Activity, error) {
	tx := r.withRelations(ctx).Model(&model.Activity{})
	if query.Visibility != "" {
		tx = tx.Where("visibility = ?", string(query.Visibility))
	}
	if query.Category != "" {
		tx = tx.Where("category = ?", query.Category)
	}
	if query.OwnerID != uuid.Nil {
		tx = tx.Where("owner_id = ?", query.OwnerID)
	}
	if query.ViewerID != uuid.Nil {
		joined := r.db.Model(&model.ActivityInvitee{}).Select("activity_id").Where("user_id = ?", query.ViewerID)
		tx = tx.Where("visibility = ? OR owner_id = ? OR id IN (?)",
			string(model.VisibilityPublic), query.ViewerID, joined)
	}

	activities := make([]model.Activity, 0)
	if err := tx.Order("created_at DESC").Find(&activities).Error; err != nil {
		return nil, err
	}
	return activities, nil
}

func (r *pgActivityRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&model.Activity{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the activity and its invitee rows permanently.
func (r *pgActivityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("activity_id = ?", id).Delete(&model.ActivityInvitee{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Activity{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *pgActivityRepository) AddInvitee(ctx context.Context, activityID, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.ActivityInvitee{ActivityID: activityID, UserID: userID})
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *pgActivityRepository) RemoveInvitee(ctx context.Context, activityID, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("activity_id = ? AND user_id = ?", activityID, userID).
		Delete(&model.ActivityInvitee{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
