package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rallyup/activityhub/internal/assets"
	"rallyup/activityhub/internal/model"
	"rallyup/activityhub/internal/repository"
	"rallyup/activityhub/pkg/crypto"
)

const defaultReferralAttempts = 5

// CodeGenerator produces referral codes. Collisions are resolved by the store.
type CodeGenerator func() (string, error)

type CreateActivityInput struct {
	Title       string
	Description string
	Category    string
	Visibility  model.Visibility
}

// ActivityPatch carries a partial update; nil fields are left untouched.
// Owner and referral code are not patchable.
type ActivityPatch struct {
	Title       *string
	Description *string
	Category    *string
	Visibility  *model.Visibility
}

// ActivityFilter is a field -> value mapping, e.g. {"visibility": "public"}.
type ActivityFilter map[string]string

type BannerUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type ActivityServiceConfig struct {
	ReferralAttempts int
	BannerMaxWidth   int
	GenerateCode     CodeGenerator
	// AllowOwnerJoin lets an owner redeem their own referral code, which puts
	// them in the invitee list. Off by default.
	AllowOwnerJoin bool
}

type ActivityService interface {
	CreateActivity(ctx context.Context, ownerID uuid.UUID, input CreateActivityInput, banner *BannerUpload) (*model.Activity, error)
	GetActivityByID(ctx context.Context, id uuid.UUID) (*model.Activity, error)
	ListActivities(ctx context.Context, caller Caller, filter ActivityFilter) ([]model.Activity, error)
	UpdateActivity(ctx context.Context, id uuid.UUID, caller Caller, patch ActivityPatch) (*model.Activity, error)
	DeleteActivity(ctx context.Context, id uuid.UUID, caller Caller) error
	JoinByReferralCode(ctx context.Context, code string, userID uuid.UUID) (*model.Activity, error)
	RemoveInvitee(ctx context.Context, activityID, userID uuid.UUID, caller Caller) (*model.Activity, error)
	SetBanner(ctx context.Context, id uuid.UUID, caller Caller, banner *BannerUpload) (*model.Activity, error)
}

type activityService struct {
	activityRepo     repository.ActivityRepository
	assetStore       assets.Store
	generateCode     CodeGenerator
	referralAttempts int
	bannerMaxWidth   int
	allowOwnerJoin   bool
	logger           *zap.Logger
}

// NewActivityService wires the lifecycle manager. assetStore may be nil, in
// which case banner uploads are rejected.
func NewActivityService(
	activityRepo repository.ActivityRepository,
	assetStore assets.Store,
	cfg ActivityServiceConfig,
	logger *zap.Logger,
) ActivityService {
	if cfg.ReferralAttempts <= 0 {
		cfg.ReferralAttempts = defaultReferralAttempts
	}
	if cfg.GenerateCode == nil {
		cfg.GenerateCode = crypto.GenerateReferralCode
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &activityService{
		activityRepo:     activityRepo,
		assetStore:       assetStore,
		generateCode:     cfg.GenerateCode,
		referralAttempts: cfg.ReferralAttempts,
		bannerMaxWidth:   cfg.BannerMaxWidth,
		allowOwnerJoin:   cfg.AllowOwnerJoin,
		logger:           logger,
	}
}

func (s *activityService) CreateActivity(ctx context.Context, ownerID uuid.UUID, input CreateActivityInput, banner *BannerUpload) (*model.Activity, error) {
	title, err := requiredField("title", input.Title)
	if err != nil {
		return nil, err
	}
	category, err := requiredField("category", input.Category)
	if err != nil {
		return nil, err
	}
	visibility := input.Visibility
	if visibility == "" {
		visibility = model.VisibilityPrivate
	}
	if !visibility.Valid() {
		return nil, invalid("visibility must be one of public, private")
	}

	activity := &model.Activity{
		ID:          uuid.New(),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Category:    category,
		Visibility:  visibility,
		OwnerID:     ownerID,
	}

	if banner != nil {
		url, err := s.uploadBanner(ctx, activity.ID, banner)
		if err != nil {
			return nil, err
		}
		activity.BannerImage = url
	}

	if err := s.insertWithReferralCode(ctx, activity); err != nil {
		s.discardBanner(ctx, activity.BannerImage)
		return nil, err
	}

	s.logger.Info("activity created",
		zap.String("activity_id", activity.ID.String()),
		zap.String("owner_id", ownerID.String()),
	)
	return s.load(ctx, activity.ID)
}

// insertWithReferralCode relies on the store's unique index: on a collision a
// fresh code is drawn and the insert retried.
func (s *activityService) insertWithReferralCode(ctx context.Context, activity *model.Activity) error {
	for attempt := 1; attempt <= s.referralAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return fmt.Errorf("generate referral code: %w", err)
		}
		activity.ReferralCode = code

		err = s.activityRepo.Create(ctx, activity)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			if errors.Is(err, repository.ErrMissingReference) {
				return ErrUserNotFound
			}
			return fmt.Errorf("create activity: %w", err)
		}
		s.logger.Warn("referral code collision",
			zap.Int("attempt", attempt),
			zap.String("activity_id", activity.ID.String()),
		)
	}
	return ErrReferralCodeExhausted
}

func (s *activityService) GetActivityByID(ctx context.Context, id uuid.UUID) (*model.Activity, error) {
	return s.load(ctx, id)
}

// ListActivities returns the matches the caller may see: public activities,
// plus private ones the caller owns or has joined. Admins see everything.
func (s *activityService) ListActivities(ctx context.Context, caller Caller, filter ActivityFilter) ([]model.Activity, error) {
	query, err := parseActivityFilter(filter)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		query.ViewerID = caller.ID
	}
	activities, err := s.activityRepo.List(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	if activities == nil {
		activities = []model.Activity{}
	}
	return activities, nil
}

func (s *activityService) UpdateActivity(ctx context.Context, id uuid.UUID, caller Caller, patch ActivityPatch) (*model.Activity, error) {
	activity, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanModify(activity, caller) {
		return nil, ErrForbidden
	}

	fields, err := patchFields(patch)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return activity, nil
	}

	if err := s.activityRepo.Update(ctx, id, fields); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("update activity: %w", err)
	}
	return s.load(ctx, id)
}

func (s *activityService) DeleteActivity(ctx context.Context, id uuid.UUID, caller Caller) error {
	activity, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !CanModify(activity, caller) {
		return ErrForbidden
	}

	if err := s.activityRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrActivityNotFound
		}
		return fmt.Errorf("delete activity: %w", err)
	}
	s.discardBanner(ctx, activity.BannerImage)

	s.logger.Info("activity deleted",
		zap.String("activity_id", id.String()),
		zap.String("caller_id", caller.ID.String()),
	)
	return nil
}

func (s *activityService) JoinByReferralCode(ctx context.Context, code string, userID uuid.UUID) (*model.Activity, error) {
	// Codes are opaque: only the exact stored string matches.
	if code == "" {
		return nil, ErrActivityNotFound
	}

	activity, err := s.activityRepo.GetByReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("find activity by referral code: %w", err)
	}
	if activity.OwnerID == userID && !s.allowOwnerJoin {
		return nil, ErrOwnerCannotJoin
	}

	added, err := s.activityRepo.AddInvitee(ctx, activity.ID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrMissingReference) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("add invitee: %w", err)
	}
	if !added {
		return nil, ErrAlreadyJoined
	}

	s.logger.Info("user joined activity",
		zap.String("activity_id", activity.ID.String()),
		zap.String("user_id", userID.String()),
	)
	return s.load(ctx, activity.ID)
}

func (s *activityService) RemoveInvitee(ctx context.Context, activityID, userID uuid.UUID, caller Caller) (*model.Activity, error) {
	activity, err := s.load(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !CanManageInvitees(activity, caller, userID) {
		return nil, ErrForbidden
	}

	removed, err := s.activityRepo.RemoveInvitee(ctx, activityID, userID)
	if err != nil {
		return nil, fmt.Errorf("remove invitee: %w", err)
	}
	if !removed {
		return activity, nil
	}
	return s.load(ctx, activityID)
}

func (s *activityService) SetBanner(ctx context.Context, id uuid.UUID, caller Caller, banner *BannerUpload) (*model.Activity, error) {
	if banner == nil {
		return nil, invalid("image is required")
	}
	activity, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanModify(activity, caller) {
		return nil, ErrForbidden
	}

	url, err := s.uploadBanner(ctx, id, banner)
	if err != nil {
		return nil, err
	}
	if err := s.activityRepo.Update(ctx, id, map[string]interface{}{"banner_image": url}); err != nil {
		s.discardBanner(ctx, url)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("set banner: %w", err)
	}
	s.discardBanner(ctx, activity.BannerImage)
	return s.load(ctx, id)
}

func (s *activityService) load(ctx context.Context, id uuid.UUID) (*model.Activity, error) {
	activity, err := s.activityRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return activity, nil
}

func (s *activityService) uploadBanner(ctx context.Context, activityID uuid.UUID, banner *BannerUpload) (string, error) {
	if s.assetStore == nil {
		return "", invalid("banner uploads are not enabled")
	}
	url, err := assets.UploadBanner(ctx, s.assetStore, activityID, banner.Body, s.bannerMaxWidth)
	if err != nil {
		if errors.Is(err, assets.ErrInvalidImage) {
			return "", invalid("image could not be decoded")
		}
		return "", fmt.Errorf("%w: %w", ErrAssetUpload, err)
	}
	return url, nil
}

// discardBanner removes an asset that is no longer referenced. Failures only leak storage.
func (s *activityService) discardBanner(ctx context.Context, url string) {
	if url == "" || s.assetStore == nil {
		return
	}
	if err := s.assetStore.Delete(ctx, url); err != nil {
		s.logger.Warn("failed to remove banner asset", zap.String("url", url), zap.Error(err))
	}
}

func requiredField(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalid("%s is required", name)
	}
	return value, nil
}

func patchFields(patch ActivityPatch) (map[string]interface{}, error) {
	fields := make(map[string]interface{})
	if patch.Title != nil {
		title, err := requiredField("title", *patch.Title)
		if err != nil {
			return nil, err
		}
		fields["title"] = title
	}
	if patch.Category != nil {
		category, err := requiredField("category", *patch.Category)
		if err != nil {
			return nil, err
		}
		fields["category"] = category
	}
	if patch.Description != nil {
		fields["description"] = strings.TrimSpace(*patch.Description)
	}
	if patch.Visibility != nil {
		if !patch.Visibility.Valid() {
			return nil, invalid("visibility must be one of public, private")
		}
		fields["visibility"] = string(*patch.Visibility)
	}
	return fields, nil
}

func parseActivityFilter(filter ActivityFilter) (repository.ActivityQuery, error) {
	var query repository.ActivityQuery
	for key, value := range filter {
		value = strings.TrimSpace(value)
		switch key {
		case "visibility":
			v := model.Visibility(value)
			if !v.Valid() {
				return query, invalid("visibility must be one of public, private")
			}
			query.Visibility = v
		case "category":
			query.Category = value
		case "owner":
			ownerID, err := uuid.Parse(value)
			if err != nil {
				return query, invalid("owner must be a user id")
			}
			query.OwnerID = ownerID
		default:
			return query, invalid("unsupported filter %q", key)
		}
	}
	return query, nil
}

var _ ActivityService = (*activityService)(nil)
