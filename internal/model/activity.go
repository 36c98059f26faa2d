package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

type Activity struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string     `gorm:"type:varchar(256);not null" json:"title"`
	Description  string     `gorm:"type:text" json:"description,omitempty"`
	Category     string     `gorm:"type:varchar(128);not null;index" json:"category"`
	Visibility   Visibility `gorm:"type:varchar(16);not null;default:private;index" json:"visibility"`
	OwnerID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_id"`
	BannerImage  string     `gorm:"type:varchar(1024)" json:"banner_image,omitempty"`
	ReferralCode string     `gorm:"type:varchar(32);uniqueIndex;not null" json:"referral_code"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	Owner    User              `gorm:"foreignKey:OwnerID" json:"owner"`
	Invitees []ActivityInvitee `gorm:"foreignKey:ActivityID;constraint:OnDelete:CASCADE" json:"invitees"`
}

func (Activity) TableName() string { return "activities" }

func (a *Activity) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Visibility == "" {
		a.Visibility = VisibilityPrivate
	}
	return nil
}

// ActivityInvitee is one member of an activity's invitee set. The composite
// primary key is the store-level guarantee that a user joins at most once.
type ActivityInvitee struct {
	ActivityID uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	JoinedAt   time.Time `gorm:"autoCreateTime" json:"joined_at"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user"`
}

func (ActivityInvitee) TableName() string { return "activity_invitees" }
