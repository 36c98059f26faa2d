package handler

import (
	"time"

	"github.com/google/uuid"

	"rallyup/activityhub/internal/model"
	"rallyup/activityhub/internal/service"
)

type UserSummary struct {
	ID       uuid.UUID  `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
}

type ActivityResponse struct {
	ID           uuid.UUID        `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	Category     string           `json:"category"`
	Visibility   model.Visibility `json:"visibility"`
	Owner        UserSummary      `json:"owner"`
	Invitees     []UserSummary    `json:"invitees"`
	BannerImage  string           `json:"banner_image,omitempty"`
	ReferralCode string           `json:"referral_code,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func toUserSummary(u model.User) UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

// toActivityResponse renders a for caller; the referral code is only shown to
// those allowed to manage the activity.
func toActivityResponse(a *model.Activity, caller service.Caller) ActivityResponse {
	invitees := make([]UserSummary, 0, len(a.Invitees))
	for _, inv := range a.Invitees {
		summary := toUserSummary(inv.User)
		summary.ID = inv.UserID
		invitees = append(invitees, summary)
	}
	resp := ActivityResponse{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Category:    a.Category,
		Visibility:  a.Visibility,
		Owner:       toUserSummary(a.Owner),
		Invitees:    invitees,
		BannerImage: a.BannerImage,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if service.CanSeeReferralCode(a, caller) {
		resp.ReferralCode = a.ReferralCode
	}
	return resp
}

func toActivityResponses(activities []model.Activity, caller service.Caller) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(activities))
	for i := range activities {
		out = append(out, toActivityResponse(&activities[i], caller))
	}
	return out
}
