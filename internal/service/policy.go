package service

import (
	"github.com/google/uuid"

	"rallyup/activityhub/internal/model"
)

// Caller is the verified identity behind a request.
type Caller struct {
	ID   uuid.UUID
	Role model.Role
}

func (c Caller) IsAdmin() bool { return c.Role == model.RoleAdmin }

// CanModify reports whether caller may update or delete the activity.
func CanModify(activity *model.Activity, caller Caller) bool {
	return activity.OwnerID == caller.ID || caller.IsAdmin()
}

// CanSeeReferralCode reports whether caller may read the join token of the activity.
func CanSeeReferralCode(activity *model.Activity, caller Caller) bool {
	return CanModify(activity, caller)
}

// CanManageInvitees reports whether caller may remove userID from the activity.
// Invitees may always remove themselves.
func CanManageInvitees(activity *model.Activity, caller Caller, userID uuid.UUID) bool {
	return CanModify(activity, caller) || caller.ID == userID
}

// CanDelete reports whether a caller with role may delete user records.
func CanDelete(role model.Role) bool {
	return role == model.RoleAdmin
}

// CanUpdateUser reports whether caller may edit the profile of targetID.
func CanUpdateUser(targetID uuid.UUID, caller Caller) bool {
	return targetID == caller.ID
}
