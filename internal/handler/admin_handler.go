package handler

import (
	"github.com/gin-gonic/gin"

	"rallyup/activityhub/internal/service"
	"rallyup/activityhub/pkg/response"
)

// AdminHandler serves the routes gated by RequireRole(admin).
type AdminHandler struct {
	userService service.UserService
}

func NewAdminHandler(userService service.UserService) *AdminHandler {
	return &AdminHandler{userService: userService}
}

// DeleteUser removes an account together with the activities it owns.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		respondError(c, err)
		return
	}
	id, ok := uuidParam(c, "id", service.ErrUserNotFound)
	if !ok {
		return
	}

	if err := h.userService.DeleteUser(c.Request.Context(), id, caller); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "user deleted"})
}
