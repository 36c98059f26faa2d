package handler

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"rallyup/activityhub/internal/model"
	"rallyup/activityhub/internal/service"
	"rallyup/activityhub/pkg/response"
)

const bannerField = "image"

type ActivityHandler struct {
	activityService service.ActivityService
	maxUploadBytes  int64
}

func NewActivityHandler(activityService service.ActivityService, maxUploadBytes int64) *ActivityHandler {
	return &ActivityHandler{activityService: activityService, maxUploadBytes: maxUploadBytes}
}

type CreateActivityRequest struct {
	Title       string `json:"title" form:"title" binding:"required"`
	Description string `json:"description" form:"description"`
	Category    string `json:"category" form:"category" binding:"required"`
	Visibility  string `json:"visibility" form:"visibility" binding:"omitempty,oneof=public private"`
}

// UpdateActivityRequest only names the mutable fields; owner and referral
// code in a request body are ignored.
type UpdateActivityRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Visibility  *string `json:"visibility" binding:"omitempty,oneof=public private"`
}

// Create accepts a JSON body, or a multipart form with an optional image file.
func (h *ActivityHandler) Create(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		respondError(c, err)
		return
	}

	multipartBody := c.ContentType() == gin.MIMEMultipartPOSTForm
	if multipartBody {
		h.limitBody(c)
	}

	var req CreateActivityRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	var banner *service.BannerUpload
	if multipartBody {
		file, header, err := c.Request.FormFile(bannerField)
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			response.BadRequest(c, "invalid image upload: "+err.Error())
			return
		default:
			defer file.Close()
			banner = toBannerUpload(file, header)
		}
	}

	activity, err := h.activityService.CreateActivity(c.Request.Context(), caller.ID, service.CreateActivityInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Visibility:  model.Visibility(req.Visibility),
	}, banner)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, toActivityResponse(activity, caller))
}

// List filters by the query string, e.g. ?visibility=public&category=outdoors.
func (h *ActivityHandler) List(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		respondError(c, err)
		return
	}

	filter := make(service.ActivityFilter)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			filter[key] = values[0]
		}
	}

	activities, err := h.activityService.ListActivities(c.Request.Context(), caller, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, toActivityResponses(activities, caller))
}

func (h *ActivityHandler) Get(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		respondError(c, err)
		return
	}
	id, ok := uuidParam(c, "id", service.ErrActivityNotFound)
	if !ok {
		return
	}

	activity, err := h.activityService.GetActivityByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, toActivityResponse(activity, caller))
}

func (h *ActivityHandler) Update(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		respondError(c, err)
		return
	}
	id, ok := uuidParam(c, "id", service.ErrActivityNotFound)
	if !ok {
		return
	}

	var req UpdateActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	patch := service.ActivityPatch{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
	}
	if req.Visibility != nil {
		v := model.Visibility(*req.Visibility)
		patch.Visibility = &v
	}

	activity, err := h.activityService.UpdateActivity(c.Request.Context(), id, caller, patch)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, toActivityResponse(activity, caller))
}

func (h *ActivityHandler) Delete(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		respondError(c, err)
		return
	}
	id, ok := uuidParam(c, "id", service.ErrActivityNotFound)
	if !ok {
		return
	}

	if err := h.activityService.DeleteActivity(c.Request.Context(), id, caller); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "activity deleted"})
}

func (h *ActivityHandler) Join(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		respondError(c, err)
		return
	}

	activity, err := h.activityService.JoinByReferralCode(c.Request.Context(), c.Param("referralCode"), caller.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, toActivityResponse(activity, caller))
}

func (h *ActivityHandler) RemoveInvitee(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		respondError(c, err)
		return
	}
	id, ok := uuidParam(c, "id", service.ErrActivityNotFound)
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "userId", service.ErrUserNotFound)
	if !ok {
		return
	}

	activity, err := h.activityService.RemoveInvitee(c.Request.Context(), id, userID, caller)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, toActivityResponse(activity, caller))
}

// SetBanner replaces the banner from a multipart image field.
func (h *ActivityHandler) SetBanner(c *gin.Context) {
	caller, err := callerFromContext(c)
	if err != nil {
		respondError(c, err)
		return
	}
	id, ok := uuidParam(c, "id", service.ErrActivityNotFound)
	if !ok {
		return
	}

	h.limitBody(c)
	file, header, err := c.Request.FormFile(bannerField)
	if err != nil {
		response.BadRequest(c, "image file is required")
		return
	}
	defer file.Close()

	activity, err := h.activityService.SetBanner(c.Request.Context(), id, caller, toBannerUpload(file, header))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, toActivityResponse(activity, caller))
}

func (h *ActivityHandler) limitBody(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
}

func toBannerUpload(file multipart.File, header *multipart.FileHeader) *service.BannerUpload {
	return &service.BannerUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	}
}
