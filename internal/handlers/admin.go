package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coachline/coachline-backend/internal/services"
	"github.com/coachline/coachline-backend/internal/types"
)

type AdminHandler struct {
	dispatchService services.DispatchService
	progressService services.ProgressService
}

func NewAdminHandler(dispatchService services.DispatchService, progressService services.ProgressService) *AdminHandler {
	return &AdminHandler{
		dispatchService: dispatchService,
		progressService: progressService,
	}
}

type enrollRequest struct {
	ChannelUserID string `json:"channel_user_id" binding:"required"`
	DisplayName   string `json:"display_name"`
	Edition       string `json:"edition"`
}

func (h *AdminHandler) Enroll(c *gin.Context) {
	var req enrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}
	trainee, prog, err := h.dispatchService.Enroll(c.Request.Context(), req.ChannelUserID, req.DisplayName, req.Edition)
	if err != nil {
		if errors.Is(err, services.ErrAlreadyEnrolled) {
			RespondError(c, http.StatusConflict, "already_enrolled", err)
			return
		}
		RespondError(c, http.StatusBadRequest, "enroll_failed", err)
		return
	}
	RespondOK(c, gin.H{"trainee": trainee, "progress": prog})
}

func (h *AdminHandler) ListTrainees(c *gin.Context) {
	trainees, err := h.progressService.ListTrainees(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"trainees": trainees})
}

func (h *AdminHandler) GetProgress(c *gin.Context) {
	id, ok := h.traineeID(c)
	if !ok {
		return
	}
	summary, err := h.progressService.Summary(c.Request.Context(), id)
	if err != nil {
		h.respondProgressError(c, err)
		return
	}
	RespondOK(c, summary)
}

func (h *AdminHandler) GetStats(c *gin.Context) {
	id, ok := h.traineeID(c)
	if !ok {
		return
	}
	stats, err := h.progressService.Stats(c.Request.Context(), id)
	if err != nil {
		h.respondProgressError(c, err)
		return
	}
	RespondOK(c, stats)
}

func (h *AdminHandler) GetHistory(c *gin.Context) {
	id, ok := h.traineeID(c)
	if !ok {
		return
	}
	var q struct {
		Limit int `form:"limit"`
	}
	_ = c.ShouldBindQuery(&q)
	turns, err := h.progressService.History(c.Request.Context(), id, q.Limit)
	if err != nil {
		h.respondProgressError(c, err)
		return
	}
	RespondOK(c, gin.H{"turns": turns})
}

type manualTestRequest struct {
	Day *int `json:"day" binding:"required"`
}

func (h *AdminHandler) StartManualTest(c *gin.Context) {
	id, ok := h.traineeID(c)
	if !ok {
		return
	}
	var req manualTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}
	prog, err := h.dispatchService.StartManualTest(c.Request.Context(), id, *req.Day)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidTestDay):
			RespondError(c, http.StatusBadRequest, "invalid_test_day", err)
		case errors.Is(err, services.ErrWrongStatus), errors.Is(err, services.ErrNotEnrolled):
			RespondError(c, http.StatusConflict, "wrong_status", err)
		default:
			RespondError(c, http.StatusInternalServerError, "manual_test_failed", err)
		}
		return
	}
	RespondOK(c, prog)
}

func (h *AdminHandler) ListUnrespondedPushes(c *gin.Context) {
	var q struct {
		Days int `form:"days"`
	}
	_ = c.ShouldBindQuery(&q)
	records, err := h.dispatchService.ListUnresponded(c.Request.Context(), q.Days)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"pushes": records})
}

func (h *AdminHandler) StartAttempt(c *gin.Context) {
	id, ok := h.traineeID(c)
	if !ok {
		return
	}
	prog, opening, err := h.dispatchService.StartAttempt(c.Request.Context(), id)
	if err != nil {
		h.respondLifecycleError(c, err)
		return
	}
	RespondOK(c, gin.H{"progress": prog, "opening": opening})
}

func (h *AdminHandler) RetryAttempt(c *gin.Context) {
	id, ok := h.traineeID(c)
	if !ok {
		return
	}
	prog, err := h.dispatchService.RetryCurrentAttempt(c.Request.Context(), id)
	if err != nil {
		h.respondLifecycleError(c, err)
		return
	}
	RespondOK(c, prog)
}

func (h *AdminHandler) Pause(c *gin.Context) {
	h.lifecycle(c, h.dispatchService.Pause)
}

func (h *AdminHandler) Resume(c *gin.Context) {
	h.lifecycle(c, h.dispatchService.Resume)
}

func (h *AdminHandler) Restart(c *gin.Context) {
	h.lifecycle(c, h.dispatchService.Restart)
}

func (h *AdminHandler) lifecycle(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) (*types.TraineeProgress, error)) {
	id, ok := h.traineeID(c)
	if !ok {
		return
	}
	prog, err := fn(c.Request.Context(), id)
	if err != nil {
		h.respondLifecycleError(c, err)
		return
	}
	RespondOK(c, prog)
}

func (h *AdminHandler) traineeID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_trainee_id", err)
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) respondProgressError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotEnrolled), errors.Is(err, gorm.ErrRecordNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}

func (h *AdminHandler) respondLifecycleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotEnrolled):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrWrongStatus):
		RespondError(c, http.StatusConflict, "wrong_status", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
