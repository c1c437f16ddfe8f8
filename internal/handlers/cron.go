package handlers

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coachline/coachline-backend/internal/services"
)

const headerCronSecret = "X-Cron-Secret"

// CronHandler serves the scheduler-triggered endpoints. They sit outside the
// admin JWT surface and authenticate with a shared secret header instead.
type CronHandler struct {
	dispatchService services.DispatchService
	secret          string
}

func NewCronHandler(dispatchService services.DispatchService, secret string) *CronHandler {
	return &CronHandler{
		dispatchService: dispatchService,
		secret:          secret,
	}
}

func (h *CronHandler) authorized(c *gin.Context) bool {
	if h.secret == "" {
		RespondError(c, http.StatusServiceUnavailable, "cron_disabled", fmt.Errorf("cron secret not configured"))
		return false
	}
	got := c.GetHeader(headerCronSecret)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		RespondError(c, http.StatusUnauthorized, "invalid_cron_secret", fmt.Errorf("missing or wrong %s header", headerCronSecret))
		return false
	}
	return true
}

// PushDaily opens the day for every eligible trainee. Safe to call more than
// once per day: pushes are deduplicated per trainee per date.
func (h *CronHandler) PushDaily(c *gin.Context) {
	if !h.authorized(c) {
		return
	}
	report, err := h.dispatchService.PushDaily(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "push_failed", err)
		return
	}
	RespondOK(c, report)
}
