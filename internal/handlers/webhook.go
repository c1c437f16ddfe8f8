package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coachline/coachline-backend/internal/oracle"
	"github.com/coachline/coachline-backend/internal/services"
)

const replyOracleDown = "Sorry, I could not process that message right now. Please send it again in a moment."

type WebhookHandler struct {
	trainingService services.TrainingService
	dispatchService services.DispatchService
}

func NewWebhookHandler(trainingService services.TrainingService, dispatchService services.DispatchService) *WebhookHandler {
	return &WebhookHandler{
		trainingService: trainingService,
		dispatchService: dispatchService,
	}
}

type inboundMessage struct {
	ChannelUserID string `json:"channel_user_id" binding:"required"`
	Text          string `json:"text" binding:"required"`
}

type webhookReply struct {
	Reply       string `json:"reply"`
	IsFinal     bool   `json:"is_final"`
	Passed      bool   `json:"passed"`
	Score       int    `json:"score"`
	CurrentDay  int    `json:"current_day"`
	NextDay     int    `json:"next_day"`
	IsCompleted bool   `json:"is_completed"`
	RoundCount  int    `json:"round_count"`
}

// HandleMessage receives one inbound trainee message and returns the graded
// reply. Oracle outages come back as 502 with an apology the channel can
// forward verbatim; the trainee just resends.
func (h *WebhookHandler) HandleMessage(c *gin.Context) {
	var msg inboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}

	h.dispatchService.MarkResponded(c.Request.Context(), msg.ChannelUserID)

	result, err := h.trainingService.ProcessMessage(c.Request.Context(), msg.ChannelUserID, msg.Text)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTraineeBusy):
			RespondError(c, http.StatusConflict, "trainee_busy", err)
		case errors.Is(err, oracle.ErrUnavailable):
			c.JSON(http.StatusBadGateway, webhookReply{Reply: replyOracleDown})
		default:
			RespondError(c, http.StatusInternalServerError, "internal", err)
		}
		return
	}

	RespondOK(c, webhookReply{
		Reply:       result.Verdict.Reply,
		IsFinal:     result.Verdict.IsFinal,
		Passed:      result.Verdict.Passed,
		Score:       result.Verdict.Score,
		CurrentDay:  result.CurrentDay,
		NextDay:     result.NextDay,
		IsCompleted: result.IsCompleted,
		RoundCount:  result.RoundCount,
	})
}
