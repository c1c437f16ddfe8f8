package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coachline/coachline-backend/internal/oracle"
	"github.com/coachline/coachline-backend/internal/services"
	"github.com/coachline/coachline-backend/internal/types"
)

type stubTraining struct {
	result *services.TrainingResult
	err    error
	gotID  string
	gotMsg string
}

func (s *stubTraining) ProcessMessage(_ context.Context, channelUserID, text string) (*services.TrainingResult, error) {
	s.gotID = channelUserID
	s.gotMsg = text
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubDispatch struct {
	respondedFor []string
}

func (s *stubDispatch) Enroll(context.Context, string, string, string) (*types.Trainee, *types.TraineeProgress, error) {
	return nil, nil, nil
}
func (s *stubDispatch) StartManualTest(context.Context, uuid.UUID, int) (*types.TraineeProgress, error) {
	return nil, nil
}
func (s *stubDispatch) StartAttempt(context.Context, uuid.UUID) (*types.TraineeProgress, string, error) {
	return nil, "", nil
}
func (s *stubDispatch) RetryCurrentAttempt(context.Context, uuid.UUID) (*types.TraineeProgress, error) {
	return nil, nil
}
func (s *stubDispatch) PushDaily(context.Context) (*services.PushReport, error) {
	return &services.PushReport{}, nil
}
func (s *stubDispatch) MarkResponded(_ context.Context, channelUserID string) {
	s.respondedFor = append(s.respondedFor, channelUserID)
}
func (s *stubDispatch) ListUnresponded(context.Context, int) ([]*types.PushRecord, error) {
	return nil, nil
}
func (s *stubDispatch) Pause(context.Context, uuid.UUID) (*types.TraineeProgress, error) {
	return nil, nil
}
func (s *stubDispatch) Resume(context.Context, uuid.UUID) (*types.TraineeProgress, error) {
	return nil, nil
}
func (s *stubDispatch) Restart(context.Context, uuid.UUID) (*types.TraineeProgress, error) {
	return nil, nil
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func webhookRouter(training services.TrainingService, dispatch services.DispatchService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewWebhookHandler(training, dispatch)
	r.POST("/webhook/message", h.HandleMessage)
	return r
}

func TestHandleMessageSuccess(t *testing.T) {
	training := &stubTraining{
		result: &services.TrainingResult{
			Verdict: &oracle.Verdict{
				Reply:   "Good framing, keep going.",
				IsFinal: true,
				Passed:  true,
				Score:   82,
			},
			CurrentDay: 3,
			NextDay:    4,
			RoundCount: 5,
		},
	}
	dispatch := &stubDispatch{}
	router := webhookRouter(training, dispatch)

	w := postJSON(t, router, "/webhook/message", gin.H{
		"channel_user_id": "u-42",
		"text":            "Here's my pitch",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", w.Code, w.Body.String())
	}

	var resp webhookReply
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reply != "Good framing, keep going." || !resp.Passed || resp.NextDay != 4 {
		t.Fatalf("response: %+v", resp)
	}

	if training.gotID != "u-42" || training.gotMsg != "Here's my pitch" {
		t.Fatalf("engine call: id=%q msg=%q", training.gotID, training.gotMsg)
	}
	if len(dispatch.respondedFor) != 1 || dispatch.respondedFor[0] != "u-42" {
		t.Fatalf("push record not marked responded: %v", dispatch.respondedFor)
	}
}

func TestHandleMessageRejectsBadPayload(t *testing.T) {
	router := webhookRouter(&stubTraining{}, &stubDispatch{})

	w := postJSON(t, router, "/webhook/message", gin.H{"text": "no user id"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: want=400 got=%d", w.Code)
	}
}

func TestHandleMessageOracleDownIsBadGatewayWithApology(t *testing.T) {
	training := &stubTraining{err: fmt.Errorf("grade: %w", oracle.ErrUnavailable)}
	router := webhookRouter(training, &stubDispatch{})

	w := postJSON(t, router, "/webhook/message", gin.H{
		"channel_user_id": "u-1",
		"text":            "hello",
	})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status: want=502 got=%d", w.Code)
	}
	var resp webhookReply
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reply != replyOracleDown {
		t.Fatalf("reply: got %q", resp.Reply)
	}
}

func TestHandleMessageBusyTraineeIsConflict(t *testing.T) {
	training := &stubTraining{err: services.ErrTraineeBusy}
	router := webhookRouter(training, &stubDispatch{})

	w := postJSON(t, router, "/webhook/message", gin.H{
		"channel_user_id": "u-1",
		"text":            "hello",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("status: want=409 got=%d", w.Code)
	}
}
