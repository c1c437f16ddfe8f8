package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/coachline/coachline-backend/internal/services"
)

type countingDispatch struct {
	stubDispatch
	pushCalls int
	report    *services.PushReport
}

func (s *countingDispatch) PushDaily(_ context.Context) (*services.PushReport, error) {
	s.pushCalls++
	return s.report, nil
}

func cronRouter(dispatch services.DispatchService, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewCronHandler(dispatch, secret)
	r.POST("/cron/push-daily", h.PushDaily)
	return r
}

func cronRequest(router *gin.Engine, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/cron/push-daily", nil)
	if secret != "" {
		req.Header.Set(headerCronSecret, secret)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPushDailyRequiresSecret(t *testing.T) {
	dispatch := &countingDispatch{report: &services.PushReport{Pushed: 2, Skipped: 1}}
	router := cronRouter(dispatch, "topsecret")

	if w := cronRequest(router, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret: want=401 got=%d", w.Code)
	}
	if w := cronRequest(router, "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: want=401 got=%d", w.Code)
	}
	if dispatch.pushCalls != 0 {
		t.Fatalf("unauthorized requests must not trigger a push")
	}

	w := cronRequest(router, "topsecret")
	if w.Code != http.StatusOK {
		t.Fatalf("status: want=200 got=%d body=%s", w.Code, w.Body.String())
	}
	var report services.PushReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Pushed != 2 || report.Skipped != 1 {
		t.Fatalf("report: %+v", report)
	}
	if dispatch.pushCalls != 1 {
		t.Fatalf("push calls: want=1 got=%d", dispatch.pushCalls)
	}
}

func TestPushDailyDisabledWithoutConfiguredSecret(t *testing.T) {
	dispatch := &countingDispatch{report: &services.PushReport{}}
	router := cronRouter(dispatch, "")

	if w := cronRequest(router, "anything"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured cron: want=503 got=%d", w.Code)
	}
}
