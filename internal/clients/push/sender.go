package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/services"
	"github.com/coachline/coachline-backend/internal/utils"
)

// NewSender picks the outbound channel from the environment: a configured
// CHANNEL_PUSH_URL yields a real HTTP sender, otherwise pushes only hit the
// log. The log sender keeps local development and tests messaging-free.
func NewSender(log *logger.Logger) services.PushSender {
	url := utils.GetEnv("CHANNEL_PUSH_URL", "", log)
	if url == "" {
		log.Warn("CHANNEL_PUSH_URL not set, pushes will only be logged")
		return &logSender{log: log.With("service", "LogPushSender")}
	}
	return &httpSender{
		log:     log.With("service", "HTTPPushSender"),
		url:     url,
		token:   utils.GetEnv("CHANNEL_ACCESS_TOKEN", "", log),
		timeout: time.Duration(utils.GetEnvAsInt("CHANNEL_TIMEOUT_SECONDS", 15, log)) * time.Second,
	}
}

type logSender struct {
	log *logger.Logger
}

func (s *logSender) Push(ctx context.Context, channelUserID, text string) error {
	s.log.Info("Push (log only)",
		"channel_user_id", channelUserID,
		"length", len(text),
	)
	return nil
}

type httpSender struct {
	log     *logger.Logger
	url     string
	token   string
	timeout time.Duration
}

type pushPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (s *httpSender) Push(ctx context.Context, channelUserID, text string) error {
	body, err := json.Marshal(pushPayload{To: channelUserID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal push payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("push endpoint returned %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}
