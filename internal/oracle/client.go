package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/coachline/coachline-backend/internal/logger"
	"github.com/coachline/coachline-backend/internal/utils"
)

// ErrUnavailable wraps transport-level oracle failures (network, auth, quota
// exhaustion). The engine performs no state mutation when it sees this; the
// transport layer turns it into a user-visible apology.
var ErrUnavailable = errors.New("grading oracle unavailable")

// Turn is one prior exchange handed to the oracle as context.
type Turn struct {
	Role string
	Text string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GradeResult carries the parsed verdict plus everything the caller needs
// for call logging.
type GradeResult struct {
	Verdict    *Verdict
	Raw        string
	ParserUsed string
	Model      string
	Latency    time.Duration
}

type Client interface {
	Grade(ctx context.Context, directive string, prior []Turn, userMessage string) (*GradeResult, error)
}

type httpClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
	maxTokens  int
}

// NewHTTPClient builds the production oracle client against an OpenAI-style
// chat completions endpoint.
func NewHTTPClient(log *logger.Logger) (Client, error) {
	apiKey := utils.GetEnv("ORACLE_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("missing ORACLE_API_KEY")
	}

	baseURL := utils.GetEnv("ORACLE_BASE_URL", "https://api.openai.com", log)
	model := utils.GetEnv("ORACLE_MODEL", "gpt-4o-mini", log)
	timeoutSec := utils.GetEnvAsInt("ORACLE_TIMEOUT_SECONDS", 60, log)
	maxRetries := utils.GetEnvAsInt("ORACLE_MAX_RETRIES", 3, log)
	maxTokens := utils.GetEnvAsInt("ORACLE_MAX_TOKENS", 1000, log)

	return &httpClient{
		log:        log.With("service", "OracleClient"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: maxRetries,
		maxTokens:  maxTokens,
	}, nil
}

type oracleHTTPError struct {
	StatusCode int
	Body       string
}

func (e *oracleHTTPError) Error() string {
	return fmt.Sprintf("oracle http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	// a dead caller context cannot be retried into success
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *oracleHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	j := 0.2
	delta := base.Seconds() * j
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	if low < 0 {
		low = 0
	}
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *httpClient) Grade(ctx context.Context, directive string, prior []Turn, userMessage string) (*GradeResult, error) {
	ctx, span := otel.Tracer("oracle").Start(ctx, "oracle.grade")
	defer span.End()

	messages := make([]chatMessage, 0, len(prior)+2)
	messages = append(messages, chatMessage{Role: "system", Content: directive})
	for _, t := range prior {
		messages = append(messages, chatMessage{Role: t.Role, Content: t.Text})
	}
	messages = append(messages, chatMessage{Role: RoleUser, Content: userMessage})

	req := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: 0.7,
	}

	start := time.Now()
	var resp chatResponse
	if err := c.do(ctx, "POST", "/v1/chat/completions", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	latency := time.Since(start)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices in response", ErrUnavailable)
	}
	raw := resp.Choices[0].Message.Content

	verdict, parser := ParseVerdict(raw)
	span.SetAttributes(
		attribute.String("oracle.parser", parser),
		attribute.Bool("oracle.is_final", verdict.IsFinal),
	)
	if parser == ParserFailOpen {
		c.log.Warn("Oracle output had no recoverable verdict JSON, failing open",
			"model", c.model, "output_len", len(raw))
	}

	return &GradeResult{
		Verdict:    verdict,
		Raw:        raw,
		ParserUsed: parser,
		Model:      c.model,
		Latency:    latency,
	}, nil
}

func (c *httpClient) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &oracleHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body any, out any) error {
	// exponential backoff: 1s, 2s, 4s... capped at 10s
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("oracle decode error: %w", uErr)
			}
			return nil
		}

		if !isRetryableErr(err) {
			return err
		}
		if attempt == c.maxRetries {
			return err
		}

		sleepFor := backoff
		if resp != nil {
			ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
			if ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("Oracle request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}
