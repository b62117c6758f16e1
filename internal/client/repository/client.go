package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Alwanly/lunch-match-sync/internal/config"
	"github.com/Alwanly/lunch-match-sync/internal/models"
	"github.com/Alwanly/lunch-match-sync/pkg/logger"
)

// envelope is the response shape of every API route. Error is either a plain
// string or an object with code and message.
type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  json.RawMessage `json:"error"`
}

type errorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *logger.CanonicalLogger
}

// NewClient creates a new lunch API client
func NewClient(cfg *config.ClientConfig, log *logger.CanonicalLogger) IClient {
	return &client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		logger:     log,
	}
}

func (c *client) GetCurrentMatch(ctx context.Context) (*models.MatchState, error) {
	var state models.MatchState
	if err := c.do(ctx, http.MethodGet, "/matches/current", nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *client) GetMessages(ctx context.Context, matchID int64) ([]models.Message, error) {
	var messages []models.Message
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/matches/%d/messages", matchID), nil, &messages); err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

func (c *client) SendMessage(ctx context.Context, matchID int64, body string) (*models.Message, error) {
	var msg models.Message
	req := map[string]string{"body": body}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/matches/%d/messages", matchID), req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *client) CancelMatch(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/matches/current", nil, nil)
}

func (c *client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: request failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{Status: resp.StatusCode, Code: codeForStatus(resp.StatusCode), Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}

	if apiErr := decodeError(resp.StatusCode, env); apiErr != nil {
		return apiErr
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode data: %w", method, path, err)
	}
	return nil
}

func decodeError(httpStatus int, env envelope) *APIError {
	status := httpStatus
	if env.Status >= http.StatusBadRequest {
		status = env.Status
	}

	hasErr := len(env.Error) > 0 && string(env.Error) != "null"
	if !hasErr && status < http.StatusBadRequest {
		return nil
	}
	if status < http.StatusBadRequest {
		// an error payload on a 2xx transport response is still a domain error
		status = http.StatusUnprocessableEntity
	}

	apiErr := &APIError{Status: status, Code: codeForStatus(status), Message: http.StatusText(status)}
	if !hasErr {
		return apiErr
	}

	var msg string
	if err := json.Unmarshal(env.Error, &msg); err == nil {
		apiErr.Message = msg
		return apiErr
	}
	var obj errorObject
	if err := json.Unmarshal(env.Error, &obj); err == nil {
		if obj.Code != "" {
			apiErr.Code = obj.Code
		}
		if obj.Message != "" {
			apiErr.Message = obj.Message
		}
	}
	return apiErr
}

func codeForStatus(status int) string {
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}
