package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/regabilling/retarget/internal/config"
	"github.com/regabilling/retarget/internal/pkg/httpretry"
)

// SMSSender posts messages to an HTTP SMS gateway. Transient gateway errors
// are retried by the underlying client.
type SMSSender struct {
	baseURL string
	apiKey  string
	from    string
	client  *httpretry.RetryClient
}

// NewSMSSender builds an SMS gateway client from the SMS config.
func NewSMSSender(cfg config.SMSConfig) *SMSSender {
	return &SMSSender{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		from:    cfg.From,
		client:  httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, 3),
	}
}

type smsRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
}

// SendSMS delivers one message and returns the gateway message id.
func (s *SMSSender) SendSMS(ctx context.Context, to, body string) (string, error) {
	payload, err := json.Marshal(smsRequest{To: to, From: s.from, Body: body})
	if err != nil {
		return "", fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms send to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, string(respBody))
	}

	var out smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode sms response: %w", err)
	}
	return out.MessageID, nil
}
