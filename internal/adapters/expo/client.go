// Package expo отправляет push-уведомления через Expo Push API.
package expo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

const (
	defaultBaseURL = "https://exp.host/--/api/v2"
	// MaxChunkSize ограничивает количество сообщений в одном запросе Expo.
	MaxChunkSize = 100
)

var tokenPattern = regexp.MustCompile(`^Expo(nent)?PushToken\[[^\[\]]+\]$`)

// Client реализует domain.PushSender.
type Client struct {
	http        *http.Client
	baseURL     string
	accessToken string
	chunkSize   int
}

var _ domain.PushSender = (*Client)(nil)

// NewClient создаёт клиента Expo. accessToken необязателен.
func NewClient(accessToken, baseURL string, chunkSize int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		chunkSize = MaxChunkSize
	}
	return &Client{
		http:        &http.Client{Timeout: 15 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		chunkSize:   chunkSize,
	}
}

// ChunkSize возвращает размер пачки.
func (c *Client) ChunkSize() int { return c.chunkSize }

// ValidToken проверяет формат ExponentPushToken[...] или ExpoPushToken[...].
func (c *Client) ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

type message struct {
	To          string         `json:"to"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Data        map[string]any `json:"data,omitempty"`
	Sound       string         `json:"sound,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	RichContent *richContent   `json:"richContent,omitempty"`
}

type richContent struct {
	Image string `json:"image"`
}

type sendResponse struct {
	Data   []domain.PushTicket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// SendBatch отправляет пачку и возвращает тикеты в порядке сообщений.
func (c *Client) SendBatch(ctx context.Context, messages []domain.PushMessage) ([]domain.PushTicket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > c.chunkSize {
		return nil, fmt.Errorf("expo: batch of %d exceeds chunk size %d", len(messages), c.chunkSize)
	}
	payload := make([]message, 0, len(messages))
	for _, m := range messages {
		msg := message{To: m.To, Title: m.Title, Body: m.Body, Data: m.Data, Sound: "default", Priority: "high"}
		if m.ImageURL != "" {
			msg.RichContent = &richContent{Image: m.ImageURL}
		}
		payload = append(payload, msg)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("expo: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/push/send", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("expo: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	start := time.Now()
	tickets, err := c.do(req)
	metrics.ObserveNetworkRequest("expo", "push_send", "", start, err)
	return tickets, err
}

func (c *Client) do(req *http.Request) ([]domain.PushTicket, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("expo: do request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("expo: read response: %w", err)
	}
	var out sendResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode >= 400 {
		if decodeErr == nil && len(out.Errors) > 0 {
			return nil, fmt.Errorf("expo: %s: %s", out.Errors[0].Code, out.Errors[0].Message)
		}
		return nil, fmt.Errorf("expo: unexpected status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("expo: decode response: %w", decodeErr)
	}
	if len(out.Data) == 0 && len(out.Errors) > 0 {
		return nil, fmt.Errorf("expo: %s: %s", out.Errors[0].Code, out.Errors[0].Message)
	}
	return out.Data, nil
}
