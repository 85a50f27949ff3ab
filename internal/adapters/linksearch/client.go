// Package linksearch ищет ссылку «узнать больше» через Google Custom Search.
package linksearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// blockedHosts перечисляет источники, которые не подходят как ссылка на документацию.
var blockedHosts = []string{"pinterest.", "facebook.com", "quora.com", "linkedin.com"}

// Client реализует domain.LinkFinder.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	engineID string
}

var _ domain.LinkFinder = (*Client)(nil)

// NewClient создаёт клиента поиска.
func NewClient(apiKey, engineID, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:     &http.Client{Timeout: 10 * time.Second},
		baseURL:  baseURL,
		apiKey:   apiKey,
		engineID: engineID,
	}
}

type searchResponse struct {
	Items []struct {
		Title       string `json:"title"`
		Link        string `json:"link"`
		Snippet     string `json:"snippet"`
		DisplayLink string `json:"displayLink"`
	} `json:"items"`
}

// FindLink возвращает первую подходящую ссылку. Пустая выдача даёт nil без ошибки.
func (c *Client) FindLink(ctx context.Context, text, category string) (*domain.TipLink, error) {
	if c.apiKey == "" || c.engineID == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("cx", c.engineID)
	q.Set("q", strings.TrimSpace(text+" "+category))
	q.Set("num", "5")
	q.Set("safe", "active")

	start := time.Now()
	resp, err := c.search(ctx, c.baseURL+"?"+q.Encode())
	metrics.ObserveNetworkRequest("linksearch", "search", category, start, err)
	if err != nil {
		return nil, err
	}
	for _, item := range resp.Items {
		if item.Link == "" || blocked(item.Link) {
			continue
		}
		return &domain.TipLink{
			URL:     item.Link,
			Title:   strings.TrimSpace(item.Title),
			Snippet: strings.TrimSpace(item.Snippet),
			Source:  item.DisplayLink,
		}, nil
	}
	return nil, nil
}

func (c *Client) search(ctx context.Context, rawURL string) (searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return searchResponse{}, fmt.Errorf("linksearch: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return searchResponse{}, fmt.Errorf("linksearch: do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return searchResponse{}, fmt.Errorf("linksearch: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return searchResponse{}, fmt.Errorf("linksearch: decode response: %w", err)
	}
	return out, nil
}

func blocked(link string) bool {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return true
	}
	for _, h := range blockedHosts {
		if strings.Contains(u.Host, h) {
			return true
		}
	}
	return false
}
