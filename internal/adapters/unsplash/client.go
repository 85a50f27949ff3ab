// Package unsplash ищет иллюстрации для советов.
package unsplash

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Aryainguz/tldev-backend/internal/domain"
	"github.com/Aryainguz/tldev-backend/internal/infra/metrics"
)

const (
	defaultBaseURL = "https://api.unsplash.com"
	provider       = "unsplash"
	utmSuffix      = "?utm_source=tldev&utm_medium=referral"
)

// Client реализует domain.ImageFinder поверх Unsplash API.
type Client struct {
	http      *http.Client
	baseURL   string
	accessKey string
	log       zerolog.Logger
}

var _ domain.ImageFinder = (*Client)(nil)

// NewClient создаёт клиента Unsplash.
func NewClient(accessKey, baseURL string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
		log:       logger.With().Str("component", "unsplash").Logger(),
	}
}

type photo struct {
	ID          string `json:"id"`
	Color       string `json:"color"`
	BlurHash    string `json:"blur_hash"`
	AltDesc     string `json:"alt_description"`
	Description string `json:"description"`
	URLs        struct {
		Regular string `json:"regular"`
		Small   string `json:"small"`
	} `json:"urls"`
	Links struct {
		DownloadLocation string `json:"download_location"`
	} `json:"links"`
	User struct {
		Name  string `json:"name"`
		Links struct {
			HTML string `json:"html"`
		} `json:"links"`
	} `json:"user"`
}

type searchResponse struct {
	Results []photo `json:"results"`
}

// FindImage ищет горизонтальное фото по категории. Пустая выдача даёт nil без ошибки.
func (c *Client) FindImage(ctx context.Context, category string) (*domain.TipImage, error) {
	if c.accessKey == "" {
		return nil, nil
	}
	q := url.Values{}
	q.Set("query", query(category))
	q.Set("orientation", "landscape")
	q.Set("content_filter", "high")
	q.Set("per_page", "1")

	var resp searchResponse
	start := time.Now()
	err := c.get(ctx, c.baseURL+"/search/photos?"+q.Encode(), &resp)
	metrics.ObserveNetworkRequest(provider, "search_photos", category, start, err)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	p := resp.Results[0]
	alt := p.AltDesc
	if alt == "" {
		alt = p.Description
	}
	img := &domain.TipImage{
		URL:          p.URLs.Regular,
		ThumbURL:     p.URLs.Small,
		Alt:          alt,
		AuthorName:   p.User.Name,
		AuthorURL:    withUTM(p.User.Links.HTML),
		Provider:     provider,
		ProviderID:   p.ID,
		DownloadURL:  p.Links.DownloadLocation,
		BlurHash:     p.BlurHash,
		PrimaryColor: p.Color,
	}
	if img.DownloadURL != "" {
		go c.trackDownload(img.DownloadURL)
	}
	return img, nil
}

// trackDownload сообщает Unsplash об использовании фото. Ошибки только логируются.
func (c *Client) trackDownload(location string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	err := c.get(ctx, location, nil)
	metrics.ObserveNetworkRequest(provider, "track_download", "", start, err)
	if err != nil {
		c.log.Debug().Err(err).Msg("unsplash: track download failed")
	}
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("unsplash: build request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+c.accessKey)
	req.Header.Set("Accept-Version", "v1")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("unsplash: do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unsplash: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unsplash: decode response: %w", err)
	}
	return nil
}

// query строит поисковый запрос по категории.
func query(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return "programming code"
	}
	return category + " programming"
}

func withUTM(link string) string {
	if link == "" || strings.Contains(link, "utm_source") {
		return link
	}
	return link + utmSuffix
}
