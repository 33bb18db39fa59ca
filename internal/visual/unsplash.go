package visual

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"blogwire/internal/core"
)

const defaultUnsplashURL = "https://api.unsplash.com"

// UnsplashSource searches Unsplash for a landscape stock photo.
type UnsplashSource struct {
	accessKey  string
	baseURL    string
	httpClient *http.Client
}

// NewUnsplashSource creates an Unsplash search source. An empty baseURL uses the public API.
func NewUnsplashSource(accessKey, baseURL string, timeout time.Duration) *UnsplashSource {
	if baseURL == "" {
		baseURL = defaultUnsplashURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &UnsplashSource{
		accessKey:  accessKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *UnsplashSource) Name() string { return "unsplash" }

// Fetch implements Source.
func (s *UnsplashSource) Fetch(ctx context.Context, req Request) (*Image, error) {
	if s.accessKey == "" {
		return nil, fmt.Errorf("unsplash access key not configured: %w", core.ErrImage)
	}

	params := url.Values{}
	params.Set("query", searchQuery(req))
	params.Set("per_page", "1")
	params.Set("orientation", "landscape")

	httpReq, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+"/search/photos?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unsplash request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Client-ID "+s.accessKey)
	httpReq.Header.Set("Accept-Version", "v1")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute Unsplash request: %w: %w", core.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unsplash request failed with status %d: %w", resp.StatusCode, core.ErrTransport)
	}

	var apiResponse struct {
		Results []struct {
			URLs struct {
				Raw     string `json:"raw"`
				Regular string `json:"regular"`
			} `json:"urls"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse Unsplash response: %w", err)
	}
	if len(apiResponse.Results) == 0 || apiResponse.Results[0].URLs.Regular == "" {
		return nil, fmt.Errorf("no Unsplash photo for %q: %w", searchQuery(req), core.ErrImage)
	}

	photoURL := apiResponse.Results[0].URLs.Regular
	data, contentType, err := download(ctx, s.httpClient, photoURL)
	if err != nil {
		return nil, err
	}
	return &Image{Data: data, ContentType: contentType, Source: s.Name(), SourceURL: photoURL}, nil
}
