package visual

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"blogwire/internal/core"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// GoogleImageSource finds an image through Google Custom Search image search.
type GoogleImageSource struct {
	service    *customsearch.Service
	searchID   string
	httpClient *http.Client
}

// NewGoogleImageSource creates a Custom Search backed source. Extra client options
// (endpoint, HTTP client) are passed through to the API client.
func NewGoogleImageSource(ctx context.Context, apiKey, searchID string, timeout time.Duration, opts ...option.ClientOption) (*GoogleImageSource, error) {
	if apiKey == "" || searchID == "" {
		return nil, fmt.Errorf("google image search needs an API key and search engine id: %w", core.ErrImage)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Custom Search client: %w", err)
	}
	return &GoogleImageSource{
		service:    svc,
		searchID:   searchID,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (s *GoogleImageSource) Name() string { return "google" }

// Fetch implements Source. The first result that downloads as an image wins.
func (s *GoogleImageSource) Fetch(ctx context.Context, req Request) (*Image, error) {
	query := searchQuery(req)
	search, err := s.service.Cse.List().
		Cx(s.searchID).
		Q(query).
		SearchType("image").
		Safe("active").
		Num(5).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("google image search failed: %w: %w", core.ErrTransport, err)
	}

	var lastErr error
	for _, item := range search.Items {
		if item.Link == "" {
			continue
		}
		data, contentType, err := download(ctx, s.httpClient, item.Link)
		if err != nil {
			lastErr = err
			continue
		}
		return &Image{Data: data, ContentType: contentType, Source: s.Name(), SourceURL: item.Link}, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("no Google image for %q: %w", query, core.ErrImage)
}
