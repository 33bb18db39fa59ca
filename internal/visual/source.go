// Package visual produces optimized featured images for articles.
package visual

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"blogwire/internal/core"
)

// maxDownloadBytes caps a single downloaded source image.
const maxDownloadBytes = 20 << 20

// Request describes the article an image is wanted for.
type Request struct {
	Title    string
	Keyword  string
	Keywords []string
	Size     string // "WxH" hint for generated images
}

// Image is a raw image fetched from a Source.
type Image struct {
	Data        []byte
	ContentType string
	Source      string
	SourceURL   string
}

// Source produces an image for an article.
type Source interface {
	Name() string
	Fetch(ctx context.Context, req Request) (*Image, error)
}

func download(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w: %w", core.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: status %d: %w", resp.StatusCode, core.ErrTransport)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w: %w", core.ErrTransport, err)
	}
	if len(data) > maxDownloadBytes {
		return nil, "", fmt.Errorf("image larger than %d bytes: %w", maxDownloadBytes, core.ErrImage)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", fmt.Errorf("downloaded content is %s: %w", contentType, core.ErrImage)
	}
	return data, contentType, nil
}

// searchQuery picks the most specific text to search stock images with.
func searchQuery(req Request) string {
	if req.Keyword != "" {
		return req.Keyword
	}
	if len(req.Keywords) > 0 {
		return req.Keywords[0]
	}
	return req.Title
}
