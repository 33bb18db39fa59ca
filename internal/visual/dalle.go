package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"blogwire/internal/core"
)

const (
	// DefaultImageModel is the OpenAI image model used for featured images.
	DefaultImageModel = "gpt-image-1"
	defaultOpenAIURL  = "https://api.openai.com/v1"
)

// DALLEClient handles OpenAI image generation API interactions
type DALLEClient struct {
	apiKey     string
	model      string
	httpClient *http.Client
	baseURL    string
}

// NewDALLEClient creates a new image generation client. Empty model and baseURL use the defaults.
func NewDALLEClient(apiKey, model, baseURL string, timeout time.Duration) *DALLEClient {
	if model == "" {
		model = DefaultImageModel
	}
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &DALLEClient{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// DALLERequest represents an image generation request
type DALLERequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`    // Number of images to generate
	Size   string `json:"size"` // Image size like "1024x1024"
}

// DALLEResponse represents an image generation response
type DALLEResponse struct {
	Created int64              `json:"created"`
	Data    []DALLEImageResult `json:"data"`
}

// DALLEImageResult represents a single generated image
type DALLEImageResult struct {
	B64JSON       string `json:"b64_json"`      // Base64 encoded image
	URL           string `json:"url,omitempty"` // Image URL (older models answer with a URL)
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// GenerateImage generates one image for prompt
func (c *DALLEClient) GenerateImage(ctx context.Context, prompt string, size string) (*DALLEResponse, error) {
	request := DALLERequest{
		Model:  c.model,
		Prompt: prompt,
		N:      1,
		Size:   size,
	}

	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/images/generations", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w: %w", core.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w: %w", core.ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image API error (status %d): %s: %w", resp.StatusCode, string(body), core.ErrTransport)
	}

	var dalleResp DALLEResponse
	if err := json.Unmarshal(body, &dalleResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &dalleResp, nil
}

// GetImageSize maps requested dimensions to a size the image API supports
func GetImageSize(width, height int) string {
	// Supported: '1024x1024', '1024x1536', '1536x1024', '1792x1024', '1024x1792'
	sizeStr := fmt.Sprintf("%dx%d", width, height)
	switch sizeStr {
	case "1024x1024", "1024x1536", "1536x1024", "1792x1024", "1024x1792":
		return sizeStr
	}

	if width <= 0 || height <= 0 || width == height {
		return "1024x1024"
	}

	if width > height {
		if float64(width)/float64(height) >= 1.7 {
			return "1792x1024"
		}
		return "1536x1024"
	}
	if float64(height)/float64(width) >= 1.7 {
		return "1024x1792"
	}
	return "1024x1536"
}

// ParseSize reads "WxH". Malformed values yield zeros.
func ParseSize(s string) (int, int) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return width, height
}

// DALLESource generates a featured image from the article title.
type DALLESource struct {
	client *DALLEClient
	size   string
}

// NewDALLESource creates a source requesting images of size (snapped to a supported size).
func NewDALLESource(client *DALLEClient, size string) *DALLESource {
	return &DALLESource{client: client, size: GetImageSize(ParseSize(size))}
}

func (s *DALLESource) Name() string { return "dalle" }

// Fetch implements Source.
func (s *DALLESource) Fetch(ctx context.Context, req Request) (*Image, error) {
	size := s.size
	if req.Size != "" {
		size = GetImageSize(ParseSize(req.Size))
	}

	resp, err := s.client.GenerateImage(ctx, buildImagePrompt(req), size)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no image generated: %w", core.ErrImage)
	}

	result := resp.Data[0]
	switch {
	case result.B64JSON != "":
		data, err := base64.StdEncoding.DecodeString(result.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 image: %w", err)
		}
		return &Image{Data: data, ContentType: http.DetectContentType(data), Source: s.Name()}, nil
	case result.URL != "":
		data, contentType, err := download(ctx, s.client.httpClient, result.URL)
		if err != nil {
			return nil, err
		}
		return &Image{Data: data, ContentType: contentType, Source: s.Name(), SourceURL: result.URL}, nil
	default:
		return nil, fmt.Errorf("no image data received: %w", core.ErrImage)
	}
}

func buildImagePrompt(req Request) string {
	subject := req.Title
	if subject == "" {
		subject = req.Keyword
	}
	return fmt.Sprintf("Professional editorial blog header photograph about %q. Clean composition, natural lighting, no text, no logos, no watermarks.", subject)
}
