// Package llm wraps the Gemini text-generation API behind a small client used
// by the article generator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"blogwire/internal/core"

	"github.com/spf13/viper"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the default Gemini model used for article generation.
	DefaultModel = "gemini-2.5-flash"
	// DefaultTimeout bounds a single generation call.
	DefaultTimeout = 120 * time.Second
)

// ErrMissingAPIKey is returned by NewClient when no Gemini key is configured.
var ErrMissingAPIKey = errors.New("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")

// Client represents a client for interacting with an LLM.
type Client struct {
	apiKey    string
	modelName string
	timeout   time.Duration
	gClient   *genai.Client
}

// TextGenerationOptions contains options for text generation
type TextGenerationOptions struct {
	MaxTokens   int32   // Maximum number of tokens to generate
	Temperature float32 // Temperature for randomness (0.0 to 1.0)
	Model       string  // Model to use (optional, defaults to client's model)
}

// Options configures NewClient. Empty fields fall back to environment and viper.
type Options struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient creates a new LLM client.
// It supports multiple ways to get the API key (in order of preference):
// 1. Options.APIKey
// 2. Environment variable: GEMINI_API_KEY (or alternatives)
// 3. Viper configuration: ai.gemini.api_key
func NewClient(opts Options) (*Client, error) {
	apiKey := resolveAPIKey(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	modelName := opts.Model
	if modelName == "" {
		modelName = viper.GetString("ai.gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	gClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		apiKey:    apiKey,
		modelName: modelName,
		timeout:   timeout,
		gClient:   gClient,
	}, nil
}

func resolveAPIKey(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, env := range []string{"GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return viper.GetString("ai.gemini.api_key")
}

// GenerateText generates text using the LLM with specified options.
// Failures talking to the service wrap core.ErrTransport.
func (c *Client) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty: %w", core.ErrValidation)
	}

	modelName := c.modelName
	if options.Model != "" {
		modelName = options.Model
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	var config *genai.GenerateContentConfig
	if options.MaxTokens > 0 || options.Temperature > 0 {
		config = &genai.GenerateContentConfig{}
		if options.MaxTokens > 0 {
			config.MaxOutputTokens = options.MaxTokens
		}
		if options.Temperature > 0 {
			temp := options.Temperature
			config.Temperature = &temp
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.gClient.Models.GenerateContent(ctx, modelName, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w: %w", core.ErrTransport, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from LLM: %w", core.ErrGeneration)
	}

	return text, nil
}

// Close cleans up resources used by the client
func (c *Client) Close() {
	// The genai client holds no resources that need releasing
}

// GetModelName returns the model name used by this client
func (c *Client) GetModelName() string {
	return c.modelName
}
