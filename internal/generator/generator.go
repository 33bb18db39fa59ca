// Package generator turns a keyword into a parsed article draft using a text-generation service.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"blogwire/internal/config"
	"blogwire/internal/core"
	"blogwire/internal/llm"
	"blogwire/internal/logger"
)

// TextGenerator is the narrow contract of the text-generation service.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, options llm.TextGenerationOptions) (string, error)
}

// WordCountPolicy decides what happens to a draft whose length is out of bounds.
type WordCountPolicy string

const (
	PolicyAccept WordCountPolicy = "accept" // keep the draft and log a warning
	PolicyRetry  WordCountPolicy = "retry"  // generate once more and keep the closer draft
	PolicyReject WordCountPolicy = "reject" // fail with ErrValidation
)

// Config holds generation parameters.
type Config struct {
	MinWords    int // target range given to the service
	MaxWords    int
	LowerBound  int // accepted range after tolerance
	UpperBound  int
	Policy      WordCountPolicy
	Author      string
	MaxTokens   int32
	Temperature float32
}

// ConfigFromSettings builds a Config from the loaded application configuration.
func ConfigFromSettings(c config.Content, ai config.GeminiConfig, author string) Config {
	lo, hi := c.WordCountBounds()
	return Config{
		MinWords:    c.MinWordCount,
		MaxWords:    c.MaxWordCount,
		LowerBound:  lo,
		UpperBound:  hi,
		Policy:      WordCountPolicy(c.WordCountPolicy),
		Author:      author,
		MaxTokens:   ai.MaxTokens,
		Temperature: ai.Temperature,
	}
}

// Generator produces article drafts.
type Generator struct {
	text TextGenerator
	cfg  Config
	log  *logger.Logger
}

// New creates a Generator. A zero policy behaves as PolicyRetry.
func New(text TextGenerator, cfg Config) *Generator {
	if cfg.Policy == "" {
		cfg.Policy = PolicyRetry
	}
	if cfg.UpperBound == 0 {
		cfg.LowerBound, cfg.UpperBound = cfg.MinWords, cfg.MaxWords
	}
	return &Generator{text: text, cfg: cfg, log: logger.Get()}
}

// WithLogger replaces the logger.
func (g *Generator) WithLogger(l *logger.Logger) *Generator {
	g.log = l
	return g
}

// GenerateArticle asks the service for an article about keyword and parses it.
// Transport failures wrap core.ErrTransport, unusable output core.ErrGeneration and
// drafts that fail the checks core.ErrValidation.
func (g *Generator) GenerateArticle(ctx context.Context, keyword string) (*core.Draft, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("keyword is empty: %w", core.ErrValidation)
	}

	draft, err := g.attempt(ctx, keyword)
	if err != nil {
		return nil, err
	}
	if g.inBounds(draft.WordCount) {
		return draft, nil
	}

	log := g.log.With("keyword", keyword, "word_count", draft.WordCount,
		"min", g.cfg.LowerBound, "max", g.cfg.UpperBound)

	switch g.cfg.Policy {
	case PolicyReject:
		return nil, fmt.Errorf("word count %d outside [%d, %d]: %w",
			draft.WordCount, g.cfg.LowerBound, g.cfg.UpperBound, core.ErrValidation)
	case PolicyRetry:
		log.Warn("Draft length out of bounds, retrying once")
		second, err := g.attempt(ctx, keyword)
		if err != nil {
			log.Warn("Retry failed, keeping first draft", "error", err.Error())
			return draft, nil
		}
		if g.distance(second.WordCount) < g.distance(draft.WordCount) {
			return second, nil
		}
		return draft, nil
	default:
		log.Warn("Draft length out of bounds, accepting")
		return draft, nil
	}
}

func (g *Generator) attempt(ctx context.Context, keyword string) (*core.Draft, error) {
	prompt := BuildPrompt(keyword, g.cfg.MinWords, g.cfg.MaxWords, g.cfg.Author)
	raw, err := g.text.GenerateText(ctx, prompt, llm.TextGenerationOptions{
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		if errors.Is(err, core.ErrTransport) || errors.Is(err, core.ErrGeneration) {
			return nil, fmt.Errorf("generate article for %q: %w", keyword, err)
		}
		return nil, fmt.Errorf("generate article for %q: %w: %w", keyword, core.ErrGeneration, err)
	}

	draft := parseResponse(raw, keyword)
	if strings.TrimSpace(draft.Body) == "" || draft.WordCount == 0 {
		return nil, fmt.Errorf("response for %q has no article body: %w", keyword, core.ErrValidation)
	}
	return draft, nil
}

func (g *Generator) inBounds(words int) bool {
	return words >= g.cfg.LowerBound && words <= g.cfg.UpperBound
}

// distance is how far words lies outside the accepted range.
func (g *Generator) distance(words int) int {
	switch {
	case words < g.cfg.LowerBound:
		return g.cfg.LowerBound - words
	case words > g.cfg.UpperBound:
		return words - g.cfg.UpperBound
	default:
		return 0
	}
}
