package retry

import (
	"context"

	"blogwire/internal/core"
	"blogwire/internal/llm"
	"blogwire/internal/logger"
	"blogwire/internal/trends"
	"blogwire/internal/visual"
)

// TextGenerator matches generator.TextGenerator.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, opts llm.TextGenerationOptions) (string, error)
}

type textGenerator struct {
	next   TextGenerator
	policy Policy
	log    *logger.Logger
}

// WrapTextGenerator retries transport failures of next.
func WrapTextGenerator(next TextGenerator, p Policy) TextGenerator {
	if p.MaxAttempts <= 1 {
		return next
	}
	return &textGenerator{next: next, policy: p, log: logger.Get()}
}

func (t *textGenerator) GenerateText(ctx context.Context, prompt string, opts llm.TextGenerationOptions) (string, error) {
	var out string
	err := do(ctx, t.policy, "generate_text", func(ctx context.Context) error {
		var err error
		out, err = t.next.GenerateText(ctx, prompt, opts)
		return err
	}, t.log)
	return out, err
}

type trendSource struct {
	next   trends.Source
	policy Policy
	log    *logger.Logger
}

// WrapTrendSource retries transport failures of a trend source.
func WrapTrendSource(next trends.Source, p Policy) trends.Source {
	if p.MaxAttempts <= 1 {
		return next
	}
	return &trendSource{next: next, policy: p, log: logger.Get()}
}

func (s *trendSource) Fetch(ctx context.Context, q trends.Query) ([]core.DiscoveredTopic, error) {
	var out []core.DiscoveredTopic
	err := do(ctx, s.policy, "fetch_trends", func(ctx context.Context) error {
		var err error
		out, err = s.next.Fetch(ctx, q)
		return err
	}, s.log)
	return out, err
}

type imageSource struct {
	next   visual.Source
	policy Policy
	log    *logger.Logger
}

// WrapImageSource retries transport failures of an image source.
func WrapImageSource(next visual.Source, p Policy) visual.Source {
	if p.MaxAttempts <= 1 {
		return next
	}
	return &imageSource{next: next, policy: p, log: logger.Get()}
}

func (s *imageSource) Name() string { return s.next.Name() }

func (s *imageSource) Fetch(ctx context.Context, req visual.Request) (*visual.Image, error) {
	var out *visual.Image
	err := do(ctx, s.policy, "fetch_image_"+s.next.Name(), func(ctx context.Context) error {
		var err error
		out, err = s.next.Fetch(ctx, req)
		return err
	}, s.log)
	return out, err
}
