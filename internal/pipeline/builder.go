package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blogwire/internal/affiliate"
	"blogwire/internal/config"
	"blogwire/internal/dedup"
	"blogwire/internal/generator"
	"blogwire/internal/llm"
	"blogwire/internal/logger"
	"blogwire/internal/metrics"
	"blogwire/internal/persistence"
	"blogwire/internal/retry"
	"blogwire/internal/runlock"
	"blogwire/internal/trends"
	"blogwire/internal/visual"
)

// Builder helps construct a fully configured Pipeline from configuration
type Builder struct {
	cfg        *config.Config
	db         persistence.Database
	text       generator.TextGenerator
	images     ImageProducer
	discoverer TopicDiscoverer
	locker     runlock.Locker
	metrics    *metrics.Collector
	log        *logger.Logger
	skipImages bool
	skipLock   bool
}

// NewBuilder creates a new pipeline builder for cfg
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg, log: logger.Get()}
}

// WithDatabase sets the database
func (b *Builder) WithDatabase(db persistence.Database) *Builder {
	b.db = db
	return b
}

// WithTextGenerator replaces the Gemini client
func (b *Builder) WithTextGenerator(text generator.TextGenerator) *Builder {
	b.text = text
	return b
}

// WithImageProducer replaces the configured image processor
func (b *Builder) WithImageProducer(images ImageProducer) *Builder {
	b.images = images
	return b
}

// WithDiscoverer replaces the Google Trends discoverer
func (b *Builder) WithDiscoverer(d TopicDiscoverer) *Builder {
	b.discoverer = d
	return b
}

// WithLocker replaces the configured run lock
func (b *Builder) WithLocker(l runlock.Locker) *Builder {
	b.locker = l
	return b
}

// WithMetrics records cycle and image metrics on c
func (b *Builder) WithMetrics(c *metrics.Collector) *Builder {
	b.metrics = c
	return b
}

// WithLogger sets the logger handed to every component
func (b *Builder) WithLogger(l *logger.Logger) *Builder {
	b.log = l
	return b
}

// WithoutImages disables featured images
func (b *Builder) WithoutImages() *Builder {
	b.skipImages = true
	return b
}

// WithoutLock disables the run lock
func (b *Builder) WithoutLock() *Builder {
	b.skipLock = true
	return b
}

// Build constructs a fully configured Pipeline
func (b *Builder) Build(ctx context.Context) (*Pipeline, error) {
	// Validate required components
	if b.cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if b.db == nil {
		return nil, fmt.Errorf("database is required")
	}
	cfg := b.cfg
	policy := retry.FromConfig(cfg.Retry)
	var closers []func()

	text := b.text
	if text == nil {
		client, err := llm.NewClient(llm.Options{
			APIKey:  cfg.AI.Gemini.APIKey,
			Model:   cfg.AI.Gemini.Model,
			Timeout: config.Duration(cfg.AI.Gemini.Timeout, llm.DefaultTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create text generation client: %w", err)
		}
		closers = append(closers, client.Close)
		text = client
	}
	gen := generator.New(retry.WrapTextGenerator(text, policy),
		generator.ConfigFromSettings(cfg.Content, cfg.AI.Gemini, cfg.App.Author)).
		WithLogger(b.log)

	injector := affiliate.NewInjector(b.db.AffiliateLinks(), cfg.Affiliate.MaxLinksPerArticle).
		WithLogger(b.log)
	checker := dedup.NewChecker(cfg.Content.TitleSimilarity, cfg.Content.TopicSimilarity, cfg.Content.WordOverlap)

	discoverer := b.discoverer
	if discoverer == nil && cfg.Trends.Enabled {
		src := trends.NewGoogleTrendsSource(cfg.Trends.FeedURL, config.Duration(cfg.Trends.Timeout, 15*time.Second))
		discoverer = trends.NewDiscoverer(
			retry.WrapTrendSource(src, policy),
			b.db.Topics(),
			cfg.Trends.Geos,
			cfg.Trends.DefaultCategory,
			config.Duration(cfg.Trends.RateLimit, time.Second),
		).WithLogger(b.log)
	}

	var observer visual.SizeObserver
	var recorder Recorder
	if b.metrics != nil {
		observer = b.metrics
		recorder = b.metrics
	}

	images := b.images
	if images == nil && !b.skipImages && cfg.Image.Enabled {
		processor, err := NewImageProcessor(ctx, cfg.Image, cfg.AI.OpenAI, policy, observer)
		if err != nil {
			return nil, err
		}
		if processor != nil {
			images = processor.WithLogger(b.log)
		}
	}

	var fallback KeywordSource
	if cfg.Content.FallbackTopicsFile != "" {
		fallback = trends.NewFileSource(cfg.Content.FallbackTopicsFile)
	}

	locker := b.locker
	if locker == nil && !b.skipLock {
		l, err := runlock.NewFromConfig(ctx, cfg.Lock, b.db)
		if err != nil {
			return nil, fmt.Errorf("failed to create run lock: %w", err)
		}
		locker = l
	}

	pcfg := DefaultConfig()
	if cfg.Content.PostsPerCycle > 0 {
		pcfg.PostsPerCycle = cfg.Content.PostsPerCycle
	}
	pcfg.LockTTL = config.Duration(cfg.Lock.TTL, runlock.DefaultTTL)

	p := NewPipeline(Components{
		DB:         b.db,
		Generator:  gen,
		Injector:   injector,
		Dedup:      checker,
		Discoverer: discoverer,
		Images:     images,
		Fallback:   fallback,
		Locker:     locker,
		Recorder:   recorder,
	}, pcfg).WithLogger(b.log)
	p.closers = closers
	return p, nil
}

// NewImageProcessor builds the featured image chain from configuration. Sources
// missing credentials are left out; with no usable source and no placeholder it
// returns nil.
func NewImageProcessor(ctx context.Context, cfg config.Image, openai config.OpenAIConfig, policy retry.Policy, observer visual.SizeObserver) (*visual.Processor, error) {
	log := logger.Get()

	var sources []visual.Source
	for _, name := range cfg.Sources {
		var src visual.Source
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "dalle", "openai":
			if openai.APIKey == "" {
				log.Warn("Skipping image source without API key", "source", name)
				continue
			}
			client := visual.NewDALLEClient(openai.APIKey, openai.ImageModel, openai.BaseURL, config.Duration(openai.Timeout, 0))
			src = visual.NewDALLESource(client, cfg.RequestSize)
		case "unsplash":
			if cfg.Unsplash.AccessKey == "" {
				log.Warn("Skipping image source without API key", "source", name)
				continue
			}
			src = visual.NewUnsplashSource(cfg.Unsplash.AccessKey, "", 0)
		case "google":
			g, err := visual.NewGoogleImageSource(ctx, cfg.Google.APIKey, cfg.Google.SearchID, 0)
			if err != nil {
				log.Warn("Skipping image source", "source", name, "error", err.Error())
				continue
			}
			src = g
		default:
			return nil, fmt.Errorf("unknown image source %q", name)
		}
		sources = append(sources, retry.WrapImageSource(src, policy))
	}
	if len(sources) == 0 && cfg.PlaceholderURL == "" {
		log.Warn("No featured image source configured, articles will have no image")
		return nil, nil
	}

	var store visual.ObjectStore
	switch cfg.Storage {
	case "minio":
		minio, err := visual.NewMinioStore(visual.MinIOConfig{
			Endpoint:      cfg.MinIO.Endpoint,
			AccessKey:     cfg.MinIO.AccessKey,
			SecretKey:     cfg.MinIO.SecretKey,
			Bucket:        cfg.MinIO.Bucket,
			UseSSL:        cfg.MinIO.UseSSL,
			PublicBaseURL: cfg.MinIO.PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		if err := minio.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		store = minio
	default:
		store = visual.NewFilesystemStore(cfg.LocalDir, cfg.PublicBaseURL)
	}

	processor := visual.NewProcessor(sources, visual.NewOptimizer(cfg.MaxWidth, cfg.Quality), store).
		WithPlaceholder(cfg.PlaceholderURL)
	if observer != nil {
		processor = processor.WithObserver(observer)
	}
	return processor, nil
}
