package pipeline

import (
	"context"
	"time"

	"blogwire/internal/affiliate"
	"blogwire/internal/core"
	"blogwire/internal/dedup"
)

// TopicDiscoverer finds trending keywords and stores the new ones
type TopicDiscoverer interface {
	// Discover returns up to maxResults candidates; transport failures yield fewer, never an error
	Discover(ctx context.Context, maxResults int) []core.DiscoveredTopic

	// SaveNew inserts the candidates whose normalized keyword is not stored yet
	SaveNew(ctx context.Context, topics []core.DiscoveredTopic) ([]core.Topic, error)
}

// ArticleGenerator turns a keyword into a draft article
type ArticleGenerator interface {
	GenerateArticle(ctx context.Context, keyword string) (*core.Draft, error)
}

// LinkInjector rewrites keyword occurrences into affiliate links
type LinkInjector interface {
	// Inject returns the body unchanged together with an error when links cannot be loaded
	Inject(ctx context.Context, body string, articlesSoFar int) (affiliate.Result, error)
}

// ImageProducer produces the featured image for an article (optional)
type ImageProducer interface {
	ProduceFeaturedImage(ctx context.Context, title, keyword string, keywords []string) (string, error)
}

// DuplicateChecker detects subjects that already have a published article
type DuplicateChecker interface {
	// TopicCovered runs before generation
	TopicCovered(keyword string, existing []core.ArticleSummary) (*dedup.Match, bool)

	// TitleTaken runs on the generated title
	TitleTaken(title string, existing []core.ArticleSummary) (*dedup.Match, bool)
}

// KeywordSource supplies fallback keywords when no topic is pending (optional)
type KeywordSource interface {
	Keywords() ([]string, error)
}

// Recorder receives cycle metrics (optional)
type Recorder interface {
	CycleStarted()
	Published()
	Skipped(reason string)
	ObserveStage(stage string, start time.Time)
}

type nopRecorder struct{}

func (nopRecorder) CycleStarted()                  {}
func (nopRecorder) Published()                     {}
func (nopRecorder) Skipped(string)                 {}
func (nopRecorder) ObserveStage(string, time.Time) {}
