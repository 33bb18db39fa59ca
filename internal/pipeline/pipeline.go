package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"blogwire/internal/core"
	"blogwire/internal/logger"
	"blogwire/internal/persistence"
	"blogwire/internal/runlock"
	"blogwire/internal/textutil"

	"github.com/google/uuid"
)

// Stage names used in logs, metrics and StageError.
const (
	StageSelected   = "selected"
	StageGenerating = "generating"
	StageLinking    = "linking"
	StageImaging    = "imaging"
	StagePersisting = "persisting"
)

// maxSlugAttempts bounds re-slugging when a concurrent insert takes the slug first.
const maxSlugAttempts = 3

// Pipeline orchestrates the publication cycle: topic selection, duplicate
// detection, generation, link injection, imaging and persistence.
type Pipeline struct {
	// Core components
	db        persistence.Database
	generator ArticleGenerator
	injector  LinkInjector
	dedup     DuplicateChecker

	// Optional components
	discoverer TopicDiscoverer
	images     ImageProducer
	fallback   KeywordSource
	locker     runlock.Locker
	recorder   Recorder

	config  *Config
	now     func() time.Time
	rand    *rand.Rand
	log     *logger.Logger
	closers []func()
}

// Config holds pipeline configuration
type Config struct {
	PostsPerCycle      int           // Articles per cycle when the caller passes no count
	DiscoverMultiplier int           // Candidates fetched per requested article
	LockName           string        // Run lock name
	LockTTL            time.Duration // Stale lock timeout
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		PostsPerCycle:      1,
		DiscoverMultiplier: 2,
		LockName:           "publication_cycle",
		LockTTL:            runlock.DefaultTTL,
	}
}

// Components are the collaborators of a Pipeline. Discoverer, Images, Fallback,
// Locker and Recorder may be nil.
type Components struct {
	DB         persistence.Database
	Generator  ArticleGenerator
	Injector   LinkInjector
	Dedup      DuplicateChecker
	Discoverer TopicDiscoverer
	Images     ImageProducer
	Fallback   KeywordSource
	Locker     runlock.Locker
	Recorder   Recorder
}

// NewPipeline creates a new pipeline with all dependencies
func NewPipeline(c Components, config *Config) *Pipeline {
	if config == nil {
		config = DefaultConfig()
	}
	recorder := c.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Pipeline{
		db:         c.DB,
		generator:  c.Generator,
		injector:   c.Injector,
		dedup:      c.Dedup,
		discoverer: c.Discoverer,
		images:     c.Images,
		fallback:   c.Fallback,
		locker:     c.Locker,
		recorder:   recorder,
		config:     config,
		now:        time.Now,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:        logger.Get(),
	}
}

// WithLogger replaces the logger.
func (p *Pipeline) WithLogger(l *logger.Logger) *Pipeline {
	p.log = l
	return p
}

// Close releases clients opened by the Builder.
func (p *Pipeline) Close() {
	for _, c := range p.closers {
		c()
	}
	p.closers = nil
}

// CycleOptions configures one cycle
type CycleOptions struct {
	Count    int    // Articles to attempt; 0 uses Config.PostsPerCycle
	Keyword  string // Explicit keyword; bypasses the topic store
	Discover bool   // Fetch trending topics before selecting
}

// OutcomeStatus is the terminal state of one candidate
type OutcomeStatus string

const (
	OutcomePublished OutcomeStatus = "published"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// Outcome records what happened to one candidate
type Outcome struct {
	TopicID   string        `json:"topic_id,omitempty"`
	Keyword   string        `json:"keyword"`
	Status    OutcomeStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	ArticleID string        `json:"article_id,omitempty"`
	Article   *core.Article `json:"article,omitempty"`
	Err       error         `json:"-"`
}

// Success reports whether the candidate was published.
func (o *Outcome) Success() bool {
	return o.Status == OutcomePublished
}

// Message is a human-readable summary of the outcome.
func (o *Outcome) Message() string {
	if o.Success() && o.Article != nil {
		return fmt.Sprintf("Published %q at /%s", o.Article.Title, o.Article.Slug)
	}
	msg := fmt.Sprintf("Skipped %q (%s)", o.Keyword, o.Reason)
	if o.Err != nil {
		msg += ": " + o.Err.Error()
	}
	return msg
}

// CycleResult contains the output of one cycle
type CycleResult struct {
	RunID      string         `json:"run_id"`
	Published  []core.Article `json:"published"`
	Outcomes   []Outcome      `json:"outcomes"`
	SkipCounts map[string]int `json:"skip_counts"`
	Discovered int            `json:"discovered"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Skipped returns the number of skipped candidates.
func (r *CycleResult) Skipped() int {
	n := 0
	for _, c := range r.SkipCounts {
		n += c
	}
	return n
}

func (r *CycleResult) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Success() {
		r.Published = append(r.Published, *o.Article)
		return
	}
	r.SkipCounts[o.Reason]++
}

// RunCycle executes one publication cycle. Candidates are processed sequentially;
// one candidate's failure never stops the rest. An error is returned only when the
// cycle cannot start (lock held, topic store unreadable).
func (p *Pipeline) RunCycle(ctx context.Context, opts CycleOptions) (*CycleResult, error) {
	count := opts.Count
	if count <= 0 {
		count = max(p.config.PostsPerCycle, 1)
	}

	result := &CycleResult{
		RunID:      uuid.NewString(),
		SkipCounts: map[string]int{},
		StartedAt:  p.now().UTC(),
	}
	log := p.log.With("run_id", result.RunID)

	if p.locker != nil {
		lease, err := p.locker.Acquire(ctx, p.config.LockName, p.config.LockTTL)
		if err != nil {
			log.Warn("Cycle not started", "error", err.Error())
			return nil, fmt.Errorf("failed to start cycle: %w", err)
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("Failed to release run lock", "error", err.Error())
			}
		}()
	}

	p.recorder.CycleStarted()
	log.Info("Starting publication cycle", "count", count, "keyword", opts.Keyword, "discover", opts.Discover)

	if opts.Keyword != "" {
		result.record(p.processAdHoc(ctx, log, strings.TrimSpace(opts.Keyword), 0))
		return p.finish(log, result), nil
	}

	if opts.Discover && p.discoverer != nil {
		saved, err := p.DiscoverTopics(ctx, count*max(p.config.DiscoverMultiplier, 1))
		if err != nil {
			log.Warn("Topic discovery failed, continuing with stored topics", "error", err.Error())
		}
		result.Discovered = len(saved)
	}

	pending, err := p.db.Topics().ListPending(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending topics: %w", err)
	}

	if len(pending) == 0 {
		for _, keyword := range p.fallbackKeywords(log, count) {
			result.record(p.processAdHoc(ctx, log, keyword, len(result.Published)))
		}
		return p.finish(log, result), nil
	}

	for _, topic := range pending {
		if err := ctx.Err(); err != nil {
			log.Warn("Cycle cancelled", "remaining", len(pending)-len(result.Outcomes))
			break
		}
		result.record(p.processTopic(ctx, log, topic, len(result.Published)))
	}
	return p.finish(log, result), nil
}

// GenerateOne publishes a single article for keyword, bypassing the topic store.
func (p *Pipeline) GenerateOne(ctx context.Context, keyword string) *Outcome {
	result, err := p.RunCycle(ctx, CycleOptions{Count: 1, Keyword: keyword})
	if err != nil {
		return &Outcome{Keyword: keyword, Status: OutcomeSkipped, Reason: core.ReasonFor(err), Err: err}
	}
	return &result.Outcomes[0]
}

// DiscoverTopics fetches up to maxResults trending topics and stores the new ones.
func (p *Pipeline) DiscoverTopics(ctx context.Context, maxResults int) ([]core.Topic, error) {
	if p.discoverer == nil {
		return nil, errors.New("topic discovery is not configured")
	}
	start := p.now()
	discovered := p.discoverer.Discover(ctx, maxResults)
	saved, err := p.discoverer.SaveNew(ctx, discovered)
	p.recorder.ObserveStage("discovering", start)
	if err != nil {
		return saved, err
	}
	p.log.Info("Discovered topics", "found", len(discovered), "saved", len(saved))
	return saved, nil
}

func (p *Pipeline) finish(log *logger.Logger, result *CycleResult) *CycleResult {
	result.FinishedAt = p.now().UTC()
	log.Info("Publication cycle finished",
		"published", len(result.Published),
		"skipped", result.Skipped(),
		"skip_counts", result.SkipCounts,
		"duration", result.FinishedAt.Sub(result.StartedAt).String())
	return result
}

// processTopic claims a pending topic and runs it through the stages. The topic ends
// completed (inside the article transaction) or skipped with a reason.
func (p *Pipeline) processTopic(ctx context.Context, log *logger.Logger, topic core.Topic, articlesSoFar int) Outcome {
	log = log.With("topic_id", topic.ID, "keyword", topic.Keyword)
	outcome := Outcome{TopicID: topic.ID, Keyword: topic.Keyword}

	claimed, err := p.db.Topics().Claim(ctx, topic.ID)
	if err != nil || !claimed {
		if err == nil {
			err = errors.New("topic is no longer pending")
		}
		return p.skipped(log, outcome, &core.StageError{Stage: StageSelected, Reason: core.ReasonClaimFailed, Err: err})
	}

	topicID := topic.ID
	article, err := p.produce(ctx, log, topic.Keyword, &topicID, articlesSoFar)
	if err != nil && ctx.Err() != nil {
		// interrupted, not failed: the topic stays eligible for the next cycle
		if relErr := p.db.Topics().Release(context.WithoutCancel(ctx), topic.ID); relErr != nil {
			log.Error("Failed to release interrupted topic", relErr)
		}
		return p.skipped(log, outcome, interrupted(err))
	}
	if err != nil {
		if skipErr := p.db.Topics().Skip(context.WithoutCancel(ctx), topic.ID, core.ReasonFor(err), p.now()); skipErr != nil {
			log.Error("Failed to mark topic skipped", skipErr)
		}
		return p.skipped(log, outcome, err)
	}
	return p.published(log, outcome, article)
}

func (p *Pipeline) processAdHoc(ctx context.Context, log *logger.Logger, keyword string, articlesSoFar int) Outcome {
	log = log.With("keyword", keyword)
	outcome := Outcome{Keyword: keyword}
	if keyword == "" {
		return p.skipped(log, outcome, core.NewStageError(StageSelected, fmt.Errorf("empty keyword: %w", core.ErrValidation)))
	}

	article, err := p.produce(ctx, log, keyword, nil, articlesSoFar)
	if err != nil {
		if ctx.Err() != nil {
			err = interrupted(err)
		}
		return p.skipped(log, outcome, err)
	}
	return p.published(log, outcome, article)
}

// interrupted re-labels a stage failure caused by the caller cancelling ctx.
func interrupted(err error) error {
	stage := ""
	var se *core.StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	return &core.StageError{Stage: stage, Reason: core.ReasonCancelled, Err: err}
}

func (p *Pipeline) skipped(log *logger.Logger, o Outcome, err error) Outcome {
	o.Status = OutcomeSkipped
	o.Reason = core.ReasonFor(err)
	o.Err = err

	stage := ""
	var se *core.StageError
	if errors.As(err, &se) {
		stage = se.Stage
	}
	log.Warn("Candidate skipped", "stage", stage, "reason", o.Reason, "error", err.Error())
	p.recorder.Skipped(o.Reason)
	return o
}

func (p *Pipeline) published(log *logger.Logger, o Outcome, article *core.Article) Outcome {
	o.Status = OutcomePublished
	o.ArticleID = article.ID
	o.Article = article
	log.Info("Article published", "article_id", article.ID, "slug", article.Slug, "word_count", article.WordCount)
	p.recorder.Published()
	return o
}

// produce runs selected -> generating -> linking -> imaging -> persisting for keyword.
// Every returned error is a *core.StageError.
func (p *Pipeline) produce(ctx context.Context, log *logger.Logger, keyword string, topicID *string, articlesSoFar int) (*core.Article, error) {
	// selected: dedup before spending a generation call
	start := p.now()
	existing, err := p.db.Articles().ListPublishedSummaries(ctx)
	if err != nil {
		return nil, core.NewStageError(StageSelected, err)
	}
	if match, dup := p.dedup.TopicCovered(keyword, existing); dup {
		return nil, core.NewStageError(StageSelected,
			fmt.Errorf("covered by %q (%s): %w", match.Article.Title, match.Rule, core.ErrDuplicate))
	}
	p.recorder.ObserveStage(StageSelected, start)

	// generating
	start = p.now()
	log.Debug("Generating article", "stage", StageGenerating)
	draft, err := p.generator.GenerateArticle(ctx, keyword)
	p.recorder.ObserveStage(StageGenerating, start)
	if err != nil {
		return nil, core.NewStageError(StageGenerating, err)
	}
	article := &core.Article{
		Title:           strings.TrimSpace(draft.Title),
		Slug:            textutil.Slugify(draft.Title),
		Body:            draft.Body,
		Excerpt:         draft.Excerpt,
		MetaDescription: draft.MetaDescription,
		MetaKeywords:    draft.MetaKeywords,
		Status:          core.ArticleStatusPublished,
		WordCount:       draft.WordCount,
		Keyword:         keyword,
		TopicID:         topicID,
	}
	if !article.IsPublishable() {
		return nil, core.NewStageError(StageGenerating, fmt.Errorf("draft missing title, slug or body: %w", core.ErrValidation))
	}
	if match, dup := p.dedup.TitleTaken(draft.Title, existing); dup {
		return nil, core.NewStageError(StageGenerating,
			fmt.Errorf("title %q too close to %q: %w", draft.Title, match.Article.Title, core.ErrDuplicate))
	}

	// linking: never fatal
	start = p.now()
	if p.injector != nil {
		injected, err := p.injector.Inject(ctx, article.Body, articlesSoFar)
		if err != nil {
			log.Warn("Affiliate link injection failed, publishing without links", "stage", StageLinking, "error", err.Error())
		} else {
			article.Body = injected.Body
			log.Debug("Affiliate links injected", "stage", StageLinking, "links", len(injected.Links))
		}
	}
	p.recorder.ObserveStage(StageLinking, start)

	// imaging: never fatal
	if p.images != nil {
		start = p.now()
		imageURL, err := p.images.ProduceFeaturedImage(ctx, article.Title, keyword, splitKeywords(draft.MetaKeywords))
		p.recorder.ObserveStage(StageImaging, start)
		if err != nil {
			log.Warn("Featured image failed, publishing without image", "stage", StageImaging, "error", err.Error())
		} else {
			article.FeaturedImageURL = imageURL
		}
	}

	// persisting
	start = p.now()
	publishedAt := p.now().UTC()
	article.PublishedAt = &publishedAt
	err = p.persist(ctx, article)
	p.recorder.ObserveStage(StagePersisting, start)
	if err != nil {
		return nil, &core.StageError{Stage: StagePersisting, Reason: core.ReasonStorageFailed, Err: err}
	}
	return article, nil
}

// persist picks a free slug and writes the article and the topic completion in one
// transaction, so a failure leaves neither behind.
func (p *Pipeline) persist(ctx context.Context, article *core.Article) error {
	base := article.Slug
	var err error
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		article.Slug, err = textutil.UniqueSlug(base, func(s string) (bool, error) {
			return p.db.Articles().SlugExists(ctx, s)
		})
		if err != nil {
			return err
		}

		err = persistence.WithTx(ctx, p.db, func(r persistence.Repositories) error {
			if err := r.Articles().Create(ctx, article); err != nil {
				return err
			}
			if article.TopicID != nil {
				return r.Topics().Complete(ctx, *article.TopicID, *article.PublishedAt)
			}
			return nil
		})
		if !errors.Is(err, persistence.ErrSlugConflict) {
			return err
		}
		article.ID = ""
	}
	return err
}

// fallbackKeywords samples up to count keywords from the fallback source.
func (p *Pipeline) fallbackKeywords(log *logger.Logger, count int) []string {
	if p.fallback == nil {
		log.Info("No pending topics")
		return nil
	}
	keywords, err := p.fallback.Keywords()
	if err != nil {
		log.Warn("Failed to read fallback keywords", "error", err.Error())
		return nil
	}
	if len(keywords) == 0 {
		log.Info("No pending topics and no fallback keywords")
		return nil
	}

	picked := make([]string, 0, min(count, len(keywords)))
	for _, i := range p.rand.Perm(len(keywords)) {
		if len(picked) == count {
			break
		}
		picked = append(picked, keywords[i])
	}
	log.Info("No pending topics, using fallback keywords", "count", len(picked))
	return picked
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
