package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blogwire/internal/affiliate"
	"blogwire/internal/core"
	"blogwire/internal/dedup"
	"blogwire/internal/logger"
	"blogwire/internal/persistence"
	"blogwire/internal/runlock"
	"blogwire/internal/trends"
)

// mockGenerator implements ArticleGenerator with an overridable function.
type mockGenerator struct {
	GenerateFunc func(ctx context.Context, keyword string) (*core.Draft, error)
	calls        []string
}

func (m *mockGenerator) GenerateArticle(ctx context.Context, keyword string) (*core.Draft, error) {
	m.calls = append(m.calls, keyword)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, keyword)
	}
	return draftFor(keyword), nil
}

func draftFor(keyword string) *core.Draft {
	body := strings.Repeat(fmt.Sprintf("Everything about %s in plain words. ", keyword), 50)
	return &core.Draft{
		Title:           keyword + " explained",
		Body:            body,
		Excerpt:         "About " + keyword,
		MetaDescription: "About " + keyword,
		MetaKeywords:    keyword + ", guide",
		WordCount:       2500,
	}
}

// mockImages implements ImageProducer.
type mockImages struct {
	ProduceFunc func(ctx context.Context, title, keyword string, keywords []string) (string, error)
}

func (m *mockImages) ProduceFeaturedImage(ctx context.Context, title, keyword string, keywords []string) (string, error) {
	return m.ProduceFunc(ctx, title, keyword, keywords)
}

// mockLocker implements runlock.Locker.
type mockLocker struct {
	AcquireFunc func(ctx context.Context, name string, ttl time.Duration) (runlock.Lease, error)
}

func (m *mockLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (runlock.Lease, error) {
	return m.AcquireFunc(ctx, name, ttl)
}

type staticKeywords []string

func (s staticKeywords) Keywords() ([]string, error) { return s, nil }

// trendFeed implements trends.Source.
type trendFeed []core.DiscoveredTopic

func (f trendFeed) Fetch(context.Context, trends.Query) ([]core.DiscoveredTopic, error) {
	return f, nil
}

type countingRecorder struct {
	cycles, published int
	skipped           map[string]int
}

func (c *countingRecorder) CycleStarted()                  { c.cycles++ }
func (c *countingRecorder) Published()                     { c.published++ }
func (c *countingRecorder) Skipped(reason string)          { c.skipped[reason]++ }
func (c *countingRecorder) ObserveStage(string, time.Time) {}

func newTestDB(t *testing.T) *persistence.SQLDB {
	t.Helper()
	db, err := persistence.Open(persistence.DriverSQLite, filepath.Join(t.TempDir(), "pipeline.db"), persistence.Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := persistence.NewMigrationManager(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func newTestPipeline(t *testing.T, db persistence.Database, gen ArticleGenerator, mutate func(*Components)) *Pipeline {
	t.Helper()
	c := Components{
		DB:        db,
		Generator: gen,
		Injector:  affiliate.NewInjector(db.AffiliateLinks(), 3).WithLogger(logger.Nop()),
		Dedup:     dedup.NewChecker(0, 0, 0),
	}
	if mutate != nil {
		mutate(&c)
	}
	p := NewPipeline(c, nil).WithLogger(logger.Nop())
	p.rand = rand.New(rand.NewSource(1))
	return p
}

var base = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func addTopic(t *testing.T, db persistence.Database, keyword string, score float64) *core.Topic {
	t.Helper()
	topic := &core.Topic{Keyword: keyword, TrendScore: score, Category: "trending", DiscoveredAt: base}
	if err := db.Topics().Create(context.Background(), topic); err != nil {
		t.Fatalf("Create topic %q failed: %v", keyword, err)
	}
	return topic
}

func addArticle(t *testing.T, db persistence.Database, title, slug, keyword string) {
	t.Helper()
	published := base
	article := &core.Article{
		Title: title, Slug: slug, Body: "body", WordCount: 1, Keyword: keyword,
		Status: core.ArticleStatusPublished, PublishedAt: &published,
	}
	if err := db.Articles().Create(context.Background(), article); err != nil {
		t.Fatalf("Create article failed: %v", err)
	}
}

func TestRunCycleMixedOutcomes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	keywords := []string{"electric cars", "sourdough baking", "marathon training", "home solar panels", "python programming"}
	for i, k := range keywords {
		addTopic(t, db, k, float64(100-i*10))
	}

	gen := &mockGenerator{GenerateFunc: func(_ context.Context, keyword string) (*core.Draft, error) {
		if keyword == "sourdough baking" || keyword == "home solar panels" {
			return nil, fmt.Errorf("gemini unavailable: %w", core.ErrTransport)
		}
		return draftFor(keyword), nil
	}}
	rec := &countingRecorder{skipped: map[string]int{}}
	p := newTestPipeline(t, db, gen, func(c *Components) { c.Recorder = rec })

	result, err := p.RunCycle(ctx, CycleOptions{Count: 5})
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(result.Published) != 3 {
		t.Errorf("Expected 3 published articles, got %d", len(result.Published))
	}
	if len(result.Outcomes) != 5 {
		t.Errorf("Expected 5 outcomes, got %d", len(result.Outcomes))
	}
	if result.SkipCounts[core.ReasonGenerationFailed] != 2 || result.Skipped() != 2 {
		t.Errorf("Expected 2 generation failures, got %v", result.SkipCounts)
	}

	stats, err := db.Topics().Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Completed != 3 || stats.Skipped != 2 || stats.Pending != 0 || stats.InProgress != 0 {
		t.Errorf("Unexpected topic stats %+v", stats)
	}

	articles, err := db.Articles().Stats(ctx)
	if err != nil {
		t.Fatalf("Article stats failed: %v", err)
	}
	if articles.Total != 3 || articles.Published != 3 {
		t.Errorf("Expected exactly 3 persisted articles, got %+v", articles)
	}

	for _, o := range result.Outcomes {
		if o.Success() {
			continue
		}
		topic, err := db.Topics().Get(ctx, o.TopicID)
		if err != nil {
			t.Fatalf("Get topic failed: %v", err)
		}
		if topic.Status != core.TopicStatusSkipped || topic.SkipReason == nil || *topic.SkipReason != core.ReasonGenerationFailed {
			t.Errorf("Expected %q skipped with generation_failed, got %s %v", o.Keyword, topic.Status, topic.SkipReason)
		}
	}

	if rec.cycles != 1 || rec.published != 3 || rec.skipped[core.ReasonGenerationFailed] != 2 {
		t.Errorf("Unexpected recorded metrics %+v", rec)
	}
}

func TestRunCycleSelectsHighestScore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	ai := addTopic(t, db, "ai", 80)
	travel := addTopic(t, db, "travel", 40)

	gen := &mockGenerator{}
	p := newTestPipeline(t, db, gen, nil)

	result, err := p.RunCycle(ctx, CycleOptions{Count: 1})
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(result.Published) != 1 {
		t.Fatalf("Expected 1 article, got %d", len(result.Published))
	}
	article := result.Published[0]
	if article.Keyword != "ai" || !strings.Contains(article.Title, "ai") || !strings.Contains(article.Body, "ai") {
		t.Errorf("Expected article about ai, got %q", article.Title)
	}
	if article.Status != core.ArticleStatusPublished || article.PublishedAt == nil || article.Slug != "ai-explained" {
		t.Errorf("Unexpected article %+v", article)
	}
	if article.TopicID == nil || *article.TopicID != ai.ID {
		t.Errorf("Expected article to reference topic %s", ai.ID)
	}

	got, _ := db.Topics().Get(ctx, ai.ID)
	if got.Status != core.TopicStatusCompleted || got.ProcessedAt == nil {
		t.Errorf("Expected ai completed, got %s", got.Status)
	}
	got, _ = db.Topics().Get(ctx, travel.ID)
	if got.Status != core.TopicStatusPending {
		t.Errorf("Expected travel pending, got %s", got.Status)
	}
}

func TestRunCycleOrdering(t *testing.T) {
	db := newTestDB(t)
	addTopic(t, db, "gardening", 10)
	addTopic(t, db, "chess openings", 50)
	addTopic(t, db, "kayaking", 30)

	gen := &mockGenerator{}
	p := newTestPipeline(t, db, gen, nil)

	if _, err := p.RunCycle(context.Background(), CycleOptions{Count: 3}); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	want := []string{"chess openings", "kayaking", "gardening"}
	if strings.Join(gen.calls, "|") != strings.Join(want, "|") {
		t.Errorf("Expected order %v, got %v", want, gen.calls)
	}
}

func TestDuplicateSkippedWithoutGeneration(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	addArticle(t, db, "Electric Cars Explained", "electric-cars-explained", "electric cars")
	topic := addTopic(t, db, "Electric  Cars", 90)

	gen := &mockGenerator{}
	p := newTestPipeline(t, db, gen, nil)

	outcome := p.GenerateOne(ctx, "ELECTRIC CARS")
	if outcome.Success() || outcome.Reason != core.ReasonDuplicate {
		t.Errorf("Expected duplicate skip, got %+v", outcome)
	}
	if !errors.Is(outcome.Err, core.ErrDuplicate) || !strings.Contains(outcome.Message(), "duplicate") {
		t.Errorf("Expected readable duplicate error, got %q", outcome.Message())
	}

	result, err := p.RunCycle(ctx, CycleOptions{Count: 1})
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if result.SkipCounts[core.ReasonDuplicate] != 1 {
		t.Errorf("Expected duplicate skip, got %v", result.SkipCounts)
	}
	if len(gen.calls) != 0 {
		t.Errorf("Expected no generation calls, got %v", gen.calls)
	}

	got, _ := db.Topics().Get(ctx, topic.ID)
	if got.Status != core.TopicStatusSkipped || got.SkipReason == nil || *got.SkipReason != core.ReasonDuplicate {
		t.Errorf("Expected topic skipped as duplicate, got %s %v", got.Status, got.SkipReason)
	}
}

func TestGeneratedTitleTaken(t *testing.T) {
	db := newTestDB(t)
	addArticle(t, db, "Quantum Computing Explained", "quantum-computing-explained", "qc")

	gen := &mockGenerator{GenerateFunc: func(_ context.Context, keyword string) (*core.Draft, error) {
		d := draftFor(keyword)
		d.Title = "Quantum Computing Explained!"
		return d, nil
	}}
	p := newTestPipeline(t, db, gen, nil)

	outcome := p.GenerateOne(context.Background(), "quantum computers")
	if outcome.Reason != core.ReasonDuplicate {
		t.Errorf("Expected duplicate after generation, got %+v", outcome)
	}
	if len(gen.calls) != 1 {
		t.Errorf("Expected one generation call, got %d", len(gen.calls))
	}
}

func TestGenerateOneValidationAndSuccess(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	gen := &mockGenerator{GenerateFunc: func(_ context.Context, keyword string) (*core.Draft, error) {
		if keyword == "empty" {
			return &core.Draft{Title: "Empty", Body: "  "}, nil
		}
		return draftFor(keyword), nil
	}}
	p := newTestPipeline(t, db, gen, nil)

	outcome := p.GenerateOne(ctx, "empty")
	if outcome.Reason != core.ReasonValidationFailed {
		t.Errorf("Expected validation_failed, got %q", outcome.Reason)
	}

	gen.GenerateFunc = func(_ context.Context, keyword string) (*core.Draft, error) {
		d := draftFor(keyword)
		d.Title = "!!! ???"
		return d, nil
	}
	if outcome = p.GenerateOne(ctx, "punctuation"); outcome.Reason != core.ReasonValidationFailed {
		t.Errorf("Expected title without slug characters rejected, got %q", outcome.Reason)
	}
	gen.GenerateFunc = nil
	gen.calls = nil

	outcome = p.GenerateOne(ctx, "  ")
	if outcome.Reason != core.ReasonValidationFailed || len(gen.calls) != 0 {
		t.Errorf("Expected blank keyword rejected before generation, got %q", outcome.Reason)
	}

	outcome = p.GenerateOne(ctx, "budget travel")
	if !outcome.Success() || outcome.Article == nil || outcome.ArticleID == "" {
		t.Fatalf("Expected success, got %s", outcome.Message())
	}
	if outcome.Article.TopicID != nil {
		t.Error("Expected ad-hoc article without topic")
	}
	if !strings.HasPrefix(outcome.Message(), "Published") {
		t.Errorf("Unexpected message %q", outcome.Message())
	}

	stored, err := db.Articles().GetBySlug(ctx, "budget-travel-explained")
	if err != nil || stored.WordCount != 2500 {
		t.Errorf("Expected stored article, got %v (%v)", stored, err)
	}
}

func TestSlugCollisionGetsSuffix(t *testing.T) {
	db := newTestDB(t)
	addArticle(t, db, "Something Else Entirely", "ai-explained", "unrelated")

	p := newTestPipeline(t, db, &mockGenerator{}, nil)
	outcome := p.GenerateOne(context.Background(), "ai")
	if !outcome.Success() {
		t.Fatalf("Expected success, got %s", outcome.Message())
	}
	if outcome.Article.Slug != "ai-explained-2" {
		t.Errorf("Expected suffixed slug, got %s", outcome.Article.Slug)
	}
}

func TestAffiliateLinksAndImage(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	link := &core.AffiliateLink{Keyword: "plain words", URL: "https://shop.example/words", Active: true}
	if err := db.AffiliateLinks().Create(ctx, link); err != nil {
		t.Fatalf("Create link failed: %v", err)
	}

	images := &mockImages{ProduceFunc: func(_ context.Context, title, keyword string, keywords []string) (string, error) {
		if keyword != "typing" || len(keywords) != 2 {
			t.Errorf("Unexpected image request %q %v", keyword, keywords)
		}
		return "/static/images/blog/typing.jpg", nil
	}}
	p := newTestPipeline(t, db, &mockGenerator{}, func(c *Components) { c.Images = images })

	outcome := p.GenerateOne(ctx, "typing")
	if !outcome.Success() {
		t.Fatalf("Expected success, got %s", outcome.Message())
	}
	if !strings.Contains(outcome.Article.Body, "[plain words](https://shop.example/words)") {
		t.Error("Expected affiliate link in body")
	}
	if strings.Count(outcome.Article.Body, "https://shop.example/words") != 1 {
		t.Error("Expected the link exactly once")
	}
	if outcome.Article.FeaturedImageURL != "/static/images/blog/typing.jpg" {
		t.Errorf("Unexpected image url %q", outcome.Article.FeaturedImageURL)
	}

	got, _ := db.AffiliateLinks().Get(ctx, link.ID)
	if got.InsertCount != 1 || got.ClickCount != 0 {
		t.Errorf("Expected one insertion and no clicks, got %d/%d", got.InsertCount, got.ClickCount)
	}
}

func TestImageFailureIsNonFatal(t *testing.T) {
	db := newTestDB(t)
	images := &mockImages{ProduceFunc: func(context.Context, string, string, []string) (string, error) {
		return "", core.ErrImage
	}}
	p := newTestPipeline(t, db, &mockGenerator{}, func(c *Components) { c.Images = images })

	outcome := p.GenerateOne(context.Background(), "typing")
	if !outcome.Success() {
		t.Fatalf("Expected success without image, got %s", outcome.Message())
	}
	if outcome.Article.FeaturedImageURL != "" {
		t.Errorf("Expected no image, got %q", outcome.Article.FeaturedImageURL)
	}
}

func TestRunCycleLocked(t *testing.T) {
	db := newTestDB(t)
	gen := &mockGenerator{}
	locker := &mockLocker{AcquireFunc: func(context.Context, string, time.Duration) (runlock.Lease, error) {
		return nil, core.ErrLocked
	}}
	p := newTestPipeline(t, db, gen, func(c *Components) { c.Locker = locker })

	if _, err := p.RunCycle(context.Background(), CycleOptions{Count: 1}); !errors.Is(err, core.ErrLocked) {
		t.Errorf("Expected ErrLocked, got %v", err)
	}
	if outcome := p.GenerateOne(context.Background(), "ai"); outcome.Reason != core.ReasonLocked {
		t.Errorf("Expected locked reason, got %q", outcome.Reason)
	}
	if len(gen.calls) != 0 {
		t.Errorf("Expected no generation while locked")
	}
}

func TestRunCycleReleasesDatabaseLock(t *testing.T) {
	db := newTestDB(t)
	p := newTestPipeline(t, db, &mockGenerator{}, func(c *Components) {
		c.Locker = runlock.NewDatabaseLock(db.RunLocks())
	})

	for i := 0; i < 2; i++ {
		if _, err := p.RunCycle(context.Background(), CycleOptions{Count: 1}); err != nil {
			t.Fatalf("RunCycle %d failed: %v", i, err)
		}
	}
}

func TestRunCycleFallbackKeywords(t *testing.T) {
	db := newTestDB(t)
	gen := &mockGenerator{}
	p := newTestPipeline(t, db, gen, func(c *Components) {
		c.Fallback = staticKeywords{"home espresso", "trail running", "indoor plants"}
	})

	result, err := p.RunCycle(context.Background(), CycleOptions{Count: 2})
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(result.Published) != 2 || len(gen.calls) != 2 {
		t.Fatalf("Expected 2 fallback articles, got %d (%v)", len(result.Published), gen.calls)
	}
	if gen.calls[0] == gen.calls[1] {
		t.Errorf("Expected distinct fallback keywords, got %v", gen.calls)
	}
	for _, a := range result.Published {
		if a.TopicID != nil {
			t.Errorf("Expected fallback article without topic, got %v", *a.TopicID)
		}
	}
}

func TestRunCycleDiscoversTopics(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	feed := trendFeed{
		{Keyword: "Solar Eclipse", SearchVolume: 500000, TrendScore: 100, Category: "trending"},
		{Keyword: "World Cup", SearchVolume: 200000, TrendScore: 40, Category: "trending"},
	}
	discoverer := trends.NewDiscoverer(feed, db.Topics(), []string{"US"}, "trending", 0).WithLogger(logger.Nop())

	gen := &mockGenerator{}
	p := newTestPipeline(t, db, gen, func(c *Components) { c.Discoverer = discoverer })

	result, err := p.RunCycle(ctx, CycleOptions{Count: 1, Discover: true})
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if result.Discovered != 2 {
		t.Errorf("Expected 2 discovered topics, got %d", result.Discovered)
	}
	if len(gen.calls) != 1 || gen.calls[0] != "Solar Eclipse" {
		t.Errorf("Expected highest scored topic first, got %v", gen.calls)
	}

	// A second discovery must not duplicate stored keywords.
	saved, err := p.DiscoverTopics(ctx, 10)
	if err != nil || len(saved) != 0 {
		t.Errorf("Expected no new topics, got %d (%v)", len(saved), err)
	}
}

func TestInterruptedTopicReturnsToPending(t *testing.T) {
	db := newTestDB(t)
	ai := addTopic(t, db, "ai", 80)
	travel := addTopic(t, db, "travel", 40)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &mockGenerator{GenerateFunc: func(ctx context.Context, keyword string) (*core.Draft, error) {
		cancel()
		return nil, fmt.Errorf("gemini: %w", ctx.Err())
	}}
	p := newTestPipeline(t, db, gen, nil)

	result, err := p.RunCycle(ctx, CycleOptions{Count: 2})
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(result.Outcomes) != 1 || len(gen.calls) != 1 {
		t.Fatalf("Expected the cycle to stop after the interrupted topic, got %d outcomes", len(result.Outcomes))
	}
	if got := result.Outcomes[0].Reason; got != core.ReasonCancelled {
		t.Errorf("Expected reason %q, got %q", core.ReasonCancelled, got)
	}

	for _, id := range []string{ai.ID, travel.ID} {
		topic, err := db.Topics().Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if topic.Status != core.TopicStatusPending || topic.SkipReason != nil {
			t.Errorf("Expected %q to stay pending, got %s (%v)", topic.Keyword, topic.Status, topic.SkipReason)
		}
	}

	gen.GenerateFunc = nil
	result, err = p.RunCycle(context.Background(), CycleOptions{Count: 1})
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(result.Published) != 1 || result.Published[0].Keyword != "ai" {
		t.Errorf("Expected the released topic to be published next, got %+v", result.Outcomes)
	}
}

func TestSplitKeywords(t *testing.T) {
	got := splitKeywords(" ai, machine learning ,,")
	if len(got) != 2 || got[0] != "ai" || got[1] != "machine learning" {
		t.Errorf("Unexpected keywords %v", got)
	}
}
