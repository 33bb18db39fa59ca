package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"blogwire/internal/core"
)

func newTestDB(t *testing.T) *SQLDB {
	t.Helper()
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "blogwire.db"), Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := NewMigrationManager(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mm := NewMigrationManager(db)

	if err := mm.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	status, err := mm.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(status) == 0 {
		t.Fatal("Expected at least one migration")
	}
	for _, s := range status {
		if !s.Applied {
			t.Errorf("Expected migration %d to be applied", s.Version)
		}
	}
	if status[0].Description != "initial schema" {
		t.Errorf("Expected description 'initial schema', got %q", status[0].Description)
	}
}

func TestRollbackForgetsLastVersion(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	mm := NewMigrationManager(db)

	if err := mm.Rollback(ctx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	status, err := mm.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status[len(status)-1].Applied {
		t.Error("Expected last version to be unrecorded after rollback")
	}

	for range status {
		_ = mm.Rollback(ctx)
	}
	if err := mm.Rollback(ctx); !errors.Is(err, errNothingApplied) {
		t.Errorf("Expected errNothingApplied, got %v", err)
	}
}

func TestParseScriptName(t *testing.T) {
	tests := []struct {
		file    string
		version int
		name    string
		ok      bool
	}{
		{"001_initial_schema.sql", 1, "initial schema", true},
		{"12_add_link_index.sql", 12, "add link index", true},
		{"001_initial_schema.txt", 0, "", false},
		{"initial_schema.sql", 0, "", false},
		{"001.sql", 0, "", false},
		{"000_zero.sql", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, ok := parseScriptName(tt.file)
			if version != tt.version || name != tt.name || ok != tt.ok {
				t.Errorf("parseScriptName(%q) = %d, %q, %v", tt.file, version, name, ok)
			}
		})
	}
}

func TestReadScripts(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_second.sql": {Data: []byte("SELECT 2")},
		"m/001_first.sql":  {Data: []byte("SELECT 1")},
		"m/README.md":      {Data: []byte("notes")},
	}
	scripts, err := readScripts(fsys, "m")
	if err != nil {
		t.Fatalf("readScripts failed: %v", err)
	}
	if len(scripts) != 2 || scripts[0].version != 1 || scripts[1].body != "SELECT 2" {
		t.Errorf("Unexpected scripts %+v", scripts)
	}

	fsys["m/002_again.sql"] = &fstest.MapFile{Data: []byte("SELECT 3")}
	if _, err := readScripts(fsys, "m"); err == nil {
		t.Error("Expected error for duplicate version")
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	if _, err := Open("oracle", "x", Options{}); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestArticleRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.Articles()

	published := time.Now().UTC()
	article := &core.Article{
		Title:       "Best Budget Laptops",
		Slug:        "best-budget-laptops",
		Body:        "Some words here",
		Status:      core.ArticleStatusPublished,
		PublishedAt: &published,
		WordCount:   3,
		Keyword:     "budget laptops",
	}
	if err := repo.Create(ctx, article); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if article.ID == "" {
		t.Fatal("Expected ID to be assigned")
	}

	got, err := repo.GetBySlug(ctx, "best-budget-laptops")
	if err != nil {
		t.Fatalf("GetBySlug failed: %v", err)
	}
	if got.Title != article.Title || got.Keyword != "budget laptops" || got.PublishedAt == nil {
		t.Errorf("Unexpected article: %+v", got)
	}
	if got.TopicID != nil {
		t.Errorf("Expected nil topic id, got %v", *got.TopicID)
	}

	exists, err := repo.SlugExists(ctx, "best-budget-laptops")
	if err != nil || !exists {
		t.Errorf("Expected slug to exist, got %v (%v)", exists, err)
	}

	dup := &core.Article{Title: "Other", Slug: "best-budget-laptops", Body: "x", WordCount: 1}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrSlugConflict) {
		t.Errorf("Expected ErrSlugConflict, got %v", err)
	}

	if err := repo.IncrementViews(ctx, article.ID); err != nil {
		t.Fatalf("IncrementViews failed: %v", err)
	}
	got, _ = repo.Get(ctx, article.ID)
	if got.ViewCount != 1 {
		t.Errorf("Expected 1 view, got %d", got.ViewCount)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	summaries, err := repo.ListPublishedSummaries(ctx)
	if err != nil {
		t.Fatalf("ListPublishedSummaries failed: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Keyword != "budget laptops" {
		t.Errorf("Unexpected summaries: %+v", summaries)
	}
}

func TestArticleDeleteEmptyAndStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.Articles()

	for _, a := range []*core.Article{
		{Title: "Full", Slug: "full", Body: "one two", WordCount: 2, Status: core.ArticleStatusPublished},
		{Title: "Empty", Slug: "empty", Body: "", WordCount: 0, Status: core.ArticleStatusPublished},
		{Title: "Draft", Slug: "draft", Body: "draft body", WordCount: 2},
	} {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Published != 2 || stats.Drafts != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	n, err := repo.DeleteEmpty(ctx)
	if err != nil {
		t.Fatalf("DeleteEmpty failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 empty article removed, got %d", n)
	}

	list, err := repo.List(ctx, ListOptions{Status: string(core.ArticleStatusPublished)})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].Slug != "full" {
		t.Errorf("Unexpected published list: %+v", list)
	}
}

func TestTopicLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.Topics()

	topic := &core.Topic{Keyword: "Electric Cars", TrendScore: 50}
	if err := repo.Create(ctx, topic); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if topic.Status != core.TopicStatusPending {
		t.Errorf("Expected pending status, got %s", topic.Status)
	}

	if err := repo.Create(ctx, &core.Topic{Keyword: "  electric   CARS "}); !errors.Is(err, core.ErrDuplicate) {
		t.Errorf("Expected duplicate keyword to be rejected, got %v", err)
	}

	exists, err := repo.ExistsByKeyword(ctx, "ELECTRIC cars")
	if err != nil || !exists {
		t.Errorf("Expected keyword to exist regardless of case, got %v (%v)", exists, err)
	}

	claimed, err := repo.Claim(ctx, topic.ID)
	if err != nil || !claimed {
		t.Fatalf("Expected claim to succeed, got %v (%v)", claimed, err)
	}
	claimed, err = repo.Claim(ctx, topic.ID)
	if err != nil || claimed {
		t.Errorf("Expected second claim to fail, got %v (%v)", claimed, err)
	}

	// An interrupted run hands the topic back.
	if err := repo.Release(ctx, topic.ID); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := repo.Release(ctx, topic.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected release of a pending topic to fail, got %v", err)
	}
	if claimed, _ := repo.Claim(ctx, topic.ID); !claimed {
		t.Fatal("Expected released topic to be claimable again")
	}

	if err := repo.Complete(ctx, topic.ID, time.Now()); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	got, _ := repo.Get(ctx, topic.ID)
	if got.Status != core.TopicStatusCompleted || got.ProcessedAt == nil {
		t.Errorf("Unexpected completed topic: %+v", got)
	}

	// Terminal topics cannot be skipped afterwards.
	if err := repo.Skip(ctx, topic.ID, core.ReasonDuplicate, time.Now()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected skip of completed topic to fail, got %v", err)
	}
}

func TestTopicSkipRecordsReason(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.Topics()

	topic := &core.Topic{Keyword: "travel"}
	_ = repo.Create(ctx, topic)
	_, _ = repo.Claim(ctx, topic.ID)

	if err := repo.Skip(ctx, topic.ID, core.ReasonGenerationFailed, time.Now()); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	got, _ := repo.Get(ctx, topic.ID)
	if got.Status != core.TopicStatusSkipped {
		t.Errorf("Expected skipped, got %s", got.Status)
	}
	if got.SkipReason == nil || *got.SkipReason != core.ReasonGenerationFailed {
		t.Errorf("Expected skip reason generation_failed, got %v", got.SkipReason)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 1 || stats.Skipped != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestListPendingOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.Topics()

	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	topics := []*core.Topic{
		{Keyword: "ten", TrendScore: 10, DiscoveredAt: base},
		{Keyword: "fifty", TrendScore: 50, DiscoveredAt: base},
		{Keyword: "thirty", TrendScore: 30, DiscoveredAt: base},
		{Keyword: "thirty later", TrendScore: 30, DiscoveredAt: base.Add(time.Hour)},
		{Keyword: "thirty earlier", TrendScore: 30, DiscoveredAt: base.Add(-time.Hour)},
		{Keyword: "done", TrendScore: 99, DiscoveredAt: base, Status: core.TopicStatusCompleted},
	}
	for _, tp := range topics {
		if err := repo.Create(ctx, tp); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	pending, err := repo.ListPending(ctx, 4)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}

	want := []string{"fifty", "thirty earlier", "thirty", "thirty later"}
	if len(pending) != len(want) {
		t.Fatalf("Expected %d topics, got %d", len(want), len(pending))
	}
	for i, kw := range want {
		if pending[i].Keyword != kw {
			t.Errorf("position %d: expected %q, got %q", i, kw, pending[i].Keyword)
		}
	}
}

func TestAffiliateLinkRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := db.AffiliateLinks()

	short := &core.AffiliateLink{Keyword: "laptop", URL: "https://shop.example/laptop", Platform: "amazon", Active: true}
	long := &core.AffiliateLink{Keyword: "gaming laptop", URL: "https://shop.example/gaming", Platform: "amazon", Active: true}
	off := &core.AffiliateLink{Keyword: "mouse", URL: "https://shop.example/mouse", Active: false}
	for _, l := range []*core.AffiliateLink{short, long, off} {
		if err := repo.Create(ctx, l); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	if err := repo.Create(ctx, &core.AffiliateLink{Keyword: " "}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Expected validation error for blank link, got %v", err)
	}
	if err := repo.Create(ctx, &core.AffiliateLink{Keyword: "desk", URL: "https://shop.example/standing desk"}); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Expected validation error for url with spaces, got %v", err)
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(active) != 2 || active[0].Keyword != "gaming laptop" || active[1].Keyword != "laptop" {
		t.Errorf("Expected longest keyword first, got %+v", active)
	}

	if err := repo.IncrementInsertions(ctx, []string{short.ID, long.ID}); err != nil {
		t.Fatalf("IncrementInsertions failed: %v", err)
	}
	if err := repo.IncrementClicks(ctx, short.ID); err != nil {
		t.Fatalf("IncrementClicks failed: %v", err)
	}
	got, _ := repo.Get(ctx, short.ID)
	if got.InsertCount != 1 || got.ClickCount != 1 {
		t.Errorf("Expected counters 1/1, got insert=%d click=%d", got.InsertCount, got.ClickCount)
	}

	if err := repo.SetActive(ctx, off.ID, true); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	active, _ = repo.ListActive(ctx)
	if len(active) != 3 {
		t.Errorf("Expected 3 active links, got %d", len(active))
	}
}

func TestRunLockRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	locks := db.RunLocks()

	t0 := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

	ok, err := locks.TryAcquire(ctx, "cycle", "a", t0, t0.Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("Expected first acquire to succeed, got %v (%v)", ok, err)
	}

	ok, _ = locks.TryAcquire(ctx, "cycle", "b", t0.Add(time.Minute), t0.Add(time.Hour))
	if ok {
		t.Error("Expected held lock to block a second holder")
	}

	ok, _ = locks.TryAcquire(ctx, "cycle", "b", t0.Add(2*time.Hour), t0.Add(3*time.Hour))
	if !ok {
		t.Error("Expected expired lock to be taken over")
	}

	// Release by a stale holder must not free b's lock.
	_ = locks.Release(ctx, "cycle", "a")
	ok, _ = locks.TryAcquire(ctx, "cycle", "c", t0.Add(2*time.Hour+time.Minute), t0.Add(4*time.Hour))
	if ok {
		t.Error("Expected lock to remain with b")
	}

	_ = locks.Release(ctx, "cycle", "b")
	ok, _ = locks.TryAcquire(ctx, "cycle", "c", t0.Add(2*time.Hour+time.Minute), t0.Add(4*time.Hour))
	if !ok {
		t.Error("Expected released lock to be free")
	}
}

func TestWithTxRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := WithTx(ctx, db, func(r Repositories) error {
		if err := r.Articles().Create(ctx, &core.Article{Title: "T", Slug: "t", Body: "b", WordCount: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	exists, _ := db.Articles().SlugExists(ctx, "t")
	if exists {
		t.Error("Expected article insert to be rolled back")
	}
}
