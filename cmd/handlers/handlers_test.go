package handlers

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"blogwire/internal/core"
	"blogwire/internal/persistence"
	"blogwire/internal/pipeline"
	"blogwire/internal/scheduler"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()

	want := []string{"run", "generate", "discover", "schedule", "serve", "topics", "links", "posts", "migrate", "stats"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Expected subcommand %q, got %v (%v)", name, cmd, err)
		}
	}

	for _, path := range [][]string{
		{"posts", "export"}, {"posts", "import"}, {"posts", "delete-empty"},
		{"links", "enable"}, {"links", "disable"}, {"topics", "add"}, {"migrate", "status"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd.Name() != path[1] {
			t.Errorf("Expected %v to resolve, got %v (%v)", path, cmd, err)
		}
	}

	run, _, _ := root.Find([]string{"run"})
	for _, flag := range []string{"count", "no-discover"} {
		if run.Flags().Lookup(flag) == nil {
			t.Errorf("Expected run to have --%s", flag)
		}
	}
}

func TestRenderCycleReport(t *testing.T) {
	started := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	article := &core.Article{Title: "AI Explained", Slug: "ai-explained"}
	result := &pipeline.CycleResult{
		RunID: "0123456789abcdef",
		Outcomes: []pipeline.Outcome{
			{Keyword: "ai", Status: pipeline.OutcomePublished, Article: article},
			{Keyword: "travel", Status: pipeline.OutcomeSkipped, Reason: core.ReasonDuplicate},
			{Keyword: "solar", Status: pipeline.OutcomeSkipped, Reason: core.ReasonGenerationFailed},
		},
		Published:  []core.Article{*article},
		SkipCounts: map[string]int{core.ReasonGenerationFailed: 1, core.ReasonDuplicate: 1},
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
	}

	var buf bytes.Buffer
	renderCycleReport(&buf, result)
	out := buf.String()

	for _, want := range []string{
		"01234567",
		`Published "AI Explained" at /ai-explained`,
		`Skipped "travel" (duplicate)`,
		"Published: 1  Skipped: 2",
		"duplicate=1 generation_failed=1",
		"1m30s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected report to contain %q\n%s", want, out)
		}
	}
}

func TestRenderCycleReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderCycleReport(&buf, &pipeline.CycleResult{RunID: "r1", SkipCounts: map[string]int{}})
	if !strings.Contains(buf.String(), "nothing pending") {
		t.Errorf("Expected empty cycle note, got %s", buf.String())
	}
}

func TestStartSchedule(t *testing.T) {
	ctx := context.Background()

	for _, runOnStart := range []bool{true, false} {
		sched := scheduler.NewManualScheduler()
		runs := 0
		job := func(context.Context) { runs++ }

		done, err := startSchedule(ctx, sched, scheduler.DailySpec(8, 0), runOnStart, job)
		if err != nil {
			t.Fatalf("startSchedule failed: %v", err)
		}
		if specs := sched.Specs(); len(specs) != 1 || specs[0] != "0 8 * * *" {
			t.Errorf("Unexpected specs %v", specs)
		}

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Expected the initial run to finish")
		}
		want := 0
		if runOnStart {
			want = 1
		}
		if runs != want {
			t.Errorf("runOnStart=%t: expected %d immediate runs, got %d", runOnStart, want, runs)
		}

		sched.Trigger(ctx)
		if runs != want+1 {
			t.Errorf("Expected scheduled trigger to run the job")
		}
	}
}

func TestStartScheduleDoesNotBlockOnInitialRun(t *testing.T) {
	release := make(chan struct{})
	job := func(context.Context) { <-release }

	done, err := startSchedule(context.Background(), scheduler.NewManualScheduler(), scheduler.DailySpec(8, 0), true, job)
	if err != nil {
		t.Fatalf("startSchedule failed: %v", err)
	}

	select {
	case <-done:
		t.Fatal("Expected the initial run to still be in progress")
	default:
	}
	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected done to close after the initial run")
	}
}

func TestExportImportArticles(t *testing.T) {
	ctx := context.Background()
	src := openTestDB(t, "src.db")
	dst := openTestDB(t, "dst.db")

	published := time.Date(2025, 1, 2, 8, 0, 0, 0, time.UTC)
	for _, a := range []core.Article{
		{Title: "AI Explained", Slug: "ai-explained", Body: "body", WordCount: 2100, Status: core.ArticleStatusPublished, PublishedAt: &published},
		{Title: "Travel Tips", Slug: "travel-tips", Body: "body", WordCount: 1, Status: core.ArticleStatusDraft},
	} {
		if err := src.Articles().Create(ctx, &a); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	// dst already has one of the slugs
	if err := dst.Articles().Create(ctx, &core.Article{Title: "Old", Slug: "travel-tips", Body: "x", WordCount: 1}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var buf bytes.Buffer
	n, err := exportArticles(ctx, src.Articles(), &buf)
	if err != nil || n != 2 {
		t.Fatalf("Expected 2 exported articles, got %d (%v)", n, err)
	}

	imported, skipped, err := importArticles(ctx, dst.Articles(), &buf)
	if err != nil {
		t.Fatalf("importArticles failed: %v", err)
	}
	if imported != 1 || skipped != 1 {
		t.Errorf("Expected 1 imported and 1 skipped, got %d/%d", imported, skipped)
	}

	got, err := dst.Articles().GetBySlug(ctx, "ai-explained")
	if err != nil {
		t.Fatalf("GetBySlug failed: %v", err)
	}
	if got.WordCount != 2100 || got.Status != core.ArticleStatusPublished || got.PublishedAt == nil {
		t.Errorf("Imported article lost fields: %+v", got)
	}
}

func TestImportRejectsInvalidFile(t *testing.T) {
	db := openTestDB(t, "bad.db")
	if _, _, err := importArticles(context.Background(), db.Articles(), strings.NewReader("{")); err == nil {
		t.Error("Expected error for malformed JSON")
	}
	_, _, err := importArticles(context.Background(), db.Articles(), strings.NewReader(`[{"title":"No slug"}]`))
	if err == nil {
		t.Error("Expected error for article without slug")
	}
}

func openTestDB(t *testing.T, name string) *persistence.SQLDB {
	t.Helper()
	db, err := persistence.Open(persistence.DriverSQLite, filepath.Join(t.TempDir(), name), persistence.Options{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := persistence.NewMigrationManager(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}
