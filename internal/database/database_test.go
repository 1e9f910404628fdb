package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(identity string) ArticleRecord {
	return ArticleRecord{
		Identity:        identity,
		Title:           "Title " + identity,
		Description:     "Body",
		Summary:         "Summary of " + identity,
		ImageURL:        "https://img.example.com/x.jpg",
		PublishedAt:     time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC),
		SourceID:        "bbc",
		SourceName:      "BBC News",
		Tags:            []string{"Technology: AI", "Business: Markets"},
		PrimaryCategory: "Technology",
	}
}

func TestUpsertArticleIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	rec := testRecord("https://example.com/a")

	for range 3 {
		if err := db.UpsertArticle(ctx, rec); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	ids, err := db.SelectAllIdentities(ctx)
	if err != nil {
		t.Fatalf("select identities: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("expected 1 stored row, got %d", len(ids))
	}

	got, err := db.GetArticle(ctx, rec.Identity)
	if err != nil || got == nil {
		t.Fatalf("get article: %v", err)
	}
	if got.Summary != rec.Summary || got.Title != rec.Title {
		t.Errorf("unexpected stored record %+v", got)
	}
	if !got.PublishedAt.Equal(rec.PublishedAt) {
		t.Errorf("expected published %v, got %v", rec.PublishedAt, got.PublishedAt)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "Technology: AI" {
		t.Errorf("unexpected tags %v", got.Tags)
	}
}

func TestUpsertArticleOverwritesAndKeepsCreatedAt(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return first }
	rec := testRecord("https://example.com/a")
	if err := db.UpsertArticle(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	db.now = func() time.Time { return first.Add(time.Hour) }
	rec.Summary = "Updated summary"
	rec.Tags = []string{"Science: Space"}
	rec.PrimaryCategory = "Science"
	if err := db.UpsertArticle(ctx, rec); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, err := db.GetArticle(ctx, rec.Identity)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Summary != "Updated summary" || got.PrimaryCategory != "Science" {
		t.Errorf("expected overwrite, got %+v", got)
	}
	if !got.CreatedAt.Equal(first) {
		t.Errorf("created_at changed: %v", got.CreatedAt)
	}
	if !got.UpdatedAt.Equal(first.Add(time.Hour)) {
		t.Errorf("updated_at not bumped: %v", got.UpdatedAt)
	}
}

func TestSelectSummary(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	missing, err := db.SelectSummary(ctx, "https://example.com/none")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing identity, got %+v", missing)
	}

	rec := testRecord("https://example.com/a")
	if err := db.UpsertArticle(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := db.SelectSummary(ctx, rec.Identity)
	if err != nil || got == nil {
		t.Fatalf("select: %v", err)
	}
	if got.Summary != rec.Summary || len(got.Tags) != 2 {
		t.Errorf("unexpected summary %+v", got)
	}
}

func TestDeleteByIdentities(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		if err := db.UpsertArticle(ctx, testRecord(id)); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	n, err := db.DeleteByIdentities(ctx, []string{"A", "missing"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}

	ids, _ := db.SelectAllIdentities(ctx)
	if _, ok := ids["A"]; ok {
		t.Error("A should be gone")
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 remaining, got %d", len(ids))
	}

	if n, err := db.DeleteByIdentities(ctx, nil); err != nil || n != 0 {
		t.Errorf("empty delete: n=%d err=%v", n, err)
	}
}

func TestDeleteByIdentitiesRejectsLargeBatch(t *testing.T) {
	db := openTestDB(t)
	ids := make([]string, MaxDeleteBatch+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	if _, err := db.DeleteByIdentities(context.Background(), ids); !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("expected ErrBatchTooLarge, got %v", err)
	}
}

func TestListArticlesAndStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	older := testRecord("old")
	older.PublishedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := testRecord("new")
	newer.PublishedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	science := testRecord("sci")
	science.Tags = []string{"Science: Space"}
	science.PrimaryCategory = "Science"

	for _, r := range []ArticleRecord{older, newer, science} {
		if err := db.UpsertArticle(ctx, r); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	tech, err := db.ListArticles(ctx, ListOptions{Category: "Technology"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tech) != 2 || tech[0].Identity != "new" || tech[1].Identity != "old" {
		t.Errorf("unexpected technology listing %+v", tech)
	}

	limited, err := db.ListArticles(ctx, ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("expected total 3, got %d", stats.Total)
	}
	if len(stats.ByCategory) != 2 || stats.ByCategory[0].Category != "Technology" || stats.ByCategory[0].Count != 2 {
		t.Errorf("unexpected categories %+v", stats.ByCategory)
	}
}

func TestGetArticleMissing(t *testing.T) {
	db := openTestDB(t)
	got, err := db.GetArticle(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestRunReports(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	last, err := db.LastRunReport(ctx)
	if err != nil {
		t.Fatalf("last report: %v", err)
	}
	if last != nil {
		t.Errorf("expected no report, got %+v", last)
	}

	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2"} {
		started := base.Add(time.Duration(i) * time.Hour)
		err := db.InsertRunReport(ctx, RunReport{
			RunID: id, StartedAt: started, FinishedAt: started.Add(time.Minute),
			State: "done", Fetched: 10 + i, Removed: int64(i),
		})
		if err != nil {
			t.Fatalf("insert report: %v", err)
		}
	}

	last, err = db.LastRunReport(ctx)
	if err != nil || last == nil {
		t.Fatalf("last report: %v", err)
	}
	if last.RunID != "run-2" || last.Fetched != 11 || last.Removed != 1 {
		t.Errorf("unexpected last report %+v", last)
	}
}

func TestRunLock(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	ok, err := db.TryAcquireRunLock(ctx, "sync", "owner-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = db.TryAcquireRunLock(ctx, "sync", "owner-2", time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}

	// Releasing with the wrong owner is a no-op.
	if err := db.ReleaseRunLock(ctx, "sync", "owner-2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := db.TryAcquireRunLock(ctx, "sync", "owner-2", time.Minute); ok {
		t.Fatal("lock should still be held by owner-1")
	}

	if err := db.ReleaseRunLock(ctx, "sync", "owner-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := db.TryAcquireRunLock(ctx, "sync", "owner-2", time.Minute); !ok {
		t.Fatal("expected owner-2 to acquire after release")
	}
}

func TestRunLockExpires(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	if ok, _ := db.TryAcquireRunLock(ctx, "sync", "stale", time.Minute); !ok {
		t.Fatal("expected acquire")
	}
	now = now.Add(2 * time.Minute)
	if ok, err := db.TryAcquireRunLock(ctx, "sync", "fresh", time.Minute); err != nil || !ok {
		t.Fatalf("expected expired lock to be taken over: ok=%v err=%v", ok, err)
	}
}

func TestRefreshRunLock(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	if ok, _ := db.TryAcquireRunLock(ctx, "sync", "owner-1", time.Minute); !ok {
		t.Fatal("expected acquire")
	}

	now = now.Add(50 * time.Second)
	ok, err := db.RefreshRunLock(ctx, "sync", "owner-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("refresh: ok=%v err=%v", ok, err)
	}
	now = now.Add(50 * time.Second)
	if ok, _ := db.TryAcquireRunLock(ctx, "sync", "owner-2", time.Minute); ok {
		t.Fatal("refreshed lock should still be held by owner-1")
	}

	if ok, err := db.RefreshRunLock(ctx, "sync", "owner-2", time.Minute); err != nil || ok {
		t.Fatalf("refresh by another owner: ok=%v err=%v", ok, err)
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := db.TryAcquireRunLock(ctx, "sync", "owner-2", time.Minute); !ok {
		t.Fatal("expected expired lock to be taken over")
	}
	if ok, _ := db.RefreshRunLock(ctx, "sync", "owner-1", time.Minute); ok {
		t.Fatal("owner-1 refreshed a lock it lost")
	}
}

func TestPing(t *testing.T) {
	db := openTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
	if db.Driver() != DriverSQLite {
		t.Errorf("unexpected driver %q", db.Driver())
	}
}

func TestConnectUnknownDriver(t *testing.T) {
	if _, err := Connect(context.Background(), "mysql", "x"); !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("expected ErrUnknownDriver, got %v", err)
	}
}
