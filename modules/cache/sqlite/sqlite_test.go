package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

// newTestStore opens a fresh database in a temp dir.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &Store{db: db}
}

func TestStore_LookupMiss(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, ok, err := s.Lookup(context.Background(), "https://vm.tiktok.com/miss")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if ok {
		t.Error("Lookup() reported a hit on an empty cache")
	}
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Store(ctx, "https://vm.tiktok.com/abc", "file-1"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	fileID, ok, err := s.Lookup(ctx, "https://vm.tiktok.com/abc")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !ok || fileID != "file-1" {
		t.Errorf("Lookup() = (%q, %v), want (file-1, true)", fileID, ok)
	}
}

func TestStore_OverwriteRefreshes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Store(ctx, "https://vm.tiktok.com/abc", "file-old"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if err := s.Store(ctx, "https://vm.tiktok.com/abc", "file-new"); err != nil {
		t.Fatalf("Store() overwrite error = %v", err)
	}

	fileID, ok, err := s.Lookup(ctx, "https://vm.tiktok.com/abc")
	if err != nil || !ok {
		t.Fatalf("Lookup() = (%q, %v, %v)", fileID, ok, err)
	}
	if fileID != "file-new" {
		t.Errorf("file id = %q, want file-new", fileID)
	}

	n, err := s.Len(ctx)
	if err != nil {
		t.Fatalf("Len() error = %v", err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1 after overwrite", n)
	}
}

func TestStore_PurgeOlderThan(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Store(ctx, "https://vm.tiktok.com/fresh", "file-fresh"); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	// Backdate one row past the retention window.
	stale := time.Now().UTC().Add(-48 * time.Hour).Format(timeLayout)
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO cached_files (url, file_id, created_at) VALUES (?, ?, ?)",
		"https://vm.tiktok.com/stale", "file-stale", stale,
	); err != nil {
		t.Fatalf("insert stale row: %v", err)
	}

	dropped, err := s.PurgeOlderThan(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PurgeOlderThan() error = %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	if _, ok, _ := s.Lookup(ctx, "https://vm.tiktok.com/fresh"); !ok {
		t.Error("fresh row was purged")
	}
	if _, ok, _ := s.Lookup(ctx, "https://vm.tiktok.com/stale"); ok {
		t.Error("stale row survived the purge")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrate(db); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
