package daily

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := NewStore(dir, logger)
	if err != nil {
		t.Fatalf("failed to create Store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("failed to scan %s: %v", path, err)
	}
	return lines
}

var day = time.Date(2025, 2, 20, 23, 59, 59, 0, time.Local)

func TestStore_PathFor(t *testing.T) {
	store, dir := setupTestStore(t)
	want := filepath.Join(dir, "2025-02-20.LOG")
	if got := store.PathFor(day); got != want {
		t.Errorf("PathFor() = %q, want %q", got, want)
	}
}

func TestStore_AppendCreatesAndAppends(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, day, "first\n"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if err := store.Append(ctx, day, "second\n"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	lines := readLines(t, store.PathFor(day))
	if strings.Join(lines, "|") != "first|second" {
		t.Errorf("unexpected file content: %v", lines)
	}
}

func TestStore_ExistingFileIsNotTruncated(t *testing.T) {
	store, _ := setupTestStore(t)
	if err := os.WriteFile(store.PathFor(day), []byte("from before restart\n"), 0644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}
	if err := store.Append(context.Background(), day, "after restart\n"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	lines := readLines(t, store.PathFor(day))
	if len(lines) != 2 || lines[0] != "from before restart" {
		t.Errorf("unexpected file content: %v", lines)
	}
}

func TestStore_DateRollover(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()
	next := day.Add(2 * time.Second)

	if err := store.Append(ctx, day, "old day\n"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if err := store.Append(ctx, next, "new day\n"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	// A late append for the previous day still lands in its own file.
	if err := store.Append(ctx, day, "late\n"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	if got := readLines(t, store.PathFor(day)); strings.Join(got, "|") != "old day|late" {
		t.Errorf("previous day content = %v", got)
	}
	if got := readLines(t, store.PathFor(next)); strings.Join(got, "|") != "new day" {
		t.Errorf("next day content = %v", got)
	}
	if store.currentPath != store.PathFor(next) {
		t.Errorf("current handle = %s, want %s", store.currentPath, store.PathFor(next))
	}
}

func TestStore_ConcurrentAppends(t *testing.T) {
	store, _ := setupTestStore(t)
	const sessions, perSession = 50, 20

	var wg sync.WaitGroup
	errs := make(chan error, sessions*perSession)
	for s := 0; s < sessions; s++ {
		wg.Add(1)
		go func(session int) {
			defer wg.Done()
			for i := 0; i < perSession; i++ {
				line := fmt.Sprintf("session-%02d line-%02d %s\n", session, i, strings.Repeat("x", 200))
				if err := store.Append(context.Background(), day, line); err != nil {
					errs <- err
				}
			}
		}(s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("append failed: %v", err)
	}

	lines := readLines(t, store.PathFor(day))
	if len(lines) != sessions*perSession {
		t.Fatalf("expected %d lines, got %d", sessions*perSession, len(lines))
	}
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		var session, idx int
		var pad string
		if _, err := fmt.Sscanf(line, "session-%d line-%d %s", &session, &idx, &pad); err != nil || len(pad) != 200 {
			t.Fatalf("interleaved or partial line: %q", line)
		}
		seen[line] = true
	}
	if len(seen) != sessions*perSession {
		t.Errorf("expected %d distinct lines, got %d", sessions*perSession, len(seen))
	}
}

func TestStore_MissingDirectoryIsReported(t *testing.T) {
	store, dir := setupTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, day, "before\n"); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("failed to remove dir: %v", err)
	}

	if err := store.Append(ctx, day, "after\n"); err == nil {
		t.Fatal("expected an error when the log directory is gone, got nil")
	}

	// Recreating the directory lets the store recover on the next append.
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to recreate dir: %v", err)
	}
	if err := store.Append(ctx, day, "recovered\n"); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if got := readLines(t, store.PathFor(day)); strings.Join(got, "|") != "recovered" {
		t.Errorf("unexpected content after recovery: %v", got)
	}
}

func TestStore_CancelledContext(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Append(ctx, day, "never\n"); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
	if _, err := os.Stat(store.PathFor(day)); !os.IsNotExist(err) {
		t.Errorf("expected no file to be created, stat err = %v", err)
	}
}
