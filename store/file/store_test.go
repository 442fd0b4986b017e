package file_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/xraph/iap/store"
	"github.com/xraph/iap/store/file"
	"github.com/xraph/iap/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := file.New(filepath.Join(t.TempDir(), "prefs", "iap.json"))
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		return s
	})
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iap.json")
	ctx := context.Background()

	first := file.New(path)
	if err := first.SetAtomic(ctx, "coins", "250"); err != nil {
		t.Fatalf("SetAtomic: %v", err)
	}
	_ = first.Close()

	second := file.New(path)
	got, err := second.Get(ctx, "coins")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got != "250" {
		t.Fatalf("got %q, want 250", got)
	}
}

func TestNoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s := file.New(filepath.Join(dir, "iap.json"))
	ctx := context.Background()

	for _, v := range []string{"1", "2", "3"} {
		if err := s.SetAtomic(ctx, "k", v); err != nil {
			t.Fatalf("SetAtomic: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "iap.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected directory contents: %v", names)
	}

	data, err := os.ReadFile(filepath.Join(dir, "iap.json"))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document is not valid JSON: %v", err)
	}
	if doc["k"] != "3" {
		t.Fatalf("document = %v", doc)
	}
}

func TestCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iap.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	s := file.New(path)
	if _, err := s.Get(context.Background(), "k"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFailedWriteKeepsPreviousValue(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s := file.New(filepath.Join(dir, "iap.json"))
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.SetAtomic(ctx, "k", "1"); err != nil {
		t.Fatalf("SetAtomic: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}

	if err := s.SetAtomic(ctx, "k", "2"); err == nil {
		t.Fatal("expected write into a missing directory to fail")
	}
	got, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "1" {
		t.Fatalf("got %q after failed write, want 1", got)
	}
}
