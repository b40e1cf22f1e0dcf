package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHTTPCache_SaveAndLoad(t *testing.T) {
	t.Parallel()
	c := &HTTPCache{Dir: t.TempDir()}
	url := "https://archiveofourown.org/works/1"
	if err := c.Save(context.Background(), url, "text/html", `"v1"`, "Mon, 01 Jan 2024 00:00:00 GMT", []byte("body")); err != nil {
		t.Fatalf("save: %v", err)
	}
	meta, err := c.LoadMeta(context.Background(), url)
	if err != nil {
		t.Fatalf("load meta: %v", err)
	}
	if meta.ETag != `"v1"` || meta.ContentType != "text/html" || meta.URL != url {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	body, err := c.LoadBody(context.Background(), url)
	if err != nil {
		t.Fatalf("load body: %v", err)
	}
	if string(body) != "body" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestHTTPCache_MissingEntry(t *testing.T) {
	t.Parallel()
	c := &HTTPCache{Dir: t.TempDir()}
	if _, err := c.LoadMeta(context.Background(), "https://example.com/none"); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestHTTPCache_UnconfiguredDir(t *testing.T) {
	t.Parallel()
	var c *HTTPCache
	if err := c.Save(context.Background(), "u", "", "", "", nil); err == nil {
		t.Fatalf("expected error for nil cache")
	}
}

func TestHTTPCache_StrictPerms(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "http")
	c := &HTTPCache{Dir: dir, StrictPerms: true}
	url := "https://example.com/x"
	if err := c.Save(context.Background(), url, "text/html", "etag", "", []byte("hello")); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat dir: %v", err)
	}
	if got := info.Mode() & 0o777; got != 0o700 {
		t.Fatalf("dir mode = %o, want 0700", got)
	}
	key := c.key(url)
	for _, f := range []string{filepath.Join(dir, key+".body"), filepath.Join(dir, key+".meta.json")} {
		finfo, err := os.Stat(f)
		if err != nil {
			t.Fatalf("stat %s: %v", f, err)
		}
		if got := finfo.Mode() & 0o777; got != 0o600 {
			t.Fatalf("%s mode = %o, want 0600", f, got)
		}
	}
}

func TestPurgeHTTPCacheByAge(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := &HTTPCache{Dir: dir}
	ctx := context.Background()
	if err := c.Save(ctx, "https://a/old", "text/html", "", "", []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := c.Save(ctx, "https://a/new", "text/html", "", "", []byte("new")); err != nil {
		t.Fatal(err)
	}
	// backdate the first entry
	old := HTTPEntry{URL: "https://a/old", SavedAt: time.Now().Add(-48 * time.Hour).UTC()}
	b, _ := json.Marshal(old)
	if err := os.WriteFile(c.metaPath(c.key("https://a/old")), b, 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := PurgeHTTPCacheByAge(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := c.LoadBody(ctx, "https://a/old"); err == nil {
		t.Fatalf("expected old body removed")
	}
	if _, err := c.LoadBody(ctx, "https://a/new"); err != nil {
		t.Fatalf("expected new body kept: %v", err)
	}
}

func TestPurgeHTTPCacheByAge_Orphans(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c := &HTTPCache{Dir: dir}
	ctx := context.Background()
	if err := c.Save(ctx, "https://a/kept", "text/html", "", "", []byte("kept")); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().Add(-48 * time.Hour)
	orphan := c.bodyPath(c.key("https://a/orphan"))
	fresh := c.bodyPath(c.key("https://a/saving"))
	tmp := c.metaPath(c.key("https://a/crashed")) + tmpSuffix
	for _, p := range []string{orphan, fresh, tmp} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for _, p := range []string{orphan, tmp} {
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := PurgeHTTPCacheByAge(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 orphan body removed, got %d", removed)
	}
	for _, p := range []string{orphan, tmp} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, err=%v", filepath.Base(p), err)
		}
	}
	// a body written moments ago may belong to a Save still in progress
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh body removed: %v", err)
	}
	if _, err := c.LoadBody(ctx, "https://a/kept"); err != nil {
		t.Fatalf("complete entry removed: %v", err)
	}
}

func TestPurgeHTTPCacheByAge_MissingDir(t *testing.T) {
	t.Parallel()
	n, err := PurgeHTTPCacheByAge(filepath.Join(t.TempDir(), "absent"), time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("missing dir: n=%d err=%v", n, err)
	}
}

func TestClearDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "c")
	c := &HTTPCache{Dir: dir}
	if err := c.Save(context.Background(), "https://a/1", "", "", "", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := ClearDir(dir); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir, got %d entries", len(entries))
	}
	if err := ClearDir("  "); err == nil {
		t.Fatalf("expected error for blank dir")
	}
}
