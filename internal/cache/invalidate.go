package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ClearDir removes the directory and all contents, then recreates it empty.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

const (
	metaSuffix = ".meta.json"
	bodySuffix = ".body"
	tmpSuffix  = ".tmp"
)

// PurgeHTTPCacheByAge removes cached pages saved more than maxAge ago and
// reports how many were removed. Bodies whose meta file is gone and
// half-written meta files are removed once their mtime is past maxAge.
// Unreadable or malformed meta files are left alone.
func PurgeHTTPCacheByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	metas := make(map[string]bool)
	removed := 0
	for _, d := range entries {
		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		key := strings.TrimSuffix(name, metaSuffix)
		metas[key] = true
		savedAt, ok := readSavedAt(filepath.Join(dir, name))
		if !ok || now.Sub(savedAt) <= maxAge {
			continue
		}
		_ = os.Remove(filepath.Join(dir, name))
		_ = os.Remove(filepath.Join(dir, key+bodySuffix))
		removed++
	}

	for _, d := range entries {
		name := d.Name()
		if d.IsDir() {
			continue
		}
		orphan := strings.HasSuffix(name, tmpSuffix) ||
			(strings.HasSuffix(name, bodySuffix) && !metas[strings.TrimSuffix(name, bodySuffix)])
		if !orphan {
			continue
		}
		info, err := d.Info()
		if err != nil || now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		if os.Remove(filepath.Join(dir, name)) == nil && strings.HasSuffix(name, bodySuffix) {
			removed++
		}
	}
	return removed, nil
}

func readSavedAt(path string) (time.Time, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}
	var e HTTPEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return time.Time{}, false
	}
	return e.SavedAt, true
}
