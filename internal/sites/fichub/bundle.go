package fichub

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/Zareix/fictracker/internal/markup"
)

type apiResponse struct {
	Err     flexString `json:"err"`
	Info    flexString `json:"info"`
	HTMLURL string     `json:"html_url"`
	Meta    struct {
		Title           flexString `json:"title"`
		Author          flexString `json:"author"`
		Description     flexString `json:"description"`
		Status          flexString `json:"status"`
		Chapters        flexString `json:"chapters"`
		RawExtendedMeta struct {
			Characters flexString `json:"characters"`
			Favorites  flexString `json:"favorites"`
			Language   flexString `json:"language"`
			Rated      flexString `json:"rated"`
			RawFandom  flexString `json:"raw_fandom"`
		} `json:"rawExtendedMeta"`
	} `json:"meta"`
}

// flexString accepts a JSON string, number, bool or null. FicHub reports
// some counters as numbers on one source and as strings on another.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*s = ""
	case b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
	case b[0] == '{' || b[0] == '[':
		return fmt.Errorf("unexpected JSON value %s", b)
	default:
		*s = flexString(b)
	}
	return nil
}

func (s flexString) String() string { return string(s) }

// Int reads a counter such as "6,914". Anything unparsable is zero.
func (s flexString) Int() int {
	n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(string(s)), ",", ""))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// readBundle parses every HTML document of the zip in archive order. limit
// caps the uncompressed bytes read across all entries.
func readBundle(b []byte, limit int64) ([]*markup.Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	var docs []*markup.Document
	remaining := limit
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !isHTML(f.Name) {
			continue
		}
		doc, n, err := parseEntry(f, remaining)
		if err != nil {
			return nil, fmt.Errorf("bundle entry %s: %w", f.Name, err)
		}
		remaining -= n
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return nil, ErrNoHTML
	}
	return docs, nil
}

// parseEntry reads at most limit uncompressed bytes; the declared size is
// checked first but the read is bounded regardless, since headers can lie.
func parseEntry(f *zip.File, limit int64) (*markup.Document, int64, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, 0, fmt.Errorf("%w: %d bytes declared", ErrBundleTooLarge, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, 0, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, 0, err
	}
	if int64(len(data)) > limit {
		return nil, 0, fmt.Errorf("%w: over %d bytes", ErrBundleTooLarge, limit)
	}
	doc, err := markup.ParseBytes(data)
	return doc, int64(len(data)), err
}

func isHTML(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}
