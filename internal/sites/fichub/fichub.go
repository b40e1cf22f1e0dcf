// Package fichub extracts FanFiction.net and FictionPress works through the
// FicHub conversion service: a metadata call followed by a zipped HTML
// bundle holding the chapter text.
package fichub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Zareix/fictracker/internal/fanfic"
	"github.com/Zareix/fictracker/internal/fetch"
	"github.com/Zareix/fictracker/internal/markup"
)

const (
	// DefaultBaseURL is the public FicHub instance.
	DefaultBaseURL = "https://fichub.net"
	// DefaultMaxBundleBytes caps the uncompressed size of a bundle.
	DefaultMaxBundleBytes int64 = 64 << 20
)

var (
	ErrAPI        = errors.New("fichub: conversion failed")
	ErrNoHTML     = errors.New("fichub: bundle has no html document")
	ErrNoChapters = errors.New("fichub: no chapter content")
	// ErrBundleTooLarge is returned when the unpacked bundle exceeds the adapter limit.
	ErrBundleTooLarge = errors.New("fichub: bundle too large")
)

// Site describes one archive FicHub converts.
type Site struct {
	Website string
	Hosts   []string
}

var (
	FanFictionNet = Site{
		Website: "FanFiction.net",
		Hosts:   []string{"www.fanfiction.net", "fanfiction.net", "m.fanfiction.net"},
	}
	FictionPress = Site{
		Website: "FictionPress",
		Hosts:   []string{"www.fictionpress.com", "fictionpress.com", "m.fictionpress.com"},
	}
)

var ratings = map[string]fanfic.Rating{
	"K":  fanfic.RatingK,
	"K+": fanfic.RatingK,
	"T":  fanfic.RatingT,
	"M":  fanfic.RatingM,
	"E":  fanfic.RatingM,
}

// storyPathRe splits a story path around its chapter segment:
// /s/<id>[/<chapter>][/<slug>].
var storyPathRe = regexp.MustCompile(`^(.*/s/\d+)(?:/\d+)?(/.*)?$`)

// Fetcher is the subset of fetch.Client the adapter needs.
type Fetcher interface {
	Do(ctx context.Context, r fetch.Request) (*fetch.Response, error)
}

// Adapter implements extractor.Adapter for one Site.
type Adapter struct {
	Fetcher Fetcher
	Site    Site
	// BaseURL of the FicHub instance. Empty means DefaultBaseURL.
	BaseURL string
	// MaxBundleBytes caps the uncompressed bundle size. Zero means
	// DefaultMaxBundleBytes.
	MaxBundleBytes int64
}

// New returns an adapter for site using the public FicHub instance.
func New(f Fetcher, site Site) *Adapter {
	return &Adapter{Fetcher: f, Site: site}
}

func (a *Adapter) baseURL() string {
	if a.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(a.BaseURL, "/")
}

func (a *Adapter) maxBundleBytes() int64 {
	if a.MaxBundleBytes <= 0 {
		return DefaultMaxBundleBytes
	}
	return a.MaxBundleBytes
}

// ExtractData resolves the work through FicHub and builds the record.
func (a *Adapter) ExtractData(ctx context.Context, rawURL string) (fanfic.Fanfic, error) {
	canonical, err := ChapterURL(rawURL, 1)
	if err != nil {
		return fanfic.Fanfic{}, err
	}
	logger := log.Ctx(ctx).With().Str("site", a.Site.Website).Str("url", canonical).Logger()

	logger.Debug().Msg("requesting conversion")
	meta, err := a.lookup(ctx, rawURL)
	if err != nil {
		return fanfic.Fanfic{}, err
	}

	logger.Debug().Str("bundle", meta.HTMLURL).Msg("downloading bundle")
	docs, err := a.bundle(ctx, meta.HTMLURL)
	if err != nil {
		return fanfic.Fanfic{}, err
	}
	chapters, err := chaptersOf(docs, canonical)
	if err != nil {
		return fanfic.Fanfic{}, err
	}
	if n := meta.Meta.Chapters.Int(); n > 0 && n != len(chapters) {
		logger.Debug().Int("expected", n).Int("chapters", len(chapters)).Msg("chapter count differs from metadata")
	}

	ext := meta.Meta.RawExtendedMeta
	f := fanfic.Empty()
	f.URL = canonical
	f.Website = a.Site.Website
	f.Title = strings.TrimSpace(meta.Meta.Title.String())
	f.Author = strings.TrimSpace(meta.Meta.Author.String())
	f.Summary = markup.StripTags(meta.Meta.Description.String())
	f.LikesCount = ext.Favorites.Int()
	f.Rating = ratings[strings.TrimSpace(ext.Rated.String())]
	f.IsCompleted = strings.EqualFold(strings.TrimSpace(meta.Meta.Status.String()), "complete")
	if fandom := strings.TrimSpace(ext.RawFandom.String()); fandom != "" {
		f.Fandom = []string{fandom}
	}
	f.Ships = fanfic.ParseShips(ext.Characters.String())
	f.Language = strings.TrimSpace(ext.Language.String())
	f.Chapters = chapters
	return f, nil
}

// ExtractChapters runs the full extraction; the bundle is the only source
// of chapter data.
func (a *Adapter) ExtractChapters(ctx context.Context, rawURL string) ([]fanfic.Chapter, error) {
	f, err := a.ExtractData(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return f.Chapters, nil
}

func (a *Adapter) lookup(ctx context.Context, rawURL string) (*apiResponse, error) {
	endpoint := a.baseURL() + "/api/v0/epub?" + url.Values{"q": {rawURL}}.Encode()
	resp, err := a.Fetcher.Do(ctx, fetch.Request{URL: endpoint})
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	var out apiResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if code := out.Err.String(); code != "" && code != "0" {
		return nil, fmt.Errorf("%w: err=%s %s", ErrAPI, code, strings.TrimSpace(out.Info.String()))
	}
	if strings.TrimSpace(out.HTMLURL) == "" {
		return nil, fmt.Errorf("%w: response has no html bundle", ErrAPI)
	}
	return &out, nil
}

func (a *Adapter) bundle(ctx context.Context, htmlURL string) ([]*markup.Document, error) {
	ref, err := url.Parse(strings.TrimSpace(htmlURL))
	if err != nil {
		return nil, fmt.Errorf("parse bundle url: %w", err)
	}
	target := ref.String()
	if !ref.IsAbs() {
		target = a.baseURL() + "/" + strings.TrimLeft(ref.String(), "/")
	}
	resp, err := a.Fetcher.Do(ctx, fetch.Request{URL: target})
	if err != nil {
		return nil, fmt.Errorf("fetch bundle: %w", err)
	}
	return readBundle(resp.Body, a.maxBundleBytes())
}

// ChapterURL rewrites a story URL to point at chapter n. Query and fragment
// are dropped. URLs without a /s/<id> path are returned without them.
func ChapterURL(rawURL string, n int) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse story url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("story url %q has no host", rawURL)
	}
	u.RawQuery, u.Fragment, u.RawPath = "", "", ""
	u.Host = strings.ToLower(u.Host)
	if m := storyPathRe.FindStringSubmatch(u.Path); m != nil {
		u.Path = m[1] + "/" + strconv.Itoa(n) + m[2]
	}
	return u.String(), nil
}

func chaptersOf(docs []*markup.Document, canonical string) ([]fanfic.Chapter, error) {
	chapters := []fanfic.Chapter{}
	add := func(title string, words int) {
		n := len(chapters) + 1
		u, err := ChapterURL(canonical, n)
		if err != nil {
			u = canonical
		}
		chapters = append(chapters, fanfic.Chapter{Number: n, WordsCount: words, Title: title, URL: u})
	}

	for _, doc := range docs {
		containers := doc.Find(`div[id^="chap_"]`)
		if containers.Len() == 0 {
			body := doc.Find("body")
			if body.Len() == 0 || strings.TrimSpace(body.Content()) == "" {
				continue
			}
			add(fanfic.ChapterTitle(documentTitle(doc)), markup.WordCount(body.Without("h1, h2").Content()))
			continue
		}
		containers.Each("", func(_ int, q markup.Query) {
			text := q.Children("div").Last()
			if text.Len() == 0 {
				text = q.Without("h2")
			}
			add(fanfic.ChapterTitle(q.Text("h2")), markup.WordCount(text.Content()))
		})
	}
	if len(chapters) == 0 {
		return nil, ErrNoChapters
	}
	return chapters, nil
}

func documentTitle(doc markup.Query) string {
	for _, sel := range []string{"h1", "h2", "title"} {
		if t := doc.Text(sel); t != "" {
			return t
		}
	}
	return ""
}
