// Package ao3 scrapes work pages from Archive of Our Own.
package ao3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Zareix/fictracker/internal/fanfic"
	"github.com/Zareix/fictracker/internal/fetch"
	"github.com/Zareix/fictracker/internal/markup"
)

// Website is the display name stored on every record.
const Website = "Archive of Our Own"

// Hosts served by this adapter.
var Hosts = []string{"archiveofourown.org", "www.archiveofourown.org"}

var (
	// ErrWorkNotFound is returned when the page has no work body, e.g. a
	// login wall for restricted works or a deleted work.
	ErrWorkNotFound = errors.New("ao3: work not found on page")
	ErrNoChapters   = errors.New("ao3: no chapter content")
)

var ratings = map[string]fanfic.Rating{
	"General Audiences":     fanfic.RatingK,
	"Teen And Up Audiences": fanfic.RatingT,
	"Mature":                fanfic.RatingM,
	"Explicit":              fanfic.RatingM,
}

// Fetcher is the subset of fetch.Client the adapter needs.
type Fetcher interface {
	Do(ctx context.Context, r fetch.Request) (*fetch.Response, error)
}

// Adapter implements extractor.Adapter for AO3.
type Adapter struct {
	Fetcher Fetcher
	// BaseURL, when set, replaces scheme and host of fetched URLs. Records
	// still carry the archive's own URLs.
	BaseURL string
}

// New returns an adapter fetching through f.
func New(f Fetcher) *Adapter {
	return &Adapter{Fetcher: f}
}

// ExtractData fetches the full-work view and builds the record.
func (a *Adapter) ExtractData(ctx context.Context, rawURL string) (fanfic.Fanfic, error) {
	canonical, doc, err := a.load(ctx, rawURL)
	if err != nil {
		return fanfic.Fanfic{}, err
	}

	f := fanfic.Empty()
	f.URL = canonical
	f.Website = Website
	f.Title = doc.Text("h2.title.heading")
	f.Author = doc.Text("h3.byline")
	f.Summary = doc.Find(".preface:not(.chapter) .summary blockquote").First().Content()
	f.LikesCount = parseCount(doc.Text("dl.stats dd.kudos"))
	f.Rating = ratings[doc.Text("dd.rating")]
	f.Language = doc.Text("dd.language")
	f.Fandom = doc.Map("dd.fandom > ul > li", markup.ItemText)
	f.Ships = doc.Map("dd.relationship.tags > ul > li", markup.ItemText)
	f.Tags = doc.Map("dd.freeform.tags > ul > li", markup.ItemText)
	f.IsCompleted = isCompleted(doc.Text("dd.chapters"))

	chapters, err := chaptersOf(doc, canonical, f.Title)
	if err != nil {
		return fanfic.Fanfic{}, err
	}
	f.Chapters = chapters

	log.Ctx(ctx).Debug().
		Str("site", Website).
		Str("url", canonical).
		Int("chapters", len(chapters)).
		Msg("parsed work")
	return f, nil
}

// ExtractChapters fetches the same page as ExtractData and enumerates only
// its chapters.
func (a *Adapter) ExtractChapters(ctx context.Context, rawURL string) ([]fanfic.Chapter, error) {
	canonical, doc, err := a.load(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return chaptersOf(doc, canonical, doc.Text("h2.title.heading"))
}

func (a *Adapter) load(ctx context.Context, rawURL string) (string, *markup.Document, error) {
	canonical, err := CanonicalURL(rawURL)
	if err != nil {
		return "", nil, err
	}
	target, err := a.fetchURL(canonical)
	if err != nil {
		return "", nil, err
	}

	log.Ctx(ctx).Debug().Str("site", Website).Str("url", target).Msg("fetching work page")
	resp, err := a.Fetcher.Do(ctx, fetch.Request{
		URL:    target,
		Header: http.Header{"Accept": []string{"text/html,application/xhtml+xml"}},
		Accept: []string{"text/html", "application/xhtml+xml"},
	})
	if err != nil {
		return "", nil, fmt.Errorf("fetch work page: %w", err)
	}
	doc, err := markup.ParseBytes(resp.Body)
	if err != nil {
		return "", nil, err
	}
	if doc.Find("#workskin").Len() == 0 {
		return "", nil, ErrWorkNotFound
	}
	return canonical, doc, nil
}

// CanonicalURL reduces any work, chapter or query-decorated URL to the work
// root, e.g. https://archiveofourown.org/works/123.
func CanonicalURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse work url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("work url %q has no host", rawURL)
	}
	if i := strings.Index(u.Path, "/chapters"); i >= 0 {
		u.Path = u.Path[:i]
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

func (a *Adapter) fetchURL(canonical string) (string, error) {
	u, err := url.Parse(canonical)
	if err != nil {
		return "", err
	}
	if a.BaseURL != "" {
		base, err := url.Parse(a.BaseURL)
		if err != nil {
			return "", fmt.Errorf("parse base url: %w", err)
		}
		u.Scheme, u.Host = base.Scheme, base.Host
	}
	u.RawQuery = "view_adult=true&view_full_work=true"
	return u.String(), nil
}

// chaptersOf enumerates the full-work view. Single-chapter works have no
// per-chapter containers, only the work body.
func chaptersOf(doc markup.Query, canonical, workTitle string) ([]fanfic.Chapter, error) {
	base, err := url.Parse(canonical)
	if err != nil {
		return nil, err
	}

	chapters := []fanfic.Chapter{}
	doc.Each("#chapters > .chapter", func(i int, q markup.Query) {
		body := q.Find("[role=article]").First().Without("h3.landmark")
		chapters = append(chapters, fanfic.Chapter{
			Number:     i + 1,
			WordsCount: markup.WordCount(body.Content()),
			Title:      fanfic.ChapterTitle(q.Text("h3.title")),
			URL:        chapterURL(base, q),
		})
	})
	if len(chapters) > 0 {
		return chapters, nil
	}

	body := doc.Find("#chapters .userstuff").First()
	if body.Len() == 0 {
		return nil, ErrNoChapters
	}
	return []fanfic.Chapter{{
		Number:     1,
		WordsCount: markup.WordCount(body.Without("h3.landmark").Content()),
		Title:      workTitle,
		URL:        canonical,
	}}, nil
}

func chapterURL(base *url.URL, q markup.Query) string {
	href, ok := q.Attr("h3.title a", "href")
	if !ok || href == "" {
		return base.String()
	}
	ref, err := url.Parse(href)
	if err != nil {
		return base.String()
	}
	return base.ResolveReference(ref).String()
}

// parseCount reads a counter such as "12,345". Anything else is zero.
func parseCount(s string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// isCompleted reads the "published/total" chapter counter. An unknown total
// ("?") means the work is still in progress.
func isCompleted(counter string) bool {
	published, total, ok := strings.Cut(strings.ReplaceAll(counter, ",", ""), "/")
	if !ok {
		return false
	}
	p, err := strconv.Atoi(strings.TrimSpace(published))
	if err != nil {
		return false
	}
	t, err := strconv.Atoi(strings.TrimSpace(total))
	if err != nil {
		return false
	}
	return t > 0 && p >= t
}
