package ao3

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zareix/fictracker/internal/fanfic"
	"github.com/Zareix/fictracker/internal/fetch"
)

type fixtureFetcher struct {
	body     []byte
	err      error
	requests []fetch.Request
}

func (f *fixtureFetcher) Do(_ context.Context, r fetch.Request) (*fetch.Response, error) {
	f.requests = append(f.requests, r)
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Response{Body: f.body, ContentType: "text/html", StatusCode: 200, URL: r.URL}, nil
}

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func TestCanonicalURL(t *testing.T) {
	tests := map[string]string{
		"https://archiveofourown.org/works/10057010":                               "https://archiveofourown.org/works/10057010",
		"https://archiveofourown.org/works/10057010/":                              "https://archiveofourown.org/works/10057010",
		"https://archiveofourown.org/works/10057010/chapters/22409387":             "https://archiveofourown.org/works/10057010",
		"https://archiveofourown.org/works/10057010?view_adult=true":               "https://archiveofourown.org/works/10057010",
		"https://ArchiveOfOurOwn.org/works/10057010/chapters/22409387#workskin":    "https://archiveofourown.org/works/10057010",
		" https://www.archiveofourown.org/works/1/chapters/2?view_full_work=true ": "https://www.archiveofourown.org/works/1",
	}
	for in, want := range tests {
		got, err := CanonicalURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := CanonicalURL("/works/1")
	assert.Error(t, err)
}

func TestExtractData_MultiChapter(t *testing.T) {
	ff := &fixtureFetcher{body: loadFixture(t, "work_multi.html")}
	a := New(ff)

	f, err := a.ExtractData(context.Background(), "https://archiveofourown.org/works/10057010/chapters/22409393")
	require.NoError(t, err)

	require.Len(t, ff.requests, 1)
	assert.Equal(t, "https://archiveofourown.org/works/10057010?view_adult=true&view_full_work=true", ff.requests[0].URL)

	assert.Equal(t, "https://archiveofourown.org/works/10057010", f.URL)
	assert.Equal(t, Website, f.Website)
	assert.Equal(t, "All the Young Dudes", f.Title)
	assert.Equal(t, "MsKingBean89", f.Author)
	assert.Equal(t, "LONG fic charting the marauders' time at Hogwarts & beyond.\n\nTold from Remus' perspective.", f.Summary)
	assert.Equal(t, 148763, f.LikesCount)
	assert.Equal(t, fanfic.RatingM, f.Rating)
	assert.Equal(t, "English", f.Language)
	assert.True(t, f.IsCompleted)
	assert.Equal(t, []string{"Harry Potter - J. K. Rowling"}, f.Fandom)
	assert.Equal(t, []string{"Sirius Black/Remus Lupin", "James Potter/Lily Evans Potter"}, f.Ships)
	assert.Equal(t, []string{"Marauders' Era", "Slow Burn", "Angst"}, f.Tags)

	assert.Equal(t, []fanfic.Chapter{
		{Number: 1, WordsCount: 10, Title: "First Year: Privet Drive", URL: "https://archiveofourown.org/works/10057010/chapters/22409387"},
		{Number: 2, WordsCount: 3, Title: "Chapter 2", URL: "https://archiveofourown.org/works/10057010/chapters/22409393"},
		{Number: 3, WordsCount: 5, Title: "Moony", URL: "https://archiveofourown.org/works/10057010/chapters/22409400"},
	}, f.Chapters)
	assert.Equal(t, 18, f.TotalWords())
	require.NoError(t, fanfic.Validate(f))
}

func TestExtractData_OneShot(t *testing.T) {
	a := New(&fixtureFetcher{body: loadFixture(t, "work_oneshot.html")})

	f, err := a.ExtractData(context.Background(), "https://archiveofourown.org/works/42")
	require.NoError(t, err)

	assert.Equal(t, "Tea", f.Title)
	assert.Equal(t, "Iroh, Zuko", f.Author)
	assert.Equal(t, fanfic.RatingNone, f.Rating, "Not Rated has no mapping")
	assert.Equal(t, 42, f.LikesCount)
	assert.True(t, f.IsCompleted)
	assert.Equal(t, "", f.Summary)
	assert.Equal(t, []string{}, f.Ships)
	assert.Equal(t, []string{}, f.Tags)
	assert.Equal(t, []fanfic.Chapter{
		{Number: 1, WordsCount: 10, Title: "Tea", URL: "https://archiveofourown.org/works/42"},
	}, f.Chapters)
}

func TestExtractData_Incomplete(t *testing.T) {
	a := New(&fixtureFetcher{body: loadFixture(t, "work_incomplete.html")})

	f, err := a.ExtractData(context.Background(), "https://archiveofourown.org/works/5")
	require.NoError(t, err)

	assert.False(t, f.IsCompleted)
	assert.Equal(t, fanfic.RatingT, f.Rating)
	assert.Equal(t, "Français", f.Language)
	assert.Equal(t, 0, f.LikesCount)
	assert.Equal(t, "", f.Author)
	assert.Equal(t, []fanfic.Chapter{
		{Number: 1, WordsCount: 2, Title: "Début", URL: "https://archiveofourown.org/works/5/chapters/50"},
		{Number: 2, WordsCount: 0, Title: "Chapter 2", URL: "https://archiveofourown.org/works/5"},
	}, f.Chapters)
}

func TestExtractData_LoginWall(t *testing.T) {
	a := New(&fixtureFetcher{body: loadFixture(t, "login_wall.html")})
	_, err := a.ExtractData(context.Background(), "https://archiveofourown.org/works/7")
	assert.ErrorIs(t, err, ErrWorkNotFound)

	_, err = a.ExtractChapters(context.Background(), "https://archiveofourown.org/works/7")
	assert.ErrorIs(t, err, ErrWorkNotFound)
}

func TestExtractData_NoChapterBody(t *testing.T) {
	a := New(&fixtureFetcher{body: []byte(`<div id="workskin"><h2 class="title heading">Empty</h2></div>`)})
	_, err := a.ExtractData(context.Background(), "https://archiveofourown.org/works/8")
	assert.ErrorIs(t, err, ErrNoChapters)
}

func TestExtractData_FetchError(t *testing.T) {
	cause := &fetch.StatusError{URL: "u", StatusCode: http.StatusServiceUnavailable}
	a := New(&fixtureFetcher{err: cause})
	_, err := a.ExtractData(context.Background(), "https://archiveofourown.org/works/9")
	assert.ErrorIs(t, err, fetch.ErrUnexpectedStatus)
	assert.True(t, errors.As(err, new(*fetch.StatusError)))
}

func TestExtractChapters_MatchesExtractData(t *testing.T) {
	ff := &fixtureFetcher{body: loadFixture(t, "work_multi.html")}
	a := New(ff)
	ctx := context.Background()

	chapters, err := a.ExtractChapters(ctx, "https://archiveofourown.org/works/10057010")
	require.NoError(t, err)
	f, err := a.ExtractData(ctx, "https://archiveofourown.org/works/10057010")
	require.NoError(t, err)
	assert.Equal(t, f.Chapters, chapters)
	assert.Equal(t, ff.requests[0].URL, ff.requests[1].URL)
}

func TestExtractData_Idempotent(t *testing.T) {
	a := New(&fixtureFetcher{body: loadFixture(t, "work_multi.html")})
	ctx := context.Background()

	first, err := a.ExtractData(ctx, "https://archiveofourown.org/works/10057010/chapters/22409393")
	require.NoError(t, err)
	second, err := a.ExtractData(ctx, "https://archiveofourown.org/works/10057010/chapters/22409393")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtractData_OverHTTP(t *testing.T) {
	page := loadFixture(t, "work_multi.html")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/works/10057010" || r.URL.Query().Get("view_adult") != "true" || r.URL.Query().Get("view_full_work") != "true" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	}))
	defer srv.Close()

	a := &Adapter{Fetcher: &fetch.Client{UserAgent: "fictracker-test"}, BaseURL: srv.URL}
	f, err := a.ExtractData(context.Background(), "https://archiveofourown.org/works/10057010/chapters/22409387")
	require.NoError(t, err)
	assert.Equal(t, "https://archiveofourown.org/works/10057010", f.URL)
	assert.Len(t, f.Chapters, 3)
}

func TestIsCompleted(t *testing.T) {
	tests := map[string]bool{
		"3/3":         true,
		"4/3":         true,
		"2/3":         false,
		"2/?":         false,
		"1,200/1,200": true,
		"":            false,
		"0/0":         false,
		"x/3":         false,
	}
	for in, want := range tests {
		assert.Equal(t, want, isCompleted(in), in)
	}
}

func TestParseCount(t *testing.T) {
	assert.Equal(t, 1234567, parseCount("1,234,567"))
	assert.Equal(t, 0, parseCount(""))
	assert.Equal(t, 0, parseCount("lots"))
}
