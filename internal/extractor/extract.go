package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Zareix/fictracker/internal/fanfic"
)

var (
	// ErrUnsupportedSource means no route handles the URL.
	ErrUnsupportedSource = errors.New("unsupported source")
	// ErrPanic wraps a panic raised inside an adapter.
	ErrPanic = errors.New("adapter panicked")
)

// Error is a failure attributed to one site adapter.
type Error struct {
	Site string
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: extract %s: %v", e.Site, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Extract runs the matching adapter and validates its record.
func (r *Registry) Extract(ctx context.Context, rawURL string) (f fanfic.Fanfic, err error) {
	rt, ok := r.Lookup(rawURL)
	if !ok {
		return fanfic.Empty(), fmt.Errorf("%w: %s", ErrUnsupportedSource, rawURL)
	}
	defer func() {
		if p := recover(); p != nil {
			f, err = fanfic.Empty(), panicError(rt, rawURL, p)
		}
	}()

	f, err = rt.Adapter.ExtractData(ctx, strings.TrimSpace(rawURL))
	if err != nil {
		return fanfic.Empty(), &Error{Site: rt.Name, URL: rawURL, Err: err}
	}
	f.Normalize()
	if err := fanfic.Validate(f); err != nil {
		return fanfic.Empty(), &Error{Site: rt.Name, URL: rawURL, Err: err}
	}
	return f, nil
}

// ExtractChapters runs the matching adapter's chapter enumeration.
func (r *Registry) ExtractChapters(ctx context.Context, rawURL string) (chapters []fanfic.Chapter, err error) {
	rt, ok := r.Lookup(rawURL)
	if !ok {
		return []fanfic.Chapter{}, fmt.Errorf("%w: %s", ErrUnsupportedSource, rawURL)
	}
	defer func() {
		if p := recover(); p != nil {
			chapters, err = []fanfic.Chapter{}, panicError(rt, rawURL, p)
		}
	}()

	chapters, err = rt.Adapter.ExtractChapters(ctx, strings.TrimSpace(rawURL))
	if err != nil {
		return []fanfic.Chapter{}, &Error{Site: rt.Name, URL: rawURL, Err: err}
	}
	if chapters == nil {
		chapters = []fanfic.Chapter{}
	}
	if err := fanfic.ValidateChapters(chapters); err != nil {
		return []fanfic.Chapter{}, &Error{Site: rt.Name, URL: rawURL, Err: err}
	}
	return chapters, nil
}

func panicError(rt Route, rawURL string, p any) error {
	return &Error{Site: rt.Name, URL: rawURL, Err: fmt.Errorf("%w: %v", ErrPanic, p)}
}

// ExtractFanficData never fails: unsupported URLs and extraction failures
// both yield the empty record, and the reason is logged.
func (r *Registry) ExtractFanficData(ctx context.Context, rawURL string) fanfic.Fanfic {
	f, err := r.Extract(ctx, rawURL)
	if err != nil {
		logFailure(ctx, rawURL, err)
		return fanfic.Empty()
	}
	log.Ctx(ctx).Debug().
		Str("url", rawURL).
		Str("site", f.Website).
		Int("chapters", len(f.Chapters)).
		Msg("extracted fanfic")
	return f
}

// ExtractFanficChapters is the chapter-only counterpart of ExtractFanficData.
func (r *Registry) ExtractFanficChapters(ctx context.Context, rawURL string) []fanfic.Chapter {
	chapters, err := r.ExtractChapters(ctx, rawURL)
	if err != nil {
		logFailure(ctx, rawURL, err)
		return []fanfic.Chapter{}
	}
	return chapters
}

func logFailure(ctx context.Context, rawURL string, err error) {
	logger := log.Ctx(ctx)
	if errors.Is(err, ErrUnsupportedSource) {
		logger.Info().Str("url", rawURL).Msg("unsupported source")
		return
	}
	ev := logger.Warn().Err(err).Str("url", rawURL)
	var ee *Error
	if errors.As(err, &ee) {
		ev = ev.Str("site", ee.Site)
	}
	ev.Msg("extraction failed")
}
