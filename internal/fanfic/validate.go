package fanfic

import (
	"errors"
	"fmt"
)

// ErrInvalidRecord is wrapped by every invariant violation reported by Validate.
var ErrInvalidRecord = errors.New("invalid fanfic record")

// Validate checks the record invariants adapters must uphold. A record that
// fails validation is treated as a failed extraction by the dispatcher.
func Validate(f Fanfic) error {
	if f.LikesCount < 0 {
		return fmt.Errorf("%w: negative likes count %d", ErrInvalidRecord, f.LikesCount)
	}
	if !f.Rating.Valid() {
		return fmt.Errorf("%w: rating %q outside taxonomy", ErrInvalidRecord, string(f.Rating))
	}
	if err := ValidateChapters(f.Chapters); err != nil {
		return err
	}
	if f.IsCompleted && len(f.Chapters) == 0 {
		return fmt.Errorf("%w: completed work without chapters", ErrInvalidRecord)
	}
	return nil
}

// ValidateChapters checks that numbering is exactly 1..N and counts are
// non-negative.
func ValidateChapters(chapters []Chapter) error {
	for i, c := range chapters {
		if c.Number != i+1 {
			return fmt.Errorf("%w: chapter at index %d numbered %d", ErrInvalidRecord, i, c.Number)
		}
		if c.WordsCount < 0 {
			return fmt.Errorf("%w: chapter %d has negative word count", ErrInvalidRecord, c.Number)
		}
	}
	return nil
}
