// Package fanfic defines the normalized record every site adapter produces.
package fanfic

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Rating is the closed audience taxonomy shared by all sources.
// The zero value means the source rating could not be mapped.
type Rating string

const (
	RatingNone Rating = ""
	RatingK    Rating = "K"
	RatingT    Rating = "T"
	RatingM    Rating = "M"
)

// Ratings lists the valid ratings in ascending order of maturity.
var Ratings = []Rating{RatingK, RatingT, RatingM}

// ParseRating accepts exactly one of the taxonomy letters.
func ParseRating(s string) (Rating, bool) {
	for _, r := range Ratings {
		if string(r) == s {
			return r, true
		}
	}
	return RatingNone, false
}

// Valid reports whether r is RatingNone or part of the taxonomy.
func (r Rating) Valid() bool {
	if r == RatingNone {
		return true
	}
	_, ok := ParseRating(string(r))
	return ok
}

// MarshalJSON encodes RatingNone as null.
func (r Rating) MarshalJSON() ([]byte, error) {
	if r == RatingNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// UnmarshalJSON decodes null as RatingNone.
func (r *Rating) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*r = RatingNone
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*r = RatingNone
		return nil
	}
	parsed, ok := ParseRating(s)
	if !ok {
		return fmt.Errorf("unknown rating %q", s)
	}
	*r = parsed
	return nil
}

// Chapter is one entry of a work's chapter index.
type Chapter struct {
	// Number is the dense 1-based position, not the source's own numbering.
	Number     int    `json:"number"`
	WordsCount int    `json:"wordsCount"`
	URL        string `json:"url"`
	Title      string `json:"title"`
}

// Fanfic is the normalized record returned by extraction.
type Fanfic struct {
	Title       string    `json:"title"`
	URL         string    `json:"url,omitempty"`
	Author      string    `json:"author"`
	Website     string    `json:"website"`
	Summary     string    `json:"summary"`
	LikesCount  int       `json:"likesCount"`
	Tags        []string  `json:"tags"`
	Rating      Rating    `json:"rating"`
	IsCompleted bool      `json:"isCompleted"`
	Fandom      []string  `json:"fandom"`
	Ships       []string  `json:"ships"`
	Language    string    `json:"language"`
	Chapters    []Chapter `json:"chapters"`
}

// Empty returns the default record used whenever extraction fails.
func Empty() Fanfic {
	return Fanfic{
		Tags:     []string{},
		Fandom:   []string{},
		Ships:    []string{},
		Chapters: []Chapter{},
	}
}

// Normalize replaces nil slices with empty ones so the record always
// serializes arrays as [].
func (f *Fanfic) Normalize() {
	if f.Tags == nil {
		f.Tags = []string{}
	}
	if f.Fandom == nil {
		f.Fandom = []string{}
	}
	if f.Ships == nil {
		f.Ships = []string{}
	}
	if f.Chapters == nil {
		f.Chapters = []Chapter{}
	}
}

// TotalWords sums the word counts of all chapters.
func (f Fanfic) TotalWords() int {
	total := 0
	for _, c := range f.Chapters {
		total += c.WordsCount
	}
	return total
}
