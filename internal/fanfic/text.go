package fanfic

import (
	"regexp"
	"sort"
	"strings"
)

var (
	shipGroupRe     = regexp.MustCompile(`\[([^\]]+)\]`)
	chapterPrefixRe = regexp.MustCompile(`(?i)^\s*chapter\s+\d+\s*:\s*`)
)

// ParseShips turns a bracketed pairing string such as
// "Hiccup H., [Astrid, Hiccup] Toothless" into canonical ships
// ("Astrid/Hiccup"). Members are alphabetized within a group and the groups
// themselves are sorted. Names outside brackets are characters, not ships.
func ParseShips(s string) []string {
	ships := []string{}
	for _, m := range shipGroupRe.FindAllStringSubmatch(s, -1) {
		var members []string
		for _, name := range strings.Split(m[1], ",") {
			if name = strings.TrimSpace(name); name != "" {
				members = append(members, name)
			}
		}
		if len(members) == 0 {
			continue
		}
		sort.Strings(members)
		ships = append(ships, strings.Join(members, "/"))
	}
	sort.Strings(ships)
	return ships
}

// ChapterTitle strips a leading "Chapter N:" prefix from a chapter heading.
// A bare "Chapter 3" heading is kept as is, and "Chapter 3:" loses only its
// colon.
func ChapterTitle(raw string) string {
	raw = strings.TrimSpace(raw)
	loc := chapterPrefixRe.FindStringIndex(raw)
	if loc == nil {
		return raw
	}
	if loc[1] == len(raw) {
		return strings.TrimRight(raw, ": ")
	}
	return strings.TrimSpace(raw[loc[1]:])
}
