package domain

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// Scoring tiers. An exact name match always outranks a substring match, and
// any substring match always outranks a fuzzy one.
const (
	scoreExact         = 1000
	scoreSubstringBase = 500
	scoreYearOnly      = 1
)

// Search ranks catalog entries against a name query. Matching is
// case-insensitive over both the Korean and English names. When year is
// non-nil, entries from other years are excluded outright rather than
// penalized. An empty query with a year lists that season. Results are
// ordered by score descending, ties broken by most recent year then by
// ascending sequence number. No matches yields an empty slice, not an error.
func Search(query string, year *int, catalog []CatalogEntry) []SearchCandidate {
	q := strings.TrimSpace(query)

	candidates := make([]SearchCandidate, 0, len(catalog))
	for _, e := range catalog {
		if year != nil && e.Year != *year {
			continue
		}
		score := scoreYearOnly
		if q != "" {
			score = matchScore(q, e)
			if score <= 0 {
				continue
			}
		}
		candidates = append(candidates, SearchCandidate{
			Seq:    e.Seq,
			Name:   e.Name,
			NameEN: e.NameEN,
			Year:   e.Year,
			Score:  score,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		return a.Seq < b.Seq
	})
	return candidates
}

func matchScore(query string, e CatalogEntry) int {
	best := 0
	for _, name := range []string{e.Name, e.NameEN} {
		if name == "" {
			continue
		}
		if s := nameScore(query, name); s > best {
			best = s
		}
	}
	return best
}

func nameScore(query, name string) int {
	q := strings.ToLower(query)
	n := strings.ToLower(name)

	switch {
	case q == n:
		return scoreExact
	case strings.Contains(n, q):
		// Tighter substring coverage ranks higher: "MAN" in "MANGKHUT"
		// beats "MAN" in a longer compound name.
		return scoreSubstringBase + (100*len(q))/len(n)
	}

	matches := fuzzy.Find(query, []string{name})
	if len(matches) == 0 {
		return 0
	}
	s := matches[0].Score
	if s < 1 {
		s = 1
	}
	if s >= scoreSubstringBase {
		s = scoreSubstringBase - 1
	}
	return s
}
