// Package match resolves free-text monster requests against the curated
// catalog using normalized Levenshtein similarity. The scoring function and
// the 0.30 acceptance threshold are load-bearing: existing catalogs were
// curated against this exact behavior.
package match

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// CatalogEntry is a curated monster the queue can point at. Aliases are
// optional alternative spellings; they are not validated against the
// canonical name (curation is permissive on purpose).
type CatalogEntry struct {
	Name    string   `json:"name"`
	Image   string   `json:"image"`
	Aliases []string `json:"aliases,omitempty"`
}

// Threshold below which the best candidate is treated as no match.
const Threshold = 0.3

// Similarity returns a normalized edit-distance similarity in [0,1].
// 1 means identical. Distance and lengths are counted in runes, not bytes;
// catalog names are mostly CJK and byte lengths would skew the ratio.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	maxLen := la
	if lb > la {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// Match scans the catalog for the entry whose name or alias scores highest
// against query, case-insensitively. Ties keep the first entry seen, so the
// result is deterministic for a stable catalog order. Returns false when the
// catalog is empty or the best score falls below Threshold.
func Match(catalog []CatalogEntry, query string) (CatalogEntry, bool) {
	if len(catalog) == 0 {
		return CatalogEntry{}, false
	}
	q := strings.ToLower(query)

	var best CatalogEntry
	bestScore := 0.0
	found := false
	for _, entry := range catalog {
		if s := Similarity(strings.ToLower(entry.Name), q); s > bestScore {
			bestScore = s
			best = entry
			found = true
		}
		for _, alias := range entry.Aliases {
			if s := Similarity(strings.ToLower(alias), q); s > bestScore {
				bestScore = s
				best = entry
				found = true
			}
		}
	}
	if !found || bestScore < Threshold {
		return CatalogEntry{}, false
	}
	return best, true
}
