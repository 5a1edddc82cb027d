// Package resolver normalizes free-text place names to canonical entities.
//
// Lookup order: exact alias match on the folded name, then bounded fuzzy
// match over the canonical+alias set. The alias tables are read-only after
// construction, so Resolve is a pure function and needs no locking.
package resolver

import (
	"strings"

	gwerrors "emissions-gateway/internal/common/errors"
	"emissions-gateway/internal/models"
)

// Accept fuzzy candidates only at or above this normalized similarity to
// avoid false corrections.
const similarityThreshold = 0.8

// levelPriority is the classification order when the caller does not state
// an expected level: first match wins.
var levelPriority = []models.EntityLevel{
	models.LevelCountry,
	models.LevelState,
	models.LevelCity,
}

type entry struct {
	canonical string
	iso3      string
	level     models.EntityLevel
}

// Resolver holds the per-level alias tables, keyed by folded alias.
type Resolver struct {
	tables map[models.EntityLevel]map[string]entry
	// names lists every folded alias per level for fuzzy scanning, in a
	// fixed order so resolution stays deterministic.
	names map[models.EntityLevel][]string
}

// New builds a resolver over the built-in reference tables.
func New() *Resolver {
	return newFromTables(referenceEntities)
}

func newFromTables(src []referenceEntity) *Resolver {
	r := &Resolver{
		tables: make(map[models.EntityLevel]map[string]entry),
		names:  make(map[models.EntityLevel][]string),
	}
	for _, lvl := range levelPriority {
		r.tables[lvl] = make(map[string]entry)
	}
	for _, re := range src {
		e := entry{canonical: re.Canonical, iso3: re.ISO3, level: re.Level}
		for _, alias := range append([]string{re.Canonical}, re.Aliases...) {
			folded := Fold(alias)
			if _, dup := r.tables[re.Level][folded]; dup {
				continue
			}
			r.tables[re.Level][folded] = e
			r.names[re.Level] = append(r.names[re.Level], folded)
		}
	}
	return r
}

// Resolve maps a raw place name to its canonical entity. When expectedLevel
// is nil the level is inferred country → state → city, first match wins.
// Identical input always yields identical output.
func (r *Resolver) Resolve(raw string, expectedLevel *models.EntityLevel) (models.ResolvedEntity, error) {
	folded := Fold(raw)
	if folded == "" {
		return models.ResolvedEntity{}, gwerrors.NewEntityNotFoundError(raw, "empty location name")
	}

	levels := levelPriority
	if expectedLevel != nil {
		levels = []models.EntityLevel{*expectedLevel}
	}

	// Exact alias match wins first.
	for _, lvl := range levels {
		if e, ok := r.tables[lvl][folded]; ok {
			return r.resolved(raw, e), nil
		}
	}

	// Fuzzy fallback, bounded by the similarity threshold. Levels are
	// scanned in priority order and a level's best hit is final, so the
	// country/state/city preference survives fuzzy matching too.
	for _, lvl := range levels {
		if e, ok := r.bestFuzzy(folded, lvl); ok {
			return r.resolved(raw, e), nil
		}
	}

	return models.ResolvedEntity{}, gwerrors.NewEntityNotFoundError(raw, "no alias within similarity threshold")
}

func (r *Resolver) resolved(raw string, e entry) models.ResolvedEntity {
	return models.ResolvedEntity{
		Input:     raw,
		Canonical: e.canonical,
		ISO3:      e.iso3,
		Level:     e.level,
	}
}

func (r *Resolver) bestFuzzy(folded string, lvl models.EntityLevel) (entry, bool) {
	bestScore := 0.0
	bestName := ""
	for _, name := range r.names[lvl] {
		score := similarity(folded, name)
		if score > bestScore || (score == bestScore && bestName != "" && name < bestName) {
			bestScore = score
			bestName = name
		}
	}
	if bestScore < similarityThreshold {
		return entry{}, false
	}
	return r.tables[lvl][bestName], true
}

// similarity is 1 - editDistance/maxLen, in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(editDistance(ra, rb))/float64(maxLen)
}

func editDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Fold lowercases, trims, collapses interior whitespace, and strips the
// diacritics seen in the reference data, so lookups are case and accent
// insensitive.
func Fold(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		if folded, ok := diacriticFold[r]; ok {
			b.WriteRune(folded)
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " ")
}

var diacriticFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ä': 'a', 'ã': 'a', 'å': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'ö': 'o', 'õ': 'o', 'ø': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ý': 'y', 'ÿ': 'y',
	'ñ': 'n', 'ç': 'c', 'š': 's', 'ž': 'z', 'ß': 's',
}
