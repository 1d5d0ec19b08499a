package resolve

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// noiseTokens are words that carry no entity identity. They are stripped
// before token comparison so "Team A vs Team B Match Odds" and "Will Team A
// win?" reduce to the same entity tokens.
var noiseTokens = map[string]struct{}{
	"vs": {}, "v": {}, "the": {}, "de": {}, "will": {}, "win": {}, "wins": {},
	"to": {}, "beat": {}, "match": {}, "odds": {}, "winner": {}, "game": {},
	"fc": {}, "cf": {}, "sc": {}, "afc": {}, "cd": {}, "fk": {}, "sk": {},
	"club": {}, "esports": {},
}

// qualifierTokens distinguish otherwise-identical names. A qualifier present
// on only one side of a comparison blocks the match outright: "Illinois" and
// "Illinois State" share a token but are different teams, and so are
// "Manchester United" and "Manchester City".
var qualifierTokens = map[string]struct{}{
	"state": {}, "tech": {}, "united": {}, "city": {}, "town": {},
	"county": {}, "college": {}, "university": {}, "utd": {},
	"women": {}, "ladies": {}, "reserves": {}, "u21": {}, "u23": {},
	"ii": {}, "jr": {},
}

// confusingTerms may never be learned as aliases: they appear in too many
// unrelated names to identify anything.
var confusingTerms = map[string]struct{}{
	"united": {}, "city": {}, "real": {}, "fc": {}, "athletic": {},
	"atletico": {}, "sporting": {}, "inter": {}, "team": {}, "club": {},
}

var reNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeTitle lower-cases, strips diacritics, and collapses punctuation
// to single spaces.
func normalizeTitle(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(reNonAlnum.ReplaceAllString(b.String(), " ")), " ")
}

// EntitySet holds the learned alias vocabulary: alias token → canonical
// token. It is safe for concurrent use; reads dominate and writes happen
// only when a new alias is learned.
type EntitySet struct {
	mu      sync.RWMutex
	aliases map[string]string
}

func NewEntitySet() *EntitySet {
	return &EntitySet{aliases: make(map[string]string)}
}

// AddAlias records alias → canonical. Confusing terms are refused: learning
// that "united" means "manchester united" would poison every other club
// carrying the word.
func (e *EntitySet) AddAlias(alias, canonical string) bool {
	a := normalizeTitle(alias)
	c := normalizeTitle(canonical)
	if a == "" || c == "" || a == c {
		return false
	}
	if _, bad := confusingTerms[a]; bad {
		return false
	}
	e.mu.Lock()
	e.aliases[a] = c
	e.mu.Unlock()
	return true
}

// LearnFrom mines a confirmed cross-venue title pairing for a new alias.
// Only the unambiguous case is learned: the titles must already share an
// entity token and differ by exactly one token on each side, and neither
// differing token may be a qualifier or a confusing term. Returns true when
// an alias was recorded.
func (e *EntitySet) LearnFrom(sourceTitle, targetTitle string) bool {
	src := e.Tokens(sourceTitle)
	tgt := e.Tokens(targetTitle)

	shared := 0
	for tok := range src {
		if _, ok := tgt[tok]; ok {
			shared++
		}
	}
	if shared == 0 {
		return false
	}

	onlySrc := tokenDiff(src, tgt)
	onlyTgt := tokenDiff(tgt, src)
	if len(onlySrc) != 1 || len(onlyTgt) != 1 {
		return false
	}
	alias, canonical := onlySrc[0], onlyTgt[0]
	if _, q := qualifierTokens[alias]; q {
		return false
	}
	if _, q := qualifierTokens[canonical]; q {
		return false
	}
	if _, bad := confusingTerms[canonical]; bad {
		return false
	}
	return e.AddAlias(alias, canonical)
}

func tokenDiff(a, b map[string]struct{}) []string {
	var out []string
	for tok := range a {
		if _, ok := b[tok]; !ok {
			out = append(out, tok)
		}
	}
	return out
}

// canonicalize substitutes learned alias phrases inside a normalized title.
func (e *EntitySet) canonicalize(title string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for alias, canonical := range e.aliases {
		if containsPhrase(title, alias) {
			title = strings.Join(strings.Fields(strings.ReplaceAll(" "+title+" ", " "+alias+" ", " "+canonical+" ")), " ")
		}
	}
	return title
}

func containsPhrase(s, phrase string) bool {
	return strings.Contains(" "+s+" ", " "+phrase+" ")
}

// Tokens extracts the canonicalized entity tokens of a title, with noise
// words removed.
func (e *EntitySet) Tokens(title string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(e.canonicalize(normalizeTitle(title))) {
		if _, skip := noiseTokens[tok]; skip {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// entityVerdict is the outcome of comparing two titles' entity tokens.
type entityVerdict int

const (
	entityNoOverlap entityVerdict = iota
	entityAmbiguous
	entityCompatible
)

// CompareEntities applies the hard ambiguity guard. Overlap alone is not
// enough: a qualifier token present on exactly one side vetoes the pair
// regardless of how much else the names share. "Drake vs Illinois" may match
// "Illinois vs Drake" but never "Illinois State vs Drake".
func (e *EntitySet) CompareEntities(titleA, titleB string) entityVerdict {
	a := e.Tokens(titleA)
	b := e.Tokens(titleB)

	shared := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			shared++
		}
	}
	if shared == 0 {
		return entityNoOverlap
	}

	for tok := range a {
		if _, q := qualifierTokens[tok]; !q {
			continue
		}
		if _, ok := b[tok]; !ok {
			return entityAmbiguous
		}
	}
	for tok := range b {
		if _, q := qualifierTokens[tok]; !q {
			continue
		}
		if _, ok := a[tok]; !ok {
			return entityAmbiguous
		}
	}
	return entityCompatible
}
