// Package graph implements batch orphan resolution: markets the staged
// resolver could not map are clustered on a weighted similarity graph, and
// each cluster yields lower-trust mapping suggestions for later promotion.
package graph

import (
	"fmt"
	"strings"
)

// GenerateAliases produces lexical variants of a label to raise recall for
// abbreviated names: "Jannik Sinner" also indexes as "J. Sinner",
// "Sinner, J.", "J Sinner", and "Sinner". The bare surname is risky on its
// own, which is why alias hits only ever create candidate edges, never
// accepted matches.
func GenerateAliases(label string) []string {
	aliases := []string{label}
	t := strings.ToLower(strings.TrimSpace(label))
	parts := strings.Fields(t)

	if len(parts) == 2 && len(parts[0]) > 0 && len(parts[1]) > 1 {
		first, last := parts[0], parts[1]
		aliases = append(aliases,
			fmt.Sprintf("%c. %s", first[0], last),
			fmt.Sprintf("%s, %c.", last, first[0]),
			fmt.Sprintf("%c %s", first[0], last),
			last,
		)
	}

	if strings.Contains(t, "man ") && strings.Contains(t, "utd") {
		aliases = append(aliases, strings.ReplaceAll(strings.ReplaceAll(t, "man ", "manchester "), "utd", "united"))
	}
	return aliases
}

// indexTokens returns the tokens of an alias worth indexing. Tokens of
// three characters or fewer ("de", "fc", "vs") would bridge unrelated
// events and are skipped.
func indexTokens(alias string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(alias)) {
		tok = strings.Trim(tok, ".,:;!?()[]'\"")
		if len(tok) > 3 {
			out = append(out, tok)
		}
	}
	return out
}
