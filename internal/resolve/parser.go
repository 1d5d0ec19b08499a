// Package resolve implements the market-matching pipeline: structural
// parsing of titles, candidate pruning by date and region, and the staged
// resolver that turns a source market into a cross-venue mapping.
package resolve

import (
	"regexp"
	"strings"

	"github.com/oddsmesh/crossarb/internal/domain"
)

var (
	reTotalLine = regexp.MustCompile(`(?i)\b(over|under)\s+(\d+(\.\d+)?)`)
	reScopeH1   = regexp.MustCompile(`(?i)\b(1h|1st half|first half)\b`)
	reScopeH2   = regexp.MustCompile(`(?i)\b(2h|2nd half|second half)\b`)
	reScopeQ1   = regexp.MustCompile(`(?i)\b(q1|1st quarter|first quarter)\b`)
	reScopeSet1 = regexp.MustCompile(`(?i)\bset 1\b`)
	reTouchdown = regexp.MustCompile(`(?i)\b(touchdown|td)\b`)
)

// ParseFingerprint derives the structural fingerprint of a market title.
// Scope markers are checked before market-type markers: "1H Over 2.5" is a
// first-half total, and missing the scope would let it match a full-game
// total at a very different price.
//
// When nothing matches, the result defaults to moneyline/full/main. The
// permissive default is intentional; over-rejection here loses valid
// opportunities, and wrong defaults are caught downstream by the
// price-consistency guard.
func ParseFingerprint(title string) domain.Fingerprint {
	t := strings.ToLower(title)

	scope := domain.ScopeFull
	switch {
	case reScopeH1.MatchString(t):
		scope = domain.ScopeH1
	case reScopeH2.MatchString(t):
		scope = domain.ScopeH2
	case reScopeQ1.MatchString(t):
		scope = domain.ScopeQ1
	case reScopeSet1.MatchString(t):
		scope = domain.ScopeSet1
	}

	fp := domain.Fingerprint{
		Scope:      scope,
		MarketType: domain.TypeMoneyline,
		Subtype:    "main",
		Entity:     domain.EntityMatch,
	}

	switch {
	case reTouchdown.MatchString(t):
		fp.MarketType = domain.TypePlayerProp
		fp.Entity = domain.EntityPlayer
		if strings.Contains(t, "first") {
			fp.Subtype = "first_td"
		} else {
			fp.Subtype = "anytime_td"
		}
	case strings.Contains(t, "rebound"):
		fp.MarketType = domain.TypePlayerProp
		fp.Subtype = "rebounds"
		fp.Entity = domain.EntityPlayer
	case strings.Contains(t, "assist"):
		fp.MarketType = domain.TypePlayerProp
		fp.Subtype = "assists"
		fp.Entity = domain.EntityPlayer
	case strings.Contains(t, "spread"), strings.Contains(t, "handicap"):
		fp.MarketType = domain.TypeSpread
	case reTotalLine.MatchString(t), strings.Contains(t, "total"):
		fp.MarketType = domain.TypeTotal
		// The line value, not the direction, is the subtype: "Over 2.5"
		// and "Under 2.5" are the same market shape.
		if m := reTotalLine.FindStringSubmatch(t); m != nil {
			fp.Subtype = m[2]
		}
	case strings.Contains(t, "point"):
		fp.MarketType = domain.TypePlayerProp
		fp.Subtype = "points"
		fp.Entity = domain.EntityPlayer
	}

	return fp
}
