package domain

// Scope is the portion of the event a market covers. Scope is checked before
// anything else during matching because it changes the meaning of every other
// attribute (a first-half total is not a full-game total).
type Scope string

const (
	ScopeFull Scope = "full"
	ScopeH1   Scope = "h1"
	ScopeH2   Scope = "h2"
	ScopeQ1   Scope = "q1"
	ScopeSet1 Scope = "set1"
)

// MarketType is the shape of the proposition.
type MarketType string

const (
	TypeMoneyline  MarketType = "moneyline"
	TypeSpread     MarketType = "spread"
	TypeTotal      MarketType = "total"
	TypePlayerProp MarketType = "player_prop"
)

// EntityKind says what the proposition is about.
type EntityKind string

const (
	EntityMatch  EntityKind = "match"
	EntityPlayer EntityKind = "player"
	EntityTeam   EntityKind = "team"
)

// Fingerprint is the derived structural key of a market title. Two markets
// are structurally compatible only when scope, market type, and (for player
// props) subtype agree. Fingerprints are computed fresh per comparison and
// never persisted: they derive from free text that varies venue to venue.
type Fingerprint struct {
	Scope      Scope
	MarketType MarketType
	Subtype    string // prop subtype or totals line value; "main" otherwise
	Entity     EntityKind
}

// CompatibleWith reports whether two fingerprints describe the same market
// shape. Outcome direction (over vs under, yes vs no) is deliberately not
// part of the fingerprint.
func (f Fingerprint) CompatibleWith(other Fingerprint) bool {
	if f.Scope != other.Scope {
		return false
	}
	if f.MarketType != other.MarketType {
		return false
	}
	if f.MarketType == TypePlayerProp && f.Subtype != other.Subtype {
		return false
	}
	return true
}
