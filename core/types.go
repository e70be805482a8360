// Package core provides the shared vocabulary of the prediction engine:
// sports, outcome sides, market names, quality tiers and confidence bands.
package core

import (
	"fmt"
	"strings"
)

// Sport identifies a supported sport.
type Sport string

const (
	SportFootball   Sport = "football"
	SportBasketball Sport = "basketball"
)

// Valid reports whether the sport is supported.
func (s Sport) Valid() bool {
	switch s {
	case SportFootball, SportBasketball:
		return true
	default:
		return false
	}
}

// ParseSport parses a sport name (case-insensitive, "soccer" accepted).
func ParseSport(s string) (Sport, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "football", "soccer":
		return SportFootball, nil
	case "basketball":
		return SportBasketball, nil
	default:
		return "", fmt.Errorf("unknown sport %q", s)
	}
}

// UnmarshalText canonicalizes known sport names and aliases. Unknown names
// are kept lowercased so validation can reject the match that carries them.
func (s *Sport) UnmarshalText(text []byte) error {
	sport, err := ParseSport(string(text))
	if err != nil {
		*s = Sport(strings.ToLower(strings.TrimSpace(string(text))))
		return nil
	}
	*s = sport
	return nil
}

// Side is a match outcome independent of how a sport labels it.
type Side string

const (
	SideHome Side = "home"
	SideDraw Side = "draw"
	SideAway Side = "away"
)

// SidePriority is the fixed tie-break order for equal probabilities.
var SidePriority = []Side{SideHome, SideDraw, SideAway}

// Sides returns the outcome sides available in a sport, in priority order.
func (s Sport) Sides() []Side {
	if s == SportBasketball {
		return []Side{SideHome, SideAway}
	}
	return SidePriority
}

// Code returns the outcome code used in output for this sport:
// "1", "X", "2" for football and "home", "away" for basketball.
func (s Side) Code(sport Sport) string {
	if sport == SportBasketball {
		return string(s)
	}
	switch s {
	case SideHome:
		return "1"
	case SideDraw:
		return "X"
	case SideAway:
		return "2"
	default:
		return ""
	}
}

// ParseSide maps a class label or outcome code to a Side.
func ParseSide(label string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "home", "1", "h", "home_win":
		return SideHome, nil
	case "draw", "x", "d":
		return SideDraw, nil
	case "away", "2", "a", "away_win":
		return SideAway, nil
	default:
		return "", fmt.Errorf("unknown outcome label %q", label)
	}
}

// Market names a betting market.
type Market string

const (
	Market1X2          Market = "1X2"
	MarketWinner       Market = "Winner"
	MarketBTTS         Market = "BTTS"
	MarketOverUnder    Market = "OverUnder"
	MarketCorrectScore Market = "CorrectScore"
	MarketTotalPoints  Market = "TotalPoints"
	MarketSpread       Market = "Spread"
)

// PrimaryMarket returns the market carrying a sport's predicted outcome.
func PrimaryMarket(sport Sport) Market {
	if sport == SportBasketball {
		return MarketWinner
	}
	return Market1X2
}

// Tier is a discrete quality classification. Tier 1 is the strictest.
type Tier int

const (
	TierNone Tier = 0
	Tier1    Tier = 1
	Tier2    Tier = 2
	Tier5    Tier = 5
	Tier10   Tier = 10
)

// Tiers lists the tiers from strictest to loosest.
var Tiers = []Tier{Tier1, Tier2, Tier5, Tier10}

// String implements fmt.Stringer.
func (t Tier) String() string {
	if t == TierNone {
		return ""
	}
	return fmt.Sprintf("Tier %d", int(t))
}

// Key returns a bucket-friendly key such as "tier_1".
func (t Tier) Key() string {
	return fmt.Sprintf("tier_%d", int(t))
}

// AtLeast reports whether t is as strict as other or stricter.
func (t Tier) AtLeast(other Tier) bool {
	return t != TierNone && t <= other
}

// Next returns the next looser tier. Tier 10 is its own successor.
func (t Tier) Next() Tier {
	switch t {
	case Tier1:
		return Tier2
	case Tier2:
		return Tier5
	default:
		return Tier10
	}
}

// MarshalText encodes the tier as "Tier N".
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts "Tier N", "tier_N" or "N".
func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTier parses "Tier 1", "tier_1", "1" and the empty string (TierNone).
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return TierNone, nil
	}
	s = strings.TrimPrefix(s, "tier")
	s = strings.TrimLeft(s, " _")
	switch s {
	case "1":
		return Tier1, nil
	case "2":
		return Tier2, nil
	case "5":
		return Tier5, nil
	case "10":
		return Tier10, nil
	default:
		return TierNone, fmt.Errorf("unknown tier %q", s)
	}
}

// ConfidenceLevel is the human-facing band of a confidence percentage.
type ConfidenceLevel string

const (
	ConfidenceVeryHigh ConfidenceLevel = "very high"
	ConfidenceHigh     ConfidenceLevel = "high"
	ConfidenceMedium   ConfidenceLevel = "medium"
	ConfidenceLow      ConfidenceLevel = "low"
	ConfidenceVeryLow  ConfidenceLevel = "very low"
)

// Band maps a confidence percentage to its level.
func Band(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 85:
		return ConfidenceVeryHigh
	case confidence >= 70:
		return ConfidenceHigh
	case confidence >= 55:
		return ConfidenceMedium
	case confidence >= 40:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}
