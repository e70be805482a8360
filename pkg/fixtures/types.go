// Package fixtures provides the upcoming-match model consumed by the
// prediction engine, plus match sources (file, HTTP and a seeded synthetic
// generator).
package fixtures

import (
	"errors"
	"fmt"
	"time"

	"github.com/phenomenon0/puntaiq/core"
)

// ErrInvalidMatch is returned by Validate for malformed matches.
var ErrInvalidMatch = errors.New("invalid match")

// Team holds the attributes of one side of a fixture.
type Team struct {
	Name    string `json:"name"`
	Ranking int    `json:"ranking,omitempty"` // 1 = best, 0 = unknown
	Form    string `json:"form,omitempty"`    // Most recent last, e.g. "WDLWW"

	// Football scoring averages per match (optional)
	GoalsFor     *float64 `json:"goals_for,omitempty"`
	GoalsAgainst *float64 `json:"goals_against,omitempty"`

	// Basketball ratings, points per 100 possessions (optional)
	Offense float64 `json:"offense_rating,omitempty"`
	Defense float64 `json:"defense_rating,omitempty"`
}

// HasGoalData reports whether both scoring averages are present.
func (t Team) HasGoalData() bool {
	return t.GoalsFor != nil && t.GoalsAgainst != nil
}

// Odds are decimal bookmaker prices. Draw is zero for two-way sports.
type Odds struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw,omitempty"`
	Away float64 `json:"away"`
}

// For returns the price of a side (zero when unpriced).
func (o Odds) For(side core.Side) float64 {
	switch side {
	case core.SideHome:
		return o.Home
	case core.SideDraw:
		return o.Draw
	case core.SideAway:
		return o.Away
	default:
		return 0
	}
}

// Favorite returns the side with the lowest positive price, ties broken by
// side priority. ok is false when nothing is priced.
func (o Odds) Favorite(sport core.Sport) (side core.Side, ok bool) {
	best := 0.0
	for _, s := range sport.Sides() {
		price := o.For(s)
		if price <= 0 {
			continue
		}
		if !ok || price < best {
			best, side, ok = price, s, true
		}
	}
	return side, ok
}

// DefaultOdds returns sport-typical prices used when a source has none.
func DefaultOdds(sport core.Sport) Odds {
	if sport == core.SportBasketball {
		return Odds{Home: 1.8, Away: 2.2}
	}
	return Odds{Home: 2.0, Draw: 3.5, Away: 4.0}
}

// Match is an upcoming fixture. It is read-only once produced by a Source.
type Match struct {
	ID        string     `json:"id"`
	Sport     core.Sport `json:"sport"`
	League    string     `json:"league"`
	StartTime time.Time  `json:"start_time"`
	Home      Team       `json:"home_team"`
	Away      Team       `json:"away_team"`
	Odds      *Odds      `json:"odds,omitempty"`
}

// Validate checks the fields every prediction path relies on.
func (m *Match) Validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidMatch)
	case !m.Sport.Valid():
		return fmt.Errorf("%w: match %s: unsupported sport %q", ErrInvalidMatch, m.ID, m.Sport)
	case m.Home.Name == "" || m.Away.Name == "":
		return fmt.Errorf("%w: match %s: missing team name", ErrInvalidMatch, m.ID)
	case m.Home.Ranking < 0 || m.Away.Ranking < 0:
		return fmt.Errorf("%w: match %s: negative ranking", ErrInvalidMatch, m.ID)
	}
	return nil
}

// PricedOdds returns the match odds with every missing price filled from
// the sport defaults.
func (m *Match) PricedOdds() Odds {
	def := DefaultOdds(m.Sport)
	if m.Odds == nil {
		return def
	}
	o := *m.Odds
	if o.Home <= 0 {
		o.Home = def.Home
	}
	if o.Away <= 0 {
		o.Away = def.Away
	}
	if m.Sport == core.SportFootball && o.Draw <= 0 {
		o.Draw = def.Draw
	}
	if m.Sport == core.SportBasketball {
		o.Draw = 0
	}
	return o
}

// Key returns a normalized fixture key (sport + date + teams) used to
// detect the same fixture arriving under different ids.
func (m *Match) Key() string {
	return string(m.Sport) + "_" + m.StartTime.UTC().Format("2006-01-02") + "_" +
		NormalizeName(m.Home.Name) + "_" + NormalizeName(m.Away.Name)
}

// Matchup returns "Home vs Away".
func (m *Match) Matchup() string {
	return m.Home.Name + " vs " + m.Away.Name
}
