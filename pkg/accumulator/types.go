// Package accumulator combines predictions into multi-leg bets.
package accumulator

import (
	"fmt"
	"math"
	"time"

	"github.com/phenomenon0/puntaiq/core"
)

// Selection is one leg of an accumulator.
type Selection struct {
	MatchID    string      `json:"matchId"`
	HomeTeam   string      `json:"homeTeam"`
	AwayTeam   string      `json:"awayTeam"`
	League     string      `json:"league"`
	StartTime  time.Time   `json:"startTime"`
	Sport      core.Sport  `json:"sport"`
	Market     core.Market `json:"market"`
	Outcome    string      `json:"outcome"`
	Odds       float64     `json:"odds"`
	Confidence float64     `json:"confidence"`
	Tier       core.Tier   `json:"tier"`

	PredictionID string `json:"-"`
	FixtureKey   string `json:"-"`
}

// Accumulator is an immutable multi-leg bet.
type Accumulator struct {
	ID         string      `json:"id"`
	CreatedAt  time.Time   `json:"createdAt"`
	Size       int         `json:"size"`
	Tier       core.Tier   `json:"tier"`
	TotalOdds  float64     `json:"totalOdds"`
	Confidence float64     `json:"confidence"`
	Selections []Selection `json:"selections"`
	IsPremium  bool        `json:"isPremium"`
}

// Validate checks the structural invariants of an accumulator.
func (a *Accumulator) Validate() error {
	if a.Size != len(a.Selections) {
		return fmt.Errorf("accumulator %s: size %d with %d selections", a.ID, a.Size, len(a.Selections))
	}
	product := 1.0
	for _, s := range a.Selections {
		product *= s.Odds
	}
	if math.Abs(product-a.TotalOdds) > 1e-6*math.Max(1, product) {
		return fmt.Errorf("accumulator %s: total odds %v, legs multiply to %v", a.ID, a.TotalOdds, product)
	}
	if a.Confidence < 0 || a.Confidence >= 100 {
		return fmt.Errorf("accumulator %s: confidence %v out of range", a.ID, a.Confidence)
	}
	return nil
}

// MatchIDs returns the leg match ids in leg order.
func (a *Accumulator) MatchIDs() []string {
	ids := make([]string, len(a.Selections))
	for i, s := range a.Selections {
		ids[i] = s.MatchID
	}
	return ids
}
