// Package predict turns fixtures into per-market predictions: strength
// features, outcome probabilities (heuristic or trained), secondary
// markets, confidence and value classification.
package predict

import (
	"fmt"
	"math"
	"strings"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/fixtures"
)

// SportParams shapes the strength formula for one sport:
//
//	strength = (MaxRank+1 - rank) * RankFactor + form / FormDivisor
//
// with HomeAdvantage applied to the home side only.
type SportParams struct {
	MaxRank       int
	RankFactor    float64
	FormDivisor   float64
	FormLength    int     // Most recent results counted
	HomeAdvantage float64 // Multiplier on home strength
	StrengthFloor float64
}

// FeatureConfig configures the FeatureDeriver.
type FeatureConfig struct {
	Football   SportParams
	Basketball SportParams

	// Football expected goals
	HomeGoalBase float64 // Default: 1.5
	AwayGoalBase float64 // Default: 1.2
	XGFloor      float64 // Default: 0.3

	// Basketball expected points
	RatingWeight  float64            // Strength per rating point of offense-defense
	PointsWeight  float64            // Points per rating point of offense vs opponent defense
	PointsTilt    float64            // Points swing from the strength share
	BasePoints    map[string]float64 // League name (lowercase) -> base points
	DefaultPoints float64            // Base for leagues not listed
}

// DefaultFeatureConfig returns the default feature configuration.
func DefaultFeatureConfig() *FeatureConfig {
	return &FeatureConfig{
		Football: SportParams{
			MaxRank:       20,
			RankFactor:    1.0,
			FormDivisor:   3,
			FormLength:    5,
			HomeAdvantage: 1.2,
			StrengthFloor: 0.5,
		},
		Basketball: SportParams{
			MaxRank:       16,
			RankFactor:    1.0,
			FormDivisor:   2,
			FormLength:    10,
			HomeAdvantage: 1.15,
			StrengthFloor: 0.5,
		},
		HomeGoalBase:  1.5,
		AwayGoalBase:  1.2,
		XGFloor:       0.3,
		RatingWeight:  0.25,
		PointsWeight:  0.5,
		PointsTilt:    20,
		BasePoints:    map[string]float64{"nba": 110},
		DefaultPoints: 80,
	}
}

// Features is the flat numeric feature set of one match.
type Features struct {
	Sport        core.Sport
	HomeRank     int
	AwayRank     int
	HomeForm     float64
	AwayForm     float64
	HomeStrength float64
	AwayStrength float64

	// Expected goals (football) or points (basketball); always positive.
	HomeExpected float64
	AwayExpected float64

	HasGoalData bool
}

// Vector returns the named features fed to trained classifiers.
func (f Features) Vector() map[string]float64 {
	return map[string]float64{
		"home_rank":     float64(f.HomeRank),
		"away_rank":     float64(f.AwayRank),
		"rank_diff":     float64(f.AwayRank - f.HomeRank),
		"home_form":     f.HomeForm,
		"away_form":     f.AwayForm,
		"home_strength": f.HomeStrength,
		"away_strength": f.AwayStrength,
		"home_expected": f.HomeExpected,
		"away_expected": f.AwayExpected,
	}
}

// FeatureDeriver converts match attributes into strength signals.
type FeatureDeriver struct {
	cfg *FeatureConfig
}

// NewFeatureDeriver creates a deriver, filling unset values from defaults.
func NewFeatureDeriver(config *FeatureConfig) *FeatureDeriver {
	if config == nil {
		config = DefaultFeatureConfig()
	}

	defaults := DefaultFeatureConfig()
	cfg := *config
	if cfg.Football.MaxRank == 0 {
		cfg.Football = defaults.Football
	}
	if cfg.Basketball.MaxRank == 0 {
		cfg.Basketball = defaults.Basketball
	}
	if cfg.HomeGoalBase == 0 {
		cfg.HomeGoalBase = defaults.HomeGoalBase
	}
	if cfg.AwayGoalBase == 0 {
		cfg.AwayGoalBase = defaults.AwayGoalBase
	}
	if cfg.XGFloor == 0 {
		cfg.XGFloor = defaults.XGFloor
	}
	if cfg.RatingWeight == 0 {
		cfg.RatingWeight = defaults.RatingWeight
	}
	if cfg.PointsWeight == 0 {
		cfg.PointsWeight = defaults.PointsWeight
	}
	if cfg.PointsTilt == 0 {
		cfg.PointsTilt = defaults.PointsTilt
	}
	if cfg.BasePoints == nil {
		cfg.BasePoints = defaults.BasePoints
	}
	if cfg.DefaultPoints == 0 {
		cfg.DefaultPoints = defaults.DefaultPoints
	}

	return &FeatureDeriver{cfg: &cfg}
}

// Derive computes the features of a match. It is a pure function.
func (d *FeatureDeriver) Derive(m *fixtures.Match) (Features, error) {
	if err := m.Validate(); err != nil {
		return Features{}, err
	}

	switch m.Sport {
	case core.SportFootball:
		return d.football(m), nil
	case core.SportBasketball:
		return d.basketball(m), nil
	default:
		return Features{}, fmt.Errorf("unsupported sport %q", m.Sport)
	}
}

func (d *FeatureDeriver) football(m *fixtures.Match) Features {
	p := d.cfg.Football
	f := Features{
		Sport:    core.SportFootball,
		HomeRank: effectiveRank(m.Home.Ranking, p.MaxRank),
		AwayRank: effectiveRank(m.Away.Ranking, p.MaxRank),
		HomeForm: formScore(m.Home.Form, p.FormLength, true),
		AwayForm: formScore(m.Away.Form, p.FormLength, true),
	}

	f.HomeStrength = strength(p, f.HomeRank, f.HomeForm, 0) * p.HomeAdvantage
	f.AwayStrength = strength(p, f.AwayRank, f.AwayForm, 0)

	f.HomeExpected = d.cfg.HomeGoalBase * f.HomeStrength / float64(p.MaxRank)
	f.AwayExpected = d.cfg.AwayGoalBase * f.AwayStrength / float64(p.MaxRank)

	if m.Home.HasGoalData() && m.Away.HasGoalData() {
		f.HasGoalData = true
		homeAttack := (*m.Home.GoalsFor + *m.Away.GoalsAgainst) / 2
		awayAttack := (*m.Away.GoalsFor + *m.Home.GoalsAgainst) / 2
		f.HomeExpected = (f.HomeExpected + homeAttack) / 2
		f.AwayExpected = (f.AwayExpected + awayAttack) / 2
	}

	f.HomeExpected = floorFinite(f.HomeExpected, d.cfg.XGFloor)
	f.AwayExpected = floorFinite(f.AwayExpected, d.cfg.XGFloor)
	return f
}

func (d *FeatureDeriver) basketball(m *fixtures.Match) Features {
	p := d.cfg.Basketball
	f := Features{
		Sport:    core.SportBasketball,
		HomeRank: effectiveRank(m.Home.Ranking, p.MaxRank),
		AwayRank: effectiveRank(m.Away.Ranking, p.MaxRank),
		HomeForm: formScore(m.Home.Form, p.FormLength, false),
		AwayForm: formScore(m.Away.Form, p.FormLength, false),
	}

	homeNet := d.cfg.RatingWeight * ratingDiff(m.Home.Offense, m.Home.Defense)
	awayNet := d.cfg.RatingWeight * ratingDiff(m.Away.Offense, m.Away.Defense)
	f.HomeStrength = strength(p, f.HomeRank, f.HomeForm, homeNet) * p.HomeAdvantage
	f.AwayStrength = strength(p, f.AwayRank, f.AwayForm, awayNet)

	base := d.basePoints(m.League)
	share := f.HomeStrength / (f.HomeStrength + f.AwayStrength)
	tilt := d.cfg.PointsTilt * (share - 0.5)

	f.HomeExpected = base + d.cfg.PointsWeight*ratingDiff(m.Home.Offense, m.Away.Defense) + tilt
	f.AwayExpected = base + d.cfg.PointsWeight*ratingDiff(m.Away.Offense, m.Home.Defense) - tilt
	f.HomeExpected = floorFinite(f.HomeExpected, base/2)
	f.AwayExpected = floorFinite(f.AwayExpected, base/2)
	return f
}

func (d *FeatureDeriver) basePoints(league string) float64 {
	if v, ok := d.cfg.BasePoints[strings.ToLower(strings.TrimSpace(league))]; ok {
		return v
	}
	return d.cfg.DefaultPoints
}

func strength(p SportParams, rank int, form, extra float64) float64 {
	s := float64(p.MaxRank+1-rank)*p.RankFactor + form/p.FormDivisor + extra
	return floorFinite(s, p.StrengthFloor)
}

// effectiveRank maps unknown ranks to mid-table and clamps to [1, maxRank].
func effectiveRank(rank, maxRank int) int {
	switch {
	case rank <= 0:
		return (maxRank + 1) / 2
	case rank > maxRank:
		return maxRank
	default:
		return rank
	}
}

// formScore scores the most recent n results: W=3, D=1 with draws, or
// W=1 for two-way sports.
func formScore(form string, n int, draws bool) float64 {
	form = strings.ToUpper(strings.TrimSpace(form))
	if len(form) > n {
		form = form[len(form)-n:]
	}

	score := 0.0
	for _, r := range form {
		switch r {
		case 'W':
			if draws {
				score += 3
			} else {
				score++
			}
		case 'D':
			if draws {
				score++
			}
		}
	}
	return score
}

// ratingDiff returns a-b, or 0 when either rating is missing.
func ratingDiff(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	return a - b
}

func floorFinite(x, floor float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < floor {
		return floor
	}
	return x
}
