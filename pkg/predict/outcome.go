package predict

import (
	"errors"
	"fmt"
	"math"

	"github.com/phenomenon0/puntaiq/core"
)

// ErrNoModel is returned when no trained classifier covers a sport.
var ErrNoModel = errors.New("no trained model for sport")

// Probs holds outcome probabilities. Draw is zero for two-way sports.
type Probs struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// ProbFor returns the probability of a side.
func (p Probs) ProbFor(side core.Side) float64 {
	switch side {
	case core.SideHome:
		return p.Home
	case core.SideDraw:
		return p.Draw
	case core.SideAway:
		return p.Away
	default:
		return 0
	}
}

// Sum returns the total probability mass.
func (p Probs) Sum() float64 {
	return p.Home + p.Draw + p.Away
}

// Normalize scales the probabilities to sum to 1.
func (p Probs) Normalize() Probs {
	sum := p.Sum()
	if sum <= 0 {
		return p
	}
	return Probs{Home: p.Home / sum, Draw: p.Draw / sum, Away: p.Away / sum}
}

// Argmax returns the most likely side, ties broken by home > draw > away.
func (p Probs) Argmax(sport core.Sport) core.Side {
	best := core.SideHome
	for _, side := range sport.Sides() {
		if p.ProbFor(side) > p.ProbFor(best) {
			best = side
		}
	}
	return best
}

// TopTwo returns the two largest probabilities of a sport's sides.
func (p Probs) TopTwo(sport core.Sport) (first, second float64) {
	for _, side := range sport.Sides() {
		v := p.ProbFor(side)
		switch {
		case v > first:
			first, second = v, first
		case v > second:
			second = v
		}
	}
	return first, second
}

// Check verifies the distribution invariants for a sport.
func (p Probs) Check(sport core.Sport) error {
	for _, side := range sport.Sides() {
		v := p.ProbFor(side)
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("probability %s=%v out of range", side, v)
		}
	}
	if sport == core.SportBasketball && p.Draw != 0 {
		return fmt.Errorf("draw probability %v in two-way sport", p.Draw)
	}
	if math.Abs(p.Sum()-1) > 0.01 {
		return fmt.Errorf("probabilities sum to %v", p.Sum())
	}
	return nil
}

// OutcomeModel maps features to an outcome distribution.
type OutcomeModel interface {
	// Name identifies the model in prediction output.
	Name() string
	// Predict returns a normalized distribution over the sport's sides.
	Predict(f Features) (Probs, error)
}

// HeuristicModel derives probabilities from relative strength.
type HeuristicModel struct {
	DrawFloor float64 // Minimum football draw probability
}

// NewHeuristicModel creates a heuristic model. A non-positive floor uses
// the default of 0.15.
func NewHeuristicModel(drawFloor float64) *HeuristicModel {
	if drawFloor <= 0 {
		drawFloor = 0.15
	}
	return &HeuristicModel{DrawFloor: drawFloor}
}

// Name implements OutcomeModel.
func (h *HeuristicModel) Name() string { return "heuristic" }

// Predict implements OutcomeModel.
func (h *HeuristicModel) Predict(f Features) (Probs, error) {
	total := f.HomeStrength + f.AwayStrength
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return Probs{}, fmt.Errorf("invalid strengths home=%v away=%v", f.HomeStrength, f.AwayStrength)
	}

	p := Probs{
		Home: f.HomeStrength / total,
		Away: f.AwayStrength / total,
	}

	if f.Sport == core.SportFootball {
		p.Draw = 1 - p.Home - p.Away
		if p.Draw < h.DrawFloor {
			// Take the deficit from home and away in proportion to their shares.
			deficit := h.DrawFloor - p.Draw
			share := p.Home + p.Away
			p.Home -= deficit * p.Home / share
			p.Away -= deficit * p.Away / share
			p.Draw = h.DrawFloor
		}
	}

	p = p.Normalize()
	if err := p.Check(f.Sport); err != nil {
		return Probs{}, err
	}
	return p, nil
}

// TrainedModel scores features with the registry's classifier for the
// match sport.
type TrainedModel struct {
	registry *ModelRegistry
}

// NewTrainedModel wraps a registry. The registry may be nil, in which case
// every prediction returns ErrNoModel.
func NewTrainedModel(registry *ModelRegistry) *TrainedModel {
	return &TrainedModel{registry: registry}
}

// Name implements OutcomeModel.
func (m *TrainedModel) Name() string {
	return "trained:" + m.registry.Version()
}

// Available reports whether a classifier exists for the sport.
func (m *TrainedModel) Available(sport core.Sport) bool {
	_, ok := m.registry.Classifier(sport)
	return ok
}

// Predict implements OutcomeModel.
func (m *TrainedModel) Predict(f Features) (Probs, error) {
	c, ok := m.registry.Classifier(f.Sport)
	if !ok {
		return Probs{}, fmt.Errorf("%w %q", ErrNoModel, f.Sport)
	}

	p, err := c.Predict(f.Vector())
	if err != nil {
		return Probs{}, err
	}
	if err := p.Check(f.Sport); err != nil {
		return Probs{}, fmt.Errorf("model %s: %w", c.Name(), err)
	}
	return p, nil
}
