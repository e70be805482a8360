package predict

import (
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/fixtures"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// ValueBet is the value assessment attached to a prediction.
type ValueBet struct {
	Outcome            string    `json:"outcome"`
	Odds               float64   `json:"odds"`
	ModelProbability   float64   `json:"modelProbability"`
	ImpliedProbability float64   `json:"impliedProbability"`
	Edge               float64   `json:"edge"`     // Model minus implied probability
	ValuePct           float64   `json:"valuePct"` // Edge relative to implied probability
	Tier               core.Tier `json:"tier"`
	IsRecommended      bool      `json:"isRecommended"`
}

// OutcomeValue is the value computation for one outcome.
type OutcomeValue struct {
	Side      core.Side
	ModelProb decimal.Decimal
	Odds      decimal.Decimal
	Implied   decimal.Decimal // 1/odds
	Edge      decimal.Decimal // ModelProb - Implied
	ValuePct  decimal.Decimal // Edge / Implied * 100
}

// ValueConfig configures the ValueBetClassifier.
type ValueConfig struct {
	MinValuePct float64 // Default: 5
}

// DefaultValueConfig returns default configuration.
func DefaultValueConfig() *ValueConfig {
	return &ValueConfig{MinValuePct: 5}
}

// ValueBetClassifier compares model probabilities with bookmaker prices.
type ValueBetClassifier struct {
	minValuePct decimal.Decimal
}

// NewValueBetClassifier creates a classifier.
func NewValueBetClassifier(config *ValueConfig) *ValueBetClassifier {
	if config == nil {
		config = DefaultValueConfig()
	}
	// MinValuePct can be 0 intentionally, so don't default it
	return &ValueBetClassifier{minValuePct: decimal.NewFromFloat(config.MinValuePct)}
}

// Evaluate computes value for one outcome. Non-positive odds yield zero
// implied probability and zero value.
func (c *ValueBetClassifier) Evaluate(side core.Side, modelProb, odds float64) OutcomeValue {
	v := OutcomeValue{
		Side:      side,
		ModelProb: decimal.NewFromFloat(modelProb),
		Odds:      decimal.NewFromFloat(odds),
		Implied:   decimal.Zero,
		ValuePct:  decimal.Zero,
	}
	if v.Odds.IsPositive() {
		v.Implied = one.Div(v.Odds)
	}
	v.Edge = v.ModelProb.Sub(v.Implied)
	if v.Implied.IsPositive() {
		v.ValuePct = v.Edge.Div(v.Implied).Mul(hundred)
	}
	return v
}

// EvaluateAll computes value for every side of the sport, in side priority
// order.
func (c *ValueBetClassifier) EvaluateAll(sport core.Sport, p Probs, odds fixtures.Odds) []OutcomeValue {
	sides := sport.Sides()
	out := make([]OutcomeValue, len(sides))
	for i, side := range sides {
		out[i] = c.Evaluate(side, p.ProbFor(side), odds.For(side))
	}
	return out
}

// Best returns the outcome with the highest value%, ties by side priority.
func Best(values []OutcomeValue) OutcomeValue {
	best := values[0]
	for _, v := range values[1:] {
		if v.ValuePct.GreaterThan(best.ValuePct) {
			best = v
		}
	}
	return best
}

// Classify returns the ValueBet to attach to a prediction, or nil.
//
// The predicted outcome is reported whenever its value% is non-negative so
// the prediction and its value bet agree. Otherwise a different outcome is
// reported, flagged as recommended, when its value% reaches the minimum.
func (c *ValueBetClassifier) Classify(sport core.Sport, predicted core.Side, p Probs, odds fixtures.Odds) *ValueBet {
	values := c.EvaluateAll(sport, p, odds)

	var pick OutcomeValue
	for _, v := range values {
		if v.Side == predicted {
			pick = v
		}
	}

	if pick.Side != "" && !pick.ValuePct.IsNegative() {
		vb := c.valueBet(sport, pick)
		vb.IsRecommended = pick.ValuePct.GreaterThanOrEqual(c.minValuePct)
		return vb
	}

	best := Best(values)
	if best.Side != predicted && best.ValuePct.GreaterThanOrEqual(c.minValuePct) {
		vb := c.valueBet(sport, best)
		vb.IsRecommended = true
		return vb
	}
	return nil
}

func (c *ValueBetClassifier) valueBet(sport core.Sport, v OutcomeValue) *ValueBet {
	return &ValueBet{
		Outcome:            v.Side.Code(sport),
		Odds:               v.Odds.InexactFloat64(),
		ModelProbability:   v.ModelProb.InexactFloat64(),
		ImpliedProbability: v.Implied.InexactFloat64(),
		Edge:               v.Edge.InexactFloat64(),
		ValuePct:           v.ValuePct.InexactFloat64(),
		Tier:               AssignTier(v.ValuePct, v.Edge, v.Odds),
	}
}

// tierRule is one row of the tier table; the first matching row wins.
type tierRule struct {
	minValue decimal.Decimal // value% strictly above
	minEdge  decimal.Decimal // edge strictly above
	match    func(odds decimal.Decimal) bool
	tier     func(odds decimal.Decimal) core.Tier
}

func fixed(t core.Tier) func(decimal.Decimal) core.Tier {
	return func(decimal.Decimal) core.Tier { return t }
}

func below(limit float64) func(decimal.Decimal) bool {
	l := decimal.NewFromFloat(limit)
	return func(odds decimal.Decimal) bool { return odds.LessThan(l) }
}

func anyOdds(decimal.Decimal) bool { return true }

var tierTable = []tierRule{
	{decimal.NewFromInt(20), decimal.NewFromFloat(0.20), below(1.8), fixed(core.Tier1)},
	{decimal.NewFromInt(15), decimal.NewFromFloat(0.15), below(2.0), fixed(core.Tier2)},
	{decimal.NewFromInt(15), decimal.NewFromFloat(0.15), below(3.5), fixed(core.Tier2)},
	{decimal.NewFromInt(15), decimal.NewFromFloat(0.15), anyOdds, fixed(core.Tier5)},
	{decimal.NewFromInt(10), decimal.NewFromFloat(0.10), below(2.5), fixed(core.Tier2)},
	{decimal.NewFromInt(10), decimal.NewFromFloat(0.10), below(4.0), fixed(core.Tier5)},
	{decimal.NewFromInt(5), decimal.NewFromFloat(0.05), anyOdds, func(odds decimal.Decimal) core.Tier {
		if odds.LessThan(decimal.NewFromFloat(3.0)) {
			return core.Tier5
		}
		return core.Tier10
	}},
}

// AssignTier applies the tier table to a value%, edge and decimal odds.
func AssignTier(valuePct, edge, odds decimal.Decimal) core.Tier {
	for _, r := range tierTable {
		if valuePct.GreaterThan(r.minValue) && edge.GreaterThan(r.minEdge) && r.match(odds) {
			return r.tier(odds)
		}
	}
	return core.Tier10
}
