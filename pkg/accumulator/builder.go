package accumulator

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/predict"
)

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("puntaiq/accumulator"))

// NoRelaxation disables the relaxation ladder when used as MaxRelaxSteps.
const NoRelaxation = -1

// BuilderConfig configures the Builder.
type BuilderConfig struct {
	MaxRelaxSteps   int     // Default: 4. NoRelaxation disables the ladder
	TierStepDrop    float64 // Confidence drop while the tier loosens. Default: 5
	LateStepDrop    float64 // Confidence drop once at Tier 10. Default: 10
	SizePenalty     float64 // Per extra leg. Default: 0.95
	ConfidenceSlack float64 // Multi-leg confidence cap relative to the weakest leg. Default: 1.05
	MaxConfidence   float64 // Default: 95
	PremiumOdds     float64 // Total odds above which a bet is premium. Default: 10
}

// DefaultBuilderConfig returns default configuration.
func DefaultBuilderConfig() *BuilderConfig {
	return &BuilderConfig{
		MaxRelaxSteps:   4,
		TierStepDrop:    5,
		LateStepDrop:    10,
		SizePenalty:     0.95,
		ConfidenceSlack: 1.05,
		MaxConfidence:   95,
		PremiumOdds:     10,
	}
}

// Request describes one accumulator to build.
type Request struct {
	Size          int
	MinConfidence float64
	Tier          core.Tier // TierNone for no tier constraint
}

func (r Request) String() string {
	if r.Tier == core.TierNone {
		return fmt.Sprintf("%d legs @%.0f", r.Size, r.MinConfidence)
	}
	return fmt.Sprintf("%d legs @%.0f %s", r.Size, r.MinConfidence, r.Tier)
}

// Builder composes accumulators from a prediction pool. It is stateless.
type Builder struct {
	cfg BuilderConfig
}

// NewBuilder creates a builder, filling unset values from defaults.
func NewBuilder(config *BuilderConfig) *Builder {
	if config == nil {
		config = DefaultBuilderConfig()
	}

	defaults := DefaultBuilderConfig()
	cfg := *config
	switch {
	case cfg.MaxRelaxSteps == 0:
		cfg.MaxRelaxSteps = defaults.MaxRelaxSteps
	case cfg.MaxRelaxSteps < 0:
		cfg.MaxRelaxSteps = 0
	}
	if cfg.TierStepDrop == 0 {
		cfg.TierStepDrop = defaults.TierStepDrop
	}
	if cfg.LateStepDrop == 0 {
		cfg.LateStepDrop = defaults.LateStepDrop
	}
	if cfg.SizePenalty == 0 {
		cfg.SizePenalty = defaults.SizePenalty
	}
	if cfg.ConfidenceSlack == 0 {
		cfg.ConfidenceSlack = defaults.ConfidenceSlack
	}
	if cfg.MaxConfidence == 0 {
		cfg.MaxConfidence = defaults.MaxConfidence
	}
	if cfg.PremiumOdds == 0 {
		cfg.PremiumOdds = defaults.PremiumOdds
	}

	return &Builder{cfg: cfg}
}

// Build returns the accumulator for a request, or nil when the pool cannot
// supply enough legs even after relaxation. Only tier requests relax; a
// request without a tier keeps its confidence floor. An error means the
// request itself is invalid.
func (b *Builder) Build(pool []predict.Prediction, req Request, createdAt time.Time) (*Accumulator, error) {
	if req.Size < 1 {
		return nil, fmt.Errorf("invalid accumulator size %d", req.Size)
	}
	if req.MinConfidence < 0 || req.MinConfidence > 100 {
		return nil, fmt.Errorf("invalid minimum confidence %v", req.MinConfidence)
	}

	candidates := Candidates(pool)

	tier, minConf := req.Tier, req.MinConfidence
	for step := 0; ; step++ {
		legs, tierMatched := selectLegs(candidates, req.Size, minConf, tier)
		if legs != nil {
			return b.compose(legs, tier, tierMatched, createdAt), nil
		}
		if req.Tier == core.TierNone || step == b.cfg.MaxRelaxSteps {
			return nil, nil
		}
		tier, minConf = b.relax(tier, minConf)
	}
}

// relax returns the next rung of the ladder. The tier loosens one level
// per rung with the small confidence drop; once at Tier 10 each rung drops
// confidence by the larger step.
func (b *Builder) relax(tier core.Tier, minConf float64) (core.Tier, float64) {
	switch tier {
	case core.Tier1, core.Tier2, core.Tier5:
		return tier.Next(), minConf - b.cfg.TierStepDrop
	default:
		return core.Tier10, minConf - b.cfg.LateStepDrop
	}
}

// Candidates returns one leg per fixture from the pool: the primary market
// pick of each non-degraded prediction, sorted by confidence descending and
// match id ascending. When the same fixture appears twice the more
// confident prediction is kept.
func Candidates(pool []predict.Prediction) []Selection {
	legs := make([]Selection, 0, len(pool))
	for i := range pool {
		p := &pool[i]
		if p.Degraded {
			continue
		}
		odds := p.PickOdds()
		if odds <= 0 {
			continue
		}

		key := p.FixtureKey
		if key == "" {
			key = string(p.Sport) + "_" + p.MatchID
		}
		legs = append(legs, Selection{
			MatchID:      p.MatchID,
			HomeTeam:     p.HomeTeam,
			AwayTeam:     p.AwayTeam,
			League:       p.League,
			StartTime:    p.StartTime,
			Sport:        p.Sport,
			Market:       core.PrimaryMarket(p.Sport),
			Outcome:      p.PredictedOutcome,
			Odds:         odds,
			Confidence:   p.Confidence,
			Tier:         p.Tier(),
			PredictionID: p.ID,
			FixtureKey:   key,
		})
	}

	sort.SliceStable(legs, func(i, j int) bool {
		if legs[i].Confidence != legs[j].Confidence {
			return legs[i].Confidence > legs[j].Confidence
		}
		return legs[i].MatchID < legs[j].MatchID
	})

	seen := make(map[string]bool, len(legs))
	out := legs[:0]
	for _, leg := range legs {
		if seen[leg.FixtureKey] {
			continue
		}
		seen[leg.FixtureKey] = true
		out = append(out, leg)
	}
	return out
}

// selectLegs takes the first size candidates meeting the confidence floor
// and, when set, the tier. The tier filter only applies when at least one
// qualifying leg carries that tier; tierMatched reports whether it did.
// It returns nil legs when fewer than size qualify.
func selectLegs(candidates []Selection, size int, minConf float64, tier core.Tier) (legs []Selection, tierMatched bool) {
	byConf := make([]Selection, 0, size)
	byTier := make([]Selection, 0, size)
	for _, c := range candidates {
		if c.Confidence < minConf {
			continue
		}
		byConf = append(byConf, c)
		if tier != core.TierNone && c.Tier.AtLeast(tier) {
			byTier = append(byTier, c)
		}
	}

	legs = byConf
	if len(byTier) > 0 {
		legs, tierMatched = byTier, true
	}
	if len(legs) < size {
		return nil, false
	}
	return append([]Selection(nil), legs[:size]...), tierMatched
}

// compose prices the legs. The accumulator carries the target tier only
// when every leg met it; otherwise it carries the weakest leg's tier.
func (b *Builder) compose(legs []Selection, target core.Tier, tierMatched bool, createdAt time.Time) *Accumulator {
	total := decimal.NewFromInt(1)
	logSum := 0.0
	weakest := core.Tier1
	minLeg := math.Inf(1)
	for _, leg := range legs {
		total = total.Mul(decimal.NewFromFloat(leg.Odds))
		logSum += math.Log(math.Max(leg.Confidence, 1e-9))
		minLeg = math.Min(minLeg, leg.Confidence)
		if leg.Tier > weakest {
			weakest = leg.Tier
		}
	}

	n := len(legs)
	limit := b.cfg.MaxConfidence
	if n >= 2 {
		limit = math.Min(limit, minLeg*b.cfg.ConfidenceSlack)
	}
	confidence := math.Exp(logSum/float64(n)) * math.Pow(b.cfg.SizePenalty, float64(n-1))
	confidence = math.Round(confidence*10) / 10
	confidence = math.Min(confidence, math.Floor(limit*10)/10)

	tier := weakest
	if tierMatched && target != core.TierNone {
		tier = target
	}

	totalOdds := total.InexactFloat64()
	return &Accumulator{
		ID:         accumulatorID(legs, tier),
		CreatedAt:  createdAt,
		Size:       n,
		Tier:       tier,
		TotalOdds:  totalOdds,
		Confidence: confidence,
		Selections: legs,
		IsPremium:  tier.AtLeast(core.Tier2) || totalOdds > b.cfg.PremiumOdds,
	}
}

// accumulatorID derives a stable id from the leg set, size and tier.
func accumulatorID(legs []Selection, tier core.Tier) string {
	ids := make([]string, len(legs))
	for i, leg := range legs {
		ids[i] = leg.PredictionID
		if ids[i] == "" {
			ids[i] = string(leg.Sport) + ":" + leg.MatchID
		}
	}
	sort.Strings(ids)
	name := fmt.Sprintf("%s|%d|%s", strings.Join(ids, ","), len(legs), tier.Key())
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}
