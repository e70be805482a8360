package accumulator

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/fixtures"
	"github.com/phenomenon0/puntaiq/pkg/predict"
)

var batchTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// leg builds a football prediction backing the home side at the given
// confidence, price and value tier.
func leg(t *testing.T, id string, confidence, odds float64, tier core.Tier) predict.Prediction {
	t.Helper()

	primary, err := predict.NewOutcome1X2(
		predict.Probs{Home: 0.6, Draw: 0.25, Away: 0.15},
		fixtures.Odds{Home: odds, Draw: 3.5, Away: 5.0},
		core.SideHome, confidence)
	require.NoError(t, err)

	p := predict.Prediction{
		ID:               predict.PredictionID(core.SportFootball, id),
		MatchID:          id,
		Sport:            core.SportFootball,
		CreatedAt:        batchTime,
		HomeTeam:         "Home " + id,
		AwayTeam:         "Away " + id,
		League:           "Premier League",
		PredictedOutcome: "1",
		Confidence:       confidence,
		ConfidenceLevel:  core.Band(confidence),
		Predictions:      predict.Markets{core.Market1X2: primary},
		FixtureKey:       "football_" + id,
	}
	if tier != core.Tier10 {
		p.ValueBet = &predict.ValueBet{Outcome: "1", Odds: odds, Tier: tier}
	}
	return p
}

func TestBuildTierOneRelaxationExhausted(t *testing.T) {
	b := NewBuilder(nil)
	pool := []predict.Prediction{
		leg(t, "a", 92, 1.5, core.Tier1),
		leg(t, "b", 88, 1.6, core.Tier1),
		leg(t, "c", 50, 1.9, core.Tier10),
	}

	acc, err := b.Build(pool, Request{Size: 3, MinConfidence: 85, Tier: core.Tier1}, batchTime)
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestBuildRelaxesToTierTwo(t *testing.T) {
	b := NewBuilder(nil)
	pool := []predict.Prediction{
		leg(t, "a", 92, 1.5, core.Tier1),
		leg(t, "b", 88, 1.6, core.Tier1),
		leg(t, "c", 82, 1.7, core.Tier2),
		leg(t, "d", 95, 1.2, core.Tier10),
	}

	acc, err := b.Build(pool, Request{Size: 3, MinConfidence: 85, Tier: core.Tier1}, batchTime)
	require.NoError(t, err)
	require.NotNil(t, acc)

	assert.Equal(t, core.Tier2, acc.Tier)
	assert.Equal(t, []string{"a", "b", "c"}, acc.MatchIDs())
	assert.True(t, acc.IsPremium)
}

func TestBuildTierFilterFallsBackToConfidence(t *testing.T) {
	b := NewBuilder(nil)
	pool := []predict.Prediction{
		leg(t, "a", 90, 1.5, core.Tier10),
		leg(t, "b", 86, 1.6, core.Tier5),
		leg(t, "c", 80, 1.7, core.Tier10),
	}

	// No leg is Tier 2 or better, so confidence alone decides and the
	// weakest leg sets the label.
	acc, err := b.Build(pool, Request{Size: 2, MinConfidence: 85, Tier: core.Tier2}, batchTime)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, []string{"a", "b"}, acc.MatchIDs())
	assert.Equal(t, core.Tier10, acc.Tier)
	assert.False(t, acc.IsPremium)
}

func TestBuildTierLabelFollowsLegs(t *testing.T) {
	b := NewBuilder(nil)

	tests := []struct {
		name    string
		pool    []predict.Prediction
		want    []string
		tier    core.Tier
		premium bool
	}{
		{
			name: "no leg carries the target tier",
			pool: []predict.Prediction{
				leg(t, "a", 90, 1.3, core.Tier10),
				leg(t, "b", 90, 1.4, core.Tier10),
			},
			want: []string{"a", "b"},
			tier: core.Tier10,
		},
		{
			name: "one tier one leg is not enough",
			pool: []predict.Prediction{
				leg(t, "a", 90, 1.3, core.Tier10),
				leg(t, "b", 90, 1.4, core.Tier10),
				leg(t, "c", 90, 1.5, core.Tier1),
			},
			want: []string{"a", "b"},
			tier: core.Tier10,
		},
		{
			name: "every leg meets the target",
			pool: []predict.Prediction{
				leg(t, "a", 90, 1.3, core.Tier1),
				leg(t, "b", 90, 1.4, core.Tier1),
			},
			want:    []string{"a", "b"},
			tier:    core.Tier1,
			premium: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := b.Build(tt.pool, Request{Size: 2, MinConfidence: 85, Tier: core.Tier1}, batchTime)
			require.NoError(t, err)
			require.NotNil(t, acc)
			assert.Equal(t, tt.want, acc.MatchIDs())
			assert.Equal(t, tt.tier, acc.Tier)
			assert.Equal(t, tt.premium, acc.IsPremium)
			for _, l := range acc.Selections {
				assert.True(t, l.Tier.AtLeast(acc.Tier), l.MatchID)
			}
		})
	}
}

func TestBuildTotalOddsAndConfidence(t *testing.T) {
	b := NewBuilder(nil)
	pool := []predict.Prediction{
		leg(t, "a", 90, 1.5, core.Tier10),
		leg(t, "b", 80, 1.8, core.Tier5),
		leg(t, "c", 70, 2.1, core.Tier10),
	}

	acc, err := b.Build(pool, Request{Size: 3, MinConfidence: 60}, batchTime)
	require.NoError(t, err)
	require.NotNil(t, acc)
	require.NoError(t, acc.Validate())

	assert.Equal(t, 3, acc.Size)
	assert.InDelta(t, 1.5*1.8*2.1, acc.TotalOdds, 1e-6)

	geo := math.Cbrt(90 * 80 * 70)
	assert.InDelta(t, geo*0.95*0.95, acc.Confidence, 0.05)
	assert.Less(t, acc.Confidence, geo)
	assert.LessOrEqual(t, acc.Confidence, 70*1.05)

	assert.Equal(t, core.Tier10, acc.Tier)
	assert.False(t, acc.IsPremium)
}

func TestBuildConfidenceCap(t *testing.T) {
	b := NewBuilder(nil)
	pool := []predict.Prediction{leg(t, "a", 99, 1.1, core.Tier1)}

	acc, err := b.Build(pool, Request{Size: 1, MinConfidence: 50}, batchTime)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, 95.0, acc.Confidence)
}

func TestBuildConfidenceBoundedByWeakestLeg(t *testing.T) {
	b := NewBuilder(nil)

	pools := [][]float64{
		{95, 95, 60},
		{95, 60},
		{99, 99, 99, 55},
		{90, 88, 86, 84, 50},
		{80, 80, 80},
		{70, 70},
		{99, 98, 97, 96, 95, 94, 93, 92, 91, 51},
	}

	for _, confs := range pools {
		var pool []predict.Prediction
		minLeg := 100.0
		for i, c := range confs {
			pool = append(pool, leg(t, fmt.Sprintf("m%02d", i), c, 1.5, core.Tier10))
			minLeg = math.Min(minLeg, c)
		}

		acc, err := b.Build(pool, Request{Size: len(confs), MinConfidence: 50}, batchTime)
		require.NoError(t, err)
		require.NotNil(t, acc, confs)
		require.NoError(t, acc.Validate())
		assert.LessOrEqual(t, acc.Confidence, minLeg*1.05, confs)
		assert.LessOrEqual(t, acc.Confidence, 95.0, confs)
	}

	acc, err := b.Build([]predict.Prediction{
		leg(t, "a", 95, 1.5, core.Tier10),
		leg(t, "b", 95, 1.5, core.Tier10),
		leg(t, "c", 60, 1.5, core.Tier10),
	}, Request{Size: 3, MinConfidence: 50}, batchTime)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, 63.0, acc.Confidence)
}

func TestBuildPremiumByOdds(t *testing.T) {
	b := NewBuilder(nil)
	pool := []predict.Prediction{
		leg(t, "a", 80, 2.5, core.Tier10),
		leg(t, "b", 80, 2.4, core.Tier10),
		leg(t, "c", 80, 2.0, core.Tier10),
	}

	acc, err := b.Build(pool, Request{Size: 3, MinConfidence: 75}, batchTime)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.InDelta(t, 12.0, acc.TotalOdds, 1e-9)
	assert.True(t, acc.IsPremium)
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder(nil)
	pool := []predict.Prediction{
		leg(t, "m3", 80, 1.5, core.Tier10),
		leg(t, "m1", 80, 1.6, core.Tier10),
		leg(t, "m2", 80, 1.7, core.Tier10),
	}
	reversed := []predict.Prediction{pool[2], pool[1], pool[0]}

	first, err := b.Build(pool, Request{Size: 2, MinConfidence: 75}, batchTime)
	require.NoError(t, err)
	second, err := b.Build(reversed, Request{Size: 2, MinConfidence: 75}, batchTime)
	require.NoError(t, err)

	require.NotNil(t, first)
	assert.Equal(t, []string{"m1", "m2"}, first.MatchIDs())
	assert.Equal(t, first, second)
}

func TestCandidatesDedupeAndSkipDegraded(t *testing.T) {
	dup := leg(t, "a-alt", 85, 1.55, core.Tier10)
	dup.FixtureKey = "football_a"

	degraded := leg(t, "z", 99, 1.5, core.Tier10)
	degraded.Degraded = true

	legs := Candidates([]predict.Prediction{
		leg(t, "a", 80, 1.5, core.Tier10),
		dup,
		degraded,
		leg(t, "b", 70, 1.9, core.Tier5),
	})

	require.Len(t, legs, 2)
	assert.Equal(t, "a-alt", legs[0].MatchID)
	assert.Equal(t, "b", legs[1].MatchID)
	assert.Equal(t, core.Tier5, legs[1].Tier)
	assert.Equal(t, core.Market1X2, legs[0].Market)
	assert.Equal(t, "1", legs[0].Outcome)
}

func TestBuildInvalidRequest(t *testing.T) {
	b := NewBuilder(nil)

	_, err := b.Build(nil, Request{Size: 0, MinConfidence: 70}, batchTime)
	assert.Error(t, err)

	_, err = b.Build(nil, Request{Size: 2, MinConfidence: 120}, batchTime)
	assert.Error(t, err)

	acc, err := b.Build(nil, Request{Size: 2, MinConfidence: 70}, batchTime)
	assert.NoError(t, err)
	assert.Nil(t, acc)
}

func TestRelaxLadder(t *testing.T) {
	b := NewBuilder(nil)

	type rung struct {
		tier core.Tier
		conf float64
	}
	walk := func(tier core.Tier, conf float64) []rung {
		var out []rung
		for step := 0; step < 5; step++ {
			tier, conf = b.relax(tier, conf)
			out = append(out, rung{tier, conf})
		}
		return out
	}

	assert.Equal(t, []rung{
		{core.Tier2, 80}, {core.Tier5, 75}, {core.Tier10, 70}, {core.Tier10, 60}, {core.Tier10, 50},
	}, walk(core.Tier1, 85))

	assert.Equal(t, []rung{
		{core.Tier10, 70}, {core.Tier10, 60}, {core.Tier10, 50}, {core.Tier10, 40}, {core.Tier10, 30},
	}, walk(core.Tier5, 75))
}

func TestBuildNamedRequestKeepsFloor(t *testing.T) {
	b := NewBuilder(nil)
	pool := []predict.Prediction{
		leg(t, "a", 70, 1.5, core.Tier10),
		leg(t, "b", 68, 1.6, core.Tier10),
		leg(t, "c", 66, 1.7, core.Tier10),
	}

	acc, err := b.Build(pool, Request{Size: 3, MinConfidence: 85}, batchTime)
	require.NoError(t, err)
	assert.Nil(t, acc)

	acc, err = b.Build(pool, Request{Size: 3, MinConfidence: 65}, batchTime)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, []string{"a", "b", "c"}, acc.MatchIDs())
}

func TestBuildWithoutRelaxation(t *testing.T) {
	b := NewBuilder(&BuilderConfig{MaxRelaxSteps: NoRelaxation})
	pool := []predict.Prediction{
		leg(t, "a", 84, 1.5, core.Tier2),
		leg(t, "b", 84, 1.6, core.Tier2),
	}

	acc, err := b.Build(pool, Request{Size: 2, MinConfidence: 85, Tier: core.Tier1}, batchTime)
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestNewBuilderPartialConfig(t *testing.T) {
	b := NewBuilder(&BuilderConfig{PremiumOdds: 20})
	assert.Equal(t, 4, b.cfg.MaxRelaxSteps)
	assert.Equal(t, 1.05, b.cfg.ConfidenceSlack)
	assert.Equal(t, 20.0, b.cfg.PremiumOdds)

	pool := []predict.Prediction{
		leg(t, "a", 84, 1.5, core.Tier2),
		leg(t, "b", 84, 1.6, core.Tier2),
	}
	acc, err := b.Build(pool, Request{Size: 2, MinConfidence: 85, Tier: core.Tier1}, batchTime)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, core.Tier2, acc.Tier)

	assert.Equal(t, 0, NewBuilder(&BuilderConfig{MaxRelaxSteps: NoRelaxation}).cfg.MaxRelaxSteps)
}
