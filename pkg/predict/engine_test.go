package predict

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/fixtures"
)

var batchTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEngine(registry *ModelRegistry) *Engine {
	return NewEngine(nil, registry, nil, quietLogger())
}

func TestPredictStrongHomeFavourite(t *testing.T) {
	e := newTestEngine(nil)
	m := footballMatch("m1", 1, 20, &fixtures.Odds{Home: 1.5, Draw: 4.0, Away: 6.0})

	p := e.Predict(m, batchTime)

	assert.Equal(t, "1", p.PredictedOutcome)
	assert.Greater(t, p.Confidence, 70.0)
	assert.Equal(t, 95.0, p.Confidence)
	assert.Equal(t, core.ConfidenceVeryHigh, p.ConfidenceLevel)
	assert.True(t, p.IsPremium)
	assert.Equal(t, "heuristic", p.Model)
	assert.False(t, p.Degraded)

	primary, ok := p.Primary()
	require.True(t, ok)
	assert.InDelta(t, 1.0, primary.Probabilities["1"]+primary.Probabilities["X"]+primary.Probabilities["2"], 0.01)
	assert.Equal(t, 1.5, p.PickOdds())
}

func TestPredictCloseMatch(t *testing.T) {
	e := newTestEngine(nil)
	m := footballMatch("m2", 10, 11, &fixtures.Odds{Home: 2.6, Draw: 3.2, Away: 2.8})

	p := e.Predict(m, batchTime)

	primary, ok := p.Primary()
	require.True(t, ok)
	assert.InDelta(t, 0.15, primary.Probabilities["X"], 1e-9)
	assert.Contains(t, []core.ConfidenceLevel{core.ConfidenceMedium, core.ConfidenceLow}, p.ConfidenceLevel)
	assert.InDelta(t, 64.8, p.Confidence, 1e-9)

	require.NotNil(t, p.ValueBet)
	assert.Equal(t, "1", p.ValueBet.Outcome)
	assert.Equal(t, core.Tier5, p.ValueBet.Tier)
	assert.Equal(t, core.Tier5, p.Tier())
	assert.False(t, p.IsPremium)
}

func TestPredictFootballMarkets(t *testing.T) {
	e := newTestEngine(nil)
	p := e.Predict(footballMatch("m3", 4, 9, nil), batchTime)

	assert.ElementsMatch(t,
		[]core.Market{core.Market1X2, core.MarketBTTS, core.MarketOverUnder, core.MarketCorrectScore},
		p.Predictions.Names())
}

func TestPredictBasketball(t *testing.T) {
	e := newTestEngine(nil)
	m := fixtures.Match{
		ID:     "b1",
		Sport:  core.SportBasketball,
		League: "NBA",
		Home:   fixtures.Team{Name: "Celtics", Ranking: 2, Form: "WWLWW", Offense: 118, Defense: 108},
		Away:   fixtures.Team{Name: "Hornets", Ranking: 14, Form: "LLWLL", Offense: 106, Defense: 117},
		Odds:   &fixtures.Odds{Home: 1.4, Away: 3.0},
	}

	p := e.Predict(m, batchTime)

	assert.Equal(t, "home", p.PredictedOutcome)
	assert.ElementsMatch(t,
		[]core.Market{core.MarketWinner, core.MarketTotalPoints, core.MarketSpread},
		p.Predictions.Names())

	primary, ok := p.Primary()
	require.True(t, ok)
	assert.NotContains(t, primary.Probabilities, "X")
	assert.InDelta(t, 1.0, primary.Probabilities["home"]+primary.Probabilities["away"], 0.01)
}

func TestPredictDegraded(t *testing.T) {
	e := newTestEngine(nil)

	tests := []struct {
		name       string
		match      fixtures.Match
		outcome    string
		confidence float64
	}{
		{"football missing team", fixtures.Match{ID: "bad1", Sport: core.SportFootball, Home: fixtures.Team{Name: "Arsenal"}}, "1", 50},
		{"basketball missing team", fixtures.Match{ID: "bad2", Sport: core.SportBasketball, Away: fixtures.Team{Name: "Lakers"}}, "home", 55},
		{"unknown sport", fixtures.Match{ID: "bad3", Sport: "hurling", Home: fixtures.Team{Name: "a"}, Away: fixtures.Team{Name: "b"}}, "1", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := e.Predict(tt.match, batchTime)

			assert.True(t, p.Degraded)
			assert.Equal(t, "degraded", p.Model)
			assert.Equal(t, tt.outcome, p.PredictedOutcome)
			assert.Equal(t, tt.confidence, p.Confidence)
			assert.Nil(t, p.ValueBet)
			assert.Equal(t, tt.match.ID, p.MatchID)
		})
	}
}

func TestPredictTrainedModel(t *testing.T) {
	c, err := NewClassifier(ClassifierSpec{
		Sport:    "football",
		Name:     "fb",
		Classes:  []string{"home", "draw", "away"},
		Features: []string{"rank_diff"},
		Weights:  [][]float64{{0.2}, {0}, {-0.2}},
		Bias:     []float64{0, 0.3, 0},
	})
	require.NoError(t, err)
	registry, err := NewModelRegistry("v7", c)
	require.NoError(t, err)

	e := newTestEngine(registry)

	p := e.Predict(footballMatch("m1", 3, 15, nil), batchTime)
	assert.Equal(t, "trained:v7", p.Model)
	assert.Equal(t, "1", p.PredictedOutcome)

	// Basketball has no classifier and uses the heuristic.
	b := e.Predict(fixtures.Match{
		ID:    "b1",
		Sport: core.SportBasketball,
		Home:  fixtures.Team{Name: "Bulls", Ranking: 3},
		Away:  fixtures.Team{Name: "Heat", Ranking: 9},
	}, batchTime)
	assert.Equal(t, "heuristic", b.Model)
}

func TestPredictTrainedFailureFallsBack(t *testing.T) {
	c, err := NewClassifier(ClassifierSpec{
		Sport:    "football",
		Name:     "needs-elo",
		Classes:  []string{"home", "draw", "away"},
		Features: []string{"elo_diff"},
		Weights:  [][]float64{{1}, {0}, {-1}},
		Bias:     []float64{0, 0, 0},
	})
	require.NoError(t, err)
	registry, err := NewModelRegistry("v1", c)
	require.NoError(t, err)

	p := newTestEngine(registry).Predict(footballMatch("m1", 3, 15, nil), batchTime)

	assert.Equal(t, "heuristic", p.Model)
	assert.False(t, p.Degraded)
}

func TestPredictBatchDeterministic(t *testing.T) {
	gen := fixtures.NewSynthetic(42, batchTime)
	matches := append(gen.Generate(core.SportFootball, 3), gen.Generate(core.SportBasketball, 3)...)
	require.NotEmpty(t, matches)

	e := newTestEngine(nil)
	first := e.PredictBatch(matches, batchTime)
	second := e.PredictBatch(matches, batchTime)

	require.Len(t, first, len(matches))
	for i, p := range first {
		assert.Equal(t, matches[i].ID, p.MatchID)
		assert.Equal(t, PredictionID(matches[i].Sport, matches[i].ID), p.ID)
	}

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestPredictionInvariants(t *testing.T) {
	gen := fixtures.NewSynthetic(7, batchTime)
	matches := append(gen.Generate(core.SportFootball, 7), gen.Generate(core.SportBasketball, 7)...)

	for _, p := range newTestEngine(nil).PredictBatch(matches, batchTime) {
		assert.GreaterOrEqual(t, p.Confidence, 0.0)
		assert.LessOrEqual(t, p.Confidence, 100.0)
		assert.Equal(t, core.Band(p.Confidence), p.ConfidenceLevel)

		primary, ok := p.Primary()
		require.True(t, ok)
		sum := 0.0
		for _, v := range primary.Probabilities {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 0.01)

		if vb := p.ValueBet; vb != nil {
			implied := 1 / vb.Odds
			assert.InDelta(t, (vb.ModelProbability-implied)/implied*100, vb.ValuePct, 1e-6)
		}
	}
}

func TestPredictionJSON(t *testing.T) {
	p := newTestEngine(nil).Predict(footballMatch("m1", 2, 12, &fixtures.Odds{Home: 1.7, Draw: 3.8, Away: 5.0}), batchTime)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"id", "matchId", "sport", "createdAt", "homeTeam", "awayTeam", "startTime",
		"league", "predictedOutcome", "confidence", "confidenceLevel", "isPremium", "predictions"} {
		assert.Contains(t, fields, key)
	}

	var decoded Prediction
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.IsType(t, CorrectScore{}, decoded.Predictions[core.MarketCorrectScore])
	assert.Equal(t, p.PickOdds(), decoded.PickOdds())

	// Only the in-process fixture key is dropped on the wire.
	assert.Empty(t, decoded.FixtureKey)
	decoded.FixtureKey = p.FixtureKey
	assert.Equal(t, p, decoded)
}
