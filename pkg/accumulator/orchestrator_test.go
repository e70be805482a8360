package accumulator

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/fixtures"
	"github.com/phenomenon0/puntaiq/pkg/predict"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func syntheticPool(t *testing.T) []predict.Prediction {
	t.Helper()
	gen := fixtures.NewSynthetic(11, batchTime)
	matches := append(gen.Generate(core.SportFootball, 5), gen.Generate(core.SportBasketball, 5)...)
	return predict.NewEngine(nil, nil, nil, quietLogger()).PredictBatch(matches, batchTime)
}

func TestMatrix(t *testing.T) {
	profiles := Matrix(DefaultCategories(), DefaultNamed())

	// 7 sizes across 4 tiers, then 6 named profiles.
	require.Len(t, profiles, 34)
	assert.Equal(t, Request{Size: 2, MinConfidence: 75, Tier: core.Tier1}, profiles[0].Request)
	assert.Equal(t, "mega", profiles[27].Category)
	assert.Equal(t, 10, profiles[27].Size)
	assert.Equal(t, "double", profiles[28].Name)
	assert.Equal(t, "high_odds", profiles[33].Name)
}

func TestOrchestratorRun(t *testing.T) {
	pool := syntheticPool(t)
	o := NewOrchestrator(nil, quietLogger())

	catalog := o.Run(pool, batchTime)
	require.NotNil(t, catalog)
	require.Positive(t, catalog.Count())

	for key, bucket := range catalog.Buckets() {
		ids := make(map[string]bool)
		for _, acc := range bucket {
			assert.NoError(t, acc.Validate(), key)
			assert.False(t, ids[acc.ID], "duplicate %s in %s", acc.ID, key)
			ids[acc.ID] = true
			assert.Equal(t, batchTime, acc.CreatedAt)
			assert.LessOrEqual(t, acc.Confidence, 95.0)
		}
	}

	for key, bucket := range catalog.ByTier {
		for _, acc := range bucket {
			assert.Equal(t, key, acc.Tier.Key())
		}
	}
	for key := range catalog.BySize {
		assert.Contains(t, []string{"small", "medium", "large", "mega"}, key)
	}
	for key := range catalog.Named {
		assert.Contains(t, []string{"double", "treble", "four_fold", "five_fold", "premium", "high_odds"}, key)
	}
}

func TestOrchestratorDeterministic(t *testing.T) {
	pool := syntheticPool(t)
	o := NewOrchestrator(&OrchestratorConfig{Workers: 8}, quietLogger())

	a, err := json.Marshal(o.Run(pool, batchTime))
	require.NoError(t, err)
	b, err := json.Marshal(o.Run(pool, batchTime))
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
}

func TestOrchestratorEmptyPool(t *testing.T) {
	o := NewOrchestrator(nil, quietLogger())

	catalog := o.Run(nil, batchTime)
	assert.Zero(t, catalog.Count())
	assert.Empty(t, catalog.Buckets())
}

func TestOrchestratorSkipsInvalidProfiles(t *testing.T) {
	o := NewOrchestrator(&OrchestratorConfig{
		Categories: []SizeCategory{{Name: "broken", Sizes: []int{0}, MinConfidence: 70}},
		Named:      []Profile{{Name: "double", Category: "small", Request: Request{Size: 2, MinConfidence: 50}}},
	}, quietLogger())

	catalog := o.Run(syntheticPool(t), batchTime)

	assert.Empty(t, catalog.BySize["broken"])
	assert.Len(t, catalog.Named["double"], 1)
}

func TestOrchestratorNamedProfilesKeepFloor(t *testing.T) {
	pool := []predict.Prediction{
		leg(t, "a", 70, 1.5, core.Tier10),
		leg(t, "b", 68, 1.6, core.Tier10),
		leg(t, "c", 66, 1.7, core.Tier10),
	}
	o := NewOrchestrator(nil, quietLogger())

	catalog := o.Run(pool, batchTime)
	require.NotNil(t, catalog)

	for _, name := range []string{"double", "treble", "premium", "four_fold", "five_fold"} {
		assert.Empty(t, catalog.Named[name], name)
	}
	for _, profile := range DefaultNamed() {
		for _, acc := range catalog.Named[profile.Name] {
			for _, l := range acc.Selections {
				assert.GreaterOrEqual(t, l.Confidence, profile.MinConfidence, profile.Name)
			}
		}
	}
}
