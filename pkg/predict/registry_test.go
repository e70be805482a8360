package predict

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/puntaiq/core"
)

func footballSpec() ClassifierSpec {
	return ClassifierSpec{
		Sport:    "football",
		Name:     "logreg-test",
		Method:   "softmax",
		Classes:  []string{"away", "draw", "home"},
		Features: []string{"rank_diff"},
		Weights:  [][]float64{{0}, {0}, {0}},
		Bias:     []float64{0, 0, 1},
	}
}

func TestClassifierMapsClassesByLabel(t *testing.T) {
	c, err := NewClassifier(footballSpec())
	require.NoError(t, err)

	p, err := c.Predict(map[string]float64{"rank_diff": 5})
	require.NoError(t, err)

	e := math.E
	assert.InDelta(t, e/(e+2), p.Home, 1e-9)
	assert.InDelta(t, 1/(e+2), p.Draw, 1e-9)
	assert.InDelta(t, 1/(e+2), p.Away, 1e-9)
	assert.Equal(t, core.SideHome, p.Argmax(core.SportFootball))
}

func TestClassifierTemperature(t *testing.T) {
	spec := footballSpec()
	spec.Temperature = 1e6

	c, err := NewClassifier(spec)
	require.NoError(t, err)

	p, err := c.Predict(map[string]float64{"rank_diff": 0})
	require.NoError(t, err)

	assert.InDelta(t, 1.0/3, p.Home, 1e-4)
	assert.InDelta(t, 1.0/3, p.Away, 1e-4)
}

func TestClassifierUsesWeights(t *testing.T) {
	spec := footballSpec()
	spec.Weights = [][]float64{{-0.2}, {0}, {0.2}}
	spec.Bias = []float64{0, 0, 0}

	c, err := NewClassifier(spec)
	require.NoError(t, err)

	favoured, err := c.Predict(map[string]float64{"rank_diff": 10})
	require.NoError(t, err)
	assert.Greater(t, favoured.Home, favoured.Away)

	underdog, err := c.Predict(map[string]float64{"rank_diff": -10})
	require.NoError(t, err)
	assert.Greater(t, underdog.Away, underdog.Home)
}

func TestClassifierMissingFeature(t *testing.T) {
	c, err := NewClassifier(footballSpec())
	require.NoError(t, err)

	_, err = c.Predict(map[string]float64{"home_rank": 1})
	assert.ErrorContains(t, err, "missing feature")
}

func TestNewClassifierValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ClassifierSpec)
		want   string
	}{
		{"unknown sport", func(s *ClassifierSpec) { s.Sport = "tennis" }, "unknown sport"},
		{"unsupported method", func(s *ClassifierSpec) { s.Method = "xgboost" }, "unsupported method"},
		{"class count", func(s *ClassifierSpec) { s.Classes = []string{"home", "away"} }, "classes"},
		{"bias rows", func(s *ClassifierSpec) { s.Bias = []float64{0} }, "rows"},
		{"no features", func(s *ClassifierSpec) { s.Features = nil }, "no features"},
		{"duplicate class", func(s *ClassifierSpec) { s.Classes = []string{"home", "draw", "1"} }, "duplicate"},
		{"unknown label", func(s *ClassifierSpec) { s.Classes = []string{"home", "draw", "lose"} }, "unknown outcome"},
		{"weight width", func(s *ClassifierSpec) { s.Weights[1] = []float64{1, 2} }, "weights"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := footballSpec()
			spec.Weights = [][]float64{{0}, {0}, {0}}
			tt.mutate(&spec)

			_, err := NewClassifier(spec)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestNewClassifierRejectsBasketballDraw(t *testing.T) {
	_, err := NewClassifier(ClassifierSpec{
		Sport:    "basketball",
		Classes:  []string{"home", "draw"},
		Features: []string{"rank_diff"},
		Weights:  [][]float64{{0}, {0}},
		Bias:     []float64{0, 0},
	})
	assert.ErrorContains(t, err, "two-way")
}

func TestModelRegistry(t *testing.T) {
	doc := `{
  "version": "2026.10",
  "models": [
    {"sport": "football", "name": "fb", "classes": ["home", "draw", "away"],
     "features": ["rank_diff"], "weights": [[0.1], [0], [-0.1]], "bias": [0, 0, 0]},
    {"sport": "basketball", "name": "bb", "classes": ["away", "home"],
     "features": ["home_strength", "away_strength"], "weights": [[0, 0.1], [0.1, 0]], "bias": [0, 0]}
  ]
}`
	path := filepath.Join(t.TempDir(), "models.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	r, err := LoadModelRegistry(path)
	require.NoError(t, err)

	assert.Equal(t, "2026.10", r.Version())
	fb, ok := r.Classifier(core.SportFootball)
	require.True(t, ok)
	assert.Equal(t, "fb", fb.Name())

	m := NewTrainedModel(r)
	assert.Equal(t, "trained:2026.10", m.Name())
	assert.True(t, m.Available(core.SportBasketball))

	p, err := m.Predict(Features{Sport: core.SportBasketball, HomeStrength: 20, AwayStrength: 5})
	require.NoError(t, err)
	assert.Zero(t, p.Draw)
	assert.Greater(t, p.Home, p.Away)
}

func TestModelRegistryDuplicateSport(t *testing.T) {
	a, err := NewClassifier(footballSpec())
	require.NoError(t, err)
	b, err := NewClassifier(footballSpec())
	require.NoError(t, err)

	_, err = NewModelRegistry("v1", a, b)
	assert.ErrorContains(t, err, "duplicate model")
}

func TestLoadModelRegistryErrors(t *testing.T) {
	_, err := LoadModelRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = ParseModelRegistry([]byte("{not json"))
	assert.ErrorContains(t, err, "decode model registry")
}

func TestNilRegistry(t *testing.T) {
	var r *ModelRegistry
	_, ok := r.Classifier(core.SportFootball)
	assert.False(t, ok)
	assert.Empty(t, r.Version())
}
