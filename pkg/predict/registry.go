package predict

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/phenomenon0/puntaiq/core"
)

// ClassifierSpec is the on-disk form of a trained linear classifier.
//
//	{
//	  "sport": "football",
//	  "name": "logreg-2026-03",
//	  "method": "softmax",
//	  "classes": ["away", "draw", "home"],
//	  "features": ["home_rank", "away_rank", ...],
//	  "weights": [[...], [...], [...]],
//	  "bias": [0.1, -0.3, 0.2],
//	  "temperature": 1.05
//	}
//
// Classes are matched to outcomes by label, so their order is free.
type ClassifierSpec struct {
	Sport       string      `json:"sport"`
	Name        string      `json:"name"`
	Method      string      `json:"method"`
	Classes     []string    `json:"classes"`
	Features    []string    `json:"features"`
	Weights     [][]float64 `json:"weights"`
	Bias        []float64   `json:"bias"`
	Temperature float64     `json:"temperature"`
}

// Classifier is a validated, immutable linear softmax classifier.
type Classifier struct {
	sport       core.Sport
	name        string
	classes     []core.Side
	features    []string
	weights     [][]float64
	bias        []float64
	temperature float64
}

// NewClassifier validates a spec and copies it into a Classifier.
func NewClassifier(spec ClassifierSpec) (*Classifier, error) {
	sport, err := core.ParseSport(spec.Sport)
	if err != nil {
		return nil, err
	}
	if spec.Method != "" && spec.Method != "softmax" {
		return nil, fmt.Errorf("model %s: unsupported method %q", spec.Name, spec.Method)
	}

	n := len(spec.Classes)
	if n != len(sport.Sides()) {
		return nil, fmt.Errorf("model %s: %d classes for %s, want %d", spec.Name, n, sport, len(sport.Sides()))
	}
	if len(spec.Weights) != n || len(spec.Bias) != n {
		return nil, fmt.Errorf("model %s: weights/bias rows do not match %d classes", spec.Name, n)
	}
	if len(spec.Features) == 0 {
		return nil, fmt.Errorf("model %s: no features", spec.Name)
	}

	c := &Classifier{
		sport:       sport,
		name:        spec.Name,
		classes:     make([]core.Side, n),
		features:    append([]string(nil), spec.Features...),
		weights:     make([][]float64, n),
		bias:        append([]float64(nil), spec.Bias...),
		temperature: spec.Temperature,
	}
	if c.temperature <= 0 {
		c.temperature = 1.0
	}

	seen := make(map[core.Side]bool, n)
	for i, label := range spec.Classes {
		side, err := core.ParseSide(label)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", spec.Name, err)
		}
		if sport == core.SportBasketball && side == core.SideDraw {
			return nil, fmt.Errorf("model %s: draw class in two-way sport", spec.Name)
		}
		if seen[side] {
			return nil, fmt.Errorf("model %s: duplicate class %q", spec.Name, label)
		}
		seen[side] = true
		c.classes[i] = side

		if len(spec.Weights[i]) != len(spec.Features) {
			return nil, fmt.Errorf("model %s: class %q has %d weights for %d features",
				spec.Name, label, len(spec.Weights[i]), len(spec.Features))
		}
		c.weights[i] = append([]float64(nil), spec.Weights[i]...)
	}

	return c, nil
}

// Name returns the model name.
func (c *Classifier) Name() string { return c.name }

// Sport returns the sport the classifier scores.
func (c *Classifier) Sport() core.Sport { return c.sport }

// Predict returns temperature-scaled softmax probabilities mapped by class
// label.
func (c *Classifier) Predict(vec map[string]float64) (Probs, error) {
	logits := make([]float64, len(c.classes))
	maxLogit := math.Inf(-1)

	for k := range c.classes {
		z := c.bias[k]
		for j, name := range c.features {
			x, ok := vec[name]
			if !ok {
				return Probs{}, fmt.Errorf("model %s: missing feature %q", c.name, name)
			}
			z += c.weights[k][j] * x
		}
		z /= c.temperature
		if math.IsNaN(z) || math.IsInf(z, 0) {
			return Probs{}, fmt.Errorf("model %s: non-finite logit for %s", c.name, c.classes[k])
		}
		logits[k] = z
		maxLogit = math.Max(maxLogit, z)
	}

	sum := 0.0
	for k, z := range logits {
		logits[k] = math.Exp(z - maxLogit)
		sum += logits[k]
	}

	var p Probs
	for k, side := range c.classes {
		v := logits[k] / sum
		switch side {
		case core.SideHome:
			p.Home = v
		case core.SideDraw:
			p.Draw = v
		case core.SideAway:
			p.Away = v
		}
	}
	return p, nil
}

// ModelRegistry holds the trained classifiers loaded at startup. It is
// never mutated after construction and is safe for concurrent use.
type ModelRegistry struct {
	version string
	models  map[core.Sport]*Classifier
}

// NewModelRegistry builds a registry from classifiers, one per sport.
func NewModelRegistry(version string, classifiers ...*Classifier) (*ModelRegistry, error) {
	r := &ModelRegistry{
		version: version,
		models:  make(map[core.Sport]*Classifier, len(classifiers)),
	}
	for _, c := range classifiers {
		if _, dup := r.models[c.sport]; dup {
			return nil, fmt.Errorf("duplicate model for sport %s", c.sport)
		}
		r.models[c.sport] = c
	}
	return r, nil
}

// ParseModelRegistry decodes a registry document:
//
//	{"version": "...", "models": [ClassifierSpec, ...]}
func ParseModelRegistry(data []byte) (*ModelRegistry, error) {
	var raw struct {
		Version string           `json:"version"`
		Models  []ClassifierSpec `json:"models"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode model registry")
	}

	classifiers := make([]*Classifier, 0, len(raw.Models))
	for _, spec := range raw.Models {
		c, err := NewClassifier(spec)
		if err != nil {
			return nil, err
		}
		classifiers = append(classifiers, c)
	}
	return NewModelRegistry(raw.Version, classifiers...)
}

// LoadModelRegistry reads a registry document from disk.
func LoadModelRegistry(path string) (*ModelRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read model registry %s", path)
	}
	return ParseModelRegistry(data)
}

// Classifier returns the classifier for a sport. Safe on a nil registry.
func (r *ModelRegistry) Classifier(sport core.Sport) (*Classifier, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.models[sport]
	return c, ok
}

// Version returns the registry version. Safe on a nil registry.
func (r *ModelRegistry) Version() string {
	if r == nil {
		return ""
	}
	return r.version
}
