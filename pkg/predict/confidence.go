package predict

import (
	"math"

	"github.com/phenomenon0/puntaiq/core"
)

// HistoryProvider reports how often a prediction type has been right.
type HistoryProvider interface {
	// SuccessRate returns the hit rate in [0,1] and its sample count.
	SuccessRate(sport core.Sport, market core.Market) (rate float64, samples int)
}

// ConfidenceConfig configures the ConfidenceScorer.
type ConfidenceConfig struct {
	MaxMarginBoost    float64 // Default: 0.5 (up to 1.5x)
	AgreeFactor       float64 // Default: 1.2
	DisagreeFactor    float64 // Default: 0.85
	PrimaryCap        float64 // Default: 95
	MarketCap         float64 // Default: 99.9
	HistoryMinSamples int     // Default: 20
	HistoryWeight     float64 // Default: 0.4 (factor range 0.8-1.2)
}

// DefaultConfidenceConfig returns default configuration.
func DefaultConfidenceConfig() *ConfidenceConfig {
	return &ConfidenceConfig{
		MaxMarginBoost:    0.5,
		AgreeFactor:       1.2,
		DisagreeFactor:    0.85,
		PrimaryCap:        95,
		MarketCap:         99.9,
		HistoryMinSamples: 20,
		HistoryWeight:     0.4,
	}
}

// ConfidenceScorer turns probabilities into bounded confidence percentages.
type ConfidenceScorer struct {
	cfg     ConfidenceConfig
	history HistoryProvider
}

// NewConfidenceScorer creates a scorer. history may be nil.
func NewConfidenceScorer(config *ConfidenceConfig, history HistoryProvider) *ConfidenceScorer {
	if config == nil {
		config = DefaultConfidenceConfig()
	}

	defaults := DefaultConfidenceConfig()
	cfg := *config
	if cfg.MaxMarginBoost == 0 {
		cfg.MaxMarginBoost = defaults.MaxMarginBoost
	}
	if cfg.AgreeFactor == 0 {
		cfg.AgreeFactor = defaults.AgreeFactor
	}
	if cfg.DisagreeFactor == 0 {
		cfg.DisagreeFactor = defaults.DisagreeFactor
	}
	if cfg.PrimaryCap == 0 {
		cfg.PrimaryCap = defaults.PrimaryCap
	}
	if cfg.MarketCap == 0 {
		cfg.MarketCap = defaults.MarketCap
	}
	if cfg.HistoryMinSamples == 0 {
		cfg.HistoryMinSamples = defaults.HistoryMinSamples
	}
	// HistoryWeight can be 0 intentionally to ignore history

	return &ConfidenceScorer{cfg: cfg, history: history}
}

// Primary scores the predicted outcome of a sport's primary market.
// favorite is the bookmaker favorite; hasFavorite is false without odds.
func (s *ConfidenceScorer) Primary(sport core.Sport, p Probs, favorite core.Side, hasFavorite bool) float64 {
	top, second := p.TopTwo(sport)
	c := top * 100

	c *= 1 + math.Min(top-second, s.cfg.MaxMarginBoost)

	if hasFavorite {
		if p.Argmax(sport) == favorite {
			c *= s.cfg.AgreeFactor
		} else {
			c *= s.cfg.DisagreeFactor
		}
	}

	c *= s.historyFactor(sport, core.PrimaryMarket(sport))
	return clampConfidence(c, s.cfg.PrimaryCap)
}

// Market scores a binary secondary market from the probability of one of
// its outcomes.
func (s *ConfidenceScorer) Market(sport core.Sport, market core.Market, p float64) float64 {
	c := math.Max(p, 1-p) * 100
	c *= s.historyFactor(sport, market)
	return clampConfidence(c, s.cfg.MarketCap)
}

// Bounded clamps an externally derived confidence with history applied.
func (s *ConfidenceScorer) Bounded(sport core.Sport, market core.Market, c float64) float64 {
	return clampConfidence(c*s.historyFactor(sport, market), s.cfg.MarketCap)
}

func (s *ConfidenceScorer) historyFactor(sport core.Sport, market core.Market) float64 {
	if s.history == nil || s.cfg.HistoryWeight == 0 {
		return 1
	}
	rate, samples := s.history.SuccessRate(sport, market)
	if samples < s.cfg.HistoryMinSamples {
		return 1
	}
	rate = math.Max(0, math.Min(1, rate))
	return 1 - s.cfg.HistoryWeight/2 + s.cfg.HistoryWeight*rate
}

func clampConfidence(c, limit float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > limit {
		c = limit
	}
	return round1(c)
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
