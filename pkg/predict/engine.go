package predict

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/fixtures"
)

// EngineConfig configures the prediction engine.
type EngineConfig struct {
	Workers           int     // Default: 8
	PremiumConfidence float64 // Default: 75
	DrawFloor         float64 // Default: 0.15

	Features   *FeatureConfig
	Confidence *ConfidenceConfig
	Markets    *MarketConfig
	Value      *ValueConfig
}

// DefaultEngineConfig returns default configuration.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Workers:           8,
		PremiumConfidence: 75,
		DrawFloor:         0.15,
		Features:          DefaultFeatureConfig(),
		Confidence:        DefaultConfidenceConfig(),
		Markets:           DefaultMarketConfig(),
		Value:             DefaultValueConfig(),
	}
}

// Engine produces one Prediction per Match. It holds no mutable state and
// is safe for concurrent use.
type Engine struct {
	cfg       EngineConfig
	features  *FeatureDeriver
	trained   *TrainedModel
	heuristic *HeuristicModel
	scorer    *ConfidenceScorer
	markets   *MarketPredictor
	value     *ValueBetClassifier
	log       logrus.FieldLogger
}

// NewEngine wires the prediction components. registry and history may be
// nil; without a registry every match takes the heuristic path.
func NewEngine(config *EngineConfig, registry *ModelRegistry, history HistoryProvider, log logrus.FieldLogger) *Engine {
	if config == nil {
		config = DefaultEngineConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	defaults := DefaultEngineConfig()
	cfg := *config
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.PremiumConfidence == 0 {
		cfg.PremiumConfidence = defaults.PremiumConfidence
	}
	if cfg.DrawFloor == 0 {
		cfg.DrawFloor = defaults.DrawFloor
	}

	scorer := NewConfidenceScorer(cfg.Confidence, history)
	return &Engine{
		cfg:       cfg,
		features:  NewFeatureDeriver(cfg.Features),
		trained:   NewTrainedModel(registry),
		heuristic: NewHeuristicModel(cfg.DrawFloor),
		scorer:    scorer,
		markets:   NewMarketPredictor(cfg.Markets, scorer),
		value:     NewValueBetClassifier(cfg.Value),
		log:       log.WithField("component", "engine"),
	}
}

// Predict returns the prediction for one match. It never fails: a trained
// model error falls back to the heuristic, and a heuristic error yields a
// degraded prediction.
func (e *Engine) Predict(m fixtures.Match, createdAt time.Time) Prediction {
	log := e.log.WithFields(logrus.Fields{"match": m.ID, "sport": m.Sport})

	if e.trained.Available(m.Sport) {
		p, err := e.safePredict(e.trained, m, createdAt)
		if err == nil {
			return p
		}
		log.WithError(err).Warn("trained model failed, using heuristic")
	}

	p, err := e.safePredict(e.heuristic, m, createdAt)
	if err == nil {
		return p
	}
	log.WithError(err).Error("heuristic failed, emitting degraded prediction")
	return e.degraded(m, createdAt)
}

// PredictBatch predicts every match on a bounded worker group. The output
// is in input order and has exactly one prediction per match.
func (e *Engine) PredictBatch(matches []fixtures.Match, createdAt time.Time) []Prediction {
	out := make([]Prediction, len(matches))

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i := range matches {
		g.Go(func() error {
			out[i] = e.Predict(matches[i], createdAt)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// safePredict runs one model and converts panics into errors.
func (e *Engine) safePredict(model OutcomeModel, m fixtures.Match, createdAt time.Time) (p Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", model.Name(), r)
		}
	}()
	return e.build(model, m, createdAt)
}

func (e *Engine) build(model OutcomeModel, m fixtures.Match, createdAt time.Time) (Prediction, error) {
	f, err := e.features.Derive(&m)
	if err != nil {
		return Prediction{}, err
	}

	probs, err := model.Predict(f)
	if err != nil {
		return Prediction{}, err
	}

	sport := m.Sport
	odds := m.PricedOdds()
	predicted := probs.Argmax(sport)

	var favorite core.Side
	hasFavorite := false
	if m.Odds != nil {
		favorite, hasFavorite = odds.Favorite(sport)
	}
	confidence := e.scorer.Primary(sport, probs, favorite, hasFavorite)

	markets := make(Markets)
	if sport == core.SportFootball {
		primary, err := NewOutcome1X2(probs, odds, predicted, confidence)
		if err != nil {
			return Prediction{}, err
		}
		markets[primary.Market()] = primary
	} else {
		primary, err := NewWinner(probs, odds, predicted, confidence)
		if err != nil {
			return Prediction{}, err
		}
		markets[primary.Market()] = primary
	}

	secondary, err := e.markets.Predict(f, e.maxRank(sport))
	if err != nil {
		return Prediction{}, err
	}
	for _, mp := range secondary {
		markets[mp.Market()] = mp
	}

	p := e.envelope(m, createdAt)
	p.PredictedOutcome = predicted.Code(sport)
	p.Confidence = confidence
	p.ConfidenceLevel = core.Band(confidence)
	p.ValueBet = e.value.Classify(sport, predicted, probs, odds)
	p.Predictions = markets
	p.Model = model.Name()
	p.IsPremium = e.isPremium(&p)
	return p, nil
}

func (e *Engine) isPremium(p *Prediction) bool {
	if p.Confidence >= e.cfg.PremiumConfidence {
		return true
	}
	return p.ValueBet != nil && p.ValueBet.Outcome == p.PredictedOutcome && p.ValueBet.Tier.AtLeast(core.Tier2)
}

// degraded returns the minimal prediction kept when every model fails.
func (e *Engine) degraded(m fixtures.Match, createdAt time.Time) Prediction {
	sport := m.Sport
	if !sport.Valid() {
		sport = core.SportFootball
	}

	side, confidence := core.SideHome, 50.0
	probs := Probs{Home: 1.0 / 3, Draw: 1.0 / 3, Away: 1.0 / 3}
	if sport == core.SportBasketball {
		confidence = 55
		probs = Probs{Home: 0.5, Away: 0.5}
	}

	p := e.envelope(m, createdAt)
	p.Sport = sport
	p.ID = PredictionID(sport, m.ID)
	p.PredictedOutcome = side.Code(sport)
	p.Confidence = confidence
	p.ConfidenceLevel = core.Band(confidence)
	p.Model = "degraded"
	p.Degraded = true
	p.Predictions = make(Markets)

	m.Sport = sport
	odds := m.PricedOdds()
	if sport == core.SportFootball {
		if primary, err := NewOutcome1X2(probs, odds, side, confidence); err == nil {
			p.Predictions[primary.Market()] = primary
		}
	} else {
		if primary, err := NewWinner(probs, odds, side, confidence); err == nil {
			p.Predictions[primary.Market()] = primary
		}
	}
	return p
}

func (e *Engine) envelope(m fixtures.Match, createdAt time.Time) Prediction {
	return Prediction{
		ID:         PredictionID(m.Sport, m.ID),
		MatchID:    m.ID,
		Sport:      m.Sport,
		CreatedAt:  createdAt,
		HomeTeam:   m.Home.Name,
		AwayTeam:   m.Away.Name,
		StartTime:  m.StartTime,
		League:     m.League,
		FixtureKey: m.Key(),
	}
}

func (e *Engine) maxRank(sport core.Sport) int {
	if sport == core.SportBasketball {
		return e.features.cfg.Basketball.MaxRank
	}
	return e.features.cfg.Football.MaxRank
}
