package predict

import (
	"fmt"
	"math"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/fixtures"
)

// MarketPrediction is one per-market sub-prediction. The concrete types
// are Outcome1X2, BTTS, OverUnder and CorrectScore for football and
// Winner, TotalPoints and Spread for basketball.
type MarketPrediction interface {
	Market() core.Market
	isMarketPrediction()
}

// OutcomeResult is the shared shape of the primary outcome markets.
type OutcomeResult struct {
	PredictedOutcome string               `json:"predicted_outcome"`
	Confidence       float64              `json:"confidence"`
	ConfidenceLevel  core.ConfidenceLevel `json:"confidence_level"`
	Probabilities    map[string]float64   `json:"probabilities"` // Outcome code -> probability
	Odds             map[string]float64   `json:"odds"`          // Outcome code -> decimal odds
}

// PickOdds returns the odds of the predicted outcome.
func (r OutcomeResult) PickOdds() float64 {
	return r.Odds[r.PredictedOutcome]
}

func newOutcomeResult(sport core.Sport, p Probs, odds fixtures.Odds, predicted core.Side, confidence float64) (OutcomeResult, error) {
	if err := p.Check(sport); err != nil {
		return OutcomeResult{}, err
	}
	if confidence < 0 || confidence > 100 {
		return OutcomeResult{}, fmt.Errorf("confidence %v out of range", confidence)
	}

	r := OutcomeResult{
		PredictedOutcome: predicted.Code(sport),
		Confidence:       confidence,
		ConfidenceLevel:  core.Band(confidence),
		Probabilities:    make(map[string]float64, len(sport.Sides())),
		Odds:             make(map[string]float64, len(sport.Sides())),
	}
	for _, side := range sport.Sides() {
		r.Probabilities[side.Code(sport)] = round4(p.ProbFor(side))
		r.Odds[side.Code(sport)] = odds.For(side)
	}
	return r, nil
}

// Outcome1X2 is the football home/draw/away market.
type Outcome1X2 struct{ OutcomeResult }

// NewOutcome1X2 validates and builds the 1X2 market.
func NewOutcome1X2(p Probs, odds fixtures.Odds, predicted core.Side, confidence float64) (Outcome1X2, error) {
	r, err := newOutcomeResult(core.SportFootball, p, odds, predicted, confidence)
	return Outcome1X2{r}, err
}

// Market returns core.Market1X2.
func (Outcome1X2) Market() core.Market { return core.Market1X2 }

// isMarketPrediction seals MarketPrediction.
func (Outcome1X2) isMarketPrediction() {}

// Winner is the basketball home/away market.
type Winner struct{ OutcomeResult }

// NewWinner validates and builds the Winner market.
func NewWinner(p Probs, odds fixtures.Odds, predicted core.Side, confidence float64) (Winner, error) {
	if predicted == core.SideDraw {
		return Winner{}, fmt.Errorf("draw is not a basketball outcome")
	}
	r, err := newOutcomeResult(core.SportBasketball, p, odds, predicted, confidence)
	return Winner{r}, err
}

// Market returns core.MarketWinner.
func (Winner) Market() core.Market { return core.MarketWinner }

// isMarketPrediction seals MarketPrediction.
func (Winner) isMarketPrediction() {}

// BTTS is the both-teams-to-score market.
type BTTS struct {
	PredictedOutcome string  `json:"predicted_outcome"` // "Yes" or "No"
	Probability      float64 `json:"probability"`       // P(Yes)
	Confidence       float64 `json:"confidence"`
}

// NewBTTS validates and builds the BTTS market.
func NewBTTS(pYes, confidence float64) (BTTS, error) {
	if err := checkProb(pYes); err != nil {
		return BTTS{}, err
	}
	outcome := "No"
	if pYes > 0.5 {
		outcome = "Yes"
	}
	return BTTS{PredictedOutcome: outcome, Probability: round4(pYes), Confidence: confidence}, nil
}

// Market returns core.MarketBTTS.
func (BTTS) Market() core.Market { return core.MarketBTTS }

// isMarketPrediction seals MarketPrediction.
func (BTTS) isMarketPrediction() {}

// OverUnder is the football total goals market.
type OverUnder struct {
	Line             float64 `json:"line"`
	PredictedOutcome string  `json:"predicted_outcome"` // "Over" or "Under"
	Probability      float64 `json:"probability"`       // P(Over)
	ExpectedGoals    float64 `json:"expected_goals"`
	Confidence       float64 `json:"confidence"`
}

// NewOverUnder validates and builds the Over/Under market.
func NewOverUnder(line, pOver, expectedGoals, confidence float64) (OverUnder, error) {
	if err := checkProb(pOver); err != nil {
		return OverUnder{}, err
	}
	outcome := "Under"
	if pOver > 0.5 {
		outcome = "Over"
	}
	return OverUnder{
		Line:             line,
		PredictedOutcome: outcome,
		Probability:      round4(pOver),
		ExpectedGoals:    round2(expectedGoals),
		Confidence:       confidence,
	}, nil
}

// Market returns core.MarketOverUnder.
func (OverUnder) Market() core.Market { return core.MarketOverUnder }

// isMarketPrediction seals MarketPrediction.
func (OverUnder) isMarketPrediction() {}

// CorrectScore is the most likely final score from the Poisson model.
type CorrectScore struct {
	PredictedScore string             `json:"predicted_score"`
	HomeGoals      int                `json:"home_goals"`
	AwayGoals      int                `json:"away_goals"`
	Probability    float64            `json:"probability"`
	Confidence     float64            `json:"confidence"`
	TopScores      []ScoreProbability `json:"top_scores"`
}

// NewCorrectScore validates and builds the correct score market.
func NewCorrectScore(best ScoreProbability, top []ScoreProbability) (CorrectScore, error) {
	if err := checkProb(best.Probability); err != nil {
		return CorrectScore{}, err
	}
	if best.HomeGoals < 0 || best.AwayGoals < 0 {
		return CorrectScore{}, fmt.Errorf("negative score %s", best.Score)
	}

	rounded := make([]ScoreProbability, len(top))
	for i, s := range top {
		s.Probability = round4(s.Probability)
		rounded[i] = s
	}
	return CorrectScore{
		PredictedScore: best.Score,
		HomeGoals:      best.HomeGoals,
		AwayGoals:      best.AwayGoals,
		Probability:    round4(best.Probability),
		Confidence:     round1(best.Probability * 100),
		TopScores:      rounded,
	}, nil
}

// Market returns core.MarketCorrectScore.
func (CorrectScore) Market() core.Market { return core.MarketCorrectScore }

// isMarketPrediction seals MarketPrediction.
func (CorrectScore) isMarketPrediction() {}

// ExpectedPoints is a basketball points projection.
type ExpectedPoints struct {
	Home  float64 `json:"home"`
	Away  float64 `json:"away"`
	Total float64 `json:"total"`
}

// TotalPoints is the basketball total points market.
type TotalPoints struct {
	Line             float64        `json:"line"`
	PredictedOutcome string         `json:"predicted_outcome"` // "Over" or "Under"
	Probability      float64        `json:"probability"`       // P(Over)
	Confidence       float64        `json:"confidence"`
	ExpectedPoints   ExpectedPoints `json:"expected_points"`
}

// NewTotalPoints validates and builds the total points market.
func NewTotalPoints(line, pOver, confidence float64, expected ExpectedPoints) (TotalPoints, error) {
	if err := checkProb(pOver); err != nil {
		return TotalPoints{}, err
	}
	if expected.Home <= 0 || expected.Away <= 0 {
		return TotalPoints{}, fmt.Errorf("non-positive expected points %+v", expected)
	}
	outcome := "Under"
	if expected.Total > line {
		outcome = "Over"
	}
	return TotalPoints{
		Line:             line,
		PredictedOutcome: outcome,
		Probability:      round4(pOver),
		Confidence:       confidence,
		ExpectedPoints: ExpectedPoints{
			Home:  round1(expected.Home),
			Away:  round1(expected.Away),
			Total: round1(expected.Total),
		},
	}, nil
}

// Market returns core.MarketTotalPoints.
func (TotalPoints) Market() core.Market { return core.MarketTotalPoints }

// isMarketPrediction seals MarketPrediction.
func (TotalPoints) isMarketPrediction() {}

// Spread is the basketball handicap market.
type Spread struct {
	Line             float64 `json:"line"`              // Home margin, negative when away is favored
	PredictedOutcome string  `json:"predicted_outcome"` // "Home" or "Away"
	Confidence       float64 `json:"confidence"`
}

// NewSpread validates and builds the spread market.
func NewSpread(line, confidence float64) (Spread, error) {
	if math.IsNaN(line) || math.IsInf(line, 0) {
		return Spread{}, fmt.Errorf("invalid spread line %v", line)
	}
	outcome := "Away"
	if line >= 0 {
		outcome = "Home"
	}
	return Spread{Line: line, PredictedOutcome: outcome, Confidence: confidence}, nil
}

// Market returns core.MarketSpread.
func (Spread) Market() core.Market { return core.MarketSpread }

// isMarketPrediction seals MarketPrediction.
func (Spread) isMarketPrediction() {}

// MarketConfig configures the MarketPredictor.
type MarketConfig struct {
	OverUnderLine    float64 // Default: 2.5
	MaxGoals         int     // Default: 5
	TopScores        int     // Default: 5
	TotalPointsStep  float64 // Default: 5 (line rounding)
	TotalPointsScale float64 // Default: 5 (logistic scale, points)
	SpreadMaxConf    float64 // Default: 90
}

// DefaultMarketConfig returns default configuration.
func DefaultMarketConfig() *MarketConfig {
	return &MarketConfig{
		OverUnderLine:    2.5,
		MaxGoals:         5,
		TopScores:        5,
		TotalPointsStep:  5,
		TotalPointsScale: 5,
		SpreadMaxConf:    90,
	}
}

// MarketPredictor derives secondary markets from features.
type MarketPredictor struct {
	cfg    MarketConfig
	scorer *ConfidenceScorer
}

// NewMarketPredictor creates a market predictor.
func NewMarketPredictor(config *MarketConfig, scorer *ConfidenceScorer) *MarketPredictor {
	if config == nil {
		config = DefaultMarketConfig()
	}
	if scorer == nil {
		scorer = NewConfidenceScorer(nil, nil)
	}

	defaults := DefaultMarketConfig()
	cfg := *config
	if cfg.OverUnderLine == 0 {
		cfg.OverUnderLine = defaults.OverUnderLine
	}
	if cfg.MaxGoals == 0 {
		cfg.MaxGoals = defaults.MaxGoals
	}
	if cfg.TopScores == 0 {
		cfg.TopScores = defaults.TopScores
	}
	if cfg.TotalPointsStep == 0 {
		cfg.TotalPointsStep = defaults.TotalPointsStep
	}
	if cfg.TotalPointsScale == 0 {
		cfg.TotalPointsScale = defaults.TotalPointsScale
	}
	if cfg.SpreadMaxConf == 0 {
		cfg.SpreadMaxConf = defaults.SpreadMaxConf
	}

	return &MarketPredictor{cfg: cfg, scorer: scorer}
}

// Predict returns the secondary markets of a match.
func (mp *MarketPredictor) Predict(f Features, maxRank int) ([]MarketPrediction, error) {
	switch f.Sport {
	case core.SportFootball:
		return mp.football(f, maxRank)
	case core.SportBasketball:
		return mp.basketball(f)
	default:
		return nil, fmt.Errorf("unsupported sport %q", f.Sport)
	}
}

func (mp *MarketPredictor) football(f Features, maxRank int) ([]MarketPrediction, error) {
	pBTTS := bttsHeuristic(f.HomeRank, f.AwayRank, maxRank)
	if f.HasGoalData {
		pBTTS = (1 - math.Exp(-f.HomeExpected)) * (1 - math.Exp(-f.AwayExpected))
	}
	btts, err := NewBTTS(pBTTS, mp.scorer.Market(f.Sport, core.MarketBTTS, pBTTS))
	if err != nil {
		return nil, fmt.Errorf("btts: %w", err)
	}

	totalXG := f.HomeExpected + f.AwayExpected
	pOver := sigmoid(totalXG - mp.cfg.OverUnderLine)
	ou, err := NewOverUnder(mp.cfg.OverUnderLine, pOver, totalXG, mp.scorer.Market(f.Sport, core.MarketOverUnder, pOver))
	if err != nil {
		return nil, fmt.Errorf("over/under: %w", err)
	}

	m := scoreMatrix(f.HomeExpected, f.AwayExpected, mp.cfg.MaxGoals)
	cs, err := NewCorrectScore(mostLikelyScore(m), topScores(m, mp.cfg.TopScores))
	if err != nil {
		return nil, fmt.Errorf("correct score: %w", err)
	}

	return []MarketPrediction{btts, ou, cs}, nil
}

func (mp *MarketPredictor) basketball(f Features) ([]MarketPrediction, error) {
	expected := ExpectedPoints{
		Home:  f.HomeExpected,
		Away:  f.AwayExpected,
		Total: f.HomeExpected + f.AwayExpected,
	}

	step := mp.cfg.TotalPointsStep
	line := math.Round(expected.Total/step) * step
	pOver := sigmoid((expected.Total - line) / mp.cfg.TotalPointsScale)
	tp, err := NewTotalPoints(line, pOver, mp.scorer.Market(f.Sport, core.MarketTotalPoints, pOver), expected)
	if err != nil {
		return nil, fmt.Errorf("total points: %w", err)
	}

	spreadLine := math.Round((expected.Home - expected.Away) / 2)
	conf := math.Min(50+4*math.Abs(spreadLine), mp.cfg.SpreadMaxConf)
	sp, err := NewSpread(spreadLine, mp.scorer.Bounded(f.Sport, core.MarketSpread, conf))
	if err != nil {
		return nil, fmt.Errorf("spread: %w", err)
	}

	return []MarketPrediction{tp, sp}, nil
}

// bttsHeuristic estimates P(both teams score) from ranks alone.
func bttsHeuristic(homeRank, awayRank, maxRank int) float64 {
	p := 0.5
	if abs(homeRank-awayRank) <= 5 {
		p += 0.10
	}
	if homeRank <= 10 || awayRank <= 10 {
		p += 0.05
	}
	if homeRank > maxRank-3 || awayRank > maxRank-3 {
		p -= 0.10
	}
	return math.Max(0.05, math.Min(0.95, p))
}

func checkProb(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("probability %v out of range", p)
	}
	return nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
func round4(x float64) float64 { return math.Round(x*10000) / 10000 }
