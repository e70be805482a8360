// Package evaluate settles stored predictions against final scores and
// reports per-market hit rates and flat-stake returns.
package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/accumulator"
	"github.com/phenomenon0/puntaiq/pkg/history"
	"github.com/phenomenon0/puntaiq/pkg/predict"
)

// FinalScore is the result of a finished match.
type FinalScore struct {
	MatchID   string     `json:"match_id"`
	Sport     core.Sport `json:"sport"`
	HomeScore int        `json:"home_score"`
	AwayScore int        `json:"away_score"`
}

// Winner returns the winning side, SideDraw on a tie.
func (s FinalScore) Winner() core.Side {
	switch {
	case s.HomeScore > s.AwayScore:
		return core.SideHome
	case s.HomeScore < s.AwayScore:
		return core.SideAway
	default:
		return core.SideDraw
	}
}

// Scores indexes final scores by sport and match id.
type Scores map[string]FinalScore

// Add inserts a score.
func (s Scores) Add(fs FinalScore) {
	s[scoreKey(fs.Sport, fs.MatchID)] = fs
}

// Lookup returns the score of a match.
func (s Scores) Lookup(sport core.Sport, matchID string) (FinalScore, bool) {
	fs, ok := s[scoreKey(sport, matchID)]
	return fs, ok
}

func scoreKey(sport core.Sport, matchID string) string {
	return string(sport) + "/" + matchID
}

// LoadScoresCSV reads final scores.
// Expected columns: match_id, sport, home_score, away_score
func LoadScoresCSV(r io.Reader) (Scores, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"match_id", "sport", "home_score", "away_score"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	scores := make(Scores)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "read line %d", line)
		}

		sport, err := core.ParseSport(record[colIndex["sport"]])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		home, err := strconv.Atoi(strings.TrimSpace(record[colIndex["home_score"]]))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: home_score", line)
		}
		away, err := strconv.Atoi(strings.TrimSpace(record[colIndex["away_score"]]))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: away_score", line)
		}

		scores.Add(FinalScore{
			MatchID:   strings.TrimSpace(record[colIndex["match_id"]]),
			Sport:     sport,
			HomeScore: home,
			AwayScore: away,
		})
	}
	return scores, nil
}

// LoadScoresFile reads a final scores CSV file.
func LoadScoresFile(path string) (Scores, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open scores")
	}
	defer f.Close()
	return LoadScoresCSV(f)
}

// LoadPredictions reads a JSON array of predictions.
func LoadPredictions(path string) ([]predict.Prediction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read predictions")
	}
	var preds []predict.Prediction
	if err := json.Unmarshal(data, &preds); err != nil {
		return nil, errors.Wrapf(err, "decode predictions %s", path)
	}
	return preds, nil
}

// Settlement is the outcome of one market of one prediction.
type Settlement struct {
	PredictionID string      `json:"prediction_id"`
	MatchID      string      `json:"match_id"`
	Sport        core.Sport  `json:"sport"`
	Market       core.Market `json:"market"`
	Pick         string      `json:"pick"`
	Hit          bool        `json:"hit"`
	Void         bool        `json:"void"` // Push, excluded from hit rates
	Odds         float64     `json:"odds,omitempty"`
}

// Settle grades every market of a prediction against the final score.
func Settle(p predict.Prediction, s FinalScore) []Settlement {
	out := make([]Settlement, 0, len(p.Predictions))
	for _, market := range p.Predictions.Names() {
		st := Settlement{
			PredictionID: p.ID,
			MatchID:      p.MatchID,
			Sport:        p.Sport,
			Market:       market,
		}

		switch m := p.Predictions[market].(type) {
		case predict.Outcome1X2:
			st.Pick, st.Odds = m.PredictedOutcome, m.PickOdds()
			st.Hit = m.PredictedOutcome == s.Winner().Code(p.Sport)
		case predict.Winner:
			st.Pick, st.Odds = m.PredictedOutcome, m.PickOdds()
			st.Hit = m.PredictedOutcome == s.Winner().Code(p.Sport)
		case predict.BTTS:
			st.Pick = m.PredictedOutcome
			st.Hit = (m.PredictedOutcome == "Yes") == (s.HomeScore > 0 && s.AwayScore > 0)
		case predict.OverUnder:
			st.Pick = fmt.Sprintf("%s %.1f", m.PredictedOutcome, m.Line)
			st.Hit, st.Void = overUnder(m.PredictedOutcome, float64(s.HomeScore+s.AwayScore), m.Line)
		case predict.CorrectScore:
			st.Pick = m.PredictedScore
			st.Hit = m.HomeGoals == s.HomeScore && m.AwayGoals == s.AwayScore
		case predict.TotalPoints:
			st.Pick = fmt.Sprintf("%s %.1f", m.PredictedOutcome, m.Line)
			st.Hit, st.Void = overUnder(m.PredictedOutcome, float64(s.HomeScore+s.AwayScore), m.Line)
		case predict.Spread:
			st.Pick = fmt.Sprintf("%s %+.1f", m.PredictedOutcome, m.Line)
			margin := float64(s.HomeScore - s.AwayScore)
			switch {
			case margin == m.Line:
				st.Void = true
			case m.PredictedOutcome == "Home":
				st.Hit = margin > m.Line
			default:
				st.Hit = margin < m.Line
			}
		default:
			continue
		}
		out = append(out, st)
	}
	return out
}

func overUnder(pick string, total, line float64) (hit, void bool) {
	if total == line {
		return false, true
	}
	if pick == "Over" {
		return total > line, false
	}
	return total < line, false
}

// AccumulatorStatus is the settled state of an accumulator.
type AccumulatorStatus string

const (
	AccumulatorWon     AccumulatorStatus = "won"
	AccumulatorLost    AccumulatorStatus = "lost"
	AccumulatorPending AccumulatorStatus = "pending"
)

// SettleAccumulator grades an accumulator: lost as soon as one leg loses,
// won when every leg has won, pending otherwise.
func SettleAccumulator(acc accumulator.Accumulator, scores Scores) AccumulatorStatus {
	pending := false
	for _, leg := range acc.Selections {
		s, ok := scores.Lookup(leg.Sport, leg.MatchID)
		if !ok {
			pending = true
			continue
		}
		if leg.Outcome != s.Winner().Code(leg.Sport) {
			return AccumulatorLost
		}
	}
	if pending {
		return AccumulatorPending
	}
	return AccumulatorWon
}

// MarketStats aggregates the settlements of one sport and market.
type MarketStats struct {
	Sport   core.Sport  `json:"sport"`
	Market  core.Market `json:"market"`
	Hits    int         `json:"hits"`
	Total   int         `json:"total"`
	Voids   int         `json:"voids"`
	HitRate float64     `json:"hit_rate"`
}

// Report summarizes an evaluation run.
type Report struct {
	Predictions int             `json:"predictions"`
	Settled     int             `json:"settled"`
	Unmatched   int             `json:"unmatched"`
	Markets     []MarketStats   `json:"markets"`
	Settlements []Settlement    `json:"settlements,omitempty"`
	Staked      decimal.Decimal `json:"staked"`   // One unit per primary pick
	Returned    decimal.Decimal `json:"returned"` // Odds of winning picks
	ProfitLoss  decimal.Decimal `json:"profit_loss"`
	ROI         decimal.Decimal `json:"roi"` // Percentage

	Accumulators map[AccumulatorStatus]int `json:"accumulators,omitempty"`
}

// Evaluate settles every prediction that has a final score.
func Evaluate(preds []predict.Prediction, scores Scores) *Report {
	r := &Report{
		Predictions: len(preds),
		Staked:      decimal.Zero,
		Returned:    decimal.Zero,
	}

	stats := make(map[string]*MarketStats)
	for _, p := range preds {
		if p.Degraded {
			continue
		}
		s, ok := scores.Lookup(p.Sport, p.MatchID)
		if !ok {
			r.Unmatched++
			continue
		}
		r.Settled++

		for _, st := range Settle(p, s) {
			r.Settlements = append(r.Settlements, st)

			k := scoreKey(st.Sport, string(st.Market))
			ms, ok := stats[k]
			if !ok {
				ms = &MarketStats{Sport: st.Sport, Market: st.Market}
				stats[k] = ms
			}
			if st.Void {
				ms.Voids++
				continue
			}
			ms.Total++
			if st.Hit {
				ms.Hits++
			}

			if st.Market == core.PrimaryMarket(st.Sport) && st.Odds > 0 {
				r.Staked = r.Staked.Add(decimal.NewFromInt(1))
				if st.Hit {
					r.Returned = r.Returned.Add(decimal.NewFromFloat(st.Odds))
				}
			}
		}
	}

	for _, ms := range stats {
		if ms.Total > 0 {
			ms.HitRate = float64(ms.Hits) / float64(ms.Total)
		}
		r.Markets = append(r.Markets, *ms)
	}
	sort.Slice(r.Markets, func(i, j int) bool {
		if r.Markets[i].Sport != r.Markets[j].Sport {
			return r.Markets[i].Sport < r.Markets[j].Sport
		}
		return r.Markets[i].Market < r.Markets[j].Market
	})

	r.ProfitLoss = r.Returned.Sub(r.Staked)
	if r.Staked.IsPositive() {
		r.ROI = r.ProfitLoss.Div(r.Staked).Mul(decimal.NewFromInt(100))
	}
	return r
}

// AddAccumulators settles accumulators into the report.
func (r *Report) AddAccumulators(accs []accumulator.Accumulator, scores Scores) {
	if r.Accumulators == nil {
		r.Accumulators = make(map[AccumulatorStatus]int)
	}
	for _, acc := range accs {
		r.Accumulators[SettleAccumulator(acc, scores)]++
	}
}

// HistoryResults converts non-void settlements into history results.
func (r *Report) HistoryResults() []history.Result {
	out := make([]history.Result, 0, len(r.Settlements))
	for _, st := range r.Settlements {
		if st.Void {
			continue
		}
		out = append(out, history.Result{Sport: st.Sport, Market: st.Market, Hit: st.Hit})
	}
	return out
}
