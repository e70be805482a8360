package predict

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/phenomenon0/puntaiq/core"
)

// idNamespace scopes prediction ids.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("puntaiq/prediction"))

// PredictionID derives the stable id of a match's prediction.
func PredictionID(sport core.Sport, matchID string) string {
	return uuid.NewSHA1(idNamespace, []byte(string(sport)+":"+matchID)).String()
}

// Prediction is the engine output for one match. It is never mutated after
// the engine returns it.
type Prediction struct {
	ID               string               `json:"id"`
	MatchID          string               `json:"matchId"`
	Sport            core.Sport           `json:"sport"`
	CreatedAt        time.Time            `json:"createdAt"`
	HomeTeam         string               `json:"homeTeam"`
	AwayTeam         string               `json:"awayTeam"`
	StartTime        time.Time            `json:"startTime"`
	League           string               `json:"league"`
	PredictedOutcome string               `json:"predictedOutcome"`
	Confidence       float64              `json:"confidence"`
	ConfidenceLevel  core.ConfidenceLevel `json:"confidenceLevel"`
	IsPremium        bool                 `json:"isPremium"`
	ValueBet         *ValueBet            `json:"valueBet,omitempty"`
	Predictions      Markets              `json:"predictions"`

	Model    string `json:"model"`
	Degraded bool   `json:"degraded,omitempty"`

	FixtureKey string `json:"-"`
}

// Primary returns the primary outcome market, if present.
func (p *Prediction) Primary() (OutcomeResult, bool) {
	switch m := p.Predictions[core.PrimaryMarket(p.Sport)].(type) {
	case Outcome1X2:
		return m.OutcomeResult, true
	case Winner:
		return m.OutcomeResult, true
	default:
		return OutcomeResult{}, false
	}
}

// PickOdds returns the bookmaker odds of the predicted outcome.
func (p *Prediction) PickOdds() float64 {
	r, ok := p.Primary()
	if !ok {
		return 0
	}
	return r.PickOdds()
}

// Tier returns the value tier of the predicted outcome. Predictions whose
// value bet points elsewhere, or that carry none, are Tier 10.
func (p *Prediction) Tier() core.Tier {
	if p.ValueBet != nil && p.ValueBet.Outcome == p.PredictedOutcome {
		return p.ValueBet.Tier
	}
	return core.Tier10
}

// Markets holds the per-market sub-predictions of a prediction.
type Markets map[core.Market]MarketPrediction

// Names returns the market names in sorted order.
func (m Markets) Names() []core.Market {
	names := make([]core.Market, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// UnmarshalJSON decodes each market into its concrete type by key.
func (m *Markets) UnmarshalJSON(data []byte) error {
	var raw map[core.Market]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Markets, len(raw))
	for name, body := range raw {
		var (
			mp  MarketPrediction
			err error
		)
		switch name {
		case core.Market1X2:
			var v Outcome1X2
			err = json.Unmarshal(body, &v)
			mp = v
		case core.MarketWinner:
			var v Winner
			err = json.Unmarshal(body, &v)
			mp = v
		case core.MarketBTTS:
			var v BTTS
			err = json.Unmarshal(body, &v)
			mp = v
		case core.MarketOverUnder:
			var v OverUnder
			err = json.Unmarshal(body, &v)
			mp = v
		case core.MarketCorrectScore:
			var v CorrectScore
			err = json.Unmarshal(body, &v)
			mp = v
		case core.MarketTotalPoints:
			var v TotalPoints
			err = json.Unmarshal(body, &v)
			mp = v
		case core.MarketSpread:
			var v Spread
			err = json.Unmarshal(body, &v)
			mp = v
		default:
			return fmt.Errorf("unknown market %q", name)
		}
		if err != nil {
			return fmt.Errorf("market %s: %w", name, err)
		}
		out[name] = mp
	}
	*m = out
	return nil
}
