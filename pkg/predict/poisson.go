package predict

import (
	"fmt"
	"math"
	"sort"
)

// ScoreProbability is the probability of one final score.
type ScoreProbability struct {
	Score       string  `json:"score"`
	HomeGoals   int     `json:"home_goals"`
	AwayGoals   int     `json:"away_goals"`
	Probability float64 `json:"probability"`
}

// poissonPMF returns P(X=k) for X ~ Poisson(lambda).
func poissonPMF(k int, lambda float64) float64 {
	if lambda <= 0 {
		if k == 0 {
			return 1
		}
		return 0
	}
	// exp(k*ln(lambda) - lambda - ln(k!))
	lg, _ := math.Lgamma(float64(k + 1))
	return math.Exp(float64(k)*math.Log(lambda) - lambda - lg)
}

// scoreMatrix builds the independent Poisson joint table over
// [0,maxGoals] x [0,maxGoals]; m[h][a] = P(home=h) * P(away=a).
func scoreMatrix(homeXG, awayXG float64, maxGoals int) [][]float64 {
	home := make([]float64, maxGoals+1)
	away := make([]float64, maxGoals+1)
	for g := 0; g <= maxGoals; g++ {
		home[g] = poissonPMF(g, homeXG)
		away[g] = poissonPMF(g, awayXG)
	}

	m := make([][]float64, maxGoals+1)
	for h := range m {
		m[h] = make([]float64, maxGoals+1)
		for a := range m[h] {
			m[h][a] = home[h] * away[a]
		}
	}
	return m
}

// mostLikelyScore returns the cell with maximum probability. Cells are
// visited by total goals then home goals and only a strictly greater value
// replaces the incumbent, so ties resolve to the lowest total and then the
// lowest home score.
func mostLikelyScore(m [][]float64) ScoreProbability {
	maxGoals := len(m) - 1
	best := ScoreProbability{Probability: -1}

	for total := 0; total <= 2*maxGoals; total++ {
		for h := max(0, total-maxGoals); h <= min(total, maxGoals); h++ {
			a := total - h
			if m[h][a] > best.Probability {
				best = scoreCell(h, a, m[h][a])
			}
		}
	}
	return best
}

// topScores returns the n most probable cells with the same tie-break as
// mostLikelyScore.
func topScores(m [][]float64, n int) []ScoreProbability {
	cells := make([]ScoreProbability, 0, len(m)*len(m))
	for h := range m {
		for a := range m[h] {
			cells = append(cells, scoreCell(h, a, m[h][a]))
		}
	}

	sort.SliceStable(cells, func(i, j int) bool {
		if cells[i].Probability != cells[j].Probability {
			return cells[i].Probability > cells[j].Probability
		}
		ti, tj := cells[i].HomeGoals+cells[i].AwayGoals, cells[j].HomeGoals+cells[j].AwayGoals
		if ti != tj {
			return ti < tj
		}
		return cells[i].HomeGoals < cells[j].HomeGoals
	})

	if n > len(cells) {
		n = len(cells)
	}
	return cells[:n]
}

func scoreCell(h, a int, p float64) ScoreProbability {
	return ScoreProbability{
		Score:       fmt.Sprintf("%d-%d", h, a),
		HomeGoals:   h,
		AwayGoals:   a,
		Probability: p,
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
