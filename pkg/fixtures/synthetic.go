package fixtures

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/phenomenon0/puntaiq/core"
)

var footballTeams = []string{
	"Arsenal", "Aston Villa", "Bournemouth", "Brentford", "Brighton",
	"Chelsea", "Crystal Palace", "Everton", "Fulham", "Ipswich Town",
	"Leicester City", "Liverpool", "Manchester City", "Manchester United", "Newcastle United",
	"Nottingham Forest", "Southampton", "Tottenham Hotspur", "West Ham United", "Wolverhampton",
}

var basketballTeams = []string{
	"Boston Celtics", "Milwaukee Bucks", "Philadelphia 76ers", "Cleveland Cavaliers",
	"New York Knicks", "Brooklyn Nets", "Miami Heat", "Atlanta Hawks",
	"Denver Nuggets", "Memphis Grizzlies", "Sacramento Kings", "Phoenix Suns",
	"Los Angeles Clippers", "Golden State Warriors", "Los Angeles Lakers", "Minnesota Timberwolves",
}

// Synthetic generates example fixtures from an explicit seed. The same seed,
// start time and sport always yield the same matches. It is meant for demos
// and tests, never for production predictions.
type Synthetic struct {
	Seed     int64
	Start    time.Time
	PerSport int // Matches per Fetch; defaults to half the team pool
}

// NewSynthetic creates a seeded generator.
func NewSynthetic(seed int64, start time.Time) *Synthetic {
	return &Synthetic{Seed: seed, Start: start}
}

// Fetch implements Source.
func (g *Synthetic) Fetch(ctx context.Context, sport core.Sport, daysAhead int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !sport.Valid() {
		return nil, fmt.Errorf("synthetic: unsupported sport %q", sport)
	}
	return g.Generate(sport, daysAhead), nil
}

// Generate returns the deterministic example matches for a sport.
func (g *Synthetic) Generate(sport core.Sport, daysAhead int) []Match {
	r := rand.New(rand.NewSource(g.Seed ^ sportSalt(sport)))
	if daysAhead <= 0 {
		daysAhead = 1
	}

	pool := footballTeams
	league := "Premier League"
	if sport == core.SportBasketball {
		pool = basketballTeams
		league = "NBA"
	}

	n := g.PerSport
	if n <= 0 || n > len(pool)/2 {
		n = len(pool) / 2
	}

	perm := r.Perm(len(pool))
	day := time.Date(g.Start.Year(), g.Start.Month(), g.Start.Day(), 0, 0, 0, 0, time.UTC)

	matches := make([]Match, 0, n)
	for i := 0; i < n; i++ {
		home := g.team(r, sport, pool[perm[2*i]], len(pool))
		away := g.team(r, sport, pool[perm[2*i+1]], len(pool))

		kickoff := day.Add(time.Duration(1+i%daysAhead) * 24 * time.Hour).Add(15 * time.Hour)
		if sport == core.SportBasketball {
			kickoff = kickoff.Add(4 * time.Hour)
		}

		odds := syntheticOdds(sport, home.Ranking, away.Ranking)
		matches = append(matches, Match{
			ID:        fmt.Sprintf("syn-%s-%d-%03d", sport, g.Seed, i),
			Sport:     sport,
			League:    league,
			StartTime: kickoff,
			Home:      home,
			Away:      away,
			Odds:      &odds,
		})
	}
	return matches
}

func (g *Synthetic) team(r *rand.Rand, sport core.Sport, name string, poolSize int) Team {
	t := Team{Name: name, Ranking: 1 + r.Intn(poolSize)}

	if sport == core.SportBasketball {
		form := make([]byte, 10)
		for i := range form {
			form[i] = "WL"[r.Intn(2)]
		}
		t.Form = string(form)
		t.Offense = float64(95 + r.Intn(26))
		t.Defense = float64(95 + r.Intn(26))
		return t
	}

	form := make([]byte, 5)
	for i := range form {
		form[i] = "WDL"[r.Intn(3)]
	}
	t.Form = string(form)

	// Roughly half the teams carry scoring averages.
	if r.Intn(2) == 0 {
		quality := float64(poolSize+1-t.Ranking) / float64(poolSize)
		gf := round2(0.8 + 1.4*quality + (r.Float64()-0.5)*0.3)
		ga := round2(2.0 - 1.2*quality + (r.Float64()-0.5)*0.3)
		t.GoalsFor, t.GoalsAgainst = &gf, &ga
	}
	return t
}

// syntheticOdds prices a fixture from the rank gap with a 5% overround.
func syntheticOdds(sport core.Sport, homeRank, awayRank int) Odds {
	if sport == core.SportBasketball {
		home := clamp(0.55+float64(awayRank-homeRank)/32, 0.15, 0.85)
		away := 1.05 - home
		return Odds{Home: round2(1 / home), Away: round2(1 / away)}
	}
	home := clamp(0.45+float64(awayRank-homeRank)/40, 0.10, 0.75)
	draw := 0.27
	away := math.Max(1.05-home-draw, 0.05)
	return Odds{Home: round2(1 / home), Draw: round2(1 / draw), Away: round2(1 / away)}
}

func sportSalt(sport core.Sport) int64 {
	h := fnv.New64a()
	h.Write([]byte(sport))
	return int64(h.Sum64() >> 1)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
