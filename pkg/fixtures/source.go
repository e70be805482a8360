package fixtures

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/phenomenon0/puntaiq/core"
)

// Source supplies upcoming matches for a sport.
type Source interface {
	// Fetch returns fully materialized matches starting within daysAhead
	// days. daysAhead <= 0 disables the window.
	Fetch(ctx context.Context, sport core.Sport, daysAhead int) ([]Match, error)
}

// FileSource reads matches from a JSON array on disk.
type FileSource struct {
	path string
	now  func() time.Time
}

// NewFileSource creates a file-backed source. now may be nil.
func NewFileSource(path string, now func() time.Time) *FileSource {
	if now == nil {
		now = time.Now
	}
	return &FileSource{path: path, now: now}
}

// Fetch implements Source.
func (s *FileSource) Fetch(ctx context.Context, sport core.Sport, daysAhead int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrapf(err, "read fixtures %s", s.path)
	}

	var all []Match
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, errors.Wrapf(err, "decode fixtures %s", s.path)
	}

	return FilterWindow(all, sport, s.now(), daysAhead), nil
}

// FilterWindow keeps matches of a sport starting in [now, now+daysAhead).
// Matches without a kickoff time are kept. Output is ordered by kickoff
// then id.
func FilterWindow(matches []Match, sport core.Sport, now time.Time, daysAhead int) []Match {
	end := now.Add(time.Duration(daysAhead) * 24 * time.Hour)

	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Sport != sport {
			continue
		}
		if daysAhead > 0 && !m.StartTime.IsZero() {
			if m.StartTime.Before(now) || !m.StartTime.Before(end) {
				continue
			}
		}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
