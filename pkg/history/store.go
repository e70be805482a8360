// Package history tracks how often each prediction type has been right.
// Settled results are kept in Badger; the engine reads an immutable
// snapshot taken before each batch.
package history

import (
	"encoding/json"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/phenomenon0/puntaiq/core"
)

const keyPrefix = "hist/"

// Tally counts settled predictions of one sport and market.
type Tally struct {
	Sport  core.Sport  `json:"sport"`
	Market core.Market `json:"market"`
	Hits   int         `json:"hits"`
	Total  int         `json:"total"`
}

// Rate returns hits/total, or zero with no samples.
func (t Tally) Rate() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Hits) / float64(t.Total)
}

// Result is one settled prediction.
type Result struct {
	Sport  core.Sport
	Market core.Market
	Hit    bool
}

// Options configures the store.
type Options struct {
	Path     string
	InMemory bool
}

// Store persists tallies in Badger.
type Store struct {
	db *badger.DB
}

// Open opens or creates the store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("history: path is required")
	}

	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "history: open badger")
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record adds settled results in one transaction.
func (s *Store) Record(results ...Result) error {
	if len(results) == 0 {
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		pending := make(map[string]*Tally)
		for _, r := range results {
			k := key(r.Sport, r.Market)
			t, ok := pending[k]
			if !ok {
				loaded, err := get(txn, k)
				if err != nil {
					return err
				}
				loaded.Sport, loaded.Market = r.Sport, r.Market
				t = &loaded
				pending[k] = t
			}
			t.Total++
			if r.Hit {
				t.Hits++
			}
		}

		for k, t := range pending {
			data, err := json.Marshal(t)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(k), data); err != nil {
				return errors.Wrapf(err, "history: set %s", k)
			}
		}
		return nil
	})
}

// Tallies returns every tally sorted by sport then market.
func (s *Store) Tallies() ([]Tally, error) {
	var out []Tally
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var t Tally
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			}); err != nil {
				return errors.Wrapf(err, "history: decode %s", it.Item().Key())
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Sport != out[j].Sport {
			return out[i].Sport < out[j].Sport
		}
		return out[i].Market < out[j].Market
	})
	return out, nil
}

// Snapshot returns an immutable view of the current tallies.
func (s *Store) Snapshot() (*Rates, error) {
	tallies, err := s.Tallies()
	if err != nil {
		return nil, err
	}
	return NewRates(tallies...), nil
}

func get(txn *badger.Txn, k string) (Tally, error) {
	var t Tally
	item, err := txn.Get([]byte(k))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return t, nil
	}
	if err != nil {
		return t, errors.Wrapf(err, "history: get %s", k)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &t)
	})
	return t, err
}

func key(sport core.Sport, market core.Market) string {
	return keyPrefix + string(sport) + "/" + string(market)
}

// Rates is a read-only set of tallies. It implements the engine's history
// provider and is safe for concurrent use.
type Rates struct {
	tallies map[string]Tally
}

// NewRates builds a snapshot from tallies.
func NewRates(tallies ...Tally) *Rates {
	r := &Rates{tallies: make(map[string]Tally, len(tallies))}
	for _, t := range tallies {
		r.tallies[key(t.Sport, t.Market)] = t
	}
	return r
}

// SuccessRate returns the hit rate and sample count of a sport and market.
func (r *Rates) SuccessRate(sport core.Sport, market core.Market) (float64, int) {
	if r == nil {
		return 0, 0
	}
	t, ok := r.tallies[key(sport, market)]
	if !ok {
		return 0, 0
	}
	return t.Rate(), t.Total
}
