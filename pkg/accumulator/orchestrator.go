package accumulator

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/predict"
)

// Profile is one combination of the accumulator matrix.
type Profile struct {
	Name     string // Named bucket, empty for matrix entries
	Category string // Size bucket: small, medium, large, mega
	Request
}

// SizeCategory groups accumulator sizes that share a confidence floor.
type SizeCategory struct {
	Name          string
	Sizes         []int
	MinConfidence float64
}

// DefaultCategories returns the size categories of the default matrix.
func DefaultCategories() []SizeCategory {
	return []SizeCategory{
		{Name: "small", Sizes: []int{2, 3}, MinConfidence: 75},
		{Name: "medium", Sizes: []int{4, 5}, MinConfidence: 70},
		{Name: "large", Sizes: []int{6, 8}, MinConfidence: 65},
		{Name: "mega", Sizes: []int{10}, MinConfidence: 60},
	}
}

// DefaultNamed returns the classic named accumulator profiles.
func DefaultNamed() []Profile {
	return []Profile{
		{Name: "double", Category: "small", Request: Request{Size: 2, MinConfidence: 75}},
		{Name: "treble", Category: "small", Request: Request{Size: 3, MinConfidence: 75}},
		{Name: "four_fold", Category: "medium", Request: Request{Size: 4, MinConfidence: 70}},
		{Name: "five_fold", Category: "medium", Request: Request{Size: 5, MinConfidence: 70}},
		{Name: "premium", Category: "small", Request: Request{Size: 3, MinConfidence: 85}},
		{Name: "high_odds", Category: "medium", Request: Request{Size: 4, MinConfidence: 65}},
	}
}

// Matrix expands categories across every tier, followed by the named
// profiles, in a fixed order.
func Matrix(categories []SizeCategory, named []Profile) []Profile {
	var out []Profile
	for _, c := range categories {
		for _, size := range c.Sizes {
			for _, tier := range core.Tiers {
				out = append(out, Profile{
					Category: c.Name,
					Request:  Request{Size: size, MinConfidence: c.MinConfidence, Tier: tier},
				})
			}
		}
	}
	return append(out, named...)
}

// OrchestratorConfig configures the Orchestrator.
type OrchestratorConfig struct {
	Workers    int // Default: 4
	Categories []SizeCategory
	Named      []Profile
	Builder    *BuilderConfig
}

// DefaultOrchestratorConfig returns default configuration.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		Workers:    4,
		Categories: DefaultCategories(),
		Named:      DefaultNamed(),
		Builder:    DefaultBuilderConfig(),
	}
}

// Catalog holds the accumulators of one batch grouped into buckets.
type Catalog struct {
	ByTier map[string][]Accumulator `json:"by_tier"` // "tier_1" ...
	BySize map[string][]Accumulator `json:"by_size"` // "small" ...
	Named  map[string][]Accumulator `json:"named"`   // "double" ...
}

func newCatalog() *Catalog {
	return &Catalog{
		ByTier: make(map[string][]Accumulator),
		BySize: make(map[string][]Accumulator),
		Named:  make(map[string][]Accumulator),
	}
}

// Buckets flattens the catalog into one map keyed by bucket name. Size
// buckets are prefixed with "size_".
func (c *Catalog) Buckets() map[string][]Accumulator {
	out := make(map[string][]Accumulator, len(c.ByTier)+len(c.BySize)+len(c.Named))
	for k, v := range c.ByTier {
		out[k] = v
	}
	for k, v := range c.BySize {
		out["size_"+k] = v
	}
	for k, v := range c.Named {
		out[k] = v
	}
	return out
}

// Count returns the number of distinct accumulators in the catalog.
func (c *Catalog) Count() int {
	seen := make(map[string]bool)
	for _, bucket := range []map[string][]Accumulator{c.ByTier, c.BySize, c.Named} {
		for _, accs := range bucket {
			for _, a := range accs {
				seen[a.ID] = true
			}
		}
	}
	return len(seen)
}

// Orchestrator runs the Builder across the accumulator matrix.
type Orchestrator struct {
	cfg      OrchestratorConfig
	builder  *Builder
	profiles []Profile
	log      logrus.FieldLogger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(config *OrchestratorConfig, log logrus.FieldLogger) *Orchestrator {
	if config == nil {
		config = DefaultOrchestratorConfig()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	defaults := DefaultOrchestratorConfig()
	cfg := *config
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.Categories == nil {
		cfg.Categories = defaults.Categories
	}
	if cfg.Named == nil {
		cfg.Named = defaults.Named
	}

	return &Orchestrator{
		cfg:      cfg,
		builder:  NewBuilder(cfg.Builder),
		profiles: Matrix(cfg.Categories, cfg.Named),
		log:      log.WithField("component", "accumulators"),
	}
}

// Profiles returns the combinations the orchestrator runs.
func (o *Orchestrator) Profiles() []Profile {
	return append([]Profile(nil), o.profiles...)
}

// Run builds every profile against the pool. A failing or empty
// combination contributes nothing; the rest of the matrix still runs.
func (o *Orchestrator) Run(pool []predict.Prediction, createdAt time.Time) *Catalog {
	results := make([]*Accumulator, len(o.profiles))

	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)
	for i, profile := range o.profiles {
		g.Go(func() error {
			acc, err := o.build(pool, profile, createdAt)
			if err != nil {
				o.log.WithError(err).WithField("profile", profile.label()).Warn("accumulator combination failed")
				return nil
			}
			results[i] = acc
			return nil
		})
	}
	_ = g.Wait()

	catalog := newCatalog()
	for i, acc := range results {
		if acc == nil {
			continue
		}
		p := o.profiles[i]
		addUnique(catalog.ByTier, acc.Tier.Key(), *acc)
		addUnique(catalog.BySize, p.Category, *acc)
		if p.Name != "" {
			addUnique(catalog.Named, p.Name, *acc)
		}
	}

	o.log.WithFields(logrus.Fields{
		"pool":         len(pool),
		"combinations": len(o.profiles),
		"built":        catalog.Count(),
	}).Info("accumulators generated")
	return catalog
}

func (o *Orchestrator) build(pool []predict.Prediction, p Profile, createdAt time.Time) (acc *Accumulator, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.builder.Build(pool, p.Request, createdAt)
}

func (p Profile) label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Category + " " + p.Request.String()
}

func addUnique(bucket map[string][]Accumulator, key string, acc Accumulator) {
	for _, existing := range bucket[key] {
		if existing.ID == acc.ID {
			return
		}
	}
	bucket[key] = append(bucket[key], acc)
}
