// Package sink delivers finished batches to storage and notification
// channels. Sinks run after computation; their failures never undo a batch.
package sink

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/accumulator"
	"github.com/phenomenon0/puntaiq/pkg/predict"
)

// Sink receives the output of a batch.
type Sink interface {
	StorePredictions(ctx context.Context, sport core.Sport, preds []predict.Prediction) error
	StoreAccumulators(ctx context.Context, buckets map[string][]accumulator.Accumulator) error
	Notify(ctx context.Context, userIDs []string, title, body string, data map[string]string) error
}

// Nop discards everything.
type Nop struct{}

var _ Sink = Nop{}

func (Nop) StorePredictions(context.Context, core.Sport, []predict.Prediction) error { return nil }

func (Nop) StoreAccumulators(context.Context, map[string][]accumulator.Accumulator) error {
	return nil
}

func (Nop) Notify(context.Context, []string, string, string, map[string]string) error { return nil }

// Multi fans out to several sinks. Every sink is called even when an
// earlier one fails; failures are logged and the first one is returned.
type Multi struct {
	sinks []Sink
	log   logrus.FieldLogger
}

var _ Sink = (*Multi)(nil)

// NewMulti combines sinks. Nil sinks are skipped.
func NewMulti(log logrus.FieldLogger, sinks ...Sink) *Multi {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Multi{log: log.WithField("component", "sink")}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of combined sinks.
func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) StorePredictions(ctx context.Context, sport core.Sport, preds []predict.Prediction) error {
	return m.each("store predictions", func(s Sink) error {
		return s.StorePredictions(ctx, sport, preds)
	})
}

func (m *Multi) StoreAccumulators(ctx context.Context, buckets map[string][]accumulator.Accumulator) error {
	return m.each("store accumulators", func(s Sink) error {
		return s.StoreAccumulators(ctx, buckets)
	})
}

func (m *Multi) Notify(ctx context.Context, userIDs []string, title, body string, data map[string]string) error {
	return m.each("notify", func(s Sink) error {
		return s.Notify(ctx, userIDs, title, body, data)
	})
}

func (m *Multi) each(op string, fn func(Sink) error) error {
	var first error
	for i, s := range m.sinks {
		if err := fn(s); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{"op": op, "sink": i}).Warn("sink failed")
			if first == nil {
				first = errors.Wrapf(err, "%s", op)
			}
		}
	}
	return first
}

// bucketNames returns the keys of a bucket map in sorted order.
func bucketNames(buckets map[string][]accumulator.Accumulator) []string {
	names := make([]string, 0, len(buckets))
	for k := range buckets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
