package sink

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/puntaiq/core"
)

func openSQLite(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQL(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "puntaiq.db"))
	require.NoError(t, err)
	s.SetClock(func() time.Time { return batchTime })
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLStorePredictionsUpsert(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	preds := batch(t, core.SportFootball, 4)

	require.NoError(t, s.StorePredictions(ctx, core.SportFootball, preds))
	require.NoError(t, s.StorePredictions(ctx, core.SportFootball, preds[:2]))

	got, err := s.Predictions(ctx, core.SportFootball)
	require.NoError(t, err)
	require.Len(t, got, 4)

	ids := make(map[string]bool)
	for _, p := range got {
		ids[p.ID] = true
		assert.NotEmpty(t, p.Predictions)
	}
	for _, p := range preds {
		assert.True(t, ids[p.ID], p.MatchID)
	}

	none, err := s.Predictions(ctx, core.SportBasketball)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLStoreAccumulatorsReplace(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	buckets := catalog(t)
	require.NotEmpty(t, buckets)

	require.NoError(t, s.StoreAccumulators(ctx, buckets))
	got, err := s.Accumulators(ctx)
	require.NoError(t, err)
	require.Len(t, got, len(buckets))
	for name, accs := range buckets {
		require.Len(t, got[name], len(accs), name)
		for i := range accs {
			assert.Equal(t, accs[i].ID, got[name][i].ID)
		}
	}

	require.NoError(t, s.StoreAccumulators(ctx, nil))
	got, err = s.Accumulators(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLStoreNotify(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Notify(ctx, []string{"u1", "u2"}, "New Predictions Available", "football", map[string]string{"sports": "football"}))
	require.NoError(t, s.Notify(ctx, nil, "t", "b", nil))

	n, err := s.NotificationCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOpenSQLErrors(t *testing.T) {
	_, err := OpenSQL(context.Background(), DriverSQLite, "")
	assert.Error(t, err)

	_, err = OpenSQL(context.Background(), "mysql", "x")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	lite := &SQLStore{driver: DriverSQLite}
	q := `INSERT INTO t (a, b) VALUES (?, ?)`

	assert.Equal(t, `INSERT INTO t (a, b) VALUES ($1, $2)`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}
