package sink

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/puntaiq/core"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	f, err := NewFileStore(dir)
	require.NoError(t, err)
	f.SetClock(func() time.Time { return batchTime })

	ctx := context.Background()
	preds := batch(t, core.SportBasketball, 3)
	require.NoError(t, f.StorePredictions(ctx, core.SportBasketball, preds))

	assert.FileExists(t, filepath.Join(dir, "predictions_basketball.json"))
	assert.NoFileExists(t, filepath.Join(dir, "predictions_basketball.json.tmp"))

	loaded, err := f.LoadPredictions(core.SportBasketball)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, preds[2].ID, loaded[2].ID)

	buckets := catalog(t)
	require.NoError(t, f.StoreAccumulators(ctx, buckets))
	accs, err := f.LoadAccumulators()
	require.NoError(t, err)
	assert.Len(t, accs, len(buckets))

	_, err = f.LoadPredictions(core.SportFootball)
	assert.Error(t, err)
}

func TestFileStoreNotifyAppends(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFileStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, f.Notify(ctx, []string{"u1"}, "a", "", nil))
	require.NoError(t, f.Notify(ctx, []string{"u2"}, "b", "", nil))

	fh, err := os.Open(filepath.Join(dir, "notifications.jsonl"))
	require.NoError(t, err)
	defer fh.Close()

	lines := 0
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestNewFileStoreRequiresDir(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}
