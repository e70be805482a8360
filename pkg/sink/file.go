package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/accumulator"
	"github.com/phenomenon0/puntaiq/pkg/predict"
)

// FileStore writes the latest batch as JSON documents under a directory:
// predictions_<sport>.json, accumulators.json and notifications.jsonl.
type FileStore struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

var _ Sink = (*FileStore)(nil)

type predictionsDoc struct {
	Sport     core.Sport           `json:"sport"`
	UpdatedAt time.Time            `json:"updatedAt"`
	Count     int                  `json:"count"`
	Matches   []predict.Prediction `json:"matches"`
}

type accumulatorsDoc struct {
	UpdatedAt    time.Time                            `json:"updatedAt"`
	Accumulators map[string][]accumulator.Accumulator `json:"accumulators"`
}

type notificationDoc struct {
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	UserIDs []string          `json:"userIds"`
	Data    map[string]string `json:"data,omitempty"`
	SentAt  time.Time         `json:"sentAt"`
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file sink: dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create output dir")
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// SetClock overrides the clock used for document timestamps.
func (f *FileStore) SetClock(now func() time.Time) {
	f.now = now
}

// PredictionsPath returns the file holding a sport's predictions.
func (f *FileStore) PredictionsPath(sport core.Sport) string {
	return filepath.Join(f.dir, "predictions_"+string(sport)+".json")
}

// AccumulatorsPath returns the file holding the accumulator catalog.
func (f *FileStore) AccumulatorsPath() string {
	return filepath.Join(f.dir, "accumulators.json")
}

func (f *FileStore) StorePredictions(_ context.Context, sport core.Sport, preds []predict.Prediction) error {
	if preds == nil {
		preds = []predict.Prediction{}
	}
	return f.write(f.PredictionsPath(sport), predictionsDoc{
		Sport:     sport,
		UpdatedAt: f.now().UTC(),
		Count:     len(preds),
		Matches:   preds,
	})
}

func (f *FileStore) StoreAccumulators(_ context.Context, buckets map[string][]accumulator.Accumulator) error {
	if buckets == nil {
		buckets = map[string][]accumulator.Accumulator{}
	}
	return f.write(f.AccumulatorsPath(), accumulatorsDoc{
		UpdatedAt:    f.now().UTC(),
		Accumulators: buckets,
	})
}

// Notify appends the notification to notifications.jsonl.
func (f *FileStore) Notify(_ context.Context, userIDs []string, title, body string, data map[string]string) error {
	line, err := json.Marshal(notificationDoc{
		Title:   title,
		Body:    body,
		UserIDs: userIDs,
		Data:    data,
		SentAt:  f.now().UTC(),
	})
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(filepath.Join(f.dir, "notifications.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open notifications")
	}
	defer fh.Close()
	_, err = fh.Write(append(line, '\n'))
	return errors.Wrap(err, "append notification")
}

// LoadPredictions reads a sport's stored predictions.
func (f *FileStore) LoadPredictions(sport core.Sport) ([]predict.Prediction, error) {
	var doc predictionsDoc
	if err := readJSON(f.PredictionsPath(sport), &doc); err != nil {
		return nil, err
	}
	return doc.Matches, nil
}

// LoadAccumulators reads the stored catalog.
func (f *FileStore) LoadAccumulators() (map[string][]accumulator.Accumulator, error) {
	var doc accumulatorsDoc
	if err := readJSON(f.AccumulatorsPath(), &doc); err != nil {
		return nil, err
	}
	return doc.Accumulators, nil
}

// write replaces path atomically.
func (f *FileStore) write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", filepath.Base(path))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename %s", tmp)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", filepath.Base(path))
	}
	return errors.Wrapf(json.Unmarshal(data, v), "decode %s", filepath.Base(path))
}
