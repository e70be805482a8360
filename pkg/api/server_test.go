package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/fixtures"
	"github.com/phenomenon0/puntaiq/pkg/metrics"
	"github.com/phenomenon0/puntaiq/pkg/pipeline"
	"github.com/phenomenon0/puntaiq/pkg/predict"
)

var batchTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, run bool) (*pipeline.Runner, http.Handler, *metrics.EngineMetrics) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	m := metrics.NewEngineMetrics()
	runner, err := pipeline.NewRunner(nil, pipeline.Deps{
		Source:  fixtures.NewSynthetic(42, batchTime),
		Metrics: m,
		Clock:   func() time.Time { return batchTime },
		Log:     log,
	})
	require.NoError(t, err)
	if run {
		_, err := runner.RunOnce(context.Background())
		require.NoError(t, err)
	}
	return runner, NewServer(runner, Options{Registry: m.Registry(), Log: log}).Router(), m
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type predictionsBody struct {
	Count       int                  `json:"count"`
	Predictions []predict.Prediction `json:"predictions"`
}

func TestHealth(t *testing.T) {
	_, h, _ := newTestServer(t, false)
	w := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestPredictions(t *testing.T) {
	_, h, _ := newTestServer(t, true)

	tests := []struct {
		name   string
		target string
		code   int
		check  func(t *testing.T, body predictionsBody)
	}{
		{
			name:   "all sports",
			target: "/predictions",
			code:   http.StatusOK,
			check: func(t *testing.T, body predictionsBody) {
				assert.Equal(t, 18, body.Count)
			},
		},
		{
			name:   "one sport",
			target: "/predictions?sport=Basketball",
			code:   http.StatusOK,
			check: func(t *testing.T, body predictionsBody) {
				require.Len(t, body.Predictions, 8)
				for _, p := range body.Predictions {
					assert.Equal(t, core.SportBasketball, p.Sport)
				}
			},
		},
		{
			name:   "premium only",
			target: "/predictions?premium=true",
			code:   http.StatusOK,
			check: func(t *testing.T, body predictionsBody) {
				for _, p := range body.Predictions {
					assert.True(t, p.IsPremium)
				}
			},
		},
		{name: "unknown sport", target: "/predictions?sport=curling", code: http.StatusBadRequest},
		{name: "bad premium flag", target: "/predictions?premium=maybe", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodGet, tt.target, "")
			require.Equal(t, tt.code, w.Code)
			if tt.check != nil {
				var body predictionsBody
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				tt.check(t, body)
			}
		})
	}
}

func TestPredictionsBeforeFirstBatch(t *testing.T) {
	_, h, _ := newTestServer(t, false)
	w := do(t, h, http.MethodGet, "/predictions", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":0,"predictions":[]}`, w.Body.String())
}

func TestAccumulators(t *testing.T) {
	runner, h, _ := newTestServer(t, true)
	b, ok := runner.LastBatch()
	require.True(t, ok)

	w := do(t, h, http.MethodGet, "/accumulators", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all struct {
		Buckets []string `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all.Buckets, len(b.Catalog.Buckets()))
	assert.IsIncreasing(t, all.Buckets)

	w = do(t, h, http.MethodGet, "/accumulators?bucket=nonsense", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerate(t *testing.T) {
	runner, h, _ := newTestServer(t, false)

	w := do(t, h, http.MethodPost, "/predictions/generate", `{"sports":["football"],"skipNotify":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, map[core.Sport]int{core.SportFootball: 10}, resp.Predictions)
	assert.Len(t, resp.Stages, 4)

	b, ok := runner.LastBatch()
	require.True(t, ok)
	assert.Equal(t, b.ID, resp.BatchID)
}

func TestGenerateWithoutBody(t *testing.T) {
	_, h, _ := newTestServer(t, false)
	w := do(t, h, http.MethodPost, "/predictions/generate", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp GenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Predictions, 2)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	_, h, _ := newTestServer(t, false)
	for _, body := range []string{`{"sports":["curling"]}`, `{"daysAhead":-1}`, `{`} {
		w := do(t, h, http.MethodPost, "/predictions/generate", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestStatusAndMetrics(t *testing.T) {
	_, h, _ := newTestServer(t, true)

	w := do(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status pipeline.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 1, status.Runs)

	w = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "puntaiq_predictions_total")
}
