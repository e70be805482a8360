// Package api exposes the pipeline over HTTP.
package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/phenomenon0/puntaiq/core"
	"github.com/phenomenon0/puntaiq/pkg/accumulator"
	"github.com/phenomenon0/puntaiq/pkg/pipeline"
	"github.com/phenomenon0/puntaiq/pkg/predict"
	"github.com/phenomenon0/puntaiq/pkg/sink"
)

// Server serves predictions, accumulators and runner status.
type Server struct {
	runner   *pipeline.Runner
	hub      *sink.Hub
	registry *prometheus.Registry
	log      logrus.FieldLogger
}

// Options are the optional collaborators of a Server.
type Options struct {
	Hub      *sink.Hub            // Enables /ws
	Registry *prometheus.Registry // Enables /metrics
	Log      logrus.FieldLogger
}

// GenerateRequest is the body of POST /predictions/generate.
type GenerateRequest struct {
	Sports     []string `json:"sports"`
	DaysAhead  int      `json:"daysAhead"`
	SkipStore  bool     `json:"skipStore"`
	SkipNotify bool     `json:"skipNotify"`
}

// GenerateResponse summarises a batch run on demand.
type GenerateResponse struct {
	BatchID      string                 `json:"batchId"`
	Predictions  map[core.Sport]int     `json:"predictions"`
	Accumulators int                    `json:"accumulators"`
	Stages       []pipeline.StageResult `json:"stages"`
}

// NewServer creates a server.
func NewServer(runner *pipeline.Runner, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		runner:   runner,
		hub:      opts.Hub,
		registry: opts.Registry,
		log:      log.WithField("component", "api"),
	}
}

// Router builds the gin engine.
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", s.handleStatus)

	preds := r.Group("/predictions")
	preds.GET("", s.handlePredictions)
	preds.POST("/generate", s.handleGenerate)

	r.GET("/accumulators", s.handleAccumulators)

	if s.registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}
	if s.hub != nil {
		r.GET("/ws", gin.WrapF(s.hub.ServeWS))
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
		}).Debug("request")
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.runner.GetStatus())
}

// handlePredictions serves the latest batch, optionally filtered by sport
// and premium flag.
func (s *Server) handlePredictions(c *gin.Context) {
	var sports []core.Sport
	if v := c.Query("sport"); v != "" {
		sport, err := core.ParseSport(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sports = []core.Sport{sport}
	}
	premiumOnly := false
	if v := c.Query("premium"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "premium must be a boolean"})
			return
		}
		premiumOnly = b
	}

	out := []predict.Prediction{}
	b, ok := s.runner.LastBatch()
	if ok {
		pool := b.Pool()
		if sports != nil {
			pool = b.Predictions[sports[0]]
		}
		for _, p := range pool {
			if premiumOnly && !p.IsPremium {
				continue
			}
			out = append(out, p)
		}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "predictions": out})
}

// handleAccumulators serves the latest catalog, or one bucket of it.
func (s *Server) handleAccumulators(c *gin.Context) {
	buckets := map[string][]accumulator.Accumulator{}
	if b, ok := s.runner.LastBatch(); ok && b.Catalog != nil {
		buckets = b.Catalog.Buckets()
	}

	if name := c.Query("bucket"); name != "" {
		accs, ok := buckets[name]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown bucket " + name, "buckets": bucketNames(buckets)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"bucket": name, "accumulators": accs})
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": bucketNames(buckets), "accumulators": buckets})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req GenerateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	opts := pipeline.RunOptions{
		DaysAhead:  req.DaysAhead,
		SkipStore:  req.SkipStore,
		SkipNotify: req.SkipNotify,
	}
	for _, v := range req.Sports {
		sport, err := core.ParseSport(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		opts.Sports = append(opts.Sports, sport)
	}
	if opts.DaysAhead < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "daysAhead must not be negative"})
		return
	}

	b, err := s.runner.Run(c.Request.Context(), opts)
	if err != nil {
		s.log.WithError(err).Warn("on-demand batch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	resp := GenerateResponse{
		BatchID:     b.ID,
		Predictions: make(map[core.Sport]int, len(b.Predictions)),
		Stages:      b.Stages,
	}
	for sport, preds := range b.Predictions {
		resp.Predictions[sport] = len(preds)
	}
	if b.Catalog != nil {
		resp.Accumulators = b.Catalog.Count()
	}
	c.JSON(http.StatusOK, resp)
}

func bucketNames(buckets map[string][]accumulator.Accumulator) []string {
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
