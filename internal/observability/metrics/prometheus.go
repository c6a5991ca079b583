package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/interfaces"
)

// PrometheusMetrics collects training and scoring metrics and optionally
// serves them over HTTP
type PrometheusMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server
	listener net.Listener
	config   *PrometheusConfig
	mu       sync.RWMutex
	started  time.Time

	// Training metrics
	epochsTotal        prometheus.Counter
	batchesTotal       prometheus.Counter
	trainingLoss       prometheus.Gauge
	batchLoss          prometheus.Histogram
	epochDuration      prometheus.Histogram
	windowsTotal       *prometheus.CounterVec
	reconstructionLoss prometheus.Histogram

	// Pipeline metrics
	stageDuration   *prometheus.HistogramVec
	operationsTotal *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Addr      string `json:"addr" mapstructure:"addr"`
	Path      string `json:"path" mapstructure:"path"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
	Subsystem string `json:"subsystem" mapstructure:"subsystem"`
}

var (
	_ interfaces.TrainingObserver = (*PrometheusMetrics)(nil)
	_ interfaces.BatchObserver    = (*PrometheusMetrics)(nil)
)

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrometheusMetrics, error) {
	if config == nil {
		config = getDefaultPrometheusConfig()
	}
	if config.Path == "" {
		config.Path = constants.DefaultMetricsPath
	}

	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrometheusMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
		started:  time.Now(),
	}

	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return pm, nil
}

// Start serves the metrics and health endpoints until Stop is called
func (pm *PrometheusMetrics) Start(ctx context.Context) error {
	if !pm.config.Enabled || pm.config.Addr == "" {
		pm.logger.Debug("Prometheus metrics server disabled")
		return nil
	}

	listener, err := net.Listen("tcp", pm.config.Addr)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeInternal, errors.CodeInternalError,
			fmt.Sprintf("Failed to listen on %s", pm.config.Addr))
	}

	pm.mu.Lock()
	pm.listener = listener
	pm.server = &http.Server{
		Handler:           pm.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := pm.server
	pm.mu.Unlock()

	pm.logger.WithFields(logrus.Fields{
		"addr": listener.Addr().String(),
		"path": pm.config.Path,
	}).Info("Starting Prometheus metrics server")

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			pm.logger.WithError(err).Error("Prometheus metrics server error")
		}
	}()

	return nil
}

// Stop stops the Prometheus metrics server
func (pm *PrometheusMetrics) Stop(ctx context.Context) error {
	pm.mu.Lock()
	server := pm.server
	pm.server = nil
	pm.mu.Unlock()

	if server == nil {
		return nil
	}

	pm.logger.Debug("Stopping Prometheus metrics server")
	return server.Shutdown(ctx)
}

// Addr returns the address the server listens on, or "" when not started
func (pm *PrometheusMetrics) Addr() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.listener == nil {
		return ""
	}
	return pm.listener.Addr().String()
}

// Router returns the HTTP routes for metrics and health
func (pm *PrometheusMetrics) Router() *mux.Router {
	router := mux.NewRouter()
	router.Handle(pm.config.Path, promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})).Methods(http.MethodGet)
	router.HandleFunc(constants.DefaultHealthPath, pm.handleHealth).Methods(http.MethodGet)
	return router
}

func (pm *PrometheusMetrics) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(pm.started).String(),
	})
}

// EpochCompleted implements interfaces.TrainingObserver
func (pm *PrometheusMetrics) EpochCompleted(stats interfaces.EpochStats) {
	pm.epochsTotal.Inc()
	pm.trainingLoss.Set(stats.MeanLoss)
	pm.epochDuration.Observe(stats.Duration.Seconds())
	pm.windowsTotal.WithLabelValues("train").Add(float64(stats.Windows))
}

// BatchCompleted implements interfaces.BatchObserver
func (pm *PrometheusMetrics) BatchCompleted(epoch, batch int, loss float64) {
	pm.batchesTotal.Inc()
	pm.batchLoss.Observe(loss)
}

// RecordScores records the reconstruction errors of scored windows
func (pm *PrometheusMetrics) RecordScores(scores []float64) {
	for _, s := range scores {
		pm.reconstructionLoss.Observe(s)
	}
	pm.windowsTotal.WithLabelValues("test").Add(float64(len(scores)))
}

// RecordStage records the duration of a pipeline stage
func (pm *PrometheusMetrics) RecordStage(stage string, duration time.Duration) {
	pm.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordOperation counts a storage operation by backend and outcome
func (pm *PrometheusMetrics) RecordOperation(backend, operation, status string) {
	pm.operationsTotal.WithLabelValues(backend, operation, status).Inc()
}

// RecordError counts an error by component and type
func (pm *PrometheusMetrics) RecordError(component, errorType string) {
	pm.errorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordRun counts a completed detector run by command and status
func (pm *PrometheusMetrics) RecordRun(command, status string) {
	pm.runsTotal.WithLabelValues(command, status).Inc()
}

func (pm *PrometheusMetrics) initializeMetrics() {
	namespace := pm.config.Namespace
	subsystem := pm.config.Subsystem

	pm.epochsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "training_epochs_total",
		Help:      "Total number of completed training epochs",
	})

	pm.batchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "training_batches_total",
		Help:      "Total number of optimization steps",
	})

	pm.trainingLoss = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "training_loss",
		Help:      "Mean reconstruction loss of the last completed epoch",
	})

	pm.batchLoss = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "training_batch_loss",
		Help:      "Mean reconstruction loss per batch",
		Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 12),
	})

	pm.epochDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "training_epoch_duration_seconds",
		Help:      "Training epoch duration in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})

	pm.windowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "windows_processed_total",
		Help:      "Total number of windows processed",
	}, []string{"set"})

	pm.reconstructionLoss = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "window_reconstruction_error",
		Help:      "Reconstruction error of scored test windows",
		Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 12),
	})

	pm.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	pm.operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "storage_operations_total",
		Help:      "Total number of storage operations",
	}, []string{"backend", "operation", "status"})

	pm.errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "errors_total",
		Help:      "Total number of errors",
	}, []string{"component", "type"})

	pm.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "runs_total",
		Help:      "Total number of detector runs",
	}, []string{"command", "status"})
}

func (pm *PrometheusMetrics) registerMetrics() error {
	metrics := []prometheus.Collector{
		pm.epochsTotal,
		pm.batchesTotal,
		pm.trainingLoss,
		pm.batchLoss,
		pm.epochDuration,
		pm.windowsTotal,
		pm.reconstructionLoss,
		pm.stageDuration,
		pm.operationsTotal,
		pm.errorsTotal,
		pm.runsTotal,
	}

	for _, metric := range metrics {
		if err := pm.registry.Register(metric); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return nil
}

// GetRegistry returns the Prometheus registry
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// GetConfig returns the configuration
func (pm *PrometheusMetrics) GetConfig() *PrometheusConfig {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.config
}

func getDefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Enabled:   false,
		Path:      constants.DefaultMetricsPath,
		Namespace: constants.DefaultMetricsNamespace,
		Subsystem: "detector",
	}
}
