// Package commands implements the tsanomaly command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jayeshkapadnis/ts-anamoly-detector/cmd/cli/config"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/ml"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/observability/metrics"
	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/storage"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/interfaces"
)

// GlobalOptions are the flags shared by every command.
type GlobalOptions struct {
	ConfigFile  string
	LogLevel    string
	LogFormat   string
	MetricsAddr string

	viper *viper.Viper
}

// NewRootCmd builds the command tree. Each call uses its own viper
// instance, so trees built in tests do not share state.
func NewRootCmd() *cobra.Command {
	opts := &GlobalOptions{viper: viper.New()}

	rootCmd := &cobra.Command{
		Use:   constants.AppName,
		Short: "Time series anomaly detection with an LSTM autoencoder",
		Long: `Train an LSTM autoencoder on windows of a delimited time series and rank
held-out windows by reconstruction error. The lowest-scoring windows are the
most normal, the highest-scoring the most anomalous.`,
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", "", fmt.Sprintf("config file (default is %s)", config.GetDefaultConfigPath()))
	flags.StringVar(&opts.LogLevel, "log-level", constants.DefaultLogLevel, "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.LogFormat, "log-format", constants.DefaultLogFormat, "Log format (text, json)")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")

	opts.viper.BindPFlag("log.level", flags.Lookup("log-level"))
	opts.viper.BindPFlag("log.format", flags.Lookup("log-format"))
	opts.viper.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))

	rootCmd.AddCommand(NewTrainCmd(opts))
	rootCmd.AddCommand(NewScoreCmd(opts))

	return rootCmd
}

// session holds what a command needs to run.
type session struct {
	config      *config.DetectorConfig
	logger      *logrus.Logger
	persistence *ml.Persistence
	sink        interfaces.ReportSink
	metrics     *metrics.PrometheusMetrics
}

func (o *GlobalOptions) open(ctx context.Context) (*session, error) {
	cfg, err := config.LoadConfig(o.viper, o.ConfigFile)
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	if used := o.viper.ConfigFileUsed(); used != "" {
		logger.WithField("file", used).Debug("Loaded configuration")
	}

	if cfg.Metrics.Addr != "" {
		cfg.Metrics.Enabled = true
	}
	pm, err := metrics.NewPrometheusMetrics(&cfg.Metrics, logger)
	if err != nil {
		return nil, err
	}
	if err := pm.Start(ctx); err != nil {
		return nil, err
	}

	sink, err := storage.NewReportSink(cfg.Sinks, pm, logger)
	if err != nil {
		pm.Stop(ctx)
		return nil, err
	}

	persistence := ml.NewPersistence(cfg.S3, logger)
	persistence.SetRecorder(pm)

	return &session{
		config:      cfg,
		logger:      logger,
		persistence: persistence,
		sink:        sink,
		metrics:     pm,
	}, nil
}

func (s *session) close() {
	if err := s.sink.Close(); err != nil {
		s.logger.WithError(err).Warn("Failed to close report sinks")
	}
	if err := s.persistence.Close(); err != nil {
		s.logger.WithError(err).Warn("Failed to close model storage")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.metrics.Stop(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to stop metrics server")
	}
}

func (s *session) recordRun(command string, err error) {
	status := constants.StatusSuccess
	if err != nil {
		status = constants.StatusFailure
	}
	s.metrics.RecordRun(command, status)
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

// openInput opens path for reading; "-" is standard input.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}
