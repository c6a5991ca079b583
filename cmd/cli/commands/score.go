package commands

import (
	"github.com/spf13/cobra"

	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/detector"
)

type ScoreOptions struct {
	Input       string
	Model       string
	JSON        bool
	ShowWindows bool
}

func NewScoreCmd(global *GlobalOptions) *cobra.Command {
	opts := &ScoreOptions{}

	cmd := &cobra.Command{
		Use:   "score [input]",
		Short: "Rank the windows of a series with a trained model",
		Long: `Load a model written by train and rank every window of the input series by
reconstruction error. Windows are cut with the sequence length the model was
trained with.`,
		Example: `  tsanomaly score --model models/AbnormalDetectedModel.gob.gz --input new.csv
  tsanomaly score --model s3://models/prod/ --input new.csv --top-k 10 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Input = args[0]
			}
			return runScore(cmd, global, opts)
		},
	}

	d := detector.DefaultConfig()
	flags := cmd.Flags()
	flags.StringVarP(&opts.Input, "input", "i", "-", "Input file (- for stdin)")
	flags.StringVarP(&opts.Model, "model", "m", "", "Model location, local path or s3://bucket/key")
	flags.BoolVar(&opts.JSON, "json", false, "Print the report as JSON")
	flags.BoolVar(&opts.ShowWindows, "show-windows", false, "Print the rows of every reported window")
	cmd.MarkFlagRequired("model")

	flags.String("separator", d.Separator, "Field separator (regular expression)")
	flags.Int("workers", 0, "Goroutines for scoring (0 uses all CPUs)")
	flags.IntP("top-k", "k", d.TopK, "Number of normal and anomalous windows to report")
	flags.StringSlice("sink", nil, "Report sinks (file, redis, influxdb)")

	cmd.PreRun = bindFlags(global, map[string]string{
		"separator": "detector.separator",
		"workers":   "detector.workers",
		"top-k":     "detector.top_k",
		"sink":      "sinks.types",
	})

	return cmd
}

func runScore(cmd *cobra.Command, global *GlobalOptions, opts *ScoreOptions) (err error) {
	ctx := cmd.Context()
	s, err := global.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	defer func() { s.recordRun("score", err) }()

	model, err := s.persistence.LoadModel(ctx, opts.Model)
	if err != nil {
		return err
	}

	input, err := openInput(cmd, opts.Input)
	if err != nil {
		return err
	}
	defer input.Close()

	cfg := s.config.Detector
	cfg.ModelOutputPath = opts.Model
	d, err := detector.NewDetector(cfg, s.persistence, s.sink, s.logger)
	if err != nil {
		return err
	}
	d.SetMetrics(s.metrics)

	result, err := d.Score(ctx, model, input)
	if err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(cmd.OutOrStdout(), result.Report)
	}
	printReport(cmd.OutOrStdout(), result.Report, opts.ShowWindows)
	return nil
}
