package commands

import (
	"github.com/spf13/cobra"

	"github.com/jayeshkapadnis/ts-anamoly-detector/internal/detector"
)

type TrainOptions struct {
	Input       string
	JSON        bool
	ShowWindows bool
}

func NewTrainCmd(global *GlobalOptions) *cobra.Command {
	opts := &TrainOptions{}

	cmd := &cobra.Command{
		Use:   "train [input]",
		Short: "Train a model on a series and rank its held-out windows",
		Long: `Cut the input series into overlapping windows, train an LSTM autoencoder on
a random share of them and rank the rest by reconstruction error. The trained
model is written to --output, a local path or an s3://bucket/key location.`,
		Example: `  # Train on a comma separated file with 49-row sequences
  tsanomaly train --input data.csv --seq-length 49 --output models/

  # Whitespace separated input from stdin, report published to Redis
  cat data.txt | tsanomaly train --separator '\s+' --sink redis`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Input = args[0]
			}
			return runTrain(cmd, global, opts)
		},
	}

	d := detector.DefaultConfig()
	flags := cmd.Flags()
	flags.StringVarP(&opts.Input, "input", "i", "-", "Input file (- for stdin)")
	flags.BoolVar(&opts.JSON, "json", false, "Print the report as JSON")
	flags.BoolVar(&opts.ShowWindows, "show-windows", false, "Print the rows of every reported window")

	flags.String("separator", d.Separator, "Field separator (regular expression)")
	flags.Int("seq-length", d.SeqLength, "Sequence length; windows hold seq-length+1 rows")
	flags.Float64("ratio", d.TrainRatio, "Share of windows used for training")
	flags.Int64("seed", d.Seed, "Seed for shuffling and weight initialization")
	flags.Int("epochs", d.Epochs, "Training epochs")
	flags.Int("batch-size", d.BatchSize, "Windows per optimization step")
	flags.IntSlice("hidden", d.HiddenLayers, "Encoder hidden layer sizes")
	flags.Float64("learning-rate", d.LearningRate, "Adam learning rate")
	flags.String("normalization", d.Normalization, "Feature scaling (none, minmax, zscore, robust)")
	flags.Int("workers", 0, "Goroutines for gradients and scoring (0 uses all CPUs)")
	flags.IntP("top-k", "k", d.TopK, "Number of normal and anomalous windows to report")
	flags.StringP("output", "o", ".", "Model output path, directory or s3://bucket/key")
	flags.StringSlice("sink", nil, "Report sinks (file, redis, influxdb)")

	cmd.PreRun = bindFlags(global, map[string]string{
		"separator":     "detector.separator",
		"seq-length":    "detector.seq_length",
		"ratio":         "detector.train_ratio",
		"seed":          "detector.seed",
		"epochs":        "detector.epochs",
		"batch-size":    "detector.batch_size",
		"hidden":        "detector.hidden_layers",
		"learning-rate": "detector.learning_rate",
		"normalization": "detector.normalization",
		"workers":       "detector.workers",
		"top-k":         "detector.top_k",
		"output":        "detector.model_output_path",
		"sink":          "sinks.types",
	})

	return cmd
}

func runTrain(cmd *cobra.Command, global *GlobalOptions, opts *TrainOptions) (err error) {
	ctx := cmd.Context()
	s, err := global.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	defer func() { s.recordRun("train", err) }()

	input, err := openInput(cmd, opts.Input)
	if err != nil {
		return err
	}
	defer input.Close()

	d, err := detector.NewDetector(s.config.Detector, s.persistence, s.sink, s.logger)
	if err != nil {
		return err
	}
	d.SetMetrics(s.metrics)

	result, err := d.Run(ctx, input)
	if err != nil {
		return err
	}

	if opts.JSON {
		return printJSON(cmd.OutOrStdout(), result.Report)
	}
	printReport(cmd.OutOrStdout(), result.Report, opts.ShowWindows)
	return nil
}

// bindFlags returns a PreRun hook making each flag override its
// configuration key when set. Subcommands share keys, so only the command
// that runs binds its flags.
func bindFlags(global *GlobalOptions, keys map[string]string) func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		for flag, key := range keys {
			global.viper.BindPFlag(key, cmd.Flags().Lookup(flag))
		}
	}
}
