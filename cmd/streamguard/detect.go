package main

import (
	"github.com/spf13/cobra"

	"github.com/hed1ad/streamguard/pkg/io/csv"
)

func newDetectCmd(a *app) *cobra.Command {
	var layout string

	cmd := &cobra.Command{
		Use:   "detect <file.csv>",
		Short: "Detect anomalies in a CSV telemetry file",
		Long: "detect reads a CSV file whose first column is the timestamp, runs it " +
			"through the configured algorithms in batches and writes one JSON line per anomaly.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []csv.Option{csv.WithBatchSize(a.runtime.Batch.Size), csv.WithLogger(a.logger)}
			if layout != "" {
				opts = append(opts, csv.WithTimeLayout(layout))
			}
			r, err := csv.NewReader(args[0], opts...)
			if err != nil {
				return err
			}
			return a.serve(cmd, r)
		},
	}
	cmd.Flags().StringVar(&layout, "time-layout", "", "timestamp layout; default accepts RFC 3339 and Unix seconds")
	return cmd
}
