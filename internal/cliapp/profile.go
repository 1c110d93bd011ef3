package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/profiling"
)

var (
	flagProfilePath string
	flagProfileOut  string
)

func init() {
	captureProfileCmd.Flags().StringVar(&flagProfilePath, "profile", "", "path to the runtime profiling snapshot JSON")
	captureProfileCmd.Flags().StringVarP(&flagProfileOut, "out", "o", "", "write the derived insights JSON to this path instead of stdout")
	_ = captureProfileCmd.MarkFlagRequired("profile")
	rootCmd.AddCommand(captureProfileCmd)
}

var captureProfileCmd = &cobra.Command{
	Use:   "capture-profile",
	Short: "Load a profiling snapshot and derive insights without running the full pipeline",
	RunE:  runCaptureProfile,
}

func runCaptureProfile(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	out := profiling.Load(flagProfilePath)
	if out.Failed() {
		logger.Error("profile capture failed", "error", out.Errors[0].Message)
		return fmt.Errorf("%s: %s", out.Errors[0].Code, out.Errors[0].Message)
	}
	for _, w := range out.Warnings {
		logger.Warn(w)
	}

	insights := profiling.DeriveInsights(out.Value)
	logger.Info("profile captured", "columns", len(out.Value.Columns), "insights", len(insights))

	return writeJSONOut(flagProfileOut, struct {
		Snapshot profiling.Snapshot   `json:"snapshot"`
		Insights []profiling.Insight `json:"insights"`
	}{out.Value, insights})
}
