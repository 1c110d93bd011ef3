package cliapp

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ingest"
)

var (
	flagExtractModelPath string
	flagExtractModules   string
	flagExtractOut       string
	flagExtractIncludeSys bool
	flagExtractIncludeInactive bool
)

func init() {
	extractModelCmd.Flags().StringVar(&flagExtractModelPath, "model", "", "path to the model JSON document")
	extractModelCmd.Flags().StringVar(&flagExtractModules, "modules", "", "comma-separated module names to include (default: all)")
	extractModelCmd.Flags().StringVarP(&flagExtractOut, "out", "o", "", "write the filtered model JSON to this path instead of stdout")
	extractModelCmd.Flags().BoolVar(&flagExtractIncludeSys, "include-system", false, "include system modules")
	extractModelCmd.Flags().BoolVar(&flagExtractIncludeInactive, "include-inactive", false, "include inactive modules/entities")
	_ = extractModelCmd.MarkFlagRequired("model")
	rootCmd.AddCommand(extractModelCmd)
}

var extractModelCmd = &cobra.Command{
	Use:   "extract-model",
	Short: "Load and filter a logical application model without running the full pipeline",
	RunE:  runExtractModel,
}

func runExtractModel(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	opts := ingest.Options{
		IncludeSystem:   flagExtractIncludeSys,
		IncludeInactive: flagExtractIncludeInactive,
	}
	if flagExtractModules != "" {
		opts.Modules = strings.Split(flagExtractModules, ",")
	}

	out := ingest.Load(flagExtractModelPath, opts)
	if out.Failed() {
		logger.Error("model extraction failed", "error", out.Errors[0].Message)
		return fmt.Errorf("%s: %s", out.Errors[0].Code, out.Errors[0].Message)
	}
	for _, w := range out.Warnings {
		logger.Warn(w)
	}
	logger.Info("model extracted", "modules", len(out.Value.Modules))

	return writeJSONOut(flagExtractOut, out.Value)
}

func writeJSONOut(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	if path == "" {
		fmt.Println(string(b))
		return nil
	}
	return os.WriteFile(path, b, 0o644)
}
