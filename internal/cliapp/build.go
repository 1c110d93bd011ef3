package cliapp

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/config"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/pipeline"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/policy"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/smo"
)

var (
	flagBuildModel   string
	flagBuildProfile string
	flagBuildOut     string
	flagBuildCache   string
)

func init() {
	buildSsdtCmd.Flags().StringVar(&flagBuildModel, "model", "", "path to the model JSON document")
	buildSsdtCmd.Flags().StringVar(&flagBuildProfile, "profile", "", "path to the runtime profiling snapshot JSON")
	buildSsdtCmd.Flags().StringVarP(&flagBuildOut, "out", "o", "./ssdt-output", "output directory for the emitted artifact set")
	buildSsdtCmd.Flags().StringVar(&flagBuildCache, "cache", "", "evidence cache directory (default: <out>/.cache)")
	_ = buildSsdtCmd.MarkFlagRequired("model")
	_ = buildSsdtCmd.MarkFlagRequired("profile")
	rootCmd.AddCommand(buildSsdtCmd)
}

var buildSsdtCmd = &cobra.Command{
	Use:   "build-ssdt",
	Short: "Build the full per-table schema, seed, decision, and validation artifact set",
	RunE:  runBuildSsdt,
}

func runBuildSsdt(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	req := requestFromConfig(flagBuildModel, flagBuildProfile, flagBuildOut, flagBuildCache)

	out := pipeline.BuildSSDT(cmd.Context(), req, nil)
	logPath := filepath.Join(req.OutputDirectory, "execution-log.json")
	if out.Value.Log != nil {
		if err := out.Value.Log.Persist(logPath); err != nil {
			logger.Warn("failed to persist execution log", "error", err)
		}
	}
	if out.Failed() {
		logger.Error("build-ssdt failed", "code", out.Errors[0].Code, "error", out.Errors[0].Message)
		return fmt.Errorf("%s: %s", out.Errors[0].Code, out.Errors[0].Message)
	}
	for _, w := range out.Warnings {
		logger.Warn(w)
	}
	logger.Info("build-ssdt completed",
		"tables", len(out.Value.EmitResult.TableFiles),
		"opportunities", len(out.Value.OpportunitiesReport.Opportunities),
		"sqlErrors", out.Value.SqlValidation.ErrorCount,
	)
	return nil
}

// requestFromConfig assembles a pipeline.Request from the layered
// configuration (spec §4.4 precedence: default < config file < env <
// CLI-supplied paths), the way full-export and build-ssdt share it.
func requestFromConfig(modelPath, profilePath, outDir, cacheDir string) pipeline.Request {
	if cacheDir == "" {
		cacheDir = filepath.Join(outDir, ".cache")
	}

	req := pipeline.Request{
		ModelPath:   modelPath,
		ProfilePath: profilePath,
		PolicyOptions: policy.Options{
			Mode: policy.Mode(config.GetString("policy.mode")),
		},
		EmitOptions: smo.EmitOptions{
			OutputDirectory: outDir,
			Layout:          smo.LayoutMode(config.GetString("emission.layout")),
		},
		SeedOptions: smo.SeedOptions{
			OutputDirectory:     outDir,
			GroupByModule:       config.GetBool("emission.group-by-module"),
			EmitMasterFile:      config.GetBool("emission.emit-master-file"),
			SynchronizationMode: smo.SynchronizationMode(config.GetString("emission.synchronization-mode")),
		},
		CacheDirectory:    cacheDir,
		CacheMaxAge:       config.GetDuration("cache.max-age"),
		CacheMaxEntries:   config.GetInt("cache.max-entries"),
		RefreshCache:      config.GetBool("cache.refresh"),
		ModuleParallelism: config.GetInt("emission.module-parallelism"),
		OutputDirectory:   outDir,
	}
	return req
}
