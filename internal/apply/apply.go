// Package apply implements the apply orchestrator (spec §4.9): executing
// the safe SQL bundle and the static seed bundle against a target database
// under a chosen synchronization mode.
//
// Concrete SQL dialect parsing and database drivers are external
// collaborators per spec §6 ("contract only") — this package depends only
// on the Executor interface below, the way ingest.RelationshipConstraintMetadataProvider
// and smo.StaticEntityDataProvider depend on their own caller-supplied
// collaborators rather than a concrete driver.
package apply

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/result"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/smo"
)

// Executor is the target database collaborator. A concrete driver
// (SQL Server, Postgres, ...) lives outside this module and satisfies this
// interface; this package never imports a driver directly.
type Executor interface {
	ExecContext(ctx context.Context, statement string) (rowsAffected int64, err error)
}

// SchemaApplyOptions configures one apply run (spec §4.9).
type SchemaApplyOptions struct {
	Enabled                       bool
	ConnectionString              string
	Authentication                string
	CommandTimeoutSeconds         int
	ApplySafeScript               bool
	ApplyStaticSeeds              bool
	StaticSeedSynchronizationMode smo.SynchronizationMode
	// MaxBatchSizeBytes bounds how large a single GO-delimited batch may be
	// before it is split further; zero means no splitting beyond the
	// script's own GO separators.
	MaxBatchSizeBytes int
}

// SchemaDataApplyOutcome is what one apply run produced (spec §4.9).
type SchemaDataApplyOutcome struct {
	Status                  string // "Skipped", "Completed", "Failed"
	AppliedScripts          []string
	AppliedSeedScripts      []string
	SkippedScripts          []string
	ExecutedBatchCount      int
	Duration                time.Duration
	MaxBatchSizeBytes       int
	StreamingEnabled        bool
	PendingRemediationCount int
}

// Apply executes safeScriptPath (if ApplySafeScript) and seedScriptPaths
// (if ApplyStaticSeeds) against executor, batching each script on its GO
// separators. pendingRemediationCount is forwarded from the opportunities
// report per spec §4.9's Skipped-outcome contract.
func Apply(ctx context.Context, executor Executor, opts SchemaApplyOptions, safeScriptPath string, seedScriptPaths []string, pendingRemediationCount int, now func() time.Time) result.Of[SchemaDataApplyOutcome] {
	if now == nil {
		now = time.Now
	}
	started := now()

	if !opts.Enabled {
		return result.Ok(SchemaDataApplyOutcome{
			Status:                  "Skipped",
			SkippedScripts:          collectSkipped(opts, safeScriptPath, seedScriptPaths),
			PendingRemediationCount: pendingRemediationCount,
		})
	}

	outcome := SchemaDataApplyOutcome{Status: "Completed", MaxBatchSizeBytes: opts.MaxBatchSizeBytes}

	if opts.ApplySafeScript && safeScriptPath != "" {
		n, err := execScript(ctx, executor, safeScriptPath, opts.MaxBatchSizeBytes)
		outcome.ExecutedBatchCount += n
		if err != nil {
			outcome.Status = "Failed"
			outcome.Duration = now().Sub(started)
			return result.FailWith(outcome, result.Withf("pipeline.apply.safeScript.failed", err.Error(), "paths.script", safeScriptPath))
		}
		outcome.AppliedScripts = append(outcome.AppliedScripts, safeScriptPath)
	}

	if opts.ApplyStaticSeeds {
		for _, path := range seedScriptPaths {
			n, err := execScript(ctx, executor, path, opts.MaxBatchSizeBytes)
			outcome.ExecutedBatchCount += n
			if err != nil {
				outcome.Status = "Failed"
				outcome.Duration = now().Sub(started)
				return result.FailWith(outcome, result.Withf("pipeline.apply.seedScript.failed", err.Error(), "paths.script", path))
			}
			outcome.AppliedSeedScripts = append(outcome.AppliedSeedScripts, path)
		}
	}

	outcome.Duration = now().Sub(started)
	outcome.StreamingEnabled = opts.MaxBatchSizeBytes > 0
	return result.Ok(outcome)
}

func collectSkipped(opts SchemaApplyOptions, safeScriptPath string, seedScriptPaths []string) []string {
	var skipped []string
	if opts.ApplySafeScript && safeScriptPath != "" {
		skipped = append(skipped, safeScriptPath)
	}
	if opts.ApplyStaticSeeds {
		skipped = append(skipped, seedScriptPaths...)
	}
	return skipped
}

// execScript reads path and executes it one GO-delimited batch at a time,
// honoring ctx cancellation between batches. Returns the number of batches
// executed before any failure.
func execScript(ctx context.Context, executor Executor, path string, maxBatchSizeBytes int) (int, error) {
	f, err := os.Open(path) // #nosec G304 - path is the pipeline's own emitted output
	if err != nil {
		return 0, err
	}
	defer f.Close()

	batches, err := splitBatches(f, maxBatchSizeBytes)
	if err != nil {
		return 0, err
	}

	executed := 0
	for _, batch := range batches {
		if ctx.Err() != nil {
			return executed, fmt.Errorf("pipeline.canceled: apply interrupted after %d batch(es)", executed)
		}
		batch = strings.TrimSpace(batch)
		if batch == "" {
			continue
		}
		if _, err := executor.ExecContext(ctx, batch); err != nil {
			return executed, fmt.Errorf("batch %d: %w", executed+1, err)
		}
		executed++
	}
	return executed, nil
}

// splitBatches splits a script on lines containing only "GO" (T-SQL batch
// separator convention, matching the "GO\n"-joined output files of spec
// §6), further splitting any single batch larger than maxBatchSizeBytes (0
// disables size-based splitting).
func splitBatches(f *os.File, maxBatchSizeBytes int) ([]string, error) {
	var batches []string
	var current strings.Builder

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "GO" {
			batches = append(batches, current.String())
			current.Reset()
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(current.String()) != "" {
		batches = append(batches, current.String())
	}

	if maxBatchSizeBytes <= 0 {
		return batches, nil
	}
	var out []string
	for _, b := range batches {
		out = append(out, splitBySize(b, maxBatchSizeBytes)...)
	}
	return out, nil
}

func splitBySize(batch string, maxBytes int) []string {
	if len(batch) <= maxBytes {
		return []string{batch}
	}
	var out []string
	for len(batch) > maxBytes {
		cut := strings.LastIndex(batch[:maxBytes], "\n")
		if cut <= 0 {
			cut = maxBytes
		}
		out = append(out, batch[:cut])
		batch = batch[cut:]
	}
	if strings.TrimSpace(batch) != "" {
		out = append(out, batch)
	}
	return out
}
