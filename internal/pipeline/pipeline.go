// Package pipeline composes the build-ssdt stages (spec §4.8): each step is
// a function execute(state) -> Result<state'>, coalesced into one ordered,
// append-only ExecutionLog with the spec's stable step-name contract.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/depgraph"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/evidence"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ingest"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/model"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/policy"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/profiling"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/result"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/smo"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/sqlvalidate"
)

// Request is the build-ssdt pipeline's input, gathering every collaborator
// and option a run needs (spec §6 contracts plus §4 component options).
type Request struct {
	ModelPath            string
	ProfilePath          string
	IngestOptions        ingest.Options
	SupplementalEntities []model.Entity
	ConstraintProvider   ingest.RelationshipConstraintMetadataProvider

	PolicyOptions   policy.Options
	NamingOverrides smo.NamingOverrideOptions
	TypeMapping     smo.TypeMappingPolicy
	EmitOptions     smo.EmitOptions
	SeedOptions     smo.SeedOptions
	StaticDataProvider smo.StaticEntityDataProvider

	CacheDirectory  string
	CacheMaxAge     time.Duration
	CacheMaxEntries int
	RefreshCache    bool
	CacheMetadata   map[string]string

	// ModuleParallelism bounds the per-table emission and per-file SQL
	// validation fan-outs (spec §5, "emission.moduleParallelism"). 0 means
	// unlimited.
	ModuleParallelism int

	OutputDirectory string
}

// State is the pipeline's accumulated, append-only state, threaded through
// every stage.
type State struct {
	Request Request

	Model    model.OsmModel
	Warnings []string

	Snapshot profiling.Snapshot
	Insights []profiling.Insight

	CacheResult evidence.Result

	Decisions           policy.DecisionSet
	DecisionReport      policy.DecisionReport
	OpportunitiesReport policy.Report

	SmoModel   smo.SmoModel
	EmitResult smo.Result

	Order      depgraph.OrderResult
	Validation depgraph.ValidationResult
	SeedResult smo.SeedResult

	SqlValidation sqlvalidate.Summary

	Log *ExecutionLog
}

var errCanceled = result.New("pipeline.canceled", "pipeline execution was canceled at a suspension point")

// checkCanceled reports ctx as a pipeline.canceled failure if it has been
// canceled, honoring a cancellation signal at a suspend-capable point (spec
// §5). artifactsToClean lists files written by the current step only, which
// are best-effort removed before returning.
func checkCanceled(ctx context.Context, artifactsToClean ...string) *result.Error {
	if ctx.Err() == nil {
		return nil
	}
	for _, p := range artifactsToClean {
		_ = os.Remove(p)
	}
	err := errCanceled
	return &err
}

// BuildSSDT runs the full build-ssdt pipeline: ingestion, profiling,
// evidence caching, policy decisioning, emission, SQL validation,
// dependency ordering, and static seed generation, in the order spec §4.8
// names them.
func BuildSSDT(ctx context.Context, req Request, now func() time.Time) result.Of[State] {
	st := State{Request: req, Log: NewExecutionLog(now)}
	st.Log.Append("request.received", map[string]string{
		"paths.model":   req.ModelPath,
		"paths.profile": req.ProfilePath,
	})

	if err := checkCanceled(ctx); err != nil {
		return result.Fail[State](*err)
	}

	modelResult := ingest.Load(req.ModelPath, req.IngestOptions)
	if modelResult.Failed() {
		return result.FailWith(st, modelResult.Errors...)
	}
	st.Model = modelResult.Value
	st.Warnings = append(st.Warnings, modelResult.Warnings...)
	if len(modelResult.Warnings) > 0 {
		st.Log.Append("model.schema.warnings", map[string]string{"counts.warnings": strconv.Itoa(len(modelResult.Warnings))})
	}
	st.Log.Append("model.ingested", map[string]string{"counts.modules": strconv.Itoa(len(st.Model.Modules))})
	st.Log.Append("model.filtered", map[string]string{"counts.entities": strconv.Itoa(len(st.Model.AllEntities()))})

	if len(req.SupplementalEntities) > 0 {
		st.Model = ingest.MergeSupplemental(st.Model, req.SupplementalEntities)
		st.Log.Append("supplemental.loaded", map[string]string{"counts.supplementalEntities": strconv.Itoa(len(req.SupplementalEntities))})
	}

	if req.ConstraintProvider != nil {
		if err := checkCanceled(ctx); err != nil {
			return result.Fail[State](*err)
		}
		hydrated := ingest.Hydrate(st.Model, req.ConstraintProvider)
		if hydrated.Failed() {
			return result.FailWith(st, hydrated.Errors...)
		}
		st.Model = hydrated.Value
		st.Warnings = append(st.Warnings, hydrated.Warnings...)
	}

	if err := checkCanceled(ctx); err != nil {
		return result.Fail[State](*err)
	}
	st.Log.Append("profiling.capture.start", map[string]string{"paths.profile": req.ProfilePath})
	snapResult := profiling.Load(req.ProfilePath)
	if snapResult.Failed() {
		return result.FailWith(st, snapResult.Errors...)
	}
	st.Snapshot = snapResult.Value
	st.Insights = profiling.DeriveInsights(st.Snapshot)
	st.Log.Append("profiling.capture.completed", map[string]string{
		"counts.columns": strconv.Itoa(len(st.Snapshot.Columns)),
		"counts.insights": strconv.Itoa(len(st.Insights)),
	})

	if req.CacheDirectory != "" {
		if err := checkCanceled(ctx); err != nil {
			return result.Fail[State](*err)
		}
		st.Log.Append("evidence.cache.requested", map[string]string{"paths.cache": req.CacheDirectory})
		cacheResult, cerr := resolveCache(req, now)
		if cerr != nil {
			return result.Fail[State](result.Withf("cache.resolve.failed", cerr.Error(), "paths.cache", req.CacheDirectory))
		}
		st.CacheResult = cacheResult
		if cacheResult.Outcome == evidence.OutcomeCreated {
			st.Log.Append("evidence.cache.persisted", map[string]string{"paths.cache": cacheResult.CacheDirectory})
		} else {
			st.Log.Append("evidence.cache.reused", map[string]string{"paths.cache": cacheResult.CacheDirectory})
		}
	}

	st.Decisions, st.DecisionReport, st.OpportunitiesReport = policy.Decide(st.Model, st.Snapshot, req.PolicyOptions)
	st.Log.Append("policy.decisions.synthesized", map[string]string{
		"counts.opportunities":      strconv.Itoa(len(st.OpportunitiesReport.Opportunities)),
		"counts.needsRemediation":   strconv.Itoa(len(st.OpportunitiesReport.NeedsRemediation)),
	})

	st.SmoModel = smo.Build(st.Model, st.Decisions, req.NamingOverrides, req.TypeMapping)

	if err := checkCanceled(ctx); err != nil {
		return result.Fail[State](*err)
	}
	emitResult, eerr := smo.EmitParallel(st.SmoModel, st.Decisions, st.OpportunitiesReport, req.EmitOptions, req.ModuleParallelism)
	if eerr != nil {
		return result.Fail[State](result.New("ssdt.emission.failed", eerr.Error()))
	}
	st.EmitResult = emitResult
	st.Log.Append("ssdt.emission.completed", map[string]string{
		"counts.tables": strconv.Itoa(len(emitResult.TableFiles)),
		"metrics.digest": emitResult.Manifest.Emission.Digest,
	})
	st.Log.Append("policy.log.persisted", map[string]string{"paths.decisionLog": emitResult.DecisionLogPath})

	for _, remap := range st.SmoModel.ModuleRemaps {
		st.Log.Append("staticData.seed.moduleNameRemapped", map[string]string{
			"module.originalName":       remap.OriginalName,
			"module.sanitizedName":      remap.SanitizedName,
			"module.disambiguatedName":  remap.DisambiguatedName,
		})
	}

	if err := checkCanceled(ctx); err != nil {
		return result.Fail[State](*err)
	}
	files, rerr := readEmittedFiles(req.OutputDirectory, emitResult.TableFiles)
	if rerr != nil {
		return result.Fail[State](result.New("ssdt.sql.validation.io.failed", rerr.Error()))
	}
	st.SqlValidation = validateParallel(files, req.ModuleParallelism)
	if st.SqlValidation.ErrorCount > 0 {
		for _, e := range st.SqlValidation.Errors {
			if e.Severity == sqlvalidate.SeverityError {
				st.Log.Append("ssdt.sql.validation.error", map[string]string{
					"paths.file": e.File, "metrics.line": strconv.Itoa(e.Line), "flags.message": e.Message,
				})
			}
		}
		return result.FailWith(st, result.New("pipeline.buildSsdt.sql.validationFailed",
			fmt.Sprintf("%d SQL validation error(s) across %d files", st.SqlValidation.ErrorCount, st.SqlValidation.TotalFiles)))
	}
	st.Log.Append("ssdt.sql.validation.completed", map[string]string{
		"counts.files":    strconv.Itoa(st.SqlValidation.TotalFiles),
		"counts.warnings": strconv.Itoa(st.SqlValidation.WarningCount),
	})

	graph := depgraph.BuildGraph(st.Model, depgraph.Identity)
	st.Order = depgraph.TopoOrder(graph)
	st.Validation = depgraph.Validate(st.Order.Order, st.Model, depgraph.Identity)
	st.Log.Append("staticData.seed.preflight", map[string]string{
		"counts.tables":          strconv.Itoa(len(st.Order.Order)),
		"flags.cycleDetected":    strconv.FormatBool(st.Validation.CycleDetected),
		"counts.violations":      strconv.Itoa(len(st.Validation.Violations)),
	})

	if req.StaticDataProvider != nil {
		if err := checkCanceled(ctx); err != nil {
			return result.Fail[State](*err)
		}
		seedResult, serr := smo.GenerateSeeds(st.SmoModel, req.StaticDataProvider, st.Order.Order, req.SeedOptions)
		if serr != nil {
			return result.Fail[State](result.New("staticData.seed.provider.failed", serr.Error()))
		}
		st.SeedResult = seedResult
		st.Log.Append("staticData.seed.generated", map[string]string{
			"counts.tables": strconv.Itoa(len(seedResult.Order)),
			"paths.master":  seedResult.MasterFile,
		})
	}

	st.Log.Append("pipeline.execution", map[string]string{"flags.succeeded": "true"})

	if req.OutputDirectory != "" {
		_ = st.Log.Persist(filepath.Join(req.OutputDirectory, "execution-log.json"))
	}

	return result.OkWithWarnings(st, st.Warnings)
}

func resolveCache(req Request, now func() time.Time) (evidence.Result, error) {
	cache, err := evidence.Open(req.CacheDirectory)
	if err != nil {
		return evidence.Result{}, err
	}
	defer cache.Close()

	cacheReq := evidence.Request{
		Command: "build-ssdt",
		Sources: []evidence.SourceFile{
			{Type: evidence.ArtifactModel, Path: req.ModelPath},
			{Type: evidence.ArtifactProfile, Path: req.ProfilePath},
		},
		Metadata:         req.CacheMetadata,
		MaxAge:           req.CacheMaxAge,
		RefreshRequested: req.RefreshCache,
	}

	var clock time.Time
	if now != nil {
		clock = now()
	} else {
		clock = time.Now()
	}

	out := cache.Resolve(cacheReq, clock, req.CacheMaxEntries)
	if out.Failed() {
		return evidence.Result{}, out.Errors
	}
	return out.Value, nil
}

func readEmittedFiles(outputDirectory string, tableFiles []smo.TableFile) ([]sqlvalidate.File, error) {
	files := make([]sqlvalidate.File, 0, len(tableFiles))
	for _, tf := range tableFiles {
		data, err := os.ReadFile(filepath.Join(outputDirectory, tf.Path)) // #nosec G304 - path is the pipeline's own fresh emission output
		if err != nil {
			return nil, err
		}
		files = append(files, sqlvalidate.File{Path: tf.Path, Content: string(data)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
