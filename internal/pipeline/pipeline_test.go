package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ids"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/smo"
)

const sampleModelJSON = `{
  "exportedAtUtc": "2026-01-01T00:00:00Z",
  "modules": [
    {
      "name": "Sales",
      "isSystem": false,
      "isActive": true,
      "entities": [
        {
          "name": "Order",
          "physicalName": "OSUSR_ORDER",
          "db_schema": "dbo",
          "isStatic": true,
          "isExternal": false,
          "isActive": true,
          "attributes": [
            {"logicalName": "Id", "columnName": "ID", "dataType": "Integer", "isIdentifier": true, "isMandatory": true, "isActive": true},
            {"logicalName": "Total", "columnName": "TOTAL", "dataType": "Decimal", "isMandatory": false, "isActive": true}
          ],
          "relationships": [],
          "indexes": [],
          "triggers": []
        }
      ]
    }
  ]
}`

const sampleProfileJSON = `{
  "columns": [
    {"schema": "dbo", "table": "OSUSR_ORDER", "column": "TOTAL", "isNullablePhysical": true, "isComputed": false, "isPrimaryKey": false, "isUniqueKey": false, "rowCount": 100, "nullCount": 0, "probeStatus": {"status": "succeeded", "atUtc": "2026-01-01T00:00:00Z", "sampled": false}}
  ],
  "uniqueCandidates": [],
  "compositeUniqueCandidates": [],
  "foreignKeys": []
}`

func writeFixtures(t *testing.T) (modelPath, profilePath string) {
	t.Helper()
	dir := t.TempDir()
	modelPath = filepath.Join(dir, "model.json")
	profilePath = filepath.Join(dir, "profile.json")
	if err := os.WriteFile(modelPath, []byte(sampleModelJSON), 0o644); err != nil {
		t.Fatalf("write model fixture: %v", err)
	}
	if err := os.WriteFile(profilePath, []byte(sampleProfileJSON), 0o644); err != nil {
		t.Fatalf("write profile fixture: %v", err)
	}
	return modelPath, profilePath
}

type fakeStaticProvider struct{}

func (fakeStaticProvider) GetData(defs []smo.SmoTable) ([]smo.StaticEntityTableData, error) {
	var out []smo.StaticEntityTableData
	for _, d := range defs {
		out = append(out, smo.StaticEntityTableData{Table: d, Rows: []map[ids.ColumnName]any{
			{"ID": 1, "TOTAL": 9.99},
		}})
	}
	return out, nil
}

func TestBuildSSDT_HappyPathEmitsAllArtifacts(t *testing.T) {
	modelPath, profilePath := writeFixtures(t)
	outDir := t.TempDir()

	req := Request{
		ModelPath:   modelPath,
		ProfilePath: profilePath,
		EmitOptions: smo.EmitOptions{OutputDirectory: outDir, Layout: smo.LayoutPerTable},
		SeedOptions: smo.SeedOptions{OutputDirectory: outDir, EmitMasterFile: true, SynchronizationMode: smo.SyncNonDestructive},
		StaticDataProvider: fakeStaticProvider{},
		OutputDirectory:    outDir,
		ModuleParallelism:  2,
	}

	out := BuildSSDT(context.Background(), req, func() time.Time { return time.Unix(0, 0).UTC() })
	if out.Failed() {
		t.Fatalf("BuildSSDT failed: %v", out.Errors)
	}
	if len(out.Value.EmitResult.TableFiles) != 1 {
		t.Fatalf("expected 1 emitted table file, got %d", len(out.Value.EmitResult.TableFiles))
	}
	if out.Value.SqlValidation.ErrorCount != 0 {
		t.Errorf("expected clean SQL validation, got %d errors", out.Value.SqlValidation.ErrorCount)
	}
	if out.Value.SeedResult.MasterFile == "" {
		t.Errorf("expected a master seed file to be generated")
	}

	var sawRequestReceived, sawPipelineExecution bool
	for _, e := range out.Value.Log.Entries {
		if e.Step == "request.received" {
			sawRequestReceived = true
		}
		if e.Step == "pipeline.execution" {
			sawPipelineExecution = true
		}
	}
	if !sawRequestReceived || !sawPipelineExecution {
		t.Errorf("expected request.received and pipeline.execution log entries, got %+v", out.Value.Log.Entries)
	}

	if _, err := os.Stat(filepath.Join(outDir, "execution-log.json")); err != nil {
		t.Errorf("expected execution-log.json to be persisted: %v", err)
	}
}

func TestBuildSSDT_CanceledContextFailsWithStableCode(t *testing.T) {
	modelPath, profilePath := writeFixtures(t)
	outDir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := Request{
		ModelPath:       modelPath,
		ProfilePath:     profilePath,
		EmitOptions:     smo.EmitOptions{OutputDirectory: outDir},
		OutputDirectory: outDir,
	}

	out := BuildSSDT(ctx, req, func() time.Time { return time.Unix(0, 0).UTC() })
	if !out.Failed() {
		t.Fatalf("expected a canceled pipeline to fail")
	}
	if out.Errors[0].Code != "pipeline.canceled" {
		t.Errorf("expected pipeline.canceled, got %s", out.Errors[0].Code)
	}
}

func TestBuildSSDT_MissingModelFileFails(t *testing.T) {
	_, profilePath := writeFixtures(t)
	req := Request{ModelPath: filepath.Join(t.TempDir(), "missing.json"), ProfilePath: profilePath}

	out := BuildSSDT(context.Background(), req, nil)
	if !out.Failed() {
		t.Fatalf("expected failure for a missing model file")
	}
	if out.Errors[0].Code != "model.load.failed" {
		t.Errorf("expected model.load.failed, got %s", out.Errors[0].Code)
	}
}
