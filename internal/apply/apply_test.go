package apply

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type recordingExecutor struct {
	statements []string
	failOn     int
}

func (e *recordingExecutor) ExecContext(ctx context.Context, statement string) (int64, error) {
	if e.failOn > 0 && len(e.statements)+1 == e.failOn {
		e.statements = append(e.statements, statement)
		return 0, errors.New("simulated driver failure")
	}
	e.statements = append(e.statements, statement)
	return 1, nil
}

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sql")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestApply_DisabledIsSkippedWithPendingRemediationForwarded(t *testing.T) {
	out := Apply(context.Background(), &recordingExecutor{}, SchemaApplyOptions{Enabled: false}, "safe.sql", nil, 3, nil)
	if out.Failed() {
		t.Fatalf("unexpected failure: %v", out.Errors)
	}
	if out.Value.Status != "Skipped" {
		t.Errorf("expected Skipped, got %s", out.Value.Status)
	}
	if out.Value.PendingRemediationCount != 3 {
		t.Errorf("expected pendingRemediationCount=3, got %d", out.Value.PendingRemediationCount)
	}
}

func TestApply_ExecutesEachGoDelimitedBatch(t *testing.T) {
	script := "INSERT INTO T VALUES (1);\nGO\nINSERT INTO T VALUES (2);\nGO\n"
	path := writeScript(t, script)
	executor := &recordingExecutor{}

	out := Apply(context.Background(), executor, SchemaApplyOptions{Enabled: true, ApplySafeScript: true},
		path, nil, 0, func() time.Time { return time.Unix(0, 0) })
	if out.Failed() {
		t.Fatalf("unexpected failure: %v", out.Errors)
	}
	if out.Value.ExecutedBatchCount != 2 {
		t.Fatalf("expected 2 batches, got %d", out.Value.ExecutedBatchCount)
	}
	if len(executor.statements) != 2 {
		t.Fatalf("expected 2 statements sent, got %d", len(executor.statements))
	}
}

func TestApply_BatchFailurePreservesPartialOutcome(t *testing.T) {
	script := "INSERT INTO T VALUES (1);\nGO\nINSERT INTO T VALUES (2);\nGO\n"
	path := writeScript(t, script)
	executor := &recordingExecutor{failOn: 2}

	out := Apply(context.Background(), executor, SchemaApplyOptions{Enabled: true, ApplySafeScript: true},
		path, nil, 0, nil)
	if !out.Failed() {
		t.Fatalf("expected a failure on the second batch")
	}
	if out.Value.ExecutedBatchCount != 1 {
		t.Errorf("expected the first batch to be recorded as executed before the failure, got %d", out.Value.ExecutedBatchCount)
	}
	if out.Value.Status != "Failed" {
		t.Errorf("expected Status=Failed, got %s", out.Value.Status)
	}
}
