package profiling

import (
	"strings"
	"testing"
)

const sampleSnapshotJSON = `{
  "columns": [
    {"schema":"dbo","table":"OSUSR_ORDER","column":"ID","isNullablePhysical":false,"isPrimaryKey":true,
     "rowCount":100,"nullCount":0,"probeStatus":{"status":"succeeded","atUtc":"2026-01-01T00:00:00Z","sampled":false}},
    {"schema":"dbo","table":"OSUSR_ORDER","column":"CUSTOMERID","isNullablePhysical":true,
     "rowCount":100,"nullCount":12,"probeStatus":{"status":"succeeded","atUtc":"2026-01-01T00:00:00Z","sampled":false}}
  ],
  "uniqueCandidates": [
    {"schema":"dbo","table":"OSUSR_ORDER","column":"ID","hasDuplicate":false,"probeStatus":{"status":"succeeded"}},
    {"schema":"dbo","table":"OSUSR_ORDER","column":"CUSTOMERID","hasDuplicate":true,"probeStatus":{"status":"succeeded"}}
  ],
  "compositeUniqueCandidates": [],
  "foreignKeys": [
    {"schema":"dbo","table":"OSUSR_ORDER","constraintName":"FK_ORDER_CUSTOMER","hasOrphan":true,"isNoCheck":false,
     "probeStatus":{"status":"succeeded"}}
  ]
}`

func TestLoadReader_ParsesAllFourSequences(t *testing.T) {
	res := LoadReader(strings.NewReader(sampleSnapshotJSON))
	if res.Failed() {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	snap := res.Value
	if len(snap.Columns) != 2 {
		t.Fatalf("expected 2 columns, got %d", len(snap.Columns))
	}
	if len(snap.UniqueCandidates) != 2 {
		t.Fatalf("expected 2 unique candidates, got %d", len(snap.UniqueCandidates))
	}
	if len(snap.ForeignKeys) != 1 {
		t.Fatalf("expected 1 foreign key reality, got %d", len(snap.ForeignKeys))
	}
	if snap.Columns[0].Probe.Kind != ProbeSucceeded {
		t.Errorf("expected probe kind succeeded, got %v", snap.Columns[0].Probe.Kind)
	}
}

func TestLoadReader_SkippedAndFailedProbes(t *testing.T) {
	const doc = `{
      "columns":[{"schema":"dbo","table":"T","column":"C","probeStatus":{"status":"skipped","reason":"timeout"}}],
      "uniqueCandidates":[],"compositeUniqueCandidates":[],
      "foreignKeys":[{"schema":"dbo","table":"T","constraintName":"FK1","probeStatus":{"status":"failed","reason":"denied"}}]
    }`
	res := LoadReader(strings.NewReader(doc))
	if res.Failed() {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if res.Value.Columns[0].Probe.Kind != ProbeSkipped || res.Value.Columns[0].Probe.Reason != "timeout" {
		t.Errorf("expected skipped probe with reason, got %+v", res.Value.Columns[0].Probe)
	}
	if res.Value.ForeignKeys[0].Probe.Kind != ProbeFailed || res.Value.ForeignKeys[0].Probe.Reason != "denied" {
		t.Errorf("expected failed probe with reason, got %+v", res.Value.ForeignKeys[0].Probe)
	}
}

func TestDeriveInsights_ZeroNullNotNullColumnProducesInfo(t *testing.T) {
	res := LoadReader(strings.NewReader(sampleSnapshotJSON))
	insights := DeriveInsights(res.Value)

	var sawColumnInfo, sawUniqueInfo, sawOrphanWarning bool
	for _, in := range insights {
		switch {
		case in.Coordinate != nil && in.Coordinate.Column == "ID" && in.Severity == SeverityInfo && strings.Contains(in.Message, "zero nulls"):
			sawColumnInfo = true
		case in.Coordinate != nil && in.Coordinate.Column == "ID" && strings.Contains(in.Message, "no duplicate"):
			sawUniqueInfo = true
		case in.Severity == SeverityWarning && strings.Contains(in.Message, "orphaned rows"):
			sawOrphanWarning = true
		}
	}
	if !sawColumnInfo {
		t.Errorf("expected zero-null info insight for ID column")
	}
	if !sawUniqueInfo {
		t.Errorf("expected clean-uniqueness info insight for ID column")
	}
	if !sawOrphanWarning {
		t.Errorf("expected orphan warning for FK_ORDER_CUSTOMER")
	}
}

func TestDeriveInsights_NullableColumnWithNullsProducesNoInfo(t *testing.T) {
	res := LoadReader(strings.NewReader(sampleSnapshotJSON))
	insights := DeriveInsights(res.Value)
	for _, in := range insights {
		if in.Coordinate != nil && in.Coordinate.Column == "CUSTOMERID" && in.Severity == SeverityInfo {
			t.Errorf("did not expect an info insight for a nullable column with observed nulls: %+v", in)
		}
	}
}

func TestDeriveInsights_IsDeterministicallyOrdered(t *testing.T) {
	res := LoadReader(strings.NewReader(sampleSnapshotJSON))
	first := DeriveInsights(res.Value)
	second := DeriveInsights(res.Value)
	if len(first) != len(second) {
		t.Fatalf("expected stable insight count across calls")
	}
	for i := range first {
		if first[i].Message != second[i].Message {
			t.Fatalf("expected stable insight ordering at index %d: %q vs %q", i, first[i].Message, second[i].Message)
		}
	}
}
