package policy

import (
	"testing"
	"time"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ids"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/model"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/profiling"
)

func sampleModel() model.OsmModel {
	return model.OsmModel{Modules: []model.Module{
		{Name: "Sales", IsActive: true, Entities: []model.Entity{
			{Module: "Sales", LogicalName: "Order", TableName: "OSUSR_ORDER", Schema: "dbo", IsActive: true,
				Attributes: []model.Attribute{
					{LogicalName: "Id", ColumnName: "ID", IsIdentifier: true, IsActive: true},
					{LogicalName: "CustomerId", ColumnName: "CUSTOMERID", IsActive: true},
				}},
		}},
	}}
}

func succeededProbe() profiling.ProbeStatus {
	return profiling.ProbeStatus{Kind: profiling.ProbeSucceeded, AtUtc: time.Now()}
}

func TestDecide_NullabilityTightenedWhenZeroNullsAndUnderBudget(t *testing.T) {
	m := sampleModel()
	snap := profiling.Snapshot{Columns: []profiling.Column{
		{Schema: "dbo", Table: "OSUSR_ORDER", Column: "CUSTOMERID", IsNullablePhysical: true, RowCount: 100, NullCount: 0, Probe: succeededProbe()},
	}}
	set, _, report := Decide(m, snap, Options{Mode: ModeEvidenceGated, NullBudget: map[string]float64{"default": 0}})

	coord := ids.ColumnCoordinate{Schema: "dbo", Table: "OSUSR_ORDER", Column: "CUSTOMERID"}
	dec, ok := set.Nullability[coord]
	if !ok || !dec.Tighten {
		t.Fatalf("expected nullability tightening decision for %s, got %+v (ok=%v)", coord, dec, ok)
	}
	if len(report.Safe) != 1 {
		t.Fatalf("expected 1 safe opportunity, got %d", len(report.Safe))
	}
}

func TestDecide_NullabilityWithinBudgetYieldsNeedsRemediation(t *testing.T) {
	m := sampleModel()
	snap := profiling.Snapshot{Columns: []profiling.Column{
		{Schema: "dbo", Table: "OSUSR_ORDER", Column: "CUSTOMERID", IsNullablePhysical: true, RowCount: 100, NullCount: 5, Probe: succeededProbe()},
	}}
	set, _, report := Decide(m, snap, Options{Mode: ModeEvidenceGated, NullBudget: map[string]float64{"default": 0.1}})

	coord := ids.ColumnCoordinate{Schema: "dbo", Table: "OSUSR_ORDER", Column: "CUSTOMERID"}
	dec, ok := set.Nullability[coord]
	if !ok || !dec.Tighten || dec.Disposition != DispositionNeedsRemediation {
		t.Fatalf("expected NeedsRemediation nullability decision for %s, got %+v (ok=%v)", coord, dec, ok)
	}
	if len(report.NeedsRemediation) != 1 || report.NeedsRemediation[0].RemediationSql == "" {
		t.Fatalf("expected 1 needs-remediation opportunity with remediation SQL, got %+v", report.NeedsRemediation)
	}
	if len(report.Safe) != 0 {
		t.Fatalf("expected no safe opportunities, got %d", len(report.Safe))
	}
}

func TestDecide_NullabilityOverBudgetSkipped(t *testing.T) {
	m := sampleModel()
	snap := profiling.Snapshot{Columns: []profiling.Column{
		{Schema: "dbo", Table: "OSUSR_ORDER", Column: "CUSTOMERID", IsNullablePhysical: true, RowCount: 100, NullCount: 50, Probe: succeededProbe()},
	}}
	set, _, report := Decide(m, snap, Options{Mode: ModeEvidenceGated, NullBudget: map[string]float64{"default": 0.1}})

	coord := ids.ColumnCoordinate{Schema: "dbo", Table: "OSUSR_ORDER", Column: "CUSTOMERID"}
	if _, ok := set.Nullability[coord]; ok {
		t.Fatalf("expected no nullability decision for a column over budget")
	}
	if len(report.Opportunities) != 0 {
		t.Fatalf("expected no opportunities, got %d", len(report.Opportunities))
	}
}

func TestDecide_ForeignKeyOrphanYieldsNeedsRemediation(t *testing.T) {
	m := sampleModel()
	snap := profiling.Snapshot{ForeignKeys: []profiling.ForeignKeyReality{
		{Reference: ids.RelationshipConstraintKey{Schema: "dbo", Table: "OSUSR_ORDER", ConstraintName: "FK_ORDER_CUSTOMER"},
			HasOrphan: true, Probe: succeededProbe()},
	}}
	set, _, report := Decide(m, snap, Options{Mode: ModeEvidenceGated})

	key := ids.RelationshipConstraintKey{Schema: "dbo", Table: "OSUSR_ORDER", ConstraintName: "FK_ORDER_CUSTOMER"}
	dec, ok := set.ForeignKeys[key]
	if !ok || dec.Enforce || dec.Disposition != DispositionNeedsRemediation {
		t.Fatalf("expected NeedsRemediation, non-enforced FK decision, got %+v (ok=%v)", dec, ok)
	}
	if len(report.NeedsRemediation) != 1 {
		t.Fatalf("expected 1 needs-remediation opportunity, got %d", len(report.NeedsRemediation))
	}
	if report.NeedsRemediation[0].Risk != RiskHigh {
		t.Errorf("expected High risk for Contradiction/NeedsRemediation, got %s", report.NeedsRemediation[0].Risk)
	}
	if len(report.Safe) != 0 {
		t.Errorf("needs-remediation opportunity must not affect the safe bundle")
	}
}

func TestDecide_NoCheckForeignKeyIsInformational(t *testing.T) {
	m := sampleModel()
	snap := profiling.Snapshot{ForeignKeys: []profiling.ForeignKeyReality{
		{Reference: ids.RelationshipConstraintKey{Schema: "dbo", Table: "OSUSR_ORDER", ConstraintName: "FK_ORDER_CUSTOMER"},
			IsNoCheck: true, Probe: succeededProbe()},
	}}
	_, _, report := Decide(m, snap, Options{Mode: ModeEvidenceGated})
	if len(report.Informational) != 1 {
		t.Fatalf("expected 1 informational opportunity, got %d", len(report.Informational))
	}
	if report.Informational[0].Risk != RiskMedium {
		t.Errorf("expected Medium risk (warning-severity diagnostic), got %s", report.Informational[0].Risk)
	}
}

func TestDecide_CompositeUniquenessOnlyInAggressiveMode(t *testing.T) {
	m := sampleModel()
	snap := profiling.Snapshot{CompositeUniqueCandidates: []profiling.CompositeUniqueCandidate{
		{Schema: "dbo", Table: "OSUSR_ORDER", Columns: []ids.ColumnName{"ID", "CUSTOMERID"}},
	}}

	_, _, evidenceGatedReport := Decide(m, snap, Options{Mode: ModeEvidenceGated})
	if len(evidenceGatedReport.Safe) != 0 {
		t.Errorf("expected no composite uniqueness opportunities in EvidenceGated mode")
	}

	_, _, aggressiveReport := Decide(m, snap, Options{Mode: ModeAggressive})
	found := false
	for _, o := range aggressiveReport.Safe {
		if o.Type == "uniqueness.composite" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a composite uniqueness opportunity in Aggressive mode")
	}
}

func TestDecide_TogglePrecedence(t *testing.T) {
	m := sampleModel()
	snap := profiling.Snapshot{}
	configFalse := false
	overrideTrue := true

	set, _, _ := Decide(m, snap, Options{
		Mode:            ModeEvidenceGated,
		ConfigToggles:   map[string]bool{toggleNullabilityEnabled: configFalse},
		OverrideToggles: map[string]bool{toggleNullabilityEnabled: overrideTrue},
	})

	tv, ok := set.Toggles.Get(toggleNullabilityEnabled)
	if !ok {
		t.Fatalf("expected toggle to be recorded")
	}
	if tv.Source != ToggleSourceOverride || tv.Value != true {
		t.Errorf("expected override to win precedence, got %+v", tv)
	}
}
