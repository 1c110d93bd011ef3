// Package policy implements the tightening policy engine (spec §4.4):
// deciding per-column nullability, per-index uniqueness, and per-relationship
// foreign-key enforcement from evidence and policy knobs.
package policy

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ids"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/model"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/profiling"
)

// Mode selects how aggressively the engine proposes tightening.
type Mode string

const (
	ModeEvidenceGated Mode = "EvidenceGated"
	ModeAggressive    Mode = "Aggressive"
)

// Disposition is the outcome bucket for a decision or opportunity.
type Disposition string

const (
	DispositionSafe             Disposition = "Safe"
	DispositionNeedsRemediation Disposition = "NeedsRemediation"
	DispositionInformational    Disposition = "Informational"
)

// Options configures one Decide call (TighteningOptions, spec §4.4).
type Options struct {
	Mode Mode
	// NullBudget maps a category name to the maximum tolerated null
	// fraction still eligible for tightening consideration; "default"
	// applies when a column's module has no dedicated entry.
	NullBudget map[string]float64
	// ConfigToggles/OverrideToggles carry configuration- and
	// override-sourced knob values, keyed by stable toggle key. Absent
	// keys fall back to built-in defaults.
	ConfigToggles   map[string]bool
	OverrideToggles map[string]bool
}

func (o Options) configToggle(key string) *bool {
	if v, ok := o.ConfigToggles[key]; ok {
		return &v
	}
	return nil
}

func (o Options) overrideToggle(key string) *bool {
	if v, ok := o.OverrideToggles[key]; ok {
		return &v
	}
	return nil
}

func (o Options) nullBudget(category string) float64 {
	if v, ok := o.NullBudget[category]; ok {
		return v
	}
	if v, ok := o.NullBudget["default"]; ok {
		return v
	}
	return 0
}

const (
	toggleNullabilityEnabled = "nullability.enabled"
	toggleUniquenessEnabled  = "uniqueness.enabled"
	toggleForeignKeyEnabled  = "foreignKey.enabled"
	toggleCompositeUnique    = "uniqueness.compositeEnforced"
)

// NullabilityDecision is the engine's per-column nullability proposal.
type NullabilityDecision struct {
	Coordinate  ids.ColumnCoordinate
	Tighten     bool
	Disposition Disposition
	Rationale   string
}

// UniqueIndexDecision is the engine's per-index uniqueness proposal.
type UniqueIndexDecision struct {
	Coordinate  ids.IndexCoordinate
	Enforce     bool
	Disposition Disposition
	Rationale   string
}

// ForeignKeyDecision is the engine's per-relationship FK enforcement proposal.
type ForeignKeyDecision struct {
	Reference   ids.RelationshipConstraintKey
	Enforce     bool
	Disposition Disposition
	Rationale   string
}

// TighteningDiagnostic is a non-fatal signal surfaced alongside decisions.
type TighteningDiagnostic struct {
	Code       string
	Severity   profiling.Severity
	Message    string
	Coordinate *ids.ColumnCoordinate
}

// DecisionSet is the PolicyDecisionSet of spec §3.
type DecisionSet struct {
	Nullability map[ids.ColumnCoordinate]NullabilityDecision
	Uniqueness  map[ids.IndexCoordinate]UniqueIndexDecision
	ForeignKeys map[ids.RelationshipConstraintKey]ForeignKeyDecision
	Diagnostics []TighteningDiagnostic
	IdentityMap map[string]string
	RenameMap   map[string]string
	Toggles     TighteningToggleSnapshot
}

// DecisionReport is the human/log-facing rendering of a DecisionSet.
type DecisionReport struct {
	Decisions   DecisionSet
	Toggles     TighteningToggleSnapshot
	Diagnostics []TighteningDiagnostic
}

// Category classifies an Opportunity's origin (spec §3).
type Category string

const (
	CategoryContradiction Category = "Contradiction"
	CategoryTightening    Category = "Tightening"
	CategoryCoverage      Category = "Coverage"
)

// Risk is the closed Low/Medium/High domain fixed for Opportunity.risk.
type Risk string

const (
	RiskLow    Risk = "Low"
	RiskMedium Risk = "Medium"
	RiskHigh   Risk = "High"
)

// riskFor derives Opportunity.risk deterministically from (category,
// disposition), per the closed-form rule: NeedsRemediation+Contradiction is
// High, NeedsRemediation+Tightening is Medium, every Safe opportunity is
// Low, and Informational carries Low unless warningSeverity is set.
func riskFor(category Category, disposition Disposition, warningSeverity bool) Risk {
	switch disposition {
	case DispositionSafe:
		return RiskLow
	case DispositionNeedsRemediation:
		if category == CategoryContradiction {
			return RiskHigh
		}
		return RiskMedium
	case DispositionInformational:
		if warningSeverity {
			return RiskMedium
		}
		return RiskLow
	default:
		return RiskLow
	}
}

// Opportunity is one emitted (id, category, type, disposition, risk, target,
// rationale, remediationSql, safeSql) tuple (spec §3).
type Opportunity struct {
	ID             string
	Category       Category
	Type           string
	Disposition    Disposition
	Risk           Risk
	Target         string
	Rationale      string
	RemediationSql string
	SafeSql        string
}

// Report is the OpportunitiesReport of spec §3: opportunities partitioned by
// disposition, plus the safe/needs-remediation SQL bundles.
type Report struct {
	Opportunities    []Opportunity
	Safe             []Opportunity
	NeedsRemediation []Opportunity
	Informational    []Opportunity
	SafeSql          string
	RemediationSql   string
}

// newUUID is overridable in tests for deterministic opportunity IDs.
var newUUID = func() string { return uuid.NewString() }

// Decide transforms (m, snapshot, opts) into a DecisionSet, DecisionReport,
// and Report per spec §4.4.
func Decide(m model.OsmModel, snap profiling.Snapshot, opts Options) (DecisionSet, DecisionReport, Report) {
	set := DecisionSet{
		Nullability: map[ids.ColumnCoordinate]NullabilityDecision{},
		Uniqueness:  map[ids.IndexCoordinate]UniqueIndexDecision{},
		ForeignKeys: map[ids.RelationshipConstraintKey]ForeignKeyDecision{},
		IdentityMap: map[string]string{},
		RenameMap:   map[string]string{},
		Toggles:     NewToggleSnapshot(),
	}

	nullabilityOn := set.Toggles.resolve(toggleNullabilityEnabled, true, opts.configToggle(toggleNullabilityEnabled), opts.overrideToggle(toggleNullabilityEnabled))
	uniquenessOn := set.Toggles.resolve(toggleUniquenessEnabled, true, opts.configToggle(toggleUniquenessEnabled), opts.overrideToggle(toggleUniquenessEnabled))
	fkOn := set.Toggles.resolve(toggleForeignKeyEnabled, true, opts.configToggle(toggleForeignKeyEnabled), opts.overrideToggle(toggleForeignKeyEnabled))
	compositeOn := set.Toggles.resolve(toggleCompositeUnique, opts.Mode == ModeAggressive, opts.configToggle(toggleCompositeUnique), opts.overrideToggle(toggleCompositeUnique))

	columnsByCoord := snap.ColumnsByCoordinate()

	var opportunities []Opportunity

	if nullabilityOn && (opts.Mode == ModeEvidenceGated || opts.Mode == ModeAggressive) {
		for _, mod := range m.Modules {
			for _, e := range mod.Entities {
				for _, a := range e.Attributes {
					coord := ids.ColumnCoordinate{Schema: e.Schema, Table: e.TableName, Column: a.ColumnName}
					col, found := columnsByCoord[coord.Key()]
					if !found {
						continue
					}
					if col.Probe.Kind != profiling.ProbeSucceeded {
						set.Diagnostics = append(set.Diagnostics, TighteningDiagnostic{
							Code: "policy.nullability.profileUnavailable", Severity: profiling.SeverityWarning,
							Message: fmt.Sprintf("%s: profile skipped because probe failed or was skipped", coord), Coordinate: &coord,
						})
						continue
					}
					if col.IsComputed || !col.IsNullablePhysical {
						continue
					}

					budget := opts.nullBudget(string(mod.Name))
					fraction := 0.0
					if col.RowCount > 0 {
						fraction = float64(col.NullCount) / float64(col.RowCount)
					}
					if col.NullCount > 0 && fraction > budget {
						continue
					}

					if col.NullCount == 0 {
						dec := NullabilityDecision{Coordinate: coord, Tighten: true, Disposition: DispositionSafe,
							Rationale: fmt.Sprintf("%s=true: zero observed nulls and budget not exceeded", toggleNullabilityEnabled)}
						set.Nullability[coord] = dec
						opportunities = append(opportunities, Opportunity{
							ID: newUUID(), Category: CategoryTightening, Type: "nullability", Disposition: DispositionSafe,
							Risk: riskFor(CategoryTightening, DispositionSafe, false), Target: coord.String(), Rationale: dec.Rationale,
							SafeSql: fmt.Sprintf("ALTER TABLE [%s].[%s] ALTER COLUMN [%s] SET NOT NULL;", coord.Schema, coord.Table, coord.Column),
						})
					} else {
						dec := NullabilityDecision{Coordinate: coord, Tighten: true, Disposition: DispositionNeedsRemediation,
							Rationale: fmt.Sprintf("%s=true: %d observed null row(s) within budget require remediation before enforcing NOT NULL", toggleNullabilityEnabled, col.NullCount)}
						set.Nullability[coord] = dec
						opportunities = append(opportunities, Opportunity{
							ID: newUUID(), Category: CategoryTightening, Type: "nullability", Disposition: DispositionNeedsRemediation,
							Risk: riskFor(CategoryTightening, DispositionNeedsRemediation, false), Target: coord.String(), Rationale: dec.Rationale,
							RemediationSql: fmt.Sprintf("-- repair %d observed null row(s) in %s before enforcing NOT NULL\nUPDATE [%s].[%s] SET [%s] = <default> WHERE [%s] IS NULL; -- operator-authored default required",
								col.NullCount, coord, coord.Schema, coord.Table, coord.Column, coord.Column),
						})
					}
				}
			}
		}
	}

	if uniquenessOn {
		for _, u := range snap.UniqueCandidates {
			idxCoord := ids.IndexCoordinate{Schema: u.Schema, Table: u.Table, Index: "UX_" + string(u.Column)}
			if u.Probe.Kind != profiling.ProbeSucceeded {
				set.Diagnostics = append(set.Diagnostics, TighteningDiagnostic{
					Code: "policy.uniqueness.profileUnavailable", Severity: profiling.SeverityWarning,
					Message: fmt.Sprintf("%s: uniqueness probe unavailable", idxCoord),
				})
				continue
			}
			enforce := !u.HasDuplicate
			dec := UniqueIndexDecision{Coordinate: idxCoord, Enforce: enforce, Disposition: DispositionSafe,
				Rationale: fmt.Sprintf("%s=true: no duplicate values observed", toggleUniquenessEnabled)}
			if !enforce {
				dec.Disposition = DispositionInformational
				dec.Rationale = "duplicate values observed; uniqueness not enforced"
			}
			set.Uniqueness[idxCoord] = dec
			if enforce {
				opportunities = append(opportunities, Opportunity{
					ID: newUUID(), Category: CategoryTightening, Type: "uniqueness", Disposition: DispositionSafe,
					Risk: riskFor(CategoryTightening, DispositionSafe, false), Target: idxCoord.String(), Rationale: dec.Rationale,
					SafeSql: fmt.Sprintf("CREATE UNIQUE INDEX [%s] ON [%s].[%s] ([%s]);", idxCoord.Index, idxCoord.Schema, idxCoord.Table, u.Column),
				})
			}
		}
		if compositeOn && opts.Mode == ModeAggressive {
			for _, c := range snap.CompositeUniqueCandidates {
				name := "UX_" + joinColumns(c.Columns)
				idxCoord := ids.IndexCoordinate{Schema: c.Schema, Table: c.Table, Index: name}
				dec := UniqueIndexDecision{Coordinate: idxCoord, Enforce: true, Disposition: DispositionSafe,
					Rationale: fmt.Sprintf("%s=true in Aggressive mode: composite uniqueness enforced", toggleCompositeUnique)}
				set.Uniqueness[idxCoord] = dec
				opportunities = append(opportunities, Opportunity{
					ID: newUUID(), Category: CategoryTightening, Type: "uniqueness.composite", Disposition: DispositionSafe,
					Risk: riskFor(CategoryTightening, DispositionSafe, false), Target: idxCoord.String(), Rationale: dec.Rationale,
					SafeSql: fmt.Sprintf("CREATE UNIQUE INDEX [%s] ON [%s].[%s] (%s);", name, c.Schema, c.Table, quotedColumnList(c.Columns)),
				})
			}
		}
	}

	if fkOn {
		for _, fk := range snap.ForeignKeys {
			switch {
			case fk.Probe.Kind != profiling.ProbeSucceeded:
				set.Diagnostics = append(set.Diagnostics, TighteningDiagnostic{
					Code: "policy.foreignKey.profileUnavailable", Severity: profiling.SeverityWarning,
					Message: fmt.Sprintf("%s: foreign key probe unavailable", fk.Reference),
				})
			case !fk.HasOrphan && !fk.IsNoCheck:
				dec := ForeignKeyDecision{Reference: fk.Reference, Enforce: true, Disposition: DispositionSafe,
					Rationale: fmt.Sprintf("%s=true: no orphaned rows and constraint already checked", toggleForeignKeyEnabled)}
				set.ForeignKeys[fk.Reference] = dec
				opportunities = append(opportunities, Opportunity{
					ID: newUUID(), Category: CategoryTightening, Type: "foreignKey", Disposition: DispositionSafe,
					Risk: riskFor(CategoryTightening, DispositionSafe, false), Target: fk.Reference.String(), Rationale: dec.Rationale,
					SafeSql: fmt.Sprintf("ALTER TABLE [%s].[%s] WITH CHECK CHECK CONSTRAINT [%s];", fk.Reference.Schema, fk.Reference.Table, fk.Reference.ConstraintName),
				})
			case fk.HasOrphan:
				dec := ForeignKeyDecision{Reference: fk.Reference, Enforce: false, Disposition: DispositionNeedsRemediation,
					Rationale: "orphaned rows present; enforcement requires remediation"}
				set.ForeignKeys[fk.Reference] = dec
				opportunities = append(opportunities, Opportunity{
					ID: newUUID(), Category: CategoryContradiction, Type: "foreignKey.orphan", Disposition: DispositionNeedsRemediation,
					Risk: riskFor(CategoryContradiction, DispositionNeedsRemediation, false), Target: fk.Reference.String(), Rationale: dec.Rationale,
					RemediationSql: fmt.Sprintf("-- repair orphaned rows referencing %s before enforcing %s\nDELETE FROM [%s].[%s] WHERE 1=0; -- operator-authored repair required",
						fk.Reference, fk.Reference.ConstraintName, fk.Reference.Schema, fk.Reference.Table),
				})
			case fk.IsNoCheck:
				dec := ForeignKeyDecision{Reference: fk.Reference, Enforce: false, Disposition: DispositionInformational,
					Rationale: "constraint is NOCHECK; left untouched"}
				set.ForeignKeys[fk.Reference] = dec
				opportunities = append(opportunities, Opportunity{
					ID: newUUID(), Category: CategoryCoverage, Type: "foreignKey.nocheck", Disposition: DispositionInformational,
					Risk: riskFor(CategoryCoverage, DispositionInformational, true), Target: fk.Reference.String(), Rationale: dec.Rationale,
				})
			}
		}
	}

	sort.Slice(opportunities, func(i, j int) bool { return opportunities[i].Target < opportunities[j].Target })

	report := DecisionReport{Decisions: set, Toggles: set.Toggles, Diagnostics: set.Diagnostics}
	oppReport := buildReport(opportunities)
	return set, report, oppReport
}

func buildReport(opportunities []Opportunity) Report {
	r := Report{Opportunities: opportunities}
	var safeSQL, remediationSQL []string
	for _, o := range opportunities {
		switch o.Disposition {
		case DispositionSafe:
			r.Safe = append(r.Safe, o)
			if o.SafeSql != "" {
				safeSQL = append(safeSQL, o.SafeSql)
			}
		case DispositionNeedsRemediation:
			r.NeedsRemediation = append(r.NeedsRemediation, o)
			if o.RemediationSql != "" {
				remediationSQL = append(remediationSQL, o.RemediationSql)
			}
		case DispositionInformational:
			r.Informational = append(r.Informational, o)
		}
	}
	r.SafeSql = joinSQL(safeSQL)
	r.RemediationSql = joinSQL(remediationSQL)
	return r
}

func joinSQL(stmts []string) string {
	out := ""
	for i, s := range stmts {
		if i > 0 {
			out += "\n"
		}
		out += s
	}
	return out
}

func joinColumns(cols []ids.ColumnName) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += "_"
		}
		out += string(c)
	}
	return out
}

func quotedColumnList(cols []ids.ColumnName) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += "[" + string(c) + "]"
	}
	return out
}
