// Package profiling loads a profile snapshot (spec §3, "Profile snapshot")
// and derives deterministic insights from it (spec §4.2).
package profiling

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ids"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/result"
)

// ProbeStatusKind is the discriminant of ProbeStatus.
type ProbeStatusKind string

const (
	ProbeSucceeded ProbeStatusKind = "succeeded"
	ProbeSkipped   ProbeStatusKind = "skipped"
	ProbeFailed    ProbeStatusKind = "failed"
)

// ProbeStatus is one of Succeeded(atUtc, sampled), Skipped(reason),
// Failed(reason) (spec §3).
type ProbeStatus struct {
	Kind    ProbeStatusKind
	AtUtc   time.Time
	Sampled bool
	Reason  string
}

// Column is one profiled physical column.
type Column struct {
	Schema            ids.SchemaName
	Table             ids.TableName
	Column            ids.ColumnName
	IsNullablePhysical bool
	IsComputed        bool
	IsPrimaryKey      bool
	IsUniqueKey       bool
	DefaultDefinition string
	RowCount          int64
	NullCount         int64
	Probe             ProbeStatus
}

func (c Column) Coordinate() ids.ColumnCoordinate {
	return ids.ColumnCoordinate{Schema: c.Schema, Table: c.Table, Column: c.Column}
}

// UniqueCandidate is one single-column uniqueness witness.
type UniqueCandidate struct {
	Schema      ids.SchemaName
	Table       ids.TableName
	Column      ids.ColumnName
	HasDuplicate bool
	Probe       ProbeStatus
}

func (u UniqueCandidate) Coordinate() ids.ColumnCoordinate {
	return ids.ColumnCoordinate{Schema: u.Schema, Table: u.Table, Column: u.Column}
}

// CompositeUniqueCandidate is a multi-column uniqueness witness.
type CompositeUniqueCandidate struct {
	Schema  ids.SchemaName
	Table   ids.TableName
	Columns []ids.ColumnName
}

// ForeignKeyReality is the observed reality of one relationship's FK.
type ForeignKeyReality struct {
	Reference ids.RelationshipConstraintKey
	HasOrphan bool
	IsNoCheck bool
	Probe     ProbeStatus
}

// Snapshot is the full profile capture: four parallel sequences.
type Snapshot struct {
	Columns                   []Column
	UniqueCandidates          []UniqueCandidate
	CompositeUniqueCandidates []CompositeUniqueCandidate
	ForeignKeys               []ForeignKeyReality
}

// ColumnsByCoordinate indexes Columns by their coordinate's fold key.
func (s Snapshot) ColumnsByCoordinate() map[string]Column {
	out := make(map[string]Column, len(s.Columns))
	for _, c := range s.Columns {
		out[c.Coordinate().Key()] = c
	}
	return out
}

// rawSnapshot mirrors spec §6's profile JSON.
type rawSnapshot struct {
	Columns                   []rawColumn          `json:"columns"`
	UniqueCandidates          []rawUniqueCandidate  `json:"uniqueCandidates"`
	CompositeUniqueCandidates []rawComposite        `json:"compositeUniqueCandidates"`
	ForeignKeys               []rawForeignKey       `json:"foreignKeys"`
}

type rawProbe struct {
	Status  string `json:"status"`
	AtUtc   string `json:"atUtc,omitempty"`
	Sampled bool   `json:"sampled,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type rawColumn struct {
	Schema            string   `json:"schema"`
	Table             string   `json:"table"`
	Column            string   `json:"column"`
	IsNullablePhysical bool    `json:"isNullablePhysical"`
	IsComputed        bool     `json:"isComputed"`
	IsPrimaryKey      bool     `json:"isPrimaryKey"`
	IsUniqueKey       bool     `json:"isUniqueKey"`
	DefaultDefinition string   `json:"defaultDefinition,omitempty"`
	RowCount          int64    `json:"rowCount"`
	NullCount         int64    `json:"nullCount"`
	ProbeStatus       rawProbe `json:"probeStatus"`
}

type rawUniqueCandidate struct {
	Schema       string   `json:"schema"`
	Table        string   `json:"table"`
	Column       string   `json:"column"`
	HasDuplicate bool     `json:"hasDuplicate"`
	ProbeStatus  rawProbe `json:"probeStatus"`
}

type rawComposite struct {
	Schema  string   `json:"schema"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

type rawForeignKey struct {
	Schema         string   `json:"schema"`
	Table          string   `json:"table"`
	ConstraintName string   `json:"constraintName"`
	HasOrphan      bool     `json:"hasOrphan"`
	IsNoCheck      bool     `json:"isNoCheck"`
	ProbeStatus    rawProbe `json:"probeStatus"`
}

func fromRawProbe(p rawProbe) ProbeStatus {
	at, _ := time.Parse(time.RFC3339, p.AtUtc)
	switch p.Status {
	case "succeeded":
		return ProbeStatus{Kind: ProbeSucceeded, AtUtc: at, Sampled: p.Sampled}
	case "skipped":
		return ProbeStatus{Kind: ProbeSkipped, Reason: p.Reason}
	default:
		return ProbeStatus{Kind: ProbeFailed, Reason: p.Reason}
	}
}

// Load reads a profile snapshot from a fixture path.
func Load(path string) result.Of[Snapshot] {
	f, err := os.Open(path) // #nosec G304 - path supplied by operator/config
	if err != nil {
		return result.Fail[Snapshot](result.Withf("profiling.fixture.missing", err.Error(), "path", path))
	}
	defer f.Close()
	return LoadReader(f)
}

// LoadReader reads a profile snapshot from r.
func LoadReader(r io.Reader) result.Of[Snapshot] {
	var raw rawSnapshot
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return result.Fail[Snapshot](result.New("profiling.capture.failed", err.Error()))
	}

	var snap Snapshot
	for _, rc := range raw.Columns {
		snap.Columns = append(snap.Columns, Column{
			Schema: ids.SchemaName(rc.Schema), Table: ids.TableName(rc.Table), Column: ids.ColumnName(rc.Column),
			IsNullablePhysical: rc.IsNullablePhysical, IsComputed: rc.IsComputed,
			IsPrimaryKey: rc.IsPrimaryKey, IsUniqueKey: rc.IsUniqueKey,
			DefaultDefinition: rc.DefaultDefinition, RowCount: rc.RowCount, NullCount: rc.NullCount,
			Probe: fromRawProbe(rc.ProbeStatus),
		})
	}
	for _, ru := range raw.UniqueCandidates {
		snap.UniqueCandidates = append(snap.UniqueCandidates, UniqueCandidate{
			Schema: ids.SchemaName(ru.Schema), Table: ids.TableName(ru.Table), Column: ids.ColumnName(ru.Column),
			HasDuplicate: ru.HasDuplicate, Probe: fromRawProbe(ru.ProbeStatus),
		})
	}
	for _, rc := range raw.CompositeUniqueCandidates {
		cols := make([]ids.ColumnName, 0, len(rc.Columns))
		for _, c := range rc.Columns {
			cols = append(cols, ids.ColumnName(c))
		}
		snap.CompositeUniqueCandidates = append(snap.CompositeUniqueCandidates, CompositeUniqueCandidate{
			Schema: ids.SchemaName(rc.Schema), Table: ids.TableName(rc.Table), Columns: cols,
		})
	}
	for _, rf := range raw.ForeignKeys {
		snap.ForeignKeys = append(snap.ForeignKeys, ForeignKeyReality{
			Reference: ids.RelationshipConstraintKey{
				Schema: ids.SchemaName(rf.Schema), Table: ids.TableName(rf.Table), ConstraintName: rf.ConstraintName,
			},
			HasOrphan: rf.HasOrphan, IsNoCheck: rf.IsNoCheck, Probe: fromRawProbe(rf.ProbeStatus),
		})
	}

	return result.Ok(snap)
}

// Severity is an insight's severity level.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Category classifies an insight's origin.
type Category string

const (
	CategoryEvidence Category = "evidence"
)

// Insight is one deterministic observation derived from a snapshot.
type Insight struct {
	Severity   Severity
	Category   Category
	Message    string
	Coordinate *ids.ColumnCoordinate
}

// DeriveInsights produces the minimum deterministic insight set required by
// spec §4.2: one per zero-null-count non-nullable-eligible column, one per
// clean unique candidate, one per problematic FK reality.
func DeriveInsights(snap Snapshot) []Insight {
	var out []Insight

	cols := append([]Column(nil), snap.Columns...)
	sort.Slice(cols, func(i, j int) bool { return cols[i].Coordinate().Key() < cols[j].Coordinate().Key() })
	for _, c := range cols {
		if c.NullCount == 0 && !c.IsNullablePhysical {
			coord := c.Coordinate()
			out = append(out, Insight{
				Severity: SeverityInfo, Category: CategoryEvidence, Coordinate: &coord,
				Message: fmt.Sprintf("%s: zero nulls observed and column already NOT NULL", coord),
			})
		}
	}

	uniq := append([]UniqueCandidate(nil), snap.UniqueCandidates...)
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].Coordinate().Key() < uniq[j].Coordinate().Key() })
	for _, u := range uniq {
		if !u.HasDuplicate {
			coord := u.Coordinate()
			out = append(out, Insight{
				Severity: SeverityInfo, Category: CategoryEvidence, Coordinate: &coord,
				Message: fmt.Sprintf("%s: no duplicate values observed", coord),
			})
		}
	}

	fks := append([]ForeignKeyReality(nil), snap.ForeignKeys...)
	sort.Slice(fks, func(i, j int) bool { return fks[i].Reference.Key() < fks[j].Reference.Key() })
	for _, fk := range fks {
		if fk.HasOrphan || fk.IsNoCheck {
			sev := SeverityWarning
			msg := fmt.Sprintf("%s: ", fk.Reference)
			switch {
			case fk.HasOrphan && fk.IsNoCheck:
				msg += "orphaned rows present and constraint is NOCHECK"
			case fk.HasOrphan:
				msg += "orphaned rows present"
			default:
				msg += "constraint is NOCHECK"
			}
			out = append(out, Insight{Severity: sev, Category: CategoryEvidence, Message: msg})
		}
	}

	return out
}
