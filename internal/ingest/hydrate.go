package ingest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ids"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/model"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/result"
)

// ForeignKeyColumnMetadata is one hydrated column pair for a named
// constraint, as returned by a RelationshipConstraintMetadataProvider
// (spec §6).
type ForeignKeyColumnMetadata struct {
	Key                 ids.RelationshipConstraintKey
	Ordinal             int
	OwnerColumn         ids.ColumnName
	ReferencedColumn    ids.ColumnName
	ReferencedSchema    ids.SchemaName
	ReferencedTable     ids.TableName
}

// RelationshipConstraintMetadataProvider is the external collaborator that
// resolves unhydrated FK constraint columns from a live metadata source
// (spec §6). Concrete drivers live outside this module; only the contract
// is specified here.
type RelationshipConstraintMetadataProvider interface {
	Load(keys []ids.RelationshipConstraintKey) ([]ForeignKeyColumnMetadata, error)
}

// Hydrate enriches m's relationships by calling provider for every
// unhydrated constraint, grouped by (schema, table, constraintName) per
// spec §4.1. Constraints whose name is blank/whitespace are skipped with a
// warning and left unhydrated.
func Hydrate(m model.OsmModel, provider RelationshipConstraintMetadataProvider) result.Of[model.OsmModel] {
	var warnings []string

	keySet := map[string]ids.RelationshipConstraintKey{}
	for _, mod := range m.Modules {
		for _, e := range mod.Entities {
			for _, rel := range e.Relationships {
				for _, c := range rel.UnhydratedConstraints() {
					if strings.TrimSpace(c.Name) == "" {
						warnings = append(warnings, fmt.Sprintf(
							"entity %q: skipping hydration for constraint with blank name", e.LogicalName))
						continue
					}
					key := ids.RelationshipConstraintKey{Schema: e.Schema, Table: e.TableName, ConstraintName: c.Name}
					keySet[key.Key()] = key
				}
			}
		}
	}

	if len(keySet) == 0 {
		return result.OkWithWarnings(m, warnings)
	}

	keys := make([]ids.RelationshipConstraintKey, 0, len(keySet))
	for _, k := range keySet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Key() < keys[j].Key() })

	rows, err := provider.Load(keys)
	if err != nil {
		return result.Fail[model.OsmModel](result.New("model.load.failed", "hydration provider: "+err.Error()))
	}

	byKey := map[string][]ForeignKeyColumnMetadata{}
	for _, row := range rows {
		byKey[row.Key.Key()] = append(byKey[row.Key.Key()], row)
	}
	for k, group := range byKey {
		cp := append([]ForeignKeyColumnMetadata(nil), group...)
		sort.Slice(cp, func(i, j int) bool { return cp[i].Ordinal < cp[j].Ordinal })
		byKey[k] = cp
	}

	out := m
	out.Modules = make([]model.Module, len(m.Modules))
	for mi, mod := range m.Modules {
		outMod := mod
		outMod.Entities = make([]model.Entity, len(mod.Entities))
		for ei, e := range mod.Entities {
			outEntity := e
			outEntity.Relationships = make([]model.Relationship, len(e.Relationships))
			for ri, rel := range e.Relationships {
				outRel := rel
				outRel.ActualConstraints = make([]model.ActualConstraint, len(rel.ActualConstraints))
				for ci, c := range rel.ActualConstraints {
					if c.IsHydrated() || strings.TrimSpace(c.Name) == "" {
						outRel.ActualConstraints[ci] = c
						continue
					}
					key := ids.RelationshipConstraintKey{Schema: e.Schema, Table: e.TableName, ConstraintName: c.Name}
					rowsForKey, found := byKey[key.Key()]
					if !found || len(rowsForKey) == 0 {
						warnings = append(warnings, fmt.Sprintf(
							"entity %q: constraint %q requested hydration but provider returned no rows; kept as skipped constraint",
							e.LogicalName, c.Name))
						outRel.ActualConstraints[ci] = c
						continue
					}
					hydrated := c
					hydrated.Columns = nil
					if hydrated.ReferencedSchema.Empty() && len(rowsForKey) > 0 {
						hydrated.ReferencedSchema = rowsForKey[0].ReferencedSchema
					}
					if hydrated.ReferencedTable.Empty() && len(rowsForKey) > 0 {
						hydrated.ReferencedTable = rowsForKey[0].ReferencedTable
					}
					for _, row := range rowsForKey {
						hydrated.Columns = append(hydrated.Columns, model.ActualConstraintColumn{
							OwnerColumn:      row.OwnerColumn,
							ReferencedColumn: row.ReferencedColumn,
							Ordinal:          row.Ordinal,
						})
					}
					outRel.ActualConstraints[ci] = hydrated
				}
				outEntity.Relationships[ri] = outRel
			}
			outMod.Entities[ei] = outEntity
		}
		out.Modules[mi] = outMod
	}

	return result.OkWithWarnings(out, warnings)
}
