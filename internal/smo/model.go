package smo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ids"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/model"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/policy"
)

// TypeMappingPolicy maps a logical data type to a physical SQL type.
// Callers may supply a richer implementation; DefaultTypeMapping covers the
// common OutSystems scalar types.
type TypeMappingPolicy func(dataType string) string

// DefaultTypeMapping is a minimal logical-to-physical type mapping covering
// common OutSystems scalar types, used when no override is supplied.
func DefaultTypeMapping(dataType string) string {
	switch strings.ToLower(dataType) {
	case "int", "integer", "identifier", "autonumber":
		return "INT"
	case "longinteger", "long integer":
		return "BIGINT"
	case "text", "identifier_text":
		return "NVARCHAR(MAX)"
	case "decimal", "currency":
		return "DECIMAL(28,8)"
	case "boolean":
		return "BIT"
	case "datetime", "date", "time":
		return "DATETIME2"
	case "binarydata":
		return "VARBINARY(MAX)"
	default:
		return "NVARCHAR(MAX)"
	}
}

// SmoColumn is one column in the in-memory model handed to the emitter.
type SmoColumn struct {
	Name       ids.ColumnName
	PhysicalType string
	Nullable   bool
	IsIdentity bool
}

// SmoIndex is one index in the in-memory model.
type SmoIndex struct {
	Name     string
	Columns  []ids.ColumnName
	IsUnique bool
}

// SmoForeignKey is one enforced-or-not foreign key in the in-memory model.
type SmoForeignKey struct {
	Name            string
	Columns         []ids.ColumnName
	ReferencedTable ids.TableName
	ReferencedColumns []ids.ColumnName
	Enforced        bool
}

// SmoTable is one physical table in the in-memory model.
type SmoTable struct {
	Module            ids.ModuleName
	EffectiveTableName ids.TableName
	Schema            ids.SchemaName
	LogicalName       ids.EntityName
	IsStatic          bool
	IsExternal        bool
	Columns           []SmoColumn
	Indexes           []SmoIndex
	ForeignKeys       []SmoForeignKey
}

// SmoModel is the full in-memory representation handed to the emitter.
type SmoModel struct {
	Tables       []SmoTable
	ModuleFolders map[string]string // module fold -> disambiguated folder name
	ModuleRemaps []ModuleRemap
}

// Build translates (filteredModel, decisions, namingOverrides,
// typeMapping) into a SmoModel per spec §4.5.
func Build(m model.OsmModel, decisions policy.DecisionSet, overrides NamingOverrideOptions, typeMapping TypeMappingPolicy) SmoModel {
	if typeMapping == nil {
		typeMapping = DefaultTypeMapping
	}

	folders, remaps := DisambiguateModuleFolders(m.Modules)
	out := SmoModel{ModuleFolders: folders, ModuleRemaps: remaps}

	for _, mod := range m.Modules {
		for _, e := range mod.Entities {
			effective := overrides.EffectiveTableName(e)
			table := SmoTable{
				Module: mod.Name, EffectiveTableName: effective, Schema: e.Schema,
				LogicalName: e.LogicalName, IsStatic: e.IsStatic, IsExternal: e.IsExternal,
			}

			for _, a := range e.Attributes {
				coord := ids.ColumnCoordinate{Schema: e.Schema, Table: e.TableName, Column: a.ColumnName}
				nullable := !a.IsMandatory
				if dec, ok := decisions.Nullability[coord]; ok && dec.Tighten {
					nullable = false
				}
				table.Columns = append(table.Columns, SmoColumn{
					Name: a.ColumnName, PhysicalType: typeMapping(a.DataType), Nullable: nullable, IsIdentity: a.IsIdentifier,
				})
			}

			for _, idx := range e.Indexes {
				idxCoord := ids.IndexCoordinate{Schema: e.Schema, Table: e.TableName, Index: idx.Name}
				unique := idx.IsUnique
				if dec, ok := decisions.Uniqueness[idxCoord]; ok {
					unique = dec.Enforce
				}
				table.Indexes = append(table.Indexes, SmoIndex{Name: idx.Name, Columns: idx.Columns, IsUnique: unique})
			}

			for _, rel := range e.Relationships {
				if !rel.IsForeignKey() {
					continue
				}
				for _, c := range rel.ActualConstraints {
					if !c.IsHydrated() {
						continue
					}
					key := ids.RelationshipConstraintKey{Schema: e.Schema, Table: e.TableName, ConstraintName: c.Name}
					enforced := true
					if dec, ok := decisions.ForeignKeys[key]; ok {
						enforced = dec.Enforce
					}
					var ownerCols, refCols []ids.ColumnName
					for _, col := range c.HydratedColumns() {
						ownerCols = append(ownerCols, col.OwnerColumn)
						refCols = append(refCols, col.ReferencedColumn)
					}
					table.ForeignKeys = append(table.ForeignKeys, SmoForeignKey{
						Name: ids.DisplayConstraintName(c.Name), Columns: ownerCols,
						ReferencedTable: c.ReferencedTable, ReferencedColumns: refCols, Enforced: enforced,
					})
				}
			}

			out.Tables = append(out.Tables, table)
		}
	}

	sort.Slice(out.Tables, func(i, j int) bool {
		return strings.ToLower(string(out.Tables[i].EffectiveTableName)) < strings.ToLower(string(out.Tables[j].EffectiveTableName))
	})

	return out
}

// CreateTableScript renders t's CREATE TABLE statement, deterministically.
func CreateTableScript(t SmoTable) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE [%s].[%s] (\n", t.Schema, t.EffectiveTableName)

	var fkLines []string
	for _, fk := range t.ForeignKeys {
		if !fk.Enforced {
			continue
		}
		fkLines = append(fkLines, fmt.Sprintf("    CONSTRAINT [%s] FOREIGN KEY (%s) REFERENCES [%s](%s)",
			fk.Name, quotedList(fk.Columns), fk.ReferencedTable, quotedList(fk.ReferencedColumns)))
	}

	for i, c := range t.Columns {
		nullability := "NOT NULL"
		if c.Nullable {
			nullability = "NULL"
		}
		identity := ""
		if c.IsIdentity {
			identity = " IDENTITY(1,1)"
		}
		comma := ","
		if i == len(t.Columns)-1 && len(fkLines) == 0 {
			comma = ""
		}
		fmt.Fprintf(&b, "    [%s] %s%s %s%s\n", c.Name, c.PhysicalType, identity, nullability, comma)
	}
	for i, line := range fkLines {
		comma := ","
		if i == len(fkLines)-1 {
			comma = ""
		}
		fmt.Fprintf(&b, "%s%s\n", line, comma)
	}
	b.WriteString(");\n")
	for _, idx := range t.Indexes {
		kind := "INDEX"
		if idx.IsUnique {
			kind = "UNIQUE INDEX"
		}
		fmt.Fprintf(&b, "CREATE %s [%s] ON [%s].[%s] (%s);\n", kind, idx.Name, t.Schema, t.EffectiveTableName, quotedList(idx.Columns))
	}
	return b.String()
}

func quotedList(cols []ids.ColumnName) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("[%s]", c)
	}
	return strings.Join(parts, ", ")
}
