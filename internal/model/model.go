// Package model defines the logical application model (spec §3, "Logical
// model (OsmModel)"): modules, entities, attributes, relationships, indexes,
// and triggers, plus the invariants that govern them.
package model

import (
	"strings"
	"time"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ids"
)

// DeleteRule mirrors the delete-rule codes carried on relationships.
type DeleteRule string

const (
	DeleteRuleNone     DeleteRule = "none"
	DeleteRuleCascade  DeleteRule = "cascade"
	DeleteRuleProtect  DeleteRule = "protect"
	DeleteRuleSetNull  DeleteRule = "set_null"
	DeleteRuleUnknown  DeleteRule = "unknown"
)

// ActualConstraintColumn is one ordinal position within an ActualConstraint.
type ActualConstraintColumn struct {
	OwnerColumn        ids.ColumnName
	OwnerAttribute     ids.AttributeName
	ReferencedColumn   ids.ColumnName
	ReferencedAttribute ids.AttributeName
	Ordinal            int
}

// Hydrated reports whether this column pair carries real physical names
// (spec §3 invariant 2 / GLOSSARY "Hydrated constraint").
func (c ActualConstraintColumn) Hydrated() bool {
	return !c.OwnerColumn.Empty() && !c.ReferencedColumn.Empty()
}

// ActualConstraint is one observed foreign-key constraint on a relationship.
// Name may be blank (spec: an unnamed FK surfaces as "<unnamed>").
type ActualConstraint struct {
	Name             string
	ReferencedSchema ids.SchemaName
	ReferencedTable  ids.TableName
	OnDelete         string
	OnUpdate         string
	Columns          []ActualConstraintColumn
}

// HydratedColumns returns the subset of Columns that carry non-empty owner
// and referenced column names, in their stored order (not re-sorted by
// Ordinal).
func (c ActualConstraint) HydratedColumns() []ActualConstraintColumn {
	out := make([]ActualConstraintColumn, 0, len(c.Columns))
	for _, col := range c.Columns {
		if col.Hydrated() {
			out = append(out, col)
		}
	}
	return out
}

// IsHydrated reports whether at least one column pair is hydrated.
func (c ActualConstraint) IsHydrated() bool {
	return len(c.HydratedColumns()) > 0
}

// DisplayName returns c.Name, or the "<unnamed>" sentinel when blank.
func (c ActualConstraint) DisplayName() string {
	return ids.DisplayConstraintName(c.Name)
}

// Relationship describes one attribute's reference to another entity.
type Relationship struct {
	ViaAttribute          ids.AttributeName
	ToEntity              ids.EntityName
	ToTable               ids.TableName
	DeleteRuleCode        DeleteRule
	HasDatabaseConstraint bool
	ActualConstraints     []ActualConstraint
}

// IsForeignKey reports whether this relationship is a real FK per spec §3
// invariant 2: HasDatabaseConstraint AND at least one hydrated constraint.
func (r Relationship) IsForeignKey() bool {
	if !r.HasDatabaseConstraint {
		return false
	}
	for _, c := range r.ActualConstraints {
		if c.IsHydrated() {
			return true
		}
	}
	return false
}

// UnhydratedConstraints returns constraints (possibly zero) that carry no
// hydrated column pairs — candidates for hydration (§4.1). Constraints with
// a blank name are included; callers decide whether to skip them.
func (r Relationship) UnhydratedConstraints() []ActualConstraint {
	var out []ActualConstraint
	for _, c := range r.ActualConstraints {
		if !c.IsHydrated() {
			out = append(out, c)
		}
	}
	return out
}

// Reality captures observed/physical facts about an attribute that the
// logical model alone would not carry.
type Reality struct {
	ObservedDefault  string
	ObservedDataType string
}

// Reference is the optional FK-like pointer carried directly on an attribute.
type Reference struct {
	ToEntity              ids.EntityName
	ToTable               ids.TableName
	DeleteRuleCode        DeleteRule
	HasDatabaseConstraint bool
}

// Metadata is free-form on-disk metadata preserved for round-tripping.
type Metadata map[string]string

// Attribute is one column-bearing field of an Entity.
type Attribute struct {
	LogicalName  ids.AttributeName
	ColumnName   ids.ColumnName
	DataType     string
	IsMandatory  bool
	IsIdentifier bool
	IsAutoNumber bool
	IsActive     bool
	Reference    *Reference
	Reality      Reality
	Metadata     Metadata
}

// Index is a named index over one or more columns.
type Index struct {
	Name     string
	Columns  []ids.ColumnName
	IsUnique bool
}

// Trigger is an opaque, preserved-as-is database trigger definition.
type Trigger struct {
	Name       string
	Definition string
}

// Entity is one physical table and its logical metadata.
type Entity struct {
	Module       ids.ModuleName
	LogicalName  ids.EntityName
	TableName    ids.TableName
	Schema       ids.SchemaName
	Catalog      string
	IsStatic     bool
	IsExternal   bool
	IsActive     bool
	Attributes   []Attribute
	Indexes      []Index
	Relationships []Relationship
	Triggers     []Trigger
	Metadata     Metadata
}

// DuplicateColumnNames returns physical column names shared by more than one
// attribute (spec §3 invariant 3 — a warning condition, never a drop).
func (e Entity) DuplicateColumnNames() []ids.ColumnName {
	seen := map[string]int{}
	order := []string{}
	for _, a := range e.Attributes {
		key := a.ColumnName.Fold()
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		}
		seen[key]++
	}
	var dups []ids.ColumnName
	for _, key := range order {
		if seen[key] > 1 {
			for _, a := range e.Attributes {
				if a.ColumnName.Fold() == key {
					dups = append(dups, a.ColumnName)
					break
				}
			}
		}
	}
	return dups
}

// IdentifierAttributes returns attributes flagged IsIdentifier, in order.
func (e Entity) IdentifierAttributes() []Attribute {
	var out []Attribute
	for _, a := range e.Attributes {
		if a.IsIdentifier {
			out = append(out, a)
		}
	}
	return out
}

// ForeignKeyRelationships returns the subset of Relationships that qualify
// as foreign keys per Relationship.IsForeignKey.
func (e Entity) ForeignKeyRelationships() []Relationship {
	var out []Relationship
	for _, r := range e.Relationships {
		if r.IsForeignKey() {
			out = append(out, r)
		}
	}
	return out
}

// EffectiveTableName returns the table name to use absent any naming
// override — callers applying NamingOverrideOptions should prefer the
// resolved name from that package instead.
func (e Entity) EffectiveTableName() ids.TableName { return e.TableName }

// Module is a named grouping of entities.
type Module struct {
	Name       ids.ModuleName
	IsSystem   bool
	IsActive   bool
	IsEmpty    bool // computed: true if Entities is empty after filtering
	Entities   []Entity
}

// OsmModel is the top-level logical model.
type OsmModel struct {
	ExportedAtUtc time.Time
	Modules       []Module
}

// AllEntities returns every entity across every module, preserving module
// and within-module insertion order (spec §3 invariant 4).
func (m OsmModel) AllEntities() []Entity {
	var out []Entity
	for _, mod := range m.Modules {
		out = append(out, mod.Entities...)
	}
	return out
}

// FindEntityByTable returns the entity whose TableName matches (case
// insensitive), and whether it was found.
func (m OsmModel) FindEntityByTable(schema ids.SchemaName, table ids.TableName) (Entity, bool) {
	for _, e := range m.AllEntities() {
		if e.Schema.EqualFold(schema) && e.TableName.EqualFold(table) {
			return e, true
		}
	}
	return Entity{}, false
}

// SortModulesByName returns a copy of m with Modules sorted case-insensitively
// by name — only used when explicitly requested (spec §4.1).
func (m OsmModel) SortModulesByName() OsmModel {
	out := m
	out.Modules = append([]Module(nil), m.Modules...)
	sortModules(out.Modules)
	return out
}

func sortModules(mods []Module) {
	for i := 1; i < len(mods); i++ {
		for j := i; j > 0 && strings.ToLower(string(mods[j-1].Name)) > strings.ToLower(string(mods[j].Name)); j-- {
			mods[j-1], mods[j] = mods[j], mods[j-1]
		}
	}
}
