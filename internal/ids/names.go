// Package ids provides the strongly-typed, case-insensitive name and
// coordinate values shared across the model, evidence, policy, and emission
// packages (spec §3, "Names and identifiers").
package ids

import "strings"

// ModuleName is a validated, case-insensitive module identifier.
type ModuleName string

// EntityName is a validated, case-insensitive logical entity identifier.
type EntityName string

// TableName is a validated, case-insensitive physical table identifier.
type TableName string

// SchemaName is a validated, case-insensitive database schema identifier.
type SchemaName string

// AttributeName is a validated, case-insensitive logical attribute identifier.
type AttributeName string

// ColumnName is a validated, case-insensitive physical column identifier.
type ColumnName string

// Empty reports whether the name is empty after trimming whitespace.
func (n ModuleName) Empty() bool    { return strings.TrimSpace(string(n)) == "" }
func (n EntityName) Empty() bool    { return strings.TrimSpace(string(n)) == "" }
func (n TableName) Empty() bool     { return strings.TrimSpace(string(n)) == "" }
func (n SchemaName) Empty() bool    { return strings.TrimSpace(string(n)) == "" }
func (n AttributeName) Empty() bool { return strings.TrimSpace(string(n)) == "" }
func (n ColumnName) Empty() bool    { return strings.TrimSpace(string(n)) == "" }

// EqualFold reports case-insensitive equality for each name type.
func (n ModuleName) EqualFold(other ModuleName) bool { return foldEq(string(n), string(other)) }
func (n EntityName) EqualFold(other EntityName) bool { return foldEq(string(n), string(other)) }
func (n TableName) EqualFold(other TableName) bool   { return foldEq(string(n), string(other)) }
func (n SchemaName) EqualFold(other SchemaName) bool { return foldEq(string(n), string(other)) }
func (n ColumnName) EqualFold(other ColumnName) bool { return foldEq(string(n), string(other)) }

func foldEq(a, b string) bool { return strings.EqualFold(a, b) }

// Fold returns a canonical lower-case form suitable for use as a map key
// when case-insensitive lookup is required (Go maps are case-sensitive by
// default, so every lookup table keyed by a name type below uses Fold()).
func (n ModuleName) Fold() string    { return strings.ToLower(string(n)) }
func (n EntityName) Fold() string    { return strings.ToLower(string(n)) }
func (n TableName) Fold() string     { return strings.ToLower(string(n)) }
func (n SchemaName) Fold() string    { return strings.ToLower(string(n)) }
func (n AttributeName) Fold() string { return strings.ToLower(string(n)) }
func (n ColumnName) Fold() string    { return strings.ToLower(string(n)) }

// ColumnCoordinate identifies a physical column within a schema/table.
type ColumnCoordinate struct {
	Schema SchemaName
	Table  TableName
	Column ColumnName
}

// Key returns a case-folded string usable as a map key.
func (c ColumnCoordinate) Key() string {
	return c.Schema.Fold() + "." + c.Table.Fold() + "." + c.Column.Fold()
}

func (c ColumnCoordinate) String() string {
	return string(c.Schema) + "." + string(c.Table) + "." + string(c.Column)
}

// IndexCoordinate identifies a named index within a schema/table.
type IndexCoordinate struct {
	Schema SchemaName
	Table  TableName
	Index  string
}

// Key returns a case-folded string usable as a map key.
func (c IndexCoordinate) Key() string {
	return c.Schema.Fold() + "." + c.Table.Fold() + "." + strings.ToLower(c.Index)
}

func (c IndexCoordinate) String() string {
	return string(c.Schema) + "." + string(c.Table) + "." + c.Index
}

// RelationshipConstraintKey identifies a named foreign-key constraint within
// a schema/table.
type RelationshipConstraintKey struct {
	Schema         SchemaName
	Table          TableName
	ConstraintName string
}

// Key returns a case-folded string usable as a map key.
func (k RelationshipConstraintKey) Key() string {
	return k.Schema.Fold() + "." + k.Table.Fold() + "." + strings.ToLower(k.ConstraintName)
}

func (k RelationshipConstraintKey) String() string {
	return string(k.Schema) + "." + string(k.Table) + "." + k.ConstraintName
}

// UnnamedConstraint is the literal string the validator (spec §4.6) must
// surface in place of an empty constraint name.
const UnnamedConstraint = "<unnamed>"

// DisplayConstraintName returns the constraint name, or UnnamedConstraint if
// it is blank.
func DisplayConstraintName(name string) string {
	if strings.TrimSpace(name) == "" {
		return UnnamedConstraint
	}
	return name
}
