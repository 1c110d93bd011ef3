package depgraph

import (
	"sort"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ids"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/model"
)

// ViolationKind discriminates the two violation shapes (spec §4.6).
type ViolationKind string

const (
	ViolationChildBeforeParent ViolationKind = "ChildBeforeParent"
	ViolationMissingParent     ViolationKind = "MissingParent"
)

// Violation is one ordering violation found by Validate.
type Violation struct {
	Kind           ViolationKind
	ChildTable     ids.TableName
	ParentTable    ids.TableName
	ForeignKeyName string
	ChildPosition  int
	ParentPosition int // -1 for MissingParent
}

// ValidationResult is the TopologicalOrderingValidationResult of spec §4.6.
type ValidationResult struct {
	IsValid              bool
	Violations           []Violation
	TotalEntities        int
	TotalForeignKeys     int
	MissingEdges         int
	ValidatedConstraints int
	SkippedConstraints   int
	CycleDetected        bool
	Cycles               []Cycle
}

// Validate checks order (a sequence of effective table names) against m:
// every relationship with hasDatabaseConstraint=true contributes either a
// validated constraint (hydrated columns) or a skipped one (unhydrated);
// validated constraints are checked for position and parent presence.
func Validate(order []ids.TableName, m model.OsmModel, resolve NameResolver) ValidationResult {
	if resolve == nil {
		resolve = Identity
	}

	position := map[string]int{}
	for i, t := range order {
		position[t.Fold()] = i
	}

	var result ValidationResult
	result.TotalEntities = len(order)
	result.IsValid = true

	for _, e := range m.AllEntities() {
		if !e.IsStatic {
			continue
		}
		child := resolve(e.TableName)
		for _, rel := range e.Relationships {
			if !rel.HasDatabaseConstraint {
				continue
			}
			for _, c := range rel.ActualConstraints {
				if !c.IsHydrated() {
					result.SkippedConstraints++
					continue
				}
				result.ValidatedConstraints++
				result.TotalForeignKeys++

				parentTable := c.ReferencedTable
				if parentTable.Empty() {
					parentTable = rel.ToTable
				}
				parent := resolve(parentTable)
				if parent.Fold() == child.Fold() {
					continue // self-edge ignored
				}

				fkName := ids.DisplayConstraintName(c.Name)
				childPos, childFound := position[child.Fold()]
				if !childFound {
					childPos = -1
				}
				parentPos, parentFound := position[parent.Fold()]
				if !parentFound {
					result.MissingEdges++
					result.Violations = append(result.Violations, Violation{
						Kind: ViolationMissingParent, ChildTable: child, ParentTable: parent,
						ForeignKeyName: fkName, ChildPosition: childPos, ParentPosition: -1,
					})
					continue
				}
				if childFound && childPos < parentPos {
					result.IsValid = false
					result.CycleDetected = true
					result.Violations = append(result.Violations, Violation{
						Kind: ViolationChildBeforeParent, ChildTable: child, ParentTable: parent,
						ForeignKeyName: fkName, ChildPosition: childPos, ParentPosition: parentPos,
					})
				}
			}
		}
	}

	sort.SliceStable(result.Violations, func(i, j int) bool {
		return result.Violations[i].ChildPosition < result.Violations[j].ChildPosition
	})

	return result
}
