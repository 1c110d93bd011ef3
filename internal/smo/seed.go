package smo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ids"
)

// SynchronizationMode selects the static seed script's preamble (spec §4.5).
type SynchronizationMode string

const (
	SyncNonDestructive  SynchronizationMode = "NonDestructive"
	SyncValidateThenApply SynchronizationMode = "ValidateThenApply"
	SyncAuthoritative   SynchronizationMode = "Authoritative"
)

// StaticEntityTableData is one static entity's row data, as returned by a
// StaticEntityDataProvider.
type StaticEntityTableData struct {
	Table SmoTable
	Rows  []map[ids.ColumnName]any
}

// StaticEntityDataProvider resolves row data for the static entities named
// in definitions. Concrete drivers live outside this module.
type StaticEntityDataProvider interface {
	GetData(definitions []SmoTable) ([]StaticEntityTableData, error)
}

// SeedOptions configures GenerateSeeds.
type SeedOptions struct {
	OutputDirectory      string
	GroupByModule        bool
	EmitMasterFile       bool
	SynchronizationMode  SynchronizationMode
}

// SeedResult is what GenerateSeeds wrote to disk.
type SeedResult struct {
	ModuleFiles []string
	MasterFile  string
	Order       []ids.TableName
}

// formatLiteral renders a Go value as a T-SQL literal, honoring common
// physical types (a minimal SqlLiteralFormatter, spec §4.5).
func formatLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case int, int32, int64, float32, float64:
		return fmt.Sprintf("%v", val)
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", val), "'", "''") + "'"
	}
}

func preamble(mode SynchronizationMode, table ids.TableName, schema ids.SchemaName) string {
	switch mode {
	case SyncAuthoritative:
		return fmt.Sprintf("TRUNCATE TABLE [%s].[%s];\n", schema, table)
	case SyncValidateThenApply:
		return fmt.Sprintf("-- ValidateThenApply: rows below are applied only if pre-validation succeeds\n")
	default: // NonDestructive
		return ""
	}
}

func renderInsert(mode SynchronizationMode, table SmoTable, row map[ids.ColumnName]any) string {
	var cols []string
	var vals []string
	var colNames []ids.ColumnName
	for _, c := range table.Columns {
		colNames = append(colNames, c.Name)
	}
	sort.Slice(colNames, func(i, j int) bool { return strings.ToLower(string(colNames[i])) < strings.ToLower(string(colNames[j])) })
	for _, c := range colNames {
		cols = append(cols, fmt.Sprintf("[%s]", c))
		vals = append(vals, formatLiteral(row[c]))
	}
	insert := fmt.Sprintf("INSERT INTO [%s].[%s] (%s) VALUES (%s);", table.Schema, table.EffectiveTableName, strings.Join(cols, ", "), strings.Join(vals, ", "))

	switch mode {
	case SyncValidateThenApply:
		return fmt.Sprintf("IF NOT EXISTS (SELECT 1 FROM [%s].[%s]) %s", table.Schema, table.EffectiveTableName, insert)
	default:
		return insert
	}
}

// GenerateSeeds renders INSERT statements for every static table in order,
// per spec §4.5's groupByModule/emitMasterFile/synchronizationMode options.
func GenerateSeeds(sm SmoModel, provider StaticEntityDataProvider, order []ids.TableName, opts SeedOptions) (SeedResult, error) {
	var staticTables []SmoTable
	for _, t := range sm.Tables {
		if t.IsStatic {
			staticTables = append(staticTables, t)
		}
	}

	data, err := provider.GetData(staticTables)
	if err != nil {
		return SeedResult{}, fmt.Errorf("staticData.seed.provider.failed: %w", err)
	}
	byTable := map[string]StaticEntityTableData{}
	for _, d := range data {
		byTable[d.Table.EffectiveTableName.Fold()] = d
	}

	orderedTables := orderTables(staticTables, order)

	result := SeedResult{Order: make([]ids.TableName, 0, len(orderedTables))}
	var masterBuilder strings.Builder
	moduleBuilders := map[string]*strings.Builder{}
	entitySections := map[string]string{}

	for _, t := range orderedTables {
		result.Order = append(result.Order, t.EffectiveTableName)
		d, ok := byTable[t.EffectiveTableName.Fold()]
		if !ok {
			continue
		}
		var section strings.Builder
		section.WriteString(preamble(opts.SynchronizationMode, t.EffectiveTableName, t.Schema))
		for _, row := range d.Rows {
			section.WriteString(renderInsert(opts.SynchronizationMode, t, row))
			section.WriteString("\n")
		}

		entitySections[t.EffectiveTableName.Fold()] = section.String()
		if opts.GroupByModule {
			mb, ok := moduleBuilders[t.Module.Fold()]
			if !ok {
				mb = &strings.Builder{}
				moduleBuilders[t.Module.Fold()] = mb
			}
			mb.WriteString(section.String())
		}
		masterBuilder.WriteString(section.String())
	}

	if opts.GroupByModule {
		var moduleNames []string
		for k := range moduleBuilders {
			moduleNames = append(moduleNames, k)
		}
		sort.Strings(moduleNames)
		for _, modFold := range moduleNames {
			path := filepath.Join(opts.OutputDirectory, "Seeds", modFold+".seed.sql")
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return result, fmt.Errorf("staticData.seed.io.failed: %w", err)
			}
			if err := os.WriteFile(path, []byte(moduleBuilders[modFold].String()), 0o644); err != nil { // #nosec G306 - generated seed SQL
				return result, fmt.Errorf("staticData.seed.io.failed: %w", err)
			}
			result.ModuleFiles = append(result.ModuleFiles, path)
		}
	} else {
		// Ungrouped mode: one seed file per entity, per spec §6's
		// output/Seeds/<module>.<entity>.seed.sql naming convention.
		for _, t := range orderedTables {
			content, ok := entitySections[t.EffectiveTableName.Fold()]
			if !ok {
				continue
			}
			path := filepath.Join(opts.OutputDirectory, "Seeds", fmt.Sprintf("%s.%s.seed.sql", t.Module, t.LogicalName))
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				return result, fmt.Errorf("staticData.seed.io.failed: %w", err)
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil { // #nosec G306 - generated seed SQL
				return result, fmt.Errorf("staticData.seed.io.failed: %w", err)
			}
			result.ModuleFiles = append(result.ModuleFiles, path)
		}
	}

	if opts.EmitMasterFile {
		path := filepath.Join(opts.OutputDirectory, "BaselineSeeds", "StaticEntities.seed.sql")
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return result, fmt.Errorf("staticData.seed.io.failed: %w", err)
		}
		if err := os.WriteFile(path, []byte(masterBuilder.String()), 0o644); err != nil { // #nosec G306 - generated seed SQL
			return result, fmt.Errorf("staticData.seed.io.failed: %w", err)
		}
		result.MasterFile = path
	}

	return result, nil
}

// orderTables arranges staticTables per order (effective table names),
// appending any tables absent from order at the end, alphabetically.
func orderTables(staticTables []SmoTable, order []ids.TableName) []SmoTable {
	byName := map[string]SmoTable{}
	for _, t := range staticTables {
		byName[t.EffectiveTableName.Fold()] = t
	}
	var out []SmoTable
	seen := map[string]bool{}
	for _, name := range order {
		if t, ok := byName[name.Fold()]; ok {
			out = append(out, t)
			seen[name.Fold()] = true
		}
	}
	var rest []SmoTable
	for _, t := range staticTables {
		if !seen[t.EffectiveTableName.Fold()] {
			rest = append(rest, t)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		return strings.ToLower(string(rest[i].EffectiveTableName)) < strings.ToLower(string(rest[j].EffectiveTableName))
	})
	return append(out, rest...)
}
