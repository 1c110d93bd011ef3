// Package ingest loads the logical model (spec §4.1): parses the model JSON,
// validates structure, filters by module/entity selection, merges
// supplemental entities, and optionally hydrates foreign-key column metadata
// from a live metadata provider.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ids"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/model"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/result"
)

// Options controls filtering and sorting applied while loading a model.
type Options struct {
	// Modules, if non-empty, restricts the result to these module names
	// (case-insensitive). Empty means "all modules".
	Modules []string
	// IncludeSystem includes modules flagged IsSystem. Default false.
	IncludeSystem bool
	// IncludeInactive includes modules/entities flagged inactive. Default false.
	IncludeInactive bool
	// SortModulesByName requests case-insensitive sort by module name
	// (spec §4.1: "only when explicitly requested").
	SortModulesByName bool
}

// Load reads and parses a model JSON file at path, applying Options.
func Load(path string, opts Options) result.Of[model.OsmModel] {
	f, err := os.Open(path) // #nosec G304 - path supplied by operator/config
	if err != nil {
		return result.Fail[model.OsmModel](result.Withf(
			"model.load.failed", err.Error(), "path", path))
	}
	defer f.Close()
	return LoadReader(f, opts)
}

// LoadReader reads and parses a model JSON document from r, applying Options.
func LoadReader(r io.Reader, opts Options) result.Of[model.OsmModel] {
	var raw rawModel
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return result.Fail[model.OsmModel](result.New("model.load.failed", err.Error()))
	}
	return fromRaw(raw, opts)
}

func fromRaw(raw rawModel, opts Options) result.Of[model.OsmModel] {
	var warnings []string
	var errs result.Errors

	exportedAt, _ := time.Parse(time.RFC3339, raw.ExportedAtUtc)

	moduleFilter := map[string]bool{}
	for _, m := range opts.Modules {
		moduleFilter[strings.ToLower(m)] = true
	}

	out := model.OsmModel{ExportedAtUtc: exportedAt}

	if len(raw.Modules) == 0 {
		warnings = append(warnings, "no modules")
	}

	for _, rm := range raw.Modules {
		if len(moduleFilter) > 0 && !moduleFilter[strings.ToLower(rm.Name)] {
			continue
		}
		if rm.IsSystem && !opts.IncludeSystem {
			continue
		}
		if !rm.IsActive && !opts.IncludeInactive {
			continue
		}

		mod := model.Module{
			Name:     ids.ModuleName(rm.Name),
			IsSystem: rm.IsSystem,
			IsActive: rm.IsActive,
		}

		for _, re := range rm.Entities {
			if !re.IsActive && !opts.IncludeInactive {
				continue
			}
			entity, entWarnings, err := fromRawEntity(rm.Name, re, opts.IncludeInactive)
			if err != nil {
				errs = append(errs, *err)
				continue
			}
			warnings = append(warnings, entWarnings...)
			mod.Entities = append(mod.Entities, entity)
		}

		if len(mod.Entities) == 0 {
			mod.IsEmpty = true
			warnings = append(warnings, fmt.Sprintf("module %q has no entities", rm.Name))
			continue
		}

		out.Modules = append(out.Modules, mod)
	}

	if errs.HasAny() {
		return result.FailWith(out, errs...)
	}

	if opts.SortModulesByName {
		out = out.SortModulesByName()
	}

	return result.OkWithWarnings(out, warnings)
}

func fromRawEntity(moduleName string, re rawEntity, includeInactive bool) (model.Entity, []string, *result.Error) {
	if re.Attributes == nil || re.Relationships == nil || re.Indexes == nil || re.Triggers == nil {
		err := result.Withf("extraction.sql.contract.entityArray",
			fmt.Sprintf("entity %q has a null attributes/relationships/indexes/triggers array", re.Name),
			"entity", re.Name)
		return model.Entity{}, nil, &err
	}

	var warnings []string

	entity := model.Entity{
		Module:      ids.ModuleName(moduleName),
		LogicalName: ids.EntityName(re.Name),
		TableName:   ids.TableName(re.PhysicalName),
		Schema:      ids.SchemaName(re.Schema),
		Catalog:     re.Catalog,
		IsStatic:    re.IsStatic,
		IsExternal:  re.IsExternal,
		IsActive:    re.IsActive,
		Metadata:    model.Metadata(re.Metadata),
	}

	for _, ra := range *re.Attributes {
		if !ra.IsActive && !includeInactive {
			continue
		}
		entity.Attributes = append(entity.Attributes, fromRawAttribute(ra))
	}

	if len(*re.Attributes) > 0 && len(entity.Attributes) == 0 {
		err := result.Withf("entity.attributes.empty",
			fmt.Sprintf("entity %q has zero attributes after filtering", re.Name),
			"entity", re.Name)
		return model.Entity{}, nil, &err
	}

	for _, name := range entity.DuplicateColumnNames() {
		warnings = append(warnings, fmt.Sprintf(
			"entity %q: duplicate physical column name %q across attributes", re.Name, name))
	}

	for _, rr := range *re.Relationships {
		entity.Relationships = append(entity.Relationships, fromRawRelationship(rr))
	}

	for _, ri := range *re.Indexes {
		entity.Indexes = append(entity.Indexes, model.Index{
			Name:     ri.Name,
			Columns:  toColumnNames(ri.Columns),
			IsUnique: ri.IsUnique,
		})
	}

	for _, rt := range *re.Triggers {
		entity.Triggers = append(entity.Triggers, model.Trigger{Name: rt.Name, Definition: rt.Definition})
	}

	return entity, warnings, nil
}

func fromRawAttribute(ra rawAttribute) model.Attribute {
	a := model.Attribute{
		LogicalName:  ids.AttributeName(ra.LogicalName),
		ColumnName:   ids.ColumnName(ra.ColumnName),
		DataType:     ra.DataType,
		IsMandatory:  ra.IsMandatory,
		IsIdentifier: ra.IsIdentifier,
		IsAutoNumber: ra.IsAutoNumber,
		IsActive:     ra.IsActive,
		Reality: model.Reality{
			ObservedDefault:  ra.ObservedDefault,
			ObservedDataType: ra.ObservedDataType,
		},
		Metadata: model.Metadata(ra.Metadata),
	}
	if ra.Reference != nil {
		a.Reference = &model.Reference{
			ToEntity:              ids.EntityName(ra.Reference.ToEntity),
			ToTable:               ids.TableName(ra.Reference.ToTable),
			DeleteRuleCode:        model.DeleteRule(ra.Reference.DeleteRuleCode),
			HasDatabaseConstraint: ra.Reference.HasDatabaseConstraint,
		}
	}
	return a
}

func fromRawRelationship(rr rawRelationship) model.Relationship {
	rel := model.Relationship{
		ViaAttribute:          ids.AttributeName(rr.ViaAttribute),
		ToEntity:              ids.EntityName(rr.ToEntity),
		ToTable:               ids.TableName(rr.ToTable),
		DeleteRuleCode:        model.DeleteRule(rr.DeleteRuleCode),
		HasDatabaseConstraint: rr.HasDatabaseConstraint,
	}
	for _, rc := range rr.ActualConstraints {
		c := model.ActualConstraint{
			Name:             rc.Name,
			ReferencedSchema: ids.SchemaName(rc.ReferencedSchema),
			ReferencedTable:  ids.TableName(rc.ReferencedTable),
			OnDelete:         rc.OnDelete,
			OnUpdate:         rc.OnUpdate,
		}
		for _, cc := range rc.Columns {
			c.Columns = append(c.Columns, model.ActualConstraintColumn{
				OwnerColumn:         ids.ColumnName(cc.OwnerColumn),
				OwnerAttribute:      ids.AttributeName(cc.OwnerAttribute),
				ReferencedColumn:    ids.ColumnName(cc.ReferencedColumn),
				ReferencedAttribute: ids.AttributeName(cc.ReferencedAttribute),
				Ordinal:             cc.Ordinal,
			})
		}
		rel.ActualConstraints = append(rel.ActualConstraints, c)
	}
	return rel
}

func toColumnNames(ss []string) []ids.ColumnName {
	out := make([]ids.ColumnName, 0, len(ss))
	for _, s := range ss {
		out = append(out, ids.ColumnName(s))
	}
	return out
}

// MergeSupplemental merges additional entities into base. An entity already
// present (matched by module + logical name, case-insensitive) is replaced;
// otherwise it is appended to its module, creating the module if necessary.
func MergeSupplemental(base model.OsmModel, supplemental []model.Entity) model.OsmModel {
	out := base
	out.Modules = append([]model.Module(nil), base.Modules...)

	for _, se := range supplemental {
		idx := findModule(out.Modules, se.Module)
		if idx == -1 {
			out.Modules = append(out.Modules, model.Module{Name: se.Module, IsActive: true})
			idx = len(out.Modules) - 1
		}
		mod := out.Modules[idx]
		mod.Entities = append([]model.Entity(nil), mod.Entities...)

		replaced := false
		for i, e := range mod.Entities {
			if e.LogicalName.EqualFold(se.LogicalName) {
				mod.Entities[i] = se
				replaced = true
				break
			}
		}
		if !replaced {
			mod.Entities = append(mod.Entities, se)
		}
		out.Modules[idx] = mod
	}

	return out
}

func findModule(mods []model.Module, name ids.ModuleName) int {
	for i, m := range mods {
		if m.Name.EqualFold(name) {
			return i
		}
	}
	return -1
}
