// Package smo translates a filtered model and its policy decisions into an
// in-memory SmoModel and then to on-disk SSDT artifacts (spec §4.5).
package smo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/ids"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/model"
)

// NamingOverrideRule is one first-match-wins naming rule (spec §4.5). A nil
// selector matches anything; non-nil selectors must match exactly
// (case-insensitive).
type NamingOverrideRule struct {
	Schema      *string
	Table       *string
	Module      *string
	LogicalName *string
	Target      string
}

func matchesSelector(sel *string, actual string) bool {
	return sel == nil || strings.EqualFold(*sel, actual)
}

func (r NamingOverrideRule) matches(e model.Entity) bool {
	return matchesSelector(r.Schema, string(e.Schema)) &&
		matchesSelector(r.Table, string(e.TableName)) &&
		matchesSelector(r.Module, string(e.Module)) &&
		matchesSelector(r.LogicalName, string(e.LogicalName))
}

// NamingOverrideOptions is an ordered set of NamingOverrideRule.
type NamingOverrideOptions struct {
	Rules []NamingOverrideRule
}

// EffectiveTableName returns the first matching rule's Target, or e's
// physical table name if no rule matches.
func (o NamingOverrideOptions) EffectiveTableName(e model.Entity) ids.TableName {
	for _, r := range o.Rules {
		if r.matches(e) {
			return ids.TableName(r.Target)
		}
	}
	return e.TableName
}

// ModuleRemap is one module-folder disambiguation event (spec §4.5).
type ModuleRemap struct {
	OriginalName     ids.ModuleName
	SanitizedName    string
	DisambiguatedName string
}

func sanitizeFolderName(name ids.ModuleName) string {
	var b strings.Builder
	for _, r := range string(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// DisambiguateModuleFolders assigns each module (taken in case-insensitive
// name order) a collision-free folder name: when two distinct module names
// sanitize to the same folder, later occurrences are suffixed _2, _3, ... A ModuleRemap
// is returned for each module whose folder name changed.
func DisambiguateModuleFolders(modules []model.Module) (map[string]string, []ModuleRemap) {
	folderByModule := map[string]string{}
	usedCount := map[string]int{}
	var remaps []ModuleRemap

	sorted := append([]model.Module(nil), modules...)
	sort.SliceStable(sorted, func(i, j int) bool { return strings.ToLower(string(sorted[i].Name)) < strings.ToLower(string(sorted[j].Name)) })

	for _, m := range sorted {
		sanitized := sanitizeFolderName(m.Name)
		count := usedCount[strings.ToLower(sanitized)]
		usedCount[strings.ToLower(sanitized)]++

		folder := sanitized
		if count > 0 {
			folder = fmt.Sprintf("%s_%d", sanitized, count+1)
			remaps = append(remaps, ModuleRemap{OriginalName: m.Name, SanitizedName: sanitized, DisambiguatedName: folder})
		}
		folderByModule[m.Name.Fold()] = folder
	}

	return folderByModule, remaps
}
