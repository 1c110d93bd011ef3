package smo

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/policy"
)

// LayoutMode selects single-file-per-module or per-table emission.
type LayoutMode string

const (
	LayoutSingleFile LayoutMode = "single-file"
	LayoutPerTable   LayoutMode = "per-table"
)

// EmitOptions configures Emit.
type EmitOptions struct {
	OutputDirectory string
	Layout          LayoutMode
}

// TableFile is one emitted script file and its content hash, the unit the
// manifest's emission digest is computed over.
type TableFile struct {
	Path        string
	ContentHash string
}

// Manifest is the output/manifest.json document (spec §4.5/§7).
type Manifest struct {
	Options          EmitOptions       `json:"options"`
	Emission         EmissionDigest    `json:"emission"`
	Tables           []ManifestTable   `json:"tables"`
	PreRemediation   []string          `json:"preRemediation"`
	Coverage         Coverage          `json:"coverage"`
	PredicateCoverage map[string]int   `json:"predicateCoverage"`
	Unsupported      []string          `json:"unsupported"`
}

// EmissionDigest records the stable emission digest algorithm and value.
type EmissionDigest struct {
	Algorithm string `json:"algorithm"`
	Digest    string `json:"digest"`
}

// ManifestTable is one table's manifest entry.
type ManifestTable struct {
	Module                string   `json:"module"`
	Schema                string   `json:"schema"`
	LogicalName           string   `json:"logicalName"`
	EffectiveTableName    string   `json:"effectiveTableName"`
	IsExternal            bool     `json:"isExternal"`
	File                  string   `json:"file"`
	ContentHash           string   `json:"contentHash"`
	PreRemediationFiles   []string `json:"preRemediationFiles"`
	PostRemediationFiles  []string `json:"postRemediationFiles"`
}

// Coverage summarizes how many tables/columns/fks were touched by decisions.
type Coverage struct {
	TotalTables      int `json:"totalTables"`
	TightenedColumns int `json:"tightenedColumns"`
	EnforcedIndexes  int `json:"enforcedIndexes"`
	EnforcedForeignKeys int `json:"enforcedForeignKeys"`
}

// Result is what Emit wrote to disk.
type Result struct {
	Manifest       Manifest
	DecisionLogPath string
	SqlprojPath    string
	TableFiles     []TableFile
}

// DecisionLogEntry is one entry of output/decision-log.json.
type DecisionLogEntry struct {
	Kind      string            `json:"kind"`
	Target    string            `json:"target"`
	Decision  string            `json:"decision"`
	Rationale string            `json:"rationale"`
}

// DecisionLog is the full output/decision-log.json document.
type DecisionLog struct {
	Entries        []DecisionLogEntry          `json:"entries"`
	ToggleSnapshot map[string]policy.ToggleValue `json:"toggleSnapshot"`
}

// Emit writes smoModel's tables, the manifest, the decision log, and the
// sqlproj to opts.OutputDirectory, per spec §4.5. Artifact content is a
// pure function of (smoModel, decisions, report, opts). report supplies the
// per-table pre-/post-remediation SQL bundles for the manifest.
func Emit(sm SmoModel, decisions policy.DecisionSet, report policy.Report, opts EmitOptions) (Result, error) {
	return emitWithDegree(sm, decisions, report, opts, 1)
}

// EmitParallel is Emit with a bounded fan-out over per-table script
// rendering and writing, degree per spec §5's "emission.moduleParallelism"
// (0 means unlimited). Output is identical to Emit for the same inputs —
// parallelism affects wall-clock only, never content (the sort+digest pass
// runs after every table has been written, regardless of completion order).
func EmitParallel(sm SmoModel, decisions policy.DecisionSet, report policy.Report, opts EmitOptions, degree int) (Result, error) {
	return emitWithDegree(sm, decisions, report, opts, degree)
}

func emitWithDegree(sm SmoModel, decisions policy.DecisionSet, report policy.Report, opts EmitOptions, degree int) (Result, error) {
	if opts.Layout == "" {
		opts.Layout = LayoutSingleFile
	}
	if degree <= 0 || degree > len(sm.Tables) {
		degree = len(sm.Tables)
	}
	if degree < 1 {
		degree = 1
	}

	tableFiles := make([]TableFile, len(sm.Tables))
	manifestTables := make([]ManifestTable, len(sm.Tables))

	sem := make(chan struct{}, degree)
	var wg sync.WaitGroup
	errCh := make(chan error, len(sm.Tables))

	for i, t := range sm.Tables {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, t SmoTable) {
			defer wg.Done()
			defer func() { <-sem }()

			script := CreateTableScript(t)
			relPath := tableRelativePath(sm, t, opts.Layout)
			fullPath := filepath.Join(opts.OutputDirectory, relPath)

			if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
				errCh <- fmt.Errorf("ssdt.emission.io.failed: %w", err)
				return
			}
			if err := os.WriteFile(fullPath, []byte(script), 0o644); err != nil { // #nosec G306 - generated SQL, non-sensitive
				errCh <- fmt.Errorf("ssdt.emission.io.failed: %w", err)
				return
			}

			preSQL, postSQL := remediationSQLForTable(report, t)
			var preFiles, postFiles []string
			if preSQL != "" {
				p := filepath.Join("Remediation", "Pre", fmt.Sprintf("%s.%s.pre.sql", t.Schema, t.EffectiveTableName))
				if err := writeRemediationFile(filepath.Join(opts.OutputDirectory, p), preSQL); err != nil {
					errCh <- err
					return
				}
				preFiles = []string{p}
			}
			if postSQL != "" {
				p := filepath.Join("Remediation", "Post", fmt.Sprintf("%s.%s.post.sql", t.Schema, t.EffectiveTableName))
				if err := writeRemediationFile(filepath.Join(opts.OutputDirectory, p), postSQL); err != nil {
					errCh <- err
					return
				}
				postFiles = []string{p}
			}

			hash := contentHash([]byte(script))
			tableFiles[i] = TableFile{Path: relPath, ContentHash: hash}
			manifestTables[i] = ManifestTable{
				Module:               string(t.Module),
				Schema:               string(t.Schema),
				LogicalName:          string(t.LogicalName),
				EffectiveTableName:   string(t.EffectiveTableName),
				IsExternal:           t.IsExternal,
				File:                 relPath,
				ContentHash:          hash,
				PreRemediationFiles:  preFiles,
				PostRemediationFiles: postFiles,
			}
		}(i, t)
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return Result{}, err
	}

	sort.Slice(tableFiles, func(i, j int) bool { return tableFiles[i].Path < tableFiles[j].Path })
	sort.Slice(manifestTables, func(i, j int) bool { return manifestTables[i].File < manifestTables[j].File })

	digest := emissionDigest(tableFiles)

	coverage := Coverage{
		TotalTables:         len(sm.Tables),
		TightenedColumns:    countTightened(decisions),
		EnforcedIndexes:     countEnforcedIndexes(decisions),
		EnforcedForeignKeys: countEnforcedForeignKeys(decisions),
	}

	manifest := Manifest{
		Options:        opts,
		Emission:       EmissionDigest{Algorithm: "sha256", Digest: digest},
		Tables:         manifestTables,
		PreRemediation: tablesNeedingRemediation(manifestTables),
		Coverage:       coverage,
		PredicateCoverage: map[string]int{},
	}

	manifestPath := filepath.Join(opts.OutputDirectory, "manifest.json")
	if err := writeJSON(manifestPath, manifest); err != nil {
		return Result{}, err
	}

	decisionLog := buildDecisionLog(decisions)
	decisionLogPath := filepath.Join(opts.OutputDirectory, "decision-log.json")
	if err := writeJSON(decisionLogPath, decisionLog); err != nil {
		return Result{}, err
	}

	sqlprojPath := filepath.Join(opts.OutputDirectory, "OutSystemsModel.sqlproj")
	if err := writeSqlproj(sqlprojPath, tableFiles); err != nil {
		return Result{}, err
	}

	return Result{Manifest: manifest, DecisionLogPath: decisionLogPath, SqlprojPath: sqlprojPath, TableFiles: tableFiles}, nil
}

func tableRelativePath(sm SmoModel, t SmoTable, layout LayoutMode) string {
	if layout == LayoutPerTable {
		return filepath.Join("Tables", string(t.Schema), string(t.EffectiveTableName)+".sql")
	}
	folder := sm.ModuleFolders[t.Module.Fold()]
	if folder == "" {
		folder = string(t.Module)
	}
	return filepath.Join("Modules", fmt.Sprintf("%s.%s.sql", folder, t.LogicalName))
}

// remediationSQLForTable returns t's pre-remediation (data repair, run
// before enforcing tightened constraints) and post-remediation (confirmed
// safe tightening, run after the table exists) SQL bundles, filtered from
// report by target prefix "<schema>.<table>.".
func remediationSQLForTable(report policy.Report, t SmoTable) (pre string, post string) {
	prefix := strings.ToLower(string(t.Schema)) + "." + strings.ToLower(string(t.EffectiveTableName)) + "."

	var preLines, postLines []string
	for _, o := range report.NeedsRemediation {
		if o.RemediationSql != "" && strings.HasPrefix(strings.ToLower(o.Target), prefix) {
			preLines = append(preLines, o.RemediationSql)
		}
	}
	for _, o := range report.Safe {
		if o.SafeSql != "" && strings.HasPrefix(strings.ToLower(o.Target), prefix) {
			postLines = append(postLines, o.SafeSql)
		}
	}
	return strings.Join(preLines, "\n"), strings.Join(postLines, "\n")
}

func writeRemediationFile(fullPath, content string) error {
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("ssdt.emission.io.failed: %w", err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil { // #nosec G306 - generated SQL, non-sensitive
		return fmt.Errorf("ssdt.emission.io.failed: %w", err)
	}
	return nil
}

// tablesNeedingRemediation lists the effective table names (sorted) carrying
// a non-empty pre-remediation file, the manifest-level summary spec §6
// documents as preRemediation[].
func tablesNeedingRemediation(tables []ManifestTable) []string {
	var out []string
	for _, t := range tables {
		if len(t.PreRemediationFiles) > 0 {
			out = append(out, t.EffectiveTableName)
		}
	}
	sort.Strings(out)
	return out
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// emissionDigest computes the stable emission digest: SHA-256 of the sorted
// sequence of (tableFile, contentHash) pairs, per spec §4.5.
func emissionDigest(files []TableFile) string {
	sorted := append([]TableFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	h := sha256.New()
	for _, f := range sorted {
		h.Write([]byte(f.Path))
		h.Write([]byte("\x00"))
		h.Write([]byte(f.ContentHash))
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func countTightened(d policy.DecisionSet) int {
	n := 0
	for _, dec := range d.Nullability {
		if dec.Tighten {
			n++
		}
	}
	return n
}

func countEnforcedIndexes(d policy.DecisionSet) int {
	n := 0
	for _, dec := range d.Uniqueness {
		if dec.Enforce {
			n++
		}
	}
	return n
}

func countEnforcedForeignKeys(d policy.DecisionSet) int {
	n := 0
	for _, dec := range d.ForeignKeys {
		if dec.Enforce {
			n++
		}
	}
	return n
}

func buildDecisionLog(d policy.DecisionSet) DecisionLog {
	var entries []DecisionLogEntry
	for coord, dec := range d.Nullability {
		entries = append(entries, DecisionLogEntry{Kind: "nullability", Target: coord.String(), Decision: fmt.Sprint(dec.Tighten), Rationale: dec.Rationale})
	}
	for coord, dec := range d.Uniqueness {
		entries = append(entries, DecisionLogEntry{Kind: "uniqueness", Target: coord.String(), Decision: fmt.Sprint(dec.Enforce), Rationale: dec.Rationale})
	}
	for key, dec := range d.ForeignKeys {
		entries = append(entries, DecisionLogEntry{Kind: "foreignKey", Target: key.String(), Decision: fmt.Sprint(dec.Enforce), Rationale: dec.Rationale})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Target < entries[j].Target
	})

	toggles := map[string]policy.ToggleValue{}
	for _, k := range d.Toggles.Keys() {
		v, _ := d.Toggles.Get(k)
		toggles[k] = v
	}

	return DecisionLog{Entries: entries, ToggleSnapshot: toggles}
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) // #nosec G306 - generated artifact, non-sensitive
}

func writeSqlproj(path string, files []TableFile) error {
	var b strings.Builder
	b.WriteString("<Project Sdk=\"Microsoft.Build.Sql\">\n  <ItemGroup>\n")
	for _, f := range files {
		fmt.Fprintf(&b, "    <Build Include=\"%s\" />\n", filepath.ToSlash(f.Path))
	}
	b.WriteString("  </ItemGroup>\n</Project>\n")
	return os.WriteFile(path, []byte(b.String()), 0o644) // #nosec G306 - generated project file
}
