// Package evidence implements the content-addressed evidence cache (spec
// §4.3): keying, manifest persistence, invalidation, and retention, backed
// by a derived SQLite catalog for O(1) retention queries.
package evidence

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/result"
)

// Reason is one of the exhaustive invalidation reasons (spec §4.3).
type Reason string

const (
	ReasonNone                  Reason = "none"
	ReasonManifestMissing       Reason = "manifest.missing"
	ReasonManifestExpired       Reason = "ttl.elapsed"
	ReasonRefreshRequested      Reason = "refresh.requested"
	ReasonMetadataMismatch      Reason = "metadata.mismatch"
	ReasonModuleSelectionChanged Reason = "module.selection.changed"
	ReasonContentHashMismatch   Reason = "content.hash.mismatch"
	ReasonReused                Reason = "cache.reused"
)

// Outcome is Created or Reused (spec §4.3).
type Outcome string

const (
	OutcomeCreated Outcome = "Created"
	OutcomeReused  Outcome = "Reused"
)

// SourceFile is one file hashed into the cache key, read from disk at
// resolve time.
type SourceFile struct {
	Type ArtifactType
	Path string
}

// Request describes one cache resolution call.
type Request struct {
	Command         string
	Sources         []SourceFile // Model, Profile, Configuration, Dmm as applicable
	Metadata        map[string]string
	ModuleSelection ModuleSelection
	MaxAge          time.Duration // zero means "no expiry"
	RefreshRequested bool
}

// PruneSummary reports retention pruning performed after this resolution.
type PruneSummary struct {
	Total    int
	Expired  int
	Capacity int
	Remaining int
	Entries  []string
}

// Result is the outcome of one EvidenceCacheService.cache call.
type Result struct {
	Outcome            Outcome
	Reason             Reason
	CacheDirectory     string
	Manifest           Manifest
	EvaluationMetadata map[string]string
	Pruned             PruneSummary
}

// Cache implements the evidence cache service against a root directory.
type Cache struct {
	RootDirectory string
	cat           *catalog
}

// Open opens (creating if absent) the evidence cache rooted at dir,
// including its catalog.db index.
func Open(dir string) (*Cache, error) {
	cat, err := openCatalog(dir)
	if err != nil {
		return nil, err
	}

	rowCount, err := cat.rowCount(context.Background())
	if err == nil {
		entries, readErr := os.ReadDir(dir)
		dirCount := 0
		if readErr == nil {
			for _, e := range entries {
				if e.IsDir() {
					if _, statErr := os.Stat(filepath.Join(dir, e.Name(), manifestFileName)); statErr == nil {
						dirCount++
					}
				}
			}
		}
		if rowCount != dirCount {
			_ = cat.rebuildFromManifests(context.Background(), dir)
		}
	}

	return &Cache{RootDirectory: dir, cat: cat}, nil
}

// Close releases the underlying catalog connection.
func (c *Cache) Close() error { return c.cat.Close() }

// canonicalize normalizes newlines and strips a UTF-8 BOM, per the
// ordering guarantee that evidence-cache content hashes use canonicalized
// byte streams.
func canonicalize(b []byte) []byte {
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
	b = bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
	b = bytes.ReplaceAll(b, []byte("\r"), []byte("\n"))
	return b
}

func hashBytes(b []byte) string {
	sum := sha256.Sum256(canonicalize(b))
	return hex.EncodeToString(sum[:])
}

func sortedMetadataPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return pairs
}

// computeKey derives the deterministic cache key from
// (command, canonical(modelPath), canonical(profilePath), canonical(dmm),
// canonical(config), sorted(metadata)) per spec §4.3.
func computeKey(command string, sources []SourceFile, metadata map[string]string) (string, []Artifact, error) {
	sorted := append([]SourceFile(nil), sources...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Type < sorted[j].Type })

	h := sha256.New()
	h.Write([]byte("command=" + command + "\n"))

	var artifacts []Artifact
	for _, s := range sorted {
		data, err := os.ReadFile(s.Path) // #nosec G304 - operator-supplied model/profile/config path
		if err != nil {
			return "", nil, fmt.Errorf("cache.model.notFound: %w", err)
		}
		hash := hashBytes(data)
		h.Write([]byte(fmt.Sprintf("artifact=%s:%s\n", s.Type, hash)))
		rel := filepath.Base(s.Path)
		artifacts = append(artifacts, Artifact{Type: s.Type, RelativePath: rel, ContentHash: hash})
	}

	for _, pair := range sortedMetadataPairs(metadata) {
		h.Write([]byte("meta=" + pair + "\n"))
	}

	return hex.EncodeToString(h.Sum(nil)), artifacts, nil
}

func moduleSelectionHash(sel ModuleSelection) string {
	modules := append([]string(nil), sel.Modules...)
	sort.Strings(modules)
	h := sha256.New()
	fmt.Fprintf(h, "includeSystem=%v;includeInactive=%v;modules=%s", sel.IncludeSystem, sel.IncludeInactive, strings.Join(modules, ","))
	return hex.EncodeToString(h.Sum(nil))
}

// Resolve performs one cache resolution: it computes the key, inspects the
// existing entry (if any), decides Created vs Reused, and applies
// maxAge/maxEntries retention afterward.
func (c *Cache) Resolve(req Request, now time.Time, maxEntries int) result.Of[Result] {
	key, artifacts, err := computeKey(req.Command, req.Sources, req.Metadata)
	if err != nil {
		return result.Fail[Result](result.New("cache.model.notFound", err.Error()))
	}

	sel := req.ModuleSelection
	sel.ModulesHash = moduleSelectionHash(sel)
	sel.Count = len(sel.Modules)

	entryDir := filepath.Join(c.RootDirectory, key)
	manifestPath := filepath.Join(entryDir, manifestFileName)

	unlock, lockErr := acquireLock(entryDir)
	if lockErr != nil {
		return result.Fail[Result](result.New("evidence.cache.lock.failed", lockErr.Error()))
	}
	defer unlock()

	existing, readErr := readManifest(manifestPath)

	reason := ReasonNone
	outcome := OutcomeCreated

	switch {
	case readErr != nil:
		reason = ReasonManifestMissing
	case req.RefreshRequested:
		reason = ReasonRefreshRequested
	case existing.ExpiresAtUtc != nil && existing.ExpiresAtUtc.Before(now):
		reason = ReasonManifestExpired
	case moduleSelectionsDiffer(existing.ModuleSelection, sel):
		reason = ReasonModuleSelectionChanged
	case metadataDiffers(existing.Metadata, req.Metadata):
		reason = ReasonMetadataMismatch
	case artifactsDiffer(existing.Artifacts, artifacts):
		reason = ReasonContentHashMismatch
	default:
		reason = ReasonReused
		outcome = OutcomeReused
	}

	var manifest Manifest
	if outcome == OutcomeReused {
		manifest = existing
		manifest.LastValidatedAtUtc = now
		if err := writeManifest(manifestPath, manifest); err != nil {
			return result.Fail[Result](result.New("evidence.cache.io.failed", err.Error()))
		}
	} else {
		if err := os.MkdirAll(entryDir, 0o750); err != nil {
			return result.Fail[Result](result.New("evidence.cache.io.failed", err.Error()))
		}
		var expires *time.Time
		if req.MaxAge > 0 {
			e := now.Add(req.MaxAge)
			expires = &e
		}
		manifest = Manifest{
			Version:            manifestVersion,
			Key:                key,
			Command:            req.Command,
			CreatedAtUtc:       now,
			LastValidatedAtUtc: now,
			ExpiresAtUtc:       expires,
			ModuleSelection:    sel,
			Metadata:           req.Metadata,
			Artifacts:          artifacts,
		}
		if err := writeManifest(manifestPath, manifest); err != nil {
			return result.Fail[Result](result.New("evidence.cache.io.failed", err.Error()))
		}
	}

	row := entryRowFromManifest(manifest)
	if err := c.cat.upsert(context.Background(), row); err != nil {
		return result.Fail[Result](result.New("evidence.cache.io.failed", err.Error()))
	}

	evalMeta := map[string]string{
		"reason":          string(reason),
		"evaluatedAtUtc":  now.UTC().Format(time.RFC3339),
		"moduleSelection.hash": sel.ModulesHash,
	}
	if manifest.ExpiresAtUtc != nil {
		evalMeta["manifest.expiresAtUtc"] = manifest.ExpiresAtUtc.UTC().Format(time.RFC3339)
	}

	pruned := c.applyRetention(context.Background(), now, req.MaxAge, maxEntries)
	for k, v := range prunedMetadata(pruned) {
		evalMeta[k] = v
	}

	return result.Ok(Result{
		Outcome:            outcome,
		Reason:             reason,
		CacheDirectory:     entryDir,
		Manifest:           manifest,
		EvaluationMetadata: evalMeta,
		Pruned:             pruned,
	})
}

func prunedMetadata(p PruneSummary) map[string]string {
	return map[string]string{
		"pruned.total":    fmt.Sprint(p.Total),
		"pruned.expired":  fmt.Sprint(p.Expired),
		"pruned.capacity": fmt.Sprint(p.Capacity),
		"pruned.remaining": fmt.Sprint(p.Remaining),
		"pruned.entries":  strings.Join(p.Entries, ","),
	}
}

// applyRetention prunes entries per §4.3's maxAge and maxEntries policies,
// applied after the current entry is resolved. maxAge<=0 or maxEntries<=0
// disables the respective policy.
func (c *Cache) applyRetention(ctx context.Context, now time.Time, maxAge time.Duration, maxEntries int) PruneSummary {
	var expiredKeys, capacityKeys []string

	if maxAge > 0 {
		cutoff := now.Add(-maxAge).UTC().Format(time.RFC3339)
		keys, err := c.cat.expiredCandidates(ctx, cutoff)
		if err == nil {
			expiredKeys = keys
		}
	}
	for _, k := range expiredKeys {
		c.evict(ctx, k)
	}

	if maxEntries > 0 {
		keys, err := c.cat.pruneCandidates(ctx, maxEntries)
		if err == nil {
			capacityKeys = keys
		}
	}
	for _, k := range capacityKeys {
		c.evict(ctx, k)
	}

	all := append(append([]string(nil), expiredKeys...), capacityKeys...)
	sort.Strings(all)

	remaining, _ := c.cat.rowCount(ctx)

	return PruneSummary{
		Total:     len(all),
		Expired:   len(expiredKeys),
		Capacity:  len(capacityKeys),
		Remaining: remaining,
		Entries:   all,
	}
}

func (c *Cache) evict(ctx context.Context, key string) {
	_ = os.RemoveAll(filepath.Join(c.RootDirectory, key))
	_ = c.cat.delete(ctx, key)
}

func moduleSelectionsDiffer(a, b ModuleSelection) bool {
	return a.IncludeSystem != b.IncludeSystem || a.IncludeInactive != b.IncludeInactive || a.ModulesHash != b.ModulesHash
}

func metadataDiffers(a, b map[string]string) bool {
	if len(a) != len(b) {
		return true
	}
	for k, v := range a {
		if b[k] != v {
			return true
		}
	}
	return false
}

func artifactsDiffer(a, b []Artifact) bool {
	if len(a) != len(b) {
		return true
	}
	byType := func(list []Artifact) map[ArtifactType]string {
		m := make(map[ArtifactType]string, len(list))
		for _, x := range list {
			m[x.Type] = x.ContentHash
		}
		return m
	}
	ma, mb := byType(a), byType(b)
	for t, h := range ma {
		if mb[t] != h {
			return true
		}
	}
	return false
}

// acquireLock takes an advisory lock on dir/.lock for the duration of one
// write (spec §4.3 concurrency). It is best-effort: a stale lock older than
// lockStaleAfter is reclaimed rather than blocking forever.
const lockStaleAfter = 30 * time.Second

func acquireLock(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	lockPath := filepath.Join(dir, ".lock")

	deadline := time.Now().Add(5 * time.Second)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out acquiring lock %s", lockPath)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
