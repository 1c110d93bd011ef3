package evidence

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestResolve_FirstCallCreatesSecondCallReuses(t *testing.T) {
	root := t.TempDir()
	modelPath := writeTempFile(t, root, "model.json", `{"modules":[]}`)
	profilePath := writeTempFile(t, root, "profile.json", `{"columns":[]}`)

	cache, err := Open(filepath.Join(root, "cache"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	req := Request{
		Command: "build-ssdt",
		Sources: []SourceFile{
			{Type: ArtifactModel, Path: modelPath},
			{Type: ArtifactProfile, Path: profilePath},
		},
		Metadata:        map[string]string{"policy.mode": "EvidenceGated"},
		ModuleSelection: ModuleSelection{IncludeSystem: false, IncludeInactive: false, Modules: []string{"Sales"}},
	}

	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := cache.Resolve(req, t0, 0)
	if first.Failed() {
		t.Fatalf("first resolve failed: %v", first.Errors)
	}
	if first.Value.Outcome != OutcomeCreated || first.Value.Reason != ReasonManifestMissing {
		t.Fatalf("expected Created/manifest.missing, got %s/%s", first.Value.Outcome, first.Value.Reason)
	}

	t1 := t0.Add(time.Hour)
	second := cache.Resolve(req, t1, 0)
	if second.Failed() {
		t.Fatalf("second resolve failed: %v", second.Errors)
	}
	if second.Value.Outcome != OutcomeReused || second.Value.Reason != ReasonReused {
		t.Fatalf("expected Reused/cache.reused, got %s/%s", second.Value.Outcome, second.Value.Reason)
	}
	if second.Value.Manifest.Key != first.Value.Manifest.Key {
		t.Errorf("expected stable key across calls")
	}
	if second.Value.CacheDirectory != first.Value.CacheDirectory {
		t.Errorf("expected stable cache directory across calls")
	}
}

func TestResolve_MetadataChangeInvalidates(t *testing.T) {
	root := t.TempDir()
	modelPath := writeTempFile(t, root, "model.json", `{"modules":[]}`)
	profilePath := writeTempFile(t, root, "profile.json", `{"columns":[]}`)

	cache, err := Open(filepath.Join(root, "cache"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	sources := []SourceFile{
		{Type: ArtifactModel, Path: modelPath},
		{Type: ArtifactProfile, Path: profilePath},
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := cache.Resolve(Request{Command: "build-ssdt", Sources: sources, Metadata: map[string]string{"policy.mode": "EvidenceGated"}}, now, 0)
	if first.Failed() || first.Value.Outcome != OutcomeCreated {
		t.Fatalf("expected first call created: %+v / %v", first.Value, first.Errors)
	}

	second := cache.Resolve(Request{Command: "build-ssdt", Sources: sources, Metadata: map[string]string{"policy.mode": "Aggressive"}}, now.Add(time.Minute), 0)
	if second.Failed() {
		t.Fatalf("second resolve failed: %v", second.Errors)
	}
	if second.Value.Outcome != OutcomeCreated || second.Value.Reason != ReasonMetadataMismatch {
		t.Fatalf("expected Created/metadata.mismatch, got %s/%s", second.Value.Outcome, second.Value.Reason)
	}
}

func TestResolve_MissingSourceFileFailsWithStableCode(t *testing.T) {
	root := t.TempDir()
	cache, err := Open(filepath.Join(root, "cache"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	res := cache.Resolve(Request{
		Command: "build-ssdt",
		Sources: []SourceFile{{Type: ArtifactModel, Path: filepath.Join(root, "missing.json")}},
	}, time.Now().UTC(), 0)
	if !res.Failed() {
		t.Fatalf("expected failure for missing source file")
	}
	if res.Errors.Codes()[0] != "cache.model.notFound" {
		t.Errorf("expected cache.model.notFound, got %v", res.Errors.Codes())
	}
}

func TestApplyRetention_MaxEntriesEvictsOldest(t *testing.T) {
	root := t.TempDir()
	cacheRoot := filepath.Join(root, "cache")
	cache, err := Open(cacheRoot)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var firstDir, lastDir string
	for i := 0; i < 3; i++ {
		modelPath := writeTempFile(t, root, "model.json", modelContentForIteration(i))
		res := cache.Resolve(Request{
			Command: "build-ssdt",
			Sources: []SourceFile{{Type: ArtifactModel, Path: modelPath}},
		}, base.Add(time.Duration(i)*time.Hour), 2)
		if res.Failed() {
			t.Fatalf("resolve %d failed: %v", i, res.Errors)
		}
		if i == 0 {
			firstDir = res.Value.CacheDirectory
		}
		lastDir = res.Value.CacheDirectory
	}

	if _, err := os.Stat(firstDir); !os.IsNotExist(err) {
		t.Errorf("expected oldest entry to be evicted by retention, stat err: %v", err)
	}
	if _, err := os.Stat(lastDir); err != nil {
		t.Errorf("expected most recent entry to survive retention: %v", err)
	}
}

func modelContentForIteration(i int) string {
	return `{"modules":[],"iteration":` + string(rune('0'+i)) + `}`
}
