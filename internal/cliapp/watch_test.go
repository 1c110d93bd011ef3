package cliapp

import (
	"path/filepath"
	"testing"
)

func TestWatchedPath_MatchesModelOrProfile(t *testing.T) {
	model := filepath.Join("testdata", "model.json")
	profile := filepath.Join("testdata", "profile.json")

	if !watchedPath(model, model, profile) {
		t.Errorf("expected model path to match")
	}
	if !watchedPath(profile, model, profile) {
		t.Errorf("expected profile path to match")
	}
	if watchedPath(filepath.Join("testdata", "other.json"), model, profile) {
		t.Errorf("expected unrelated path not to match")
	}
}
