package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestNew_VerboseEnablesDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, true)
	if logger.GetLevel() != log.DebugLevel {
		t.Fatalf("expected DebugLevel, got %v", logger.GetLevel())
	}

	logger.Debug("probing column", "table", "OSUSR_ORDER")
	if !strings.Contains(buf.String(), "probing column") {
		t.Errorf("expected debug line to be written, got %q", buf.String())
	}
}

func TestNew_DefaultIsInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false)
	if logger.GetLevel() != log.InfoLevel {
		t.Fatalf("expected InfoLevel, got %v", logger.GetLevel())
	}

	logger.Debug("should not appear")
	if strings.Contains(buf.String(), "should not appear") {
		t.Errorf("debug line leaked at info level: %q", buf.String())
	}
}

func TestWithStep_AddsStepField(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, true)
	stepped := WithStep(logger, "model.ingested")
	stepped.Info("loaded module")

	if !strings.Contains(buf.String(), "step=model.ingested") {
		t.Errorf("expected step field in output, got %q", buf.String())
	}
}
