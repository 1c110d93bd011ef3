package pipeline

import (
	"encoding/json"
	"os"
	"time"
)

// LogEntry is one append-only execution log record (spec §4.8).
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Step      string            `json:"step"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ExecutionLog is the append-only ordered sequence of LogEntry a pipeline
// run accumulates. Log entries follow wall-clock order within a step and
// deterministic order across parallel fan-outs, coalesced at the join
// (spec §5, "Ordering guarantees").
type ExecutionLog struct {
	Entries []LogEntry
	now     func() time.Time
}

// NewExecutionLog creates an empty log. now defaults to time.Now when nil;
// tests supply a fixed clock for deterministic timestamps.
func NewExecutionLog(now func() time.Time) *ExecutionLog {
	if now == nil {
		now = time.Now
	}
	return &ExecutionLog{now: now}
}

// Append records a step with its metadata, stamped with the log's clock.
func (l *ExecutionLog) Append(step string, metadata map[string]string) {
	l.Entries = append(l.Entries, LogEntry{Timestamp: l.now().UTC(), Step: step, Metadata: metadata})
}

// Persist writes the execution log to path as a JSON array, per spec §7
// ("the execution log is persisted to output/execution-log.json when the
// output directory has been created").
func (l *ExecutionLog) Persist(path string) error {
	data, err := json.MarshalIndent(l.Entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) // #nosec G306 - execution log is non-sensitive diagnostics
}
