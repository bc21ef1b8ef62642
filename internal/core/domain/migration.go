package domain

import (
	"slices"
	"time"
)

// MigrationDirection selects which store is the source.
type MigrationDirection string

// Migration directions.
const (
	MigrateToRemote MigrationDirection = "to_remote"
	MigrateToLocal  MigrationDirection = "to_local"
)

// MigrationScope selects which vectors are moved.
type MigrationScope string

// Migration scopes.
const (
	ScopeAll      MigrationScope = "all"
	ScopeSelected MigrationScope = "selected"
	ScopeByType   MigrationScope = "by_type"
)

// ClearTarget selects what ClearDatabase removes.
type ClearTarget string

// Clear targets. Local keeps documents; knowledge_base removes them too.
const (
	ClearLocal         ClearTarget = "local"
	ClearKnowledgeBase ClearTarget = "knowledge_base"
	ClearRemote        ClearTarget = "remote"
)

// MigrationOptions configures one migration run.
type MigrationOptions struct {
	Direction    MigrationDirection `validate:"required,oneof=to_remote to_local"`
	Scope        MigrationScope     `validate:"required,oneof=all selected by_type"`
	ContentTypes []string           `validate:"required_if=Scope by_type,dive,required"`
	DocumentIDs  []int64            `validate:"required_if=Scope selected"`
}

// MigrationLock is the advisory in-progress marker.
type MigrationLock struct {
	InProgress bool               `json:"in_progress"`
	StartedAt  time.Time          `json:"started_at"`
	RunID      string             `json:"run_id"`
	Direction  MigrationDirection `json:"direction"`
	Scope      MigrationScope     `json:"scope"`
}

// IsStale reports whether the lock is older than timeout at now.
func (l MigrationLock) IsStale(now time.Time, timeout time.Duration) bool {
	return now.Sub(l.StartedAt) > timeout
}

// LogLevel classifies a migration log entry.
type LogLevel string

// Log levels.
const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
	LogSuccess LogLevel = "success"
)

// MigrationLogEntry is a single structured log line.
type MigrationLogEntry struct {
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// MigrationSummary is the final tally of a run.
type MigrationSummary struct {
	Migrated int           `json:"migrated"`
	Errors   int           `json:"errors"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// MigrationReport is the retrievable artifact of a run.
type MigrationReport struct {
	RunID     string              `json:"run_id"`
	Options   MigrationOptions    `json:"options"`
	Summary   MigrationSummary    `json:"summary"`
	Log       []MigrationLogEntry `json:"log"`
	StartedAt time.Time           `json:"started_at"`
	// Cursor marks where an unfinished run stopped: the last local chunk ID
	// for to_remote, the remote pagination token for to_local. Empty once
	// the run has covered every batch.
	Cursor string `json:"cursor,omitempty"`
}

// SameTarget reports whether two option sets select the same vectors in the
// same direction.
func (o MigrationOptions) SameTarget(other MigrationOptions) bool {
	return o.Direction == other.Direction &&
		o.Scope == other.Scope &&
		slices.Equal(o.ContentTypes, other.ContentTypes) &&
		slices.Equal(o.DocumentIDs, other.DocumentIDs)
}
