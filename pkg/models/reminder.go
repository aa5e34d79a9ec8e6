// Package models contains domain models for vigil.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies how urgently a reminder needs attention.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// ReminderKind identifies the drift condition a reminder reports.
type ReminderKind string

const (
	ReminderNewFile           ReminderKind = "new_file"
	ReminderMissingFunction   ReminderKind = "missing_function"
	ReminderMissingDBFunction ReminderKind = "missing_db_function"
	ReminderFileDeleted       ReminderKind = "file_deleted"
	ReminderTimestampSynced   ReminderKind = "timestamp_synced"
)

// ReminderRecord is one entry in the reminder log. Records are immutable
// once created; the log file is the full serialized array of them.
type ReminderRecord struct {
	ID             string       `json:"id"`
	Severity       Severity     `json:"severity"`
	Kind           ReminderKind `json:"kind"`
	Message        string       `json:"message"`
	FilePath       string       `json:"file_path"`
	FunctionName   string       `json:"function_name,omitempty"`
	CreatedAt      string       `json:"created_at"`
	CreatedAtEpoch int64        `json:"created_at_epoch"`
}

// NewReminder builds a reminder record with a fresh ID and timestamps.
// functionName may be empty for file-scoped kinds.
func NewReminder(severity Severity, kind ReminderKind, message, filePath, functionName string) ReminderRecord {
	now := time.Now()
	return ReminderRecord{
		ID:             uuid.NewString(),
		Severity:       severity,
		Kind:           kind,
		Message:        message,
		FilePath:       filePath,
		FunctionName:   functionName,
		CreatedAt:      now.Format(time.RFC3339),
		CreatedAtEpoch: now.UnixMilli(),
	}
}
