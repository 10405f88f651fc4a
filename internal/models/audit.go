package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type AuditEntry struct {
	ID        int64
	AccountID uuid.UUID
	Action    string
	Outcome   string
	Severity  string
	Reference string
	Details   map[string]any
	CreatedAt time.Time
}
