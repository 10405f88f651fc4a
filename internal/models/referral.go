package models

import (
	"time"

	"github.com/google/uuid"
)

type Referral struct {
	ID         uuid.UUID
	ReferrerID uuid.UUID
	ReferredID uuid.UUID
	CodeUsed   string
	AppliedAt  time.Time
}
