package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID             uuid.UUID
	Balance        int64
	IsActive       bool
	IsBlocked      bool
	ReferralCode   string
	ReferralCount  int
	RewardsClaimed int
	TotalRewarded  int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Account may earn and spend coins only when active and not blocked
func (a Account) InGoodStanding() bool {
	return a.IsActive && !a.IsBlocked
}

// Standing flags supplied by the identity provider
type Standing struct {
	IsActive  bool
	IsBlocked bool
}
