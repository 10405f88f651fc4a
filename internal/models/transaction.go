package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionRewardCredit    TransactionType = "reward_credit"
	TransactionReferralReward  TransactionType = "referral_reward"
	TransactionReferralBonus   TransactionType = "referral_bonus"
	TransactionPurchase        TransactionType = "purchase"
	TransactionRefund          TransactionType = "refund"
	TransactionAdminAdjustment TransactionType = "admin_adjustment"
	TransactionFraudPenalty    TransactionType = "fraud_penalty"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionRewardCredit, TransactionReferralReward, TransactionReferralBonus,
		TransactionPurchase, TransactionRefund, TransactionAdminAdjustment, TransactionFraudPenalty:
		return true
	default:
		return false
	}
}

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Ledger entry. Never updated once written
type Transaction struct {
	ID              uuid.UUID
	AccountID       uuid.UUID
	Type            TransactionType
	Source          string // reward type for reward credits
	Amount          int64  // signed
	Status          TransactionStatus
	Reference       string // empty if not set
	Metadata        map[string]any
	PreviousBalance int64
	NewBalance      int64
	FailureReason   string
	CreatedAt       time.Time
}

// Per-account reconciliation snapshot
type Reconciliation struct {
	AccountID  uuid.UUID
	Balance    int64
	LedgerSum  int64
	EntryCount int
}

func (r Reconciliation) Balanced() bool {
	return r.Balance == r.LedgerSum
}
