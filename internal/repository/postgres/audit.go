package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/coinledger/internal/models"
)

type AuditRepo struct {
	DB DBTX
}

const auditColumns = `id, account_id, action, outcome, severity, reference, details, created_at`

func (r *AuditRepo) Append(ctx context.Context, e models.AuditEntry) (models.AuditEntry, error) {
	const appendEntry = `
	INSERT INTO audit_log (account_id, action, outcome, severity, reference, details)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + auditColumns

	var accountID *uuid.UUID
	if e.AccountID != uuid.Nil {
		accountID = &e.AccountID
	}

	rows, _ := r.DB.Query(ctx, appendEntry, accountID, e.Action, e.Outcome, e.Severity, nullString(e.Reference), e.Details)
	e, err := pgx.CollectOneRow(rows, rowToAuditEntry)
	if err != nil {
		return e, fmt.Errorf("db error: %w", err)
	}

	return e, nil
}

func (r *AuditRepo) ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]models.AuditEntry, error) {
	const listEntries = `
	SELECT ` + auditColumns + ` FROM audit_log
	WHERE account_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2
	`

	rows, _ := r.DB.Query(ctx, listEntries, accountID, limit)
	entries, err := pgx.CollectRows(rows, rowToAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entries, nil
}

func rowToAuditEntry(row pgx.CollectableRow) (models.AuditEntry, error) {
	var e models.AuditEntry
	var accountID *uuid.UUID
	var reference *string

	err := row.Scan(&e.ID, &accountID, &e.Action, &e.Outcome, &e.Severity, &reference, &e.Details, &e.CreatedAt)

	if accountID != nil {
		e.AccountID = *accountID
	}
	e.Reference = fromNullString(reference)
	return e, err
}
