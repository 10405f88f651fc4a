package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/models"
	"github.com/nkiryanov/coinledger/internal/repository"
)

// Storage stub only serving audit repo
type stubStorage struct {
	repository.Storage
	audit *stubAuditRepo
}

func (s *stubStorage) Audit() repository.AuditRepo {
	return s.audit
}

type stubAuditRepo struct {
	entries []models.AuditEntry
	err     error
}

func (r *stubAuditRepo) Append(_ context.Context, e models.AuditEntry) (models.AuditEntry, error) {
	if r.err != nil {
		return e, r.err
	}
	e.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, e)
	return e, nil
}

func (r *stubAuditRepo) ListEntries(_ context.Context, _ uuid.UUID, _ int) ([]models.AuditEntry, error) {
	return r.entries, r.err
}

func TestService_Record(t *testing.T) {
	newService := func() (*Service, *stubStorage, *[]models.AuditEntry) {
		var alerted []models.AuditEntry
		sink := AlertFunc(func(_ context.Context, e models.AuditEntry) {
			alerted = append(alerted, e)
		})
		return NewService(sink), &stubStorage{audit: &stubAuditRepo{}}, &alerted
	}

	t.Run("defaults and no alert for info", func(t *testing.T) {
		s, storage, alerted := newService()

		err := s.Record(t.Context(), storage, models.AuditEntry{Action: ActionTransaction})

		require.NoError(t, err)
		require.Len(t, storage.audit.entries, 1)
		require.Equal(t, models.OutcomeSuccess, storage.audit.entries[0].Outcome, "outcome defaults to success")
		require.Equal(t, models.SeverityInfo, storage.audit.entries[0].Severity, "severity defaults to info")
		require.Empty(t, *alerted, "info entries are not alerted")
	})

	t.Run("alert on warning", func(t *testing.T) {
		s, storage, alerted := newService()

		err := s.Record(t.Context(), storage, models.AuditEntry{
			Action:   ActionTransactionFail,
			Outcome:  models.OutcomeFailure,
			Severity: models.SeverityWarning,
		})

		require.NoError(t, err)
		require.Len(t, *alerted, 1)
		require.Equal(t, ActionTransactionFail, (*alerted)[0].Action)
	})

	t.Run("repo error", func(t *testing.T) {
		s, storage, alerted := newService()
		storage.audit.err = errors.New("db down")

		err := s.Record(t.Context(), storage, models.AuditEntry{Action: ActionTransaction, Severity: models.SeverityCritical})

		require.Error(t, err)
		require.Empty(t, *alerted, "nothing alerted if entry not stored")
	})
}

// Logger remembering level and message of every record
type recordingLogger struct {
	logger.Logger
	records []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.records = append(l.records, "warn: "+msg)
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.records = append(l.records, "error: "+msg)
}

func TestLogSink(t *testing.T) {
	l := &recordingLogger{}
	sink := LogSink(l)

	sink.Alert(t.Context(), models.AuditEntry{Action: ActionCheckoutRejected, Severity: models.SeverityWarning})
	sink.Alert(t.Context(), models.AuditEntry{Action: ActionCheckoutRejected, Severity: models.SeverityCritical})

	require.Equal(t, []string{"warn: Audit alert", "error: Audit alert"}, l.records)
}
