package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/regabilling/retarget/internal/domain"
	"github.com/regabilling/retarget/internal/service/retarget"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func TestCampaignRepoGetNotFound(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .+ FROM campaigns`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	repo := NewCampaignRepo(db)
	_, err := repo.Get(context.Background(), "missing")
	if err != retarget.ErrCampaignNotFound {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestCampaignRepoSpendSince(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	since := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(cost_incurred\), 0\) FROM campaigns`).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1250.5))

	repo := NewCampaignRepo(db)
	spend, err := repo.SpendSince(context.Background(), since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spend != 1250.5 {
		t.Errorf("expected spend 1250.5, got %v", spend)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCampaignRepoClaimDue(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	now := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "prospect_id", "channel", "status", "subject", "body",
		"scheduled_at", "retry_count", "cost_incurred", "campaign_week",
		"name", "email", "phone",
	}).AddRow(
		"c-1", "p-1", "email", "sending", "Come back", "<p>Hi</p>",
		now.Add(-time.Minute), 0, 0.5, 1,
		"Ann Example", "ann@example.com", "",
	)

	mock.ExpectQuery(`WITH claimed AS`).
		WithArgs(string(domain.CampaignSending), string(domain.CampaignScheduled), now, 100).
		WillReturnRows(rows)

	repo := NewCampaignRepo(db)
	claimed, err := repo.ClaimDue(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed campaign, got %d", len(claimed))
	}
	if claimed[0].ProspectEmail != "ann@example.com" {
		t.Errorf("expected prospect email joined in, got %q", claimed[0].ProspectEmail)
	}
	if claimed[0].Channel != domain.ChannelEmail {
		t.Errorf("expected email channel, got %q", claimed[0].Channel)
	}
}

func TestCampaignRepoRecoverStuck(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	before := time.Date(2026, 3, 2, 11, 40, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE campaigns\s+SET status = \$1, retry_count = retry_count \+ 1`).
		WithArgs(string(domain.CampaignScheduled), string(domain.CampaignSending), before, domain.MaxRetryCount).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE campaigns\s+SET status = \$1, delivery_status = 'FAILED'`).
		WithArgs(string(domain.CampaignFailed), string(domain.CampaignSending), before, domain.MaxRetryCount).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewCampaignRepo(db)
	requeued, exhausted, err := repo.RecoverStuck(context.Background(), before)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requeued != 2 || exhausted != 1 {
		t.Errorf("expected 2 requeued and 1 exhausted, got %d/%d", requeued, exhausted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCampaignRepoScheduleRetry(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	at := time.Date(2026, 3, 2, 11, 30, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE campaigns`).
		WithArgs("c-1", string(domain.CampaignScheduled), at, string(domain.CampaignFailed), domain.MaxRetryCount).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewCampaignRepo(db)
	ok, err := repo.ScheduleRetry(context.Background(), "c-1", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected retry to be scheduled")
	}
}

func TestCampaignRepoScheduleRetryExhausted(t *testing.T) {
	db, mock, cleanup := setupMockDB(t)
	defer cleanup()

	at := time.Date(2026, 3, 2, 11, 30, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE campaigns`).
		WithArgs("c-2", string(domain.CampaignScheduled), at, string(domain.CampaignFailed), domain.MaxRetryCount).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewCampaignRepo(db)
	ok, err := repo.ScheduleRetry(context.Background(), "c-2", at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no reschedule for exhausted campaign")
	}
}
