package store

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ehmo/sovi/internal/domain"
)

// textArrayConverter passes []string arguments (bound as text[] by pgx)
// through sqlmock, whose default converter rejects slices.
type textArrayConverter struct{}

func (textArrayConverter) ConvertValue(v any) (driver.Value, error) {
	if s, ok := v.([]string); ok {
		return s, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.ValueConverterOption(textArrayConverter{}))
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return &DB{sql: sqlDB}, mock
}

func accountRow(mock sqlmock.Sqlmock, id string, state domain.AccountState) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "platform", "username", "email_enc", "password_enc",
		"totp_secret_enc", "proxy_credentials", "niche_id", "device_id", "current_state",
		"warming_day_count", "followers", "following", "bio", "last_activity_at",
		"last_warmed_at", "last_post_at", "deleted_at", "created_at", "updated_at"}).
		AddRow(id, "tiktok", "acct1", nil, nil, nil, nil, nil, "device-1", state, 0,
			0, 0, "", nil, nil, nil, nil, now, now)
}

func TestClaimWarmingTask_ReturnsAccountOnMatch(t *testing.T) {
	db, mock := newMockDB(t)

	rows := accountRow(mock, "acct-1", domain.StateWarmingP1)
	mock.ExpectQuery(regexp.QuoteMeta("WITH candidate AS")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "device-1").
		WillReturnRows(rows)

	a, err := db.ClaimWarmingTask(context.Background(), "device-1", domain.ActivePlatforms, time.Now())
	if err != nil {
		t.Fatalf("ClaimWarmingTask() error: %v", err)
	}
	if a.ID != "acct-1" {
		t.Errorf("claimed account id = %q, want acct-1", a.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestClaimWarmingTask_NoneEligible(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("WITH candidate AS")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "device-1").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := db.ClaimWarmingTask(context.Background(), "device-1", domain.ActivePlatforms, time.Now())
	if err != domain.ErrNoEligibleAccount {
		t.Errorf("err = %v, want ErrNoEligibleAccount", err)
	}
}

func TestCompleteWarmingSession_UpdatesStateAndCounters(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET")).
		WithArgs("acct-1", domain.StateWarmingP2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := db.CompleteWarmingSession(context.Background(), "acct-1", domain.StateWarmingP2); err != nil {
		t.Fatalf("CompleteWarmingSession() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
