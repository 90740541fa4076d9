package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ehmo/sovi/internal/domain"
)

func scanAccount(s scanner) (domain.Account, error) {
	var a domain.Account
	var niche, deviceID, proxy, bio sql.NullString
	var lastActivity, lastWarmed, lastPost, deletedAt sql.NullTime
	err := s.Scan(&a.ID, &a.Platform, &a.Username, &a.EmailEnc, &a.PasswordEnc, &a.TOTPSecretEnc,
		&proxy, &niche, &deviceID, &a.CurrentState, &a.WarmingDayCount,
		&a.Followers, &a.Following, &bio, &lastActivity, &lastWarmed, &lastPost, &deletedAt,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Account{}, err
	}
	a.ProxyCredentials = proxy.String
	a.Bio = bio.String
	a.NicheID = niche.String
	a.DeviceID = deviceID.String
	a.LastActivityAt = lastActivity.Time
	a.LastWarmedAt = lastWarmed.Time
	a.LastPostAt = lastPost.Time
	a.DeletedAt = deletedAt.Time
	return a, nil
}

const accountColumns = `id, platform, username, email_enc, password_enc, totp_secret_enc,
	proxy_credentials, niche_id, device_id, current_state, warming_day_count,
	followers, following, bio, last_activity_at, last_warmed_at, last_post_at, deleted_at,
	created_at, updated_at`

func (d *DB) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// ClaimWarmingTask implements the §4.1 claim contract: select the
// highest-priority eligible account for device deviceID under row-level
// locking that skips rows already locked by a concurrent caller, and
// atomically stamp device_id onto the winning row in the same statement.
// Returns domain.ErrNoEligibleAccount when nothing is eligible.
func (d *DB) ClaimWarmingTask(ctx context.Context, deviceID string, platforms []domain.Platform, startOfDay time.Time) (domain.Account, error) {
	row := d.sql.QueryRowContext(ctx, `
		WITH candidate AS (
			SELECT id FROM accounts
			WHERE deleted_at IS NULL
			  AND platform = ANY($1::text[])
			  AND current_state IN ('created','warming_p1','warming_p2','warming_p3','active')
			  AND (last_warmed_at IS NULL OR last_warmed_at < $2)
			ORDER BY
				CASE current_state
					WHEN 'created' THEN 0 WHEN 'warming_p1' THEN 1 WHEN 'warming_p2' THEN 2
					WHEN 'warming_p3' THEN 3 WHEN 'active' THEN 4 END,
				last_warmed_at ASC NULLS FIRST,
				id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE accounts SET device_id = $3, updated_at = now()
		FROM candidate WHERE accounts.id = candidate.id
		RETURNING `+qualifiedAccountColumns(), platformStrings(platforms), startOfDay, deviceID)

	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrNoEligibleAccount
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("claim warming task: %w", err)
	}
	return a, nil
}

func qualifiedAccountColumns() string {
	return `accounts.id, accounts.platform, accounts.username, accounts.email_enc, accounts.password_enc,
		accounts.totp_secret_enc, accounts.proxy_credentials, accounts.niche_id, accounts.device_id,
		accounts.current_state, accounts.warming_day_count, accounts.followers, accounts.following,
		accounts.bio, accounts.last_activity_at, accounts.last_warmed_at, accounts.last_post_at,
		accounts.deleted_at, accounts.created_at, accounts.updated_at`
}

// CompleteWarmingSession performs step 5 of §4.4 atomically: bump
// warming_day_count, write newState (the caller's phase for the new
// count), stamp last_warmed_at. Exception states are written by
// ApplyExceptionState instead.
func (d *DB) CompleteWarmingSession(ctx context.Context, accountID string, newState domain.AccountState) error {
	_, err := d.sql.ExecContext(ctx, `
		UPDATE accounts SET
			warming_day_count = warming_day_count + 1,
			current_state = $2,
			last_warmed_at = now(),
			last_activity_at = now(),
			updated_at = now()
		WHERE id = $1`, accountID, newState)
	if err != nil {
		return fmt.Errorf("complete warming session: %w", err)
	}
	return nil
}

// ApplyExceptionState records a failure-classified transition without
// incrementing warming_day_count (§4.2, §7 failure mode 4).
func (d *DB) ApplyExceptionState(ctx context.Context, accountID string, newState domain.AccountState) error {
	_, err := d.sql.ExecContext(ctx,
		`UPDATE accounts SET current_state = $2, updated_at = now() WHERE id = $1`, accountID, newState)
	if err != nil {
		return fmt.Errorf("apply exception state: %w", err)
	}
	return nil
}

// InsertAccount writes a newly created account in state "created"
// (§4.7). Secrets are already ciphertext by the time they reach here.
func (d *DB) InsertAccount(ctx context.Context, a domain.Account) (domain.Account, error) {
	row := d.sql.QueryRowContext(ctx, `
		INSERT INTO accounts (platform, username, email_enc, password_enc, totp_secret_enc,
			proxy_credentials, niche_id, current_state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'created', now(), now())
		RETURNING `+accountColumns,
		a.Platform, a.Username, a.EmailEnc, a.PasswordEnc, a.TOTPSecretEnc,
		nullStr(a.ProxyCredentials), a.NicheID)
	out, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return out, nil
}

func (d *DB) UsernameTaken(ctx context.Context, platform domain.Platform, username string) (bool, error) {
	var exists bool
	err := d.sql.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE platform = $1 AND username = $2)`,
		platform, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check username taken: %w", err)
	}
	return exists, nil
}
