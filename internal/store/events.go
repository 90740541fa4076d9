package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ehmo/sovi/internal/domain"
)

// InsertEvent appends one system_events row. Both ingestion paths in
// §4.8 (worker threads, web-request contexts) converge here.
func (d *DB) InsertEvent(ctx context.Context, e domain.SystemEvent) (domain.SystemEvent, error) {
	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		return domain.SystemEvent{}, fmt.Errorf("marshal event context: %w", err)
	}

	row := d.sql.QueryRowContext(ctx, `
		INSERT INTO system_events (category, severity, event_type, device_id, account_id, message, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, timestamp, category, severity, event_type, device_id, account_id, message, context,
			resolved, resolved_by, resolved_at`,
		e.Category, e.Severity, e.EventType, nullStr(e.DeviceID), nullStr(e.AccountID), e.Message, ctxJSON)

	out, err := scanEvent(row)
	if err != nil {
		return domain.SystemEvent{}, fmt.Errorf("insert event: %w", err)
	}
	return out, nil
}

func scanEvent(s scanner) (domain.SystemEvent, error) {
	var e domain.SystemEvent
	var deviceID, accountID, resolvedBy sql.NullString
	var resolvedAt sql.NullTime
	var ctxRaw []byte
	if err := s.Scan(&e.ID, &e.Timestamp, &e.Category, &e.Severity, &e.EventType,
		&deviceID, &accountID, &e.Message, &ctxRaw, &e.Resolved, &resolvedBy, &resolvedAt); err != nil {
		return domain.SystemEvent{}, err
	}
	e.DeviceID = deviceID.String
	e.AccountID = accountID.String
	e.ResolvedBy = resolvedBy.String
	e.ResolvedAt = resolvedAt.Time
	if len(ctxRaw) > 0 {
		if err := json.Unmarshal(ctxRaw, &e.Context); err != nil {
			return domain.SystemEvent{}, fmt.Errorf("unmarshal event context: %w", err)
		}
	}
	return e, nil
}

// EventFilter bounds the query surface exposed by §6.3 (via an outer
// dashboard layer, not implemented by this core — the query primitive
// itself lives here).
type EventFilter struct {
	Severity  domain.EventSeverity
	Category  domain.EventCategory
	EventType string
	AccountID string
	DeviceID  string
	Resolved  *bool
	AfterID   int64
	Limit     int
}

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

func (d *DB) ListEvents(ctx context.Context, f EventFilter) ([]domain.SystemEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	query := `SELECT id, timestamp, category, severity, event_type, device_id, account_id, message,
		context, resolved, resolved_by, resolved_at FROM system_events WHERE id > $1`
	args := []any{f.AfterID}

	if f.Severity != "" {
		args = append(args, f.Severity)
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if f.EventType != "" {
		args = append(args, f.EventType)
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if f.AccountID != "" {
		args = append(args, f.AccountID)
		query += fmt.Sprintf(" AND account_id = $%d", len(args))
	}
	if f.DeviceID != "" {
		args = append(args, f.DeviceID)
		query += fmt.Sprintf(" AND device_id = $%d", len(args))
	}
	if f.Resolved != nil {
		args = append(args, *f.Resolved)
		query += fmt.Sprintf(" AND resolved = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d", len(args))

	rows, err := d.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.SystemEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResolveEvent sets resolved=true, resolved_by, resolved_at in one
// targeted update (§4.8).
func (d *DB) ResolveEvent(ctx context.Context, id int64, resolvedBy string) error {
	res, err := d.sql.ExecContext(ctx,
		`UPDATE system_events SET resolved = true, resolved_by = $2, resolved_at = now() WHERE id = $1`,
		id, resolvedBy)
	if err != nil {
		return fmt.Errorf("resolve event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve event rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}
