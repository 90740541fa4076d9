package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ehmo/sovi/internal/domain"
)

func scanDevice(s scanner) (domain.Device, error) {
	var dev domain.Device
	var connectedSince, heartbeatAt sql.NullTime
	err := s.Scan(&dev.ID, &dev.Name, &dev.UDID, &dev.Host, &dev.AutomationPort,
		&dev.Status, &connectedSince, &heartbeatAt, &dev.UpdatedAt)
	if err != nil {
		return domain.Device{}, err
	}
	dev.ConnectedSince = connectedSince.Time
	dev.HeartbeatAt = heartbeatAt.Time
	return dev, nil
}

func (d *DB) GetDevice(ctx context.Context, id string) (domain.Device, error) {
	row := d.sql.QueryRowContext(ctx,
		`SELECT id, name, udid, host, automation_port, status, connected_since, heartbeat_at, updated_at
		 FROM devices WHERE id = $1`, id)
	dev, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Device{}, domain.ErrDeviceNotFound
	}
	if err != nil {
		return domain.Device{}, fmt.Errorf("get device: %w", err)
	}
	return dev, nil
}

// ListActiveDevices returns all devices whose status is usable for
// scheduling (active or maintenance — scheduler startup per §4.3).
func (d *DB) ListActiveDevices(ctx context.Context) ([]domain.Device, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, name, udid, host, automation_port, status, connected_since, heartbeat_at, updated_at
		 FROM devices WHERE status IN ('active', 'maintenance') ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list active devices: %w", err)
	}
	defer rows.Close()

	var out []domain.Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		out = append(out, dev)
	}
	return out, rows.Err()
}

// TouchHeartbeat sets status=active, updated_at=now (§4.3 step 1).
func (d *DB) TouchHeartbeat(ctx context.Context, deviceID string) error {
	_, err := d.sql.ExecContext(ctx,
		`UPDATE devices SET status = 'active', heartbeat_at = now(), updated_at = now() WHERE id = $1`,
		deviceID)
	if err != nil {
		return fmt.Errorf("touch heartbeat: %w", err)
	}
	return nil
}

func (d *DB) SetDeviceStatus(ctx context.Context, deviceID string, status domain.DeviceStatus) error {
	_, err := d.sql.ExecContext(ctx,
		`UPDATE devices SET status = $2, updated_at = now() WHERE id = $1`, deviceID, status)
	if err != nil {
		return fmt.Errorf("set device status: %w", err)
	}
	return nil
}

// UpsertDevice inserts or updates a device row by UDID.
func (d *DB) UpsertDevice(ctx context.Context, dev domain.Device) (domain.Device, error) {
	row := d.sql.QueryRowContext(ctx, `
		INSERT INTO devices (name, udid, host, automation_port, status, connected_since, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (udid) DO UPDATE SET
			name = EXCLUDED.name, host = EXCLUDED.host,
			automation_port = EXCLUDED.automation_port, updated_at = now()
		RETURNING id, name, udid, host, automation_port, status, connected_since, heartbeat_at, updated_at`,
		dev.Name, dev.UDID, dev.Host, dev.AutomationPort, dev.Status)
	out, err := scanDevice(row)
	if err != nil {
		return domain.Device{}, fmt.Errorf("upsert device: %w", err)
	}
	return out, nil
}
