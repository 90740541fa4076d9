package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ehmo/sovi/internal/domain"
)

// InsertWarmingSession writes an append-only warming_progress row (§3,
// §4.4 step 6). Never mutated afterward.
func (d *DB) InsertWarmingSession(ctx context.Context, ws domain.WarmingSession) (domain.WarmingSession, error) {
	sessionData, err := json.Marshal(map[string]int{
		"videos_watched": ws.VideosWatched,
		"likes":          ws.Likes,
		"follows":        ws.Follows,
	})
	if err != nil {
		return domain.WarmingSession{}, fmt.Errorf("marshal session data: %w", err)
	}

	row := d.sql.QueryRowContext(ctx, `
		INSERT INTO warming_progress
			(account_id, device_id, platform, warming_phase, warming_day, session_data, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, account_id, device_id, platform, warming_phase, warming_day, started_at, completed_at`,
		ws.AccountID, ws.DeviceID, ws.Platform, ws.Phase, ws.DayInPhase, sessionData, ws.StartedAt, nullTime(ws.CompletedAt))

	var completedAt sql.NullTime
	out := ws
	if err := row.Scan(&out.ID, &out.AccountID, &out.DeviceID, &out.Platform, &out.Phase,
		&out.DayInPhase, &out.StartedAt, &completedAt); err != nil {
		return domain.WarmingSession{}, fmt.Errorf("insert warming session: %w", err)
	}
	out.CompletedAt = completedAt.Time
	return out, nil
}
