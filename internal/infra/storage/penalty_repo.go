package storage

import (
	"context"
	"database/sql"
	"time"
)

type PenaltyRepo struct{ db *sql.DB }

func NewPenaltyRepo(db *sql.DB) *PenaltyRepo { return &PenaltyRepo{db: db} }

// Set records a queue cooldown; a later cooldown for the same player wins.
func (r *PenaltyRepo) Set(ctx context.Context, playerID, reason string, until time.Time) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO queue_penalties (player_id, reason, until)
VALUES ($1,$2,$3)
ON CONFLICT (player_id) DO UPDATE SET
  reason = EXCLUDED.reason,
  until  = GREATEST(queue_penalties.until, EXCLUDED.until)
`, playerID, reason, until)
	return err
}

// ActiveUntil reports whether the player has a live cooldown.
func (r *PenaltyRepo) ActiveUntil(ctx context.Context, playerID string) (time.Time, bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT until FROM queue_penalties WHERE player_id = $1 AND until > now()
`, playerID)
	var until time.Time
	err := row.Scan(&until)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return until, true, nil
}

func (r *PenaltyRepo) PruneExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queue_penalties WHERE until < now()`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
