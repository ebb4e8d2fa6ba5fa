package storage

import (
	"context"
	"database/sql"

	pq "github.com/lib/pq"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

type FlagRepo struct{ db *sql.DB }

func NewFlagRepo(db *sql.DB) *FlagRepo { return &FlagRepo{db: db} }

func (r *FlagRepo) Insert(ctx context.Context, f domain.SmurfFlag) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO smurf_flags (flag_id, player_id, score, evidence, triggered_at)
VALUES ($1,$2,$3,$4,$5)
`, f.FlagID, f.PlayerID, f.Score, pq.Array(f.Evidence), f.TriggeredAt)
	return err
}

// ListByPlayer returns a player's flags newest first, for moderation tooling.
func (r *FlagRepo) ListByPlayer(ctx context.Context, playerID string, limit int) ([]domain.SmurfFlag, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT flag_id, player_id, score, evidence, triggered_at
  FROM smurf_flags
 WHERE player_id = $1
 ORDER BY triggered_at DESC
 LIMIT $2
`, playerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SmurfFlag
	for rows.Next() {
		var f domain.SmurfFlag
		if err := rows.Scan(&f.FlagID, &f.PlayerID, &f.Score, pq.Array(&f.Evidence), &f.TriggeredAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
