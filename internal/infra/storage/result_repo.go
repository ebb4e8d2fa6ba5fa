package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

type ResultRepo struct{ db *sql.DB }

func NewResultRepo(db *sql.DB) *ResultRepo { return &ResultRepo{db: db} }

// Insert stores a raw result exactly once per match_id. Returns false on a
// duplicate, which upstream treats as a benign redelivery.
func (r *ResultRepo) Insert(ctx context.Context, res domain.MatchResult) (bool, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}
	out, err := r.db.ExecContext(ctx, `
INSERT INTO match_results (match_id, season, payload)
VALUES ($1,$2,$3::jsonb)
ON CONFLICT (match_id) DO NOTHING
`, res.MatchID, res.Season, payload)
	if err != nil {
		return false, err
	}
	n, _ := out.RowsAffected()
	return n > 0, nil
}

func (r *ResultRepo) MarkProcessed(ctx context.Context, matchID string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE match_results SET processed_at = now() WHERE match_id = $1
`, matchID)
	return err
}

// ListUnprocessed returns stored results not yet applied, oldest first, so
// the engine can drain results the ingest Lambda accepted while it was down.
func (r *ResultRepo) ListUnprocessed(ctx context.Context, limit int) ([]domain.MatchResult, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT payload
  FROM match_results
 WHERE processed_at IS NULL
 ORDER BY received_at ASC
 LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MatchResult
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var res domain.MatchResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, fmt.Errorf("unmarshal stored result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
