package storage

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	pq "github.com/lib/pq"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

type RatingRepo struct{ db *sql.DB }

func NewRatingRepo(db *sql.DB) *RatingRepo { return &RatingRepo{db: db} }

func (r *RatingRepo) GetProfile(ctx context.Context, playerID string) (domain.RatingProfile, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT player_id, mmr, elo, tier, rank, placements_remaining, last_active_at
  FROM rating_profiles
 WHERE player_id = $1
`, playerID)
	var p domain.RatingProfile
	err := row.Scan(&p.PlayerID, &p.MMR, &p.Elo, &p.Tier, &p.Rank, &p.PlacementsRemaining, &p.LastActiveAt)
	if err == sql.ErrNoRows {
		return domain.RatingProfile{}, ErrNotFound
	}
	return p, err
}

// UpsertProfile writes the full profile row; created on first result
// ingestion, updated on each rating write.
func (r *RatingRepo) UpsertProfile(ctx context.Context, p domain.RatingProfile) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO rating_profiles
  (player_id, mmr, elo, tier, rank, placements_remaining, last_active_at)
VALUES
  ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (player_id) DO UPDATE SET
  mmr                  = EXCLUDED.mmr,
  elo                  = EXCLUDED.elo,
  tier                 = EXCLUDED.tier,
  rank                 = EXCLUDED.rank,
  placements_remaining = EXCLUDED.placements_remaining,
  last_active_at       = EXCLUDED.last_active_at,
  updated_at           = now()
`, p.PlayerID, p.MMR, p.Elo, string(p.Tier), p.Rank, p.PlacementsRemaining, p.LastActiveAt)
	return err
}

// InsertHistory appends one immutable history row. Returns false when the
// (match_id, player_id) pair already exists, which is the dedup signal for
// at-least-once result delivery.
func (r *RatingRepo) InsertHistory(ctx context.Context, h domain.RatingHistoryEntry) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO rating_history (match_id, player_id, kind, rating_delta, resulting_mmr, resulting_elo, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (match_id, player_id) DO NOTHING
`, h.MatchID, h.PlayerID, string(h.Kind), h.RatingDelta, h.ResultingMMR, h.ResultingElo, h.RecordedAt)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ApplyDelta records one history row and the profile it produced in a single
// transaction, so a failed profile write cannot strand a history row that
// would shadow the delta on redelivery. Returns false without writing when
// the (match_id, player_id) pair is already recorded.
func (r *RatingRepo) ApplyDelta(ctx context.Context, h domain.RatingHistoryEntry, p domain.RatingProfile) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT INTO rating_history (match_id, player_id, kind, rating_delta, resulting_mmr, resulting_elo, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (match_id, player_id) DO NOTHING
`, h.MatchID, h.PlayerID, string(h.Kind), h.RatingDelta, h.ResultingMMR, h.ResultingElo, h.RecordedAt)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO rating_profiles
  (player_id, mmr, elo, tier, rank, placements_remaining, last_active_at)
VALUES
  ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (player_id) DO UPDATE SET
  mmr                  = EXCLUDED.mmr,
  elo                  = EXCLUDED.elo,
  tier                 = EXCLUDED.tier,
  rank                 = EXCLUDED.rank,
  placements_remaining = EXCLUDED.placements_remaining,
  last_active_at       = EXCLUDED.last_active_at,
  updated_at           = now()
`, p.PlayerID, p.MMR, p.Elo, string(p.Tier), p.Rank, p.PlacementsRemaining, p.LastActiveAt)
	if err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// HistoryPage returns one page of a player's history, newest first. The
// cursor is the last internal row id of the previous page; empty cursor
// starts at the newest row.
func (r *RatingRepo) HistoryPage(ctx context.Context, playerID, cursor string, limit int) (domain.RatingHistoryPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	before := int64(0)
	if cursor != "" {
		n, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil || n <= 0 {
			return domain.RatingHistoryPage{}, domain.NewRatingError(domain.RatingInvalidResult, "bad history cursor %q", cursor)
		}
		before = n
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, match_id, player_id, kind, rating_delta, resulting_mmr, resulting_elo, recorded_at
  FROM rating_history
 WHERE player_id = $1
   AND ($2::bigint = 0 OR id < $2)
 ORDER BY id DESC
 LIMIT $3
`, playerID, before, limit)
	if err != nil {
		return domain.RatingHistoryPage{}, err
	}
	defer rows.Close()

	var page domain.RatingHistoryPage
	var lastID int64
	for rows.Next() {
		var h domain.RatingHistoryEntry
		if err := rows.Scan(&lastID, &h.MatchID, &h.PlayerID, &h.Kind, &h.RatingDelta, &h.ResultingMMR, &h.ResultingElo, &h.RecordedAt); err != nil {
			return domain.RatingHistoryPage{}, err
		}
		page.Entries = append(page.Entries, h)
	}
	if err := rows.Err(); err != nil {
		return domain.RatingHistoryPage{}, err
	}
	if len(page.Entries) == limit {
		page.NextCursor = strconv.FormatInt(lastID, 10)
	}
	return page, nil
}

// RecentMatches returns the newest match-driven history rows for smurf
// scoring, decay entries excluded.
func (r *RatingRepo) RecentMatches(ctx context.Context, playerID string, n int) ([]domain.RatingHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT match_id, player_id, kind, rating_delta, resulting_mmr, resulting_elo, recorded_at
  FROM rating_history
 WHERE player_id = $1 AND kind = 'match'
 ORDER BY id DESC
 LIMIT $2
`, playerID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RatingHistoryEntry
	for rows.Next() {
		var h domain.RatingHistoryEntry
		if err := rows.Scan(&h.MatchID, &h.PlayerID, &h.Kind, &h.RatingDelta, &h.ResultingMMR, &h.ResultingElo, &h.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListInactive returns profiles in any of the given tiers whose last
// activity is older than the cutoff. Used by the decay sweep.
func (r *RatingRepo) ListInactive(ctx context.Context, tiers []string, before time.Time) ([]domain.RatingProfile, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT player_id, mmr, elo, tier, rank, placements_remaining, last_active_at
  FROM rating_profiles
 WHERE tier = ANY($1)
   AND last_active_at < $2
`, pq.Array(tiers), before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RatingProfile
	for rows.Next() {
		var p domain.RatingProfile
		if err := rows.Scan(&p.PlayerID, &p.MMR, &p.Elo, &p.Tier, &p.Rank, &p.PlacementsRemaining, &p.LastActiveAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ApplyDecay lowers a profile's mmr without touching last_active_at, so the
// next sweep still sees the profile as inactive.
func (r *RatingRepo) ApplyDecay(ctx context.Context, playerID string, mmr int, tier domain.Tier, rank int) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE rating_profiles
   SET mmr = $2, tier = $3, rank = $4, updated_at = now()
 WHERE player_id = $1
`, playerID, mmr, string(tier), rank)
	return err
}
