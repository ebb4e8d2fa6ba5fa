package service

import (
	"context"
	"time"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

// Implemented by internal/adapters/profile.Client
type ProfileAPI interface {
	GetPlayerProfile(ctx context.Context, playerID string) (domain.PlayerProfile, error)
}

// Implemented by internal/adapters/matchserver.Client
type MatchServerAPI interface {
	CreateMatch(ctx context.Context, m domain.MatchConfirmed) error
}

// Notifier fans engine events out to downstream consumers (client push,
// analytics, moderation). Implementations must not block the caller for
// long; publish failures are the implementation's problem to log.
type Notifier interface {
	Publish(ctx context.Context, ev domain.Event)
}

// Implemented by internal/infra/storage.RatingRepo
type RatingRepo interface {
	GetProfile(ctx context.Context, playerID string) (domain.RatingProfile, error)
	UpsertProfile(ctx context.Context, p domain.RatingProfile) error
	InsertHistory(ctx context.Context, h domain.RatingHistoryEntry) (bool, error)
	ApplyDelta(ctx context.Context, h domain.RatingHistoryEntry, p domain.RatingProfile) (bool, error)
	HistoryPage(ctx context.Context, playerID, cursor string, limit int) (domain.RatingHistoryPage, error)
	RecentMatches(ctx context.Context, playerID string, n int) ([]domain.RatingHistoryEntry, error)
	ListInactive(ctx context.Context, tiers []string, before time.Time) ([]domain.RatingProfile, error)
	ApplyDecay(ctx context.Context, playerID string, mmr int, tier domain.Tier, rank int) error
}

// Implemented by internal/infra/storage.ResultRepo
type ResultRepo interface {
	Insert(ctx context.Context, res domain.MatchResult) (bool, error)
	MarkProcessed(ctx context.Context, matchID string) error
	ListUnprocessed(ctx context.Context, limit int) ([]domain.MatchResult, error)
}

// Implemented by internal/infra/storage.PenaltyRepo
type PenaltyRepo interface {
	Set(ctx context.Context, playerID, reason string, until time.Time) error
	ActiveUntil(ctx context.Context, playerID string) (time.Time, bool, error)
	PruneExpired(ctx context.Context) (int64, error)
}

// Implemented by internal/infra/storage.FlagRepo
type FlagRepo interface {
	Insert(ctx context.Context, f domain.SmurfFlag) error
}
