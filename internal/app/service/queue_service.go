package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jose-valero/ranked-engine/internal/domain"
	"github.com/jose-valero/ranked-engine/internal/infra/memqueue"
)

const maxPartySize = 5

// EnqueueRequest is the admission command for a solo player or party. The
// first party member is the caller and pays the rate limit.
type EnqueueRequest struct {
	PartyMemberIDs []string
	RequestedRoles []string
	LevelMin       int
	LevelMax       int
	RegionHint     string
	Priority       bool
}

type QueueService struct {
	profiles  ProfileAPI
	penalties PenaltyRepo
	pool      *memqueue.Store
	limiter   *memqueue.Limiter
	notifier  Notifier
	curve     SearchCurve
	log       zerolog.Logger
	now       func() time.Time
}

func NewQueueService(profiles ProfileAPI, penalties PenaltyRepo, pool *memqueue.Store, limiter *memqueue.Limiter, notifier Notifier, curve SearchCurve, log zerolog.Logger) *QueueService {
	return &QueueService{
		profiles:  profiles,
		penalties: penalties,
		pool:      pool,
		limiter:   limiter,
		notifier:  notifier,
		curve:     curve,
		log:       log.With().Str("component", "queue").Logger(),
		now:       time.Now,
	}
}

// Enqueue validates admission and adds an entry to its partition. All
// profile lookups happen before any pool lock is taken.
func (s *QueueService) Enqueue(ctx context.Context, req EnqueueRequest) (domain.QueueEntry, error) {
	if len(req.PartyMemberIDs) == 0 || len(req.PartyMemberIDs) > maxPartySize {
		return domain.QueueEntry{}, fmt.Errorf("party size must be 1..%d, got %d", maxPartySize, len(req.PartyMemberIDs))
	}
	seen := map[string]bool{}
	for _, pid := range req.PartyMemberIDs {
		if seen[pid] {
			return domain.QueueEntry{}, fmt.Errorf("duplicate party member %s", pid)
		}
		seen[pid] = true
	}
	if req.LevelMin < 1 || req.LevelMax < req.LevelMin {
		return domain.QueueEntry{}, domain.NewQueueError(domain.QueueInvalidLevelRange, "level range %d..%d", req.LevelMin, req.LevelMax)
	}

	caller := req.PartyMemberIDs[0]
	if !s.limiter.Allow(caller) {
		return domain.QueueEntry{}, domain.NewQueueError(domain.QueueRateLimited, "account %s over enqueue rate limit", caller)
	}

	for _, pid := range req.PartyMemberIDs {
		until, active, err := s.penalties.ActiveUntil(ctx, pid)
		if err != nil {
			s.limiter.Forget(caller)
			return domain.QueueEntry{}, fmt.Errorf("penalty lookup: %w", err)
		}
		if active {
			s.limiter.Forget(caller)
			return domain.QueueEntry{}, domain.NewQueueError(domain.QueueRateLimited, "player %s on cooldown until %s", pid, until.UTC().Format(time.RFC3339))
		}
	}

	// Prefetch every member profile before touching the pool.
	mmrSum := 0
	for _, pid := range req.PartyMemberIDs {
		prof, err := s.profiles.GetPlayerProfile(ctx, pid)
		if err != nil {
			s.limiter.Forget(caller)
			return domain.QueueEntry{}, fmt.Errorf("profile %s: %w", pid, err)
		}
		if !prof.Online {
			s.limiter.Forget(caller)
			return domain.QueueEntry{}, domain.NewQueueError(domain.QueuePartyOffline, "player %s is offline", pid)
		}
		mmrSum += prof.MMR
	}

	entry := domain.QueueEntry{
		EntryID:        uuid.NewString(),
		PartyMemberIDs: append([]string(nil), req.PartyMemberIDs...),
		RequestedRoles: append([]string(nil), req.RequestedRoles...),
		LevelMin:       req.LevelMin,
		LevelMax:       req.LevelMax,
		RegionHint:     req.RegionHint,
		MMRSnapshot:    mmrSum / len(req.PartyMemberIDs),
		EnqueuedAt:     s.now(),
		Priority:       req.Priority,
	}
	if err := s.pool.Add(entry); err != nil {
		s.limiter.Forget(caller)
		return domain.QueueEntry{}, err
	}

	s.log.Info().Str("entry", entry.EntryID).Str("region", entry.RegionHint).Int("mmr", entry.MMRSnapshot).Int("party", len(entry.PartyMemberIDs)).Msg("enqueued")
	s.notifier.Publish(ctx, domain.QueueStatusChanged{
		EntryID: entry.EntryID,
		Players: entry.PartyMemberIDs,
		Status:  "queued",
		At:      entry.EnqueuedAt,
	})
	return entry, nil
}

// Cancel removes a queued entry. Cancelling an entry that is already gone is
// a success so client retries stay cheap; cancelling a reserved entry fails
// with a match-locked error until its proposal resolves.
func (s *QueueService) Cancel(ctx context.Context, entryID string) error {
	entry, existed, err := s.pool.Remove(entryID)
	if err != nil {
		return err
	}
	if !existed {
		return nil
	}
	s.log.Info().Str("entry", entryID).Msg("cancelled")
	s.notifier.Publish(ctx, domain.QueueStatusChanged{
		EntryID: entryID,
		Players: entry.PartyMemberIDs,
		Status:  "cancelled",
		At:      s.now(),
	})
	return nil
}

// ListActive is a read-only snapshot for status displays.
func (s *QueueService) ListActive(_ context.Context, f domain.QueueFilter) []domain.QueueStatus {
	now := s.now()
	entries := s.pool.ListAll(f)
	out := make([]domain.QueueStatus, 0, len(entries))
	for _, e := range entries {
		wait := now.Sub(e.EnqueuedAt)
		out = append(out, domain.QueueStatus{
			EntryID:      e.EntryID,
			PartyMembers: e.PartyMemberIDs,
			Region:       e.RegionHint,
			MMRSnapshot:  e.MMRSnapshot,
			EnqueuedAt:   e.EnqueuedAt,
			WaitingFor:   wait,
			SearchRange:  s.curve.RangeAt(wait),
			Expansions:   len(e.SearchExpansions),
			Priority:     e.Priority,
		})
	}
	return out
}

// Penalize puts players on a queue cooldown after a declined or abandoned
// ready check.
func (s *QueueService) Penalize(ctx context.Context, playerIDs []string, reason string, d time.Duration) {
	until := s.now().Add(d)
	for _, pid := range playerIDs {
		if err := s.penalties.Set(ctx, pid, reason, until); err != nil {
			s.log.Error().Err(err).Str("player", pid).Msg("persist penalty")
		}
	}
}
