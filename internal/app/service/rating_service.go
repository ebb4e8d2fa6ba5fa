package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jose-valero/ranked-engine/internal/domain"
	"github.com/jose-valero/ranked-engine/internal/infra/storage"
)

// RatingService consumes confirmed match results and applies rating deltas
// exactly once per (matchId, player). All participant locks are taken in
// sorted order before any write, so two concurrent results sharing players
// cannot interleave on the same profile.
type RatingService struct {
	ratings  RatingRepo
	results  ResultRepo
	smurf    *SmurfService
	notifier Notifier
	season   string
	log      zerolog.Logger
	now      func() time.Time

	locks playerLocks
}

func NewRatingService(ratings RatingRepo, results ResultRepo, smurf *SmurfService, notifier Notifier, season string, log zerolog.Logger) *RatingService {
	return &RatingService{
		ratings:  ratings,
		results:  results,
		smurf:    smurf,
		notifier: notifier,
		season:   season,
		log:      log.With().Str("component", "rating").Logger(),
		now:      time.Now,
		locks:    playerLocks{m: map[string]*sync.Mutex{}},
	}
}

// ApplyResult validates and applies one match result. Redelivered results
// are benign: participants already recorded are skipped, and a result where
// every participant was a duplicate reports BIZ_RATING_DUPLICATE_DELTA
// without mutating anything.
func (s *RatingService) ApplyResult(ctx context.Context, res domain.MatchResult) error {
	if err := validateResult(res); err != nil {
		return err
	}
	if res.Season != s.season {
		return domain.NewRatingError(domain.RatingSeasonClosed, "result for season %s, current season is %s", res.Season, s.season)
	}

	players := make([]string, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		players = append(players, o.PlayerID)
	}
	sort.Strings(players)
	unlock := s.locks.lockAll(players)
	defer unlock()

	// Pre-match snapshot for every participant. Opponent strength is
	// computed against this snapshot, never against mid-apply values.
	profiles := make(map[string]domain.RatingProfile, len(players))
	for _, id := range players {
		prof, err := s.profileOrNew(ctx, id)
		if err != nil {
			return err
		}
		profiles[id] = prof
	}

	applied := 0
	for _, out := range res.Outcomes {
		ok, err := s.applyParticipant(ctx, res, out, profiles)
		if err != nil {
			return err
		}
		if ok {
			applied++
		}
	}
	if err := s.results.MarkProcessed(ctx, res.MatchID); err != nil {
		s.log.Warn().Err(err).Str("match", res.MatchID).Msg("mark processed")
	}

	// Re-score asynchronously; analytics failures must never reach the
	// rating write path.
	go s.rescoreAll(res)

	if applied == 0 {
		return domain.NewRatingError(domain.RatingDuplicateDelta, "match %s already applied", res.MatchID)
	}
	return nil
}

func (s *RatingService) applyParticipant(ctx context.Context, res domain.MatchResult, out domain.MatchOutcome, profiles map[string]domain.RatingProfile) (bool, error) {
	prof := profiles[out.PlayerID]
	oppMMR := opponentMean(res, out, profiles, func(p domain.RatingProfile) int { return p.MMR })
	oppElo := opponentMean(res, out, profiles, func(p domain.RatingProfile) int { return p.Elo })
	score := outcomeScore(res, out)

	kMMR, kElo := domain.KSteadyMMR, domain.KSteadyElo
	if prof.PlacementsRemaining > 0 {
		kMMR, kElo = domain.KPlacement, domain.KPlacement
	}
	deltaMMR := domain.RatingDelta(prof.MMR, oppMMR, score, kMMR)
	deltaElo := domain.RatingDelta(prof.Elo, oppElo, score, kElo)

	newMMR := prof.MMR + deltaMMR
	if newMMR < 0 {
		newMMR = 0
	}
	newElo := prof.Elo + deltaElo
	if newElo < 0 {
		newElo = 0
	}

	now := s.now()
	oldTier := prof.Tier
	prof.MMR = newMMR
	prof.Elo = newElo
	if prof.PlacementsRemaining > 0 {
		prof.PlacementsRemaining--
	}
	prof.Tier, prof.Rank = domain.TierFor(prof.MMR)
	prof.LastActiveAt = now

	// History row and profile land in one transaction. An infra failure
	// leaves both untouched, so redelivery of the result can still apply
	// this participant's delta.
	inserted, err := s.ratings.ApplyDelta(ctx, domain.RatingHistoryEntry{
		MatchID:      res.MatchID,
		PlayerID:     out.PlayerID,
		Kind:         domain.HistoryMatch,
		RatingDelta:  deltaMMR,
		ResultingMMR: newMMR,
		ResultingElo: newElo,
		RecordedAt:   now,
	}, prof)
	if err != nil {
		return false, fmt.Errorf("apply delta: %w", err)
	}
	if !inserted {
		s.log.Debug().Str("match", res.MatchID).Str("player", out.PlayerID).Msg("duplicate delta skipped")
		return false, nil
	}

	s.notifier.Publish(ctx, domain.RatingUpdated{
		PlayerID: out.PlayerID,
		MatchID:  res.MatchID,
		Delta:    deltaMMR,
		MMR:      prof.MMR,
		Elo:      prof.Elo,
		At:       now,
	})
	if prof.Tier != oldTier {
		s.notifier.Publish(ctx, domain.TierChanged{
			PlayerID: out.PlayerID,
			From:     oldTier,
			To:       prof.Tier,
			Rank:     prof.Rank,
			At:       now,
		})
	}
	return true, nil
}

// profileOrNew loads the profile, or returns a provisional in-memory one on
// a player's first ingested result. The provisional profile is only
// persisted once that player's delta lands. A profile load failing for any
// reason other than absence aborts the whole result before any write.
func (s *RatingService) profileOrNew(ctx context.Context, playerID string) (domain.RatingProfile, error) {
	prof, err := s.ratings.GetProfile(ctx, playerID)
	if err == nil {
		return prof, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return domain.RatingProfile{}, fmt.Errorf("load profile %s: %w", playerID, err)
	}
	tier, rank := domain.TierFor(domain.StartingMMR)
	return domain.RatingProfile{
		PlayerID:            playerID,
		MMR:                 domain.StartingMMR,
		Elo:                 domain.StartingElo,
		Tier:                tier,
		Rank:                rank,
		PlacementsRemaining: domain.DefaultPlacements,
		LastActiveAt:        s.now(),
	}, nil
}

// History serves the paginated rating history API.
func (s *RatingService) History(ctx context.Context, playerID, cursor string, limit int) (domain.RatingHistoryPage, error) {
	return s.ratings.HistoryPage(ctx, playerID, cursor, limit)
}

// Profile exposes the current standing for status endpoints.
func (s *RatingService) Profile(ctx context.Context, playerID string) (domain.RatingProfile, error) {
	return s.ratings.GetProfile(ctx, playerID)
}

// DrainStored applies results the ingest webhook accepted while the engine
// was not running.
func (s *RatingService) DrainStored(ctx context.Context, limit int) (int, error) {
	pending, err := s.results.ListUnprocessed(ctx, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, res := range pending {
		if err := s.ApplyResult(ctx, res); err != nil {
			if re, ok := err.(*domain.RatingError); ok && re.Code == domain.RatingDuplicateDelta {
				n++
				continue
			}
			s.log.Error().Err(err).Str("match", res.MatchID).Msg("drain stored result")
			continue
		}
		n++
	}
	return n, nil
}

func (s *RatingService) rescoreAll(res domain.MatchResult) {
	if s.smurf == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, out := range res.Outcomes {
		if err := s.smurf.Rescore(ctx, out.PlayerID); err != nil {
			wrapped := domain.NewRatingError(domain.RatingAnalyticsFailure, "rescore %s: %v", out.PlayerID, err)
			s.log.Warn().Err(wrapped).Msg("smurf rescore")
		}
	}
}

// validateResult rejects malformed outcome sets before any state mutation.
func validateResult(res domain.MatchResult) error {
	if res.MatchID == "" || len(res.Outcomes) < 2 {
		return domain.NewRatingError(domain.RatingInvalidResult, "match %q with %d outcomes", res.MatchID, len(res.Outcomes))
	}
	seen := map[string]bool{}
	for _, o := range res.Outcomes {
		if o.PlayerID == "" || seen[o.PlayerID] {
			return domain.NewRatingError(domain.RatingInvalidResult, "bad participant %q", o.PlayerID)
		}
		seen[o.PlayerID] = true
	}
	if res.FreeFor {
		// Placements must be a strict 1..n ordering.
		n := len(res.Outcomes)
		taken := make([]bool, n+1)
		for _, o := range res.Outcomes {
			if o.Placement < 1 || o.Placement > n || taken[o.Placement] {
				return domain.NewRatingError(domain.RatingInvalidPlacement, "placement %d invalid for %d players", o.Placement, n)
			}
			taken[o.Placement] = true
		}
		return nil
	}
	wins, losses := 0, 0
	for _, o := range res.Outcomes {
		if o.Won {
			wins++
		} else {
			losses++
		}
	}
	if wins == 0 || losses == 0 {
		return domain.NewRatingError(domain.RatingInvalidResult, "symmetric match needs exactly one winning side")
	}
	return nil
}

// opponentMean averages one pre-match rating of the opposing side, or of
// everyone else in a free-for-all. MMR rates against opponent MMR and Elo
// against opponent Elo, so the two tracks stay independent.
func opponentMean(res domain.MatchResult, self domain.MatchOutcome, profiles map[string]domain.RatingProfile, rating func(domain.RatingProfile) int) int {
	sum, n := 0, 0
	for _, o := range res.Outcomes {
		if o.PlayerID == self.PlayerID {
			continue
		}
		if !res.FreeFor && o.Won == self.Won {
			continue
		}
		sum += rating(profiles[o.PlayerID])
		n++
	}
	if n == 0 {
		return rating(profiles[self.PlayerID])
	}
	return sum / n
}

func outcomeScore(res domain.MatchResult, out domain.MatchOutcome) float64 {
	if res.FreeFor {
		return domain.PlacementScore(out.Placement, len(res.Outcomes))
	}
	if out.Won {
		return 1
	}
	return 0
}

type playerLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

// lockAll acquires the per-player mutexes in the given order. Callers must
// pass a sorted slice so independent results agree on lock order.
func (l *playerLocks) lockAll(ids []string) func() {
	ms := make([]*sync.Mutex, 0, len(ids))
	l.mu.Lock()
	for _, id := range ids {
		pm, ok := l.m[id]
		if !ok {
			pm = &sync.Mutex{}
			l.m[id] = pm
		}
		ms = append(ms, pm)
	}
	l.mu.Unlock()
	for _, pm := range ms {
		pm.Lock()
	}
	return func() {
		for i := len(ms) - 1; i >= 0; i-- {
			ms[i].Unlock()
		}
	}
}
