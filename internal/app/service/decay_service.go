package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

// DecayService is the periodic sweep that bleeds MMR off inactive high-tier
// profiles. Each sweep writes at most one decay history entry per player per
// UTC day; the UNIQUE(match_id, player_id) constraint is the dedup gate, so
// overlapping sweeps (or a restarted engine) cannot double-penalize.
type DecayService struct {
	ratings  RatingRepo
	notifier Notifier
	rules    []domain.TierDecayRule
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewDecayService(ratings RatingRepo, notifier Notifier, rules []domain.TierDecayRule, interval time.Duration, log zerolog.Logger) *DecayService {
	return &DecayService{
		ratings:  ratings,
		notifier: notifier,
		rules:    rules,
		interval: interval,
		log:      log.With().Str("component", "decay").Logger(),
		now:      time.Now,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *DecayService) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("decay sweep")
				continue
			}
			if n > 0 {
				s.log.Info().Int("decayed", n).Msg("decay sweep applied")
			}
		}
	}
}

// Sweep applies every configured rule once and returns how many profiles
// were penalized.
func (s *DecayService) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	total := 0
	for _, rule := range s.rules {
		n, err := s.sweepRule(ctx, rule, now)
		if err != nil {
			return total, fmt.Errorf("rule %s: %w", rule.Tier, err)
		}
		total += n
	}
	return total, nil
}

func (s *DecayService) sweepRule(ctx context.Context, rule domain.TierDecayRule, now time.Time) (int, error) {
	tiers := s.coveredTiers(rule)
	if len(tiers) == 0 {
		return 0, nil
	}
	cutoff := now.Add(-time.Duration(rule.InactivityDays) * 24 * time.Hour)
	inactive, err := s.ratings.ListInactive(ctx, tiers, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list inactive: %w", err)
	}

	dedupID := "decay-" + now.UTC().Format("2006-01-02")
	applied := 0
	for _, prof := range inactive {
		newMMR := prof.MMR - rule.PenaltyPerDay
		if newMMR < 0 {
			newMMR = 0
		}
		if newMMR == prof.MMR {
			continue
		}
		inserted, err := s.ratings.InsertHistory(ctx, domain.RatingHistoryEntry{
			MatchID:      dedupID,
			PlayerID:     prof.PlayerID,
			Kind:         domain.HistoryDecay,
			RatingDelta:  newMMR - prof.MMR,
			ResultingMMR: newMMR,
			ResultingElo: prof.Elo,
			RecordedAt:   now,
		})
		if err != nil {
			return applied, fmt.Errorf("insert decay history: %w", err)
		}
		if !inserted {
			// Already decayed today, typically by a previous sweep.
			continue
		}

		tier, rank := domain.TierFor(newMMR)
		if err := s.ratings.ApplyDecay(ctx, prof.PlayerID, newMMR, tier, rank); err != nil {
			return applied, fmt.Errorf("apply decay %s: %w", prof.PlayerID, err)
		}
		applied++

		if tier != prof.Tier {
			s.notifier.Publish(ctx, domain.TierChanged{
				PlayerID: prof.PlayerID,
				From:     prof.Tier,
				To:       tier,
				Rank:     rank,
				At:       now,
			})
		}
	}
	return applied, nil
}

// coveredTiers lists the tiers this rule governs: tiers at or above the
// rule's own, excluding tiers a higher-keyed rule claims instead.
func (s *DecayService) coveredTiers(rule domain.TierDecayRule) []string {
	var out []string
	for _, t := range []domain.Tier{
		domain.TierBronze, domain.TierSilver, domain.TierGold,
		domain.TierPlatinum, domain.TierDiamond, domain.TierMaster, domain.TierChampion,
	} {
		r, ok := domain.DecayRuleFor(t, s.rules)
		if ok && r.Tier == rule.Tier {
			out = append(out, string(t))
		}
	}
	return out
}
