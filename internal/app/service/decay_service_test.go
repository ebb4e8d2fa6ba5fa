package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

func decayRules() []domain.TierDecayRule {
	return []domain.TierDecayRule{
		{Tier: domain.TierPlatinum, InactivityDays: 14, PenaltyPerDay: 10},
		{Tier: domain.TierDiamond, InactivityDays: 10, PenaltyPerDay: 15},
		{Tier: domain.TierMaster, InactivityDays: 7, PenaltyPerDay: 20},
		{Tier: domain.TierChampion, InactivityDays: 7, PenaltyPerDay: 25},
	}
}

func newDecayFixture(t *testing.T) (*DecayService, *memRatingRepo, *stubNotifier) {
	t.Helper()
	ratings := newMemRatingRepo()
	notifier := &stubNotifier{}
	svc := NewDecayService(ratings, notifier, decayRules(), time.Hour, zerolog.Nop())
	return svc, ratings, notifier
}

func inactiveProfile(id string, mmr int, inactiveFor time.Duration) domain.RatingProfile {
	tier, rank := domain.TierFor(mmr)
	return domain.RatingProfile{
		PlayerID: id, MMR: mmr, Elo: mmr, Tier: tier, Rank: rank,
		LastActiveAt: time.Now().Add(-inactiveFor),
	}
}

func TestSweepPenalizesInactiveHighTiers(t *testing.T) {
	svc, ratings, _ := newDecayFixture(t)
	ctx := context.Background()

	require.NoError(t, ratings.UpsertProfile(ctx, inactiveProfile("dia", 2000, 12*24*time.Hour)))
	require.NoError(t, ratings.UpsertProfile(ctx, inactiveProfile("mas", 2300, 9*24*time.Hour)))

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dia, _ := ratings.GetProfile(ctx, "dia")
	assert.Equal(t, 2000-15, dia.MMR)
	mas, _ := ratings.GetProfile(ctx, "mas")
	assert.Equal(t, 2300-20, mas.MMR)
}

func TestSweepSkipsActiveAndLowTiers(t *testing.T) {
	svc, ratings, _ := newDecayFixture(t)
	ctx := context.Background()

	// GOLD has no decay rule no matter how long the absence.
	require.NoError(t, ratings.UpsertProfile(ctx, inactiveProfile("gold", 1400, 60*24*time.Hour)))
	// DIAMOND but recently active.
	require.NoError(t, ratings.UpsertProfile(ctx, inactiveProfile("dia", 2000, 2*24*time.Hour)))

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	gold, _ := ratings.GetProfile(ctx, "gold")
	assert.Equal(t, 1400, gold.MMR)
}

func TestSweepAppliesAtMostOncePerDay(t *testing.T) {
	svc, ratings, _ := newDecayFixture(t)
	ctx := context.Background()

	require.NoError(t, ratings.UpsertProfile(ctx, inactiveProfile("dia", 2000, 12*24*time.Hour)))

	n, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Same day: the synthetic decay history entry dedups the second sweep.
	n, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	dia, _ := ratings.GetProfile(ctx, "dia")
	assert.Equal(t, 2000-15, dia.MMR)

	// Next day the penalty applies again.
	svc.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	n, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	dia, _ = ratings.GetProfile(ctx, "dia")
	assert.Equal(t, 2000-30, dia.MMR)
}

func TestSweepWritesDecayHistory(t *testing.T) {
	svc, ratings, _ := newDecayFixture(t)
	ctx := context.Background()

	require.NoError(t, ratings.UpsertProfile(ctx, inactiveProfile("dia", 2000, 12*24*time.Hour)))
	_, err := svc.Sweep(ctx)
	require.NoError(t, err)

	page, err := ratings.HistoryPage(ctx, "dia", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	h := page.Entries[0]
	assert.Equal(t, domain.HistoryDecay, h.Kind)
	assert.Equal(t, -15, h.RatingDelta)
	assert.Equal(t, 1985, h.ResultingMMR)
}

func TestSweepEmitsTierDropNeverPromotion(t *testing.T) {
	svc, ratings, notifier := newDecayFixture(t)
	ctx := context.Background()

	// One point above the DIAMOND floor, so the penalty demotes.
	require.NoError(t, ratings.UpsertProfile(ctx, inactiveProfile("edge", 1901, 12*24*time.Hour)))
	_, err := svc.Sweep(ctx)
	require.NoError(t, err)

	changes := notifier.ofKind("tier_changed")
	require.Len(t, changes, 1)
	ev := changes[0].(domain.TierChanged)
	assert.Equal(t, domain.TierDiamond, ev.From)
	assert.Equal(t, domain.TierPlatinum, ev.To)
	assert.True(t, domain.TierAtOrAbove(ev.From, ev.To))
}

func TestSweepDoesNotTouchLastActive(t *testing.T) {
	svc, ratings, _ := newDecayFixture(t)
	ctx := context.Background()

	p := inactiveProfile("dia", 2000, 12*24*time.Hour)
	require.NoError(t, ratings.UpsertProfile(ctx, p))
	_, err := svc.Sweep(ctx)
	require.NoError(t, err)

	// Decay stays applicable tomorrow: the inactivity clock keeps running.
	after, _ := ratings.GetProfile(ctx, "dia")
	assert.Equal(t, p.LastActiveAt, after.LastActiveAt)
}
