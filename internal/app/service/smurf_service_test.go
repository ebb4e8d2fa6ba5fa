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

func newSmurfFixture(t *testing.T, threshold float64) (*SmurfService, *memRatingRepo, *stubProfiles, *memFlagRepo, *stubNotifier) {
	t.Helper()
	ratings := newMemRatingRepo()
	profiles := newStubProfiles()
	flags := &memFlagRepo{}
	notifier := &stubNotifier{}
	weights := SmurfWeights{WinRate: 0.5, Velocity: 0.3, Age: 0.2}
	svc := NewSmurfService(ratings, flags, profiles, notifier, weights, threshold, 10, zerolog.Nop())
	return svc, ratings, profiles, flags, notifier
}

func recordGames(t *testing.T, ratings *memRatingRepo, playerID string, deltas []int) {
	t.Helper()
	mmr := domain.StartingMMR
	for i, d := range deltas {
		mmr += d
		_, err := ratings.InsertHistory(context.Background(), domain.RatingHistoryEntry{
			MatchID:      playerID + "-m" + string(rune('a'+i)),
			PlayerID:     playerID,
			Kind:         domain.HistoryMatch,
			RatingDelta:  d,
			ResultingMMR: mmr,
			RecordedAt:   time.Now(),
		})
		require.NoError(t, err)
	}
}

func TestRescoreFlagsFreshStomper(t *testing.T) {
	svc, ratings, profiles, flags, notifier := newSmurfFixture(t, 0.75)

	// Ten straight wins at high gain on a week-old account.
	recordGames(t, ratings, "sus", []int{30, 30, 28, 30, 29, 30, 30, 27, 30, 30})
	profiles.add(domain.PlayerProfile{PlayerID: "sus", MMR: 1500, Online: true, AccountAge: 7 * 24 * time.Hour})

	require.NoError(t, svc.Rescore(context.Background(), "sus"))

	require.Equal(t, 1, flags.count())
	flagged := notifier.ofKind("smurf_flagged")
	require.Len(t, flagged, 1)
	f := flagged[0].(domain.SmurfFlagged).Flag
	assert.Equal(t, "sus", f.PlayerID)
	assert.GreaterOrEqual(t, f.Score, 0.75)
	assert.NotEmpty(t, f.Evidence)
}

func TestRescoreIgnoresVeteranWithNormalRecord(t *testing.T) {
	svc, ratings, profiles, flags, _ := newSmurfFixture(t, 0.75)

	// Mixed results on a year-old account.
	recordGames(t, ratings, "vet", []int{12, -11, 10, -12, 13, -10, 11, -13, 12, -11})
	profiles.add(domain.PlayerProfile{PlayerID: "vet", MMR: 1500, Online: true, AccountAge: 365 * 24 * time.Hour})

	require.NoError(t, svc.Rescore(context.Background(), "vet"))
	assert.Zero(t, flags.count())
}

func TestRescoreNeedsEnoughGames(t *testing.T) {
	svc, ratings, profiles, flags, _ := newSmurfFixture(t, 0.1)

	recordGames(t, ratings, "new", []int{30, 30})
	profiles.add(domain.PlayerProfile{PlayerID: "new", MMR: 1500, Online: true, AccountAge: 24 * time.Hour})

	require.NoError(t, svc.Rescore(context.Background(), "new"))
	assert.Zero(t, flags.count())
}

func TestRescoreIgnoresDecayEntries(t *testing.T) {
	svc, ratings, profiles, flags, _ := newSmurfFixture(t, 0.75)

	recordGames(t, ratings, "sus", []int{30, 30, 30, 30, 30, 30, 30, 30, 30, 30})
	// A decay entry must not dilute or inflate the window.
	_, err := ratings.InsertHistory(context.Background(), domain.RatingHistoryEntry{
		MatchID: "decay-2026-05-10", PlayerID: "sus", Kind: domain.HistoryDecay,
		RatingDelta: -15, ResultingMMR: 1485, RecordedAt: time.Now(),
	})
	require.NoError(t, err)
	profiles.add(domain.PlayerProfile{PlayerID: "sus", MMR: 1500, Online: true, AccountAge: 7 * 24 * time.Hour})

	require.NoError(t, svc.Rescore(context.Background(), "sus"))
	assert.Equal(t, 1, flags.count())
}
