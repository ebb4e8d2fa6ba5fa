package memqueue

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

func entry(id string, mmr int, at time.Time, players ...string) domain.QueueEntry {
	if len(players) == 0 {
		players = []string{"player-" + id}
	}
	return domain.QueueEntry{
		EntryID:        id,
		PartyMemberIDs: players,
		LevelMin:       1,
		LevelMax:       10,
		RegionHint:     "eu",
		MMRSnapshot:    mmr,
		EnqueuedAt:     at,
	}
}

func TestKeyForBuckets(t *testing.T) {
	s := New(500)
	assert.Equal(t, PartitionKey{Region: "eu", Bucket: 3}, s.KeyFor("eu", 1500))
	assert.Equal(t, PartitionKey{Region: "eu", Bucket: 3}, s.KeyFor("eu", 1999))
	assert.Equal(t, PartitionKey{Region: "eu", Bucket: 4}, s.KeyFor("eu", 2000))
	assert.Equal(t, PartitionKey{Region: "na", Bucket: 3}, s.KeyFor("na", 1500))
	assert.Equal(t, PartitionKey{Region: "eu", Bucket: 0}, s.KeyFor("eu", -10))
}

func TestAddRejectsActivePlayerAnywhere(t *testing.T) {
	s := New(500)
	now := time.Now()
	require.NoError(t, s.Add(entry("e1", 1500, now, "alice")))

	// Same player, different region and bucket.
	err := s.Add(entry("e2", 900, now, "bob", "alice"))
	var qe *domain.QueueError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, domain.QueueAlreadyActive, qe.Code)

	// The failed add must not leak bob into the player index.
	require.NoError(t, s.Add(entry("e3", 900, now, "bob")))
}

func TestRemoveFreesPlayers(t *testing.T) {
	s := New(500)
	now := time.Now()
	require.NoError(t, s.Add(entry("e1", 1500, now, "alice", "carol")))

	got, existed, err := s.Remove("e1")
	require.NoError(t, err)
	require.True(t, existed)
	assert.Equal(t, "e1", got.EntryID)

	_, existed, err = s.Remove("e1")
	require.NoError(t, err)
	assert.False(t, existed)

	require.NoError(t, s.Add(entry("e2", 1500, now, "alice")))
	require.NoError(t, s.Add(entry("e3", 1500, now, "carol")))
}

func TestReserveIsAllOrNothing(t *testing.T) {
	s := New(500)
	now := time.Now()
	require.NoError(t, s.Add(entry("e1", 1500, now)))
	require.NoError(t, s.Add(entry("e2", 1500, now)))
	key := s.KeyFor("eu", 1500)

	require.NoError(t, s.Reserve(key, []string{"e1"}))

	// e1 is already reserved, so reserving {e1,e2} must leave e2 free.
	err := s.Reserve(key, []string{"e1", "e2"})
	var qe *domain.QueueError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, domain.QueueMatchLocked, qe.Code)

	snap := s.Snapshot(key)
	require.Len(t, snap, 1)
	assert.Equal(t, "e2", snap[0].EntryID)
}

func TestRemoveReservedIsLocked(t *testing.T) {
	s := New(500)
	now := time.Now()
	require.NoError(t, s.Add(entry("e1", 1500, now)))
	key := s.KeyFor("eu", 1500)
	require.NoError(t, s.Reserve(key, []string{"e1"}))

	_, existed, err := s.Remove("e1")
	assert.True(t, existed)
	var qe *domain.QueueError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, domain.QueueMatchLocked, qe.Code)

	s.Release(key, []string{"e1"})
	_, existed, err = s.Remove("e1")
	require.NoError(t, err)
	assert.True(t, existed)
}

func TestReleaseKeepsEnqueueTime(t *testing.T) {
	s := New(500)
	at := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Add(entry("e1", 1500, at)))
	key := s.KeyFor("eu", 1500)

	require.NoError(t, s.Reserve(key, []string{"e1"}))
	assert.Empty(t, s.Snapshot(key))

	s.Release(key, []string{"e1"})
	snap := s.Snapshot(key)
	require.Len(t, snap, 1)
	assert.Equal(t, at, snap[0].EnqueuedAt)
}

func TestConsumeRemovesAndFreesPlayers(t *testing.T) {
	s := New(500)
	now := time.Now()
	require.NoError(t, s.Add(entry("e1", 1500, now, "alice")))
	key := s.KeyFor("eu", 1500)
	require.NoError(t, s.Reserve(key, []string{"e1"}))

	consumed := s.Consume(key, []string{"e1"})
	require.Len(t, consumed, 1)
	assert.Equal(t, "e1", consumed[0].EntryID)

	// alice can queue again straight away.
	require.NoError(t, s.Add(entry("e2", 1500, now, "alice")))
}

func TestSnapshotOrderIsDeterministic(t *testing.T) {
	s := New(500)
	base := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Add(entry("b", 1500, base)))
	require.NoError(t, s.Add(entry("a", 1500, base))) // same instant, id breaks the tie
	require.NoError(t, s.Add(entry("c", 1500, base.Add(-time.Second))))

	snap := s.Snapshot(s.KeyFor("eu", 1500))
	require.Len(t, snap, 3)
	assert.Equal(t, "c", snap[0].EntryID)
	assert.Equal(t, "a", snap[1].EntryID)
	assert.Equal(t, "b", snap[2].EntryID)
}

func TestAppendExpansion(t *testing.T) {
	s := New(500)
	now := time.Now()
	require.NoError(t, s.Add(entry("e1", 1500, now)))
	key := s.KeyFor("eu", 1500)

	s.AppendExpansion(key, "e1", domain.RangeExpansionEvent{ExpandedAt: now, RatingDelta: 25, Reason: "wait_time"})
	s.AppendExpansion(key, "e1", domain.RangeExpansionEvent{ExpandedAt: now, RatingDelta: 25, Reason: "wait_time"})

	snap := s.Snapshot(key)
	require.Len(t, snap, 1)
	assert.Len(t, snap[0].SearchExpansions, 2)
}

func TestListAllFilters(t *testing.T) {
	s := New(500)
	now := time.Now()
	require.NoError(t, s.Add(entry("e1", 1500, now, "alice")))
	require.NoError(t, s.Add(entry("e2", 900, now, "bob")))
	na := entry("e3", 1500, now, "carol")
	na.RegionHint = "na"
	require.NoError(t, s.Add(na))

	assert.Len(t, s.ListAll(domain.QueueFilter{}), 3)
	assert.Len(t, s.ListAll(domain.QueueFilter{Region: "eu"}), 2)

	byPlayer := s.ListAll(domain.QueueFilter{PlayerID: "carol"})
	require.Len(t, byPlayer, 1)
	assert.Equal(t, "e3", byPlayer[0].EntryID)
}

func TestConcurrentAddRemove(t *testing.T) {
	s := New(500)
	now := time.Now()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("w%d-e%d", i, j)
				if err := s.Add(entry(id, 1000+i*100, now, fmt.Sprintf("w%d-p%d", i, j))); err != nil {
					t.Error(err)
					return
				}
				if _, _, err := s.Remove(id); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Empty(t, s.ListAll(domain.QueueFilter{}))
}
