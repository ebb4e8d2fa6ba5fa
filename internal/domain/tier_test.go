package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierForBoundaries(t *testing.T) {
	cases := []struct {
		mmr  int
		tier Tier
		rank int
	}{
		{0, TierBronze, 4},
		{999, TierBronze, 1},
		{1000, TierSilver, 4},
		{1299, TierSilver, 1},
		{1300, TierGold, 4},
		{1500, TierGold, 2},
		{1600, TierPlatinum, 4},
		{1900, TierDiamond, 4},
		{2200, TierMaster, 4},
		{2499, TierMaster, 1},
		{2500, TierChampion, 1},
		{9000, TierChampion, 1},
	}
	for _, c := range cases {
		tier, rank := TierFor(c.mmr)
		assert.Equal(t, c.tier, tier, "mmr %d", c.mmr)
		assert.Equal(t, c.rank, rank, "mmr %d", c.mmr)
	}

	// Negative input clamps instead of panicking.
	tier, rank := TierFor(-50)
	assert.Equal(t, TierBronze, tier)
	assert.Equal(t, 4, rank)
}

func TestTierAtOrAbove(t *testing.T) {
	assert.True(t, TierAtOrAbove(TierDiamond, TierGold))
	assert.True(t, TierAtOrAbove(TierGold, TierGold))
	assert.False(t, TierAtOrAbove(TierSilver, TierMaster))
}

func TestDecayRuleFor(t *testing.T) {
	rules := []TierDecayRule{
		{Tier: TierPlatinum, InactivityDays: 14, PenaltyPerDay: 10},
		{Tier: TierDiamond, InactivityDays: 10, PenaltyPerDay: 15},
	}

	// Below every rule: no decay.
	_, ok := DecayRuleFor(TierGold, rules)
	assert.False(t, ok)

	r, ok := DecayRuleFor(TierPlatinum, rules)
	require.True(t, ok)
	assert.Equal(t, TierPlatinum, r.Tier)

	// Tiers above the highest keyed rule inherit it.
	r, ok = DecayRuleFor(TierChampion, rules)
	require.True(t, ok)
	assert.Equal(t, TierDiamond, r.Tier)
}
