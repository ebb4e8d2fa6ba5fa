package domain

type Tier string

const (
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
	TierDiamond  Tier = "DIAMOND"
	TierMaster   Tier = "MASTER"
	TierChampion Tier = "CHAMPION"
)

// tierFloors is ordered low to high; a tier covers [floor, next floor).
var tierFloors = []struct {
	tier  Tier
	floor int
}{
	{TierBronze, 0},
	{TierSilver, 1000},
	{TierGold, 1300},
	{TierPlatinum, 1600},
	{TierDiamond, 1900},
	{TierMaster, 2200},
	{TierChampion, 2500},
}

const divisionsPerTier = 4

// TierFor maps an MMR to its display tier and division. Division 1 is the
// highest inside a tier.
func TierFor(mmr int) (Tier, int) {
	if mmr < 0 {
		mmr = 0
	}
	for i := len(tierFloors) - 1; i >= 0; i-- {
		tf := tierFloors[i]
		if mmr < tf.floor {
			continue
		}
		// CHAMPION has no ceiling and no divisions.
		if i == len(tierFloors)-1 {
			return tf.tier, 1
		}
		span := tierFloors[i+1].floor - tf.floor
		step := span / divisionsPerTier
		div := divisionsPerTier - (mmr-tf.floor)/step
		if div < 1 {
			div = 1
		}
		return tf.tier, div
	}
	return TierBronze, divisionsPerTier
}

// TierAtOrAbove reports whether a is the same tier as b or higher.
func TierAtOrAbove(a, b Tier) bool {
	return tierIndex(a) >= tierIndex(b)
}

func tierIndex(t Tier) int {
	for i, tf := range tierFloors {
		if tf.tier == t {
			return i
		}
	}
	return 0
}

// DecayRuleFor picks the decay rule that applies to a tier, if any. Rules
// are keyed by the lowest tier they cover.
func DecayRuleFor(t Tier, rules []TierDecayRule) (TierDecayRule, bool) {
	var best TierDecayRule
	found := false
	for _, r := range rules {
		if !TierAtOrAbove(t, r.Tier) {
			continue
		}
		if !found || tierIndex(r.Tier) > tierIndex(best.Tier) {
			best = r
			found = true
		}
	}
	return best, found
}
