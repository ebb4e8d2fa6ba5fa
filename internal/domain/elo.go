package domain

import "math"

// Classic ELO expected-score update. MMR and Elo run through the same
// formula with independent K factors so the hidden and display ratings can
// be tuned separately. Placement games use a wider K until the profile
// settles.

const (
	KPlacement = 40
	KSteadyMMR = 24
	KSteadyElo = 20

	// DefaultPlacements is how many provisional games a fresh profile plays.
	DefaultPlacements = 5

	StartingMMR = 1200
	StartingElo = 1000
)

// ExpectedScore is the probability that a rating beats an opponent rating.
func ExpectedScore(rating, opponent int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(opponent-rating)/400.0))
}

// RatingDelta computes the signed rating change for one game. score is 1 for
// a win, 0 for a loss, and a fractional value for placements in free-for-all
// results.
func RatingDelta(rating, opponent int, score float64, k int) int {
	d := float64(k) * (score - ExpectedScore(rating, opponent))
	return int(math.Round(d))
}

// PlacementScore converts a 1-based FFA placement among n players into a
// score in [0,1]; first place scores 1, last scores 0.
func PlacementScore(placement, n int) float64 {
	if n <= 1 {
		return 0.5
	}
	return float64(n-placement) / float64(n-1)
}
