package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

// SmurfWeights tunes how the three signals combine into one score.
type SmurfWeights struct {
	WinRate  float64
	Velocity float64
	Age      float64
}

// SmurfService scores profiles for smurf likelihood after each rating write.
// It is a stateless scorer over stored history plus the external profile
// service; flags are advisory and never change matchmaking eligibility here.
type SmurfService struct {
	ratings   RatingRepo
	flags     FlagRepo
	profiles  ProfileAPI
	notifier  Notifier
	weights   SmurfWeights
	threshold float64
	window    int
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string
}

func NewSmurfService(ratings RatingRepo, flags FlagRepo, profiles ProfileAPI, notifier Notifier, weights SmurfWeights, threshold float64, window int, log zerolog.Logger) *SmurfService {
	if window <= 0 {
		window = 10
	}
	return &SmurfService{
		ratings:   ratings,
		flags:     flags,
		profiles:  profiles,
		notifier:  notifier,
		weights:   weights,
		threshold: threshold,
		window:    window,
		log:       log.With().Str("component", "smurf").Logger(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// maxVelocity is the per-game MMR gain that saturates the velocity signal.
const maxVelocity = 30.0

// matureAccountAge is where the account-age signal reaches zero.
const matureAccountAge = 90 * 24 * time.Hour

// Rescore recomputes the smurf score from the player's recent matches and
// flags them if the threshold is crossed. Decay entries are ignored; only
// real games carry signal.
func (s *SmurfService) Rescore(ctx context.Context, playerID string) error {
	recent, err := s.ratings.RecentMatches(ctx, playerID, s.window)
	if err != nil {
		return fmt.Errorf("recent matches: %w", err)
	}
	// Not enough games to say anything yet.
	if len(recent) < s.window/2 || len(recent) < 3 {
		return nil
	}

	wins, gained := 0, 0
	for _, h := range recent {
		if h.RatingDelta > 0 {
			wins++
			gained += h.RatingDelta
		}
	}
	winRate := float64(wins) / float64(len(recent))
	velocity := float64(gained) / float64(len(recent)) / maxVelocity
	if velocity > 1 {
		velocity = 1
	}

	prof, err := s.profiles.GetPlayerProfile(ctx, playerID)
	if err != nil {
		return fmt.Errorf("profile lookup: %w", err)
	}
	youth := 1 - float64(prof.AccountAge)/float64(matureAccountAge)
	if youth < 0 {
		youth = 0
	}

	score := s.weights.WinRate*winRate + s.weights.Velocity*velocity + s.weights.Age*youth
	if score < s.threshold {
		return nil
	}

	flag := domain.SmurfFlag{
		FlagID:      s.newID(),
		PlayerID:    playerID,
		Score:       score,
		TriggeredAt: s.now(),
		Evidence: []string{
			fmt.Sprintf("win_rate=%.2f over %d games", winRate, len(recent)),
			fmt.Sprintf("avg_gain=%.1f mmr/game", float64(gained)/float64(len(recent))),
			fmt.Sprintf("account_age=%dd", int(prof.AccountAge.Hours()/24)),
		},
	}
	if err := s.flags.Insert(ctx, flag); err != nil {
		return fmt.Errorf("insert flag: %w", err)
	}
	s.log.Info().Str("player", playerID).Float64("score", score).Msg("smurf flagged")
	s.notifier.Publish(ctx, domain.SmurfFlagged{Flag: flag})
	return nil
}
