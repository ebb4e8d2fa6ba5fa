package domain

import "time"

// Event is anything the engine publishes to downstream consumers (client
// push, analytics, moderation).
type Event interface {
	EventKind() string
}

type QueueStatusChanged struct {
	EntryID string
	Players []string
	Status  string // queued | cancelled | matched | requeued
	At      time.Time
}

func (QueueStatusChanged) EventKind() string { return "queue_status_changed" }

type ReadyCheckStarted struct {
	ProposalID string
	Players    []string
	ExpiresIn  time.Duration
	At         time.Time
}

func (ReadyCheckStarted) EventKind() string { return "ready_check_started" }

type ReadyCheckResolved struct {
	ProposalID string
	State      ProposalState
	At         time.Time
}

func (ReadyCheckResolved) EventKind() string { return "ready_check_resolved" }

type RatingUpdated struct {
	PlayerID string
	MatchID  string
	Delta    int
	MMR      int
	Elo      int
	At       time.Time
}

func (RatingUpdated) EventKind() string { return "rating_updated" }

type TierChanged struct {
	PlayerID string
	From     Tier
	To       Tier
	Rank     int
	At       time.Time
}

func (TierChanged) EventKind() string { return "tier_changed" }

type SmurfFlagged struct {
	Flag SmurfFlag
}

func (SmurfFlagged) EventKind() string { return "smurf_flagged" }
