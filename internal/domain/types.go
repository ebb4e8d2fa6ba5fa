package domain

import "time"

// QueueEntry is one matchmaking request: a solo player or a premade party.
// Immutable after enqueue except SearchExpansions, which the proposer appends
// to while the entry waits.
type QueueEntry struct {
	EntryID        string
	PartyMemberIDs []string // 1..5, unique
	RequestedRoles []string
	LevelMin       int
	LevelMax       int
	RegionHint     string
	MMRSnapshot    int
	EnqueuedAt     time.Time
	Priority       bool

	SearchExpansions []RangeExpansionEvent
}

// RangeExpansionEvent records one widening of the acceptable MMR gap.
type RangeExpansionEvent struct {
	ExpandedAt  time.Time
	RatingDelta int // new_range - old_range
	Reason      string
}

// RoleRequirement bounds how many participants per side may fill a role.
type RoleRequirement struct {
	Role    string
	Minimum int
	Maximum int
}

type ProposalState string

const (
	ProposalForming    ProposalState = "FORMING"
	ProposalReadyCheck ProposalState = "READY_CHECK"
	ProposalConfirmed  ProposalState = "CONFIRMED"
	ProposalCancelled  ProposalState = "CANCELLED"
	ProposalExpired    ProposalState = "EXPIRED"
)

// MatchProposal is owned by the proposer until handed to the ready-check
// coordinator, which then owns every further state transition.
type MatchProposal struct {
	ProposalID         string
	ParticipantEntries []QueueEntry
	RoleAssignment     map[string]string // playerID -> role
	CreatedAt          time.Time
	State              ProposalState
}

// PlayerIDs returns every player across all participant entries.
func (p *MatchProposal) PlayerIDs() []string {
	var out []string
	for _, e := range p.ParticipantEntries {
		out = append(out, e.PartyMemberIDs...)
	}
	return out
}

type AckState string

const (
	AckPending  AckState = "PENDING"
	AckAccepted AckState = "ACCEPTED"
	AckDeclined AckState = "DECLINED"
)

// ReadyCheck is one-to-one with a proposal in READY_CHECK state.
type ReadyCheck struct {
	ProposalID       string
	InitiatorID      string
	ExpiresInSeconds int // 5..45
	Acks             map[string]AckState
	Message          string
	StartedAt        time.Time
}

// RatingProfile is the single source of truth for a player's competitive
// standing. MMR drives matchmaking search; Elo drives the display rank. Both
// update from the same match results but are tuned independently.
type RatingProfile struct {
	PlayerID            string
	MMR                 int
	Elo                 int
	Tier                Tier
	Rank                int // division within the tier, 1 is highest
	PlacementsRemaining int
	LastActiveAt        time.Time
}

type HistoryKind string

const (
	HistoryMatch HistoryKind = "match"
	HistoryDecay HistoryKind = "decay"
)

// RatingHistoryEntry is an immutable, append-only audit record. A matchID
// appears at most once per player, which is what makes result ingestion
// idempotent.
type RatingHistoryEntry struct {
	MatchID      string
	PlayerID     string
	Kind         HistoryKind
	RatingDelta  int
	ResultingMMR int
	ResultingElo int
	RecordedAt   time.Time
}

// RatingHistoryPage is a keyset-paginated slice of a player's history.
type RatingHistoryPage struct {
	Entries    []RatingHistoryEntry
	NextCursor string
}

// TierDecayRule is static configuration, consulted and never mutated.
type TierDecayRule struct {
	Tier           Tier
	InactivityDays int
	PenaltyPerDay  int
}

// SmurfFlag is an advisory signal for moderation tooling; it does not alter
// matchmaking eligibility on its own.
type SmurfFlag struct {
	FlagID      string
	PlayerID    string
	Score       float64
	TriggeredAt time.Time
	Evidence    []string
}

// PlayerProfile is the slice of the external profile service the engine
// consumes at enqueue time and during smurf scoring.
type PlayerProfile struct {
	PlayerID   string
	MMR        int
	Tier       Tier
	AccountAge time.Duration
	Online     bool
}

// MatchOutcome is one participant's result inside a MatchResult. Tagged
// because results cross the wire and are stored as raw JSON before the
// engine applies them.
type MatchOutcome struct {
	PlayerID  string `json:"player_id"`
	Won       bool   `json:"won"`
	Placement int    `json:"placement"` // 1-based, used for free-for-all results
}

// MatchResult arrives from the external match server, at-least-once.
type MatchResult struct {
	MatchID  string         `json:"match_id"`
	Season   string         `json:"season"`
	FreeFor  bool           `json:"free_for_all"` // placements instead of win sides
	Outcomes []MatchOutcome `json:"outcomes"`
}

// MatchConfirmed is the handoff payload sent to the match server once every
// participant accepted the ready check.
type MatchConfirmed struct {
	MatchID        string
	Participants   []string
	RoleAssignment map[string]string
}

// QueueStatus is the read-only view served to status displays.
type QueueStatus struct {
	EntryID      string
	PartyMembers []string
	Region       string
	MMRSnapshot  int
	EnqueuedAt   time.Time
	WaitingFor   time.Duration
	SearchRange  int
	Expansions   int
	Priority     bool
}

// QueueFilter narrows ListActive snapshots.
type QueueFilter struct {
	Region   string
	PlayerID string
}
