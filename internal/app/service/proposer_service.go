package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jose-valero/ranked-engine/internal/domain"
	"github.com/jose-valero/ranked-engine/internal/infra/memqueue"
)

// ProposerService scans the queue partitions on a fixed tick and forms
// balanced proposals. Formation is deterministic: entries are visited in
// enqueue order with entryID as the stable tie-break, so identical queue
// state always yields identical proposals.
type ProposerService struct {
	pool            *memqueue.Store
	ready           *ReadyCheckService
	curve           SearchCurve
	roles           []domain.RoleRequirement
	teamSize        int
	priorityPerTick int
	interval        time.Duration
	log             zerolog.Logger
	now             func() time.Time
	newID           func() string
}

func NewProposerService(pool *memqueue.Store, ready *ReadyCheckService, curve SearchCurve, roles []domain.RoleRequirement, priorityPerTick int, interval time.Duration, log zerolog.Logger) *ProposerService {
	teamSize := 0
	for _, r := range roles {
		teamSize += r.Minimum
	}
	return &ProposerService{
		pool:            pool,
		ready:           ready,
		curve:           curve,
		roles:           roles,
		teamSize:        teamSize,
		priorityPerTick: priorityPerTick,
		interval:        interval,
		log:             log.With().Str("component", "proposer").Logger(),
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

func (s *ProposerService) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one proposer pass over every partition.
func (s *ProposerService) Tick(ctx context.Context) {
	for _, key := range s.pool.Partitions() {
		s.tickPartition(ctx, key)
	}
}

func (s *ProposerService) tickPartition(ctx context.Context, key memqueue.PartitionKey) {
	now := s.now()
	entries := s.pool.Snapshot(key)
	if len(entries) == 0 {
		return
	}

	// Bring range-expansion history up to date before matching so every
	// widening is visible on the entry and in the proposal it ends up in.
	for i := range entries {
		s.recordExpansions(key, &entries[i], now)
	}

	ordered := s.orderForTick(entries)

	used := map[string]bool{}
	for _, seed := range ordered {
		if used[seed.EntryID] {
			continue
		}
		picked, assignment := s.buildProposal(seed, ordered, used, now)
		if picked == nil {
			continue
		}
		ids := make([]string, 0, len(picked))
		for _, e := range picked {
			ids = append(ids, e.EntryID)
		}
		if err := s.pool.Reserve(key, ids); err != nil {
			// Somebody raced us (a cancel slipped in); leave these for the
			// next tick.
			continue
		}
		for _, id := range ids {
			used[id] = true
		}
		p := &domain.MatchProposal{
			ProposalID:         s.newID(),
			ParticipantEntries: picked,
			RoleAssignment:     assignment,
			CreatedAt:          now,
			State:              domain.ProposalForming,
		}
		if err := s.ready.Start(ctx, p, key); err != nil {
			s.pool.Release(key, ids)
			s.log.Error().Err(err).Str("proposal", p.ProposalID).Msg("hand to ready check")
			continue
		}
		s.log.Info().Str("proposal", p.ProposalID).Int("entries", len(picked)).Str("region", key.Region).Int("bucket", key.Bucket).Msg("proposal formed")
	}
}

// recordExpansions appends one RangeExpansionEvent per widening that
// happened since the last tick saw this entry.
func (s *ProposerService) recordExpansions(key memqueue.PartitionKey, e *domain.QueueEntry, now time.Time) {
	target := s.curve.StepsAt(now.Sub(e.EnqueuedAt))
	for step := len(e.SearchExpansions); step < target; step++ {
		prev := s.curve.Base + step*s.curve.Step
		next := prev + s.curve.Step
		if next > s.curve.Max {
			next = s.curve.Max
		}
		ev := domain.RangeExpansionEvent{
			ExpandedAt:  now,
			RatingDelta: next - prev,
			Reason:      "wait_time",
		}
		s.pool.AppendExpansion(key, e.EntryID, ev)
		e.SearchExpansions = append(e.SearchExpansions, ev)
	}
}

// orderForTick lets a bounded number of priority entries skip ahead; the
// rest keep strict enqueue order.
func (s *ProposerService) orderForTick(entries []domain.QueueEntry) []domain.QueueEntry {
	var front, rest []domain.QueueEntry
	skipped := 0
	for _, e := range entries {
		if e.Priority && skipped < s.priorityPerTick {
			front = append(front, e)
			skipped++
		} else {
			rest = append(rest, e)
		}
	}
	return append(front, rest...)
}

// buildProposal tries to fill two sides around a seed entry. Candidates
// must sit inside both their own and the seed's current search range and
// overlap the seed's level range. Returns nil when the partition cannot
// fill every role minimum this tick.
func (s *ProposerService) buildProposal(seed domain.QueueEntry, candidates []domain.QueueEntry, used map[string]bool, now time.Time) ([]domain.QueueEntry, map[string]string) {
	sides := [2]*side{newSide(s.teamSize, s.roles), newSide(s.teamSize, s.roles)}
	var picked []domain.QueueEntry

	seedRange := s.curve.RangeAt(now.Sub(seed.EnqueuedAt))
	for _, cand := range candidates {
		if used[cand.EntryID] {
			continue
		}
		if cand.EntryID != seed.EntryID {
			gap := cand.MMRSnapshot - seed.MMRSnapshot
			if gap < 0 {
				gap = -gap
			}
			if gap > seedRange || gap > s.curve.RangeAt(now.Sub(cand.EnqueuedAt)) {
				continue
			}
			if cand.LevelMax < seed.LevelMin || cand.LevelMin > seed.LevelMax {
				continue
			}
		}
		placed := false
		for _, sd := range sides {
			if sd.place(cand) {
				placed = true
				break
			}
		}
		if placed {
			picked = append(picked, cand)
		}
		if sides[0].full() && sides[1].full() {
			break
		}
	}

	if !sides[0].full() || !sides[1].full() || !sides[0].minimumsMet() || !sides[1].minimumsMet() {
		return nil, nil
	}
	assignment := map[string]string{}
	for _, sd := range sides {
		for pid, role := range sd.assign {
			assignment[pid] = role
		}
	}
	return picked, assignment
}

// side tracks one team being filled: per-role counts against the
// requirements plus the final player->role assignment.
type side struct {
	size      int
	reqs      []domain.RoleRequirement
	count     int
	roleCount map[string]int
	assign    map[string]string
}

func newSide(size int, reqs []domain.RoleRequirement) *side {
	return &side{size: size, reqs: reqs, roleCount: map[string]int{}, assign: map[string]string{}}
}

func (sd *side) full() bool { return sd.count == sd.size }

func (sd *side) minimumsMet() bool {
	for _, r := range sd.reqs {
		if sd.roleCount[r.Role] < r.Minimum {
			return false
		}
	}
	return true
}

// place admits a whole party or nothing. Members with a named role must fit
// under that role's maximum; flex members take whichever role still needs
// its minimum, then whatever has room.
func (sd *side) place(e domain.QueueEntry) bool {
	if sd.count+len(e.PartyMemberIDs) > sd.size {
		return false
	}
	temp := map[string]int{}
	for k, v := range sd.roleCount {
		temp[k] = v
	}
	pending := map[string]string{}

	var flex []string
	for i, pid := range e.PartyMemberIDs {
		role := ""
		if i < len(e.RequestedRoles) {
			role = e.RequestedRoles[i]
		}
		if role == "" || !sd.knownRole(role) {
			flex = append(flex, pid)
			continue
		}
		if temp[role] >= sd.maxFor(role) {
			return false
		}
		temp[role]++
		pending[pid] = role
	}
	for _, pid := range flex {
		role, ok := sd.pickFlexRole(temp)
		if !ok {
			return false
		}
		temp[role]++
		pending[pid] = role
	}

	sd.roleCount = temp
	for pid, role := range pending {
		sd.assign[pid] = role
	}
	sd.count += len(e.PartyMemberIDs)
	return true
}

func (sd *side) pickFlexRole(temp map[string]int) (string, bool) {
	for _, r := range sd.reqs {
		if temp[r.Role] < r.Minimum {
			return r.Role, true
		}
	}
	for _, r := range sd.reqs {
		if temp[r.Role] < r.Maximum {
			return r.Role, true
		}
	}
	return "", false
}

func (sd *side) knownRole(role string) bool {
	for _, r := range sd.reqs {
		if r.Role == role {
			return true
		}
	}
	return false
}

func (sd *side) maxFor(role string) int {
	for _, r := range sd.reqs {
		if r.Role == role {
			return r.Maximum
		}
	}
	return 0
}
