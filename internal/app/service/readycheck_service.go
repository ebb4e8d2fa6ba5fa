package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/jose-valero/ranked-engine/internal/domain"
	"github.com/jose-valero/ranked-engine/internal/infra/memqueue"
)

// ReadyCheckService owns every proposal from the moment the proposer hands
// it over: it collects acknowledgements under a deadline and either confirms
// the match or dissolves the proposal back into the queue.
type ReadyCheckService struct {
	pool      *memqueue.Store
	queue     *QueueService
	matches   MatchServerAPI
	notifier  Notifier
	log       zerolog.Logger
	expiresIn int // seconds, 5..45
	cooldown  time.Duration
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu       sync.Mutex
	checks   map[string]*check
	resolved map[string]resolvedCheck
}

type check struct {
	proposal *domain.MatchProposal
	key      memqueue.PartitionKey
	rc       *domain.ReadyCheck
	timer    *time.Timer
}

type resolvedCheck struct {
	state domain.ProposalState
	at    time.Time
}

const resolvedRetention = time.Hour

func NewReadyCheckService(pool *memqueue.Store, queue *QueueService, matches MatchServerAPI, notifier Notifier, expiresIn int, cooldown time.Duration, log zerolog.Logger) *ReadyCheckService {
	return &ReadyCheckService{
		pool:      pool,
		queue:     queue,
		matches:   matches,
		notifier:  notifier,
		log:       log.With().Str("component", "readycheck").Logger(),
		expiresIn: expiresIn,
		cooldown:  cooldown,
		now:       time.Now,
		afterFunc: time.AfterFunc,
		checks:    map[string]*check{},
		resolved:  map[string]resolvedCheck{},
	}
}

// Start takes ownership of a FORMING proposal whose entries are already
// reserved in the pool and moves it to READY_CHECK under a deadline timer.
func (s *ReadyCheckService) Start(ctx context.Context, p *domain.MatchProposal, key memqueue.PartitionKey) error {
	if s.expiresIn < 5 || s.expiresIn > 45 {
		return domain.NewMatchError(domain.MatchInvalidToken, "expiresInSeconds %d outside 5..45", s.expiresIn)
	}
	players := p.PlayerIDs()
	acks := make(map[string]domain.AckState, len(players))
	for _, pid := range players {
		acks[pid] = domain.AckPending
	}
	rc := &domain.ReadyCheck{
		ProposalID:       p.ProposalID,
		InitiatorID:      players[0],
		ExpiresInSeconds: s.expiresIn,
		Acks:             acks,
		StartedAt:        s.now(),
	}

	s.mu.Lock()
	p.State = domain.ProposalReadyCheck
	c := &check{proposal: p, key: key, rc: rc}
	c.timer = s.afterFunc(time.Duration(s.expiresIn)*time.Second, func() { s.expire(p.ProposalID) })
	s.checks[p.ProposalID] = c
	s.pruneResolvedLocked()
	s.mu.Unlock()

	s.log.Info().Str("proposal", p.ProposalID).Int("players", len(players)).Int("expires_s", s.expiresIn).Msg("ready check started")
	s.notifier.Publish(ctx, domain.ReadyCheckStarted{
		ProposalID: p.ProposalID,
		Players:    players,
		ExpiresIn:  time.Duration(s.expiresIn) * time.Second,
		At:         rc.StartedAt,
	})
	return nil
}

// Ack records one player's accept or decline. Identical duplicates are
// ignored; any ack after the proposal resolved is rejected.
func (s *ReadyCheckService) Ack(ctx context.Context, proposalID, playerID string, accept bool) error {
	s.mu.Lock()
	c, ok := s.checks[proposalID]
	if !ok {
		if r, was := s.resolved[proposalID]; was {
			s.mu.Unlock()
			return domain.NewMatchError(domain.MatchAlreadyConfirmed, "proposal %s already resolved as %s", proposalID, r.state)
		}
		s.mu.Unlock()
		return domain.NewMatchError(domain.MatchProposalNotFound, "proposal %s", proposalID)
	}
	prev, participant := c.rc.Acks[playerID]
	if !participant {
		s.mu.Unlock()
		return domain.NewMatchError(domain.MatchInvalidToken, "player %s is not part of proposal %s", playerID, proposalID)
	}
	want := domain.AckDeclined
	if accept {
		want = domain.AckAccepted
	}
	if prev != domain.AckPending {
		s.mu.Unlock()
		if prev == want {
			return nil // duplicate of the same ack, tolerate the retry
		}
		return domain.NewMatchError(domain.MatchAlreadyConfirmed, "player %s already answered %s", playerID, prev)
	}
	c.rc.Acks[playerID] = want

	if !accept {
		fin := s.resolveLocked(c, domain.ProposalCancelled)
		s.mu.Unlock()
		fin(ctx)
		return nil
	}
	for _, st := range c.rc.Acks {
		if st != domain.AckAccepted {
			s.mu.Unlock()
			return nil
		}
	}
	// Everyone accepted: confirm immediately, the timer does not get a say.
	fin := s.resolveLocked(c, domain.ProposalConfirmed)
	s.mu.Unlock()
	fin(ctx)
	return nil
}

// Pending returns the live ready check for a proposal, for status displays.
func (s *ReadyCheckService) Pending(proposalID string) (domain.ReadyCheck, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.checks[proposalID]
	if !ok {
		return domain.ReadyCheck{}, false
	}
	out := *c.rc
	out.Acks = make(map[string]domain.AckState, len(c.rc.Acks))
	for k, v := range c.rc.Acks {
		out.Acks[k] = v
	}
	return out, true
}

func (s *ReadyCheckService) expire(proposalID string) {
	s.mu.Lock()
	c, ok := s.checks[proposalID]
	if !ok {
		s.mu.Unlock()
		return // resolved before the timer fired
	}
	fin := s.resolveLocked(c, domain.ProposalExpired)
	s.mu.Unlock()
	fin(context.Background())
}

// resolveLocked finalizes a proposal: check bookkeeping and pool state flip
// under s.mu, everything that leaves the process does not. Callers hold s.mu
// and must run the returned func after releasing it, so penalty writes and
// event publishes never serialize other acks or expiry callbacks.
func (s *ReadyCheckService) resolveLocked(c *check, state domain.ProposalState) func(ctx context.Context) {
	c.timer.Stop()
	delete(s.checks, c.proposal.ProposalID)
	s.resolved[c.proposal.ProposalID] = resolvedCheck{state: state, at: s.now()}
	c.proposal.State = state

	if state == domain.ProposalConfirmed {
		s.pool.Consume(c.key, entryIDs(c.proposal))
		players := c.proposal.PlayerIDs()
		return func(ctx context.Context) {
			s.log.Info().Str("proposal", c.proposal.ProposalID).Int("players", len(players)).Msg("confirmed")
			s.notifier.Publish(ctx, domain.QueueStatusChanged{
				EntryID: c.proposal.ProposalID,
				Players: players,
				Status:  "matched",
				At:      s.now(),
			})
			go s.handoff(domain.MatchConfirmed{
				MatchID:        c.proposal.ProposalID,
				Participants:   players,
				RoleAssignment: c.proposal.RoleAssignment,
			})
			s.notifier.Publish(ctx, domain.ReadyCheckResolved{
				ProposalID: c.proposal.ProposalID,
				State:      state,
				At:         s.now(),
			})
		}
	}

	// Entries whose members all answered ACCEPTED stay queued with their
	// original enqueuedAt; the rest are removed and their offending players
	// go on cooldown.
	var goodIDs, badIDs []string
	var offenders []string
	for _, e := range c.proposal.ParticipantEntries {
		good := true
		for _, pid := range e.PartyMemberIDs {
			if c.rc.Acks[pid] != domain.AckAccepted {
				good = false
				offenders = append(offenders, pid)
			}
		}
		if good {
			goodIDs = append(goodIDs, e.EntryID)
		} else {
			badIDs = append(badIDs, e.EntryID)
		}
	}
	s.pool.Release(c.key, goodIDs)
	s.pool.Consume(c.key, badIDs)

	return func(ctx context.Context) {
		if len(offenders) > 0 {
			s.queue.Penalize(ctx, offenders, "ready_check_"+string(state), s.cooldown)
		}
		s.log.Info().Str("proposal", c.proposal.ProposalID).Str("state", string(state)).Int("requeued", len(goodIDs)).Int("dropped", len(badIDs)).Msg("dissolved")
		s.notifier.Publish(ctx, domain.QueueStatusChanged{
			EntryID: c.proposal.ProposalID,
			Players: c.proposal.PlayerIDs(),
			Status:  "requeued",
			At:      s.now(),
		})
		s.notifier.Publish(ctx, domain.ReadyCheckResolved{
			ProposalID: c.proposal.ProposalID,
			State:      state,
			At:         s.now(),
		})
	}
}

// handoff notifies the external match server with backoff; the queue-side
// state is already final, so this only retries the side effect.
func (s *ReadyCheckService) handoff(m domain.MatchConfirmed) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	b := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := s.matches.CreateMatch(ctx, m); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("match", m.MatchID).Msg("match server handoff failed")
	}
}

func (s *ReadyCheckService) pruneResolvedLocked() {
	cutoff := s.now().Add(-resolvedRetention)
	for id, r := range s.resolved {
		if r.at.Before(cutoff) {
			delete(s.resolved, id)
		}
	}
}

func entryIDs(p *domain.MatchProposal) []string {
	out := make([]string, 0, len(p.ParticipantEntries))
	for _, e := range p.ParticipantEntries {
		out = append(out, e.EntryID)
	}
	return out
}
