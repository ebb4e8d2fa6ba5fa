package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jose-valero/ranked-engine/internal/domain"
	"github.com/jose-valero/ranked-engine/internal/infra/storage"
)

// In-memory fakes for the service ports. They mirror the Postgres repos'
// contracts closely enough for behavior tests: the history insert is the
// idempotency gate, ApplyDelta fails with nothing written, ActiveUntil
// only reports unexpired penalties, and so on.

type stubProfiles struct {
	mu       sync.Mutex
	profiles map[string]domain.PlayerProfile
}

func newStubProfiles() *stubProfiles {
	return &stubProfiles{profiles: map[string]domain.PlayerProfile{}}
}

func (s *stubProfiles) add(p domain.PlayerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.PlayerID] = p
}

func (s *stubProfiles) GetPlayerProfile(_ context.Context, playerID string) (domain.PlayerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[playerID]
	if !ok {
		return domain.PlayerProfile{}, fmt.Errorf("player %s: not found", playerID)
	}
	return p, nil
}

type stubMatchServer struct {
	mu      sync.Mutex
	created []domain.MatchConfirmed
	fails   int
}

func (s *stubMatchServer) CreateMatch(_ context.Context, m domain.MatchConfirmed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return fmt.Errorf("transient")
	}
	s.created = append(s.created, m)
	return nil
}

func (s *stubMatchServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

type stubNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *stubNotifier) Publish(_ context.Context, ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *stubNotifier) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventKind())
	}
	return out
}

func (s *stubNotifier) ofKind(kind string) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, ev := range s.events {
		if ev.EventKind() == kind {
			out = append(out, ev)
		}
	}
	return out
}

type memRatingRepo struct {
	mu       sync.Mutex
	profiles map[string]domain.RatingProfile
	history  []domain.RatingHistoryEntry
	seen     map[string]bool  // matchID|playerID
	getErrs  map[string]error // one-shot GetProfile failures per player
	deltaErr map[string]bool  // fail the next ApplyDelta for this player
}

func newMemRatingRepo() *memRatingRepo {
	return &memRatingRepo{
		profiles: map[string]domain.RatingProfile{},
		seen:     map[string]bool{},
		getErrs:  map[string]error{},
		deltaErr: map[string]bool{},
	}
}

// failProfileLoad makes the next GetProfile for the player return err,
// simulating a transient outage on the read path.
func (r *memRatingRepo) failProfileLoad(playerID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getErrs[playerID] = err
}

// failNextDelta makes the next ApplyDelta for the player fail with nothing
// written, the contract of a rolled-back transaction.
func (r *memRatingRepo) failNextDelta(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltaErr[playerID] = true
}

func (r *memRatingRepo) GetProfile(_ context.Context, playerID string) (domain.RatingProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.getErrs[playerID]; ok {
		delete(r.getErrs, playerID)
		return domain.RatingProfile{}, err
	}
	p, ok := r.profiles[playerID]
	if !ok {
		return domain.RatingProfile{}, storage.ErrNotFound
	}
	return p, nil
}

func (r *memRatingRepo) UpsertProfile(_ context.Context, p domain.RatingProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.PlayerID] = p
	return nil
}

func (r *memRatingRepo) InsertHistory(_ context.Context, h domain.RatingHistoryEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := h.MatchID + "|" + h.PlayerID
	if r.seen[key] {
		return false, nil
	}
	r.seen[key] = true
	r.history = append(r.history, h)
	return true, nil
}

func (r *memRatingRepo) ApplyDelta(_ context.Context, h domain.RatingHistoryEntry, p domain.RatingProfile) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := h.MatchID + "|" + h.PlayerID
	if r.seen[key] {
		return false, nil
	}
	if r.deltaErr[p.PlayerID] {
		delete(r.deltaErr, p.PlayerID)
		return false, fmt.Errorf("exec delta: connection reset")
	}
	r.seen[key] = true
	r.history = append(r.history, h)
	r.profiles[p.PlayerID] = p
	return true, nil
}

func (r *memRatingRepo) HistoryPage(_ context.Context, playerID, _ string, limit int) (domain.RatingHistoryPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var out []domain.RatingHistoryEntry
	for i := len(r.history) - 1; i >= 0 && len(out) < limit; i-- {
		if r.history[i].PlayerID == playerID {
			out = append(out, r.history[i])
		}
	}
	return domain.RatingHistoryPage{Entries: out}, nil
}

func (r *memRatingRepo) RecentMatches(_ context.Context, playerID string, n int) ([]domain.RatingHistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.RatingHistoryEntry
	for i := len(r.history) - 1; i >= 0 && len(out) < n; i-- {
		h := r.history[i]
		if h.PlayerID == playerID && h.Kind == domain.HistoryMatch {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *memRatingRepo) ListInactive(_ context.Context, tiers []string, before time.Time) ([]domain.RatingProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[string]bool{}
	for _, t := range tiers {
		want[t] = true
	}
	var out []domain.RatingProfile
	for _, p := range r.profiles {
		if want[string(p.Tier)] && p.LastActiveAt.Before(before) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}

func (r *memRatingRepo) ApplyDecay(_ context.Context, playerID string, mmr int, tier domain.Tier, rank int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[playerID]
	if !ok {
		return storage.ErrNotFound
	}
	p.MMR = mmr
	p.Tier = tier
	p.Rank = rank
	r.profiles[playerID] = p
	return nil
}

type memResultRepo struct {
	mu        sync.Mutex
	stored    map[string]domain.MatchResult
	processed map[string]bool
}

func newMemResultRepo() *memResultRepo {
	return &memResultRepo{stored: map[string]domain.MatchResult{}, processed: map[string]bool{}}
}

func (r *memResultRepo) Insert(_ context.Context, res domain.MatchResult) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stored[res.MatchID]; ok {
		return false, nil
	}
	r.stored[res.MatchID] = res
	return true, nil
}

func (r *memResultRepo) MarkProcessed(_ context.Context, matchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed[matchID] = true
	return nil
}

func (r *memResultRepo) ListUnprocessed(_ context.Context, limit int) ([]domain.MatchResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.MatchResult
	for id, res := range r.stored {
		if !r.processed[id] {
			out = append(out, res)
		}
		if len(out) == limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out, nil
}

type memPenaltyRepo struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func newMemPenaltyRepo() *memPenaltyRepo {
	return &memPenaltyRepo{until: map[string]time.Time{}}
}

func (r *memPenaltyRepo) Set(_ context.Context, playerID, _ string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.until[playerID]; !ok || until.After(cur) {
		r.until[playerID] = until
	}
	return nil
}

func (r *memPenaltyRepo) ActiveUntil(_ context.Context, playerID string) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.until[playerID]
	if !ok || u.Before(time.Now()) {
		return time.Time{}, false, nil
	}
	return u, true, nil
}

func (r *memPenaltyRepo) PruneExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for pid, u := range r.until {
		if u.Before(time.Now()) {
			delete(r.until, pid)
			n++
		}
	}
	return n, nil
}

type memFlagRepo struct {
	mu    sync.Mutex
	flags []domain.SmurfFlag
}

func (r *memFlagRepo) Insert(_ context.Context, f domain.SmurfFlag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags = append(r.flags, f)
	return nil
}

func (r *memFlagRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flags)
}
