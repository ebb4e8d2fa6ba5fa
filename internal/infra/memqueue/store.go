package memqueue

import (
	"sort"
	"sync"

	"github.com/jose-valero/ranked-engine/internal/domain"
)

// Store holds live queue entries partitioned by region and a coarse MMR
// bucket. Each partition carries its own lock so proposer ticks over
// different partitions never contend; the store-level lock only guards the
// partition map and the player index used for admission checks.
type Store struct {
	mu         sync.RWMutex
	parts      map[PartitionKey]*partition
	byPlayer   map[string]string // playerID -> entryID, across all partitions
	bucketSize int
}

type PartitionKey struct {
	Region string
	Bucket int
}

type partition struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	entry    domain.QueueEntry
	reserved bool
}

func New(bucketSize int) *Store {
	if bucketSize <= 0 {
		bucketSize = 500
	}
	return &Store{
		parts:      map[PartitionKey]*partition{},
		byPlayer:   map[string]string{},
		bucketSize: bucketSize,
	}
}

func (s *Store) KeyFor(region string, mmr int) PartitionKey {
	if mmr < 0 {
		mmr = 0
	}
	return PartitionKey{Region: region, Bucket: mmr / s.bucketSize}
}

// Add admits an entry. It fails if any party member already has an active
// entry anywhere in the store.
func (s *Store) Add(e domain.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pid := range e.PartyMemberIDs {
		if other, ok := s.byPlayer[pid]; ok {
			return domain.NewQueueError(domain.QueueAlreadyActive, "player %s already queued in entry %s", pid, other)
		}
	}
	key := s.KeyFor(e.RegionHint, e.MMRSnapshot)
	p := s.parts[key]
	if p == nil {
		p = &partition{slots: map[string]*slot{}}
		s.parts[key] = p
	}
	p.mu.Lock()
	p.slots[e.EntryID] = &slot{entry: e}
	p.mu.Unlock()
	for _, pid := range e.PartyMemberIDs {
		s.byPlayer[pid] = e.EntryID
	}
	return nil
}

// Remove drops an entry from the pool. The second return reports whether the
// entry existed; removing a reserved entry is rejected with a match-locked
// error so a forming proposal keeps its participants.
func (s *Store) Remove(entryID string) (domain.QueueEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, p := range s.parts {
		p.mu.Lock()
		sl, ok := p.slots[entryID]
		if !ok {
			p.mu.Unlock()
			continue
		}
		if sl.reserved {
			p.mu.Unlock()
			return domain.QueueEntry{}, true, domain.NewQueueError(domain.QueueMatchLocked, "entry %s is locked by a forming proposal", entryID)
		}
		delete(p.slots, entryID)
		empty := len(p.slots) == 0
		p.mu.Unlock()
		for _, pid := range sl.entry.PartyMemberIDs {
			delete(s.byPlayer, pid)
		}
		if empty {
			delete(s.parts, key)
		}
		return sl.entry, true, nil
	}
	return domain.QueueEntry{}, false, nil
}

// Partitions returns a snapshot of the live partition keys in a stable
// order, so a tick visits them deterministically.
func (s *Store) Partitions() []PartitionKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]PartitionKey, 0, len(s.parts))
	for k := range s.parts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Region != keys[j].Region {
			return keys[i].Region < keys[j].Region
		}
		return keys[i].Bucket < keys[j].Bucket
	})
	return keys
}

// Snapshot returns copies of the unreserved entries of one partition sorted
// by enqueue time, entryID as the stable tie-break.
func (s *Store) Snapshot(key PartitionKey) []domain.QueueEntry {
	p := s.part(key)
	if p == nil {
		return nil
	}
	p.mu.Lock()
	out := make([]domain.QueueEntry, 0, len(p.slots))
	for _, sl := range p.slots {
		if !sl.reserved {
			out = append(out, sl.entry)
		}
	}
	p.mu.Unlock()
	sortEntries(out)
	return out
}

// Reserve locks a set of entries for a forming proposal, all-or-nothing.
func (s *Store) Reserve(key PartitionKey, entryIDs []string) error {
	p := s.part(key)
	if p == nil {
		return domain.NewQueueError(domain.QueueMatchLocked, "partition %s/%d is gone", key.Region, key.Bucket)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range entryIDs {
		sl, ok := p.slots[id]
		if !ok || sl.reserved {
			return domain.NewQueueError(domain.QueueMatchLocked, "entry %s is no longer available", id)
		}
	}
	for _, id := range entryIDs {
		p.slots[id].reserved = true
	}
	return nil
}

// Release returns reserved entries to the pool after a proposal dissolves.
func (s *Store) Release(key PartitionKey, entryIDs []string) {
	p := s.part(key)
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range entryIDs {
		if sl, ok := p.slots[id]; ok {
			sl.reserved = false
		}
	}
}

// Consume converts a reservation into permanent removal once a proposal is
// confirmed.
func (s *Store) Consume(key PartitionKey, entryIDs []string) []domain.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.parts[key]
	if p == nil {
		return nil
	}
	p.mu.Lock()
	var out []domain.QueueEntry
	for _, id := range entryIDs {
		sl, ok := p.slots[id]
		if !ok {
			continue
		}
		delete(p.slots, id)
		out = append(out, sl.entry)
		for _, pid := range sl.entry.PartyMemberIDs {
			delete(s.byPlayer, pid)
		}
	}
	empty := len(p.slots) == 0
	p.mu.Unlock()
	if empty {
		delete(s.parts, key)
	}
	return out
}

// AppendExpansion records a search-range widening on a queued entry.
func (s *Store) AppendExpansion(key PartitionKey, entryID string, ev domain.RangeExpansionEvent) {
	p := s.part(key)
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if sl, ok := p.slots[entryID]; ok {
		sl.entry.SearchExpansions = append(sl.entry.SearchExpansions, ev)
	}
}

// ListAll returns unreserved entries across every partition, optionally
// filtered. Read-only snapshot for status displays.
func (s *Store) ListAll(f domain.QueueFilter) []domain.QueueEntry {
	var out []domain.QueueEntry
	for _, key := range s.Partitions() {
		if f.Region != "" && key.Region != f.Region {
			continue
		}
		for _, e := range s.Snapshot(key) {
			if f.PlayerID != "" && !hasPlayer(e, f.PlayerID) {
				continue
			}
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

func (s *Store) part(key PartitionKey) *partition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parts[key]
}

func sortEntries(entries []domain.QueueEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].EnqueuedAt.Equal(entries[j].EnqueuedAt) {
			return entries[i].EnqueuedAt.Before(entries[j].EnqueuedAt)
		}
		return entries[i].EntryID < entries[j].EntryID
	})
}

func hasPlayer(e domain.QueueEntry, playerID string) bool {
	for _, pid := range e.PartyMemberIDs {
		if pid == playerID {
			return true
		}
	}
	return false
}
