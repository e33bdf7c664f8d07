package session

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists sessions between turns.
type Store interface {
	// Get returns the session or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	// List returns the most recently updated sessions first.
	List(ctx context.Context, limit int) ([]Summary, error)
}

// MemoryStore keeps live sessions in process, evicting the least recently
// used beyond MaxSessions and any idle longer than TTL.
type MemoryStore struct {
	mu sync.Mutex

	ttl         time.Duration
	maxSessions int

	lru *list.List               // front=MRU
	m   map[string]*list.Element // id -> element(Value=*item)
}

type item struct {
	s        *Session
	lastUsed time.Time
}

// NewMemoryStore creates a MemoryStore. Non-positive limits fall back to 24h
// and 4096 sessions.
func NewMemoryStore(ttl time.Duration, maxSessions int) *MemoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxSessions <= 0 {
		maxSessions = 4096
	}
	return &MemoryStore{
		ttl:         ttl,
		maxSessions: maxSessions,
		lru:         list.New(),
		m:           map[string]*list.Element{},
	}
}

// Get returns the live session, including its conversation handle.
func (st *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	now := time.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.evictExpiredLocked(now)

	e := st.m[id]
	if e == nil {
		return nil, ErrNotFound
	}
	it := e.Value.(*item)
	it.lastUsed = now
	st.lru.MoveToFront(e)
	return it.s, nil
}

// Save inserts or refreshes s.
func (st *MemoryStore) Save(_ context.Context, s *Session) error {
	if err := ValidateID(s.ID); err != nil {
		return err
	}
	now := time.Now()

	st.mu.Lock()
	defer st.mu.Unlock()

	st.evictExpiredLocked(now)

	if e := st.m[s.ID]; e != nil {
		it := e.Value.(*item)
		it.s = s
		it.lastUsed = now
		st.lru.MoveToFront(e)
		return nil
	}
	st.m[s.ID] = st.lru.PushFront(&item{s: s, lastUsed: now})
	st.evictOverLimitLocked()
	return nil
}

// Delete removes id. Deleting an unknown id is not an error.
func (st *MemoryStore) Delete(_ context.Context, id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if e := st.m[id]; e != nil {
		st.deleteElemLocked(e)
	}
	return nil
}

// List returns summaries in most-recently-updated order.
func (st *MemoryStore) List(_ context.Context, limit int) ([]Summary, error) {
	st.mu.Lock()
	st.evictExpiredLocked(time.Now())
	out := make([]Summary, 0, st.lru.Len())
	for e := st.lru.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*item).s.Summarize())
	}
	st.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len reports the number of live sessions.
func (st *MemoryStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lru.Len()
}

func (st *MemoryStore) evictExpiredLocked(now time.Time) {
	for e := st.lru.Back(); e != nil; {
		prev := e.Prev()
		if now.Sub(e.Value.(*item).lastUsed) <= st.ttl {
			break
		}
		st.deleteElemLocked(e)
		e = prev
	}
}

func (st *MemoryStore) evictOverLimitLocked() {
	for st.lru.Len() > st.maxSessions {
		e := st.lru.Back()
		if e == nil {
			return
		}
		st.deleteElemLocked(e)
	}
}

func (st *MemoryStore) deleteElemLocked(e *list.Element) {
	if it, _ := e.Value.(*item); it != nil && it.s != nil {
		delete(st.m, it.s.ID)
	}
	st.lru.Remove(e)
}
