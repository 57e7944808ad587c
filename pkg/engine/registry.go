package engine

import (
	"container/list"
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// defaultSessionCapacity bounds how many campaign sessions stay open at
// once. Each session holds two SQLite handles, so the registry evicts the
// least recently used session instead of growing without limit.
const defaultSessionCapacity = 64

type sessionFactory func(ctx context.Context, campaign string) (*Session, error)

// sessionRegistry is a bounded LRU of live campaign sessions.
type sessionRegistry struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front is most recently used
	entries  map[string]*list.Element
	factory  sessionFactory
	logger   zerolog.Logger
}

type registryEntry struct {
	campaign string
	session  *Session
}

func newSessionRegistry(capacity int, factory sessionFactory, logger zerolog.Logger) *sessionRegistry {
	if capacity <= 0 {
		capacity = defaultSessionCapacity
	}
	return &sessionRegistry{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		factory:  factory,
		logger:   logger,
	}
}

// Get returns the live session for a campaign, opening it on first use and
// evicting the coldest session when over capacity.
func (r *sessionRegistry) Get(ctx context.Context, campaign string) (*Session, error) {
	r.mu.Lock()
	if elem, ok := r.entries[campaign]; ok {
		r.order.MoveToFront(elem)
		session := elem.Value.(*registryEntry).session
		r.mu.Unlock()
		return session, nil
	}
	r.mu.Unlock()

	// Open outside the lock: session construction touches disk and may be
	// slow. A racing open for the same campaign is resolved below.
	session, err := r.factory(ctx, campaign)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if elem, ok := r.entries[campaign]; ok {
		// Lost the race, keep the winner.
		session.Close()
		r.order.MoveToFront(elem)
		return elem.Value.(*registryEntry).session, nil
	}

	elem := r.order.PushFront(&registryEntry{campaign: campaign, session: session})
	r.entries[campaign] = elem

	for r.order.Len() > r.capacity {
		oldest := r.order.Back()
		entry := oldest.Value.(*registryEntry)
		r.order.Remove(oldest)
		delete(r.entries, entry.campaign)
		entry.session.Close()
		r.logger.Info().Str("campaign", entry.campaign).Msg("Evicted idle campaign session")
	}

	return session, nil
}

// Drop closes and removes a campaign's session so the next message reopens
// it from persisted state.
func (r *sessionRegistry) Drop(campaign string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elem, ok := r.entries[campaign]
	if !ok {
		return
	}
	r.order.Remove(elem)
	delete(r.entries, campaign)
	elem.Value.(*registryEntry).session.Close()
}

// Len reports how many sessions are open.
func (r *sessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// Campaigns lists the open campaign names, most recently used first.
func (r *sessionRegistry) Campaigns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, r.order.Len())
	for elem := r.order.Front(); elem != nil; elem = elem.Next() {
		names = append(names, elem.Value.(*registryEntry).campaign)
	}
	return names
}

// Close releases every open session.
func (r *sessionRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for elem := r.order.Front(); elem != nil; elem = elem.Next() {
		elem.Value.(*registryEntry).session.Close()
	}
	r.order.Init()
	r.entries = make(map[string]*list.Element)
}
