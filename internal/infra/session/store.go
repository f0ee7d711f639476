// Package session keeps signed-in users' upstream credentials in memory.
package session

import (
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/infra/cache"
	"github.com/boddenberg/ledger-bfa/internal/port"
)

var (
	_ port.SessionStore          = (*Store)(nil)
	_ port.Cache[domain.Session] = (*cache.InMemory[domain.Session])(nil)
)

// Store is a port.SessionStore backed by the TTL cache.
type Store struct {
	items *cache.InMemory[domain.Session]
}

// NewStore creates a session store whose entries live for ttl. onExpire, if
// set, is called when a session is deleted or times out.
func NewStore(ttl time.Duration, onExpire func(sessionID string)) *Store {
	var opts []cache.Option[domain.Session]
	if onExpire != nil {
		opts = append(opts, cache.WithEvict(func(key string, _ domain.Session) {
			onExpire(key)
		}))
	}
	return &Store{items: cache.New(ttl, opts...)}
}

func (s *Store) Get(sessionID string) (domain.Session, bool) {
	return s.items.Get(sessionID)
}

func (s *Store) Put(sess domain.Session) {
	s.items.Set(sess.ID, sess)
}

func (s *Store) Delete(sessionID string) {
	s.items.Delete(sessionID)
}

// Len is the number of tracked sessions.
func (s *Store) Len() int {
	return s.items.Len()
}

// Close stops the expiry sweeper.
func (s *Store) Close() {
	s.items.Close()
}
