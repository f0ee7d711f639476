// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/ledger-bfa/internal/domain"
)

// TransactionsFetcher retrieves the raw transaction list of a user from the
// remote finance API.
type TransactionsFetcher interface {
	FetchTransactions(ctx context.Context, creds domain.Credentials, filter domain.FetchFilter) (domain.FetchResult, error)
}

// TransactionsWriter forwards mutations to the remote finance API.
type TransactionsWriter interface {
	AddTransaction(ctx context.Context, creds domain.Credentials, tx domain.NewTransaction) error
	EditTransaction(ctx context.Context, creds domain.Credentials, id string, upd domain.TransactionUpdate) error
	DeleteTransaction(ctx context.Context, creds domain.Credentials, id string) error
}

// AuthGateway proxies sign-in and sign-up to the remote finance API.
type AuthGateway interface {
	Login(ctx context.Context, req domain.LoginRequest) (domain.UpstreamLogin, error)
	Signup(ctx context.Context, req domain.SignupRequest) error
}

// SessionStore holds the credentials of signed-in users.
type SessionStore interface {
	Get(sessionID string) (domain.Session, bool)
	Put(s domain.Session)
	Delete(sessionID string)
}

// EventPublisher pushes snapshot lifecycle events to an external broker.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.SnapshotEvent) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
