package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/config"
	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-bfa/internal/infra/session"
	"github.com/boddenberg/ledger-bfa/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const cliSessionID = "cli"

var (
	flagUserID   string
	flagToken    string
	flagEmail    string
	flagPassword string
)

// addCredentialFlags registers the flags a one-shot command authenticates with.
// Either a user id and token pair or an email and password is required.
func addCredentialFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagUserID, "user-id", os.Getenv("LEDGER_USER_ID"), "remote API user id (env LEDGER_USER_ID)")
	cmd.Flags().StringVar(&flagToken, "token", os.Getenv("LEDGER_TOKEN"), "remote API bearer token (env LEDGER_TOKEN)")
	cmd.Flags().StringVar(&flagEmail, "email", os.Getenv("LEDGER_EMAIL"), "log in with this email instead of a token")
	cmd.Flags().StringVar(&flagPassword, "password", os.Getenv("LEDGER_PASSWORD"), "password for --email (env LEDGER_PASSWORD)")
}

// oneShot is a single-session ledger: the same coordinator and projections
// the server uses, fed by one set of credentials.
type oneShot struct {
	svc     *service.LedgerService
	engines *service.Engines
	store   *session.Store
}

func (o *oneShot) Close() {
	o.engines.Close()
	o.store.Close()
}

func newOneShot(ctx context.Context, cfg *config.Config) (*oneShot, error) {
	logger := zap.NewNop()
	if cfg.LogLevel == "debug" {
		logger = observability.NewLogger(cfg.LogLevel)
	}

	finance := newFinanceClient(cfg)
	creds := domain.Credentials{UserID: flagUserID, Token: flagToken}
	if !creds.Valid() && flagEmail != "" {
		up, err := finance.Login(ctx, domain.LoginRequest{Email: flagEmail, Password: flagPassword})
		if err != nil {
			return nil, err
		}
		creds = domain.Credentials{UserID: up.UserID, Token: up.Token}
	}
	if !creds.Valid() {
		return nil, errors.New("credentials required: pass --user-id and --token, or --email and --password")
	}

	store := session.NewStore(time.Hour, nil)
	store.Put(domain.Session{ID: cliSessionID, Credentials: creds, CreatedAt: time.Now().UTC()})

	engines := service.NewEngines(store, finance, coordinatorConfig(cfg), observability.NewMetrics(), logger)
	return &oneShot{
		svc:     service.NewLedgerService(engines, store, finance, screenLimits(cfg), logger),
		engines: engines,
		store:   store,
	}, nil
}
