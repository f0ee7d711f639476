// Package service holds the application logic of the ledger BFA: the
// per-session refresh coordinators, screen views, write-through mutations
// and the auth proxy.
package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

const minPasswordLen = 6

// AuthService signs users in against the remote API and keeps their
// upstream credentials in a server-side session. Clients only ever hold a
// BFA access token naming the session.
type AuthService struct {
	gateway   port.AuthGateway
	sessions  port.SessionStore
	jwtSecret []byte
	accessTTL time.Duration
	logger    *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(gateway port.AuthGateway, sessions port.SessionStore, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		gateway:   gateway,
		sessions:  sessions,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
	}
}

// ============================================================
// Login handles POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}
	if req.Password == "" {
		return nil, &domain.ErrValidation{Field: "password", Message: "is required"}
	}

	up, err := s.gateway.Login(ctx, req)
	if err != nil {
		s.logger.Warn("login: upstream rejected", zap.String("email", req.Email), zap.Error(err))
		return nil, err
	}

	sess := domain.Session{
		ID:          uuid.NewString(),
		Email:       req.Email,
		Credentials: domain.Credentials{UserID: up.UserID, Token: up.Token},
		CreatedAt:   time.Now().UTC(),
	}
	s.sessions.Put(sess)
	span.SetAttributes(attribute.String("session.id", sess.ID))

	token, err := s.signAccessToken(sess.ID, up.UserID)
	if err != nil {
		s.sessions.Delete(sess.ID)
		return nil, err
	}

	s.logger.Info("login: session created", zap.String("session_id", sess.ID), zap.String("user_id", up.UserID))
	return &domain.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int(s.accessTTL.Seconds()),
		SessionID:   sess.ID,
		UserID:      up.UserID,
	}, nil
}

// ============================================================
// Signup handles POST /v1/auth/signup
// ============================================================

func (s *AuthService) Signup(ctx context.Context, req domain.SignupRequest) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Signup")
	defer span.End()

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" {
		return &domain.ErrValidation{Field: "name", Message: "is required"}
	}
	if err := validateEmail(req.Email); err != nil {
		return err
	}
	if len(req.Password) < minPasswordLen {
		return &domain.ErrValidation{Field: "password", Message: "must have at least 6 characters"}
	}

	if err := s.gateway.Signup(ctx, req); err != nil {
		return err
	}
	s.logger.Info("signup: user registered upstream", zap.String("email", req.Email))
	return nil
}

// ============================================================
// Logout handles POST /v1/auth/logout
// ============================================================

// Logout ends the session. The session store's expiry hook drops the
// session's coordinator.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	_, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	s.sessions.Delete(sessionID)
	s.logger.Info("session closed", zap.String("session_id", sessionID))
	return nil
}

// Authenticate validates a BFA access token and returns the live session it names.
func (s *AuthService) Authenticate(tokenString string) (domain.Session, error) {
	claims, err := s.ValidateAccessToken(tokenString)
	if err != nil {
		return domain.Session{}, err
	}
	sess, ok := s.sessions.Get(claims.Sub)
	if !ok {
		return domain.Session{}, &domain.ErrUnauthorized{Message: "session expired"}
	}
	return sess, nil
}

func validateEmail(email string) error {
	if email == "" {
		return &domain.ErrValidation{Field: "email", Message: "is required"}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return &domain.ErrValidation{Field: "email", Message: "is not a valid address"}
	}
	return nil
}
