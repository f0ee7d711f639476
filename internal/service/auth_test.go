package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/service"

	"go.uber.org/zap"
)

func newAuthService(gw *fakeGateway, sessions *fakeSessions) *service.AuthService {
	return service.NewAuthService(gw, sessions, "test-secret", 15*time.Minute, zap.NewNop())
}

func TestLogin_CreatesSession(t *testing.T) {
	sessions := newFakeSessions()
	gw := &fakeGateway{login: domain.UpstreamLogin{Token: "upstream-token", UserID: "u-7"}}
	svc := newAuthService(gw, sessions)

	resp, err := svc.Login(context.Background(), domain.LoginRequest{Email: " Ana@Example.com ", Password: "secret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.AccessToken == "" || resp.SessionID == "" || resp.UserID != "u-7" || resp.ExpiresIn != 900 {
		t.Errorf("unexpected response: %+v", resp)
	}

	sess, ok := sessions.Get(resp.SessionID)
	if !ok {
		t.Fatal("expected session to be stored")
	}
	if sess.Credentials.Token != "upstream-token" || sess.Email != "ana@example.com" {
		t.Errorf("unexpected session: %+v", sess)
	}

	got, err := svc.Authenticate(resp.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != resp.SessionID {
		t.Errorf("expected session %s, got %s", resp.SessionID, got.ID)
	}
}

func TestLogin_Validation(t *testing.T) {
	svc := newAuthService(&fakeGateway{}, newFakeSessions())

	var verr *domain.ErrValidation
	if _, err := svc.Login(context.Background(), domain.LoginRequest{Email: "nope", Password: "x"}); !errors.As(err, &verr) || verr.Field != "email" {
		t.Errorf("expected email validation error, got %v", err)
	}
	if _, err := svc.Login(context.Background(), domain.LoginRequest{Email: "a@b.co"}); !errors.As(err, &verr) || verr.Field != "password" {
		t.Errorf("expected password validation error, got %v", err)
	}
}

func TestLogin_UpstreamRejects(t *testing.T) {
	sessions := newFakeSessions()
	svc := newAuthService(&fakeGateway{loginErr: &domain.ErrUnauthorized{Message: "wrong password"}}, sessions)

	_, err := svc.Login(context.Background(), domain.LoginRequest{Email: "a@b.co", Password: "x"})
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(sessions.items) != 0 {
		t.Error("no session should be created on failed login")
	}
}

func TestLogout_InvalidatesToken(t *testing.T) {
	sessions := newFakeSessions()
	svc := newAuthService(&fakeGateway{login: domain.UpstreamLogin{Token: "t", UserID: "u"}}, sessions)

	resp, _ := svc.Login(context.Background(), domain.LoginRequest{Email: "a@b.co", Password: "x"})
	if err := svc.Logout(context.Background(), resp.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	_, err := svc.Authenticate(resp.AccessToken)
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Errorf("expected token of closed session to be rejected, got %v", err)
	}
}

func TestValidateAccessToken_RejectsForeignTokens(t *testing.T) {
	svc := newAuthService(&fakeGateway{login: domain.UpstreamLogin{Token: "t", UserID: "u"}}, newFakeSessions())
	other := service.NewAuthService(&fakeGateway{login: domain.UpstreamLogin{Token: "t", UserID: "u"}}, newFakeSessions(), "other-secret", time.Minute, zap.NewNop())

	resp, _ := other.Login(context.Background(), domain.LoginRequest{Email: "a@b.co", Password: "x"})

	for _, tok := range []string{"", "garbage", resp.AccessToken} {
		if _, err := svc.ValidateAccessToken(tok); err == nil {
			t.Errorf("expected %q to be rejected", tok)
		}
	}
}

func TestSignup(t *testing.T) {
	gw := &fakeGateway{}
	svc := newAuthService(gw, newFakeSessions())
	ctx := context.Background()

	if err := svc.Signup(ctx, domain.SignupRequest{Name: " Ana ", Email: "ana@example.com", Password: "secret1"}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if len(gw.signups) != 1 || gw.signups[0].Name != "Ana" {
		t.Errorf("unexpected forwarded signup: %+v", gw.signups)
	}

	var verr *domain.ErrValidation
	if err := svc.Signup(ctx, domain.SignupRequest{Name: "Ana", Email: "ana@example.com", Password: "123"}); !errors.As(err, &verr) {
		t.Errorf("expected short password rejected, got %v", err)
	}

	gw.signupErr = &domain.ErrConflict{Message: "email already registered"}
	var conflict *domain.ErrConflict
	if err := svc.Signup(ctx, domain.SignupRequest{Name: "Ana", Email: "ana@example.com", Password: "secret1"}); !errors.As(err, &conflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}
