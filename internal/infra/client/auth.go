package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boddenberg/ledger-bfa/internal/domain"
)

type loginAnswer struct {
	Token string `json:"token"`
	User  struct {
		ID string `json:"id"`
	} `json:"user"`
}

// Login exchanges e-mail and password for the remote API's token and user id.
func (c *FinanceClient) Login(ctx context.Context, req domain.LoginRequest) (domain.UpstreamLogin, error) {
	var ans loginAnswer
	err := c.do(ctx, call{
		op:     "Login",
		method: "POST",
		path:   "/api/auth/login",
		body:   req,
		decode: func(body []byte) error {
			if err := json.Unmarshal(body, &ans); err != nil {
				return err
			}
			if ans.Token == "" || ans.User.ID == "" {
				return fmt.Errorf("login answer without token or user id")
			}
			return nil
		},
	})
	if err != nil {
		return domain.UpstreamLogin{}, err
	}
	return domain.UpstreamLogin{Token: ans.Token, UserID: ans.User.ID}, nil
}

// Signup registers a new user upstream.
func (c *FinanceClient) Signup(ctx context.Context, req domain.SignupRequest) error {
	return c.do(ctx, call{
		op:     "Signup",
		method: "POST",
		path:   "/api/auth/signup",
		body:   req,
	})
}
