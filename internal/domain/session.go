package domain

import "time"

// ============================================================
// Sessions & Auth
// ============================================================

// Credentials is the pair the remote finance API requires on every call.
type Credentials struct {
	UserID string
	Token  string
}

// Valid reports whether both halves of the pair are present.
func (c Credentials) Valid() bool {
	return c.UserID != "" && c.Token != ""
}

// Session is the BFA-side record of a signed-in user.
type Session struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Credentials Credentials `json:"-"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is the body of POST /v1/auth/signup.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpstreamLogin is what the remote API answers to a successful login.
type UpstreamLogin struct {
	Token  string
	UserID string
}

// LoginResponse is returned by POST /v1/auth/login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
}
