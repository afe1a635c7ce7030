package domain

import "time"

// TokenSet is the current credential set. Exactly one TokenSet is live at a
// time; only the auth manager mutates it.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes,omitempty"`
}

// Valid reports whether the token is usable for at least margin ahead of now.
func (t *TokenSet) Valid(margin time.Duration) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Add(margin).Before(t.ExpiresAt)
}

// AuthSession is the transient state of one authorization-code exchange.
// Created when the flow starts, discarded once exchanged or timed out.
type AuthSession struct {
	State       string
	RedirectURI string
	Code        string
	CreatedAt   time.Time
}
