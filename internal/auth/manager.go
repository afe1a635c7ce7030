// Package auth owns the OAuth2 authorization-code flow and the live
// credential set. The manager is the single writer of the token set; every
// other component reads through Token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/vietddude/notefetch/internal/auth/store"
	"github.com/vietddude/notefetch/internal/core/domain"
	"github.com/vietddude/notefetch/internal/metrics"
)

// DefaultExpiryMargin is how far ahead of expiry a token is treated as stale.
const DefaultExpiryMargin = 60 * time.Second

// Config holds manager settings.
type Config struct {
	ClientID        string
	ClientSecret    string
	TenantID        string
	RedirectURI     string
	Scopes          []string
	ExpiryMargin    time.Duration
	RedirectTimeout time.Duration

	// Endpoint overrides the Microsoft identity platform endpoints (tests).
	Endpoint oauth2.Endpoint
}

// refreshCall is a single in-flight refresh shared by concurrent callers.
type refreshCall struct {
	done chan struct{}
	err  error
}

// Manager drives the authorization-code flow, caches the live token set, and
// serializes refreshes so concurrent callers trigger exactly one request.
type Manager struct {
	cfg   Config
	oauth *oauth2.Config
	store store.TokenStore
	log   *slog.Logger

	mu       sync.Mutex
	state    State
	token    *domain.TokenSet
	session  *domain.AuthSession
	inflight *refreshCall
}

// NewManager creates a manager backed by the given token store.
func NewManager(cfg Config, ts store.TokenStore) *Manager {
	if cfg.ExpiryMargin == 0 {
		cfg.ExpiryMargin = DefaultExpiryMargin
	}
	if cfg.RedirectTimeout == 0 {
		cfg.RedirectTimeout = 5 * time.Minute
	}

	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		tenant := cfg.TenantID
		if tenant == "" {
			tenant = "common"
		}
		endpoint = microsoft.AzureADEndpoint(tenant)
	}

	return &Manager{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		store: ts,
		state: StateUnauthenticated,
		log:   slog.Default().With("component", "auth"),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Load attempts silent credential reuse from the token store. Returns
// store.ErrNotFound if nothing usable is cached.
func (m *Manager) Load(ctx context.Context) error {
	ts, err := m.store.Load(ctx)
	if err != nil {
		return err
	}
	if !ts.Valid(m.cfg.ExpiryMargin) && ts.RefreshToken == "" {
		return store.ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.setStateLocked(StateAuthenticated); err != nil {
		return err
	}
	m.token = ts
	m.log.Info("Reusing cached credentials", "expires_at", ts.ExpiresAt)
	return nil
}

// StartAuthorization begins the authorization-code flow. It returns the URL
// the user must visit and the transient session the redirect listener hands
// back to CompleteAuthorization. The session expires after RedirectTimeout.
func (m *Manager) StartAuthorization() (string, *domain.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.setStateLocked(StateAwaitingRedirect); err != nil {
		return "", nil, err
	}

	session := &domain.AuthSession{
		State:       uuid.NewString(),
		RedirectURI: m.cfg.RedirectURI,
		CreatedAt:   time.Now(),
	}
	m.session = session

	nonce := session.State
	time.AfterFunc(m.cfg.RedirectTimeout, func() { m.expireSession(nonce) })

	url := m.oauth.AuthCodeURL(session.State)
	m.log.Info("Authorization started", "redirect_uri", m.cfg.RedirectURI)
	return url, session, nil
}

// expireSession abandons an authorization session that never received a code.
func (m *Manager) expireSession(nonce string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAwaitingRedirect || m.session == nil || m.session.State != nonce {
		return
	}
	m.session = nil
	if err := m.setStateLocked(StateUnauthenticated); err == nil {
		m.log.Warn("Authorization timed out waiting for redirect")
	}
}

// CompleteAuthorization exchanges the authorization code for a token set.
// The state nonce must match the session's (CSRF guard).
func (m *Manager) CompleteAuthorization(ctx context.Context, code, state string) (*domain.TokenSet, error) {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session == nil {
		return nil, fmt.Errorf("%w: no authorization in progress", domain.ErrAuthExchange)
	}
	if state != session.State {
		return nil, fmt.Errorf("%w: state nonce mismatch", domain.ErrAuthExchange)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", domain.ErrAuthExchange)
	}

	tok, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthExchange, err)
	}
	ts := m.toTokenSet(tok, "")

	m.mu.Lock()
	if err := m.setStateLocked(StateAuthenticated); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.token = ts
	m.session = nil
	m.mu.Unlock()

	m.persist(ctx, ts)
	m.log.Info("Authorization completed", "expires_at", ts.ExpiresAt)

	cp := *ts
	return &cp, nil
}

// Token returns a token set valid for at least the expiry margin, refreshing
// first when needed. Concurrent callers share a single refresh: the first
// caller issues it, the rest await its result. Returns domain.ErrAuthExpired
// when the refresh token is revoked or invalid.
func (m *Manager) Token(ctx context.Context) (*domain.TokenSet, error) {
	for {
		m.mu.Lock()
		if m.state == StateRefreshFailed {
			m.mu.Unlock()
			return nil, domain.ErrAuthExpired
		}
		if m.token == nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("not authenticated: run the authorization flow first")
		}
		if m.token.Valid(m.cfg.ExpiryMargin) {
			cp := *m.token
			m.mu.Unlock()
			return &cp, nil
		}
		if m.token.RefreshToken == "" {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: no refresh token available", domain.ErrAuthExpired)
		}

		if call := m.inflight; call != nil {
			m.mu.Unlock()
			select {
			case <-call.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if call.err != nil {
				return nil, call.err
			}
			continue // re-check the refreshed token
		}

		// This caller performs the refresh.
		call := &refreshCall{done: make(chan struct{})}
		m.inflight = call
		refreshToken := m.token.RefreshToken
		if err := m.setStateLocked(StateRefreshing); err != nil {
			m.inflight = nil
			m.mu.Unlock()
			return nil, err
		}
		m.mu.Unlock()

		ts, err := m.refresh(ctx, refreshToken)

		m.mu.Lock()
		m.inflight = nil
		if err != nil {
			metrics.TokenRefreshesTotal.WithLabelValues("failure").Inc()
			var rerr *oauth2.RetrieveError
			if errors.As(err, &rerr) && (rerr.Response == nil || rerr.Response.StatusCode < 500) {
				// The token endpoint rejected the refresh token. Terminal.
				_ = m.setStateLocked(StateRefreshFailed)
				err = fmt.Errorf("%w: %v", domain.ErrAuthExpired, err)
				m.log.Error("Token refresh rejected", "error", rerr.ErrorCode)
			} else {
				// Network failure or 5xx: the credentials may still be fine.
				_ = m.setStateLocked(StateAuthenticated)
			}
			call.err = err
			close(call.done)
			m.mu.Unlock()
			return nil, err
		}

		if err := m.setStateLocked(StateAuthenticated); err != nil {
			call.err = err
			close(call.done)
			m.mu.Unlock()
			return nil, err
		}
		m.token = ts
		close(call.done)
		m.mu.Unlock()

		metrics.TokenRefreshesTotal.WithLabelValues("success").Inc()
		m.persist(ctx, ts)
		m.log.Debug("Token refreshed", "expires_at", ts.ExpiresAt)

		cp := *ts
		return &cp, nil
	}
}

// Invalidate marks the cached access token as expired so the next Token call
// performs a refresh. Used by the fetch layer after a 401.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil {
		return
	}
	cp := *m.token
	cp.ExpiresAt = time.Now().Add(-time.Minute)
	m.token = &cp
}

// Persist writes the current token set to the store.
func (m *Manager) Persist(ctx context.Context) error {
	m.mu.Lock()
	ts := m.token
	m.mu.Unlock()
	if ts == nil {
		return fmt.Errorf("no token set to persist")
	}
	return m.store.Save(ctx, ts)
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (*domain.TokenSet, error) {
	src := m.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	return m.toTokenSet(tok, refreshToken), nil
}

// toTokenSet maps an oauth2 token, keeping the previous refresh token when
// the endpoint does not rotate it.
func (m *Manager) toTokenSet(tok *oauth2.Token, prevRefresh string) *domain.TokenSet {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = prevRefresh
	}
	return &domain.TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    tok.Expiry,
		Scopes:       m.cfg.Scopes,
	}
}

func (m *Manager) persist(ctx context.Context, ts *domain.TokenSet) {
	if err := m.store.Save(ctx, ts); err != nil {
		m.log.Warn("Failed to persist token set", "error", err)
	}
}

// setStateLocked transitions the state machine. Caller holds m.mu.
func (m *Manager) setStateLocked(to State) error {
	if m.state == to {
		return nil
	}
	if !CanTransition(m.state, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, m.state, to)
	}
	m.log.Debug("Auth state changed", "from", m.state, "to", to)
	m.state = to
	return nil
}
