// Package sessions owns the client session: the bearer token, the signed-in
// user and the sign-in bootstrap that produces them.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/azkaraz/adstat/api"
	"github.com/azkaraz/adstat/auth"
	apperrors "github.com/azkaraz/adstat/internal/errors"
	"github.com/azkaraz/adstat/miniapp"
	"github.com/azkaraz/adstat/token"
	"github.com/azkaraz/adstat/token/jwt"
	"github.com/azkaraz/adstat/users"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
)

// ErrAlreadyAttempted is returned by AutoSignIn after its single attempt.
var ErrAlreadyAttempted = errors.New("automatic sign-in already attempted")

const loginKey = "login"

// Backend is the part of the REST API the session needs. *api.Client
// satisfies it.
type Backend interface {
	Authenticate(ctx context.Context, env auth.Envelope) (*auth.AuthResponse, error)
	Profile(ctx context.Context, token string) (*users.User, error)
	UpdateProfile(ctx context.Context, email string) (*api.ProfileUpdate, error)
}

var _ Backend = (*api.Client)(nil)

// Manager holds the session for one process and serialises sign-in. It is
// safe for concurrent use.
type Manager struct {
	backend   Backend
	store     token.Store
	validator *auth.Validator

	host      miniapp.Host
	launchURL *url.URL
	hostWait  time.Duration
	hostPoll  time.Duration

	attempts   int
	retryBase  time.Duration
	newBackoff func() retry.Backoff
	now        func() time.Time

	flight    singleflight.Group
	attempted atomic.Bool

	mu      sync.RWMutex
	user    *users.User
	token   string
	loading bool
	state   State
}

func New(backend Backend, store token.Store, opts ...Option) *Manager {
	m := &Manager{
		backend:   backend,
		store:     store,
		validator: auth.NewValidator(),
		host:      miniapp.Absent(),
		hostWait:  5 * time.Second,
		hostPoll:  100 * time.Millisecond,
		attempts:  3,
		retryBase: time.Second,
		now:       time.Now,
		state:     StateInit,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.attempts < 1 {
		m.attempts = 1
	}
	if m.newBackoff == nil {
		m.newBackoff = m.exponentialBackoff
	}
	return m
}

// exponentialBackoff waits base, 2*base, 4*base... between attempts and
// stops after the configured number of attempts.
func (m *Manager) exponentialBackoff() retry.Backoff {
	return retry.WithMaxRetries(uint64(m.attempts-1), retry.NewExponential(m.retryBase))
}

// Snapshot returns a consistent copy of the session.
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Session{
		User:    m.user.Clone(),
		Token:   m.token,
		Loading: m.loading,
		State:   m.state,
	}
}

// Token returns the current bearer token, or "" when signed out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Restore loads the persisted token and validates it with a profile fetch.
// A token the backend does not accept is removed; the failure is not
// returned. A JWT whose exp has passed is removed without a request.
func (m *Manager) Restore(ctx context.Context) State {
	if s := m.Snapshot(); s.State == StateAuthenticated {
		return s.State
	}

	tok, err := m.store.Get(token.Key)
	if err != nil || tok == "" {
		if err != nil && !errors.Is(err, token.ErrNotFound) {
			log.Warn().Err(err).Msg("reading stored token failed")
		}
		m.setUnauthenticated()
		return StateUnauthenticated
	}

	if jwt.LocallyExpired(tok) {
		log.Info().Msg("stored token has expired, signing out")
		m.clearSession()
		return StateUnauthenticated
	}

	m.mu.Lock()
	m.token = tok
	m.user = nil
	m.loading = true
	m.state = StateInit
	m.mu.Unlock()

	u, err := m.backend.Profile(ctx, tok)
	if err != nil {
		m.mu.RLock()
		same := m.token == tok
		m.mu.RUnlock()
		if !same {
			// A login completed while the profile was in flight.
			return m.Snapshot().State
		}
		if ctx.Err() != nil {
			// Interrupted, not rejected: keep the stored token for next time.
			log.Debug().Err(err).Msg("restore interrupted")
			m.resetMemory()
			return StateUnauthenticated
		}
		log.Info().Err(err).Msg("stored token rejected, signing out")
		m.clearSession()
		return StateUnauthenticated
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != tok {
		// A login completed while the profile was in flight.
		return m.state
	}
	m.user = u
	m.loading = false
	m.state = StateAuthenticated
	log.Info().Str("telegram_id", u.TelegramID).Msg("session restored")
	return m.state
}

// AutoSignIn tries the mini-app host first and then the launch URL. It runs
// once per Manager; later calls return ErrAlreadyAttempted unless a
// transient login failure re-armed it. When neither source yields a session
// it returns auth.ErrManualLoginRequired, wrapping the *auth.LoginError of the
// last source the backend refused.
func (m *Manager) AutoSignIn(ctx context.Context) (*users.User, error) {
	if s := m.Snapshot(); s.Authenticated() {
		return s.User, nil
	}
	if !m.attempted.CompareAndSwap(false, true) {
		return nil, ErrAlreadyAttempted
	}

	var lastErr error
	if app, ok := miniapp.Wait(ctx, m.host, m.hostWait, m.hostPoll); ok {
		miniapp.Announce(m.host)
		env, err := auth.FromHost(app)
		if err == nil {
			u, err := m.Login(ctx, env)
			if err == nil {
				return u, nil
			}
			log.Warn().Err(err).Msg("sign-in with mini-app data failed")
			lastErr = err
		} else {
			log.Debug().Err(err).Msg("mini-app host has no signed data")
		}
	} else {
		log.Debug().Msg("no mini-app host")
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if m.launchURL != nil {
		env, err := auth.FromURL(m.launchURL)
		if err == nil {
			u, err := m.Login(ctx, env)
			if err == nil {
				return u, nil
			}
			log.Warn().Err(err).Msg("sign-in with URL parameters failed")
			lastErr = err
		} else {
			log.Debug().Err(err).Msg("launch URL has no credentials")
		}
	}

	m.mu.Lock()
	if m.state == StateInit {
		m.state = StateUnauthenticated
	}
	m.mu.Unlock()
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrManualLoginRequired, lastErr)
	}
	return nil, auth.ErrManualLoginRequired
}

// ManualLogin submits the mock credential used where no host is available.
func (m *Manager) ManualLogin(ctx context.Context) (*users.User, error) {
	return m.Login(ctx, auth.Mock(m.now()))
}

// Login exchanges env for a session. Concurrent calls share one request and
// all observe its outcome. A caller whose ctx ends stops waiting, but the
// shared request runs to completion and its result is still applied.
// Errors are *auth.LoginError, except ctx.Err() when the caller stops waiting.
func (m *Manager) Login(ctx context.Context, env auth.Envelope) (*users.User, error) {
	if err := m.validator.ValidateEnvelope(env); err != nil {
		return nil, auth.NewLoginError(err)
	}

	ch := m.flight.DoChan(loginKey, func() (any, error) {
		return m.login(context.WithoutCancel(ctx), env)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*users.User).Clone(), nil
	}
}

func (m *Manager) login(ctx context.Context, env auth.Envelope) (*users.User, error) {
	m.mu.Lock()
	prev := m.state
	m.loading = true
	if m.state != StateAuthenticated {
		m.state = StateAuthenticating
	}
	m.mu.Unlock()

	resp, err := m.exchange(ctx, env)
	if err == nil {
		err = m.validator.ValidateResponse(resp)
	}
	if err == nil {
		if serr := m.store.Set(token.Key, resp.AccessToken); serr != nil {
			err = fmt.Errorf("persist token: %w", serr)
		}
	}

	if err != nil {
		lerr := auth.NewLoginError(err)
		if lerr.Kind.Transient() {
			m.attempted.Store(false)
		}
		m.mu.Lock()
		m.loading = false
		if m.state == StateAuthenticating {
			m.state = prev
			if prev == StateInit {
				m.state = StateUnauthenticated
			}
		}
		m.mu.Unlock()
		log.Warn().Str("kind", lerr.Kind.String()).Err(err).Msg("login failed")
		return nil, lerr
	}

	m.mu.Lock()
	m.token = resp.AccessToken
	m.user = resp.User.Clone()
	m.loading = false
	m.state = StateAuthenticated
	m.mu.Unlock()

	log.Info().
		Str("kind", string(env.Kind())).
		Str("telegram_id", resp.User.TelegramID).
		Msg("login succeeded")
	return resp.User.Clone(), nil
}

// exchange posts env, retrying only on rate limiting.
func (m *Manager) exchange(ctx context.Context, env auth.Envelope) (*auth.AuthResponse, error) {
	var resp *auth.AuthResponse
	attempt := 0
	err := retry.Do(ctx, m.newBackoff(), func(ctx context.Context) error {
		attempt++
		r, err := m.backend.Authenticate(ctx, env)
		if err != nil {
			if errors.Is(err, apperrors.ErrRateLimited) {
				log.Warn().Int("attempt", attempt).Msg("login rate limited")
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// Logout clears the session and the stored token. It never calls the
// backend and is safe to repeat.
func (m *Manager) Logout(_ context.Context) error {
	if err := m.clearSession(); err != nil {
		return fmt.Errorf("[Logout] %w", err)
	}
	log.Info().Msg("signed out")
	return nil
}

// Refresh re-reads the profile for the current token. Any failure signs
// the session out and returns errors.ErrSessionExpired.
func (m *Manager) Refresh(ctx context.Context) (*users.User, error) {
	tok := m.Token()
	if tok == "" {
		return nil, apperrors.ErrNotAuthenticated
	}

	u, err := m.backend.Profile(ctx, tok)
	if err != nil {
		log.Info().Err(err).Msg("profile refresh failed, signing out")
		m.mu.RLock()
		same := m.token == tok
		m.mu.RUnlock()
		if same {
			m.clearSession()
		}
		return nil, apperrors.ErrSessionExpired
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != tok {
		return nil, apperrors.ErrSessionExpired
	}
	m.user = u
	m.state = StateAuthenticated
	return u.Clone(), nil
}

// UpdateEmail stores a new e-mail address on the profile and refreshes.
func (m *Manager) UpdateEmail(ctx context.Context, email string) (*users.User, error) {
	if m.Token() == "" {
		return nil, apperrors.ErrNotAuthenticated
	}
	if _, err := m.backend.UpdateProfile(ctx, email); err != nil {
		return nil, fmt.Errorf("[UpdateEmail] %w", err)
	}
	return m.Refresh(ctx)
}

func (m *Manager) setUnauthenticated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	m.state = StateUnauthenticated
}

func (m *Manager) resetMemory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	m.token = ""
	m.loading = false
	m.state = StateUnauthenticated
}

func (m *Manager) clearSession() error {
	m.resetMemory()
	return m.store.Remove(token.Key)
}
