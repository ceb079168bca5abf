package sessions_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/azkaraz/adstat/api"
	"github.com/azkaraz/adstat/auth"
	apperrors "github.com/azkaraz/adstat/internal/errors"
	"github.com/azkaraz/adstat/miniapp"
	"github.com/azkaraz/adstat/sessions"
	"github.com/azkaraz/adstat/token"
	tokenfakerepo "github.com/azkaraz/adstat/token/repofake"
	"github.com/azkaraz/adstat/users"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu           sync.Mutex
	authCalls    []auth.Envelope
	profileCalls []string
	updates      []string

	authFn    func(call int, env auth.Envelope) (*auth.AuthResponse, error)
	profileFn func(tok string) (*users.User, error)
}

func (b *fakeBackend) Authenticate(_ context.Context, env auth.Envelope) (*auth.AuthResponse, error) {
	b.mu.Lock()
	b.authCalls = append(b.authCalls, env)
	call := len(b.authCalls)
	fn := b.authFn
	b.mu.Unlock()
	return fn(call, env)
}

func (b *fakeBackend) Profile(_ context.Context, tok string) (*users.User, error) {
	b.mu.Lock()
	b.profileCalls = append(b.profileCalls, tok)
	fn := b.profileFn
	b.mu.Unlock()
	return fn(tok)
}

func (b *fakeBackend) UpdateProfile(_ context.Context, email string) (*api.ProfileUpdate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updates = append(b.updates, email)
	return &api.ProfileUpdate{Message: "ok"}, nil
}

func (b *fakeBackend) authCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.authCalls)
}

func (b *fakeBackend) profileCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.profileCalls)
}

func okAuth(tok string) func(int, auth.Envelope) (*auth.AuthResponse, error) {
	return func(int, auth.Envelope) (*auth.AuthResponse, error) {
		return &auth.AuthResponse{
			AccessToken: tok,
			TokenType:   "bearer",
			User:        &users.User{ID: 1, TelegramID: "555", FirstName: "Ann"},
		}, nil
	}
}

func rateLimited() error {
	return &apperrors.HTTPError{Method: http.MethodPost, Path: api.RouteTelegramAuth, Status: http.StatusTooManyRequests}
}

// recordingBackoff keeps the exponential schedule but does not sleep.
type recordingBackoff struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingBackoff) factory(attempts int, base time.Duration) func() retry.Backoff {
	return func() retry.Backoff {
		b := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
		return retry.BackoffFunc(func() (time.Duration, bool) {
			d, stop := b.Next()
			if !stop {
				r.mu.Lock()
				r.delays = append(r.delays, d)
				r.mu.Unlock()
			}
			return 0, stop
		})
	}
}

func newManager(t *testing.T, b *fakeBackend, store *tokenfakerepo.FakeTokenStore, opts ...sessions.Option) (*sessions.Manager, *recordingBackoff) {
	t.Helper()
	rec := &recordingBackoff{}
	opts = append([]sessions.Option{
		sessions.WithBackoff(rec.factory(3, 10*time.Millisecond)),
		sessions.WithHostWait(0, 0),
	}, opts...)
	return sessions.New(b, store, opts...), rec
}

func storedToken(t *testing.T, store token.Store) (string, bool) {
	t.Helper()
	v, err := store.Get(token.Key)
	if errors.Is(err, token.ErrNotFound) {
		return "", false
	}
	require.NoError(t, err)
	return v, true
}

func TestRestore_ValidToken(t *testing.T) {
	b := &fakeBackend{profileFn: func(tok string) (*users.User, error) {
		require.Equal(t, "abc", tok)
		return &users.User{ID: 1, TelegramID: "555"}, nil
	}}
	store := tokenfakerepo.NewFakeTokenStoreWith("abc")
	m, _ := newManager(t, b, store)

	require.Equal(t, sessions.StateAuthenticated, m.Restore(context.Background()))

	s := m.Snapshot()
	require.True(t, s.Authenticated())
	require.False(t, s.Loading)
	require.Equal(t, "abc", s.Token)
	require.Equal(t, "555", s.User.TelegramID)
	require.Equal(t, 0, b.authCount())
}

func TestRestore_RejectedTokenSignsOut(t *testing.T) {
	b := &fakeBackend{profileFn: func(string) (*users.User, error) {
		return nil, &apperrors.HTTPError{Method: http.MethodGet, Path: api.RouteUserProfile, Status: http.StatusUnauthorized}
	}}
	store := tokenfakerepo.NewFakeTokenStoreWith("stale")
	m, _ := newManager(t, b, store)

	require.Equal(t, sessions.StateUnauthenticated, m.Restore(context.Background()))

	s := m.Snapshot()
	require.Nil(t, s.User)
	require.Empty(t, s.Token)
	require.False(t, s.Loading)
	_, ok := storedToken(t, store)
	require.False(t, ok)
}

func TestRestore_NoToken(t *testing.T) {
	b := &fakeBackend{}
	m, _ := newManager(t, b, tokenfakerepo.NewFakeTokenStore())

	require.Equal(t, sessions.StateUnauthenticated, m.Restore(context.Background()))
	require.Equal(t, 0, b.profileCount())
}

func TestRestore_ExpiredJWTSkipsBackend(t *testing.T) {
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	b := &fakeBackend{}
	store := tokenfakerepo.NewFakeTokenStoreWith(raw)
	m, _ := newManager(t, b, store)

	require.Equal(t, sessions.StateUnauthenticated, m.Restore(context.Background()))
	require.Equal(t, 0, b.profileCount())
	_, ok := storedToken(t, store)
	require.False(t, ok)
}

func TestRestore_InterruptedKeepsToken(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &fakeBackend{profileFn: func(string) (*users.User, error) {
		cancel()
		return nil, context.Canceled
	}}
	store := tokenfakerepo.NewFakeTokenStoreWith("abc")
	m, _ := newManager(t, b, store)

	require.Equal(t, sessions.StateUnauthenticated, m.Restore(ctx))
	v, ok := storedToken(t, store)
	require.True(t, ok)
	require.Equal(t, "abc", v)
}

func TestRestore_RejectionDoesNotClobberConcurrentLogin(t *testing.T) {
	var m *sessions.Manager
	b := &fakeBackend{authFn: okAuth("fresh")}
	b.profileFn = func(string) (*users.User, error) {
		_, err := m.Login(context.Background(), auth.WebAppEnvelope{InitData: "xyz"})
		require.NoError(t, err)
		return nil, &apperrors.HTTPError{Method: http.MethodGet, Path: api.RouteUserProfile, Status: http.StatusUnauthorized}
	}
	store := tokenfakerepo.NewFakeTokenStoreWith("stale")
	m, _ = newManager(t, b, store)

	require.Equal(t, sessions.StateAuthenticated, m.Restore(context.Background()))
	require.Equal(t, "fresh", m.Token())
	v, ok := storedToken(t, store)
	require.True(t, ok)
	require.Equal(t, "fresh", v)
}

func TestAutoSignIn_HostData(t *testing.T) {
	b := &fakeBackend{authFn: okAuth("tok1")}
	store := tokenfakerepo.NewFakeTokenStore()
	host := miniapp.NewStatic(&miniapp.WebApp{
		InitData: "xyz",
		InitDataUnsafe: miniapp.InitDataUnsafe{
			User: &miniapp.HostUser{ID: 555, FirstName: "Ann"},
		},
	})
	m, _ := newManager(t, b, store, sessions.WithHost(host))

	u, err := m.AutoSignIn(context.Background())
	require.NoError(t, err)
	require.Equal(t, "555", u.TelegramID)

	require.Equal(t, []auth.Envelope{auth.WebAppEnvelope{InitData: "xyz"}}, b.authCalls)
	v, ok := storedToken(t, store)
	require.True(t, ok)
	require.Equal(t, "tok1", v)
	require.True(t, m.Snapshot().Authenticated())
}

func TestAutoSignIn_URLParameters(t *testing.T) {
	b := &fakeBackend{authFn: okAuth("tok2")}
	launch, err := url.Parse("https://app.example/?user=%7B%22id%22%3A42%7D&auth_date=1700000000&hash=h1")
	require.NoError(t, err)
	m, _ := newManager(t, b, tokenfakerepo.NewFakeTokenStore(), sessions.WithLaunchURL(launch))

	_, err = m.AutoSignIn(context.Background())
	require.NoError(t, err)
	require.Equal(t, []auth.Envelope{auth.LegacyEnvelope{ID: 42, AuthDate: 1700000000, Hash: "h1"}}, b.authCalls)
}

func TestAutoSignIn_HostFailureFallsBackToURL(t *testing.T) {
	b := &fakeBackend{authFn: func(call int, env auth.Envelope) (*auth.AuthResponse, error) {
		if env.Kind() == auth.KindWebApp {
			return nil, &apperrors.HTTPError{Status: http.StatusUnauthorized, Detail: "Неверная подпись Telegram"}
		}
		return okAuth("tok3")(call, env)
	}}
	launch, err := url.Parse("https://app.example/?user=%7B%22id%22%3A42%7D&hash=h1")
	require.NoError(t, err)
	m, _ := newManager(t, b, tokenfakerepo.NewFakeTokenStore(),
		sessions.WithHost(miniapp.NewStatic(&miniapp.WebApp{InitData: "bad"})),
		sessions.WithLaunchURL(launch))

	_, err = m.AutoSignIn(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, b.authCount())
	require.Equal(t, "tok3", m.Token())
}

func TestAutoSignIn_NoSourcesRunsOnce(t *testing.T) {
	b := &fakeBackend{}
	m, _ := newManager(t, b, tokenfakerepo.NewFakeTokenStore())

	_, err := m.AutoSignIn(context.Background())
	require.ErrorIs(t, err, auth.ErrManualLoginRequired)
	var lerr *auth.LoginError
	require.False(t, errors.As(err, &lerr))

	_, err = m.AutoSignIn(context.Background())
	require.ErrorIs(t, err, sessions.ErrAlreadyAttempted)
	require.Equal(t, 0, b.authCount())
	require.Equal(t, sessions.StateUnauthenticated, m.Snapshot().State)
}

func TestAutoSignIn_TransientFailureRearms(t *testing.T) {
	b := &fakeBackend{authFn: func(int, auth.Envelope) (*auth.AuthResponse, error) {
		return nil, apperrors.ErrUnreachable
	}}
	host := miniapp.NewStatic(&miniapp.WebApp{InitData: "xyz"})
	m, _ := newManager(t, b, tokenfakerepo.NewFakeTokenStore(), sessions.WithHost(host))

	_, err := m.AutoSignIn(context.Background())
	require.ErrorIs(t, err, auth.ErrManualLoginRequired)
	require.ErrorIs(t, err, apperrors.ErrUnreachable)

	_, err = m.AutoSignIn(context.Background())
	require.ErrorIs(t, err, auth.ErrManualLoginRequired)
	require.Equal(t, 2, b.authCount())
	require.Equal(t, sessions.StateUnauthenticated, m.Snapshot().State)
}

func TestAutoSignIn_RejectionDoesNotRearm(t *testing.T) {
	b := &fakeBackend{authFn: func(int, auth.Envelope) (*auth.AuthResponse, error) {
		return nil, &apperrors.HTTPError{Status: http.StatusUnauthorized, Detail: "bad signature"}
	}}
	host := miniapp.NewStatic(&miniapp.WebApp{InitData: "xyz"})
	m, _ := newManager(t, b, tokenfakerepo.NewFakeTokenStore(), sessions.WithHost(host))

	_, err := m.AutoSignIn(context.Background())
	require.ErrorIs(t, err, auth.ErrManualLoginRequired)
	var lerr *auth.LoginError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, auth.FailureRejected, lerr.Kind)
	require.Equal(t, "login rejected: bad signature", lerr.Error())
	require.Equal(t, sessions.StateUnauthenticated, m.Snapshot().State)

	_, err = m.AutoSignIn(context.Background())
	require.ErrorIs(t, err, sessions.ErrAlreadyAttempted)
	require.Equal(t, 1, b.authCount())
}

func TestLogin_SingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	b := &fakeBackend{authFn: func(call int, env auth.Envelope) (*auth.AuthResponse, error) {
		once.Do(func() { close(started) })
		<-release
		return okAuth("shared")(call, env)
	}}
	m, _ := newManager(t, b, tokenfakerepo.NewFakeTokenStore())

	const callers = 5
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	run := func(i int) {
		defer wg.Done()
		u, err := m.Login(context.Background(), auth.WebAppEnvelope{InitData: "xyz"})
		errs[i] = err
		if u != nil {
			results[i] = u.TelegramID
		}
	}

	wg.Add(1)
	go run(0)
	<-started
	require.True(t, m.Snapshot().Loading)
	require.Equal(t, sessions.StateAuthenticating, m.Snapshot().State)

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go run(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, 1, b.authCount())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "555", results[i])
	}
	require.Equal(t, "shared", m.Token())
}

func TestLogin_SingleFlightSharesFailure(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	b := &fakeBackend{authFn: func(int, auth.Envelope) (*auth.AuthResponse, error) {
		once.Do(func() { close(started) })
		<-release
		return nil, &apperrors.HTTPError{Status: http.StatusUnauthorized, Detail: "bad"}
	}}
	m, _ := newManager(t, b, tokenfakerepo.NewFakeTokenStore())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = m.Login(context.Background(), auth.WebAppEnvelope{InitData: "a"})
	}()
	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[1] = m.Login(context.Background(), auth.WebAppEnvelope{InitData: "b"})
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, 1, b.authCount())
	require.Error(t, errs[0])
	require.Same(t, errs[0], errs[1])
}

func TestLogin_RetryBound(t *testing.T) {
	b := &fakeBackend{authFn: func(int, auth.Envelope) (*auth.AuthResponse, error) {
		return nil, rateLimited()
	}}
	store := tokenfakerepo.NewFakeTokenStore()
	m, rec := newManager(t, b, store)

	_, err := m.Login(context.Background(), auth.WebAppEnvelope{InitData: "xyz"})
	require.Error(t, err)

	var lerr *auth.LoginError
	require.ErrorAs(t, err, &lerr)
	require.Equal(t, auth.FailureRateLimited, lerr.Kind)
	require.ErrorIs(t, err, apperrors.ErrRateLimited)

	require.Equal(t, 3, b.authCount())
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, rec.delays)
	require.Equal(t, sessions.StateUnauthenticated, m.Snapshot().State)
	writes, _ := store.Counts()
	require.Equal(t, 0, writes)
}

func TestLogin_RetryBound_RealBackoff(t *testing.T) {
	b := &fakeBackend{authFn: func(int, auth.Envelope) (*auth.AuthResponse, error) {
		return nil, rateLimited()
	}}
	m := sessions.New(b, tokenfakerepo.NewFakeTokenStore(), sessions.WithRetry(3, time.Millisecond))

	start := time.Now()
	_, err := m.Login(context.Background(), auth.WebAppEnvelope{InitData: "xyz"})
	require.ErrorIs(t, err, apperrors.ErrRateLimited)
	require.Equal(t, 3, b.authCount())
	require.GreaterOrEqual(t, time.Since(start), 3*time.Millisecond)
}

func TestLogin_NoRetryOnOtherErrors(t *testing.T) {
	b := &fakeBackend{authFn: func(int, auth.Envelope) (*auth.AuthResponse, error) {
		return nil, &apperrors.HTTPError{Status: http.StatusUnauthorized, Detail: "Неверная подпись Telegram"}
	}}
	m, rec := newManager(t, b, tokenfakerepo.NewFakeTokenStore())

	_, err := m.ManualLogin(context.Background())
	require.EqualError(t, err, "login rejected: Неверная подпись Telegram")
	require.Equal(t, 1, b.authCount())
	require.Empty(t, rec.delays)
}

func TestLogin_RateLimitedThenSuccess(t *testing.T) {
	b := &fakeBackend{authFn: func(call int, env auth.Envelope) (*auth.AuthResponse, error) {
		if call <= 2 {
			return nil, rateLimited()
		}
		return okAuth("tok")(call, env)
	}}
	store := tokenfakerepo.NewFakeTokenStore()
	m, _ := newManager(t, b, store)

	_, err := m.Login(context.Background(), auth.Mock(time.Unix(1700000000, 0)))
	require.NoError(t, err)
	require.Equal(t, 3, b.authCount())
	require.True(t, m.Snapshot().Authenticated())
	v, ok := storedToken(t, store)
	require.True(t, ok)
	require.Equal(t, "tok", v)
}

func TestLogin_MissingAccessToken(t *testing.T) {
	b := &fakeBackend{authFn: func(int, auth.Envelope) (*auth.AuthResponse, error) {
		return &auth.AuthResponse{User: &users.User{ID: 1, TelegramID: "1"}}, nil
	}}
	store := tokenfakerepo.NewFakeTokenStore()
	m, rec := newManager(t, b, store)

	_, err := m.Login(context.Background(), auth.WebAppEnvelope{InitData: "xyz"})
	require.ErrorIs(t, err, apperrors.ErrMalformedResponse)
	require.Contains(t, err.Error(), "incomplete login response")
	require.Equal(t, 1, b.authCount())
	require.Empty(t, rec.delays)

	s := m.Snapshot()
	require.Equal(t, sessions.StateUnauthenticated, s.State)
	require.Nil(t, s.User)
	require.Empty(t, s.Token)
	_, ok := storedToken(t, store)
	require.False(t, ok)
}

func TestLogin_InvalidEnvelope(t *testing.T) {
	b := &fakeBackend{}
	m, _ := newManager(t, b, tokenfakerepo.NewFakeTokenStore())

	_, err := m.Login(context.Background(), auth.WebAppEnvelope{})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	require.Equal(t, 0, b.authCount())
}

func TestLogin_StoreFailure(t *testing.T) {
	b := &fakeBackend{authFn: okAuth("tok")}
	store := tokenfakerepo.NewFakeTokenStore()
	store.SetErr = errors.New("disk full")
	m, _ := newManager(t, b, store)

	_, err := m.Login(context.Background(), auth.WebAppEnvelope{InitData: "xyz"})
	require.ErrorContains(t, err, "disk full")
	s := m.Snapshot()
	require.Nil(t, s.User)
	require.Empty(t, s.Token)
}

func TestLogin_CallerCancellationAbandonsInterestOnly(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	b := &fakeBackend{authFn: func(call int, env auth.Envelope) (*auth.AuthResponse, error) {
		close(started)
		<-release
		return okAuth("late")(call, env)
	}}
	m, _ := newManager(t, b, tokenfakerepo.NewFakeTokenStore())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Login(ctx, auth.WebAppEnvelope{InitData: "xyz"})
		done <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		return m.Snapshot().Authenticated()
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "late", m.Token())
}

func TestLogout(t *testing.T) {
	b := &fakeBackend{authFn: okAuth("tok")}
	store := tokenfakerepo.NewFakeTokenStore()
	m, _ := newManager(t, b, store)

	_, err := m.ManualLogin(context.Background())
	require.NoError(t, err)
	require.True(t, m.Snapshot().Authenticated())

	require.NoError(t, m.Logout(context.Background()))
	s := m.Snapshot()
	require.Equal(t, sessions.StateUnauthenticated, s.State)
	require.Nil(t, s.User)
	require.Empty(t, s.Token)
	_, ok := storedToken(t, store)
	require.False(t, ok)

	require.NoError(t, m.Logout(context.Background()))
	require.Equal(t, 1, b.authCount())
	require.Equal(t, 0, b.profileCount())
}

func TestRefresh(t *testing.T) {
	fail := false
	b := &fakeBackend{
		authFn: okAuth("tok"),
		profileFn: func(string) (*users.User, error) {
			if fail {
				return nil, &apperrors.HTTPError{Status: http.StatusUnauthorized}
			}
			return &users.User{ID: 1, TelegramID: "555", HasGoogleSheet: true}, nil
		},
	}
	store := tokenfakerepo.NewFakeTokenStore()
	m, _ := newManager(t, b, store)

	_, err := m.Refresh(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)

	_, err = m.ManualLogin(context.Background())
	require.NoError(t, err)

	u, err := m.Refresh(context.Background())
	require.NoError(t, err)
	require.True(t, u.HasGoogleSheet)
	require.True(t, m.Snapshot().User.HasGoogleSheet)

	fail = true
	_, err = m.Refresh(context.Background())
	require.ErrorIs(t, err, apperrors.ErrSessionExpired)
	require.Equal(t, sessions.StateUnauthenticated, m.Snapshot().State)
	_, ok := storedToken(t, store)
	require.False(t, ok)
}

func TestUpdateEmail(t *testing.T) {
	b := &fakeBackend{
		authFn: okAuth("tok"),
		profileFn: func(string) (*users.User, error) {
			return &users.User{ID: 1, TelegramID: "555", Email: "a@b.c"}, nil
		},
	}
	m, _ := newManager(t, b, tokenfakerepo.NewFakeTokenStore())

	_, err := m.UpdateEmail(context.Background(), "a@b.c")
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)

	_, err = m.ManualLogin(context.Background())
	require.NoError(t, err)
	u, err := m.UpdateEmail(context.Background(), "a@b.c")
	require.NoError(t, err)
	require.Equal(t, "a@b.c", u.Email)
	require.Equal(t, []string{"a@b.c"}, b.updates)
}

func TestSnapshot_IsACopy(t *testing.T) {
	b := &fakeBackend{authFn: okAuth("tok")}
	m, _ := newManager(t, b, tokenfakerepo.NewFakeTokenStore())
	_, err := m.ManualLogin(context.Background())
	require.NoError(t, err)

	s := m.Snapshot()
	s.User.FirstName = "changed"
	require.Equal(t, "Ann", m.Snapshot().User.FirstName)
}
