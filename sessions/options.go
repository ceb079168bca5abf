package sessions

import (
	"net/url"
	"time"

	"github.com/azkaraz/adstat/miniapp"
	"github.com/sethvargo/go-retry"
)

type Option func(*Manager)

// WithHost sets the mini-app host consulted by AutoSignIn.
func WithHost(host miniapp.Host) Option {
	return func(m *Manager) {
		if host != nil {
			m.host = host
		}
	}
}

// WithLaunchURL sets the URL whose query may carry legacy credentials.
func WithLaunchURL(u *url.URL) Option {
	return func(m *Manager) {
		m.launchURL = u
	}
}

// WithHostWait bounds how long AutoSignIn polls for the host.
func WithHostWait(timeout, interval time.Duration) Option {
	return func(m *Manager) {
		m.hostWait = timeout
		m.hostPoll = interval
	}
}

// WithRetry sets the total login attempts and the first backoff delay.
func WithRetry(attempts int, base time.Duration) Option {
	return func(m *Manager) {
		m.attempts = attempts
		m.retryBase = base
	}
}

// WithBackoff replaces the per-login backoff schedule.
func WithBackoff(newBackoff func() retry.Backoff) Option {
	return func(m *Manager) {
		m.newBackoff = newBackoff
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}
