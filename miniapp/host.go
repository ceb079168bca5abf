package miniapp

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const initDataEnvVar = "TELEGRAM_INIT_DATA"

// Host is an optional provider of the embedded mini-app object. ok is false
// when the client is not running inside a host.
type Host interface {
	WebApp() (app *WebApp, ok bool)
}

// Lifecycle is implemented by hosts that want to be told the client is
// ready to be shown and may take the full viewport.
type Lifecycle interface {
	Ready()
	Expand()
}

// HostFunc adapts a function to the Host interface.
type HostFunc func() (*WebApp, bool)

func (f HostFunc) WebApp() (*WebApp, bool) {
	return f()
}

// Static is a Host with a fixed answer; a nil app means "no host".
type Static struct {
	app *WebApp
}

var _ Host = Static{}

func NewStatic(app *WebApp) Static {
	return Static{app: app}
}

// Absent is the host of a plain, non-embedded environment.
func Absent() Host {
	return Static{}
}

func (s Static) WebApp() (*WebApp, bool) {
	return s.app, s.app != nil
}

// FromEnv reads a raw init-data string from TELEGRAM_INIT_DATA. Unparsable
// data is still forwarded as the signed blob; the backend is the judge.
func FromEnv() Host {
	raw := os.Getenv(initDataEnvVar)
	if raw == "" {
		return Absent()
	}
	app, err := ParseInitData(raw)
	if err != nil {
		log.Warn().Err(err).Msg("init data from environment is not a valid query string")
		app = &WebApp{InitData: raw}
	}
	return NewStatic(app)
}

// Wait polls host until it reports an app, timeout elapses, or ctx is done.
// A non-positive timeout checks exactly once.
func Wait(ctx context.Context, host Host, timeout, interval time.Duration) (*WebApp, bool) {
	if host == nil {
		return nil, false
	}
	if app, ok := host.WebApp(); ok {
		return app, true
	}
	// A Static host never changes its answer.
	if _, static := host.(Static); static || timeout <= 0 {
		return nil, false
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-deadline.C:
			return nil, false
		case <-ticker.C:
			if app, ok := host.WebApp(); ok {
				return app, true
			}
		}
	}
}

// Announce calls Ready and Expand when the host supports them.
func Announce(host Host) {
	if lc, ok := host.(Lifecycle); ok {
		lc.Ready()
		lc.Expand()
	}
}
