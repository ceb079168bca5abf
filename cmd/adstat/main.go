package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/azkaraz/adstat/api"
	"github.com/azkaraz/adstat/internal/config"
	"github.com/azkaraz/adstat/internal/logging"
	"github.com/azkaraz/adstat/internal/telemetry"
	"github.com/azkaraz/adstat/miniapp"
	"github.com/azkaraz/adstat/sessions"
	"github.com/azkaraz/adstat/token"
	"github.com/azkaraz/adstat/token/filestore"
	tokenfakerepo "github.com/azkaraz/adstat/token/repofake"
	"github.com/azkaraz/adstat/token/sqlitestore"
	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"
)

func main() {
	c := config.New()
	logging.Setup(c.GetLogLevel(), c.GetEnv())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := telemetry.Setup(c.GetAppName(), c.GetOTLPEndpoint(), true)
	err := run(ctx, c, os.Args[1:], os.Stdout)
	if serr := shutdown(context.Background()); serr != nil {
		log.Warn().Err(serr).Msg("telemetry shutdown")
	}

	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		usage(os.Stderr)
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c config.Config, args []string, out io.Writer) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	if len(args) < 1 {
		return errUsage
	}

	a, err := newApp(c, out)
	if err != nil {
		return err
	}
	defer a.close()

	return a.dispatch(ctx, args[0], args[1:])
}

// app wires the session, the API client and the token store for one command.
type app struct {
	cfg     config.Config
	out     io.Writer
	store   token.Store
	closeFn func() error
	client  *api.Client
	session *sessions.Manager
}

func newApp(c config.Config, out io.Writer) (*app, error) {
	store, closeFn, err := openStore(c)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: c, out: out, store: store, closeFn: closeFn}
	a.client = api.New(c.GetAPIBaseURL(),
		api.WithTokenSource(func() string { return a.session.Token() }),
		api.WithUploadLimits(c.GetMaxUploadSize(), c.GetAllowedExtensions()),
	)
	a.session = a.newSession()
	return a, nil
}

func (a *app) newSession(opts ...sessions.Option) *sessions.Manager {
	opts = append([]sessions.Option{
		sessions.WithRetry(a.cfg.GetLoginAttempts(), a.cfg.GetLoginRetryBase()),
		sessions.WithHostWait(a.cfg.GetHostWaitTimeout(), a.cfg.GetHostPollInterval()),
		sessions.WithHost(miniapp.FromEnv()),
	}, opts...)
	return sessions.New(a.client, a.store, opts...)
}

func (a *app) close() {
	if a.closeFn == nil {
		return
	}
	if err := a.closeFn(); err != nil {
		log.Warn().Err(err).Msg("closing token store")
	}
}

// openStore picks the token backend named by TOKEN_STORE.
func openStore(c config.Config) (token.Store, func() error, error) {
	switch c.GetTokenStore() {
	case config.TokenStoreFile:
		return filestore.New(c.GetTokenStorePath()), nil, nil
	case config.TokenStoreSQLite:
		if err := os.MkdirAll(filepath.Dir(c.GetTokenStorePath()), 0o700); err != nil {
			return nil, nil, fmt.Errorf("create token store dir: %w", err)
		}
		s, err := sqlitestore.Open(c.GetTokenStorePath())
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.TokenStoreMemory:
		return tokenfakerepo.NewFakeTokenStore(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown TOKEN_STORE %q", c.GetTokenStore())
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}
