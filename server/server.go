// Package server is the loopback HTTP server that receives OAuth redirects
// when the user links a Google or VK Ads account to their adstat profile.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/azkaraz/adstat/api"
	"github.com/azkaraz/adstat/internal/config"
	"github.com/azkaraz/adstat/server/authflowrepo"
	"github.com/azkaraz/adstat/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Linker is the backend side of account linking. *api.Client satisfies it.
type Linker interface {
	GoogleAuthURL(ctx context.Context) (string, error)
	GoogleCallback(ctx context.Context, code string) (*api.Message, error)
	VKCallback(ctx context.Context, req api.VKCallbackRequest) (*api.Message, error)
}

// SessionRefresher reloads the profile after a link. *sessions.Manager
// satisfies it.
type SessionRefresher interface {
	Refresh(ctx context.Context) (*users.User, error)
}

// Result is delivered once per completed callback.
type Result struct {
	Provider authflowrepo.Provider
	User     *users.User
	Err      error
}

type Server struct {
	env     string
	appName string
	addr    string
	mux     *http.ServeMux
	routes  []string

	linker    Linker
	session   SessionRefresher
	authState authflowrepo.Repo
	vk        *oauth2.Config

	callbackTmpl *template.Template
	results      chan Result
}

func New(cfg config.Config, linker Linker, session SessionRefresher, authState authflowrepo.Repo) (*Server, error) {
	tmpl, err := ParseTemplate("callback.html")
	if err != nil {
		return nil, fmt.Errorf("[Server New] parse callback template: %w", err)
	}

	s := &Server{
		env:          cfg.GetEnv(),
		appName:      cfg.GetAppName(),
		addr:         cfg.GetCallbackAddr(),
		mux:          http.NewServeMux(),
		linker:       linker,
		session:      session,
		authState:    authState,
		callbackTmpl: tmpl,
		results:      make(chan Result, 1),
	}
	s.vk = &oauth2.Config{
		ClientID:    cfg.GetVKClientID(),
		RedirectURL: "http://" + s.addr + RouteVKCallback,
		Scopes:      cfg.GetVKScopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.GetVKAuthURL(),
			TokenURL: cfg.GetVKTokenURL(),
		},
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

// Results yields one Result per callback the server finished.
func (s *Server) Results() <-chan Result {
	return s.results
}

// ListenAndServe serves on the configured callback address until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server.Listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("callback server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server.Serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func (s *Server) deliver(res Result) {
	select {
	case s.results <- res:
	default:
		log.Warn().Str("provider", string(res.Provider)).Msg("link result dropped, nobody is waiting")
	}
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, ok := strings.Cut(route, " ")
		if !ok {
			method, path = "", route
		}
		log.Debug().Str("method", method).Str("path", path).Msg("route")
	}
}
