package server

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteGoogleCallback, ChainMiddleware(s.GoogleCallbackHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteVKCallback, ChainMiddleware(s.VKCallbackHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.RecoverMiddleware))
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"status":"ok"}`)
	}
}

func logRoute(method, path string, status int) {
	colour, ok := methodColors[method]
	if !ok {
		colour = Gray
	}
	displayMethod := colour + fmt.Sprintf(" %-7s", method) + ResetColor
	displayStatus := statusColour(status) + fmt.Sprintf("%d", status) + ResetColor
	log.Printf("[%-19s] %s %s", displayMethod, displayStatus, path)
}
