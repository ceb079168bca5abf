package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/azkaraz/adstat/api"
	"github.com/azkaraz/adstat/server/authflowrepo"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var ErrLinkDenied = errors.New("provider denied the authorization")

// BeginVKLink creates a PKCE verifier and state for a VK ID authorization
// and returns the URL to open in the browser.
func (s *Server) BeginVKLink() (string, error) {
	if s.vk.ClientID == "" {
		return "", errors.New("VK_CLIENT_ID is not configured")
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	if err := s.authState.Upsert(state, &authflowrepo.AuthFlowState{
		Provider:     authflowrepo.ProviderVK,
		CodeVerifier: verifier,
		CreatedAt:    time.Now(),
	}); err != nil {
		return "", fmt.Errorf("[BeginVKLink] %w", err)
	}
	return s.vk.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// BeginGoogleLink asks the backend for the Google consent URL. The backend
// owns the Google client and its state parameter.
func (s *Server) BeginGoogleLink(ctx context.Context) (string, error) {
	authURL, err := s.linker.GoogleAuthURL(ctx)
	if err != nil {
		return "", fmt.Errorf("[BeginGoogleLink] %w", err)
	}
	return authURL, nil
}

func (s *Server) GoogleCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const provider = authflowrepo.ProviderGoogle
		if s.providerError(w, r, provider) {
			return
		}

		code := r.FormValue("code")
		if code == "" {
			s.renderCallback(w, http.StatusBadRequest, callbackPage{Provider: "Google", Message: "Не найден code в URL"})
			return
		}

		if _, err := s.linker.GoogleCallback(r.Context(), code); err != nil {
			log.Warn().Err(err).Msg("google link failed")
			s.deliver(Result{Provider: provider, Err: err})
			s.renderCallback(w, http.StatusBadGateway, callbackPage{Provider: "Google", Message: "Ошибка при привязке Google аккаунта"})
			return
		}

		s.finishLink(w, r, provider, "Google аккаунт успешно привязан!")
	}
}

func (s *Server) VKCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const provider = authflowrepo.ProviderVK
		if s.providerError(w, r, provider) {
			return
		}

		code := r.FormValue("code")
		state := r.FormValue("state")
		if code == "" {
			s.renderCallback(w, http.StatusBadRequest, callbackPage{Provider: "VK", Message: "Не найден code в URL"})
			return
		}

		flow, err := s.authState.Take(state)
		if err != nil || flow.Provider != provider {
			s.renderCallback(w, http.StatusBadRequest, callbackPage{Provider: "VK", Message: "Неверный state параметр"})
			return
		}
		if flow.CodeVerifier == "" {
			s.renderCallback(w, http.StatusBadRequest, callbackPage{Provider: "VK", Message: "Не найден code_verifier"})
			return
		}

		_, err = s.linker.VKCallback(r.Context(), api.VKCallbackRequest{
			Code:         code,
			CodeVerifier: flow.CodeVerifier,
			DeviceID:     r.FormValue("device_id"),
			State:        state,
		})
		if err != nil {
			log.Warn().Err(err).Msg("vk link failed")
			s.deliver(Result{Provider: provider, Err: err})
			s.renderCallback(w, http.StatusBadGateway, callbackPage{Provider: "VK", Message: "Ошибка при привязке VK аккаунта"})
			return
		}

		s.finishLink(w, r, provider, "VK аккаунт успешно привязан!")
	}
}

// providerError handles `?error=...` redirects. It reports whether the
// request was answered.
func (s *Server) providerError(w http.ResponseWriter, r *http.Request, provider authflowrepo.Provider) bool {
	errorParam := r.FormValue("error")
	if errorParam == "" {
		return false
	}
	desc := r.FormValue("error_description")
	s.deliver(Result{Provider: provider, Err: fmt.Errorf("%w: %s %s", ErrLinkDenied, errorParam, desc)})
	s.renderCallback(w, http.StatusBadRequest, callbackPage{
		Provider: string(provider),
		Message:  fmt.Sprintf("Авторизация отклонена: %s", errorParam),
	})
	return true
}

// finishLink reloads the profile so the new link shows up in the session.
func (s *Server) finishLink(w http.ResponseWriter, r *http.Request, provider authflowrepo.Provider, message string) {
	u, err := s.session.Refresh(r.Context())
	if err != nil {
		log.Warn().Err(err).Str("provider", string(provider)).Msg("profile refresh after link failed")
	}
	s.deliver(Result{Provider: provider, User: u, Err: err})
	s.renderCallback(w, http.StatusOK, callbackPage{Provider: string(provider), Success: true, Message: message})
}
