package authflowrepo

import (
	"errors"
	"time"
)

var ErrStateNotFound = errors.New("state not found")

// Provider names the third-party account being linked.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderVK     Provider = "vk"
)

// AuthFlowState is what the callback needs to finish a link started by the
// CLI: the PKCE verifier for VK and the provider the state was issued for.
type AuthFlowState struct {
	Provider     Provider
	CodeVerifier string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, authState *AuthFlowState) error
	Get(state string) (*AuthFlowState, error)
	Delete(state string) error
	// Take returns the state and removes it, so a state is usable once.
	Take(state string) (*AuthFlowState, error)
}
