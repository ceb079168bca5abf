package auth

import "github.com/azkaraz/adstat/users"

// EnvelopeKind names the two credential shapes the backend accepts.
type EnvelopeKind string

const (
	KindWebApp EnvelopeKind = "webapp" // signed init data from the mini-app host
	KindLegacy EnvelopeKind = "legacy" // loose Telegram login-widget fields
)

// Envelope is a credential payload for one login attempt. Exactly one shape
// is sent per attempt; the set of shapes is closed.
type Envelope interface {
	Kind() EnvelopeKind
	envelope()
}

// WebAppEnvelope carries the opaque signed blob produced by the host.
type WebAppEnvelope struct {
	InitData string `json:"initData"`
}

func (WebAppEnvelope) Kind() EnvelopeKind { return KindWebApp }
func (WebAppEnvelope) envelope()          {}

// LegacyEnvelope is the field-based shape assembled from URL parameters or
// mock data. Optional name fields are always serialized, empty or not.
type LegacyEnvelope struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

func (LegacyEnvelope) Kind() EnvelopeKind { return KindLegacy }
func (LegacyEnvelope) envelope()          {}

// AuthResponse is the backend's answer to a successful credential exchange.
type AuthResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type,omitempty"`
	User        *users.User `json:"user"`
}
