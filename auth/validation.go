package auth

import (
	"fmt"
	"strings"

	apperrors "github.com/azkaraz/adstat/internal/errors"
)

// Validator holds the client-side checks applied before and after a
// credential exchange. Signature checks belong to the backend.
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateEnvelope rejects envelopes the backend could never accept.
func (v *Validator) ValidateEnvelope(env Envelope) error {
	switch e := env.(type) {
	case WebAppEnvelope:
		if strings.TrimSpace(e.InitData) == "" {
			return fmt.Errorf("%w: empty initData", apperrors.ErrInvalidInput)
		}
	case *WebAppEnvelope:
		if e == nil {
			return fmt.Errorf("%w: nil envelope", apperrors.ErrInvalidInput)
		}
		return v.ValidateEnvelope(*e)
	case LegacyEnvelope:
		if e.ID <= 0 {
			return fmt.Errorf("%w: missing telegram id", apperrors.ErrInvalidInput)
		}
		if e.Hash == "" {
			return fmt.Errorf("%w: missing hash", apperrors.ErrInvalidInput)
		}
	case *LegacyEnvelope:
		if e == nil {
			return fmt.Errorf("%w: nil envelope", apperrors.ErrInvalidInput)
		}
		return v.ValidateEnvelope(*e)
	default:
		return fmt.Errorf("%w: unsupported envelope %T", apperrors.ErrInvalidInput, env)
	}
	return nil
}

// ValidateResponse treats a transport-level success without a token or a
// user as a failure.
func (v *Validator) ValidateResponse(resp *AuthResponse) error {
	if resp == nil {
		return fmt.Errorf("%w: empty body", apperrors.ErrMalformedResponse)
	}
	if resp.AccessToken == "" {
		return fmt.Errorf("%w: missing access_token", apperrors.ErrMalformedResponse)
	}
	if resp.User == nil {
		return fmt.Errorf("%w: missing user", apperrors.ErrMalformedResponse)
	}
	return nil
}
