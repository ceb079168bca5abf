package users

import (
	"strings"

	"github.com/azkaraz/adstat/internal/utils"
)

// User is the backend's view of an authenticated account. It is created by
// the backend on first successful Telegram authentication and only changes
// client side by re-fetching the profile.
type User struct {
	ID               int64   `json:"id"`                           // Backend user ID
	TelegramID       string  `json:"telegram_id"`                  // Telegram user ID as a string
	Username         string  `json:"username,omitempty"`           // Telegram username
	FirstName        string  `json:"first_name,omitempty"`         // First name of the user
	LastName         string  `json:"last_name,omitempty"`          // Last name of the user
	Email            string  `json:"email,omitempty"`              // Optional contact email
	HasGoogleSheet   bool    `json:"has_google_sheet"`             // A spreadsheet is connected
	HasGoogleAccount *bool   `json:"has_google_account,omitempty"` // Google account linked, when reported
	HasVKAccount     *bool   `json:"has_vk_account,omitempty"`     // VK Ads account linked, when reported
	CreatedAt        *string `json:"created_at,omitempty"`         // Only present on the profile endpoint
}

// DisplayName prefers "First Last", then @username, then the Telegram ID.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.TelegramID
}

// GoogleLinked reports whether a Google account is linked. A connected
// spreadsheet is tracked separately in HasGoogleSheet.
func (u *User) GoogleLinked() bool {
	return utils.Value(u.HasGoogleAccount)
}

func (u *User) VKLinked() bool {
	return utils.Value(u.HasVKAccount)
}

// Clone returns a deep copy so callers cannot mutate session state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.HasGoogleAccount != nil {
		c.HasGoogleAccount = utils.Ptr(*u.HasGoogleAccount)
	}
	if u.HasVKAccount != nil {
		c.HasVKAccount = utils.Ptr(*u.HasVKAccount)
	}
	if u.CreatedAt != nil {
		c.CreatedAt = utils.Ptr(*u.CreatedAt)
	}
	return &c
}
