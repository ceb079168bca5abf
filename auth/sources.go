package auth

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/azkaraz/adstat/miniapp"
)

// Mock credential used for manual login outside a Telegram host.
const (
	MockTelegramID = 123456789
	MockHash       = "mock_hash"
)

// FromHost returns the host's signed payload as a WebAppEnvelope.
func FromHost(app *miniapp.WebApp) (WebAppEnvelope, error) {
	if !app.Signed() {
		return WebAppEnvelope{}, ErrNoHostCredentials
	}
	return WebAppEnvelope{InitData: app.InitData}, nil
}

// urlUser is the JSON object carried in the `user` query parameter.
type urlUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	PhotoURL  string `json:"photo_url"`
}

// FromURL assembles a LegacyEnvelope from `?user={json}&auth_date=N&hash=H`.
// user and hash are required; a missing auth_date is sent as 0.
func FromURL(u *url.URL) (LegacyEnvelope, error) {
	if u == nil {
		return LegacyEnvelope{}, ErrNoURLCredentials
	}
	q := u.Query()
	rawUser, hash := q.Get("user"), q.Get("hash")
	if rawUser == "" || hash == "" {
		return LegacyEnvelope{}, ErrNoURLCredentials
	}

	var usr urlUser
	if err := json.Unmarshal([]byte(rawUser), &usr); err != nil {
		return LegacyEnvelope{}, fmt.Errorf("%w: user parameter: %v", ErrNoURLCredentials, err)
	}

	var authDate int64
	if v := q.Get("auth_date"); v != "" {
		d, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return LegacyEnvelope{}, fmt.Errorf("%w: auth_date parameter: %v", ErrNoURLCredentials, err)
		}
		authDate = d
	}

	return LegacyEnvelope{
		ID:        usr.ID,
		FirstName: usr.FirstName,
		LastName:  usr.LastName,
		Username:  usr.Username,
		PhotoURL:  usr.PhotoURL,
		AuthDate:  authDate,
		Hash:      hash,
	}, nil
}

// Mock builds the synthetic credential submitted by an explicit manual login.
func Mock(now time.Time) LegacyEnvelope {
	return LegacyEnvelope{
		ID:        MockTelegramID,
		FirstName: "Тестовый",
		LastName:  "Пользователь",
		Username:  "test_user",
		AuthDate:  now.Unix(),
		Hash:      MockHash,
	}
}
