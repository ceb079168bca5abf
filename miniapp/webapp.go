// Package miniapp models the object a Telegram client injects into an
// embedded mini-app. The client never verifies the signed init data; it only
// forwards it to the backend.
package miniapp

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// HostUser is the unverified user record the host exposes next to the signed payload.
type HostUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// InitDataUnsafe is the parsed, unverified view of InitData.
type InitDataUnsafe struct {
	User         *HostUser `json:"user,omitempty"`
	Chat         *Chat     `json:"chat,omitempty"`
	ChatType     string    `json:"chat_type,omitempty"`
	ChatInstance string    `json:"chat_instance,omitempty"`
	StartParam   string    `json:"start_param,omitempty"`
	CanSendAfter int64     `json:"can_send_after,omitempty"`
	AuthDate     int64     `json:"auth_date,omitempty"`
	Hash         string    `json:"hash,omitempty"`
}

// WebApp mirrors the host's Telegram.WebApp object, reduced to what the
// client reads.
type WebApp struct {
	InitData       string         `json:"initData"`
	InitDataUnsafe InitDataUnsafe `json:"initDataUnsafe"`
	Platform       string         `json:"platform,omitempty"`
	Version        string         `json:"version,omitempty"`
	ColorScheme    string         `json:"colorScheme,omitempty"`
}

// Signed reports whether the host handed over a signed credential payload.
func (w *WebApp) Signed() bool {
	return w != nil && w.InitData != ""
}

// ParseInitData builds a WebApp from the raw init-data query string
// (`user=%7B...%7D&auth_date=...&hash=...`). InitData keeps the raw string
// untouched so the backend can check the signature over it.
func ParseInitData(raw string) (*WebApp, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("[ParseInitData] invalid query string: %w", err)
	}

	app := &WebApp{InitData: raw}
	unsafe := &app.InitDataUnsafe

	if v := values.Get("user"); v != "" {
		var u HostUser
		if err := json.Unmarshal([]byte(v), &u); err != nil {
			return nil, fmt.Errorf("[ParseInitData] invalid user: %w", err)
		}
		unsafe.User = &u
	}
	if v := values.Get("chat"); v != "" {
		var c Chat
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			return nil, fmt.Errorf("[ParseInitData] invalid chat: %w", err)
		}
		unsafe.Chat = &c
	}
	if v := values.Get("auth_date"); v != "" {
		if unsafe.AuthDate, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("[ParseInitData] invalid auth_date: %w", err)
		}
	}
	if v := values.Get("can_send_after"); v != "" {
		if unsafe.CanSendAfter, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("[ParseInitData] invalid can_send_after: %w", err)
		}
	}
	unsafe.ChatType = values.Get("chat_type")
	unsafe.ChatInstance = values.Get("chat_instance")
	unsafe.StartParam = values.Get("start_param")
	unsafe.Hash = values.Get("hash")

	return app, nil
}
