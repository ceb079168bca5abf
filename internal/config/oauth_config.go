package config

import "strings"

type OAuthConfig interface {
	GetVKClientID() string
	GetVKScopes() []string
	GetVKAuthURL() string
	GetVKTokenURL() string
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetVKClientID() string {
	return GetEnv("VK_CLIENT_ID", "")
}

func (OAuth) GetVKScopes() []string {
	return strings.Fields(GetEnv("VK_SCOPES", "ads email"))
}

func (OAuth) GetVKAuthURL() string {
	return GetEnv("VK_AUTH_URL", "https://id.vk.com/authorize")
}

func (OAuth) GetVKTokenURL() string {
	return GetEnv("VK_TOKEN_URL", "https://id.vk.com/oauth2/auth")
}
