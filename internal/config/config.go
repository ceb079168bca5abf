package config

type Config interface {
	EnvConfig
	SessionConfig
	OAuthConfig
	UploadConfig
}

type EnvConfig interface {
	GetEnv() string
	GetAppName() string
	GetAPIBaseURL() string
	GetLogLevel() string
	GetTokenStore() string
	GetTokenStorePath() string
	GetCallbackAddr() string
	GetOTLPEndpoint() string
}

type mainConfig struct {
	EnvVars
	Session
	OAuth
	Upload
}

func New() Config {
	return mainConfig{}
}
