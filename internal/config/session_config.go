package config

import "time"

type SessionConfig interface {
	GetLoginAttempts() int
	GetLoginRetryBase() time.Duration
	GetHostWaitTimeout() time.Duration
	GetHostPollInterval() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetLoginAttempts is the total number of login requests, the first one included.
func (Session) GetLoginAttempts() int {
	if n := GetEnvInt("LOGIN_ATTEMPTS", 3); n > 0 {
		return n
	}
	return 1
}

func (Session) GetLoginRetryBase() time.Duration {
	return GetEnvDuration("LOGIN_RETRY_BASE", time.Second)
}

func (Session) GetHostWaitTimeout() time.Duration {
	return GetEnvDuration("HOST_WAIT_TIMEOUT", 5*time.Second)
}

func (Session) GetHostPollInterval() time.Duration {
	return GetEnvDuration("HOST_POLL_INTERVAL", 100*time.Millisecond)
}
