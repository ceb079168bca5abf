package sessions

import "github.com/azkaraz/adstat/users"

// State is the position of the client session in its lifecycle.
type State int

const (
	StateInit State = iota
	StateUnauthenticated
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Session is a point-in-time copy of the client session. Token and User are
// set together, except while a stored token is being restored: then Token is
// set, User is nil and Loading is true.
type Session struct {
	User    *users.User
	Token   string
	Loading bool
	State   State
}

// Authenticated reports whether the copy holds a usable token and user.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated && s.Token != "" && s.User != nil
}
