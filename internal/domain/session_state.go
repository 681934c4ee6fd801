package domain

import "fmt"

type SessionState string

const (
	SessionUnauthenticated SessionState = "unauthenticated"
	SessionAuthenticated   SessionState = "authenticated"
	SessionRefreshing      SessionState = "refreshing"
	SessionLoggedOut       SessionState = "logged_out"
)

type SessionTrigger string

const (
	TriggerLogin            SessionTrigger = "login"
	TriggerRefreshStarted   SessionTrigger = "refresh_started"
	TriggerRefreshSucceeded SessionTrigger = "refresh_succeeded"
	TriggerRefreshFailed    SessionTrigger = "refresh_failed"
	TriggerTokenRotated     SessionTrigger = "token_rotated"
	TriggerInvalidated      SessionTrigger = "invalidated"
	TriggerLogout           SessionTrigger = "logout"
)

var sessionTransitions = map[SessionState]map[SessionTrigger]SessionState{
	SessionUnauthenticated: {
		TriggerLogin:       SessionAuthenticated,
		TriggerInvalidated: SessionUnauthenticated,
		TriggerLogout:      SessionLoggedOut,
	},
	SessionAuthenticated: {
		TriggerLogin:          SessionAuthenticated,
		TriggerRefreshStarted: SessionRefreshing,
		TriggerTokenRotated:   SessionAuthenticated,
		TriggerInvalidated:    SessionUnauthenticated,
		TriggerLogout:         SessionLoggedOut,
	},
	SessionRefreshing: {
		TriggerLogin:            SessionAuthenticated,
		TriggerRefreshStarted:   SessionRefreshing,
		TriggerRefreshSucceeded: SessionAuthenticated,
		TriggerRefreshFailed:    SessionUnauthenticated,
		TriggerTokenRotated:     SessionAuthenticated,
		TriggerInvalidated:      SessionUnauthenticated,
		TriggerLogout:           SessionLoggedOut,
	},
	SessionLoggedOut: {
		TriggerLogin:       SessionAuthenticated,
		TriggerInvalidated: SessionLoggedOut,
		TriggerLogout:      SessionLoggedOut,
	},
}

func ParseSessionState(raw string) (SessionState, error) {
	state := SessionState(raw)
	if raw == "" {
		return SessionUnauthenticated, nil
	}
	if _, ok := sessionTransitions[state]; !ok {
		return "", fmt.Errorf("unknown session state %q", raw)
	}
	return state, nil
}

// Next returns the state reached by applying trigger, or
// ErrInvalidSessionTransition when the table has no such edge.
func (s SessionState) Next(trigger SessionTrigger) (SessionState, error) {
	edges, ok := sessionTransitions[s]
	if !ok {
		return s, fmt.Errorf("%w: unknown state %q", ErrInvalidSessionTransition, s)
	}
	next, ok := edges[trigger]
	if !ok {
		return s, fmt.Errorf("%w: %s on %s", ErrInvalidSessionTransition, trigger, s)
	}
	return next, nil
}

// CanRefresh reports whether a refresh cookie or token may still be honored
// by the backend.
func (s SessionState) CanRefresh() bool {
	return s == SessionAuthenticated || s == SessionRefreshing
}

func (s SessionState) Label() string {
	switch s {
	case SessionAuthenticated:
		return "signed in"
	case SessionRefreshing:
		return "refreshing"
	case SessionLoggedOut:
		return "logged out"
	case SessionUnauthenticated, "":
		return "signed out"
	default:
		return string(s)
	}
}
