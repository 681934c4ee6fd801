package domain

import "strings"

// Credential is the bearer pair issued by the backend. It is always passed by
// value so readers hold a snapshot.
type Credential struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (c Credential) IsZero() bool {
	return strings.TrimSpace(c.AccessToken) == "" && strings.TrimSpace(c.RefreshToken) == ""
}

func (c Credential) HasAccessToken() bool {
	return strings.TrimSpace(c.AccessToken) != ""
}

// SignOutReason tells observers why the session ended.
type SignOutReason string

const (
	SignOutExplicit       SignOutReason = "logout"
	SignOutRefreshFailed  SignOutReason = "refresh_failed"
	SignOutAuthRejected   SignOutReason = "auth_rejected"
	SignOutRealtimeReject SignOutReason = "realtime_invalid"
)
