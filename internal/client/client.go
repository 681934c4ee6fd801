// Package client binds the request gateway and the realtime channel to one
// session so credential changes and sign-outs reach both.
package client

import (
	"context"
	"errors"

	"github.com/bnema/helper-gateway/internal/adapters/gateway"
	"github.com/bnema/helper-gateway/internal/adapters/realtime"
	"github.com/bnema/helper-gateway/internal/application"
	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/rs/zerolog"
)

type Client struct {
	Session  *application.SessionService
	Gateway  *gateway.Gateway
	Realtime *realtime.Channel

	logger zerolog.Logger
}

// New registers the session observers. Build exactly one Client per session.
func New(session *application.SessionService, gw *gateway.Gateway, channel *realtime.Channel, logger zerolog.Logger) (*Client, error) {
	if session == nil || gw == nil || channel == nil {
		return nil, errors.New("client requires a session, a gateway and a realtime channel")
	}

	c := &Client{
		Session:  session,
		Gateway:  gw,
		Realtime: channel,
		logger:   logger.With().Str("component", "client").Logger(),
	}

	session.OnCredentialChange(c.credentialChanged)
	session.OnSignedOut(c.signedOut)
	return c, nil
}

// Connect opens the realtime channel with the current session credential.
func (c *Client) Connect(ctx context.Context) error {
	return c.Realtime.Connect(ctx, "")
}

func (c *Client) Close() {
	c.Realtime.Disconnect()
}

func (c *Client) credentialChanged(cred domain.Credential) {
	c.Realtime.UpdateToken(cred.AccessToken)
}

func (c *Client) signedOut(reason domain.SignOutReason) {
	c.logger.Info().Str("reason", string(reason)).Msg("session ended")
	c.Realtime.Disconnect()
	c.Gateway.ForgetSession(context.Background())
}
