package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bnema/helper-gateway/internal/domain"
)

const refreshPath = "/auth/refresh"

// errRefreshRejected means the refresh endpoint was called and the session
// was already cleared as a result.
var errRefreshRejected = errors.New("refresh rejected")

type refreshPayload struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// refresh obtains a new credential. Concurrent callers share one refresh; a
// caller whose stale token was already replaced gets the current credential
// without another network call.
func (g *Gateway) refresh(ctx context.Context, stale string) (domain.Credential, error) {
	ch := g.refreshes.DoChan("refresh", func() (any, error) {
		return g.runRefresh(context.WithoutCancel(ctx), stale)
	})

	select {
	case <-ctx.Done():
		return domain.Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domain.Credential{}, res.Err
		}
		return res.Val.(domain.Credential), nil
	}
}

func (g *Gateway) runRefresh(ctx context.Context, stale string) (domain.Credential, error) {
	current := g.session.Get()
	if current.HasAccessToken() && current.AccessToken != stale {
		return current, nil
	}
	if !g.session.CanRefresh() {
		return domain.Credential{}, domain.ErrNotAuthenticated
	}
	if err := g.session.BeginRefresh(ctx); err != nil {
		if errors.Is(err, domain.ErrInvalidSessionTransition) {
			return domain.Credential{}, err
		}
		g.logger.Warn().Err(err).Msg("persist refresh start")
	}

	var body any
	if current.RefreshToken != "" {
		body = refreshPayload{RefreshToken: current.RefreshToken}
	}
	result := g.Request(ctx, refreshPath, RequestOptions{Method: http.MethodPost, Body: body, Public: true})

	var payload refreshPayload
	if result.Success {
		if err := result.Decode(&payload); err != nil {
			result = domain.Failure(result.Status, "%s", err.Error())
		} else if payload.AccessToken == "" {
			result = domain.Failure(result.Status, "refresh response missing access token")
		}
	}
	if !result.Success {
		if rotated, ok := g.rotatedSince(stale); ok {
			return rotated, nil
		}
		g.metrics.ObserveRefresh(false)
		if err := g.session.RefreshFailed(ctx); err != nil {
			g.logger.Warn().Err(err).Msg("clear session after failed refresh")
		}
		g.ForgetSession(ctx)
		return domain.Credential{}, fmt.Errorf("%w: %s", errRefreshRejected, result.Error)
	}

	cred := domain.Credential{AccessToken: payload.AccessToken, RefreshToken: payload.RefreshToken}
	if err := g.session.RefreshSucceeded(ctx, cred); err != nil {
		if errors.Is(err, domain.ErrInvalidSessionTransition) {
			if rotated, ok := g.rotatedSince(stale); ok {
				g.logger.Debug().Msg("credential rotated during refresh")
				return rotated, nil
			}
			g.metrics.ObserveRefresh(false)
			return domain.Credential{}, fmt.Errorf("%w: %v", errRefreshRejected, err)
		}
		g.logger.Warn().Err(err).Msg("persist refreshed credential")
	}

	g.metrics.ObserveRefresh(true)
	g.logger.Info().Msg("credential refreshed")
	return g.session.Get(), nil
}

// rotatedSince reports the current credential when a rotation pushed over the
// realtime channel replaced stale while the refresh was in flight.
func (g *Gateway) rotatedSince(stale string) (domain.Credential, bool) {
	if g.session.State() != domain.SessionAuthenticated {
		return domain.Credential{}, false
	}
	current := g.session.Get()
	if !current.HasAccessToken() || current.AccessToken == stale {
		return domain.Credential{}, false
	}
	return current, true
}
