package gateway

import (
	"context"
	"net/http"

	"github.com/bnema/helper-gateway/internal/domain"
)

type otpRequest struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp,omitempty"`
}

type loginPayload struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (g *Gateway) RequestOTP(ctx context.Context, phone string) domain.Result {
	return g.Request(ctx, "/auth/request-otp", RequestOptions{
		Method: http.MethodPost,
		Body:   otpRequest{Phone: phone},
		Public: true,
	})
}

// VerifyOTP exchanges a one-time code for a credential and logs the session
// in on success.
func (g *Gateway) VerifyOTP(ctx context.Context, phone, code string) domain.Result {
	result := g.Request(ctx, "/auth/verify-otp", RequestOptions{
		Method: http.MethodPost,
		Body:   otpRequest{Phone: phone, OTP: code},
		Public: true,
	})
	if !result.Success {
		return result
	}

	var payload loginPayload
	if err := result.Decode(&payload); err != nil {
		return domain.Failure(result.Status, "%s", err.Error())
	}
	if payload.AccessToken == "" {
		return domain.Failure(result.Status, "verify response missing access token")
	}

	g.PurgeCache()
	if err := g.session.Login(ctx, domain.Credential{AccessToken: payload.AccessToken, RefreshToken: payload.RefreshToken}); err != nil {
		return domain.Failure(result.Status, "store session: %v", err)
	}
	return result
}

func (g *Gateway) Me(ctx context.Context) domain.Result {
	return g.Request(ctx, "/auth/me", RequestOptions{})
}

// RefreshCredential forces a refresh through the shared single-flight path.
func (g *Gateway) RefreshCredential(ctx context.Context) domain.Result {
	if _, err := g.refresh(ctx, g.session.Get().AccessToken); err != nil {
		return domain.Failure(http.StatusUnauthorized, "%s", err.Error())
	}
	return domain.Result{Success: true, Status: http.StatusOK}
}

// Logout always ends the local session, even when the backend call fails.
func (g *Gateway) Logout(ctx context.Context) domain.Result {
	result := g.Request(ctx, "/auth/logout", RequestOptions{Method: http.MethodPost})
	ctx = context.WithoutCancel(ctx)
	if err := g.session.Logout(ctx); err != nil {
		g.logger.Warn().Err(err).Msg("persist logout")
	}
	g.ForgetSession(ctx)
	return result
}
