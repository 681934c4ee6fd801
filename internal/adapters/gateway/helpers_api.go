package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bnema/helper-gateway/internal/domain"
)

type Profile struct {
	FirstName      string   `json:"firstName,omitempty"`
	LastName       string   `json:"lastName,omitempty"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	IdentityNumber string   `json:"identityNumber,omitempty"`
	Services       []string `json:"services,omitempty"`
	Bio            string   `json:"bio,omitempty"`
}

// ExistsQuery looks a helper up by phone or identity number. Empty fields
// are not sent.
type ExistsQuery struct {
	Phone          string
	IdentityNumber string
}

func (g *Gateway) GetProfile(ctx context.Context) domain.Result {
	return g.Request(ctx, "/helpers/me", RequestOptions{})
}

func (g *Gateway) CreateProfile(ctx context.Context, profile Profile) domain.Result {
	return g.Request(ctx, "/helpers", RequestOptions{Method: http.MethodPost, Body: profile})
}

func (g *Gateway) UpdateProfile(ctx context.Context, profile Profile) domain.Result {
	return g.Request(ctx, "/helpers/me", RequestOptions{Method: http.MethodPatch, Body: profile})
}

func (g *Gateway) HelperExists(ctx context.Context, query ExistsQuery) domain.Result {
	values := url.Values{}
	if query.Phone != "" {
		values.Set("phone", query.Phone)
	}
	if query.IdentityNumber != "" {
		values.Set("identityNumber", query.IdentityNumber)
	}
	return g.Request(ctx, "/helpers/exists", RequestOptions{Query: values, Public: true})
}

// RegisterHelper submits the onboarding documents. Only the bearer header is
// added; the content type carries the multipart boundary.
func (g *Gateway) RegisterHelper(ctx context.Context, documents *Multipart) domain.Result {
	return g.Request(ctx, "/helpers/register", RequestOptions{Method: http.MethodPost, Multipart: documents})
}

func (g *Gateway) SetAvailability(ctx context.Context, helperID string, available bool) domain.Result {
	return g.Request(ctx, helperPath(helperID, "availability"), RequestOptions{
		Method: http.MethodPatch,
		Body:   map[string]bool{"isAvailable": available},
	})
}

func (g *Gateway) UpdateLocation(ctx context.Context, helperID string, location domain.Location) domain.Result {
	return g.Request(ctx, helperPath(helperID, "location"), RequestOptions{
		Method: http.MethodPatch,
		Body:   location,
	})
}

func helperPath(id, action string) string {
	return "/helpers/" + url.PathEscape(id) + "/" + action
}
