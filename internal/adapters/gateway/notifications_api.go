package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bnema/helper-gateway/internal/domain"
)

func (g *Gateway) Notifications(ctx context.Context, page, limit int, unreadOnly bool) domain.Result {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if unreadOnly {
		query.Set("unread", "true")
	}
	return g.Request(ctx, "/notifications", RequestOptions{Query: query})
}

func (g *Gateway) NotificationUnreadCount(ctx context.Context) domain.Result {
	return g.Request(ctx, "/notifications/unread-count", RequestOptions{})
}

func (g *Gateway) MarkNotificationRead(ctx context.Context, id string) domain.Result {
	return g.Request(ctx, "/notifications/"+url.PathEscape(id)+"/read", RequestOptions{Method: http.MethodPatch})
}

func (g *Gateway) MarkAllNotificationsRead(ctx context.Context) domain.Result {
	return g.Request(ctx, "/notifications/read-all", RequestOptions{Method: http.MethodPatch})
}

func (g *Gateway) DeleteNotification(ctx context.Context, id string) domain.Result {
	return g.Request(ctx, "/notifications/"+url.PathEscape(id), RequestOptions{Method: http.MethodDelete})
}

func (g *Gateway) NotificationPreferences(ctx context.Context) domain.Result {
	return g.Request(ctx, "/notifications/preferences", RequestOptions{})
}

func (g *Gateway) UpdateNotificationPreferences(ctx context.Context, preferences map[string]bool) domain.Result {
	return g.Request(ctx, "/notifications/preferences", RequestOptions{Method: http.MethodPut, Body: preferences})
}
