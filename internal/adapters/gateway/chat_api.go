package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bnema/helper-gateway/internal/domain"
)

type ChatMessage struct {
	Content    string `json:"content"`
	Type       string `json:"type,omitempty"`
	TemplateID string `json:"templateId,omitempty"`
}

func (g *Gateway) ChatMessages(ctx context.Context, jobID string, page, limit int) domain.Result {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	return g.Request(ctx, chatPath(jobID, "messages"), RequestOptions{Query: query})
}

func (g *Gateway) SendChatMessage(ctx context.Context, jobID string, message ChatMessage) domain.Result {
	if message.Type == "" {
		message.Type = "text"
	}
	return g.Request(ctx, chatPath(jobID, "messages"), RequestOptions{Method: http.MethodPost, Body: message})
}

func (g *Gateway) MarkChatRead(ctx context.Context, jobID string) domain.Result {
	return g.Request(ctx, chatPath(jobID, "read"), RequestOptions{Method: http.MethodPost})
}

func (g *Gateway) ChatUnreadCount(ctx context.Context) domain.Result {
	return g.Request(ctx, "/chat/unread-count", RequestOptions{})
}

func (g *Gateway) ChatTemplates(ctx context.Context) domain.Result {
	return g.Request(ctx, "/chat/templates", RequestOptions{})
}

// UploadChatFile posts one attachment in a single attempt. It skips the retry,
// refresh and cooldown machinery; a rejected upload is reported as is.
func (g *Gateway) UploadChatFile(ctx context.Context, jobID string, file MultipartFile) domain.Result {
	token := g.session.Get().AccessToken
	if token == "" {
		return notAuthenticated()
	}

	body, err := NewMultipart(nil, file)
	if err != nil {
		return domain.Failure(0, "%s", err.Error())
	}

	path := chatPath(jobID, "upload")
	resp, err := g.send(ctx, http.MethodPost, g.endpointURL(path, nil), body.Body, body.ContentType, token, g.newID(), nil)
	if err != nil {
		g.metrics.ObserveRequest(http.MethodPost, path, outcomeNetworkError)
		return domain.Failure(0, "%s", err.Error())
	}
	if !resp.ok() {
		g.metrics.ObserveRequest(http.MethodPost, path, outcomeRejected)
		return domain.Failure(resp.status, "%s", errorMessage(resp))
	}

	g.metrics.ObserveRequest(http.MethodPost, path, outcomeOK)
	return decodeSuccess(resp)
}

func chatPath(jobID, action string) string {
	return "/chat/" + url.PathEscape(jobID) + "/" + action
}
