package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bnema/helper-gateway/internal/domain"
)

type Rating struct {
	Score   int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// ActiveJobs polls the helper's current jobs. The endpoint is rate limited
// hard; a 429 cools it down for minutes.
func (g *Gateway) ActiveJobs(ctx context.Context) ([]domain.Job, domain.Result) {
	return decodeJobs(g.Request(ctx, "/services/active", RequestOptions{}))
}

func (g *Gateway) Job(ctx context.Context, id string) (domain.Job, domain.Result) {
	result := g.Request(ctx, jobPath(id, ""), RequestOptions{})
	if !result.Success {
		return domain.Job{}, result
	}
	var job domain.Job
	if err := result.Decode(&job); err != nil {
		return domain.Job{}, domain.Failure(result.Status, "%s", err.Error())
	}
	return job, result
}

func (g *Gateway) VerifyJobOTP(ctx context.Context, id, code string) domain.Result {
	return g.Request(ctx, jobPath(id, "verify-otp"), RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"otp": code},
	})
}

func (g *Gateway) MarkArrived(ctx context.Context, id string) domain.Result {
	return g.Request(ctx, jobPath(id, "arrive"), RequestOptions{Method: http.MethodPost})
}

func (g *Gateway) CompleteJob(ctx context.Context, id, notes string) domain.Result {
	var body any
	if notes != "" {
		body = map[string]string{"notes": notes}
	}
	result := g.Request(ctx, jobPath(id, "complete"), RequestOptions{Method: http.MethodPost, Body: body})
	if result.Success {
		g.forgetActiveJob(ctx, id)
	}
	return result
}

// AcceptJob remembers the job so the realtime channel rejoins its room after
// a reconnect.
func (g *Gateway) AcceptJob(ctx context.Context, id string) domain.Result {
	result := g.Request(ctx, jobPath(id, "accept"), RequestOptions{Method: http.MethodPost})
	if result.Success {
		if err := g.session.SetActiveJobID(ctx, id); err != nil {
			g.logger.Warn().Err(err).Str("job_id", id).Msg("persist active job")
		}
	}
	return result
}

func (g *Gateway) DeclineJob(ctx context.Context, id, reason string) domain.Result {
	var body any
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	return g.Request(ctx, jobPath(id, "decline"), RequestOptions{Method: http.MethodPost, Body: body})
}

func (g *Gateway) UpdateJobStatus(ctx context.Context, id string, status domain.JobStatus) domain.Result {
	result := g.Request(ctx, jobPath(id, "status"), RequestOptions{
		Method: http.MethodPatch,
		Body:   map[string]domain.JobStatus{"status": status},
	})
	if result.Success && status.Terminal() {
		g.forgetActiveJob(ctx, id)
	}
	return result
}

func (g *Gateway) JobHistory(ctx context.Context, page, limit int) ([]domain.Job, domain.Result) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	return decodeJobs(g.Request(ctx, "/services/history", RequestOptions{Query: query}))
}

func (g *Gateway) RateJob(ctx context.Context, id string, rating Rating) domain.Result {
	return g.Request(ctx, jobPath(id, "rate"), RequestOptions{Method: http.MethodPost, Body: rating})
}

func (g *Gateway) JobRating(ctx context.Context, id string) domain.Result {
	return g.Request(ctx, jobPath(id, "rating"), RequestOptions{})
}

func (g *Gateway) forgetActiveJob(ctx context.Context, id string) {
	if g.session.ActiveJobID() != id {
		return
	}
	if err := g.session.SetActiveJobID(ctx, ""); err != nil {
		g.logger.Warn().Err(err).Str("job_id", id).Msg("clear active job")
	}
}

func decodeJobs(result domain.Result) ([]domain.Job, domain.Result) {
	if !result.Success {
		return nil, result
	}
	jobs, err := domain.DecodeJobList(result.Data)
	if err != nil {
		return nil, domain.Failure(result.Status, "%s", err.Error())
	}
	return jobs, result
}

func jobPath(id, action string) string {
	path := "/services/" + url.PathEscape(id)
	if action == "" {
		return path
	}
	return path + "/" + action
}
