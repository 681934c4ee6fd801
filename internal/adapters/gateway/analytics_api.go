package gateway

import (
	"context"
	"net/url"

	"github.com/bnema/helper-gateway/internal/domain"
)

// Earnings reads the helper's earnings for period (day, week, month or all).
func (g *Gateway) Earnings(ctx context.Context, period string) domain.Result {
	query := url.Values{}
	if period != "" {
		query.Set("period", period)
	}
	return g.Request(ctx, "/analytics/helper/earnings", RequestOptions{Query: query})
}

func (g *Gateway) AnalyticsSummary(ctx context.Context) domain.Result {
	return g.Request(ctx, "/analytics/helper/summary", RequestOptions{})
}

func (g *Gateway) AnalyticsPerformance(ctx context.Context) domain.Result {
	return g.Request(ctx, "/analytics/helper/performance", RequestOptions{})
}
