package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/bnema/helper-gateway/internal/ports"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	outcomeOK               = "ok"
	outcomeCacheHit         = "cache_hit"
	outcomeCooldown         = "cooldown"
	outcomeRateLimited      = "rate_limited"
	outcomeUnauthorized     = "unauthorized"
	outcomeNotAuthenticated = "not_authenticated"
	outcomeRejected         = "rejected"
	outcomeNetworkError     = "network_error"
	outcomeCanceled         = "canceled"
)

type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Policy     Policy
	Clock      ports.Clock
	Metrics    ports.Metrics
	Logger     zerolog.Logger
	// Cookies persists the backend's cookies between processes. It is ignored
	// when HTTPClient is set.
	Cookies ports.SecretStore
}

// RequestOptions describes one logical call. Method defaults to GET. Body is
// JSON encoded unless Multipart is set. Public calls never send a bearer.
type RequestOptions struct {
	Method    string
	Body      any
	Headers   map[string]string
	Query     url.Values
	Multipart *Multipart
	Public    bool
}

func (o RequestOptions) method() string {
	if o.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(o.Method)
}

// Gateway executes backend calls with bounded retries, single-flight token
// refresh, a short read cache and per-endpoint cooldowns. Every call resolves
// to a domain.Result.
type Gateway struct {
	baseURL string
	client  *http.Client
	session ports.Session
	policy  Policy
	clock   ports.Clock
	metrics ports.Metrics
	logger  zerolog.Logger

	sleep func(context.Context, time.Duration) error
	newID func() string

	endpoints *endpointTable
	refreshes singleflight.Group
	cookies   *cookieJar
}

func New(cfg Config, session ports.Session) (*Gateway, error) {
	if session == nil {
		return nil, errors.New("session is required")
	}

	baseURL, err := normalizeBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	logger := cfg.Logger.With().Str("component", "gateway").Logger()

	client := cfg.HTTPClient
	var cookies *cookieJar
	if client == nil {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse api base url: %w", err)
		}
		cookies, err = newCookieJar(parsed, cfg.Cookies, clock, logger)
		if err != nil {
			return nil, err
		}
		client = &http.Client{Jar: cookies}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}

	return &Gateway{
		baseURL:   baseURL,
		client:    client,
		session:   session,
		policy:    cfg.Policy.withDefaults(),
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
		sleep:     sleepContext,
		newID:     uuid.NewString,
		endpoints: newEndpointTable(),
		cookies:   cookies,
	}, nil
}

func (g *Gateway) Policy() Policy {
	return g.policy
}

// Cooldowns lists the endpoints currently short-circuited on the client.
func (g *Gateway) Cooldowns() []Cooldown {
	return g.endpoints.cooldowns(g.clock.Now())
}

// PurgeCache forgets every cached response. It runs on sign-out so the next
// identity never reads the previous one's data.
func (g *Gateway) PurgeCache() {
	g.endpoints.purgeCache()
}

// RestoreCookies loads cookies saved by an earlier process, such as an
// HttpOnly refresh cookie set on sign-in.
func (g *Gateway) RestoreCookies(ctx context.Context) error {
	if g.cookies == nil {
		return nil
	}
	return g.cookies.restore(ctx)
}

// ForgetSession drops cached reads and every backend cookie. It runs after
// the session was cleared.
func (g *Gateway) ForgetSession(ctx context.Context) {
	g.endpoints.purgeCache()
	if g.cookies == nil {
		return
	}
	if err := g.cookies.reset(ctx); err != nil {
		g.logger.Warn().Err(err).Msg("forget cookies")
	}
}

// Request performs one logical call. It never returns an error: every outcome
// is folded into the Result.
func (g *Gateway) Request(ctx context.Context, endpoint string, opts RequestOptions) domain.Result {
	method := opts.method()
	path := endpointPath(endpoint)
	stateKey := method + " " + path
	cacheKey := method + " " + g.endpointURL(endpoint, opts.Query)
	cacheable := method == http.MethodGet && g.policy.cacheable(path)

	if cacheable {
		if cached, ok := g.endpoints.cached(cacheKey, g.clock.Now(), g.policy.CacheTTL); ok {
			g.metrics.ObserveRequest(method, path, outcomeCacheHit)
			return cached
		}
	}

	if remaining, ok := g.endpoints.cooldownRemaining(stateKey, g.clock.Now()); ok {
		g.metrics.ObserveRequest(method, path, outcomeCooldown)
		return domain.Failure(http.StatusTooManyRequests, "Client-side cooldown active for %s, retry in %s", path, formatWait(remaining))
	}

	body, contentType, err := encodeBody(opts)
	if err != nil {
		return domain.Failure(0, "encode request body: %v", err)
	}

	requestID := g.newID()
	logger := g.logger.With().Str("request_id", requestID).Str("method", method).Str("endpoint", path).Logger()
	refreshed := false

	for attempt := 0; ; attempt++ {
		token := ""
		if !opts.Public {
			cred := g.session.Get()
			if !cred.HasAccessToken() {
				if refreshed || !g.session.CanRefresh() {
					g.metrics.ObserveRequest(method, path, outcomeNotAuthenticated)
					return notAuthenticated()
				}
				fresh, err := g.refresh(ctx, "")
				if err != nil {
					logger.Debug().Err(err).Msg("refresh before request failed")
					g.metrics.ObserveRequest(method, path, outcomeNotAuthenticated)
					return notAuthenticated()
				}
				refreshed = true
				cred = fresh
			}
			token = cred.AccessToken
		}

		resp, err := g.send(ctx, method, g.endpointURL(endpoint, opts.Query), body, contentType, token, requestID, opts.Headers)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				g.metrics.ObserveRequest(method, path, outcomeCanceled)
				return domain.Failure(0, "%s", ctxErr.Error())
			}
			if attempt >= g.policy.MaxRetries {
				logger.Warn().Err(err).Int("attempt", attempt).Msg("network retries exhausted")
				g.metrics.ObserveRequest(method, path, outcomeNetworkError)
				return domain.Failure(0, "%s", err.Error())
			}
			wait := g.policy.backoff(attempt)
			logger.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("network error, retrying")
			g.metrics.ObserveRetry(path, "network")
			if err := g.sleep(ctx, wait); err != nil {
				g.metrics.ObserveRequest(method, path, outcomeCanceled)
				return domain.Failure(0, "%s", err.Error())
			}
			continue
		}

		switch {
		case resp.ok():
			result := decodeSuccess(resp)
			if result.Success && cacheable {
				g.endpoints.store(cacheKey, result, g.clock.Now())
			}
			outcome := outcomeOK
			if !result.Success {
				outcome = outcomeRejected
			}
			g.metrics.ObserveRequest(method, path, outcome)
			return result

		case resp.status == http.StatusTooManyRequests:
			result, retry := g.handleRateLimit(ctx, logger, stateKey, path, resp, attempt)
			if !retry {
				g.metrics.ObserveRequest(method, path, outcomeRateLimited)
				return result
			}
			continue

		case (resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden) && !opts.Public:
			if refreshed || attempt >= g.policy.MaxRetries {
				logger.Info().Int("status", resp.status).Msg("credential rejected after refresh")
				g.signOut(ctx, domain.SignOutAuthRejected)
				g.metrics.ObserveRequest(method, path, outcomeUnauthorized)
				return domain.Failure(resp.status, "%s", errorMessage(resp))
			}
			if _, err := g.refresh(ctx, token); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					g.metrics.ObserveRequest(method, path, outcomeCanceled)
					return domain.Failure(0, "%s", ctxErr.Error())
				}
				logger.Info().Err(err).Int("status", resp.status).Msg("refresh after auth failure failed")
				if !errors.Is(err, errRefreshRejected) {
					g.signOut(ctx, domain.SignOutAuthRejected)
				}
				g.metrics.ObserveRequest(method, path, outcomeUnauthorized)
				return domain.Failure(resp.status, "%s", errorMessage(resp))
			}
			refreshed = true
			g.metrics.ObserveRetry(path, "refresh")
			continue

		default:
			g.metrics.ObserveRequest(method, path, outcomeRejected)
			return domain.Failure(resp.status, "%s", errorMessage(resp))
		}
	}
}

// handleRateLimit applies the cooldown tier for path. It reports whether the
// caller should retry after the wait it already slept.
func (g *Gateway) handleRateLimit(ctx context.Context, logger zerolog.Logger, stateKey, path string, resp response, attempt int) (domain.Result, bool) {
	now := g.clock.Now()
	wait, ok := parseRetryAfter(resp.header.Get("Retry-After"), now)
	if !ok {
		wait = g.policy.backoff(attempt)
	}

	var cooldown time.Duration
	switch {
	case g.policy.hot(path):
		cooldown = max(g.policy.HotCooldown, wait)
	case g.policy.prefixed(path):
		cooldown = max(g.policy.PrefixCooldown, wait)
	case attempt >= g.policy.MaxRetries:
		cooldown = max(g.policy.ExhaustedCooldown, wait)
	default:
		g.endpoints.extendCooldown(stateKey, now.Add(wait))
		g.metrics.ObserveCooldown(path, wait)
		g.metrics.ObserveRetry(path, "rate_limited")
		logger.Debug().Int("attempt", attempt).Dur("wait", wait).Msg("rate limited, retrying")
		if err := g.sleep(ctx, wait); err != nil {
			return domain.Failure(0, "%s", err.Error()), false
		}
		return domain.Result{}, true
	}

	until := g.endpoints.extendCooldown(stateKey, now.Add(cooldown))
	g.metrics.ObserveCooldown(path, cooldown)
	logger.Warn().Int("attempt", attempt).Time("cooldown_until", until).Msg("rate limited, cooling down")

	message := errorMessage(resp)
	if len(bytes.TrimSpace(resp.body)) == 0 {
		message = fmt.Sprintf("Rate limited on %s, retry in %s", path, formatWait(until.Sub(now)))
	}
	return domain.Failure(http.StatusTooManyRequests, "%s", message), false
}

func (g *Gateway) send(ctx context.Context, method, target string, body []byte, contentType, token, requestID string, headers map[string]string) (response, error) {
	requestCtx, cancel := g.requestContext(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(requestCtx, method, target, reader)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return response{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{}, fmt.Errorf("read response body: %w", err)
	}

	return response{status: resp.StatusCode, header: resp.Header, body: payload}, nil
}

func (g *Gateway) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.policy.RequestTimeout)
}

func (g *Gateway) endpointURL(endpoint string, query url.Values) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	target := g.baseURL + endpoint
	if len(query) == 0 {
		return target
	}
	separator := "?"
	if strings.Contains(endpoint, "?") {
		separator = "&"
	}
	return target + separator + query.Encode()
}

func (g *Gateway) signOut(ctx context.Context, reason domain.SignOutReason) {
	ctx = context.WithoutCancel(ctx)
	if err := g.session.Clear(ctx, reason); err != nil {
		g.logger.Warn().Err(err).Str("reason", string(reason)).Msg("clear session")
	}
	g.ForgetSession(ctx)
}

func encodeBody(opts RequestOptions) ([]byte, string, error) {
	if opts.Multipart != nil {
		return opts.Multipart.Body, opts.Multipart.ContentType, nil
	}
	if opts.Body == nil {
		return nil, "", nil
	}
	raw, err := json.Marshal(opts.Body)
	if err != nil {
		return nil, "", err
	}
	return raw, "application/json", nil
}

func notAuthenticated() domain.Result {
	return domain.Result{Success: false, Error: "Not authenticated", Status: http.StatusUnauthorized}
}

func normalizeBaseURL(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("api base url is required")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("api base url host is required")
	}

	return strings.TrimRight(parsed.String(), "/"), nil
}

func formatWait(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
