package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bnema/helper-gateway/internal/domain"
	"github.com/bnema/helper-gateway/internal/ports"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// CookieRef is the secret store key holding the backend's cookies.
const CookieRef = "helper/session/cookies"

type savedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
}

func (c savedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// cookie rebuilds the cookie with its remaining lifetime as MaxAge, so the
// jar's own notion of now does not matter.
func (c savedCookie) cookie(now time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
	if !c.Expires.IsZero() {
		cookie.MaxAge = max(int(c.Expires.Sub(now).Seconds()), 1)
	}
	return cookie
}

// cookieJar is an in-memory jar that mirrors cookies set by the API host into
// a secret store, so an HttpOnly refresh cookie survives between processes.
type cookieJar struct {
	base   *url.URL
	store  ports.SecretStore
	clock  ports.Clock
	logger zerolog.Logger

	mu    sync.Mutex
	jar   *cookiejar.Jar
	saved map[string]savedCookie
}

var _ http.CookieJar = (*cookieJar)(nil)

func newCookieJar(base *url.URL, store ports.SecretStore, clock ports.Clock, logger zerolog.Logger) (*cookieJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &cookieJar{
		base:   base,
		store:  store,
		clock:  clock,
		logger: logger,
		jar:    jar,
		saved:  make(map[string]savedCookie),
	}, nil
}

func (j *cookieJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

func (j *cookieJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar.SetCookies(u, cookies)
	if j.store == nil || !strings.EqualFold(u.Host, j.base.Host) {
		return
	}

	now := j.clock.Now()
	for _, c := range cookies {
		saved := savedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if saved.Path == "" || !strings.HasPrefix(saved.Path, "/") {
			saved.Path = defaultCookiePath(u.Path)
		}
		if c.MaxAge > 0 {
			saved.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}

		key := saved.Name + ";" + saved.Domain + ";" + saved.Path
		if c.MaxAge < 0 || c.Value == "" || saved.expired(now) {
			delete(j.saved, key)
			continue
		}
		j.saved[key] = saved
	}

	if err := j.persistLocked(context.Background()); err != nil {
		j.logger.Warn().Err(err).Msg("persist cookies")
	}
}

// restore loads persisted cookies into the jar. Expired entries are dropped.
func (j *cookieJar) restore(ctx context.Context) error {
	if j.store == nil {
		return nil
	}

	raw, err := j.store.Get(ctx, CookieRef)
	if errors.Is(err, domain.ErrSecretNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load cookies: %w", err)
	}

	var saved []savedCookie
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return fmt.Errorf("decode cookies: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.clock.Now()
	var live []*http.Cookie
	for _, c := range saved {
		if c.expired(now) {
			continue
		}
		j.saved[c.Name+";"+c.Domain+";"+c.Path] = c
		live = append(live, c.cookie(now))
	}
	if len(live) > 0 {
		j.jar.SetCookies(j.base, live)
	}
	return nil
}

// reset forgets every cookie in memory and in the store.
func (j *cookieJar) reset(ctx context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("create cookie jar: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.jar = jar
	clear(j.saved)
	return j.persistLocked(ctx)
}

func (j *cookieJar) persistLocked(ctx context.Context) error {
	if j.store == nil {
		return nil
	}
	if len(j.saved) == 0 {
		if err := j.store.Delete(ctx, CookieRef); err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
			return err
		}
		return nil
	}

	saved := make([]savedCookie, 0, len(j.saved))
	for _, c := range j.saved {
		saved = append(saved, c)
	}
	sort.Slice(saved, func(a, b int) bool {
		if saved[a].Name != saved[b].Name {
			return saved[a].Name < saved[b].Name
		}
		return saved[a].Path < saved[b].Path
	})

	raw, err := json.Marshal(saved)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	return j.store.Put(ctx, CookieRef, string(raw))
}

// defaultCookiePath is the directory of the request path, as browsers use
// for cookies set without a Path attribute.
func defaultCookiePath(requestPath string) string {
	if requestPath == "" || requestPath[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(requestPath, "/")
	if i == 0 {
		return "/"
	}
	return requestPath[:i]
}
