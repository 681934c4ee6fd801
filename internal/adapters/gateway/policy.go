package gateway

import (
	"strings"
	"time"
)

// Policy holds the retry, cache and cooldown numbers applied by the gateway.
// Zero fields fall back to DefaultPolicy.
type Policy struct {
	MaxRetries        int
	BaseBackoff       time.Duration
	CacheTTL          time.Duration
	CacheableGets     []string
	HotEndpoints      []string
	HotCooldown       time.Duration
	CooldownPrefixes  []string
	PrefixCooldown    time.Duration
	ExhaustedCooldown time.Duration
	RequestTimeout    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        4,
		BaseBackoff:       time.Second,
		CacheTTL:          10 * time.Second,
		CacheableGets:     []string{"/auth/me", "/helpers/me", "/chat/templates"},
		HotEndpoints:      []string{"/services/active"},
		HotCooldown:       5 * time.Minute,
		CooldownPrefixes:  []string{"/notifications"},
		PrefixCooldown:    45 * time.Second,
		ExhaustedCooldown: 30 * time.Second,
		RequestTimeout:    30 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = def.BaseBackoff
	}
	if p.CacheTTL <= 0 {
		p.CacheTTL = def.CacheTTL
	}
	if p.CacheableGets == nil {
		p.CacheableGets = def.CacheableGets
	}
	if p.HotEndpoints == nil {
		p.HotEndpoints = def.HotEndpoints
	}
	if p.HotCooldown <= 0 {
		p.HotCooldown = def.HotCooldown
	}
	if p.CooldownPrefixes == nil {
		p.CooldownPrefixes = def.CooldownPrefixes
	}
	if p.PrefixCooldown <= 0 {
		p.PrefixCooldown = def.PrefixCooldown
	}
	if p.ExhaustedCooldown <= 0 {
		p.ExhaustedCooldown = def.ExhaustedCooldown
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = def.RequestTimeout
	}
	return p
}

// backoff returns BaseBackoff * 2^attempt.
func (p Policy) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	return p.BaseBackoff << attempt
}

func (p Policy) cacheable(path string) bool {
	return containsPath(p.CacheableGets, path)
}

func (p Policy) hot(path string) bool {
	return containsPath(p.HotEndpoints, path)
}

func (p Policy) prefixed(path string) bool {
	for _, prefix := range p.CooldownPrefixes {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

func containsPath(paths []string, path string) bool {
	for _, candidate := range paths {
		if candidate == path {
			return true
		}
	}
	return false
}

// endpointPath strips the query string from endpoint.
func endpointPath(endpoint string) string {
	path, _, _ := strings.Cut(endpoint, "?")
	if path == "" {
		return "/"
	}
	return path
}
