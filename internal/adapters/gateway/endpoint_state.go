package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/bnema/helper-gateway/internal/domain"
)

type endpointState struct {
	lastSuccess   time.Time
	cached        *domain.Result
	cooldownUntil time.Time
}

// Cooldown describes an active client-side cooldown.
type Cooldown struct {
	Endpoint  string
	Until     time.Time
	Remaining time.Duration
}

type endpointTable struct {
	mu     sync.Mutex
	states map[string]*endpointState
}

func newEndpointTable() *endpointTable {
	return &endpointTable{states: make(map[string]*endpointState)}
}

func (t *endpointTable) stateLocked(key string) *endpointState {
	state, ok := t.states[key]
	if !ok {
		state = &endpointState{}
		t.states[key] = state
	}
	return state
}

func (t *endpointTable) cached(key string, now time.Time, ttl time.Duration) (domain.Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[key]
	if !ok || state.cached == nil {
		return domain.Result{}, false
	}
	if now.Sub(state.lastSuccess) >= ttl {
		state.cached = nil
		return domain.Result{}, false
	}
	return *state.cached, true
}

func (t *endpointTable) store(key string, result domain.Result, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.stateLocked(key)
	state.lastSuccess = now
	state.cached = &result
}

// extendCooldown moves the cooldown of key to until unless a later one is
// already set, and returns the effective deadline.
func (t *endpointTable) extendCooldown(key string, until time.Time) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.stateLocked(key)
	if until.After(state.cooldownUntil) {
		state.cooldownUntil = until
	}
	return state.cooldownUntil
}

func (t *endpointTable) cooldownRemaining(key string, now time.Time) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[key]
	if !ok || !state.cooldownUntil.After(now) {
		return 0, false
	}
	return state.cooldownUntil.Sub(now), true
}

func (t *endpointTable) purgeCache() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, state := range t.states {
		state.cached = nil
	}
}

func (t *endpointTable) cooldowns(now time.Time) []Cooldown {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Cooldown, 0)
	for key, state := range t.states {
		if !state.cooldownUntil.After(now) {
			continue
		}
		out = append(out, Cooldown{
			Endpoint:  key,
			Until:     state.cooldownUntil,
			Remaining: state.cooldownUntil.Sub(now),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}
