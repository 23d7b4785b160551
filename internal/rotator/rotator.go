// Package rotator implements strategy-driven credential selection, OAuth
// refresh, and quota-exhaustion bookkeeping, with rotation state shared
// safely across concurrent GetToken callers.
package rotator

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/openrelay/antigravity-gateway/internal/antigravity"
	"github.com/openrelay/antigravity-gateway/internal/apierrors"
	"github.com/openrelay/antigravity-gateway/internal/config"
	"github.com/openrelay/antigravity-gateway/internal/store"
)

// OAuthClient is the subset of antigravity.Client the rotator depends on,
// broken out as an interface so tests can stub refresh/discovery behavior.
type OAuthClient interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*antigravity.RefreshResult, error)
	FetchProjectID(ctx context.Context, accessToken string) (string, error)
}

// CredentialStore is the subset of store.Store the rotator depends on.
type CredentialStore interface {
	List() []*store.Credential
	Update(refreshToken string, patch store.Patch) error
	PersistOne(c *store.Credential) error
}

// Rotator selects a live credential per request, refreshing and disabling
// as needed. It owns the in-memory credential list and rotation state; the
// Store remains the sole writer of the on-disk file (the rotator writes
// through it).
type Rotator struct {
	mu sync.Mutex

	store  CredentialStore
	oauth  OAuthClient
	config atomicConfig

	list         []*store.Credential
	currentIndex int
	requestCount map[string]int

	discoverOnce singleflight.Group
}

type atomicConfig struct {
	mu                   sync.RWMutex
	strategy             config.RotationStrategy
	requestCountPerToken int
	skipProjectDiscovery bool
}

func (a *atomicConfig) get() (config.RotationStrategy, int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.strategy, a.requestCountPerToken, a.skipProjectDiscovery
}

func (a *atomicConfig) set(strategy config.RotationStrategy, requestCountPerToken int, skip bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.strategy = strategy
	a.requestCountPerToken = requestCountPerToken
	a.skipProjectDiscovery = skip
}

// New builds a Rotator seeded from st's current credential list and keeps
// it in sync via st.OnChange, so external edits (admin route, hand edits to
// accounts.json) are reflected without a restart.
func New(st *store.Store, oauth OAuthClient, cfg *config.Config) *Rotator {
	r := &Rotator{
		store:        st,
		oauth:        oauth,
		requestCount: make(map[string]int),
	}
	r.config.set(cfg.RotationStrategy, cfg.RequestCountPerToken, cfg.SkipProjectDiscovery)
	r.list = st.List()
	st.OnChange(r.replaceList)
	return r
}

// replaceList swaps in a freshly loaded credential list while preserving
// currentIndex as a best-effort position (clamped to the new length) and
// dropping request counters for credentials no longer present.
func (r *Rotator) replaceList(list []*store.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = list
	if len(r.list) == 0 {
		r.currentIndex = 0
		return
	}
	if r.currentIndex >= len(r.list) {
		r.currentIndex = 0
	}
}

// UpdateRotationConfig hot-swaps the strategy and resets rotation counters,
// since per-token request counts and the scan cursor are only meaningful
// relative to the strategy that produced them.
func (r *Rotator) UpdateRotationConfig(strategy config.RotationStrategy, requestCountPerToken int, skipProjectDiscovery bool) {
	r.config.set(strategy, requestCountPerToken, skipProjectDiscovery)
	r.mu.Lock()
	r.requestCount = make(map[string]int)
	r.currentIndex = 0
	r.mu.Unlock()
}

// GetToken scans the credential list circularly starting from the current
// cursor, refreshing expired tokens and discovering missing project ids
// along the way, and returns the first usable credential, or nil if none
// is available.
func (r *Rotator) GetToken(ctx context.Context) *store.Credential {
	strategy, requestCountPerToken, skipDiscovery := r.config.get()

	r.mu.Lock()
	n := len(r.list)
	if n == 0 {
		r.mu.Unlock()
		return nil
	}
	start := r.currentIndex
	snapshot := make([]*store.Credential, n)
	copy(snapshot, r.list)
	r.mu.Unlock()

	for offset := 0; offset < n; offset++ {
		idx := (start + offset) % n
		cand := snapshot[idx]

		if !cand.Enable {
			continue
		}
		if strategy == config.StrategyQuotaExhausted && !cand.HasQuota {
			continue
		}

		if cand.IsExpired(time.Now()) {
			refreshed, disable, err := r.refresh(ctx, cand)
			if err != nil {
				if disable {
					r.disableByToken(cand.RefreshToken)
				}
				continue
			}
			cand = refreshed
		}

		if cand.ProjectID == "" {
			pid, ok := r.ensureProjectID(ctx, cand, skipDiscovery)
			if !ok {
				continue
			}
			cand.ProjectID = pid
		}

		r.commitSelection(idx, cand, strategy, requestCountPerToken)
		return cand
	}

	if strategy == config.StrategyQuotaExhausted {
		return r.resetAndReturnFirst(snapshot)
	}
	return nil
}

// commitSelection advances currentIndex/requestCount per the active
// strategy's post-advance rule.
func (r *Rotator) commitSelection(idx int, cand *store.Credential, strategy config.RotationStrategy, requestCountPerToken int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentIndex = idx
	for i, c := range r.list {
		if c.RefreshToken == cand.RefreshToken {
			r.list[i] = cand
			break
		}
	}
	n := len(r.list)
	if n == 0 {
		return
	}
	switch strategy {
	case config.StrategyRoundRobin:
		r.currentIndex = (idx + 1) % n
	case config.StrategyRequestCount:
		r.requestCount[cand.RefreshToken]++
		if r.requestCount[cand.RefreshToken] >= requestCountPerToken {
			r.requestCount[cand.RefreshToken] = 0
			r.currentIndex = (idx + 1) % n
		}
	case config.StrategyQuotaExhausted:
		r.currentIndex = (idx + 1) % n
	}
}

// resetAndReturnFirst implements the optimistic "new billing window" reset:
// once every credential has been marked exhausted, assume quotas have
// rolled over and give every credential another chance rather than
// reporting a hard failure.
func (r *Rotator) resetAndReturnFirst(snapshot []*store.Credential) *store.Credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.list) == 0 {
		return nil
	}
	for _, c := range r.list {
		c.HasQuota = true
	}
	r.currentIndex = 0
	first := r.list[0]
	go func(c *store.Credential) {
		_ = r.store.Update(c.RefreshToken, store.Patch{HasQuota: boolPtr(true)})
	}(first)
	return first
}

func (r *Rotator) refresh(ctx context.Context, c *store.Credential) (*store.Credential, bool, error) {
	result, err := r.oauth.RefreshAccessToken(ctx, c.RefreshToken)
	if err != nil {
		status := statusOf(err)
		if status == 400 || status == 403 {
			log.Warnf("rotator: refresh failed with status %d for %s, disabling", status, redact(c.RefreshToken))
			return nil, true, err
		}
		log.Warnf("rotator: refresh error for %s, skipping this attempt: %v", redact(c.RefreshToken), err)
		return nil, false, err
	}
	updated := c.Clone()
	updated.AccessToken = result.AccessToken
	updated.ExpiresIn = result.ExpiresIn
	updated.Timestamp = result.Timestamp
	if err := r.store.PersistOne(updated); err != nil {
		log.Warnf("rotator: persist refreshed credential %s: %v", redact(c.RefreshToken), err)
	}
	return updated, false, nil
}

// ensureProjectID fetches (or synthesizes) a project id, deduplicating
// concurrent discovery calls for the same credential via singleflight.
func (r *Rotator) ensureProjectID(ctx context.Context, c *store.Credential, skipDiscovery bool) (string, bool) {
	if skipDiscovery {
		return antigravity.SynthesizeProjectID(), true
	}
	v, err, _ := r.discoverOnce.Do(c.RefreshToken, func() (interface{}, error) {
		return r.oauth.FetchProjectID(ctx, c.AccessToken)
	})
	if err != nil {
		log.Warnf("rotator: project id discovery failed for %s, skipping: %v", redact(c.RefreshToken), err)
		return "", false
	}
	pid, _ := v.(string)
	if pid == "" {
		return "", false
	}
	if err := r.store.Update(c.RefreshToken, store.Patch{ProjectID: strPtr(pid)}); err != nil {
		log.Warnf("rotator: persist discovered project id for %s: %v", redact(c.RefreshToken), err)
	}
	return pid, true
}

// DisableToken marks c as disabled, both in memory and on disk.
func (r *Rotator) DisableToken(c *store.Credential) {
	if c == nil {
		return
	}
	r.disableByToken(c.RefreshToken)
}

func (r *Rotator) disableByToken(refreshToken string) {
	r.mu.Lock()
	for _, c := range r.list {
		if c.RefreshToken == refreshToken {
			c.Enable = false
		}
	}
	r.mu.Unlock()
	if err := r.store.Update(refreshToken, store.Patch{Enable: boolPtr(false)}); err != nil {
		log.Warnf("rotator: persist disable for %s: %v", redact(refreshToken), err)
	}
}

// MarkQuotaExhausted flags c as out of quota and, under the
// quota_exhausted strategy, advances currentIndex.
func (r *Rotator) MarkQuotaExhausted(c *store.Credential) {
	if c == nil {
		return
	}
	r.mu.Lock()
	n := len(r.list)
	idx := -1
	for i, cand := range r.list {
		if cand.RefreshToken == c.RefreshToken {
			cand.HasQuota = false
			idx = i
			break
		}
	}
	strategy, _, _ := r.config.get()
	if idx >= 0 && strategy == config.StrategyQuotaExhausted && n > 0 {
		r.currentIndex = (idx + 1) % n
	}
	r.mu.Unlock()
	if err := r.store.Update(c.RefreshToken, store.Patch{HasQuota: boolPtr(false)}); err != nil {
		log.Warnf("rotator: persist quota exhaustion for %s: %v", redact(c.RefreshToken), err)
	}
}

// RestoreQuota clears the exhaustion flag for c.
func (r *Rotator) RestoreQuota(c *store.Credential) {
	if c == nil {
		return
	}
	r.mu.Lock()
	for _, cand := range r.list {
		if cand.RefreshToken == c.RefreshToken {
			cand.HasQuota = true
		}
	}
	r.mu.Unlock()
	if err := r.store.Update(c.RefreshToken, store.Patch{HasQuota: boolPtr(true)}); err != nil {
		log.Warnf("rotator: persist quota restore for %s: %v", redact(c.RefreshToken), err)
	}
}

func statusOf(err error) int {
	if se, ok := err.(*apierrors.StatusError); ok && se != nil {
		return se.Code
	}
	return 0
}

func redact(refreshToken string) string {
	if len(refreshToken) <= 8 {
		return "***"
	}
	return refreshToken[:4] + "..." + refreshToken[len(refreshToken)-4:]
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
