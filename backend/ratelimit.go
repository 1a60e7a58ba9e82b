// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const limiterGCInterval = 5 * time.Minute

// RateRule limits how often a route may be called. KeyFunc extracts the
// request dimension (date, year, ...) so that e.g. two different session
// dates never share a bucket.
type RateRule struct {
	Method  string
	Path    string // exact match, or prefix when it ends with "/"
	Max     int
	Window  time.Duration
	KeyFunc func(r *http.Request) string
	ByIP    bool // bucket on remote address instead of client id
}

func (rr *RateRule) matches(r *http.Request) bool {
	if rr.Method != r.Method {
		return false
	}
	if strings.HasSuffix(rr.Path, "/") {
		return strings.HasPrefix(r.URL.Path, rr.Path)
	}
	return r.URL.Path == rr.Path
}

func dateKey(r *http.Request) string {
	return r.URL.Query().Get("date")
}

func yearKey(r *http.Request) string {
	return r.URL.Query().Get("year")
}

// defaultRateRules returns the per-route limits for the API surface.
func defaultRateRules() []RateRule {
	mutations := []string{http.MethodPost, http.MethodDelete, http.MethodPatch}
	var rules []RateRule
	for _, m := range mutations {
		rules = append(rules, RateRule{Method: m, Path: "/api/players", Max: 30, Window: time.Minute, KeyFunc: dateKey})
	}
	for _, m := range mutations {
		rules = append(rules, RateRule{Method: m, Path: "/api/teams", Max: 10, Window: time.Minute, KeyFunc: dateKey})
	}
	rules = append(rules,
		RateRule{Method: http.MethodPost, Path: "/api/games", Max: 20, Window: time.Minute, KeyFunc: dateKey},
		RateRule{Method: http.MethodPost, Path: "/api/rankings", Max: 2, Window: time.Minute, KeyFunc: yearKey},
		RateRule{Method: http.MethodPost, Path: "/api/leagues", Max: 5, Window: time.Hour, ByIP: true},
		RateRule{Method: http.MethodPost, Path: "/api/leagues/authenticate", Max: 10, Window: time.Minute, ByIP: true},
		RateRule{Method: http.MethodPost, Path: "/api/leagues/reset-access-code", Max: 3, Window: time.Hour, ByIP: true},
	)
	return rules
}

type window struct {
	hits []time.Time
}

// prune drops timestamps older than the rule window.
func (wd *window) prune(cutoff time.Time) {
	i := 0
	for i < len(wd.hits) && wd.hits[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		wd.hits = append(wd.hits[:0], wd.hits[i:]...)
	}
}

// RateLimiter tracks sliding windows per (rule, caller, dimension). The
// check runs before the handler so a rejected request has no side effects.
type RateLimiter struct {
	rules []RateRule

	mu      sync.Mutex
	buckets map[string]*window

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a limiter with the given rules and starts its
// background bucket GC.
func NewRateLimiter(rules []RateRule) *RateLimiter {
	rl := &RateLimiter{
		rules:    rules,
		buckets:  make(map[string]*window),
		stopChan: make(chan struct{}),
	}
	rl.StartGC()
	return rl
}

// StartGC starts the background pruner for idle buckets.
func (rl *RateLimiter) StartGC() {
	go func() {
		ticker := time.NewTicker(limiterGCInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.PruneIdle(time.Now())
			case <-rl.stopChan:
				return
			}
		}
	}()
}

// StopGC stops the background pruner.
func (rl *RateLimiter) StopGC() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
	})
}

// PruneIdle removes buckets whose entire window has expired.
func (rl *RateLimiter) PruneIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := now.Add(-rl.maxWindow())
	for key, wd := range rl.buckets {
		if len(wd.hits) == 0 || wd.hits[len(wd.hits)-1].Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

func (rl *RateLimiter) maxWindow() time.Duration {
	max := time.Minute
	for i := range rl.rules {
		if rl.rules[i].Window > max {
			max = rl.rules[i].Window
		}
	}
	return max
}

func remoteIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		addr = addr[:i]
	}
	return addr
}

// Allow records a hit for the first rule matching the request and reports
// whether the caller is within its limit. Requests matching no rule pass.
func (rl *RateLimiter) Allow(r *http.Request, now time.Time) error {
	for i := range rl.rules {
		rule := &rl.rules[i]
		if !rule.matches(r) {
			continue
		}

		caller := r.Header.Get("x-client-id")
		if rule.ByIP || caller == "" {
			caller = remoteIP(r)
		}
		dim := ""
		if rule.KeyFunc != nil {
			dim = rule.KeyFunc(r)
		}
		key := fmt.Sprintf("%d|%s|%s", i, caller, dim)

		rl.mu.Lock()
		wd := rl.buckets[key]
		if wd == nil {
			wd = &window{}
			rl.buckets[key] = wd
		}
		wd.prune(now.Add(-rule.Window))
		if len(wd.hits) >= rule.Max {
			rl.mu.Unlock()
			return fmt.Errorf("%s %s: %w", r.Method, r.URL.Path, ErrRateLimited)
		}
		wd.hits = append(wd.hits, now)
		rl.mu.Unlock()
		return nil
	}
	return nil
}
