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
	"runtime"
	"sync"
	"time"
)

const LatencyBuckets = 101
const LatencyBucketSize = 5 * time.Millisecond

// Histogram is a fixed-bucket latency histogram; the last bucket
// absorbs everything slower.
type Histogram struct {
	Buckets [LatencyBuckets]uint64 `json:"b"`
	Count   uint64                 `json:"c"`
	Sum     float64                `json:"s"` // milliseconds
}

func (h *Histogram) Add(d time.Duration) {
	idx := int(d / LatencyBucketSize)
	if idx >= LatencyBuckets {
		idx = LatencyBuckets - 1
	}
	h.Buckets[idx]++
	h.Count++
	h.Sum += float64(d.Milliseconds())
}

// Quantile returns the upper bound of the bucket holding the q-th
// observation, in milliseconds.
func (h *Histogram) Quantile(q float64) float64 {
	if h.Count == 0 {
		return 0
	}
	target := uint64(q * float64(h.Count))
	var seen uint64
	for i := 0; i < LatencyBuckets; i++ {
		seen += h.Buckets[i]
		if seen > target {
			return float64((i + 1) * int(LatencyBucketSize/time.Millisecond))
		}
	}
	return float64(LatencyBuckets * int(LatencyBucketSize/time.Millisecond))
}

// Monitor aggregates process health for the status endpoint.
type Monitor struct {
	startedAt time.Time
	version   string
	leagues   *LeagueStore

	mu      sync.Mutex
	latency Histogram
}

// NewMonitor creates a Monitor anchored at the current time.
func NewMonitor(leagues *LeagueStore, version string) *Monitor {
	return &Monitor{startedAt: time.Now(), version: version, leagues: leagues}
}

// Observe records one served request.
func (m *Monitor) Observe(d time.Duration) {
	m.mu.Lock()
	m.latency.Add(d)
	m.mu.Unlock()
}

// StatusPayload is the health snapshot served by the status endpoint.
type StatusPayload struct {
	Status        string  `json:"status"`
	Version       string  `json:"version,omitempty"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
	Leagues       int     `json:"leagues"`
	Requests      uint64  `json:"requests"`
	LatencyP50MS  float64 `json:"latencyP50Ms"`
	LatencyP95MS  float64 `json:"latencyP95Ms"`
	Goroutines    int     `json:"goroutines"`
}

// Status builds the current snapshot.
func (m *Monitor) Status(now time.Time) StatusPayload {
	m.mu.Lock()
	requests := m.latency.Count
	p50 := m.latency.Quantile(0.50)
	p95 := m.latency.Quantile(0.95)
	m.mu.Unlock()

	return StatusPayload{
		Status:        "ok",
		Version:       m.version,
		UptimeSeconds: int64(now.Sub(m.startedAt).Seconds()),
		Leagues:       m.leagues.Count(),
		Requests:      requests,
		LatencyP50MS:  p50,
		LatencyP95MS:  p95,
		Goroutines:    runtime.NumGoroutine(),
	}
}
