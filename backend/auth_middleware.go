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
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiKeyMiddleware rejects API calls that do not carry the shared key.
// The live feed is exempt: browsers cannot set headers on a WebSocket
// upgrade, so that route authenticates with a session token instead.
func apiKeyMiddleware(opts Options, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/live" {
			next.ServeHTTP(w, r)
			return
		}
		if !constantTimeEquals(r.Header.Get("x-api-key"), opts.APIKey) {
			writeError(w, http.StatusUnauthorized, "missing or invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed matches an Origin header value against the configured
// patterns. "*" allows everything; "*.example.com" allows any single
// or nested subdomain of example.com.
func originAllowed(origin string, patterns []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if p == "*" {
			return true
		}
		if rest, ok := strings.CutPrefix(p, "*."); ok {
			if host == rest || strings.HasSuffix(host, "."+rest) {
				return true
			}
			continue
		}
		if pu, err := url.Parse(p); err == nil && pu.Host != "" {
			p = pu.Hostname()
		}
		if host == p {
			return true
		}
	}
	return false
}

// corsMiddleware enforces the allowed-origin patterns and answers
// preflight requests. Requests without an Origin header (curl, tests,
// same-origin) pass through.
func corsMiddleware(opts Options, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || len(opts.AllowedOrigins) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !originAllowed(origin, opts.AllowedOrigins) {
			writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key, x-client-id, x-admin-code")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bodyLimitMiddleware caps request bodies; oversize reads surface as
// 413 from the JSON decoders.
func bodyLimitMiddleware(opts Options, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, opts.BodySizeLimit)
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware rejects over-limit calls before any handler side
// effect.
func rateLimitMiddleware(rl *RateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := rl.Allow(r, time.Now()); err != nil {
			writeDomainError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// leagueRoute reports whether a path is served in the context of one
// league (resolved from the tenant host). League creation runs on the
// apex host and the status endpoint is global.
func leagueRoute(path string) bool {
	switch path {
	case "/api/leagues", "/api/status":
		return false
	}
	return strings.HasPrefix(path, "/api/")
}

// credentialFreeRoute reports whether a league route validates its own
// credentials instead of requiring the access code up front.
func credentialFreeRoute(path string) bool {
	switch path {
	case "/api/leagues/authenticate", "/api/leagues/reset-access-code", "/api/live":
		return true
	}
	return false
}

// tenantAuthMiddleware resolves the league from the request host,
// verifies the caller's credentials, and attaches the ReqContext that
// the domain operations consume.
func tenantAuthMiddleware(opts Options, leagues *LeagueStore, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !leagueRoute(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		tenant := tenantFromHost(r.Host, opts.baseHost())
		if tenant == "" {
			writeError(w, http.StatusNotFound, "unknown league")
			return
		}
		league, err := leagues.Load(tenant)
		if err != nil {
			if isNotFound(err) {
				writeError(w, http.StatusNotFound, "unknown league")
			} else {
				writeDomainError(w, err)
			}
			return
		}

		rc := &ReqContext{League: league, Now: time.Now()}

		if !credentialFreeRoute(r.URL.Path) {
			authz := r.Header.Get("Authorization")
			if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
				admin, valid := parseToken(league, token)
				if !valid {
					writeError(w, http.StatusForbidden, "invalid session token")
					return
				}
				rc.Admin = admin
			} else if !constantTimeEquals(authz, league.AccessCode) {
				writeError(w, http.StatusForbidden, "invalid access code")
				return
			}

			if code := r.Header.Get("x-admin-code"); code != "" {
				if league.AdminCode == "" || !constantTimeEquals(code, league.AdminCode) {
					writeError(w, http.StatusForbidden, "invalid admin code")
					return
				}
				rc.Admin = true
			}

			if isMutation(r.Method) {
				clientID := r.Header.Get("x-client-id")
				if !isValidUUID(clientID) {
					writeError(w, http.StatusBadRequest, "missing or invalid x-client-id")
					return
				}
				rc.ClientID = clientID
			} else if clientID := r.Header.Get("x-client-id"); isValidUUID(clientID) {
				rc.ClientID = clientID
			}
		}

		next.ServeHTTP(w, withReqContext(r, rc))
	})
}
