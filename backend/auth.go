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
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL is the lifetime of a minted session token.
const tokenTTL = 7 * 24 * time.Hour

type contextKey struct{}

// reqContextKey is the context key for the authenticated request state.
// The associated value is always a *ReqContext.
var reqContextKey contextKey

// ReqContext carries the authenticated request state into every domain
// operation: the resolved league, the caller's client id, whether the
// caller holds admin rights, and the request time.
type ReqContext struct {
	League   *League
	ClientID string
	Admin    bool
	Now      time.Time
}

// getReqContext returns the ReqContext from the request context, if
// present. It is nil on routes outside the league scope.
func getReqContext(r *http.Request) *ReqContext {
	if val := r.Context().Value(reqContextKey); val != nil {
		if rc, ok := val.(*ReqContext); ok {
			return rc
		}
	}
	return nil
}

func withReqContext(r *http.Request, rc *ReqContext) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), reqContextKey, rc))
}

// normalizeEmail ensures consistent casing and whitespace for owner
// email comparisons.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// maskEmail obscures an email address for safe logging.
// e.g. "user@example.com" -> "u***@example.com"
func maskEmail(email string) string {
	if email == "" {
		return "<empty>"
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || len(parts[0]) < 1 {
		return "****"
	}
	return string(parts[0][0]) + "***@" + parts[1]
}

// tenantFromHost maps a request host to a league id: the first host
// label, unless the host is the configured base host, an IP address, a
// bare name, or a reserved label.
func tenantFromHost(host, baseHost string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	if host == baseHost || net.ParseIP(host) != nil {
		return ""
	}
	label, _, found := strings.Cut(host, ".")
	if !found || reservedLeagueNames[label] {
		return ""
	}
	return label
}

// ownershipTag binds a player entry to the adding client. The tag is
// reproducible server-side only; clients never see the league secret.
func ownershipTag(clientID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(clientID))
	return hex.EncodeToString(mac.Sum(nil))
}

// constantTimeEquals compares two credential strings without leaking
// the mismatch position.
func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// mintToken signs a session token for the league with its secret. An
// admin token stands in for the admin code on later requests.
func mintToken(league *League, admin bool, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"league": league.ID,
		"admin":  admin,
		"iat":    now.Unix(),
		"exp":    now.Add(tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(league.Secret))
	if err != nil {
		return "", fmt.Errorf("jwt.SignedString: %w", err)
	}
	return token, nil
}

// parseToken verifies a session token against the league secret and
// returns the admin claim. Expired or foreign tokens are rejected.
func parseToken(league *League, tokenStr string) (admin, ok bool) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, good := t.Method.(*jwt.SigningMethodHMAC); !good {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(league.Secret), nil
	})
	if err != nil || !token.Valid {
		return false, false
	}
	claims, good := token.Claims.(jwt.MapClaims)
	if !good || claims["league"] != league.ID {
		return false, false
	}
	admin, _ = claims["admin"].(bool)
	return admin, true
}
