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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

const testAPIKey = "test-api-key-0123456789"

type serverHarness struct {
	srv     *Server
	handler http.Handler
	mailer  *captureMailer
}

// newServerHarness builds the full handler stack over a temp data dir.
// Rate limits are off unless the test supplies rules.
func newServerHarness(t *testing.T, opts Options) *serverHarness {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "server_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	mailer := &captureMailer{}
	opts.DataDir = tempDir
	if opts.APIKey == "" {
		opts.APIKey = testAPIKey
	}
	if opts.AppURL == "" {
		opts.AppURL = "http://matchnight.test"
	}
	if opts.Mailer == nil {
		opts.Mailer = mailer
	}
	if opts.RateRules == nil {
		opts.RateRules = []RateRule{}
	}

	srv, handler, err := NewServerHandler(opts)
	if err != nil {
		t.Fatalf("NewServerHandler: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return &serverHarness{srv: srv, handler: handler, mailer: mailer}
}

func (h *serverHarness) do(t *testing.T, method, target string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("x-api-key", testAPIKey)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)
	return w
}

func (h *serverHarness) decode(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, v any) {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("Expected status %d, got %d: %s", wantStatus, w.Code, w.Body.String())
	}
	if v != nil {
		if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
}

func (h *serverHarness) createLeague(t *testing.T, id, adminCode string) string {
	t.Helper()
	w := h.do(t, http.MethodPost, "http://matchnight.test/api/leagues", map[string]any{
		"id":          id,
		"displayName": "Monday Kickers",
		"ownerEmail":  "owner@example.com",
		"adminCode":   adminCode,
	}, nil)
	var resp struct {
		League     LeagueProfile `json:"league"`
		AccessCode string        `json:"accessCode"`
	}
	h.decode(t, w, http.StatusCreated, &resp)
	if resp.League.ID != id {
		t.Fatalf("Expected league id %q, got %q", id, resp.League.ID)
	}
	if !isValidAccessCode(resp.AccessCode) {
		t.Fatalf("Expected well-formed access code, got %q", resp.AccessCode)
	}
	return resp.AccessCode
}

func authHeaders(accessCode string) map[string]string {
	return map[string]string{
		"Authorization": accessCode,
		"x-client-id":   testClientA,
	}
}

func TestServerLeagueLifecycle(t *testing.T) {
	h := newServerHarness(t, Options{})
	access := h.createLeague(t, "kickers", "super-secret-admin")

	t.Run("duplicate-league", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "http://matchnight.test/api/leagues", map[string]any{
			"id": "kickers", "displayName": "Copy", "ownerEmail": "owner@example.com",
		}, nil)
		h.decode(t, w, http.StatusConflict, nil)
	})

	t.Run("invalid-league-request", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "http://matchnight.test/api/leagues", map[string]any{
			"id": "ab", "displayName": "Too Short", "ownerEmail": "owner@example.com",
		}, nil)
		h.decode(t, w, http.StatusBadRequest, nil)
	})

	var token string
	t.Run("authenticate", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "http://kickers.matchnight.test/api/leagues/authenticate",
			map[string]any{"accessCode": access}, nil)
		var resp struct {
			League   LeagueProfile `json:"league"`
			Admin    bool          `json:"admin"`
			Token    string        `json:"token"`
			Settings Settings      `json:"settings"`
		}
		h.decode(t, w, http.StatusOK, &resp)
		if resp.Admin {
			t.Error("Expected non-admin session")
		}
		if resp.Settings.PlayerLimit != DefaultPlayerLimit {
			t.Errorf("Expected default player limit, got %d", resp.Settings.PlayerLimit)
		}
		if resp.Token == "" {
			t.Fatal("Expected a session token")
		}
		token = resp.Token
	})

	t.Run("authenticate-wrong-code", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "http://kickers.matchnight.test/api/leagues/authenticate",
			map[string]any{"accessCode": "XXXX-XXXX-XXXX"}, nil)
		h.decode(t, w, http.StatusForbidden, nil)
	})

	t.Run("authenticate-admin", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "http://kickers.matchnight.test/api/leagues/authenticate",
			map[string]any{"accessCode": access, "adminCode": "wrong"}, nil)
		h.decode(t, w, http.StatusForbidden, nil)

		w = h.do(t, http.MethodPost, "http://kickers.matchnight.test/api/leagues/authenticate",
			map[string]any{"accessCode": access, "adminCode": "super-secret-admin"}, nil)
		var resp struct {
			Admin bool `json:"admin"`
		}
		h.decode(t, w, http.StatusOK, &resp)
		if !resp.Admin {
			t.Error("Expected admin session")
		}
	})

	t.Run("token-grants-access", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "http://kickers.matchnight.test/api/players?date=2025-06-02", nil,
			map[string]string{"Authorization": "Bearer " + token})
		h.decode(t, w, http.StatusOK, nil)
	})

	t.Run("access-code-reset", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "http://kickers.matchnight.test/api/leagues/reset-access-code",
			map[string]any{"email": "owner@example.com"}, nil)
		h.decode(t, w, http.StatusOK, nil)
		if h.mailer.code == "" {
			t.Fatal("Expected a mailed reset code")
		}

		w = h.do(t, http.MethodPost, "http://kickers.matchnight.test/api/leagues/reset-access-code",
			map[string]any{"email": "owner@example.com", "resetCode": h.mailer.code}, nil)
		var resp struct {
			AccessCode string `json:"accessCode"`
		}
		h.decode(t, w, http.StatusOK, &resp)
		if !isValidAccessCode(resp.AccessCode) || resp.AccessCode == access {
			t.Fatalf("Expected a rotated access code, got %q", resp.AccessCode)
		}

		// The old code is dead, the new one works.
		w = h.do(t, http.MethodPost, "http://kickers.matchnight.test/api/leagues/authenticate",
			map[string]any{"accessCode": access}, nil)
		h.decode(t, w, http.StatusForbidden, nil)
		w = h.do(t, http.MethodPost, "http://kickers.matchnight.test/api/leagues/authenticate",
			map[string]any{"accessCode": resp.AccessCode}, nil)
		h.decode(t, w, http.StatusOK, nil)
	})
}

func TestServerSessionFlow(t *testing.T) {
	h := newServerHarness(t, Options{})
	access := h.createLeague(t, "kickers", "super-secret-admin")
	headers := authHeaders(access)
	base := "http://kickers.matchnight.test"
	date := "2025-06-02"

	var lists PlayerLists
	for i := 1; i <= 8; i++ {
		w := h.do(t, http.MethodPost, base+"/api/players?date="+date,
			map[string]any{"playerName": fmt.Sprintf("Player %02d", i)}, headers)
		h.decode(t, w, http.StatusOK, &lists)
	}
	if len(lists.Available) != 8 {
		t.Fatalf("Expected 8 available players, got %d", len(lists.Available))
	}

	t.Run("move-between-lists", func(t *testing.T) {
		w := h.do(t, http.MethodPatch, base+"/api/players?date="+date,
			map[string]any{"playerName": "Player 08", "fromList": ListAvailable, "toList": ListWaiting}, headers)
		var moved PlayerLists
		h.decode(t, w, http.StatusOK, &moved)
		if len(moved.WaitingList) != 1 || moved.WaitingList[0] != "Player 08" {
			t.Fatalf("Expected Player 08 on the waiting list, got %+v", moved.WaitingList)
		}
		w = h.do(t, http.MethodPatch, base+"/api/players?date="+date,
			map[string]any{"playerName": "Player 08", "fromList": ListWaiting, "toList": ListAvailable}, headers)
		h.decode(t, w, http.StatusOK, &moved)
		if len(moved.Available) != 8 {
			t.Fatalf("Expected 8 available again, got %d", len(moved.Available))
		}
	})

	t.Run("configurations", func(t *testing.T) {
		w := h.do(t, http.MethodGet, base+"/api/teams/configurations?date="+date, nil, headers)
		var resp struct {
			Configurations []TeamConfig `json:"configurations"`
		}
		h.decode(t, w, http.StatusOK, &resp)
		if len(resp.Configurations) == 0 {
			t.Fatal("Expected team configurations for 8 players")
		}
	})

	var teams TeamsResult
	t.Run("generate-teams", func(t *testing.T) {
		w := h.do(t, http.MethodPost, base+"/api/teams?date="+date, map[string]any{}, headers)
		h.decode(t, w, http.StatusOK, &teams)
		if len(teams.Teams) != 2 {
			t.Fatalf("Expected 2 teams for 8 players, got %d", len(teams.Teams))
		}

		w = h.do(t, http.MethodGet, base+"/api/teams/draw-history?date="+date, nil, headers)
		var trace DrawTrace
		h.decode(t, w, http.StatusOK, &trace)
		if trace.Method != MethodSeeded {
			t.Errorf("Expected seeded draw trace, got %q", trace.Method)
		}
	})

	t.Run("team-slot-actions", func(t *testing.T) {
		teamName := teams.Teams[0].Name
		var someone string
		for _, p := range teams.Teams[0].Players {
			if p != nil {
				someone = *p
				break
			}
		}
		w := h.do(t, http.MethodPatch, base+"/api/teams?date="+date,
			map[string]any{"playerName": someone, "teamName": teamName, "action": ActionWaitingList}, headers)
		var result TeamsResult
		h.decode(t, w, http.StatusOK, &result)
		found := false
		for _, n := range result.Players.WaitingList {
			if n == someone {
				found = true
			}
		}
		if !found {
			t.Fatalf("Expected %s on the waiting list, got %+v", someone, result.Players.WaitingList)
		}

		// Back to available, then onto the team again.
		w = h.do(t, http.MethodPatch, base+"/api/players?date="+date,
			map[string]any{"playerName": someone, "fromList": ListWaiting, "toList": ListAvailable}, headers)
		h.decode(t, w, http.StatusOK, nil)
		w = h.do(t, http.MethodPatch, base+"/api/teams?date="+date,
			map[string]any{"playerName": someone, "teamName": teamName, "action": ActionAssign}, headers)
		h.decode(t, w, http.StatusOK, &result)
		for _, team := range result.Teams {
			if team.Name != teamName {
				continue
			}
			if !team.hasPlayer(someone) {
				t.Errorf("Expected %s back on %s", someone, teamName)
			}
		}
	})

	var games GamesResult
	t.Run("generate-schedule", func(t *testing.T) {
		w := h.do(t, http.MethodPost, base+"/api/games?date="+date, map[string]any{}, headers)
		h.decode(t, w, http.StatusOK, &games)
		if len(games.Rounds) != 2 {
			t.Fatalf("Expected 2 rounds for 2 teams, got %d", len(games.Rounds))
		}
	})

	var champion string
	t.Run("record-results-and-knockout", func(t *testing.T) {
		scorer := ""
		home := games.Rounds[0][0].Home
		for _, team := range teams.Teams {
			if team.Name != home {
				continue
			}
			for _, p := range team.Players {
				if p != nil {
					scorer = *p
					break
				}
			}
		}
		games.Rounds[0][0].HomeScore, games.Rounds[0][0].AwayScore = intPtr(2), intPtr(1)
		games.Rounds[0][0].HomeScorers = ScorerTally{{Name: scorer}: 2}
		games.Rounds[1][0].HomeScore, games.Rounds[1][0].AwayScore = intPtr(0), intPtr(0)

		w := h.do(t, http.MethodPost, base+"/api/games?date="+date,
			map[string]any{"rounds": games.Rounds}, headers)
		h.decode(t, w, http.StatusOK, &games)
		if len(games.Standings) != 2 {
			t.Fatalf("Expected standings for 2 teams, got %d", len(games.Standings))
		}
		if games.Standings[0].Team != home || games.Standings[0].Points != 4 {
			t.Errorf("Expected %s on top with 4 points, got %+v", home, games.Standings[0])
		}

		w = h.do(t, http.MethodPost, base+"/api/games?date="+date,
			map[string]any{"generateKnockout": true}, headers)
		h.decode(t, w, http.StatusOK, &games)
		if len(games.Knockout) != 1 || games.Knockout[0].Round != RoundFinal {
			t.Fatalf("Expected a final for 2 teams, got %+v", games.Knockout)
		}

		final := games.Knockout[0]
		final.HomeScore, final.AwayScore = intPtr(3), intPtr(1)
		w = h.do(t, http.MethodPost, base+"/api/games?date="+date,
			map[string]any{"knockout": []Match{final}}, headers)
		h.decode(t, w, http.StatusOK, &games)
		if games.Champion != final.Home {
			t.Errorf("Expected champion %q, got %q", final.Home, games.Champion)
		}
		champion = games.Champion
	})

	t.Run("ended-session-locked", func(t *testing.T) {
		if champion == "" {
			t.Skip("no champion recorded")
		}
		w := h.do(t, http.MethodPost, base+"/api/players?date="+date,
			map[string]any{"playerName": "Latecomer"}, headers)
		h.decode(t, w, http.StatusConflict, nil)

		admin := authHeaders(access)
		admin["x-admin-code"] = "super-secret-admin"
		w = h.do(t, http.MethodPost, base+"/api/players?date="+date,
			map[string]any{"playerName": "Latecomer"}, admin)
		h.decode(t, w, http.StatusOK, nil)
	})

	t.Run("discipline", func(t *testing.T) {
		other := "2025-06-09"
		w := h.do(t, http.MethodPost, base+"/api/players?date="+other,
			map[string]any{"playerName": "Ghost"}, headers)
		h.decode(t, w, http.StatusOK, nil)
		w = h.do(t, http.MethodDelete, base+"/api/players?date="+other,
			map[string]any{"playerName": "Ghost", "action": ActionNoShow}, headers)
		h.decode(t, w, http.StatusOK, nil)

		w = h.do(t, http.MethodGet, base+"/api/discipline", nil, headers)
		var resp struct {
			NoShows []DisciplineSummary `json:"noShows"`
		}
		h.decode(t, w, http.StatusOK, &resp)
		if len(resp.NoShows) != 1 || resp.NoShows[0].Player != "Ghost" || resp.NoShows[0].Count != 1 {
			t.Fatalf("Expected one no-show for Ghost, got %+v", resp.NoShows)
		}
	})

	t.Run("settings", func(t *testing.T) {
		w := h.do(t, http.MethodPut, base+"/api/settings",
			map[string]any{"playerLimit": 20}, headers)
		h.decode(t, w, http.StatusForbidden, nil)

		admin := authHeaders(access)
		admin["x-admin-code"] = "super-secret-admin"
		w = h.do(t, http.MethodPut, base+"/api/settings",
			map[string]any{"playerLimit": 20}, admin)
		var settings Settings
		h.decode(t, w, http.StatusOK, &settings)
		if settings.PlayerLimit != 20 {
			t.Errorf("Expected league player limit 20, got %d", settings.PlayerLimit)
		}

		otherDate := "2025-06-16"
		w = h.do(t, http.MethodPut, base+"/api/settings?date="+otherDate,
			map[string]any{"playerLimit": 12}, admin)
		h.decode(t, w, http.StatusOK, &settings)
		if settings.PlayerLimit != 12 {
			t.Errorf("Expected session player limit 12, got %d", settings.PlayerLimit)
		}

		w = h.do(t, http.MethodPut, base+"/api/settings?date="+otherDate,
			map[string]any{"playerLimit": 1}, admin)
		h.decode(t, w, http.StatusBadRequest, nil)
	})
}

func TestServerRankingsFlow(t *testing.T) {
	h := newServerHarness(t, Options{})
	access := h.createLeague(t, "kickers", "")
	headers := authHeaders(access)
	base := "http://kickers.matchnight.test"

	reds := testTeam("Red Lions", "Ann", "Ben")
	blues := testTeam("Blue Bears", "Cal", "Dee")
	writeSession(t, h.srv.Store, "kickers", "2025-03-01", []Team{reds, blues}, &Games{
		Rounds: [][]Match{{{
			Home: "Red Lions", Away: "Blue Bears",
			HomeScore: intPtr(3), AwayScore: intPtr(1),
			HomeScorers: ScorerTally{{Name: "Ann"}: 2, {Name: "Ben"}: 1},
			AwayScorers: ScorerTally{{Name: "Cal"}: 1},
		}}},
	})

	t.Run("rankings-before-recompute", func(t *testing.T) {
		w := h.do(t, http.MethodGet, base+"/api/rankings?year=2025", nil, headers)
		h.decode(t, w, http.StatusNotFound, nil)
	})

	t.Run("recompute", func(t *testing.T) {
		w := h.do(t, http.MethodPost, base+"/api/rankings?year=2025", nil, headers)
		var file RankingFile
		h.decode(t, w, http.StatusOK, &file)
		if len(file.Players) != 4 {
			t.Fatalf("Expected 4 ranked players, got %d", len(file.Players))
		}
		if file.Players["Ann"].Rank != 1 {
			t.Errorf("Expected Ann ranked first, got %d", file.Players["Ann"].Rank)
		}

		w = h.do(t, http.MethodGet, base+"/api/rankings?year=2025", nil, headers)
		h.decode(t, w, http.StatusOK, &file)
		if len(file.Players) != 4 {
			t.Errorf("Expected saved rankings served, got %d players", len(file.Players))
		}
	})

	t.Run("bad-year", func(t *testing.T) {
		w := h.do(t, http.MethodPost, base+"/api/rankings?year=20255", nil, headers)
		h.decode(t, w, http.StatusBadRequest, nil)
	})

	t.Run("player-detail", func(t *testing.T) {
		w := h.do(t, http.MethodGet, base+"/api/rankings/Ann?year=2025", nil, headers)
		var entry PlayerRanking
		h.decode(t, w, http.StatusOK, &entry)
		if entry.Appearances != 1 {
			t.Errorf("Expected 1 appearance, got %d", entry.Appearances)
		}
		if len(entry.RankingDetail) != 1 {
			t.Errorf("Expected per-day detail, got %+v", entry.RankingDetail)
		}

		w = h.do(t, http.MethodGet, base+"/api/rankings/Nobody?year=2025", nil, headers)
		h.decode(t, w, http.StatusNotFound, nil)
	})

	t.Run("champions", func(t *testing.T) {
		w := h.do(t, http.MethodGet, base+"/api/champions?year=2025", nil, headers)
		var resp struct {
			Champions []ChampionEntry `json:"champions"`
		}
		h.decode(t, w, http.StatusOK, &resp)
		if len(resp.Champions) != 1 || resp.Champions[0].Player != "Ann" {
			t.Fatalf("Expected Ann as 2025 champion, got %+v", resp.Champions)
		}

		w = h.do(t, http.MethodGet, base+"/api/champions", nil, headers)
		h.decode(t, w, http.StatusOK, &resp)
	})

	t.Run("golden-boot", func(t *testing.T) {
		w := h.do(t, http.MethodGet, base+"/api/golden-boot?year=2025", nil, headers)
		var resp struct {
			GoldenBoot []GoldenBootEntry `json:"goldenBoot"`
		}
		h.decode(t, w, http.StatusOK, &resp)
		if len(resp.GoldenBoot) == 0 || resp.GoldenBoot[0].Player != "Ann" || resp.GoldenBoot[0].Goals != 2 {
			t.Fatalf("Expected Ann leading with 2 goals, got %+v", resp.GoldenBoot)
		}
	})

	t.Run("year-in-review", func(t *testing.T) {
		w := h.do(t, http.MethodGet, base+"/api/year-in-review/2025", nil, headers)
		var review YearReview
		h.decode(t, w, http.StatusOK, &review)
		if review.Sessions != 1 || review.Matches != 1 || review.Goals != 4 {
			t.Errorf("Expected 1 session, 1 match, 4 goals, got %+v", review)
		}

		w = h.do(t, http.MethodGet, base+"/api/year-in-review/1999", nil, headers)
		h.decode(t, w, http.StatusNotFound, nil)
	})
}

func TestServerAuthRejections(t *testing.T) {
	h := newServerHarness(t, Options{})
	access := h.createLeague(t, "kickers", "")
	base := "http://kickers.matchnight.test"

	t.Run("missing-api-key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://matchnight.test/api/status", nil)
		w := httptest.NewRecorder()
		h.handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", w.Code)
		}
	})

	t.Run("unknown-league", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "http://rovers.matchnight.test/api/players?date=2025-06-02", nil, authHeaders(access))
		h.decode(t, w, http.StatusNotFound, nil)
	})

	t.Run("apex-league-route", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "http://matchnight.test/api/players?date=2025-06-02", nil, authHeaders(access))
		h.decode(t, w, http.StatusNotFound, nil)
	})

	t.Run("bad-access-code", func(t *testing.T) {
		w := h.do(t, http.MethodGet, base+"/api/players?date=2025-06-02", nil, authHeaders("AAAA-BBBB-CCCC"))
		h.decode(t, w, http.StatusForbidden, nil)
	})

	t.Run("missing-client-id", func(t *testing.T) {
		w := h.do(t, http.MethodPost, base+"/api/players?date=2025-06-02",
			map[string]any{"playerName": "Ann"}, map[string]string{"Authorization": access})
		h.decode(t, w, http.StatusBadRequest, nil)
	})

	t.Run("missing-date", func(t *testing.T) {
		w := h.do(t, http.MethodGet, base+"/api/players", nil, authHeaders(access))
		h.decode(t, w, http.StatusBadRequest, nil)
	})

	t.Run("method-not-allowed", func(t *testing.T) {
		w := h.do(t, http.MethodDelete, "http://matchnight.test/api/status", nil, nil)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", w.Code)
		}
	})

	t.Run("status-ok", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "http://matchnight.test/api/status", nil, nil)
		var payload StatusPayload
		h.decode(t, w, http.StatusOK, &payload)
		if payload.Status != "ok" || payload.Leagues != 1 {
			t.Errorf("Expected healthy status with 1 league, got %+v", payload)
		}
	})
}

func TestServerBodyLimit(t *testing.T) {
	h := newServerHarness(t, Options{BodySizeLimit: 256})
	w := h.do(t, http.MethodPost, "http://matchnight.test/api/leagues", map[string]any{
		"id":          "kickers",
		"displayName": strings.Repeat("x", 400),
		"ownerEmail":  "owner@example.com",
	}, nil)
	h.decode(t, w, http.StatusRequestEntityTooLarge, nil)
}

func TestServerRateLimit(t *testing.T) {
	h := newServerHarness(t, Options{RateRules: []RateRule{
		{Method: http.MethodPost, Path: "/api/leagues", Max: 2, Window: time.Minute, ByIP: true},
	}})
	for _, id := range []string{"alpha-league", "beta-league"} {
		w := h.do(t, http.MethodPost, "http://matchnight.test/api/leagues", map[string]any{
			"id": id, "displayName": "League", "ownerEmail": "owner@example.com",
		}, nil)
		h.decode(t, w, http.StatusCreated, nil)
	}
	w := h.do(t, http.MethodPost, "http://matchnight.test/api/leagues", map[string]any{
		"id": "gamma-league", "displayName": "League", "ownerEmail": "owner@example.com",
	}, nil)
	h.decode(t, w, http.StatusTooManyRequests, nil)
}

func TestServerCORS(t *testing.T) {
	h := newServerHarness(t, Options{AllowedOrigins: []string{"http://app.matchnight.test", "*.widgets.test"}})

	t.Run("preflight", func(t *testing.T) {
		w := h.do(t, http.MethodOptions, "http://matchnight.test/api/leagues", nil,
			map[string]string{"Origin": "http://app.matchnight.test"})
		if w.Code != http.StatusNoContent {
			t.Fatalf("Expected 204, got %d", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.matchnight.test" {
			t.Errorf("Expected origin echoed, got %q", got)
		}
	})

	t.Run("wildcard-subdomain", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "http://matchnight.test/api/status", nil,
			map[string]string{"Origin": "https://embed.widgets.test"})
		h.decode(t, w, http.StatusOK, nil)
	})

	t.Run("forbidden-origin", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "http://matchnight.test/api/status", nil,
			map[string]string{"Origin": "http://evil.test"})
		h.decode(t, w, http.StatusForbidden, nil)
	})

	t.Run("security-headers", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "http://matchnight.test/api/status", nil, nil)
		if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
			t.Errorf("Expected X-Frame-Options DENY, got %q", got)
		}
		if got := w.Header().Get("Cache-Control"); !strings.Contains(got, "no-cache") {
			t.Errorf("Expected no-cache response, got %q", got)
		}
	})
}
