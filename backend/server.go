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
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/c2FmZQ/storage"
	"github.com/go-playground/validator/v10"
)

// DefaultBodySizeLimit caps request bodies when Options does not.
const DefaultBodySizeLimit = 6 << 20

type Options struct {
	Addr           string
	DataDir        string
	APIKey         string
	AllowedOrigins []string
	AppURL         string
	BodySizeLimit  int64
	Version        string

	Storage   *storage.Storage
	Mailer    Mailer
	RateRules []RateRule
	Listener  net.Listener
}

// baseHost is the apex host leagues hang off as subdomains, derived
// from AppURL.
func (o Options) baseHost() string {
	u, err := url.Parse(o.AppURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Server represents the running server instance.
type Server struct {
	httpServer *http.Server

	Store    *DocStore
	Leagues  *LeagueStore
	Players  *PlayerManager
	Teams    *TeamManager
	Games    *GameManager
	Rankings *RankingEngine
	Feed     *LiveFeed
	Limiter  *RateLimiter
	Monitor  *Monitor
}

// Shutdown gracefully stops the HTTP server and the background
// workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Limiter.StopGC()
	s.Rankings.Close()
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http: %w", err)
	}
	return nil
}

// StartServer starts the web server and registers the API handlers.
func StartServer(opts Options) (*Server, error) {
	srv, handler, err := NewServerHandler(opts)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:    opts.Addr,
		Handler: handler,
	}
	srv.httpServer = httpServer

	go func() {
		var err error
		if opts.Listener != nil {
			log.Printf("Starting HTTP server on provided listener %s...", opts.Listener.Addr())
			err = httpServer.Serve(opts.Listener)
		} else {
			log.Printf("Server starting on %s...", opts.Addr)
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, net.ErrClosed) && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	return srv, nil
}

// validate checks the league endpoint request bodies.
var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeBody reads a JSON request body into v, writing the error
// response itself on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "malformed JSON body")
		}
		return false
	}
	return true
}

func requireDate(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if !isValidDate(date) {
		writeError(w, http.StatusBadRequest, "missing or invalid date")
		return "", false
	}
	return date, true
}

// yearParam resolves the year query parameter, defaulting to the
// current year. allowAll admits the cross-year aggregate value.
func yearParam(w http.ResponseWriter, r *http.Request, now time.Time, allowAll bool) (string, bool) {
	year := r.URL.Query().Get("year")
	if year == "" {
		if allowAll {
			year = "all"
		} else {
			year = strconv.Itoa(now.Year())
		}
	}
	if year == "all" && allowAll {
		return year, true
	}
	if !isValidYear(year) {
		writeError(w, http.StatusBadRequest, "invalid year")
		return "", false
	}
	return year, true
}

// NewServerHandler creates and configures the HTTP handler for the
// server.
func NewServerHandler(opts Options) (*Server, http.Handler, error) {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.Storage == nil {
		opts.Storage = storage.New(opts.DataDir, nil)
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.BodySizeLimit <= 0 {
		opts.BodySizeLimit = DefaultBodySizeLimit
	}
	if opts.Mailer == nil {
		opts.Mailer = &logMailer{appURL: opts.AppURL}
	}
	if opts.RateRules == nil {
		opts.RateRules = defaultRateRules()
	}

	store := NewDocStore(opts.DataDir, opts.Storage)
	leagues := NewLeagueStore(store, opts.Mailer)
	if err := leagues.Rebuild(); err != nil {
		log.Printf("LeagueStore: rebuild: %v", err)
	}
	players := NewPlayerManager(store, leagues)
	rankings, err := NewRankingEngine(store)
	if err != nil {
		return nil, nil, fmt.Errorf("NewRankingEngine: %w", err)
	}
	gen := NewTeamGenerator(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), EloBaseRating)
	teams := NewTeamManager(store, leagues, rankings, gen)
	games := NewGameManager(store, leagues)
	feed := NewLiveFeed(opts.AllowedOrigins)
	limiter := NewRateLimiter(opts.RateRules)
	monitor := NewMonitor(leagues, opts.Version)

	srv := &Server{
		Store:    store,
		Leagues:  leagues,
		Players:  players,
		Teams:    teams,
		Games:    games,
		Rankings: rankings,
		Feed:     feed,
		Limiter:  limiter,
		Monitor:  monitor,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/players", func(w http.ResponseWriter, r *http.Request) {
		rc := getReqContext(r)
		date, ok := requireDate(w, r)
		if !ok {
			return
		}
		switch r.Method {
		case http.MethodGet:
			lists, err := players.Lists(rc, date)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, lists)
		case http.MethodPost:
			var req struct {
				PlayerName string `json:"playerName"`
				List       string `json:"list"`
			}
			if !decodeBody(w, r, &req) {
				return
			}
			if req.List == "" {
				req.List = ListAvailable
			}
			lists, err := players.Add(rc, date, req.PlayerName, req.List)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			feed.Broadcast(rc.League.ID, date, docKeyPlayers)
			writeJSON(w, http.StatusOK, lists)
		case http.MethodDelete:
			var req struct {
				PlayerName string `json:"playerName"`
				Action     string `json:"action"`
			}
			if !decodeBody(w, r, &req) {
				return
			}
			if req.Action == "" {
				req.Action = ActionRemove
			}
			lists, err := players.Remove(rc, date, req.PlayerName, req.Action)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			feed.Broadcast(rc.League.ID, date, docKeyPlayers)
			writeJSON(w, http.StatusOK, lists)
		case http.MethodPatch:
			var req struct {
				PlayerName string `json:"playerName"`
				FromList   string `json:"fromList"`
				ToList     string `json:"toList"`
			}
			if !decodeBody(w, r, &req) {
				return
			}
			lists, err := players.Move(rc, date, req.PlayerName, req.FromList, req.ToList)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			feed.Broadcast(rc.League.ID, date, docKeyPlayers)
			writeJSON(w, http.StatusOK, lists)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/teams", func(w http.ResponseWriter, r *http.Request) {
		rc := getReqContext(r)
		date, ok := requireDate(w, r)
		if !ok {
			return
		}
		switch r.Method {
		case http.MethodGet:
			result, err := teams.Teams(rc, date)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		case http.MethodPost:
			var req GenerateRequest
			if !decodeBody(w, r, &req) {
				return
			}
			result, err := teams.Generate(rc, date, req)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			feed.Broadcast(rc.League.ID, date, docKeyTeams)
			writeJSON(w, http.StatusOK, result)
		case http.MethodDelete:
			if err := teams.Clear(rc, date); err != nil {
				writeDomainError(w, err)
				return
			}
			feed.Broadcast(rc.League.ID, date, docKeyTeams)
			writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		case http.MethodPatch:
			var req struct {
				PlayerName string `json:"playerName"`
				TeamName   string `json:"teamName"`
				Action     string `json:"action"`
			}
			if !decodeBody(w, r, &req) {
				return
			}
			var result TeamsResult
			var err error
			switch req.Action {
			case ActionAssign, "":
				result, err = players.AssignToTeam(rc, date, req.PlayerName, req.TeamName)
			case ActionWaitingList, ActionRemove, ActionNoShow:
				result, err = players.RemoveFromTeam(rc, date, req.PlayerName, req.TeamName, req.Action)
			default:
				writeError(w, http.StatusBadRequest, "unknown action")
				return
			}
			if err != nil {
				writeDomainError(w, err)
				return
			}
			feed.Broadcast(rc.League.ID, date, docKeyTeams)
			writeJSON(w, http.StatusOK, result)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/teams/configurations", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		rc := getReqContext(r)
		date, ok := requireDate(w, r)
		if !ok {
			return
		}
		configs, err := teams.Configurations(rc, date)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"configurations": configs})
	})

	mux.HandleFunc("/api/teams/draw-history", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		rc := getReqContext(r)
		date, ok := requireDate(w, r)
		if !ok {
			return
		}
		trace, err := teams.DrawHistory(rc, date)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, trace)
	})

	mux.HandleFunc("/api/games", func(w http.ResponseWriter, r *http.Request) {
		rc := getReqContext(r)
		date, ok := requireDate(w, r)
		if !ok {
			return
		}
		switch r.Method {
		case http.MethodGet:
			result, err := games.Games(rc, date)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		case http.MethodPost:
			var req struct {
				AnchorIndex      *int      `json:"anchorIndex"`
				Rounds           [][]Match `json:"rounds"`
				AddMore          bool      `json:"addMore"`
				ExistingRounds   [][]Match `json:"existingRounds"`
				GenerateKnockout bool      `json:"generateKnockout"`
				Knockout         []Match   `json:"knockout"`
			}
			if !decodeBody(w, r, &req) {
				return
			}
			var result GamesResult
			var err error
			switch {
			case req.GenerateKnockout:
				result, err = games.GenerateKnockout(rc, date)
			case len(req.Knockout) > 0:
				result, err = games.SaveKnockout(rc, date, req.Knockout)
			case req.AddMore:
				result, err = games.AddRounds(rc, date, req.ExistingRounds)
			case len(req.Rounds) > 0:
				result, err = games.SaveRounds(rc, date, req.Rounds)
			default:
				result, err = games.GenerateSchedule(rc, date, req.AnchorIndex)
			}
			if err != nil {
				writeDomainError(w, err)
				return
			}
			feed.Broadcast(rc.League.ID, date, docKeyGames)
			writeJSON(w, http.StatusOK, result)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/rankings", func(w http.ResponseWriter, r *http.Request) {
		rc := getReqContext(r)
		year, ok := yearParam(w, r, rc.Now, false)
		if !ok {
			return
		}
		switch r.Method {
		case http.MethodGet:
			file, err := rankings.Rankings(rc.League, year)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, file)
		case http.MethodPost:
			file, err := rankings.Recompute(rc.League, year, rc.Now)
			if err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, file)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/rankings/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		rc := getReqContext(r)
		player := strings.TrimPrefix(r.URL.Path, "/api/rankings/")
		if player == "" {
			writeError(w, http.StatusBadRequest, "missing player name")
			return
		}
		year, ok := yearParam(w, r, rc.Now, false)
		if !ok {
			return
		}
		limit := 0
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}
		entry, err := rankings.PlayerDetail(rc.League, player, year, limit)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	})

	mux.HandleFunc("/api/champions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		rc := getReqContext(r)
		year, ok := yearParam(w, r, rc.Now, true)
		if !ok {
			return
		}
		entries, err := rankings.Champions(rc.League, year)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"champions": entries})
	})

	mux.HandleFunc("/api/golden-boot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		rc := getReqContext(r)
		year, ok := yearParam(w, r, rc.Now, true)
		if !ok {
			return
		}
		entries, err := rankings.GoldenBoot(rc.League, year)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"goldenBoot": entries})
	})

	mux.HandleFunc("/api/year-in-review/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		rc := getReqContext(r)
		year := strings.TrimPrefix(r.URL.Path, "/api/year-in-review/")
		if !isValidYear(year) {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		review, err := rankings.YearInReview(rc.League, year)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, review)
	})

	mux.HandleFunc("/api/discipline", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		rc := getReqContext(r)
		summary, err := disciplineSummary(store, rc.League.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"noShows": summary})
	})

	mux.HandleFunc("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		rc := getReqContext(r)
		if !rc.Admin {
			writeError(w, http.StatusForbidden, "admin required")
			return
		}
		var patch SettingsPatch
		if !decodeBody(w, r, &patch) {
			return
		}
		if err := validateSettingsPatch(&patch); err != nil {
			writeDomainError(w, err)
			return
		}
		date := r.URL.Query().Get("date")
		if date == "" {
			if err := leagues.UpdateSettings(rc.League.ID, &patch); err != nil {
				writeDomainError(w, err)
				return
			}
			// The cached league doc changed too.
			if fresh, err := leagues.Load(rc.League.ID); err == nil {
				rc.League = fresh
			}
			writeJSON(w, http.StatusOK, defaultSettings().apply(rc.League.Settings))
			return
		}
		if !isValidDate(date) {
			writeError(w, http.StatusBadRequest, "invalid date")
			return
		}
		err := store.Apply(sessionPath(rc.League.ID, date), SetKey(docKeySettings, &patch))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		leagues.InvalidateSettings(rc.League.ID, date)
		resolved, err := leagues.ResolveSettings(rc.League, date)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		feed.Broadcast(rc.League.ID, date, docKeySettings)
		writeJSON(w, http.StatusOK, resolved)
	})

	mux.HandleFunc("/api/leagues", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID          string `json:"id" validate:"required,min=3,max=63"`
			DisplayName string `json:"displayName" validate:"required,max=80"`
			Icon        string `json:"icon" validate:"omitempty,max=16"`
			OwnerEmail  string `json:"ownerEmail" validate:"required,email"`
			AdminCode   string `json:"adminCode" validate:"omitempty,min=6,max=64"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := validate.Struct(req); err != nil {
			writeErrorDetails(w, http.StatusBadRequest, "invalid league request", err.Error())
			return
		}
		league, err := leagues.Create(CreateParams{
			ID:          strings.ToLower(strings.TrimSpace(req.ID)),
			DisplayName: strings.TrimSpace(req.DisplayName),
			Icon:        req.Icon,
			OwnerEmail:  normalizeEmail(req.OwnerEmail),
			AdminCode:   req.AdminCode,
		}, time.Now())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"league":     league.Profile(),
			"accessCode": league.AccessCode,
		})
	})

	mux.HandleFunc("/api/leagues/authenticate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		rc := getReqContext(r)
		var req struct {
			AccessCode string `json:"accessCode" validate:"required"`
			AdminCode  string `json:"adminCode" validate:"omitempty"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := validate.Struct(req); err != nil {
			writeErrorDetails(w, http.StatusBadRequest, "invalid authenticate request", err.Error())
			return
		}
		league := rc.League
		if !constantTimeEquals(req.AccessCode, league.AccessCode) {
			writeError(w, http.StatusForbidden, "invalid access code")
			return
		}
		admin := false
		if req.AdminCode != "" {
			if league.AdminCode == "" || !constantTimeEquals(req.AdminCode, league.AdminCode) {
				writeError(w, http.StatusForbidden, "invalid admin code")
				return
			}
			admin = true
		}
		token, err := mintToken(league, admin, rc.Now)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"league":   league.Profile(),
			"admin":    admin,
			"token":    token,
			"settings": defaultSettings().apply(league.Settings),
		})
	})

	mux.HandleFunc("/api/leagues/reset-access-code", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		rc := getReqContext(r)
		var req struct {
			Email     string `json:"email" validate:"required,email"`
			ResetCode string `json:"resetCode" validate:"omitempty,uuid4"`
		}
		if !decodeBody(w, r, &req) {
			return
		}
		if err := validate.Struct(req); err != nil {
			writeErrorDetails(w, http.StatusBadRequest, "invalid reset request", err.Error())
			return
		}
		if req.ResetCode == "" {
			if err := leagues.BeginReset(rc.League.ID, req.Email, rc.Now); err != nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "reset code sent"})
			return
		}
		code, err := leagues.CompleteReset(rc.League.ID, req.Email, req.ResetCode, rc.Now)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"accessCode": code})
	})

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, monitor.Status(time.Now()))
	})

	mux.HandleFunc("/api/live", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		rc := getReqContext(r)
		date := r.URL.Query().Get("date")
		if !isValidDate(date) {
			writeError(w, http.StatusBadRequest, "missing or invalid date")
			return
		}
		if _, ok := parseToken(rc.League, r.URL.Query().Get("token")); !ok {
			writeError(w, http.StatusForbidden, "invalid session token")
			return
		}
		feed.Subscribe(w, r, rc.League.ID, date)
	})

	handler := http.Handler(mux)
	handler = tenantAuthMiddleware(opts, leagues, handler)
	handler = rateLimitMiddleware(limiter, handler)
	handler = bodyLimitMiddleware(opts, handler)
	handler = apiKeyMiddleware(opts, handler)
	handler = corsMiddleware(opts, handler)
	handler = securityMiddleware(handler)
	handler = cacheControlMiddleware(handler)
	handler = loggingMiddleware(monitor, handler)
	handler = recoverMiddleware(handler)

	return srv, handler, nil
}

// cacheControlMiddleware keeps proxies from caching API responses.
func cacheControlMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "private, no-cache, no-transform")
		next.ServeHTTP(w, r)
	})
}

// securityMiddleware adds HTTP security headers to responses.
func securityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs every request and feeds the latency
// histogram. WebSocket upgrades bypass the recorder, which does not
// implement http.Hijacker.
func loggingMiddleware(monitor *Monitor, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/live" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)
		monitor.Observe(elapsed)
		log.Printf("%s %s %d %v client=%s", r.Method, r.URL.Path, rec.status, elapsed.Round(time.Millisecond), r.Header.Get("x-client-id"))
	})
}

// recoverMiddleware turns handler panics into 500s instead of killing
// the connection.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				writeError(w, http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
