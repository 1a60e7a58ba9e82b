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
	"encoding/json"
	"fmt"
	"time"
)

// TeamManager ties the draw algorithm to the session documents: it
// resolves settings, collects the ELO snapshot and the teammate history,
// and persists the generated teams together with their draw trace.
type TeamManager struct {
	store    *DocStore
	leagues  *LeagueStore
	rankings *RankingEngine
	gen      *TeamGenerator
}

// NewTeamManager creates a TeamManager.
func NewTeamManager(store *DocStore, leagues *LeagueStore, rankings *RankingEngine, gen *TeamGenerator) *TeamManager {
	return &TeamManager{store: store, leagues: leagues, rankings: rankings, gen: gen}
}

// Teams returns the current teams and player lists for a session.
func (tm *TeamManager) Teams(rc *ReqContext, date string) (TeamsResult, error) {
	path := sessionPath(rc.League.ID, date)
	doc, err := tm.store.Get(path)
	if err != nil && !isNotFound(err) {
		return TeamsResult{}, err
	}
	s, err := decodeSession(doc)
	if err != nil {
		return TeamsResult{}, err
	}
	return TeamsResult{Teams: s.Teams, Players: s.Players}, nil
}

// Configurations lists the valid team splits for the session's current
// eligible player count, best first.
func (tm *TeamManager) Configurations(rc *ReqContext, date string) ([]TeamConfig, error) {
	settings, err := tm.leagues.ResolveSettings(rc.League, date)
	if err != nil {
		return nil, err
	}
	var lists PlayerLists
	path := sessionPath(rc.League.ID, date)
	if err := tm.store.GetKey(path, docKeyPlayers, &lists); err != nil && !isNotFound(err) {
		return nil, err
	}
	n := len(lists.Available)
	if n > settings.PlayerLimit {
		n = settings.PlayerLimit
	}
	return teamConfigurations(n, settings.MaxTeams, settings.MinTeamSize, settings.MaxTeamSize), nil
}

// DrawHistory returns the trace recorded by the last generation.
func (tm *TeamManager) DrawHistory(rc *ReqContext, date string) (*DrawTrace, error) {
	path := sessionPath(rc.League.ID, date)
	var trace DrawTrace
	if err := tm.store.GetKey(path, docKeyDrawHistory, &trace); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("draw history for %s: %w", date, ErrNotFound)
		}
		return nil, err
	}
	return &trace, nil
}

// GenerateRequest selects the draw method and, optionally, an explicit
// team split. An empty config means "use the best configuration".
type GenerateRequest struct {
	Method    string `json:"method,omitempty"`
	Teams     int    `json:"teams,omitempty"`
	TeamSizes []int  `json:"teamSizes,omitempty"`
}

// Generate draws teams from the session's available players. The ELO
// snapshot and teammate history are read before the session lock is
// taken; eligibility is decided on the locked document.
func (tm *TeamManager) Generate(rc *ReqContext, date string, req GenerateRequest) (TeamsResult, error) {
	method := req.Method
	if method == "" {
		method = MethodSeeded
	}
	if method != MethodSeeded && method != MethodRandom {
		return TeamsResult{}, fmt.Errorf("%w: unknown method %q", ErrValidation, method)
	}

	settings, err := tm.leagues.ResolveSettings(rc.League, date)
	if err != nil {
		return TeamsResult{}, err
	}

	var elo map[string]float64
	var history PairCounts
	if method == MethodSeeded {
		year := date[:4]
		if elo, err = tm.rankings.EloSnapshot(rc.League, year); err != nil {
			return TeamsResult{}, err
		}
		if history, err = buildTeammateHistory(tm.store, rc.League.ID, date); err != nil {
			return TeamsResult{}, err
		}
	}

	var result TeamsResult
	path := sessionPath(rc.League.ID, date)
	err = tm.store.Apply(path, func(doc map[string]json.RawMessage) error {
		s, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := guardMutable(s, rc); err != nil {
			return err
		}

		eligible := s.Players.Available
		if len(eligible) > settings.PlayerLimit {
			eligible = eligible[:settings.PlayerLimit]
		}
		cfg, err := tm.pickConfig(req, len(eligible), settings)
		if err != nil {
			return err
		}

		var teams []Team
		var trace *DrawTrace
		if method == MethodSeeded {
			teams, trace, err = tm.gen.Seeded(eligible, elo, history, cfg)
		} else {
			teams, trace, err = tm.gen.Random(eligible, cfg)
		}
		if err != nil {
			return err
		}
		trace.GeneratedAt = rc.Now.UTC().Format(time.RFC3339)

		keys := map[string]any{
			docKeyTeams:       teams,
			docKeyDrawHistory: trace,
		}
		if history != nil {
			keys[docKeyTeammateHistory] = history
		}
		if err := writeKeys(doc, keys); err != nil {
			return err
		}
		result = TeamsResult{Teams: teams, Players: s.Players}
		return nil
	})
	if err != nil {
		return TeamsResult{}, err
	}
	return result, nil
}

func (tm *TeamManager) pickConfig(req GenerateRequest, eligible int, settings Settings) (TeamConfig, error) {
	if req.Teams > 0 || len(req.TeamSizes) > 0 {
		cfg := TeamConfig{Teams: req.Teams, TeamSizes: req.TeamSizes}
		if cfg.Teams == 0 {
			cfg.Teams = len(cfg.TeamSizes)
		}
		if err := validateTeamConfig(cfg, eligible); err != nil {
			return TeamConfig{}, err
		}
		return cfg, nil
	}
	configs := teamConfigurations(eligible, settings.MaxTeams, settings.MinTeamSize, settings.MaxTeamSize)
	if len(configs) == 0 {
		return TeamConfig{}, fmt.Errorf("%w: no valid team configuration for %d players", ErrConflict, eligible)
	}
	return configs[0], nil
}

// Clear removes the teams, the schedule built on them, and the draw
// metadata. Recorded results block the reset for non-admins.
func (tm *TeamManager) Clear(rc *ReqContext, date string) error {
	path := sessionPath(rc.League.ID, date)
	return tm.store.Apply(path, func(doc map[string]json.RawMessage) error {
		s, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := guardMutable(s, rc); err != nil {
			return err
		}
		if !rc.Admin {
			for _, round := range s.Games.Rounds {
				for i := range round {
					if round[i].played() {
						return fmt.Errorf("%w: recorded results exist", ErrConflict)
					}
				}
			}
			if len(s.Games.Knockout) > 0 {
				return fmt.Errorf("%w: knockout bracket exists", ErrConflict)
			}
		}
		delete(doc, docKeyTeams)
		delete(doc, docKeyDrawHistory)
		delete(doc, docKeyTeammateHistory)
		delete(doc, docKeyGames)
		return nil
	})
}
