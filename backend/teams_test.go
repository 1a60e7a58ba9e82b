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
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"
)

func newTestTeamManager(t *testing.T) (*TeamManager, *DocStore, *LeagueStore) {
	t.Helper()
	store := newTestStore(t)
	leagues := NewLeagueStore(store, nil)
	engine, err := NewRankingEngine(store)
	if err != nil {
		t.Fatalf("NewRankingEngine: %v", err)
	}
	t.Cleanup(engine.Close)
	gen := NewTeamGenerator(rand.New(rand.NewPCG(11, 12)), EloBaseRating)
	return NewTeamManager(store, leagues, engine, gen), store, leagues
}

func writeAvailable(t *testing.T, store *DocStore, league, date string, count int) []string {
	t.Helper()
	names := make([]string, count)
	for i := range names {
		names[i] = fmt.Sprintf("Player %02d", i+1)
	}
	lists := PlayerLists{Available: names}
	if err := store.Apply(sessionPath(league, date), SetKey(docKeyPlayers, lists)); err != nil {
		t.Fatalf("Apply players: %v", err)
	}
	return names
}

func TestTeamsEmptySession(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	tm, _, _ := newTestTeamManager(t)
	rc := testReqContext(league, testClientA, false)

	result, err := tm.Teams(rc, "2025-06-02")
	if err != nil {
		t.Fatalf("Teams: %v", err)
	}
	if len(result.Teams) != 0 || len(result.Players.Available) != 0 {
		t.Errorf("Expected an empty result, got %+v", result)
	}
}

func TestConfigurations(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	tm, store, _ := newTestTeamManager(t)
	rc := testReqContext(league, testClientA, false)
	writeAvailable(t, store, "kickers", "2025-06-02", 10)

	configs, err := tm.Configurations(rc, "2025-06-02")
	if err != nil {
		t.Fatalf("Configurations: %v", err)
	}
	if len(configs) == 0 {
		t.Fatal("Expected configurations for 10 players")
	}
	if configs[0].Teams != 2 || configs[0].TeamSizes[0] != 5 {
		t.Errorf("Expected two teams of five first, got %+v", configs[0])
	}
}

func TestGenerateTeamsSeededDefault(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	tm, store, _ := newTestTeamManager(t)
	rc := testReqContext(league, testClientA, false)
	names := writeAvailable(t, store, "kickers", "2025-06-02", 8)

	result, err := tm.Generate(rc, "2025-06-02", GenerateRequest{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Teams) != 2 {
		t.Fatalf("Expected 2 teams, got %d", len(result.Teams))
	}
	placed := make(map[string]int)
	for _, team := range result.Teams {
		if len(team.Players) != 4 {
			t.Errorf("Expected 4 players on %s, got %d", team.Name, len(team.Players))
		}
		for _, p := range team.Players {
			if p != nil {
				placed[*p]++
			}
		}
	}
	for _, name := range names {
		if placed[name] != 1 {
			t.Errorf("Expected %s placed once, got %d", name, placed[name])
		}
	}

	trace, err := tm.DrawHistory(rc, "2025-06-02")
	if err != nil {
		t.Fatalf("DrawHistory: %v", err)
	}
	if trace.Method != MethodSeeded {
		t.Errorf("Expected seeded trace, got %q", trace.Method)
	}
	if _, err := time.Parse(time.RFC3339, trace.GeneratedAt); err != nil {
		t.Errorf("Expected RFC3339 generation stamp, got %q", trace.GeneratedAt)
	}

	var history PairCounts
	if err := store.GetKey(sessionPath("kickers", "2025-06-02"), docKeyTeammateHistory, &history); err != nil {
		t.Errorf("Expected teammate history stored, got %v", err)
	}
}

func TestGenerateTeamsExplicitConfig(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	tm, store, _ := newTestTeamManager(t)
	rc := testReqContext(league, testClientA, false)
	writeAvailable(t, store, "kickers", "2025-06-02", 8)

	result, err := tm.Generate(rc, "2025-06-02", GenerateRequest{TeamSizes: []int{5, 3}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Teams[0].Players) != 5 || len(result.Teams[1].Players) != 3 {
		t.Errorf("Expected sizes [5 3], got [%d %d]", len(result.Teams[0].Players), len(result.Teams[1].Players))
	}

	t.Run("mismatched", func(t *testing.T) {
		if _, err := tm.Generate(rc, "2025-06-02", GenerateRequest{TeamSizes: []int{3, 3}}); !errors.Is(err, ErrValidation) {
			t.Errorf("Expected validation error, got %v", err)
		}
	})
}

func TestGenerateTeamsRandom(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	tm, store, _ := newTestTeamManager(t)
	rc := testReqContext(league, testClientA, false)
	writeAvailable(t, store, "kickers", "2025-06-02", 6)

	if _, err := tm.Generate(rc, "2025-06-02", GenerateRequest{Method: MethodRandom}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	trace, err := tm.DrawHistory(rc, "2025-06-02")
	if err != nil {
		t.Fatalf("DrawHistory: %v", err)
	}
	if trace.Method != MethodRandom {
		t.Errorf("Expected random trace, got %q", trace.Method)
	}
}

func TestGenerateTeamsBadMethod(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	tm, store, _ := newTestTeamManager(t)
	rc := testReqContext(league, testClientA, false)
	writeAvailable(t, store, "kickers", "2025-06-02", 6)

	if _, err := tm.Generate(rc, "2025-06-02", GenerateRequest{Method: "tarot"}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestGenerateTeamsEligibilityCap(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret", Settings: &SettingsPatch{PlayerLimit: intPtr(6)}}
	tm, store, _ := newTestTeamManager(t)
	rc := testReqContext(league, testClientA, false)
	names := writeAvailable(t, store, "kickers", "2025-06-02", 8)

	result, err := tm.Generate(rc, "2025-06-02", GenerateRequest{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	total := 0
	placed := make(map[string]bool)
	for _, team := range result.Teams {
		for _, p := range team.Players {
			if p != nil {
				total++
				placed[*p] = true
			}
		}
	}
	if total != 6 {
		t.Errorf("Expected 6 players drawn, got %d", total)
	}
	// The first six registrations are the eligible ones.
	for _, name := range names[6:] {
		if placed[name] {
			t.Errorf("Expected %s beyond the limit left out", name)
		}
	}
}

func TestGenerateTeamsNoConfiguration(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	tm, store, _ := newTestTeamManager(t)
	rc := testReqContext(league, testClientA, false)
	writeAvailable(t, store, "kickers", "2025-06-02", 3)

	if _, err := tm.Generate(rc, "2025-06-02", GenerateRequest{}); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected conflict for 3 players, got %v", err)
	}
}

func TestClearTeams(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	tm, store, leagues := newTestTeamManager(t)
	gm := NewGameManager(store, leagues)
	rc := testReqContext(league, testClientA, false)
	admin := testReqContext(league, testClientA, true)
	writeAvailable(t, store, "kickers", "2025-06-02", 8)

	if _, err := tm.Generate(rc, "2025-06-02", GenerateRequest{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := gm.GenerateSchedule(rc, "2025-06-02", nil); err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}

	t.Run("unplayed", func(t *testing.T) {
		if err := tm.Clear(rc, "2025-06-02"); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		result, err := tm.Teams(rc, "2025-06-02")
		if err != nil {
			t.Fatalf("Teams: %v", err)
		}
		if len(result.Teams) != 0 {
			t.Errorf("Expected teams cleared, got %+v", result.Teams)
		}
		if len(result.Players.Available) != 8 {
			t.Errorf("Expected player lists kept, got %+v", result.Players)
		}
		if _, err := tm.DrawHistory(rc, "2025-06-02"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected draw history cleared, got %v", err)
		}
		games, err := gm.Games(rc, "2025-06-02")
		if err != nil {
			t.Fatalf("Games: %v", err)
		}
		if len(games.Rounds) != 0 {
			t.Errorf("Expected schedule cleared, got %d rounds", len(games.Rounds))
		}
	})

	t.Run("recorded-results-block", func(t *testing.T) {
		if _, err := tm.Generate(rc, "2025-06-02", GenerateRequest{}); err != nil {
			t.Fatalf("Generate: %v", err)
		}
		result, err := gm.GenerateSchedule(rc, "2025-06-02", nil)
		if err != nil {
			t.Fatalf("GenerateSchedule: %v", err)
		}
		rounds := result.Rounds
		rounds[0][0].HomeScore, rounds[0][0].AwayScore = intPtr(2), intPtr(1)
		if _, err := gm.SaveRounds(rc, "2025-06-02", rounds); err != nil {
			t.Fatalf("SaveRounds: %v", err)
		}
		if err := tm.Clear(rc, "2025-06-02"); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected recorded results to block, got %v", err)
		}
		if err := tm.Clear(admin, "2025-06-02"); err != nil {
			t.Errorf("Expected admin reset to succeed, got %v", err)
		}
	})
}
