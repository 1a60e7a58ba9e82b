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
	"testing"
)

func newTestGameManager(t *testing.T, league *League) (*GameManager, *DocStore) {
	t.Helper()
	store := newTestStore(t)
	leagues := NewLeagueStore(store, nil)
	return NewGameManager(store, leagues), store
}

func writeTeams(t *testing.T, store *DocStore, league, date string, names ...string) {
	t.Helper()
	teams := make([]Team, len(names))
	for i, name := range names {
		teams[i] = Team{Name: name}
	}
	if err := store.Apply(sessionPath(league, date), SetKey(docKeyTeams, teams)); err != nil {
		t.Fatalf("Apply teams: %v", err)
	}
}

func TestGamesEmptySession(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	gm, _ := newTestGameManager(t, league)
	rc := testReqContext(league, testClientA, false)

	result, err := gm.Games(rc, "2025-06-02")
	if err != nil {
		t.Fatalf("Games: %v", err)
	}
	if result.Rounds == nil {
		t.Error("Expected rounds to marshal as an empty list, got nil")
	}
	if len(result.Rounds) != 0 || result.Champion != "" {
		t.Errorf("Expected an empty result, got %+v", result)
	}
}

func TestGameFlow(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	gm, store := newTestGameManager(t, league)
	rc := testReqContext(league, testClientA, false)
	writeTeams(t, store, "kickers", "2025-06-02", "Ants", "Bats", "Cats", "Dogs")

	anchor := 0
	result, err := gm.GenerateSchedule(rc, "2025-06-02", &anchor)
	if err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}
	if len(result.Rounds) != 6 {
		t.Fatalf("Expected 6 rounds, got %d", len(result.Rounds))
	}
	if result.Rounds[0][0].Home != "Ants" || result.Rounds[0][0].Away != "Dogs" {
		t.Errorf("Expected Ants v Dogs first, got %s v %s", result.Rounds[0][0].Home, result.Rounds[0][0].Away)
	}

	t.Run("no-overwrite", func(t *testing.T) {
		if _, err := gm.GenerateSchedule(rc, "2025-06-02", &anchor); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict for a second schedule, got %v", err)
		}
	})

	t.Run("knockout-needs-played-rounds", func(t *testing.T) {
		if _, err := gm.GenerateKnockout(rc, "2025-06-02"); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict with unplayed matches, got %v", err)
		}
	})

	// Every home side wins 1-0; four even teams end level on points
	// and sort alphabetically.
	for _, round := range result.Rounds {
		for i := range round {
			if round[i].Bye == "" {
				round[i].HomeScore, round[i].AwayScore = intPtr(1), intPtr(0)
			}
		}
	}
	result, err = gm.SaveRounds(rc, "2025-06-02", result.Rounds)
	if err != nil {
		t.Fatalf("SaveRounds: %v", err)
	}
	if len(result.Standings) != 4 {
		t.Fatalf("Expected standings for 4 teams, got %d", len(result.Standings))
	}
	if result.Standings[0].Team != "Ants" || result.Standings[0].Points != 9 {
		t.Errorf("Expected Ants top on 9 points, got %+v", result.Standings[0])
	}

	result, err = gm.GenerateKnockout(rc, "2025-06-02")
	if err != nil {
		t.Fatalf("GenerateKnockout: %v", err)
	}
	if len(result.Knockout) != 2 {
		t.Fatalf("Expected 2 semi-finals, got %d", len(result.Knockout))
	}
	if result.Knockout[0].Home != "Ants" || result.Knockout[0].Away != "Dogs" {
		t.Errorf("Expected Ants v Dogs, got %s v %s", result.Knockout[0].Home, result.Knockout[0].Away)
	}
	if result.Knockout[1].Home != "Bats" || result.Knockout[1].Away != "Cats" {
		t.Errorf("Expected Bats v Cats, got %s v %s", result.Knockout[1].Home, result.Knockout[1].Away)
	}

	t.Run("no-second-bracket", func(t *testing.T) {
		if _, err := gm.GenerateKnockout(rc, "2025-06-02"); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict, got %v", err)
		}
	})

	entries := result.Knockout
	entries[0].HomeScore, entries[0].AwayScore = intPtr(2), intPtr(0)
	entries[1].HomeScore, entries[1].AwayScore = intPtr(0), intPtr(1)
	result, err = gm.SaveKnockout(rc, "2025-06-02", entries)
	if err != nil {
		t.Fatalf("SaveKnockout: %v", err)
	}
	if len(result.Knockout) != 3 {
		t.Fatalf("Expected the final appended, got %d entries", len(result.Knockout))
	}
	final := result.Knockout[2]
	if final.Round != RoundFinal || final.Home != "Ants" || final.Away != "Cats" {
		t.Errorf("Expected final Ants v Cats, got %+v", final)
	}
	if result.Champion != "" {
		t.Errorf("Expected no champion before the final, got %q", result.Champion)
	}

	entries = result.Knockout
	entries[2].HomeScore, entries[2].AwayScore = intPtr(2), intPtr(1)
	result, err = gm.SaveKnockout(rc, "2025-06-02", entries)
	if err != nil {
		t.Fatalf("SaveKnockout final: %v", err)
	}
	if result.Champion != "Ants" {
		t.Errorf("Expected champion Ants, got %q", result.Champion)
	}

	t.Run("ended-session-locked", func(t *testing.T) {
		if _, err := gm.SaveRounds(rc, "2025-06-02", result.Rounds); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict on an ended session, got %v", err)
		}
	})

	readBack, err := gm.Games(rc, "2025-06-02")
	if err != nil {
		t.Fatalf("Games: %v", err)
	}
	if readBack.Champion != "Ants" {
		t.Errorf("Expected stored champion Ants, got %q", readBack.Champion)
	}
}

func TestGenerateScheduleErrors(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	gm, store := newTestGameManager(t, league)
	rc := testReqContext(league, testClientA, false)

	t.Run("too-few-teams", func(t *testing.T) {
		writeTeams(t, store, "kickers", "2025-06-02", "Ants")
		if _, err := gm.GenerateSchedule(rc, "2025-06-02", nil); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict, got %v", err)
		}
	})
	t.Run("anchor-out-of-range", func(t *testing.T) {
		writeTeams(t, store, "kickers", "2025-06-09", "Ants", "Bats")
		anchor := 5
		if _, err := gm.GenerateSchedule(rc, "2025-06-09", &anchor); !errors.Is(err, ErrValidation) {
			t.Errorf("Expected validation error, got %v", err)
		}
	})
}

func TestSaveRoundsValidates(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	gm, store := newTestGameManager(t, league)
	rc := testReqContext(league, testClientA, false)
	writeTeams(t, store, "kickers", "2025-06-02", "Ants", "Bats")

	bad := [][]Match{{{Home: "Ants", Away: "Ants"}}}
	if _, err := gm.SaveRounds(rc, "2025-06-02", bad); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
	unknown := [][]Match{{{Home: "Ants", Away: "Emus"}}}
	if _, err := gm.SaveRounds(rc, "2025-06-02", unknown); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected unknown team rejected, got %v", err)
	}
}

func TestAddRounds(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	gm, store := newTestGameManager(t, league)
	rc := testReqContext(league, testClientA, false)
	writeTeams(t, store, "kickers", "2025-06-02", "Ants", "Bats", "Cats", "Dogs")

	anchor := 0
	result, err := gm.GenerateSchedule(rc, "2025-06-02", &anchor)
	if err != nil {
		t.Fatalf("GenerateSchedule: %v", err)
	}

	t.Run("extends-stored-schedule", func(t *testing.T) {
		extended, err := gm.AddRounds(rc, "2025-06-02", nil)
		if err != nil {
			t.Fatalf("AddRounds: %v", err)
		}
		if len(extended.Rounds) != 9 {
			t.Errorf("Expected 9 rounds, got %d", len(extended.Rounds))
		}
	})

	t.Run("replacement-kept", func(t *testing.T) {
		edited := result.Rounds
		edited[0][0].HomeScore, edited[0][0].AwayScore = intPtr(4), intPtr(2)
		extended, err := gm.AddRounds(rc, "2025-06-02", edited)
		if err != nil {
			t.Fatalf("AddRounds: %v", err)
		}
		if len(extended.Rounds) != 9 {
			t.Fatalf("Expected 9 rounds, got %d", len(extended.Rounds))
		}
		first := extended.Rounds[0][0]
		if first.HomeScore == nil || *first.HomeScore != 4 {
			t.Errorf("Expected the edited score kept, got %+v", first)
		}
	})

	t.Run("no-schedule", func(t *testing.T) {
		writeTeams(t, store, "kickers", "2025-06-09", "Ants", "Bats")
		if _, err := gm.AddRounds(rc, "2025-06-09", nil); !errors.Is(err, ErrValidation) {
			t.Errorf("Expected validation error, got %v", err)
		}
	})
}

func TestSaveKnockoutRequiresBracket(t *testing.T) {
	league := &League{ID: "kickers", Secret: "test-secret"}
	gm, store := newTestGameManager(t, league)
	rc := testReqContext(league, testClientA, false)
	writeTeams(t, store, "kickers", "2025-06-02", "Ants", "Bats")

	entries := []Match{{Home: "Ants", Away: "Bats", Round: RoundFinal}}
	if _, err := gm.SaveKnockout(rc, "2025-06-02", entries); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected conflict without a bracket, got %v", err)
	}
}
