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
)

// GameManager persists schedules and knockout brackets against the
// session documents.
type GameManager struct {
	store   *DocStore
	leagues *LeagueStore
}

// NewGameManager creates a GameManager.
func NewGameManager(store *DocStore, leagues *LeagueStore) *GameManager {
	return &GameManager{store: store, leagues: leagues}
}

// GamesResult is what the games endpoint returns: the schedule, the
// bracket, and the standings derived from them.
type GamesResult struct {
	Rounds    [][]Match      `json:"rounds"`
	Knockout  []Match        `json:"knockout,omitempty"`
	Standings []TeamStanding `json:"standings,omitempty"`
	Champion  string         `json:"champion,omitempty"`
}

func gamesResult(s *Session) GamesResult {
	res := GamesResult{
		Rounds:   s.Games.Rounds,
		Knockout: s.Games.Knockout,
		Champion: s.Games.champion(),
	}
	if res.Rounds == nil {
		res.Rounds = [][]Match{}
	}
	if len(s.Teams) > 0 && len(s.Games.Rounds) > 0 {
		res.Standings = computeStandings(teamNames(s.Teams), s.Games.Rounds)
	}
	return res
}

// Games returns the session's schedule, bracket and standings.
func (gm *GameManager) Games(rc *ReqContext, date string) (GamesResult, error) {
	path := sessionPath(rc.League.ID, date)
	doc, err := gm.store.Get(path)
	if err != nil && !isNotFound(err) {
		return GamesResult{}, err
	}
	s, err := decodeSession(doc)
	if err != nil {
		return GamesResult{}, err
	}
	return gamesResult(s), nil
}

// GenerateSchedule builds the double round-robin from the session's
// teams. An existing schedule is not overwritten.
func (gm *GameManager) GenerateSchedule(rc *ReqContext, date string, anchorIndex *int) (GamesResult, error) {
	var result GamesResult
	path := sessionPath(rc.League.ID, date)
	err := gm.store.Apply(path, func(doc map[string]json.RawMessage) error {
		s, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := guardMutable(s, rc); err != nil {
			return err
		}
		if len(s.Teams) < 2 {
			return fmt.Errorf("%w: need at least two teams", ErrConflict)
		}
		if len(s.Games.Rounds) > 0 {
			return fmt.Errorf("%w: schedule already exists", ErrConflict)
		}

		names := teamNames(s.Teams)
		anchor := randomAnchor(len(names))
		if anchorIndex != nil {
			if *anchorIndex < 0 || *anchorIndex >= len(names) {
				return fmt.Errorf("%w: anchorIndex out of range", ErrValidation)
			}
			anchor = *anchorIndex
		}
		rounds, err := generateFullSchedule(names, anchor)
		if err != nil {
			return err
		}
		s.Games.Rounds = rounds
		if err := writeKeys(doc, map[string]any{docKeyGames: s.Games}); err != nil {
			return err
		}
		result = gamesResult(s)
		return nil
	})
	if err != nil {
		return GamesResult{}, err
	}
	return result, nil
}

// SaveRounds validates and persists edited rounds, replacing the
// stored schedule.
func (gm *GameManager) SaveRounds(rc *ReqContext, date string, rounds [][]Match) (GamesResult, error) {
	var result GamesResult
	path := sessionPath(rc.League.ID, date)
	err := gm.store.Apply(path, func(doc map[string]json.RawMessage) error {
		s, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := guardMutable(s, rc); err != nil {
			return err
		}
		if len(s.Teams) < 2 {
			return fmt.Errorf("%w: no teams for this session", ErrConflict)
		}
		if err := validateRounds(rounds, s.Teams); err != nil {
			return err
		}
		s.Games.Rounds = rounds
		if err := writeKeys(doc, map[string]any{docKeyGames: s.Games}); err != nil {
			return err
		}
		result = gamesResult(s)
		return nil
	})
	if err != nil {
		return GamesResult{}, err
	}
	return result, nil
}

// AddRounds appends a mirrored leg to the schedule. When the caller
// supplies existingRounds those replace the stored schedule first (so
// unsaved score edits are not lost).
func (gm *GameManager) AddRounds(rc *ReqContext, date string, existingRounds [][]Match) (GamesResult, error) {
	var result GamesResult
	path := sessionPath(rc.League.ID, date)
	err := gm.store.Apply(path, func(doc map[string]json.RawMessage) error {
		s, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := guardMutable(s, rc); err != nil {
			return err
		}
		base := s.Games.Rounds
		if len(existingRounds) > 0 {
			if err := validateRounds(existingRounds, s.Teams); err != nil {
				return err
			}
			base = existingRounds
		}
		extended, err := addMoreRounds(base)
		if err != nil {
			return err
		}
		s.Games.Rounds = extended
		if err := writeKeys(doc, map[string]any{docKeyGames: s.Games}); err != nil {
			return err
		}
		result = gamesResult(s)
		return nil
	})
	if err != nil {
		return GamesResult{}, err
	}
	return result, nil
}

// GenerateKnockout seeds the bracket from the current standings. Every
// league match must be played first.
func (gm *GameManager) GenerateKnockout(rc *ReqContext, date string) (GamesResult, error) {
	var result GamesResult
	path := sessionPath(rc.League.ID, date)
	err := gm.store.Apply(path, func(doc map[string]json.RawMessage) error {
		s, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := guardMutable(s, rc); err != nil {
			return err
		}
		if len(s.Games.Rounds) == 0 {
			return fmt.Errorf("%w: no schedule to seed from", ErrConflict)
		}
		if len(s.Games.Knockout) > 0 {
			return fmt.Errorf("%w: knockout already exists", ErrConflict)
		}
		for _, round := range s.Games.Rounds {
			for i := range round {
				if round[i].Bye == "" && !round[i].played() {
					return fmt.Errorf("%w: league matches still unplayed", ErrConflict)
				}
			}
		}

		standings := computeStandings(teamNames(s.Teams), s.Games.Rounds)
		seeds := make([]string, len(standings))
		for i := range standings {
			seeds[i] = standings[i].Team
		}
		entries, err := generateKnockout(seeds)
		if err != nil {
			return err
		}
		s.Games.Knockout = entries
		if err := writeKeys(doc, map[string]any{docKeyGames: s.Games}); err != nil {
			return err
		}
		result = gamesResult(s)
		return nil
	})
	if err != nil {
		return GamesResult{}, err
	}
	return result, nil
}

// SaveKnockout validates and persists bracket results, advancing
// winners into the next round when the current one is decided.
func (gm *GameManager) SaveKnockout(rc *ReqContext, date string, entries []Match) (GamesResult, error) {
	var result GamesResult
	path := sessionPath(rc.League.ID, date)
	err := gm.store.Apply(path, func(doc map[string]json.RawMessage) error {
		s, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := guardMutable(s, rc); err != nil {
			return err
		}
		if len(s.Games.Knockout) == 0 {
			return fmt.Errorf("%w: no knockout to update", ErrConflict)
		}
		if err := validateKnockout(entries, s.Teams); err != nil {
			return err
		}
		s.Games.Knockout = advanceKnockout(entries)
		if err := writeKeys(doc, map[string]any{docKeyGames: s.Games}); err != nil {
			return err
		}
		result = gamesResult(s)
		return nil
	})
	if err != nil {
		return GamesResult{}, err
	}
	return result, nil
}
