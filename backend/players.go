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

// Player removal actions. ActionAssign is the one team-slot action
// that adds instead of removes.
const (
	ActionRemove      = "remove"
	ActionWaitingList = "waitingList"
	ActionNoShow      = "no-show"
	ActionAssign      = "assign"
)

// PlayerManager owns all mutations of a session's player lists, team
// slots and ownership bindings. Every mutation runs as one
// read-modify-write under the session file mutex, so concurrent
// requests serialize and the list invariants hold at every observable
// point.
type PlayerManager struct {
	store   *DocStore
	leagues *LeagueStore
}

func NewPlayerManager(store *DocStore, leagues *LeagueStore) *PlayerManager {
	return &PlayerManager{store: store, leagues: leagues}
}

// TeamsResult is returned by team-slot mutations: the updated teams
// plus both player lists.
type TeamsResult struct {
	Teams   []Team      `json:"teams"`
	Players PlayerLists `json:"players"`
}

// writeKeys marshals each value into the document under its key.
func writeKeys(doc map[string]json.RawMessage, keys map[string]any) error {
	for k, v := range keys {
		if err := SetKey(k, v)(doc); err != nil {
			return err
		}
	}
	return nil
}

// guardMutable rejects non-admin mutations of an ended session.
func guardMutable(s *Session, rc *ReqContext) error {
	if s.ended() && !rc.Admin {
		return fmt.Errorf("%w: session is ended", ErrConflict)
	}
	return nil
}

// canTouch reports whether the caller may mutate a player entry:
// admins always, otherwise only the client whose ownership tag matches.
// Entries without a binding are open to everyone.
func canTouch(rc *ReqContext, ownership map[string]string, name string) bool {
	if rc.Admin {
		return true
	}
	tag, ok := ownership[name]
	if !ok {
		return true
	}
	return tag == ownershipTag(rc.ClientID, rc.League.Secret)
}

// Lists returns the current player lists for a session date. A missing
// session reads as empty lists.
func (pm *PlayerManager) Lists(rc *ReqContext, date string) (PlayerLists, error) {
	var lists PlayerLists
	err := pm.store.GetKey(sessionPath(rc.League.ID, date), docKeyPlayers, &lists)
	if err != nil && !isNotFound(err) {
		return PlayerLists{}, err
	}
	return lists, nil
}

// Add registers a player on the session. When the available list is at
// the player limit, the newcomer lands on the waiting list regardless
// of the requested target. The caller's client id is bound as owner.
func (pm *PlayerManager) Add(rc *ReqContext, date, name, list string) (PlayerLists, error) {
	name, err := sanitizePlayerName(name)
	if err != nil {
		return PlayerLists{}, err
	}
	if list != ListAvailable && list != ListWaiting {
		return PlayerLists{}, fmt.Errorf("%w: unknown list %q", ErrValidation, list)
	}
	settings, err := pm.leagues.ResolveSettings(rc.League, date)
	if err != nil {
		return PlayerLists{}, err
	}
	var out PlayerLists
	op := func(doc map[string]json.RawMessage) error {
		s, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := guardMutable(s, rc); err != nil {
			return err
		}
		if s.Players.contains(name) {
			return fmt.Errorf("%w: player %q already registered", ErrConflict, name)
		}
		target := list
		if target == ListAvailable && len(s.Players.Available) >= settings.PlayerLimit {
			target = ListWaiting
		}
		if target == ListAvailable {
			s.Players.Available = append(s.Players.Available, name)
		} else {
			s.Players.WaitingList = append(s.Players.WaitingList, name)
		}
		if s.Ownership == nil {
			s.Ownership = make(map[string]string)
		}
		s.Ownership[name] = ownershipTag(rc.ClientID, rc.League.Secret)
		out = s.Players
		return writeKeys(doc, map[string]any{
			docKeyPlayers:   s.Players,
			docKeyOwnership: s.Ownership,
		})
	}
	if err := pm.store.Apply(sessionPath(rc.League.ID, date), op); err != nil {
		return PlayerLists{}, err
	}
	return out, nil
}

// removeFromList drops name from whichever list holds it.
func removeFromList(p *PlayerLists, name string) bool {
	for i, n := range p.Available {
		if n == name {
			p.Available = append(p.Available[:i], p.Available[i+1:]...)
			return true
		}
	}
	for i, n := range p.WaitingList {
		if n == name {
			p.WaitingList = append(p.WaitingList[:i], p.WaitingList[i+1:]...)
			return true
		}
	}
	return false
}

// clearTeamSlots nils out every slot holding name.
func clearTeamSlots(teams []Team, name string) bool {
	cleared := false
	for i := range teams {
		for j, p := range teams[i].Players {
			if p != nil && *p == name {
				teams[i].Players[j] = nil
				cleared = true
			}
		}
	}
	return cleared
}

// Remove takes a player off the session: both lists, any team slot,
// and the ownership binding. action=no-show additionally records a
// discipline ledger entry; the session and discipline files are locked
// as a pair for that.
func (pm *PlayerManager) Remove(rc *ReqContext, date, name, action string) (PlayerLists, error) {
	sPath := sessionPath(rc.League.ID, date)
	dPath := disciplinePath(rc.League.ID)

	var out PlayerLists
	op := func(doc map[string]json.RawMessage) error {
		s, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := guardMutable(s, rc); err != nil {
			return err
		}
		if !s.Players.contains(name) {
			return fmt.Errorf("%w: player %q", ErrNotFound, name)
		}
		if !canTouch(rc, s.Ownership, name) {
			return fmt.Errorf("%w: player %q was added by another client", ErrForbidden, name)
		}
		removeFromList(&s.Players, name)
		clearTeamSlots(s.Teams, name)
		delete(s.Ownership, name)
		out = s.Players
		return writeKeys(doc, map[string]any{
			docKeyPlayers:   s.Players,
			docKeyTeams:     s.Teams,
			docKeyOwnership: s.Ownership,
		})
	}

	if action != ActionNoShow {
		if err := pm.store.Apply(sPath, op); err != nil {
			return PlayerLists{}, err
		}
		return out, nil
	}

	defer pm.store.LockPair(sPath, dPath)()
	if err := pm.store.applyLocked(sPath, op); err != nil {
		return PlayerLists{}, err
	}
	entry := NoShowEntry{
		Player:     name,
		Date:       date,
		RecordedBy: rc.ClientID,
		RecordedAt: rc.Now.UTC().Format(time.RFC3339),
	}
	if err := pm.store.applyLocked(dPath, appendNoShow(entry)); err != nil {
		return PlayerLists{}, err
	}
	return out, nil
}

// Move transfers a player between the two lists. A move into a full
// available list is a conflict rather than a silent demotion.
func (pm *PlayerManager) Move(rc *ReqContext, date, name, from, to string) (PlayerLists, error) {
	for _, l := range []string{from, to} {
		if l != ListAvailable && l != ListWaiting {
			return PlayerLists{}, fmt.Errorf("%w: unknown list %q", ErrValidation, l)
		}
	}
	if from == to {
		return PlayerLists{}, fmt.Errorf("%w: source and target list are the same", ErrValidation)
	}
	settings, err := pm.leagues.ResolveSettings(rc.League, date)
	if err != nil {
		return PlayerLists{}, err
	}
	var out PlayerLists
	op := func(doc map[string]json.RawMessage) error {
		s, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := guardMutable(s, rc); err != nil {
			return err
		}
		if s.Players.listOf(name) != from {
			return fmt.Errorf("%w: player %q not on list %q", ErrNotFound, name, from)
		}
		if !canTouch(rc, s.Ownership, name) {
			return fmt.Errorf("%w: player %q was added by another client", ErrForbidden, name)
		}
		if to == ListAvailable && len(s.Players.Available) >= settings.PlayerLimit {
			return fmt.Errorf("%w: available list is full", ErrConflict)
		}
		removeFromList(&s.Players, name)
		if to == ListAvailable {
			s.Players.Available = append(s.Players.Available, name)
		} else {
			s.Players.WaitingList = append(s.Players.WaitingList, name)
			clearTeamSlots(s.Teams, name)
		}
		out = s.Players
		return writeKeys(doc, map[string]any{
			docKeyPlayers: s.Players,
			docKeyTeams:   s.Teams,
		})
	}
	if err := pm.store.Apply(sessionPath(rc.League.ID, date), op); err != nil {
		return PlayerLists{}, err
	}
	return out, nil
}

// AssignToTeam places an available player into a team: the first open
// slot, or a new slot while the team is under the size cap.
func (pm *PlayerManager) AssignToTeam(rc *ReqContext, date, name, teamName string) (TeamsResult, error) {
	settings, err := pm.leagues.ResolveSettings(rc.League, date)
	if err != nil {
		return TeamsResult{}, err
	}
	var out TeamsResult
	op := func(doc map[string]json.RawMessage) error {
		s, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := guardMutable(s, rc); err != nil {
			return err
		}
		if s.Players.listOf(name) != ListAvailable {
			return fmt.Errorf("%w: player %q is not available", ErrConflict, name)
		}
		var team *Team
		for i := range s.Teams {
			if s.Teams[i].hasPlayer(name) {
				return fmt.Errorf("%w: player %q already on team %q", ErrConflict, name, s.Teams[i].Name)
			}
			if s.Teams[i].Name == teamName {
				team = &s.Teams[i]
			}
		}
		if team == nil {
			return fmt.Errorf("%w: team %q", ErrNotFound, teamName)
		}
		n := name
		if slot := team.firstOpenSlot(); slot >= 0 {
			team.Players[slot] = &n
		} else if team.playerCount() < settings.MaxTeamSize {
			team.Players = append(team.Players, &n)
		} else {
			return fmt.Errorf("%w: team %q is full", ErrConflict, teamName)
		}
		out = TeamsResult{Teams: s.Teams, Players: s.Players}
		return writeKeys(doc, map[string]any{docKeyTeams: s.Teams})
	}
	if err := pm.store.Apply(sessionPath(rc.League.ID, date), op); err != nil {
		return TeamsResult{}, err
	}
	return out, nil
}

// RemoveFromTeam vacates a player's slot. action decides what happens
// to the player: back to the waiting list, removed from the session,
// or removed with a no-show entry.
func (pm *PlayerManager) RemoveFromTeam(rc *ReqContext, date, name, teamName, action string) (TeamsResult, error) {
	switch action {
	case ActionWaitingList, ActionRemove, ActionNoShow:
	default:
		return TeamsResult{}, fmt.Errorf("%w: unknown action %q", ErrValidation, action)
	}
	sPath := sessionPath(rc.League.ID, date)
	dPath := disciplinePath(rc.League.ID)

	var out TeamsResult
	op := func(doc map[string]json.RawMessage) error {
		s, err := decodeSession(doc)
		if err != nil {
			return err
		}
		if err := guardMutable(s, rc); err != nil {
			return err
		}
		if !canTouch(rc, s.Ownership, name) {
			return fmt.Errorf("%w: player %q was added by another client", ErrForbidden, name)
		}
		var team *Team
		for i := range s.Teams {
			if s.Teams[i].Name == teamName {
				team = &s.Teams[i]
				break
			}
		}
		if team == nil {
			return fmt.Errorf("%w: team %q", ErrNotFound, teamName)
		}
		if !team.hasPlayer(name) {
			return fmt.Errorf("%w: player %q is not on team %q", ErrNotFound, name, teamName)
		}
		clearTeamSlots(s.Teams, name)
		switch action {
		case ActionWaitingList:
			removeFromList(&s.Players, name)
			s.Players.WaitingList = append(s.Players.WaitingList, name)
		case ActionRemove, ActionNoShow:
			removeFromList(&s.Players, name)
			delete(s.Ownership, name)
		}
		out = TeamsResult{Teams: s.Teams, Players: s.Players}
		return writeKeys(doc, map[string]any{
			docKeyPlayers:   s.Players,
			docKeyTeams:     s.Teams,
			docKeyOwnership: s.Ownership,
		})
	}

	if action != ActionNoShow {
		if err := pm.store.Apply(sPath, op); err != nil {
			return TeamsResult{}, err
		}
		return out, nil
	}

	defer pm.store.LockPair(sPath, dPath)()
	if err := pm.store.applyLocked(sPath, op); err != nil {
		return TeamsResult{}, err
	}
	entry := NoShowEntry{
		Player:     name,
		Date:       date,
		RecordedBy: rc.ClientID,
		RecordedAt: rc.Now.UTC().Format(time.RFC3339),
	}
	if err := pm.store.applyLocked(dPath, appendNoShow(entry)); err != nil {
		return TeamsResult{}, err
	}
	return out, nil
}
