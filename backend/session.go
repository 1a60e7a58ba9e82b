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

// PlayerLists holds the two ordered name lists of a session. A name
// appears in at most one of them.
type PlayerLists struct {
	Available   []string `json:"available"`
	WaitingList []string `json:"waitingList"`
}

func (p *PlayerLists) contains(name string) bool {
	return p.listOf(name) != ""
}

// listOf returns "available", "waitingList" or "" for a name.
func (p *PlayerLists) listOf(name string) string {
	for _, n := range p.Available {
		if n == name {
			return ListAvailable
		}
	}
	for _, n := range p.WaitingList {
		if n == name {
			return ListWaiting
		}
	}
	return ""
}

// Team is one generated team. Player entries are nil when the slot has
// been vacated; slot order is the draw order.
type Team struct {
	Name    string    `json:"name"`
	Players []*string `json:"players"`
}

func (t *Team) playerCount() int {
	n := 0
	for _, p := range t.Players {
		if p != nil {
			n++
		}
	}
	return n
}

func (t *Team) hasPlayer(name string) bool {
	for _, p := range t.Players {
		if p != nil && *p == name {
			return true
		}
	}
	return false
}

// firstOpenSlot returns the index of the first nil entry, or -1.
func (t *Team) firstOpenSlot() int {
	for i, p := range t.Players {
		if p == nil {
			return i
		}
	}
	return -1
}

func teamNames(teams []Team) []string {
	names := make([]string, len(teams))
	for i := range teams {
		names[i] = teams[i].Name
	}
	return names
}

// Scorer identifies where a goal is credited: a named player, or the
// own-goal sentinel counted against the conceding side.
type Scorer struct {
	Name    string
	OwnGoal bool
}

func (s Scorer) wireKey() string {
	if s.OwnGoal {
		return ownGoalKey
	}
	return s.Name
}

func scorerFromWire(key string) Scorer {
	if key == ownGoalKey {
		return Scorer{OwnGoal: true}
	}
	return Scorer{Name: key}
}

// ScorerTally counts goals per scorer within one match side. On the
// wire it is a JSON object keyed by player name, with own goals under
// the reserved sentinel key.
type ScorerTally map[Scorer]int

func (t ScorerTally) MarshalJSON() ([]byte, error) {
	m := make(map[string]int, len(t))
	for s, n := range t {
		m[s.wireKey()] = n
	}
	return json.Marshal(m)
}

func (t *ScorerTally) UnmarshalJSON(b []byte) error {
	var m map[string]int
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	tally := make(ScorerTally, len(m))
	for k, n := range m {
		tally[scorerFromWire(k)] = n
	}
	*t = tally
	return nil
}

func (t ScorerTally) total() int {
	n := 0
	for _, c := range t {
		n += c
	}
	return n
}

// Match is one fixture. Either Bye names a team sitting the round out,
// or Home/Away are set with scores filled in as results come in.
// Knockout matches carry a Round label; league matches do not.
type Match struct {
	Home        string      `json:"home"`
	Away        string      `json:"away"`
	HomeScore   *int        `json:"homeScore"`
	AwayScore   *int        `json:"awayScore"`
	HomeScorers ScorerTally `json:"homeScorers,omitempty"`
	AwayScorers ScorerTally `json:"awayScorers,omitempty"`
	Bye         string      `json:"bye,omitempty"`
	Round       string      `json:"round,omitempty"`
}

// MarshalJSON keeps bye entries minimal: {"bye": team} plus the round
// label, without the null score fields of a real fixture.
func (m Match) MarshalJSON() ([]byte, error) {
	if m.Bye != "" {
		return json.Marshal(struct {
			Bye   string `json:"bye"`
			Round string `json:"round,omitempty"`
		}{Bye: m.Bye, Round: m.Round})
	}
	type match Match
	return json.Marshal(match(m))
}

// played reports whether both scores have been recorded.
func (m *Match) played() bool {
	return m.Bye == "" && m.HomeScore != nil && m.AwayScore != nil
}

// decided reports whether the match has a winner: a bye, or a played
// match with strictly unequal scores. Draws never decide a knockout
// position.
func (m *Match) decided() bool {
	if m.Bye != "" {
		return true
	}
	return m.played() && *m.HomeScore != *m.AwayScore
}

// winner returns the advancing team name; empty if undecided.
func (m *Match) winner() string {
	if m.Bye != "" {
		return m.Bye
	}
	if !m.decided() {
		return ""
	}
	if *m.HomeScore > *m.AwayScore {
		return m.Home
	}
	return m.Away
}

// Games holds the league rounds and the knockout bracket of a session.
// The knockout list is flat; each entry carries its round label, and a
// terminal {round: "winner"} entry names the champion once decided.
type Games struct {
	Rounds   [][]Match `json:"rounds"`
	Knockout []Match   `json:"knockout,omitempty"`
}

// champion returns the knockout winner, or "" while the cup is open.
func (g *Games) champion() string {
	for i := range g.Knockout {
		if g.Knockout[i].Round == RoundWinner {
			return g.Knockout[i].Home
		}
	}
	return ""
}

// DrawPlacement is one step of a team draw: which player left which
// pot for which team.
type DrawPlacement struct {
	Player  string `json:"player"`
	FromPot int    `json:"fromPot"`
	ToTeam  int    `json:"toTeam"`
}

// DrawTrace replays a finished draw for display without re-running the
// generator. InitialPots is the shuffled pot snapshot the winning
// candidate was drawn from; nil entries are padding.
type DrawTrace struct {
	Method      string          `json:"method"`
	InitialPots [][]*string     `json:"initialPots"`
	Placements  []DrawPlacement `json:"placements"`
	GeneratedAt string          `json:"generatedAt"`
}

// PairCounts records how often two players have been on the same team.
// Entries are symmetric; Add writes both directions.
type PairCounts map[string]map[string]int

func (p PairCounts) Add(a, b string) {
	if p[a] == nil {
		p[a] = make(map[string]int)
	}
	if p[b] == nil {
		p[b] = make(map[string]int)
	}
	p[a][b]++
	p[b][a]++
}

func (p PairCounts) Count(a, b string) int {
	if p == nil {
		return 0
	}
	return p[a][b]
}

// Settings are the resolved knobs of a session: league defaults
// overlaid with the session's own overrides.
type Settings struct {
	PlayerLimit         int     `json:"playerLimit"`
	MaxTeams            int     `json:"maxTeams"`
	MinTeamSize         int     `json:"minTeamSize"`
	MaxTeamSize         int     `json:"maxTeamSize"`
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	EloK                float64 `json:"eloK"`
	EloKnockoutK        float64 `json:"eloKnockoutK"`
	EloDecay            float64 `json:"eloDecay"`
	EloStart            float64 `json:"eloStart"`
}

// SettingsPatch is a partial settings block; nil fields inherit.
type SettingsPatch struct {
	PlayerLimit         *int     `json:"playerLimit,omitempty"`
	MaxTeams            *int     `json:"maxTeams,omitempty"`
	MinTeamSize         *int     `json:"minTeamSize,omitempty"`
	MaxTeamSize         *int     `json:"maxTeamSize,omitempty"`
	ConfidenceThreshold *float64 `json:"confidenceThreshold,omitempty"`
	EloK                *float64 `json:"eloK,omitempty"`
	EloKnockoutK        *float64 `json:"eloKnockoutK,omitempty"`
	EloDecay            *float64 `json:"eloDecay,omitempty"`
	EloStart            *float64 `json:"eloStart,omitempty"`
}

func defaultSettings() Settings {
	return Settings{
		PlayerLimit:         DefaultPlayerLimit,
		MaxTeams:            DefaultMaxTeams,
		MinTeamSize:         DefaultMinTeamSize,
		MaxTeamSize:         DefaultMaxTeamSize,
		ConfidenceThreshold: confidenceWeight,
		EloK:                EloKLeague,
		EloKnockoutK:        EloKKnockout,
		EloDecay:            EloDecayFactor,
		EloStart:            EloBaseRating,
	}
}

func (s Settings) apply(p *SettingsPatch) Settings {
	if p == nil {
		return s
	}
	if p.PlayerLimit != nil {
		s.PlayerLimit = *p.PlayerLimit
	}
	if p.MaxTeams != nil {
		s.MaxTeams = *p.MaxTeams
	}
	if p.MinTeamSize != nil {
		s.MinTeamSize = *p.MinTeamSize
	}
	if p.MaxTeamSize != nil {
		s.MaxTeamSize = *p.MaxTeamSize
	}
	if p.ConfidenceThreshold != nil {
		s.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.EloK != nil {
		s.EloK = *p.EloK
	}
	if p.EloKnockoutK != nil {
		s.EloKnockoutK = *p.EloKnockoutK
	}
	if p.EloDecay != nil {
		s.EloDecay = *p.EloDecay
	}
	if p.EloStart != nil {
		s.EloStart = *p.EloStart
	}
	return s
}

// Session is the decoded view of one session document. Unknown
// top-level keys are not represented here; writers must go through
// DocOps so they survive.
type Session struct {
	Players         PlayerLists       `json:"players"`
	Teams           []Team            `json:"teams"`
	Games           Games             `json:"games"`
	Settings        *SettingsPatch    `json:"settings,omitempty"`
	DrawHistory     *DrawTrace        `json:"drawHistory,omitempty"`
	TeammateHistory PairCounts        `json:"teammateHistory,omitempty"`
	Ownership       map[string]string `json:"ownership,omitempty"`
}

// decodeSession builds a typed view from a raw session document.
func decodeSession(doc map[string]json.RawMessage) (*Session, error) {
	var s Session
	for key, dst := range map[string]any{
		docKeyPlayers:         &s.Players,
		docKeyTeams:           &s.Teams,
		docKeyGames:           &s.Games,
		docKeySettings:        &s.Settings,
		docKeyDrawHistory:     &s.DrawHistory,
		docKeyTeammateHistory: &s.TeammateHistory,
		docKeyOwnership:       &s.Ownership,
	} {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("session key %q: %w: %v", key, ErrParse, err)
		}
	}
	return &s, nil
}

// ended reports whether the session's competition is over: the
// knockout has a decided winner entry.
func (s *Session) ended() bool {
	return s.Games.champion() != ""
}
