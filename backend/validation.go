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
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// uuidRegex is a regex for standard UUIDs (8-4-4-4-12 hex digits)
var uuidRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{4}-[a-fA-F0-9]{12}$`)

// isValidUUID checks if the string is a valid UUID.
func isValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

// isValidEmail checks if the string is a valid email address.
func isValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

var dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// isValidDate checks for a real calendar date in YYYY-MM-DD form.
func isValidDate(date string) bool {
	if !dateRegex.MatchString(date) {
		return false
	}
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

var yearRegex = regexp.MustCompile(`^\d{4}$`)

func isValidYear(year string) bool {
	return yearRegex.MatchString(year)
}

// leagueIDRegex enforces subdomain-safe league ids: 3-63 lowercase
// alphanumerics and hyphens, no leading or trailing hyphen.
var leagueIDRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// validateLeagueID checks the format and the reserved-name list.
func validateLeagueID(id string) error {
	if !leagueIDRegex.MatchString(id) {
		return fmt.Errorf("%w: league id must be %d-%d lowercase letters, digits or hyphens", ErrValidation, minLeagueNameLen, maxLeagueNameLen)
	}
	if reservedLeagueNames[id] {
		return fmt.Errorf("%w: league id %q is reserved", ErrValidation, id)
	}
	return nil
}

var accessCodeRegex = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

func isValidAccessCode(code string) bool {
	return accessCodeRegex.MatchString(code)
}

// sanitizePlayerName normalizes a submitted player name: control
// characters stripped, whitespace runs collapsed to single spaces,
// outer whitespace trimmed. Rejects empty results, over-long names and
// anything that could collide with reserved document keys.
func sanitizePlayerName(name string) (string, error) {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	clean := strings.Join(strings.Fields(b.String()), " ")
	if clean == "" {
		return "", fmt.Errorf("%w: player name is empty", ErrValidation)
	}
	if len(clean) > maxPlayerNameLen {
		return "", fmt.Errorf("%w: player name exceeds %d characters", ErrValidation, maxPlayerNameLen)
	}
	if strings.HasPrefix(clean, "__") {
		return "", fmt.Errorf("%w: player name must not start with %q", ErrValidation, "__")
	}
	return clean, nil
}

func validateScore(score int) error {
	if score < 0 || score > maxScore {
		return fmt.Errorf("%w: score %d outside [0, %d]", ErrValidation, score, maxScore)
	}
	return nil
}

// teamMembers maps each team name to the set of its current players.
func teamMembers(teams []Team) map[string]map[string]bool {
	members := make(map[string]map[string]bool, len(teams))
	for i := range teams {
		set := make(map[string]bool)
		for _, p := range teams[i].Players {
			if p != nil {
				set[*p] = true
			}
		}
		members[teams[i].Name] = set
	}
	return members
}

// validateMatch checks one fixture against the session's teams:
// known trimmed team names, home != away, scores in range, and scorer
// tallies consistent with the recorded score.
func validateMatch(m *Match, members map[string]map[string]bool) error {
	if m.Bye != "" {
		if _, ok := members[m.Bye]; !ok {
			return fmt.Errorf("%w: unknown bye team %q", ErrValidation, m.Bye)
		}
		return nil
	}
	if m.Home != strings.TrimSpace(m.Home) || m.Away != strings.TrimSpace(m.Away) {
		return fmt.Errorf("%w: team names must be trimmed", ErrValidation)
	}
	if m.Home == m.Away {
		return fmt.Errorf("%w: %q plays itself", ErrValidation, m.Home)
	}
	for _, name := range []string{m.Home, m.Away} {
		if _, ok := members[name]; !ok {
			return fmt.Errorf("%w: unknown team %q", ErrValidation, name)
		}
	}
	if (m.HomeScore == nil) != (m.AwayScore == nil) {
		return fmt.Errorf("%w: %s vs %s has only one score", ErrValidation, m.Home, m.Away)
	}
	if m.HomeScore == nil {
		return nil
	}
	for _, score := range []int{*m.HomeScore, *m.AwayScore} {
		if err := validateScore(score); err != nil {
			return err
		}
	}
	if err := validateScorers(m.HomeScorers, *m.HomeScore, members[m.Home], m.Home); err != nil {
		return err
	}
	return validateScorers(m.AwayScorers, *m.AwayScore, members[m.Away], m.Away)
}

// validateScorers checks one side's goal tally: non-negative counts,
// total within the recorded score, scorers rostered on the team, and
// at most two own goals credited.
func validateScorers(tally ScorerTally, score int, roster map[string]bool, team string) error {
	if len(tally) == 0 {
		return nil
	}
	total := 0
	for scorer, goals := range tally {
		if goals < 0 {
			return fmt.Errorf("%w: negative goal count for %q", ErrValidation, scorer.wireKey())
		}
		total += goals
		if scorer.OwnGoal {
			if goals > 2 {
				return fmt.Errorf("%w: more than two own goals for %s", ErrValidation, team)
			}
			continue
		}
		if !roster[scorer.Name] {
			return fmt.Errorf("%w: scorer %q is not on team %s", ErrValidation, scorer.Name, team)
		}
	}
	if total > score {
		return fmt.Errorf("%w: %s scorers total %d exceeds score %d", ErrValidation, team, total, score)
	}
	return nil
}

// validateRounds checks a league schedule against the session's teams.
// Every round must cover the full team set exactly once, byes included.
func validateRounds(rounds [][]Match, teams []Team) error {
	members := teamMembers(teams)
	n := len(teams)
	perRound := (n + 1) / 2
	for i, round := range rounds {
		if len(round) != perRound {
			return fmt.Errorf("%w: round %d has %d entries, want %d", ErrValidation, i+1, len(round), perRound)
		}
		seen := make(map[string]bool, n)
		for j := range round {
			m := &round[j]
			if err := validateMatch(m, members); err != nil {
				return fmt.Errorf("round %d: %w", i+1, err)
			}
			for _, name := range []string{m.Home, m.Away, m.Bye} {
				if name == "" {
					continue
				}
				if seen[name] {
					return fmt.Errorf("%w: round %d fields %q twice", ErrValidation, i+1, name)
				}
				seen[name] = true
			}
		}
		if len(seen) != n {
			return fmt.Errorf("%w: round %d covers %d of %d teams", ErrValidation, i+1, len(seen), n)
		}
	}
	return nil
}

var roundOfRegex = regexp.MustCompile(`^round-of-(\d+)$`)

// isValidRoundLabel accepts quarter, semi, final, winner and
// round-of-N for bracket sizes 16 and up (powers of two).
func isValidRoundLabel(label string) bool {
	switch label {
	case RoundQuarter, RoundSemi, RoundFinal, RoundWinner:
		return true
	}
	m := roundOfRegex.FindStringSubmatch(label)
	if m == nil {
		return false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 16 {
		return false
	}
	return n&(n-1) == 0
}

// validateKnockout checks a knockout bracket edit: labelled entries,
// matches valid against the team set, and at most one terminal winner
// entry naming a known team.
func validateKnockout(entries []Match, teams []Team) error {
	members := teamMembers(teams)
	winners := 0
	for i := range entries {
		m := &entries[i]
		if !isValidRoundLabel(m.Round) {
			return fmt.Errorf("%w: entry %d has invalid round label %q", ErrValidation, i, m.Round)
		}
		if m.Round == RoundWinner {
			winners++
			if winners > 1 {
				return fmt.Errorf("%w: multiple winner entries", ErrValidation)
			}
			if _, ok := members[m.Home]; !ok {
				return fmt.Errorf("%w: unknown champion %q", ErrValidation, m.Home)
			}
			continue
		}
		if err := validateMatch(m, members); err != nil {
			return fmt.Errorf("knockout entry %d: %w", i, err)
		}
	}
	return nil
}

// validateSettingsPatch bounds the tunable settings so a bad admin
// write cannot wedge team generation or the rating maths.
func validateSettingsPatch(p *SettingsPatch) error {
	if p == nil {
		return nil
	}
	if p.PlayerLimit != nil && (*p.PlayerLimit < 2 || *p.PlayerLimit > 100) {
		return fmt.Errorf("%w: playerLimit out of range", ErrValidation)
	}
	if p.MaxTeams != nil && (*p.MaxTeams < 2 || *p.MaxTeams > 10) {
		return fmt.Errorf("%w: maxTeams out of range", ErrValidation)
	}
	if p.MinTeamSize != nil && *p.MinTeamSize < 1 {
		return fmt.Errorf("%w: minTeamSize out of range", ErrValidation)
	}
	if p.MaxTeamSize != nil && *p.MaxTeamSize < 1 {
		return fmt.Errorf("%w: maxTeamSize out of range", ErrValidation)
	}
	if p.MinTeamSize != nil && p.MaxTeamSize != nil && *p.MinTeamSize > *p.MaxTeamSize {
		return fmt.Errorf("%w: minTeamSize exceeds maxTeamSize", ErrValidation)
	}
	if p.ConfidenceThreshold != nil && (*p.ConfidenceThreshold < 0 || *p.ConfidenceThreshold > 100) {
		return fmt.Errorf("%w: confidenceThreshold out of range", ErrValidation)
	}
	if p.EloK != nil && (*p.EloK <= 0 || *p.EloK > 100) {
		return fmt.Errorf("%w: eloK out of range", ErrValidation)
	}
	if p.EloKnockoutK != nil && (*p.EloKnockoutK <= 0 || *p.EloKnockoutK > 100) {
		return fmt.Errorf("%w: eloKnockoutK out of range", ErrValidation)
	}
	if p.EloDecay != nil && (*p.EloDecay <= 0 || *p.EloDecay > 1) {
		return fmt.Errorf("%w: eloDecay out of range", ErrValidation)
	}
	if p.EloStart != nil && (*p.EloStart < 100 || *p.EloStart > 5000) {
		return fmt.Errorf("%w: eloStart out of range", ErrValidation)
	}
	return nil
}
