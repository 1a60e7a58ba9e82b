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
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
)

// Generation methods.
const (
	MethodSeeded = "seeded"
	MethodRandom = "random"
)

// TeamConfig is one way of splitting the eligible players into teams.
type TeamConfig struct {
	Teams     int   `json:"teams"`
	TeamSizes []int `json:"teamSizes"`
}

func validateTeamConfig(cfg TeamConfig, playerCount int) error {
	if cfg.Teams < 2 {
		return fmt.Errorf("%w: need at least two teams", ErrValidation)
	}
	if len(cfg.TeamSizes) != cfg.Teams {
		return fmt.Errorf("%w: %d team sizes for %d teams", ErrValidation, len(cfg.TeamSizes), cfg.Teams)
	}
	total := 0
	for _, size := range cfg.TeamSizes {
		if size < 1 {
			return fmt.Errorf("%w: team size %d", ErrValidation, size)
		}
		total += size
	}
	if total != playerCount {
		return fmt.Errorf("%w: configuration places %d players, have %d", ErrValidation, total, playerCount)
	}
	return nil
}

// teamConfigurations enumerates the near-even splits of count players
// into 2..maxTeams teams within the size bounds. Splits whose average
// size is closest to five come first; the first entry is the default
// used by generation.
func teamConfigurations(count, maxTeams, minSize, maxSize int) []TeamConfig {
	var configs []TeamConfig
	for k := 2; k <= maxTeams; k++ {
		base, rem := count/k, count%k
		if base < minSize {
			continue
		}
		largest := base
		if rem > 0 {
			largest = base + 1
		}
		if largest > maxSize {
			continue
		}
		sizes := make([]int, k)
		for i := range sizes {
			sizes[i] = base
			if i < rem {
				sizes[i] = base + 1
			}
		}
		configs = append(configs, TeamConfig{Teams: k, TeamSizes: sizes})
	}
	sort.SliceStable(configs, func(i, j int) bool {
		ai := math.Abs(float64(count)/float64(configs[i].Teams) - 5)
		aj := math.Abs(float64(count)/float64(configs[j].Teams) - 5)
		if ai != aj {
			return ai < aj
		}
		return configs[i].Teams < configs[j].Teams
	})
	return configs
}

// TeamGenerator draws balanced teams. The RNG is injected so draws are
// reproducible under test.
type TeamGenerator struct {
	rng     *rand.Rand
	baseElo float64
}

func NewTeamGenerator(rng *rand.Rand, baseElo float64) *TeamGenerator {
	return &TeamGenerator{rng: rng, baseElo: baseElo}
}

func (g *TeamGenerator) ratingOf(elo map[string]float64, name string) float64 {
	if r, ok := elo[name]; ok {
		return r
	}
	return g.baseElo
}

// candidate is one draw attempt: the shuffled pots it came from, the
// per-team assignments in placement order, and its balance score.
type candidate struct {
	pots       [][]*string
	placements []DrawPlacement
	teams      [][]string
	score      float64
}

// Seeded draws ELO-banded teams. Players are sorted by rating and cut
// into pots one band per team slot; each iteration shuffles within the
// pots, deals one player per pot to each team, and scores the result
// by rating spread plus a teammate-repetition penalty. The lowest
// scoring candidate wins; any pair that already played together three
// or more times rejects the whole candidate.
//
// With a pairing history present (even an empty one) the search runs
// drawIterations times; with none the first deal stands.
func (g *TeamGenerator) Seeded(players []string, elo map[string]float64, history PairCounts, cfg TeamConfig) ([]Team, *DrawTrace, error) {
	if err := validateTeamConfig(cfg, len(players)); err != nil {
		return nil, nil, err
	}

	sorted := make([]string, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		return g.ratingOf(elo, sorted[i]) > g.ratingOf(elo, sorted[j])
	})

	numPots := 0
	for _, size := range cfg.TeamSizes {
		if size > numPots {
			numPots = size
		}
	}

	// Pot k holds the k-th strongest band, padded to the team count.
	pots := make([][]*string, numPots)
	for k := range pots {
		pots[k] = make([]*string, cfg.Teams)
		for i := 0; i < cfg.Teams; i++ {
			idx := k*cfg.Teams + i
			if idx < len(sorted) {
				name := sorted[idx]
				pots[k][i] = &name
			}
		}
	}

	iterations := 1
	if history != nil {
		iterations = drawIterations
	}

	var best *candidate
	for it := 0; it < iterations; it++ {
		c := g.deal(pots, cfg)
		if c == nil {
			continue
		}
		c.score = g.scoreCandidate(c, elo, history)
		if c.score < 0 {
			continue
		}
		if best == nil || c.score < best.score {
			best = c
		}
	}
	if best == nil {
		return nil, nil, fmt.Errorf("%w: no draw avoids repeat teammates; adjust the configuration", ErrConflict)
	}

	teams := g.nameTeams(best.teams, cfg)
	trace := &DrawTrace{
		Method:      MethodSeeded,
		InitialPots: best.pots,
		Placements:  best.placements,
	}
	return teams, trace, nil
}

// deal shuffles within each pot and assigns pot position i to team i,
// moving on to the next team with room when one is already filled to
// its configured size.
func (g *TeamGenerator) deal(pots [][]*string, cfg TeamConfig) *candidate {
	shuffled := make([][]*string, len(pots))
	for k, pot := range pots {
		shuffled[k] = make([]*string, len(pot))
		copy(shuffled[k], pot)
		g.rng.Shuffle(len(shuffled[k]), func(i, j int) {
			shuffled[k][i], shuffled[k][j] = shuffled[k][j], shuffled[k][i]
		})
	}

	teams := make([][]string, cfg.Teams)
	var placements []DrawPlacement
	for potIdx, pot := range shuffled {
		for i, p := range pot {
			if p == nil {
				continue
			}
			t := i
			for len(teams[t]) >= cfg.TeamSizes[t] {
				t = (t + 1) % cfg.Teams
			}
			teams[t] = append(teams[t], *p)
			placements = append(placements, DrawPlacement{
				Player:  *p,
				FromPot: potIdx,
				ToTeam:  t,
			})
		}
	}
	return &candidate{pots: shuffled, placements: placements, teams: teams}
}

// scoreCandidate returns the balance score, or -1 for a hard reject.
// Lower is better: the spread between the strongest and weakest team
// average plus the weighted pairing penalty.
func (g *TeamGenerator) scoreCandidate(c *candidate, elo map[string]float64, history PairCounts) float64 {
	minAvg, maxAvg := math.Inf(1), math.Inf(-1)
	penalty := 0
	for _, team := range c.teams {
		sum := 0.0
		for _, name := range team {
			sum += g.ratingOf(elo, name)
		}
		avg := sum / float64(len(team))
		minAvg = math.Min(minAvg, avg)
		maxAvg = math.Max(maxAvg, avg)

		for i := 0; i < len(team); i++ {
			for j := i + 1; j < len(team); j++ {
				count := history.Count(team[i], team[j])
				if count >= 3 {
					return -1
				}
				penalty += pairScore(count)
			}
		}
	}
	return (maxAvg - minAvg) + float64(pairPenaltyWeight*penalty)
}

// pairScore rewards never-paired and once-paired teammates and
// penalises repeats quadratically.
func pairScore(count int) int {
	switch count {
	case 0:
		return -2
	case 1:
		return -1
	default:
		return count * count
	}
}

// nameTeams wraps the drawn rosters in colour-noun names: distinct
// shuffled colours, nouns sampled without replacement.
func (g *TeamGenerator) nameTeams(rosters [][]string, cfg TeamConfig) []Team {
	colours := make([]string, len(teamColours))
	copy(colours, teamColours)
	g.rng.Shuffle(len(colours), func(i, j int) { colours[i], colours[j] = colours[j], colours[i] })
	nouns := make([]string, len(teamNouns))
	copy(nouns, teamNouns)
	g.rng.Shuffle(len(nouns), func(i, j int) { nouns[i], nouns[j] = nouns[j], nouns[i] })

	teams := make([]Team, len(rosters))
	for i, roster := range rosters {
		players := make([]*string, len(roster))
		for j, name := range roster {
			n := name
			players[j] = &n
		}
		teams[i] = Team{
			Name:    colours[i%len(colours)] + " " + nouns[i%len(nouns)],
			Players: players,
		}
	}
	return teams
}

// Random ignores ratings entirely: uniform shuffle, sliced by the
// configured sizes. The trace holds a single pot with every player.
func (g *TeamGenerator) Random(players []string, cfg TeamConfig) ([]Team, *DrawTrace, error) {
	if err := validateTeamConfig(cfg, len(players)); err != nil {
		return nil, nil, err
	}
	shuffled := make([]string, len(players))
	copy(shuffled, players)
	g.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	pot := make([]*string, len(shuffled))
	for i := range shuffled {
		pot[i] = &shuffled[i]
	}
	rosters := make([][]string, cfg.Teams)
	var placements []DrawPlacement
	next := 0
	for t, size := range cfg.TeamSizes {
		rosters[t] = shuffled[next : next+size]
		for _, name := range rosters[t] {
			placements = append(placements, DrawPlacement{Player: name, FromPot: 0, ToTeam: t})
		}
		next += size
	}
	teams := g.nameTeams(rosters, cfg)
	trace := &DrawTrace{
		Method:      MethodRandom,
		InitialPots: [][]*string{pot},
		Placements:  placements,
	}
	return teams, trace, nil
}

// buildTeammateHistory scans the league archive from the start of the
// previous calendar year up to (excluding) date and counts co-rostered
// pairs. The result feeds the draw and is stored on the session for
// replay.
func buildTeammateHistory(store *DocStore, leagueID, date string) (PairCounts, error) {
	dates, err := store.ListSessionDates(leagueID)
	if err != nil {
		return nil, err
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrValidation, date)
	}
	from := strconv.Itoa(year-1) + "-01-01"

	history := make(PairCounts)
	for _, d := range dates {
		if d >= date {
			break
		}
		if d < from {
			continue
		}
		var teams []Team
		if err := store.GetKey(sessionPath(leagueID, d), docKeyTeams, &teams); err != nil {
			continue
		}
		for ti := range teams {
			var names []string
			for _, p := range teams[ti].Players {
				if p != nil {
					names = append(names, *p)
				}
			}
			for i := 0; i < len(names); i++ {
				for j := i + 1; j < len(names); j++ {
					history.Add(names[i], names[j])
				}
			}
		}
	}
	return history, nil
}
