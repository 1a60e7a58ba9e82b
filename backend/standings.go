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

import "sort"

// TeamStanding is one row of a session's league table.
type TeamStanding struct {
	Team         string `json:"team"`
	Played       int    `json:"played"`
	Won          int    `json:"won"`
	Drawn        int    `json:"drawn"`
	Lost         int    `json:"lost"`
	GoalsFor     int    `json:"goalsFor"`
	GoalsAgainst int    `json:"goalsAgainst"`
	Points       int    `json:"points"`
}

func (s *TeamStanding) goalDifference() int {
	return s.GoalsFor - s.GoalsAgainst
}

// computeStandings tallies the played league matches into a table
// ordered by points, goal difference, goals for, then name.
func computeStandings(teams []string, rounds [][]Match) []TeamStanding {
	index := make(map[string]*TeamStanding, len(teams))
	table := make([]TeamStanding, len(teams))
	for i, name := range teams {
		table[i] = TeamStanding{Team: name}
		index[name] = &table[i]
	}
	for _, round := range rounds {
		for i := range round {
			m := &round[i]
			if !m.played() {
				continue
			}
			home, away := index[m.Home], index[m.Away]
			if home == nil || away == nil {
				continue
			}
			hs, as := *m.HomeScore, *m.AwayScore
			home.Played++
			away.Played++
			home.GoalsFor += hs
			home.GoalsAgainst += as
			away.GoalsFor += as
			away.GoalsAgainst += hs
			switch {
			case hs > as:
				home.Won++
				away.Lost++
				home.Points += PointsWin
				away.Points += PointsLoss
			case hs < as:
				away.Won++
				home.Lost++
				away.Points += PointsWin
				home.Points += PointsLoss
			default:
				home.Drawn++
				away.Drawn++
				home.Points += PointsDraw
				away.Points += PointsDraw
			}
		}
	}
	sort.SliceStable(table, func(i, j int) bool {
		a, b := &table[i], &table[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.goalDifference() != b.goalDifference() {
			return a.goalDifference() > b.goalDifference()
		}
		if a.GoalsFor != b.GoalsFor {
			return a.GoalsFor > b.GoalsFor
		}
		return a.Team < b.Team
	})
	return table
}
