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
	"math/rand/v2"
)

// byeSentinel pads an odd team count; the team paired with it sits the
// round out.
const byeSentinel = ""

// rotateTailRight rotates every position after the anchor by one.
func rotateTailRight(arr []string) {
	n := len(arr)
	if n < 3 {
		return
	}
	last := arr[n-1]
	copy(arr[2:], arr[1:n-1])
	arr[1] = last
}

// generateRounds builds one round-robin leg with the circle method:
// the anchor team stays fixed, the rest rotate one position per round,
// position i pairs with position n-1-i. Odd team counts get a bye
// entry per round. n-1 rounds, every pair meets exactly once.
func generateRounds(teams []string, anchorIndex int) ([][]Match, error) {
	n := len(teams)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least two teams, have %d", ErrValidation, n)
	}
	if anchorIndex < 0 || anchorIndex >= n {
		return nil, fmt.Errorf("%w: anchor index %d outside [0, %d)", ErrValidation, anchorIndex, n)
	}
	arr := make([]string, 0, n+1)
	arr = append(arr, teams[anchorIndex])
	for i, t := range teams {
		if i != anchorIndex {
			arr = append(arr, t)
		}
	}
	if len(arr)%2 == 1 {
		arr = append(arr, byeSentinel)
	}
	m := len(arr)
	rounds := make([][]Match, 0, m-1)
	for r := 0; r < m-1; r++ {
		round := make([]Match, 0, m/2)
		for i := 0; i < m/2; i++ {
			a, b := arr[i], arr[m-1-i]
			switch {
			case a == byeSentinel:
				round = append(round, Match{Bye: b})
			case b == byeSentinel:
				round = append(round, Match{Bye: a})
			default:
				round = append(round, Match{Home: a, Away: b})
			}
		}
		rounds = append(rounds, round)
		rotateTailRight(arr)
	}
	return rounds, nil
}

// swapHomeAway mirrors a leg into fresh return fixtures: orientations
// flipped, scores cleared.
func swapHomeAway(rounds [][]Match) [][]Match {
	out := make([][]Match, len(rounds))
	for i, round := range rounds {
		out[i] = make([]Match, len(round))
		for j, m := range round {
			if m.Bye != "" {
				out[i][j] = Match{Bye: m.Bye}
				continue
			}
			out[i][j] = Match{Home: m.Away, Away: m.Home}
		}
	}
	return out
}

// generateFullSchedule builds the double round-robin: one leg plus its
// swapped mirror, 2(n-1) rounds with every pair meeting twice in
// opposite orientations.
func generateFullSchedule(teams []string, anchorIndex int) ([][]Match, error) {
	first, err := generateRounds(teams, anchorIndex)
	if err != nil {
		return nil, err
	}
	return append(first, swapHomeAway(first)...), nil
}

// roundTeamCount derives the team count from one round's entries.
func roundTeamCount(round []Match) int {
	n := 0
	for i := range round {
		if round[i].Bye != "" {
			n++
		} else {
			n += 2
		}
	}
	return n
}

// addMoreRounds extends a schedule by mirroring its most recent leg.
// Scores of the appended rounds start empty.
func addMoreRounds(existing [][]Match) ([][]Match, error) {
	if len(existing) == 0 {
		return nil, fmt.Errorf("%w: no rounds to extend", ErrValidation)
	}
	n := roundTeamCount(existing[0])
	legLen := n - 1
	if n%2 == 1 {
		// Odd team counts play n rounds per leg, one bye each.
		legLen = n
	}
	if legLen < 1 || len(existing) < legLen {
		return nil, fmt.Errorf("%w: schedule shorter than one leg", ErrValidation)
	}
	lastLeg := existing[len(existing)-legLen:]
	return append(existing, swapHomeAway(lastLeg)...), nil
}

// randomAnchor picks the fixed team when the caller does not.
func randomAnchor(n int) int {
	return rand.IntN(n)
}
