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

import "fmt"

// bracketOrder returns the 1-based seed sequence of a bracket: seeds
// in consecutive pairs, arranged so the top seeds can only meet in the
// late rounds. order(8) = [1 8 4 5 2 7 3 6].
func bracketOrder(size int) []int {
	order := []int{1, 2}
	for len(order) < size {
		m := len(order) * 2
		next := make([]int, 0, m)
		for _, x := range order {
			next = append(next, x, m+1-x)
		}
		order = next
	}
	return order
}

func nextPowerOfTwo(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// roundLabel names a round by the number of teams entering it.
func roundLabel(teams int) string {
	switch teams {
	case 2:
		return RoundFinal
	case 4:
		return RoundSemi
	case 8:
		return RoundQuarter
	default:
		return fmt.Sprintf(roundOfFormat, teams)
	}
}

// generateKnockout seeds a single-elimination bracket from ordered
// standings. The bracket is padded to a power of two; missing seeds
// become byes advancing the present team.
func generateKnockout(standings []string) ([]Match, error) {
	n := len(standings)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least two teams for a knockout", ErrValidation)
	}
	size := nextPowerOfTwo(n)
	label := roundLabel(size)
	order := bracketOrder(size)
	entries := make([]Match, 0, size/2)
	for i := 0; i < size; i += 2 {
		a, b := order[i], order[i+1]
		if b > n {
			entries = append(entries, Match{Bye: standings[a-1], Round: label})
			continue
		}
		entries = append(entries, Match{
			Home:  standings[a-1],
			Away:  standings[b-1],
			Round: label,
		})
	}
	return entries, nil
}

// currentRound returns the entries of the latest round in the flat
// bracket list.
func currentRound(entries []Match) []Match {
	if len(entries) == 0 {
		return nil
	}
	label := entries[len(entries)-1].Round
	start := len(entries)
	for start > 0 && entries[start-1].Round == label {
		start--
	}
	return entries[start:]
}

// advanceKnockout appends the next round once every match of the
// current one is decided: winners paired in bracket position order,
// and after the final a terminal winner entry naming the champion.
// Undecided rounds and finished brackets come back unchanged.
func advanceKnockout(entries []Match) []Match {
	if len(entries) == 0 {
		return entries
	}
	round := currentRound(entries)
	if round[0].Round == RoundWinner {
		return entries
	}
	winners := make([]string, 0, len(round))
	for i := range round {
		w := round[i].winner()
		if w == "" {
			return entries
		}
		winners = append(winners, w)
	}
	if len(winners) == 1 {
		return append(entries, Match{Round: RoundWinner, Home: winners[0]})
	}
	label := roundLabel(len(winners))
	for i := 0; i < len(winners); i += 2 {
		entries = append(entries, Match{
			Home:  winners[i],
			Away:  winners[i+1],
			Round: label,
		})
	}
	return entries
}
