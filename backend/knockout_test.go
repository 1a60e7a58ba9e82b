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
	"reflect"
	"testing"
)

func TestBracketOrder(t *testing.T) {
	cases := []struct {
		size int
		want []int
	}{
		{2, []int{1, 2}},
		{4, []int{1, 4, 2, 3}},
		{8, []int{1, 8, 4, 5, 2, 7, 3, 6}},
	}
	for _, c := range cases {
		if got := bracketOrder(c.size); !reflect.DeepEqual(got, c.want) {
			t.Errorf("bracketOrder(%d): expected %v, got %v", c.size, c.want, got)
		}
	}
	if got := bracketOrder(16)[:4]; !reflect.DeepEqual(got, []int{1, 16, 8, 9}) {
		t.Errorf("bracketOrder(16): expected prefix [1 16 8 9], got %v", got)
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := []struct{ n, want int }{
		{1, 1}, {2, 2}, {3, 4}, {5, 8}, {8, 8}, {9, 16},
	}
	for _, c := range cases {
		if got := nextPowerOfTwo(c.n); got != c.want {
			t.Errorf("nextPowerOfTwo(%d): expected %d, got %d", c.n, c.want, got)
		}
	}
}

func TestRoundLabel(t *testing.T) {
	cases := []struct {
		teams int
		want  string
	}{
		{2, RoundFinal},
		{4, RoundSemi},
		{8, RoundQuarter},
		{16, "round-of-16"},
		{32, "round-of-32"},
	}
	for _, c := range cases {
		if got := roundLabel(c.teams); got != c.want {
			t.Errorf("roundLabel(%d): expected %q, got %q", c.teams, c.want, got)
		}
	}
}

func TestGenerateKnockoutSixTeams(t *testing.T) {
	standings := []string{"S1", "S2", "S3", "S4", "S5", "S6"}
	entries, err := generateKnockout(standings)
	if err != nil {
		t.Fatalf("generateKnockout: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 bracket entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Round != RoundQuarter {
			t.Errorf("Entry %d: expected round %q, got %q", i, RoundQuarter, e.Round)
		}
	}
	if entries[0].Bye != "S1" || entries[2].Bye != "S2" {
		t.Errorf("Expected byes for the top two seeds, got %+v", entries)
	}
	if entries[1].Home != "S4" || entries[1].Away != "S5" {
		t.Errorf("Expected S4 v S5, got %s v %s", entries[1].Home, entries[1].Away)
	}
	if entries[3].Home != "S3" || entries[3].Away != "S6" {
		t.Errorf("Expected S3 v S6, got %s v %s", entries[3].Home, entries[3].Away)
	}
}

func TestGenerateKnockoutFourTeams(t *testing.T) {
	entries, err := generateKnockout([]string{"S1", "S2", "S3", "S4"})
	if err != nil {
		t.Fatalf("generateKnockout: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 semi-finals, got %d", len(entries))
	}
	if entries[0].Home != "S1" || entries[0].Away != "S4" {
		t.Errorf("Expected S1 v S4, got %s v %s", entries[0].Home, entries[0].Away)
	}
	if entries[1].Home != "S2" || entries[1].Away != "S3" {
		t.Errorf("Expected S2 v S3, got %s v %s", entries[1].Home, entries[1].Away)
	}
	for i, e := range entries {
		if e.Round != RoundSemi {
			t.Errorf("Entry %d: expected round %q, got %q", i, RoundSemi, e.Round)
		}
	}
}

func TestGenerateKnockoutTooFew(t *testing.T) {
	if _, err := generateKnockout([]string{"S1"}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestCurrentRound(t *testing.T) {
	entries := []Match{
		{Home: "A", Away: "D", Round: RoundSemi},
		{Home: "B", Away: "C", Round: RoundSemi},
		{Home: "A", Away: "C", Round: RoundFinal},
	}
	round := currentRound(entries)
	if len(round) != 1 || round[0].Round != RoundFinal {
		t.Errorf("Expected the final only, got %+v", round)
	}
	if got := currentRound(nil); got != nil {
		t.Errorf("Expected nil for empty bracket, got %+v", got)
	}
}

func TestAdvanceKnockout(t *testing.T) {
	entries := []Match{
		{Home: "A", Away: "D", Round: RoundSemi},
		{Home: "B", Away: "C", Round: RoundSemi},
	}

	t.Run("undecided", func(t *testing.T) {
		if got := advanceKnockout(entries); len(got) != 2 {
			t.Errorf("Expected no advance without results, got %d entries", len(got))
		}
	})

	entries[0].HomeScore, entries[0].AwayScore = intPtr(2), intPtr(1)
	entries[1].HomeScore, entries[1].AwayScore = intPtr(0), intPtr(1)

	t.Run("semis-to-final", func(t *testing.T) {
		entries = advanceKnockout(entries)
		if len(entries) != 3 {
			t.Fatalf("Expected 3 entries after advancing, got %d", len(entries))
		}
		final := entries[2]
		if final.Round != RoundFinal || final.Home != "A" || final.Away != "C" {
			t.Errorf("Expected final A v C, got %+v", final)
		}
	})

	t.Run("draw-blocks", func(t *testing.T) {
		entries[2].HomeScore, entries[2].AwayScore = intPtr(1), intPtr(1)
		if got := advanceKnockout(entries); len(got) != 3 {
			t.Errorf("Expected a drawn final to block, got %d entries", len(got))
		}
	})

	t.Run("final-to-winner", func(t *testing.T) {
		entries[2].HomeScore, entries[2].AwayScore = intPtr(3), intPtr(0)
		entries = advanceKnockout(entries)
		if len(entries) != 4 {
			t.Fatalf("Expected 4 entries after the final, got %d", len(entries))
		}
		last := entries[3]
		if last.Round != RoundWinner || last.Home != "A" {
			t.Errorf("Expected winner entry for A, got %+v", last)
		}
	})

	t.Run("finished", func(t *testing.T) {
		if got := advanceKnockout(entries); len(got) != 4 {
			t.Errorf("Expected a finished bracket unchanged, got %d entries", len(got))
		}
	})
}

func TestAdvanceKnockoutWithByes(t *testing.T) {
	entries, err := generateKnockout([]string{"S1", "S2", "S3", "S4", "S5", "S6"})
	if err != nil {
		t.Fatalf("generateKnockout: %v", err)
	}
	entries[1].HomeScore, entries[1].AwayScore = intPtr(1), intPtr(0) // S4 beats S5
	entries[3].HomeScore, entries[3].AwayScore = intPtr(0), intPtr(2) // S6 beats S3
	entries = advanceKnockout(entries)
	if len(entries) != 6 {
		t.Fatalf("Expected 6 entries after the quarters, got %d", len(entries))
	}
	semi1, semi2 := entries[4], entries[5]
	if semi1.Round != RoundSemi || semi1.Home != "S1" || semi1.Away != "S4" {
		t.Errorf("Expected semi S1 v S4, got %+v", semi1)
	}
	if semi2.Round != RoundSemi || semi2.Home != "S2" || semi2.Away != "S6" {
		t.Errorf("Expected semi S2 v S6, got %+v", semi2)
	}
}
