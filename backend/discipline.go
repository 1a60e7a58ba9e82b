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
	"sort"
)

// NoShowEntry is one discipline ledger line: a player marked as not
// turning up for a session.
type NoShowEntry struct {
	Player     string `json:"player"`
	Date       string `json:"date"`
	RecordedBy string `json:"recordedBy"`
	RecordedAt string `json:"recordedAt"`
}

// appendNoShow appends an entry to the ledger's noShows list. Callers
// removing a player from a session hold the session and discipline
// mutexes as a pair, so this op never locks on its own.
func appendNoShow(entry NoShowEntry) DocOp {
	return func(doc map[string]json.RawMessage) error {
		var entries []NoShowEntry
		if raw, ok := doc[docKeyNoShows]; ok {
			if err := json.Unmarshal(raw, &entries); err != nil {
				return fmt.Errorf("discipline ledger: %w: %v", ErrParse, err)
			}
		}
		entries = append(entries, entry)
		return SetKey(docKeyNoShows, entries)(doc)
	}
}

// DisciplineSummary aggregates a player's no-show record.
type DisciplineSummary struct {
	Player  string        `json:"player"`
	Count   int           `json:"count"`
	Entries []NoShowEntry `json:"entries"`
}

// disciplineSummary reads the league ledger and aggregates it per
// player, worst offenders first.
func disciplineSummary(store *DocStore, leagueID string) ([]DisciplineSummary, error) {
	var entries []NoShowEntry
	err := store.GetKey(disciplinePath(leagueID), docKeyNoShows, &entries)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	byPlayer := make(map[string][]NoShowEntry)
	for _, e := range entries {
		byPlayer[e.Player] = append(byPlayer[e.Player], e)
	}
	summary := make([]DisciplineSummary, 0, len(byPlayer))
	for player, list := range byPlayer {
		summary = append(summary, DisciplineSummary{
			Player:  player,
			Count:   len(list),
			Entries: list,
		})
	}
	sort.Slice(summary, func(i, j int) bool {
		if summary[i].Count != summary[j].Count {
			return summary[i].Count > summary[j].Count
		}
		return summary[i].Player < summary[j].Player
	})
	return summary, nil
}
