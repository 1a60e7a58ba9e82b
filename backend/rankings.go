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
	"log"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// aggregationWorkers bounds the year=all fan-out.
const aggregationWorkers = 8

// EloState is a player's rating state. LastDecayAt is the date decay
// was last applied up to; it resets every recompute and is never
// carried across years.
type EloState struct {
	Rating      float64 `json:"rating"`
	GamesPlayed int     `json:"gamesPlayed"`
	LastDecayAt string  `json:"lastDecayAt,omitempty"`
}

// DayBreakdown itemizes one session's contribution to a player.
type DayBreakdown struct {
	MatchPoints      int     `json:"matchPoints"`
	BonusPoints      int     `json:"bonusPoints"`
	AppearancePoints int     `json:"appearancePoints"`
	KnockoutPoints   int     `json:"knockoutPoints"`
	EloBefore        float64 `json:"eloBefore"`
	EloAfter         float64 `json:"eloAfter"`
	Team             string  `json:"team"`
	Position         int     `json:"position"`
}

// PlayerRanking is one player's yearly record.
type PlayerRanking struct {
	Points                   int                      `json:"points"`
	Appearances              int                      `json:"appearances"`
	RankingPoints            float64                  `json:"rankingPoints"`
	RawAverage               float64                  `json:"rawAverage"`
	WeightedAverage          float64                  `json:"weightedAverage"`
	HasFullConfidence        bool                     `json:"hasFullConfidence"`
	GamesUntilFullConfidence int                      `json:"gamesUntilFullConfidence,omitempty"`
	Rank                     int                      `json:"rank"`
	RankMovement             int                      `json:"rankMovement"`
	LeagueWins               int                      `json:"leagueWins"`
	CupWins                  int                      `json:"cupWins"`
	Elo                      EloState                 `json:"elo"`
	RankingDetail            map[string]*DayBreakdown `json:"rankingDetail,omitempty"`
}

// RankingMetadata describes the blend used for ranking points.
type RankingMetadata struct {
	GlobalAverage       float64 `json:"globalAverage"`
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
}

// RankingFile is the yearly ranking document.
type RankingFile struct {
	Players         map[string]*PlayerRanking `json:"players"`
	CalculatedDates []string                  `json:"calculatedDates"`
	RankingMetadata RankingMetadata           `json:"rankingMetadata"`
	LastUpdated     string                    `json:"lastUpdated"`
}

// RankingEngine recomputes yearly rankings from the session archive
// and serves the aggregate views built on them. year=all scans fan
// out over a bounded worker pool.
type RankingEngine struct {
	store *DocStore
	pool  *ants.Pool
}

func NewRankingEngine(store *DocStore) (*RankingEngine, error) {
	pool, err := ants.NewPool(aggregationWorkers)
	if err != nil {
		return nil, fmt.Errorf("ants.NewPool: %w", err)
	}
	return &RankingEngine{store: store, pool: pool}, nil
}

// Close releases the worker pool.
func (e *RankingEngine) Close() {
	e.pool.Release()
}

// resolveSessionSettings overlays league defaults and the session's
// own settings without touching the store again.
func resolveSessionSettings(league *League, s *Session) Settings {
	return defaultSettings().apply(league.Settings).apply(s.Settings)
}

// daysBetween returns whole days from date a to date b.
func daysBetween(a, b string) int {
	ta, err1 := time.Parse("2006-01-02", a)
	tb, err2 := time.Parse("2006-01-02", b)
	if err1 != nil || err2 != nil {
		return 0
	}
	return int(tb.Sub(ta).Hours() / 24)
}

// applyDecay pulls a rating toward the base for every whole week
// missed since the player's last decay point. A weekly cadence never
// decays: the first seven days are free.
func applyDecay(st *PlayerRanking, date string, settings Settings) {
	if st.Elo.LastDecayAt == "" {
		st.Elo.LastDecayAt = date
		return
	}
	weeks := daysBetween(st.Elo.LastDecayAt, date)/7 - 1
	if weeks > 0 {
		delta := st.Elo.Rating - settings.EloStart
		st.Elo.Rating = settings.EloStart + delta*math.Pow(settings.EloDecay, float64(weeks))
	}
	st.Elo.LastDecayAt = date
}

// expectedScore is the standard ELO expectation of self against an
// opposing average.
func expectedScore(self, oppAvg float64) float64 {
	return 1 / (1 + math.Pow(10, (oppAvg-self)/400))
}

func round1dp(x float64) float64 {
	return math.Round(x*10) / 10
}

// Recompute rebuilds the ranking file for one year from scratch: the
// year's sessions replayed in date order on top of the previous year's
// ELO carry-over. The result is a pure function of those inputs, so
// recomputing is always safe.
func (e *RankingEngine) Recompute(league *League, year string, now time.Time) (*RankingFile, error) {
	if !isValidYear(year) {
		return nil, fmt.Errorf("%w: invalid year %q", ErrValidation, year)
	}
	start := time.Now()
	path := rankingsPath(league.ID, year)
	defer e.store.Lock(path)()

	// Prior snapshot of the same year feeds rank movement.
	var prior *RankingFile
	if err := e.store.loadLocked(path, &prior); err != nil && !isNotFound(err) {
		return nil, err
	}

	leagueSettings := defaultSettings().apply(league.Settings)
	players := make(map[string]*PlayerRanking)

	// Carry rating and games played from the previous year; nothing
	// else survives the rollover.
	prevYear := strconv.Itoa(mustAtoi(year) - 1)
	var carried RankingFile
	if err := e.store.Load(rankingsPath(league.ID, prevYear), &carried); err == nil {
		for name, p := range carried.Players {
			players[name] = &PlayerRanking{
				Elo: EloState{
					Rating:      p.Elo.Rating,
					GamesPlayed: p.Elo.GamesPlayed,
				},
			}
		}
	} else if !isNotFound(err) {
		return nil, err
	}

	ensure := func(name string) *PlayerRanking {
		if p, ok := players[name]; ok {
			return p
		}
		p := &PlayerRanking{Elo: EloState{Rating: leagueSettings.EloStart}}
		players[name] = p
		return p
	}

	dates, err := e.store.ListSessionDates(league.ID)
	if err != nil {
		return nil, err
	}
	var calculated []string
	for _, date := range dates {
		if !strings.HasPrefix(date, year+"-") {
			continue
		}
		doc, err := e.store.Get(sessionPath(league.ID, date))
		if err != nil {
			return nil, err
		}
		session, err := decodeSession(doc)
		if err != nil {
			return nil, err
		}
		e.replaySession(league, session, date, ensure)
		calculated = append(calculated, date)
	}

	// Close out decay against the year's final session so absences at
	// the end of the year are not free.
	if len(calculated) > 0 {
		final := calculated[len(calculated)-1]
		for _, p := range players {
			applyDecay(p, final, leagueSettings)
		}
	}

	// Hybrid rating: a player's own average blended with the league
	// average, weighted toward the league until enough appearances.
	totalPoints, totalApps := 0, 0
	for _, p := range players {
		totalPoints += p.Points
		totalApps += p.Appearances
	}
	global := 0.0
	if totalApps > 0 {
		global = float64(totalPoints) / float64(totalApps)
	}
	c := leagueSettings.ConfidenceThreshold
	for _, p := range players {
		if p.Appearances > 0 {
			p.RawAverage = float64(p.Points) / float64(p.Appearances)
		}
		p.WeightedAverage = (float64(p.Points) + c*global) / (float64(p.Appearances) + c)
		p.RankingPoints = round1dp(p.WeightedAverage)
		p.HasFullConfidence = float64(p.Appearances) >= c
		if !p.HasFullConfidence {
			p.GamesUntilFullConfidence = int(math.Ceil(c)) - p.Appearances
		}
	}

	names := make([]string, 0, len(players))
	for name := range players {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := players[names[i]], players[names[j]]
		if a.RankingPoints != b.RankingPoints {
			return a.RankingPoints > b.RankingPoints
		}
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.Appearances != b.Appearances {
			return a.Appearances > b.Appearances
		}
		return names[i] < names[j]
	})
	for rank, name := range names {
		p := players[name]
		p.Rank = rank + 1
		if prior != nil {
			if prev, ok := prior.Players[name]; ok && prev.Rank > 0 {
				p.RankMovement = prev.Rank - p.Rank
			}
		}
	}

	file := &RankingFile{
		Players:         players,
		CalculatedDates: calculated,
		RankingMetadata: RankingMetadata{
			GlobalAverage:       global,
			ConfidenceThreshold: c,
		},
		LastUpdated: now.UTC().Format(time.RFC3339),
	}
	if err := e.store.saveLocked(path, file); err != nil {
		return nil, err
	}
	log.Printf("rankings: recompute %s/%s replayed %d sessions in %v", league.ID, year, len(calculated), time.Since(start))
	return file, nil
}

// replaySession folds one session into the running player state.
func (e *RankingEngine) replaySession(league *League, s *Session, date string, ensure func(string) *PlayerRanking) {
	settings := resolveSessionSettings(league, s)

	// Final team rosters drive everything; unassigned players earn
	// nothing.
	teamOf := make(map[string]string)
	members := make(map[string][]string)
	for ti := range s.Teams {
		team := &s.Teams[ti]
		for _, p := range team.Players {
			if p != nil {
				teamOf[*p] = team.Name
				members[team.Name] = append(members[team.Name], *p)
			}
		}
	}
	if len(teamOf) == 0 {
		return
	}

	breakdown := make(map[string]*DayBreakdown)
	for player, team := range teamOf {
		st := ensure(player)
		applyDecay(st, date, settings)
		b := &DayBreakdown{Team: team, EloBefore: st.Elo.Rating}
		breakdown[player] = b
		b.AppearancePoints = PointsAppearance
		st.Points += PointsAppearance
		st.Appearances++
	}

	updateElo := func(m *Match, k float64) {
		if !m.played() {
			return
		}
		home, away := members[m.Home], members[m.Away]
		if len(home) == 0 || len(away) == 0 {
			return
		}
		homeAvg := teamAverage(home, ensure)
		awayAvg := teamAverage(away, ensure)
		var sHome float64
		switch {
		case *m.HomeScore > *m.AwayScore:
			sHome = 1
		case *m.HomeScore < *m.AwayScore:
			sHome = 0
		default:
			sHome = 0.5
		}
		for _, p := range home {
			st := ensure(p)
			st.Elo.Rating += k * (sHome - expectedScore(st.Elo.Rating, awayAvg))
			st.Elo.GamesPlayed++
		}
		for _, p := range away {
			st := ensure(p)
			st.Elo.Rating += k * ((1 - sHome) - expectedScore(st.Elo.Rating, homeAvg))
			st.Elo.GamesPlayed++
		}
	}

	matchPoints := func(m *Match) {
		if !m.played() {
			return
		}
		award := func(team string, pts int) {
			for _, p := range members[team] {
				st := ensure(p)
				st.Points += pts
				if b := breakdown[p]; b != nil {
					b.MatchPoints += pts
				}
			}
		}
		switch {
		case *m.HomeScore > *m.AwayScore:
			award(m.Home, PointsWin)
		case *m.HomeScore < *m.AwayScore:
			award(m.Away, PointsWin)
		default:
			award(m.Home, PointsDraw)
			award(m.Away, PointsDraw)
		}
	}

	played := 0
	for _, round := range s.Games.Rounds {
		for i := range round {
			m := &round[i]
			if m.played() {
				played++
			}
			updateElo(m, settings.EloK)
			matchPoints(m)
		}
	}

	// Standings bonus for the top three, plus the league win tally.
	if played > 0 {
		table := computeStandings(teamNames(s.Teams), s.Games.Rounds)
		position := make(map[string]int, len(table))
		for i := range table {
			position[table[i].Team] = i + 1
		}
		for player, team := range teamOf {
			if b := breakdown[player]; b != nil {
				b.Position = position[team]
			}
		}
		bonus := []int{BonusFirst, BonusSecond, BonusThird}
		for i := 0; i < len(table) && i < len(bonus); i++ {
			for _, p := range members[table[i].Team] {
				st := ensure(p)
				st.Points += bonus[i]
				if b := breakdown[p]; b != nil {
					b.BonusPoints += bonus[i]
				}
				if i == 0 {
					st.LeagueWins++
				}
			}
		}
	}

	// Knockout: ELO with the cup K-factor, points per won match by
	// round depth, cup win on the terminal entry.
	for i := range s.Games.Knockout {
		m := &s.Games.Knockout[i]
		if m.Round == RoundWinner {
			for _, p := range members[m.Home] {
				ensure(p).CupWins++
			}
			continue
		}
		updateElo(m, settings.EloKnockoutK)
		winner := m.winner()
		if winner == "" || m.Bye != "" {
			continue
		}
		pts := knockoutPoints(m.Round)
		for _, p := range members[winner] {
			st := ensure(p)
			st.Points += pts
			if b := breakdown[p]; b != nil {
				b.KnockoutPoints += pts
			}
		}
	}

	for player, b := range breakdown {
		st := ensure(player)
		b.EloAfter = st.Elo.Rating
		if st.RankingDetail == nil {
			st.RankingDetail = make(map[string]*DayBreakdown)
		}
		st.RankingDetail[date] = b
	}
}

func teamAverage(names []string, ensure func(string) *PlayerRanking) float64 {
	sum := 0.0
	for _, n := range names {
		sum += ensure(n).Elo.Rating
	}
	return sum / float64(len(names))
}

// knockoutPoints maps a round label to the points for winning at that
// depth.
func knockoutPoints(round string) int {
	switch round {
	case RoundFinal:
		return PointsFinal
	case RoundSemi:
		return PointsSemi
	case RoundQuarter:
		return PointsQuarter
	default:
		return PointsRoundOfN
	}
}

func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Rankings returns the stored ranking file for a year.
func (e *RankingEngine) Rankings(league *League, year string) (*RankingFile, error) {
	if !isValidYear(year) {
		return nil, fmt.Errorf("%w: invalid year %q", ErrValidation, year)
	}
	var file RankingFile
	if err := e.store.Load(rankingsPath(league.ID, year), &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// PlayerDetail returns one player's entry with the breakdown trimmed
// to the most recent limit dates. limit <= 0 keeps everything.
func (e *RankingEngine) PlayerDetail(league *League, player, year string, limit int) (*PlayerRanking, error) {
	file, err := e.Rankings(league, year)
	if err != nil {
		return nil, err
	}
	entry, ok := file.Players[player]
	if !ok {
		return nil, fmt.Errorf("%w: player %q", ErrNotFound, player)
	}
	if limit <= 0 || len(entry.RankingDetail) <= limit {
		return entry, nil
	}
	trimmed := *entry
	trimmed.RankingDetail = make(map[string]*DayBreakdown, limit)
	dates := make([]string, 0, len(entry.RankingDetail))
	for d := range entry.RankingDetail {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	for _, d := range dates[len(dates)-limit:] {
		trimmed.RankingDetail[d] = entry.RankingDetail[d]
	}
	return &trimmed, nil
}

// EloSnapshot returns the current ratings of a year, for seeding team
// draws. Missing file means everyone is unrated.
func (e *RankingEngine) EloSnapshot(league *League, year string) (map[string]float64, error) {
	file, err := e.Rankings(league, year)
	if err != nil {
		if isNotFound(err) {
			return map[string]float64{}, nil
		}
		return nil, err
	}
	snapshot := make(map[string]float64, len(file.Players))
	for name, p := range file.Players {
		snapshot[name] = p.Elo.Rating
	}
	return snapshot, nil
}

var rankingFileRegex = regexp.MustCompile(`^rankings-(\d{4})\.json$`)

// listRankingYears returns the years with a ranking file, ascending.
func (e *RankingEngine) listRankingYears(leagueID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(e.store.DataDir, leagueID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("os.ReadDir: %w", err)
	}
	var years []string
	for _, entry := range entries {
		if m := rankingFileRegex.FindStringSubmatch(entry.Name()); m != nil {
			years = append(years, m[1])
		}
	}
	sort.Strings(years)
	return years, nil
}

// ChampionEntry is one year's top ranked player. Ties share the year.
type ChampionEntry struct {
	Year          string  `json:"year"`
	Player        string  `json:"player"`
	RankingPoints float64 `json:"rankingPoints"`
	LeagueWins    int     `json:"leagueWins"`
	CupWins       int     `json:"cupWins"`
}

// Champions lists the rank-one players of a year, or of every year
// when year is "all", concatenated ascending with ties kept.
func (e *RankingEngine) Champions(league *League, year string) ([]ChampionEntry, error) {
	if year != "all" {
		return e.championsOfYear(league, year)
	}
	years, err := e.listRankingYears(league.ID)
	if err != nil {
		return nil, err
	}
	byYear := make(map[string][]ChampionEntry, len(years))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, y := range years {
		y := y
		wg.Add(1)
		job := func() {
			defer wg.Done()
			entries, err := e.championsOfYear(league, y)
			if err != nil {
				return
			}
			mu.Lock()
			byYear[y] = entries
			mu.Unlock()
		}
		if err := e.pool.Submit(job); err != nil {
			job()
		}
	}
	wg.Wait()
	var all []ChampionEntry
	for _, y := range years {
		all = append(all, byYear[y]...)
	}
	return all, nil
}

func (e *RankingEngine) championsOfYear(league *League, year string) ([]ChampionEntry, error) {
	file, err := e.Rankings(league, year)
	if err != nil {
		return nil, err
	}
	var entries []ChampionEntry
	for name, p := range file.Players {
		if p.Rank == 1 {
			entries = append(entries, ChampionEntry{
				Year:          year,
				Player:        name,
				RankingPoints: p.RankingPoints,
				LeagueWins:    p.LeagueWins,
				CupWins:       p.CupWins,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Player < entries[j].Player })
	return entries, nil
}

// GoldenBootEntry is a player's goal tally.
type GoldenBootEntry struct {
	Player string `json:"player"`
	Goals  int    `json:"goals"`
}

// GoldenBoot sums recorded scorers over a year's sessions, or over the
// whole archive when year is "all". Own goals count for nobody.
func (e *RankingEngine) GoldenBoot(league *League, year string) ([]GoldenBootEntry, error) {
	dates, err := e.store.ListSessionDates(league.ID)
	if err != nil {
		return nil, err
	}
	if year != "all" {
		if !isValidYear(year) {
			return nil, fmt.Errorf("%w: invalid year %q", ErrValidation, year)
		}
		filtered := dates[:0]
		for _, d := range dates {
			if strings.HasPrefix(d, year+"-") {
				filtered = append(filtered, d)
			}
		}
		dates = filtered
	}

	goals := make(map[string]int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, date := range dates {
		date := date
		wg.Add(1)
		job := func() {
			defer wg.Done()
			tally := e.sessionGoals(league.ID, date)
			if len(tally) == 0 {
				return
			}
			mu.Lock()
			for p, n := range tally {
				goals[p] += n
			}
			mu.Unlock()
		}
		if err := e.pool.Submit(job); err != nil {
			job()
		}
	}
	wg.Wait()

	entries := make([]GoldenBootEntry, 0, len(goals))
	for p, n := range goals {
		entries = append(entries, GoldenBootEntry{Player: p, Goals: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Goals != entries[j].Goals {
			return entries[i].Goals > entries[j].Goals
		}
		return entries[i].Player < entries[j].Player
	})
	return entries, nil
}

// sessionGoals tallies the named scorers of one session.
func (e *RankingEngine) sessionGoals(leagueID, date string) map[string]int {
	var games Games
	if err := e.store.GetKey(sessionPath(leagueID, date), docKeyGames, &games); err != nil {
		return nil
	}
	tally := make(map[string]int)
	add := func(t ScorerTally) {
		for scorer, n := range t {
			if scorer.OwnGoal {
				continue
			}
			tally[scorer.Name] += n
		}
	}
	for _, round := range games.Rounds {
		for i := range round {
			add(round[i].HomeScorers)
			add(round[i].AwayScorers)
		}
	}
	for i := range games.Knockout {
		add(games.Knockout[i].HomeScorers)
		add(games.Knockout[i].AwayScorers)
	}
	return tally
}

// YearReview is the season wrap-up summary.
type YearReview struct {
	Year            string           `json:"year"`
	Sessions        int              `json:"sessions"`
	Matches         int              `json:"matches"`
	Goals           int              `json:"goals"`
	Players         int              `json:"players"`
	Champion        *ChampionEntry   `json:"champion,omitempty"`
	TopScorer       *GoldenBootEntry `json:"topScorer,omitempty"`
	MostAppearances string           `json:"mostAppearances,omitempty"`
}

// YearInReview aggregates one year's activity into a summary.
func (e *RankingEngine) YearInReview(league *League, year string) (*YearReview, error) {
	if !isValidYear(year) {
		return nil, fmt.Errorf("%w: invalid year %q", ErrValidation, year)
	}
	dates, err := e.store.ListSessionDates(league.ID)
	if err != nil {
		return nil, err
	}
	review := &YearReview{Year: year}
	for _, date := range dates {
		if !strings.HasPrefix(date, year+"-") {
			continue
		}
		review.Sessions++
		var games Games
		if err := e.store.GetKey(sessionPath(league.ID, date), docKeyGames, &games); err != nil {
			continue
		}
		count := func(ms []Match) {
			for i := range ms {
				if ms[i].played() {
					review.Matches++
					review.Goals += *ms[i].HomeScore + *ms[i].AwayScore
				}
			}
		}
		for _, round := range games.Rounds {
			count(round)
		}
		count(games.Knockout)
	}
	if review.Sessions == 0 {
		return nil, fmt.Errorf("%w: no sessions in %s", ErrNotFound, year)
	}

	if file, err := e.Rankings(league, year); err == nil {
		review.Players = len(file.Players)
		apps := 0
		for name, p := range file.Players {
			if p.Rank == 1 && review.Champion == nil {
				review.Champion = &ChampionEntry{
					Year:          year,
					Player:        name,
					RankingPoints: p.RankingPoints,
					LeagueWins:    p.LeagueWins,
					CupWins:       p.CupWins,
				}
			}
			if p.Appearances > apps || (p.Appearances == apps && name < review.MostAppearances) {
				apps = p.Appearances
				review.MostAppearances = name
			}
		}
	}
	if boot, err := e.GoldenBoot(league, year); err == nil && len(boot) > 0 {
		review.TopScorer = &boot[0]
	}
	return review, nil
}
