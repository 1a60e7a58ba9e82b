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

// Player Lists
const (
	ListAvailable = "available"
	ListWaiting   = "waitingList"
)

// Session Document Keys
const (
	docKeyPlayers         = "players"
	docKeyTeams           = "teams"
	docKeyGames           = "games"
	docKeySettings        = "settings"
	docKeyDrawHistory     = "drawHistory"
	docKeyTeammateHistory = "teammateHistory"
	docKeyOwnership       = "ownership"
	docKeyNoShows         = "noShows"
)

// Knockout Round Labels
const (
	RoundQuarter = "quarter"
	RoundSemi    = "semi"
	RoundFinal   = "final"
	RoundWinner  = "winner"
	// Rounds of 16 and larger are labelled "round-of-N".
	roundOfFormat = "round-of-%d"
)

// Scoring
const (
	PointsWin        = 3
	PointsDraw       = 1
	PointsLoss       = 0
	PointsAppearance = 1

	// League standings bonus for the top three teams of a session.
	BonusFirst  = 3
	BonusSecond = 2
	BonusThird  = 1

	// Knockout points by deepest round reached.
	PointsRoundOfN = 1
	PointsQuarter  = 1
	PointsSemi     = 2
	PointsFinal    = 3
)

// ELO Model
const (
	EloBaseRating  = 1000.0
	EloKLeague     = 24.0
	EloKKnockout   = 15.0
	EloDecayFactor = 0.98

	// Weight of the global average in the ranking-point blend. A player
	// needs confidenceWeight appearances before their own record
	// outweighs the prior.
	confidenceWeight = 5.0
)

// Team Draw
const (
	drawIterations    = 25
	pairPenaltyWeight = 5
)

// Session Defaults
const (
	DefaultPlayerLimit = 15
	DefaultMaxTeams    = 4
	DefaultMinTeamSize = 3
	DefaultMaxTeamSize = 8
)

// Scorer key marking an own goal; never a valid player name.
const ownGoalKey = "__ownGoal__"

// Access Codes
const (
	accessCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	accessCodeGroups   = 3
	accessCodeGroupLen = 4
)

// Validation Limits
const (
	maxPlayerNameLen = 50
	maxScore         = 99
	maxLeagueNameLen = 63
	minLeagueNameLen = 3
)

// Team names are drawn as colour + noun pairs.
var teamColours = []string{
	"Red", "Blue", "Green", "Yellow", "Orange", "Purple",
	"Black", "White", "Claret", "Amber",
}

var teamNouns = []string{
	"Lions", "Tigers", "Wolves", "Eagles", "Sharks", "Panthers",
	"Hornets", "Falcons", "Bears", "Dragons", "Cobras", "Pumas",
	"Vipers", "Stallions", "Titans", "Rovers",
}

// Subdomains that can never be claimed as league ids.
var reservedLeagueNames = map[string]bool{
	"www":     true,
	"api":     true,
	"app":     true,
	"admin":   true,
	"mail":    true,
	"smtp":    true,
	"data":    true,
	"static":  true,
	"assets":  true,
	"cdn":     true,
	"status":  true,
	"test":    true,
	"dev":     true,
	"staging": true,
	"support": true,
	"help":    true,
	"blog":    true,
	"news":    true,
	"root":    true,
	"web":     true,
}
