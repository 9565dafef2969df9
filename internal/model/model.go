// Package model holds the closed enumerations and row shapes shared by the
// upstream clients, the stores, and the pipelines.
package model

import "time"

// UserID, BeatmapID, ScoreID and ChannelID are stored as signed 64-bit
// integers (sqlite's largest native integer type) with a non-negative
// invariant enforced at the call sites that construct them.
type (
	UserID    int64
	BeatmapID int64
	ScoreID   int64
	ChannelID int64
)

// Gamemode is the closed enumeration of osu! rulesets.
type Gamemode int

const (
	Osu Gamemode = iota
	Taiko
	Catch
	Mania
)

// AllGamemodes lists the four modes in scrape order.
var AllGamemodes = [...]Gamemode{Osu, Taiko, Catch, Mania}

// String returns the lowercase API path segment for the mode.
func (m Gamemode) String() string {
	switch m {
	case Osu:
		return "osu"
	case Taiko:
		return "taiko"
	case Catch:
		return "fruits"
	case Mania:
		return "mania"
	default:
		panic("model: invalid gamemode")
	}
}

// StatisticsKey is the key osu!'s "statistics_rulesets" object uses for this
// mode. It equals the API path segment from String for every mode,
// including "fruits" for catch.
func (m Gamemode) StatisticsKey() string {
	switch m {
	case Catch:
		return "fruits"
	default:
		return m.String()
	}
}

// TrackCode is the numeric mode code osu!track's best-plays API expects.
func (m Gamemode) TrackCode() int {
	switch m {
	case Osu:
		return 0
	case Taiko:
		return 1
	case Catch:
		return 2
	case Mania:
		return 3
	default:
		panic("model: invalid gamemode")
	}
}

// RankingsTable returns the per-mode rankings table name. Table names come
// from this closed in-process enumeration, never from user input, so
// building SQL strings with them (never with bound values) is safe.
func (m Gamemode) RankingsTable() string {
	switch m {
	case Osu:
		return "OsuRankings"
	case Taiko:
		return "TaikoRankings"
	case Catch:
		return "CatchRankings"
	case Mania:
		return "ManiaRankings"
	default:
		panic("model: invalid gamemode")
	}
}

// TopPlaysTable returns the per-mode top-plays table name.
func (m Gamemode) TopPlaysTable() string {
	switch m {
	case Osu:
		return "OsuTopPlays"
	case Taiko:
		return "TaikoTopPlays"
	case Catch:
		return "CatchTopPlays"
	case Mania:
		return "ManiaTopPlays"
	default:
		panic("model: invalid gamemode")
	}
}

// RankRange is the closed tier partition of the top-10k.
type RankRange struct {
	Min, Max int64
}

var (
	FirstRange  = RankRange{Min: 1, Max: 100}
	SecondRange = RankRange{Min: 101, Max: 1000}
	ThirdRange  = RankRange{Min: 1001, Max: 10000}
)

// Display counts used by the (out-of-scope) rendering surface; kept here
// since the original carried them as shared constants.
const (
	NumDisplayUsersTop    = 15
	NumDisplayUsersBottom = 5
)

// GlobalCountry disables the country filter in store queries.
const GlobalCountry = "GLOBAL"

// LetterRank is the closed set of osu! score grades.
type LetterRank string

const (
	LetterRankXH LetterRank = "XH"
	LetterRankX  LetterRank = "X"
	LetterRankSH LetterRank = "SH"
	LetterRankS  LetterRank = "S"
	LetterRankA  LetterRank = "A"
	LetterRankB  LetterRank = "B"
	LetterRankC  LetterRank = "C"
	LetterRankD  LetterRank = "D"
)

// RankingsUser is one row of a per-mode rankings table.
type RankingsUser struct {
	UserID            UserID
	Username          string
	CountryCode       string
	AvatarURL         string
	PerformancePoints float64
	Accuracy          float64
	HoursPlayed       int64
	YesterdayRank     *int64
	CurrentRank       *int64
}

// Valid reports whether the row satisfies the spec.md §3 invariants.
func (u RankingsUser) Valid() bool {
	if u.YesterdayRank == nil && u.CurrentRank == nil {
		return false
	}
	if u.CurrentRank != nil && *u.CurrentRank == 0 {
		return false
	}
	if len(u.CountryCode) != 2 {
		return false
	}
	return true
}

// HitCounts carries the per-judgement hit totals for a score. Count50 is
// left at zero for the taiko mode, which has no 50-judgement, and is stored
// as that zero.
type HitCounts struct {
	Count300 int64
	Count100 int64
	Count50  int64
	CountMiss int64
}

// TopPlay is one row of a per-mode top-plays table; Rank is its primary key.
type TopPlay struct {
	Rank int64

	ScoreID           ScoreID
	Mods              string
	PerformancePoints float64
	Accuracy          float64
	TotalScore        int64
	CreatedAt         time.Time
	Combo             int64
	LetterRank        LetterRank
	Hits              HitCounts

	BeatmapID      BeatmapID
	StarRating     float64
	DifficultyName string
	Artist         string
	Title          string
	MapsetCreator  string
	MaxCombo       int64

	User RankingsUser
}

// Page is one osu! API page, which is one-indexed upstream (page+1).
type Page uint16

// SubscriptionPage is a closed enumeration of the pages a channel can
// subscribe to.
type SubscriptionPage string

const (
	PageRankings SubscriptionPage = "rankings"
	PageTopPlays SubscriptionPage = "topPlays"
)

// Subscription is a channel's subscription flag for a given page.
type Subscription struct {
	ChannelID ChannelID
	Page      SubscriptionPage
	Enabled   bool
}

// RankImprovement is a row returned by getTopRankImprovements /
// getBottomRankImprovements.
type RankImprovement struct {
	User                RankingsUser
	YesterdayRank       int64
	CurrentRank         int64
	RelativeImprovement float64
}
