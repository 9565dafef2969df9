// Package topplays implements the TopPlaysPipeline from spec.md §4.8: the
// daily "best plays of the day" digest, cross-referencing osu!track's
// best-plays feed against the osu! API to recover full score/beatmap/user
// detail, grounded on original_source/src/job/GetTopPlays.cpp.
package topplays

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbalsdon/daily-dosu-go/internal/memo"
	"github.com/mbalsdon/daily-dosu-go/internal/model"
	"github.com/mbalsdon/daily-dosu-go/internal/store"
	"github.com/mbalsdon/daily-dosu-go/internal/workerpool"
)

const (
	numTopPlays = 100
	batchMaxIDs = 50

	userMemoKind    = "user"
	beatmapMemoKind = "beatmap"
	memoCapacity    = 4 * numTopPlays
)

// TrackClient is the subset of osutrack.Client the pipeline needs.
type TrackClient interface {
	GetBestPlays(ctx context.Context, mode model.Gamemode, from, to time.Time, limit int) (json.RawMessage, error)
}

// ApiClient is the subset of osuapi.Client the pipeline needs.
type ApiClient interface {
	GetUserBeatmapScores(ctx context.Context, mode model.Gamemode, userID model.UserID, beatmapID model.BeatmapID) (json.RawMessage, bool, error)
	GetUsers(ctx context.Context, userIDs []model.UserID) (json.RawMessage, bool, error)
	GetBeatmaps(ctx context.Context, beatmapIDs []model.BeatmapID) (json.RawMessage, bool, error)
}

// Pipeline runs the daily top-plays digest against store, obtaining one
// upstream client pair per worker via trackFor/apiFor (spec.md §5).
type Pipeline struct {
	store      *store.TopPlaysStore
	trackFor   func() TrackClient
	apiFor     func() ApiClient
	numWorkers int
	now        func() time.Time
	log        zerolog.Logger
}

// New builds a Pipeline. now defaults to time.Now if nil; tests pass a
// fixed clock for determinism.
func New(topPlaysStore *store.TopPlaysStore, trackFor func() TrackClient, apiFor func() ApiClient, numWorkers int, now func() time.Time, log zerolog.Logger) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{store: topPlaysStore, trackFor: trackFor, apiFor: apiFor, numWorkers: numWorkers, now: now, log: log}
}

type bestPlaysResponse []bestPlay

type bestPlay struct {
	PP        float64         `json:"pp"`
	Score     int64           `json:"score"`
	ScoreTime string          `json:"score_time"`
	Rank      string          `json:"rank"`
	BeatmapID model.BeatmapID `json:"beatmap_id"`
	User      model.UserID    `json:"user"`
}

type userBeatmapScoresResponse struct {
	Scores []userBeatmapScore `json:"scores"`
}

type userBeatmapScore struct {
	ID         model.ScoreID   `json:"id"`
	CreatedAt  string          `json:"created_at"`
	Accuracy   float64         `json:"accuracy"`
	Mods       []string        `json:"mods"`
	MaxCombo   int64           `json:"max_combo"`
	Statistics scoreStatistics `json:"statistics"`
}

type scoreStatistics struct {
	Count300  int64 `json:"count_300"`
	Count100  int64 `json:"count_100"`
	Count50   int64 `json:"count_50"`
	CountMiss int64 `json:"count_miss"`
}

type usersResponse struct {
	Users []userObject `json:"users"`
}

type userObject struct {
	ID                 model.UserID                 `json:"id"`
	Username           string                       `json:"username"`
	CountryCode        string                       `json:"country_code"`
	AvatarURL          string                       `json:"avatar_url"`
	StatisticsRulesets map[string]rulesetStatistics `json:"statistics_rulesets"`
}

// rulesetStatistics is the per-mode slice of a user's "statistics_rulesets"
// object.
type rulesetStatistics struct {
	PP          float64 `json:"pp"`
	HitAccuracy float64 `json:"hit_accuracy"`
	PlayTime    int64   `json:"play_time"`
	GlobalRank  int64   `json:"global_rank"`
}

type beatmapsResponse struct {
	Beatmaps []beatmapObject `json:"beatmaps"`
}

type beatmapObject struct {
	ID               model.BeatmapID `json:"id"`
	MaxCombo         int64           `json:"max_combo"`
	Version          string          `json:"version"`
	DifficultyRating float64         `json:"difficulty_rating"`
	Beatmapset       struct {
		Artist  string `json:"artist"`
		Title   string `json:"title"`
		Creator string `json:"creator"`
	} `json:"beatmapset"`
}

// enrichCache is the per-run memoization scope: a user or beatmap looked up
// in one mode's chunk is reused if it's looked up again later in the same
// run, instead of re-querying the osu! API.
type enrichCache struct {
	users    *memo.Cache[userObject]
	beatmaps *memo.Cache[beatmapObject]
}

func newEnrichCache() (*enrichCache, error) {
	users, err := memo.New[userObject](memoCapacity)
	if err != nil {
		return nil, fmt.Errorf("topplays: build user memo cache: %w", err)
	}
	beatmaps, err := memo.New[beatmapObject](memoCapacity)
	if err != nil {
		return nil, fmt.Errorf("topplays: build beatmap memo cache: %w", err)
	}
	return &enrichCache{users: users, beatmaps: beatmaps}, nil
}

// Run wipes all top-plays tables once, then fills in each mode in turn
// (spec.md §4.8: a single unconditional wipe precedes the whole run, unlike
// RankingsPipeline's staleness-gated wipe).
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.store.WipeTables(ctx); err != nil {
		return err
	}

	cache, err := newEnrichCache()
	if err != nil {
		return err
	}

	now := p.now().UTC()
	yesterday := now.AddDate(0, 0, -1)

	for _, mode := range model.AllGamemodes {
		if err := p.runMode(ctx, mode, yesterday, now, cache); err != nil {
			return fmt.Errorf("topplays: mode %s: %w", mode.String(), err)
		}
	}
	return nil
}

func (p *Pipeline) runMode(ctx context.Context, mode model.Gamemode, from, to time.Time, cache *enrichCache) error {
	track := p.trackFor()
	body, err := track.GetBestPlays(ctx, mode, from, to, numTopPlays)
	if err != nil {
		return err
	}
	var best bestPlaysResponse
	if err := json.Unmarshal(body, &best); err != nil {
		return fmt.Errorf("topplays: decode best plays: %w", err)
	}
	if len(best) > numTopPlays {
		return fmt.Errorf("topplays: expected at most %d plays, got %d", numTopPlays, len(best))
	}

	reconciled, err := p.reconcile(ctx, mode, best)
	if err != nil {
		return err
	}
	if len(reconciled) == 0 {
		return p.store.InsertTopPlays(ctx, mode, nil)
	}

	completed, err := p.enrich(ctx, mode, reconciled, cache)
	if err != nil {
		return err
	}
	return p.store.InsertTopPlays(ctx, mode, completed)
}

// reconcile matches each osu!track best-play entry against the user's
// scores on that beatmap via the osu! API, keeping only entries whose
// score_time matches a score's created_at by string equality (both are
// ISO-8601 UTC, second resolution). Unmatched entries are dropped with a
// warning, per spec.md §8 scenario 6. Upstream order (= rank order 1..N)
// is preserved.
func (p *Pipeline) reconcile(ctx context.Context, mode model.Gamemode, best bestPlaysResponse) ([]model.TopPlay, error) {
	type result struct {
		rank  int64
		found bool
		play  model.TopPlay
	}
	results := make([]result, len(best))

	tasks := make([]workerpool.Task, len(best))
	for i, bp := range best {
		idx := i
		rank := int64(i + 1)
		entry := bp
		tasks[idx] = func(ctx context.Context) error {
			createdAt, err := time.Parse(time.RFC3339, entry.ScoreTime)
			if err != nil {
				return fmt.Errorf("topplays: parse score_time %q: %w", entry.ScoreTime, err)
			}

			tp := model.TopPlay{
				Rank:              rank,
				PerformancePoints: entry.PP,
				TotalScore:        entry.Score,
				CreatedAt:         createdAt,
				LetterRank:        model.LetterRank(entry.Rank),
				BeatmapID:         entry.BeatmapID,
				User:              model.RankingsUser{UserID: entry.User},
			}

			api := p.apiFor()
			body, foundResp, err := api.GetUserBeatmapScores(ctx, mode, entry.User, entry.BeatmapID)
			if err != nil {
				return err
			}
			if !foundResp {
				results[idx] = result{rank: rank, found: false, play: tp}
				return nil
			}
			var scoresResp userBeatmapScoresResponse
			if err := json.Unmarshal(body, &scoresResp); err != nil {
				return fmt.Errorf("topplays: decode user beatmap scores: %w", err)
			}

			for _, sc := range scoresResp.Scores {
				scCreatedAt, err := time.Parse(time.RFC3339, sc.CreatedAt)
				if err != nil {
					continue
				}
				if scCreatedAt.UTC().Format(time.RFC3339) != createdAt.UTC().Format(time.RFC3339) {
					continue
				}
				tp.ScoreID = sc.ID
				tp.Accuracy = sc.Accuracy
				tp.Mods = model.NewMods(sc.Mods).Canonical()
				tp.Combo = sc.MaxCombo
				tp.Hits.Count300 = sc.Statistics.Count300
				tp.Hits.Count100 = sc.Statistics.Count100
				if mode != model.Taiko {
					tp.Hits.Count50 = sc.Statistics.Count50
				}
				tp.Hits.CountMiss = sc.Statistics.CountMiss
				results[idx] = result{rank: rank, found: true, play: tp}
				return nil
			}
			results[idx] = result{rank: rank, found: false, play: tp}
			return nil
		}
	}

	if err := workerpool.Run(ctx, p.numWorkers, tasks); err != nil {
		return nil, fmt.Errorf("topplays: reconcile: %w", err)
	}

	out := make([]model.TopPlay, 0, len(results))
	for _, r := range results {
		if !r.found {
			p.log.Warn().Str("mode", mode.String()).Int64("userID", int64(r.play.User.UserID)).Int64("beatmapID", int64(r.play.BeatmapID)).Msg("failed to find matching score for best play, skipping")
			continue
		}
		out = append(out, r.play)
	}
	return out, nil
}

// enrich fills in user and beatmap detail for each reconciled play, chunked
// by batchMaxIDs since the osu! API batch endpoints cap at 50 IDs per call.
// cache is consulted before each batch request so a user or beatmap already
// seen earlier in the run (e.g. the same player placing twice) costs one
// round trip instead of two.
func (p *Pipeline) enrich(ctx context.Context, mode model.Gamemode, plays []model.TopPlay, cache *enrichCache) ([]model.TopPlay, error) {
	// The fan-out's aggregation is genuinely a map (rank -> enriched play,
	// each rank written by exactly one chunk's task), so it uses
	// memo.ResultMap instead of a mutex-guarded slice.
	results := memo.NewResultMap[int64, model.TopPlay]()

	chunks := chunk(plays, batchMaxIDs)
	tasks := make([]workerpool.Task, len(chunks))
	for i, c := range chunks {
		part := c
		tasks[i] = func(ctx context.Context) error {
			done, err := p.enrichChunk(ctx, mode, part, cache)
			if err != nil {
				return err
			}
			for _, tp := range done {
				results.Store(tp.Rank, tp)
			}
			return nil
		}
	}

	if err := workerpool.Run(ctx, p.numWorkers, tasks); err != nil {
		return nil, fmt.Errorf("topplays: enrich: %w", err)
	}

	completed := make([]model.TopPlay, 0, results.Len())
	results.Range(func(_ int64, tp model.TopPlay) bool {
		completed = append(completed, tp)
		return true
	})
	return completed, nil
}

func (p *Pipeline) enrichChunk(ctx context.Context, mode model.Gamemode, chunk []model.TopPlay, cache *enrichCache) ([]model.TopPlay, error) {
	userMap := make(map[model.UserID]userObject, len(chunk))
	beatmapMap := make(map[model.BeatmapID]beatmapObject, len(chunk))

	var missingUserIDs []model.UserID
	for _, tp := range chunk {
		if _, ok := userMap[tp.User.UserID]; ok {
			continue
		}
		if u, ok := cache.users.Get(memo.Key(userMemoKind, int64(tp.User.UserID))); ok {
			userMap[tp.User.UserID] = u
			continue
		}
		missingUserIDs = append(missingUserIDs, tp.User.UserID)
	}

	var missingBeatmapIDs []model.BeatmapID
	for _, tp := range chunk {
		if _, ok := beatmapMap[tp.BeatmapID]; ok {
			continue
		}
		if b, ok := cache.beatmaps.Get(memo.Key(beatmapMemoKind, int64(tp.BeatmapID))); ok {
			beatmapMap[tp.BeatmapID] = b
			continue
		}
		missingBeatmapIDs = append(missingBeatmapIDs, tp.BeatmapID)
	}

	api := p.apiFor()
	if len(missingUserIDs) > 0 {
		usersBody, usersFound, err := api.GetUsers(ctx, missingUserIDs)
		if err != nil {
			return nil, fmt.Errorf("get users: %w", err)
		}
		if usersFound {
			var parsed usersResponse
			if err := json.Unmarshal(usersBody, &parsed); err != nil {
				return nil, fmt.Errorf("decode users: %w", err)
			}
			for _, u := range parsed.Users {
				userMap[u.ID] = u
				cache.users.Set(memo.Key(userMemoKind, int64(u.ID)), u)
			}
		}
	}

	if len(missingBeatmapIDs) > 0 {
		beatmapsBody, beatmapsFound, err := api.GetBeatmaps(ctx, missingBeatmapIDs)
		if err != nil {
			return nil, fmt.Errorf("get beatmaps: %w", err)
		}
		if beatmapsFound {
			var parsed beatmapsResponse
			if err := json.Unmarshal(beatmapsBody, &parsed); err != nil {
				return nil, fmt.Errorf("decode beatmaps: %w", err)
			}
			for _, b := range parsed.Beatmaps {
				beatmapMap[b.ID] = b
				cache.beatmaps.Set(memo.Key(beatmapMemoKind, int64(b.ID)), b)
			}
		}
	}

	out := make([]model.TopPlay, 0, len(chunk))
	for _, tp := range chunk {
		u, ok := userMap[tp.User.UserID]
		if !ok {
			return nil, fmt.Errorf("userID %d missing from batch response", tp.User.UserID)
		}
		b, ok := beatmapMap[tp.BeatmapID]
		if !ok {
			return nil, fmt.Errorf("beatmapID %d missing from batch response", tp.BeatmapID)
		}

		stats := u.StatisticsRulesets[mode.StatisticsKey()]
		currentRank := stats.GlobalRank

		tp.User.Username = u.Username
		tp.User.CountryCode = u.CountryCode
		tp.User.AvatarURL = u.AvatarURL
		tp.User.PerformancePoints = stats.PP
		tp.User.Accuracy = stats.HitAccuracy
		tp.User.HoursPlayed = stats.PlayTime / 3600
		tp.User.CurrentRank = &currentRank

		tp.MaxCombo = b.MaxCombo
		tp.DifficultyName = b.Version
		tp.Artist = b.Beatmapset.Artist
		tp.Title = b.Beatmapset.Title
		tp.MapsetCreator = b.Beatmapset.Creator
		tp.StarRating = b.DifficultyRating

		out = append(out, tp)
	}
	return out, nil
}

func chunk(plays []model.TopPlay, size int) [][]model.TopPlay {
	var out [][]model.TopPlay
	for i := 0; i < len(plays); i += size {
		end := i + size
		if end > len(plays) {
			end = len(plays)
		}
		out = append(out, plays[i:end])
	}
	return out
}
