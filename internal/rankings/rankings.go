// Package rankings implements the RankingsPipeline from spec.md §4.7: the
// daily scrape that keeps each mode's top-10k table in sync with osu!'s
// live performance rankings, grounded on
// original_source/src/ScrapeRankings.cpp.
package rankings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbalsdon/daily-dosu-go/internal/model"
	"github.com/mbalsdon/daily-dosu-go/internal/store"
	"github.com/mbalsdon/daily-dosu-go/internal/workerpool"
)

const (
	numPages           = 200
	yesterdayRankIndex = 88
	staleWindowMin     = 24 * time.Hour
	staleWindowMax     = 25 * time.Hour
)

// RankingsClient is the subset of osuapi.Client the pipeline needs. Kept
// as a narrow interface so tests can stub it without a live HTTP server.
type RankingsClient interface {
	GetRankings(ctx context.Context, page model.Page, mode model.Gamemode) (json.RawMessage, bool, error)
	GetUser(ctx context.Context, userID model.UserID, mode model.Gamemode) (json.RawMessage, bool, error)
}

// Pipeline runs the daily rankings scrape against store using clientFor to
// obtain one upstream client per worker (spec.md §5: each worker holds its
// own Client, sharing only the TokenManager underneath).
type Pipeline struct {
	store      *store.RankingsStore
	clientFor  func() RankingsClient
	numWorkers int
	log        zerolog.Logger
}

// New builds a Pipeline. clientFor is called once per worker goroutine so
// each gets an independent Client (and Requester); numWorkers below 1 is
// treated as 1 by the underlying workerpool.
func New(rankingsStore *store.RankingsStore, clientFor func() RankingsClient, numWorkers int, log zerolog.Logger) *Pipeline {
	return &Pipeline{store: rankingsStore, clientFor: clientFor, numWorkers: numWorkers, log: log}
}

// rankingsPage is the subset of a /rankings/{mode}/performance response
// this pipeline consumes.
type rankingsPage struct {
	Rankings []userStatistics `json:"rankings"`
}

type userStatistics struct {
	User        rankedUser `json:"user"`
	PP          float64    `json:"pp"`
	HitAccuracy float64    `json:"hit_accuracy"`
	PlayTime    int64      `json:"play_time"`
	GlobalRank  int64      `json:"global_rank"`
}

type rankedUser struct {
	ID          model.UserID `json:"id"`
	Username    string       `json:"username"`
	CountryCode string       `json:"country_code"`
	AvatarURL   string       `json:"avatar_url"`
}

// userResponse is the subset of a /users/{id}/{mode} response this
// pipeline consumes: the 90-entry daily rank history, whose entry at index
// 88 backfills "yesterday's rank" for users newly entered into the top-10k.
type userResponse struct {
	RankHistory rankHistory `json:"rank_history"`
}

type rankHistory struct {
	Data []int64 `json:"data"`
}

// Run executes one full scrape: a staleness-gated wipe, then per mode
// (sequentially, since each mode's fan-out already saturates numWorkers)
// shiftRanks -> fetch all pages -> upsert -> drop fallen-out users ->
// backfill yesterday rank for newly-entered users.
func (p *Pipeline) Run(ctx context.Context) error {
	stale, err := p.isStale(ctx)
	if err != nil {
		return err
	}
	if stale {
		p.log.Warn().Msg("rankings store is stale or absent, wiping all tables before scrape")
		if err := p.store.WipeTables(ctx); err != nil {
			return err
		}
	}

	for _, mode := range model.AllGamemodes {
		if err := p.runMode(ctx, mode); err != nil {
			return fmt.Errorf("rankings: mode %s: %w", mode.String(), err)
		}
	}
	return nil
}

// isStale reports whether the store's last write falls outside
// [24h, 25h] ago, or the store file doesn't exist yet.
func (p *Pipeline) isStale(ctx context.Context) (bool, error) {
	lastWrite, err := p.store.LastWriteTime()
	if err != nil {
		return true, nil
	}
	age := time.Since(lastWrite)
	return age < staleWindowMin || age > staleWindowMax, nil
}

func (p *Pipeline) runMode(ctx context.Context, mode model.Gamemode) error {
	if err := p.store.ShiftRanks(ctx, mode); err != nil {
		return err
	}

	collected, err := p.scrapeRankings(ctx, mode)
	if err != nil {
		return err
	}
	if err := p.store.InsertRankingsUsers(ctx, collected, mode); err != nil {
		return err
	}
	if err := p.store.DeleteUsersWithNullCurrentRank(ctx, mode); err != nil {
		return err
	}

	newUserIDs, err := p.store.GetUserIDsWithNullYesterdayRank(ctx, mode)
	if err != nil {
		return err
	}
	if len(newUserIDs) == 0 {
		return nil
	}

	pairs, err := p.backfillYesterdayRanks(ctx, mode, newUserIDs)
	if err != nil {
		return err
	}
	return p.store.UpdateYesterdayRanks(ctx, pairs, mode)
}

// scrapeRankings fans out the 200 page fetches across the worker pool,
// accumulating into a single mutex-guarded slice (order doesn't matter for
// the downstream upsert, so a slice is the natural shape here rather than
// memo.ResultMap).
func (p *Pipeline) scrapeRankings(ctx context.Context, mode model.Gamemode) ([]model.RankingsUser, error) {
	var mu sync.Mutex
	var collected []model.RankingsUser

	tasks := make([]workerpool.Task, numPages)
	for i := 0; i < numPages; i++ {
		page := model.Page(i)
		tasks[i] = func(ctx context.Context) error {
			client := p.clientFor()
			body, found, err := client.GetRankings(ctx, page, mode)
			if err != nil {
				return err
			}
			if !found {
				return nil
			}
			var parsed rankingsPage
			if err := json.Unmarshal(body, &parsed); err != nil {
				return fmt.Errorf("rankings: decode page %d: %w", page, err)
			}

			rows := make([]model.RankingsUser, 0, len(parsed.Rankings))
			for _, us := range parsed.Rankings {
				currentRank := us.GlobalRank
				rows = append(rows, model.RankingsUser{
					UserID:            us.User.ID,
					Username:          us.User.Username,
					CountryCode:       us.User.CountryCode,
					AvatarURL:         us.User.AvatarURL,
					PerformancePoints: us.PP,
					Accuracy:          us.HitAccuracy,
					HoursPlayed:       us.PlayTime / 3600,
					CurrentRank:       &currentRank,
				})
			}

			mu.Lock()
			collected = append(collected, rows...)
			mu.Unlock()
			return nil
		}
	}

	if err := workerpool.Run(ctx, p.numWorkers, tasks); err != nil {
		return nil, fmt.Errorf("rankings: scrape pages: %w", err)
	}
	return collected, nil
}

// backfillYesterdayRanks fans out a GetUser call per newly-entered user,
// reading index 88 of rank_history.data (the second-to-last entry of a
// 90-element window) as that user's rank the day before they entered the
// top-10k.
func (p *Pipeline) backfillYesterdayRanks(ctx context.Context, mode model.Gamemode, userIDs []model.UserID) ([]store.UserRankPair, error) {
	var mu sync.Mutex
	var pairs []store.UserRankPair

	tasks := make([]workerpool.Task, len(userIDs))
	for i, id := range userIDs {
		userID := id
		tasks[i] = func(ctx context.Context) error {
			client := p.clientFor()
			body, found, err := client.GetUser(ctx, userID, mode)
			if err != nil {
				return err
			}
			if !found {
				p.log.Warn().Int64("userID", int64(userID)).Msg("user disappeared before yesterday-rank backfill, skipping")
				return nil
			}
			var parsed userResponse
			if err := json.Unmarshal(body, &parsed); err != nil {
				return fmt.Errorf("rankings: decode user %d: %w", userID, err)
			}
			if len(parsed.RankHistory.Data) <= yesterdayRankIndex {
				p.log.Warn().Int64("userID", int64(userID)).Int("historyLen", len(parsed.RankHistory.Data)).Msg("rank history too short for yesterday-rank backfill, skipping")
				return nil
			}

			mu.Lock()
			pairs = append(pairs, store.UserRankPair{UserID: userID, Rank: parsed.RankHistory.Data[yesterdayRankIndex]})
			mu.Unlock()
			return nil
		}
	}

	if err := workerpool.Run(ctx, p.numWorkers, tasks); err != nil {
		return nil, fmt.Errorf("rankings: backfill yesterday ranks: %w", err)
	}
	return pairs, nil
}
