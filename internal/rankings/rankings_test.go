package rankings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbalsdon/daily-dosu-go/internal/model"
	"github.com/mbalsdon/daily-dosu-go/internal/store"
)

// fakeClient serves a fixed rankings page 0 (all other pages empty) and a
// canned rank-history response for any user.
type fakeClient struct {
	rankingsCalls int32
	userCalls     int32

	page0      []userStatistics
	yesterday89 int64
}

func (f *fakeClient) GetRankings(ctx context.Context, page model.Page, mode model.Gamemode) (json.RawMessage, bool, error) {
	atomic.AddInt32(&f.rankingsCalls, 1)
	if page != 0 {
		body, _ := json.Marshal(rankingsPage{Rankings: nil})
		return body, true, nil
	}
	body, err := json.Marshal(rankingsPage{Rankings: f.page0})
	return body, true, err
}

func (f *fakeClient) GetUser(ctx context.Context, userID model.UserID, mode model.Gamemode) (json.RawMessage, bool, error) {
	atomic.AddInt32(&f.userCalls, 1)
	data := make([]int64, 90)
	data[yesterdayRankIndex] = f.yesterday89
	body, err := json.Marshal(userResponse{
		RankHistory: rankHistory{Data: data},
	})
	return body, true, err
}

func newTestRankingsStore(t *testing.T) (*store.RankingsStore, string) {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/rankings.db"
	db, err := store.OpenRankings(path)
	if err != nil {
		t.Fatalf("OpenRankings: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewRankingsStore(db, path), path
}

func TestRunPopulatesCurrentRanksFromFreshPage(t *testing.T) {
	s, _ := newTestRankingsStore(t)

	fc := &fakeClient{
		page0: []userStatistics{
			{
				User:        rankedUser{ID: 1, Username: "alice", CountryCode: "US", AvatarURL: "http://x/1"},
				PP:          1000,
				HitAccuracy: 99.5,
				PlayTime:    7200,
				GlobalRank:  1,
			},
		},
		yesterday89: 42,
	}

	p := New(s, func() RankingsClient { return fc }, 4, zerolog.Nop())
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := atomic.LoadInt32(&fc.rankingsCalls); got != numPages*4 {
		t.Fatalf("expected %d rankings calls (4 modes), got %d", numPages*4, got)
	}

	// The single user is newly entered (no prior yesterdayRank), so the
	// backfill phase should have queried GetUser once per mode.
	if got := atomic.LoadInt32(&fc.userCalls); got != 4 {
		t.Fatalf("expected 4 GetUser calls (one per mode), got %d", got)
	}

	improvements, err := s.GetTopRankImprovements(context.Background(), model.GlobalCountry, 1, 10000, 10, model.Osu)
	if err != nil {
		t.Fatalf("GetTopRankImprovements: %v", err)
	}
	if len(improvements) != 1 {
		t.Fatalf("expected 1 improvement row (yesterday 42 -> current 1), got %d", len(improvements))
	}
	if improvements[0].YesterdayRank != 42 || improvements[0].CurrentRank != 1 {
		t.Fatalf("unexpected improvement row: %+v", improvements[0])
	}
}

func TestRunWipesStaleStoreBeforeScraping(t *testing.T) {
	s, path := newTestRankingsStore(t)

	seeded := int64(5)
	if err := s.InsertRankingsUsers(context.Background(), []model.RankingsUser{
		{UserID: 999, Username: "stale", CountryCode: "US", CurrentRank: &seeded},
	}, model.Osu); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	// Back-date the db file's mtime well outside [24h,25h] so the pipeline
	// treats the store as stale and wipes it before scraping.
	old := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	fc := &fakeClient{page0: nil, yesterday89: 0}
	p := New(s, func() RankingsClient { return fc }, 4, zerolog.Nop())
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	empty, err := s.HasEmptyTable(context.Background())
	if err != nil {
		t.Fatalf("HasEmptyTable: %v", err)
	}
	if !empty {
		t.Fatalf("expected all tables empty after wipe + empty scrape")
	}
}

// failingClient always errors, to exercise Run's error propagation.
type failingClient struct{}

func (failingClient) GetRankings(ctx context.Context, page model.Page, mode model.Gamemode) (json.RawMessage, bool, error) {
	return nil, false, fmt.Errorf("boom")
}

func (failingClient) GetUser(ctx context.Context, userID model.UserID, mode model.Gamemode) (json.RawMessage, bool, error) {
	return nil, false, fmt.Errorf("boom")
}

func TestRunPropagatesScrapeErrors(t *testing.T) {
	s, _ := newTestRankingsStore(t)
	p := New(s, func() RankingsClient { return failingClient{} }, 2, zerolog.Nop())
	if err := p.Run(context.Background()); err == nil {
		t.Fatalf("expected error from failing client")
	}
}
