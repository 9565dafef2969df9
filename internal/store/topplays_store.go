package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/mbalsdon/daily-dosu-go/internal/metrics"
	"github.com/mbalsdon/daily-dosu-go/internal/model"
)

// TopPlaysStore persists per-mode top-N daily-scores tables.
type TopPlaysStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewTopPlaysStore wraps an already-open, already-migrated database handle.
func NewTopPlaysStore(db *sql.DB) *TopPlaysStore {
	return &TopPlaysStore{db: db}
}

func (s *TopPlaysStore) observe(op string, start time.Time) {
	metrics.StoreOpDuration.WithLabelValues("topplays", op).Observe(time.Since(start).Seconds())
}

// WipeTables deletes all rows in every per-mode table inside one
// transaction. Per spec.md §3, this runs once at the start of every
// TopPlaysPipeline run, unconditionally (unlike RankingsStore's
// staleness-gated wipe).
func (s *TopPlaysStore) WipeTables(ctx context.Context) error {
	defer s.observe("wipeTables", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin wipeTables: %w", err)
	}
	for _, mode := range model.AllGamemodes {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+mode.TopPlaysTable()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: wipe %s: %w", mode.TopPlaysTable(), err)
		}
	}
	return tx.Commit()
}

// HasEmptyTable reports whether any mode's top-plays table has zero rows.
func (s *TopPlaysStore) HasEmptyTable(ctx context.Context) (bool, error) {
	defer s.observe("hasEmptyTable", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mode := range model.AllGamemodes {
		var count int64
		q := "SELECT COUNT(*) FROM " + mode.TopPlaysTable()
		if err := s.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
			return false, fmt.Errorf("store: hasEmptyTable count %s: %w", mode.TopPlaysTable(), err)
		}
		if count == 0 {
			return true, nil
		}
	}
	return false, nil
}

// InsertTopPlays batch-inserts rows into mode's table inside one
// transaction. rank is the primary key; callers are expected to assign
// rank = 1..len(rows) preserving upstream ordering.
func (s *TopPlaysStore) InsertTopPlays(ctx context.Context, mode model.Gamemode, rows []model.TopPlay) error {
	defer s.observe("insertTopPlays", time.Now())
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	table := mode.TopPlaysTable()
	q := fmt.Sprintf(`
INSERT INTO %s (
  rank, scoreID, mods, performancePoints, accuracy, totalScore, createdAt, combo, letterRank,
  count300, count100, count50, countMiss,
  beatmapID, starRating, difficultyName, artist, title, mapsetCreator, maxCombo,
  userID, username, countryCode, avatarURL, userPerformancePoints, userAccuracy, userHoursPlayed, userCurrentRank
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin insertTopPlays: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: prepare insertTopPlays: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.Rank, row.ScoreID, row.Mods, row.PerformancePoints, row.Accuracy, row.TotalScore,
			row.CreatedAt.UTC().Format(time.RFC3339), row.Combo, string(row.LetterRank),
			row.Hits.Count300, row.Hits.Count100, row.Hits.Count50, row.Hits.CountMiss,
			row.BeatmapID, row.StarRating, row.DifficultyName, row.Artist, row.Title, row.MapsetCreator, row.MaxCombo,
			row.User.UserID, row.User.Username, row.User.CountryCode, row.User.AvatarURL,
			row.User.PerformancePoints, row.User.Accuracy, row.User.HoursPlayed, row.User.CurrentRank,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: insertTopPlays rank %d: %w", row.Rank, err)
		}
	}
	return tx.Commit()
}

// GetTopPlays returns up to n rows from mode's table ordered by rank
// ascending, filtered by country ('GLOBAL' disables the filter).
func (s *TopPlaysStore) GetTopPlays(ctx context.Context, country string, n int, mode model.Gamemode) ([]model.TopPlay, error) {
	defer s.observe("getTopPlays", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	table := mode.TopPlaysTable()
	q := fmt.Sprintf(`
SELECT rank, scoreID, mods, performancePoints, accuracy, totalScore, createdAt, combo, letterRank,
       count300, count100, count50, countMiss,
       beatmapID, starRating, difficultyName, artist, title, mapsetCreator, maxCombo,
       userID, username, countryCode, avatarURL, userPerformancePoints, userAccuracy, userHoursPlayed, userCurrentRank
FROM %s
WHERE (? = 'GLOBAL' OR countryCode = ?)
ORDER BY rank ASC
LIMIT ?`, table)

	rows, err := s.db.QueryContext(ctx, q, country, country, n)
	if err != nil {
		return nil, fmt.Errorf("store: getTopPlays(%s): %w", mode.String(), err)
	}
	defer rows.Close()

	var out []model.TopPlay
	for rows.Next() {
		var tp model.TopPlay
		var createdAt string
		var letterRank string
		var currentRank *int64
		if err := rows.Scan(
			&tp.Rank, &tp.ScoreID, &tp.Mods, &tp.PerformancePoints, &tp.Accuracy, &tp.TotalScore,
			&createdAt, &tp.Combo, &letterRank,
			&tp.Hits.Count300, &tp.Hits.Count100, &tp.Hits.Count50, &tp.Hits.CountMiss,
			&tp.BeatmapID, &tp.StarRating, &tp.DifficultyName, &tp.Artist, &tp.Title, &tp.MapsetCreator, &tp.MaxCombo,
			&tp.User.UserID, &tp.User.Username, &tp.User.CountryCode, &tp.User.AvatarURL,
			&tp.User.PerformancePoints, &tp.User.Accuracy, &tp.User.HoursPlayed, &currentRank,
		); err != nil {
			return nil, fmt.Errorf("store: scan top play: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("store: parse createdAt %q: %w", createdAt, err)
		}
		tp.CreatedAt = parsed
		tp.LetterRank = model.LetterRank(letterRank)
		tp.User.CurrentRank = currentRank
		out = append(out, tp)
	}
	return out, rows.Err()
}
