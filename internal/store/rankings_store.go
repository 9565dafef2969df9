package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mbalsdon/daily-dosu-go/internal/metrics"
	"github.com/mbalsdon/daily-dosu-go/internal/model"
)

// RankingsStore persists per-mode top-10k rankings tables. All public
// operations are serialized through mu; multi-statement writes run inside
// a transaction that rolls back on error.
type RankingsStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewRankingsStore wraps an already-open, already-migrated database handle.
func NewRankingsStore(db *sql.DB, path string) *RankingsStore {
	return &RankingsStore{db: db, path: path}
}

func (s *RankingsStore) observe(op string, start time.Time) {
	metrics.StoreOpDuration.WithLabelValues("rankings", op).Observe(time.Since(start).Seconds())
}

// LastWriteTime returns the filesystem mtime of the database file.
func (s *RankingsStore) LastWriteTime() (time.Time, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: stat %s: %w", s.path, err)
	}
	return fi.ModTime(), nil
}

// WipeTables deletes all rows in every per-mode table inside one
// transaction.
func (s *RankingsStore) WipeTables(ctx context.Context) error {
	defer s.observe("wipeTables", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin wipeTables: %w", err)
	}
	for _, mode := range model.AllGamemodes {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+mode.RankingsTable()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: wipe %s: %w", mode.RankingsTable(), err)
		}
	}
	return tx.Commit()
}

// ShiftRanks sets yesterdayRank = currentRank, currentRank = NULL for every
// row of mode's table.
func (s *RankingsStore) ShiftRanks(ctx context.Context, mode model.Gamemode) error {
	defer s.observe("shiftRanks", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	q := "UPDATE " + mode.RankingsTable() + " SET yesterdayRank = currentRank, currentRank = NULL"
	_, err := s.db.ExecContext(ctx, q)
	if err != nil {
		return fmt.Errorf("store: shiftRanks(%s): %w", mode.String(), err)
	}
	return nil
}

// InsertRankingsUsers batch-upserts rows into mode's table. On conflict of
// userID, currentRank is taken from the input row while yesterdayRank is
// preserved from the existing row, via a scalar subquery keyed by userID.
func (s *RankingsStore) InsertRankingsUsers(ctx context.Context, rows []model.RankingsUser, mode model.Gamemode) error {
	defer s.observe("insertRankingsUsers", time.Now())
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	table := mode.RankingsTable()
	q := fmt.Sprintf(`
INSERT OR REPLACE INTO %s (userID, username, countryCode, avatarURL, performancePoints, accuracy, hoursPlayed, yesterdayRank, currentRank)
VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT yesterdayRank FROM %s WHERE userID = ?), ?)`, table, table)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin insertRankingsUsers: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: prepare insertRankingsUsers: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.UserID, row.Username, row.CountryCode, row.AvatarURL,
			row.PerformancePoints, row.Accuracy, row.HoursPlayed,
			row.UserID, row.CurrentRank,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: insertRankingsUsers user %d: %w", row.UserID, err)
		}
	}
	return tx.Commit()
}

// DeleteUsersWithNullCurrentRank removes rows whose currentRank is NULL
// (players who dropped out of the top-10k this run).
func (s *RankingsStore) DeleteUsersWithNullCurrentRank(ctx context.Context, mode model.Gamemode) error {
	defer s.observe("deleteUsersWithNullCurrentRank", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	q := "DELETE FROM " + mode.RankingsTable() + " WHERE currentRank IS NULL"
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("store: deleteUsersWithNullCurrentRank(%s): %w", mode.String(), err)
	}
	return nil
}

// GetUserIDsWithNullYesterdayRank returns users newly entered into the
// top-10k this run (no yesterday rank recorded yet).
func (s *RankingsStore) GetUserIDsWithNullYesterdayRank(ctx context.Context, mode model.Gamemode) ([]model.UserID, error) {
	defer s.observe("getUserIDsWithNullYesterdayRank", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	q := "SELECT userID FROM " + mode.RankingsTable() + " WHERE yesterdayRank IS NULL"
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: getUserIDsWithNullYesterdayRank(%s): %w", mode.String(), err)
	}
	defer rows.Close()

	var out []model.UserID
	for rows.Next() {
		var id model.UserID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan userID: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UserRankPair is a (userID, rank) update target for UpdateYesterdayRanks.
type UserRankPair struct {
	UserID model.UserID
	Rank   int64
}

// UpdateYesterdayRanks batch-sets yesterdayRank for the given (userID,
// rank) pairs.
func (s *RankingsStore) UpdateYesterdayRanks(ctx context.Context, pairs []UserRankPair, mode model.Gamemode) error {
	defer s.observe("updateYesterdayRanks", time.Now())
	if len(pairs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	q := "UPDATE " + mode.RankingsTable() + " SET yesterdayRank = ? WHERE userID = ?"
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin updateYesterdayRanks: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("store: prepare updateYesterdayRanks: %w", err)
	}
	defer stmt.Close()

	for _, p := range pairs {
		if _, err := stmt.ExecContext(ctx, p.Rank, p.UserID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: updateYesterdayRanks user %d: %w", p.UserID, err)
		}
	}
	return tx.Commit()
}

// HasEmptyTable reports whether any mode's rankings table has zero rows.
func (s *RankingsStore) HasEmptyTable(ctx context.Context) (bool, error) {
	defer s.observe("hasEmptyTable", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, mode := range model.AllGamemodes {
		var count int64
		q := "SELECT COUNT(*) FROM " + mode.RankingsTable()
		if err := s.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
			return false, fmt.Errorf("store: hasEmptyTable count %s: %w", mode.RankingsTable(), err)
		}
		if count == 0 {
			return true, nil
		}
	}
	return false, nil
}

// GetTopRankImprovements returns up to n rows in [minRank,maxRank], filtered
// by country ('GLOBAL' disables the filter), ordered by relative
// improvement descending, where improvement requires yesterdayRank >
// currentRank.
func (s *RankingsStore) GetTopRankImprovements(ctx context.Context, country string, minRank, maxRank int64, n int, mode model.Gamemode) ([]model.RankImprovement, error) {
	return s.getRankImprovements(ctx, country, minRank, maxRank, n, mode, ">", "DESC")
}

// GetBottomRankImprovements is the mirror of GetTopRankImprovements: rows
// where yesterdayRank < currentRank, ordered by magnitude of regression
// descending (spec.md §4.5: "(currentRank - yesterdayRank)/currentRank
// DESC", biggest regression first). The shared query's relative column is
// always (yesterdayRank - currentRank)/currentRank, which is negative for
// these rows, so the biggest regression is the most negative value —
// sorting that column ASC, not DESC, puts it first.
func (s *RankingsStore) GetBottomRankImprovements(ctx context.Context, country string, minRank, maxRank int64, n int, mode model.Gamemode) ([]model.RankImprovement, error) {
	return s.getRankImprovements(ctx, country, minRank, maxRank, n, mode, "<", "ASC")
}

func (s *RankingsStore) getRankImprovements(ctx context.Context, country string, minRank, maxRank int64, n int, mode model.Gamemode, cmp, order string) ([]model.RankImprovement, error) {
	defer s.observe("getRankImprovements", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	table := mode.RankingsTable()
	q := fmt.Sprintf(`
SELECT userID, username, countryCode, avatarURL, performancePoints, accuracy, hoursPlayed, yesterdayRank, currentRank,
       (CAST(yesterdayRank AS REAL) - CAST(currentRank AS REAL)) / CAST(currentRank AS REAL) AS relative
FROM %s
WHERE currentRank BETWEEN ? AND ?
  AND yesterdayRank %s currentRank
  AND (? = 'GLOBAL' OR countryCode = ?)
ORDER BY relative %s
LIMIT ?`, table, cmp, order)

	rows, err := s.db.QueryContext(ctx, q, minRank, maxRank, country, country, n)
	if err != nil {
		return nil, fmt.Errorf("store: getRankImprovements(%s): %w", mode.String(), err)
	}
	defer rows.Close()

	var out []model.RankImprovement
	for rows.Next() {
		var u model.RankingsUser
		var yesterday, current int64
		var relative float64
		if err := rows.Scan(&u.UserID, &u.Username, &u.CountryCode, &u.AvatarURL,
			&u.PerformancePoints, &u.Accuracy, &u.HoursPlayed, &yesterday, &current, &relative); err != nil {
			return nil, fmt.Errorf("store: scan rank improvement: %w", err)
		}
		u.YesterdayRank = &yesterday
		u.CurrentRank = &current
		out = append(out, model.RankImprovement{
			User:                u,
			YesterdayRank:       yesterday,
			CurrentRank:         current,
			RelativeImprovement: relative,
		})
	}
	return out, rows.Err()
}
