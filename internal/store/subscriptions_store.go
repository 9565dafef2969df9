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

// SubscriptionsStore persists per-channel, per-page subscription flags.
type SubscriptionsStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSubscriptionsStore wraps an already-open, already-migrated database
// handle.
func NewSubscriptionsStore(db *sql.DB) *SubscriptionsStore {
	return &SubscriptionsStore{db: db}
}

func (s *SubscriptionsStore) observe(op string, start time.Time) {
	metrics.StoreOpDuration.WithLabelValues("subscriptions", op).Observe(time.Since(start).Seconds())
}

// GetSubscribedChannels returns every channel subscribed to page.
func (s *SubscriptionsStore) GetSubscribedChannels(ctx context.Context, page model.SubscriptionPage) ([]model.ChannelID, error) {
	defer s.observe("getSubscribedChannels", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT channelID FROM Subscriptions WHERE page = ? AND enabled = 1", string(page))
	if err != nil {
		return nil, fmt.Errorf("store: getSubscribedChannels(%s): %w", page, err)
	}
	defer rows.Close()

	var out []model.ChannelID
	for rows.Next() {
		var id model.ChannelID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan channelID: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// IsChannelSubscribed reports whether channelID is subscribed to page.
func (s *SubscriptionsStore) IsChannelSubscribed(ctx context.Context, channelID model.ChannelID, page model.SubscriptionPage) (bool, error) {
	defer s.observe("isChannelSubscribed", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	var enabled int
	err := s.db.QueryRowContext(ctx,
		"SELECT enabled FROM Subscriptions WHERE channelID = ? AND page = ?", channelID, string(page),
	).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: isChannelSubscribed: %w", err)
	}
	return enabled == 1, nil
}

// AddSubscription inserts a new subscription row, or updates the enabled
// flag of an existing one.
func (s *SubscriptionsStore) AddSubscription(ctx context.Context, channelID model.ChannelID, page model.SubscriptionPage) error {
	defer s.observe("addSubscription", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	const q = `
INSERT INTO Subscriptions (channelID, page, enabled)
VALUES (?, ?, 1)
ON CONFLICT(channelID, page) DO UPDATE SET enabled = 1`
	if _, err := s.db.ExecContext(ctx, q, channelID, string(page)); err != nil {
		return fmt.Errorf("store: addSubscription: %w", err)
	}
	return nil
}

// RemoveSubscription disables a channel's subscription to page (insert if
// missing, else update the flag).
func (s *SubscriptionsStore) RemoveSubscription(ctx context.Context, channelID model.ChannelID, page model.SubscriptionPage) error {
	defer s.observe("removeSubscription", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	const q = `
INSERT INTO Subscriptions (channelID, page, enabled)
VALUES (?, ?, 0)
ON CONFLICT(channelID, page) DO UPDATE SET enabled = 0`
	if _, err := s.db.ExecContext(ctx, q, channelID, string(page)); err != nil {
		return fmt.Errorf("store: removeSubscription: %w", err)
	}
	return nil
}
