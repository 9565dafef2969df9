package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mbalsdon/daily-dosu-go/internal/model"
)

func newTestSubscriptionsStore(t *testing.T) *SubscriptionsStore {
	t.Helper()
	dir := t.TempDir()
	db, err := OpenSubscriptions(filepath.Join(dir, "subs.db"))
	if err != nil {
		t.Fatalf("OpenSubscriptions: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSubscriptionsStore(db)
}

func TestAddThenRemoveSubscription(t *testing.T) {
	ctx := context.Background()
	s := newTestSubscriptionsStore(t)

	if sub, err := s.IsChannelSubscribed(ctx, 42, model.PageRankings); err != nil || sub {
		t.Fatalf("expected unsubscribed before AddSubscription, got sub=%v err=%v", sub, err)
	}

	if err := s.AddSubscription(ctx, 42, model.PageRankings); err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	sub, err := s.IsChannelSubscribed(ctx, 42, model.PageRankings)
	if err != nil || !sub {
		t.Fatalf("expected subscribed after AddSubscription, got sub=%v err=%v", sub, err)
	}

	channels, err := s.GetSubscribedChannels(ctx, model.PageRankings)
	if err != nil {
		t.Fatalf("GetSubscribedChannels: %v", err)
	}
	if len(channels) != 1 || channels[0] != 42 {
		t.Fatalf("expected [42], got %v", channels)
	}

	if err := s.RemoveSubscription(ctx, 42, model.PageRankings); err != nil {
		t.Fatalf("RemoveSubscription: %v", err)
	}
	sub, err = s.IsChannelSubscribed(ctx, 42, model.PageRankings)
	if err != nil || sub {
		t.Fatalf("expected unsubscribed after RemoveSubscription, got sub=%v err=%v", sub, err)
	}
}

func TestSubscriptionPagesAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := newTestSubscriptionsStore(t)

	if err := s.AddSubscription(ctx, 1, model.PageRankings); err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}
	sub, err := s.IsChannelSubscribed(ctx, 1, model.PageTopPlays)
	if err != nil {
		t.Fatalf("IsChannelSubscribed: %v", err)
	}
	if sub {
		t.Fatalf("expected topPlays subscription to be independent of rankings")
	}
}
