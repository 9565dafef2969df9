package notify

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mbalsdon/daily-dosu-go/internal/model"
)

type fakeSubs struct {
	channels []model.ChannelID
}

func (f *fakeSubs) GetSubscribedChannels(ctx context.Context, page model.SubscriptionPage) ([]model.ChannelID, error) {
	return f.channels, nil
}

func TestNoopPublisherQuerySubscriptionsDelegatesToStore(t *testing.T) {
	subs := &fakeSubs{channels: []model.ChannelID{1, 2, 3}}
	p := NewNoopPublisher(subs, zerolog.Nop())

	got, err := p.QuerySubscriptions(context.Background(), model.PageRankings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(got))
	}
}

func TestNoopPublisherCompletionHooksNeverError(t *testing.T) {
	p := NewNoopPublisher(&fakeSubs{}, zerolog.Nop())
	if err := p.OnScrapeRankingsComplete(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.OnTopPlaysComplete(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Publish(context.Background(), []model.ChannelID{1}, []byte("x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
