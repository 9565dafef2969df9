// Package notify is the Go expression of the out-of-scope chat-bot
// boundary from spec.md §4.9: a small interface the pipelines call into on
// completion, with a no-op default and an optional NATS-backed
// implementation for decoupled deployments.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbalsdon/daily-dosu-go/internal/model"
)

// Publisher is the boundary the core calls into after each pipeline run.
// The bot surface that implements the subscriber-facing half of this
// contract is out of scope for this module.
type Publisher interface {
	// OnScrapeRankingsComplete is invoked after a successful RankingsPipeline
	// run.
	OnScrapeRankingsComplete(ctx context.Context) error
	// OnTopPlaysComplete is invoked after a successful TopPlaysPipeline run.
	OnTopPlaysComplete(ctx context.Context) error
	// Publish sends payload to the given channels.
	Publish(ctx context.Context, channelIDs []model.ChannelID, payload []byte) error
	// QuerySubscriptions returns the channels subscribed to page.
	QuerySubscriptions(ctx context.Context, page model.SubscriptionPage) ([]model.ChannelID, error)
}

// subscriptionQuerier is the minimal store dependency a Publisher needs to
// resolve subscribers; satisfied by *store.SubscriptionsStore.
type subscriptionQuerier interface {
	GetSubscribedChannels(ctx context.Context, page model.SubscriptionPage) ([]model.ChannelID, error)
}

// NoopPublisher logs completion events and resolves subscriptions from the
// store, but never actually delivers a payload anywhere. Used for tests and
// minimal deployments that don't run the chat-bot surface at all.
type NoopPublisher struct {
	subs subscriptionQuerier
	log  zerolog.Logger
}

// NewNoopPublisher builds a NoopPublisher backed by subs for subscription
// queries.
func NewNoopPublisher(subs subscriptionQuerier, log zerolog.Logger) *NoopPublisher {
	return &NoopPublisher{subs: subs, log: log}
}

func (p *NoopPublisher) OnScrapeRankingsComplete(ctx context.Context) error {
	p.log.Info().Msg("rankings pipeline complete (noop publisher)")
	return nil
}

func (p *NoopPublisher) OnTopPlaysComplete(ctx context.Context) error {
	p.log.Info().Msg("top-plays pipeline complete (noop publisher)")
	return nil
}

func (p *NoopPublisher) Publish(ctx context.Context, channelIDs []model.ChannelID, payload []byte) error {
	p.log.Debug().Int("channels", len(channelIDs)).Msg("publish (noop)")
	return nil
}

func (p *NoopPublisher) QuerySubscriptions(ctx context.Context, page model.SubscriptionPage) ([]model.ChannelID, error) {
	return p.subs.GetSubscribedChannels(ctx, page)
}

// completionEvent is the small payload published to the NATS subject on
// pipeline completion.
type completionEvent struct {
	Pipeline    string    `json:"pipeline"`
	CompletedAt time.Time `json:"completedAt"`
}
