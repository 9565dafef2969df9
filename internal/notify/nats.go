package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/mbalsdon/daily-dosu-go/internal/model"
)

// NatsPublisher publishes a completion event to a configured NATS subject
// on pipeline completion, and fans a payload out to a per-channel subject
// for the (out-of-scope) bot surface to subscribe to. Grounded on
// adred-codev-ws_poc's nats.go usage.
type NatsPublisher struct {
	conn        *nats.Conn
	subjectBase string
	subs        subscriptionQuerier
	log         zerolog.Logger
}

// NewNatsPublisher connects to url and builds a NatsPublisher publishing
// under subjectBase (e.g. "dailydosu").
func NewNatsPublisher(url, subjectBase string, subs subscriptionQuerier, log zerolog.Logger) (*NatsPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("notify: connect to nats at %s: %w", url, err)
	}
	return &NatsPublisher{conn: conn, subjectBase: subjectBase, subs: subs, log: log}, nil
}

// Close closes the underlying NATS connection; it does not drain it first.
func (p *NatsPublisher) Close() {
	p.conn.Close()
}

func (p *NatsPublisher) publishCompletion(pipeline string) error {
	evt := completionEvent{Pipeline: pipeline}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: marshal completion event: %w", err)
	}
	subject := p.subjectBase + ".complete." + pipeline
	if err := p.conn.Publish(subject, body); err != nil {
		return fmt.Errorf("notify: publish to %s: %w", subject, err)
	}
	return nil
}

func (p *NatsPublisher) OnScrapeRankingsComplete(ctx context.Context) error {
	return p.publishCompletion("rankings")
}

func (p *NatsPublisher) OnTopPlaysComplete(ctx context.Context) error {
	return p.publishCompletion("topPlays")
}

// Publish sends payload on a per-channel subject; the bot surface is
// expected to subscribe to subjectBase + ".channel.<channelID>".
func (p *NatsPublisher) Publish(ctx context.Context, channelIDs []model.ChannelID, payload []byte) error {
	for _, id := range channelIDs {
		subject := fmt.Sprintf("%s.channel.%d", p.subjectBase, id)
		if err := p.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("notify: publish to %s: %w", subject, err)
		}
	}
	return nil
}

func (p *NatsPublisher) QuerySubscriptions(ctx context.Context, page model.SubscriptionPage) ([]model.ChannelID, error) {
	return p.subs.GetSubscribedChannels(ctx, page)
}
