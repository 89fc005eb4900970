package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// FeedConfig holds configuration for the results feed consumer.
type FeedConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultFeedConfig returns default results feed configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		URL:           nats.DefaultURL,
		StreamName:    "MATCH_RESULTS",
		ConsumerName:  "auctioneer-settlement",
		SubjectFilter: "results.final",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Feed consumes final match results from JetStream and hands them to the
// settlement engine. At-least-once delivery is fine: the engine is
// idempotent per match, so a redelivered result acks without a second apply.
type Feed struct {
	engine   *Engine
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   FeedConfig
}

// NewFeed connects to NATS and creates or resumes the durable consumer.
func NewFeed(engine *Engine, config FeedConfig) (*Feed, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	f := &Feed{engine: engine, nc: nc, js: js, config: config}
	if err := f.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return f, nil
}

func (f *Feed) ensureConsumer(ctx context.Context) error {
	stream, err := f.js.Stream(ctx, f.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          f.config.ConsumerName,
		Durable:       f.config.ConsumerName,
		Description:   "Settlement engine results consumer",
		FilterSubject: f.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    f.config.MaxDeliver,
		AckWait:       f.config.AckWait,
		MaxAckPending: f.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, f.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", f.config.ConsumerName).
			Str("stream", f.config.StreamName).
			Msg("created JetStream consumer")
	}

	f.consumer = consumer
	return nil
}

// Start consumes results until ctx is cancelled.
func (f *Feed) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", f.config.ConsumerName).
		Str("subject", f.config.SubjectFilter).
		Msg("starting results feed consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := f.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("results feed shutting down")
			return nil
		case msg := <-messageCh:
			if err := f.processMessage(ctx, msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process result")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
			} else {
				if ackErr := msg.Ack(); ackErr != nil {
					log.Error().Err(ackErr).Msg("failed to ACK message")
				}
			}
		}
	}
}

func (f *Feed) processMessage(ctx context.Context, msg jetstream.Msg) error {
	var res FinalResult
	if err := json.Unmarshal(msg.Data(), &res); err != nil {
		return fmt.Errorf("unmarshal final result: %w", err)
	}

	outcome, err := f.engine.IngestFinalResult(ctx, res)
	if err != nil {
		return fmt.Errorf("ingest result %s: %w", res.MatchID, err)
	}

	log.Info().
		Str("league_id", res.LeagueID.String()).
		Str("match_id", res.MatchID).
		Bool("already_applied", outcome.AlreadyApplied).
		Int("ledger_entries", len(outcome.Entries)).
		Msg("final result settled")
	return nil
}

// Stop closes the NATS connection.
func (f *Feed) Stop() error {
	log.Info().Msg("stopping results feed")
	if f.nc != nil {
		f.nc.Close()
	}
	return nil
}
