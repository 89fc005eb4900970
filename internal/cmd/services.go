package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/openleague/auctioneer/internal/audit"
	"github.com/openleague/auctioneer/internal/auction"
	"github.com/openleague/auctioneer/internal/events"
	"github.com/openleague/auctioneer/internal/gateway"
	"github.com/openleague/auctioneer/internal/outbox"
	"github.com/openleague/auctioneer/internal/settlement"
	"github.com/openleague/auctioneer/internal/storage/postgres"
)

// Services holds every wired component of the process.
type Services struct {
	Manager *auction.Manager
	Engine  *settlement.Engine
	Gateway *gateway.Service

	Relay    *outbox.Relay
	Listener *outbox.Listener
	Bus      *outbox.JetStreamPublisher

	Consumer *gateway.EventConsumer // nil unless enabled
	Feed     *settlement.Feed       // nil unless enabled
}

func setupServices(pool *postgres.Pool, cfg Config) (*Services, error) {
	settings, err := loadLeagueSettings(cfg.LeaguesFile)
	if err != nil {
		return nil, err
	}

	auctionStore := postgres.NewAuctionStore(pool)
	rosterStore := postgres.NewRosterStore(pool)
	settlementStore := postgres.NewSettlementStore(pool)
	auditStore := postgres.NewAuditStore(pool)
	outboxStore := postgres.NewOutboxStore(pool)

	recorder := audit.NewRecorder(auditStore)
	clk := clockwork.NewRealClock()

	// Commands publish into the fanout: the websocket side for in-process
	// delivery and the outbox journal for durable relay. The fanout is filled
	// in once the gateway exists.
	var fanout events.Publisher
	publisher := events.PublisherFunc(func(ctx context.Context, event events.Event) error {
		return fanout.Publish(ctx, event)
	})

	manager := auction.NewManager(auction.ManagerConfig{
		Clock:     clk,
		Store:     auctionStore,
		Roster:    rosterStore,
		Recorder:  recorder,
		Publisher: publisher,
		Settings:  staticSettings(settings),
	})

	engine := settlement.NewEngine(settlement.EngineConfig{
		Clock:     clk,
		Store:     settlementStore,
		Roster:    rosterStore,
		Settings:  staticSettings(settings),
		Recorder:  recorder,
		Publisher: publisher,
	})

	svc := gateway.NewService(manager, engine, auditStore, gateway.DefaultConnectionConfig())
	fanout = events.Fanout{svc.ConnectionManager(), outbox.NewJournalPublisher(outboxStore)}

	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	bus, err := outbox.NewJetStreamPublisher(jsCfg)
	if err != nil {
		return nil, fmt.Errorf("setup event bus: %w", err)
	}

	relay := outbox.NewRelay(outboxStore, bus, outbox.DefaultRelayConfig())
	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = cfg.Database.DSN()
	listener, err := outbox.NewListener(relay, listenerCfg)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("setup outbox listener: %w", err)
	}

	services := &Services{
		Manager:  manager,
		Engine:   engine,
		Gateway:  svc,
		Relay:    relay,
		Listener: listener,
		Bus:      bus,
	}

	if cfg.GatewayConsumer {
		consumerCfg := gateway.DefaultConsumerConfig()
		consumerCfg.URL = cfg.NATSURL
		consumer, err := gateway.NewEventConsumer(svc.ConnectionManager(), consumerCfg)
		if err != nil {
			return nil, fmt.Errorf("setup gateway consumer: %w", err)
		}
		services.Consumer = consumer
	}

	if cfg.ResultsFeed {
		feedCfg := settlement.DefaultFeedConfig()
		feedCfg.URL = cfg.NATSURL
		feed, err := settlement.NewFeed(engine, feedCfg)
		if err != nil {
			return nil, fmt.Errorf("setup results feed: %w", err)
		}
		services.Feed = feed
	}

	return services, nil
}
