package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies an auction domain event.
type Type string

const (
	TypeLotOpened         Type = "lot_opened"
	TypeBidAccepted       Type = "bid_accepted"
	TypeBidRejected       Type = "bid_rejected"
	TypeLotSold           Type = "lot_sold"
	TypeLotUnsold         Type = "lot_unsold"
	TypeAuctionStarted    Type = "auction_started"
	TypeAuctionPaused     Type = "auction_paused"
	TypeAuctionResumed    Type = "auction_resumed"
	TypeAuctionCompleted  Type = "auction_completed"
	TypeSettlementApplied Type = "settlement_applied"
)

// Event is the envelope broadcast to clients and relayed over the bus.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       Type            `json:"type"`
	LeagueID   uuid.UUID       `json:"league_id"`
	AuctionID  uuid.UUID       `json:"auction_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an event envelope, marshalling the payload.
func New(t Type, leagueID, auctionID uuid.UUID, occurredAt time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return Event{
		ID:         uuid.New(),
		Type:       t,
		LeagueID:   leagueID,
		AuctionID:  auctionID,
		OccurredAt: occurredAt,
		Payload:    data,
	}, nil
}

// Publisher delivers committed events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Fanout publishes each event to every wrapped publisher, returning the
// first error after attempting all of them.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var firstErr error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
