// Package audit appends every committed mutation to the audit store and
// mirrors it to the structured log.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

// Audit action names.
const (
	ActionAuctionStarted    = "auction_started"
	ActionAuctionPaused     = "auction_paused"
	ActionAuctionResumed    = "auction_resumed"
	ActionAuctionCompleted  = "auction_completed"
	ActionLotOpened         = "lot_opened"
	ActionBidAccepted       = "bid_accepted"
	ActionLotSold           = "lot_sold"
	ActionLotUnsold         = "lot_unsold"
	ActionSettlementApplied = "settlement_applied"
)

// Recorder writes audit entries.
type Recorder struct {
	store storage.AuditStore
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(store storage.AuditStore) *Recorder {
	return &Recorder{store: store}
}

// Record appends one entry. Detail is marshalled to JSON; a nil detail is
// stored as-is. Failures are logged and returned so callers on the fatal
// path can halt.
func (r *Recorder) Record(ctx context.Context, leagueID uuid.UUID, auctionID, actorID *uuid.UUID, action string, detail any) error {
	var raw json.RawMessage
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			log.Error().Err(err).Str("action", action).Msg("failed to marshal audit detail")
			return err
		}
		raw = data
	}

	entry := &models.AuditEntry{
		ID:        uuid.New(),
		LeagueID:  leagueID,
		AuctionID: auctionID,
		ActorID:   actorID,
		Action:    action,
		Detail:    raw,
		CreatedAt: time.Now().UTC(),
	}

	if err := r.store.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("action", action).Msg("failed to append audit entry")
		return err
	}

	evt := log.Info().
		Str("action", action).
		Str("league_id", leagueID.String())
	if auctionID != nil {
		evt = evt.Str("auction_id", auctionID.String())
	}
	if actorID != nil {
		evt = evt.Str("actor_id", actorID.String())
	}
	evt.Msg("audit")
	return nil
}
