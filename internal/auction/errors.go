package auction

import (
	"errors"
	"fmt"

	"github.com/openleague/auctioneer/internal/models"
)

var (
	// ErrInvalidTransition is returned for any lot or auction status
	// transition not in the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAuctionNotLive is returned for commands that require a live auction.
	ErrAuctionNotLive = errors.New("auction is not live")
	// ErrLotOnBlock is returned when nominating or completing while a lot is
	// still open.
	ErrLotOnBlock = errors.New("a lot is already on the block")
	// ErrNoOpenLot is returned when an operation targets a lot that is not
	// the session's open lot.
	ErrNoOpenLot = errors.New("no open lot")
	// ErrAssetUnavailable is returned when nominating an asset that is owned
	// or not in the nomination pool.
	ErrAssetUnavailable = errors.New("asset not available for nomination")
	// ErrUnknownManager is returned when the manager is not a league member.
	ErrUnknownManager = errors.New("manager is not a member of this league")
	// ErrSessionHalted is returned after a fatal invariant violation stopped
	// the session for operator attention.
	ErrSessionHalted = errors.New("auction session halted")
)

// ValidationError reports malformed input, rejected before arbitration.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransitionError wraps ErrInvalidTransition with the offending pair.
func transitionError(kind string, from, to string) error {
	return fmt.Errorf("%s %s -> %s: %w", kind, from, to, ErrInvalidTransition)
}

// BidOutcome is the synchronous result of a bid submission. Rejections carry
// the authoritative lot state so clients reconcile without a full reload.
type BidOutcome struct {
	Accepted bool                `json:"accepted"`
	Reason   models.RejectReason `json:"reason,omitempty"`
	Bid      *models.Bid         `json:"bid,omitempty"`
	Lot      *models.Lot         `json:"lot"`
}
