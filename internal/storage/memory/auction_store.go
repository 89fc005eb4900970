package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/openleague/auctioneer/internal/models"
	"github.com/openleague/auctioneer/internal/storage"
)

// AuctionStore is an in-memory implementation of storage.AuctionStore.
type AuctionStore struct {
	mu       sync.RWMutex
	auctions map[uuid.UUID]*models.Auction
	lots     map[uuid.UUID]*models.Lot
	bids     map[uuid.UUID][]models.Bid // keyed by lot ID
}

// NewAuctionStore creates a new in-memory auction store.
func NewAuctionStore() *AuctionStore {
	return &AuctionStore{
		auctions: make(map[uuid.UUID]*models.Auction),
		lots:     make(map[uuid.UUID]*models.Lot),
		bids:     make(map[uuid.UUID][]models.Bid),
	}
}

// Compile-time interface check.
var _ storage.AuctionStore = (*AuctionStore)(nil)

func (s *AuctionStore) CreateAuction(_ context.Context, auction *models.Auction) error {
	if auction == nil || auction.ID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[auction.ID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *auction
	s.auctions[auction.ID] = &cp
	return nil
}

func (s *AuctionStore) GetAuction(_ context.Context, id uuid.UUID) (*models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	auction, ok := s.auctions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *auction
	return &cp, nil
}

func (s *AuctionStore) UpdateAuction(_ context.Context, auction *models.Auction) error {
	if auction == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[auction.ID]; !ok {
		return storage.ErrNotFound
	}
	cp := *auction
	s.auctions[auction.ID] = &cp
	return nil
}

func (s *AuctionStore) ListAuctions(_ context.Context) ([]models.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *AuctionStore) CreateLot(_ context.Context, lot *models.Lot) error {
	if lot == nil || lot.ID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lots[lot.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.lots[lot.ID] = lot.Clone()
	return nil
}

func (s *AuctionStore) UpdateLot(_ context.Context, lot *models.Lot) error {
	if lot == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lots[lot.ID]; !ok {
		return storage.ErrNotFound
	}
	s.lots[lot.ID] = lot.Clone()
	return nil
}

func (s *AuctionStore) GetLot(_ context.Context, id uuid.UUID) (*models.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lot, ok := s.lots[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return lot.Clone(), nil
}

func (s *AuctionStore) GetOpenLot(_ context.Context, auctionID uuid.UUID) (*models.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, lot := range s.lots {
		if lot.AuctionID == auctionID && !lot.Status.Terminal() {
			return lot.Clone(), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *AuctionStore) ListLots(_ context.Context, auctionID uuid.UUID) ([]models.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Lot
	for _, lot := range s.lots {
		if lot.AuctionID == auctionID {
			out = append(out, *lot.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].OpensAt, out[j].OpensAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.Before(*tj)
		}
	})
	return out, nil
}

func (s *AuctionStore) InsertBid(_ context.Context, bid *models.Bid) error {
	if bid == nil || bid.ID == uuid.Nil || bid.LotID == uuid.Nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bids[bid.LotID] = append(s.bids[bid.LotID], *bid)
	return nil
}

func (s *AuctionStore) ListBids(_ context.Context, lotID uuid.UUID) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Bid, len(s.bids[lotID]))
	copy(out, s.bids[lotID])
	return out, nil
}
