package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openleague/auctioneer/internal/auction"
	"github.com/openleague/auctioneer/internal/settlement"
	"github.com/openleague/auctioneer/internal/storage"
)

// Service is the HTTP surface of the engine: JSON commands for auction
// control and bidding, the snapshot endpoint, and the websocket upgrade.
// Commands are synchronous; fan-out happens through the events pipeline.
type Service struct {
	manager *auction.Manager
	engine  *settlement.Engine
	cm      *ConnectionManager
	audits  storage.AuditStore
}

// NewService creates the gateway service. The connection manager is created
// here so its snapshot provider is the session manager.
func NewService(manager *auction.Manager, engine *settlement.Engine, audits storage.AuditStore, connConfig ConnectionConfig) *Service {
	s := &Service{
		manager: manager,
		engine:  engine,
		audits:  audits,
	}
	s.cm = NewConnectionManager(connConfig, s)
	return s
}

// ConnectionManager exposes the fan-out side for wiring and shutdown.
func (s *Service) ConnectionManager() *ConnectionManager {
	return s.cm
}

// AuctionSnapshot implements SnapshotProvider.
func (s *Service) AuctionSnapshot(ctx context.Context, auctionID uuid.UUID) (*auction.Snapshot, error) {
	session, err := s.manager.Session(auctionID)
	if err != nil {
		return nil, err
	}
	return session.Snapshot(ctx)
}

// Start runs the connection manager until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.cm.Start(ctx)
}

// RegisterRoutes registers every HTTP route on the mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/leagues/{league_id}/auctions", s.handleCreateAuction)
	mux.HandleFunc("POST /v1/auctions/{auction_id}/start", s.handleStart)
	mux.HandleFunc("POST /v1/auctions/{auction_id}/pause", s.handlePause)
	mux.HandleFunc("POST /v1/auctions/{auction_id}/resume", s.handleResume)
	mux.HandleFunc("POST /v1/auctions/{auction_id}/complete", s.handleComplete)
	mux.HandleFunc("POST /v1/auctions/{auction_id}/nominations", s.handleNominate)
	mux.HandleFunc("POST /v1/auctions/{auction_id}/bids", s.handleSubmitBid)
	mux.HandleFunc("GET /v1/auctions/{auction_id}/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /v1/leagues/{league_id}/results", s.handleIngestResult)
	mux.HandleFunc("GET /v1/leagues/{league_id}/points", s.handlePoints)
	mux.HandleFunc("GET /v1/leagues/{league_id}/audit", s.handleAuditLog)
	mux.HandleFunc("GET /ws/auction", s.handleSocket)
	mux.HandleFunc("GET /ws/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	log.Info().Msg("gateway routes registered")
}

type actorRequest struct {
	ActorID *uuid.UUID `json:"actor_id,omitempty"`
}

type nominateRequest struct {
	ManagerID uuid.UUID `json:"manager_id"`
	AssetRef  string    `json:"asset_ref"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Service) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	leagueID, ok := pathUUID(w, r, "league_id")
	if !ok {
		return
	}

	session, err := s.manager.CreateAuction(r.Context(), leagueID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	snap, err := session.Snapshot(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, (*auction.Session).Start)
}

func (s *Service) handlePause(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, (*auction.Session).Pause)
}

func (s *Service) handleResume(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, (*auction.Session).Resume)
}

func (s *Service) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, (*auction.Session).Complete)
}

func (s *Service) handleTransition(w http.ResponseWriter, r *http.Request, op func(*auction.Session, context.Context, *uuid.UUID) error) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	var req actorRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}

	if err := op(session, r.Context(), req.ActorID); err != nil {
		s.writeDomainError(w, err)
		return
	}

	snap, err := session.Snapshot(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Service) handleNominate(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	var req nominateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	lot, err := session.Nominate(r.Context(), req.ManagerID, req.AssetRef)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lot)
}

func (s *Service) handleSubmitBid(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	var req auction.SubmitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	outcome, err := session.SubmitBid(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	// Rejections are successful arbitrations, not transport errors.
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	session, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}

	snap, err := session.Snapshot(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Service) handleIngestResult(w http.ResponseWriter, r *http.Request) {
	leagueID, ok := pathUUID(w, r, "league_id")
	if !ok {
		return
	}

	var res settlement.FinalResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	res.LeagueID = leagueID

	outcome, err := s.engine.IngestFinalResult(r.Context(), res)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Service) handlePoints(w http.ResponseWriter, r *http.Request) {
	leagueID, ok := pathUUID(w, r, "league_id")
	if !ok {
		return
	}

	points, err := s.engine.Standings(r.Context(), leagueID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	type row struct {
		ManagerID uuid.UUID `json:"manager_id"`
		Points    int64     `json:"points"`
	}
	out := make([]row, 0, len(points))
	for managerID, total := range points {
		out = append(out, row{ManagerID: managerID, Points: total})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	leagueID, ok := pathUUID(w, r, "league_id")
	if !ok {
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	entries, err := s.audits.ListByLeague(r.Context(), leagueID, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Service) handleSocket(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(r.URL.Query().Get("auction_id"))
	if err != nil {
		http.Error(w, "auction_id is required", http.StatusBadRequest)
		return
	}
	managerID, err := uuid.Parse(r.URL.Query().Get("manager_id"))
	if err != nil {
		http.Error(w, "manager_id is required", http.StatusBadRequest)
		return
	}

	// Resolve the room before the upgrade hijacks the response; unknown
	// auctions still get an HTTP status.
	if _, err := s.manager.Session(auctionID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "auction not found", http.StatusNotFound)
			return
		}
		s.writeDomainError(w, err)
		return
	}

	if err := s.cm.HandleAuctionSocket(w, r, managerID, auctionID); err != nil {
		log.Error().
			Err(err).
			Str("auction_id", auctionID.String()).
			Msg("failed to open websocket")
	}
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cm.Stats())
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) sessionFromPath(w http.ResponseWriter, r *http.Request) (*auction.Session, bool) {
	auctionID, ok := pathUUID(w, r, "auction_id")
	if !ok {
		return nil, false
	}
	session, err := s.manager.Session(auctionID)
	if err != nil {
		s.writeDomainError(w, err)
		return nil, false
	}
	return session, true
}

// writeDomainError maps engine errors onto HTTP statuses.
func (s *Service) writeDomainError(w http.ResponseWriter, err error) {
	var verr *auction.ValidationError
	var serr *settlement.ValidationError

	switch {
	case errors.As(err, &verr), errors.As(err, &serr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, auction.ErrUnknownManager):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, auction.ErrInvalidTransition),
		errors.Is(err, auction.ErrAuctionNotLive),
		errors.Is(err, auction.ErrLotOnBlock),
		errors.Is(err, auction.ErrAssetUnavailable):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, auction.ErrSessionHalted):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		log.Error().Err(err).Msg("internal error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
