package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openleague/auctioneer/internal/auction"
	"github.com/openleague/auctioneer/internal/events"
)

// SnapshotProvider serves the authoritative state sent to a client on
// connect, before any deltas.
type SnapshotProvider interface {
	AuctionSnapshot(ctx context.Context, auctionID uuid.UUID) (*auction.Snapshot, error)
}

// FrameKind tags a websocket frame for the client.
type FrameKind string

const (
	FrameSnapshot FrameKind = "snapshot"
	FrameEvent    FrameKind = "event"
	FramePresence FrameKind = "presence"
)

// Frame is the wire envelope pushed to websocket clients.
type Frame struct {
	Kind FrameKind       `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// PresencePayload announces a manager joining or leaving an auction room.
type PresencePayload struct {
	AuctionID      uuid.UUID   `json:"auction_id"`
	ManagerID      uuid.UUID   `json:"manager_id"`
	Online         bool        `json:"online"`
	OnlineManagers []uuid.UUID `json:"online_managers"`
}

// Connection is one websocket client subscribed to an auction room.
type Connection struct {
	ID        string
	ManagerID uuid.UUID
	AuctionID uuid.UUID
	LeagueID  uuid.UUID
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendQueueSize   int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendQueueSize:   256,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

type broadcastMessage struct {
	auctionID uuid.UUID
	leagueID  uuid.UUID
	frame     []byte
	kind      FrameKind
}

// ConnectionManager owns the per-auction websocket pools, presence tracking
// and fan-out. A client whose send queue stays full is disconnected rather
// than allowed to stall the broadcast; it reconnects and resyncs from a
// fresh snapshot.
type ConnectionManager struct {
	mu       sync.RWMutex
	rooms    map[uuid.UUID]map[*Connection]bool // keyed by auction ID
	presence map[uuid.UUID]map[uuid.UUID]int    // auction ID -> manager ID -> conn count

	snapshots SnapshotProvider
	upgrader  websocket.Upgrader
	config    ConnectionConfig

	broadcastCh chan broadcastMessage
}

// NewConnectionManager creates a connection manager.
func NewConnectionManager(config ConnectionConfig, snapshots SnapshotProvider) *ConnectionManager {
	return &ConnectionManager{
		rooms:     make(map[uuid.UUID]map[*Connection]bool),
		presence:  make(map[uuid.UUID]map[uuid.UUID]int),
		snapshots: snapshots,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start processes broadcasts until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// HandleAuctionSocket upgrades the request and joins the client to the
// auction room. The first frame on the wire is the full snapshot; every
// delta the client receives afterwards builds on it.
func (cm *ConnectionManager) HandleAuctionSocket(w http.ResponseWriter, r *http.Request, managerID, auctionID uuid.UUID) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		ManagerID:   managerID,
		AuctionID:   auctionID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendQueueSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	if err := cm.joinRoom(r.Context(), connection); err != nil {
		conn.Close()
		return err
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("manager_id", managerID.String()).
		Str("auction_id", auctionID.String()).
		Msg("websocket connection established")
	return nil
}

// joinRoom captures the wire snapshot, queues it and registers the
// connection as one step under the manager lock. Broadcast delivery takes
// the same lock, so a delta processed before the join is already reflected
// in the snapshot and one processed after it lands in the queue behind the
// snapshot frame; no mutation can fall between the two. Announces presence
// when this is the manager's first connection.
func (cm *ConnectionManager) joinRoom(ctx context.Context, conn *Connection) error {
	cm.mu.Lock()

	snap, err := cm.snapshots.AuctionSnapshot(ctx, conn.AuctionID)
	if err != nil {
		cm.mu.Unlock()
		return fmt.Errorf("load snapshot: %w", err)
	}
	snapFrame, err := marshalFrame(FrameSnapshot, snap)
	if err != nil {
		cm.mu.Unlock()
		return err
	}
	conn.LeagueID = snap.LeagueID

	// Pumps have not started, so the queue is empty and the snapshot is the
	// first frame out.
	conn.Send <- snapFrame

	if cm.rooms[conn.AuctionID] == nil {
		cm.rooms[conn.AuctionID] = make(map[*Connection]bool)
	}
	cm.rooms[conn.AuctionID][conn] = true

	if cm.presence[conn.AuctionID] == nil {
		cm.presence[conn.AuctionID] = make(map[uuid.UUID]int)
	}
	cm.presence[conn.AuctionID][conn.ManagerID]++
	first := cm.presence[conn.AuctionID][conn.ManagerID] == 1
	online := cm.onlineManagersLocked(conn.AuctionID)
	cm.mu.Unlock()

	if first {
		cm.broadcastPresence(conn, true, online)
	}
	return nil
}

// unregister removes a connection, closing its send queue, and announces
// departure when the manager's last connection is gone.
func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	room, exists := cm.rooms[conn.AuctionID]
	if !exists || !room[conn] {
		cm.mu.Unlock()
		return
	}
	delete(room, conn)
	close(conn.Send)
	if len(room) == 0 {
		delete(cm.rooms, conn.AuctionID)
	}

	last := false
	if counts := cm.presence[conn.AuctionID]; counts != nil {
		counts[conn.ManagerID]--
		if counts[conn.ManagerID] <= 0 {
			delete(counts, conn.ManagerID)
			last = true
		}
		if len(counts) == 0 {
			delete(cm.presence, conn.AuctionID)
		}
	}
	online := cm.onlineManagersLocked(conn.AuctionID)
	cm.mu.Unlock()

	if last {
		cm.broadcastPresence(conn, false, online)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("manager_id", conn.ManagerID.String()).
		Str("auction_id", conn.AuctionID.String()).
		Msg("websocket connection closed")
}

// onlineManagersLocked lists managers with at least one connection. Caller
// holds cm.mu.
func (cm *ConnectionManager) onlineManagersLocked(auctionID uuid.UUID) []uuid.UUID {
	counts := cm.presence[auctionID]
	out := make([]uuid.UUID, 0, len(counts))
	for id := range counts {
		out = append(out, id)
	}
	return out
}

// OnlineManagers lists managers currently connected to an auction room.
func (cm *ConnectionManager) OnlineManagers(auctionID uuid.UUID) []uuid.UUID {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.onlineManagersLocked(auctionID)
}

func (cm *ConnectionManager) broadcastPresence(conn *Connection, online bool, managers []uuid.UUID) {
	frame, err := marshalFrame(FramePresence, PresencePayload{
		AuctionID:      conn.AuctionID,
		ManagerID:      conn.ManagerID,
		Online:         online,
		OnlineManagers: managers,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal presence frame")
		return
	}
	cm.enqueue(broadcastMessage{
		auctionID: conn.AuctionID,
		leagueID:  conn.LeagueID,
		frame:     frame,
		kind:      FramePresence,
	})
}

// BroadcastEvent fans an event out to the auction's room. Events without an
// auction, like settlements, go to every room of the league.
func (cm *ConnectionManager) BroadcastEvent(event events.Event) {
	frame, err := marshalFrame(FrameEvent, event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event frame")
		return
	}
	cm.enqueue(broadcastMessage{
		auctionID: event.AuctionID,
		leagueID:  event.LeagueID,
		frame:     frame,
		kind:      FrameEvent,
	})
}

// Publish implements events.Publisher for the in-process fan-out path.
func (cm *ConnectionManager) Publish(_ context.Context, event events.Event) error {
	cm.BroadcastEvent(event)
	return nil
}

var _ events.Publisher = (*ConnectionManager)(nil)

func (cm *ConnectionManager) enqueue(message broadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().
			Str("auction_id", message.auctionID.String()).
			Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast fans one frame out to the room. Sends happen under the
// read lock and close(Send) only ever happens in unregister under the write
// lock, so a send can never race a close.
func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	var targets []*Connection
	if message.auctionID != uuid.Nil {
		for conn := range cm.rooms[message.auctionID] {
			targets = append(targets, conn)
		}
	} else {
		for _, room := range cm.rooms {
			for conn := range room {
				if conn.LeagueID == message.leagueID {
					targets = append(targets, conn)
				}
			}
		}
	}

	var slow []*Connection
	for _, conn := range targets {
		select {
		case conn.Send <- message.frame:
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		// A full queue means the client stopped reading. Drop it; the room
		// must not stall for one slow consumer.
		log.Warn().
			Str("connection_id", conn.ID).
			Str("manager_id", conn.ManagerID.String()).
			Msg("send queue full, closing connection")
		cm.unregister(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("kind", string(message.kind)).
		Int("connections", len(targets)).
		Msg("frame broadcasted")
}

// Stats summarizes active rooms and connections.
func (cm *ConnectionManager) Stats() map[string]any {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	total := 0
	rooms := make(map[string]int)
	for auctionID, room := range cm.rooms {
		total += len(room)
		rooms[auctionID.String()] = len(room)
	}
	return map[string]any{
		"total_connections": total,
		"active_auctions":   len(cm.rooms),
		"room_connections":  rooms,
	}
}

func marshalFrame(kind FrameKind, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return json.Marshal(Frame{Kind: kind, Data: data})
}

// writePump drains the send queue to the socket and keeps the connection
// alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write websocket message")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump consumes client frames. The socket is push-only; commands travel
// over HTTP, so inbound frames only feed the keepalive.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close")
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
