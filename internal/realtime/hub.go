// Package realtime delivers notifications to connected websocket sessions.
//
// Delivery is fire-and-forget: a recipient with no open session misses the
// frame and nothing is stored for later. The inbox is the durable record.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"givedesk.io/backoffice/internal/domain"
	apperrors "givedesk.io/backoffice/internal/pkg/errors"
	"givedesk.io/backoffice/internal/pkg/logger"
	"givedesk.io/backoffice/internal/pkg/worker"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	readLimit  = 512
)

// EventNotification is the frame type for a new notification.
const EventNotification = "notification"

// Frame is the JSON envelope written to sessions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Emitter publishes a payload to every session of one recipient.
type Emitter interface {
	Emit(ctx context.Context, role domain.RecipientRole, recipientID string, payload interface{}) error
}

// EncodeFrame wraps payload in a notification frame.
func EncodeFrame(payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.BusinessLogicError(apperrors.CodeNotificationInvalid, "encode realtime payload: "+err.Error())
	}
	return json.Marshal(Frame{Type: EventNotification, Data: data})
}

func sessionKey(role domain.RecipientRole, recipientID string) string {
	return string(role) + "_" + recipientID
}

// Session is one open websocket.
type Session struct {
	conn     *websocket.Conn
	key      string
	writeMu  sync.Mutex
	lastSeen atomic.Int64
}

func (s *Session) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

func (s *Session) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

// Hub tracks the sessions connected to this process.
type Hub struct {
	pools *worker.Pools

	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
}

// NewHub creates a Hub whose socket writes run on the realtime pool.
func NewHub(pools *worker.Pools) *Hub {
	return &Hub{
		pools:    pools,
		sessions: make(map[string]map[*Session]struct{}),
	}
}

// Register adds conn as a session of the recipient.
func (h *Hub) Register(role domain.RecipientRole, recipientID string, conn *websocket.Conn) *Session {
	s := &Session{conn: conn, key: sessionKey(role, recipientID)}
	s.touch()

	h.mu.Lock()
	set, ok := h.sessions[s.key]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[s.key] = set
	}
	set[s] = struct{}{}
	total := len(set)
	h.mu.Unlock()

	realtimeSessions.Inc()
	logger.Debug("Realtime session connected", zap.String("session", s.key), zap.Int("sessions", total))
	return s
}

// Unregister removes and closes s. Safe to call more than once.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	set, ok := h.sessions[s.key]
	_, present := set[s]
	if ok && present {
		delete(set, s)
		if len(set) == 0 {
			delete(h.sessions, s.key)
		}
	}
	h.mu.Unlock()

	if present {
		realtimeSessions.Dec()
		logger.Debug("Realtime session disconnected", zap.String("session", s.key))
	}
	_ = s.conn.Close()
}

// Connected returns the number of local sessions of a recipient.
func (h *Hub) Connected(role domain.RecipientRole, recipientID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionKey(role, recipientID)])
}

// Emit writes payload to the recipient's local sessions without waiting.
func (h *Hub) Emit(_ context.Context, role domain.RecipientRole, recipientID string, payload interface{}) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}
	h.Deliver(role, recipientID, frame)
	return nil
}

// Deliver schedules frame on every local session of the recipient and
// returns how many writes were scheduled. Writes that the realtime pool
// cannot accept are dropped.
func (h *Hub) Deliver(role domain.RecipientRole, recipientID string, frame []byte) int {
	key := sessionKey(role, recipientID)

	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[key]))
	for s := range h.sessions[key] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		realtimeFrames.WithLabelValues("no_session").Inc()
		return 0
	}

	scheduled := 0
	for _, s := range targets {
		s := s
		err := h.pools.SubmitDetached(worker.PoolRealtime, func(context.Context) {
			if err := s.write(websocket.TextMessage, frame); err != nil {
				realtimeFrames.WithLabelValues("write_failed").Inc()
				logger.Debug("Realtime write failed", zap.String("session", s.key), zap.Error(err))
				h.Unregister(s)
				return
			}
			realtimeFrames.WithLabelValues("written").Inc()
		})
		if err != nil {
			realtimeFrames.WithLabelValues("dropped").Inc()
			logger.Warn("Realtime frame dropped", zap.String("session", s.key), zap.Error(err))
			continue
		}
		scheduled++
	}
	return scheduled
}

// Serve runs the read loop of s until the peer goes away. Clients only send
// pongs; other frames are discarded.
func (h *Hub) Serve(s *Session) {
	defer h.Unregister(s)

	s.conn.SetReadLimit(readLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
		s.touch()
	}
}

// Heartbeat pings every session each interval and drops sessions that have
// not answered for two intervals. It returns when ctx is done.
func (h *Hub) Heartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = pingPeriod
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		h.mu.RLock()
		all := make([]*Session, 0)
		for _, set := range h.sessions {
			for s := range set {
				all = append(all, s)
			}
		}
		h.mu.RUnlock()

		cutoff := time.Now().Add(-2 * interval).UnixNano()
		for _, s := range all {
			if s.lastSeen.Load() < cutoff {
				h.Unregister(s)
				continue
			}
			if err := s.write(websocket.PingMessage, nil); err != nil {
				h.Unregister(s)
			}
		}
	}
}

// Close drops every session.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Session, 0)
	for _, set := range h.sessions {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range all {
		_ = s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		h.Unregister(s)
	}
}

var _ Emitter = (*Hub)(nil)
