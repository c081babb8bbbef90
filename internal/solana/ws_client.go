package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solana-position-tracker/internal/observability"
)

// LogsSubscriber keeps logsSubscribe subscriptions alive over one websocket
// connection. Subscriptions are registered by key and replayed after every
// reconnect, so callers never see subscription ids.
type LogsSubscriber struct {
	endpoint string
	config   WSConfig
	logger   *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	filters map[string]LogsFilter
	pending map[uint64]string // request id -> key
	active  map[int64]string  // subscription id -> key

	requestID atomic.Uint64
	out       chan LogNotification
}

// NewLogsSubscriber creates a subscriber. Nothing is dialled until Run.
func NewLogsSubscriber(endpoint string, config *WSConfig, logger *zap.Logger) *LogsSubscriber {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogsSubscriber{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger.Named("ws"),
		filters:  make(map[string]LogsFilter),
		pending:  make(map[uint64]string),
		active:   make(map[int64]string),
		out:      make(chan LogNotification, cfg.Buffer),
	}
}

// Notifications returns the channel all subscriptions deliver to.
// It is closed when Run returns.
func (s *LogsSubscriber) Notifications() <-chan LogNotification {
	return s.out
}

// Subscribe registers filter under key. If a connection is live the
// subscription request is sent immediately, otherwise on the next connect.
func (s *LogsSubscriber) Subscribe(key string, filter LogsFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filters[key] = filter
	if s.conn == nil {
		return nil
	}
	return s.sendSubscribeLocked(key, filter)
}

// Run dials the endpoint and serves subscriptions until ctx is done,
// reconnecting with exponential backoff on any connection failure.
func (s *LogsSubscriber) Run(ctx context.Context) error {
	defer close(s.out)

	delay := s.config.ReconnectDelay
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("websocket session ended, reconnecting",
			zap.Duration("delay", delay),
			zap.Error(err))
		observability.RecordWSReconnect()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.config.MaxReconnectDelay {
			delay = s.config.MaxReconnectDelay
		}
	}
}

// session runs one connection: dial, resubscribe everything, read until error.
func (s *LogsSubscriber) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer s.dropConn(conn)

	conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	if err := s.attach(conn); err != nil {
		return err
	}
	s.logger.Info("websocket connected", zap.String("endpoint", s.endpoint))

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(sessionCtx, conn)
	go func() {
		<-sessionCtx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("websocket read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		if notif, ok := s.handleMessage(message); ok {
			observability.RecordWSNotification()
			select {
			case s.out <- notif:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// attach installs conn and replays every registered filter on it.
func (s *LogsSubscriber) attach(conn *websocket.Conn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn = conn
	s.pending = make(map[uint64]string)
	s.active = make(map[int64]string)

	for key, filter := range s.filters {
		if err := s.sendSubscribeLocked(key, filter); err != nil {
			return err
		}
	}
	return nil
}

func (s *LogsSubscriber) dropConn(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	conn.Close()
}

func (s *LogsSubscriber) sendSubscribeLocked(key string, filter LogsFilter) error {
	reqID := s.requestID.Add(1)

	mentions := map[string]interface{}{"all": nil}
	if len(filter.Mentions) > 0 {
		mentions = map[string]interface{}{"mentions": filter.Mentions}
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentions,
			map[string]string{"commitment": "confirmed"},
		},
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	s.pending[reqID] = key
	return nil
}

// handleMessage records subscription confirmations and converts
// notifications. It returns ok only for deliverable notifications.
func (s *LogsSubscriber) handleMessage(message []byte) (LogNotification, bool) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.logger.Debug("ignoring malformed websocket message", zap.Error(err))
		return LogNotification{}, false
	}

	switch {
	case msg.Error != nil:
		s.mu.Lock()
		key := s.pending[msg.ID]
		delete(s.pending, msg.ID)
		s.mu.Unlock()
		s.logger.Error("subscription rejected",
			zap.String("key", key),
			zap.Int("code", msg.Error.Code),
			zap.String("message", msg.Error.Message))
		return LogNotification{}, false

	case msg.Method == "logsNotification" && msg.Params != nil:
		s.mu.Lock()
		key, ok := s.active[msg.Params.Subscription]
		s.mu.Unlock()
		if !ok {
			return LogNotification{}, false
		}
		value := msg.Params.Result.Value
		notif := LogNotification{
			Key:       key,
			Signature: value.Signature,
			Logs:      value.Logs,
			Err:       value.Err,
		}
		if msg.Params.Result.Context != nil {
			notif.Slot = msg.Params.Result.Context.Slot
		}
		return notif, true

	case msg.ID != 0 && len(msg.Result) > 0:
		var subID int64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return LogNotification{}, false
		}
		s.mu.Lock()
		if key, ok := s.pending[msg.ID]; ok {
			delete(s.pending, msg.ID)
			s.active[subID] = key
		}
		s.mu.Unlock()
	}

	return LogNotification{}, false
}

func (s *LogsSubscriber) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.WriteTimeout))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				s.logger.Debug("ping failed", zap.Error(err))
			}
		}
	}
}

// Subscribed reports how many subscriptions the node has confirmed on the
// current connection.
func (s *LogsSubscriber) Subscribed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsMessage struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id"`
	Result  json.RawMessage       `json:"result"`
	Error   *RPCError             `json:"error"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
