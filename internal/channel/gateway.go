package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/sketchdash/client/internal/event"
	"github.com/sketchdash/client/internal/obslog"
)

// gwFrame is the gateway wire protocol. The gateway owns presence bookkeeping
// and fans broadcast frames out to every subscriber of a topic, the sender
// included.
type gwFrame struct {
	Op      string          `json:"op"` // subscribe|subscribed|unsubscribe|track|presence|broadcast
	Topic   string          `json:"topic,omitempty"`
	Key     string          `json:"key,omitempty"`
	Event   string          `json:"event,omitempty"`
	Keys    []string        `json:"keys,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Gateway implements Channel over a single websocket connection to a realtime
// gateway. Used instead of Redis when REALTIME_WS_URL is configured.
type Gateway struct {
	wsURL string

	mu   sync.Mutex
	conn *websocket.Conn
	subs map[string]*gwSub // topic -> sub

	maxReconnectAttempts int
	reconnectDelay       time.Duration
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewGateway(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration) *Gateway {
	return &Gateway{
		wsURL:                wsURL,
		subs:                 make(map[string]*gwSub),
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

func (g *Gateway) Subscribe(ctx context.Context, topic, presenceKey string) (Subscription, error) {
	if err := g.ensureConnected(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
	}

	s := &gwSub{
		gw:    g,
		topic: topic,
		key:   presenceKey,
		inbox: make(chan Inbound, 256),
		acked: make(chan struct{}),
	}
	g.mu.Lock()
	g.subs[topic] = s
	g.mu.Unlock()

	if err := g.write(ctx, gwFrame{Op: "subscribe", Topic: topic, Key: presenceKey}); err != nil {
		g.dropSub(topic)
		return nil, fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
	}

	select {
	case <-s.acked:
	case <-ctx.Done():
		g.dropSub(topic)
		return nil, fmt.Errorf("%w: %v", ErrSubscribeFailed, ctx.Err())
	case <-time.After(10 * time.Second):
		g.dropSub(topic)
		return nil, fmt.Errorf("%w: subscribe ack timeout", ErrSubscribeFailed)
	}
	obslog.L().Info("gateway_subscribed", zap.String("topic", topic))
	return s, nil
}

func (g *Gateway) ensureConnected(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		return nil
	}
	return g.dialLocked(ctx)
}

func (g *Gateway) dialLocked(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, g.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return err
	}
	g.conn = conn
	go g.readLoop(conn)
	go g.pingLoop(conn)
	return nil
}

func (g *Gateway) write(ctx context.Context, f gwFrame) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("gateway not connected")
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(wctx, conn, f)
}

func (g *Gateway) readLoop(conn *websocket.Conn) {
	for {
		var f gwFrame
		if err := wsjson.Read(context.Background(), conn, &f); err != nil {
			select {
			case <-g.stopCh:
				return
			default:
			}
			obslog.L().Warn("gateway_read_error", zap.Error(err))
			g.reconnect(conn)
			return
		}
		g.route(f)
	}
}

func (g *Gateway) pingLoop(conn *websocket.Conn) {
	t := time.NewTicker(g.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-g.stopCh:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (g *Gateway) route(f gwFrame) {
	g.mu.Lock()
	s := g.subs[f.Topic]
	g.mu.Unlock()
	if s == nil {
		return
	}
	switch f.Op {
	case "subscribed":
		s.ackOnce.Do(func() { close(s.acked) })
	case "presence":
		s.emit(&Presence{Type: PresenceEventType(f.Event), Key: f.Key, Keys: f.Keys})
	case "broadcast":
		var env event.Envelope
		if err := json.Unmarshal(f.Payload, &env); err != nil {
			obslog.L().Warn("gateway_bad_envelope", zap.String("topic", f.Topic), zap.Error(err))
			return
		}
		s.emit(&Broadcast{Env: env})
	}
}

// reconnect redials and replays subscribe/track for every live subscription.
// When attempts are exhausted every inbox is closed, which the sessions see as
// channel loss.
func (g *Gateway) reconnect(old *websocket.Conn) {
	g.mu.Lock()
	if g.conn != old {
		g.mu.Unlock()
		return
	}
	g.conn = nil
	g.mu.Unlock()
	_ = old.Close(websocket.StatusAbnormalClosure, "read failed")

	for attempt := 1; attempt <= g.maxReconnectAttempts; attempt++ {
		select {
		case <-g.stopCh:
			return
		case <-time.After(g.reconnectDelay * time.Duration(attempt)):
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		g.mu.Lock()
		err := g.dialLocked(ctx)
		g.mu.Unlock()
		cancel()
		if err != nil {
			obslog.L().Warn("gateway_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		g.replaySubs()
		obslog.L().Info("gateway_reconnected", zap.Int("attempt", attempt))
		return
	}
	g.failAll()
}

func (g *Gateway) replaySubs() {
	g.mu.Lock()
	subs := make([]*gwSub, 0, len(g.subs))
	for _, s := range g.subs {
		subs = append(subs, s)
	}
	g.mu.Unlock()
	for _, s := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = g.write(ctx, gwFrame{Op: "subscribe", Topic: s.topic, Key: s.key})
		if s.isTracked() {
			_ = g.write(ctx, gwFrame{Op: "track", Topic: s.topic, Key: s.key})
		}
		cancel()
	}
}

func (g *Gateway) failAll() {
	g.mu.Lock()
	subs := g.subs
	g.subs = make(map[string]*gwSub)
	g.mu.Unlock()
	for _, s := range subs {
		s.closeInbox()
	}
}

func (g *Gateway) dropSub(topic string) {
	g.mu.Lock()
	s := g.subs[topic]
	delete(g.subs, topic)
	g.mu.Unlock()
	if s != nil {
		s.closeInbox()
	}
}

func (g *Gateway) Close(ctx context.Context) error {
	g.stopOnce.Do(func() { close(g.stopCh) })
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "bye")
	}
	return nil
}

type gwSub struct {
	gw    *Gateway
	topic string
	key   string

	inbox chan Inbound

	acked   chan struct{}
	ackOnce sync.Once

	mu        sync.Mutex
	tracked   bool
	inboxDone bool
}

func (s *gwSub) Recv() <-chan Inbound { return s.inbox }

func (s *gwSub) Track(ctx context.Context) error {
	s.mu.Lock()
	s.tracked = true
	s.mu.Unlock()
	return s.gw.write(ctx, gwFrame{Op: "track", Topic: s.topic, Key: s.key})
}

func (s *gwSub) Send(ctx context.Context, env event.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.gw.write(ctx, gwFrame{Op: "broadcast", Topic: s.topic, Key: s.key, Payload: raw})
}

func (s *gwSub) Unsubscribe(ctx context.Context) error {
	_ = s.gw.write(ctx, gwFrame{Op: "unsubscribe", Topic: s.topic, Key: s.key})
	s.gw.dropSub(s.topic)
	return nil
}

func (s *gwSub) isTracked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracked
}

func (s *gwSub) emit(in Inbound) {
	s.mu.Lock()
	done := s.inboxDone
	s.mu.Unlock()
	if done {
		return
	}
	select {
	case s.inbox <- in:
	default:
		obslog.L().Warn("gateway_inbox_full", zap.String("topic", s.topic))
	}
}

func (s *gwSub) closeInbox() {
	s.mu.Lock()
	if s.inboxDone {
		s.mu.Unlock()
		return
	}
	s.inboxDone = true
	s.mu.Unlock()
	close(s.inbox)
}

var _ Channel = (*Gateway)(nil)
var _ Channel = (*RedisChannel)(nil)
