package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sketchdash/client/internal/event"
	"github.com/sketchdash/client/internal/obslog"
)

const (
	presenceTTL    = 15 * time.Second
	heartbeatEvery = 5 * time.Second
	sweepEvery     = 2 * time.Second
)

// frame is the wire format multiplexing presence and broadcast traffic on one
// pub/sub topic.
type frame struct {
	Kind    string          `json:"kind"` // "presence" | "broadcast"
	Event   string          `json:"event"`
	Key     string          `json:"key,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RedisChannel implements Channel over Redis pub/sub. Presence is a roster
// set plus one TTL key per connected member; leaves are derived from TTL
// expiry by a periodic sweep, so a crashed peer is observed as gone without
// any explicit message.
type RedisChannel struct {
	rdb *redis.Client
}

func NewRedisChannel(rdb *redis.Client) *RedisChannel { return &RedisChannel{rdb: rdb} }

func keyBus(topic string) string    { return "rt:" + topic }
func keyRoster(topic string) string { return "presence:" + topic }
func keyAlive(topic, member string) string {
	return "presence:" + topic + ":" + member
}

func (c *RedisChannel) Subscribe(ctx context.Context, topic, presenceKey string) (Subscription, error) {
	ps := c.rdb.Subscribe(ctx, keyBus(topic))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
	}
	s := &redisSub{
		rdb:   c.rdb,
		ps:    ps,
		topic: topic,
		key:   presenceKey,
		inbox: make(chan Inbound, 256),
		done:  make(chan struct{}),
		seen:  make(map[string]bool),
	}
	go s.run()
	obslog.L().Info("channel_subscribed", zap.String("topic", topic), zap.String("presence_key", presenceKey))
	return s, nil
}

type redisSub struct {
	rdb   *redis.Client
	ps    *redis.PubSub
	topic string
	key   string

	inbox chan Inbound

	mu      sync.Mutex
	tracked bool
	closed  bool
	done    chan struct{}

	seen map[string]bool // last swept live member set
}

func (s *redisSub) Recv() <-chan Inbound { return s.inbox }

func (s *redisSub) Track(ctx context.Context) error {
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, keyRoster(s.topic), s.key)
	pipe.Set(ctx, keyAlive(s.topic, s.key), "1", presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.tracked = true
	s.mu.Unlock()
	return s.publish(ctx, frame{Kind: "presence", Event: string(PresenceJoin), Key: s.key})
}

func (s *redisSub) Send(ctx context.Context, env event.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.publish(ctx, frame{Kind: "broadcast", Payload: raw})
}

func (s *redisSub) publish(ctx context.Context, f frame) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, keyBus(s.topic), raw).Err()
}

// Unsubscribe is best-effort: it withdraws presence and closes the pub/sub
// connection. Peers that miss the leave frame still observe the TTL expiry.
func (s *redisSub) Unsubscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, keyRoster(s.topic), s.key)
	pipe.Del(ctx, keyAlive(s.topic, s.key))
	_, _ = pipe.Exec(ctx)
	_ = s.publish(ctx, frame{Kind: "presence", Event: string(PresenceLeave), Key: s.key})

	close(s.done)
	return s.ps.Close()
}

func (s *redisSub) run() {
	defer close(s.inbox)

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()

	// initial roster snapshot becomes the presence sync event
	s.sweep(true)

	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case <-heartbeat.C:
			s.refresh()
		case <-sweep.C:
			s.sweep(false)
		case m, ok := <-msgs:
			if !ok {
				return
			}
			s.dispatch(m.Payload)
		}
	}
}

func (s *redisSub) dispatch(payload string) {
	var f frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		obslog.L().Warn("channel_bad_frame", zap.String("topic", s.topic), zap.Error(err))
		return
	}
	switch f.Kind {
	case "presence":
		ev := &Presence{Type: PresenceEventType(f.Event), Key: f.Key}
		if ev.Type == PresenceJoin {
			s.mu.Lock()
			s.seen[f.Key] = true
			s.mu.Unlock()
		}
		if ev.Type == PresenceLeave {
			s.mu.Lock()
			delete(s.seen, f.Key)
			s.mu.Unlock()
		}
		s.emit(ev)
	case "broadcast":
		var env event.Envelope
		if err := json.Unmarshal(f.Payload, &env); err != nil {
			obslog.L().Warn("channel_bad_envelope", zap.String("topic", s.topic), zap.Error(err))
			return
		}
		s.emit(&Broadcast{Env: env})
	}
}

func (s *redisSub) refresh() {
	s.mu.Lock()
	tracked := s.tracked
	s.mu.Unlock()
	if !tracked {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.rdb.Set(ctx, keyAlive(s.topic, s.key), "1", presenceTTL).Err()
}

// sweep reconciles the roster against the per-member alive keys: dead members
// are pruned and reported as leaves, and on roster change (or at subscribe
// time) a full sync snapshot is emitted.
func (s *redisSub) sweep(initial bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	members, err := s.rdb.SMembers(ctx, keyRoster(s.topic)).Result()
	if err != nil {
		obslog.L().Warn("channel_sweep_error", zap.String("topic", s.topic), zap.Error(err))
		return
	}

	live := make([]string, 0, len(members))
	for _, m := range members {
		n, err := s.rdb.Exists(ctx, keyAlive(s.topic, m)).Result()
		if err != nil {
			continue
		}
		if n > 0 {
			live = append(live, m)
			continue
		}
		_ = s.rdb.SRem(ctx, keyRoster(s.topic), m).Err()
	}
	sort.Strings(live)

	s.mu.Lock()
	var left []string
	for m := range s.seen {
		if !contains(live, m) {
			left = append(left, m)
		}
	}
	changed := initial || len(left) > 0 || len(live) != len(s.seen)
	s.seen = make(map[string]bool, len(live))
	for _, m := range live {
		s.seen[m] = true
	}
	s.mu.Unlock()

	sort.Strings(left)
	for _, m := range left {
		s.emit(&Presence{Type: PresenceLeave, Key: m})
	}
	if changed {
		s.emit(&Presence{Type: PresenceSync, Keys: live})
	}
}

func (s *redisSub) emit(in Inbound) {
	select {
	case s.inbox <- in:
	case <-s.done:
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
