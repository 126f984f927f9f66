package channel

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sketchdash/client/internal/event"
)

func newTestChannel(t *testing.T) (*RedisChannel, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisChannel(rdb), mr
}

// expect drains the inbox until match accepts an item or the deadline hits.
func expect(t *testing.T, sub Subscription, what string, match func(Inbound) bool) Inbound {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-sub.Recv():
			if !ok {
				t.Fatalf("inbox closed while waiting for %s", what)
			}
			if match(msg) {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func TestTrackAnnouncesJoin(t *testing.T) {
	ch, _ := newTestChannel(t)
	ctx := context.Background()

	a, err := ch.Subscribe(ctx, "room:t1", "alice")
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	defer func() { _ = a.Unsubscribe(ctx) }()
	b, err := ch.Subscribe(ctx, "room:t1", "bob")
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer func() { _ = b.Unsubscribe(ctx) }()

	if err := a.Track(ctx); err != nil {
		t.Fatalf("track a: %v", err)
	}
	expect(t, b, "join of alice", func(m Inbound) bool {
		p, ok := m.(*Presence)
		return ok && p.Type == PresenceJoin && p.Key == "alice"
	})
}

func TestLateSubscriberGetsSync(t *testing.T) {
	ch, _ := newTestChannel(t)
	ctx := context.Background()

	a, err := ch.Subscribe(ctx, "room:t2", "alice")
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	defer func() { _ = a.Unsubscribe(ctx) }()
	if err := a.Track(ctx); err != nil {
		t.Fatalf("track a: %v", err)
	}

	b, err := ch.Subscribe(ctx, "room:t2", "bob")
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer func() { _ = b.Unsubscribe(ctx) }()

	expect(t, b, "sync containing alice", func(m Inbound) bool {
		p, ok := m.(*Presence)
		if !ok || p.Type != PresenceSync {
			return false
		}
		for _, k := range p.Keys {
			if k == "alice" {
				return true
			}
		}
		return false
	})
}

func TestBroadcastReachesEveryoneIncludingSender(t *testing.T) {
	ch, _ := newTestChannel(t)
	ctx := context.Background()

	a, err := ch.Subscribe(ctx, "room:t3", "alice")
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	defer func() { _ = a.Unsubscribe(ctx) }()
	b, err := ch.Subscribe(ctx, "room:t3", "bob")
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer func() { _ = b.Unsubscribe(ctx) }()

	env, err := event.Encode(&event.RoundIDUpdate{RoundID: "rnd-1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := a.Send(ctx, env); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, sub := range []Subscription{a, b} {
		got := expect(t, sub, "broadcast", func(m Inbound) bool {
			_, ok := m.(*Broadcast)
			return ok
		})
		bc := got.(*Broadcast)
		if bc.Env.Event != event.NameRoundIDUpdate {
			t.Fatalf("event = %q, want %q", bc.Env.Event, event.NameRoundIDUpdate)
		}
	}
}

func TestUnsubscribeAnnouncesLeave(t *testing.T) {
	ch, _ := newTestChannel(t)
	ctx := context.Background()

	a, err := ch.Subscribe(ctx, "room:t4", "alice")
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	b, err := ch.Subscribe(ctx, "room:t4", "bob")
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer func() { _ = b.Unsubscribe(ctx) }()

	if err := a.Track(ctx); err != nil {
		t.Fatalf("track a: %v", err)
	}
	if err := a.Unsubscribe(ctx); err != nil {
		t.Fatalf("unsubscribe a: %v", err)
	}
	expect(t, b, "leave of alice", func(m Inbound) bool {
		p, ok := m.(*Presence)
		return ok && p.Type == PresenceLeave && p.Key == "alice"
	})
}

// A peer that dies without unsubscribing is noticed when its alive key
// disappears and the sweep reconciles the roster.
func TestDeadPeerDetectedBySweep(t *testing.T) {
	if testing.Short() {
		t.Skip("sweep test needs real time")
	}
	ch, mr := newTestChannel(t)
	ctx := context.Background()

	a, err := ch.Subscribe(ctx, "room:t5", "alice")
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	defer func() { _ = a.Unsubscribe(ctx) }()
	b, err := ch.Subscribe(ctx, "room:t5", "bob")
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer func() { _ = b.Unsubscribe(ctx) }()

	if err := a.Track(ctx); err != nil {
		t.Fatalf("track a: %v", err)
	}
	expect(t, b, "join of alice", func(m Inbound) bool {
		p, ok := m.(*Presence)
		return ok && p.Type == PresenceJoin && p.Key == "alice"
	})

	// simulate a crash: the alive key vanishes, the roster entry stays
	mr.Del(keyAlive("room:t5", "alice"))

	expect(t, b, "derived leave of alice", func(m Inbound) bool {
		p, ok := m.(*Presence)
		return ok && p.Type == PresenceLeave && p.Key == "alice"
	})
}
