package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sketchdash/client/internal/channel"
	"github.com/sketchdash/client/internal/event"
	"github.com/sketchdash/client/internal/predict"
	"github.com/sketchdash/client/internal/store"
	"github.com/sketchdash/client/internal/topics"
)

// fakeHub is an in-process channel transport. Every Send is delivered to all
// subscribers of the topic, the sender included, matching the self-delivery
// semantics of the real transports.
type fakeHub struct {
	mu   sync.Mutex
	subs map[string][]*fakeSub
}

func newFakeHub() *fakeHub {
	return &fakeHub{subs: make(map[string][]*fakeSub)}
}

func (h *fakeHub) Subscribe(ctx context.Context, topic, presenceKey string) (channel.Subscription, error) {
	s := &fakeSub{hub: h, topic: topic, key: presenceKey, inbox: make(chan channel.Inbound, 256)}
	h.mu.Lock()
	h.subs[topic] = append(h.subs[topic], s)
	h.mu.Unlock()
	return s, nil
}

func (h *fakeHub) fanout(topic string, mk func() channel.Inbound) {
	h.mu.Lock()
	subs := append([]*fakeSub(nil), h.subs[topic]...)
	h.mu.Unlock()
	for _, s := range subs {
		select {
		case s.inbox <- mk():
		default:
		}
	}
}

// inject delivers a raw inbound to every subscriber, for simulating traffic
// that did not originate from a live subscription.
func (h *fakeHub) inject(topic string, mk func() channel.Inbound) {
	h.fanout(topic, mk)
}

type fakeSub struct {
	hub    *fakeHub
	topic  string
	key    string
	inbox  chan channel.Inbound
	closed sync.Once
}

func (s *fakeSub) Recv() <-chan channel.Inbound { return s.inbox }

func (s *fakeSub) Track(ctx context.Context) error {
	key := s.key
	s.hub.fanout(s.topic, func() channel.Inbound {
		return &channel.Presence{Type: channel.PresenceJoin, Key: key}
	})
	return nil
}

func (s *fakeSub) Send(ctx context.Context, env event.Envelope) error {
	s.hub.fanout(s.topic, func() channel.Inbound {
		return &channel.Broadcast{Env: env}
	})
	return nil
}

func (s *fakeSub) Unsubscribe(ctx context.Context) error {
	s.hub.mu.Lock()
	list := s.hub.subs[s.topic]
	for i, sub := range list {
		if sub == s {
			s.hub.subs[s.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	s.hub.mu.Unlock()
	key := s.key
	s.hub.fanout(s.topic, func() channel.Inbound {
		return &channel.Presence{Type: channel.PresenceLeave, Key: key}
	})
	s.closed.Do(func() { close(s.inbox) })
	return nil
}

// fakeAI returns a fixed label and similarity and counts invocations.
type fakeAI struct {
	mu    sync.Mutex
	label string
	sim   float64
	calls int
}

func (f *fakeAI) Predict(ctx context.Context, png []byte) (*predict.Prediction, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return &predict.Prediction{Label: f.label, Confidence: 0.9}, nil
}

func (f *fakeAI) Similarity(ctx context.Context, a, b string) (float64, error) {
	return f.sim, nil
}

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeUploader) Upload(ctx context.Context, key string, b []byte, overwrite bool) error {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return nil
}

func (f *fakeUploader) PublicURL(key string) string { return "https://snapshots.test/" + key }

type harness struct {
	st  store.Store
	hub *fakeHub
	ai  *fakeAI
	up  *fakeUploader
	cat *topics.Catalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := topics.New("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return &harness{
		st:  store.NewMemoryStore(),
		hub: newFakeHub(),
		ai:  &fakeAI{label: "something", sim: 0.3},
		up:  &fakeUploader{},
		cat: cat,
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Store:     h.st,
		Channel:   h.hub,
		Predictor: h.ai,
		Snapshots: h.up,
		Topics:    h.cat,
	}
}

func (h *harness) opts() Options {
	return Options{
		RoundDuration: 45 * time.Second,
		SettleDelay:   0,
		MinPlayers:    2,
		GuessAward:    100,
		Checkpoints:   []int{5, 15, 25, 35},
	}
}

func (h *harness) createRoom(t *testing.T, code, hostID string) {
	t.Helper()
	if _, err := h.st.Create(context.Background(), code, hostID, 45); err != nil {
		t.Fatalf("create room: %v", err)
	}
}

func (h *harness) open(t *testing.T, code, profileID string) *Session {
	t.Helper()
	s, err := Open(context.Background(), h.deps(), h.opts(), code, store.Profile{ID: profileID, Name: profileID})
	if err != nil {
		t.Fatalf("open session for %s: %v", profileID, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// advance runs n countdown ticks on the session goroutine.
func advance(t *testing.T, s *Session, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := s.call(context.Background(), func() error {
			s.handleTick()
			return nil
		}); err != nil {
			t.Fatalf("tick: %v", err)
		}
	}
}

func startRound(t *testing.T, h *harness, host, other *Session) {
	t.Helper()
	if err := host.StartRound(context.Background()); err != nil {
		t.Fatalf("start round: %v", err)
	}
	waitFor(t, "topic offer", func() bool { return len(host.TopicOffer()) > 0 })
	if err := host.ChooseTopic(context.Background(), host.TopicOffer()[0]); err != nil {
		t.Fatalf("choose topic: %v", err)
	}
	waitFor(t, "host active", func() bool { return host.State() == StateRoundActive })
	if other != nil {
		waitFor(t, "peer active", func() bool { return other.State() == StateRoundActive })
	}
}

func TestOpenUnknownRoom(t *testing.T) {
	h := newHarness(t)
	_, err := Open(context.Background(), h.deps(), h.opts(), "nope", store.Profile{ID: "p1", Name: "p1"})
	if !errors.Is(err, store.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestJoinReachesLobby(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	s := h.open(t, "room1", "alice")

	if got := s.State(); got != StateLobby {
		t.Fatalf("state = %s, want %s", got, StateLobby)
	}
	waitFor(t, "self in roster", func() bool {
		for _, m := range s.Members() {
			if m.Profile.ID == "alice" && m.Connected {
				return true
			}
		}
		return false
	})
}

func TestDuplicatePresenceCollapses(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	s := h.open(t, "room1", "alice")
	waitFor(t, "self in roster", func() bool { return len(s.Members()) == 1 })

	for i := 0; i < 3; i++ {
		h.hub.inject("room:room1", func() channel.Inbound {
			return &channel.Presence{Type: channel.PresenceJoin, Key: "alice"}
		})
	}
	// barrier: let the loop drain the injected events
	_ = s.call(context.Background(), func() error { return nil })
	time.Sleep(50 * time.Millisecond)
	if got := len(s.Members()); got != 1 {
		t.Fatalf("roster size = %d after duplicate joins, want 1", got)
	}
}

func TestStartRoundRequiresHost(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	h.open(t, "room1", "alice")
	b := h.open(t, "room1", "bob")

	if err := b.StartRound(context.Background()); !errors.Is(err, ErrNotHost) {
		t.Fatalf("expected ErrNotHost, got %v", err)
	}
}

func TestStartRoundInsufficientPlayers(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	a := h.open(t, "room1", "alice")

	if err := a.StartRound(context.Background()); !errors.Is(err, ErrInsufficientPlayers) {
		t.Fatalf("expected ErrInsufficientPlayers, got %v", err)
	}
	room, err := h.st.Get(context.Background(), "room1")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.Active {
		t.Fatal("room marked active after a refused start")
	}
}

func TestRoundSetupAndBegin(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	a := h.open(t, "room1", "alice")
	b := h.open(t, "room1", "bob")
	waitFor(t, "roster", func() bool { return len(a.Members()) == 2 && len(b.Members()) == 2 })

	if err := a.StartRound(context.Background()); err != nil {
		t.Fatalf("start round: %v", err)
	}
	waitFor(t, "both in setup", func() bool {
		return a.State() == StateRoundSetup && b.State() == StateRoundSetup
	})
	if got := b.TopicOffer(); len(got) != 0 {
		t.Fatalf("non-drawer received a topic offer: %v", got)
	}
	waitFor(t, "drawer offer", func() bool { return len(a.TopicOffer()) == 3 })

	if err := b.ChooseTopic(context.Background(), a.TopicOffer()[0]); !errors.Is(err, ErrNotDrawer) {
		t.Fatalf("expected ErrNotDrawer, got %v", err)
	}
	if err := a.ChooseTopic(context.Background(), -1); !errors.Is(err, ErrBadTopic) {
		t.Fatalf("expected ErrBadTopic, got %v", err)
	}
	if err := a.ChooseTopic(context.Background(), a.TopicOffer()[0]); err != nil {
		t.Fatalf("choose topic: %v", err)
	}
	waitFor(t, "both active", func() bool {
		return a.State() == StateRoundActive && b.State() == StateRoundActive
	})

	var topicA, topicB string
	_ = a.call(context.Background(), func() error { topicA = a.topicText; return nil })
	_ = b.call(context.Background(), func() error { topicB = b.topicText; return nil })
	if topicA == "" || topicA != topicB {
		t.Fatalf("topic mismatch: drawer %q peer %q", topicA, topicB)
	}
}

func TestGuessMatchIsCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	a := h.open(t, "room1", "alice")
	b := h.open(t, "room1", "bob")
	waitFor(t, "roster", func() bool { return len(a.Members()) == 2 })
	startRound(t, h, a, b)

	var topic, roundID string
	_ = a.call(context.Background(), func() error {
		topic = a.topicText
		roundID = a.round.ID
		return nil
	})

	if err := a.SubmitGuess(context.Background(), topic); !errors.Is(err, ErrDrawerCannotGuess) {
		t.Fatalf("expected ErrDrawerCannotGuess, got %v", err)
	}
	if err := b.SubmitGuess(context.Background(), strings.ToUpper(topic)); err != nil {
		t.Fatalf("submit guess: %v", err)
	}

	waitFor(t, "guessers outcome", func() bool {
		round, err := h.st.GetRound(context.Background(), roundID)
		return err == nil && round.Outcome == store.OutcomeGuessers
	})
}

func TestOutcomeIsWriteOnce(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	a := h.open(t, "room1", "alice")
	b := h.open(t, "room1", "bob")
	waitFor(t, "roster", func() bool { return len(a.Members()) == 2 })
	startRound(t, h, a, b)

	var topic, roundID string
	_ = a.call(context.Background(), func() error {
		topic = a.topicText
		roundID = a.round.ID
		return nil
	})

	if err := b.SubmitGuess(context.Background(), topic); err != nil {
		t.Fatalf("submit guess: %v", err)
	}
	waitFor(t, "guessers outcome", func() bool {
		round, err := h.st.GetRound(context.Background(), roundID)
		return err == nil && round.Outcome == store.OutcomeGuessers
	})

	// A perfect AI score arriving afterwards must not flip the result.
	env, err := event.Encode(&event.PredictionUpdate{
		RoundID: roundID, Label: topic, Confidence: 1, Similarity: 1,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	h.hub.inject("room:room1", func() channel.Inbound { return &channel.Broadcast{Env: env} })
	time.Sleep(50 * time.Millisecond)

	round, err := h.st.GetRound(context.Background(), roundID)
	if err != nil {
		t.Fatalf("get round: %v", err)
	}
	if round.Outcome != store.OutcomeGuessers {
		t.Fatalf("outcome flipped to %s", round.Outcome)
	}
}

func TestWinningGuessAwardsScoreOnce(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	a := h.open(t, "room1", "alice")
	b := h.open(t, "room1", "bob")
	waitFor(t, "roster", func() bool { return len(a.Members()) == 2 })
	startRound(t, h, a, b)

	var topic string
	_ = a.call(context.Background(), func() error { topic = a.topicText; return nil })

	if err := b.SubmitGuess(context.Background(), topic); err != nil {
		t.Fatalf("submit guess: %v", err)
	}
	waitFor(t, "score awarded", func() bool {
		m, err := h.st.GetMember(context.Background(), "room1", "bob")
		return err == nil && m.Score == 100
	})

	// a duplicate of the winning guess must not pay twice
	if err := b.SubmitGuess(context.Background(), topic); err != nil {
		t.Fatalf("resubmit guess: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	m, err := h.st.GetMember(context.Background(), "room1", "bob")
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if m.Score != 100 {
		t.Fatalf("score = %d after duplicate winning guess, want 100", m.Score)
	}
}

func TestAIWinsOnTopBucket(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	a := h.open(t, "room1", "alice")
	b := h.open(t, "room1", "bob")
	waitFor(t, "roster", func() bool { return len(a.Members()) == 2 })
	startRound(t, h, a, b)

	var roundID string
	_ = a.call(context.Background(), func() error { roundID = a.round.ID; return nil })

	env, err := event.Encode(&event.PredictionUpdate{
		RoundID: roundID, Label: "whatever", Confidence: 0.8, Similarity: 1,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	h.hub.inject("room:room1", func() channel.Inbound { return &channel.Broadcast{Env: env} })

	waitFor(t, "ai outcome", func() bool {
		round, err := h.st.GetRound(context.Background(), roundID)
		return err == nil && round.Outcome == store.OutcomeAI
	})
}

func TestCheckpointsFireOncePerMark(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	a := h.open(t, "room1", "alice")
	b := h.open(t, "room1", "bob")
	waitFor(t, "roster", func() bool { return len(a.Members()) == 2 })
	startRound(t, h, a, b)

	advance(t, a, 35)
	waitFor(t, "four checkpoints", func() bool { return h.ai.callCount() == 4 })
	// the peer's clock must not trigger AI work
	advance(t, b, 35)
	time.Sleep(100 * time.Millisecond)
	if got := h.ai.callCount(); got != 4 {
		t.Fatalf("predict calls = %d after peer ticks, want 4", got)
	}
}

func TestRoundEndReachesReview(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	a := h.open(t, "room1", "alice")
	b := h.open(t, "room1", "bob")
	waitFor(t, "roster", func() bool { return len(a.Members()) == 2 })
	startRound(t, h, a, b)

	var roundID string
	_ = a.call(context.Background(), func() error { roundID = a.round.ID; return nil })

	if err := a.Draw(context.Background(), "M10 10 L50 50", false); err != nil {
		t.Fatalf("draw: %v", err)
	}
	advance(t, a, 45)
	waitFor(t, "both in review", func() bool {
		return a.State() == StateReview && b.State() == StateReview
	})

	rd := b.Review()
	if rd.RoundID != roundID {
		t.Fatalf("review round = %s, want %s", rd.RoundID, roundID)
	}
	if rd.SnapshotURL == "" {
		t.Fatal("review has no snapshot URL")
	}
	waitFor(t, "snapshot uploaded", func() bool {
		h.up.mu.Lock()
		defer h.up.mu.Unlock()
		return len(h.up.keys) > 0
	})

	if err := b.AcknowledgeReview(context.Background()); err != nil {
		t.Fatalf("acknowledge review: %v", err)
	}
	if got := b.State(); got != StateLobby {
		t.Fatalf("state after acknowledgement = %s, want %s", got, StateLobby)
	}
	if err := b.AcknowledgeReview(context.Background()); err == nil {
		t.Fatal("second acknowledgement should fail")
	}
	if got := a.State(); got != StateReview {
		t.Fatalf("peer state = %s, acknowledgement must stay local", got)
	}
}

func TestHostFailoverPromotesEarliestJoined(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	a := h.open(t, "room1", "alice")
	b := h.open(t, "room1", "bob")
	c := h.open(t, "room1", "carol")
	waitFor(t, "roster", func() bool {
		return len(a.Members()) == 3 && len(b.Members()) == 3 && len(c.Members()) == 3
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		t.Fatalf("close host: %v", err)
	}

	waitFor(t, "bob promoted", func() bool {
		room, err := h.st.Get(context.Background(), "room1")
		return err == nil && room.HostID == "bob"
	})
	waitFor(t, "peers converge", func() bool {
		return b.Room().HostID == "bob" && c.Room().HostID == "bob"
	})
}

func TestEmptyRoomIsDeleted(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	b := h.open(t, "room1", "bob")
	waitFor(t, "roster", func() bool { return len(b.Members()) >= 1 })

	// alice (the host) exists durably and is briefly seen connecting
	if err := h.st.UpsertProfile(context.Background(), store.Profile{ID: "alice", Name: "alice"}); err != nil {
		t.Fatalf("seed alice profile: %v", err)
	}
	if err := h.st.UpsertMember(context.Background(), store.Membership{
		RoomCode: "room1", ProfileID: "alice", Active: false,
	}); err != nil {
		t.Fatalf("seed alice: %v", err)
	}
	h.hub.inject("room:room1", func() channel.Inbound {
		return &channel.Presence{Type: channel.PresenceJoin, Key: "alice"}
	})
	waitFor(t, "alice in roster", func() bool { return len(b.Members()) == 2 })

	// bob is durably inactive too, so the host's departure empties the room
	if err := h.st.SetMemberActive(context.Background(), "room1", "bob", false); err != nil {
		t.Fatalf("deactivate bob: %v", err)
	}
	h.hub.inject("room:room1", func() channel.Inbound {
		return &channel.Presence{Type: channel.PresenceLeave, Key: "alice"}
	})
	waitFor(t, "room deleted", func() bool {
		_, err := h.st.Get(context.Background(), "room1")
		return errors.Is(err, store.ErrRoomNotFound)
	})
}

func TestStrokeReplicationDedupes(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	feed := make(chan store.FeedEvent, 16)
	deps := h.deps()
	deps.FeedEvents = feed

	s, err := Open(context.Background(), deps, h.opts(), "room1", store.Profile{ID: "alice", Name: "alice"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close(context.Background()) }()

	b := h.open(t, "room1", "bob")
	waitFor(t, "roster", func() bool { return len(s.Members()) == 2 })
	startRound(t, h, s, b)

	var roundID string
	_ = s.call(context.Background(), func() error { roundID = s.round.ID; return nil })

	for i := 0; i < 2; i++ {
		feed <- &store.StrokeAppend{ID: 1, RoundID: roundID, Path: "M0 0 L5 5"}
	}
	feed <- &store.StrokeAppend{ID: 2, RoundID: "other-round", Path: "M9 9 L1 1"}
	feed <- &store.StrokeAppend{ID: 3, RoundID: roundID, Path: "M1 1 L2 2"}

	waitFor(t, "strokes applied", func() bool { return len(s.Strokes()) == 2 })
	time.Sleep(50 * time.Millisecond)
	got := s.Strokes()
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		ids := make([]int64, 0, len(got))
		for _, st := range got {
			ids = append(ids, st.ID)
		}
		t.Fatalf("strokes = %v, want [1 3]", ids)
	}
}

func TestLateJoinerCatchesUp(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	a := h.open(t, "room1", "alice")
	b := h.open(t, "room1", "bob")
	waitFor(t, "roster", func() bool { return len(a.Members()) == 2 })
	startRound(t, h, a, b)

	c := h.open(t, "room1", "carol")
	waitFor(t, "late joiner active", func() bool { return c.State() == StateRoundActive })

	var topicA, topicC string
	_ = a.call(context.Background(), func() error { topicA = a.topicText; return nil })
	_ = c.call(context.Background(), func() error { topicC = c.topicText; return nil })
	if topicA != topicC {
		t.Fatalf("late joiner topic %q, want %q", topicC, topicA)
	}
}

func TestUnknownEventIsDropped(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	s := h.open(t, "room1", "alice")

	h.hub.inject("room:room1", func() channel.Inbound {
		return &channel.Broadcast{Env: event.Envelope{Event: "mystery_event"}}
	})
	time.Sleep(50 * time.Millisecond)
	if got := s.State(); got != StateLobby {
		t.Fatalf("state = %s after unknown event, want %s", got, StateLobby)
	}
}

func TestChannelLossDisconnects(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	s := h.open(t, "room1", "alice")

	h.hub.mu.Lock()
	for _, sub := range h.hub.subs["room:room1"] {
		sub.closed.Do(func() { close(sub.inbox) })
	}
	h.hub.mu.Unlock()

	waitFor(t, "disconnect notice", func() bool {
		select {
		case n := <-s.Notices():
			return n.Level == "error" && strings.Contains(n.Text, "lost connection")
		default:
			return false
		}
	})
}

func TestGuessEchoFlagsFailedWrite(t *testing.T) {
	h := newHarness(t)
	h.createRoom(t, "room1", "alice")
	a := h.open(t, "room1", "alice")
	b := h.open(t, "room1", "bob")
	waitFor(t, "roster", func() bool { return len(a.Members()) == 2 })
	startRound(t, h, a, b)

	// swap the store for one that refuses guess writes
	_ = b.call(context.Background(), func() error {
		b.deps.Store = failingGuessStore{Store: h.st}
		return nil
	})
	if err := b.SubmitGuess(context.Background(), "zeppelin"); err != nil {
		t.Fatalf("submit guess: %v", err)
	}
	waitFor(t, "echo flagged", func() bool {
		for _, g := range b.Transcript() {
			if g.ProfileID == "bob" && g.Failed {
				return true
			}
		}
		return false
	})
}

type failingGuessStore struct{ store.Store }

func (f failingGuessStore) UpsertGuess(ctx context.Context, g store.Guess) error {
	return fmt.Errorf("disk on fire")
}
