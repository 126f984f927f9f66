package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sketchdash/client/internal/channel"
	"github.com/sketchdash/client/internal/event"
	"github.com/sketchdash/client/internal/obslog"
	"github.com/sketchdash/client/internal/store"
)

// Session is one client's live view of a room. All state mutation happens on
// the run goroutine, which consumes the channel inbox, the database change
// feed and the countdown clock from a single ordered stream. Public methods
// post commands into that stream and wait for the result, so callers never
// touch session state concurrently.
type Session struct {
	deps Deps
	opts Options

	roomCode string
	self     store.Profile

	state   State
	room    store.Room
	members map[string]*Member
	outcome store.Outcome

	round      *store.Round
	topicText  string
	drawerID   string
	topicOffer []int
	strokes    []store.Stroke
	strokeSeen map[int64]bool
	guesses    []GuessEntry

	remaining   int
	lastTick    int
	checkpoints map[int]bool
	snapshotURL string
	aiLabel     string
	aiScore     float64

	sub     channel.Subscription
	cmds    chan command
	notices chan Notice
	ticker  *time.Ticker

	closeOnce sync.Once
	done      chan struct{}
	log       *zap.Logger
}

type command struct {
	fn    func() error
	reply chan error
}

// Open joins roomCode as profile and starts the session loop. The room must
// already exist; create it through the store's directory first.
func Open(ctx context.Context, deps Deps, opts Options, roomCode string, profile store.Profile) (*Session, error) {
	s, err := newSession(ctx, deps, opts, roomCode, profile)
	if err != nil {
		return nil, err
	}

	sub, err := deps.Channel.Subscribe(ctx, "room:"+roomCode, profile.ID)
	if err != nil {
		s.state = StateDisconnected
		return nil, fmt.Errorf("subscribe to room channel: %w", err)
	}
	s.sub = sub

	member := store.Membership{RoomCode: roomCode, ProfileID: profile.ID, Active: true}
	if err := deps.Store.UpsertMember(ctx, member); err != nil {
		_ = sub.Unsubscribe(ctx)
		s.state = StateDisconnected
		return nil, fmt.Errorf("upsert membership: %w", err)
	}
	if err := sub.Track(ctx); err != nil {
		_ = sub.Unsubscribe(ctx)
		s.state = StateDisconnected
		return nil, fmt.Errorf("announce presence: %w", err)
	}

	s.state = StateLobby
	s.ticker = time.NewTicker(time.Second)
	go s.run()
	s.log.Info("session_join", zap.String("room", roomCode), zap.String("profile", profile.ID))
	return s, nil
}

// newSession validates the room and builds the session without starting the
// loop or touching the transport.
func newSession(ctx context.Context, deps Deps, opts Options, roomCode string, profile store.Profile) (*Session, error) {
	if deps.Store == nil || deps.Channel == nil {
		return nil, errors.New("store and channel are required")
	}
	opts = opts.withDefaults()

	room, err := deps.Store.Get(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	if err := deps.Store.UpsertProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	return &Session{
		deps:        deps,
		opts:        opts,
		roomCode:    roomCode,
		self:        profile,
		state:       StateJoining,
		room:        *room,
		members:     make(map[string]*Member),
		strokeSeen:  make(map[int64]bool),
		checkpoints: make(map[int]bool),
		cmds:        make(chan command, 16),
		notices:     make(chan Notice, 32),
		done:        make(chan struct{}),
		log:         obslog.L().Named("game"),
	}, nil
}

func (s *Session) run() {
	defer s.ticker.Stop()
	feed := s.deps.FeedEvents
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.sub.Recv():
			if !ok {
				s.handleChannelLoss()
				return
			}
			s.handleInbound(msg)
		case ev, ok := <-feed:
			if !ok {
				feed = nil
				continue
			}
			s.handleFeed(ev)
		case <-s.ticker.C:
			s.handleTick()
		case cmd := <-s.cmds:
			cmd.reply <- cmd.fn()
		}
	}
}

// call runs fn on the session goroutine and returns its error.
func (s *Session) call(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

// Notices delivers non-fatal notifications. The consumer should drain it; a
// full buffer drops the oldest behavior-free messages.
func (s *Session) Notices() <-chan Notice { return s.notices }

func (s *Session) notify(level, format string, args ...any) {
	n := Notice{Level: level, Text: fmt.Sprintf(format, args...)}
	select {
	case s.notices <- n:
	default:
	}
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	st := StateDisconnected
	_ = s.call(context.Background(), func() error {
		st = s.state
		return nil
	})
	return st
}

// Members returns a snapshot of the known roster.
func (s *Session) Members() []Member {
	var out []Member
	_ = s.call(context.Background(), func() error {
		for _, m := range s.members {
			out = append(out, *m)
		}
		return nil
	})
	return out
}

// Room returns the current room view.
func (s *Session) Room() store.Room {
	var r store.Room
	_ = s.call(context.Background(), func() error {
		r = s.room
		return nil
	})
	return r
}

// TopicOffer returns the topic ids offered to this client as drawer, or nil.
func (s *Session) TopicOffer() []int {
	var ids []int
	_ = s.call(context.Background(), func() error {
		ids = append(ids, s.topicOffer...)
		return nil
	})
	return ids
}

// Remaining reports the seconds left in the active round.
func (s *Session) Remaining() int {
	var left int
	_ = s.call(context.Background(), func() error {
		left = s.remaining
		return nil
	})
	return left
}

// Strokes returns the replicated canvas in arrival order.
func (s *Session) Strokes() []store.Stroke {
	var out []store.Stroke
	_ = s.call(context.Background(), func() error {
		out = append(out, s.strokes...)
		return nil
	})
	return out
}

// Transcript returns the guess feed, oldest first.
func (s *Session) Transcript() []GuessEntry {
	var out []GuessEntry
	_ = s.call(context.Background(), func() error {
		out = append(out, s.guesses...)
		return nil
	})
	return out
}

// Review returns the review-stage data for the last finished round.
func (s *Session) Review() ReviewData {
	var rd ReviewData
	_ = s.call(context.Background(), func() error {
		rd = s.reviewSnapshot()
		return nil
	})
	return rd
}

// AcknowledgeReview dismisses the review stage and returns to the lobby.
// Local only: each client leaves review at its own pace.
func (s *Session) AcknowledgeReview(ctx context.Context) error {
	return s.call(ctx, func() error {
		if s.state != StateReview {
			return fmt.Errorf("nothing to acknowledge in %s", s.state)
		}
		s.state = StateLobby
		return nil
	})
}

func (s *Session) reviewSnapshot() ReviewData {
	rd := ReviewData{
		TopicText:   s.topicText,
		Outcome:     s.outcome,
		SnapshotURL: s.snapshotURL,
		AILabel:     s.aiLabel,
		AIScore:     s.aiScore,
		Guesses:     append([]GuessEntry(nil), s.guesses...),
	}
	if s.round != nil {
		rd.RoundID = s.round.ID
	}
	return rd
}

// Close leaves the room. The unsubscribe is best effort: presence expiry
// covers the case where it never reaches the channel.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.sub != nil {
			err = s.sub.Unsubscribe(ctx)
		}
		s.log.Info("session_leave", zap.String("room", s.roomCode))
	})
	return err
}

func (s *Session) handleChannelLoss() {
	s.state = StateDisconnected
	s.notify("error", "lost connection to room %s", s.roomCode)
	s.log.Warn("channel closed", zap.String("room", s.roomCode))
	// the loop is gone; release pending and future callers
	s.closeOnce.Do(func() { close(s.done) })
}

// broadcast sends an event to the room, surfacing failure as a notice rather
// than an error: a missed broadcast is repaired by durable state on the next
// sync.
func (s *Session) broadcast(ev event.Event) {
	env, err := event.Encode(ev)
	if err != nil {
		s.notify("error", "encode %s: %v", ev.EventName(), err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sub.Send(ctx, env); err != nil {
		s.notify("warn", "broadcast %s failed: %v", ev.EventName(), err)
	}
}
