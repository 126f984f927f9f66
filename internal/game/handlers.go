package game

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sketchdash/client/internal/channel"
	"github.com/sketchdash/client/internal/event"
	"github.com/sketchdash/client/internal/store"
)

const (
	storeTimeout     = 5 * time.Second
	failoverAttempts = 3
)

func (s *Session) handleInbound(msg channel.Inbound) {
	switch m := msg.(type) {
	case *channel.Presence:
		s.handlePresence(m)
	case *channel.Broadcast:
		ev, err := event.Decode(m.Env)
		if err != nil {
			var unknown *event.ErrUnknownEvent
			if errors.As(err, &unknown) {
				s.log.Debug("dropping unknown event", zap.String("event", unknown.Name))
				return
			}
			s.notify("warn", "bad broadcast payload: %v", err)
			return
		}
		s.handleEvent(ev)
	}
}

// handlePresence reconciles the roster with the channel's view. Duplicate
// joins collapse into the map; a full sync marks anyone absent from the key
// list as disconnected.
func (s *Session) handlePresence(p *channel.Presence) {
	switch p.Type {
	case channel.PresenceSync:
		seen := make(map[string]bool, len(p.Keys))
		for _, key := range p.Keys {
			seen[key] = true
			s.admit(key)
		}
		for id, m := range s.members {
			if !seen[id] {
				m.Connected = false
			}
		}
	case channel.PresenceJoin:
		s.admit(p.Key)
		// Late joiners missed round_begins; the drawer republishes the
		// round id so they can catch up from durable state.
		if s.state == StateRoundActive && s.round != nil && s.drawerID == s.self.ID && p.Key != s.self.ID {
			s.broadcast(&event.RoundIDUpdate{RoundID: s.round.ID})
		}
	case channel.PresenceLeave:
		s.handleLeave(p.Key)
	}
}

// admit loads the membership and profile behind a presence key and merges
// them into the roster. A key with no durable membership yet is retried on
// the next sync.
func (s *Session) admit(key string) {
	if m, ok := s.members[key]; ok {
		m.Connected = true
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	ms, err := s.deps.Store.GetMember(ctx, s.roomCode, key)
	if err != nil {
		s.log.Debug("presence key without membership", zap.String("profile", key), zap.Error(err))
		return
	}
	prof, err := s.deps.Store.GetProfile(ctx, key)
	if err != nil {
		s.log.Debug("presence key without profile", zap.String("profile", key), zap.Error(err))
		return
	}
	s.members[key] = &Member{Membership: *ms, Profile: *prof, Connected: true}
}

func (s *Session) handleLeave(key string) {
	m, ok := s.members[key]
	if !ok {
		return
	}
	m.Connected = false

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.deps.Store.SetMemberActive(ctx, s.roomCode, key, false); err != nil {
		s.notify("warn", "could not mark %s inactive: %v", key, err)
	}
	s.notify("info", "%s left the room", m.Profile.Name)

	if key == s.room.HostID {
		s.failover(key)
	}
}

// failover promotes the earliest-joined remaining member after the host
// leaves. Every observer runs the same computation; the host write is
// idempotent, so concurrent promotions of the same candidate converge. If
// nobody remains, the room is deleted. Errors are retried a few times and
// then treated as room teardown.
func (s *Session) failover(departed string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout*failoverAttempts)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < failoverAttempts; attempt++ {
		active, err := s.deps.Store.ListActive(ctx, s.roomCode)
		if err != nil {
			lastErr = err
			continue
		}
		var next *store.Membership
		for i := range active {
			if active[i].ProfileID == departed {
				continue
			}
			next = &active[i]
			break
		}
		if next == nil {
			if err := s.deps.Store.Delete(ctx, s.roomCode); err != nil {
				lastErr = err
				continue
			}
			s.notify("info", "room %s closed: everyone left", s.roomCode)
			return
		}
		if err := s.deps.Store.SetHost(ctx, s.roomCode, next.ProfileID); err != nil {
			lastErr = err
			continue
		}
		s.room.HostID = next.ProfileID
		s.notify("info", "host left, %s is the new host", next.ProfileID)
		s.log.Info("host_failover",
			zap.String("room", s.roomCode),
			zap.String("departed", departed),
			zap.String("promoted", next.ProfileID))
		return
	}

	s.notify("error", "host failover failed, leaving room: %v", lastErr)
	if err := s.deps.Store.Delete(ctx, s.roomCode); err != nil {
		s.log.Warn("room teardown after failed failover", zap.Error(err))
	}
}

// handleEvent applies one broadcast to local state. Handlers tolerate
// duplicates and out-of-order delivery: every transition is expressed as
// convergence toward durable state, not as a step that may run exactly once.
func (s *Session) handleEvent(ev event.Event) {
	switch e := ev.(type) {
	case *event.OpenTopicDialog:
		s.onOpenTopicDialog(e)
	case *event.TopicClosed:
		s.topicOffer = nil
	case *event.RoundBegins:
		s.onRoundBegins(e.RoundID)
	case *event.RoundIDUpdate:
		if s.round == nil || s.round.ID != e.RoundID {
			s.onRoundBegins(e.RoundID)
		}
	case *event.GuessAdded:
		s.onGuessAdded(e)
	case *event.PredictionUpdate:
		s.onPredictionUpdate(e)
	case *event.RoundEnds:
		s.onRoundEnds(e.RoundID)
	case *event.CanvasClear:
		s.strokes = nil
		s.strokeSeen = make(map[int64]bool)
	}
}

func (s *Session) onOpenTopicDialog(e *event.OpenTopicDialog) {
	if s.state == StateRoundActive || s.state == StateRoundEnding {
		return
	}
	s.state = StateRoundSetup
	s.drawerID = e.DrawerID
	if e.DrawerID == s.self.ID && s.deps.Topics != nil {
		s.topicOffer = s.deps.Topics.Offer(3)
	}
}

// onRoundBegins re-fetches the round by id instead of trusting the payload:
// the broadcast only names the round, durable state carries its contents.
func (s *Session) onRoundBegins(roundID string) {
	if s.round != nil && s.round.ID == roundID && s.state != StateLobby && s.state != StateRoundSetup {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	round, err := s.deps.Store.GetRound(ctx, roundID)
	if err != nil {
		s.notify("warn", "round %s announced but not found: %v", roundID, err)
		return
	}
	text := ""
	if s.deps.Topics != nil {
		if t, err := s.deps.Topics.Get(round.TopicID); err == nil {
			text = t
		}
	}

	s.round = round
	s.topicText = text
	s.drawerID = round.DrawerID
	s.topicOffer = nil
	s.outcome = store.OutcomeUndecided
	s.strokes = nil
	s.strokeSeen = make(map[int64]bool)
	s.guesses = nil
	s.snapshotURL = ""
	s.aiLabel = ""
	s.aiScore = 0
	s.checkpoints = make(map[int]bool)
	s.remaining = int(s.opts.RoundDuration / time.Second)
	s.lastTick = -1
	s.state = StateRoundActive
	s.log.Info("round_begin",
		zap.String("round", round.ID),
		zap.String("drawer", round.DrawerID),
		zap.Int("seq", round.Seq))
}

func (s *Session) onGuessAdded(e *event.GuessAdded) {
	if s.round == nil || s.round.ID != e.RoundID {
		return
	}
	s.upsertGuessEntry(GuessEntry{ProfileID: e.ProfileID, Text: e.Text})
	s.maybeFinishHuman(e.ProfileID, e.Text)
}

func (s *Session) onPredictionUpdate(e *event.PredictionUpdate) {
	if s.round == nil || s.round.ID != e.RoundID {
		return
	}
	s.aiLabel = e.Label
	s.aiScore = e.Similarity
	s.upsertGuessEntry(GuessEntry{
		ProfileID:  store.AIProfileID,
		Text:       e.Label,
		Confidence: e.Confidence,
		Similarity: e.Similarity,
	})
	s.maybeFinishAI(e.Label, e.Similarity)
}

func (s *Session) onRoundEnds(roundID string) {
	if s.round == nil || s.round.ID != roundID {
		return
	}
	if s.state == StateReview {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if round, err := s.deps.Store.GetRound(ctx, roundID); err == nil {
		s.round = round
		s.outcome = round.Outcome
	}
	s.remaining = 0
	s.state = StateReview
	if s.deps.Snapshots != nil {
		s.snapshotURL = s.deps.Snapshots.PublicURL(snapshotKey(roundID))
	}
	s.log.Info("round_end", zap.String("round", roundID), zap.String("outcome", string(s.outcome)))
}

// upsertGuessEntry keeps one transcript line per profile, latest text wins.
// The AI entry updates in place as checkpoints refine it.
func (s *Session) upsertGuessEntry(e GuessEntry) {
	for i := range s.guesses {
		if s.guesses[i].ProfileID == e.ProfileID {
			s.guesses[i] = e
			return
		}
	}
	s.guesses = append(s.guesses, e)
}

func (s *Session) handleFeed(ev store.FeedEvent) {
	switch e := ev.(type) {
	case *store.RoomChange:
		if e.RoomCode != s.roomCode {
			return
		}
		if e.Deleted {
			s.notify("info", "room %s was closed", s.roomCode)
			return
		}
		s.room.HostID = e.HostID
		s.room.Active = e.Active
	case *store.StrokeAppend:
		if s.round == nil || s.round.ID != e.RoundID {
			return
		}
		if s.strokeSeen[e.ID] {
			return
		}
		s.strokeSeen[e.ID] = true
		s.strokes = append(s.strokes, store.Stroke{
			ID:      e.ID,
			RoundID: e.RoundID,
			Path:    e.Path,
			Erase:   e.Erase,
		})
	}
}

// handleTick drives the countdown. Only the drawer acts on elapsed-time
// checkpoints and on expiry; everyone else just renders the clock. A tick
// that repeats the previous second is ignored so checkpoint work never runs
// twice for one mark.
func (s *Session) handleTick() {
	if s.state != StateRoundActive || s.round == nil {
		return
	}
	if s.remaining <= 0 {
		return
	}
	s.remaining--
	if s.remaining == s.lastTick {
		return
	}
	s.lastTick = s.remaining

	if s.drawerID != s.self.ID {
		return
	}
	elapsed := int(s.opts.RoundDuration/time.Second) - s.remaining
	for _, cp := range s.opts.Checkpoints {
		if elapsed == cp && !s.checkpoints[cp] {
			s.checkpoints[cp] = true
			s.runCheckpoint(cp)
		}
	}
	if s.remaining == 0 {
		s.beginRoundEnd()
	}
}
