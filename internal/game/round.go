package game

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sketchdash/client/internal/canvas"
	"github.com/sketchdash/client/internal/event"
	"github.com/sketchdash/client/internal/predict"
	"github.com/sketchdash/client/internal/store"
)

func snapshotKey(roundID string) string { return roundID + ".png" }

// StartRound begins round setup. Host only; the room needs at least the
// configured minimum of active members, and a refused start leaves the room
// inactive.
func (s *Session) StartRound(ctx context.Context) error {
	return s.call(ctx, func() error {
		if s.room.HostID != s.self.ID {
			return ErrNotHost
		}
		if s.state != StateLobby && s.state != StateReview {
			return fmt.Errorf("cannot start a round from %s", s.state)
		}
		active, err := s.deps.Store.ListActive(ctx, s.roomCode)
		if err != nil {
			return fmt.Errorf("list active members: %w", err)
		}
		if len(active) < s.opts.MinPlayers {
			return ErrInsufficientPlayers
		}
		if err := s.deps.Store.SetActive(ctx, s.roomCode, true); err != nil {
			return fmt.Errorf("mark room active: %w", err)
		}
		s.room.Active = true
		s.state = StateRoundSetup
		s.drawerID = s.self.ID
		s.broadcast(&event.OpenTopicDialog{DrawerID: s.self.ID})
		return nil
	})
}

// ChooseTopic commits the drawer's topic choice, creates the round and
// announces it. Receivers learn the topic from the durable round record, not
// from the broadcast.
func (s *Session) ChooseTopic(ctx context.Context, topicID int) error {
	return s.call(ctx, func() error {
		if s.state != StateRoundSetup {
			return fmt.Errorf("no round being set up")
		}
		if s.drawerID != s.self.ID {
			return ErrNotDrawer
		}
		offered := false
		for _, id := range s.topicOffer {
			if id == topicID {
				offered = true
				break
			}
		}
		if !offered {
			return ErrBadTopic
		}
		round, err := s.deps.Store.CreateRound(ctx, s.roomCode, topicID, s.self.ID)
		if err != nil {
			return fmt.Errorf("create round: %w", err)
		}
		s.topicOffer = nil
		s.broadcast(&event.RoundBegins{RoundID: round.ID, SentBy: s.self.ID})
		s.broadcast(&event.TopicClosed{})
		return nil
	})
}

// SubmitGuess records a guess durably and echoes it to the room. The local
// transcript shows the guess immediately as pending; a failed durable write
// flags the entry instead of leaving the room believing it landed.
func (s *Session) SubmitGuess(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty guess")
	}
	return s.call(ctx, func() error {
		if s.state != StateRoundActive || s.round == nil {
			return ErrNoActiveRound
		}
		if s.drawerID == s.self.ID {
			return ErrDrawerCannotGuess
		}
		roundID := s.round.ID
		s.upsertGuessEntry(GuessEntry{ProfileID: s.self.ID, Text: text, Pending: true})

		go func() {
			wctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			defer cancel()
			err := s.deps.Store.UpsertGuess(wctx, store.Guess{
				RoundID:   roundID,
				ProfileID: s.self.ID,
				Text:      text,
			})
			_ = s.call(context.Background(), func() error {
				s.settleGuessEcho(roundID, text, err)
				return nil
			})
		}()
		return nil
	})
}

// settleGuessEcho resolves a pending local echo once its durable write
// finishes. Success broadcasts the guess; failure flags the echo so the
// transcript does not pretend the write landed.
func (s *Session) settleGuessEcho(roundID, text string, writeErr error) {
	for i := range s.guesses {
		if s.guesses[i].ProfileID != s.self.ID || s.guesses[i].Text != text {
			continue
		}
		if writeErr != nil {
			s.guesses[i].Pending = false
			s.guesses[i].Failed = true
			s.notify("error", "guess not saved: %v", writeErr)
			return
		}
		s.guesses[i].Pending = false
	}
	if writeErr == nil {
		s.broadcast(&event.GuessAdded{RoundID: roundID, ProfileID: s.self.ID, Text: text})
		s.maybeFinishHuman(s.self.ID, text)
	}
}

// Draw appends one stroke to the durable log. Replication to peers rides the
// database change feed; the local canvas is updated directly so the drawer
// does not wait for its own notification.
func (s *Session) Draw(ctx context.Context, path string, erase bool) error {
	return s.call(ctx, func() error {
		if s.state != StateRoundActive || s.round == nil {
			return ErrNoActiveRound
		}
		if s.drawerID != s.self.ID {
			return ErrNotDrawer
		}
		st, err := s.deps.Store.AppendStroke(ctx, s.round.ID, path, erase)
		if err != nil {
			return fmt.Errorf("append stroke: %w", err)
		}
		if !s.strokeSeen[st.ID] {
			s.strokeSeen[st.ID] = true
			s.strokes = append(s.strokes, *st)
		}
		return nil
	})
}

// ClearCanvas wipes the shared canvas mid-round.
func (s *Session) ClearCanvas(ctx context.Context) error {
	return s.call(ctx, func() error {
		if s.state != StateRoundActive {
			return ErrNoActiveRound
		}
		if s.drawerID != s.self.ID {
			return ErrNotDrawer
		}
		s.strokes = nil
		s.strokeSeen = make(map[int64]bool)
		s.broadcast(&event.CanvasClear{})
		return nil
	})
}

// maybeFinishHuman finalizes the round for the guessers when a non-drawer
// guess matches the topic, case-insensitively.
func (s *Session) maybeFinishHuman(profileID, text string) {
	if s.outcome != store.OutcomeUndecided || s.round == nil {
		return
	}
	if profileID == s.drawerID || profileID == store.AIProfileID {
		return
	}
	if s.topicText == "" || !strings.EqualFold(text, s.topicText) {
		return
	}
	s.finalize(store.OutcomeGuessers, profileID)
}

// maybeFinishAI finalizes the round for the AI when its similarity hits the
// top bucket or its label names the topic outright.
func (s *Session) maybeFinishAI(label string, similarity float64) {
	if s.outcome != store.OutcomeUndecided || s.round == nil {
		return
	}
	if !predict.Max(similarity) && !strings.EqualFold(label, s.topicText) {
		return
	}
	s.finalize(store.OutcomeAI, "")
}

// finalize attempts the write-once outcome. Only the client whose conditional
// write lands awards the score, so concurrent finishes cannot double-pay.
// When the write loses, local state converges to whatever the winner wrote.
func (s *Session) finalize(out store.Outcome, winnerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	landed, err := s.deps.Store.SetOutcome(ctx, s.round.ID, out)
	if err != nil {
		s.notify("warn", "could not record round outcome: %v", err)
		return
	}
	if !landed {
		if round, err := s.deps.Store.GetRound(ctx, s.round.ID); err == nil {
			s.outcome = round.Outcome
			s.round.Outcome = round.Outcome
		}
		return
	}
	s.outcome = out
	s.round.Outcome = out
	if out == store.OutcomeGuessers && winnerID != "" {
		if err := s.deps.Store.AddScore(ctx, s.roomCode, winnerID, s.opts.GuessAward); err != nil {
			s.notify("warn", "score not awarded to %s: %v", winnerID, err)
		}
	}
	s.log.Info("round_decided",
		zap.String("round", s.round.ID),
		zap.String("outcome", string(out)),
		zap.String("winner", winnerID))
}

// runCheckpoint renders the canvas as it stands and asks the AI for a guess.
// Runs off the loop goroutine; results come back to everyone, this client
// included, as a prediction_update broadcast.
func (s *Session) runCheckpoint(elapsed int) {
	if s.deps.Predictor == nil {
		return
	}
	roundID := s.round.ID
	topic := s.topicText
	strokes := append([]store.Stroke(nil), s.strokes...)
	log := s.log.With(zap.String("round", roundID), zap.Int("elapsed", elapsed))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		pred, sim, err := s.askAI(ctx, strokes, topic)
		if err != nil {
			log.Warn("checkpoint prediction failed", zap.Error(err))
			return
		}
		if err := s.deps.Store.UpsertGuess(ctx, store.Guess{
			RoundID:    roundID,
			ProfileID:  store.AIProfileID,
			Text:       pred.Label,
			Confidence: pred.Confidence,
		}); err != nil {
			log.Warn("ai guess not persisted", zap.Error(err))
		}
		s.broadcast(&event.PredictionUpdate{
			RoundID:    roundID,
			Label:      pred.Label,
			Confidence: pred.Confidence,
			Similarity: predict.Bucket(sim),
		})
	}()
}

// askAI rasterizes the strokes, classifies the image and scores the label
// against the topic. The raw similarity is returned; callers bucket it.
func (s *Session) askAI(ctx context.Context, strokes []store.Stroke, topic string) (*predict.Prediction, float64, error) {
	png, err := canvas.RenderPNG(strokes)
	if err != nil {
		return nil, 0, fmt.Errorf("render canvas: %w", err)
	}
	pred, err := s.deps.Predictor.Predict(ctx, png)
	if err != nil {
		return nil, 0, err
	}
	sim, err := s.deps.Predictor.Similarity(ctx, pred.Label, topic)
	if err != nil {
		return nil, 0, err
	}
	return pred, sim, nil
}

// beginRoundEnd runs the drawer's end-of-round sequence: snapshot the final
// drawing, take the AI's last guess, give the write-once outcome a final
// chance, then announce round_ends after the settle delay so in-flight
// guesses land first. Collaborator failures degrade the review stage but
// never stop the round from ending.
func (s *Session) beginRoundEnd() {
	s.state = StateRoundEnding
	roundID := s.round.ID
	topic := s.topicText
	strokes := append([]store.Stroke(nil), s.strokes...)
	log := s.log.With(zap.String("round", roundID))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		png, err := canvas.RenderPNG(strokes)
		if err != nil {
			log.Warn("final render failed", zap.Error(err))
		} else if s.deps.Snapshots != nil {
			if err := s.deps.Snapshots.Upload(ctx, snapshotKey(roundID), png, true); err != nil {
				s.notify("warn", "snapshot upload failed: %v", err)
			}
		}

		if s.deps.Predictor != nil && png != nil {
			if pred, err := s.deps.Predictor.Predict(ctx, png); err != nil {
				log.Warn("final prediction failed", zap.Error(err))
			} else {
				sim, err := s.deps.Predictor.Similarity(ctx, pred.Label, topic)
				if err != nil {
					log.Warn("final similarity failed", zap.Error(err))
				} else {
					if err := s.deps.Store.UpsertGuess(ctx, store.Guess{
						RoundID:    roundID,
						ProfileID:  store.AIProfileID,
						Text:       pred.Label,
						Confidence: pred.Confidence,
					}); err != nil {
						log.Warn("final ai guess not persisted", zap.Error(err))
					}
					bucket := predict.Bucket(sim)
					s.broadcast(&event.PredictionUpdate{
						RoundID:    roundID,
						Label:      pred.Label,
						Confidence: pred.Confidence,
						Similarity: bucket,
					})
					if predict.Max(bucket) || strings.EqualFold(pred.Label, topic) {
						if _, err := s.deps.Store.SetOutcome(ctx, roundID, store.OutcomeAI); err != nil {
							log.Warn("final outcome write failed", zap.Error(err))
						}
					}
				}
			}
		}

		if s.opts.SettleDelay > 0 {
			select {
			case <-time.After(s.opts.SettleDelay):
			case <-s.done:
				return
			}
		}
		s.broadcast(&event.RoundEnds{RoundID: roundID})
	}()
}
