package game

import (
	"context"
	"errors"
	"time"

	"github.com/sketchdash/client/internal/channel"
	"github.com/sketchdash/client/internal/predict"
	"github.com/sketchdash/client/internal/store"
	"github.com/sketchdash/client/internal/topics"
)

// State is the client-local position in the room/round lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateJoining      State = "joining"
	StateLobby        State = "lobby"
	StateRoundSetup   State = "round_setup"
	StateRoundActive  State = "round_active"
	StateRoundEnding  State = "round_ending"
	StateReview       State = "review"
)

var (
	ErrInsufficientPlayers = errors.New("not enough active players to start")
	ErrNotHost             = errors.New("only the host can do that")
	ErrNotDrawer           = errors.New("only the drawer can do that")
	ErrDrawerCannotGuess   = errors.New("the drawer cannot submit a guess")
	ErrNoActiveRound       = errors.New("no active round")
	ErrBadTopic            = errors.New("topic is not among the offered choices")
	ErrSessionClosed       = errors.New("session closed")
)

// Notice is a non-fatal, user-visible notification (the toast analog).
// Collaborator failures surface here instead of crashing the session.
type Notice struct {
	Level string // "info" | "warn" | "error"
	Text  string
}

// Predictor is the AI endpoint pair consumed during a round.
type Predictor interface {
	Predict(ctx context.Context, png []byte) (*predict.Prediction, error)
	Similarity(ctx context.Context, wordA, wordB string) (float64, error)
}

// SnapshotUploader stores the final drawing for the review stage.
type SnapshotUploader interface {
	Upload(ctx context.Context, key string, imageBytes []byte, overwrite bool) error
	PublicURL(key string) string
}

// Deps are the external collaborators a session runs against.
type Deps struct {
	Store   store.Store
	Channel channel.Channel
	// FeedEvents carries database change notifications (rooms + strokes).
	// Optional: nil means no change feed (strokes are then only visible to
	// the drawer).
	FeedEvents <-chan store.FeedEvent
	Predictor  Predictor
	Snapshots  SnapshotUploader
	Topics     *topics.Catalog
}

// Options are the gameplay tunables shared by every client of a deployment.
type Options struct {
	RoundDuration time.Duration
	SettleDelay   time.Duration
	MinPlayers    int
	GuessAward    int
	// Checkpoints are the elapsed-seconds marks at which the drawer requests
	// an AI prediction.
	Checkpoints []int
}

func (o Options) withDefaults() Options {
	if o.RoundDuration <= 0 {
		o.RoundDuration = 45 * time.Second
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.MinPlayers < 2 {
		o.MinPlayers = 2
	}
	if o.GuessAward <= 0 {
		o.GuessAward = 100
	}
	if len(o.Checkpoints) == 0 {
		o.Checkpoints = []int{5, 15, 25, 35}
	}
	return o
}

// Member is the session's in-memory view of one room membership joined with
// its profile.
type Member struct {
	Membership store.Membership
	Profile    store.Profile
	Connected  bool
}

// GuessEntry is one line of the shared guess transcript. Pending marks a
// local echo whose durable write has not confirmed yet; a failed write flags
// the entry instead of letting the transcript silently diverge.
type GuessEntry struct {
	ProfileID  string
	Text       string
	Confidence float64
	Similarity float64
	Pending    bool
	Failed     bool
}

// ReviewData is what the review stage renders after a round ends.
type ReviewData struct {
	RoundID     string
	TopicText   string
	Outcome     store.Outcome
	SnapshotURL string
	AILabel     string
	AIScore     float64
	Guesses     []GuessEntry
}
