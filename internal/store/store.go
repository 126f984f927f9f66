package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomExists    = errors.New("room already exists")
	ErrRoundNotFound = errors.New("round not found")
)

// Outcome is the finalized result of a round. Empty means undecided; a
// decided outcome is write-once.
type Outcome string

const (
	OutcomeUndecided Outcome = ""
	OutcomeGuessers  Outcome = "guessers"
	OutcomeAI        Outcome = "ai"
)

// AIProfileID is the synthetic profile that owns the AI's guesses.
const AIProfileID = "ai"

type Room struct {
	Code          string    `json:"room_id"`
	HostID        string    `json:"host_id"`
	Active        bool      `json:"is_active"`
	RoundDuration int       `json:"round_duration"`
	CreatedAt     time.Time `json:"created_at"`
}

type Profile struct {
	ID     string `json:"profile_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type Membership struct {
	RoomCode  string    `json:"room_id"`
	ProfileID string    `json:"profile_id"`
	Score     int       `json:"score"`
	Active    bool      `json:"is_active"`
	JoinedAt  time.Time `json:"joined_at"`
}

type Round struct {
	ID        string    `json:"round_id"`
	RoomCode  string    `json:"room_id"`
	Seq       int       `json:"seq"`
	TopicID   int       `json:"topic_id"`
	DrawerID  string    `json:"drawer_id"`
	Outcome   Outcome   `json:"outcome"`
	StartedAt time.Time `json:"started_at"`
}

type Guess struct {
	RoundID    string    `json:"round_id"`
	ProfileID  string    `json:"profile_id"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Stroke is one appended path segment of a round's drawing. Path is an SVG
// path expression as produced by the sketch canvas.
type Stroke struct {
	ID      int64     `json:"id"`
	RoundID string    `json:"round_id"`
	Path    string    `json:"path"`
	Erase   bool      `json:"erase"`
	AddedAt time.Time `json:"created_at"`
}

type RoomDirectory interface {
	Exists(ctx context.Context, code string) (bool, error)
	// Create claims a room code for hostID. Returns ErrRoomExists when the
	// code is already taken.
	Create(ctx context.Context, code, hostID string, roundDuration int) (*Room, error)
	Get(ctx context.Context, code string) (*Room, error)
	SetActive(ctx context.Context, code string, active bool) error
	// SetHost is a last-write-wins upsert of the host field; concurrent
	// failover writers may race and the final write stands.
	SetHost(ctx context.Context, code, profileID string) error
	Delete(ctx context.Context, code string) error
}

type ProfileStore interface {
	UpsertProfile(ctx context.Context, p Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
}

type MembershipStore interface {
	// UpsertMember collapses onto the (room, profile) key, last write wins on
	// score/active. The original join time is preserved across rejoins.
	UpsertMember(ctx context.Context, m Membership) error
	GetMember(ctx context.Context, room, profileID string) (*Membership, error)
	SetMemberActive(ctx context.Context, room, profileID string, active bool) error
	AddScore(ctx context.Context, room, profileID string, delta int) error
	// ListActive returns active memberships ordered by join time ascending.
	ListActive(ctx context.Context, room string) ([]Membership, error)
}

type RoundStore interface {
	CreateRound(ctx context.Context, room string, topicID int, drawerID string) (*Round, error)
	GetRound(ctx context.Context, id string) (*Round, error)
	// SetOutcome finalizes a round conditionally: the write only lands while
	// the stored outcome is still undecided. Returns whether it landed.
	SetOutcome(ctx context.Context, id string, outcome Outcome) (bool, error)
}

type GuessStore interface {
	// UpsertGuess keeps one live record per (round, profile); resubmission
	// overwrites.
	UpsertGuess(ctx context.Context, g Guess) error
	ListGuesses(ctx context.Context, roundID string) ([]Guess, error)
}

type StrokeLog interface {
	AppendStroke(ctx context.Context, roundID, path string, erase bool) (*Stroke, error)
	ListStrokes(ctx context.Context, roundID string) ([]Stroke, error)
}

// Store is the full durable collaborator surface consumed by a session.
type Store interface {
	RoomDirectory
	ProfileStore
	MembershipStore
	RoundStore
	GuessStore
	StrokeLog
	Close() error
}
