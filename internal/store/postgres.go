package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Repository is the Postgres-backed implementation of Store.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema applies the embedded schema. Statements are idempotent
// (CREATE IF NOT EXISTS / CREATE OR REPLACE).
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schemaSQL)
	return err
}

func (r *Repository) Exists(ctx context.Context, code string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE room_id = $1`, code).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) Create(ctx context.Context, code, hostID string, roundDuration int) (*Room, error) {
	room := &Room{Code: code, HostID: hostID, RoundDuration: roundDuration}
	q := `INSERT INTO rooms (room_id, host_id, is_active, round_duration)
	      VALUES ($1, $2, false, $3)
	      ON CONFLICT (room_id) DO NOTHING
	      RETURNING created_at`
	err := r.db.QueryRowContext(ctx, q, code, hostID, roundDuration).Scan(&room.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRoomExists
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (r *Repository) Get(ctx context.Context, code string) (*Room, error) {
	var room Room
	q := `SELECT room_id, host_id, is_active, round_duration, created_at FROM rooms WHERE room_id = $1`
	err := r.db.QueryRowContext(ctx, q, code).Scan(&room.Code, &room.HostID, &room.Active, &room.RoundDuration, &room.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *Repository) SetActive(ctx context.Context, code string, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE rooms SET is_active = $2 WHERE room_id = $1`, code, active)
	return err
}

func (r *Repository) SetHost(ctx context.Context, code, profileID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE rooms SET host_id = $2 WHERE room_id = $1`, code, profileID)
	return err
}

func (r *Repository) Delete(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = $1`, code)
	return err
}

func (r *Repository) UpsertProfile(ctx context.Context, p Profile) error {
	q := `INSERT INTO profiles (profile_id, name, avatar)
	      VALUES ($1, $2, $3)
	      ON CONFLICT (profile_id) DO UPDATE SET
	        name = EXCLUDED.name,
	        avatar = EXCLUDED.avatar`
	_, err := r.db.ExecContext(ctx, q, p.ID, p.Name, p.Avatar)
	return err
}

func (r *Repository) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	err := r.db.QueryRowContext(ctx, `SELECT profile_id, name, avatar FROM profiles WHERE profile_id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Avatar)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) UpsertMember(ctx context.Context, m Membership) error {
	// joined_at is set on first insert only so failover ordering stays
	// stable across rejoins.
	q := `INSERT INTO room_members (room_id, profile_id, score, is_active)
	      VALUES ($1, $2, $3, $4)
	      ON CONFLICT (room_id, profile_id) DO UPDATE SET
	        score = EXCLUDED.score,
	        is_active = EXCLUDED.is_active`
	_, err := r.db.ExecContext(ctx, q, m.RoomCode, m.ProfileID, m.Score, m.Active)
	return err
}

func (r *Repository) GetMember(ctx context.Context, room, profileID string) (*Membership, error) {
	q := `SELECT room_id, profile_id, score, is_active, joined_at
	      FROM room_members WHERE room_id = $1 AND profile_id = $2`
	var m Membership
	err := r.db.QueryRowContext(ctx, q, room, profileID).
		Scan(&m.RoomCode, &m.ProfileID, &m.Score, &m.Active, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member %s/%s not found", room, profileID)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) SetMemberActive(ctx context.Context, room, profileID string, active bool) error {
	q := `UPDATE room_members SET is_active = $3 WHERE room_id = $1 AND profile_id = $2`
	_, err := r.db.ExecContext(ctx, q, room, profileID, active)
	return err
}

func (r *Repository) AddScore(ctx context.Context, room, profileID string, delta int) error {
	q := `UPDATE room_members SET score = score + $3 WHERE room_id = $1 AND profile_id = $2`
	_, err := r.db.ExecContext(ctx, q, room, profileID, delta)
	return err
}

func (r *Repository) ListActive(ctx context.Context, room string) ([]Membership, error) {
	q := `SELECT room_id, profile_id, score, is_active, joined_at
	      FROM room_members
	      WHERE room_id = $1 AND is_active
	      ORDER BY joined_at ASC, profile_id ASC`
	rows, err := r.db.QueryContext(ctx, q, room)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.RoomCode, &m.ProfileID, &m.Score, &m.Active, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) CreateRound(ctx context.Context, room string, topicID int, drawerID string) (*Round, error) {
	rd := &Round{RoomCode: room, TopicID: topicID, DrawerID: drawerID}
	rd.ID = newRoundID()
	// Seq races are acceptable: only the drawer's client creates rounds for
	// a room.
	q := `INSERT INTO rounds (round_id, room_id, seq, topic_id, drawer_id, outcome)
	      SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, ''
	      FROM rounds WHERE room_id = $2
	      RETURNING seq, started_at`
	err := r.db.QueryRowContext(ctx, q, rd.ID, room, topicID, drawerID).Scan(&rd.Seq, &rd.StartedAt)
	if err != nil {
		return nil, err
	}
	return rd, nil
}

func (r *Repository) GetRound(ctx context.Context, id string) (*Round, error) {
	var rd Round
	q := `SELECT round_id, room_id, seq, topic_id, drawer_id, outcome, started_at FROM rounds WHERE round_id = $1`
	err := r.db.QueryRowContext(ctx, q, id).Scan(&rd.ID, &rd.RoomCode, &rd.Seq, &rd.TopicID, &rd.DrawerID, &rd.Outcome, &rd.StartedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rd, nil
}

func (r *Repository) SetOutcome(ctx context.Context, id string, outcome Outcome) (bool, error) {
	if outcome == OutcomeUndecided {
		return false, fmt.Errorf("cannot finalize to undecided")
	}
	q := `UPDATE rounds SET outcome = $2 WHERE round_id = $1 AND outcome = ''`
	res, err := r.db.ExecContext(ctx, q, id, string(outcome))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repository) UpsertGuess(ctx context.Context, g Guess) error {
	q := `INSERT INTO guesses (round_id, profile_id, text, confidence, updated_at)
	      VALUES ($1, $2, $3, $4, now())
	      ON CONFLICT (round_id, profile_id) DO UPDATE SET
	        text = EXCLUDED.text,
	        confidence = EXCLUDED.confidence,
	        updated_at = now()`
	_, err := r.db.ExecContext(ctx, q, g.RoundID, g.ProfileID, g.Text, g.Confidence)
	return err
}

func (r *Repository) ListGuesses(ctx context.Context, roundID string) ([]Guess, error) {
	q := `SELECT round_id, profile_id, text, confidence, updated_at
	      FROM guesses WHERE round_id = $1 ORDER BY updated_at ASC`
	rows, err := r.db.QueryContext(ctx, q, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Guess
	for rows.Next() {
		var g Guess
		if err := rows.Scan(&g.RoundID, &g.ProfileID, &g.Text, &g.Confidence, &g.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *Repository) AppendStroke(ctx context.Context, roundID, path string, erase bool) (*Stroke, error) {
	st := &Stroke{RoundID: roundID, Path: path, Erase: erase}
	q := `INSERT INTO strokes (round_id, path, erase) VALUES ($1, $2, $3) RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, q, roundID, path, erase).Scan(&st.ID, &st.AddedAt)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (r *Repository) ListStrokes(ctx context.Context, roundID string) ([]Stroke, error) {
	q := `SELECT id, round_id, path, erase, created_at FROM strokes WHERE round_id = $1 ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, q, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Stroke
	for rows.Next() {
		var st Stroke
		if err := rows.Scan(&st.ID, &st.RoundID, &st.Path, &st.Erase, &st.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

var _ Store = (*Repository)(nil)
