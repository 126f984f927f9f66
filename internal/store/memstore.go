package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memstore is a development/test implementation of Store used when no
// database is configured. It reproduces the same per-field write policies as
// the Postgres repository.
type memstore struct {
	mu sync.RWMutex

	now func() time.Time

	rooms    map[string]*Room
	profiles map[string]*Profile
	members  map[string]map[string]*Membership // room -> profile -> membership
	rounds   map[string]*Round
	seqs     map[string]int // room -> last round seq
	guesses  map[string]map[string]*Guess // round -> profile -> guess
	strokes  map[string][]*Stroke
	nextID   int64
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() Store {
	return &memstore{
		now:      time.Now,
		rooms:    make(map[string]*Room),
		profiles: make(map[string]*Profile),
		members:  make(map[string]map[string]*Membership),
		rounds:   make(map[string]*Round),
		seqs:     make(map[string]int),
		guesses:  make(map[string]map[string]*Guess),
		strokes:  make(map[string][]*Stroke),
	}
}

func (m *memstore) Close() error { return nil }

func (m *memstore) Exists(ctx context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[code]
	return ok, nil
}

func (m *memstore) Create(ctx context.Context, code, hostID string, roundDuration int) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rooms[code]; exists {
		return nil, ErrRoomExists
	}
	room := &Room{Code: code, HostID: hostID, RoundDuration: roundDuration, CreatedAt: m.now()}
	m.rooms[code] = room
	cp := *room
	return &cp, nil
}

func (m *memstore) Get(ctx context.Context, code string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (m *memstore) SetActive(ctx context.Context, code string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[code]; ok {
		room.Active = active
	}
	return nil
}

func (m *memstore) SetHost(ctx context.Context, code, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[code]; ok {
		room.HostID = profileID
	}
	return nil
}

func (m *memstore) Delete(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, code)
	delete(m.members, code)
	return nil
}

func (m *memstore) UpsertProfile(ctx context.Context, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *memstore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (m *memstore) UpsertMember(ctx context.Context, mem Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byProfile, ok := m.members[mem.RoomCode]
	if !ok {
		byProfile = make(map[string]*Membership)
		m.members[mem.RoomCode] = byProfile
	}
	if prev, exists := byProfile[mem.ProfileID]; exists {
		// last write wins on score/active, join time is preserved
		prev.Score = mem.Score
		prev.Active = mem.Active
		return nil
	}
	cp := mem
	if cp.JoinedAt.IsZero() {
		cp.JoinedAt = m.now()
	}
	byProfile[mem.ProfileID] = &cp
	return nil
}

func (m *memstore) GetMember(ctx context.Context, room, profileID string) (*Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[room][profileID]
	if !ok {
		return nil, fmt.Errorf("member %s/%s not found", room, profileID)
	}
	cp := *mem
	return &cp, nil
}

func (m *memstore) SetMemberActive(ctx context.Context, room, profileID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.members[room][profileID]; ok {
		mem.Active = active
	}
	return nil
}

func (m *memstore) AddScore(ctx context.Context, room, profileID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.members[room][profileID]; ok {
		mem.Score += delta
	}
	return nil
}

func (m *memstore) ListActive(ctx context.Context, room string) ([]Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Membership
	for _, mem := range m.members[room] {
		if mem.Active {
			out = append(out, *mem)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ProfileID < out[j].ProfileID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (m *memstore) CreateRound(ctx context.Context, room string, topicID int, drawerID string) (*Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[room]++
	rd := &Round{
		ID:        newRoundID(),
		RoomCode:  room,
		Seq:       m.seqs[room],
		TopicID:   topicID,
		DrawerID:  drawerID,
		Outcome:   OutcomeUndecided,
		StartedAt: m.now(),
	}
	m.rounds[rd.ID] = rd
	cp := *rd
	return &cp, nil
}

func (m *memstore) GetRound(ctx context.Context, id string) (*Round, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rd, ok := m.rounds[id]
	if !ok {
		return nil, ErrRoundNotFound
	}
	cp := *rd
	return &cp, nil
}

func (m *memstore) SetOutcome(ctx context.Context, id string, outcome Outcome) (bool, error) {
	if outcome == OutcomeUndecided {
		return false, fmt.Errorf("cannot finalize to undecided")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rd, ok := m.rounds[id]
	if !ok {
		return false, ErrRoundNotFound
	}
	if rd.Outcome != OutcomeUndecided {
		return false, nil
	}
	rd.Outcome = outcome
	return true, nil
}

func (m *memstore) UpsertGuess(ctx context.Context, g Guess) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byProfile, ok := m.guesses[g.RoundID]
	if !ok {
		byProfile = make(map[string]*Guess)
		m.guesses[g.RoundID] = byProfile
	}
	cp := g
	cp.UpdatedAt = m.now()
	byProfile[g.ProfileID] = &cp
	return nil
}

func (m *memstore) ListGuesses(ctx context.Context, roundID string) ([]Guess, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Guess
	for _, g := range m.guesses[roundID] {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ProfileID < out[j].ProfileID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *memstore) AppendStroke(ctx context.Context, roundID, path string, erase bool) (*Stroke, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	st := &Stroke{ID: m.nextID, RoundID: roundID, Path: path, Erase: erase, AddedAt: m.now()}
	m.strokes[roundID] = append(m.strokes[roundID], st)
	cp := *st
	return &cp, nil
}

func (m *memstore) ListStrokes(ctx context.Context, roundID string) ([]Stroke, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stroke, 0, len(m.strokes[roundID]))
	for _, st := range m.strokes[roundID] {
		out = append(out, *st)
	}
	return out, nil
}
