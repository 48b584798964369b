package script

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory GraphStore. It backs tests and small
// single-process deployments; transactions are snapshot-based, so an Update
// that returns an error leaves no trace (the same all-or-nothing contract
// the libsql store gets from SQL transactions).
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	turns    map[string]*Turn
	edges    map[string]string // child id -> parent id
	personas map[string]*Persona
	days     map[string]*Day
	modules  map[string]*Module
	programs map[string]*Program
	authors  map[string]*Author
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		turns:    make(map[string]*Turn),
		edges:    make(map[string]string),
		personas: make(map[string]*Persona),
		days:     make(map[string]*Day),
		modules:  make(map[string]*Module),
		programs: make(map[string]*Program),
		authors:  make(map[string]*Author),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.turns {
		t := *v
		c.turns[k] = &t
	}
	for k, v := range s.edges {
		c.edges[k] = v
	}
	for k, v := range s.personas {
		p := *v
		c.personas[k] = &p
	}
	for k, v := range s.days {
		d := *v
		c.days[k] = &d
	}
	for k, v := range s.modules {
		m := *v
		c.modules[k] = &m
	}
	for k, v := range s.programs {
		p := *v
		c.programs[k] = &p
	}
	for k, v := range s.authors {
		a := *v
		c.authors[k] = &a
	}
	return c
}

// Update runs fn against a snapshot and swaps it in only when fn succeeds.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx GraphTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&memTx{state: snapshot}); err != nil {
		return err
	}
	s.state = snapshot
	return nil
}

// View runs fn against the current state read-only.
func (s *MemoryStore) View(ctx context.Context, fn func(tx ReadTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&memTx{state: s.state})
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// memTx implements GraphTx over a memState. Read methods hand out copies so
// callers can never mutate stored turns in place.
type memTx struct {
	state *memState
}

func (tx *memTx) GetTurn(id TurnID) (*Turn, error) {
	t, ok := tx.state.turns[id.String()]
	if !ok {
		return nil, fmt.Errorf("%w: turn %s", ErrNotFound, id)
	}
	cp := *t
	return &cp, nil
}

func (tx *memTx) ChildrenOf(id TurnID) ([]*Turn, error) {
	var children []*Turn
	for childID, parentID := range tx.state.edges {
		if parentID != id.String() {
			continue
		}
		t, ok := tx.state.turns[childID]
		if !ok {
			continue
		}
		cp := *t
		children = append(children, &cp)
	}
	sortTurnsByTime(children)
	return children, nil
}

func (tx *memTx) RootOf(personaID string) (*Turn, error) {
	p, ok := tx.state.personas[personaID]
	if !ok {
		return nil, fmt.Errorf("%w: persona %s", ErrNotFound, personaID)
	}
	if p.RootTurnID.IsZero() {
		return nil, fmt.Errorf("%w: persona %s has no root turn", ErrNotFound, personaID)
	}
	return tx.GetTurn(p.RootTurnID)
}

func (tx *memTx) AcceptedSubtree(personaID string) ([]*Turn, error) {
	root, err := tx.RootOf(personaID)
	if err != nil {
		return nil, err
	}

	turns := []*Turn{root}
	for _, t := range tx.state.turns {
		if t.PersonaID != personaID || t.ID == root.ID {
			continue
		}
		if t.Accepted != nil && *t.Accepted {
			cp := *t
			turns = append(turns, &cp)
		}
	}
	sortTurnsByDepth(turns)
	return turns, nil
}

func (tx *memTx) AncestorChain(id TurnID) ([]*Turn, error) {
	if _, ok := tx.state.turns[id.String()]; !ok {
		return nil, fmt.Errorf("%w: turn %s", ErrNotFound, id)
	}

	// Iterative walk child -> parent; the hop budget guards against a
	// corrupted edge set with cycles.
	var reversed []*Turn
	current := id.String()
	for hops := 0; hops <= len(tx.state.turns); hops++ {
		t, ok := tx.state.turns[current]
		if !ok {
			return nil, fmt.Errorf("%w: turn %s on ancestor chain", ErrNotFound, current)
		}
		cp := *t
		reversed = append(reversed, &cp)

		parent, ok := tx.state.edges[current]
		if !ok {
			// Reached the root
			chain := make([]*Turn, len(reversed))
			for i, turn := range reversed {
				chain[len(reversed)-1-i] = turn
			}
			return chain, nil
		}
		current = parent
	}
	return nil, fmt.Errorf("%w: ancestor chain of %s does not terminate", ErrStoreUnavailable, id)
}

func (tx *memTx) PersonaOfTurn(id TurnID) (string, error) {
	t, ok := tx.state.turns[id.String()]
	if !ok || t.PersonaID == "" {
		return "", fmt.Errorf("%w: persona of turn %s", ErrNotFound, id)
	}
	return t.PersonaID, nil
}

func (tx *memTx) PersonasOfDay(dayID string) ([]*Persona, error) {
	var personas []*Persona
	for _, p := range tx.state.personas {
		if p.DayID == dayID {
			cp := *p
			personas = append(personas, &cp)
		}
	}
	sort.Slice(personas, func(i, j int) bool {
		if personas[i].Seq != personas[j].Seq {
			return personas[i].Seq < personas[j].Seq
		}
		return personas[i].ID < personas[j].ID
	})
	return personas, nil
}

func (tx *memTx) DaysOfModule(moduleID string) ([]*Day, error) {
	var days []*Day
	for _, d := range tx.state.days {
		if d.ModuleID == moduleID {
			cp := *d
			days = append(days, &cp)
		}
	}
	sort.Slice(days, func(i, j int) bool {
		if days[i].Seq != days[j].Seq {
			return days[i].Seq < days[j].Seq
		}
		return days[i].ID < days[j].ID
	})
	return days, nil
}

func (tx *memTx) CountTurns() (int, error) {
	return len(tx.state.turns), nil
}

func (tx *memTx) InsertTurn(t *Turn) error {
	if t.ID.IsZero() {
		return fmt.Errorf("%w: turn id must be set", ErrValidation)
	}
	if _, exists := tx.state.turns[t.ID.String()]; exists {
		return fmt.Errorf("%w: turn %s already exists", ErrStoreUnavailable, t.ID)
	}
	cp := *t
	tx.state.turns[t.ID.String()] = &cp
	return nil
}

func (tx *memTx) LinkChild(childID, parentID TurnID) error {
	if _, ok := tx.state.turns[childID.String()]; !ok {
		return fmt.Errorf("%w: child turn %s", ErrNotFound, childID)
	}
	if _, ok := tx.state.turns[parentID.String()]; !ok {
		return fmt.Errorf("%w: parent turn %s", ErrNotFound, parentID)
	}
	if _, linked := tx.state.edges[childID.String()]; linked {
		return fmt.Errorf("%w: turn %s already has a parent edge", ErrStoreUnavailable, childID)
	}
	tx.state.edges[childID.String()] = parentID.String()
	tx.state.turns[childID.String()].ParentID = parentID
	return nil
}

func (tx *memTx) ArchiveTurn(id TurnID) error {
	t, ok := tx.state.turns[id.String()]
	if !ok {
		return fmt.Errorf("%w: turn %s", ErrNotFound, id)
	}
	t.Accepted = acceptedBool(false)
	return nil
}

func (tx *memTx) UpsertAuthor(a *Author) error {
	cp := *a
	tx.state.authors[a.ID] = &cp
	return nil
}

func (tx *memTx) UpsertProgram(p *Program) error {
	cp := *p
	tx.state.programs[p.ID] = &cp
	return nil
}

func (tx *memTx) UpsertModule(m *Module) error {
	cp := *m
	tx.state.modules[m.ID] = &cp
	return nil
}

func (tx *memTx) UpsertDay(d *Day) error {
	cp := *d
	tx.state.days[d.ID] = &cp
	return nil
}

func (tx *memTx) UpsertPersona(p *Persona) error {
	if existing, ok := tx.state.personas[p.ID]; ok {
		// Preserve the root relation across catalog re-imports
		cp := *p
		if cp.RootTurnID.IsZero() {
			cp.RootTurnID = existing.RootTurnID
		}
		tx.state.personas[p.ID] = &cp
		return nil
	}
	cp := *p
	tx.state.personas[p.ID] = &cp
	return nil
}

func (tx *memTx) SetPersonaRoot(personaID string, rootID TurnID) error {
	p, ok := tx.state.personas[personaID]
	if !ok {
		return fmt.Errorf("%w: persona %s", ErrNotFound, personaID)
	}
	p.RootTurnID = rootID
	return nil
}

// sortTurnsByTime orders by (ts, id) for deterministic sibling order.
func sortTurnsByTime(turns []*Turn) {
	sort.Slice(turns, func(i, j int) bool {
		if !turns[i].Timestamp.Equal(turns[j].Timestamp) {
			return turns[i].Timestamp.Before(turns[j].Timestamp)
		}
		return turns[i].ID.String() < turns[j].ID.String()
	})
}

// sortTurnsByDepth orders by (depth, ts, id); the export ordering.
func sortTurnsByDepth(turns []*Turn) {
	sort.Slice(turns, func(i, j int) bool {
		if turns[i].Depth != turns[j].Depth {
			return turns[i].Depth < turns[j].Depth
		}
		if !turns[i].Timestamp.Equal(turns[j].Timestamp) {
			return turns[i].Timestamp.Before(turns[j].Timestamp)
		}
		return turns[i].ID.String() < turns[j].ID.String()
	})
}
