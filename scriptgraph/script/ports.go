package script

import (
	"context"
	"time"
)

// GraphStore is the transactional graph capability the engine consumes. The
// store handle is passed explicitly into every repository/resolver/export
// call path; nothing in this package reaches for a global connection, so
// tests substitute an in-memory implementation.
type GraphStore interface {
	// Update runs fn inside a read-write transaction. fn's mutations apply
	// all-or-nothing: any error rolls the whole transaction back.
	Update(ctx context.Context, fn func(tx GraphTx) error) error
	// View runs fn inside a read-only transaction.
	View(ctx context.Context, fn func(tx ReadTx) error) error
	Close() error
}

// ReadTx is the read surface of a graph transaction.
type ReadTx interface {
	// GetTurn retrieves a turn by id; ErrNotFound if absent.
	GetTurn(id TurnID) (*Turn, error)
	// ChildrenOf returns every child of a turn ordered by (ts, id).
	ChildrenOf(id TurnID) ([]*Turn, error)
	// RootOf returns the root turn of a persona; ErrNotFound if the persona
	// or its root relation is missing.
	RootOf(personaID string) (*Turn, error)
	// AcceptedSubtree returns the root plus every accepted turn of a persona.
	AcceptedSubtree(personaID string) ([]*Turn, error)
	// AncestorChain returns the chain root -> ... -> id, id included.
	AncestorChain(id TurnID) ([]*Turn, error)
	// PersonaOfTurn resolves the owning persona of a turn; ErrNotFound when
	// the turn is not attached to any persona tree.
	PersonaOfTurn(id TurnID) (string, error)
	// PersonasOfDay lists a day's personas ordered by (seq, id).
	PersonasOfDay(dayID string) ([]*Persona, error)
	// DaysOfModule lists a module's days ordered by (seq, id).
	DaysOfModule(moduleID string) ([]*Day, error)
	// CountTurns reports the total number of turns in the store.
	CountTurns() (int, error)
}

// GraphTx adds the write surface. Turns are append-only: InsertTurn and
// ArchiveTurn are the only turn mutations that exist.
type GraphTx interface {
	ReadTx

	InsertTurn(t *Turn) error
	// LinkChild records the directed child -> parent edge.
	LinkChild(childID, parentID TurnID) error
	// ArchiveTurn flips accepted to false. Terminal; re-archival is a no-op.
	ArchiveTurn(id TurnID) error

	UpsertAuthor(a *Author) error
	UpsertProgram(p *Program) error
	UpsertModule(m *Module) error
	UpsertDay(d *Day) error
	UpsertPersona(p *Persona) error
	// SetPersonaRoot records the dedicated root relation of a persona.
	SetPersonaRoot(personaID string, rootID TurnID) error
}

// Notifier publishes change events best-effort. Publish must never block the
// caller for long and its failures never roll back the triggering write.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// Turn is one immutable version of a conversational step.
type Turn struct {
	ID            TurnID    `json:"id"`
	PersonaID     string    `json:"persona_id"`
	Role          string    `json:"role"`
	Text          string    `json:"text"`
	Accepted      *bool     `json:"accepted"` // nil for the root, which is trivially on-path
	CommitMessage string    `json:"commit_message,omitempty"`
	Timestamp     time.Time `json:"ts"`
	ParentID      TurnID    `json:"parent_id,omitempty"` // zero for the root
	Depth         int       `json:"depth"`
	AuthorID      string    `json:"author_id,omitempty"`
}

// IsRoot reports whether the turn is a persona's root.
func (t *Turn) IsRoot() bool { return t.ParentID.IsZero() }

// IsAccepted reports whether the turn is on-path material: accepted, or the
// root (whose accepted field is deliberately absent).
func (t *Turn) IsAccepted() bool {
	if t.Accepted == nil {
		return t.IsRoot()
	}
	return *t.Accepted
}

// Persona owns exactly one turn tree.
type Persona struct {
	ID         string `json:"id"`
	DayID      string `json:"day_id"`
	Seq        int    `json:"seq"`
	RootTurnID TurnID `json:"root_turn_id"`
}

// Day groups personas within a module.
type Day struct {
	ID       string `json:"id"`
	ModuleID string `json:"module_id"`
	Seq      int    `json:"seq"`
}

// Module groups days within a program.
type Module struct {
	ID        string `json:"id"`
	ProgramID string `json:"program_id"`
	Seq       int    `json:"seq"`
}

// Program is the top of the catalog.
type Program struct {
	ID  string `json:"id"`
	Seq int    `json:"seq"`
}

// Author is an editing identity, upserted by identifier.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TurnView is the export projection of a turn.
type TurnView struct {
	ID    TurnID    `json:"id"`
	Role  string    `json:"role"`
	Depth int       `json:"depth"`
	Text  string    `json:"text"`
	TS    time.Time `json:"ts"`
}

// PersonaExport is one persona's accepted subtree.
type PersonaExport struct {
	ID    string     `json:"id"`
	Turns []TurnView `json:"turns"`
}

// DayExport aggregates persona exports.
type DayExport struct {
	ID       string          `json:"id"`
	Personas []PersonaExport `json:"personas"`
}

// ModuleExport aggregates day exports.
type ModuleExport struct {
	ID   string      `json:"id"`
	Days []DayExport `json:"days"`
}

func acceptedBool(v bool) *bool { return &v }
