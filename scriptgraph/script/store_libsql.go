package script

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStore backs the graph with an embedded libsql database. Every public
// call runs inside one transaction via Update/View, matching the
// all-or-nothing write contract.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an already connected and migrated database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Update runs fn inside a read-write transaction.
func (s *SQLStore) Update(ctx context.Context, fn func(tx GraphTx) error) error {
	return s.withTx(ctx, nil, func(tx *sql.Tx) error {
		return fn(&sqlTx{tx: tx, ctx: ctx})
	})
}

// View runs fn inside a read-only transaction.
func (s *SQLStore) View(ctx context.Context, fn func(tx ReadTx) error) error {
	return s.withTx(ctx, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		return fn(&sqlTx{tx: tx, ctx: ctx})
	})
}

func (s *SQLStore) withTx(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ErrStoreUnavailable, err)
	}
	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("transaction failed and rollback failed: %v (original error: %w)", rollbackErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlTx struct {
	tx  *sql.Tx
	ctx context.Context
}

// Timestamps round-trip through a fixed textual form so row ordering and
// repeat exports stay byte-stable across connections.
const tsLayout = time.RFC3339Nano

func encodeTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func decodeTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed turn timestamp %q: %w", s, err)
	}
	return t, nil
}

const turnColumns = `id, persona_id, role, text, accepted, commit_message, ts, parent_id, depth, author_id`

func scanTurn(row interface{ Scan(dest ...any) error }) (*Turn, error) {
	var (
		t        Turn
		id       string
		accepted sql.NullBool
		ts       string
		parentID sql.NullString
		authorID sql.NullString
	)
	err := row.Scan(&id, &t.PersonaID, &t.Role, &t.Text, &accepted, &t.CommitMessage, &ts, &parentID, &t.Depth, &authorID)
	if err != nil {
		return nil, err
	}
	t.ID = MustTurnID(id)
	if accepted.Valid {
		t.Accepted = acceptedBool(accepted.Bool)
	}
	if t.Timestamp, err = decodeTS(ts); err != nil {
		return nil, err
	}
	if parentID.Valid && parentID.String != "" {
		t.ParentID = MustTurnID(parentID.String)
	}
	if authorID.Valid {
		t.AuthorID = authorID.String
	}
	return &t, nil
}

func (q *sqlTx) queryTurns(query string, args ...any) ([]*Turn, error) {
	rows, err := q.tx.QueryContext(q.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}
	return turns, nil
}

func (q *sqlTx) GetTurn(id TurnID) (*Turn, error) {
	row := q.tx.QueryRowContext(q.ctx, `SELECT `+turnColumns+` FROM turns WHERE id = ?`, id.String())
	t, err := scanTurn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: turn %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get turn %s: %w", id, err)
	}
	return t, nil
}

func (q *sqlTx) ChildrenOf(id TurnID) ([]*Turn, error) {
	return q.queryTurns(
		`SELECT `+turnColumns+` FROM turns WHERE parent_id = ? ORDER BY ts, id`,
		id.String(),
	)
}

func (q *sqlTx) RootOf(personaID string) (*Turn, error) {
	var rootID sql.NullString
	err := q.tx.QueryRowContext(q.ctx,
		`SELECT root_turn_id FROM personas WHERE id = ?`, personaID,
	).Scan(&rootID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: persona %s", ErrNotFound, personaID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root of persona %s: %w", personaID, err)
	}
	if !rootID.Valid || rootID.String == "" {
		return nil, fmt.Errorf("%w: persona %s has no root turn", ErrNotFound, personaID)
	}
	return q.GetTurn(MustTurnID(rootID.String))
}

func (q *sqlTx) AcceptedSubtree(personaID string) ([]*Turn, error) {
	root, err := q.RootOf(personaID)
	if err != nil {
		return nil, err
	}
	turns, err := q.queryTurns(
		`SELECT `+turnColumns+` FROM turns
		 WHERE persona_id = ? AND accepted = 1 AND id <> ?
		 ORDER BY depth, ts, id`,
		personaID, root.ID.String(),
	)
	if err != nil {
		return nil, err
	}
	return append([]*Turn{root}, turns...), nil
}

func (q *sqlTx) AncestorChain(id TurnID) ([]*Turn, error) {
	chain, err := q.queryTurns(
		`WITH RECURSIVE lineage (id, persona_id, role, text, accepted, commit_message, ts, parent_id, depth, author_id) AS (
			SELECT `+turnColumns+` FROM turns WHERE id = ?
			UNION ALL
			SELECT t.id, t.persona_id, t.role, t.text, t.accepted, t.commit_message, t.ts, t.parent_id, t.depth, t.author_id
			FROM turns t JOIN lineage l ON t.id = l.parent_id
		)
		SELECT id, persona_id, role, text, accepted, commit_message, ts, parent_id, depth, author_id
		FROM lineage ORDER BY depth`,
		id.String(),
	)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: turn %s", ErrNotFound, id)
	}
	return chain, nil
}

func (q *sqlTx) PersonaOfTurn(id TurnID) (string, error) {
	var personaID string
	err := q.tx.QueryRowContext(q.ctx,
		`SELECT persona_id FROM turns WHERE id = ?`, id.String(),
	).Scan(&personaID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: turn %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve persona of turn %s: %w", id, err)
	}
	return personaID, nil
}

func (q *sqlTx) PersonasOfDay(dayID string) ([]*Persona, error) {
	rows, err := q.tx.QueryContext(q.ctx,
		`SELECT id, day_id, seq, COALESCE(root_turn_id, '') FROM personas WHERE day_id = ? ORDER BY seq, id`,
		dayID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list personas of day %s: %w", dayID, err)
	}
	defer rows.Close()

	var personas []*Persona
	for rows.Next() {
		var (
			p      Persona
			rootID string
		)
		if err := rows.Scan(&p.ID, &p.DayID, &p.Seq, &rootID); err != nil {
			return nil, fmt.Errorf("failed to scan persona: %w", err)
		}
		if rootID != "" {
			p.RootTurnID = MustTurnID(rootID)
		}
		personas = append(personas, &p)
	}
	return personas, rows.Err()
}

func (q *sqlTx) DaysOfModule(moduleID string) ([]*Day, error) {
	rows, err := q.tx.QueryContext(q.ctx,
		`SELECT id, module_id, seq FROM days WHERE module_id = ? ORDER BY seq, id`,
		moduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list days of module %s: %w", moduleID, err)
	}
	defer rows.Close()

	var days []*Day
	for rows.Next() {
		var d Day
		if err := rows.Scan(&d.ID, &d.ModuleID, &d.Seq); err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		days = append(days, &d)
	}
	return days, rows.Err()
}

func (q *sqlTx) CountTurns() (int, error) {
	var n int
	if err := q.tx.QueryRowContext(q.ctx, `SELECT COUNT(*) FROM turns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return n, nil
}

func (q *sqlTx) InsertTurn(t *Turn) error {
	var accepted any
	if t.Accepted != nil {
		accepted = *t.Accepted
	}
	var parentID any
	if !t.ParentID.IsZero() {
		parentID = t.ParentID.String()
	}
	var authorID any
	if t.AuthorID != "" {
		authorID = t.AuthorID
	}
	_, err := q.tx.ExecContext(q.ctx,
		`INSERT INTO turns (`+turnColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.PersonaID, t.Role, t.Text, accepted, t.CommitMessage,
		encodeTS(t.Timestamp), parentID, t.Depth, authorID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert turn %s: %w", t.ID, err)
	}
	return nil
}

func (q *sqlTx) LinkChild(childID, parentID TurnID) error {
	// child_id is the primary key, so relinking an already parented turn
	// fails the insert and rolls the transaction back.
	_, err := q.tx.ExecContext(q.ctx,
		`INSERT INTO child_of (child_id, parent_id) VALUES (?, ?)`,
		childID.String(), parentID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to link %s -> %s: %w", childID, parentID, err)
	}
	return nil
}

func (q *sqlTx) ArchiveTurn(id TurnID) error {
	res, err := q.tx.ExecContext(q.ctx,
		`UPDATE turns SET accepted = 0 WHERE id = ?`, id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to archive turn %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to archive turn %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: turn %s", ErrNotFound, id)
	}
	return nil
}

func (q *sqlTx) UpsertAuthor(a *Author) error {
	_, err := q.tx.ExecContext(q.ctx,
		`INSERT INTO authors (id, name) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
		a.ID, a.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert author %s: %w", a.ID, err)
	}
	return nil
}

func (q *sqlTx) UpsertProgram(p *Program) error {
	_, err := q.tx.ExecContext(q.ctx,
		`INSERT INTO programs (id, seq) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET seq = excluded.seq`,
		p.ID, p.Seq,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert program %s: %w", p.ID, err)
	}
	return nil
}

func (q *sqlTx) UpsertModule(m *Module) error {
	_, err := q.tx.ExecContext(q.ctx,
		`INSERT INTO modules (id, program_id, seq) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET program_id = excluded.program_id, seq = excluded.seq`,
		m.ID, m.ProgramID, m.Seq,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert module %s: %w", m.ID, err)
	}
	return nil
}

func (q *sqlTx) UpsertDay(d *Day) error {
	_, err := q.tx.ExecContext(q.ctx,
		`INSERT INTO days (id, module_id, seq) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET module_id = excluded.module_id, seq = excluded.seq`,
		d.ID, d.ModuleID, d.Seq,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert day %s: %w", d.ID, err)
	}
	return nil
}

func (q *sqlTx) UpsertPersona(p *Persona) error {
	_, err := q.tx.ExecContext(q.ctx,
		`INSERT INTO personas (id, day_id, seq) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET day_id = excluded.day_id, seq = excluded.seq`,
		p.ID, p.DayID, p.Seq,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert persona %s: %w", p.ID, err)
	}
	return nil
}

func (q *sqlTx) SetPersonaRoot(personaID string, rootID TurnID) error {
	res, err := q.tx.ExecContext(q.ctx,
		`UPDATE personas SET root_turn_id = ? WHERE id = ?`,
		rootID.String(), personaID,
	)
	if err != nil {
		return fmt.Errorf("failed to set root of persona %s: %w", personaID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set root of persona %s: %w", personaID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: persona %s", ErrNotFound, personaID)
	}
	return nil
}
