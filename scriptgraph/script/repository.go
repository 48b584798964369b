package script

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	internal "github.com/scriptsmith/scriptgraph/scriptgraph"
)

// Repository creates new turn revisions and links them into the tree.
// It is the only mutating entry point of the engine.
type Repository struct {
	store    GraphStore
	notifier Notifier
	logger   zerolog.Logger

	// autoAccept controls the accepted flag of a fresh revision: optimistic
	// publish (true) versus pending review (false).
	autoAccept bool

	now func() time.Time
}

// NewRepository creates a repository bound to a store and a notifier. A nil
// notifier disables change events.
func NewRepository(store GraphStore, notifier Notifier, autoAccept bool, logger zerolog.Logger) *Repository {
	return &Repository{
		store:      store,
		notifier:   notifier,
		logger:     logger,
		autoAccept: autoAccept,
		now:        time.Now,
	}
}

// CreateRevisionRequest carries the inputs of CreateRevision.
type CreateRevisionRequest struct {
	ParentID      TurnID
	Text          string
	CommitMessage string
	Author        Author
}

// CreateRevision records an edit as a new turn: the new turn inherits the
// parent's role, is linked via a child-of edge, and the edited parent is
// archived, all in one transaction. Validation happens before any mutation.
// After commit a script.turn.updated event is published best-effort; publish
// failure never surfaces to the caller.
func (r *Repository) CreateRevision(ctx context.Context, req CreateRevisionRequest) (TurnID, error) {
	if strings.TrimSpace(req.Text) == "" {
		return TurnID{}, fmt.Errorf("%w: text must be non-empty", ErrValidation)
	}
	if n := utf8.RuneCountInString(req.CommitMessage); n > internal.MaxCommitMessageRunes {
		return TurnID{}, fmt.Errorf("%w: commit message is %d characters, limit is %d",
			ErrValidation, n, internal.MaxCommitMessageRunes)
	}
	if req.ParentID.IsZero() {
		return TurnID{}, fmt.Errorf("%w: parent id must be set", ErrValidation)
	}

	newID := NewTurnID()
	var created Turn

	err := r.store.Update(ctx, func(tx GraphTx) error {
		parent, err := tx.GetTurn(req.ParentID)
		if err != nil {
			return err
		}

		if req.Author.ID != "" {
			if err := tx.UpsertAuthor(&req.Author); err != nil {
				return fmt.Errorf("failed to upsert author %s: %w", req.Author.ID, err)
			}
		}

		turn := &Turn{
			ID:            newID,
			PersonaID:     parent.PersonaID,
			Role:          parent.Role,
			Text:          req.Text,
			Accepted:      acceptedBool(r.autoAccept),
			CommitMessage: req.CommitMessage,
			Timestamp:     r.now().UTC(),
			ParentID:      parent.ID,
			Depth:         parent.Depth + 1,
			AuthorID:      req.Author.ID,
		}

		if err := tx.InsertTurn(turn); err != nil {
			return fmt.Errorf("failed to insert turn: %w", err)
		}
		if err := tx.LinkChild(turn.ID, parent.ID); err != nil {
			return fmt.Errorf("failed to link turn %s to parent %s: %w", turn.ID, parent.ID, err)
		}
		if err := tx.ArchiveTurn(parent.ID); err != nil {
			return fmt.Errorf("failed to archive turn %s: %w", parent.ID, err)
		}

		created = *turn
		return nil
	})
	if err != nil {
		return TurnID{}, err
	}

	r.publishUpdated(ctx, created)
	return newID, nil
}

// publishUpdated emits script.turn.updated after a committed write. The
// publish is strictly best-effort: errors and panics are logged, never
// propagated.
func (r *Repository) publishUpdated(ctx context.Context, t Turn) {
	if r.notifier == nil {
		return
	}

	personaID := t.PersonaID
	if personaID == "" {
		// Best-effort lookup; an unresolved persona still publishes.
		_ = r.store.View(ctx, func(tx ReadTx) error {
			if id, err := tx.PersonaOfTurn(t.ID); err == nil {
				personaID = id
			}
			return nil
		})
	}

	event := Event{
		Name: EventTurnUpdated,
		Payload: TurnUpdated{
			ID:            t.ID,
			ParentID:      t.ParentID,
			PersonaID:     personaID,
			Editor:        t.AuthorID,
			TS:            t.Timestamp,
			Text:          t.Text,
			CommitMessage: t.CommitMessage,
		},
	}

	var catcher panics.Catcher
	catcher.Try(func() {
		if err := r.notifier.Publish(ctx, event); err != nil {
			r.logger.Warn().Err(err).Str("turn_id", t.ID.String()).Msg("change notification failed")
		}
	})
	if recovered := catcher.Recovered(); recovered != nil {
		r.logger.Error().Str("panic", recovered.String()).Msg("change notifier panicked")
	}
}
