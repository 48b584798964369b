package script

import (
	"context"
	"fmt"
)

// Resolver computes the canonical accepted sequence (the gold path) of a
// persona's turn tree.
type Resolver struct {
	store GraphStore
}

// NewResolver creates a resolver bound to a store.
func NewResolver(store GraphStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the gold path of a persona ordered root -> leaf.
//
// The path ends at the winning accepted leaf: an accepted turn with no
// accepted children. When concurrent branches leave several accepted leaves,
// the tie-break is deterministic: latest leaf timestamp, then smallest
// canonical id. The path itself is the full ancestor chain of that leaf, so
// a turn superseded by its own child edit stays on the spine even though it
// is archived. A persona whose root has no
// accepted descendants resolves to the root alone.
func (r *Resolver) Resolve(ctx context.Context, personaID string) ([]*Turn, error) {
	var path []*Turn

	err := r.store.View(ctx, func(tx ReadTx) error {
		subtree, err := tx.AcceptedSubtree(personaID)
		if err != nil {
			return err
		}
		if len(subtree) == 0 {
			return fmt.Errorf("%w: persona %s has no resolvable path", ErrNotFound, personaID)
		}

		root := subtree[0]
		leaf := pickLeaf(subtree)
		if leaf == nil {
			// No accepted turns at all: the root alone is a valid gold path.
			path = []*Turn{root}
			return nil
		}

		chain, err := tx.AncestorChain(leaf.ID)
		if err != nil {
			return err
		}
		if len(chain) == 0 || chain[0].ID != root.ID {
			return fmt.Errorf("%w: persona %s has no resolvable path", ErrNotFound, personaID)
		}
		path = chain
		return nil
	})
	if err != nil {
		return nil, err
	}
	return path, nil
}

// pickLeaf selects the winning accepted leaf from the root + accepted-turn
// arena, or nil when no turn is accepted. Pure index bookkeeping; no
// recursion, so arbitrarily deep scripts stay within constant stack.
func pickLeaf(subtree []*Turn) *Turn {
	// hasAcceptedChild marks every accepted turn that another accepted turn
	// points at.
	hasAcceptedChild := make(map[string]bool, len(subtree))
	root := subtree[0]
	for _, t := range subtree[1:] {
		hasAcceptedChild[t.ParentID.String()] = true
	}

	var best *Turn
	for _, t := range subtree[1:] {
		if t.ID == root.ID || hasAcceptedChild[t.ID.String()] {
			continue
		}
		if best == nil || leafWins(t, best) {
			best = t
		}
	}
	return best
}

// leafWins reports whether a beats b under the tie-break rule: latest
// timestamp first, smallest canonical id second.
func leafWins(a, b *Turn) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID.String() < b.ID.String()
}
