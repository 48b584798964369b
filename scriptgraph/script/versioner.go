package script

import (
	"context"
	"fmt"
)

// Versioner assigns monotonic lineage version numbers along a resolved path.
type Versioner struct {
	store GraphStore
}

// NewVersioner creates a versioner bound to a store.
func NewVersioner(store GraphStore) *Versioner {
	return &Versioner{store: store}
}

// Versions numbers every element of a resolved path. The root is version 1;
// each following turn adds its sibling rank: the count of its parent's
// children that are accepted (or the turn itself) with a timestamp no later
// than its own. A linear history therefore numbers exactly 1..N; a fork on
// the spine steps past the superseded sibling revision, keeping the sequence
// strictly increasing either way.
func (v *Versioner) Versions(ctx context.Context, path []*Turn) ([]int, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrValidation)
	}

	versions := make([]int, len(path))
	versions[0] = 1

	err := v.store.View(ctx, func(tx ReadTx) error {
		for i := 1; i < len(path); i++ {
			rank, err := siblingRank(tx, path[i])
			if err != nil {
				return err
			}
			versions[i] = versions[i-1] + rank
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return versions, nil
}

// VersionOf returns the version of one turn relative to its resolved path.
// The turn must be an element of the path.
func (v *Versioner) VersionOf(ctx context.Context, turn *Turn, path []*Turn) (int, error) {
	versions, err := v.Versions(ctx, path)
	if err != nil {
		return 0, err
	}
	for i, t := range path {
		if t.ID == turn.ID {
			return versions[i], nil
		}
	}
	return 0, fmt.Errorf("%w: turn %s is not on the resolved path", ErrNotFound, turn.ID)
}

// siblingRank is the 1-based rank of a turn among its parent's accepted
// children ordered by creation time, counting the turn itself even when it
// is archived.
func siblingRank(tx ReadTx, turn *Turn) (int, error) {
	siblings, err := tx.ChildrenOf(turn.ParentID)
	if err != nil {
		return 0, err
	}

	rank := 0
	for _, s := range siblings {
		if !s.IsAccepted() && s.ID != turn.ID {
			continue
		}
		if s.Timestamp.After(turn.Timestamp) {
			continue
		}
		rank++
	}
	if rank == 0 {
		// The turn itself always counts; a zero rank means it is not a child
		// of its recorded parent.
		return 0, fmt.Errorf("%w: turn %s not found under parent %s", ErrNotFound, turn.ID, turn.ParentID)
	}
	return rank, nil
}
