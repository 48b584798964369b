package script

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUpdateRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	seedChain(t, store, "p1", [2]string{"user", "hello"})
	before := countTurns(t, store)

	boom := errors.New("boom")
	err := store.Update(context.Background(), func(tx GraphTx) error {
		if err := tx.InsertTurn(&Turn{ID: NewTurnID(), PersonaID: "p1", Role: "user", Timestamp: testBase}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, before, countTurns(t, store), "a failed update leaves no partial writes")
}

func TestMemoryStoreReadsReturnCopies(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1", [2]string{"user", "hello"})

	fetched := getTurn(t, store, turns[1].ID)
	fetched.Text = "mutated"

	assert.Equal(t, "hello", getTurn(t, store, turns[1].ID).Text)
}

func TestMemoryStoreChildrenOfOrdering(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1", [2]string{"assistant", "v1"})
	parent := turns[len(turns)-1]

	addChild(t, store, parent, MustTurnID("b"), true, testBase.Add(20), "later")
	addChild(t, store, parent, MustTurnID("a"), true, testBase.Add(10), "earlier")
	addChild(t, store, parent, MustTurnID("c"), true, testBase.Add(10), "same instant")

	err := store.View(context.Background(), func(tx ReadTx) error {
		children, err := tx.ChildrenOf(parent.ID)
		require.NoError(t, err)
		require.Len(t, children, 3)
		assert.Equal(t, "a", children[0].ID.String())
		assert.Equal(t, "c", children[1].ID.String())
		assert.Equal(t, "b", children[2].ID.String())
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreArchiveIsTerminalNoOp(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1", [2]string{"user", "hello"})

	err := store.Update(context.Background(), func(tx GraphTx) error {
		if err := tx.ArchiveTurn(turns[1].ID); err != nil {
			return err
		}
		return tx.ArchiveTurn(turns[1].ID)
	})
	require.NoError(t, err)

	archived := getTurn(t, store, turns[1].ID)
	require.NotNil(t, archived.Accepted)
	assert.False(t, *archived.Accepted)
}

func TestMemoryStoreLinkChildRejectsSecondParent(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1",
		[2]string{"user", "hello"},
		[2]string{"assistant", "hi"},
	)

	err := store.Update(context.Background(), func(tx GraphTx) error {
		return tx.LinkChild(turns[2].ID, turns[0].ID)
	})
	require.Error(t, err)
}

func TestMemoryStoreAncestorChain(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1",
		[2]string{"system", "a"},
		[2]string{"user", "b"},
	)

	err := store.View(context.Background(), func(tx ReadTx) error {
		chain, err := tx.AncestorChain(turns[2].ID)
		require.NoError(t, err)
		require.Len(t, chain, 3)
		assert.Equal(t, turns[0].ID, chain[0].ID)
		assert.Equal(t, turns[2].ID, chain[2].ID)

		_, err = tx.AncestorChain(MustTurnID("missing"))
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}
