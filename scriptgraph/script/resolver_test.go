package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLinearChain(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1",
		[2]string{"system", "be kind"},
		[2]string{"user", "hello"},
		[2]string{"assistant", "hi there"},
	)

	path, err := NewResolver(store).Resolve(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, path, 4)
	for i, turn := range turns {
		assert.Equal(t, turn.ID, path[i].ID)
	}
	assert.True(t, path[0].IsRoot(), "every resolved path starts at the root")
}

func TestResolveRootOnly(t *testing.T) {
	store := NewMemoryStore()
	seedChain(t, store, "p1")

	path, err := NewResolver(store).Resolve(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, path, 1)
	assert.True(t, path[0].IsRoot())
	assert.Nil(t, path[0].Accepted)
}

func TestResolveMissingPersona(t *testing.T) {
	store := NewMemoryStore()
	seedChain(t, store, "p1")

	_, err := NewResolver(store).Resolve(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolvePersonaWithoutRoot(t *testing.T) {
	store := NewMemoryStore()
	seedCatalog(t, store, "p1")

	_, err := NewResolver(store).Resolve(context.Background(), "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveKeepsArchivedSpineTurnsOnPath(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1",
		[2]string{"system", "be kind"},
		[2]string{"user", "hello"},
		[2]string{"assistant", "hi"},
	)
	parent := turns[len(turns)-1]

	repo := NewRepository(store, nil, true, testLogger())
	newID, err := repo.CreateRevision(context.Background(), CreateRevisionRequest{
		ParentID: parent.ID,
		Text:     "new version",
	})
	require.NoError(t, err)

	path, err := NewResolver(store).Resolve(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, path, 5)
	assert.Equal(t, parent.ID, path[3].ID, "the archived edited turn stays on the spine")
	assert.False(t, path[3].IsAccepted())
	assert.Equal(t, newID, path[4].ID)
}

func TestResolveTieBreakLatestTimestampWins(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1", [2]string{"assistant", "original"})
	parent := turns[len(turns)-1]

	early := addChild(t, store, parent, MustTurnID("leaf-early"), true, testBase.Add(10*time.Second), "early take")
	late := addChild(t, store, parent, MustTurnID("leaf-late"), true, testBase.Add(20*time.Second), "late take")

	path, err := NewResolver(store).Resolve(context.Background(), "p1")
	require.NoError(t, err)
	require.NotEmpty(t, path)
	tail := path[len(path)-1]
	assert.Equal(t, late.ID, tail.ID)
	assert.NotEqual(t, early.ID, tail.ID)
}

func TestResolveTieBreakSmallestIDOnEqualTimestamps(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1", [2]string{"assistant", "original"})
	parent := turns[len(turns)-1]

	ts := testBase.Add(10 * time.Second)
	addChild(t, store, parent, MustTurnID("leaf-b"), true, ts, "take b")
	addChild(t, store, parent, MustTurnID("leaf-a"), true, ts, "take a")

	path, err := NewResolver(store).Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "leaf-a", path[len(path)-1].ID.String())
}

func TestResolveIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1", [2]string{"assistant", "original"})
	parent := turns[len(turns)-1]

	repo := NewRepository(store, nil, true, testLogger())
	_, err := repo.CreateRevision(context.Background(), CreateRevisionRequest{ParentID: parent.ID, Text: "take one"})
	require.NoError(t, err)
	_, err = repo.CreateRevision(context.Background(), CreateRevisionRequest{ParentID: parent.ID, Text: "take two"})
	require.NoError(t, err)

	resolver := NewResolver(store)
	first, err := resolver.Resolve(context.Background(), "p1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := resolver.Resolve(context.Background(), "p1")
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].ID, again[j].ID)
		}
	}
}

func TestResolveIgnoresUnacceptedBranches(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1", [2]string{"assistant", "published"})
	tail := turns[len(turns)-1]

	// A pending-review edit hangs off the tail but stays off the gold path.
	addChild(t, store, tail, MustTurnID("pending"), false, testBase.Add(time.Minute), "pending take")

	path, err := NewResolver(store).Resolve(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, tail.ID, path[len(path)-1].ID)
}
