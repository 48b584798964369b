package script

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportPersona(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1",
		[2]string{"system", "be kind"},
		[2]string{"user", "hello"},
	)

	export, err := NewExporter(store).ExportPersona(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", export.ID)
	require.Len(t, export.Turns, 3)

	for i, turn := range turns {
		assert.Equal(t, turn.ID, export.Turns[i].ID)
		assert.Equal(t, turn.Role, export.Turns[i].Role)
		assert.Equal(t, turn.Depth, export.Turns[i].Depth)
		assert.Equal(t, turn.Text, export.Turns[i].Text)
	}
}

func TestExportPersonaExcludesArchivedBranches(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1", [2]string{"assistant", "original"})
	tail := turns[len(turns)-1]

	addChild(t, store, tail, MustTurnID("rejected"), false, testBase.Add(time.Minute), "rejected take")

	export, err := NewExporter(store).ExportPersona(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, export.Turns, 2)
	for _, view := range export.Turns {
		assert.NotEqual(t, "rejected", view.ID.String())
	}
}

func TestExportPersonaNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := NewExporter(store).ExportPersona(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportPersonaIdempotent(t *testing.T) {
	store := NewMemoryStore()
	turns := seedChain(t, store, "p1",
		[2]string{"system", "be kind"},
		[2]string{"user", "hello"},
	)
	// A fork widens one depth level so the (depth, ts, id) ordering is
	// actually exercised.
	addChild(t, store, turns[1], MustTurnID("alt"), true, testBase.Add(time.Hour), "alternate take")

	exporter := NewExporter(store)
	first, err := exporter.ExportPersona(context.Background(), "p1")
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := exporter.ExportPersona(context.Background(), "p1")
		require.NoError(t, err)
		againJSON, err := json.Marshal(again)
		require.NoError(t, err)
		assert.Equal(t, string(firstJSON), string(againJSON))
	}
}

func TestExportDay(t *testing.T) {
	store := NewMemoryStore()
	seedChain(t, store, "p1", [2]string{"user", "hello"})

	// Second persona under the same day, higher seq.
	err := store.Update(context.Background(), func(tx GraphTx) error {
		if err := tx.UpsertPersona(&Persona{ID: "p2", DayID: "Calm/Module01/Day01", Seq: 2}); err != nil {
			return err
		}
		root := &Turn{ID: NewTurnID(), PersonaID: "p2", Role: "root", Timestamp: testBase}
		if err := tx.InsertTurn(root); err != nil {
			return err
		}
		return tx.SetPersonaRoot("p2", root.ID)
	})
	require.NoError(t, err)

	export, err := NewExporter(store).ExportDay(context.Background(), "Calm/Module01/Day01")
	require.NoError(t, err)
	assert.Equal(t, "Calm/Module01/Day01", export.ID)
	require.Len(t, export.Personas, 2)
	assert.Equal(t, "p1", export.Personas[0].ID)
	assert.Equal(t, "p2", export.Personas[1].ID)
	assert.Len(t, export.Personas[1].Turns, 1, "a root-only persona still exports its root")
}

func TestExportDayNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := NewExporter(store).ExportDay(context.Background(), "empty-day")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportModule(t *testing.T) {
	store := NewMemoryStore()
	seedChain(t, store, "p1", [2]string{"user", "hello"})

	export, err := NewExporter(store).ExportModule(context.Background(), "Calm/Module01")
	require.NoError(t, err)
	assert.Equal(t, "Calm/Module01", export.ID)
	require.Len(t, export.Days, 1)
	require.Len(t, export.Days[0].Personas, 1)
	assert.Equal(t, "p1", export.Days[0].Personas[0].ID)
}

func TestExportModuleNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := NewExporter(store).ExportModule(context.Background(), "no-such-module")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}
