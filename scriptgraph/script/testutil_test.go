package script

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// seedCatalog inserts a program/module/day/persona spine and returns the
// persona id.
func seedCatalog(t *testing.T, store GraphStore, personaID string) {
	t.Helper()
	err := store.Update(context.Background(), func(tx GraphTx) error {
		if err := tx.UpsertProgram(&Program{ID: "Calm", Seq: 0}); err != nil {
			return err
		}
		if err := tx.UpsertModule(&Module{ID: "Calm/Module01", ProgramID: "Calm", Seq: 1}); err != nil {
			return err
		}
		if err := tx.UpsertDay(&Day{ID: "Calm/Module01/Day01", ModuleID: "Calm/Module01", Seq: 1}); err != nil {
			return err
		}
		return tx.UpsertPersona(&Persona{ID: personaID, DayID: "Calm/Module01/Day01", Seq: 1})
	})
	require.NoError(t, err)
}

// seedChain builds a persona with a root plus a linear accepted chain of the
// given roles/texts, one second apart, and returns every turn root first.
func seedChain(t *testing.T, store GraphStore, personaID string, rows ...[2]string) []*Turn {
	t.Helper()
	seedCatalog(t, store, personaID)

	turns := make([]*Turn, 0, len(rows)+1)
	err := store.Update(context.Background(), func(tx GraphTx) error {
		root := &Turn{
			ID:        NewTurnID(),
			PersonaID: personaID,
			Role:      "root",
			Timestamp: testBase,
		}
		if err := tx.InsertTurn(root); err != nil {
			return err
		}
		if err := tx.SetPersonaRoot(personaID, root.ID); err != nil {
			return err
		}
		turns = append(turns, root)

		parent := root
		for i, row := range rows {
			turn := &Turn{
				ID:        NewTurnID(),
				PersonaID: personaID,
				Role:      row[0],
				Text:      row[1],
				Accepted:  acceptedBool(true),
				Timestamp: testBase.Add(time.Duration(i+1) * time.Second),
				ParentID:  parent.ID,
				Depth:     parent.Depth + 1,
			}
			if err := tx.InsertTurn(turn); err != nil {
				return err
			}
			if err := tx.LinkChild(turn.ID, parent.ID); err != nil {
				return err
			}
			turns = append(turns, turn)
			parent = turn
		}
		return nil
	})
	require.NoError(t, err)
	return turns
}

// addChild appends one turn under parent with an explicit id, acceptance,
// and timestamp, for fork construction.
func addChild(t *testing.T, store GraphStore, parent *Turn, id TurnID, accepted bool, ts time.Time, text string) *Turn {
	t.Helper()
	turn := &Turn{
		ID:        id,
		PersonaID: parent.PersonaID,
		Role:      parent.Role,
		Text:      text,
		Accepted:  acceptedBool(accepted),
		Timestamp: ts,
		ParentID:  parent.ID,
		Depth:     parent.Depth + 1,
	}
	err := store.Update(context.Background(), func(tx GraphTx) error {
		if err := tx.InsertTurn(turn); err != nil {
			return err
		}
		return tx.LinkChild(turn.ID, parent.ID)
	})
	require.NoError(t, err)
	return turn
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func countTurns(t *testing.T, store GraphStore) int {
	t.Helper()
	var n int
	err := store.View(context.Background(), func(tx ReadTx) error {
		var err error
		n, err = tx.CountTurns()
		return err
	})
	require.NoError(t, err)
	return n
}

func getTurn(t *testing.T, store GraphStore, id TurnID) *Turn {
	t.Helper()
	var turn *Turn
	err := store.View(context.Background(), func(tx ReadTx) error {
		var err error
		turn, err = tx.GetTurn(id)
		return err
	})
	require.NoError(t, err)
	return turn
}
