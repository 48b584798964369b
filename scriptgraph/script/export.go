package script

import (
	"context"
	"fmt"
)

// Exporter serializes accepted subtrees across persona, day, and module
// scopes. All operations are pure reads: repeated calls without intervening
// writes return identical structures, which the total (depth, ts, id)
// ordering guarantees.
type Exporter struct {
	store GraphStore
}

// NewExporter creates an exporter bound to a store.
func NewExporter(store GraphStore) *Exporter {
	return &Exporter{store: store}
}

// ExportPersona returns the root plus every accepted turn of a persona,
// ordered by depth then timestamp. ErrNotFound when the persona has no
// resolvable root.
func (e *Exporter) ExportPersona(ctx context.Context, personaID string) (*PersonaExport, error) {
	var export *PersonaExport
	err := e.store.View(ctx, func(tx ReadTx) error {
		var err error
		export, err = exportPersonaTx(tx, personaID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return export, nil
}

// ExportDay aggregates ExportPersona over every persona under the day.
// ErrNotFound when the day has no personas.
func (e *Exporter) ExportDay(ctx context.Context, dayID string) (*DayExport, error) {
	var export *DayExport
	err := e.store.View(ctx, func(tx ReadTx) error {
		var err error
		export, err = exportDayTx(tx, dayID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return export, nil
}

// ExportModule aggregates ExportDay over every day under the module.
// ErrNotFound when the module has no days.
func (e *Exporter) ExportModule(ctx context.Context, moduleID string) (*ModuleExport, error) {
	var export *ModuleExport
	err := e.store.View(ctx, func(tx ReadTx) error {
		days, err := tx.DaysOfModule(moduleID)
		if err != nil {
			return err
		}
		if len(days) == 0 {
			return fmt.Errorf("%w: module %s has no days", ErrNotFound, moduleID)
		}

		export = &ModuleExport{ID: moduleID, Days: make([]DayExport, 0, len(days))}
		for _, day := range days {
			dayExport, err := exportDayTx(tx, day.ID)
			if err != nil {
				return err
			}
			export.Days = append(export.Days, *dayExport)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return export, nil
}

func exportDayTx(tx ReadTx, dayID string) (*DayExport, error) {
	personas, err := tx.PersonasOfDay(dayID)
	if err != nil {
		return nil, err
	}
	if len(personas) == 0 {
		return nil, fmt.Errorf("%w: day %s has no personas", ErrNotFound, dayID)
	}

	export := &DayExport{ID: dayID, Personas: make([]PersonaExport, 0, len(personas))}
	for _, persona := range personas {
		personaExport, err := exportPersonaTx(tx, persona.ID)
		if err != nil {
			return nil, err
		}
		export.Personas = append(export.Personas, *personaExport)
	}
	return export, nil
}

func exportPersonaTx(tx ReadTx, personaID string) (*PersonaExport, error) {
	subtree, err := tx.AcceptedSubtree(personaID)
	if err != nil {
		return nil, err
	}

	sortTurnsByDepth(subtree)
	views := make([]TurnView, 0, len(subtree))
	for _, t := range subtree {
		views = append(views, TurnView{
			ID:    t.ID,
			Role:  t.Role,
			Depth: t.Depth,
			Text:  t.Text,
			TS:    t.Timestamp,
		})
	}
	return &PersonaExport{ID: personaID, Turns: views}, nil
}
