// Package ingest loads Google-Docs-exported JSON scripts into the turn graph.
// Catalog placement (program, module, day, persona) is derived from the file
// path, which must follow <Program>/<Module##>/<Day##>/<persona>.json.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/scriptsmith/scriptgraph/scriptgraph/script"
)

// turnRowsSchema validates the raw script payload. Only role and text are
// required; the legacy integer seq is still accepted so old exports keep
// validating, but its value is ignored. Unknown keys pass through.
const turnRowsSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["role", "text"],
		"properties": {
			"role": {"type": "string"},
			"text": {"type": "string"},
			"seq":  {"type": ["integer", "null"]}
		}
	}
}`

type turnRow struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// scriptPath is the catalog placement parsed from an import path.
type scriptPath struct {
	Program    string
	ProgramSeq int
	ModuleID   string
	ModuleSeq  int
	DayID      string
	DaySeq     int
	PersonaID  string
	PersonaSeq int
}

// Importer writes whole script files into the graph, one transaction per
// file.
type Importer struct {
	store  script.GraphStore
	schema *gojsonschema.Schema
	logger zerolog.Logger
	now    func() time.Time
}

// NewImporter builds an importer over the given store.
func NewImporter(store script.GraphStore, logger zerolog.Logger) (*Importer, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(turnRowsSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile turn schema: %w", err)
	}
	return &Importer{
		store:  store,
		schema: schema,
		logger: logger,
		now:    time.Now,
	}, nil
}

// ImportFile imports one script file and returns the import's job id. The
// whole file lands in a single transaction: catalog upserts, the persona's
// root turn, then a linear chain of accepted turns in file order.
func (imp *Importer) ImportFile(ctx context.Context, path string) (string, error) {
	placement, err := parseScriptPath(path)
	if err != nil {
		return "", err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: cannot read script file: %v", script.ErrValidation, err)
	}
	rows, err := imp.validateRows(raw)
	if err != nil {
		return "", err
	}

	jobID := uuid.New().String()
	base := imp.now().UTC()

	err = imp.store.Update(ctx, func(tx script.GraphTx) error {
		if err := tx.UpsertProgram(&script.Program{ID: placement.Program, Seq: placement.ProgramSeq}); err != nil {
			return err
		}
		if err := tx.UpsertModule(&script.Module{ID: placement.ModuleID, ProgramID: placement.Program, Seq: placement.ModuleSeq}); err != nil {
			return err
		}
		if err := tx.UpsertDay(&script.Day{ID: placement.DayID, ModuleID: placement.ModuleID, Seq: placement.DaySeq}); err != nil {
			return err
		}
		if err := tx.UpsertPersona(&script.Persona{ID: placement.PersonaID, DayID: placement.DayID, Seq: placement.PersonaSeq}); err != nil {
			return err
		}

		root := &script.Turn{
			ID:        script.NewTurnID(),
			PersonaID: placement.PersonaID,
			Role:      "root",
			Timestamp: base,
		}
		if err := tx.InsertTurn(root); err != nil {
			return err
		}
		if err := tx.SetPersonaRoot(placement.PersonaID, root.ID); err != nil {
			return err
		}

		parent := root
		for i, row := range rows {
			turn := &script.Turn{
				ID:        script.NewTurnID(),
				PersonaID: placement.PersonaID,
				Role:      row.Role,
				Text:      row.Text,
				Accepted:  acceptedTrue(),
				// File order is preserved through strictly increasing
				// timestamps down the chain.
				Timestamp: base.Add(time.Duration(i+1) * time.Microsecond),
				ParentID:  parent.ID,
				Depth:     parent.Depth + 1,
			}
			if err := tx.InsertTurn(turn); err != nil {
				return err
			}
			if err := tx.LinkChild(turn.ID, parent.ID); err != nil {
				return err
			}
			parent = turn
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	imp.logger.Info().
		Str("job_id", jobID).
		Str("persona", placement.PersonaID).
		Int("turns", len(rows)).
		Msg("script imported")
	return jobID, nil
}

func (imp *Importer) validateRows(raw []byte) ([]turnRow, error) {
	result, err := imp.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed script JSON: %v", script.ErrValidation, err)
	}
	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", script.ErrValidation, strings.Join(messages, "; "))
	}

	var rows []turnRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: malformed script JSON: %v", script.ErrValidation, err)
	}
	return rows, nil
}

// parseScriptPath validates and decomposes an import path. Module and Day
// folders carry their sequence as a numeric suffix; Program and persona
// sequences are derived from any digits in their names, defaulting to 0.
// Catalog ids are path-scoped so same-named folders under different parents
// never collide.
func parseScriptPath(path string) (*scriptPath, error) {
	parts := splitPath(path)
	if len(parts) < 4 {
		return nil, fmt.Errorf("%w: path must contain at least four components: <Program>/<Module##>/<Day##>/<persona>.json", script.ErrValidation)
	}

	program, moduleFolder, dayFolder, fileName := parts[len(parts)-4], parts[len(parts)-3], parts[len(parts)-2], parts[len(parts)-1]

	moduleSeq, ok := numericSuffix(moduleFolder, "Module")
	if !ok {
		return nil, fmt.Errorf("%w: expected folder name in the form 'Module##' but got %q", script.ErrValidation, moduleFolder)
	}
	daySeq, ok := numericSuffix(dayFolder, "Day")
	if !ok {
		return nil, fmt.Errorf("%w: expected folder name in the form 'Day##' but got %q", script.ErrValidation, dayFolder)
	}
	if !strings.HasSuffix(fileName, ".json") {
		return nil, fmt.Errorf("%w: persona file must have a .json extension", script.ErrValidation)
	}
	personaName := strings.TrimSuffix(fileName, ".json")
	if personaName == "" {
		return nil, fmt.Errorf("%w: persona file name must not be empty", script.ErrValidation)
	}

	moduleID := program + "/" + moduleFolder
	dayID := moduleID + "/" + dayFolder
	return &scriptPath{
		Program:    program,
		ProgramSeq: digitsIn(program),
		ModuleID:   moduleID,
		ModuleSeq:  moduleSeq,
		DayID:      dayID,
		DaySeq:     daySeq,
		PersonaID:  dayID + "/" + personaName,
		PersonaSeq: digitsIn(personaName),
	}, nil
}

func splitPath(path string) []string {
	cleaned := filepath.ToSlash(filepath.Clean(path))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return nil
	}
	return strings.Split(cleaned, "/")
}

func numericSuffix(folder, prefix string) (int, bool) {
	if !strings.HasPrefix(folder, prefix) {
		return 0, false
	}
	suffix := folder[len(prefix):]
	if suffix == "" {
		return 0, false
	}
	for _, r := range suffix {
		if !unicode.IsDigit(r) {
			return 0, false
		}
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, false
	}
	return n, true
}

func digitsIn(s string) int {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(sb.String())
	if err != nil {
		return 0
	}
	return n
}

func acceptedTrue() *bool {
	v := true
	return &v
}
