package script

import "time"

// Event names. Downstream consumers subscribe by name; the payload schema of
// each name is a published contract and must not drift.
const (
	EventTurnUpdated  = "script.turn.updated"
	EventDiffReported = "script.turn.diff_reported"
)

// Event is a named change notification.
type Event struct {
	Name    string
	Payload any
}

// TurnUpdated is the payload of script.turn.updated.
type TurnUpdated struct {
	ID            TurnID    `json:"id"`
	ParentID      TurnID    `json:"parent_id"`
	PersonaID     string    `json:"persona_id"`
	Editor        string    `json:"editor"`
	TS            time.Time `json:"ts"`
	Text          string    `json:"text"`
	CommitMessage string    `json:"commit_message"`
}

// DiffReported is the payload of script.turn.diff_reported.
type DiffReported struct {
	ID        TurnID `json:"id"`
	ParentID  TurnID `json:"parent_id"`
	PersonaID string `json:"persona_id"`
	DiffHTML  string `json:"diff_html"`
	Grade     string `json:"grade"`
}
