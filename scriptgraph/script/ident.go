package script

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// TurnID is an opaque turn identifier. Upstream systems hand us both string
// and numeric ids; every value is normalized to one canonical string form at
// the boundary so internal comparisons are type-uniform. No ordering meaning
// is attached to the canonical form.
type TurnID struct {
	s string
}

// NewTurnID mints a fresh identifier.
func NewTurnID() TurnID {
	return TurnID{s: uuid.New().String()}
}

// ParseTurnID normalizes a string-or-numeric identifier to its canonical
// internal form. Integral floats (the usual JSON casualty) normalize to
// their integer spelling.
func ParseTurnID(v any) (TurnID, error) {
	switch t := v.(type) {
	case TurnID:
		return t, nil
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return TurnID{}, fmt.Errorf("%w: empty turn id", ErrValidation)
		}
		return TurnID{s: trimmed}, nil
	case int:
		return TurnID{s: strconv.FormatInt(int64(t), 10)}, nil
	case int64:
		return TurnID{s: strconv.FormatInt(t, 10)}, nil
	case json.Number:
		return TurnID{s: t.String()}, nil
	case float64:
		if t == math.Trunc(t) && !math.IsInf(t, 0) {
			return TurnID{s: strconv.FormatInt(int64(t), 10)}, nil
		}
		return TurnID{s: strconv.FormatFloat(t, 'g', -1, 64)}, nil
	default:
		return TurnID{}, fmt.Errorf("%w: unsupported turn id type %T", ErrValidation, v)
	}
}

// MustTurnID is ParseTurnID for trusted literals, panicking on failure.
func MustTurnID(v any) TurnID {
	id, err := ParseTurnID(v)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical form.
func (id TurnID) String() string { return id.s }

// IsZero reports whether the id is unset.
func (id TurnID) IsZero() bool { return id.s == "" }

// MarshalJSON encodes the canonical form.
func (id TurnID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.s)
}

// UnmarshalJSON accepts both string and numeric encodings.
func (id *TurnID) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := ParseTurnID(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
