package grant

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ConstraintMap is one set of ANDed field conditions. Keys are a field name,
// optionally followed by a double-underscore operator suffix, e.g. "name",
// "name__icontains", "id__in".
type ConstraintMap map[string]any

// Grant binds subjects (users and groups) to a set of actions on a set of
// object types, optionally narrowed by constraints. Within one grant the
// conditions of a constraint map are ANDed; across the maps of a grant, and
// across grants covering the same permission, they are ORed.
type Grant struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Enabled     bool            `json:"enabled"`
	UserIDs     []string        `json:"user_ids"`
	GroupIDs    []string        `json:"group_ids"`
	ObjectTypes []string        `json:"object_types"` // "app.typename" labels
	Actions     []string        `json:"actions"`
	Constraints []ConstraintMap `json:"constraints"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ConstraintList returns the grant's constraints as a non-empty list. A
// grant with no constraints yields a single nil map, which the compiler
// skips, so the permission still registers and stays unconstrained.
func (g *Grant) ConstraintList() []ConstraintMap {
	if len(g.Constraints) == 0 {
		return []ConstraintMap{nil}
	}
	return g.Constraints
}

// DecodeConstraints parses the persisted constraints column. The column may
// hold a single JSON object, a JSON array of objects (possibly with nulls,
// which are kept as nil maps and skipped at compile time), or SQL NULL.
func DecodeConstraints(raw any) ([]ConstraintMap, error) {
	data, ok := rawBytes(raw)
	if !ok || len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var single ConstraintMap
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("decode constraints: %w", err)
		}
		return []ConstraintMap{single}, nil
	}
	var list []ConstraintMap
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, fmt.Errorf("decode constraints: %w", err)
	}
	return list, nil
}

// DecodeActions parses the persisted actions column (a JSON string array).
func DecodeActions(raw any) ([]string, error) {
	data, ok := rawBytes(raw)
	if !ok || len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var actions []string
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	return actions, nil
}

func rawBytes(v any) ([]byte, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case []byte:
		return val, true
	case string:
		return []byte(val), true
	default:
		return nil, false
	}
}
