package authz

import (
	"fmt"
	"sort"
	"strings"

	"objectgate/internal/grant"
	"objectgate/internal/metadata"
	"objectgate/internal/store"
)

// Constraint keys are a field name with an optional operator suffix, e.g.
// "name", "name__icontains", "id__in". A bare field name means equality.
const constraintOpSeparator = "__"

var constraintOps = map[string]bool{
	"eq":          true,
	"neq":         true,
	"in":          true,
	"not_in":      true,
	"contains":    true,
	"icontains":   true,
	"startswith":  true,
	"istartswith": true,
	"gt":          true,
	"gte":         true,
	"lt":          true,
	"lte":         true,
}

// parseConstraintKey splits "name__icontains" into ("name", "icontains") and
// "status" into ("status", "eq").
func parseConstraintKey(key string) (string, string) {
	if i := strings.LastIndex(key, constraintOpSeparator); i > 0 {
		field, op := key[:i], key[i+len(constraintOpSeparator):]
		if constraintOps[op] {
			return field, op
		}
	}
	return key, "eq"
}

// CompileConstraints turns a constraint list into a parameterized SQL
// predicate over the resource type's table: an OR across maps of the AND of
// each map's conditions. Nil and empty maps are skipped; if nothing remains
// the returned fragment is empty, meaning unconstrained (always true).
// Parameters accumulate on pb so the caller can prepend or append its own.
func CompileConstraints(list []grant.ConstraintMap, rt *metadata.ResourceType, d store.Dialect, pb store.ParamBuilder) (string, error) {
	var branches []string
	for _, cm := range list {
		if len(cm) == 0 {
			continue
		}
		branch, err := compileMap(cm, rt, d, pb)
		if err != nil {
			return "", err
		}
		branches = append(branches, branch)
	}
	if len(branches) == 0 {
		return "", nil
	}
	if len(branches) == 1 {
		return branches[0], nil
	}
	return "(" + strings.Join(branches, " OR ") + ")", nil
}

func compileMap(cm grant.ConstraintMap, rt *metadata.ResourceType, d store.Dialect, pb store.ParamBuilder) (string, error) {
	// Map iteration order is random; sort keys so generated SQL is stable.
	keys := make([]string, 0, len(cm))
	for k := range cm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	for _, key := range keys {
		field, op := parseConstraintKey(key)
		if !rt.HasField(field) {
			return "", InvalidConstraintError(fmt.Sprintf("Unknown constraint field %q for resource type %s", field, rt.Label()))
		}
		cond, err := compileCondition(field, op, cm[key], d, pb)
		if err != nil {
			return "", err
		}
		conds = append(conds, cond)
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return "(" + strings.Join(conds, " AND ") + ")", nil
}

func compileCondition(field, op string, value any, d store.Dialect, pb store.ParamBuilder) (string, error) {
	switch op {
	case "eq":
		if value == nil {
			return fmt.Sprintf("%s IS NULL", field), nil
		}
		return fmt.Sprintf("%s = %s", field, pb.Add(value)), nil
	case "neq":
		if value == nil {
			return fmt.Sprintf("%s IS NOT NULL", field), nil
		}
		return fmt.Sprintf("%s != %s", field, pb.Add(value)), nil
	case "in", "not_in":
		values, ok := toList(value)
		if !ok {
			return "", InvalidConstraintError(fmt.Sprintf("Constraint %s__%s requires a list value", field, op))
		}
		if op == "in" {
			return d.InExpr(field, pb, values), nil
		}
		return d.NotInExpr(field, pb, values), nil
	case "contains":
		return d.ContainsExpr(field, pb, value, false), nil
	case "icontains":
		return d.ContainsExpr(field, pb, value, true), nil
	case "startswith":
		return d.StartsWithExpr(field, pb, value, false), nil
	case "istartswith":
		return d.StartsWithExpr(field, pb, value, true), nil
	case "gt":
		return fmt.Sprintf("%s > %s", field, pb.Add(value)), nil
	case "gte":
		return fmt.Sprintf("%s >= %s", field, pb.Add(value)), nil
	case "lt":
		return fmt.Sprintf("%s < %s", field, pb.Add(value)), nil
	case "lte":
		return fmt.Sprintf("%s <= %s", field, pb.Add(value)), nil
	default:
		return "", InvalidConstraintError(fmt.Sprintf("Unknown constraint operator: %s", op))
	}
}

func toList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		values := make([]any, len(v))
		for i, s := range v {
			values[i] = s
		}
		return values, true
	default:
		return nil, false
	}
}

// MatchConstraints evaluates a constraint list against an already-loaded
// record, with the same OR-of-ANDs and skip-null semantics as
// CompileConstraints. An effectively empty list matches every record.
func MatchConstraints(list []grant.ConstraintMap, record map[string]any) bool {
	constrained := false
	for _, cm := range list {
		if len(cm) == 0 {
			continue
		}
		constrained = true
		if matchMap(cm, record) {
			return true
		}
	}
	return !constrained
}

func matchMap(cm grant.ConstraintMap, record map[string]any) bool {
	for key, condVal := range cm {
		field, op := parseConstraintKey(key)
		recordVal, ok := record[field]
		if !ok {
			return false
		}
		if !matchCondition(op, recordVal, condVal) {
			return false
		}
	}
	return true
}

func matchCondition(op string, recordVal, condVal any) bool {
	switch op {
	case "eq":
		if condVal == nil || recordVal == nil {
			return condVal == nil && recordVal == nil
		}
		return fmt.Sprintf("%v", recordVal) == fmt.Sprintf("%v", condVal)
	case "neq":
		if condVal == nil || recordVal == nil {
			return !(condVal == nil && recordVal == nil)
		}
		return fmt.Sprintf("%v", recordVal) != fmt.Sprintf("%v", condVal)
	case "in":
		return valueInList(recordVal, condVal)
	case "not_in":
		return !valueInList(recordVal, condVal)
	case "contains":
		return strings.Contains(fmt.Sprintf("%v", recordVal), fmt.Sprintf("%v", condVal))
	case "icontains":
		return strings.Contains(
			strings.ToLower(fmt.Sprintf("%v", recordVal)),
			strings.ToLower(fmt.Sprintf("%v", condVal)))
	case "startswith":
		return strings.HasPrefix(fmt.Sprintf("%v", recordVal), fmt.Sprintf("%v", condVal))
	case "istartswith":
		return strings.HasPrefix(
			strings.ToLower(fmt.Sprintf("%v", recordVal)),
			strings.ToLower(fmt.Sprintf("%v", condVal)))
	case "gt":
		return compareNumeric(recordVal, condVal) > 0
	case "gte":
		return compareNumeric(recordVal, condVal) >= 0
	case "lt":
		return compareNumeric(recordVal, condVal) < 0
	case "lte":
		return compareNumeric(recordVal, condVal) <= 0
	default:
		return false
	}
}

func valueInList(val, list any) bool {
	valStr := fmt.Sprintf("%v", val)
	switch l := list.(type) {
	case []any:
		for _, item := range l {
			if fmt.Sprintf("%v", item) == valStr {
				return true
			}
		}
	case []string:
		for _, item := range l {
			if item == valStr {
				return true
			}
		}
	}
	return false
}

func compareNumeric(a, b any) int {
	fa := toFloat(a)
	fb := toFloat(b)
	if fa < fb {
		return -1
	}
	if fa > fb {
		return 1
	}
	return 0
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	default:
		var f float64
		fmt.Sscanf(fmt.Sprintf("%v", v), "%f", &f)
		return f
	}
}
