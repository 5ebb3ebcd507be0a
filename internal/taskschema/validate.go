// Package taskschema checks finish parameters against a task's declared
// schema and injects the fields the environment fixes.
package taskschema

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/xkilldash9x/scalewob/api/schemas"
)

const op = "finish-evaluation"

// Validate checks params against schema. It returns the map to submit, with
// constant fields injected over caller values, and the caller-visible map,
// which omits constant fields. Every problem found is reported in one
// Command error. A nil schema accepts anything.
func Validate(schema *schemas.TaskSchema, params map[string]interface{}) (submitted, visible map[string]interface{}, err error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	if schema == nil {
		return schemas.CloneParams(params), schemas.CloneParams(params), nil
	}

	var problems []string
	for _, name := range schema.Required {
		prop := schema.Properties[name]
		if prop.IsConst() {
			continue
		}
		if _, ok := params[name]; !ok {
			problems = append(problems, fmt.Sprintf("missing required field %q", name))
		}
	}

	for _, name := range sortedKeys(params) {
		v := params[name]
		prop, declared := schema.Properties[name]
		if !declared {
			if !schema.AllowsAdditional() {
				problems = append(problems, fmt.Sprintf("unknown field %q", name))
			}
			continue
		}
		if prop.IsConst() {
			continue
		}
		if prop.Type != "" && !matchesType(prop.Type, v) {
			problems = append(problems, fmt.Sprintf("field %q must be %s, got %s", name, prop.Type, describe(v)))
			continue
		}
		if len(prop.Enum) > 0 && !inEnum(prop.Enum, v) {
			problems = append(problems, fmt.Sprintf("field %q must be one of %v, got %v", name, prop.Enum, v))
		}
	}

	if len(problems) > 0 {
		return nil, nil, schemas.NewCommandError(op, "invalid parameters: %s", strings.Join(problems, "; "))
	}

	submitted = schemas.CloneParams(params)
	visible = schemas.CloneParams(params)
	for name, prop := range schema.Properties {
		if prop.IsConst() {
			submitted[name] = prop.Const
			delete(visible, name)
		}
	}
	return submitted, visible, nil
}

// Constants returns the fixed fields of schema.
func Constants(schema *schemas.TaskSchema) map[string]interface{} {
	out := map[string]interface{}{}
	if schema == nil {
		return out
	}
	for name, prop := range schema.Properties {
		if prop.IsConst() {
			out[name] = prop.Const
		}
	}
	return out
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func matchesType(typ string, v interface{}) bool {
	switch typ {
	case "null":
		return v == nil
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		_, ok := toFloat(v)
		return ok
	case "integer":
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	case "array":
		if v == nil {
			return false
		}
		k := reflect.TypeOf(v).Kind()
		return k == reflect.Slice || k == reflect.Array
	case "object":
		if v == nil {
			return false
		}
		return reflect.TypeOf(v).Kind() == reflect.Map
	}
	// Unknown type names are not enforced.
	return true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// inEnum compares numbers by value so 2 and 2.0 are the same member.
func inEnum(enum []interface{}, v interface{}) bool {
	vf, vnum := toFloat(v)
	for _, e := range enum {
		if ef, ok := toFloat(e); ok && vnum {
			if ef == vf {
				return true
			}
			continue
		}
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

func describe(v interface{}) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
