package audit

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/jwalitptl/care-scheduler/internal/model"
)

// Redacted replaces the value of every sensitive key.
const Redacted = "***REDACTED***"

// sensitiveKeys are compared after lowercasing and dropping '_' and '-'.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"passwordhash":  {},
	"token":         {},
	"accesstoken":   {},
	"refreshtoken":  {},
	"authorization": {},
	"cpf":           {},
	"nationalid":    {},
	"creditcard":    {},
	"cardnumber":    {},
}

// NormalizeKey lowercases k and drops separators so "first_name", "firstName"
// and "First-Name" compare equal.
func NormalizeKey(k string) string {
	return strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(k))
}

// IsSensitive reports whether a detail key must never be stored in clear.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[NormalizeKey(key)]
	return ok
}

// Sanitize returns a redacted copy of detail. Structs, typed maps and typed
// slices are brought to their JSON shape at every depth; non-object values
// are wrapped under "value". The input is never modified.
func Sanitize(detail interface{}) model.JSONMap {
	if detail == nil {
		return model.JSONMap{}
	}

	out, ok := sanitizeValue(detail)
	if !ok {
		return model.JSONMap{"unserializable": true}
	}
	if m, ok := out.(map[string]interface{}); ok {
		return model.JSONMap(m)
	}
	return model.JSONMap{"value": out}
}

func sanitizeValue(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case model.JSONMap:
		return sanitizeValue(map[string]interface{}(val))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if IsSensitive(k) {
				out[k] = Redacted
				continue
			}
			clean, ok := sanitizeValue(inner)
			if !ok {
				return nil, false
			}
			out[k] = clean
		}
		return out, true
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			clean, ok := sanitizeValue(inner)
			if !ok {
				return nil, false
			}
			out[i] = clean
		}
		return out, true
	}

	if !composite(v) {
		return v, true
	}
	// structs, typed maps and slices: sanitize their JSON shape
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, false
	}
	return sanitizeValue(generic)
}

func composite(v interface{}) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		return true
	default:
		return false
	}
}
