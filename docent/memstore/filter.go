package memstore

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/docent-db/docent/docent"
	"github.com/docent-db/docent/docent/store"
)

// matchFilter evaluates a MongoDB-style filter document against doc.
// Unknown operators never match rather than erroring, which mirrors how
// a malformed query returns nothing.
func matchFilter(doc store.Doc, filter store.Filter) bool {
	for key, cond := range filter {
		switch key {
		case "$or":
			if !matchAny(doc, cond) {
				return false
			}
		case "$and":
			if !matchAll(doc, cond) {
				return false
			}
		default:
			value, present := doc[key]
			if !matchField(value, present, cond) {
				return false
			}
		}
	}
	return true
}

func subFilters(cond any) []store.Filter {
	switch list := cond.(type) {
	case []store.Filter:
		return list
	case []any:
		out := make([]store.Filter, 0, len(list))
		for _, item := range list {
			if f, ok := item.(map[string]any); ok {
				out = append(out, f)
			}
		}
		return out
	default:
		return nil
	}
}

func matchAny(doc store.Doc, cond any) bool {
	for _, f := range subFilters(cond) {
		if matchFilter(doc, f) {
			return true
		}
	}
	return false
}

func matchAll(doc store.Doc, cond any) bool {
	for _, f := range subFilters(cond) {
		if !matchFilter(doc, f) {
			return false
		}
	}
	return true
}

// matchField evaluates one field condition: either an operator document
// or an implicit equality. present tells whether the key exists in the
// document at all, which only $exists distinguishes from a null value.
func matchField(value any, present bool, cond any) bool {
	ops, ok := cond.(map[string]any)
	if !ok || !hasOperator(ops) {
		return equalValues(value, cond)
	}
	for op, arg := range ops {
		if !matchOperator(value, present, op, arg) {
			return false
		}
	}
	return true
}

func hasOperator(m map[string]any) bool {
	for key := range m {
		if strings.HasPrefix(key, "$") {
			return true
		}
	}
	return false
}

func matchOperator(value any, present bool, op string, arg any) bool {
	switch op {
	case "$eq":
		return equalValues(value, arg)
	case "$ne":
		return !equalValues(value, arg)
	case "$gt":
		cmp, ok := compareValues(value, arg)
		return ok && cmp > 0
	case "$gte":
		cmp, ok := compareValues(value, arg)
		return ok && cmp >= 0
	case "$lt":
		cmp, ok := compareValues(value, arg)
		return ok && cmp < 0
	case "$lte":
		cmp, ok := compareValues(value, arg)
		return ok && cmp <= 0
	case "$in":
		return containsValue(arg, value)
	case "$nin":
		return !containsValue(arg, value)
	case "$exists":
		want, _ := arg.(bool)
		return present == want
	case "$regex":
		pattern, ok := arg.(string)
		if !ok {
			return false
		}
		s, ok := normalize(value).(string)
		if !ok {
			return false
		}
		matched, err := regexp.MatchString(pattern, s)
		return err == nil && matched
	case "$not":
		sub, ok := arg.(map[string]any)
		if !ok {
			return !equalValues(value, arg)
		}
		return !matchField(value, present, sub)
	default:
		return false
	}
}

func containsValue(list any, value any) bool {
	rv := reflect.ValueOf(list)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false
	}
	for i := 0; i < rv.Len(); i++ {
		if equalValues(value, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// normalize collapses the representations that mean the same value on
// the wire: every string kind (identifiers included) to string, every
// number to float64. Times stay times; an RFC 3339 string paired with a
// time is handled in equalValues/compareValues.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case docent.ID:
		return t.String()
	case time.Time:
		return t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	}
	if f, ok := toNumber(v); ok {
		return f
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
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
	default:
		return 0, false
	}
}

// asTime pairs native times with their persisted RFC 3339 string form.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

func equalValues(a, b any) bool {
	na, nb := normalize(a), normalize(b)
	if na == nil || nb == nil {
		return na == nil && nb == nil
	}
	if ta, ok := na.(time.Time); ok {
		tb, ok := asTime(nb)
		return ok && ta.Equal(tb)
	}
	if tb, ok := nb.(time.Time); ok {
		ta, ok := asTime(na)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(na, nb)
}

// compareValues orders two values when they are comparable: numbers,
// strings, times, and bools (false < true). Nil sorts before everything.
func compareValues(a, b any) (int, bool) {
	na, nb := normalize(a), normalize(b)
	switch {
	case na == nil && nb == nil:
		return 0, true
	case na == nil:
		return -1, true
	case nb == nil:
		return 1, true
	}

	if fa, ok := na.(float64); ok {
		fb, ok := nb.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	if ta, ok := na.(time.Time); ok {
		tb, ok := asTime(nb)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	if tb, ok := nb.(time.Time); ok {
		ta, ok := asTime(na)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}
	if sa, ok := na.(string); ok {
		sb, ok := nb.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(sa, sb), true
	}
	if ba, ok := na.(bool); ok {
		bb, ok := nb.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case ba == bb:
			return 0, true
		case bb:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// copyDoc deep-copies a document so callers never share memory with the
// store. Value types are preserved; this is deliberately not a JSON
// round-trip, which would flatten times and identifiers to strings.
func copyDoc(doc store.Doc) store.Doc {
	out := make(store.Doc, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyDoc(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case *time.Time:
		if t == nil {
			return nil
		}
		c := *t
		return c
	default:
		// Remaining composites are rare; copy them reflectively.
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Map, reflect.Slice:
			return copyReflect(rv)
		}
		return v
	}
}

func copyReflect(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Slice:
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	case reflect.Map:
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface()
	default:
		return rv.Interface()
	}
}
