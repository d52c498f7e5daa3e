package docent

import (
	"fmt"
	"reflect"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/docent-db/docent/docent/store"
)

var codecJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// marshalEntity serializes an entity into a wire-keyed document. With
// forStorage set, fields marked encrypted are encrypted; without it the
// plain serialization is returned, which is what dirty-tracking snapshots
// diff against (encryption is non-deterministic, so diffs must happen on
// plain values).
//
// Resolved references always degrade to their identifier.
func marshalEntity(s *schema, enc *EncryptionManager, entity any, forStorage bool) (store.Doc, error) {
	rv := reflect.ValueOf(entity).Elem()
	doc := store.Doc{}

	meta := rv.FieldByIndex(s.docPath).Addr().Interface().(*Document)
	if !meta.ID.IsZero() {
		doc["_id"] = meta.ID
	}

	for _, spec := range s.fields {
		fv := rv.FieldByIndex(spec.path)

		if spec.isRef {
			slot := fv.Addr().Interface().(refSlot)
			if id := slot.refID(); !id.IsZero() {
				doc[spec.key] = id
			}
			continue
		}

		value, include := encodeValue(fv)
		if !include {
			continue
		}
		if spec.encrypted && forStorage {
			plaintext, _ := value.(string)
			if plaintext == "" {
				continue
			}
			ciphertext, err := enc.Encrypt(plaintext)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", spec.name, err)
			}
			value = ciphertext
		}
		doc[spec.key] = value
	}
	return doc, nil
}

// encodeValue converts one field value to its wire representation. The
// second return is false when the field should be omitted: nil pointers,
// zero times, zero identifiers and zero composites. Scalar zero values
// (empty string, 0, false) are kept so they round-trip.
func encodeValue(fv reflect.Value) (any, bool) {
	switch v := fv.Interface().(type) {
	case ID:
		if v.IsZero() {
			return nil, false
		}
		return v, true
	case time.Time:
		if v.IsZero() {
			return nil, false
		}
		return v, true
	case *time.Time:
		if v == nil {
			return nil, false
		}
		return *v, true
	}

	switch fv.Kind() {
	case reflect.Pointer:
		if fv.IsNil() {
			return nil, false
		}
		return encodeValue(fv.Elem())
	case reflect.String:
		return fv.String(), true
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Int64, reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Float32, reflect.Float64:
		return fv.Interface(), true
	default:
		if fv.IsZero() {
			return nil, false
		}
		return fv.Interface(), true
	}
}

// unmarshalEntity hydrates an entity from a stored document, decrypting
// marked fields. The entity should be a freshly allocated *T.
func unmarshalEntity(s *schema, enc *EncryptionManager, doc store.Doc, entity any) error {
	rv := reflect.ValueOf(entity).Elem()

	meta := rv.FieldByIndex(s.docPath).Addr().Interface().(*Document)
	if raw, ok := doc["_id"]; ok && raw != nil {
		id, err := looseID(raw)
		if err != nil {
			return err
		}
		meta.ID = id
	}

	for _, spec := range s.fields {
		raw, ok := doc[spec.key]
		if !ok || raw == nil {
			continue
		}
		if spec.encrypted {
			ciphertext, isString := raw.(string)
			if !isString {
				return fmt.Errorf("%w: encrypted field %q holds %T", Err, spec.name, raw)
			}
			plaintext, err := enc.Decrypt(ciphertext)
			if err != nil {
				return fmt.Errorf("field %q: %w", spec.name, err)
			}
			raw = plaintext
		}
		fv := rv.FieldByIndex(spec.path)
		if err := setValue(fv, raw); err != nil {
			return fmt.Errorf("%w: field %q: %v", Err, spec.name, err)
		}
	}
	return nil
}

// looseID converts a stored identifier value without canonical-form
// validation; persisted snapshots may hold identifiers as plain strings.
func looseID(raw any) (ID, error) {
	switch t := raw.(type) {
	case ID:
		return t, nil
	case string:
		return ID(t), nil
	default:
		return "", fmt.Errorf("%w: stored identifier holds %T", ErrInvalidID, raw)
	}
}

// setValue assigns a wire value to a struct field, coercing across the
// representations different drivers and snapshot formats produce
// (float64 for any number, RFC 3339 strings for times, plain strings for
// identifiers). Composite types fall back to a JSON round-trip.
func setValue(fv reflect.Value, raw any) error {
	if slot, ok := fv.Addr().Interface().(refSlot); ok {
		id, err := looseID(raw)
		if err != nil {
			return err
		}
		slot.setRefID(id)
		return nil
	}

	switch fv.Interface().(type) {
	case time.Time:
		t, err := coerceTime(raw)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(t))
		return nil
	case *time.Time:
		t, err := coerceTime(raw)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(&t))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			if id, isID := raw.(ID); isID {
				s = string(id)
			} else {
				return fmt.Errorf("cannot assign %T to string field", raw)
			}
		}
		fv.SetString(s)
		return nil
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return fmt.Errorf("cannot assign %T to bool field", raw)
		}
		fv.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, ok := toFloat64(raw)
		if !ok {
			return fmt.Errorf("cannot assign %T to integer field", raw)
		}
		fv.SetInt(int64(f))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f, ok := toFloat64(raw)
		if !ok {
			return fmt.Errorf("cannot assign %T to unsigned field", raw)
		}
		fv.SetUint(uint64(f))
		return nil
	case reflect.Float32, reflect.Float64:
		f, ok := toFloat64(raw)
		if !ok {
			return fmt.Errorf("cannot assign %T to float field", raw)
		}
		fv.SetFloat(f)
		return nil
	}

	if rawVal := reflect.ValueOf(raw); rawVal.Type().AssignableTo(fv.Type()) {
		fv.Set(rawVal)
		return nil
	}

	// Composite types: round-trip through JSON.
	data, err := codecJSON.Marshal(raw)
	if err != nil {
		return err
	}
	return codecJSON.Unmarshal(data, fv.Addr().Interface())
}

// coerceTime accepts native times or their RFC 3339 string form.
func coerceTime(raw any) (time.Time, error) {
	switch t := raw.(type) {
	case time.Time:
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return *t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("cannot parse %q as time: %w", t, err)
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("cannot assign %T to time field", raw)
	}
}

// toFloat64 coerces the numeric representations JSON decoding produces.
func toFloat64(raw any) (float64, bool) {
	switch n := raw.(type) {
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
	case jsoniter.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
