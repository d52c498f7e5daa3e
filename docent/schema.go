package docent

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// fieldSpec holds the parsed declaration of one entity field.
type fieldSpec struct {
	name string // Go field name
	key  string // wire key (the field's alias)
	path []int  // reflect index path from the entity struct
	typ  reflect.Type

	encrypted bool
	isRef     bool
	refTarget string // registry name of the referenced entity type
	index     *IndexSpec
}

// schema is the parsed declaration of an entity type: its fields keyed
// both ways, the location of the embedded Document, and which mixins the
// type carries.
type schema struct {
	typ    reflect.Type
	fields []*fieldSpec
	byName map[string]*fieldSpec
	byKey  map[string]*fieldSpec

	docPath []int

	hasTimestamps bool
	softDelete    bool
}

var (
	documentType   = reflect.TypeOf(Document{})
	timestampsType = reflect.TypeOf(Timestamps{})
	softDeleteType = reflect.TypeOf(SoftDelete{})
	refSlotType    = reflect.TypeOf((*refSlot)(nil)).Elem()
)

// parseSchema analyzes an entity struct type and extracts its field
// declarations from tags. The type must embed docent.Document.
func parseSchema(t reflect.Type) (*schema, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: expected struct entity type, got %s", Err, t.Kind())
	}

	s := &schema{
		typ:    t,
		byName: make(map[string]*fieldSpec),
		byKey:  make(map[string]*fieldSpec),
	}
	if err := s.collectFields(t, nil); err != nil {
		return nil, err
	}
	if s.docPath == nil {
		return nil, fmt.Errorf("%w: %s does not embed docent.Document", Err, t.Name())
	}
	return s, nil
}

func (s *schema) collectFields(t reflect.Type, prefix []int) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		path := append(append([]int(nil), prefix...), i)

		if field.Anonymous {
			switch field.Type {
			case documentType:
				s.docPath = path
				continue
			case timestampsType:
				s.hasTimestamps = true
			case softDeleteType:
				s.softDelete = true
			}
			if field.Type.Kind() == reflect.Struct {
				if err := s.collectFields(field.Type, path); err != nil {
					return err
				}
				continue
			}
		}

		if !field.IsExported() {
			continue
		}

		spec, err := parseFieldTags(field)
		if err != nil {
			return fmt.Errorf("%w: %s.%s: %v", Err, s.typ.Name(), field.Name, err)
		}
		if spec == nil {
			continue // excluded via `docent:"-"`
		}
		spec.path = path

		if prev, dup := s.byKey[spec.key]; dup {
			return fmt.Errorf("%w: %s: fields %s and %s share wire key %q",
				Err, s.typ.Name(), prev.name, spec.name, spec.key)
		}
		s.fields = append(s.fields, spec)
		s.byName[spec.name] = spec
		s.byKey[spec.key] = spec
	}
	return nil
}

func parseFieldTags(field reflect.StructField) (*fieldSpec, error) {
	key := field.Tag.Get("docent")
	if key == "-" {
		return nil, nil
	}
	if key == "" {
		key = toSnakeCase(field.Name)
	}
	if key == "_id" {
		return nil, fmt.Errorf("wire key %q is reserved for the identifier", key)
	}

	spec := &fieldSpec{
		name: field.Name,
		key:  key,
		typ:  field.Type,
	}

	if field.Tag.Get("encrypted") == "true" {
		if field.Type.Kind() != reflect.String {
			return nil, fmt.Errorf("encrypted fields must be strings, got %s", field.Type)
		}
		spec.encrypted = true
	}

	spec.isRef = reflect.PointerTo(field.Type).Implements(refSlotType)
	if target := field.Tag.Get("ref"); target != "" {
		if !spec.isRef {
			return nil, fmt.Errorf("ref tag on non-Ref field of type %s", field.Type)
		}
		spec.refTarget = target
	} else if spec.isRef {
		return nil, fmt.Errorf("Ref field needs a ref:\"TargetName\" tag")
	}

	if indexTag, ok := field.Tag.Lookup("index"); ok {
		idx, err := parseIndexTag(key, indexTag)
		if err != nil {
			return nil, err
		}
		spec.index = idx
	}

	return spec, nil
}

// parseIndexTag reads an index declaration such as `index:"1"`,
// `index:"-1,unique"` or `index:"unique,sparse"`.
func parseIndexTag(key, tag string) (*IndexSpec, error) {
	idx := &IndexSpec{Fields: []IndexField{{Field: key}}}
	for _, token := range strings.Split(tag, ",") {
		switch strings.TrimSpace(token) {
		case "", "1":
		case "-1":
			idx.Fields[0].Desc = true
		case "unique":
			idx.Unique = true
		case "sparse":
			idx.Sparse = true
		default:
			return nil, fmt.Errorf("unknown index option %q", token)
		}
	}
	return idx, nil
}

// toSnakeCase converts a Go field name to its default wire key, e.g.
// "CreatedAt" -> "created_at", "HTMLBody" -> "html_body".
func toSnakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (!unicode.IsUpper(runes[i-1]) ||
				(i+1 < len(runes) && !unicode.IsUpper(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// pluralize derives a collection name from a type name: snake_case plus a
// naive English plural.
func pluralize(name string) string {
	lower := toSnakeCase(name)
	switch {
	case strings.HasSuffix(lower, "s"):
		return lower + "es"
	case strings.HasSuffix(lower, "y") && !strings.HasSuffix(lower, "ay") &&
		!strings.HasSuffix(lower, "ey") && !strings.HasSuffix(lower, "oy") &&
		!strings.HasSuffix(lower, "uy"):
		return lower[:len(lower)-1] + "ies"
	default:
		return lower + "s"
	}
}
