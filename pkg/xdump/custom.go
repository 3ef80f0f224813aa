package xdump

import (
	"strconv"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
)

// CustomField is a custom field with its session marker.
type CustomField struct {
	store.FieldInfo
	// Marker is the synthetic marker used by the line-oriented dialect:
	// z0, z1, ... in field id order.
	Marker string
}

// Key returns the registry key, Class_Field.
func (f CustomField) Key() string {
	return customKey(f.Class, f.Name)
}

// DisplayLabel returns the label, or the field name when none is set.
func (f CustomField) DisplayLabel() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

func customKey(class, name string) string {
	return class + "_" + name
}

// CustomRegistry indexes the custom fields of one session.
type CustomRegistry struct {
	fields []CustomField
	byKey  map[string]int
}

// NewCustomRegistry scans the metadata catalog once.
func NewCustomRegistry(meta store.Metadata) *CustomRegistry {
	r := &CustomRegistry{byKey: make(map[string]int)}
	for i, info := range meta.CustomFields() {
		f := CustomField{FieldInfo: info, Marker: "z" + strconv.Itoa(i)}
		r.byKey[f.Key()] = len(r.fields)
		r.fields = append(r.fields, f)
	}
	return r
}

// Lookup finds a custom field by declaring class and name.
func (r *CustomRegistry) Lookup(class, name string) (CustomField, bool) {
	i, ok := r.byKey[customKey(class, name)]
	if !ok {
		return CustomField{}, false
	}
	return r.fields[i], true
}

// Fields returns every custom field in marker order.
func (r *CustomRegistry) Fields() []CustomField {
	return append([]CustomField(nil), r.fields...)
}

// Len returns the number of custom fields.
func (r *CustomRegistry) Len() int {
	return len(r.fields)
}

// kindFilter matches field kinds named by a generateCustom fieldType.
type kindFilter func(store.Kind) bool

func parseKindFilter(name string) (kindFilter, bool) {
	switch name {
	case "any", "*":
		return func(store.Kind) bool { return true }, true
	case "simple":
		return store.Kind.IsScalar, true
	}
	want, ok := store.ParseKind(name)
	if !ok {
		return nil, false
	}
	return func(k store.Kind) bool { return k == want }, true
}

// matching returns the custom fields an object of class can carry, optionally
// restricted to one declaring class.
func (r *CustomRegistry) matching(meta store.Metadata, class, declaring string, filter kindFilter) []CustomField {
	var out []CustomField
	for _, f := range r.fields {
		if declaring != "" && f.Class != declaring {
			continue
		}
		if !store.IsA(meta, class, f.Class) || !filter(f.Kind) {
			continue
		}
		out = append(out, f)
	}
	return out
}
