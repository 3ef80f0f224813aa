// Package store defines the capabilities the exporter consumes from a
// domain-object store.
//
// The exporter never owns domain objects. It reads them through the narrow
// interfaces declared here: object identity and ownership (Objects), the
// field-metadata catalog (Metadata), typed field readers (Reader) and the
// writing-system configuration used by multilingual fields (Locales).
// The memstore sub-package provides an in-memory implementation.
package store

import (
	"errors"
)

// Handle is an opaque object identity, stable for the lifetime of a session.
type Handle int

// NoHandle is the zero handle; it never identifies an object.
const NoHandle Handle = 0

// FieldID identifies a declared field in the metadata catalog.
type FieldID int

// Kind is the storage kind of a field.
type Kind int

const (
	KindUnknown Kind = iota
	KindBoolean
	KindInteger
	KindString
	KindMultiString
	KindOwningAtomic
	KindOwningVector
	KindReferenceAtomic
	KindReferenceVector
)

func (k Kind) String() string {
	switch k {
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindString:
		return "string"
	case KindMultiString:
		return "multistring"
	case KindOwningAtomic:
		return "owningAtomic"
	case KindOwningVector:
		return "owningVector"
	case KindReferenceAtomic:
		return "referenceAtomic"
	case KindReferenceVector:
		return "referenceVector"
	default:
		return "unknown"
	}
}

// ParseKind maps the names produced by Kind.String back to kinds.
func ParseKind(s string) (Kind, bool) {
	for k := KindBoolean; k <= KindReferenceVector; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindUnknown, false
}

// IsOwning reports whether the field owns its targets.
func (k Kind) IsOwning() bool {
	return k == KindOwningAtomic || k == KindOwningVector
}

// IsVector reports whether the field holds an ordered list of targets.
func (k Kind) IsVector() bool {
	return k == KindOwningVector || k == KindReferenceVector
}

// IsObject reports whether the field points at other objects.
func (k Kind) IsObject() bool {
	return k >= KindOwningAtomic
}

// IsScalar reports whether the field holds a value rather than objects.
func (k Kind) IsScalar() bool {
	return k >= KindBoolean && k <= KindMultiString
}

// FieldInfo describes one declared or custom field.
type FieldInfo struct {
	ID     FieldID
	Name   string
	Class  string // declaring class
	Kind   Kind
	Target string // target class for object fields
	Custom bool
	Label  string
}

// Alternative is one writing-system alternative of a multilingual value.
type Alternative struct {
	Locale string
	Text   string
}

// LocaleSettings lists the configured writing systems in preference order.
// The first entry of each list is the role default.
type LocaleSettings struct {
	Vernacular []string
	Analysis   []string
	// Labels maps a locale id to the short label used by marker output.
	Labels map[string]string
}

// Label returns the short label of a locale, or the locale id itself.
func (s LocaleSettings) Label(locale string) string {
	if l, ok := s.Labels[locale]; ok && l != "" {
		return l
	}
	return locale
}

// NoneFound is the placeholder some stores return for a best-available
// multilingual lookup that found nothing.
const NoneFound = "***"

// ErrNoObject is returned by readers when the handle does not exist.
var ErrNoObject = errors.New("store: object does not exist")

// ErrNoField is returned by readers when the field is not defined for the
// object's class.
var ErrNoField = errors.New("store: field not defined for class")

// Objects dereferences handles.
type Objects interface {
	// ClassOf returns the class name of an object, false if it does not exist.
	ClassOf(h Handle) (string, bool)
	// Owner returns the owning object, NoHandle for unowned objects.
	Owner(h Handle) Handle
	// OwningField returns the field of the owner that holds the object.
	OwningField(h Handle) FieldID
	// IndexInOwner returns the position of the object within its owning
	// vector, 0 for atomic ownership.
	IndexInOwner(h Handle) int
}

// Metadata is the field-metadata catalog.
type Metadata interface {
	Field(id FieldID) (FieldInfo, bool)
	// FieldByName looks up a field on a class or its ancestors.
	FieldByName(class, name string) (FieldInfo, bool)
	// Fields lists fields declared directly on a class, in id order.
	Fields(class string) []FieldInfo
	// CustomFields lists every custom field in id order.
	CustomFields() []FieldInfo
	// BaseClass returns the direct ancestor, "" when the class derives
	// directly from the implicit universal root.
	BaseClass(class string) string
	// Subclasses returns the direct subclasses of a class.
	Subclasses(class string) []string
	// Classes lists every class name.
	Classes() []string
}

// Reader reads field values.
type Reader interface {
	Bool(h Handle, f FieldID) (bool, error)
	Int(h Handle, f FieldID) (int, error)
	String(h Handle, f FieldID) (string, error)
	MultiString(h Handle, f FieldID) ([]Alternative, error)
	Atomic(h Handle, f FieldID) (Handle, error)
	Vector(h Handle, f FieldID) ([]Handle, error)
}

// Locales exposes writing-system configuration.
type Locales interface {
	Locales() LocaleSettings
}

// Store is the full capability set the exporter needs.
type Store interface {
	Objects
	Metadata
	Reader
	Locales
}

// MethodProvider is implemented by stores that expose synthetic relation
// types (virtual lexical-relation views). Method returns ok=false when the
// object has no method of that name.
type MethodProvider interface {
	Method(h Handle, name string) (value any, ok bool, err error)
}

// Ancestors returns class followed by its ancestors. The universal root is
// implicit and never part of the chain.
func Ancestors(m Metadata, class string) []string {
	var chain []string
	for c := class; c != ""; c = m.BaseClass(c) {
		chain = append(chain, c)
	}
	return chain
}

// Descendants returns class followed by every transitive subclass.
func Descendants(m Metadata, class string) []string {
	out := []string{class}
	for i := 0; i < len(out); i++ {
		out = append(out, m.Subclasses(out[i])...)
	}
	return out
}

// IsA reports whether class equals ancestor or derives from it.
func IsA(m Metadata, class, ancestor string) bool {
	for _, c := range Ancestors(m, class) {
		if c == ancestor {
			return true
		}
	}
	return false
}
