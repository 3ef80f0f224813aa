package xdump

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
)

// Value is a resolved property.
type Value struct {
	Kind store.Kind
	Bool bool
	Int  int
	// Str is the text of a string field, or the first selected alternative
	// of a multilingual field.
	Str string
	// Alts holds the selected alternatives of a multilingual field.
	Alts []store.Alternative
	Ref  store.Handle
	Refs []store.Handle
}

// IsNull reports whether the value is absent: an empty text, an unset
// reference or an empty vector. Booleans and integers are never null.
func (v Value) IsNull() bool {
	switch v.Kind {
	case store.KindBoolean, store.KindInteger:
		return false
	case store.KindString:
		return v.Str == ""
	case store.KindMultiString:
		return len(v.Alts) == 0
	case store.KindOwningAtomic, store.KindReferenceAtomic:
		return v.Ref == store.NoHandle
	case store.KindOwningVector, store.KindReferenceVector:
		return len(v.Refs) == 0
	}
	return true
}

// Text formats a scalar for emission.
func (v Value) Text() string {
	switch v.Kind {
	case store.KindBoolean:
		return strconv.FormatBool(v.Bool)
	case store.KindInteger:
		return strconv.Itoa(v.Int)
	case store.KindOwningAtomic, store.KindReferenceAtomic:
		if v.Ref == store.NoHandle {
			return ""
		}
		return strconv.Itoa(int(v.Ref))
	case store.KindOwningVector, store.KindReferenceVector:
		parts := make([]string, len(v.Refs))
		for i, h := range v.Refs {
			parts[i] = strconv.Itoa(int(h))
		}
		return strings.Join(parts, " ")
	}
	return v.Str
}

// Len is the text length in characters, or the vector length.
func (v Value) Len() int {
	switch v.Kind {
	case store.KindOwningVector, store.KindReferenceVector:
		return len(v.Refs)
	case store.KindOwningAtomic, store.KindReferenceAtomic:
		if v.Ref == store.NoHandle {
			return 0
		}
		return 1
	}
	return utf8.RuneCountInString(v.Text())
}

// Handles returns the targets of an object-valued property.
func (v Value) Handles() []store.Handle {
	switch v.Kind {
	case store.KindOwningVector, store.KindReferenceVector:
		return v.Refs
	case store.KindOwningAtomic, store.KindReferenceAtomic:
		if v.Ref != store.NoHandle {
			return []store.Handle{v.Ref}
		}
	}
	return nil
}

// accessor reads one field of an object. Built once per class.
type accessor struct {
	info store.FieldInfo
	read func(h store.Handle, sel LocaleSelector) (Value, error)
}

type classTable struct {
	byName map[string]*accessor
}

// Structural pseudo-properties available on every object.
const (
	PropID           = "Id"
	PropOwner        = "Owner"
	PropOwningField  = "OwningField"
	PropIndexInOwner = "IndexInOwner"
	PropClassName    = "ClassName"
)

var relationSuffixes = []string{"OA", "OS", "OC", "RA", "RS", "RC"}

// stripRelationSuffix removes a relation-kind marker such as OS or RA.
func stripRelationSuffix(name string) string {
	for _, sfx := range relationSuffixes {
		if len(name) > len(sfx) && strings.HasSuffix(name, sfx) {
			return strings.TrimSuffix(name, sfx)
		}
	}
	return name
}

type stepKind int

const (
	stepPseudo stepKind = iota
	stepField
	stepMethod
)

type step struct {
	kind stepKind
	name string
	acc  *accessor
}

type pathKey struct {
	rule  *Rule
	path  string
	class string
}

// Resolver reads properties through a typed accessor table built at session
// start from the field-metadata catalog.
type Resolver struct {
	st      store.Store
	methods store.MethodProvider
	custom  *CustomRegistry
	locales store.LocaleSettings
	tables  map[string]*classTable
	paths   map[pathKey][]step
}

// NewResolver builds the accessor table for every class of the store.
func NewResolver(st store.Store, custom *CustomRegistry) *Resolver {
	if custom == nil {
		custom = NewCustomRegistry(st)
	}
	r := &Resolver{
		st:      st,
		custom:  custom,
		locales: st.Locales(),
		tables:  make(map[string]*classTable),
		paths:   make(map[pathKey][]step),
	}
	if mp, ok := st.(store.MethodProvider); ok {
		r.methods = mp
	}
	for _, class := range st.Classes() {
		r.tables[class] = r.buildTable(class)
	}
	return r
}

func (r *Resolver) buildTable(class string) *classTable {
	t := &classTable{byName: make(map[string]*accessor)}
	for _, c := range store.Ancestors(r.st, class) {
		for _, info := range r.st.Fields(c) {
			if _, ok := t.byName[info.Name]; !ok {
				t.byName[info.Name] = r.newAccessor(info)
			}
		}
	}
	return t
}

func (r *Resolver) newAccessor(info store.FieldInfo) *accessor {
	id := info.ID
	acc := &accessor{info: info}
	switch info.Kind {
	case store.KindBoolean:
		acc.read = func(h store.Handle, _ LocaleSelector) (Value, error) {
			b, err := r.st.Bool(h, id)
			return Value{Kind: info.Kind, Bool: b}, err
		}
	case store.KindInteger:
		acc.read = func(h store.Handle, _ LocaleSelector) (Value, error) {
			n, err := r.st.Int(h, id)
			return Value{Kind: info.Kind, Int: n}, err
		}
	case store.KindString:
		acc.read = func(h store.Handle, _ LocaleSelector) (Value, error) {
			s, err := r.st.String(h, id)
			if s == store.NoneFound {
				s = ""
			}
			return Value{Kind: info.Kind, Str: s}, err
		}
	case store.KindMultiString:
		acc.read = func(h store.Handle, sel LocaleSelector) (Value, error) {
			alts, err := r.st.MultiString(h, id)
			if err != nil {
				return Value{Kind: info.Kind}, err
			}
			v := Value{Kind: info.Kind, Alts: sel.Select(alts, r.locales)}
			if len(v.Alts) > 0 {
				v.Str = v.Alts[0].Text
			}
			return v, nil
		}
	case store.KindOwningAtomic, store.KindReferenceAtomic:
		acc.read = func(h store.Handle, _ LocaleSelector) (Value, error) {
			target, err := r.st.Atomic(h, id)
			if err != nil {
				return Value{Kind: info.Kind}, err
			}
			if target != store.NoHandle {
				if _, ok := r.st.ClassOf(target); !ok {
					return Value{Kind: info.Kind}, ErrNotFound
				}
			}
			return Value{Kind: info.Kind, Ref: target}, nil
		}
	case store.KindOwningVector, store.KindReferenceVector:
		acc.read = func(h store.Handle, _ LocaleSelector) (Value, error) {
			targets, err := r.st.Vector(h, id)
			if err != nil {
				return Value{Kind: info.Kind}, err
			}
			live := make([]store.Handle, 0, len(targets))
			for _, t := range targets {
				if _, ok := r.st.ClassOf(t); ok {
					live = append(live, t)
				}
			}
			return Value{Kind: info.Kind, Refs: live}, nil
		}
	default:
		acc.read = func(store.Handle, LocaleSelector) (Value, error) {
			return Value{}, fmt.Errorf("field %s.%s has no storage kind", info.Class, info.Name)
		}
	}
	return acc
}

// Field returns the accessor metadata of a declared or custom field.
func (r *Resolver) Field(class, name string) (store.FieldInfo, bool) {
	acc := r.lookup(class, name)
	if acc == nil {
		return store.FieldInfo{}, false
	}
	return acc.info, true
}

func (r *Resolver) lookup(class, name string) *accessor {
	t, ok := r.tables[class]
	if !ok {
		t = r.buildTable(class)
		r.tables[class] = t
	}
	if acc, ok := t.byName[name]; ok {
		return acc
	}
	if stripped := stripRelationSuffix(name); stripped != name {
		if acc, ok := t.byName[stripped]; ok {
			return acc
		}
		name = stripped
	}
	for _, c := range store.Ancestors(r.st, class) {
		if f, ok := r.custom.Lookup(c, name); ok {
			acc := r.newAccessor(f.FieldInfo)
			t.byName[name] = acc
			return acc
		}
	}
	return nil
}

func isPseudo(name string) bool {
	switch name {
	case PropID, PropOwner, PropOwningField, PropIndexInOwner, PropClassName:
		return true
	}
	return false
}

// compile turns a dotted path into steps for objects of class. Results are
// cached per rule, path and class.
func (r *Resolver) compile(rule *Rule, path, class string) ([]step, error) {
	key := pathKey{rule: rule, path: path, class: class}
	if steps, ok := r.paths[key]; ok {
		return steps, nil
	}

	segments := strings.Split(path, ".")
	steps := make([]step, 0, len(segments))
	cur := class
	for i, seg := range segments {
		last := i == len(segments)-1
		switch {
		case isPseudo(seg):
			steps = append(steps, step{kind: stepPseudo, name: seg})
			cur = ""
		case cur == "":
			// the class after an Owner or method step is only known at read time
			steps = append(steps, step{kind: stepMethod, name: seg})
		default:
			if acc := r.lookup(cur, seg); acc != nil {
				if !last && (acc.info.Kind != store.KindOwningAtomic && acc.info.Kind != store.KindReferenceAtomic) {
					return nil, NewConfigurationError(ruleName(rule), class, path,
						"path segment "+seg+" is not an atomic relation")
				}
				steps = append(steps, step{kind: stepField, name: seg, acc: acc})
				cur = acc.info.Target
				continue
			}
			if r.methods == nil {
				return nil, NewConfigurationError(ruleName(rule), class, path, "field "+seg+" is not declared on "+cur)
			}
			steps = append(steps, step{kind: stepMethod, name: seg})
			cur = ""
		}
		if !last && steps[len(steps)-1].kind == stepPseudo && seg != PropOwner {
			return nil, NewConfigurationError(ruleName(rule), class, path, "only Owner can be followed in a path")
		}
	}
	r.paths[key] = steps
	return steps, nil
}

func ruleName(rule *Rule) string {
	if rule == nil {
		return ""
	}
	return rule.Describe()
}

// Resolve reads a field path of an object. ErrNotFound is returned when a
// relation on the way points at an object that no longer exists.
func (r *Resolver) Resolve(obj store.Handle, path string, sel LocaleSelector) (Value, error) {
	return r.resolve(nil, obj, path, sel)
}

func (r *Resolver) resolve(rule *Rule, obj store.Handle, path string, sel LocaleSelector) (Value, error) {
	class, ok := r.st.ClassOf(obj)
	if !ok {
		return Value{}, ErrNotFound
	}
	steps, err := r.compile(rule, path, class)
	if err != nil {
		return Value{}, err
	}

	cur := obj
	var v Value
	for i, s := range steps {
		if i > 0 {
			if v.Ref == store.NoHandle {
				return Value{}, ErrNotFound
			}
			cur = v.Ref
			if class, ok = r.st.ClassOf(cur); !ok {
				return Value{}, ErrNotFound
			}
		}
		switch s.kind {
		case stepPseudo:
			v = r.pseudo(cur, class, s.name)
		case stepField:
			v, err = s.acc.read(cur, sel)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return Value{}, err
				}
				return Value{}, NewResolutionError(cur, class, s.name, err)
			}
		case stepMethod:
			v, err = r.method(rule, cur, class, s.name, sel)
			if err != nil {
				return Value{}, err
			}
		}
	}
	return v, nil
}

func (r *Resolver) pseudo(h store.Handle, class, name string) Value {
	switch name {
	case PropID:
		return Value{Kind: store.KindInteger, Int: int(h)}
	case PropOwner:
		return Value{Kind: store.KindReferenceAtomic, Ref: r.st.Owner(h)}
	case PropOwningField:
		info, _ := r.st.Field(r.st.OwningField(h))
		return Value{Kind: store.KindString, Str: info.Name}
	case PropIndexInOwner:
		return Value{Kind: store.KindInteger, Int: r.st.IndexInOwner(h)}
	default:
		return Value{Kind: store.KindString, Str: class}
	}
}

func (r *Resolver) method(rule *Rule, h store.Handle, class, name string, sel LocaleSelector) (Value, error) {
	if acc := r.lookup(class, name); acc != nil {
		v, err := acc.read(h, sel)
		if err != nil && !errors.Is(err, ErrNotFound) {
			err = NewResolutionError(h, class, name, err)
		}
		return v, err
	}
	if r.methods == nil {
		return Value{}, NewConfigurationError(ruleName(rule), class, name, "field "+name+" is not declared on "+class)
	}
	raw, ok, err := r.methods.Method(h, name)
	if err != nil {
		return Value{}, NewResolutionError(h, class, name, err)
	}
	if !ok {
		return Value{}, NewConfigurationError(ruleName(rule), class, name, "field "+name+" is not declared on "+class)
	}
	return r.fromMethod(raw, sel), nil
}

func (r *Resolver) fromMethod(raw any, sel LocaleSelector) Value {
	switch t := raw.(type) {
	case nil:
		return Value{Kind: store.KindString}
	case bool:
		return Value{Kind: store.KindBoolean, Bool: t}
	case int:
		return Value{Kind: store.KindInteger, Int: t}
	case string:
		return Value{Kind: store.KindString, Str: t}
	case store.Handle:
		return Value{Kind: store.KindReferenceAtomic, Ref: t}
	case []store.Handle:
		return Value{Kind: store.KindReferenceVector, Refs: t}
	case []store.Alternative:
		v := Value{Kind: store.KindMultiString, Alts: sel.Select(t, r.locales)}
		if len(v.Alts) > 0 {
			v.Str = v.Alts[0].Text
		}
		return v
	default:
		return Value{Kind: store.KindString, Str: fmt.Sprint(t)}
	}
}

// Locales returns the store's writing-system configuration.
func (r *Resolver) Locales() store.LocaleSettings {
	return r.locales
}
