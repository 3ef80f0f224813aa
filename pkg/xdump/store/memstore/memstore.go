// Package memstore is an in-memory implementation of store.Store.
//
// It keeps classes, fields and objects in maps and supports the mutations the
// differential updater is driven by: scalar writes, vector edits, ownership
// changes and cascading deletion. Graphs can be built in code or loaded from
// YAML with Load.
package memstore

import (
	"fmt"
	"sort"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
)

type classDef struct {
	name       string
	base       string
	subclasses []string
	fields     []store.FieldID
}

type object struct {
	class    string
	owner    store.Handle
	ownField store.FieldID
	values   map[store.FieldID]any
}

// MethodFunc computes a synthetic relation value for an object.
type MethodFunc func(h store.Handle) (any, error)

// Store is a mutable in-memory object graph.
type Store struct {
	classes    map[string]*classDef
	classOrder []string
	fields     map[store.FieldID]store.FieldInfo
	nextField  store.FieldID
	objects    map[store.Handle]*object
	nextHandle store.Handle
	locales    store.LocaleSettings
	methods    map[string]map[string]MethodFunc
}

var _ store.Store = (*Store)(nil)
var _ store.MethodProvider = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		classes:    make(map[string]*classDef),
		fields:     make(map[store.FieldID]store.FieldInfo),
		nextField:  1,
		objects:    make(map[store.Handle]*object),
		nextHandle: 1,
		methods:    make(map[string]map[string]MethodFunc),
	}
}

// DefineClass declares a class. base must already be defined, or be empty.
func (s *Store) DefineClass(name, base string) error {
	if name == "" {
		return fmt.Errorf("memstore: class name is required")
	}
	if _, exists := s.classes[name]; exists {
		return fmt.Errorf("memstore: class %q already defined", name)
	}
	if base != "" {
		parent, ok := s.classes[base]
		if !ok {
			return fmt.Errorf("memstore: base class %q of %q not defined", base, name)
		}
		parent.subclasses = append(parent.subclasses, name)
	}
	s.classes[name] = &classDef{name: name, base: base}
	s.classOrder = append(s.classOrder, name)
	return nil
}

// DefineField declares a field on a class and returns its id.
func (s *Store) DefineField(class, name string, kind store.Kind, target string) (store.FieldID, error) {
	return s.defineField(store.FieldInfo{Class: class, Name: name, Kind: kind, Target: target})
}

// DefineCustomField declares a custom (extension) field.
func (s *Store) DefineCustomField(class, name, label string, kind store.Kind) (store.FieldID, error) {
	return s.defineField(store.FieldInfo{Class: class, Name: name, Kind: kind, Custom: true, Label: label})
}

func (s *Store) defineField(info store.FieldInfo) (store.FieldID, error) {
	def, ok := s.classes[info.Class]
	if !ok {
		return 0, fmt.Errorf("memstore: class %q not defined", info.Class)
	}
	if info.Name == "" {
		return 0, fmt.Errorf("memstore: field name is required on class %q", info.Class)
	}
	if _, exists := s.FieldByName(info.Class, info.Name); exists {
		return 0, fmt.Errorf("memstore: field %s.%s already defined", info.Class, info.Name)
	}
	if info.Kind == store.KindUnknown {
		return 0, fmt.Errorf("memstore: field %s.%s has no kind", info.Class, info.Name)
	}
	if info.Kind.IsObject() && info.Target == "" {
		return 0, fmt.Errorf("memstore: object field %s.%s needs a target class", info.Class, info.Name)
	}
	if info.Label == "" {
		info.Label = info.Name
	}
	info.ID = s.nextField
	s.nextField++
	s.fields[info.ID] = info
	def.fields = append(def.fields, info.ID)
	return info.ID, nil
}

// MustField returns the id of a field, panicking when it is missing.
// Intended for test fixtures.
func (s *Store) MustField(class, name string) store.FieldID {
	info, ok := s.FieldByName(class, name)
	if !ok {
		panic(fmt.Sprintf("memstore: field %s.%s not defined", class, name))
	}
	return info.ID
}

// SetLocales replaces the writing-system configuration.
func (s *Store) SetLocales(settings store.LocaleSettings) {
	s.locales = settings
}

// RegisterMethod exposes a synthetic relation method on a class and its
// subclasses.
func (s *Store) RegisterMethod(class, name string, fn MethodFunc) {
	if s.methods[class] == nil {
		s.methods[class] = make(map[string]MethodFunc)
	}
	s.methods[class][name] = fn
}

// Create makes an unowned object.
func (s *Store) Create(class string) (store.Handle, error) {
	if _, ok := s.classes[class]; !ok {
		return store.NoHandle, fmt.Errorf("memstore: class %q not defined", class)
	}
	h := s.nextHandle
	s.nextHandle++
	s.objects[h] = &object{class: class, values: make(map[store.FieldID]any)}
	return h, nil
}

// CreateOwned makes an object owned by owner through an owning field. For
// vectors the object is appended; for atomic fields any previous target is
// deleted.
func (s *Store) CreateOwned(class string, owner store.Handle, field store.FieldID) (store.Handle, error) {
	info, err := s.checkField(owner, field)
	if err != nil {
		return store.NoHandle, err
	}
	if !info.Kind.IsOwning() {
		return store.NoHandle, fmt.Errorf("memstore: field %s.%s is not owning", info.Class, info.Name)
	}
	h, err := s.Create(class)
	if err != nil {
		return store.NoHandle, err
	}
	if info.Kind == store.KindOwningVector {
		vec, _ := s.Vector(owner, field)
		err = s.SetVector(owner, field, append(vec, h))
	} else {
		err = s.SetAtomic(owner, field, h)
	}
	if err != nil {
		return store.NoHandle, err
	}
	return h, nil
}

// Delete removes an object, everything it owns, and its entry in the owner.
func (s *Store) Delete(h store.Handle) error {
	obj, ok := s.objects[h]
	if !ok {
		return store.ErrNoObject
	}
	if obj.owner != store.NoHandle {
		if owner, ok := s.objects[obj.owner]; ok {
			switch v := owner.values[obj.ownField].(type) {
			case []store.Handle:
				owner.values[obj.ownField] = without(v, h)
			case store.Handle:
				if v == h {
					delete(owner.values, obj.ownField)
				}
			}
		}
	}
	s.deleteTree(h)
	return nil
}

func (s *Store) deleteTree(h store.Handle) {
	obj, ok := s.objects[h]
	if !ok {
		return
	}
	for f, v := range obj.values {
		if !s.fields[f].Kind.IsOwning() {
			continue
		}
		switch t := v.(type) {
		case []store.Handle:
			for _, child := range t {
				s.deleteTree(child)
			}
		case store.Handle:
			s.deleteTree(t)
		}
	}
	delete(s.objects, h)
}

// SetBool writes a boolean field.
func (s *Store) SetBool(h store.Handle, f store.FieldID, v bool) error {
	return s.setScalar(h, f, store.KindBoolean, v)
}

// SetInt writes an integer field.
func (s *Store) SetInt(h store.Handle, f store.FieldID, v int) error {
	return s.setScalar(h, f, store.KindInteger, v)
}

// SetString writes a short text field.
func (s *Store) SetString(h store.Handle, f store.FieldID, v string) error {
	return s.setScalar(h, f, store.KindString, v)
}

// SetMultiString writes one alternative of a multilingual field. An empty
// text removes the alternative.
func (s *Store) SetMultiString(h store.Handle, f store.FieldID, locale, text string) error {
	info, err := s.checkField(h, f)
	if err != nil {
		return err
	}
	if info.Kind != store.KindMultiString {
		return fmt.Errorf("memstore: field %s.%s is %s, not multistring", info.Class, info.Name, info.Kind)
	}
	obj := s.objects[h]
	alts, _ := obj.values[f].([]store.Alternative)
	out := make([]store.Alternative, 0, len(alts)+1)
	replaced := false
	for _, a := range alts {
		if a.Locale == locale {
			replaced = true
			if text != "" {
				out = append(out, store.Alternative{Locale: locale, Text: text})
			}
			continue
		}
		out = append(out, a)
	}
	if !replaced && text != "" {
		out = append(out, store.Alternative{Locale: locale, Text: text})
	}
	obj.values[f] = out
	return nil
}

func (s *Store) setScalar(h store.Handle, f store.FieldID, kind store.Kind, v any) error {
	info, err := s.checkField(h, f)
	if err != nil {
		return err
	}
	if info.Kind != kind {
		return fmt.Errorf("memstore: field %s.%s is %s, not %s", info.Class, info.Name, info.Kind, kind)
	}
	s.objects[h].values[f] = v
	return nil
}

// SetAtomic writes an atomic object field. For owning fields the previous
// target is deleted and the new one is re-parented.
func (s *Store) SetAtomic(h store.Handle, f store.FieldID, target store.Handle) error {
	info, err := s.checkField(h, f)
	if err != nil {
		return err
	}
	if info.Kind != store.KindOwningAtomic && info.Kind != store.KindReferenceAtomic {
		return fmt.Errorf("memstore: field %s.%s is %s, not atomic", info.Class, info.Name, info.Kind)
	}
	obj := s.objects[h]
	if target != store.NoHandle {
		if _, ok := s.objects[target]; !ok {
			return fmt.Errorf("memstore: target %d: %w", target, store.ErrNoObject)
		}
	}
	if info.Kind == store.KindOwningAtomic {
		if prev, ok := obj.values[f].(store.Handle); ok && prev != target {
			s.deleteTree(prev)
		}
		if target != store.NoHandle {
			s.adopt(h, f, target)
		}
	}
	if target == store.NoHandle {
		delete(obj.values, f)
		return nil
	}
	obj.values[f] = target
	return nil
}

// SetVector replaces the contents of a vector field. For owning vectors the
// targets are re-parented; dropped targets stay alive until deleted.
func (s *Store) SetVector(h store.Handle, f store.FieldID, targets []store.Handle) error {
	info, err := s.checkField(h, f)
	if err != nil {
		return err
	}
	if !info.Kind.IsVector() {
		return fmt.Errorf("memstore: field %s.%s is %s, not a vector", info.Class, info.Name, info.Kind)
	}
	for _, t := range targets {
		if _, ok := s.objects[t]; !ok {
			return fmt.Errorf("memstore: target %d: %w", t, store.ErrNoObject)
		}
	}
	vec := append([]store.Handle(nil), targets...)
	s.objects[h].values[f] = vec
	if info.Kind == store.KindOwningVector {
		for _, t := range vec {
			s.adopt(h, f, t)
		}
	}
	return nil
}

func (s *Store) adopt(owner store.Handle, f store.FieldID, child store.Handle) {
	obj := s.objects[child]
	if obj.owner != store.NoHandle && (obj.owner != owner || obj.ownField != f) {
		if prev, ok := s.objects[obj.owner]; ok {
			switch v := prev.values[obj.ownField].(type) {
			case []store.Handle:
				prev.values[obj.ownField] = without(v, child)
			case store.Handle:
				if v == child {
					delete(prev.values, obj.ownField)
				}
			}
		}
	}
	obj.owner = owner
	obj.ownField = f
}

func (s *Store) checkField(h store.Handle, f store.FieldID) (store.FieldInfo, error) {
	obj, ok := s.objects[h]
	if !ok {
		return store.FieldInfo{}, fmt.Errorf("memstore: object %d: %w", h, store.ErrNoObject)
	}
	info, ok := s.fields[f]
	if !ok || !store.IsA(s, obj.class, info.Class) {
		return store.FieldInfo{}, fmt.Errorf("memstore: field %d on %s: %w", f, obj.class, store.ErrNoField)
	}
	return info, nil
}

func without(v []store.Handle, h store.Handle) []store.Handle {
	out := make([]store.Handle, 0, len(v))
	for _, x := range v {
		if x != h {
			out = append(out, x)
		}
	}
	return out
}

// Objects

func (s *Store) ClassOf(h store.Handle) (string, bool) {
	obj, ok := s.objects[h]
	if !ok {
		return "", false
	}
	return obj.class, true
}

func (s *Store) Owner(h store.Handle) store.Handle {
	if obj, ok := s.objects[h]; ok {
		return obj.owner
	}
	return store.NoHandle
}

func (s *Store) OwningField(h store.Handle) store.FieldID {
	if obj, ok := s.objects[h]; ok {
		return obj.ownField
	}
	return 0
}

func (s *Store) IndexInOwner(h store.Handle) int {
	obj, ok := s.objects[h]
	if !ok || obj.owner == store.NoHandle {
		return 0
	}
	vec, _ := s.objects[obj.owner].values[obj.ownField].([]store.Handle)
	for i, x := range vec {
		if x == h {
			return i
		}
	}
	return 0
}

// Metadata

func (s *Store) Field(id store.FieldID) (store.FieldInfo, bool) {
	info, ok := s.fields[id]
	return info, ok
}

func (s *Store) FieldByName(class, name string) (store.FieldInfo, bool) {
	for _, c := range store.Ancestors(s, class) {
		def, ok := s.classes[c]
		if !ok {
			return store.FieldInfo{}, false
		}
		for _, id := range def.fields {
			if info := s.fields[id]; info.Name == name {
				return info, true
			}
		}
	}
	return store.FieldInfo{}, false
}

func (s *Store) Fields(class string) []store.FieldInfo {
	def, ok := s.classes[class]
	if !ok {
		return nil
	}
	out := make([]store.FieldInfo, 0, len(def.fields))
	for _, id := range def.fields {
		out = append(out, s.fields[id])
	}
	return out
}

func (s *Store) CustomFields() []store.FieldInfo {
	var out []store.FieldInfo
	for _, info := range s.fields {
		if info.Custom {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) BaseClass(class string) string {
	if def, ok := s.classes[class]; ok {
		return def.base
	}
	return ""
}

func (s *Store) Subclasses(class string) []string {
	if def, ok := s.classes[class]; ok {
		return append([]string(nil), def.subclasses...)
	}
	return nil
}

func (s *Store) Classes() []string {
	return append([]string(nil), s.classOrder...)
}

// Locales

func (s *Store) Locales() store.LocaleSettings {
	return s.locales
}

// Reader

func (s *Store) Bool(h store.Handle, f store.FieldID) (bool, error) {
	v, err := s.read(h, f, store.KindBoolean)
	if err != nil || v == nil {
		return false, err
	}
	return v.(bool), nil
}

func (s *Store) Int(h store.Handle, f store.FieldID) (int, error) {
	v, err := s.read(h, f, store.KindInteger)
	if err != nil || v == nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *Store) String(h store.Handle, f store.FieldID) (string, error) {
	v, err := s.read(h, f, store.KindString)
	if err != nil || v == nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Store) MultiString(h store.Handle, f store.FieldID) ([]store.Alternative, error) {
	v, err := s.read(h, f, store.KindMultiString)
	if err != nil || v == nil {
		return nil, err
	}
	return append([]store.Alternative(nil), v.([]store.Alternative)...), nil
}

func (s *Store) Atomic(h store.Handle, f store.FieldID) (store.Handle, error) {
	v, err := s.read(h, f, store.KindOwningAtomic, store.KindReferenceAtomic)
	if err != nil || v == nil {
		return store.NoHandle, err
	}
	return v.(store.Handle), nil
}

func (s *Store) Vector(h store.Handle, f store.FieldID) ([]store.Handle, error) {
	v, err := s.read(h, f, store.KindOwningVector, store.KindReferenceVector)
	if err != nil || v == nil {
		return nil, err
	}
	return append([]store.Handle(nil), v.([]store.Handle)...), nil
}

func (s *Store) read(h store.Handle, f store.FieldID, kinds ...store.Kind) (any, error) {
	info, err := s.checkField(h, f)
	if err != nil {
		return nil, err
	}
	match := false
	for _, k := range kinds {
		if info.Kind == k {
			match = true
		}
	}
	if !match {
		return nil, fmt.Errorf("memstore: field %s.%s is %s", info.Class, info.Name, info.Kind)
	}
	return s.objects[h].values[f], nil
}

// Method implements store.MethodProvider.
func (s *Store) Method(h store.Handle, name string) (any, bool, error) {
	class, ok := s.ClassOf(h)
	if !ok {
		return nil, false, store.ErrNoObject
	}
	for _, c := range store.Ancestors(s, class) {
		if fn, ok := s.methods[c][name]; ok {
			v, err := fn(h)
			return v, true, err
		}
	}
	return nil, false, nil
}
