package memstore

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
)

// graphFile is the YAML layout accepted by Load.
//
//	locales:
//	  vernacular: [fr]
//	  analysis: [en]
//	classes:
//	  - name: Word
//	    fields:
//	      - {name: Form, kind: multistring}
//	      - {name: Senses, kind: owningVector, target: Sense}
//	customFields:
//	  - {class: Word, name: Note, label: Note, kind: string}
//	objects:
//	  - id: 1
//	    class: Word
//	    values:
//	      Form: {fr: maison}
//	      Senses: [2, 3]
type graphFile struct {
	Locales struct {
		Vernacular []string          `yaml:"vernacular"`
		Analysis   []string          `yaml:"analysis"`
		Labels     map[string]string `yaml:"labels"`
	} `yaml:"locales"`
	Classes []struct {
		Name   string      `yaml:"name"`
		Base   string      `yaml:"base"`
		Fields []fieldSpec `yaml:"fields"`
	} `yaml:"classes"`
	CustomFields []struct {
		Class     string `yaml:"class"`
		fieldSpec `yaml:",inline"`
	} `yaml:"customFields"`
	Objects []struct {
		ID     int                  `yaml:"id"`
		Class  string               `yaml:"class"`
		Values map[string]yaml.Node `yaml:"values"`
	} `yaml:"objects"`
}

type fieldSpec struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Target string `yaml:"target"`
	Label  string `yaml:"label"`
}

// LoadFile reads a YAML graph from disk.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memstore: open graph: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load builds a store from a YAML graph description. Object ids in the file
// become handles; ownership is derived from owning field values.
func Load(r io.Reader) (*Store, error) {
	var file graphFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("memstore: decode graph: %w", err)
	}

	s := New()
	s.SetLocales(store.LocaleSettings{
		Vernacular: file.Locales.Vernacular,
		Analysis:   file.Locales.Analysis,
		Labels:     file.Locales.Labels,
	})

	for _, c := range file.Classes {
		if err := s.DefineClass(c.Name, c.Base); err != nil {
			return nil, err
		}
	}
	for _, c := range file.Classes {
		for _, f := range c.Fields {
			kind, ok := store.ParseKind(f.Kind)
			if !ok {
				return nil, fmt.Errorf("memstore: field %s.%s: unknown kind %q", c.Name, f.Name, f.Kind)
			}
			id, err := s.DefineField(c.Name, f.Name, kind, f.Target)
			if err != nil {
				return nil, err
			}
			if f.Label != "" {
				info := s.fields[id]
				info.Label = f.Label
				s.fields[id] = info
			}
		}
	}
	for _, cf := range file.CustomFields {
		kind, ok := store.ParseKind(cf.Kind)
		if !ok {
			return nil, fmt.Errorf("memstore: custom field %s.%s: unknown kind %q", cf.Class, cf.Name, cf.Kind)
		}
		if _, err := s.DefineCustomField(cf.Class, cf.Name, cf.Label, kind); err != nil {
			return nil, err
		}
	}

	for _, o := range file.Objects {
		if o.ID <= 0 {
			return nil, fmt.Errorf("memstore: object ids must be positive, got %d", o.ID)
		}
		h := store.Handle(o.ID)
		if _, exists := s.objects[h]; exists {
			return nil, fmt.Errorf("memstore: duplicate object id %d", o.ID)
		}
		if _, ok := s.classes[o.Class]; !ok {
			return nil, fmt.Errorf("memstore: object %d: class %q not defined", o.ID, o.Class)
		}
		s.objects[h] = &object{class: o.Class, values: make(map[store.FieldID]any)}
		if h >= s.nextHandle {
			s.nextHandle = h + 1
		}
	}

	for _, o := range file.Objects {
		h := store.Handle(o.ID)
		names := make([]string, 0, len(o.Values))
		for name := range o.Values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			node := o.Values[name]
			if err := s.loadValue(h, o.Class, name, &node); err != nil {
				return nil, fmt.Errorf("memstore: object %d field %s: %w", o.ID, name, err)
			}
		}
	}
	return s, nil
}

func (s *Store) loadValue(h store.Handle, class, name string, node *yaml.Node) error {
	info, ok := s.FieldByName(class, name)
	if !ok {
		return store.ErrNoField
	}
	switch info.Kind {
	case store.KindBoolean:
		var v bool
		if err := node.Decode(&v); err != nil {
			return err
		}
		return s.SetBool(h, info.ID, v)
	case store.KindInteger:
		var v int
		if err := node.Decode(&v); err != nil {
			return err
		}
		return s.SetInt(h, info.ID, v)
	case store.KindString:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		return s.SetString(h, info.ID, v)
	case store.KindMultiString:
		// a mapping node keeps the author's locale order
		if node.Kind != yaml.MappingNode {
			return fmt.Errorf("multistring value must be a mapping of locale to text")
		}
		for i := 0; i+1 < len(node.Content); i += 2 {
			if err := s.SetMultiString(h, info.ID, node.Content[i].Value, node.Content[i+1].Value); err != nil {
				return err
			}
		}
		return nil
	case store.KindOwningAtomic, store.KindReferenceAtomic:
		var v int
		if err := node.Decode(&v); err != nil {
			return err
		}
		return s.SetAtomic(h, info.ID, store.Handle(v))
	case store.KindOwningVector, store.KindReferenceVector:
		var v []int
		if err := node.Decode(&v); err != nil {
			return err
		}
		targets := make([]store.Handle, len(v))
		for i, x := range v {
			targets[i] = store.Handle(x)
		}
		return s.SetVector(h, info.ID, targets)
	default:
		return fmt.Errorf("unsupported kind %s", info.Kind)
	}
}
