package xdump

import (
	"strings"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
)

type classKey struct {
	class string
	tag   string
}

func (k classKey) String() string {
	if k.tag == "" {
		return k.class
	}
	return k.class + ":" + k.tag
}

// parseClassKey splits "Class:tag".
func parseClassKey(s string) classKey {
	class, tag, _ := strings.Cut(s, ":")
	return classKey{class: class, tag: tag}
}

type expansionKey struct {
	rule  *Rule
	class string
}

// Catalog resolves class rules for one session. Lookups are lazy and
// memoized; the template itself is never modified.
type Catalog struct {
	tmpl    *Template
	meta    store.Metadata
	custom  *CustomRegistry
	inherit bool
	strict  bool

	exact    map[classKey]*Rule
	resolved map[classKey]*Rule
	expanded map[expansionKey][]*Rule
}

// NewCatalog creates a catalog over a template. strict makes a missing class
// rule fatal.
func NewCatalog(t *Template, meta store.Metadata, custom *CustomRegistry, strict bool) *Catalog {
	if custom == nil {
		custom = NewCustomRegistry(meta)
	}
	return &Catalog{
		tmpl:     t,
		meta:     meta,
		custom:   custom,
		inherit:  t.InheritClassRules(),
		strict:   strict || t.RequireClassRules(),
		exact:    make(map[classKey]*Rule),
		resolved: make(map[classKey]*Rule),
		expanded: make(map[expansionKey][]*Rule),
	}
}

// Strict reports whether missing class rules are fatal.
func (c *Catalog) Strict() bool {
	return c.strict
}

// lookup scans the top-level class rules for an exact key.
func (c *Catalog) lookup(key classKey) *Rule {
	if r, ok := c.exact[key]; ok {
		return r
	}
	var found *Rule
	for _, r := range c.tmpl.classes {
		if r.Attr("name") == key.class && r.Attr("tag") == key.tag {
			found = r
			break
		}
	}
	c.exact[key] = found
	return found
}

// firstRule returns the first rule find yields along chain.
func firstRule(chain []string, find func(class string) *Rule) *Rule {
	for _, class := range chain {
		if r := find(class); r != nil {
			return r
		}
	}
	return nil
}

// FindClassRule returns the rule for an object class and tag. Without an
// exact match the ancestor chain is tried when inheritance is enabled. A
// nil rule with a nil error means the object is skipped.
func (c *Catalog) FindClassRule(class, tag string) (*Rule, error) {
	key := classKey{class: class, tag: tag}
	r, ok := c.resolved[key]
	if !ok {
		chain := []string{class}
		if c.inherit {
			chain = store.Ancestors(c.meta, class)
			if len(chain) == 0 {
				chain = []string{class}
			}
		}
		r = firstRule(chain, func(cl string) *Rule {
			return c.lookup(classKey{class: cl, tag: tag})
		})
		c.resolved[key] = r
	}
	if r == nil && c.strict {
		return nil, NewConfigurationError("", class, "", "no class rule for "+key.String())
	}
	return r, nil
}

// RuleByName returns the class rule a call names, "Class" or "Class:tag",
// independent of any object's runtime class.
func (c *Catalog) RuleByName(name string) (*Rule, error) {
	key := parseClassKey(name)
	if r := c.lookup(key); r != nil {
		return r, nil
	}
	return nil, NewConfigurationError("call "+name, key.class, "", "no class rule named "+name)
}

// ClassRules returns every class rule that can render an object of class:
// the class's own rules, untagged first, then those of its ancestors when
// inheritance is enabled.
func (c *Catalog) ClassRules(class string) []*Rule {
	chain := []string{class}
	if c.inherit {
		chain = store.Ancestors(c.meta, class)
	}
	var out []*Rule
	for _, cl := range chain {
		var tagged []*Rule
		for _, r := range c.tmpl.classes {
			if r.Attr("name") != cl {
				continue
			}
			if r.Attr("tag") == "" {
				out = append(out, r)
			} else {
				tagged = append(tagged, r)
			}
		}
		out = append(out, tagged...)
	}
	return out
}

// Covers reports whether any rule at all can render objects of class.
func (c *Catalog) Covers(class string) bool {
	return len(c.ClassRules(class)) > 0
}

// ExpandCustom returns one synthetic instance of a generateCustom rule per
// matching custom field of class. Instances are built once per rule and
// class and reused.
func (c *Catalog) ExpandCustom(class string, gc *Rule) ([]*Rule, error) {
	key := expansionKey{rule: gc, class: class}
	if out, ok := c.expanded[key]; ok {
		return out, nil
	}
	filter, ok := parseKindFilter(gc.Attr("fieldType"))
	if !ok {
		return nil, NewConfigurationError(gc.Describe(), class, "", "unknown fieldType "+gc.Attr("fieldType"))
	}

	var out []*Rule
	for _, f := range c.custom.matching(c.meta, class, gc.Attr("class"), filter) {
		repl := strings.NewReplacer(
			"${fieldName}", f.Name,
			"${label}", f.DisplayLabel(),
			"${marker}", f.Marker,
		)
		inst := &Rule{Kind: KindSequence, Name: "#sequence", parent: gc}
		for _, child := range gc.Children {
			inst.Children = append(inst.Children, child.substitute(repl, inst))
		}
		out = append(out, inst)
	}
	c.expanded[key] = out
	return out, nil
}

// CustomFields returns the session's custom-field registry.
func (c *Catalog) CustomFields() *CustomRegistry {
	return c.custom
}
