package xdump

import (
	"strings"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
)

// Rule-shape queries used by the differential updater to relate template
// rules to the nodes they produced.

// isAnchor reports whether an element rule writes the object's Id on itself.
func isAnchor(rule *Rule) bool {
	if rule.Kind != KindElement && rule.Kind != KindLiteral {
		return false
	}
	for _, c := range rule.Children {
		if c.Kind == KindAttribute && c.Attr("name") == PropID && c.Attr("field") == PropID {
			return true
		}
	}
	return false
}

// walker follows call indirections without revisiting a called rule.
type walker struct {
	c       *Catalog
	class   string
	visited map[*Rule]bool
}

func newWalker(c *Catalog, class string) *walker {
	return &walker{c: c, class: class, visited: make(map[*Rule]bool)}
}

// expand returns the rules that render in place of a transparent rule: the
// children of guards and sequences, the body of a call, the instances of a
// custom expansion. ok is false for rules that produce output themselves.
func (w *walker) expand(rule *Rule) (out []*Rule, ok bool) {
	switch rule.Kind {
	case KindIf, KindIfNot, KindSequence:
		return rule.Children, true
	case KindGenerateCustom:
		insts, err := w.c.ExpandCustom(w.class, rule)
		if err != nil {
			return nil, true
		}
		return insts, true
	case KindCall:
		called, err := w.c.RuleByName(rule.Attr("name"))
		if err != nil || w.visited[called] {
			return nil, true
		}
		w.visited[called] = true
		if !rule.Bool("noWrapper", false) {
			return called.Children, true
		}
		for _, c := range called.Children {
			if c.Kind == KindElement {
				out = append(out, c.Children...)
			} else {
				out = append(out, c)
			}
		}
		return out, true
	}
	return nil, false
}

// outputNames collects the names of elements a rule list writes directly
// into its enclosing element.
func (w *walker) outputNames(rules []*Rule, names map[string]bool) {
	for _, r := range rules {
		if inner, ok := w.expand(r); ok {
			w.outputNames(inner, names)
			continue
		}
		switch r.Kind {
		case KindText, KindAttribute:
		case KindObjAtomic, KindObjVector:
			if name := r.Attr("name"); name != "" {
				names[name] = true
			}
		case KindGroup:
			w.outputNames(r.Children, names)
		default:
			if name := r.OutputName(); name != "" {
				names[name] = true
			}
		}
	}
}

// attrNames collects the attribute names a rule list contributes to its
// enclosing element.
func (w *walker) attrNames(rules []*Rule, names map[string]bool) {
	for _, r := range rules {
		if inner, ok := w.expand(r); ok {
			w.attrNames(inner, names)
			continue
		}
		switch r.Kind {
		case KindAttribute:
			names[r.Attr("name")] = true
		case KindGroup:
			w.attrNames(r.Children, names)
		}
	}
}

// anchorNames collects the names of anchor elements a class rule writes.
func (w *walker) anchorNames(rules []*Rule, names map[string]bool) {
	for _, r := range rules {
		if inner, ok := w.expand(r); ok {
			w.anchorNames(inner, names)
			continue
		}
		if r.Kind == KindElement || r.Kind == KindLiteral {
			if isAnchor(r) {
				names[r.OutputName()] = true
				continue
			}
			w.anchorNames(r.Children, names)
		}
	}
}

// fieldMatches reports whether a rule is bound to a field by its plain
// name, a relation-suffixed name, or a custom-field key.
func fieldMatches(rule *Rule, info store.FieldInfo) bool {
	f := rule.Attr("field")
	if f == "" || strings.Contains(f, ".") {
		return false
	}
	if f == info.Name || stripRelationSuffix(f) == info.Name {
		return true
	}
	return info.Custom && f == customKey(info.Class, info.Name)
}

// governs reports whether a rule of this kind can render a field of kind k.
func governs(rule RuleKind, k store.Kind) bool {
	switch rule {
	case KindAttribute:
		return k.IsScalar() || k == store.KindOwningAtomic || k == store.KindReferenceAtomic
	case KindStringElement, KindMultilingualStringElement, KindNumberElement, KindBooleanElement:
		return k.IsScalar()
	case KindRefAtomic:
		return k == store.KindReferenceAtomic || k == store.KindOwningAtomic
	case KindObjAtomic, KindGroup:
		return k == store.KindOwningAtomic || k == store.KindReferenceAtomic
	case KindRefVector, KindRefObjVector, KindObjVector:
		return k.IsVector()
	}
	return false
}

// ruleMatch is a governing rule and where its output sits relative to the
// object's anchor element.
type ruleMatch struct {
	classRule *Rule
	rule      *Rule
	// path lists element names from the anchor down to the element that
	// receives the rule's output.
	path     []string
	anchored bool
}

// find searches a class rule subtree for the rule governing info. It does
// not descend into embedded objects or groups, whose content belongs to
// other objects.
func (w *walker) find(rules []*Rule, info store.FieldInfo, path []string, anchored bool) *ruleMatch {
	for _, r := range rules {
		if inner, ok := w.expand(r); ok {
			if m := w.find(inner, info, path, anchored); m != nil {
				return m
			}
			continue
		}
		switch r.Kind {
		case KindElement, KindLiteral:
			childPath, childAnchored := append(append([]string(nil), path...), r.OutputName()), anchored
			if isAnchor(r) {
				childPath, childAnchored = nil, true
			}
			if m := w.find(r.Children, info, childPath, childAnchored); m != nil {
				return m
			}
		default:
			if governs(r.Kind, info.Kind) && fieldMatches(r, info) {
				return &ruleMatch{rule: r, path: path, anchored: anchored}
			}
		}
	}
	return nil
}
