package xdump

import (
	"io"
	"strconv"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/xml"
)

// Change names a field of an object whose value changed in the store since
// the document was rendered.
type Change struct {
	Object store.Handle
	Field  store.FieldID
}

// updater patches one output document.
type updater struct {
	s   *Session
	doc *xml.Document
	r   *renderer
	ids xml.Index
}

// ApplyChanges re-synchronizes doc, rendered earlier by this session's
// template, with the store after changes. The document is mutated in place
// and returned. Per-change coverage errors are collected into a *MultiError
// while the remaining changes are still applied; configuration and
// resolution errors abort the list.
func (s *Session) ApplyChanges(changes []Change, doc *xml.Document) (*xml.Document, error) {
	if s.tmpl.Format() != FormatMarkup {
		return doc, NewConfigurationError("template", "", "", "differential update requires the xml format")
	}
	if doc == nil {
		return nil, NewConfigurationError("", "", "", "no document to update")
	}

	u := &updater{s: s, doc: doc, r: s.newRenderer(io.Discard)}
	multi := NewMultiError()
	for _, c := range changes {
		if s.Canceled() {
			return doc, ErrCanceled
		}
		err := u.apply(c)
		if err == nil {
			continue
		}
		if IsCoverageError(err) {
			s.logger.Warn("%v", err)
			multi.Add(err)
			continue
		}
		return doc, WithContext(err, "apply change", map[string]interface{}{
			"object": c.Object,
			"field":  c.Field,
		})
	}
	return doc, multi.Err()
}

func (u *updater) index() xml.Index {
	if u.ids == nil {
		u.ids = u.doc.IndexAttr(PropID)
	}
	return u.ids
}

func (u *updater) invalidate() {
	u.ids = nil
}

func handleAttr(el *xml.Element, name string) (store.Handle, bool) {
	v, ok := el.Attr(name)
	if !ok {
		return store.NoHandle, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return store.NoHandle, false
	}
	return store.Handle(n), true
}

func (u *updater) apply(c Change) error {
	log := u.s.logger.WithFields(Fields{"object": c.Object, "field": c.Field})

	class, ok := u.s.st.ClassOf(c.Object)
	if !ok {
		log.Debug("object no longer exists, skipped")
		return nil
	}
	info, ok := u.s.st.Field(c.Field)
	if !ok {
		return NewConfigurationError("", class, strconv.Itoa(int(c.Field)), "unknown field id")
	}
	if !u.s.catalog.Covers(class) {
		return NewCoverageError(c.Object, class, info.Name)
	}

	m := u.governing(class, info)
	if m == nil {
		log.Debug("no rule renders %s.%s, skipped", class, info.Name)
		return nil
	}
	if !m.anchored {
		log.Debug("rule for %s.%s is outside the object element, skipped", class, info.Name)
		return nil
	}
	anchors := u.anchors(c.Object, class, m.classRule)
	if len(anchors) == 0 {
		log.Debug("object not rendered yet, skipped")
		return nil
	}

	log.Debug("patch %s.%s via %s", class, info.Name, m.rule.Describe())
	for _, anchor := range anchors {
		if err := u.patch(c.Object, class, info, m, anchor); err != nil {
			return err
		}
		u.invalidate()
	}
	return nil
}

// governing finds the rule rendering info for objects of class, trying the
// class's untagged rule first.
func (u *updater) governing(class string, info store.FieldInfo) *ruleMatch {
	for _, cr := range u.s.catalog.ClassRules(class) {
		w := newWalker(u.s.catalog, class)
		if m := w.find(cr.Children, info, nil, false); m != nil {
			m.classRule = cr
			return m
		}
	}
	return nil
}

// anchors returns the elements carrying the object's Id that the class
// rule writes.
func (u *updater) anchors(obj store.Handle, class string, classRule *Rule) []*xml.Element {
	all := u.index()[strconv.Itoa(int(obj))]
	names := make(map[string]bool)
	newWalker(u.s.catalog, class).anchorNames(classRule.Children, names)
	if len(names) == 0 {
		return all
	}
	var out []*xml.Element
	for _, el := range all {
		if names[el.Name] {
			out = append(out, el)
		}
	}
	return out
}

func descend(el *xml.Element, path []string) *xml.Element {
	for _, name := range path {
		if el = el.FirstChild(name); el == nil {
			return nil
		}
	}
	return el
}

func elementsOf(nodes []xml.Node) []*xml.Element {
	var out []*xml.Element
	for _, n := range nodes {
		if el, ok := n.(*xml.Element); ok {
			out = append(out, el)
		}
	}
	return out
}

func (u *updater) patch(obj store.Handle, class string, info store.FieldInfo, m *ruleMatch, anchor *xml.Element) error {
	container := descend(anchor, m.path)
	if container == nil {
		return u.rerender(obj, class, m.classRule, anchor)
	}

	switch m.rule.Kind {
	case KindAttribute:
		return u.patchAttribute(obj, m.rule, container)
	case KindRefAtomic:
		return u.patchRefAtomic(obj, class, m, anchor, container)
	case KindRefVector, KindRefObjVector, KindObjVector:
		return u.patchVector(obj, class, info, m, anchor, container)
	case KindObjAtomic:
		return u.patchObjAtomic(obj, class, info, m, anchor, container)
	case KindGroup:
		return u.patchGroup(obj, class, m, anchor, container)
	default:
		return u.patchScalar(obj, class, m, anchor, container)
	}
}

// rerender replaces the whole object element. Used when the nodes a rule
// produced cannot be placed precisely, for instance because an optional
// wrapper did not exist before.
func (u *updater) rerender(obj store.Handle, class string, classRule *Rule, anchor *xml.Element) error {
	nodes, err := u.s.fragment(func(r *renderer) error {
		return r.classRule(obj, class, classRule)
	})
	if err != nil {
		return err
	}
	if ord, ok := anchor.Attr("ord"); ok {
		if els := elementsOf(nodes); len(els) > 0 {
			els[0].SetAttr("ord", ord)
		}
	}
	u.s.logger.Debug("re-rendered %s %d", class, obj)
	anchor.ReplaceWith(nodes...)
	return nil
}

// renderRules renders rules against obj into detached nodes.
func (u *updater) renderRules(obj store.Handle, class string, rules ...*Rule) ([]xml.Node, error) {
	return u.s.fragment(func(r *renderer) error {
		return r.rules(obj, class, rules)
	})
}

// splice swaps old for nodes at the position of old's first element.
func splice(container *xml.Element, old []*xml.Element, nodes []xml.Node) {
	slot := container.IndexOf(old[0])
	for _, el := range old {
		container.RemoveChild(el)
	}
	container.InsertAt(slot, nodes...)
}

func (u *updater) patchAttribute(obj store.Handle, rule *Rule, container *xml.Element) error {
	value, err := u.r.attrValue(obj, rule)
	if err != nil {
		return err
	}
	if value == "" {
		container.RemoveAttr(rule.Attr("name"))
	} else {
		container.SetAttr(rule.Attr("name"), value)
	}
	return nil
}

// produced returns the container children a leaf rule wrote.
func produced(container *xml.Element, rule *Rule) []*xml.Element {
	name := rule.OutputName()
	var out []*xml.Element
	for _, el := range container.ChildrenNamed(name) {
		if name == "trait" && el.AttrValue("name") != rule.Attr("name") {
			continue
		}
		out = append(out, el)
	}
	return out
}

// patchScalar rewrites the elements of a string, multilingual, number or
// boolean rule. When the shape is unchanged the existing elements are
// updated in place.
func (u *updater) patchScalar(obj store.Handle, class string, m *ruleMatch, anchor, container *xml.Element) error {
	nodes, err := u.renderRules(obj, class, m.rule)
	if err != nil {
		return err
	}
	fresh := elementsOf(nodes)
	old := produced(container, m.rule)

	switch {
	case len(old) == len(fresh) && len(old) > 0:
		for i, el := range old {
			el.Attrs = fresh[i].Attrs
			el.MoveChildren(fresh[i])
		}
	case len(old) > 0:
		splice(container, old, nodes)
	case len(fresh) > 0:
		return u.rerender(obj, class, m.classRule, anchor)
	}
	return nil
}

// patchRefAtomic retargets a reference in place.
func (u *updater) patchRefAtomic(obj store.Handle, class string, m *ruleMatch, anchor, container *xml.Element) error {
	v, ok, err := u.r.readPresent(obj, m.rule, SelectBestAnalysis)
	if err != nil {
		return err
	}
	target := store.NoHandle
	if ok {
		target = v.Ref
	}

	var old []*xml.Element
	for _, el := range produced(container, m.rule) {
		if _, has := el.Attr("dst"); has {
			old = append(old, el)
		}
	}
	switch {
	case len(old) > 0 && target == store.NoHandle:
		for _, el := range old {
			container.RemoveChild(el)
		}
	case len(old) > 0:
		old[0].SetAttr("dst", strconv.Itoa(int(target)))
		for _, el := range old[1:] {
			container.RemoveChild(el)
		}
	case target != store.NoHandle:
		return u.rerender(obj, class, m.classRule, anchor)
	}
	return nil
}

// patchObjAtomic re-renders an embedded to-one target.
func (u *updater) patchObjAtomic(obj store.Handle, class string, info store.FieldInfo, m *ruleMatch, anchor, container *xml.Element) error {
	nodes, err := u.renderRules(obj, class, m.rule)
	if err != nil {
		return err
	}

	var old []*xml.Element
	if name := m.rule.Attr("name"); name != "" {
		if el := container.FirstChild(name); el != nil {
			old = []*xml.Element{el}
		}
	} else {
		old = u.ownedMembers(obj, info, m.rule, container)
	}
	if len(old) == 0 {
		if len(elementsOf(nodes)) > 0 {
			return u.rerender(obj, class, m.classRule, anchor)
		}
		return nil
	}

	removed := identities(old)
	splice(container, old, nodes)
	u.cascade(removed, info)
	return nil
}

// patchGroup replaces exactly the nodes and attributes a transparent group
// contributed to its container.
func (u *updater) patchGroup(obj store.Handle, class string, m *ruleMatch, anchor, container *xml.Element) error {
	w := newWalker(u.s.catalog, class)
	names := make(map[string]bool)
	w.outputNames(m.rule.Children, names)
	attrs := make(map[string]bool)
	w.attrNames(m.rule.Children, attrs)

	nodes, err := u.renderRules(obj, class, m.rule)
	if err != nil {
		return err
	}
	fresh, err := u.r.collectAttrs(obj, class, []*Rule{m.rule}, nil)
	if err != nil {
		return err
	}
	for name := range attrs {
		container.RemoveAttr(name)
	}
	for _, a := range fresh {
		container.SetAttr(a.Name, a.Value)
	}

	var old []*xml.Element
	for _, el := range container.Elements() {
		if names[el.Name] {
			old = append(old, el)
		}
	}
	if len(old) == 0 {
		if len(elementsOf(nodes)) > 0 {
			return u.rerender(obj, class, m.classRule, anchor)
		}
		return nil
	}
	splice(container, old, nodes)
	return nil
}

// identities lists the objects embedded in removed subtrees.
func identities(els []*xml.Element) []store.Handle {
	var out []store.Handle
	for _, el := range els {
		el.Walk(func(e *xml.Element) bool {
			if h, ok := handleAttr(e, PropID); ok {
				out = append(out, h)
			}
			return true
		})
	}
	return out
}
