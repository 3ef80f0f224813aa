package xdump

import (
	"strconv"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/xml"
)

// identityAttr is the attribute carrying a member's identity: dst for
// reference entries, Id for embedded objects.
func identityAttr(rule *Rule) string {
	if rule.Kind == KindObjVector {
		return PropID
	}
	return "dst"
}

// embeddedNames returns the anchor element names class rules write for
// objects of class and its subclasses.
func (u *updater) embeddedNames(class, tag string) map[string]bool {
	names := make(map[string]bool)
	for _, c := range store.Descendants(u.s.st, class) {
		rule, err := u.s.catalog.FindClassRule(c, tag)
		if err != nil || rule == nil {
			continue
		}
		newWalker(u.s.catalog, c).anchorNames(rule.Children, names)
	}
	return names
}

// belongs reports whether an embedded element can be a member of obj's
// field. Objects that left the field qualify, except live objects obj owns
// through another field, which are members of that field.
func (u *updater) belongs(h, obj store.Handle, info store.FieldInfo, targets map[store.Handle]bool) bool {
	if targets[h] {
		return true
	}
	if _, ok := u.s.st.ClassOf(h); !ok {
		return true
	}
	if info.Kind.IsOwning() {
		return u.s.st.Owner(h) != obj || u.s.st.OwningField(h) == info.ID
	}
	return true
}

// ownedMembers returns the embedded object elements of a to-one field
// without a wrapper element.
func (u *updater) ownedMembers(obj store.Handle, info store.FieldInfo, rule *Rule, container *xml.Element) []*xml.Element {
	names := u.embeddedNames(info.Target, rule.Attr("tag"))
	var out []*xml.Element
	for _, el := range container.Elements() {
		h, ok := handleAttr(el, PropID)
		if !ok || !names[el.Name] {
			continue
		}
		if u.belongs(h, obj, info, nil) {
			out = append(out, el)
		}
	}
	return out
}

// members returns the current member elements of a to-many relation in
// document order.
func (u *updater) members(obj store.Handle, info store.FieldInfo, rule *Rule, holder *xml.Element, targets map[store.Handle]bool, wrapped bool) []*xml.Element {
	var out []*xml.Element
	if rule.Kind != KindObjVector {
		for _, el := range holder.ChildrenNamed(rule.Attr("name")) {
			if _, ok := el.Attr("dst"); ok {
				out = append(out, el)
			}
		}
		return out
	}

	names := u.embeddedNames(info.Target, rule.Attr("tag"))
	for _, el := range holder.Elements() {
		h, ok := handleAttr(el, PropID)
		if !ok {
			continue
		}
		if !wrapped {
			if !names[el.Name] {
				continue
			}
			if _, hasOrd := el.Attr("ord"); ordered(rule) && !hasOrd {
				continue
			}
			if !u.belongs(h, obj, info, targets) {
				continue
			}
		}
		out = append(out, el)
	}
	return out
}

// patchVector brings a to-many relation in line with source order: members
// that left are removed with everything they owned, new members are
// rendered, surviving member elements are reused as they are, and ord is
// renumbered from 0.
func (u *updater) patchVector(obj store.Handle, class string, info store.FieldInfo, m *ruleMatch, anchor, container *xml.Element) error {
	rule := m.rule
	targets, err := u.r.targets(obj, rule)
	if err != nil {
		return err
	}
	wanted := make(map[store.Handle]bool, len(targets))
	for _, h := range targets {
		wanted[h] = true
	}

	holder := container
	wrapped := rule.Kind == KindObjVector && rule.Attr("name") != ""
	if wrapped {
		if holder = container.FirstChild(rule.Attr("name")); holder == nil {
			return u.rerender(obj, class, m.classRule, anchor)
		}
	}

	members := u.members(obj, info, rule, holder, wanted, wrapped)
	if len(members) == 0 && !wrapped {
		if len(targets) == 0 {
			return nil
		}
		return u.rerender(obj, class, m.classRule, anchor)
	}

	slot := len(holder.Children)
	if len(members) > 0 {
		slot = holder.IndexOf(members[0])
	}

	// surviving elements per target in document order; each is reused for
	// at most one occurrence of its target
	attr := identityAttr(rule)
	kept := make(map[store.Handle][]*xml.Element)
	var removedEls []*xml.Element
	var removed []store.Handle
	for _, el := range members {
		h, _ := handleAttr(el, attr)
		if wanted[h] {
			kept[h] = append(kept[h], el)
			continue
		}
		removedEls = append(removedEls, el)
		removed = append(removed, h)
	}
	for _, el := range members {
		holder.RemoveChild(el)
	}

	seq := make([]xml.Node, 0, len(targets))
	n := 0
	for _, h := range targets {
		ord := -1
		if ordered(rule) {
			ord = n
		}
		if els := kept[h]; len(els) > 0 {
			el := els[0]
			kept[h] = els[1:]
			if ord >= 0 {
				el.SetAttr("ord", strconv.Itoa(ord))
			}
			seq = append(seq, el)
			n++
			continue
		}
		var wrote bool
		nodes, err := u.s.fragment(func(r *renderer) error {
			var err error
			wrote, err = r.vectorItem(rule, h, ord)
			return err
		})
		if err != nil {
			return err
		}
		if wrote {
			n++
		}
		seq = append(seq, nodes...)
	}
	for h, els := range kept {
		for _, el := range els {
			removedEls = append(removedEls, el)
			removed = append(removed, h)
		}
	}
	if rule.Kind == KindObjVector {
		removed = append(removed, identities(removedEls)...)
	}
	holder.InsertAt(slot, seq...)

	u.s.logger.Debug("vector %s.%s: %d members, %d removed", class, info.Name, len(targets), len(removedEls))
	u.invalidate()
	u.cascade(removed, info)
	if info.Kind == store.KindOwningVector && rule.Kind == KindRefVector {
		return u.fillPools(targets)
	}
	return nil
}

// fillPools renders owned objects that are only referenced at their owner
// into the catch-all collection declared for their class.
func (u *updater) fillPools(targets []store.Handle) error {
	for _, h := range targets {
		if len(u.index()[strconv.Itoa(int(h))]) > 0 {
			continue
		}
		class, ok := u.s.st.ClassOf(h)
		if !ok {
			continue
		}
		for _, p := range u.s.tmpl.Pools() {
			if !store.IsA(u.s.st, class, p.Class) {
				continue
			}
			pool := u.doc.FindNamed(p.Element)
			if pool == nil {
				continue
			}
			nodes, err := u.s.fragment(func(r *renderer) error {
				return r.object(h, "")
			})
			if err != nil {
				return err
			}
			pool.Append(nodes...)
			u.invalidate()
			break
		}
	}
	return nil
}
