package xdump

import (
	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/xml"
)

// ownedClosure returns every class whose objects can be owned, directly or
// transitively, by an object of class.
func ownedClosure(meta store.Metadata, class string) []string {
	seen := map[string]bool{}
	var out []string
	queue := store.Descendants(meta, class)
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		for _, a := range store.Ancestors(meta, c) {
			for _, f := range meta.Fields(a) {
				if f.Kind.IsOwning() && f.Target != "" {
					queue = append(queue, store.Descendants(meta, f.Target)...)
				}
			}
		}
	}
	return out
}

// cascade removes what deleted objects left behind elsewhere in the
// document: their own elements and the elements of objects they owned,
// matched by the names the template gives those classes. Matches are
// collected over the whole document before any node is detached.
func (u *updater) cascade(removed []store.Handle, info store.FieldInfo) {
	dead := make(map[store.Handle]bool)
	for _, h := range removed {
		if _, ok := u.s.st.ClassOf(h); !ok && h != store.NoHandle {
			dead[h] = true
		}
	}
	if len(dead) == 0 || !info.Kind.IsOwning() {
		return
	}

	names := make(map[string]bool)
	for _, c := range ownedClosure(u.s.st, info.Target) {
		for _, rule := range u.s.catalog.ClassRules(c) {
			newWalker(u.s.catalog, c).anchorNames(rule.Children, names)
		}
	}

	var staged []*xml.Element
	u.doc.Walk(func(el *xml.Element) bool {
		h, ok := handleAttr(el, PropID)
		if !ok {
			return true
		}
		if dead[h] {
			staged = append(staged, el)
			return false
		}
		if names[el.Name] {
			if _, live := u.s.st.ClassOf(h); !live {
				staged = append(staged, el)
				return false
			}
		}
		return true
	})

	for _, el := range staged {
		el.Detach()
	}
	if len(staged) > 0 {
		u.s.logger.Debug("cascade removed %d elements", len(staged))
		u.invalidate()
	}
}
