package xml

import (
	"sort"
	"strings"
)

// Node is any item that can appear in an element's child list.
type Node interface {
	isNode()
}

// Attr is a single attribute. Names keep their prefix ("xml:lang").
type Attr struct {
	Name  string
	Value string
}

// Element is a markup element with ordered children.
type Element struct {
	Name     string
	Attrs    []Attr
	Children []Node
	parent   *Element
}

// Text is character data, stored unescaped.
type Text struct {
	Value string
}

// Comment is a markup comment.
type Comment struct {
	Value string
}

func (*Element) isNode() {}
func (*Text) isNode()    {}
func (*Comment) isNode() {}

// NewElement creates a detached element.
func NewElement(name string, attrs ...Attr) *Element {
	return &Element{Name: name, Attrs: attrs}
}

// Parent returns the containing element, nil for detached nodes and for
// children of a document container.
func (e *Element) Parent() *Element {
	if e.parent != nil && e.parent.Name == "" {
		return nil
	}
	return e.parent
}

// Attr returns the value of an attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrValue returns the value of an attribute or "".
func (e *Element) AttrValue(name string) string {
	v, _ := e.Attr(name)
	return v
}

// SetAttr adds or replaces an attribute.
func (e *Element) SetAttr(name, value string) {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
}

// RemoveAttr deletes an attribute; it reports whether one was present.
func (e *Element) RemoveAttr(name string) bool {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs = append(e.Attrs[:i], e.Attrs[i+1:]...)
			return true
		}
	}
	return false
}

// Elements returns the child elements in order.
func (e *Element) Elements() []*Element {
	var out []*Element
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok {
			out = append(out, el)
		}
	}
	return out
}

// FirstChild returns the first child element with the given name.
func (e *Element) FirstChild(name string) *Element {
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok && el.Name == name {
			return el
		}
	}
	return nil
}

// ChildrenNamed returns every child element with the given name.
func (e *Element) ChildrenNamed(name string) []*Element {
	var out []*Element
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok && el.Name == name {
			out = append(out, el)
		}
	}
	return out
}

// Text returns the concatenated text of the direct text children.
func (e *Element) Text() string {
	var b strings.Builder
	for _, c := range e.Children {
		if t, ok := c.(*Text); ok {
			b.WriteString(t.Value)
		}
	}
	return b.String()
}

// SetText replaces all children with a single text node.
func (e *Element) SetText(s string) {
	e.ClearChildren()
	if s != "" {
		e.Append(&Text{Value: s})
	}
}

// IndexOf returns the position of a direct child, or -1.
func (e *Element) IndexOf(n Node) int {
	for i, c := range e.Children {
		if c == n {
			return i
		}
	}
	return -1
}

// Append adds nodes at the end of the child list.
func (e *Element) Append(nodes ...Node) {
	e.InsertAt(len(e.Children), nodes...)
}

// InsertAt inserts nodes before position i. Nodes still attached elsewhere are
// detached first.
func (e *Element) InsertAt(i int, nodes ...Node) {
	for _, n := range nodes {
		if el, ok := n.(*Element); ok && el.parent != nil {
			if el.parent == e {
				if j := e.IndexOf(el); j >= 0 && j < i {
					i--
				}
			}
			el.Detach()
		}
	}
	if i < 0 {
		i = 0
	}
	if i > len(e.Children) {
		i = len(e.Children)
	}
	tail := append([]Node(nil), e.Children[i:]...)
	e.Children = append(append(e.Children[:i], nodes...), tail...)
	for _, n := range nodes {
		if el, ok := n.(*Element); ok {
			el.parent = e
		}
	}
}

// InsertBefore inserts nodes before ref, or appends them when ref is not a
// child.
func (e *Element) InsertBefore(ref Node, nodes ...Node) {
	i := e.IndexOf(ref)
	if i < 0 {
		i = len(e.Children)
	}
	e.InsertAt(i, nodes...)
}

// RemoveChild detaches a direct child; it reports whether it was found.
func (e *Element) RemoveChild(n Node) bool {
	i := e.IndexOf(n)
	if i < 0 {
		return false
	}
	e.Children = append(e.Children[:i], e.Children[i+1:]...)
	if el, ok := n.(*Element); ok {
		el.parent = nil
	}
	return true
}

// Replace substitutes old with nodes at the same position.
func (e *Element) Replace(old Node, nodes ...Node) bool {
	i := e.IndexOf(old)
	if i < 0 {
		return false
	}
	e.RemoveChild(old)
	e.InsertAt(i, nodes...)
	return true
}

// ReplaceWith substitutes the element in its parent, which may be a document
// container. It reports false for detached elements.
func (e *Element) ReplaceWith(nodes ...Node) bool {
	if e.parent == nil {
		return false
	}
	return e.parent.Replace(e, nodes...)
}

// MoveChildren replaces e's children with those of src, leaving src empty.
func (e *Element) MoveChildren(src *Element) {
	nodes := append([]Node(nil), src.Children...)
	src.ClearChildren()
	e.ClearChildren()
	e.Append(nodes...)
}

// ClearChildren removes all children.
func (e *Element) ClearChildren() {
	for _, c := range e.Children {
		if el, ok := c.(*Element); ok {
			el.parent = nil
		}
	}
	e.Children = nil
}

// Detach removes the element from its parent.
func (e *Element) Detach() {
	if e.parent != nil {
		e.parent.RemoveChild(e)
	}
}

// Walk visits e and its descendant elements depth-first in document order.
// Returning false from fn skips the subtree below the visited element.
func (e *Element) Walk(fn func(*Element) bool) {
	if !fn(e) {
		return
	}
	for _, c := range e.Elements() {
		c.Walk(fn)
	}
}

// Clone deep-copies the element; the copy is detached.
func (e *Element) Clone() *Element {
	out := &Element{Name: e.Name, Attrs: append([]Attr(nil), e.Attrs...)}
	for _, c := range e.Children {
		switch n := c.(type) {
		case *Element:
			out.Append(n.Clone())
		case *Text:
			out.Append(&Text{Value: n.Value})
		case *Comment:
			out.Append(&Comment{Value: n.Value})
		}
	}
	return out
}

// SortedAttrs returns a copy of attrs ordered by name. Output uses this
// order so equal trees serialize identically.
func SortedAttrs(attrs []Attr) []Attr {
	out := append([]Attr(nil), attrs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Document is a parsed or rendered markup document. Its top-level nodes live
// in a nameless container element.
type Document struct {
	Declaration bool
	top         *Element
}

// NewDocument creates an empty document.
func NewDocument(declaration bool) *Document {
	return &Document{Declaration: declaration, top: &Element{}}
}

// Top returns the container holding the top-level nodes.
func (d *Document) Top() *Element {
	return d.top
}

// Root returns the first top-level element.
func (d *Document) Root() *Element {
	for _, c := range d.top.Children {
		if el, ok := c.(*Element); ok {
			return el
		}
	}
	return nil
}

// Walk visits every element of the document in document order.
func (d *Document) Walk(fn func(*Element) bool) {
	for _, el := range d.top.Elements() {
		el.Walk(fn)
	}
}

// FindAll returns every element accepted by pred, in document order.
func (d *Document) FindAll(pred func(*Element) bool) []*Element {
	var out []*Element
	d.Walk(func(el *Element) bool {
		if pred(el) {
			out = append(out, el)
		}
		return true
	})
	return out
}

// FindFirst returns the first element whose attribute has the given value.
func (d *Document) FindFirst(attr, value string) *Element {
	var found *Element
	d.Walk(func(el *Element) bool {
		if found != nil {
			return false
		}
		if v, ok := el.Attr(attr); ok && v == value {
			found = el
			return false
		}
		return true
	})
	return found
}

// FindNamed returns the first element with the given name.
func (d *Document) FindNamed(name string) *Element {
	var found *Element
	d.Walk(func(el *Element) bool {
		if found != nil {
			return false
		}
		if el.Name == name {
			found = el
			return false
		}
		return true
	})
	return found
}

// Index maps attribute values to the elements carrying them.
type Index map[string][]*Element

// IndexAttr builds an index of all elements carrying attr.
func (d *Document) IndexAttr(attr string) Index {
	idx := make(Index)
	d.Walk(func(el *Element) bool {
		if v, ok := el.Attr(attr); ok {
			idx[v] = append(idx[v], el)
		}
		return true
	})
	return idx
}
