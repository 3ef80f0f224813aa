package xdump

import (
	"strconv"
	"strings"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/xml"
)

// RuleKind is the closed set of template rule kinds. Element names that are
// not recognised parse as KindLiteral.
type RuleKind int

const (
	KindLiteral RuleKind = iota
	KindText
	KindClass
	KindPool
	KindElement
	KindAttribute
	KindCall
	KindIf
	KindIfNot
	KindStringElement
	KindMultilingualStringElement
	KindNumberElement
	KindBooleanElement
	KindRefAtomic
	KindRefVector
	KindRefObjVector
	KindObjAtomic
	KindObjVector
	KindGroup
	KindGenerateCustom
	// KindSequence is produced by generateCustom expansion only: one
	// instance per custom field, rendering its children in order.
	KindSequence
)

var ruleKindNames = map[string]RuleKind{
	"class":                     KindClass,
	"pool":                      KindPool,
	"element":                   KindElement,
	"attribute":                 KindAttribute,
	"call":                      KindCall,
	"if":                        KindIf,
	"ifnot":                     KindIfNot,
	"stringElement":             KindStringElement,
	"multilingualStringElement": KindMultilingualStringElement,
	"numberElement":             KindNumberElement,
	"booleanElement":            KindBooleanElement,
	"refAtomic":                 KindRefAtomic,
	"refVector":                 KindRefVector,
	"refObjVector":              KindRefObjVector,
	"objAtomic":                 KindObjAtomic,
	"objVector":                 KindObjVector,
	"group":                     KindGroup,
	"generateCustom":            KindGenerateCustom,
}

// ParseRuleKind maps a template element name to its kind.
func ParseRuleKind(name string) RuleKind {
	if k, ok := ruleKindNames[name]; ok {
		return k
	}
	return KindLiteral
}

func (k RuleKind) String() string {
	switch k {
	case KindText:
		return "#text"
	case KindSequence:
		return "#sequence"
	case KindLiteral:
		return "literal"
	}
	for name, kind := range ruleKindNames {
		if kind == k {
			return name
		}
	}
	return "unknown"
}

// requiredAttrs lists, per kind, groups of attribute names of which at least
// one must be present.
var requiredAttrs = map[RuleKind][][]string{
	KindClass:                     {{"name"}},
	KindPool:                      {{"class"}, {"element"}},
	KindElement:                   {{"name"}},
	KindAttribute:                 {{"name"}, {"field", "value"}},
	KindCall:                      {{"name"}},
	KindIf:                        {{"flag", "field"}},
	KindIfNot:                     {{"flag", "field"}},
	KindStringElement:             {{"name"}, {"field"}},
	KindMultilingualStringElement: {{"name"}, {"field"}},
	KindNumberElement:             {{"name"}, {"field"}},
	KindBooleanElement:            {{"name"}, {"field"}},
	KindRefAtomic:                 {{"name"}, {"field"}},
	KindRefVector:                 {{"name"}, {"field"}},
	KindRefObjVector:              {{"name"}, {"field"}},
	KindObjAtomic:                 {{"field"}},
	KindObjVector:                 {{"field"}},
	KindGroup:                     {{"field"}},
	KindGenerateCustom:            {{"fieldType"}},
}

// Rule is one node of a prepared template.
type Rule struct {
	Kind RuleKind
	// Name is the template element name; literal rules emit it verbatim.
	Name     string
	Attrs    []xml.Attr
	Text     string
	Children []*Rule
	parent   *Rule
}

// Parent returns the enclosing rule, nil for the template root.
func (r *Rule) Parent() *Rule {
	return r.parent
}

// Attr returns an attribute value, "" when absent.
func (r *Rule) Attr(name string) string {
	v, _ := r.LookupAttr(name)
	return v
}

// LookupAttr returns an attribute value and whether it is present.
func (r *Rule) LookupAttr(name string) (string, bool) {
	for _, a := range r.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Bool reads a boolean attribute, def when absent.
func (r *Rule) Bool(name string, def bool) bool {
	v, ok := r.LookupAttr(name)
	if !ok {
		return def
	}
	return parseBool(v)
}

// Int reads an integer attribute.
func (r *Rule) Int(name string) (int, bool, error) {
	v, ok := r.LookupAttr(name)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, true, NewConfigurationError(r.Describe(), "", "", "attribute "+name+" is not an integer: "+v)
	}
	return n, true, nil
}

// Describe names a rule in error messages.
func (r *Rule) Describe() string {
	if name := r.Attr("name"); name != "" {
		return r.Name + " " + name
	}
	if field := r.Attr("field"); field != "" {
		return r.Name + " " + field
	}
	return r.Name
}

// OutputName is the element name a rule contributes to markup output.
func (r *Rule) OutputName() string {
	switch r.Kind {
	case KindLiteral:
		return r.Name
	case KindNumberElement, KindBooleanElement:
		if r.Bool("trait", false) {
			return "trait"
		}
	}
	return r.Attr("name")
}

func (r *Rule) progress() bool {
	return r.Bool("progress", false)
}

func (r *Rule) validate() error {
	for _, group := range requiredAttrs[r.Kind] {
		found := false
		for _, name := range group {
			if _, ok := r.LookupAttr(name); ok {
				found = true
				break
			}
		}
		if !found {
			return NewConfigurationError(r.Describe(), "", "",
				"missing required attribute "+strings.Join(group, " or "))
		}
	}
	return nil
}

// buildRule converts a parsed template element and its subtree.
func buildRule(e *xml.Element, parent *Rule) (*Rule, error) {
	r := &Rule{
		Kind:   ParseRuleKind(e.Name),
		Name:   e.Name,
		Attrs:  append([]xml.Attr(nil), e.Attrs...),
		parent: parent,
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	for _, c := range e.Children {
		switch n := c.(type) {
		case *xml.Element:
			child, err := buildRule(n, r)
			if err != nil {
				return nil, err
			}
			r.Children = append(r.Children, child)
		case *xml.Text:
			r.Children = append(r.Children, &Rule{Kind: KindText, Name: "#text", Text: n.Value, parent: r})
		}
	}
	return r, nil
}

// substitute deep-copies a rule, replacing placeholders in attribute values
// and literal text.
func (r *Rule) substitute(repl *strings.Replacer, parent *Rule) *Rule {
	out := &Rule{
		Kind:   r.Kind,
		Name:   r.Name,
		Text:   repl.Replace(r.Text),
		parent: parent,
	}
	for _, a := range r.Attrs {
		out.Attrs = append(out.Attrs, xml.Attr{Name: a.Name, Value: repl.Replace(a.Value)})
	}
	for _, c := range r.Children {
		out.Children = append(out.Children, c.substitute(repl, out))
	}
	return out
}
