package xdump

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/render"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/xml"
)

// Format selects the output dialect of a template.
type Format int

const (
	// FormatMarkup is the hierarchical markup dialect.
	FormatMarkup Format = iota
	// FormatSF is the line-oriented backslash-marker dialect.
	FormatSF
)

func (f Format) String() string {
	if f == FormatSF {
		return "sf"
	}
	return "xml"
}

// Pool declares the catch-all collection element that holds objects of a
// class outside their structural owner.
type Pool struct {
	Class   string
	Element string
}

// Template is a parsed and validated template document. It is immutable
// and may be shared by sequential sessions.
type Template struct {
	root          *Rule
	format        Format
	inherit       bool
	require       bool
	normalization render.Normalizer
	rootElement   string
	classes       []*Rule
	pools         []Pool
}

// ParseTemplate reads and validates a template document.
func ParseTemplate(r io.Reader) (*Template, error) {
	doc, err := xml.ParseWithOptions(r, xml.ParseOptions{TrimWhitespace: true})
	if err != nil {
		return nil, NewTemplateError("cannot parse template", "", err)
	}
	root := doc.Root()
	if root == nil || root.Name != "template" {
		return nil, NewTemplateError("root element must be <template>", "", nil)
	}

	t := &Template{
		root: &Rule{Kind: KindLiteral, Name: root.Name, Attrs: append([]xml.Attr(nil), root.Attrs...)},
	}

	switch format := strings.ToLower(t.root.Attr("format")); format {
	case "", "xml":
		t.format = FormatMarkup
	case "sf":
		t.format = FormatSF
	default:
		return nil, NewConfigurationError("template", "", "", fmt.Sprintf("unknown format %q", format))
	}
	t.inherit = t.root.Bool("inheritClassRules", true)
	t.require = t.root.Bool("requireClassRules", false)
	t.rootElement = t.root.Attr("root")
	if t.normalization, err = render.ParseNormalization(t.root.Attr("normalize")); err != nil {
		return nil, NewConfigurationError("template", "", "", err.Error())
	}

	seen := make(map[classKey]bool)
	for _, c := range root.Elements() {
		rule, err := buildRule(c, t.root)
		if err != nil {
			return nil, err
		}
		t.root.Children = append(t.root.Children, rule)

		switch rule.Kind {
		case KindClass:
			key := classKey{class: rule.Attr("name"), tag: rule.Attr("tag")}
			if seen[key] {
				return nil, NewConfigurationError(rule.Describe(), key.class, "", "duplicate class rule "+key.String())
			}
			seen[key] = true
			t.classes = append(t.classes, rule)
		case KindPool:
			t.pools = append(t.pools, Pool{Class: rule.Attr("class"), Element: rule.Attr("element")})
		default:
			return nil, NewConfigurationError(rule.Describe(), "", "", "only class and pool rules are allowed at the top level")
		}
	}
	return t, nil
}

// ParseTemplateString is a convenience wrapper around ParseTemplate.
func ParseTemplateString(s string) (*Template, error) {
	return ParseTemplate(strings.NewReader(s))
}

// ParseTemplateFile reads a template from disk.
func ParseTemplateFile(path string) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewTemplateError("cannot open template", path, err)
	}
	defer f.Close()

	t, err := ParseTemplate(f)
	if err != nil {
		return nil, WithContext(err, "parse template", map[string]interface{}{"path": path})
	}
	return t, nil
}

// Format returns the output dialect.
func (t *Template) Format() Format { return t.format }

// InheritClassRules reports whether ancestor fallback is enabled.
func (t *Template) InheritClassRules() bool { return t.inherit }

// RequireClassRules reports whether a visited object without a class rule
// is fatal.
func (t *Template) RequireClassRules() bool { return t.require }

// Normalization returns the emission-time normalization form.
func (t *Template) Normalization() render.Normalizer { return t.normalization }

// RootElement returns the document element wrapping markup output, if any.
func (t *Template) RootElement() string { return t.rootElement }

// Classes returns the top-level class rules in document order.
func (t *Template) Classes() []*Rule { return t.classes }

// Pools returns the pool declarations in document order.
func (t *Template) Pools() []Pool { return t.pools }
