package xml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ParseOptions controls whitespace handling.
type ParseOptions struct {
	// TrimWhitespace drops every whitespace-only text node that shares its
	// parent with an element or comment. Used for hand-written templates.
	// Without it only newline-only separators are dropped, which is exactly
	// what WriteTo inserts.
	TrimWhitespace bool
}

// Parse reads a document produced by WriteTo or any well-formed markup.
func Parse(r io.Reader) (*Document, error) {
	return ParseWithOptions(r, ParseOptions{})
}

// ParseWithOptions reads a document using the given whitespace policy.
func ParseWithOptions(r io.Reader, opts ParseOptions) (*Document, error) {
	doc := NewDocument(false)
	if err := parseInto(r, doc.top, opts, func() { doc.Declaration = true }); err != nil {
		return nil, err
	}
	return doc, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// ParseFragment reads a sequence of top-level nodes that need not have a
// single root.
func ParseFragment(data []byte) ([]Node, error) {
	top := &Element{}
	if err := parseInto(bytes.NewReader(data), top, ParseOptions{}, func() {}); err != nil {
		return nil, err
	}
	nodes := append([]Node(nil), top.Children...)
	top.ClearChildren()
	return nodes, nil
}

// parseInto walks raw tokens so prefixed names ("xml:lang") are kept
// verbatim rather than resolved to namespace URLs.
func parseInto(r io.Reader, top *Element, opts ParseOptions, onDecl func()) error {
	d := xml.NewDecoder(r)
	d.Strict = true
	stack := []*Element{top}

	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to parse document: %w", err)
		}
		cur := stack[len(stack)-1]

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: qualified(t.Name)}
			for _, a := range t.Attr {
				el.Attrs = append(el.Attrs, Attr{Name: qualified(a.Name), Value: a.Value})
			}
			cur.Children = append(cur.Children, el)
			el.parent = cur
			stack = append(stack, el)
		case xml.EndElement:
			name := qualified(t.Name)
			if len(stack) == 1 || cur.Name != name {
				return fmt.Errorf("failed to parse document: unexpected end element </%s>", name)
			}
			trimSeparators(cur, opts)
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 1 {
				if strings.TrimSpace(string(t)) != "" {
					return fmt.Errorf("failed to parse document: text outside root element")
				}
				continue
			}
			cur.Children = append(cur.Children, &Text{Value: string(t)})
		case xml.Comment:
			cur.Children = append(cur.Children, &Comment{Value: string(t)})
		case xml.ProcInst:
			if t.Target == "xml" {
				onDecl()
			}
		}
	}
	if len(stack) != 1 {
		return fmt.Errorf("failed to parse document: unclosed element <%s>", stack[len(stack)-1].Name)
	}
	mergeText(top)
	return nil
}

func qualified(n xml.Name) string {
	if n.Space != "" {
		return n.Space + ":" + n.Local
	}
	return n.Local
}

// trimSeparators removes layout-only text from elements that also hold
// elements or comments, and merges adjacent text nodes.
func trimSeparators(e *Element, opts ParseOptions) {
	mergeText(e)
	structural := false
	for _, c := range e.Children {
		if _, ok := c.(*Text); !ok {
			structural = true
			break
		}
	}
	if !structural {
		return
	}
	layoutOnly := true
	for _, c := range e.Children {
		if t, ok := c.(*Text); ok && !isSeparator(t.Value, opts) {
			layoutOnly = false
			break
		}
	}
	if !layoutOnly {
		return
	}
	kept := e.Children[:0]
	for _, c := range e.Children {
		if _, ok := c.(*Text); !ok {
			kept = append(kept, c)
		}
	}
	e.Children = kept
}

func isSeparator(s string, opts ParseOptions) bool {
	if opts.TrimWhitespace {
		return strings.TrimSpace(s) == ""
	}
	return strings.Trim(s, "\n") == ""
}

func mergeText(e *Element) {
	out := e.Children[:0]
	for _, c := range e.Children {
		if t, ok := c.(*Text); ok && len(out) > 0 {
			if prev, ok := out[len(out)-1].(*Text); ok {
				prev.Value += t.Value
				continue
			}
		}
		out = append(out, c)
	}
	e.Children = out
}
