package xml

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Declaration is written at the top of documents that carry one.
const Declaration = `<?xml version="1.0" encoding="utf-8"?>`

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"\r", "&#xD;",
)

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"\n", "&#xA;",
	"\r", "&#xD;",
	"\t", "&#x9;",
)

// EscapeText escapes character data.
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// EscapeAttr escapes an attribute value for use inside double quotes.
func EscapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

// EscapeComment makes s safe inside <!-- -->.
func EscapeComment(s string) string {
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "- -")
	}
	if strings.HasSuffix(s, "-") {
		s += " "
	}
	return s
}

// WriteStartTag writes "<name a=..." with sorted attributes and without the
// closing bracket.
func WriteStartTag(w io.Writer, name string, attrs []Attr) error {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(name)
	for _, a := range SortedAttrs(attrs) {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		b.WriteString(EscapeAttr(a.Value))
		b.WriteByte('"')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// elementOnly reports whether an element's children are laid out one per
// line: it has children and none of them is text.
func elementOnly(e *Element) bool {
	if len(e.Children) == 0 {
		return false
	}
	for _, c := range e.Children {
		if _, ok := c.(*Text); ok {
			return false
		}
	}
	return true
}

// WriteTo serializes the document. The layout matches what the render
// engine streams: no indentation, a newline after the declaration, after
// every start tag of an element-only element, and after every element or
// comment that sits in element-only context.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriter(w)}
	if d.Declaration {
		io.WriteString(cw, Declaration+"\n")
	}
	for _, c := range d.top.Children {
		writeNode(cw, c, true)
	}
	if cw.err == nil {
		cw.err = cw.w.(*bufio.Writer).Flush()
	}
	return cw.n, cw.err
}

// String returns the serialized document.
func (d *Document) String() string {
	var buf bytes.Buffer
	d.WriteTo(&buf)
	return buf.String()
}

// String returns the element serialized as if it were at top level.
func (e *Element) String() string {
	var buf bytes.Buffer
	cw := &countingWriter{w: &buf}
	writeNode(cw, e, true)
	return buf.String()
}

func writeNode(w *countingWriter, n Node, lineContext bool) {
	switch t := n.(type) {
	case *Text:
		if !lineContext {
			io.WriteString(w, EscapeText(t.Value))
		}
	case *Comment:
		io.WriteString(w, "<!--"+EscapeComment(t.Value)+"-->")
		if lineContext {
			io.WriteString(w, "\n")
		}
	case *Element:
		WriteStartTag(w, t.Name, t.Attrs)
		switch {
		case len(t.Children) == 0:
			io.WriteString(w, "/>")
		case elementOnly(t):
			io.WriteString(w, ">\n")
			for _, c := range t.Children {
				writeNode(w, c, true)
			}
			io.WriteString(w, "</"+t.Name+">")
		default:
			io.WriteString(w, ">")
			for _, c := range t.Children {
				writeNode(w, c, false)
			}
			io.WriteString(w, "</"+t.Name+">")
		}
		if lineContext {
			io.WriteString(w, "\n")
		}
	}
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
