package render

import (
	"io"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/xml"
)

type frame struct {
	name    string
	pending bool // start tag written without its closing bracket
	inline  bool // text has been written into this element
}

// MarkupWriter streams elements in the canonical layout of the xml package.
// A start tag stays open until the first content arrives, so elements that
// end up empty are written as "<name/>".
type MarkupWriter struct {
	w     io.Writer
	stack []*frame
	err   error
	n     int64
}

// NewMarkupWriter wraps an output sink.
func NewMarkupWriter(w io.Writer) *MarkupWriter {
	return &MarkupWriter{w: w}
}

func (m *MarkupWriter) write(s string) {
	if m.err != nil {
		return
	}
	n, err := io.WriteString(m.w, s)
	m.n += int64(n)
	m.err = err
}

// Declaration writes the XML declaration line.
func (m *MarkupWriter) Declaration() {
	m.write(xml.Declaration + "\n")
}

func (m *MarkupWriter) top() *frame {
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1]
}

// openForChild closes a pending start tag because structural content follows.
func (m *MarkupWriter) openForChild() {
	if f := m.top(); f != nil && f.pending {
		f.pending = false
		m.write(">\n")
	}
}

// lineContext reports whether structural nodes written next are followed by
// a newline.
func (m *MarkupWriter) lineContext() bool {
	f := m.top()
	return f == nil || !f.inline
}

// Start opens an element. Attributes are written sorted by name.
func (m *MarkupWriter) Start(name string, attrs []xml.Attr) {
	m.openForChild()
	if m.err == nil {
		m.err = xml.WriteStartTag(countWriter{m}, name, attrs)
	}
	m.stack = append(m.stack, &frame{name: name, pending: true})
}

// End closes the innermost open element.
func (m *MarkupWriter) End() {
	f := m.top()
	if f == nil {
		return
	}
	m.stack = m.stack[:len(m.stack)-1]
	if f.pending {
		m.write("/>")
	} else {
		m.write("</" + f.name + ">")
	}
	if m.lineContext() {
		m.write("\n")
	}
}

// Text writes escaped character data. Empty strings write nothing.
// Text outside any element is dropped.
func (m *MarkupWriter) Text(s string) {
	f := m.top()
	if s == "" || f == nil {
		return
	}
	if f.pending {
		f.pending = false
		m.write(">")
	}
	f.inline = true
	m.write(xml.EscapeText(s))
}

// Comment writes a comment node.
func (m *MarkupWriter) Comment(s string) {
	m.openForChild()
	m.write("<!--" + xml.EscapeComment(s) + "-->")
	if m.lineContext() {
		m.write("\n")
	}
}

// Depth returns the number of open elements.
func (m *MarkupWriter) Depth() int {
	return len(m.stack)
}

// Err returns the first write error.
func (m *MarkupWriter) Err() error {
	return m.err
}

// Written returns the number of bytes written so far.
func (m *MarkupWriter) Written() int64 {
	return m.n
}

type countWriter struct {
	m *MarkupWriter
}

func (c countWriter) Write(p []byte) (int, error) {
	n, err := c.m.w.Write(p)
	c.m.n += int64(n)
	return n, err
}
