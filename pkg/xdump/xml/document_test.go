package xml

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseWriteRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "declaration and nested elements",
			input: Declaration + "\n<Lexicon>\n<Word Id=\"1\">\n<Form ws=\"fr\">maison</Form>\n<sense dst=\"4\" ord=\"0\"/>\n</Word>\n</Lexicon>\n",
		},
		{
			name:  "inline mixed content",
			input: "<p>one <b>two</b> three</p>\n",
		},
		{
			name:  "escaped text and attributes",
			input: "<a note=\"x &amp; &quot;y&quot;&#xA;z\">1 &lt; 2 &amp; 3 &gt; 2</a>\n",
		},
		{
			name:  "comments in element context",
			input: "<root>\n<!-- excluded -->\n<item/>\n</root>\n",
		},
		{
			name:  "several top-level nodes",
			input: "<!-- header -->\n<a/>\n<b>x</b>\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseString(tt.input)
			if err != nil {
				t.Fatalf("ParseString() error = %v", err)
			}
			if diff := cmp.Diff(tt.input, doc.String()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteSortsAttributes(t *testing.T) {
	el := NewElement("sense", Attr{Name: "ord", Value: "2"}, Attr{Name: "dst", Value: "9"}, Attr{Name: "a", Value: "1"})
	want := "<sense a=\"1\" dst=\"9\" ord=\"2\"/>\n"
	if got := el.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if el.Attrs[0].Name != "ord" {
		t.Errorf("serialization must not reorder the element's own attributes")
	}
}

func TestParseKeepsPrefixedNames(t *testing.T) {
	doc, err := ParseString(`<form xml:lang="en" lift:kind="x"/>`)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	root := doc.Root()
	if v := root.AttrValue("xml:lang"); v != "en" {
		t.Errorf("xml:lang = %q, want en", v)
	}
	if v := root.AttrValue("lift:kind"); v != "x" {
		t.Errorf("lift:kind = %q, want x", v)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		errorContains string
	}{
		{"mismatched end", "<a></b>", "unexpected end element"},
		{"unclosed", "<a><b></b>", "unclosed element"},
		{"stray text", "hello<a/>", "text outside root"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.input)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("error = %v, want it to contain %q", err, tt.errorContains)
			}
		})
	}
}

func TestTrimWhitespaceOption(t *testing.T) {
	input := "<template>\n  <class name=\"Word\">\n    <element name=\"Word\"/>\n  </class>\n</template>"
	doc, err := ParseWithOptions(strings.NewReader(input), ParseOptions{TrimWhitespace: true})
	if err != nil {
		t.Fatalf("ParseWithOptions() error = %v", err)
	}
	class := doc.Root().FirstChild("class")
	if len(class.Children) != 1 {
		t.Fatalf("class children = %d, want 1", len(class.Children))
	}
	if _, ok := class.Children[0].(*Element); !ok {
		t.Errorf("expected indentation to be dropped")
	}
}

func TestElementEditing(t *testing.T) {
	doc, err := ParseString("<r>\n<a/>\n<b/>\n<c/>\n</r>\n")
	if err != nil {
		t.Fatal(err)
	}
	r := doc.Root()
	a, b, c := r.FirstChild("a"), r.FirstChild("b"), r.FirstChild("c")

	// moving c in front of a keeps node identity
	r.InsertBefore(a, c)
	if got := names(r); got != "c,a,b" {
		t.Fatalf("after move = %s, want c,a,b", got)
	}
	if r.FirstChild("c") != c {
		t.Errorf("moved element lost identity")
	}

	r.Replace(b, NewElement("x"), NewElement("y"))
	if got := names(r); got != "c,a,x,y" {
		t.Fatalf("after replace = %s, want c,a,x,y", got)
	}
	if b.Parent() != nil {
		t.Errorf("replaced element still attached")
	}

	a.Detach()
	if got := names(r); got != "c,x,y" {
		t.Fatalf("after detach = %s, want c,x,y", got)
	}
	if c.Parent() != r {
		t.Errorf("Parent() = %v, want root", c.Parent())
	}
}

func TestIndexAttr(t *testing.T) {
	doc, err := ParseString(`<r><w Id="1"><s Id="2"/></w><p><s Id="3"/><s dst="2"/></p></r>`)
	if err != nil {
		t.Fatal(err)
	}
	idx := doc.IndexAttr("Id")
	if len(idx) != 3 {
		t.Fatalf("index size = %d, want 3", len(idx))
	}
	if idx["2"][0].Parent().Name != "w" {
		t.Errorf("Id 2 parent = %s, want w", idx["2"][0].Parent().Name)
	}
	if doc.FindFirst("dst", "2") == nil {
		t.Errorf("FindFirst(dst) found nothing")
	}
}

func TestParseFragment(t *testing.T) {
	nodes, err := ParseFragment([]byte("<a/>\n<b>t</b>\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Fatalf("fragment nodes = %d, want 2", len(nodes))
	}
	if el := nodes[0].(*Element); el.Parent() != nil {
		t.Errorf("fragment nodes must be detached")
	}
}

func names(e *Element) string {
	var out []string
	for _, c := range e.Elements() {
		out = append(out, c.Name)
	}
	return strings.Join(out, ",")
}
