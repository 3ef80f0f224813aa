package xdump

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/store/memstore"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/xml"
)

const lexiconTemplate = `<template root="Lexicon">
  <pool class="Example" element="ExamplePool"/>
  <class name="LexDb">
    <element name="LexDb">
      <attribute name="Id" field="Id"/>
      <element name="Entries">
        <objVector field="Entries"/>
      </element>
      <element name="SensePool">
        <objVector field="SenseBank" ord="false"/>
      </element>
      <element name="ExamplePool">
        <objVector field="AllExamples" ord="false"/>
      </element>
    </element>
  </class>
  <class name="Word">
    <element name="Word">
      <attribute name="Id" field="Id"/>
      <attribute name="class" field="ClassName"/>
      <multilingualStringElement name="Form" field="Form" ws="all vernacular"/>
      <stringElement name="Citation" field="Citation"/>
      <numberElement name="Homograph" field="Homograph" skipIfEqual="0"/>
      <booleanElement name="hidden" field="Hidden" trait="true" skipIfFalse="true"/>
      <refAtomic name="main" field="Main"/>
      <refVector name="sense" field="Senses"/>
      <refVector name="ex" field="Examples" ord="false"/>
      <generateCustom fieldType="string">
        <element name="custom">
          <attribute name="label" value="${label}"/>
          <attribute name="marker" value="${marker}"/>
          <stringElement name="${fieldName}" field="${fieldName}"/>
        </element>
      </generateCustom>
    </element>
  </class>
  <class name="Sense">
    <element name="Sense">
      <attribute name="Id" field="Id"/>
      <multilingualStringElement name="Gloss" field="Gloss" ws="all analysis"/>
    </element>
  </class>
  <class name="Example">
    <element name="Example">
      <attribute name="Id" field="Id"/>
      <stringElement name="Text" field="Text"/>
    </element>
  </class>
</template>`

// lexicon is a small object graph: one database owning a word, three
// senses and one example owned by the word.
type lexicon struct {
	st      *memstore.Store
	db      store.Handle
	word    store.Handle
	a, b, c store.Handle
	example store.Handle
}

func (l *lexicon) field(class, name string) store.FieldID {
	return l.st.MustField(class, name)
}

func mustDo(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("fixture: %v", err)
	}
}

func newLexicon(t *testing.T) *lexicon {
	t.Helper()
	st := memstore.New()
	st.SetLocales(store.LocaleSettings{
		Vernacular: []string{"fr"},
		Analysis:   []string{"en", "de"},
		Labels:     map[string]string{"fr": "Fr", "en": "En", "de": "De"},
	})

	mustDo(t, st.DefineClass("LexDb", ""))
	mustDo(t, st.DefineClass("Word", ""))
	mustDo(t, st.DefineClass("Affix", "Word"))
	mustDo(t, st.DefineClass("Sense", ""))
	mustDo(t, st.DefineClass("Example", ""))

	defs := []struct {
		class, name string
		kind        store.Kind
		target      string
	}{
		{"LexDb", "Entries", store.KindOwningVector, "Word"},
		{"LexDb", "SenseBank", store.KindOwningVector, "Sense"},
		{"Word", "Form", store.KindMultiString, ""},
		{"Word", "Citation", store.KindString, ""},
		{"Word", "Homograph", store.KindInteger, ""},
		{"Word", "Hidden", store.KindBoolean, ""},
		{"Word", "Main", store.KindReferenceAtomic, "Sense"},
		{"Word", "Senses", store.KindReferenceVector, "Sense"},
		{"Word", "Examples", store.KindOwningVector, "Example"},
		{"Sense", "Gloss", store.KindMultiString, ""},
		{"Example", "Text", store.KindString, ""},
	}
	for _, d := range defs {
		_, err := st.DefineField(d.class, d.name, d.kind, d.target)
		mustDo(t, err)
	}
	_, err := st.DefineCustomField("Word", "Note", "Note", store.KindString)
	mustDo(t, err)
	_, err = st.DefineCustomField("Word", "Rank", "Rank", store.KindString)
	mustDo(t, err)

	l := &lexicon{st: st}
	l.db, err = st.Create("LexDb")
	mustDo(t, err)
	l.word, err = st.CreateOwned("Word", l.db, l.field("LexDb", "Entries"))
	mustDo(t, err)
	for _, h := range []*store.Handle{&l.a, &l.b, &l.c} {
		*h, err = st.CreateOwned("Sense", l.db, l.field("LexDb", "SenseBank"))
		mustDo(t, err)
	}
	l.example, err = st.CreateOwned("Example", l.word, l.field("Word", "Examples"))
	mustDo(t, err)

	mustDo(t, st.SetMultiString(l.word, l.field("Word", "Form"), "fr", "maison"))
	mustDo(t, st.SetString(l.word, l.field("Word", "Citation"), "maison"))
	mustDo(t, st.SetAtomic(l.word, l.field("Word", "Main"), l.a))
	mustDo(t, st.SetVector(l.word, l.field("Word", "Senses"), []store.Handle{l.a, l.b, l.c}))
	mustDo(t, st.SetString(l.word, l.field("Word", "Note"), "common"))
	mustDo(t, st.SetMultiString(l.a, l.field("Sense", "Gloss"), "en", "house"))
	mustDo(t, st.SetMultiString(l.b, l.field("Sense", "Gloss"), "en", "home"))
	mustDo(t, st.SetMultiString(l.b, l.field("Sense", "Gloss"), "de", "Haus"))
	mustDo(t, st.SetMultiString(l.c, l.field("Sense", "Gloss"), "en", "household"))
	mustDo(t, st.SetString(l.example, l.field("Example", "Text"), "la maison"))

	st.RegisterMethod("LexDb", "AllExamples", func(h store.Handle) (any, error) {
		var out []store.Handle
		entries, err := st.Vector(h, st.MustField("LexDb", "Entries"))
		if err != nil {
			return nil, err
		}
		for _, w := range entries {
			ex, err := st.Vector(w, st.MustField("Word", "Examples"))
			if err != nil {
				return nil, err
			}
			out = append(out, ex...)
		}
		return out, nil
	})
	return l
}

func mustTemplate(t *testing.T, src string) *Template {
	t.Helper()
	tmpl, err := ParseTemplateString(src)
	if err != nil {
		t.Fatalf("ParseTemplateString() error = %v", err)
	}
	return tmpl
}

func newTestSession(t *testing.T, src string, st store.Store, opts ...SessionOption) *Session {
	t.Helper()
	e := New(WithLogger(NewNopLogger()), WithCache(nil))
	s, err := e.NewSession(mustTemplate(t, src), st, opts...)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s
}

func renderString(t *testing.T, s *Session, root store.Handle) string {
	t.Helper()
	var buf bytes.Buffer
	if err := s.Render(&buf, root, ""); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return buf.String()
}

func renderDoc(t *testing.T, s *Session, root store.Handle) *xml.Document {
	t.Helper()
	doc, err := xml.ParseString(renderString(t, s, root))
	if err != nil {
		t.Fatalf("parse rendered output: %v", err)
	}
	return doc
}

// childAttrs lists one attribute of the named children of el.
func childAttrs(el *xml.Element, name, attr string) []string {
	var out []string
	for _, c := range el.ChildrenNamed(name) {
		out = append(out, c.AttrValue(attr))
	}
	return out
}

func byID(t *testing.T, doc *xml.Document, h store.Handle) *xml.Element {
	t.Helper()
	els := doc.IndexAttr(PropID)[handleString(h)]
	if len(els) != 1 {
		t.Fatalf("elements with Id %d = %d, want 1", h, len(els))
	}
	return els[0]
}

func handleString(h store.Handle) string {
	return strconv.Itoa(int(h))
}
