package xdump

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/store/memstore"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/xml"
)

// applyAndCompare patches doc and checks it against a fresh render of the
// current store state.
func applyAndCompare(t *testing.T, src string, st store.Store, root store.Handle, doc *xml.Document, changes ...Change) {
	t.Helper()
	s := newTestSession(t, src, st)
	if _, err := s.ApplyChanges(changes, doc); err != nil {
		t.Fatalf("ApplyChanges() error = %v", err)
	}
	want := renderString(t, newTestSession(t, src, st), root)
	if diff := cmp.Diff(want, doc.String()); diff != "" {
		t.Errorf("patched document differs from a fresh render (-want +got):\n%s", diff)
	}
}

func TestApplyChangesEmpty(t *testing.T) {
	l := newLexicon(t)
	s := newTestSession(t, lexiconTemplate, l.st)
	before := renderString(t, s, l.db)

	doc, err := xml.ParseString(before)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got, err := s.ApplyChanges(nil, doc)
	if err != nil {
		t.Fatalf("ApplyChanges() error = %v", err)
	}
	if got.String() != before {
		t.Errorf("empty change list modified the document\n got: %s\nwant: %s", got.String(), before)
	}
}

func TestApplyChangesReorderReusesNodes(t *testing.T) {
	l := newLexicon(t)
	s := newTestSession(t, lexiconTemplate, l.st)
	doc := renderDoc(t, s, l.db)

	word := byID(t, doc, l.word)
	nodes := make(map[string]*xml.Element)
	for _, el := range word.ChildrenNamed("sense") {
		nodes[el.AttrValue("dst")] = el
	}

	senses := l.field("Word", "Senses")
	mustDo(t, l.st.SetVector(l.word, senses, []store.Handle{l.c, l.a, l.b}))
	if _, err := s.ApplyChanges([]Change{{Object: l.word, Field: senses}}, doc); err != nil {
		t.Fatalf("ApplyChanges() error = %v", err)
	}

	got := word.ChildrenNamed("sense")
	wantDst := []string{"5", "3", "4"}
	if diff := cmp.Diff(wantDst, childAttrs(word, "sense", "dst")); diff != "" {
		t.Errorf("sense order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"0", "1", "2"}, childAttrs(word, "sense", "ord")); diff != "" {
		t.Errorf("sense ord (-want +got):\n%s", diff)
	}
	for i, el := range got {
		if el != nodes[wantDst[i]] {
			t.Errorf("sense %s was re-rendered, want the existing node", wantDst[i])
		}
	}
	if byID(t, doc, l.word) != word {
		t.Error("the word element itself should be kept")
	}
}

func TestApplyChangesReferenceVectorPermutations(t *testing.T) {
	tests := []struct {
		name    string
		initial []int
		final   []int
	}{
		{name: "rotate", initial: []int{0, 1, 2}, final: []int{2, 0, 1}},
		{name: "reverse", initial: []int{0, 1, 2}, final: []int{2, 1, 0}},
		{name: "remove middle", initial: []int{0, 1, 2}, final: []int{0, 2}},
		{name: "remove all", initial: []int{0, 1, 2}, final: nil},
		{name: "insert front", initial: []int{1, 2}, final: []int{0, 1, 2}},
		{name: "insert middle", initial: []int{0, 2}, final: []int{0, 1, 2}},
		{name: "insert into empty", initial: nil, final: []int{1, 0}},
		{name: "replace", initial: []int{0}, final: []int{2}},
		{name: "mixed", initial: []int{0, 1}, final: []int{2, 1}},
		{name: "unchanged", initial: []int{0, 1, 2}, final: []int{0, 1, 2}},
		{name: "insert duplicate", initial: []int{0, 1}, final: []int{0, 1, 0}},
		{name: "drop duplicate", initial: []int{0, 1, 0}, final: []int{1, 0}},
		{name: "move duplicate", initial: []int{0, 0, 1}, final: []int{0, 1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLexicon(t)
			pool := []store.Handle{l.a, l.b, l.c}
			pick := func(idx []int) []store.Handle {
				out := []store.Handle{}
				for _, i := range idx {
					out = append(out, pool[i])
				}
				return out
			}
			senses := l.field("Word", "Senses")
			mustDo(t, l.st.SetVector(l.word, senses, pick(tt.initial)))
			doc := renderDoc(t, newTestSession(t, lexiconTemplate, l.st), l.db)

			mustDo(t, l.st.SetVector(l.word, senses, pick(tt.final)))
			applyAndCompare(t, lexiconTemplate, l.st, l.db, doc, Change{Object: l.word, Field: senses})

			seen := make(map[*xml.Element]bool)
			for _, el := range byID(t, doc, l.word).ChildrenNamed("sense") {
				if seen[el] {
					t.Fatalf("sense element %s appears twice in its parent", el)
				}
				seen[el] = true
			}
		})
	}
}

func TestApplyChangesOrdSkipsUnrenderedMembers(t *testing.T) {
	src := strings.Replace(lexiconTemplate, `<template root="Lexicon">`, `<template root="Lexicon" inheritClassRules="false">`, 1)
	l := newLexicon(t)
	entries := l.field("LexDb", "Entries")
	affix, err := l.st.CreateOwned("Affix", l.db, entries)
	mustDo(t, err)
	mustDo(t, l.st.SetVector(l.db, entries, []store.Handle{affix, l.word}))

	doc := renderDoc(t, newTestSession(t, src, l.st), l.db)
	if diff := cmp.Diff([]string{"0"}, childAttrs(doc.FindNamed("Entries"), "Word", "ord")); diff != "" {
		t.Errorf("rendered ord mismatch (-want +got):\n%s", diff)
	}

	added, err := l.st.CreateOwned("Word", l.db, entries)
	mustDo(t, err)
	mustDo(t, l.st.SetString(added, l.field("Word", "Citation"), "porte"))
	mustDo(t, l.st.SetVector(l.db, entries, []store.Handle{added, affix, l.word}))
	applyAndCompare(t, src, l.st, l.db, doc, Change{Object: l.db, Field: entries})

	if diff := cmp.Diff([]string{"0", "1"}, childAttrs(doc.FindNamed("Entries"), "Word", "ord")); diff != "" {
		t.Errorf("patched ord mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyChangesOwningVector(t *testing.T) {
	tests := []struct {
		name   string
		change func(t *testing.T, l *lexicon, second store.Handle)
	}{
		{
			name: "reorder",
			change: func(t *testing.T, l *lexicon, second store.Handle) {
				mustDo(t, l.st.SetVector(l.db, l.field("LexDb", "Entries"), []store.Handle{second, l.word}))
			},
		},
		{
			name: "insert",
			change: func(t *testing.T, l *lexicon, _ store.Handle) {
				h, err := l.st.CreateOwned("Word", l.db, l.field("LexDb", "Entries"))
				mustDo(t, err)
				mustDo(t, l.st.SetString(h, l.field("Word", "Citation"), "porte"))
			},
		},
		{
			name: "delete with owned examples",
			change: func(t *testing.T, l *lexicon, _ store.Handle) {
				mustDo(t, l.st.Delete(l.word))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLexicon(t)
			second, err := l.st.CreateOwned("Affix", l.db, l.field("LexDb", "Entries"))
			mustDo(t, err)
			mustDo(t, l.st.SetString(second, l.field("Word", "Citation"), "-ette"))
			doc := renderDoc(t, newTestSession(t, lexiconTemplate, l.st), l.db)

			tt.change(t, l, second)
			applyAndCompare(t, lexiconTemplate, l.st, l.db, doc, Change{Object: l.db, Field: l.field("LexDb", "Entries")})
		})
	}
}

func TestApplyChangesCascade(t *testing.T) {
	l := newLexicon(t)
	doc := renderDoc(t, newTestSession(t, lexiconTemplate, l.st), l.db)
	if doc.FindFirst(PropID, "6") == nil {
		t.Fatal("example should be rendered in its pool")
	}

	mustDo(t, l.st.Delete(l.example))
	applyAndCompare(t, lexiconTemplate, l.st, l.db, doc, Change{Object: l.word, Field: l.field("Word", "Examples")})

	if el := doc.FindFirst(PropID, "6"); el != nil {
		t.Errorf("deleted example still in the document: %s", el)
	}
	if el := doc.FindFirst("dst", "6"); el != nil {
		t.Errorf("reference to the deleted example still in the document: %s", el)
	}
}

func TestApplyChangesFillsPool(t *testing.T) {
	l := newLexicon(t)
	doc := renderDoc(t, newTestSession(t, lexiconTemplate, l.st), l.db)

	h, err := l.st.CreateOwned("Example", l.word, l.field("Word", "Examples"))
	mustDo(t, err)
	mustDo(t, l.st.SetString(h, l.field("Example", "Text"), "une maison"))
	applyAndCompare(t, lexiconTemplate, l.st, l.db, doc, Change{Object: l.word, Field: l.field("Word", "Examples")})

	pool := doc.FindNamed("ExamplePool")
	if got := len(pool.ChildrenNamed("Example")); got != 2 {
		t.Errorf("pool examples = %d, want 2", got)
	}
}

func TestApplyChangesScalarLocality(t *testing.T) {
	l := newLexicon(t)
	s := newTestSession(t, lexiconTemplate, l.st)
	doc := renderDoc(t, s, l.db)

	word := byID(t, doc, l.word)
	before := append([]xml.Node(nil), word.Children...)
	citation := word.FirstChild("Citation")

	mustDo(t, l.st.SetString(l.word, l.field("Word", "Citation"), "logis"))
	applyAndCompare(t, lexiconTemplate, l.st, l.db, doc, Change{Object: l.word, Field: l.field("Word", "Citation")})

	if word.FirstChild("Citation") != citation {
		t.Error("citation element should be updated in place")
	}
	if got := citation.Text(); got != "logis" {
		t.Errorf("citation = %q, want %q", got, "logis")
	}
	if len(word.Children) != len(before) {
		t.Fatalf("word children = %d, want %d", len(word.Children), len(before))
	}
	for i, n := range before {
		if word.Children[i] != n {
			t.Errorf("child %d was replaced", i)
		}
	}
}

func TestApplyChangesScalarShapes(t *testing.T) {
	tests := []struct {
		name   string
		change func(l *lexicon) (Change, error)
	}{
		{
			name: "number appears",
			change: func(l *lexicon) (Change, error) {
				f := l.field("Word", "Homograph")
				return Change{Object: l.word, Field: f}, l.st.SetInt(l.word, f, 2)
			},
		},
		{
			name: "string removed",
			change: func(l *lexicon) (Change, error) {
				f := l.field("Word", "Citation")
				return Change{Object: l.word, Field: f}, l.st.SetString(l.word, f, "")
			},
		},
		{
			name: "alternative removed",
			change: func(l *lexicon) (Change, error) {
				f := l.field("Sense", "Gloss")
				return Change{Object: l.b, Field: f}, l.st.SetMultiString(l.b, f, "de", "")
			},
		},
		{
			name: "alternative added",
			change: func(l *lexicon) (Change, error) {
				f := l.field("Sense", "Gloss")
				return Change{Object: l.a, Field: f}, l.st.SetMultiString(l.a, f, "de", "Haus")
			},
		},
		{
			name: "trait appears",
			change: func(l *lexicon) (Change, error) {
				f := l.field("Word", "Hidden")
				return Change{Object: l.word, Field: f}, l.st.SetBool(l.word, f, true)
			},
		},
		{
			name: "custom field",
			change: func(l *lexicon) (Change, error) {
				f := l.field("Word", "Rank")
				return Change{Object: l.word, Field: f}, l.st.SetString(l.word, f, "1")
			},
		},
		{
			name: "reference retargeted",
			change: func(l *lexicon) (Change, error) {
				f := l.field("Word", "Main")
				return Change{Object: l.word, Field: f}, l.st.SetAtomic(l.word, f, l.c)
			},
		},
		{
			name: "reference cleared",
			change: func(l *lexicon) (Change, error) {
				f := l.field("Word", "Main")
				return Change{Object: l.word, Field: f}, l.st.SetAtomic(l.word, f, store.NoHandle)
			},
		},
		{
			name: "object deleted",
			change: func(l *lexicon) (Change, error) {
				f := l.field("Example", "Text")
				return Change{Object: 999, Field: f}, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLexicon(t)
			doc := renderDoc(t, newTestSession(t, lexiconTemplate, l.st), l.db)
			c, err := tt.change(l)
			mustDo(t, err)
			applyAndCompare(t, lexiconTemplate, l.st, l.db, doc, c)
		})
	}
}

func TestApplyChangesReferenceInPlace(t *testing.T) {
	l := newLexicon(t)
	s := newTestSession(t, lexiconTemplate, l.st)
	doc := renderDoc(t, s, l.db)
	main := byID(t, doc, l.word).FirstChild("main")

	f := l.field("Word", "Main")
	mustDo(t, l.st.SetAtomic(l.word, f, l.b))
	if _, err := s.ApplyChanges([]Change{{Object: l.word, Field: f}}, doc); err != nil {
		t.Fatalf("ApplyChanges() error = %v", err)
	}
	if got := byID(t, doc, l.word).FirstChild("main"); got != main || got.AttrValue("dst") != "4" {
		t.Errorf("main = %v, want the same element retargeted to 4", got)
	}
}

func TestApplyChangesCoverage(t *testing.T) {
	l := newLexicon(t)
	src := `<template>
  <class name="Word">
    <element name="Word">
      <attribute name="Id" field="Id"/>
      <stringElement name="Citation" field="Citation"/>
    </element>
  </class>
</template>`
	s := newTestSession(t, src, l.st)
	doc := renderDoc(t, s, l.word)

	citation := l.field("Word", "Citation")
	mustDo(t, l.st.SetString(l.word, citation, "logis"))
	_, err := s.ApplyChanges([]Change{
		{Object: l.b, Field: l.field("Sense", "Gloss")},
		{Object: l.word, Field: citation},
	}, doc)

	if !IsCoverageError(err) {
		t.Fatalf("ApplyChanges() error = %v, want a CoverageError", err)
	}
	var multi *MultiError
	if !errors.As(err, &multi) || multi.Len() != 1 {
		t.Errorf("ApplyChanges() error = %v, want one collected error", err)
	}
	if got := byID(t, doc, l.word).FirstChild("Citation").Text(); got != "logis" {
		t.Errorf("citation = %q, later changes should still apply", got)
	}
}

func TestApplyChangesErrors(t *testing.T) {
	l := newLexicon(t)

	sf := newTestSession(t, `<template format="sf"><class name="Word"/></template>`, l.st)
	if _, err := sf.ApplyChanges(nil, xml.NewDocument(true)); !IsConfigurationError(err) {
		t.Errorf("ApplyChanges(sf) error = %v, want ConfigurationError", err)
	}

	s := newTestSession(t, lexiconTemplate, l.st)
	doc := renderDoc(t, s, l.db)
	_, err := s.ApplyChanges([]Change{{Object: l.word, Field: 999}}, doc)
	if !IsConfigurationError(err) {
		t.Errorf("ApplyChanges(unknown field) error = %v, want ConfigurationError", err)
	}

	if _, err := s.ApplyChanges(nil, nil); !IsConfigurationError(err) {
		t.Errorf("ApplyChanges(nil doc) error = %v, want ConfigurationError", err)
	}
}

const ownedTemplate = `<template>
  <class name="Word">
    <element name="Word">
      <attribute name="Id" field="Id"/>
      <objAtomic field="Etym" name="etymology"/>
      <group field="Main">
        <attribute name="gloss" field="Gloss"/>
        <stringElement name="mainGloss" field="Gloss"/>
      </group>
      <objVector field="Subsenses" name="subs"/>
    </element>
  </class>
  <class name="Etymology">
    <element name="Etym">
      <attribute name="Id" field="Id"/>
      <stringElement name="Source" field="Source"/>
    </element>
  </class>
  <class name="Sense">
    <element name="Sense">
      <attribute name="Id" field="Id"/>
      <stringElement name="Gloss" field="Gloss"/>
      <objVector field="Subsenses"/>
    </element>
  </class>
</template>`

type ownedGraph struct {
	st         *memstore.Store
	word, etym store.Handle
	subs       []store.Handle
}

// newOwnedGraph builds a word with an owned etymology, a referenced main
// sense and two owned subsenses, the first with a nested subsense.
func newOwnedGraph(t *testing.T) *ownedGraph {
	t.Helper()
	st := memstore.New()
	mustDo(t, st.DefineClass("Word", ""))
	mustDo(t, st.DefineClass("Etymology", ""))
	mustDo(t, st.DefineClass("Sense", ""))
	for _, d := range []struct {
		class, name string
		kind        store.Kind
		target      string
	}{
		{"Word", "Etym", store.KindOwningAtomic, "Etymology"},
		{"Word", "Main", store.KindReferenceAtomic, "Sense"},
		{"Word", "Subsenses", store.KindOwningVector, "Sense"},
		{"Etymology", "Source", store.KindString, ""},
		{"Sense", "Gloss", store.KindString, ""},
		{"Sense", "Subsenses", store.KindOwningVector, "Sense"},
	} {
		_, err := st.DefineField(d.class, d.name, d.kind, d.target)
		mustDo(t, err)
	}

	g := &ownedGraph{st: st}
	var err error
	g.word, err = st.Create("Word")
	mustDo(t, err)
	g.etym, err = st.CreateOwned("Etymology", g.word, st.MustField("Word", "Etym"))
	mustDo(t, err)
	mustDo(t, st.SetString(g.etym, st.MustField("Etymology", "Source"), "latin"))
	for _, gloss := range []string{"house", "home"} {
		h, err := st.CreateOwned("Sense", g.word, st.MustField("Word", "Subsenses"))
		mustDo(t, err)
		mustDo(t, st.SetString(h, st.MustField("Sense", "Gloss"), gloss))
		g.subs = append(g.subs, h)
	}
	nested, err := st.CreateOwned("Sense", g.subs[0], st.MustField("Sense", "Subsenses"))
	mustDo(t, err)
	mustDo(t, st.SetString(nested, st.MustField("Sense", "Gloss"), "dwelling"))
	g.subs = append(g.subs, nested)
	mustDo(t, st.SetAtomic(g.word, st.MustField("Word", "Main"), g.subs[0]))
	return g
}

func TestApplyChangesOwnedObjects(t *testing.T) {
	tests := []struct {
		name   string
		change func(t *testing.T, g *ownedGraph) []Change
	}{
		{
			name: "owned atomic replaced",
			change: func(t *testing.T, g *ownedGraph) []Change {
				f := g.st.MustField("Word", "Etym")
				h, err := g.st.CreateOwned("Etymology", g.word, f)
				mustDo(t, err)
				mustDo(t, g.st.SetString(h, g.st.MustField("Etymology", "Source"), "greek"))
				return []Change{{Object: g.word, Field: f}}
			},
		},
		{
			name: "owned atomic cleared",
			change: func(t *testing.T, g *ownedGraph) []Change {
				f := g.st.MustField("Word", "Etym")
				mustDo(t, g.st.SetAtomic(g.word, f, store.NoHandle))
				return []Change{{Object: g.word, Field: f}}
			},
		},
		{
			name: "group retargeted",
			change: func(t *testing.T, g *ownedGraph) []Change {
				f := g.st.MustField("Word", "Main")
				mustDo(t, g.st.SetAtomic(g.word, f, g.subs[1]))
				return []Change{{Object: g.word, Field: f}}
			},
		},
		{
			name: "group cleared",
			change: func(t *testing.T, g *ownedGraph) []Change {
				f := g.st.MustField("Word", "Main")
				mustDo(t, g.st.SetAtomic(g.word, f, store.NoHandle))
				return []Change{{Object: g.word, Field: f}}
			},
		},
		{
			name: "wrapped vector reordered",
			change: func(t *testing.T, g *ownedGraph) []Change {
				f := g.st.MustField("Word", "Subsenses")
				mustDo(t, g.st.SetVector(g.word, f, []store.Handle{g.subs[1], g.subs[0]}))
				return []Change{{Object: g.word, Field: f}}
			},
		},
		{
			name: "wrapped vector member deleted",
			change: func(t *testing.T, g *ownedGraph) []Change {
				// the main sense goes too, so the group empties
				mustDo(t, g.st.Delete(g.subs[0]))
				return []Change{
					{Object: g.word, Field: g.st.MustField("Word", "Subsenses")},
					{Object: g.word, Field: g.st.MustField("Word", "Main")},
				}
			},
		},
		{
			name: "nested vector inserted",
			change: func(t *testing.T, g *ownedGraph) []Change {
				f := g.st.MustField("Sense", "Subsenses")
				h, err := g.st.CreateOwned("Sense", g.subs[1], f)
				mustDo(t, err)
				mustDo(t, g.st.SetString(h, g.st.MustField("Sense", "Gloss"), "abode"))
				return []Change{{Object: g.subs[1], Field: f}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newOwnedGraph(t)
			doc := renderDoc(t, newTestSession(t, ownedTemplate, g.st), g.word)
			applyAndCompare(t, ownedTemplate, g.st, g.word, doc, tt.change(t, g)...)
		})
	}
}

func TestApplyChangesCascadeNested(t *testing.T) {
	g := newOwnedGraph(t)
	doc := renderDoc(t, newTestSession(t, ownedTemplate, g.st), g.word)
	if doc.FindFirst(PropID, handleString(g.subs[2])) == nil {
		t.Fatal("nested subsense should be rendered")
	}

	mustDo(t, g.st.Delete(g.subs[0]))
	s := newTestSession(t, ownedTemplate, g.st)
	if _, err := s.ApplyChanges([]Change{{Object: g.word, Field: g.st.MustField("Word", "Subsenses")}}, doc); err != nil {
		t.Fatalf("ApplyChanges() error = %v", err)
	}
	for _, h := range []store.Handle{g.subs[0], g.subs[2]} {
		if el := doc.FindFirst(PropID, handleString(h)); el != nil {
			t.Errorf("deleted sense %d left in the document", h)
		}
	}
}

func TestApplyChangesCanceled(t *testing.T) {
	l := newLexicon(t)
	s := newTestSession(t, lexiconTemplate, l.st)
	doc := renderDoc(t, s, l.db)

	s.Cancel()
	_, err := s.ApplyChanges([]Change{{Object: l.word, Field: l.field("Word", "Citation")}}, doc)
	if !errors.Is(err, ErrCanceled) {
		t.Errorf("ApplyChanges() error = %v, want ErrCanceled", err)
	}
}

func TestPackageLevelApplyChanges(t *testing.T) {
	l := newLexicon(t)
	tmpl := mustTemplate(t, lexiconTemplate)
	var out strings.Builder
	if err := Render(&out, l.db, tmpl, l.st); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	doc, err := xml.ParseString(out.String())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	f := l.field("Word", "Citation")
	mustDo(t, l.st.SetString(l.word, f, "logis"))
	if _, err := ApplyChanges([]Change{{Object: l.word, Field: f}}, doc, tmpl, l.st); err != nil {
		t.Fatalf("ApplyChanges() error = %v", err)
	}
	if !strings.Contains(doc.String(), "<Citation>logis</Citation>") {
		t.Errorf("patched document = %s", doc.String())
	}
}
