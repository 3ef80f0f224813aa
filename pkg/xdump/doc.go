// Package xdump exports an object graph into a structured document driven
// by a declarative template, and patches previously exported documents when
// a few source fields change.
//
// Basic Usage:
//
//	tmpl, err := xdump.PrepareFile("lexicon.xml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	session, err := xdump.DefaultEngine().NewSession(tmpl, st)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var out bytes.Buffer
//	if err := session.Render(&out, root, ""); err != nil {
//	    log.Fatal(err)
//	}
//
//	// later, after the store changed Senses of object 7
//	doc, _ := xml.Parse(&out)
//	_, err = session.ApplyChanges([]xdump.Change{{Object: 7, Field: senses}}, doc)
//
// Template Syntax:
//
// A template is a <template> element holding <class name="..."> rules, one
// per domain class (optionally tagged), and <pool> declarations. Inside a
// class rule:
//
//	<element name="Entry">                 wrapper element
//	  <attribute name="Id" field="Id"/>    object identity, the patch anchor
//	  <stringElement name="Form" field="Form"/>
//	  <multilingualStringElement name="Gloss" field="Gloss" ws="all analysis"/>
//	  <if field="Rank" intEquals="0">...</if>
//	  <refVector name="sense" field="Senses"/>
//	  <objVector field="Senses" name="Senses"/>
//	  <call name="Common" noWrapper="true"/>
//	  <generateCustom fieldType="string">...${fieldName} ${label} ${marker}...</generateCustom>
//	</element>
//
// The template root selects the dialect (format="xml" or format="sf"),
// ancestor fallback (inheritClassRules), strict coverage
// (requireClassRules) and the normalization form (normalize).
//
// Sessions own every lookup table they build. A session renders from one
// goroutine; only Cancel may be called concurrently.
package xdump
