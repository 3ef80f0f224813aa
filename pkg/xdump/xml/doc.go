// Package xml provides the mutable markup tree shared by templates and
// rendered output documents.
//
// # Structure Organization
//
//   - node.go: Element, Text, Comment, Document and tree editing primitives
//   - parse.go: token-walking parser that keeps prefixed names verbatim
//   - write.go: deterministic serializer and escaping helpers
//
// # Layout
//
// Serialization is canonical: attributes are sorted by name, there is no
// indentation, and a newline follows the start tag of every element whose
// children are all elements or comments, and every node that sits in such a
// context. The render engine streams exactly this layout, so a rendered
// document survives Parse followed by WriteTo byte for byte.
//
// # Identity
//
// Output documents carry object identity in attributes: Id on the element an
// embedded object renders to, dst on reference-only entries and ord on the
// members of ordered to-many relations. Document.IndexAttr builds lookups
// over those attributes.
//
// Example:
//
//	doc, err := xml.ParseString(`<Word Id="1"><sense dst="4" ord="0"/></Word>`)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	word := doc.FindFirst("Id", "1")
//	word.FirstChild("sense").SetAttr("ord", "1")
package xml
