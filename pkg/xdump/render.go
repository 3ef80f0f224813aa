package xdump

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/render"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/xml"
)

// renderer interprets rules against the object graph for one output stream.
type renderer struct {
	s     *Session
	mw    *render.MarkupWriter
	sf    *render.MarkerWriter
	depth int
	// starts counts elements opened through start.
	starts int
	// pending attributes go on the next element started; objVector uses
	// them to put ord on the first element an item emits.
	pending []xml.Attr
}

func (s *Session) newRenderer(w io.Writer) *renderer {
	r := &renderer{s: s}
	if s.tmpl.Format() == FormatSF {
		r.sf = render.NewMarkerWriter(w)
	} else {
		r.mw = render.NewMarkupWriter(w)
	}
	return r
}

func (r *renderer) markup() bool {
	return r.mw != nil
}

func (r *renderer) writeErr() error {
	if r.mw != nil {
		return r.mw.Err()
	}
	return r.sf.Err()
}

// Render writes the output document for root. ruleName selects a class rule
// by name ("Class" or "Class:tag"); empty uses the rule for root's class.
func (s *Session) Render(w io.Writer, root store.Handle, ruleName string) error {
	r := s.newRenderer(w)
	s.logger.Debug("render root %d rule %q", root, ruleName)

	if r.markup() {
		r.mw.Declaration()
		if el := s.tmpl.RootElement(); el != "" {
			r.mw.Start(el, nil)
		}
	}
	if err := r.top(root, ruleName); err != nil {
		if errors.Is(err, ErrCanceled) {
			s.logger.Info("render of %d canceled", root)
		}
		return WithContext(err, "render", map[string]interface{}{"root": root})
	}
	if r.markup() && s.tmpl.RootElement() != "" {
		r.mw.End()
	}
	return r.writeErr()
}

// RenderFragment renders obj into detached markup nodes. It is what the
// differential updater splices into existing documents.
func (s *Session) RenderFragment(obj store.Handle, ruleName string) ([]xml.Node, error) {
	return s.fragment(func(r *renderer) error {
		return r.top(obj, ruleName)
	})
}

func (s *Session) fragment(fn func(r *renderer) error) ([]xml.Node, error) {
	if s.tmpl.Format() != FormatMarkup {
		return nil, NewConfigurationError("template", "", "", "fragments require the xml format")
	}
	var buf bytes.Buffer
	r := s.newRenderer(&buf)
	if err := fn(r); err != nil {
		return nil, err
	}
	if err := r.writeErr(); err != nil {
		return nil, err
	}
	return xml.ParseFragment(buf.Bytes())
}

func (r *renderer) top(obj store.Handle, ruleName string) error {
	if ruleName == "" {
		return r.object(obj, "")
	}
	rule, err := r.s.catalog.RuleByName(ruleName)
	if err != nil {
		return err
	}
	class, ok := r.s.st.ClassOf(obj)
	if !ok {
		return ErrNotFound
	}
	return r.classRule(obj, class, rule)
}

func (r *renderer) enter() error {
	if r.s.Canceled() {
		return ErrCanceled
	}
	r.depth++
	if r.depth > r.s.config.MaxRenderDepth {
		return ErrDepthExceeded
	}
	return nil
}

func (r *renderer) leave() {
	r.depth--
}

// object renders obj with the class rule for its class and tag. Objects
// that no longer exist or have no rule render nothing.
func (r *renderer) object(obj store.Handle, tag string) error {
	class, ok := r.s.st.ClassOf(obj)
	if !ok {
		return nil
	}
	rule, err := r.s.catalog.FindClassRule(class, tag)
	if err != nil {
		return err
	}
	if rule == nil {
		r.s.logger.Debug("no class rule for %s %d, skipped", class, obj)
		r.pending = nil
		return nil
	}
	return r.classRule(obj, class, rule)
}

func (r *renderer) classRule(obj store.Handle, class string, rule *Rule) error {
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if ok, reason := applyFilters(r.s.filters, obj, class); !ok {
		r.comment(reason)
		r.pending = nil
		return nil
	}
	r.s.notify(rule, obj, class)
	r.s.logger.Debug("render %s %d", class, obj)
	return r.rules(obj, class, rule.Children)
}

func (r *renderer) rules(obj store.Handle, class string, rules []*Rule) error {
	for _, rule := range rules {
		if r.s.Canceled() {
			return ErrCanceled
		}
		if err := r.rule(obj, class, rule); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) rule(obj store.Handle, class string, rule *Rule) error {
	if rule.Kind != KindAttribute {
		r.s.notify(rule, obj, class)
	}

	switch rule.Kind {
	case KindText:
		if r.markup() {
			r.mw.Text(rule.Text)
		}
		return nil
	case KindAttribute:
		if r.markup() {
			return nil
		}
		value, err := r.attrValue(obj, rule)
		if err != nil {
			return err
		}
		if value != "" {
			r.s.notify(rule, obj, class)
			r.sf.Field(rule.Attr("name"), value)
		}
		return nil
	case KindElement, KindLiteral:
		return r.element(obj, class, rule)
	case KindCall:
		return r.call(obj, class, rule)
	case KindIf, KindIfNot:
		ok, err := r.test(obj, rule)
		if err != nil || !ok {
			return err
		}
		return r.rules(obj, class, rule.Children)
	case KindStringElement:
		return r.stringElement(obj, rule)
	case KindMultilingualStringElement:
		return r.multilingual(obj, rule)
	case KindNumberElement:
		return r.number(obj, rule)
	case KindBooleanElement:
		return r.boolean(obj, rule)
	case KindRefAtomic:
		return r.refAtomic(obj, rule)
	case KindRefVector, KindRefObjVector, KindObjVector:
		return r.vector(obj, rule)
	case KindObjAtomic:
		return r.objAtomic(obj, rule)
	case KindGroup:
		target, tclass, err := r.groupTarget(obj, rule)
		if err != nil || target == store.NoHandle {
			return err
		}
		return r.rules(target, tclass, rule.Children)
	case KindGenerateCustom:
		insts, err := r.s.catalog.ExpandCustom(class, rule)
		if err != nil {
			return err
		}
		for _, inst := range insts {
			if err := r.rules(obj, class, inst.Children); err != nil {
				return err
			}
		}
		return nil
	case KindSequence:
		return r.rules(obj, class, rule.Children)
	case KindClass, KindPool:
		return NewConfigurationError(rule.Describe(), class, "", rule.Name+" rules must be top level")
	}
	return nil
}

func (r *renderer) start(name string, attrs []xml.Attr) {
	if len(r.pending) > 0 {
		attrs = mergeAttrs(attrs, r.pending)
		r.pending = nil
	}
	r.starts++
	r.mw.Start(name, attrs)
}

func (r *renderer) comment(s string) {
	if r.markup() {
		r.mw.Comment(s)
	} else {
		r.sf.Comment(s)
	}
}

// leaf emits a scalar: <name attrs>text</name> or "\marker text".
func (r *renderer) leaf(rule *Rule, attrs []xml.Attr, text string) {
	if r.markup() {
		r.start(rule.OutputName(), attrs)
		r.mw.Text(text)
		r.mw.End()
		return
	}
	r.sf.Field(marker(rule), text)
}

func marker(rule *Rule) string {
	if m := rule.Attr("marker"); m != "" {
		return m
	}
	return rule.Attr("name")
}

func mergeAttrs(attrs, extra []xml.Attr) []xml.Attr {
	out := append([]xml.Attr(nil), attrs...)
	for _, a := range extra {
		out = setAttr(out, a.Name, a.Value)
	}
	return out
}

func setAttr(attrs []xml.Attr, name, value string) []xml.Attr {
	for i := range attrs {
		if attrs[i].Name == name {
			attrs[i].Value = value
			return attrs
		}
	}
	return append(attrs, xml.Attr{Name: name, Value: value})
}

func (r *renderer) element(obj store.Handle, class string, rule *Rule) error {
	if !r.markup() {
		if m := rule.Attr("marker"); m != "" {
			r.sf.Field(m, "")
		}
		return r.rules(obj, class, rule.Children)
	}

	var attrs []xml.Attr
	if rule.Kind == KindLiteral {
		for _, a := range rule.Attrs {
			if a.Name != "progress" {
				attrs = append(attrs, a)
			}
		}
	}
	attrs, err := r.collectAttrs(obj, class, rule.Children, attrs)
	if err != nil {
		return err
	}
	r.start(rule.OutputName(), attrs)
	if err := r.rules(obj, class, rule.Children); err != nil {
		return err
	}
	r.mw.End()
	return nil
}

// collectAttrs gathers the attributes an element's content contributes,
// looking through guards, calls, groups and custom expansions.
func (r *renderer) collectAttrs(obj store.Handle, class string, rules []*Rule, acc []xml.Attr) ([]xml.Attr, error) {
	for _, rule := range rules {
		var err error
		switch rule.Kind {
		case KindAttribute:
			var value string
			if value, err = r.attrValue(obj, rule); err == nil && value != "" {
				r.s.notify(rule, obj, class)
				acc = setAttr(acc, rule.Attr("name"), value)
			}
		case KindIf, KindIfNot:
			var ok bool
			if ok, err = r.test(obj, rule); err == nil && ok {
				acc, err = r.collectAttrs(obj, class, rule.Children, acc)
			}
		case KindCall:
			acc, err = r.collectCallAttrs(obj, class, rule, acc)
		case KindGroup:
			var target store.Handle
			var tclass string
			if target, tclass, err = r.groupTarget(obj, rule); err == nil && target != store.NoHandle {
				acc, err = r.collectAttrs(target, tclass, rule.Children, acc)
			}
		case KindGenerateCustom:
			var insts []*Rule
			if insts, err = r.s.catalog.ExpandCustom(class, rule); err == nil {
				for _, inst := range insts {
					if acc, err = r.collectAttrs(obj, class, inst.Children, acc); err != nil {
						break
					}
				}
			}
		case KindSequence:
			acc, err = r.collectAttrs(obj, class, rule.Children, acc)
		}
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func (r *renderer) collectCallAttrs(obj store.Handle, class string, rule *Rule, acc []xml.Attr) ([]xml.Attr, error) {
	called, err := r.s.catalog.RuleByName(rule.Attr("name"))
	if err != nil {
		return nil, err
	}
	if err := r.enter(); err != nil {
		return nil, err
	}
	defer r.leave()

	if acc, err = r.collectAttrs(obj, class, called.Children, acc); err != nil {
		return nil, err
	}
	if rule.Bool("noWrapper", false) {
		for _, c := range called.Children {
			if c.Kind == KindElement {
				if acc, err = r.collectAttrs(obj, class, c.Children, acc); err != nil {
					return nil, err
				}
			}
		}
	}
	return acc, nil
}

func (r *renderer) call(obj store.Handle, class string, rule *Rule) error {
	called, err := r.s.catalog.RuleByName(rule.Attr("name"))
	if err != nil {
		return err
	}
	if err := r.enter(); err != nil {
		return err
	}
	defer r.leave()

	if !rule.Bool("noWrapper", false) {
		return r.rules(obj, class, called.Children)
	}
	for _, c := range called.Children {
		if c.Kind == KindElement {
			err = r.rules(obj, class, c.Children)
		} else {
			err = r.rule(obj, class, c)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// read resolves a rule's field. Rules marked optional="true" treat an
// undeclared field as absent.
func (r *renderer) read(obj store.Handle, rule *Rule, path string, def LocaleSelector) (Value, error) {
	sel, err := ParseLocaleSelector(rule.Attr("ws"), def)
	if err != nil {
		return Value{}, err
	}
	v, err := r.s.resolver.resolve(rule, obj, path, sel)
	if err != nil && IsConfigurationError(err) && rule.Bool("optional", false) {
		return Value{}, ErrNotFound
	}
	return v, err
}

// readPresent is read with ErrNotFound mapped to a null value.
func (r *renderer) readPresent(obj store.Handle, rule *Rule, def LocaleSelector) (Value, bool, error) {
	v, err := r.read(obj, rule, rule.Attr("field"), def)
	if errors.Is(err, ErrNotFound) {
		return Value{}, false, nil
	}
	if err != nil {
		return Value{}, false, err
	}
	return v, true, nil
}

func (r *renderer) attrValue(obj store.Handle, rule *Rule) (string, error) {
	if v, ok := rule.LookupAttr("value"); ok {
		return v, nil
	}
	v, ok, err := r.readPresent(obj, rule, SelectBestAnalysis)
	if err != nil || !ok {
		return "", err
	}
	return r.s.norm.String(v.Text()), nil
}

func intOf(v Value) (int, bool) {
	switch v.Kind {
	case store.KindInteger:
		return v.Int, true
	case store.KindBoolean:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case store.KindOwningAtomic, store.KindReferenceAtomic:
		return int(v.Ref), true
	}
	n, err := strconv.Atoi(v.Text())
	return n, err == nil
}

// test evaluates an if or ifnot guard.
func (r *renderer) test(obj store.Handle, rule *Rule) (bool, error) {
	var ok bool
	if flag, isFlag := rule.LookupAttr("flag"); isFlag {
		ok = r.s.flags[flag]
	} else {
		v, present, err := r.readPresent(obj, rule, SelectBestAnalysis)
		if err != nil {
			return false, err
		}
		null := !present || v.IsNull()

		switch {
		case has(rule, "intEquals"):
			want, _, err := rule.Int("intEquals")
			if err != nil {
				return false, err
			}
			n, isInt := intOf(v)
			ok = present && isInt && n == want
		case has(rule, "lengthEquals"):
			want, _, err := rule.Int("lengthEquals")
			if err != nil {
				return false, err
			}
			ok = v.Len() == want
		case has(rule, "stringEquals"):
			ok = v.Text() == rule.Attr("stringEquals")
		case has(rule, "null"):
			ok = null == rule.Bool("null", true)
		default:
			ok = !null
		}
	}
	if rule.Kind == KindIfNot {
		ok = !ok
	}
	return ok, nil
}

func has(rule *Rule, name string) bool {
	_, ok := rule.LookupAttr(name)
	return ok
}

func (r *renderer) stringElement(obj store.Handle, rule *Rule) error {
	v, ok, err := r.readPresent(obj, rule, SelectBestAnalysis)
	if err != nil || !ok {
		return err
	}
	if text := r.s.norm.String(v.Text()); text != "" {
		r.leaf(rule, nil, text)
	}
	return nil
}

func (r *renderer) multilingual(obj store.Handle, rule *Rule) error {
	v, ok, err := r.readPresent(obj, rule, SelectAll)
	if err != nil || !ok {
		return err
	}
	if v.Kind != store.KindMultiString {
		return NewConfigurationError(rule.Describe(), "", rule.Attr("field"), "field is not multilingual")
	}
	settings := r.s.resolver.Locales()
	for _, alt := range v.Alts {
		text := r.s.norm.String(alt.Text)
		if r.markup() {
			r.leaf(rule, []xml.Attr{{Name: "ws", Value: alt.Locale}}, text)
		} else {
			r.sf.Field(render.LocaleMarker(marker(rule), settings.Label(alt.Locale)), text)
		}
	}
	return nil
}

// suppressed applies skipIfEqual, skipIfGreaterThan and skipIfLessThan.
func suppressed(rule *Rule, n int) (bool, error) {
	checks := []struct {
		attr string
		hit  func(limit int) bool
	}{
		{"skipIfEqual", func(limit int) bool { return n == limit }},
		{"skipIfGreaterThan", func(limit int) bool { return n > limit }},
		{"skipIfLessThan", func(limit int) bool { return n < limit }},
	}
	for _, c := range checks {
		limit, ok, err := rule.Int(c.attr)
		if err != nil {
			return false, err
		}
		if ok && c.hit(limit) {
			return true, nil
		}
	}
	return false, nil
}

func (r *renderer) number(obj store.Handle, rule *Rule) error {
	v, ok, err := r.readPresent(obj, rule, SelectBestAnalysis)
	if err != nil || !ok {
		return err
	}
	n, isInt := intOf(v)
	if !isInt {
		return NewConfigurationError(rule.Describe(), "", rule.Attr("field"), "field is not numeric")
	}
	skip, err := suppressed(rule, n)
	if err != nil || skip {
		return err
	}
	r.scalar(rule, strconv.Itoa(n))
	return nil
}

func (r *renderer) boolean(obj store.Handle, rule *Rule) error {
	v, ok, err := r.readPresent(obj, rule, SelectBestAnalysis)
	if err != nil || !ok {
		return err
	}
	b := v.Bool
	if v.Kind != store.KindBoolean {
		b = !v.IsNull()
	}
	if !b && rule.Bool("skipIfFalse", false) {
		return nil
	}
	r.scalar(rule, strconv.FormatBool(b))
	return nil
}

// scalar emits a number or boolean, in trait form when requested.
func (r *renderer) scalar(rule *Rule, text string) {
	if r.markup() && rule.Bool("trait", false) {
		r.start("trait", []xml.Attr{{Name: "name", Value: rule.Attr("name")}, {Name: "value", Value: text}})
		r.mw.End()
		return
	}
	r.leaf(rule, nil, text)
}

func (r *renderer) refAtomic(obj store.Handle, rule *Rule) error {
	v, ok, err := r.readPresent(obj, rule, SelectBestAnalysis)
	if err != nil || !ok || v.Ref == store.NoHandle {
		return err
	}
	r.reference(rule, v.Ref, -1)
	return nil
}

// reference emits a reference-only entry; ord < 0 omits the position.
func (r *renderer) reference(rule *Rule, target store.Handle, ord int) {
	dst := strconv.Itoa(int(target))
	if !r.markup() {
		r.sf.Field(marker(rule), dst)
		return
	}
	attrs := []xml.Attr{{Name: "dst", Value: dst}}
	if ord >= 0 {
		attrs = append(attrs, xml.Attr{Name: "ord", Value: strconv.Itoa(ord)})
	}
	r.start(rule.Attr("name"), attrs)
	r.mw.End()
}

func (r *renderer) targets(obj store.Handle, rule *Rule) ([]store.Handle, error) {
	v, ok, err := r.readPresent(obj, rule, SelectBestAnalysis)
	if err != nil || !ok {
		return nil, err
	}
	if !v.Kind.IsObject() {
		return nil, NewConfigurationError(rule.Describe(), "", rule.Attr("field"), "field is not a relation")
	}
	return v.Handles(), nil
}

func (r *renderer) vector(obj store.Handle, rule *Rule) error {
	targets, err := r.targets(obj, rule)
	if err != nil {
		return err
	}

	wrapper := rule.Kind == KindObjVector && rule.Attr("name") != ""
	if wrapper {
		if r.markup() {
			r.start(rule.Attr("name"), nil)
		} else if m := rule.Attr("marker"); m != "" {
			r.sf.Field(m, "")
		}
	}
	// ord counts the members that produced an element, so skipped
	// members leave no gap
	n := 0
	for _, h := range targets {
		if r.s.Canceled() {
			return ErrCanceled
		}
		ord := -1
		if ordered(rule) {
			ord = n
		}
		wrote, err := r.vectorItem(rule, h, ord)
		if err != nil {
			return err
		}
		if wrote {
			n++
		}
	}
	if wrapper && r.markup() {
		r.mw.End()
	}
	return nil
}

func ordered(rule *Rule) bool {
	return rule.Bool("ord", true)
}

// vectorItem renders one member of a to-many relation at position ord, or
// without a position when ord < 0. It reports whether the member opened an
// element.
func (r *renderer) vectorItem(rule *Rule, target store.Handle, ord int) (bool, error) {
	before := r.starts
	err := r.member(rule, target, ord)
	return r.starts > before, err
}

func (r *renderer) member(rule *Rule, target store.Handle, ord int) error {
	switch rule.Kind {
	case KindRefVector:
		r.reference(rule, target, ord)
		return nil
	case KindRefObjVector:
		tclass, ok := r.s.st.ClassOf(target)
		if !ok {
			return nil
		}
		crule, err := r.s.catalog.FindClassRule(tclass, rule.Attr("tag"))
		if err != nil {
			return err
		}
		if !r.markup() {
			r.sf.Field(marker(rule), strconv.Itoa(int(target)))
			if crule == nil {
				return nil
			}
			return r.classRule(target, tclass, crule)
		}
		attrs := []xml.Attr{{Name: "dst", Value: strconv.Itoa(int(target))}}
		if ord >= 0 {
			attrs = append(attrs, xml.Attr{Name: "ord", Value: strconv.Itoa(ord)})
		}
		r.start(rule.Attr("name"), attrs)
		if crule != nil {
			if err := r.classRule(target, tclass, crule); err != nil {
				return err
			}
		}
		r.mw.End()
		return nil
	default:
		if ord >= 0 && r.markup() {
			r.pending = []xml.Attr{{Name: "ord", Value: strconv.Itoa(ord)}}
		}
		err := r.object(target, rule.Attr("tag"))
		r.pending = nil
		return err
	}
}

func (r *renderer) objAtomic(obj store.Handle, rule *Rule) error {
	v, ok, err := r.readPresent(obj, rule, SelectBestAnalysis)
	if err != nil || !ok || v.Ref == store.NoHandle {
		return err
	}
	name := rule.Attr("name")
	if r.markup() && name != "" {
		r.start(name, nil)
	} else if m := rule.Attr("marker"); !r.markup() && m != "" {
		r.sf.Field(m, "")
	}
	if err := r.object(v.Ref, rule.Attr("tag")); err != nil {
		return err
	}
	if r.markup() && name != "" {
		r.mw.End()
	}
	return nil
}

func (r *renderer) groupTarget(obj store.Handle, rule *Rule) (store.Handle, string, error) {
	v, ok, err := r.readPresent(obj, rule, SelectBestAnalysis)
	if err != nil || !ok || v.Ref == store.NoHandle {
		return store.NoHandle, "", err
	}
	class, exists := r.s.st.ClassOf(v.Ref)
	if !exists {
		return store.NoHandle, "", nil
	}
	return v.Ref, class, nil
}
