package xdump

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
)

type selectorMode int

const (
	selectExplicit selectorMode = iota
	selectDefault
	selectBest
	selectAll
)

type localeRole int

const (
	roleAny localeRole = iota
	roleVernacular
	roleAnalysis
)

// LocaleSelector picks alternatives of a multilingual value.
type LocaleSelector struct {
	mode   selectorMode
	role   localeRole
	locale string
}

var (
	// SelectAll yields every non-empty alternative, vernacular first.
	SelectAll = LocaleSelector{mode: selectAll, role: roleAny}
	// SelectBestAnalysis yields the first non-empty analysis alternative.
	SelectBestAnalysis = LocaleSelector{mode: selectBest, role: roleAnalysis}
)

// ParseLocaleSelector reads a ws attribute. Role selectors are
// "vernacular", "analysis", "best vernacular", "best analysis",
// "all vernacular", "all analysis" and "all"; anything else is a locale id.
func ParseLocaleSelector(s string, def LocaleSelector) (LocaleSelector, error) {
	s = strings.Join(strings.Fields(s), " ")
	switch strings.ToLower(s) {
	case "":
		return def, nil
	case "vernacular":
		return LocaleSelector{mode: selectDefault, role: roleVernacular}, nil
	case "analysis":
		return LocaleSelector{mode: selectDefault, role: roleAnalysis}, nil
	case "best vernacular":
		return LocaleSelector{mode: selectBest, role: roleVernacular}, nil
	case "best analysis":
		return SelectBestAnalysis, nil
	case "all vernacular":
		return LocaleSelector{mode: selectAll, role: roleVernacular}, nil
	case "all analysis":
		return LocaleSelector{mode: selectAll, role: roleAnalysis}, nil
	case "all":
		return SelectAll, nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return LocaleSelector{}, NewConfigurationError("", "", "", "invalid locale selector "+s+": "+err.Error())
	}
	return LocaleSelector{mode: selectExplicit, locale: tag.String()}, nil
}

// canonicalLocale normalizes a store locale id for comparison. Ids the
// language package cannot parse compare verbatim.
func canonicalLocale(id string) string {
	tag, err := language.Parse(id)
	if err != nil {
		return id
	}
	return tag.String()
}

func usable(text string) bool {
	return text != "" && text != store.NoneFound
}

func (s LocaleSelector) roleLocales(settings store.LocaleSettings) []string {
	switch s.role {
	case roleVernacular:
		return settings.Vernacular
	case roleAnalysis:
		return settings.Analysis
	default:
		return append(append([]string(nil), settings.Vernacular...), settings.Analysis...)
	}
}

// Select returns the chosen alternatives in output order. The none-found
// placeholder never survives selection.
func (s LocaleSelector) Select(alts []store.Alternative, settings store.LocaleSettings) []store.Alternative {
	byLocale := make(map[string]store.Alternative, len(alts))
	for _, a := range alts {
		byLocale[canonicalLocale(a.Locale)] = a
	}
	pick := func(locale string) (store.Alternative, bool) {
		a, ok := byLocale[canonicalLocale(locale)]
		if !ok || !usable(a.Text) {
			return store.Alternative{}, false
		}
		return a, true
	}

	switch s.mode {
	case selectExplicit:
		if a, ok := pick(s.locale); ok {
			return []store.Alternative{a}
		}
		return nil
	case selectDefault:
		locales := s.roleLocales(settings)
		if len(locales) == 0 {
			return nil
		}
		if a, ok := pick(locales[0]); ok {
			return []store.Alternative{a}
		}
		return nil
	case selectBest:
		for _, l := range s.roleLocales(settings) {
			if a, ok := pick(l); ok {
				return []store.Alternative{a}
			}
		}
		return nil
	}

	var out []store.Alternative
	seen := make(map[string]bool)
	for _, l := range s.roleLocales(settings) {
		key := canonicalLocale(l)
		if seen[key] {
			continue
		}
		seen[key] = true
		if a, ok := pick(l); ok {
			out = append(out, a)
		}
	}
	if s.role == roleAny {
		for _, a := range alts {
			key := canonicalLocale(a.Locale)
			if !seen[key] && usable(a.Text) {
				seen[key] = true
				out = append(out, a)
			}
		}
	}
	return out
}
