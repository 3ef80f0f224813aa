package render

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalizer applies one Unicode normalization form to emitted strings.
type Normalizer struct {
	form    norm.Form
	enabled bool
	name    string
}

// ParseNormalization maps NFC, NFD, NFKC, NFKD or none to a Normalizer.
// The empty string selects NFC.
func ParseNormalization(name string) (Normalizer, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "NFC":
		return Normalizer{form: norm.NFC, enabled: true, name: "NFC"}, nil
	case "NFD":
		return Normalizer{form: norm.NFD, enabled: true, name: "NFD"}, nil
	case "NFKC":
		return Normalizer{form: norm.NFKC, enabled: true, name: "NFKC"}, nil
	case "NFKD":
		return Normalizer{form: norm.NFKD, enabled: true, name: "NFKD"}, nil
	case "NONE":
		return Normalizer{name: "none"}, nil
	default:
		return Normalizer{}, fmt.Errorf("unknown normalization form %q", name)
	}
}

// String normalizes s.
func (n Normalizer) String(s string) string {
	if !n.enabled || s == "" {
		return s
	}
	return n.form.String(s)
}

// Name returns the canonical name of the form.
func (n Normalizer) Name() string {
	if n.name == "" {
		return "none"
	}
	return n.name
}
