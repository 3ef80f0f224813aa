package render

import (
	"io"
	"strings"
)

// MarkerWriter streams the line-oriented standard-format dialect: one
// "\marker value" line per leaf field.
type MarkerWriter struct {
	w   io.Writer
	err error
}

// NewMarkerWriter wraps an output sink.
func NewMarkerWriter(w io.Writer) *MarkerWriter {
	return &MarkerWriter{w: w}
}

// Field writes a marker line. Embedded newlines become continuation lines;
// a continuation that would start with a backslash is indented by one space
// so it is not read back as a marker.
func (m *MarkerWriter) Field(marker, value string) {
	if m.err != nil {
		return
	}
	line := `\` + marker
	if value != "" {
		line += " " + ContinuationLines(value)
	}
	_, m.err = io.WriteString(m.w, line+"\n")
}

// Comment writes an explanatory line that standard-format readers skip.
func (m *MarkerWriter) Comment(s string) {
	m.Field("_comment", strings.ReplaceAll(s, "\n", " "))
}

// Err returns the first write error.
func (m *MarkerWriter) Err() error {
	return m.err
}

// ContinuationLines normalizes line breaks in a field value.
func ContinuationLines(value string) string {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	value = strings.ReplaceAll(value, "\r", "\n")
	lines := strings.Split(value, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], `\`) {
			lines[i] = " " + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

// LocaleMarker builds the marker of one alternative of a multilingual field.
func LocaleMarker(marker, label string) string {
	if label == "" {
		return marker
	}
	return marker + "_" + label
}
