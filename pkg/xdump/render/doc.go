// Package render provides the output-side helpers of the export engine.
//
// These helpers hold no engine state and never call back into the xdump
// package, which imports them:
//
//   - markup.go: MarkupWriter, the streaming writer of the hierarchical dialect
//   - marker.go: MarkerWriter, the line-oriented standard-format dialect
//   - normalize.go: Normalizer, emission-time Unicode normalization
//
// MarkupWriter produces the canonical layout of the xml package, so anything
// it streams can be parsed, patched and written back without layout drift.
package render
