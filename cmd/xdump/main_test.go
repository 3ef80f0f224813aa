package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-xdump/pkg/xdump"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/store/memstore"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/xml"
)

const cliTemplate = `<template>
  <class name="Word">
    <element name="Word">
      <attribute name="Id" field="Id"/>
      <if flag="full"><stringElement name="Citation" field="Citation"/></if>
      <objVector field="Senses"/>
    </element>
  </class>
  <class name="Sense">
    <element name="Sense">
      <attribute name="Id" field="Id"/>
      <multilingualStringElement name="Gloss" field="Gloss" ws="all analysis"/>
    </element>
  </class>
</template>`

const cliGraph = `
locales:
  vernacular: [fr]
  analysis: [en]
classes:
  - name: Word
    fields:
      - {name: Citation, kind: string}
      - {name: Senses, kind: owningVector, target: Sense}
  - name: Sense
    fields:
      - {name: Gloss, kind: multistring}
objects:
  - id: 1
    class: Word
    values:
      Citation: maison
      Senses: [2, 3]
  - id: 2
    class: Sense
    values:
      Gloss: {en: GLOSS2}
  - id: 3
    class: Sense
    values:
      Gloss: {en: household}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// setupCLI points the global flags at fresh inputs and resets the rest.
func setupCLI(t *testing.T, graph string) string {
	t.Helper()
	dir := t.TempDir()
	logger = xdump.NewNopLogger()
	config = xdump.DefaultConfig()
	templatePath = writeFile(t, dir, "template.xml", cliTemplate)
	graphPath = writeFile(t, dir, "graph.yaml", graph)
	rootID = 1
	ruleName = ""
	sessionFlags = nil
	excludeClasses = nil
	showProgress = false
	outPath = ""
	docPath = ""
	changeArgs = nil
	return dir
}

func runCommand(t *testing.T, run func(*cobra.Command, []string) error) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	err := run(cmd, nil)
	return buf.String(), err
}

func TestRenderCmd(t *testing.T) {
	setupCLI(t, strings.Replace(cliGraph, "GLOSS2", "house", 1))

	out, err := runCommand(t, runRender)
	if err != nil {
		t.Fatalf("runRender failed: %v", err)
	}
	for _, want := range []string{`<Word Id="1">`, `<Sense Id="2" ord="0">`, `<Gloss ws="en">house</Gloss>`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Citation") {
		t.Error("Citation rendered without the full flag")
	}

	sessionFlags = []string{"full"}
	excludeClasses = []string{"Sense"}
	out, err = runCommand(t, runRender)
	if err != nil {
		t.Fatalf("runRender failed: %v", err)
	}
	if !strings.Contains(out, "<Citation>maison</Citation>") || !strings.Contains(out, "<!--Sense 2 skipped: class Sense excluded-->") {
		t.Errorf("flags and filters not applied:\n%s", out)
	}
}

func TestRenderCmdErrors(t *testing.T) {
	setupCLI(t, cliGraph)
	ruleName = "Word:missing"
	if _, err := runCommand(t, runRender); !xdump.IsConfigurationError(err) {
		t.Errorf("unknown rule error = %v, want ConfigurationError", err)
	}

	setupCLI(t, cliGraph)
	templatePath = filepath.Join(t.TempDir(), "missing.xml")
	if _, err := runCommand(t, runRender); !xdump.IsTemplateError(err) {
		t.Errorf("missing template error = %v, want TemplateError", err)
	}

	setupCLI(t, "objects: [{id: 1, class: Nope}]")
	if _, err := runCommand(t, runRender); err == nil {
		t.Error("invalid graph should fail")
	}
}

func TestUpdateCmd(t *testing.T) {
	dir := setupCLI(t, strings.Replace(cliGraph, "GLOSS2", "house", 1))
	outPath = filepath.Join(dir, "before.xml")
	if _, err := runCommand(t, runRender); err != nil {
		t.Fatalf("runRender failed: %v", err)
	}

	// the graph moves on: sense 2 gets a new gloss
	changed := strings.Replace(cliGraph, "GLOSS2", "home", 1)
	graphPath = writeFile(t, dir, "graph.yaml", changed)
	docPath = outPath
	outPath = ""
	changeArgs = []string{"2:Gloss"}
	patched, err := runCommand(t, runUpdate)
	if err != nil {
		t.Fatalf("runUpdate failed: %v", err)
	}

	fresh, err := runCommand(t, runRender)
	if err != nil {
		t.Fatalf("runRender failed: %v", err)
	}
	if normalizeDoc(t, patched) != normalizeDoc(t, fresh) {
		t.Errorf("patched document differs from a fresh render:\npatched:\n%s\nfresh:\n%s", patched, fresh)
	}
}

func normalizeDoc(t *testing.T, s string) string {
	t.Helper()
	doc, err := xml.ParseString(s)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	return doc.String()
}

func TestParseChange(t *testing.T) {
	st, err := memstore.Load(strings.NewReader(cliGraph))
	if err != nil {
		t.Fatal(err)
	}
	gloss := st.MustField("Sense", "Gloss")

	tests := []struct {
		arg     string
		want    xdump.Change
		wantErr bool
	}{
		{arg: "2:Gloss", want: xdump.Change{Object: 2, Field: gloss}},
		{arg: "3:3", want: xdump.Change{Object: 3, Field: 3}},
		{arg: "2", wantErr: true},
		{arg: "x:Gloss", wantErr: true},
		{arg: "9:Gloss", wantErr: true},
		{arg: "2:Citation", wantErr: true},
		{arg: "2:99", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseChange(st, tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseChange(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseChange(%q) = %+v, want %+v", tt.arg, got, tt.want)
			}
		})
	}
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	if !strings.Contains(buf.String(), version) {
		t.Errorf("version output = %q", buf.String())
	}
}
