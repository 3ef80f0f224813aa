package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-xdump/pkg/xdump"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/store/memstore"
)

var (
	templatePath   string
	graphPath      string
	rootID         int
	ruleName       string
	sessionFlags   []string
	excludeClasses []string
	showProgress   bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render an object graph through a template",
	Long: `Renders the root object of a YAML graph with a template document.

Examples:
  xdump render -t lexicon.xml -g graph.yaml -r 1
  xdump render -t lexicon.xml -g graph.yaml -r 7 --rule Word:short --flag full`,
	RunE: runRender,
}

func registerRenderFlags() {
	for _, cmd := range []*cobra.Command{renderCmd, updateCmd} {
		cmd.Flags().StringVarP(&templatePath, "template", "t", "", "Template document (required)")
		cmd.Flags().StringVarP(&graphPath, "graph", "g", "", "YAML object graph (required)")
		cmd.Flags().StringSliceVar(&sessionFlags, "flag", nil, "Session flag tested by if/ifnot flag rules")
		_ = cmd.MarkFlagRequired("template")
		_ = cmd.MarkFlagRequired("graph")
	}
	renderCmd.Flags().IntVarP(&rootID, "root", "r", 1, "Root object id")
	renderCmd.Flags().StringVar(&ruleName, "rule", "", "Class rule to start with, Class or Class:tag")
	renderCmd.Flags().StringSliceVar(&excludeClasses, "exclude-class", nil, "Skip objects of this class")
	renderCmd.Flags().BoolVar(&showProgress, "progress", false, "Log progress notifications")
}

// loadInputs prepares the template and loads the graph named by the flags.
func loadInputs(e *xdump.Engine) (*xdump.Template, *memstore.Store, error) {
	tmpl, err := e.PrepareFile(templatePath)
	if err != nil {
		return nil, nil, err
	}
	st, err := memstore.LoadFile(graphPath)
	if err != nil {
		return nil, nil, err
	}
	return tmpl, st, nil
}

func runRender(cmd *cobra.Command, args []string) error {
	e := newEngine()
	tmpl, st, err := loadInputs(e)
	if err != nil {
		return err
	}

	opts := []xdump.SessionOption{xdump.WithFlags(sessionFlags...)}
	if len(excludeClasses) > 0 {
		opts = append(opts, xdump.WithFilters(xdump.ExcludeClasses(excludeClasses...)))
	}
	if showProgress {
		opts = append(opts, xdump.WithProgress(func(p xdump.Progress) {
			logger.WithField("object", p.Object).Info("rendering %s", p.Class)
		}))
	}
	session, err := e.NewSession(tmpl, st, opts...)
	if err != nil {
		return err
	}

	defer watchInterrupt(cmd, session)()

	w, closeOut, err := openOutput(cmd)
	if err != nil {
		return err
	}
	if err := session.Render(w, store.Handle(rootID), ruleName); err != nil {
		_ = closeOut()
		return fmt.Errorf("render failed: %w", err)
	}
	return closeOut()
}
