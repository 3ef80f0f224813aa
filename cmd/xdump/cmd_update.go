package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benjaminschreck/go-xdump/pkg/xdump"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/store"
	"github.com/benjaminschreck/go-xdump/pkg/xdump/xml"
)

var (
	docPath    string
	changeArgs []string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Patch a rendered document after field changes",
	Long: `Re-synchronizes a document rendered earlier with the same template against
the current graph. Each --change names an object id and a field, either by
name or by numeric field id.

Example:
  xdump update -t lexicon.xml -g graph.yaml -d out.xml --change 2:Senses --change 4:Gloss`,
	RunE: runUpdate,
}

func registerUpdateFlags() {
	updateCmd.Flags().StringVarP(&docPath, "doc", "d", "", "Previously rendered document (required)")
	updateCmd.Flags().StringArrayVar(&changeArgs, "change", nil, "Changed field as object:field")
	_ = updateCmd.MarkFlagRequired("doc")
}

// parseChange reads "object:field" against the store's metadata.
func parseChange(st store.Store, arg string) (xdump.Change, error) {
	objPart, fieldPart, ok := strings.Cut(arg, ":")
	if !ok || fieldPart == "" {
		return xdump.Change{}, fmt.Errorf("change %q: want object:field", arg)
	}
	id, err := strconv.Atoi(objPart)
	if err != nil {
		return xdump.Change{}, fmt.Errorf("change %q: object id: %w", arg, err)
	}
	obj := store.Handle(id)

	if n, err := strconv.Atoi(fieldPart); err == nil {
		if _, ok := st.Field(store.FieldID(n)); !ok {
			return xdump.Change{}, fmt.Errorf("change %q: no field with id %d", arg, n)
		}
		return xdump.Change{Object: obj, Field: store.FieldID(n)}, nil
	}

	class, ok := st.ClassOf(obj)
	if !ok {
		return xdump.Change{}, fmt.Errorf("change %q: %w", arg, store.ErrNoObject)
	}
	info, ok := st.FieldByName(class, fieldPart)
	if !ok {
		return xdump.Change{}, fmt.Errorf("change %q: %s has no field %s", arg, class, fieldPart)
	}
	return xdump.Change{Object: obj, Field: info.ID}, nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	e := newEngine()
	tmpl, st, err := loadInputs(e)
	if err != nil {
		return err
	}

	changes := make([]xdump.Change, 0, len(changeArgs))
	for _, arg := range changeArgs {
		c, err := parseChange(st, arg)
		if err != nil {
			return err
		}
		changes = append(changes, c)
	}

	f, err := os.Open(docPath)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	doc, err := xml.Parse(f)
	f.Close()
	if err != nil {
		return err
	}

	session, err := e.NewSession(tmpl, st, xdump.WithFlags(sessionFlags...))
	if err != nil {
		return err
	}
	defer watchInterrupt(cmd, session)()

	doc, err = session.ApplyChanges(changes, doc)
	var multi *xdump.MultiError
	if err != nil && !errors.As(err, &multi) {
		return fmt.Errorf("update failed: %w", err)
	}
	logger.WithField("changes", len(changes)).Info("document updated")

	w, closeOut, werr := openOutput(cmd)
	if werr != nil {
		return werr
	}
	if _, werr := doc.WriteTo(w); werr != nil {
		_ = closeOut()
		return werr
	}
	if werr := closeOut(); werr != nil {
		return werr
	}
	// uncovered changes still leave a usable document
	return err
}
