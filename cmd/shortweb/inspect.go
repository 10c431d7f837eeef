package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/v0xg/shortweb/internal/action"
	"github.com/v0xg/shortweb/internal/document"
)

var errInvalidDocuments = errors.New("invalid documents")

func validateDocuments(cmd *cobra.Command, args []string) error {
	return validate(cmd.OutOrStdout(), args)
}

func validate(out io.Writer, paths []string) error {
	failed := 0
	for _, path := range paths {
		doc, err := document.Load(path)
		if err != nil {
			failed++
			var de *action.DecodeError
			if errors.As(err, &de) && de.Key != "" {
				fmt.Fprintf(out, "✗ %s: bad %q step: %v\n", path, de.Key, de.Err)
				continue
			}
			fmt.Fprintf(out, "✗ %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "✓ %s (%d steps)\n", path, len(doc.Actions))
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errInvalidDocuments, failed, len(paths))
	}
	return nil
}

func describeDocument(cmd *cobra.Command, args []string) error {
	doc, err := document.Load(args[0])
	if err != nil {
		return err
	}
	describe(cmd.OutOrStdout(), doc)
	return nil
}

func describe(out io.Writer, doc *document.Document) {
	dupOf := make(map[int]int)
	for _, pair := range doc.Duplicates() {
		if _, seen := dupOf[pair[1]]; !seen {
			dupOf[pair[1]] = pair[0]
		}
	}

	fmt.Fprintf(out, "%s (%d steps)\n", doc.Name, len(doc.Actions))
	for i, a := range doc.Actions {
		var notes []string
		if a.Timeout() > 0 {
			notes = append(notes, fmt.Sprintf("timeout %s", a.Timeout()))
		}
		if a.Interactive() {
			notes = append(notes, "asks for input")
		}
		if first, ok := dupOf[i]; ok {
			notes = append(notes, fmt.Sprintf("same as %d", first+1))
		}
		line := fmt.Sprintf("  %d. %s", i+1, a.Describe())
		for _, n := range notes {
			line += " [" + n + "]"
		}
		fmt.Fprintln(out, line)
	}
}
