package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/target/notekeeper/internal/domain/model"
	"github.com/target/notekeeper/internal/http/uiutil"
	"github.com/target/notekeeper/internal/observability/notify"
)

const (
	outputTable = "table"
	outputJSON  = "json"

	titleWidth   = 40
	excerptWidth = 60
)

// noticePrinter is the CLI's notify.Sink: one line per notice on stderr.
type noticePrinter struct {
	w io.Writer
}

func (p noticePrinter) Notify(_ context.Context, n notify.Notice) error {
	var marker string
	switch n.Severity {
	case notify.SeveritySuccess:
		marker = "✓"
	case notify.SeverityWarning:
		marker = "!"
	case notify.SeverityError, notify.SeverityCritical:
		marker = "✗"
	default:
		marker = "·"
	}
	line := marker + " " + n.Title
	if n.Description != "" {
		line += ": " + n.Description
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}

func validateOutput(format, query string) error {
	switch format {
	case outputTable, outputJSON:
	default:
		return fmt.Errorf("unknown output format %q (want %s or %s)", format, outputTable, outputJSON)
	}
	if query == "" {
		return nil
	}
	if format != outputJSON {
		return fmt.Errorf("--query requires --output %s", outputJSON)
	}
	if _, err := jmespath.Compile(query); err != nil {
		return fmt.Errorf("invalid --query: %w", err)
	}
	return nil
}

// writeJSON prints v as indented JSON, filtered through the JMESPath query
// when one is given. The query runs against the API's JSON field names.
func writeJSON(w io.Writer, v any, query string) error {
	if query != "" {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		var data any
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("decode output: %w", err)
		}
		v, err = jmespath.Search(query, data)
		if err != nil {
			return fmt.Errorf("apply query: %w", err)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printNotes(w io.Writer, list model.NoteList, now time.Time) error {
	if len(list.Notes) == 0 {
		_, err := fmt.Fprintln(w, "No notes found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCATEGORY\tVISIBILITY\tOWNER\tUPDATED")
	for _, n := range list.Notes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			n.ID,
			uiutil.Truncate(n.Title, titleWidth),
			deref(n.Category, "-"),
			visibility(n.IsPublic),
			orDash(n.UserEmail),
			uiutil.Since(now, n.UpdatedAt),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(list.Categories) > 0 {
		_, err := fmt.Fprintf(w, "\nCategories: %s\n", strings.Join(list.Categories, ", "))
		return err
	}
	return nil
}

func printNote(w io.Writer, n *model.Note, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "Title:\t%s\n", n.Title)
	fmt.Fprintf(tw, "ID:\t%s\n", n.ID)
	fmt.Fprintf(tw, "Owner:\t%s\n", orDash(n.UserEmail))
	fmt.Fprintf(tw, "Category:\t%s\n", deref(n.Category, "-"))
	fmt.Fprintf(tw, "Visibility:\t%s\n", visibility(n.IsPublic))
	fmt.Fprintf(tw, "Created:\t%s\n", uiutil.DateTime(n.CreatedAt))
	fmt.Fprintf(tw, "Updated:\t%s\n", uiutil.Since(now, n.UpdatedAt))
	if err := tw.Flush(); err != nil {
		return err
	}
	if content := deref(n.Content, ""); content != "" {
		_, err := fmt.Fprintf(w, "\n%s\n", content)
		return err
	}
	return nil
}

// printNoteLine is the one-line summary used after create and update.
func printNoteLine(w io.Writer, verb string, n *model.Note) error {
	_, err := fmt.Fprintf(w, "%s note %s %q\n", verb, n.ID, uiutil.Truncate(n.Title, excerptWidth))
	return err
}

func visibility(public bool) string {
	if public {
		return "public"
	}
	return "private"
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
