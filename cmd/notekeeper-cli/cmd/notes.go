package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/notekeeper/internal/domain/model"
)

// listOptions mirrors the `notes list` flags.
type listOptions struct {
	view     string
	category string
	search   string
	limit    int
	offset   int
}

func (o listOptions) toModel() model.NotesListOptions {
	view, _ := model.ParseViewMode(o.view)
	opts := model.NotesListOptions{View: view, Limit: o.limit, Offset: o.offset}
	if c := strings.TrimSpace(o.category); c != "" {
		opts.Category = &c
	}
	if s := strings.TrimSpace(o.search); s != "" {
		opts.Search = &s
	}
	return opts
}

var (
	listOpts     listOptions
	outputFormat string
	outputQuery  string

	noteTitle    string
	noteContent  string
	noteCategory string
	notePublic   bool
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "List, read and edit notes",
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes",
	Long: `Lists public notes plus your own when signed in. --view mine requires a
session. With --output json, --query applies a JMESPath expression to the
response, for example: --query "notes[?is_public].title".`,
	Args: cobra.NoArgs,
	RunE: runNotesList,
}

var notesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one note",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotesGet,
}

var notesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a note",
	Args:  cobra.NoArgs,
	RunE:  runNotesCreate,
}

var notesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update fields of a note you own",
	Long:  `Only the flags you pass are changed. An empty --category clears the category.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runNotesUpdate,
}

var notesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a note you own",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotesDelete,
}

func init() {
	rootCmd.AddCommand(notesCmd)
	notesCmd.AddCommand(notesListCmd, notesGetCmd, notesCreateCmd, notesUpdateCmd, notesDeleteCmd)

	for _, c := range []*cobra.Command{notesListCmd, notesGetCmd} {
		c.Flags().StringVarP(&outputFormat, "output", "o", outputTable, "output format: table or json")
		c.Flags().StringVar(&outputQuery, "query", "", "JMESPath expression applied to JSON output")
	}

	f := notesListCmd.Flags()
	f.StringVar(&listOpts.view, "view", string(model.ViewAll), "which notes to list: all, mine or public")
	f.StringVar(&listOpts.category, "category", "", "only notes in this category")
	f.StringVarP(&listOpts.search, "search", "q", "", "only notes whose title or content contains this text")
	f.IntVar(&listOpts.limit, "limit", 0, "page size (server default when 0)")
	f.IntVar(&listOpts.offset, "offset", 0, "number of notes to skip")

	for _, c := range []*cobra.Command{notesCreateCmd, notesUpdateCmd} {
		c.Flags().StringVarP(&noteTitle, "title", "t", "", "note title")
		c.Flags().StringVarP(&noteContent, "content", "c", "", "note body")
		c.Flags().StringVar(&noteCategory, "category", "", "note category")
		c.Flags().BoolVar(&notePublic, "public", false, "make the note visible to everyone")
	}
	_ = notesCreateCmd.MarkFlagRequired("title")
}

func runNotesList(cmd *cobra.Command, _ []string) error {
	if err := validateOutput(outputFormat, outputQuery); err != nil {
		return err
	}
	if _, ok := model.ParseViewMode(listOpts.view); !ok {
		return fmt.Errorf("unknown view %q (want all, mine or public)", listOpts.view)
	}
	if listOpts.limit < 0 || listOpts.offset < 0 {
		return errors.New("--limit and --offset must not be negative")
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	opts := listOpts.toModel()
	if opts.View == model.ViewMine {
		if _, err := a.require(ctx, dashboardPath); err != nil {
			return err
		}
	}

	list, err := a.notes.List(ctx, opts)
	if err != nil {
		return fmt.Errorf("list notes: %w", err)
	}
	if outputFormat == outputJSON {
		return writeJSON(a.out, list, outputQuery)
	}
	return printNotes(a.out, list, time.Now())
}

func runNotesGet(cmd *cobra.Command, args []string) error {
	if err := validateOutput(outputFormat, outputQuery); err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.notes.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get note %s: %w", args[0], err)
	}
	if outputFormat == outputJSON {
		return writeJSON(a.out, n, outputQuery)
	}
	return printNote(a.out, n, time.Now())
}

func runNotesCreate(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if _, err := a.require(ctx, newNoteLocation); err != nil {
		return err
	}

	req := createRequest(cmd)
	if err := req.Validate(); err != nil {
		return err
	}
	n, err := a.notes.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("create note: %w", err)
	}
	return printNoteLine(a.out, "Created", n)
}

func runNotesUpdate(cmd *cobra.Command, args []string) error {
	req := updateRequest(cmd)
	if err := req.Validate(); err != nil {
		return err
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if _, err := a.require(ctx, notePath(args[0])); err != nil {
		return err
	}
	n, err := a.notes.Update(ctx, args[0], req)
	if err != nil {
		return fmt.Errorf("update note %s: %w", args[0], err)
	}
	return printNoteLine(a.out, "Updated", n)
}

func runNotesDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if _, err := a.require(ctx, notePath(args[0])); err != nil {
		return err
	}
	if err := a.notes.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("delete note %s: %w", args[0], err)
	}
	fmt.Fprintf(a.out, "Deleted note %s\n", args[0])
	return nil
}

// createRequest builds the request from the flags; server-side defaults apply
// to anything not passed.
func createRequest(cmd *cobra.Command) model.CreateNoteRequest {
	req := model.CreateNoteRequest{Title: noteTitle}
	flags := cmd.Flags()
	if flags.Changed("content") {
		req.Content = &noteContent
	}
	if flags.Changed("public") {
		req.IsPublic = &notePublic
	}
	if flags.Changed("category") {
		req.Category = &noteCategory
	}
	req.Normalize()
	return req
}

func updateRequest(cmd *cobra.Command) model.UpdateNoteRequest {
	var req model.UpdateNoteRequest
	flags := cmd.Flags()
	if flags.Changed("title") {
		req.Title = &noteTitle
	}
	if flags.Changed("content") {
		req.Content = &noteContent
	}
	if flags.Changed("public") {
		req.IsPublic = &notePublic
	}
	if flags.Changed("category") {
		req.Category = &noteCategory
	}
	return req
}
