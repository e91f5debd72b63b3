package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/onlinereader/internal/config"
	"github.com/nao1215/onlinereader/internal/database"
	"github.com/nao1215/onlinereader/internal/paragraph"
	"github.com/nao1215/onlinereader/internal/report"
)

// shortIDLen is the run ID prefix shown in listings.
const shortIDLen = 8

const noRunsMessage = "No saved runs found (use 'onlinereader fetch --save' to save one)"

// NewHistoryCmd creates the history command.
// This command reads runs saved with 'onlinereader fetch --save'.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List saved runs or print the paragraphs of one",
		Long: `History reads the runs saved with 'onlinereader fetch --save'.

Without arguments it lists the saved runs, newest first. With a run ID, or a
unique prefix of one, it prints the paragraphs of that run in the requested
report format.

Examples:
  # List saved runs
  onlinereader history

  # Print a run as Markdown
  onlinereader history --format markdown 3f2a9c1e

  # Find the runs that produced a given paragraph
  onlinereader history --find "BSD 3-Clause License"`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("format", "f", config.DefaultFormat,
		"Report format for a single run: "+strings.Join(config.Formats, ", "))
	cmd.Flags().String("find", "",
		"List the stored paragraphs whose text equals this value")
	cmd.Flags().String("db-dir", "",
		"Database directory (default: XDG data directory)")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	find, err := cmd.Flags().GetString("find")
	if err != nil {
		return err
	}
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	if find != "" && len(args) > 0 {
		return errors.New("--find cannot be combined with a run ID")
	}

	// Validate before opening the database so a typo does not create one.
	writer, err := report.New(format, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	// Reading history never creates the database.
	if _, err := os.Stat(filepath.Join(dbDir, database.FileName)); errors.Is(err, os.ErrNotExist) {
		switch {
		case find != "":
			fmt.Fprintln(out, "No matching paragraph found")
			return nil
		case len(args) == 1:
			return fmt.Errorf("no saved run matches %q", args[0])
		default:
			fmt.Fprintln(out, noRunsMessage)
			return nil
		}
	}

	db, err := database.Open(dbDir, database.Options{
		CreateIfNotExists: false,
		EnableWAL:         true,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case find != "":
		return findParagraphs(ctx, out, db, find)
	case len(args) == 1:
		return showRun(ctx, writer, db, args[0])
	default:
		return listRuns(ctx, out, db)
	}
}

// listRuns prints the saved runs, newest first.
func listRuns(ctx context.Context, out io.Writer, db *database.ParagraphDB) error {
	runs, err := db.ListRuns(ctx)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, noRunsMessage)
		return nil
	}

	fmt.Fprintf(out, "Saved runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-8s  %-19s  %-8s  %-9s  %-10s  %s\n",
		"ID", "Started", "Status", "Resources", "Paragraphs", "Joiner")
	for _, r := range runs {
		fmt.Fprintf(out, "  %-8s  %-19s  %-8s  %-9d  %-10d  %s\n",
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status,
			r.ResourceCount,
			r.ParagraphCount,
			r.Joiner,
		)
	}
	return nil
}

// showRun renders the paragraphs of one run with w.
func showRun(ctx context.Context, w report.Writer, db *database.ParagraphDB, id string) error {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("no saved run matches %q", id)
	}

	records, err := db.GetParagraphs(ctx, run.ID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.WriteParagraph(paragraph.Paragraph{Key: rec.Key, Text: rec.Text}); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	resources, err := db.GetResources(ctx, run.ID)
	if err != nil {
		return err
	}
	return w.Finish(summaryFromRun(run, resources, len(records)))
}

// summaryFromRun converts a stored run for the report writers.
func summaryFromRun(run *database.Run, resources []database.ResourceRecord, paragraphs int) report.Summary {
	s := report.Summary{
		RunID:      run.ID,
		StartedAt:  run.StartedAt,
		Paragraphs: paragraphs,
		Resources:  make([]report.Resource, len(resources)),
		Err:        run.Error,
	}
	if !run.FinishedAt.IsZero() {
		s.Elapsed = run.FinishedAt.Sub(run.StartedAt)
	}
	if run.Status == database.StatusFailed && s.Err == "" {
		s.Err = "unknown error"
	}
	for i, r := range resources {
		s.Resources[i] = report.Resource{Name: r.Name, Locator: r.Locator, Route: r.Route}
	}
	return s
}

// findParagraphs lists the stored paragraphs whose text equals text.
func findParagraphs(ctx context.Context, out io.Writer, db *database.ParagraphDB, text string) error {
	records, err := db.FindParagraphs(ctx, database.Digest(text))
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No matching paragraph found")
		return nil
	}

	fmt.Fprintf(out, "Matching paragraphs (%d):\n\n", len(records))
	for _, rec := range records {
		fmt.Fprintf(out, "  • run %s  %s\n", shortID(rec.RunID), rec.Key)
	}
	return nil
}

// shortID returns the listing prefix of a run ID.
func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}
