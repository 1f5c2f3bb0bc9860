package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tablerag/tablerag-client/internal/models"
)

// tablesOutput is the json/yaml form of the table listing.
type tablesOutput struct {
	State     string               `json:"state" yaml:"state"`
	SchemaDir string               `json:"schema_dir,omitempty" yaml:"schema_dir,omitempty"`
	Rows      []models.MetadataRow `json:"rows" yaml:"rows"`
}

// newTablesCmd creates the 'tables' command.
func newTablesCmd() *cobra.Command {
	var (
		docDir        string
		cleanupRow    int
		interactive   bool
		filenamesOnly bool
	)

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List registered tables and clean them up by row",
		Long: `List the tables registered on the server with the spreadsheet each one was
imported from.

Every row carries a cleanup action that removes all tables imported from the
row's original file (confirmed, never a dry run), then refreshes the listing.

Examples:
  tablerag tables
  tablerag tables --cleanup-row 2
  tablerag tables --interactive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cleanupRow != 0 && interactive {
				return fmt.Errorf("--cleanup-row and --interactive are mutually exclusive")
			}

			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			dir := s.docDir(docDir)

			if filenamesOnly {
				resp, err := s.client.ListTables(cmd.Context(), dir, true)
				if err != nil {
					return fmt.Errorf("failed to list tables: %w", err)
				}
				names := resp.Filenames()
				return printResult(cmd, names, func(w io.Writer) error {
					for _, name := range names {
						fmt.Fprintln(w, name)
					}
					return nil
				})
			}

			if err := s.view.Refresh(cmd.Context(), dir); err != nil {
				_ = s.view.Render(cmd.ErrOrStderr())
				return err
			}

			switch {
			case cleanupRow != 0:
				if err := cleanupByRow(cmd, s, cleanupRow); err != nil {
					return err
				}
			case interactive:
				return runInteractiveTables(cmd, s)
			}
			return printTables(cmd, s)
		},
	}

	cmd.Flags().StringVar(&docDir, "doc-dir", "", "Schema directory to list (default from config)")
	cmd.Flags().IntVar(&cleanupRow, "cleanup-row", 0, "Clean up the file behind row N (1-based)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Pick rows to clean up interactively")
	cmd.Flags().BoolVar(&filenamesOnly, "filenames-only", false, "Print distinct original filenames only")

	return cmd
}

func printTables(cmd *cobra.Command, s *session) error {
	out := tablesOutput{
		State:     s.view.State().String(),
		SchemaDir: s.view.SchemaDir(),
		Rows:      []models.MetadataRow{},
	}
	for _, r := range s.view.Rows() {
		out.Rows = append(out.Rows, r.MetadataRow)
	}
	return printResult(cmd, out, s.view.Render)
}

// cleanupByRow runs the row's cleanup action. The view refreshes itself once
// the cleanup task is terminal.
func cleanupByRow(cmd *cobra.Command, s *session, index int) error {
	row, err := s.view.Row(index)
	if err != nil {
		return err
	}

	sink, done := statusSink(cmd, "cleanup", s.bus)
	task, err := row.Cleanup(cmd.Context(), sink)
	done()
	if err != nil {
		return err
	}
	if strict && task.Status == models.StatusFailed {
		return fmt.Errorf("%w: %s", ErrTaskFailed, task.Key())
	}
	return nil
}

func runInteractiveTables(cmd *cobra.Command, s *session) error {
	reader := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	for {
		if err := s.view.Render(out); err != nil {
			return err
		}
		rows := len(s.view.Rows())
		if rows == 0 {
			return nil
		}

		index, err := promptRowIndex(reader, out, rows)
		if err != nil {
			return err
		}
		if index == 0 {
			return nil
		}
		if err := cleanupByRow(cmd, s, index); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "cleanup failed: %v\n", err)
		}
		fmt.Fprintln(out)
	}
}

// newCleanupCmd creates the 'cleanup' command.
func newCleanupCmd() *cobra.Command {
	var (
		yes    bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup <original-filename> [filename...]",
		Short: "Remove every table imported from the given spreadsheets",
		Long: `Remove all tables, schemas and embedding entries derived from the named
original spreadsheet files, then wait for the cleanup task.

Without --yes you are asked to confirm. --dry-run reports what would be removed
and keeps everything.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := make([]string, 0, len(args))
			for _, a := range args {
				if t := strings.TrimSpace(a); t != "" {
					targets = append(targets, t)
				}
			}

			if len(targets) > 0 && !yes && !dryRun {
				ok, err := promptConfirm(bufio.NewReader(cmd.InOrStdin()), cmd.ErrOrStderr(),
					fmt.Sprintf("Remove all tables imported from %s?", strings.Join(targets, ", ")))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "Aborted")
					return nil
				}
			}

			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			req := models.CleanupRequest{Targets: targets, Confirmed: true, DryRun: dryRun}

			sink, done := statusSink(cmd, "cleanup", s.bus)
			task, err := s.runner.SubmitCleanup(cmd.Context(), req, sink)
			done()
			if err != nil {
				return err
			}
			return reportTask(cmd, task)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed without removing it")

	return cmd
}
