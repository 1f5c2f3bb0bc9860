package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tablerag/tablerag-client/internal/models"
	"github.com/tablerag/tablerag-client/internal/source"
	"github.com/tablerag/tablerag-client/internal/workflow"
)

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var (
		excelDir string
		rebuild  bool
		policy   string
		savePath string
		docDir   string
		bgeDir   string
	)

	cmd := &cobra.Command{
		Use:   "upload <file> [file...]",
		Short: "Upload spreadsheets and wait for the import task",
		Long: `Upload one or more .xlsx/.xls files to the server's excel directory and
poll the resulting data task until it succeeds or fails.

Files may be local paths (glob patterns are expanded), s3://bucket/key URLs or
Azure blob URLs carrying a SAS token.

With --rebuild the server also rebuilds the embedding store in the same task.

Examples:
  tablerag upload reports/*.xlsx
  tablerag upload s3://finance/q1.xlsx --excel-dir dataset/finance
  tablerag upload q1.xlsx --rebuild --policy build_if_missing`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandFileRefs(args)
			if err != nil {
				return err
			}

			if !rebuild && (policy != "" || savePath != "" || docDir != "" || bgeDir != "") {
				return fmt.Errorf("--policy, --save-path, --doc-dir and --bge-dir require --rebuild")
			}

			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			req := workflow.UploadRequest{Files: files, ExcelDir: s.excelDir(excelDir)}
			if rebuild {
				req.Rebuild = &models.RebuildOptions{
					Policy:   models.EmbeddingPolicy(policy),
					SavePath: savePath,
					DocDir:   s.docDir(docDir),
					BgeDir:   bgeDir,
				}
			}

			sink, done := statusSink(cmd, "upload", s.bus)
			task, err := s.runner.Upload(cmd.Context(), req, sink)
			done()
			if err != nil {
				return err
			}
			return reportTask(cmd, task)
		},
	}

	cmd.Flags().StringVar(&excelDir, "excel-dir", "", "Server-side excel directory (default from config)")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Rebuild embeddings after the upload")
	cmd.Flags().StringVar(&policy, "policy", "", "Embedding policy: rebuild, build_if_missing or load_only")
	cmd.Flags().StringVar(&savePath, "save-path", "", "Embedding store path (with --rebuild)")
	cmd.Flags().StringVar(&docDir, "doc-dir", "", "Schema directory (with --rebuild)")
	cmd.Flags().StringVar(&bgeDir, "bge-dir", "", "Embedding model directory (with --rebuild)")

	return cmd
}

// expandFileRefs expands glob patterns in local paths and removes duplicates.
// Remote references are passed through unchanged.
func expandFileRefs(patterns []string) ([]string, error) {
	var refs []string
	seen := make(map[string]bool)

	add := func(ref string) {
		if !seen[ref] {
			refs = append(refs, ref)
			seen[ref] = true
		}
	}

	for _, pattern := range patterns {
		if source.Classify(pattern) != source.SchemeLocal {
			add(pattern)
			continue
		}

		if !strings.ContainsAny(pattern, "*?[]") {
			absPath, err := filepath.Abs(pattern)
			if err != nil {
				return nil, fmt.Errorf("failed to get absolute path for %s: %w", pattern, err)
			}
			add(absPath)
			continue
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", pattern)
		}
		for _, match := range matches {
			absPath, err := filepath.Abs(match)
			if err != nil {
				return nil, fmt.Errorf("failed to get absolute path for %s: %w", match, err)
			}
			add(absPath)
		}
	}

	return refs, nil
}

// newImportCmd creates the 'import' command.
func newImportCmd() *cobra.Command {
	var excelDir string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import every spreadsheet in the server's excel directory",
		Long: `Ask the server to (re)import the spreadsheets already present in its excel
directory. Unchanged files are skipped by the server. Polls the data task.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			sink, done := statusSink(cmd, "import", s.bus)
			task, err := s.runner.Import(cmd.Context(), models.ImportRequest{ExcelDir: s.excelDir(excelDir)}, sink)
			done()
			if err != nil {
				return err
			}
			return reportTask(cmd, task)
		},
	}

	cmd.Flags().StringVar(&excelDir, "excel-dir", "", "Server-side excel directory (default from config)")
	return cmd
}

// newEmbeddingsCmd creates the 'embeddings' command group.
func newEmbeddingsCmd() *cobra.Command {
	embeddingsCmd := &cobra.Command{
		Use:   "embeddings",
		Short: "Manage the server's embedding store",
	}
	embeddingsCmd.AddCommand(newEmbeddingsBuildCmd())
	return embeddingsCmd
}

func newEmbeddingsBuildCmd() *cobra.Command {
	var req models.EmbeddingsRequest
	var policy string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the embedding store and wait for the task",
		Long: `Build (or load) the embedding store used to pick tables for questions.

Policies:
  rebuild           always rebuild
  build_if_missing  build only when no store exists (server default)
  load_only         fail unless a store already exists`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			req.Policy = models.EmbeddingPolicy(policy)
			req.DocDir = s.docDir(req.DocDir)
			req.ExcelDir = s.excelDir(req.ExcelDir)

			sink, done := statusSink(cmd, "embeddings", s.bus)
			task, err := s.runner.BuildEmbeddings(cmd.Context(), req, sink)
			done()
			if err != nil {
				return err
			}
			return reportTask(cmd, task)
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "", "Embedding policy: rebuild, build_if_missing or load_only")
	cmd.Flags().StringVar(&req.DocDir, "doc-dir", "", "Schema directory (default from config)")
	cmd.Flags().StringVar(&req.ExcelDir, "excel-dir", "", "Excel directory (default from config)")
	cmd.Flags().StringVar(&req.BgeDir, "bge-dir", "", "Embedding model directory")
	cmd.Flags().StringVar(&req.SavePath, "save-path", "", "Embedding store path")
	return cmd
}
