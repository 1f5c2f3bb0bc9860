package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/tablerag/tablerag-client/internal/devserver"
	"github.com/tablerag/tablerag-client/internal/models"
)

// newHealthCmd creates the 'health' command.
func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			health, err := s.client.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health check against %s failed: %w", s.client.BaseURL(), err)
			}
			return printResult(cmd, health, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s: %s (version %s)\n", s.client.BaseURL(), health.Status, health.Version)
				return err
			})
		},
	}
}

// newDirsCmd creates the 'dirs' command.
func newDirsCmd() *cobra.Command {
	var overrides models.Dirs

	cmd := &cobra.Command{
		Use:   "dirs",
		Short: "Show the server's effective data directories",
		Long: `Show the directories the server uses for spreadsheets, schemas, the
embedding model and the embedding store. Flags preview the result of overriding
one of them on a request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			dirs, err := s.client.GetDirs(cmd.Context(), overrides)
			if err != nil {
				return fmt.Errorf("failed to read server directories: %w", err)
			}
			return printResult(cmd, dirs, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "excel_dir\t%s\n", dirs.ExcelDir)
				fmt.Fprintf(tw, "doc_dir\t%s\n", dirs.DocDir)
				fmt.Fprintf(tw, "bge_dir\t%s\n", dirs.BgeDir)
				fmt.Fprintf(tw, "embedding_save_path\t%s\n", dirs.EmbeddingSavePath)
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&overrides.ExcelDir, "excel-dir", "", "Override excel_dir")
	cmd.Flags().StringVar(&overrides.DocDir, "doc-dir", "", "Override doc_dir")
	cmd.Flags().StringVar(&overrides.BgeDir, "bge-dir", "", "Override bge_dir")
	cmd.Flags().StringVar(&overrides.EmbeddingSavePath, "save-path", "", "Override the embedding store path")

	return cmd
}

// newDevServerCmd creates the 'devserver' command.
func newDevServerCmd() *cobra.Command {
	cfg := devserver.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory emulation of the TableRAG API",
		Long: `Run a local, in-memory emulation of the TableRAG API for trying the client
without the real service. Tasks are queued, run after a fixed delay and keep
their result in memory; spreadsheets are hashed but never parsed.

Stop it with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !debug {
				gin.SetMode(gin.ReleaseMode)
			}
			log := GetLogger()

			srv := devserver.New(cfg, log)
			defer srv.Close()

			fmt.Fprintf(cmd.ErrOrStderr(), "Serving TableRAG API emulation on http://%s\n", cfg.Addr)
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	cmd.Flags().DurationVar(&cfg.TaskDuration, "task-duration", cfg.TaskDuration, "How long each emulated task runs")
	cmd.Flags().DurationVar(&cfg.TaskRetention, "task-retention", cfg.TaskRetention, "How long finished tasks stay readable (0 keeps them)")
	cmd.Flags().StringVar(&cfg.Dirs.ExcelDir, "excel-dir", cfg.Dirs.ExcelDir, "Default excel_dir")
	cmd.Flags().StringVar(&cfg.Dirs.DocDir, "doc-dir", cfg.Dirs.DocDir, "Default doc_dir")

	return cmd
}
