package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tablerag/tablerag-client/internal/models"
	"github.com/tablerag/tablerag-client/internal/progress"
)

// chatOutput is the json/yaml form of an answer.
type chatOutput struct {
	Question string `json:"question" yaml:"question"`
	TableID  string `json:"table_id" yaml:"table_id"`
	Answer   string `json:"answer" yaml:"answer"`
}

// newChatCmd creates the 'chat' command.
func newChatCmd() *cobra.Command {
	var q models.ChatQuery

	cmd := &cobra.Command{
		Use:   "chat <question>",
		Short: "Ask one question against the registered tables",
		Long: `Send a single question and print the answer verbatim. Each call is
independent: no conversation state is kept between calls.

The table is chosen by the server unless --table is given.

Examples:
  tablerag chat "What was the total revenue in Q1?"
  tablerag chat --table sales_q1 "Which region sold the most?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			q.Question = strings.Join(args, " ")
			q.DocDir = s.docDir(q.DocDir)
			q.ExcelDir = s.excelDir(q.ExcelDir)
			q = q.Normalize()

			// The answer is the result; progress lines only show up with --verbose.
			var sink progress.Sink = progress.NewBusSink(s.bus, "chat")
			if verbose || debug {
				sink = progress.Multi{progress.NewWriterSink(cmd.ErrOrStderr()), sink}
			}

			answer, err := s.runner.Ask(cmd.Context(), q, sink)
			if err != nil {
				return err
			}

			out := chatOutput{Question: q.Question, TableID: q.TableID, Answer: answer}
			return printResult(cmd, out, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, answer)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&q.TableID, "table", "t", "", "Table id to query (default: auto)")
	cmd.Flags().StringVar(&q.Backbone, "backbone", "", "Answering backbone model")
	cmd.Flags().StringVar(&q.EmbeddingPolicy, "policy", "", "Embedding policy for table selection")
	cmd.Flags().StringVar(&q.DocDir, "doc-dir", "", "Schema directory (default from config)")
	cmd.Flags().StringVar(&q.ExcelDir, "excel-dir", "", "Excel directory (default from config)")
	cmd.Flags().StringVar(&q.BgeDir, "bge-dir", "", "Embedding model directory")

	return cmd
}
