package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tablerag/tablerag-client/internal/api"
	"github.com/tablerag/tablerag-client/internal/models"
)

// newTasksCmd creates the 'tasks' command group.
func newTasksCmd() *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect server tasks",
		Long: `Inspect long-running server tasks.

Kinds: data, cleanup, embeddings. A task id is only meaningful together with
its kind.`,
	}
	tasksCmd.AddCommand(newTasksGetCmd())
	tasksCmd.AddCommand(newTasksWaitCmd())
	return tasksCmd
}

func newTasksGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <kind> <task-id>",
		Short: "Read a task's status once",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseKind(args[0])
			if err != nil {
				return err
			}

			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			task, err := s.client.GetTask(cmd.Context(), kind, args[1])
			if api.IsNotFound(err) {
				return fmt.Errorf("task %s/%s expired or unknown: %w", kind, args[1], err)
			}
			if err != nil {
				return fmt.Errorf("failed to read task %s/%s: %w", kind, args[1], err)
			}
			return reportTask(cmd, task)
		},
	}
}

func newTasksWaitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wait <kind> <task-id>",
		Short: "Poll a task until it succeeds or fails",
		Long: `Poll an existing task until it reaches succeeded or failed, using the
configured poll interval and per-kind deadline. Ctrl-C stops polling without
affecting the server-side task.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseKind(args[0])
			if err != nil {
				return err
			}

			s, err := newSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			sink, done := statusSink(cmd, "tasks", s.bus)
			task, err := s.registry.Wait(cmd.Context(), kind, args[1], func(t *models.Task) {
				sink.SetStatus(fmt.Sprintf("task status: %s", t.Status))
			})
			done()
			if err != nil {
				return err
			}
			return reportTask(cmd, task)
		},
	}
}
