package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tablerag/tablerag-client/internal/models"
)

// reportTask prints the final snapshot of a task. Under --strict a failed task
// becomes an error so the process exits non-zero.
func reportTask(cmd *cobra.Command, task *models.Task) error {
	if task == nil {
		return nil
	}
	if err := printResult(cmd, task, func(w io.Writer) error {
		return renderTask(w, task)
	}); err != nil {
		return err
	}
	if strict && task.Status == models.StatusFailed {
		return fmt.Errorf("%w: %s", ErrTaskFailed, task.Key())
	}
	return nil
}

func renderTask(w io.Writer, task *models.Task) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Task:\t%s\n", task.Key())
	fmt.Fprintf(tw, "Status:\t%s\n", task.Status)
	if elapsed := task.Elapsed(); elapsed > 0 {
		fmt.Fprintf(tw, "Elapsed:\t%s\n", elapsed.Round(time.Millisecond))
	}
	if task.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", task.Error)
	}
	if task.HasResult() {
		fmt.Fprintf(tw, "Result:\t%s\n", task.Result)
	}
	return tw.Flush()
}
