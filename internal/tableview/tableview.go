// Package tableview holds the registered-table listing and binds each row to a
// cleanup of its original file.
package tableview

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/tablerag/tablerag-client/internal/events"
	"github.com/tablerag/tablerag-client/internal/logging"
	"github.com/tablerag/tablerag-client/internal/models"
	"github.com/tablerag/tablerag-client/internal/progress"
)

// Lister fetches the listing. *api.Client satisfies it.
type Lister interface {
	ListTables(ctx context.Context, docDir string, includeMeta bool) (*models.TablesResponse, error)
}

// Cleaner runs a confirmed cleanup. *workflow.Runner satisfies it.
type Cleaner interface {
	Cleanup(ctx context.Context, filename string, sink progress.Sink) (*models.Task, error)
}

// State is the display state of the listing.
type State int

const (
	StateUnloaded State = iota
	StateEmpty
	StateLoaded
	StateFetchFailed
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "no tables"
	case StateLoaded:
		return "loaded"
	case StateFetchFailed:
		return "fetch failed"
	default:
		return "not loaded"
	}
}

// Row is one displayed table. Its only action is Cleanup.
type Row struct {
	models.MetadataRow
	Index int // 1-based position in the listing

	cleaner Cleaner
}

// Cleanup removes every table imported from the row's original file. The table
// id is display only and is not sent.
func (r Row) Cleanup(ctx context.Context, sink progress.Sink) (*models.Task, error) {
	if r.cleaner == nil {
		return nil, fmt.Errorf("row %d has no cleanup action", r.Index)
	}
	return r.cleaner.Cleanup(ctx, r.OriginalFilename, sink)
}

// View is the table listing. Every refresh replaces all rows at once.
type View struct {
	lister   Lister
	cleaner  Cleaner
	eventBus *events.EventBus
	logger   *logging.Logger

	rows      []Row
	state     State
	lastError error
	docDir    string
	schemaDir string

	mu sync.RWMutex
}

// New creates an unloaded view.
func New(lister Lister, cleaner Cleaner, eventBus *events.EventBus, logger *logging.Logger) *View {
	return &View{
		lister:   lister,
		cleaner:  cleaner,
		eventBus: eventBus,
		logger:   logging.OrNop(logger),
	}
}

// Refresh fetches GET /tables with metadata and rebuilds the rows. On failure
// the rows are cleared and the state becomes StateFetchFailed.
func (v *View) Refresh(ctx context.Context, docDir string) error {
	resp, err := v.lister.ListTables(ctx, docDir, true)

	v.mu.Lock()
	v.docDir = docDir
	if err != nil {
		v.rows = nil
		v.state = StateFetchFailed
		v.lastError = err
		v.schemaDir = ""
	} else {
		v.rows = v.buildRows(resp)
		v.lastError = nil
		v.schemaDir = resp.SchemaDir
		if len(v.rows) == 0 {
			v.state = StateEmpty
		} else {
			v.state = StateLoaded
		}
	}
	state, count := v.state, len(v.rows)
	v.mu.Unlock()

	v.eventBus.PublishTable(state.String(), count, err)
	if err != nil {
		v.logger.Debug().Err(err).Msg("table listing fetch failed")
		return fmt.Errorf("failed to list tables: %w", err)
	}
	v.logger.Debug().Int("rows", count).Str("doc_dir", docDir).Msg("table listing refreshed")
	return nil
}

// Reload repeats the last Refresh with the same doc_dir. A view that was
// never refreshed stays unloaded.
func (v *View) Reload(ctx context.Context) error {
	v.mu.RLock()
	docDir, state := v.docDir, v.state
	v.mu.RUnlock()
	if state == StateUnloaded {
		return nil
	}
	return v.Refresh(ctx, docDir)
}

func (v *View) buildRows(resp *models.TablesResponse) []Row {
	meta := resp.Rows()
	rows := make([]Row, 0, len(meta))
	for i, m := range meta {
		rows = append(rows, Row{MetadataRow: m, Index: i + 1, cleaner: v.cleaner})
	}
	return rows
}

// Rows returns a copy of the current rows.
func (v *View) Rows() []Row {
	v.mu.RLock()
	defer v.mu.RUnlock()

	result := make([]Row, len(v.rows))
	copy(result, v.rows)
	return result
}

// Row returns the row at the 1-based index.
func (v *View) Row(index int) (Row, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if index < 1 || index > len(v.rows) {
		return Row{}, fmt.Errorf("row %d out of range (listing has %d rows)", index, len(v.rows))
	}
	return v.rows[index-1], nil
}

// State returns the current display state.
func (v *View) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Err returns the error of the last failed refresh.
func (v *View) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastError
}

// SchemaDir returns the server's schema directory from the last listing.
func (v *View) SchemaDir() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.schemaDir
}

// Render writes the listing as aligned columns, or the state message when there
// are no rows.
func (v *View) Render(w io.Writer) error {
	v.mu.RLock()
	state := v.state
	rows := make([]Row, len(v.rows))
	copy(rows, v.rows)
	v.mu.RUnlock()

	if state != StateLoaded {
		_, err := fmt.Fprintln(w, state.String())
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE ID\tORIGINAL FILE\tACTION")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\tcleanup #%d\n", orDash(r.TableID), orDash(r.OriginalFilename), r.Index)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
