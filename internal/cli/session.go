package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tablerag/tablerag-client/internal/api"
	"github.com/tablerag/tablerag-client/internal/config"
	"github.com/tablerag/tablerag-client/internal/events"
	inthttp "github.com/tablerag/tablerag-client/internal/http"
	"github.com/tablerag/tablerag-client/internal/logging"
	"github.com/tablerag/tablerag-client/internal/poller"
	"github.com/tablerag/tablerag-client/internal/progress"
	"github.com/tablerag/tablerag-client/internal/source"
	"github.com/tablerag/tablerag-client/internal/tableview"
	"github.com/tablerag/tablerag-client/internal/workflow"
)

// session holds the objects one command invocation works with.
type session struct {
	cfg      *config.Config
	client   *api.Client
	registry *poller.Registry
	bus      *events.EventBus
	runner   *workflow.Runner
	view     *tableview.View
	logger   *logging.Logger
}

// loadConfig resolves the configuration.
// Priority: flags > environment (.env included) > config file > defaults.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}

	path := cfgFile
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	cfg, err := config.LoadConfigCSV(path)
	if err != nil {
		return nil, err
	}

	cfg.MergeWithFlags(apiBaseURL, "", "", 0)

	if inthttp.NeedsProxyPassword(cfg) {
		password, err := promptPassword(fmt.Sprintf("Proxy password for %s: ", cfg.ProxyUser))
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.ProxyPassword = password
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newSession wires the api client, the shared poll registry, the workflows and
// the table view. Call close when the command is done.
func newSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := GetLogger()

	client, err := api.NewClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	sourceClient, err := inthttp.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure source client: %w", err)
	}

	bus := events.NewEventBus(64)
	if verbose || debug {
		go logEvents(bus.SubscribeAll(), log)
	}

	registry := poller.NewRegistry(ctx, poller.New(client, poller.OptionsFromConfig(cfg), log), bus, log)

	runner := workflow.NewRunner(client, registry,
		workflow.WithSources(source.NewResolver(cfg, sourceClient, log)),
		workflow.WithByteTracker(func(files int) progress.ByteTracker {
			return progress.NewUploadUI(files)
		}),
		workflow.WithEventBus(bus),
		workflow.WithLogger(log),
	)
	view := tableview.New(client, runner, bus, log)
	runner.SetTableRefresher(view)

	return &session{
		cfg:      cfg,
		client:   client,
		registry: registry,
		bus:      bus,
		runner:   runner,
		view:     view,
		logger:   log,
	}, nil
}

func (s *session) close() {
	s.registry.Close()
	s.client.LogUsage()
	if dropped := s.bus.GetDroppedEventCount(); dropped > 0 {
		s.logger.Debug().Int64("dropped", dropped).Msg("event bus dropped events")
	}
	s.bus.Close()
}

// excelDir returns the flag value, or the configured default.
func (s *session) excelDir(flag string) string {
	if flag != "" {
		return flag
	}
	return s.cfg.DefaultExcelDir
}

// docDir returns the flag value, or the configured default.
func (s *session) docDir(flag string) string {
	if flag != "" {
		return flag
	}
	return s.cfg.DefaultDocDir
}

// logEvents writes bus traffic to the debug log until the bus is closed.
func logEvents(ch <-chan events.Event, log *logging.Logger) {
	for ev := range ch {
		switch e := ev.(type) {
		case *events.StatusEvent:
			log.Debug().Str("region", e.Region).Str("message", e.Message).Msg("status")
		case *events.TaskEvent:
			entry := log.Debug().Str("event", string(e.Type())).
				Str("task", e.Task.Key().String()).
				Str("status", string(e.Task.Status)).
				Int("observers", e.Observers)
			if e.Err != nil {
				entry = entry.Err(e.Err)
			}
			entry.Msg("task")
		case *events.TableEvent:
			log.Debug().Str("state", e.State).Int("rows", e.Rows).Msg("table view")
		case *events.ChatEvent:
			log.Debug().Str("table_id", e.TableID).Msg("chat answered")
		}
	}
}

// statusSink returns where workflow messages go: a spinner when stderr is a
// terminal, plain lines otherwise. The returned func must be called once the
// workflow returns.
func statusSink(cmd *cobra.Command, region string, bus *events.EventBus) (progress.Sink, func()) {
	busSink := progress.NewBusSink(bus, region)
	w := cmd.ErrOrStderr()
	if f, ok := w.(*os.File); ok && progress.IsTerminal(f) && outputFormat == "table" {
		spinner := progress.NewStatusSpinner(f)
		return progress.Multi{spinner, busSink}, spinner.Finish
	}
	return progress.Multi{progress.NewWriterSink(w), busSink}, func() {}
}
