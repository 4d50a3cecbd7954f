// -----------------------------------------------------------------------
// App - wires configuration, storage, processors, and handlers together
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/common"
	"github.com/ternarybob/libris/internal/handlers"
	"github.com/ternarybob/libris/internal/interfaces"
	"github.com/ternarybob/libris/internal/services/convert"
	"github.com/ternarybob/libris/internal/services/keywords"
	"github.com/ternarybob/libris/internal/services/metadata"
	"github.com/ternarybob/libris/internal/services/scheduler"
	"github.com/ternarybob/libris/internal/services/structure"
	"github.com/ternarybob/libris/internal/services/upload"
	"github.com/ternarybob/libris/internal/storage/badger"
	"github.com/ternarybob/libris/internal/tasks"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *badger.Manager
	TaskStorage    interfaces.TaskStorage
	DocumentStore  interfaces.DocumentStorage

	Registry   *tasks.Registry
	Dispatcher *tasks.Dispatcher
	Scheduler  *scheduler.Service

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	TaskHandler      *handlers.TaskHandler
	StructureHandler *handlers.StructureHandler
	DocumentHandler  *handlers.DocumentHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	manager, err := badger.NewManager(logger, &cfg.Storage.Badger, cfg.Tasks.RetentionDuration())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = manager
	app.TaskStorage = manager.TaskStorage()
	app.DocumentStore = manager.DocumentStorage()

	// Tasks left running by a previous process go back to pending
	recovered, err := app.TaskStorage.RecoverRunningTasks(context.Background())
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to recover interrupted tasks: %w", err)
	}
	if recovered > 0 {
		logger.Info().Int("recovered", recovered).Msg("Requeued interrupted tasks")
	}

	app.Registry = tasks.NewRegistry(logger)
	app.Registry.Register(structure.NewProcessor(app.DocumentStore, logger))
	app.Registry.Register(convert.NewEpubProcessor(app.DocumentStore, logger))
	app.Registry.Register(convert.NewPDFProcessor(app.DocumentStore, logger))
	app.Registry.Register(metadata.NewProcessor(app.DocumentStore, logger))
	app.Registry.Register(keywords.NewProcessor(app.DocumentStore, logger))
	app.Registry.Register(upload.NewProcessor(cfg.OSS, app.DocumentStore, logger))

	app.Dispatcher = tasks.NewDispatcher(app.TaskStorage, app.Registry, logger, tasks.DispatcherConfig{
		Concurrency:      cfg.Tasks.Concurrency,
		PollInterval:     cfg.Tasks.PollIntervalDuration(),
		ProcessorTimeout: cfg.Tasks.ProcessorTimeoutDuration(),
	})

	app.Scheduler = scheduler.NewService(app.TaskStorage, logger, cfg.Tasks.SweepSchedule)

	app.APIHandler = handlers.NewAPIHandler()
	app.TaskHandler = handlers.NewTaskHandler(app.TaskStorage, app.Registry, app.Dispatcher, logger)
	app.StructureHandler = handlers.NewStructureHandler(logger)
	app.DocumentHandler = handlers.NewDocumentHandler(app.DocumentStore, logger)

	return app, nil
}

// Start launches the dispatcher and the maintenance scheduler
func (a *App) Start() error {
	if err := a.Dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	if err := a.Scheduler.Start(); err != nil {
		a.Dispatcher.Stop()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close stops background work and releases storage
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Stop()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}
	a.Logger.Info().Msg("Application stopped")
}
