// Package app initializes and runs the sync agent: it wires the local
// store, services, cloud mirror, sharing and sync coordinators, and
// handles graceful shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/cradlekeeper/internal/cloudx"
	"github.com/dmitrijs2005/cradlekeeper/internal/config"
	"github.com/dmitrijs2005/cradlekeeper/internal/export"
	"github.com/dmitrijs2005/cradlekeeper/internal/logging"
	"github.com/dmitrijs2005/cradlekeeper/internal/p2p"
	"github.com/dmitrijs2005/cradlekeeper/internal/reminders"
	"github.com/dmitrijs2005/cradlekeeper/internal/services"
	"github.com/dmitrijs2005/cradlekeeper/internal/share"
	"github.com/dmitrijs2005/cradlekeeper/internal/store"
	"github.com/dmitrijs2005/cradlekeeper/internal/syncer"
)

type App struct {
	config *config.Config
	logger logging.Logger

	repos     *store.Repositories
	Profiles  *services.ProfileService
	Actions   *services.ActionService
	Avatars   *services.AvatarLoader
	Sharing   *share.Coordinator
	Syncer    *syncer.Syncer
	Export    *export.Service
	Exchanger *p2p.Exchanger
	Scheduler *reminders.Scheduler

	push *cloudx.PushChannel
}

// NewApp wires the agent. notifier may be nil; reminder scheduling is
// then disabled.
func NewApp(ctx context.Context, cfg *config.Config, notifier reminders.Notifier) (*App, error) {
	logger := logging.NewDefault()

	repos, err := store.InitDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	profileSvc := services.NewProfileService(repos.Profiles, repos.Actions, logger)
	actionSvc := services.NewActionService(repos.Actions, logger, cfg.SaveDelay)
	avatarLoader := services.NewAvatarLoader(repos.Profiles, logger)

	records, err := cloudx.NewS3RecordStore(ctx, cloudx.S3Config{
		Region:       cfg.S3Region,
		AccessKey:    cfg.S3AccessKey,
		SecretKey:    cfg.S3SecretKey,
		Bucket:       cfg.S3Bucket,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("record store init error: %w", err)
	}

	control := cloudx.NewControlClient(cfg.ControlEndpointURL, cfg.DeviceToken)
	bridge := cloudx.NewBridge(profileSvc, actionSvc, records, logger)
	sharing := share.NewCoordinator(
		repos.Shares, profileSvc, actionSvc, bridge, records, control,
		[]byte(cfg.DeviceSecret), logger,
	)

	sy := syncer.New(sharing, control, logger, cfg.SyncDebounce)
	push := cloudx.NewPushChannel(cfg.PushEndpointURL, logger)

	app := &App{
		config:    cfg,
		logger:    logger,
		repos:     repos,
		Profiles:  profileSvc,
		Actions:   actionSvc,
		Avatars:   avatarLoader,
		Sharing:   sharing,
		Syncer:    sy,
		Export:    export.New(profileSvc, actionSvc, logger),
		Exchanger: p2p.NewExchanger(profileSvc, actionSvc, logger),
		push:      push,
	}
	if notifier != nil {
		app.Scheduler = reminders.NewScheduler(profileSvc, actionSvc, notifier, logger)
	}

	// Local edits kick a sync pass and a reminder recomputation.
	onChange := func() {
		app.Syncer.RequestSync()
		if app.Scheduler != nil {
			if err := app.Scheduler.Recompute(context.Background()); err != nil {
				logger.Warn(context.Background(), "failed to recompute reminders", "error", err)
			}
		}
	}
	profileSvc.OnChange(onChange)
	actionSvc.OnChange(onChange)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the push channel and sync loop and blocks until shutdown.
// Pending coalesced saves are flushed before returning.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting agent", "db", app.config.DatabaseDSN)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.push.Run(ctx, app.Syncer.HandleNotification)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.Syncer.Run(ctx)
	}()

	// First pass on launch.
	app.Syncer.RequestSync()

	wg.Wait()

	shutdownCtx := context.Background()
	if err := app.Actions.Close(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "failed to flush pending saves", "error", err)
	}
	if err := app.repos.DB.Close(); err != nil {
		app.logger.Error(shutdownCtx, "failed to close database", "error", err)
	}
	app.logger.Info(shutdownCtx, "agent stopped")
}
