package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"magnet-playlets/internal/cast"
	"magnet-playlets/internal/config"
	"magnet-playlets/internal/domain"
	"magnet-playlets/internal/downloader"
	"magnet-playlets/internal/engine"
	"magnet-playlets/internal/events"
	"magnet-playlets/internal/executor"
	apphttp "magnet-playlets/internal/http"
	"magnet-playlets/internal/metrics"
	"magnet-playlets/internal/notify"
	"magnet-playlets/internal/repository"
	boltrepo "magnet-playlets/internal/repository/bbolt"
	"magnet-playlets/internal/repository/sqlite"
	"magnet-playlets/internal/service"
	"magnet-playlets/internal/storage"
	"magnet-playlets/internal/watch"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}
	configureLogger(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	taskRepo, playletRepo, closeDB, err := openRepositories(ctx, cfg)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer closeDB()

	auth, err := service.NewAuthService(cfg.Auth.PasswordHash, cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	if err != nil {
		logger.Fatalf("setup auth: %v", err)
	}
	if !auth.Enabled() {
		logger.Warn("auth.passwordhash is not set, the API is unauthenticated")
	}

	playlets := service.NewPlayletService(playletRepo)
	if cfg.Playlets.File != "" {
		n, err := service.LoadPlaylets(ctx, playlets, cfg.Playlets.File, logger)
		if err != nil {
			logger.Fatalf("load playlets: %v", err)
		}
		logger.Infof("seeded %d playlets from %s", n, cfg.Playlets.File)
	}

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}

	manager := downloader.NewManager(downloader.Config{
		DataDir:        cfg.Download.DataDir,
		ListenPort:     cfg.Download.ListenPort,
		Seed:           cfg.Download.Seed,
		StatusInterval: time.Duration(cfg.Download.StatusInterval) * time.Second,
		Logger:         logger,
	})
	if err := manager.Start(ctx); err != nil {
		logger.Fatalf("start torrent client: %v", err)
	}

	runner := executor.ExecRunner{}
	devices := cast.NewRegistry(nil)
	deps := executor.Deps{
		Torrents:      manager,
		Caster:        devices,
		Notifier:      notify.NewDesktop(runner, logger),
		Storage:       storageSvc,
		Runner:        runner,
		HTTPClient:    &http.Client{Timeout: time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second},
		WebhookSecret: cfg.Webhook.SigningSecret,
		Logger:        logger,
	}
	if cfg.Subtitles.Command != "" {
		deps.Subtitles = executor.CommandSubtitles{Template: cfg.Subtitles.Command, Runner: runner}
	}
	registry, err := executor.NewDefaultRegistry(deps)
	if err != nil {
		logger.Fatalf("setup executors: %v", err)
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metrics.Register(prometheus.DefaultRegisterer)
		metricsHandler = promhttp.Handler()
	}

	bus := events.NewBus(100, logger)
	eng := engine.New(engine.Options{
		Tasks:     taskRepo,
		Playlets:  playlets,
		Files:     manager,
		Executors: registry,
		Bus:       bus,
		Settings:  cfg.Settings(),
		Logger:    logger,
	})
	if err := eng.Load(ctx); err != nil {
		logger.Fatalf("load tasks: %v", err)
	}

	manager.OnEvent(func(ev domain.TorrentEvent) {
		dispatch(ctx, eng, ev, logger)
	})

	if cfg.Watch.Enabled {
		if err := startWatcher(ctx, cfg, manager, eng, logger); err != nil {
			logger.Fatalf("start folder watch: %v", err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Options{
		Engine:   eng,
		Playlets: playlets,
		Torrents: manager,
		Storage:  storageSvc,
		Devices:  devices,
		Auth:     auth,
		Metrics:  metricsHandler,
		Logger:   logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	eng.Shutdown()
	manager.Shutdown()
	bus.Close()

	logger.Info("bye")
}

func configureLogger(logger *logrus.Logger, cfg config.Config) {
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func openRepositories(ctx context.Context, cfg config.Config) (repository.TaskRepository, repository.PlayletRepository, func(), error) {
	var (
		tasks    repository.TaskRepository
		playlets repository.PlayletRepository
		closeFn  func()
	)
	switch cfg.Database.Driver {
	case "bbolt":
		db, err := boltrepo.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		tasks, playlets = boltrepo.NewTaskRepository(db), boltrepo.NewPlayletRepository(db)
		closeFn = func() { _ = db.Close() }
	default:
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		tasks, playlets = sqlite.NewTaskRepository(db), sqlite.NewPlayletRepository(db)
		closeFn = func() { _ = db.Close() }
	}

	if err := tasks.Init(ctx); err != nil {
		closeFn()
		return nil, nil, nil, fmt.Errorf("init task repository: %w", err)
	}
	if err := playlets.Init(ctx); err != nil {
		closeFn()
		return nil, nil, nil, fmt.Errorf("init playlet repository: %w", err)
	}
	return tasks, playlets, closeFn, nil
}

// buildStorage returns nil when no bucket is configured; move actions to
// s3:// destinations then fail.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		logger.Info("no storage bucket configured, s3 moves are disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}

func dispatch(ctx context.Context, eng *engine.Engine, ev domain.TorrentEvent, logger *logrus.Logger) {
	tasks, err := eng.HandleEvent(ctx, ev)
	if err != nil {
		logger.WithField("torrent_id", ev.TorrentID).Warnf("dispatch %s: %v", ev.Kind, err)
		return
	}
	if len(tasks) > 0 {
		logger.WithField("torrent_id", ev.TorrentID).Infof("%s started %d task(s)", ev.Kind, len(tasks))
	}
}

// startWatcher adds every .torrent file dropped into a watched folder and
// fires folder_watch playlets for it.
func startWatcher(ctx context.Context, cfg config.Config, manager downloader.Manager, eng *engine.Engine, logger *logrus.Logger) error {
	w, err := watch.New(watch.Options{
		Directories: cfg.Watch.Folders,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	files, err := w.Start(ctx)
	if err != nil {
		return err
	}

	go func() {
		defer w.Close()
		for ev := range files {
			summary, err := manager.AddTorrentFile(ctx, ev.Path)
			if err != nil {
				logger.Warnf("add watched torrent %s: %v", ev.Path, err)
				continue
			}
			te := domain.TorrentEvent{
				Kind:        domain.TriggerFolderWatch,
				TorrentID:   summary.ID,
				TorrentName: summary.Name,
				Path:        ev.Path,
			}
			if summary.HasInfo {
				total, count := summary.TotalBytes, summary.FileCount
				te.TotalBytes, te.FileCount = &total, &count
			}
			dispatch(ctx, eng, te, logger)
		}
	}()
	return nil
}
