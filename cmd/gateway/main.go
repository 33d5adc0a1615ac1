package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/omni/permission-relay/config"
	"github.com/omni/permission-relay/db"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/permissions"
	"github.com/omni/permission-relay/presenter"
	"github.com/omni/permission-relay/repository"
)

var configPath = flag.String("config", "config.yml", "path to the yaml config")

func main() {
	flag.Parse()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var store permissions.Store
	if cfg.DBConfig != nil {
		dbConn, err2 := db.ConnectToDBAndMigrate(ctx, cfg.DBConfig)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't connect to database and apply migrations")
		}
		defer dbConn.Close()
		store = repository.NewRepo(dbConn)
	} else {
		logger.Warn("postgres is not configured, pending relayer operations will not be persisted")
	}

	controller, err := permissions.NewFromConfig(ctx, cfg, store, logger)
	if err != nil {
		logger.WithError(err).Fatal("can't initialize permissions controller")
	}
	defer controller.Close()

	if cfg.Sweeper != nil && store != nil {
		sweeper := permissions.NewPendingSweeper(controller, cfg.Sweeper.Interval, cfg.Sweeper.Timeout, logger.WithField("service", "pending_sweeper"))
		go sweeper.Start(ctx)
	}

	if cfg.Presenter == nil {
		logger.Fatal("presenter is not configured")
	}
	pr := presenter.NewPresenter(logger.WithField("service", "presenter"), controller)
	if err = pr.Serve(ctx, cfg.Presenter.Host); err != nil {
		logger.WithError(err).Fatal("can't serve presenter")
	}
	logger.Warn("caught termination signal, gracefully terminated")
}
