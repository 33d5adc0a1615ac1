package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/omni/permission-relay/config"
	"github.com/omni/permission-relay/db"
	"github.com/omni/permission-relay/logging"
	"github.com/omni/permission-relay/permissions"
	"github.com/omni/permission-relay/relayer"
	"github.com/omni/permission-relay/repository"
)

var (
	configPath  = flag.String("config", "config.yml", "path to the yaml config")
	operationID = flag.String("operationId", "", "relayer operation id to resume")
	all         = flag.Bool("all", false, "resume every pending operation once")
)

func main() {
	flag.Parse()

	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	if (*operationID == "") == !*all {
		logger.Fatal("exactly one of --operationId or --all should be specified")
	}
	if cfg.DBConfig == nil {
		logger.Fatal("postgres is not configured")
	}
	if cfg.Relayer == nil || cfg.Relayer.URL == "" {
		logger.Fatal("relayer is not configured")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	dbConn, err := db.ConnectToDBAndMigrate(ctx, cfg.DBConfig)
	if err != nil {
		logger.WithError(err).Fatal("can't connect to database and apply migrations")
	}
	defer dbConn.Close()

	controller, err := permissions.NewFromConfig(ctx, cfg, repository.NewRepo(dbConn), logger)
	if err != nil {
		logger.WithError(err).Fatal("can't initialize permissions controller")
	}
	defer controller.Close()

	if *all {
		timeout := cfg.Poller.MaxDuration
		if cfg.Sweeper != nil {
			timeout = cfg.Sweeper.Timeout
		}
		// zero interval picks every pending operation regardless of its age
		resumed, err2 := permissions.NewPendingSweeper(controller, 0, timeout, logger).Sweep(ctx)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't resume pending operations")
		}
		logger.WithField("count", resumed).Info("pending operations reached a terminal state")
		return
	}

	opLogger := logger.WithField("operation_id", *operationID)
	res, err := controller.ResumePending(ctx, *operationID, func(status *relayer.Status) {
		opLogger.WithField("state", status.State).Info("relayer operation status")
	})
	if err != nil {
		opLogger.WithError(err).Fatal("can't resume relayer operation")
	}
	opLogger.WithFields(logrus.Fields{
		"tx_hash":   res.Hash,
		"operation": res.Operation,
	}).Info("relayer operation confirmed")
}
