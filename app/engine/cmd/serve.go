package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conductor/app/analytics"
	"conductor/app/config"
	"conductor/app/db"
	"conductor/app/db/models"
	"conductor/app/outbox"
	"conductor/app/scheduler"
	"conductor/app/webhook"
	"conductor/app/workflow"
	"conductor/pkg/cache"
	"conductor/pkg/contextx"
	"conductor/pkg/log"
	"conductor/pkg/mq"
	"conductor/web/handles"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the workflow API and run the outbox dispatcher and delay scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "migrate the schema before serving")
}

func newDispatcher(ctx *contextx.Context) (*outbox.Dispatcher, func(), error) {
	cfg := config.Config
	d := outbox.NewDispatcher(cfg.Outbox)
	cleanup := func() {}

	if cfg.Messaging.Enabled {
		publisher := mq.NewPublisher(cfg.Messaging.Connection, cfg.Messaging.Exchange)
		d.Register(models.IntentNotification, outbox.NotificationSink(publisher))
		cleanup = func() { publisher.Close() }
	} else {
		log.Warn(ctx, "rabbitMQ is not configured, notifications are only logged")
		d.Register(models.IntentNotification, outbox.SinkFunc(outbox.LogSink))
	}

	if cfg.Redis.Address != "" {
		tokens := cache.NewGuestTokens(cache.Options{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			Database:  cfg.Redis.Database,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		d.Register(models.IntentGuestCache, outbox.GuestCacheSink(tokens))
	} else {
		d.Register(models.IntentGuestCache, outbox.SinkFunc(outbox.LogSink))
	}

	d.Register(models.IntentWebhook, webhook.NewSender(cfg.Webhook))

	recorder, err := analytics.NewRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, cleanup, err
	}
	d.Register(models.IntentAnalytics, recorder)
	return d, cleanup, nil
}

func serve() error {
	if err := initDB(); err != nil {
		return err
	}
	if autoMigrate {
		if err := db.Migrate(db.GetDBConnection()); err != nil {
			return err
		}
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	jobCtx := contextx.NewContext()
	jobCtx.Context = runCtx

	engine := workflow.NewEngine()
	dispatcher, cleanup, err := newDispatcher(jobCtx)
	if err != nil {
		return err
	}
	defer cleanup()
	go dispatcher.Run(jobCtx)
	if config.Config.Scheduler.Enabled {
		go scheduler.NewScheduler(engine, config.Config.Scheduler).Run(jobCtx)
	}

	addr := fmt.Sprintf("%s:%d", config.Config.API.Host, config.Config.API.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handles.NewRouter(engine, nil, prometheus.DefaultGatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		log.Infof(jobCtx, "serving workflow API on %s", addr)
		errs <- server.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigs:
		log.Infof(jobCtx, "got %s, shutting down", sig.String())
	case err := <-errs:
		return err
	}
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
