// Command notify-agent runs the notification delivery agent: it polls
// the admin backend, keeps a local cache warm, queues mutations while
// offline, and replays them when connectivity resumes.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/notify-agent/internal/api"
	"github.com/nhle/notify-agent/internal/cache"
	"github.com/nhle/notify-agent/internal/connectivity"
	"github.com/nhle/notify-agent/internal/credential"
	"github.com/nhle/notify-agent/internal/model"
	"github.com/nhle/notify-agent/internal/offline"
	"github.com/nhle/notify-agent/internal/retry"
	"github.com/nhle/notify-agent/internal/service"
	"github.com/nhle/notify-agent/internal/store"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	log := logrus.StandardLogger()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	token := resolveToken(log)

	driver := retry.NewDriver()
	driver.MaxAttempts = cfg.Retry.MaxAttempts
	driver.BaseDelay = time.Duration(cfg.Retry.BaseDelayMs) * time.Millisecond
	driver.MaxDelay = time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond
	driver.Factor = cfg.Retry.BackoffFactor

	client := api.NewClient(
		cfg.API.BaseURL,
		token,
		time.Duration(cfg.API.TimeoutSec)*time.Second,
		driver,
	)

	svc := service.New(client, time.Duration(cfg.PollIntervalSec)*time.Second)
	defer svc.Dispose()

	localCache := cache.New()
	localCache.SetMaxPending(cfg.Cache.MaxPendingActions)
	localCache.StartCleanup(time.Duration(cfg.Cache.CleanupIntervalSec) * time.Second)
	defer localCache.Close()

	monitor := connectivity.NewMonitor(
		strings.TrimRight(cfg.API.BaseURL, "/")+cfg.Connectivity.HealthPath,
		time.Duration(cfg.Connectivity.ProbeTimeoutSec)*time.Second,
		time.Duration(cfg.Connectivity.ProbeIntervalSec)*time.Second,
	)
	defer monitor.Close()

	var durable store.Store
	if cfg.DBPath != "" {
		sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			log.WithError(err).Fatal("opening local store")
		}
		durable = sqliteStore
		defer sqliteStore.Close()
	}

	enhanced := offline.NewService(
		svc,
		localCache,
		monitor,
		driver,
		durable,
		time.Duration(cfg.Cache.TTLSec)*time.Second,
	)
	defer enhanced.Close()

	unsubscribe := svc.Subscribe(func(notifications []model.Notification) {
		unread := 0
		for _, n := range notifications {
			if !n.Read {
				unread++
			}
		}
		log.WithFields(logrus.Fields{
			"total":  len(notifications),
			"unread": unread,
		}).Info("notification set updated")
	})
	defer unsubscribe()

	monitor.Start()
	svc.StartPolling()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := enhanced.FetchNotifications(ctx, model.ListOptions{}); err != nil {
		log.WithError(err).Warn("initial fetch failed")
	}
	cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	svc.StopPolling()
}

// resolveToken prefers the system keyring and falls back to the
// NOTIFY_API_TOKEN environment variable.
func resolveToken(log *logrus.Logger) string {
	token, err := credential.Get(credential.TokenKey)
	if err == nil && token != "" {
		return token
	}
	if env := os.Getenv("NOTIFY_API_TOKEN"); env != "" {
		return env
	}
	log.Warn("no API token found in keyring or NOTIFY_API_TOKEN; requests will be unauthenticated")
	return ""
}
