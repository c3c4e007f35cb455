package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"campusd/internal/audit"
	"campusd/internal/config"
	"campusd/internal/logging"
	"campusd/internal/queue"
	"campusd/internal/store"
)

// Worker drains the audit queue into Postgres. Audit is fire-and-forget on
// the API side; this is where records actually land.
func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campusd:audit")
	}

	repo := audit.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		logrus.Fatalf("queue consume init failed: %v", err)
	}

	logrus.Info("audit worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != audit.MessageType {
			continue
		}

		var rec audit.Record
		if err := json.Unmarshal(msg.Body, &rec); err != nil {
			logrus.Warnf("bad audit message: %v", err)
			continue
		}

		if err := repo.Insert(ctx, rec); err != nil {
			// Audit loss is logged, never retried into an inconsistent state.
			logrus.Warnf("audit insert failed: %v", err)
		}
	}

	logrus.Info("audit worker exited")
}
