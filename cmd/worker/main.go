package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"presensi/internal/config"
	"presensi/internal/notify"
	"presensi/internal/queue"
	"presensi/internal/store"
)

// Worker consumes accepted check-ins from redis and sends push notifications.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	config.SetupLogging(cfg)

	if cfg.QueueBackend != "redis" {
		log.Fatal().Str("queue_backend", cfg.QueueBackend).Msg("worker requires QUEUE_BACKEND=redis, the api consumes in-memory queues itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet, consumer will keep retrying")
	}

	push := notify.New(cfg.OneSignalAppID, cfg.OneSignalRESTKey, 5, 10)
	if !push.Configured() {
		log.Warn().Msg("onesignal not configured, messages will be drained without sending")
	}

	q := queue.NewRedisQueue(redisClient.Client, "presensi:checkins")
	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("queue consume init failed")
	}

	log.Info().Msg("worker started, waiting for messages")
	processed, failed := 0, 0
	for msg := range messages {
		if !push.Configured() {
			continue
		}
		if err := notify.HandleMessage(ctx, push, msg); err != nil {
			failed++
			log.Warn().Err(err).Str("type", msg.Type).Msg("notification failed")
			continue
		}
		processed++
	}
	log.Info().Int("processed", processed).Int("failed", failed).Msg("worker stopped")
}
