package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jettravel/backend/config"
	"github.com/jettravel/backend/internal/cache"
	"github.com/jettravel/backend/internal/email"
	"github.com/jettravel/backend/internal/kafka"
	"github.com/jettravel/backend/internal/notify"
	"github.com/jettravel/backend/internal/provider"
	"github.com/jettravel/backend/internal/repository"
	"github.com/jettravel/backend/internal/service/booking"
	"github.com/jettravel/backend/internal/service/offers"
	kafkaGo "github.com/segmentio/kafka-go"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisStore := cache.NewRedisStore(cfg.Redis)
	ephemeral := cache.NewFallbackStore(redisStore, cache.NewMemoryStore())

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	notifier := notify.NewKafkaNotifier(producer, cfg.Kafka.NotificationsTopic)

	providerClient := provider.NewClient(cfg.Provider)
	bookingRepo := repository.NewBookingRepository(pool)
	offerService := offers.NewOfferService(providerClient, ephemeral, time.Duration(cfg.Booking.OfferTTLSeconds)*time.Second)
	bookingService := booking.NewBookingService(
		bookingRepo,
		offerService,
		providerClient,
		redisStore,
		notifier,
		time.Duration(cfg.Booking.HoldTTLMinutes)*time.Minute,
		booking.WithCacheTTL(time.Duration(cfg.Booking.CacheTTLSeconds)*time.Second),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic)
	defer consumer.Close()

	emailSender := email.NewSender()

	go func() {
		if err := consumer.Consume(ctx, func(ctx context.Context, msg kafkaGo.Message) error {
			var event kafka.NotificationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.Printf("decode notification event error: %v", err)
				return nil
			}
			if err := emailSender.Send(ctx, event); err != nil {
				log.Printf("WARNING: failed to send %s email to %s: %v", event.Type, event.Recipient, err)
			}
			return nil
		}); err != nil {
			log.Printf("consumer stopped: %v", err)
		}
	}()

	expireTicker := time.NewTicker(time.Duration(cfg.Worker.ExpirationSweepMinutes) * time.Minute)
	defer expireTicker.Stop()

	for {
		select {
		case <-expireTicker.C:
			expired, err := bookingService.ExpirePendingBookings(ctx)
			if err != nil {
				log.Printf("expire bookings error: %v", err)
				continue
			}
			if len(expired) > 0 {
				log.Printf("expired %d bookings", len(expired))
			}
		case <-ctx.Done():
			log.Printf("shutting down worker")
			return
		}
	}
}
