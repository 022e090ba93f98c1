package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jettravel/backend/config"
	"github.com/jettravel/backend/internal/bootstrap"
	"github.com/jettravel/backend/internal/cache"
	"github.com/jettravel/backend/internal/gateway"
	"github.com/jettravel/backend/internal/kafka"
	"github.com/jettravel/backend/internal/notify"
	"github.com/jettravel/backend/internal/provider"
	"github.com/jettravel/backend/internal/repository"
	"github.com/jettravel/backend/internal/service/booking"
	"github.com/jettravel/backend/internal/service/offers"
	"github.com/jettravel/backend/internal/service/otp"
	"github.com/jettravel/backend/internal/service/payment"
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

	// The ephemeral store degrades to the in-process map when redis is down.
	// Bookings deliberately bypass the fallback: a failed cache read there must
	// fall through to postgres, never to a process-local copy that another
	// instance's write cannot invalidate.
	redisStore := cache.NewRedisStore(cfg.Redis)
	ephemeral := cache.NewFallbackStore(redisStore, cache.NewMemoryStore())

	producer := kafka.NewProducer(cfg.Kafka.Brokers)
	defer producer.Close()
	notifier := notify.NewKafkaNotifier(producer, cfg.Kafka.NotificationsTopic)

	providerClient := provider.NewClient(cfg.Provider)
	gatewayClient := gateway.NewClient(cfg.Gateway)

	bookingRepo := repository.NewBookingRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)

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
	paymentService := payment.NewPaymentService(paymentRepo, bookingService, gatewayClient, notifier, cfg.Gateway.WebhookSecret)
	otpService := otp.NewService(ephemeral, notifier, time.Duration(cfg.Booking.OTPTTLSeconds)*time.Second)

	if err := bootstrap.Run(ctx, cfg, offerService, bookingService, paymentService, otpService); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
