package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jettravel/backend/api"
	"github.com/jettravel/backend/config"
	"github.com/jettravel/backend/internal/service/booking"
	"github.com/jettravel/backend/internal/service/offers"
	"github.com/jettravel/backend/internal/service/otp"
	"github.com/jettravel/backend/internal/service/payment"
)

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails.
func Run(
	ctx context.Context,
	cfg *config.Config,
	offerSvc offers.OfferUseCase,
	bookingSvc booking.BookingUseCase,
	paymentSvc payment.PaymentUseCase,
	otpSvc otp.OTPUseCase,
) error {
	router := gin.Default()

	api.NewOfferHandler(offerSvc).Register(router.Group("/offers"))
	api.NewBookingHandler(bookingSvc).Register(router.Group("/bookings"))
	api.NewPaymentHandler(paymentSvc).Register(router.Group("/payments"))
	api.NewOTPHandler(otpSvc).Register(router.Group("/otp"))

	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
