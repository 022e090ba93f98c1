package booking

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jettravel/backend/internal/cache"
	"github.com/jettravel/backend/internal/domain"
	"github.com/jettravel/backend/internal/kafka"
	"github.com/jettravel/backend/internal/notify"
	"github.com/jettravel/backend/internal/repository"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error)
	ConfirmWithProvider(ctx context.Context, id string) (*domain.Booking, error)
	Cancel(ctx context.Context, id string) (*domain.Booking, error)
	GenerateETicket(ctx context.Context, id string) (string, error)
	SetStatus(ctx context.Context, id string, status domain.BookingStatus, reason *string) (*domain.Booking, error)
	ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error)
}

// Offers is the slice of the offer verification protocol this service needs.
type Offers interface {
	ConsumeVerifiedOffer(ctx context.Context, offerID string) (*domain.VerifiedOffer, error)
}

// OrderProvider creates a firm order with the flight provider. Order creation
// is not idempotent from our side, so callers must not retry automatically.
type OrderProvider interface {
	CreateOrder(ctx context.Context, offer domain.FlightOffer, travelers []domain.Passenger) (orderID string, orderData json.RawMessage, err error)
}

type BookingService struct {
	bookings repository.BookingRepository
	offers   Offers
	provider OrderProvider
	store    cache.KeyValueStore
	notifier notify.Notifier
	holdTTL  time.Duration
	cacheTTL time.Duration
	now      func() time.Time
}

type CreateBookingInput struct {
	OfferID      string             `json:"offer_id"`
	UserID       *string            `json:"user_id"`
	Passengers   []domain.Passenger `json:"passengers"`
	ContactEmail string             `json:"contact_email"`
	ContactPhone string             `json:"contact_phone"`
	TotalAmount  float64            `json:"total_amount"`
	Currency     string             `json:"currency"`
}

type BookingServiceOption func(*BookingService)

func WithCacheTTL(ttl time.Duration) BookingServiceOption {
	return func(s *BookingService) {
		s.cacheTTL = ttl
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	offers Offers,
	provider OrderProvider,
	store cache.KeyValueStore,
	notifier notify.Notifier,
	holdTTL time.Duration,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings: bookings,
		offers:   offers,
		provider: provider,
		store:    store,
		notifier: notifier,
		holdTTL:  holdTTL,
		cacheTTL: 5 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateBooking creates a PENDING booking from a live verified offer. Amount
// and currency always come from the verified offer, never from the client's
// claim.
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	verified, err := s.offers.ConsumeVerifiedOffer(ctx, input.OfferID)
	if err != nil {
		return nil, err
	}
	if !verified.SeatsAvailable {
		return nil, &domain.UpstreamError{Code: domain.CodeSeatsUnavailable, Op: "offer " + input.OfferID + " has no bookable seats"}
	}
	if verified.PriceChanged {
		return nil, &domain.UpstreamError{
			Code: domain.CodePriceChanged,
			Op:   fmt.Sprintf("offer %s is now %.2f %s", input.OfferID, verified.Offer.TotalAmount, verified.Offer.Currency),
		}
	}

	snapshot, err := json.Marshal(verified.Offer)
	if err != nil {
		return nil, fmt.Errorf("marshal offer snapshot: %w", err)
	}

	booking := &domain.Booking{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		OfferSnapshot: snapshot,
		Passengers:    input.Passengers,
		ContactEmail:  input.ContactEmail,
		ContactPhone:  input.ContactPhone,
		TotalAmount:   verified.Offer.TotalAmount,
		Currency:      verified.Offer.Currency,
		Status:        domain.BookingStatusPending,
		ExpiresAt:     s.now().Add(s.holdTTL),
	}

	// References collide roughly once per million; retry a few times on the
	// unique constraint before giving up.
	for attempt := 0; ; attempt++ {
		reference, err := newReference()
		if err != nil {
			return nil, fmt.Errorf("generate reference: %w", err)
		}
		booking.Reference = reference

		err = s.bookings.Create(ctx, booking)
		if err == nil {
			break
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && attempt < 3 {
			continue
		}
		return nil, err
	}

	s.cacheBooking(ctx, booking)
	s.sendNotification(ctx, kafka.NotificationEvent{
		Type:             kafka.EventBookingCreated,
		Recipient:        booking.ContactEmail,
		BookingReference: booking.Reference,
		Payload: map[string]string{
			"amount":   fmt.Sprintf("%.2f", booking.TotalAmount),
			"currency": booking.Currency,
		},
		CreatedAt: s.now(),
	})
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	if cached := s.cachedBooking(ctx, bookingIDKey(id)); cached != nil {
		return cached, nil
	}
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheBooking(ctx, booking)
	return booking, nil
}

func (s *BookingService) GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	if cached := s.cachedBooking(ctx, bookingRefKey(reference)); cached != nil {
		return cached, nil
	}
	booking, err := s.bookings.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	s.cacheBooking(ctx, booking)
	return booking, nil
}

// ConfirmWithProvider creates a firm order with the provider. On provider
// failure the booking moves to FAILED and stays there until an operator
// intervenes; the order call must not be retried blindly.
func (s *BookingService) ConfirmWithProvider(ctx context.Context, id string) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.BookingStatusPending {
		return nil, &domain.ConflictError{Reason: fmt.Sprintf("booking %s is %s, only PENDING bookings can be confirmed with the provider", current.Reference, current.Status)}
	}

	var offer domain.FlightOffer
	if err := json.Unmarshal(current.OfferSnapshot, &offer); err != nil {
		return nil, fmt.Errorf("decode offer snapshot: %w", err)
	}

	orderID, orderData, err := s.provider.CreateOrder(ctx, offer, current.Passengers)
	if err != nil {
		reason := err.Error()
		if _, uerr := s.bookings.UpdateStatus(ctx, id, domain.BookingStatusFailed, &reason); uerr != nil {
			log.Printf("WARNING: booking %s: provider order failed (%v) and status write also failed: %v", current.Reference, err, uerr)
		} else {
			s.invalidateBooking(ctx, current)
		}
		return nil, &domain.UpstreamError{Code: domain.CodeProviderOrderFailed, Op: "create order for " + current.Reference, Err: err}
	}

	updated, err := s.bookings.ConfirmWithOrder(ctx, id, orderID, orderData)
	if err != nil {
		// The provider order exists but our status write failed. Log enough to
		// replay by hand; swallowing this would lose the order.
		log.Printf("WARNING: booking %s: provider order %s created but local confirm failed: %v", current.Reference, orderID, err)
		return nil, err
	}

	s.cacheBooking(ctx, updated)
	return updated, nil
}

func (s *BookingService) Cancel(ctx context.Context, id string) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch current.Status {
	case domain.BookingStatusCancelled:
		return nil, &domain.ConflictError{Reason: "booking is already cancelled"}
	case domain.BookingStatusCompleted:
		return nil, &domain.ConflictError{Reason: "completed bookings cannot be cancelled"}
	}
	if !current.Status.CanTransitionTo(domain.BookingStatusCancelled) {
		return nil, &domain.ConflictError{Reason: fmt.Sprintf("booking in status %s cannot be cancelled", current.Status)}
	}

	updated, err := s.bookings.UpdateStatus(ctx, id, domain.BookingStatusCancelled, nil)
	if err != nil {
		return nil, err
	}

	s.cacheBooking(ctx, updated)
	s.sendNotification(ctx, kafka.NotificationEvent{
		Type:             kafka.EventBookingCancelled,
		Recipient:        updated.ContactEmail,
		BookingReference: updated.Reference,
		CreatedAt:        s.now(),
	})
	return updated, nil
}

// GenerateETicket is idempotent: once a URL is written it is returned
// unchanged on every subsequent call.
func (s *BookingService) GenerateETicket(ctx context.Context, id string) (string, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if current.ETicketURL != nil {
		return *current.ETicketURL, nil
	}
	if current.Status != domain.BookingStatusConfirmed {
		return "", &domain.ConflictError{Reason: fmt.Sprintf("e-tickets are only issued for CONFIRMED bookings, booking is %s", current.Status)}
	}

	url := fmt.Sprintf("https://etickets.jettravel.example/%s/%s.pdf", current.Reference, uuid.NewString())
	updated, err := s.bookings.SetETicketURL(ctx, id, url)
	if err != nil {
		return "", err
	}
	s.cacheBooking(ctx, updated)
	if updated.ETicketURL == nil {
		return "", fmt.Errorf("booking %s: e-ticket url not persisted", current.Reference)
	}
	return *updated.ETicketURL, nil
}

// SetStatus applies a status transition on behalf of the payment
// reconciliation engine, enforcing the transition table and keeping the cache
// in line with the store.
func (s *BookingService) SetStatus(ctx context.Context, id string, status domain.BookingStatus, reason *string) (*domain.Booking, error) {
	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	if !current.Status.CanTransitionTo(status) {
		return nil, &domain.ConflictError{Reason: fmt.Sprintf("booking cannot move from %s to %s", current.Status, status)}
	}

	updated, err := s.bookings.UpdateStatus(ctx, id, status, reason)
	if err != nil {
		return nil, err
	}
	s.cacheBooking(ctx, updated)
	return updated, nil
}

// ExpirePendingBookings sweeps PENDING bookings whose hold window has lapsed.
// Run from the worker; expiry never happens inline on the request path.
func (s *BookingService) ExpirePendingBookings(ctx context.Context) ([]domain.Booking, error) {
	expired, err := s.bookings.ExpirePendingBefore(ctx, s.now())
	if err != nil {
		return nil, err
	}
	for i := range expired {
		b := &expired[i]
		s.cacheBooking(ctx, b)
		s.sendNotification(ctx, kafka.NotificationEvent{
			Type:             kafka.EventBookingCancelled,
			Recipient:        b.ContactEmail,
			BookingReference: b.Reference,
			CreatedAt:        s.now(),
		})
	}
	return expired, nil
}

func validateCreateInput(input CreateBookingInput) error {
	if input.OfferID == "" {
		return &domain.ValidationError{Field: "offer_id", Reason: "offer id is required"}
	}
	if len(input.Passengers) < 1 {
		return &domain.ValidationError{Field: "passengers", Reason: "at least one passenger is required"}
	}
	for i, p := range input.Passengers {
		if p.FirstName == "" || p.LastName == "" {
			return &domain.ValidationError{Field: fmt.Sprintf("passengers[%d]", i), Reason: "first and last name are required"}
		}
		if _, err := time.Parse("2006-01-02", p.DateOfBirth); err != nil {
			return &domain.ValidationError{Field: fmt.Sprintf("passengers[%d].date_of_birth", i), Reason: "must be YYYY-MM-DD"}
		}
	}
	if input.ContactEmail == "" {
		return &domain.ValidationError{Field: "contact_email", Reason: "contact email is required"}
	}
	if len(input.Currency) != 3 {
		return &domain.ValidationError{Field: "currency", Reason: "currency must be a 3-letter ISO 4217 code"}
	}
	return nil
}

// cacheBooking invalidates then repopulates both lookup keys so readers never
// see an entry older than the last committed store write.
func (s *BookingService) cacheBooking(ctx context.Context, b *domain.Booking) {
	if s.store == nil {
		return
	}
	s.invalidateBooking(ctx, b)
	payload, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, bookingIDKey(b.ID), payload, s.cacheTTL); err != nil {
		log.Printf("WARNING: failed to cache booking %s: %v", b.Reference, err)
		return
	}
	if err := s.store.Set(ctx, bookingRefKey(b.Reference), payload, s.cacheTTL); err != nil {
		log.Printf("WARNING: failed to cache booking %s by reference: %v", b.Reference, err)
	}
}

func (s *BookingService) invalidateBooking(ctx context.Context, b *domain.Booking) {
	if s.store == nil {
		return
	}
	_ = s.store.Del(ctx, bookingIDKey(b.ID))
	_ = s.store.Del(ctx, bookingRefKey(b.Reference))
}

// cachedBooking returns nil on any cache miss or error, so reads always fall
// through to the durable store when the cache is unreachable. The wired store
// must surface backend errors rather than serve a process-local copy here.
func (s *BookingService) cachedBooking(ctx context.Context, key string) *domain.Booking {
	if s.store == nil {
		return nil
	}
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return nil
	}
	var b domain.Booking
	if err := json.Unmarshal(data, &b); err != nil {
		return nil
	}
	return &b
}

func (s *BookingService) sendNotification(ctx context.Context, event kafka.NotificationEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, event); err != nil {
		log.Printf("WARNING: failed to send %s notification for booking %s: %v", event.Type, event.BookingReference, err)
	}
}

func bookingIDKey(id string) string {
	return "booking:id:" + id
}

func bookingRefKey(reference string) string {
	return "booking:ref:" + reference
}

// newReference draws a JT reference with six random digits.
func newReference() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("JT%06d", n.Int64()), nil
}

var _ BookingUseCase = (*BookingService)(nil)
