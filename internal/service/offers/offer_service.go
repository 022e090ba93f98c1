package offers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jettravel/backend/internal/cache"
	"github.com/jettravel/backend/internal/domain"
)

type OfferUseCase interface {
	VerifyOffer(ctx context.Context, offerID string, candidate domain.FlightOffer) (*domain.VerifiedOffer, error)
	ConsumeVerifiedOffer(ctx context.Context, offerID string) (*domain.VerifiedOffer, error)
}

// OfferProvider is the pricing capability of the flight inventory provider.
type OfferProvider interface {
	PriceOffer(ctx context.Context, offer domain.FlightOffer) (*domain.FlightOffer, error)
}

type OfferService struct {
	provider OfferProvider
	store    cache.KeyValueStore
	offerTTL time.Duration
	now      func() time.Time
}

func NewOfferService(provider OfferProvider, store cache.KeyValueStore, offerTTL time.Duration) *OfferService {
	return &OfferService{
		provider: provider,
		store:    store,
		offerTTL: offerTTL,
		now:      time.Now,
	}
}

// VerifyOffer re-prices the candidate with the provider and caches the
// provider-confirmed offer under verified:{offerID}. The returned flags tell
// the caller whether the price moved and whether the offer is still bookable;
// the caller decides what to do with them.
func (s *OfferService) VerifyOffer(ctx context.Context, offerID string, candidate domain.FlightOffer) (*domain.VerifiedOffer, error) {
	candidate.ID = offerID
	if err := candidate.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	if err := domain.ValidateTravelDate("departure_date", candidate.DepartureDate, now); err != nil {
		return nil, err
	}
	if candidate.ReturnDate != "" {
		if err := domain.ValidateTravelDate("return_date", candidate.ReturnDate, now); err != nil {
			return nil, err
		}
	}

	priced, err := s.provider.PriceOffer(ctx, candidate)
	if err != nil {
		if domain.UpstreamCode(err) == domain.CodeOfferExpired {
			return nil, err
		}
		return nil, &domain.UpstreamError{Code: domain.CodeOfferVerificationFailed, Op: "price offer", Err: err}
	}

	verified := &domain.VerifiedOffer{
		Offer:          *priced,
		PriceChanged:   math.Abs(priced.TotalAmount-candidate.TotalAmount) >= 0.01,
		SeatsAvailable: priced.NumberOfBookableSeats >= 1,
		VerifiedAt:     now,
		ExpiresAt:      now.Add(s.offerTTL),
	}

	payload, err := json.Marshal(verified)
	if err != nil {
		return nil, fmt.Errorf("marshal verified offer: %w", err)
	}
	if err := s.store.Set(ctx, verifiedOfferKey(offerID), payload, s.offerTTL); err != nil {
		return nil, fmt.Errorf("store verified offer: %w", err)
	}
	return verified, nil
}

// ConsumeVerifiedOffer is a non-destructive read: a retry within the TTL window
// reuses the same snapshot. Expiry happens only via TTL.
func (s *OfferService) ConsumeVerifiedOffer(ctx context.Context, offerID string) (*domain.VerifiedOffer, error) {
	data, err := s.store.Get(ctx, verifiedOfferKey(offerID))
	if err != nil {
		if err == cache.ErrMiss {
			return nil, &domain.NotFoundError{Entity: "verified offer", Key: offerID}
		}
		return nil, err
	}

	var verified domain.VerifiedOffer
	if err := json.Unmarshal(data, &verified); err != nil {
		return nil, fmt.Errorf("decode verified offer: %w", err)
	}
	if verified.Expired(s.now()) {
		return nil, &domain.ExpiredError{What: "verified offer"}
	}
	return &verified, nil
}

func verifiedOfferKey(offerID string) string {
	return "verified:" + offerID
}

var _ OfferUseCase = (*OfferService)(nil)
