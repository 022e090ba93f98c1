package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/jettravel/backend/internal/cache"
	"github.com/jettravel/backend/internal/domain"
	"github.com/jettravel/backend/internal/kafka"
	"github.com/jettravel/backend/internal/notify"
)

type Purpose string

const (
	PurposeGuest    Purpose = "guest"
	PurposeRegister Purpose = "register"
	PurposeLogin    Purpose = "login"
)

func (p Purpose) valid() bool {
	return p == PurposeGuest || p == PurposeRegister || p == PurposeLogin
}

type Result string

const (
	ResultVerified Result = "verified"
	ResultInvalid  Result = "invalid"
	ResultExpired  Result = "expired"
)

type OTPUseCase interface {
	Issue(ctx context.Context, purpose Purpose, email string) (time.Time, error)
	Verify(ctx context.Context, purpose Purpose, email, code string) (Result, error)
}

// Service issues and consumes single-use numeric codes. Only the SHA-256 hash
// of a code is ever stored; the plaintext leaves the process solely through
// the notifier.
type Service struct {
	store    cache.KeyValueStore
	notifier notify.Notifier
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

func NewService(store cache.KeyValueStore, notifier notify.Notifier, ttl time.Duration) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		ttl:      ttl,
		now:      time.Now,
		generate: generateCode,
	}
}

// Issue writes the hashed code under {purpose}_otp_{email}, overwriting any
// prior live code for the pair, and returns only the expiry.
func (s *Service) Issue(ctx context.Context, purpose Purpose, email string) (time.Time, error) {
	if !purpose.valid() {
		return time.Time{}, &domain.ValidationError{Field: "purpose", Reason: "must be guest, register or login"}
	}
	if email == "" {
		return time.Time{}, &domain.ValidationError{Field: "email", Reason: "email is required"}
	}

	code, err := s.generate()
	if err != nil {
		return time.Time{}, fmt.Errorf("generate otp: %w", err)
	}

	if err := s.store.Set(ctx, otpKey(purpose, email), []byte(hashCode(code)), s.ttl); err != nil {
		return time.Time{}, fmt.Errorf("store otp: %w", err)
	}

	expiresAt := s.now().Add(s.ttl)
	event := kafka.NotificationEvent{
		Type:      kafka.EventOTPCode,
		Recipient: email,
		Payload: map[string]string{
			"code":       code,
			"expires_in": s.ttl.String(),
		},
		CreatedAt: s.now(),
	}
	if s.notifier != nil {
		if err := s.notifier.Send(ctx, event); err != nil {
			log.Printf("WARNING: failed to send otp notification to %s: %v", email, err)
		}
	}
	return expiresAt, nil
}

// Verify consumes the stored hash on success and leaves it in place on a
// mismatch. An absent entry reads as expired: the caller cannot tell a never
// issued code from a lapsed one.
func (s *Service) Verify(ctx context.Context, purpose Purpose, email, code string) (Result, error) {
	if !purpose.valid() {
		return "", &domain.ValidationError{Field: "purpose", Reason: "must be guest, register or login"}
	}

	key := otpKey(purpose, email)
	stored, err := s.store.Get(ctx, key)
	if err != nil {
		if err == cache.ErrMiss {
			return ResultExpired, nil
		}
		return "", fmt.Errorf("read otp: %w", err)
	}

	if subtle.ConstantTimeCompare(stored, []byte(hashCode(code))) != 1 {
		return ResultInvalid, nil
	}

	if err := s.store.Del(ctx, key); err != nil {
		log.Printf("WARNING: failed to delete consumed otp for %s: %v", email, err)
	}
	return ResultVerified, nil
}

func otpKey(purpose Purpose, email string) string {
	return fmt.Sprintf("%s_otp_%s", purpose, email)
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// generateCode draws a 6-digit code uniformly from [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

var _ OTPUseCase = (*Service)(nil)
