package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"regexp"
	"testing"

	"github.com/jettravel/backend/internal/domain"
	"github.com/jettravel/backend/internal/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus, data map[string]any) (*domain.Payment, error) {
	args := m.Called(ctx, id, status, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

type MockBookings struct {
	mock.Mock
}

func (m *MockBookings) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookings) SetStatus(ctx context.Context, id string, status domain.BookingStatus, reason *string) (*domain.Booking, error) {
	args := m.Called(ctx, id, status, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitializeTransaction(ctx context.Context, reference string, amount float64, currency, email string) (*domain.TransactionInit, error) {
	args := m.Called(ctx, reference, amount, currency, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransactionInit), args.Error(1)
}

func (m *MockGateway) VerifyTransaction(ctx context.Context, reference string) (*domain.GatewayStatus, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GatewayStatus), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, event kafka.NotificationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

const testSecret = "whsec_test"

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func pendingBooking() *domain.Booking {
	return &domain.Booking{
		ID:           "b1",
		Reference:    "JT123456",
		Status:       domain.BookingStatusPending,
		TotalAmount:  500.00,
		Currency:     "GHS",
		ContactEmail: "ama@example.com",
	}
}

func pendingPayment() *domain.Payment {
	return &domain.Payment{
		ID:            "p1",
		TransactionID: "PAYM-a1b2c3d4",
		BookingID:     "b1",
		Amount:        500.00,
		Currency:      "GHS",
		Status:        domain.PaymentStatusPending,
		PaymentData:   map[string]any{},
	}
}

func TestPaymentService_InitializePayment_Success(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	mockBookings := &MockBookings{}
	mockGateway := &MockGateway{}
	service := NewPaymentService(mockRepo, mockBookings, mockGateway, &MockNotifier{}, testSecret)

	ctx := context.Background()
	input := InitializePaymentInput{BookingID: "b1", CustomerEmail: "ama@example.com", PaymentMethod: "card"}

	var createdID string
	mockBookings.On("GetBooking", ctx, "b1").Return(pendingBooking(), nil).Once()
	mockRepo.On("Create", ctx, mock.AnythingOfType("*domain.Payment")).Run(func(args mock.Arguments) {
		p := args.Get(1).(*domain.Payment)
		createdID = p.ID
		// The charge is the booking's exact total, never a client-supplied amount.
		assert.Equal(t, 500.00, p.Amount)
		assert.Equal(t, "GHS", p.Currency)
		assert.Equal(t, domain.PaymentStatusPending, p.Status)
		assert.Regexp(t, regexp.MustCompile(`^PAYM-[0-9a-f]{8}$`), p.TransactionID)
	}).Return(nil).Once()
	mockGateway.On("InitializeTransaction", ctx, mock.MatchedBy(func(ref string) bool {
		return regexp.MustCompile(`^PAYM-[0-9a-f]{8}$`).MatchString(ref)
	}), 500.00, "GHS", "ama@example.com").Return(&domain.TransactionInit{
		AuthorizationURL: "https://checkout.gateway.example/abc",
		AccessCode:       "abc",
	}, nil).Once()
	mockRepo.On("UpdateStatus", ctx, mock.MatchedBy(func(id string) bool { return id == createdID }), domain.PaymentStatusPending, mock.Anything).Return(pendingPayment(), nil).Once()

	payment, redirectURL, err := service.InitializePayment(ctx, input)

	assert.NoError(t, err)
	assert.NotNil(t, payment)
	assert.Equal(t, "https://checkout.gateway.example/abc", redirectURL)

	mockRepo.AssertExpectations(t)
	mockGateway.AssertExpectations(t)
}

func TestPaymentService_InitializePayment_BookingNotPayable(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name   string
		status domain.BookingStatus
	}{
		{name: "confirmed", status: domain.BookingStatusConfirmed},
		{name: "cancelled", status: domain.BookingStatusCancelled},
		{name: "completed", status: domain.BookingStatusCompleted},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &MockPaymentRepository{}
			mockBookings := &MockBookings{}
			service := NewPaymentService(mockRepo, mockBookings, &MockGateway{}, &MockNotifier{}, testSecret)

			booking := pendingBooking()
			booking.Status = tc.status
			mockBookings.On("GetBooking", ctx, "b1").Return(booking, nil).Once()

			_, _, err := service.InitializePayment(ctx, InitializePaymentInput{BookingID: "b1", CustomerEmail: "ama@example.com"})

			assert.Error(t, err)
			assert.True(t, domain.IsConflict(err))
			mockRepo.AssertNotCalled(t, "Create")
		})
	}
}

func TestPaymentService_InitializePayment_RetryAfterFailure(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	mockBookings := &MockBookings{}
	mockGateway := &MockGateway{}
	service := NewPaymentService(mockRepo, mockBookings, mockGateway, &MockNotifier{}, testSecret)

	ctx := context.Background()
	booking := pendingBooking()
	booking.Status = domain.BookingStatusPaymentFailed

	mockBookings.On("GetBooking", ctx, "b1").Return(booking, nil).Once()
	mockRepo.On("Create", ctx, mock.Anything).Return(nil).Once()
	mockGateway.On("InitializeTransaction", ctx, mock.Anything, 500.00, "GHS", "ama@example.com").Return(&domain.TransactionInit{AuthorizationURL: "https://checkout.gateway.example/xyz"}, nil).Once()
	mockRepo.On("UpdateStatus", ctx, mock.Anything, domain.PaymentStatusPending, mock.Anything).Return(pendingPayment(), nil).Once()

	_, redirectURL, err := service.InitializePayment(ctx, InitializePaymentInput{BookingID: "b1", CustomerEmail: "ama@example.com"})

	assert.NoError(t, err)
	assert.Equal(t, "https://checkout.gateway.example/xyz", redirectURL)
}

func TestPaymentService_InitializePayment_GatewayFailure(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	mockBookings := &MockBookings{}
	mockGateway := &MockGateway{}
	service := NewPaymentService(mockRepo, mockBookings, mockGateway, &MockNotifier{}, testSecret)

	ctx := context.Background()
	failed := pendingPayment()
	failed.Status = domain.PaymentStatusFailed

	mockBookings.On("GetBooking", ctx, "b1").Return(pendingBooking(), nil).Once()
	mockRepo.On("Create", ctx, mock.Anything).Return(nil).Once()
	mockGateway.On("InitializeTransaction", ctx, mock.Anything, 500.00, "GHS", "ama@example.com").Return(nil, errors.New("gateway 503")).Once()
	mockRepo.On("UpdateStatus", ctx, mock.Anything, domain.PaymentStatusFailed, mock.Anything).Return(failed, nil).Once()

	_, _, err := service.InitializePayment(ctx, InitializePaymentInput{BookingID: "b1", CustomerEmail: "ama@example.com"})

	assert.Error(t, err)
	assert.Equal(t, domain.CodeGatewayFailed, domain.UpstreamCode(err))
	mockRepo.AssertExpectations(t)
}

func TestPaymentService_HandleGatewayEvent_ChargeSuccess(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	mockBookings := &MockBookings{}
	mockNotifier := &MockNotifier{}
	service := NewPaymentService(mockRepo, mockBookings, &MockGateway{}, mockNotifier, testSecret)

	ctx := context.Background()
	body := []byte(`{"event":"charge.success","data":{"id":101,"reference":"PAYM-a1b2c3d4","amount":50000,"currency":"GHS","status":"success","paid_at":"2026-08-24T10:00:00Z","channel":"mobile_money"}}`)

	completed := pendingPayment()
	completed.Status = domain.PaymentStatusCompleted
	confirmed := pendingBooking()
	confirmed.Status = domain.BookingStatusConfirmed

	mockRepo.On("GetByTransactionID", ctx, "PAYM-a1b2c3d4").Return(pendingPayment(), nil).Once()
	mockRepo.On("UpdateStatus", ctx, "p1", domain.PaymentStatusCompleted, mock.MatchedBy(func(data map[string]any) bool {
		return data["gateway_amount"] == int64(50000) && data["channel"] == "mobile_money"
	})).Return(completed, nil).Once()
	mockBookings.On("SetStatus", ctx, "b1", domain.BookingStatusConfirmed, (*string)(nil)).Return(confirmed, nil).Once()
	mockNotifier.On("Send", ctx, mock.MatchedBy(func(event kafka.NotificationEvent) bool {
		return event.Type == kafka.EventPaymentConfirmed && event.Recipient == "ama@example.com"
	})).Return(nil).Once()

	err := service.HandleGatewayEvent(ctx, body, sign(body))

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockBookings.AssertExpectations(t)
	mockNotifier.AssertExpectations(t)
}

func TestPaymentService_HandleGatewayEvent_DuplicateDeliveryIsNoop(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	mockBookings := &MockBookings{}
	mockNotifier := &MockNotifier{}
	service := NewPaymentService(mockRepo, mockBookings, &MockGateway{}, mockNotifier, testSecret)

	ctx := context.Background()
	body := []byte(`{"event":"charge.success","data":{"reference":"PAYM-a1b2c3d4","amount":50000,"status":"success"}}`)

	completed := pendingPayment()
	completed.Status = domain.PaymentStatusCompleted

	// The payment is already COMPLETED, so the re-delivery changes nothing and
	// no second notification goes out.
	mockRepo.On("GetByTransactionID", ctx, "PAYM-a1b2c3d4").Return(completed, nil).Once()

	err := service.HandleGatewayEvent(ctx, body, sign(body))

	assert.NoError(t, err)
	mockRepo.AssertNotCalled(t, "UpdateStatus")
	mockBookings.AssertNotCalled(t, "SetStatus")
	mockNotifier.AssertNotCalled(t, "Send")
}

func TestPaymentService_HandleGatewayEvent_ChargeFailed(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	mockBookings := &MockBookings{}
	service := NewPaymentService(mockRepo, mockBookings, &MockGateway{}, &MockNotifier{}, testSecret)

	ctx := context.Background()
	body := []byte(`{"event":"charge.failed","data":{"reference":"PAYM-a1b2c3d4","status":"failed","gateway_response":"Insufficient funds"}}`)

	failed := pendingPayment()
	failed.Status = domain.PaymentStatusFailed
	reason := "Insufficient funds"
	paymentFailed := pendingBooking()
	paymentFailed.Status = domain.BookingStatusPaymentFailed

	mockRepo.On("GetByTransactionID", ctx, "PAYM-a1b2c3d4").Return(pendingPayment(), nil).Once()
	mockRepo.On("UpdateStatus", ctx, "p1", domain.PaymentStatusFailed, mock.Anything).Return(failed, nil).Once()
	mockBookings.On("SetStatus", ctx, "b1", domain.BookingStatusPaymentFailed, &reason).Return(paymentFailed, nil).Once()

	err := service.HandleGatewayEvent(ctx, body, sign(body))

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockBookings.AssertExpectations(t)
}

func TestPaymentService_HandleGatewayEvent_FailureAfterSettlementIsNoop(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	mockBookings := &MockBookings{}
	service := NewPaymentService(mockRepo, mockBookings, &MockGateway{}, &MockNotifier{}, testSecret)

	ctx := context.Background()
	body := []byte(`{"event":"charge.failed","data":{"reference":"PAYM-a1b2c3d4","status":"failed"}}`)

	completed := pendingPayment()
	completed.Status = domain.PaymentStatusCompleted

	// A late failure event must not claw back a settled payment.
	mockRepo.On("GetByTransactionID", ctx, "PAYM-a1b2c3d4").Return(completed, nil).Once()

	err := service.HandleGatewayEvent(ctx, body, sign(body))

	assert.NoError(t, err)
	mockRepo.AssertNotCalled(t, "UpdateStatus")
	mockBookings.AssertNotCalled(t, "SetStatus")
}

func TestPaymentService_HandleGatewayEvent_RefundProcessed(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	mockBookings := &MockBookings{}
	mockNotifier := &MockNotifier{}
	service := NewPaymentService(mockRepo, mockBookings, &MockGateway{}, mockNotifier, testSecret)

	ctx := context.Background()
	body := []byte(`{"event":"refund.processed","data":{"reference":"PAYM-a1b2c3d4","amount":50000,"status":"processed"}}`)

	completed := pendingPayment()
	completed.Status = domain.PaymentStatusCompleted
	refunded := pendingPayment()
	refunded.Status = domain.PaymentStatusRefunded
	refundedBooking := pendingBooking()
	refundedBooking.Status = domain.BookingStatusRefunded

	mockRepo.On("GetByTransactionID", ctx, "PAYM-a1b2c3d4").Return(completed, nil).Once()
	mockRepo.On("UpdateStatus", ctx, "p1", domain.PaymentStatusRefunded, mock.Anything).Return(refunded, nil).Once()
	mockBookings.On("SetStatus", ctx, "b1", domain.BookingStatusRefunded, (*string)(nil)).Return(refundedBooking, nil).Once()
	mockNotifier.On("Send", ctx, mock.MatchedBy(func(event kafka.NotificationEvent) bool {
		return event.Type == kafka.EventPaymentRefunded
	})).Return(nil).Once()

	err := service.HandleGatewayEvent(ctx, body, sign(body))

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockNotifier.AssertExpectations(t)
}

func TestPaymentService_HandleGatewayEvent_RefundBeforeSettlementIsNoop(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	service := NewPaymentService(mockRepo, &MockBookings{}, &MockGateway{}, &MockNotifier{}, testSecret)

	ctx := context.Background()
	body := []byte(`{"event":"refund.processed","data":{"reference":"PAYM-a1b2c3d4","status":"processed"}}`)

	// Only COMPLETED payments can be refunded.
	mockRepo.On("GetByTransactionID", ctx, "PAYM-a1b2c3d4").Return(pendingPayment(), nil).Once()

	err := service.HandleGatewayEvent(ctx, body, sign(body))

	assert.NoError(t, err)
	mockRepo.AssertNotCalled(t, "UpdateStatus")
}

func TestPaymentService_HandleGatewayEvent_BadSignature(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	service := NewPaymentService(mockRepo, &MockBookings{}, &MockGateway{}, &MockNotifier{}, testSecret)

	body := []byte(`{"event":"charge.success","data":{"reference":"PAYM-a1b2c3d4"}}`)

	err := service.HandleGatewayEvent(context.Background(), body, "deadbeef")

	assert.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	mockRepo.AssertNotCalled(t, "GetByTransactionID")
}

func TestPaymentService_HandleGatewayEvent_UnknownEventIgnored(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	service := NewPaymentService(mockRepo, &MockBookings{}, &MockGateway{}, &MockNotifier{}, testSecret)

	body := []byte(`{"event":"subscription.create","data":{"reference":"PAYM-a1b2c3d4"}}`)

	err := service.HandleGatewayEvent(context.Background(), body, sign(body))

	assert.NoError(t, err)
	mockRepo.AssertNotCalled(t, "GetByTransactionID")
}

func TestPaymentService_HandleGatewayEvent_UnknownReference(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	service := NewPaymentService(mockRepo, &MockBookings{}, &MockGateway{}, &MockNotifier{}, testSecret)

	ctx := context.Background()
	body := []byte(`{"event":"charge.success","data":{"reference":"PAYM-ffffffff","status":"success"}}`)

	mockRepo.On("GetByTransactionID", ctx, "PAYM-ffffffff").Return(nil, &domain.NotFoundError{Entity: "payment", Key: "PAYM-ffffffff"}).Once()

	err := service.HandleGatewayEvent(ctx, body, sign(body))

	assert.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestPaymentService_VerifyPayment_SuccessConverges(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	mockBookings := &MockBookings{}
	mockGateway := &MockGateway{}
	mockNotifier := &MockNotifier{}
	service := NewPaymentService(mockRepo, mockBookings, mockGateway, mockNotifier, testSecret)

	ctx := context.Background()
	completed := pendingPayment()
	completed.Status = domain.PaymentStatusCompleted
	confirmed := pendingBooking()
	confirmed.Status = domain.BookingStatusConfirmed

	mockGateway.On("VerifyTransaction", ctx, "PAYM-a1b2c3d4").Return(&domain.GatewayStatus{
		Reference: "PAYM-a1b2c3d4",
		Status:    "success",
		Amount:    50000,
		Currency:  "GHS",
	}, nil).Once()
	mockRepo.On("GetByTransactionID", ctx, "PAYM-a1b2c3d4").Return(pendingPayment(), nil).Once()
	mockRepo.On("UpdateStatus", ctx, "p1", domain.PaymentStatusCompleted, mock.Anything).Return(completed, nil).Once()
	mockBookings.On("SetStatus", ctx, "b1", domain.BookingStatusConfirmed, (*string)(nil)).Return(confirmed, nil).Once()
	mockNotifier.On("Send", ctx, mock.Anything).Return(nil).Once()

	payment, verified, err := service.VerifyPayment(ctx, "PAYM-a1b2c3d4")

	assert.NoError(t, err)
	assert.True(t, verified)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)
	mockGateway.AssertExpectations(t)
	mockRepo.AssertExpectations(t)
}

func TestPaymentService_VerifyPayment_AbandonedMapsToFailure(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	mockBookings := &MockBookings{}
	mockGateway := &MockGateway{}
	service := NewPaymentService(mockRepo, mockBookings, mockGateway, &MockNotifier{}, testSecret)

	ctx := context.Background()
	failed := pendingPayment()
	failed.Status = domain.PaymentStatusFailed
	paymentFailed := pendingBooking()
	paymentFailed.Status = domain.BookingStatusPaymentFailed

	mockGateway.On("VerifyTransaction", ctx, "PAYM-a1b2c3d4").Return(&domain.GatewayStatus{
		Reference: "PAYM-a1b2c3d4",
		Status:    "abandoned",
	}, nil).Once()
	mockRepo.On("GetByTransactionID", ctx, "PAYM-a1b2c3d4").Return(pendingPayment(), nil).Once()
	mockRepo.On("UpdateStatus", ctx, "p1", domain.PaymentStatusFailed, mock.Anything).Return(failed, nil).Once()
	mockBookings.On("SetStatus", ctx, "b1", domain.BookingStatusPaymentFailed, mock.AnythingOfType("*string")).Return(paymentFailed, nil).Once()

	payment, verified, err := service.VerifyPayment(ctx, "PAYM-a1b2c3d4")

	assert.NoError(t, err)
	assert.True(t, verified)
	assert.Equal(t, domain.PaymentStatusFailed, payment.Status)
}

func TestPaymentService_VerifyPayment_StillPending(t *testing.T) {
	mockRepo := &MockPaymentRepository{}
	mockGateway := &MockGateway{}
	service := NewPaymentService(mockRepo, &MockBookings{}, mockGateway, &MockNotifier{}, testSecret)

	ctx := context.Background()

	mockGateway.On("VerifyTransaction", ctx, "PAYM-a1b2c3d4").Return(&domain.GatewayStatus{
		Reference: "PAYM-a1b2c3d4",
		Status:    "ongoing",
	}, nil).Once()
	mockRepo.On("GetByTransactionID", ctx, "PAYM-a1b2c3d4").Return(pendingPayment(), nil).Once()

	payment, verified, err := service.VerifyPayment(ctx, "PAYM-a1b2c3d4")

	assert.NoError(t, err)
	assert.False(t, verified)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	mockRepo.AssertNotCalled(t, "UpdateStatus")
}

func TestPaymentService_VerifyPayment_GatewayDown(t *testing.T) {
	mockGateway := &MockGateway{}
	service := NewPaymentService(&MockPaymentRepository{}, &MockBookings{}, mockGateway, &MockNotifier{}, testSecret)

	ctx := context.Background()
	mockGateway.On("VerifyTransaction", ctx, "PAYM-a1b2c3d4").Return(nil, errors.New("connection reset")).Once()

	_, _, err := service.VerifyPayment(ctx, "PAYM-a1b2c3d4")

	assert.Error(t, err)
	assert.Equal(t, domain.CodeGatewayFailed, domain.UpstreamCode(err))
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"event":"charge.success"}`)

	assert.True(t, validSignature(testSecret, body, sign(body)))
	assert.False(t, validSignature(testSecret, body, "deadbeef"))
	assert.False(t, validSignature("other_secret", body, sign(body)))
}
