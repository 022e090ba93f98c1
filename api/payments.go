package api

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jettravel/backend/internal/domain"
	"github.com/jettravel/backend/internal/service/payment"
)

// SignatureHeader carries the gateway's HMAC-SHA512 digest of the raw body.
const SignatureHeader = "X-Gateway-Signature"

type PaymentHandler struct {
	service payment.PaymentUseCase
}

type paymentResponse struct {
	ID            string  `json:"id"`
	TransactionID string  `json:"transaction_id"`
	BookingID     string  `json:"booking_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	return paymentResponse{
		ID:            p.ID,
		TransactionID: p.TransactionID,
		BookingID:     p.BookingID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        string(p.Status),
	}
}

func NewPaymentHandler(service payment.PaymentUseCase) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.initialize)
	router.POST("/webhook", h.webhook)
	router.GET("/verify/:reference", h.verify)
}

func (h *PaymentHandler) initialize(c *gin.Context) {
	var req payment.InitializePaymentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, redirectURL, err := h.service.InitializePayment(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"payment":      toPaymentResponse(created),
		"redirect_url": redirectURL,
	})
}

// webhook always acks with 200: a non-2xx here makes the gateway retry-storm
// on what is usually a transient internal failure. Processing errors go to the
// operator log instead.
func (h *PaymentHandler) webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Printf("WARNING: failed to read webhook body: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	if err := h.service.HandleGatewayEvent(c.Request.Context(), body, c.GetHeader(SignatureHeader)); err != nil {
		log.Printf("WARNING: gateway event processing failed: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

func (h *PaymentHandler) verify(c *gin.Context) {
	p, verified, err := h.service.VerifyPayment(c.Request.Context(), c.Param("reference"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment":  toPaymentResponse(p),
		"verified": verified,
	})
}
