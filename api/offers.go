package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jettravel/backend/internal/domain"
	"github.com/jettravel/backend/internal/service/offers"
)

type OfferHandler struct {
	service offers.OfferUseCase
}

type verifiedOfferResponse struct {
	Offer          domain.FlightOffer `json:"offer"`
	PriceChanged   bool               `json:"price_changed"`
	SeatsAvailable bool               `json:"seats_available"`
	Expiration     string             `json:"expiration"`
}

func NewOfferHandler(service offers.OfferUseCase) *OfferHandler {
	return &OfferHandler{service: service}
}

func (h *OfferHandler) Register(router *gin.RouterGroup) {
	router.POST("/:id/verify", h.verify)
	router.GET("/:id/verified", h.verified)
}

func (h *OfferHandler) verify(c *gin.Context) {
	var candidate domain.FlightOffer
	if err := c.ShouldBindJSON(&candidate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	verified, err := h.service.VerifyOffer(c.Request.Context(), c.Param("id"), candidate)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, verifiedOfferResponse{
		Offer:          verified.Offer,
		PriceChanged:   verified.PriceChanged,
		SeatsAvailable: verified.SeatsAvailable,
		Expiration:     verified.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *OfferHandler) verified(c *gin.Context) {
	verified, err := h.service.ConsumeVerifiedOffer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, verifiedOfferResponse{
		Offer:          verified.Offer,
		PriceChanged:   verified.PriceChanged,
		SeatsAvailable: verified.SeatsAvailable,
		Expiration:     verified.ExpiresAt.Format(time.RFC3339),
	})
}
