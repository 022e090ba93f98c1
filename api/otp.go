package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jettravel/backend/internal/service/otp"
)

type OTPHandler struct {
	service otp.OTPUseCase
}

type issueOTPRequest struct {
	Purpose string `json:"purpose"`
	Email   string `json:"email"`
}

type verifyOTPRequest struct {
	Purpose string `json:"purpose"`
	Email   string `json:"email"`
	Code    string `json:"code"`
}

func NewOTPHandler(service otp.OTPUseCase) *OTPHandler {
	return &OTPHandler{service: service}
}

func (h *OTPHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.issue)
	router.POST("/verify", h.verify)
}

// issue returns only the expiry; whether the email exists is never revealed.
func (h *OTPHandler) issue(c *gin.Context) {
	var req issueOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	expiresAt, err := h.service.Issue(c.Request.Context(), otp.Purpose(req.Purpose), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expires_at": expiresAt.Format(time.RFC3339)})
}

func (h *OTPHandler) verify(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.Verify(c.Request.Context(), otp.Purpose(req.Purpose), req.Email, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": string(result)})
}
