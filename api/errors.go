package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jettravel/backend/internal/domain"
)

// respondError maps the domain error taxonomy onto HTTP statuses. Upstream
// errors carry their machine code so clients can re-quote or re-search
// instead of blindly retrying.
func respondError(c *gin.Context, err error) {
	switch {
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case domain.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case domain.IsExpired(err):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	default:
		if code := domain.UpstreamCode(err); code != "" {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "code": code})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
