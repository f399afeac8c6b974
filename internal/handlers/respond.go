package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/adrian-cabangis/taskboard/internal/authz"
	"github.com/adrian-cabangis/taskboard/internal/service"
	"github.com/adrian-cabangis/taskboard/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// respondError maps service errors to HTTP responses. Field-scoped
// validation failures keep their per-field shape; everything else is a
// single error string.
func respondError(c *gin.Context, err error) {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": verrs})
		return
	}
	var serr *service.StorageError
	if errors.As(err, &serr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "file storage unavailable"})
		return
	}
	switch {
	case errors.Is(err, authz.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrAttachmentNotOwned):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"errors": gin.H{"deleted_attachments": "attachment does not belong to this task"},
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// bindError turns gin binding failures into the same field-error shape
// the task form validation uses.
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = "is " + fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
