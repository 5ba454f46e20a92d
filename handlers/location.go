package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reliefdesk/models"
	"reliefdesk/submission"
)

// ResolveLocation turns a device fix into the canonical map link used by the form.
func (h *Handlers) ResolveLocation(c *gin.Context) {
	var req models.LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng are required"})
		return
	}

	form := h.controller.OpenForm()
	defer form.Close()

	link, err := form.UseLocation(c.Request.Context(), submission.ReportedPosition{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	})
	if err != nil {
		reason := ""
		var geoErr *submission.GeolocationError
		if errors.As(err, &geoErr) {
			reason = geoErr.Reason.String()
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "kind": "geolocation", "reason": reason})
		return
	}

	c.JSON(http.StatusOK, models.LocationResponse{LocationURL: link})
}
