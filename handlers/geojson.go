package handlers

import (
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	geojson "github.com/paulmach/go.geojson"

	"reliefdesk/models"
)

// GetRequestsGeoJSON returns verified requests that carry coordinates as a
// FeatureCollection of points.
func (h *Handlers) GetRequestsGeoJSON(c *gin.Context) {
	data, err := featureCollection(h.controller.Snapshot().Records).MarshalJSON()
	if err != nil {
		log.WithError(err).Error("Failed to marshal feature collection")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build feature collection"})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", data)
}

func featureCollection(records []models.DisplayRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		if r.Coordinates == nil {
			continue
		}
		f := geojson.NewPointFeature([]float64{r.Coordinates.Longitude, r.Coordinates.Latitude})
		f.ID = r.ID
		f.SetProperty("name", r.Name)
		f.SetProperty("location", r.Location)
		f.SetProperty("district", r.District)
		f.SetProperty("people", r.PeopleCount)
		f.SetProperty("situation", r.Situation)
		f.SetProperty("needs", r.NeedsSummary)
		f.SetProperty("priority", r.Priority)
		f.SetProperty("map_link", r.MapLink)
		fc.AddFeature(f)
	}
	return fc
}
