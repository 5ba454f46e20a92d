package handlers

import (
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"reliefdesk/models"
	"reliefdesk/session"
	ws "reliefdesk/websocket"
)

const serviceName = "relief-desk"

// Options bound request handling.
type Options struct {
	MaxUploadBytes    int64
	MaxImageDimension int
}

// Handlers contains the HTTP handlers for the relief desk
type Handlers struct {
	controller *session.Controller
	hub        *ws.Hub
	inFlight   *inFlightForms
	opts       Options
}

// NewHandlers creates a new handlers instance
func NewHandlers(controller *session.Controller, hub *ws.Hub, opts Options) *Handlers {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &Handlers{
		controller: controller,
		hub:        hub,
		inFlight:   newInFlightForms(),
		opts:       opts,
	}
}

// Register mounts all routes on the router.
func (h *Handlers) Register(router gin.IRouter) {
	router.GET("/health", h.HealthCheck)

	api := router.Group("/api")
	{
		api.GET("/requests", h.GetRequests)
		api.POST("/requests", h.SubmitRequest)
		api.POST("/requests/refresh", h.RefreshRequests)
		api.GET("/requests/geojson", h.GetRequestsGeoJSON)
		api.GET("/requests/listen", h.ListenRequests)
		api.GET("/stats", h.GetStats)
		api.POST("/location", h.ResolveLocation)
	}
}

// HealthCheck reports liveness with listener and generation counters.
func (h *Handlers) HealthCheck(c *gin.Context) {
	clients, _ := h.hub.GetStats()
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:           "healthy",
		Service:          serviceName,
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		ConnectedClients: clients,
		Generation:       h.controller.Generation(),
	})
}

// GetRequests returns the verified requests in backend order.
func (h *Handlers) GetRequests(c *gin.Context) {
	c.JSON(http.StatusOK, requestsResponse(h.controller.Snapshot()))
}

// RefreshRequests re-fetches synchronously, then bumps the generation.
func (h *Handlers) RefreshRequests(c *gin.Context) {
	if err := h.controller.Refresh(c.Request.Context()); err != nil {
		log.WithError(err).Warn("Manual refresh failed")
	}
	h.controller.MarkChanged(c.GetHeader("X-Request-ID"))
	c.JSON(http.StatusOK, requestsResponse(h.controller.Snapshot()))
}

// GetStats returns the current summary counters.
func (h *Handlers) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Stats())
}

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ListenRequests upgrades to a websocket that receives posts_changed events.
func (h *Handlers) ListenRequests(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade connection to WebSocket")
		return
	}
	ws.NewClient(h.hub, conn).Start()
}

func requestsResponse(snap session.Snapshot) models.RequestsResponse {
	return models.RequestsResponse{
		Requests:   snap.Records,
		Count:      len(snap.Records),
		Notice:     snap.Notice,
		Loading:    snap.Loading,
		Generation: snap.Generation,
	}
}
