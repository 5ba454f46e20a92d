package models

import (
	"time"
)

// BroadcastMessage represents a message sent to WebSocket clients
type BroadcastMessage struct {
	Type       string    `json:"type"`
	Generation uint64    `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
}

// PostsChangedEvent is published after a submission is accepted
type PostsChangedEvent struct {
	Type       string    `json:"type"`
	Generation uint64    `json:"generation"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	Timestamp        string `json:"timestamp"`
	ConnectedClients int    `json:"connected_clients"`
	Generation       uint64 `json:"generation"`
}

// RequestsResponse is the body of GET /api/requests
type RequestsResponse struct {
	Requests   []DisplayRecord `json:"requests"`
	Count      int             `json:"count"`
	Notice     string          `json:"notice,omitempty"`
	Loading    bool            `json:"loading"`
	Generation uint64          `json:"generation"`
}

// LocationRequest is the body of POST /api/location
type LocationRequest struct {
	Latitude  *float64 `json:"lat"`
	Longitude *float64 `json:"lng"`
}

// LocationResponse is returned by POST /api/location
type LocationResponse struct {
	LocationURL string `json:"location_url"`
}

// SubmitResponse is returned by POST /api/requests on success
type SubmitResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}
