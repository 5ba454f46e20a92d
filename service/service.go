package service

import (
	"context"
	"sync"

	"github.com/apex/log"

	"reliefdesk/config"
	"reliefdesk/handlers"
	"reliefdesk/metrics"
	"reliefdesk/models"
	"reliefdesk/rabbitmq"
	"reliefdesk/session"
	"reliefdesk/upstream"
	"reliefdesk/websocket"
)

// EventPublisher forwards data-changed events to other services.
type EventPublisher interface {
	PublishPostsChanged(event models.PostsChangedEvent) error
	Close() error
}

// Service wires the backend client, the display controller, the listener hub
// and the optional event publisher.
type Service struct {
	config     *config.Config
	controller *session.Controller
	hub        *websocket.Hub
	publisher  EventPublisher
	handlers   *handlers.Handlers

	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewService creates a new relief desk service
func NewService(cfg *config.Config) (*Service, error) {
	metrics.Register()

	client := upstream.NewClient(cfg.BackendURL, cfg.BackendTimeout,
		upstream.WithRateLimit(float64(cfg.BackendRPS), cfg.BackendRPS))

	var publisher EventPublisher
	if cfg.AMQPURL != "" {
		p, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			return nil, err
		}
		publisher = p
	}

	return newService(cfg, client, publisher), nil
}

func newService(cfg *config.Config, backend session.Backend, publisher EventPublisher) *Service {
	controller := session.NewController(backend, session.Options{
		RefreshInterval:    cfg.RefreshInterval,
		GeolocationTimeout: cfg.GeolocationTimeout,
	})
	hub := websocket.NewHub()

	return &Service{
		config:     cfg,
		controller: controller,
		hub:        hub,
		publisher:  publisher,
		handlers: handlers.NewHandlers(controller, hub, handlers.Options{
			MaxUploadBytes:    cfg.MaxUploadBytes,
			MaxImageDimension: cfg.MaxImageDimension,
		}),
	}
}

// Start starts the hub and the refresh loop
func (s *Service) Start() error {
	log.Info("Starting relief desk service...")

	go s.hub.Run()

	s.unsubscribe = s.controller.Subscribe(s.onEvent)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.controller.Run(ctx)
	}()

	log.WithField("backend", s.config.BackendURL).Info("Relief desk service started")
	return nil
}

// Stop stops the service gracefully
func (s *Service) Stop() error {
	log.Info("Stopping relief desk service...")

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.hub.Stop()

	var err error
	if s.publisher != nil {
		if err = s.publisher.Close(); err != nil {
			log.WithError(err).Warn("Error closing event publisher")
		}
	}

	log.Info("Relief desk service stopped")
	return err
}

// GetHandlers returns the HTTP handlers
func (s *Service) GetHandlers() *handlers.Handlers {
	return s.handlers
}

// Controller exposes the display controller.
func (s *Service) Controller() *session.Controller {
	return s.controller
}

func (s *Service) onEvent(e session.Event) {
	s.hub.BroadcastGeneration(e.Generation)

	if s.publisher == nil {
		return
	}
	event := models.PostsChangedEvent{
		Type:       e.Type,
		Generation: e.Generation,
		RequestID:  e.RequestID,
		Timestamp:  e.Timestamp,
	}
	// Publishing may block on reconnect; keep the observer non-blocking.
	go func() {
		if err := s.publisher.PublishPostsChanged(event); err != nil {
			log.WithError(err).WithField("generation", event.Generation).Warn("Failed to publish posts_changed event")
		}
	}()
}
