package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"

	"reliefdesk/models"
)

const publishTimeout = 10 * time.Second

// Publisher announces data changes on a direct exchange. The connection is
// re-established lazily when it drops.
type Publisher struct {
	mu         sync.Mutex
	amqpURL    string
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewPublisher dials the broker and declares the exchange.
func NewPublisher(amqpURL, exchangeName, routingKey string) (*Publisher, error) {
	p := &Publisher{
		amqpURL:    amqpURL,
		exchange:   exchangeName,
		routingKey: routingKey,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

// PublishPostsChanged sends a posts_changed event as persistent JSON.
func (p *Publisher) PublishPostsChanged(event models.PostsChangedEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	publishing, err := postsChangedPublishing(event)
	if err != nil {
		return err
	}
	if err := p.publish(ctx, publishing); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"generation": event.Generation,
		"request_id": event.RequestID,
		"exchange":   p.exchange,
	}).Debug("Published posts_changed event")
	return nil
}

func postsChangedPublishing(event models.PostsChangedEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     event.Timestamp,
		Type:          event.Type,
		CorrelationId: event.RequestID,
	}, nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.channel != nil {
		if chErr := p.channel.Close(); chErr != nil {
			log.WithError(chErr).Warn("Failed to close channel")
			err = chErr
		}
		p.channel = nil
	}
	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil {
			log.WithError(connErr).Warn("Failed to close connection")
			if err == nil {
				err = connErr
			}
		}
		p.conn = nil
	}
	return err
}

// IsConnected reports whether the connection and channel are open.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed() && p.channel != nil
}

func (p *Publisher) connectLocked() error {
	conn, err := amqp.Dial(p.amqpURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = ch
	return nil
}

func (p *Publisher) resetLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) publish(ctx context.Context, publishing amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() || p.channel == nil {
		p.resetLocked()
		if err := p.connectLocked(); err != nil {
			return err
		}
	}

	err := p.channel.Publish(p.exchange, p.routingKey, false, false, publishing)
	if err != nil && isConnClosedErr(err) {
		p.resetLocked()
		if connErr := p.connectLocked(); connErr != nil {
			return fmt.Errorf("failed to publish message: %w (reconnect failed: %v)", err, connErr)
		}
		err = p.channel.Publish(p.exchange, p.routingKey, false, false, publishing)
	}
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("publish exceeded deadline: %w", ctxErr)
	}
	return nil
}

func isConnClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "channel/connection is not open")
}
