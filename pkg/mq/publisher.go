package mq

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"conductor/pkg/contextx"
	"conductor/pkg/log"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

const (
	defaultHeartbeat = 10 * time.Second
	defaultLocale    = "en_US"
	defaultProduct   = "conductor"
)

// Channel is the part of an AMQP channel the publisher needs.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type DialFunc func() (Channel, error)

// Publisher sends JSON messages to a topic exchange. The channel is opened
// lazily and dropped after a failed publish, the next call dials again.
type Publisher struct {
	exchange string
	dial     DialFunc

	mu      sync.Mutex
	channel Channel
}

// NewPublisher publishes to exchange on the broker at url.
func NewPublisher(url, exchange string) *Publisher {
	return NewPublisherWithDialer(exchange, func() (Channel, error) {
		return dialExchange(url, exchange)
	})
}

func NewPublisherWithDialer(exchange string, dial DialFunc) *Publisher {
	return &Publisher{exchange: exchange, dial: dial}
}

type amqpChannel struct {
	*amqp.Channel
	conn *amqp.Connection
}

func (c *amqpChannel) Close() error {
	c.Channel.Close()
	return c.conn.Close()
}

func dialExchange(url, exchange string) (Channel, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: defaultHeartbeat,
		Locale:    defaultLocale,
		Properties: amqp.Table{
			"product": defaultProduct,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &amqpChannel{Channel: ch, conn: conn}, nil
}

func (p *Publisher) prepareMessage(body []byte, messageID string, headers amqp.Table) amqp.Publishing {
	return amqp.Publishing{
		Headers:         headers,
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		DeliveryMode:    amqp.Persistent,
		MessageId:       messageID,
		Timestamp:       time.Now().UTC(),
		Body:            body,
	}
}

// Publish marshals body and sends it with the given routing key. messageID
// lets consumers drop redeliveries, a new one is generated when empty.
func (p *Publisher) Publish(ctx *contextx.Context, routingKey, messageID string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if messageID == "" {
		messageID = uuid.NewString()
	}
	headers := amqp.Table{}
	if ctx != nil && ctx.GetRequestID() != "" {
		headers["request_id"] = ctx.GetRequestID()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		if p.channel, err = p.dial(); err != nil {
			return err
		}
	}
	err = p.channel.Publish(p.exchange, routingKey, false, false, p.prepareMessage(data, messageID, headers))
	if err != nil {
		log.Warnf(ctx, "publish %s to %s failed, dropping channel: %s", routingKey, p.exchange, err.Error())
		p.channel.Close()
		p.channel = nil
		return fmt.Errorf("publish failed, error: %s", err.Error())
	}
	log.Debugf(ctx, "published %s to %s", routingKey, p.exchange)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return nil
	}
	err := p.channel.Close()
	p.channel = nil
	return err
}
