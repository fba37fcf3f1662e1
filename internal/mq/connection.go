package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

var ErrNoChannel = errors.New("mq: no channel available")

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Connection wraps an AMQP connection and reconnects when the broker drops it.
type Connection struct {
	url    string
	logger *log.Entry

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	closed   bool
	closedCh chan struct{}
}

func Dial(url string) (*Connection, error) {
	c := &Connection{
		url:      url,
		logger:   log.WithField("component", "mq"),
		closedCh: make(chan struct{}),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	go c.watch()
	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	c.conn = conn
	c.channel = ch
	c.logger.Info("connected to broker")
	return nil
}

func (c *Connection) watch() {
	for {
		c.mu.RLock()
		if c.closed {
			c.mu.RUnlock()
			return
		}
		conn := c.conn
		c.mu.RUnlock()

		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.closedCh:
			return
		case err := <-notifyClose:
			if err != nil {
				c.logger.WithError(err).Warn("connection closed")
			}
			c.reconnect()
		}
	}
}

func (c *Connection) reconnect() {
	delay := time.Second
	for {
		select {
		case <-c.closedCh:
			return
		case <-time.After(delay):
		}
		if err := c.connect(); err != nil {
			c.logger.WithError(err).WithField("delay", delay.String()).Warn("reconnect failed")
			delay = min(delay*2, 30*time.Second)
			continue
		}
		return
	}
}

// WithChannel runs fn with the current channel.
func (c *Connection) WithChannel(fn func(ch Channel) error) error {
	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()
	if ch == nil {
		return ErrNoChannel
	}
	return fn(ch)
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closedCh)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
