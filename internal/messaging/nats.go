// Package messaging provides a NATS client wrapper for the coordinator's
// moderation fan-out. The coordinator publishes an event for every filed
// report and every threshold ban; external tooling (cmd/moderator) consumes
// them. Publishing is fire-and-forget and never blocks coordinator state.
package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects used by the coordinator.
const (
	SubjectReportFiled = "moderation.report"
	SubjectBan         = "moderation.ban"
)

// ReportEvent is published on moderation.report for every filed report.
type ReportEvent struct {
	ReporterID string `json:"reporter_id"`
	ReportedID string `json:"reported_id"`
	Reason     string `json:"reason"`
	Ts         int64  `json:"ts"`
}

// BanEvent is published on moderation.ban when the report threshold closes
// a connection.
type BanEvent struct {
	UserID      string `json:"user_id"`
	ReportCount int    `json:"report_count"`
	Ts          int64  `json:"ts"`
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "pairwise",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Client wraps the NATS connection with typed publish/subscribe helpers.
type Client struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect establishes the NATS connection with the given config.
func Connect(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())
	return &Client{conn: nc}, nil
}

// PublishReportFiled publishes a report event. Errors are logged, not
// returned: the event stream is advisory.
func (c *Client) PublishReportFiled(ev ReportEvent) {
	c.publish(SubjectReportFiled, ev)
}

// PublishBan publishes a ban event.
func (c *Client) PublishBan(ev BanEvent) {
	c.publish(SubjectBan, ev)
}

func (c *Client) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[nats] marshal %s: %v", subject, err)
		return
	}
	if err := c.conn.Publish(subject, data); err != nil {
		log.Printf("[nats] publish %s: %v", subject, err)
	}
}

// SubscribeReportFiled registers a handler for report events.
func (c *Client) SubscribeReportFiled(handler func(ev ReportEvent)) error {
	return c.subscribe(SubjectReportFiled, func(data []byte) {
		var ev ReportEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[nats] bad report event: %v", err)
			return
		}
		handler(ev)
	})
}

// SubscribeBan registers a handler for ban events.
func (c *Client) SubscribeBan(handler func(ev BanEvent)) error {
	return c.subscribe(SubjectBan, func(data []byte) {
		var ev BanEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Printf("[nats] bad ban event: %v", err)
			return
		}
		handler(ev)
	})
}

func (c *Client) subscribe(subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Close drains all subscriptions and the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", sub.Subject, err)
		}
	}
	c.subs = nil

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
	log.Printf("[nats] client closed")
}

// ModerationEvents adapts a Client to the hub's EventSink interface.
type ModerationEvents struct {
	Client *Client
}

// ReportFiled publishes a moderation.report event.
func (m ModerationEvents) ReportFiled(reporterID, reportedID, reason string) {
	m.Client.PublishReportFiled(ReportEvent{
		ReporterID: reporterID,
		ReportedID: reportedID,
		Reason:     reason,
		Ts:         time.Now().Unix(),
	})
}

// ConnectionBanned publishes a moderation.ban event.
func (m ModerationEvents) ConnectionBanned(userID string, reportCount int) {
	m.Client.PublishBan(BanEvent{
		UserID:      userID,
		ReportCount: reportCount,
		Ts:          time.Now().Unix(),
	})
}
