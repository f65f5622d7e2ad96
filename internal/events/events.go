// Package events publishes booking and payment lifecycle changes so that
// side effects are visible outside the request that caused them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Event types.
const (
	BookingCreated   = "booking.created"
	BookingConfirmed = "booking.confirmed"
	BookingCancelled = "booking.cancelled"
	BookingCompleted = "booking.completed"
	CarAvailability  = "car.availability"
	PaymentCreated   = "payment.created"
	PaymentCompleted = "payment.completed"
	PaymentRefunded  = "payment.refunded"
	CarRated         = "car.rated"
)

// Event is one domain change.
type Event struct {
	Type      string    `json:"type"`
	BookingID string    `json:"bookingId,omitempty"`
	PaymentID string    `json:"paymentId,omitempty"`
	CarID     string    `json:"carId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Status    string    `json:"status,omitempty"`
	Available *bool     `json:"available,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events. Implementations must not block the caller for
// longer than their configured timeout.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Emit publishes event and logs, rather than returns, any failure.
func Emit(ctx context.Context, p Publisher, logger *log.Logger, event Event) {
	if p == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if err := p.Publish(ctx, event); err != nil && logger != nil {
		logger.WithError(err).WithField("event", event.Type).Warn("Failed to publish event")
	}
}

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	Logger *log.Logger
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.Logger.WithFields(log.Fields{
		"event":      event.Type,
		"booking_id": event.BookingID,
		"payment_id": event.PaymentID,
		"car_id":     event.CarID,
		"user_id":    event.UserID,
		"status":     event.Status,
	}).Info("Domain event")
	return nil
}

// mqttClient is the subset of mqtt.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher publishes JSON events on <prefix>/<event type> at QoS 1.
type MQTTPublisher struct {
	client  mqttClient
	prefix  string
	timeout time.Duration
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Timeout     time.Duration
}

// NewMQTTPublisher connects to the broker and returns a publisher along with
// a function that disconnects it.
func NewMQTTPublisher(cfg MQTTConfig, logger *log.Logger) (*MQTTPublisher, func(), error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("mqtt connect: %w", err)
	}

	closeFn := func() { client.Disconnect(250) }
	return newMQTTPublisher(client, cfg.TopicPrefix, cfg.Timeout), closeFn, nil
}

func newMQTTPublisher(client mqttClient, prefix string, timeout time.Duration) *MQTTPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTPublisher{client: client, prefix: strings.TrimSuffix(prefix, "/"), timeout: timeout}
}

// Topic returns the topic an event type is published on.
func (p *MQTTPublisher) Topic(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "/" + eventType
}

func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	token := p.client.Publish(p.Topic(event.Type), 1, false, payload)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish %s timed out", event.Type)
	}
}
