// Package mqttsub feeds reader batches published over MQTT into the ingestion pipeline.
package mqttsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"rental-rfid-backend/config"
	"rental-rfid-backend/internal/apperr"
	"rental-rfid-backend/internal/ingest"
	"rental-rfid-backend/internal/logger"
	"rental-rfid-backend/internal/metrics"
)

const connectTimeout = 10 * time.Second

// Processor ingests one batch.
type Processor interface {
	Process(ctx context.Context, transport string, b *ingest.Batch) (*ingest.BatchResult, error)
}

// Flusher drops cached query responses made stale by a processed batch.
type Flusher interface {
	Flush()
}

// Subscriber listens on the reader topic and answers on the sibling results topic.
type Subscriber struct {
	cfg       config.MQTTConfig
	proc      Processor
	responses Flusher
	log       *logger.Logger
	client    mqtt.Client
}

// New creates a subscriber. responses may be nil.
func New(cfg config.MQTTConfig, proc Processor, responses Flusher, log *logger.Logger) *Subscriber {
	return &Subscriber{cfg: cfg, proc: proc, responses: responses, log: log.With("component", "mqttsub")}
}

// Start connects to the broker and subscribes. The subscription is renewed on
// every reconnect. Messages are processed with ctx until Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	qos := byte(s.cfg.QoS)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(s.cfg.Topic, qos, func(c mqtt.Client, m mqtt.Message) {
			s.onMessage(ctx, c, m)
		})
		token.Wait()
		if err := token.Error(); err != nil {
			s.log.Error("failed to subscribe", "topic", s.cfg.Topic, "error", err)
			return
		}
		s.log.Info("subscribed to reader topic", "topic", s.cfg.Topic, "qos", qos)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.log.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("timed out connecting to mqtt broker %s", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to mqtt broker %s: %w", s.cfg.Broker, err)
	}
	s.log.Info("connected to mqtt broker", "broker", s.cfg.Broker, "client_id", s.cfg.ClientID)
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

func (s *Subscriber) onMessage(ctx context.Context, c mqtt.Client, m mqtt.Message) {
	reply := s.Handle(ctx, m.Topic(), m.Payload())
	topic := ResultsTopic(m.Topic())
	token := c.Publish(topic, byte(s.cfg.QoS), false, reply)
	token.Wait()
	if err := token.Error(); err != nil {
		s.log.Warn("failed to publish batch result", "topic", topic, "error", err)
	}
}

type errorReply struct {
	Error  string         `json:"error"`
	Issues []apperr.Issue `json:"issues,omitempty"`
}

// Handle processes one message and returns the JSON reply for the results topic.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) []byte {
	batch, err := ingest.DecodeBatch(payload)
	if err != nil {
		metrics.BatchesTotal.WithLabelValues(ingest.TransportMQTT, metrics.ResultRejected).Inc()
		s.log.Warn("dropping malformed batch", "topic", topic, "error", err)
		return s.encode(replyFor(err))
	}
	if batch.ReaderID == "" {
		batch.ReaderID = ReaderIDFromTopic(topic)
	}

	res, err := s.proc.Process(ctx, ingest.TransportMQTT, batch)
	if err != nil {
		s.log.Warn("rejected batch", "topic", topic, "reader_id", batch.ReaderID, "error", err)
		return s.encode(replyFor(err))
	}
	if s.responses != nil {
		s.responses.Flush()
	}
	return s.encode(res)
}

func replyFor(err error) errorReply {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		return errorReply{Error: ve.Message, Issues: ve.Issues}
	case errors.Is(err, apperr.ErrUnauthorized):
		return errorReply{Error: "unauthorized"}
	default:
		return errorReply{Error: "internal server error"}
	}
}

func (s *Subscriber) encode(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error("failed to encode reply", "error", err)
		return []byte(`{"error":"internal server error"}`)
	}
	return b
}

// ReaderIDFromTopic returns the segment after "readers" in a topic such as
// rfid/readers/dock-3/reads, or "" when there is none.
func ReaderIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "readers" {
			return parts[i+1]
		}
	}
	return ""
}

// ResultsTopic swaps the last topic level for "results".
func ResultsTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[:i] + "/results"
	}
	return topic + "/results"
}
