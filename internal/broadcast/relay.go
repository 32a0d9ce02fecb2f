package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// RelayConfig holds the Kafka coordinates of the cross-instance feed.
type RelayConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// envelope wraps a batch on the wire with the producing instance's tag so
// consumers can skip their own writes.
type envelope struct {
	Instance  string  `json:"instance"`
	ProjectID string  `json:"project_id"`
	Events    []Event `json:"events"`
}

// Relay mirrors local change sets onto a Kafka topic and folds batches from
// other instances back into the local hub, so subscribers on any instance
// see the same project feed. Messages are keyed by the root counter id to
// keep one counter's updates on one partition.
type Relay struct {
	hub      *Hub
	writer   *kafka.Writer
	cfg      RelayConfig
	instance string
	logger   *slog.Logger
}

// NewRelay wraps hub with a Kafka producer. instance must be unique per
// process; it is how the relay recognizes its own messages.
func NewRelay(hub *Hub, cfg RelayConfig, instance string, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Relay{
		hub:      hub,
		writer:   writer,
		cfg:      cfg,
		instance: instance,
		logger:   logger,
	}
}

// Publish delivers the batch locally, then mirrors it to the topic. A write
// failure is logged and dropped; the mutation has already committed and
// remote subscribers recover by resyncing.
func (r *Relay) Publish(projectID string, events []Event) {
	r.hub.Publish(projectID, events)

	if len(events) == 0 {
		return
	}

	payload, err := json.Marshal(envelope{
		Instance:  r.instance,
		ProjectID: projectID,
		Events:    events,
	})
	if err != nil {
		r.logger.Error("marshaling relay envelope", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg := kafka.Message{Key: []byte(events[0].CounterID), Value: payload}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.logger.Error("relaying change set",
			"project_id", projectID,
			"events", len(events),
			"error", err,
		)
	}
}

// Run consumes the topic and folds change sets from other instances into the
// local hub until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	// Every instance must see every message, so each consumes under its own
	// group rather than sharing one.
	groupID := fmt.Sprintf("%s.%s", r.cfg.GroupID, r.instance)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: r.cfg.Brokers,
		GroupID: groupID,
		Topic:   r.cfg.Topic,
	})
	defer reader.Close()

	r.logger.Info("relay consuming", "topic", r.cfg.Topic, "group_id", groupID)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading relay topic: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			r.logger.Warn("skipping malformed relay message", "offset", msg.Offset, "error", err)
			continue
		}
		if env.Instance == r.instance {
			continue
		}
		r.hub.Publish(env.ProjectID, env.Events)
	}
}

// Close flushes and closes the producer.
func (r *Relay) Close() error {
	return r.writer.Close()
}
