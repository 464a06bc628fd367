// Package notify announces finished dumps on Kafka so that serving processes
// can reload without polling.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/internal/dumpstore"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/kafka"
)

// DumpWritten is published after a dump has been saved. Location never
// carries a password.
type DumpWritten struct {
	EventID   string    `json:"event_id"`
	Location  string    `json:"location"`
	Documents int       `json:"documents"`
	Bits      uint      `json:"m"`
	Hashes    uint      `json:"k"`
	Bytes     int       `json:"bytes"`
	WrittenAt time.Time `json:"written_at"`
}

// NewDumpWritten stamps an event with a fresh ID and the current time.
func NewDumpWritten(location string, documents int, m, k uint, size int) DumpWritten {
	return DumpWritten{
		EventID:   uuid.NewString(),
		Location:  location,
		Documents: documents,
		Bits:      m,
		Hashes:    k,
		Bytes:     size,
		WrittenAt: time.Now().UTC(),
	}
}

// Notifier publishes dump events.
type Notifier interface {
	DumpWritten(ctx context.Context, ev DumpWritten) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) DumpWritten(context.Context, DumpWritten) error { return nil }
func (Nop) Close() error                                   { return nil }

// New returns a Kafka notifier when cfg.Enabled is set, and Nop otherwise.
func New(cfg config.KafkaConfig) Notifier {
	if !cfg.Enabled || len(cfg.Brokers) == 0 || cfg.Topics.DumpWritten == "" {
		return Nop{}
	}
	return &KafkaNotifier{producer: kafka.NewProducer(cfg, cfg.Topics.DumpWritten)}
}

// publisher is the part of kafka.Producer the notifier needs.
type publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
	Close() error
}

// KafkaNotifier publishes DumpWritten events keyed by location, so events for
// one location stay ordered on one partition.
type KafkaNotifier struct {
	producer publisher
}

func (n *KafkaNotifier) DumpWritten(ctx context.Context, ev DumpWritten) error {
	ev.Location = dumpstore.Redact(ev.Location)
	if err := n.producer.Publish(ctx, kafka.Event{Key: ev.Location, Value: ev}); err != nil {
		return fmt.Errorf("announcing dump %s: %w", ev.Location, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error { return n.producer.Close() }

// Follow consumes DumpWritten events until ctx ends and calls fn for each one
// whose location equals location. Events carry redacted locations, so both
// sides are compared in that form. It returns immediately when Kafka is
// disabled.
func Follow(ctx context.Context, cfg config.KafkaConfig, location string, fn func(context.Context, DumpWritten) error) error {
	if !cfg.Enabled || len(cfg.Brokers) == 0 || cfg.Topics.DumpWritten == "" {
		return nil
	}
	location = dumpstore.Redact(location)
	group := cfg.ConsumerGroup
	if group == "" {
		group = "bloom-serve-" + uuid.NewString()
	}
	logger := slog.Default().With("component", "notify", "location", location)
	consumer := kafka.NewConsumer(cfg, cfg.Topics.DumpWritten, group, handler(location, fn, logger))
	logger.Info("following dump events", "topic", cfg.Topics.DumpWritten, "group", group)
	return consumer.Start(ctx)
}

func handler(location string, fn func(context.Context, DumpWritten) error, logger *slog.Logger) kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		ev, err := kafka.DecodeJSON[DumpWritten](value)
		if err != nil {
			logger.Error("dropping malformed dump event", "key", string(key), "error", err)
			return nil
		}
		if ev.Location != location {
			return nil
		}
		logger.Info("dump written elsewhere, reloading", "event_id", ev.EventID, "documents", ev.Documents)
		return fn(ctx, ev)
	}
}
