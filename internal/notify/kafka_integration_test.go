//go:build integration

// Run with:
//
//	TEST_KAFKA_BROKER=localhost:9092 go test -v -tags=integration ./internal/notify/...
package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/config"
)

func TestPublishAndFollow_Integration(t *testing.T) {
	broker := os.Getenv("TEST_KAFKA_BROKER")
	if broker == "" {
		broker = "localhost:9092"
	}
	dialCtx, cancelDial := context.WithTimeout(context.Background(), 3*time.Second)
	conn, err := kafkago.DialContext(dialCtx, "tcp", broker)
	cancelDial()
	if err != nil {
		t.Skipf("kafka not available at %s: %v", broker, err)
	}
	topic := "bloom.test-" + uuid.NewString()[:8]
	err = conn.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	conn.Close()
	require.NoError(t, err)

	cfg := config.KafkaConfig{
		Enabled: true,
		Brokers: []string{broker},
		Topics:  config.KafkaTopics{DumpWritten: topic},
	}
	location := "file:///tmp/" + uuid.NewString() + ".blm"

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	received := make(chan DumpWritten, 1)
	go func() {
		_ = Follow(ctx, cfg, location, func(_ context.Context, ev DumpWritten) error {
			select {
			case received <- ev:
			default:
			}
			return nil
		})
	}()

	n := New(cfg)
	defer n.Close()
	require.IsType(t, &KafkaNotifier{}, n)

	// The follower starts at the newest offset, so keep publishing until it
	// has joined and seen one event.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		ev := NewDumpWritten(location, 4, 1024, 3, 99)
		if err := n.DumpWritten(ctx, ev); err != nil {
			t.Logf("publish: %v", err)
		}
		select {
		case got := <-received:
			assert.Equal(t, location, got.Location)
			assert.Equal(t, 4, got.Documents)
			assert.EqualValues(t, 1024, got.Bits)
			return
		case <-ticker.C:
		case <-ctx.Done():
			t.Fatal("no dump event received")
		}
	}
}
