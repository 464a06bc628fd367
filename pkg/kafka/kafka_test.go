package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/config"
)

type dumpEvent struct {
	Location string `json:"location"`
	Bytes    int    `json:"bytes"`
}

func TestDecodeJSON(t *testing.T) {
	ev, err := DecodeJSON[dumpEvent]([]byte(`{"location":"index.blm","bytes":42}`))
	require.NoError(t, err)
	assert.Equal(t, dumpEvent{Location: "index.blm", Bytes: 42}, ev)

	_, err = DecodeJSON[dumpEvent]([]byte(`{"location":`))
	assert.ErrorContains(t, err, "decoding kafka message")
}

func TestPublish_UnencodableValue(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}}, "bloom.test")
	defer p.Close()

	err := p.Publish(context.Background(), Event{Key: "k", Value: make(chan int)})
	assert.ErrorContains(t, err, "marshaling event value")
}

func TestConsumer_StopsOnCancelledContext(t *testing.T) {
	c := NewConsumer(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}}, "bloom.test", "bloom-test",
		func(context.Context, []byte, []byte) error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, c.Start(ctx))
}
